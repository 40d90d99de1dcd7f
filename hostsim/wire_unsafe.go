package hostsim

import (
	"unsafe"

	"github.com/epfl-dcsl/ocallgw/boundary"
	"github.com/epfl-dcsl/ocallgw/ocall"
)

// hostStructAt reinterprets a host address the Gateway has already
// validated as *T. Mirrors ocall's own (unexported) structAt — hostsim
// lives outside that package, so it needs its own copy of the same
// narrow unsafe operation.
func hostStructAt[T any](ptr boundary.HostPtr) *T {
	return (*T)(unsafe.Pointer(uintptr(ptr)))
}

func hostBytesAt(ptr boundary.HostPtr, n uintptr) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), n)
}

func sliceAddr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func bytesAt(ptr boundary.HostPtr, n uintptr) []byte { return hostBytesAt(ptr, n) }

// hostPollFds reinterprets a host address as the PollFd array a poll
// OCALL's argument block points at.
func hostPollFds(ptr boundary.HostPtr, n uintptr) []ocall.PollFd {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*ocall.PollFd)(unsafe.Pointer(uintptr(ptr))), n)
}

// hostWordPtr reinterprets a host address as the raw pointer a futex
// syscall needs.
func hostWordPtr(ptr boundary.HostPtr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(ptr))
}

// cString reads a NUL-terminated string out of host memory at ptr.
func cString(ptr boundary.HostPtr) string {
	if ptr == 0 {
		return ""
	}
	const maxLen = 1 << 20
	base := uintptr(ptr)
	for i := 0; i < maxLen; i++ {
		b := *(*byte)(unsafe.Pointer(base + uintptr(i)))
		if b == 0 {
			return string(unsafe.Slice((*byte)(unsafe.Pointer(base)), i))
		}
	}
	panic("hostsim: pathname exceeds maximum length without a NUL terminator")
}
