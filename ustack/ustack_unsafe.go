package ustack

import (
	"unsafe"

	"github.com/epfl-dcsl/ocallgw/boundary"
)

// hostBytes reinterprets a host stack address as a byte slice of length n.
// This is safe only because the caller has just bump-allocated exactly
// these n bytes from a region backed by real memory.
func hostBytes(ptr boundary.HostPtr, n uintptr) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), n)
}

// sliceBase returns the address of a byte slice's backing array.
func sliceBase(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}
