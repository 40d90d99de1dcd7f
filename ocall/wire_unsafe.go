package ocall

import (
	"unsafe"

	"github.com/epfl-dcsl/ocallgw/boundary"
	"github.com/epfl-dcsl/ocallgw/ustack"
)

// allocStruct bump-allocates space for a T on the untrusted stack and
// returns both the host pointer (for the wire) and a typed pointer to the
// same memory (for marshaling field-by-field, the way the original casts
// sgx_alloc_on_ustack_aligned's return value to ms_ocall_*_t*).
//
// T must contain no Go pointers: every field must be an integer, array of
// integers, or uintptr standing in for a HostPtr. This mirrors the
// original's constraint that everything on the untrusted stack is
// raw bytes the host (and, in the exitless path, another goroutine
// standing in for an RPC worker thread) can read and write concurrently.
func allocStruct[T any](s *ustack.Stack) (boundary.HostPtr, *T) {
	var zero T
	ptr := s.AllocAligned(unsafe.Sizeof(zero), unsafe.Alignof(zero))
	if ptr == 0 {
		return 0, nil
	}
	return ptr, (*T)(unsafe.Pointer(uintptr(ptr)))
}

// structAt reinterprets an already-known host address as *T, for reading
// back a struct the Gateway allocated earlier in the same OCALL.
func structAt[T any](ptr boundary.HostPtr) *T {
	return (*T)(unsafe.Pointer(uintptr(ptr)))
}

// bytesAt reinterprets a host address as a byte slice of length n.
func bytesAt(ptr boundary.HostPtr, n uintptr) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), n)
}

// sliceAddr returns the address of b's backing array, reinterpreted as an
// enclave pointer without any Checker classification. No code in this
// package calls it; GetAttestation takes caller-supplied enclave buffers.
func sliceAddr(b []byte) boundary.EnclavePtr {
	if len(b) == 0 {
		return 0
	}
	return boundary.EnclavePtr(uintptr(unsafe.Pointer(&b[0])))
}

// DecodeRequest reinterprets a dequeued erq.Request handle as the
// RequestDescriptor it was enqueued as. Exported so a host-side worker
// pool (hostsim, or a real SGX untrusted runtime) living outside this
// package can service the Exitless RPC Queue without this package
// exposing raw unsafe.Pointer casts to it.
func DecodeRequest(addr uintptr) *RequestDescriptor {
	return (*RequestDescriptor)(unsafe.Pointer(addr))
}
