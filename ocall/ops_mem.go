package ocall

import (
	"fmt"

	"github.com/epfl-dcsl/ocallgw/boundary"
)

// MmapUntrusted issues the mmap_untrusted OCALL: the host establishes a
// fresh mapping and hands back its address, which the Gateway verifies is
// entirely outside the enclave before trusting it (invariant I1 applies
// to host-supplied pointers just as much as enclave-supplied ones).
func (g *Gateway) MmapUntrusted(fd int32, offset uint64, size uint64, prot uint16) (boundary.HostPtr, int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	ptr, a := allocStruct[MmapUntrustedArgs](g.stack)
	if a == nil {
		return 0, -1, permErr("mmap_untrusted", errUstackExhausted)
	}
	a.Fd = fd
	a.Offset = offset
	a.Size = size
	a.Prot = prot

	ret, err := g.call(CodeMmapUntrusted, ptr)
	if err != nil || ret < 0 {
		return 0, ret, err
	}
	mem := structAt[MmapUntrustedArgs](ptr).Mem
	if !g.checker.EntirelyOutside(uintptr(mem), uintptr(size)) {
		return 0, -1, permErr("mmap_untrusted", &boundary.ErrStraddles{Ptr: uintptr(mem), Len: uintptr(size)})
	}
	return mem, ret, nil
}

// MunmapUntrusted issues the munmap_untrusted OCALL, after verifying the
// region being released is entirely outside the enclave: an enclave
// thread must never be able to trick the host into unmapping enclave
// memory.
func (g *Gateway) MunmapUntrusted(mem boundary.HostPtr, size uint64) (int32, error) {
	if !g.checker.EntirelyOutside(uintptr(mem), uintptr(size)) {
		return -1, invalErr("munmap_untrusted", fmt.Errorf("region [%#x, %#x) is not entirely outside the enclave", mem, uintptr(mem)+uintptr(size)))
	}

	rsv := g.stack.Reserve()
	defer rsv.Release()

	ptr, a := allocStruct[MunmapUntrustedArgs](g.stack)
	if a == nil {
		return -1, permErr("munmap_untrusted", errUstackExhausted)
	}
	a.Mem = mem
	a.Size = size
	return g.call(CodeMunmapUntrusted, ptr)
}
