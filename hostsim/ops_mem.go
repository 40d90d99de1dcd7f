package hostsim

import (
	"github.com/epfl-dcsl/ocallgw/boundary"
	"github.com/epfl-dcsl/ocallgw/ocall"
)

// doMmapUntrustedOcall services the explicit mmap_untrusted OCALL (an
// enclave thread asking for a standing untrusted mapping, as opposed to
// the Gateway's own internal large-buffer staging, which calls
// h.MmapUntrusted directly without going through this dispatch at all).
func (h *Host) doMmapUntrustedOcall(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.MmapUntrustedArgs](args)
	mem, err := h.MmapUntrusted(uintptr(a.Size), uint32(a.Prot))
	if err != nil {
		return ocall.EPERM
	}
	a.Mem = mem
	return 0
}

func (h *Host) doMunmapUntrustedOcall(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.MunmapUntrustedArgs](args)
	if err := h.MunmapUntrusted(a.Mem, uintptr(a.Size)); err != nil {
		return ocall.EPERM
	}
	return 0
}
