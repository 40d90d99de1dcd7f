package ocall

import (
	"fmt"

	"github.com/epfl-dcsl/ocallgw/boundary"
)

// Host mmap protection bits, mirrored from the original's PAL_PROT_* flags
// narrowly enough to cover what mmap_untrusted needs here.
const (
	protRead      = 1 << 0
	protWrite     = 1 << 1
	protReadWrite = protRead | protWrite
)

// outBuffer resolves an enclave-or-host buffer address that the Gateway is
// about to hand to the host for it to *read from* (e.g. write's and
// send's payload), following a three-way classification:
//
//   - Outside: the caller already owns host memory (e.g. a prior
//     mmap_untrusted region); used as-is, zero-copy.
//   - Inside, small: bump-allocated on the untrusted stack and copied.
//   - Inside, large: mmap_untrusted'd fresh and copied; release is the
//     caller's responsibility via the returned release func.
//   - Straddling: rejected outright (never forwarded to the host).
func (g *Gateway) outBuffer(op string, buf uintptr, n uintptr) (boundary.HostPtr, func(), error) {
	switch g.checker.Classify(buf, n) {
	case boundary.Outside:
		return boundary.HostPtr(buf), func() {}, nil
	case boundary.Inside:
		if n == 0 {
			return 0, func() {}, nil
		}
		if !g.largeBuffer(n) {
			hp := g.stack.Alloc(n)
			if hp == 0 {
				return 0, nil, permErr(op, fmt.Errorf("ustack exhausted for %d-byte buffer", n))
			}
			if err := g.checker.CopyToHost(hp, boundary.EnclavePtr(buf), n); err != nil {
				return 0, nil, permErr(op, err)
			}
			return hp, func() {}, nil
		}
		hp, err := g.host.MmapUntrusted(n, protReadWrite)
		if err != nil {
			return 0, nil, permErr(op, fmt.Errorf("mmap_untrusted for %d-byte buffer: %w", n, err))
		}
		if err := g.checker.CopyToHost(hp, boundary.EnclavePtr(buf), n); err != nil {
			_ = g.host.MunmapUntrusted(hp, n)
			return 0, nil, permErr(op, err)
		}
		return hp, func() { _ = g.host.MunmapUntrusted(hp, n) }, nil
	default:
		return 0, nil, permErr(op, &boundary.ErrStraddles{Ptr: buf, Len: n})
	}
}

// inBuffer resolves a buffer the host is about to *write into* (read's
// and recv's destination). It returns the host pointer to hand the host,
// a release func, and a writeback func the caller must invoke with the
// number of bytes the host actually produced, to copy them back into
// enclave memory when the destination was enclave-resident.
func (g *Gateway) inBuffer(op string, buf uintptr, n uintptr) (boundary.HostPtr, func(), func(produced uintptr) error, error) {
	switch g.checker.Classify(buf, n) {
	case boundary.Outside:
		return boundary.HostPtr(buf), func() {}, func(uintptr) error { return nil }, nil
	case boundary.Inside:
		if n == 0 {
			return 0, func() {}, func(uintptr) error { return nil }, nil
		}
		alloc := func() (boundary.HostPtr, func(), error) {
			if !g.largeBuffer(n) {
				hp := g.stack.Alloc(n)
				if hp == 0 {
					return 0, nil, permErr(op, fmt.Errorf("ustack exhausted for %d-byte buffer", n))
				}
				return hp, func() {}, nil
			}
			hp, err := g.host.MmapUntrusted(n, protReadWrite)
			if err != nil {
				return 0, nil, permErr(op, fmt.Errorf("mmap_untrusted for %d-byte buffer: %w", n, err))
			}
			return hp, func() { _ = g.host.MunmapUntrusted(hp, n) }, nil
		}
		hp, release, err := alloc()
		if err != nil {
			return 0, nil, nil, err
		}
		writeback := func(produced uintptr) error {
			if produced == 0 {
				return nil
			}
			if produced > n {
				return permErr(op, fmt.Errorf("host reported %d bytes, exceeds %d-byte buffer", produced, n))
			}
			if _, err := g.checker.CopyToEnclave(boundary.EnclavePtr(buf), n, hp, produced); err != nil {
				return permErr(op, err)
			}
			return nil
		}
		return hp, release, writeback, nil
	default:
		return 0, nil, nil, permErr(op, &boundary.ErrStraddles{Ptr: buf, Len: n})
	}
}

// ioBuffer resolves a buffer that is both read and written across one
// OCALL: the caller's contents are copied to the host before the call
// (as outBuffer does), and the host's contents are copied back after the
// call (as inBuffer's writeback does). This is the shape listen's and
// connect's bind address take: the caller may specify a concrete address
// (e.g. to bind a fixed port) or an unspecified one (e.g. port 0), and
// either way learns back whatever address the host actually bound.
func (g *Gateway) ioBuffer(op string, buf uintptr, n uintptr) (boundary.HostPtr, func(), func(produced uintptr) error, error) {
	switch g.checker.Classify(buf, n) {
	case boundary.Outside:
		return boundary.HostPtr(buf), func() {}, func(uintptr) error { return nil }, nil
	case boundary.Inside:
		if n == 0 {
			return 0, func() {}, func(uintptr) error { return nil }, nil
		}
		alloc := func() (boundary.HostPtr, func(), error) {
			if !g.largeBuffer(n) {
				hp := g.stack.Alloc(n)
				if hp == 0 {
					return 0, nil, permErr(op, fmt.Errorf("ustack exhausted for %d-byte buffer", n))
				}
				return hp, func() {}, nil
			}
			hp, err := g.host.MmapUntrusted(n, protReadWrite)
			if err != nil {
				return 0, nil, permErr(op, fmt.Errorf("mmap_untrusted for %d-byte buffer: %w", n, err))
			}
			return hp, func() { _ = g.host.MunmapUntrusted(hp, n) }, nil
		}
		hp, release, err := alloc()
		if err != nil {
			return 0, nil, nil, err
		}
		if err := g.checker.CopyToHost(hp, boundary.EnclavePtr(buf), n); err != nil {
			release()
			return 0, nil, nil, permErr(op, err)
		}
		writeback := func(produced uintptr) error {
			if produced == 0 {
				return nil
			}
			if produced > n {
				return permErr(op, fmt.Errorf("host reported %d bytes, exceeds %d-byte buffer", produced, n))
			}
			if _, err := g.checker.CopyToEnclave(boundary.EnclavePtr(buf), n, hp, produced); err != nil {
				return permErr(op, err)
			}
			return nil
		}
		return hp, release, writeback, nil
	default:
		return 0, nil, nil, permErr(op, &boundary.ErrStraddles{Ptr: buf, Len: n})
	}
}

// copyInPath copies a NUL-terminated pathname onto the untrusted stack.
// Pathnames, unlike data buffers, are always copied rather than
// classified: they are small and every OCALL that takes one needs a
// host-resident, NUL-terminated copy regardless of where the Go string
// backing them lives. CopyInFromEnclave returns a null HostPtr when the
// stack is exhausted, which must be surfaced as a failure rather than
// forwarded to the host: the host would otherwise read an empty or
// garbage path instead of the caller's actual pathname.
func (g *Gateway) copyInPath(op, path string) (boundary.HostPtr, error) {
	hp := g.stack.CopyInFromEnclave(append([]byte(path), 0))
	if hp == 0 {
		return 0, permErr(op, errUstackExhausted)
	}
	return hp, nil
}
