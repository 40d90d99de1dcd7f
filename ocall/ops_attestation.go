package ocall

import (
	"fmt"

	"github.com/epfl-dcsl/ocallgw/boundary"
)

// AttestationBuffers names the four enclave-resident destination buffers
// a GetAttestation caller must supply, along with their capacities. The
// OCALL itself doesn't allocate enclave memory on the caller's behalf —
// get_attestation's host side returns variable-length quote/IAS blobs
// whose final resting place has to already be memory the enclave owns,
// the same way Read and Getdents require a caller-supplied dst rather
// than handing back a freshly allocated buffer of their own.
type AttestationBuffers struct {
	Quote        uintptr
	QuoteCap     uint64
	IASReport    uintptr
	IASReportCap uint64
	IASSig       uintptr
	IASSigCap    uint64
	IASCerts     uintptr
	IASCertsCap  uint64
}

// AttestationLens reports how many bytes the host actually produced for
// each of get_attestation's four result blobs.
type AttestationLens struct {
	Quote, IASReport, IASSig, IASCerts uint64
}

type attestationBlob struct {
	host   boundary.HostPtr
	n      uint64
	dst    uintptr
	cap    uint64
	lenOut *uint64
}

// GetAttestation issues the get_attestation OCALL and copies its four
// variable-length results (the quote, and the IAS report/signature/cert
// chain) out of host memory into the caller-supplied enclave buffers. On
// any copy failure, every blob the host already handed back is released
// before the error propagates, so a failed attestation never leaks
// host-resident memory.
func (g *Gateway) GetAttestation(spid [16]byte, subkey []byte, report [432]byte, nonce [16]byte, linkable bool, bufs AttestationBuffers) (AttestationLens, int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	var lens AttestationLens

	ptr, a := allocStruct[GetAttestationArgs](g.stack)
	if a == nil {
		return lens, -1, permErr("get_attestation", errUstackExhausted)
	}
	a.Spid = spid
	a.Report = report
	a.Nonce = nonce
	if linkable {
		a.Linkable = 1
	}
	if len(subkey) > 0 {
		a.Subkey = g.stack.CopyInFromEnclave(subkey)
	}

	ret, err := g.call(CodeGetAttestation, ptr)
	if err != nil || ret < 0 {
		return lens, ret, err
	}

	at := structAt[GetAttestationArgs](ptr).Attestation
	blobs := []attestationBlob{
		{at.Quote, at.QuoteLen, bufs.Quote, bufs.QuoteCap, &lens.Quote},
		{at.IASReport, at.IASReportLen, bufs.IASReport, bufs.IASReportCap, &lens.IASReport},
		{at.IASSig, at.IASSigLen, bufs.IASSig, bufs.IASSigCap, &lens.IASSig},
		{at.IASCerts, at.IASCertsLen, bufs.IASCerts, bufs.IASCertsCap, &lens.IASCerts},
	}

	freeAll := func() {
		for _, b := range blobs {
			if b.host != 0 && b.n > 0 {
				_ = g.host.MunmapUntrusted(b.host, uintptr(b.n))
			}
		}
	}

	for _, b := range blobs {
		if b.host == 0 || b.n == 0 {
			continue
		}
		if b.n > b.cap {
			freeAll()
			return AttestationLens{}, -1, permErr("get_attestation", fmt.Errorf("host produced %d bytes, exceeds %d-byte buffer", b.n, b.cap))
		}
		if _, cerr := g.checker.CopyToEnclave(boundary.EnclavePtr(b.dst), uintptr(b.cap), b.host, uintptr(b.n)); cerr != nil {
			freeAll()
			return AttestationLens{}, -1, permErr("get_attestation", cerr)
		}
		*b.lenOut = b.n
	}
	freeAll()
	return lens, ret, nil
}
