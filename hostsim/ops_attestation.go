package hostsim

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/epfl-dcsl/ocallgw/boundary"
	"github.com/epfl-dcsl/ocallgw/ocall"
)

// doGetAttestation fabricates a deterministic fake quote and IAS response
// set: hostsim has no real attestation service to call out to, but every
// blob it hands back is host-allocated exactly as the real OCALL would,
// so the Gateway's copy-then-free-on-failure path has something real to
// exercise. The quote's measurement mirrors the SHA-256 digest the
// original's signing tool computes over the enclave's hashed pages; the
// per-call nonce-mixing digest uses xxhash, fast enough to run on every
// simulated attestation without the cost of a cryptographic hash.
func (h *Host) doGetAttestation(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.GetAttestationArgs](args)

	measurement := sha256.Sum256(a.Report[:])

	mixer := xxhash.New()
	mixer.Write(a.Spid[:])
	mixer.Write(a.Nonce[:])
	mixer.Write(measurement[:])
	digest := mixer.Sum64()

	quote := buildQuote(measurement[:], digest, a.Linkable != 0)
	iasReport := buildIASReport(digest)
	iasSig := make([]byte, 64)
	binary.LittleEndian.PutUint64(iasSig, digest)
	iasCerts := []byte("-----BEGIN CERTIFICATE-----\nhostsim-fake-ias-cert\n-----END CERTIFICATE-----\n")

	blobs := []struct {
		data  []byte
		host  *boundary.HostPtr
		hlen  *uint64
	}{
		{quote, &a.Attestation.Quote, &a.Attestation.QuoteLen},
		{iasReport, &a.Attestation.IASReport, &a.Attestation.IASReportLen},
		{iasSig, &a.Attestation.IASSig, &a.Attestation.IASSigLen},
		{iasCerts, &a.Attestation.IASCerts, &a.Attestation.IASCertsLen},
	}

	var mapped []struct {
		ptr boundary.HostPtr
		n   uintptr
	}
	for _, b := range blobs {
		ptr, err := h.MmapUntrusted(uintptr(len(b.data)), 3) // PROT_READ|PROT_WRITE
		if err != nil {
			for _, m := range mapped {
				_ = h.MunmapUntrusted(m.ptr, m.n)
			}
			return ocall.EPERM
		}
		copy(hostBytesAt(ptr, uintptr(len(b.data))), b.data)
		*b.host = ptr
		*b.hlen = uint64(len(b.data))
		mapped = append(mapped, struct {
			ptr boundary.HostPtr
			n   uintptr
		}{ptr, uintptr(len(b.data))})
	}
	return 0
}

func buildQuote(measurement []byte, digest uint64, linkable bool) []byte {
	quote := make([]byte, 4+len(measurement)+8+1)
	binary.LittleEndian.PutUint32(quote[0:4], 2) // version
	copy(quote[4:4+len(measurement)], measurement)
	binary.LittleEndian.PutUint64(quote[4+len(measurement):12+len(measurement)], digest)
	if linkable {
		quote[len(quote)-1] = 1
	}
	return quote
}

func buildIASReport(digest uint64) []byte {
	return []byte(`{"isvEnclaveQuoteStatus":"OK","nonce":"` +
		hex64(digest) + `"}`)
}

func hex64(v uint64) string {
	const hexdigits = "0123456789abcdef"
	b := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		b[i] = hexdigits[v&0xf]
		v >>= 4
	}
	return string(b)
}
