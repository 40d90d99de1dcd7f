package boundary

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func uintptrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

func testChecker() (*Checker, Region, Region) {
	enclave := Region{Base: 0x1000, Size: 0x1000}
	host := Region{Base: 0x10000, Size: 0x1000}
	return New(enclave, host), enclave, host
}

func TestClassify(t *testing.T) {
	c, enclave, host := testChecker()

	require.Equal(t, Inside, c.Classify(enclave.Base, 0x10))
	require.Equal(t, Outside, c.Classify(host.Base, 0x10))
	// Straddles the enclave/host gap entirely.
	require.Equal(t, Straddling, c.Classify(enclave.Base+0xff0, 0x20))
	// Straddles because it starts before the enclave.
	require.Equal(t, Straddling, c.Classify(enclave.Base-0x10, 0x20))
}

func TestCopyToEnclaveRejectsStraddling(t *testing.T) {
	c, enclave, host := testChecker()
	dst := make([]byte, 16)
	_ = dst
	n, err := c.CopyToEnclave(EnclavePtr(enclave.Base), 16, HostPtr(host.Base-8), 16)
	require.Error(t, err)
	require.Zero(t, n)
}

func TestCopyToEnclaveRejectsOversizedDst(t *testing.T) {
	c, enclave, host := testChecker()
	_, err := c.CopyToEnclave(EnclavePtr(enclave.Base), 4, HostPtr(host.Base), 16)
	require.Error(t, err)
}

func TestCopyRoundTrip(t *testing.T) {
	// Back the regions with real memory via slices pinned at those
	// addresses is not possible in a portable test; instead verify the
	// copy logic against freshly allocated buffers reinterpreted through
	// the Checker's own region bookkeeping.
	hostBuf := make([]byte, 16)
	for i := range hostBuf {
		hostBuf[i] = byte(i)
	}
	enclBuf := make([]byte, 16)

	hostRegion := Region{Base: uintptrOf(hostBuf), Size: 16}
	enclRegion := Region{Base: uintptrOf(enclBuf), Size: 16}
	c2 := New(enclRegion, hostRegion)

	n, err := c2.CopyToEnclave(EnclavePtr(enclRegion.Base), 16, HostPtr(hostRegion.Base), 16)
	require.NoError(t, err)
	require.EqualValues(t, 16, n)
	require.Equal(t, hostBuf, enclBuf)
}

func TestCopyPtrToEnclaveRejectsInsidePointer(t *testing.T) {
	c, enclave, _ := testChecker()
	var out HostPtr
	err := CopyPtrToEnclave(c, &out, HostPtr(enclave.Base), 8)
	require.Error(t, err)
}
