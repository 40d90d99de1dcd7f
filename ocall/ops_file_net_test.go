package ocall

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/epfl-dcsl/ocallgw/boundary"
)

// sockAddrIn places a SockAddr at the given byte offset of an
// enclave-resident buffer and returns both its address and a typed
// pointer to it, since ioBuffer/inBuffer only accept enclave- or
// host-resident addresses, never a plain Go-stack variable's address.
func sockAddrIn(buf []byte, offset int) (uintptr, *SockAddr) {
	p := (*SockAddr)(unsafe.Pointer(&buf[offset]))
	return uintptr(unsafe.Pointer(p)), p
}

// testCString reads a NUL-terminated string out of the fake host's
// address space, mirroring hostsim's own cString helper.
func testCString(ptr boundary.HostPtr) string {
	if ptr == 0 {
		return ""
	}
	base := uintptr(ptr)
	for i := 0; ; i++ {
		b := *(*byte)(unsafe.Pointer(base + uintptr(i)))
		if b == 0 {
			return string(unsafe.Slice((*byte)(unsafe.Pointer(base)), i))
		}
	}
}

func TestOpenCopiesPathOntoUntrustedStack(t *testing.T) {
	host := newFakeHost(4096)
	var captured string
	host.onOcall = func(code Code, args boundary.HostPtr) int32 {
		a := structAt[OpenArgs](args)
		captured = testCString(a.Pathname)
		return 7
	}
	g := newTestGateway(t, host, syncWaiter{}, nil)

	fd, err := g.Open("/tmp/example.txt", 0, 0o600)
	require.NoError(t, err)
	require.EqualValues(t, 7, fd)
	require.Equal(t, "/tmp/example.txt", captured)
}

func TestReadCopiesHostDataBackIntoEnclaveBuffer(t *testing.T) {
	host := newFakeHost(4096)
	host.onOcall = func(code Code, args boundary.HostPtr) int32 {
		a := structAt[ReadArgs](args)
		copy(bytesAt(a.Buf, uintptr(a.Count)), []byte("abcd"))
		return 4
	}
	g := newTestGateway(t, host, syncWaiter{}, nil)

	n, err := g.Read(3, sliceBaseAddr(g.enclaveBuf), 4)
	require.NoError(t, err)
	require.EqualValues(t, 4, n)
	require.Equal(t, []byte("abcd"), g.enclaveBuf[:4])
}

func TestReadUsesMmapUntrustedForLargeBuffers(t *testing.T) {
	host := newFakeHost(1 << 20)
	g := newTestGateway(t, host, syncWaiter{}, nil, WithMaxUntrustedStackBuf(16))

	n, err := g.Read(1, sliceBaseAddr(g.enclaveBuf), 256)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
	require.Contains(t, host.calls, CodeRead)
}

func TestGetdentsWritesBackHostProducedEntries(t *testing.T) {
	host := newFakeHost(4096)
	host.onOcall = func(code Code, args boundary.HostPtr) int32 {
		a := structAt[GetdentsArgs](args)
		copy(bytesAt(a.Dirp, uintptr(a.Size)), []byte("entry\x00"))
		return 6
	}
	g := newTestGateway(t, host, syncWaiter{}, nil)

	n, err := g.Getdents(2, sliceBaseAddr(g.enclaveBuf), 64)
	require.NoError(t, err)
	require.EqualValues(t, 6, n)
	require.Equal(t, "entry\x00", string(g.enclaveBuf[:6]))
}

func TestMkdirIssuesMkdirOcall(t *testing.T) {
	host := newFakeHost(4096)
	g := newTestGateway(t, host, syncWaiter{}, nil)

	ret, err := g.Mkdir("/tmp/newdir", 0o755)
	require.NoError(t, err)
	require.EqualValues(t, 0, ret)
	require.Contains(t, host.calls, CodeMkdir)
}

func TestRenameCopiesBothPathsOntoUntrustedStack(t *testing.T) {
	host := newFakeHost(4096)
	var oldPath, newPath string
	host.onOcall = func(code Code, args boundary.HostPtr) int32 {
		a := structAt[RenameArgs](args)
		oldPath = testCString(a.Oldpath)
		newPath = testCString(a.Newpath)
		return 0
	}
	g := newTestGateway(t, host, syncWaiter{}, nil)

	ret, err := g.Rename("/tmp/a", "/tmp/b")
	require.NoError(t, err)
	require.EqualValues(t, 0, ret)
	require.Equal(t, "/tmp/a", oldPath)
	require.Equal(t, "/tmp/b", newPath)
}

func TestDeleteIssuesDeleteOcall(t *testing.T) {
	host := newFakeHost(4096)
	g := newTestGateway(t, host, syncWaiter{}, nil)

	ret, err := g.Delete("/tmp/gone")
	require.NoError(t, err)
	require.EqualValues(t, 0, ret)
	require.Contains(t, host.calls, CodeDelete)
}

func TestListenWritesBackOSAssignedAddress(t *testing.T) {
	host := newFakeHost(4096)
	host.onOcall = func(code Code, args boundary.HostPtr) int32 {
		a := structAt[ListenArgs](args)
		wire := structAt[SockAddr](a.Addr)
		wire.Family = 2
		wire.Data[0] = 0xAB
		return 9
	}
	g := newTestGateway(t, host, syncWaiter{}, nil)

	addrPtr, addr := sockAddrIn(g.enclaveBuf, 0)
	addr.Family = 2

	ret, err := g.Listen(2, 1, 0, addrPtr, uint32(unsafe.Sizeof(*addr)), Sockopt{})
	require.NoError(t, err)
	require.EqualValues(t, 9, ret)
	require.EqualValues(t, 0xAB, addr.Data[0], "the OS-assigned address must be copied back into the caller's buffer")
}

func TestConnectWritesBackBoundLocalAddress(t *testing.T) {
	host := newFakeHost(4096)
	host.onOcall = func(code Code, args boundary.HostPtr) int32 {
		a := structAt[ConnectArgs](args)
		wire := structAt[SockAddr](a.BindAddr)
		wire.Family = 2
		wire.Data[0] = 0xCD
		return 3
	}
	g := newTestGateway(t, host, syncWaiter{}, nil)

	peerPtr, peer := sockAddrIn(g.enclaveBuf, 0)
	bindPtr, bindAddr := sockAddrIn(g.enclaveBuf, 256)
	peer.Family = 2
	bindAddr.Family = 2

	ret, err := g.Connect(2, 1, 0, peerPtr, uint32(unsafe.Sizeof(*peer)), bindPtr, uint32(unsafe.Sizeof(*bindAddr)), Sockopt{})
	require.NoError(t, err)
	require.EqualValues(t, 3, ret)
	require.EqualValues(t, 0xCD, bindAddr.Data[0], "the locally bound address must be copied back into the caller's bindAddr buffer")
}

func TestAcceptWritesBackPeerAddress(t *testing.T) {
	host := newFakeHost(4096)
	host.onOcall = func(code Code, args boundary.HostPtr) int32 {
		a := structAt[AcceptArgs](args)
		wire := structAt[SockAddr](a.Addr)
		wire.Family = 2
		wire.Data[0] = 0xEF
		return 11
	}
	g := newTestGateway(t, host, syncWaiter{}, nil)

	addrPtr, addr := sockAddrIn(g.enclaveBuf, 0)
	addr.Family = 2

	ret, _, err := g.Accept(4, addrPtr, uint32(unsafe.Sizeof(*addr)))
	require.NoError(t, err)
	require.EqualValues(t, 11, ret)
	require.EqualValues(t, 0xEF, addr.Data[0])
}

func TestRecvRejectsAmbiguousControlPointer(t *testing.T) {
	host := newFakeHost(4096)
	g := newTestGateway(t, host, syncWaiter{}, nil)

	_, err := g.Recv(1, sliceBaseAddr(g.enclaveBuf), 4, 0, 0, sliceBaseAddr(g.enclaveBuf), 0)
	require.Error(t, err)
	var ocallErr *Error
	require.ErrorAs(t, err, &ocallErr)
	require.Equal(t, ClassInvalidArgument, ocallErr.Class)
	require.Equal(t, 0, host.callCount(), "an ambiguous control pointer must be rejected before ever reaching the host")
}
