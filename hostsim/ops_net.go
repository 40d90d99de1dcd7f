package hostsim

import (
	"encoding/binary"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/epfl-dcsl/ocallgw/boundary"
	"github.com/epfl-dcsl/ocallgw/ocall"
)

// sockAddrToUnix converts the wire SockAddr (family + raw sockaddr_in
// payload) into a unix.Sockaddr. Only AF_INET is modeled; hostsim's goal
// is to exercise the Gateway's marshaling path end to end, not to be a
// full sockets stack.
func sockAddrToUnix(a ocall.SockAddr) (unix.Sockaddr, error) {
	if a.Family != unix.AF_INET {
		return nil, unix.EAFNOSUPPORT
	}
	port := binary.BigEndian.Uint16(a.Data[0:2])
	var ip [4]byte
	copy(ip[:], a.Data[2:6])
	return &unix.SockaddrInet4{Port: int(port), Addr: ip}, nil
}

func unixToSockAddr(sa unix.Sockaddr) ocall.SockAddr {
	out := ocall.SockAddr{Family: unix.AF_INET}
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		binary.BigEndian.PutUint16(out.Data[0:2], uint16(in4.Port))
		copy(out.Data[2:6], in4.Addr[:])
	}
	return out
}

// writeSockAddr copies wire into the host buffer at dst, clamped to
// min(addrlen, sizeof(SockAddr)): the enclave side only allocated addrlen
// bytes there (via ioBuffer/inBuffer), so writing the whole struct
// regardless of addrlen would overrun an undersized caller buffer. A
// zero-value wire (the caller produced no address) still gets written,
// so the destination never keeps whatever stale bytes were previously
// sitting in that untrusted-stack slot.
func writeSockAddr(dst boundary.HostPtr, addrlen uint32, wire ocall.SockAddr) {
	if addrlen == 0 || dst == 0 {
		return
	}
	n := uintptr(addrlen)
	if wireSize := unsafe.Sizeof(wire); n > wireSize {
		n = wireSize
	}
	src := (*[unsafe.Sizeof(ocall.SockAddr{})]byte)(unsafe.Pointer(&wire))
	copy(hostBytesAt(dst, n), src[:n])
}

// readSockAddr is writeSockAddr's read-side counterpart: it reads at most
// min(addrlen, sizeof(SockAddr)) bytes from a host buffer the enclave
// side only allocated addrlen bytes for, rather than dereferencing the
// full struct and over-reading past an undersized buffer.
func readSockAddr(src boundary.HostPtr, addrlen uint32) ocall.SockAddr {
	var wire ocall.SockAddr
	if src == 0 || addrlen == 0 {
		return wire
	}
	n := uintptr(addrlen)
	if wireSize := unsafe.Sizeof(wire); n > wireSize {
		n = wireSize
	}
	dst := (*[unsafe.Sizeof(ocall.SockAddr{})]byte)(unsafe.Pointer(&wire))
	copy(dst[:n], hostBytesAt(src, n))
	return wire
}

func (h *Host) registerSocketFd(rawFd int) int32 {
	fd := h.allocFd()
	h.mu.Lock()
	h.files[fd] = os.NewFile(uintptr(rawFd), "socket")
	h.mu.Unlock()
	return fd
}

func (h *Host) doSocketpair(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.SocketpairArgs](args)
	fds, err := unix.Socketpair(int(a.Domain), int(a.Type), int(a.Protocol))
	if err != nil {
		return errnoOf(err)
	}
	a.Sockfds = [2]int32{h.registerSocketFd(fds[0]), h.registerSocketFd(fds[1])}
	return 0
}

func (h *Host) doListen(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.ListenArgs](args)
	rawFd, err := unix.Socket(int(a.Domain), int(a.Type), int(a.Protocol))
	if err != nil {
		return errnoOf(err)
	}
	_ = unix.SetsockoptInt(rawFd, unix.SOL_SOCKET, unix.SO_REUSEADDR, int(a.Sockopt.ReuseAddr))
	if a.Addrlen > 0 {
		wireAddr := readSockAddr(a.Addr, a.Addrlen)
		sa, cerr := sockAddrToUnix(wireAddr)
		if cerr != nil {
			_ = unix.Close(rawFd)
			return errnoOf(cerr)
		}
		if err := unix.Bind(rawFd, sa); err != nil {
			_ = unix.Close(rawFd)
			return errnoOf(err)
		}
	}
	if err := unix.Listen(rawFd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(rawFd)
		return errnoOf(err)
	}
	// Report back whatever address got bound, so a caller that requested
	// port 0 learns the OS-assigned port.
	if a.Addrlen > 0 {
		var wire ocall.SockAddr
		if bound, serr := unix.Getsockname(rawFd); serr == nil {
			wire = unixToSockAddr(bound)
		}
		writeSockAddr(a.Addr, a.Addrlen, wire)
	}
	return h.registerSocketFd(rawFd)
}

func (h *Host) doAccept(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.AcceptArgs](args)
	f, ok := h.fileByFd(a.Sockfd)
	if !ok {
		return ocall.EINVAL
	}
	connFd, sa, err := unix.Accept(int(f.Fd()))
	if err != nil {
		return errnoOf(err)
	}
	if a.Addrlen > 0 {
		var wire ocall.SockAddr
		if sa != nil {
			wire = unixToSockAddr(sa)
		}
		writeSockAddr(a.Addr, a.Addrlen, wire)
	}
	return h.registerSocketFd(connFd)
}

func (h *Host) doConnect(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.ConnectArgs](args)
	rawFd, err := unix.Socket(int(a.Domain), int(a.Type), int(a.Protocol))
	if err != nil {
		return errnoOf(err)
	}
	if a.BindAddrlen > 0 {
		wireAddr := readSockAddr(a.BindAddr, a.BindAddrlen)
		sa, cerr := sockAddrToUnix(wireAddr)
		if cerr != nil {
			_ = unix.Close(rawFd)
			return errnoOf(cerr)
		}
		if err := unix.Bind(rawFd, sa); err != nil {
			_ = unix.Close(rawFd)
			return errnoOf(err)
		}
	}
	wireAddr := readSockAddr(a.Addr, a.Addrlen)
	sa, cerr := sockAddrToUnix(wireAddr)
	if cerr != nil {
		_ = unix.Close(rawFd)
		return errnoOf(cerr)
	}
	if err := unix.Connect(rawFd, sa); err != nil {
		_ = unix.Close(rawFd)
		return errnoOf(err)
	}
	// Report back the local address actually bound, so a caller that
	// requested an OS-assigned local port learns it.
	if a.BindAddrlen > 0 {
		var wire ocall.SockAddr
		if bound, serr := unix.Getsockname(rawFd); serr == nil {
			wire = unixToSockAddr(bound)
		}
		writeSockAddr(a.BindAddr, a.BindAddrlen, wire)
	}
	return h.registerSocketFd(rawFd)
}

func (h *Host) doRecv(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.RecvArgs](args)
	f, ok := h.fileByFd(a.Sockfd)
	if !ok {
		return ocall.EINVAL
	}
	buf := hostBytesAt(a.Buf, uintptr(a.Count))
	n, from, err := unix.Recvfrom(int(f.Fd()), buf, 0)
	if err != nil {
		return errnoOf(err)
	}
	if a.Addrlen > 0 {
		var wire ocall.SockAddr
		if from != nil {
			wire = unixToSockAddr(from)
		}
		writeSockAddr(a.Addr, a.Addrlen, wire)
	}
	return int32(n)
}

func (h *Host) doSend(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.SendArgs](args)
	f, ok := h.fileByFd(a.Sockfd)
	if !ok {
		return ocall.EINVAL
	}
	buf := hostBytesAt(a.Buf, uintptr(a.Count))
	if a.Addrlen > 0 {
		wireAddr := readSockAddr(a.Addr, a.Addrlen)
		sa, err := sockAddrToUnix(wireAddr)
		if err != nil {
			return errnoOf(err)
		}
		if err := unix.Sendto(int(f.Fd()), buf, 0, sa); err != nil {
			return errnoOf(err)
		}
		return int32(len(buf))
	}
	n, err := f.Write(buf)
	if err != nil {
		return errnoOf(err)
	}
	return int32(n)
}

// doSetsockopt is intentionally permissive: hostsim models enough of
// setsockopt to let callers exercise the marshaling path, not every
// option's kernel-level effect.
func (h *Host) doSetsockopt(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.SetsockoptArgs](args)
	f, ok := h.fileByFd(a.Sockfd)
	if !ok {
		return ocall.EINVAL
	}
	if a.Optlen >= 4 {
		val := int(*hostStructAt[int32](a.Optval))
		_ = unix.SetsockoptInt(int(f.Fd()), int(a.Level), int(a.Optname), val)
	}
	return 0
}

func (h *Host) doShutdown(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.ShutdownArgs](args)
	f, ok := h.fileByFd(a.Sockfd)
	if !ok {
		return ocall.EINVAL
	}
	return errnoOf(unix.Shutdown(int(f.Fd()), int(a.How)))
}

func (h *Host) doPoll(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.PollArgs](args)
	fds := hostPollFds(a.Fds, uintptr(a.Nfds))
	native := make([]unix.PollFd, len(fds))
	for i, pfd := range fds {
		native[i] = unix.PollFd{Fd: pfd.Fd, Events: pfd.Events}
	}
	timeout := -1
	if a.TimeoutUs >= 0 {
		timeout = int(a.TimeoutUs / 1000)
	}
	n, err := unix.Poll(native, timeout)
	if err != nil {
		return errnoOf(err)
	}
	for i := range fds {
		fds[i].Revents = native[i].Revents
	}
	return int32(n)
}

func (h *Host) doEventfd(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.EventfdArgs](args)
	rawFd, err := unix.Eventfd(uint(a.Initval), int(a.Flags))
	if err != nil {
		return errnoOf(err)
	}
	return h.registerSocketFd(rawFd)
}
