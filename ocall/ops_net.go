package ocall

import (
	"fmt"

	"github.com/epfl-dcsl/ocallgw/boundary"
)

// Socketpair issues the socketpair OCALL.
func (g *Gateway) Socketpair(domain, typ, protocol int32) ([2]int32, int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	ptr, a := allocStruct[SocketpairArgs](g.stack)
	if a == nil {
		return [2]int32{}, -1, permErr("socketpair", errUstackExhausted)
	}
	a.Domain = domain
	a.Type = typ
	a.Protocol = protocol

	ret, err := g.call(CodeSocketpair, ptr)
	if err != nil || ret < 0 {
		return [2]int32{}, ret, err
	}
	return structAt[SocketpairArgs](ptr).Sockfds, ret, nil
}

// Listen issues the listen OCALL. addr, if addrlen > 0, is the bind
// address: an in-out parameter staged through ioBuffer, since a caller
// binding to port 0 needs the OS-assigned address the host actually bound
// copied back, the same way Accept reports the peer address it accepted.
func (g *Gateway) Listen(domain, typ, protocol int32, addr uintptr, addrlen uint32, opt Sockopt) (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	hostAddr, release, writeback, err := g.ioBuffer("listen", addr, uintptr(addrlen))
	if err != nil {
		return -1, err
	}
	defer release()

	ptr, a := allocStruct[ListenArgs](g.stack)
	if a == nil {
		return -1, permErr("listen", errUstackExhausted)
	}
	a.Domain = domain
	a.Type = typ
	a.Protocol = protocol
	a.Addrlen = addrlen
	a.Addr = hostAddr
	a.Sockopt = opt

	ret, err := g.call(CodeListen, ptr)
	if err != nil || ret < 0 {
		return ret, err
	}
	if err := writeback(uintptr(addrlen)); err != nil {
		return -1, err
	}
	return ret, nil
}

// Accept issues the accept OCALL. addr is an out-param: the peer address
// the host accepted is copied back into it if addr is enclave-resident.
func (g *Gateway) Accept(sockfd int32, addr uintptr, addrlen uint32) (int32, Sockopt, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	hostAddr, release, writeback, err := g.inBuffer("accept", addr, uintptr(addrlen))
	if err != nil {
		return -1, Sockopt{}, err
	}
	defer release()

	ptr, a := allocStruct[AcceptArgs](g.stack)
	if a == nil {
		return -1, Sockopt{}, permErr("accept", errUstackExhausted)
	}
	a.Sockfd = sockfd
	a.Addrlen = addrlen
	a.Addr = hostAddr

	ret, err := g.call(CodeAccept, ptr)
	if err != nil || ret < 0 {
		return ret, Sockopt{}, err
	}
	if err := writeback(uintptr(addrlen)); err != nil {
		return -1, Sockopt{}, err
	}
	return ret, structAt[AcceptArgs](ptr).Sockopt, nil
}

// Connect issues the connect OCALL. addr, the peer to connect to, is
// input-only and staged through outBuffer. bindAddr, the local address to
// bind before connecting, is an in-out parameter staged through ioBuffer:
// a caller requesting an OS-assigned local port learns the bound address
// back, the same way Listen does.
func (g *Gateway) Connect(domain, typ, protocol int32, addr uintptr, addrlen uint32, bindAddr uintptr, bindAddrlen uint32, opt Sockopt) (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	hostAddr, releaseAddr, err := g.outBuffer("connect", addr, uintptr(addrlen))
	if err != nil {
		return -1, err
	}
	defer releaseAddr()

	hostBindAddr, releaseBind, writebackBind, err := g.ioBuffer("connect", bindAddr, uintptr(bindAddrlen))
	if err != nil {
		return -1, err
	}
	defer releaseBind()

	ptr, a := allocStruct[ConnectArgs](g.stack)
	if a == nil {
		return -1, permErr("connect", errUstackExhausted)
	}
	a.Domain = domain
	a.Type = typ
	a.Protocol = protocol
	a.Addrlen = addrlen
	a.Addr = hostAddr
	a.BindAddrlen = bindAddrlen
	a.BindAddr = hostBindAddr
	a.Sockopt = opt

	ret, err := g.call(CodeConnect, ptr)
	if err != nil || ret < 0 {
		return ret, err
	}
	if err := writebackBind(uintptr(bindAddrlen)); err != nil {
		return -1, err
	}
	return ret, nil
}

// Recv issues the recv/recvmsg OCALL. A non-null control pointer paired
// with controllen == 0 is rejected with EINVAL rather than silently
// treated as "no ancillary data", since the two encodings would otherwise
// be indistinguishable to the host.
func (g *Gateway) Recv(sockfd int32, buf uintptr, count uint32, addr uintptr, addrlen uint32, control uintptr, controllen uint64) (int32, error) {
	if control != 0 && controllen == 0 {
		return -1, invalErr("recv", fmt.Errorf("control pointer given with controllen=0 is ambiguous"))
	}

	rsv := g.stack.Reserve()
	defer rsv.Release()

	hostBuf, releaseBuf, writebackBuf, err := g.inBuffer("recv", buf, uintptr(count))
	if err != nil {
		return -1, err
	}
	defer releaseBuf()

	hostAddr, releaseAddr, writebackAddr, err := g.inBuffer("recv", addr, uintptr(addrlen))
	if err != nil {
		return -1, err
	}
	defer releaseAddr()

	hostControl, releaseControl, writebackControl, err := g.inBuffer("recv", control, uintptr(controllen))
	if err != nil {
		return -1, err
	}
	defer releaseControl()

	ptr, a := allocStruct[RecvArgs](g.stack)
	if a == nil {
		return -1, permErr("recv", errUstackExhausted)
	}
	a.Sockfd = sockfd
	a.Count = count
	a.Addrlen = addrlen
	a.Addr = hostAddr
	a.Controllen = controllen
	a.Control = hostControl
	a.Buf = hostBuf

	n, err := g.call(CodeRecv, ptr)
	if err != nil || n < 0 {
		return n, err
	}
	if err := writebackBuf(uintptr(n)); err != nil {
		return -1, err
	}
	if err := writebackAddr(uintptr(addrlen)); err != nil {
		return -1, err
	}
	if err := writebackControl(uintptr(controllen)); err != nil {
		return -1, err
	}
	return n, nil
}

// Send issues the send/sendmsg OCALL.
func (g *Gateway) Send(sockfd int32, buf uintptr, count uint32, addr uintptr, addrlen uint32, control uintptr, controllen uint64) (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	hostBuf, releaseBuf, err := g.outBuffer("send", buf, uintptr(count))
	if err != nil {
		return -1, err
	}
	defer releaseBuf()

	hostAddr, releaseAddr, err := g.outBuffer("send", addr, uintptr(addrlen))
	if err != nil {
		return -1, err
	}
	defer releaseAddr()

	hostControl, releaseControl, err := g.outBuffer("send", control, uintptr(controllen))
	if err != nil {
		return -1, err
	}
	defer releaseControl()

	ptr, a := allocStruct[SendArgs](g.stack)
	if a == nil {
		return -1, permErr("send", errUstackExhausted)
	}
	a.Sockfd = sockfd
	a.Count = count
	a.Addrlen = addrlen
	a.Addr = hostAddr
	a.Controllen = controllen
	a.Control = hostControl
	a.Buf = hostBuf
	return g.call(CodeSend, ptr)
}

// Setsockopt issues the setsockopt OCALL.
func (g *Gateway) Setsockopt(sockfd, level, optname int32, optval uintptr, optlen uint32) (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	hostOptval, release, err := g.outBuffer("setsockopt", optval, uintptr(optlen))
	if err != nil {
		return -1, err
	}
	defer release()

	ptr, a := allocStruct[SetsockoptArgs](g.stack)
	if a == nil {
		return -1, permErr("setsockopt", errUstackExhausted)
	}
	a.Sockfd = sockfd
	a.Level = level
	a.Optname = optname
	a.Optlen = optlen
	a.Optval = hostOptval
	return g.call(CodeSetsockopt, ptr)
}

// Shutdown issues the shutdown OCALL.
func (g *Gateway) Shutdown(sockfd, how int32) (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	ptr, a := allocStruct[ShutdownArgs](g.stack)
	if a == nil {
		return -1, permErr("shutdown", errUstackExhausted)
	}
	a.Sockfd = sockfd
	a.How = how
	return g.call(CodeShutdown, ptr)
}

// Poll issues the poll OCALL, staging the pollfd array through inBuffer
// since the host both reads (events) and writes (revents) it.
func (g *Gateway) Poll(fds uintptr, nfds int32, timeoutUs int64) (int32, error) {
	if nfds < 0 {
		return -1, invalErr("poll", fmt.Errorf("negative nfds=%d", nfds))
	}
	size := uintptr(nfds) * 8 // sizeof(PollFd) == 8 bytes

	rsv := g.stack.Reserve()
	defer rsv.Release()

	hostFds, release, writeback, err := g.inBuffer("poll", fds, size)
	if err != nil {
		return -1, err
	}
	defer release()
	// poll's pollfd array carries caller-supplied request bits the host
	// must see, so copy it out before calling even though inBuffer's
	// contract is normally "destination, host fills it". Only needed
	// when inBuffer staged a fresh host-side copy (Inside classification);
	// an Outside buffer is already the same memory.
	if fds != 0 && size != 0 && hostFds != boundary.HostPtr(fds) {
		if err := g.checker.CopyToHost(hostFds, boundary.EnclavePtr(fds), size); err != nil {
			return -1, permErr("poll", err)
		}
	}

	ptr, a := allocStruct[PollArgs](g.stack)
	if a == nil {
		return -1, permErr("poll", errUstackExhausted)
	}
	a.Nfds = nfds
	a.TimeoutUs = timeoutUs
	a.Fds = hostFds

	ret, err := g.call(CodePoll, ptr)
	if err != nil || ret < 0 {
		return ret, err
	}
	if err := writeback(size); err != nil {
		return -1, err
	}
	return ret, nil
}
