package ocall

// Gettime issues the gettime OCALL, retrying transparently on EINTR: a
// clock read has no observable side effect to undo, so EINTR here is
// purely retryable rather than surfaced to the caller.
func (g *Gateway) Gettime() (uint64, int32, error) {
	for {
		rsv := g.stack.Reserve()
		ptr, a := allocStruct[GettimeArgs](g.stack)
		if a == nil {
			rsv.Release()
			return 0, -1, permErr("gettime", errUstackExhausted)
		}

		ret, err := g.call(CodeGettime, ptr)
		if err != nil {
			rsv.Release()
			return 0, ret, err
		}
		if ret == EINTR {
			rsv.Release()
			continue
		}
		microsec := structAt[GettimeArgs](ptr).Microsec
		rsv.Release()
		return microsec, ret, nil
	}
}

// Sleep issues the sleep OCALL. Unlike every other operation, sleep is
// always a direct enclave-exiting call (never routed through the
// Exitless RPC Queue): the Gateway must be able to write the remaining
// microseconds back into microsec on an EINTR return, and round-tripping
// that through an asynchronous RPC worker would reintroduce the very
// wakeup latency the ERQ exists to avoid on the common path, for an
// operation that is inherently exit-bound already.
func (g *Gateway) Sleep(microsec uint64) (remaining uint64, ret int32, err error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	ptr, a := allocStruct[SleepArgs](g.stack)
	if a == nil {
		return 0, -1, permErr("sleep", errUstackExhausted)
	}
	a.Microsec = microsec

	ret = g.host.Ocall(CodeSleep, ptr)
	remaining = structAt[SleepArgs](ptr).Microsec
	return remaining, ret, nil
}
