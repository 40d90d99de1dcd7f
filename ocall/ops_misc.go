package ocall

// LoadDebug issues the load_debug OCALL: a best-effort notification to
// the host's debug log, never a trust-relevant operation.
func (g *Gateway) LoadDebug(command string) (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	ptr, a := allocStruct[LoadDebugArgs](g.stack)
	if a == nil {
		return -1, permErr("load_debug", errUstackExhausted)
	}
	hp, err := g.copyInPath("load_debug", command)
	if err != nil {
		return -1, err
	}
	a.Command = hp
	return g.call(CodeLoadDebug, ptr)
}

// Eventfd issues the eventfd OCALL.
func (g *Gateway) Eventfd(initval uint32, flags int32) (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	ptr, a := allocStruct[EventfdArgs](g.stack)
	if a == nil {
		return -1, permErr("eventfd", errUstackExhausted)
	}
	a.Initval = initval
	a.Flags = flags
	return g.call(CodeEventfd, ptr)
}
