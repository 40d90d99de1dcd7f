package ocall

import (
	"fmt"

	"github.com/epfl-dcsl/ocallgw/boundary"
)

// Cpuid issues the cpuid OCALL.
func (g *Gateway) Cpuid(leaf, subleaf uint32) ([4]uint32, int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	ptr, a := allocStruct[CpuidArgs](g.stack)
	if a == nil {
		return [4]uint32{}, -1, permErr("cpuid", errUstackExhausted)
	}
	a.Leaf = leaf
	a.Subleaf = subleaf

	ret, err := g.call(CodeCpuid, ptr)
	if err != nil || ret < 0 {
		return [4]uint32{}, ret, err
	}
	return structAt[CpuidArgs](ptr).Values, ret, nil
}

// Exit issues the exit OCALL and never returns (property P7): regardless
// of what the host claims, a misbehaving or compromised host must not be
// able to resume enclave execution past its own termination request, so
// the Gateway simply retries forever.
func (g *Gateway) Exit(exitcode int32, isExitgroup bool) {
	for {
		func() {
			rsv := g.stack.Reserve()
			defer rsv.Release()

			ptr, a := allocStruct[ExitArgs](g.stack)
			if a == nil {
				return
			}
			a.Exitcode = exitcode
			if isExitgroup {
				a.IsExitgroup = 1
			}
			_, _ = g.call(CodeExit, ptr)
		}()
	}
}

// CloneThread issues the clone_thread OCALL: it takes no arguments, the
// host allocates a fresh TCS and enclave thread on its own.
func (g *Gateway) CloneThread() (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	return g.call(CodeCloneThread, 0)
}

// ResumeThread issues the resume_thread OCALL, asking the host to
// ERESUME the enclave thread identified by the opaque tcs handle.
func (g *Gateway) ResumeThread(tcs uintptr) (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	ptr := g.stack.Alloc(8)
	if ptr == 0 {
		return -1, permErr("resume_thread", errUstackExhausted)
	}
	*structAt[uintptr](ptr) = tcs
	return g.call(CodeResumeThread, ptr)
}

// CreateProcess issues the create_process OCALL. args is capped at
// MaxProcessArgs entries (the idiomatic fixed-size stand-in for the
// original's flexible array member); procFds receives the three
// inherited descriptors the host sets up for the child's stdio/manifest
// channel.
func (g *Gateway) CreateProcess(uri string, args []string) (pid uint32, procFds [3]int32, ret int32, err error) {
	if len(args) > MaxProcessArgs {
		return 0, procFds, -1, invalErr("create_process", fmt.Errorf("%d args exceeds MaxProcessArgs=%d", len(args), MaxProcessArgs))
	}

	rsv := g.stack.Reserve()
	defer rsv.Release()

	ptr, a := allocStruct[CreateProcessArgs](g.stack)
	if a == nil {
		return 0, procFds, -1, permErr("create_process", errUstackExhausted)
	}
	uriHp, err := g.copyInPath("create_process", uri)
	if err != nil {
		return 0, procFds, -1, err
	}
	a.URI = uriHp
	a.Nargs = int32(len(args))
	for i, arg := range args {
		argHp, aerr := g.copyInPath("create_process", arg)
		if aerr != nil {
			return 0, procFds, -1, aerr
		}
		a.Args[i] = argHp
	}

	ret, err = g.call(CodeCreateProcess, ptr)
	if err != nil || ret < 0 {
		return 0, procFds, ret, err
	}
	result := structAt[CreateProcessArgs](ptr)
	return result.Pid, result.ProcFds, ret, nil
}

// Futex issues the futex OCALL. futexWord must be entirely outside the
// enclave (invariant I1): an enclave-resident futex word would let the
// host corrupt trusted memory by design, so this is rejected before ever
// reaching the host, mirroring the Gateway's general refusal to forward
// in-enclave addresses across the boundary.
func (g *Gateway) Futex(futexWord uintptr, op, val int32, timeoutUs int64) (int32, error) {
	if !g.checker.EntirelyOutside(futexWord, 4) {
		return -1, invalErr("futex", fmt.Errorf("futex word at %#x is not host-resident", futexWord))
	}

	rsv := g.stack.Reserve()
	defer rsv.Release()

	ptr, a := allocStruct[FutexArgs](g.stack)
	if a == nil {
		return -1, permErr("futex", errUstackExhausted)
	}
	a.Futex = boundary.HostPtr(futexWord)
	a.Op = op
	a.Val = val
	a.TimeoutUs = timeoutUs
	return g.call(CodeFutex, ptr)
}
