package hostsim

import (
	"os"
	"os/exec"
	"time"

	"github.com/epfl-dcsl/ocallgw/boundary"
	"github.com/epfl-dcsl/ocallgw/ocall"
)

// doCpuid services the cpuid OCALL without executing the CPUID
// instruction: golang.org/x/sys/unix exposes no cross-platform cpuid
// helper, so this reports a fixed, clearly-synthetic leaf/subleaf echo: enough for
// callers exercising the marshaling path, not a substitute for a real
// CPUID leaf table.
func (h *Host) doCpuid(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.CpuidArgs](args)
	a.Values = [4]uint32{a.Leaf, a.Subleaf, 0, 0}
	return 0
}

// doExit terminates the host process outright. The Gateway's Exit call
// never returns control to its caller regardless of what the host
// reports; the only way hostsim can make that literally true is to
// actually exit.
func (h *Host) doExit(args boundary.HostPtr) {
	a := hostStructAt[ocall.ExitArgs](args)
	os.Exit(int(a.Exitcode))
}

// doCreateProcess launches a child process via os/exec, a stand-in for
// the original's SGX process-creation path (which forks a fresh enclave
// instance); hostsim has no enclave to fork, so the "process" it creates
// is an ordinary child of the current one.
func (h *Host) doCreateProcess(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.CreateProcessArgs](args)
	uri := cString(a.URI)
	argv := make([]string, 0, a.Nargs)
	for i := int32(0); i < a.Nargs; i++ {
		argv = append(argv, cString(a.Args[i]))
	}
	cmd := exec.Command(uri, argv...)
	if err := cmd.Start(); err != nil {
		return ocall.EPERM
	}
	a.Pid = uint32(cmd.Process.Pid)
	a.ProcFds = [3]int32{-1, -1, -1}
	return 0
}

// doFutex dispatches to the real Linux futex syscall. op 0 is WAIT, op 1
// is WAKE — a narrower encoding than the original's full futex op space,
// sufficient for the XBL's own two-operation use of it.
func (h *Host) doFutex(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.FutexArgs](args)
	word := (*int32)(hostWordPtr(a.Futex))
	switch a.Op {
	case 0:
		w := FutexWaiter{}
		timeout := time.Duration(-1)
		if a.TimeoutUs >= 0 {
			timeout = time.Duration(a.TimeoutUs) * time.Microsecond
		}
		if err := w.FutexWait(word, a.Val, timeout); err != nil {
			return errnoOf(err)
		}
		return 0
	case 1:
		w := FutexWaiter{}
		if err := w.FutexWake(word, int(a.Val)); err != nil {
			return errnoOf(err)
		}
		return 0
	default:
		return ocall.EINVAL
	}
}
