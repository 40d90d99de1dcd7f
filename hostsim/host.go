// Package hostsim is a simulated untrusted host: a real implementation of
// ocall.HostBoundary and xbl.Waiter backed by actual OS resources (files,
// sockets, futexes, mmap'd memory) rather than SGX. It plays the same
// role a non-hardware simulation mode plays for this style of enclave
// runtime — letting the rest of the system run unmodified without real
// enclave hardware — but here it backs the OCALL Gateway's host side
// instead of loading enclave ELF binaries.
package hostsim

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/epfl-dcsl/ocallgw/boundary"
	"github.com/epfl-dcsl/ocallgw/ocall"
)

// Host is a single simulated untrusted host: one fd table shared across
// every enclave thread's Gateway. Its mmap_untrusted mappings are plain
// anonymous mmaps with no bookkeeping kept here.
type Host struct {
	log *logrus.Logger

	mu     sync.Mutex
	files  map[int32]*os.File
	nextFd int32
}

// New returns a Host ready to back one or more ocall.Gateway instances.
func New(log *logrus.Logger) *Host {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Host{
		log:    log,
		files:  make(map[int32]*os.File),
		nextFd: 3, // 0/1/2 reserved for stdio, matching every real fd table
	}
}

func (h *Host) allocFd() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	fd := h.nextFd
	h.nextFd++
	return fd
}

// MmapUntrusted implements ocall.HostBoundary: a real anonymous mapping,
// used both by the Gateway's large-buffer staging path (buffers.go) and
// as the backing store for the mmap_untrusted/munmap_untrusted OCALLs
// themselves.
func (h *Host) MmapUntrusted(size uintptr, prot uint32) (boundary.HostPtr, error) {
	if size == 0 {
		return 0, nil
	}
	b, err := unix.Mmap(-1, 0, int(size), int(unixProt(prot)), unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, fmt.Errorf("hostsim: mmap_untrusted: %w", err)
	}
	return boundary.HostPtr(sliceAddr(b)), nil
}

// MunmapUntrusted implements ocall.HostBoundary.
func (h *Host) MunmapUntrusted(addr boundary.HostPtr, size uintptr) error {
	if size == 0 {
		return nil
	}
	b := bytesAt(addr, size)
	if err := unix.Munmap(b); err != nil {
		return fmt.Errorf("hostsim: munmap_untrusted: %w", err)
	}
	return nil
}

func unixProt(p uint32) uint32 {
	var out uint32
	if p&1 != 0 {
		out |= unix.PROT_READ
	}
	if p&2 != 0 {
		out |= unix.PROT_WRITE
	}
	return out
}

// Ocall implements ocall.HostBoundary's direct-exit path: the single
// dispatch point every OCALL code the Gateway issues eventually reaches,
// whether it arrived via a direct enclave exit or via an RPC worker
// draining the Exitless RPC Queue (see workers.go).
func (h *Host) Ocall(code ocall.Code, args boundary.HostPtr) int32 {
	switch code {
	case ocall.CodeOpen:
		return h.doOpen(args)
	case ocall.CodeClose:
		return h.doClose(args)
	case ocall.CodeRead:
		return h.doRead(args)
	case ocall.CodeWrite:
		return h.doWrite(args)
	case ocall.CodeFstat:
		return h.doFstat(args)
	case ocall.CodeLseek:
		return h.doLseek(args)
	case ocall.CodeMkdir:
		return h.doMkdir(args)
	case ocall.CodeGetdents:
		return ocall.EPERM // not modeled: directory iteration needs no simulated caller yet
	case ocall.CodeMmapUntrusted:
		return h.doMmapUntrustedOcall(args)
	case ocall.CodeMunmapUntrusted:
		return h.doMunmapUntrustedOcall(args)
	case ocall.CodeCpuid:
		return h.doCpuid(args)
	case ocall.CodeExit:
		h.doExit(args)
		return 0 // unreachable: doExit terminates the process
	case ocall.CodeCloneThread, ocall.CodeResumeThread:
		return 0 // hostsim runs every enclave thread as a goroutine already scheduled
	case ocall.CodeCreateProcess:
		return h.doCreateProcess(args)
	case ocall.CodeFutex:
		return h.doFutex(args)
	case ocall.CodeSocketpair:
		return h.doSocketpair(args)
	case ocall.CodeListen:
		return h.doListen(args)
	case ocall.CodeAccept:
		return h.doAccept(args)
	case ocall.CodeConnect:
		return h.doConnect(args)
	case ocall.CodeRecv:
		return h.doRecv(args)
	case ocall.CodeSend:
		return h.doSend(args)
	case ocall.CodeSetsockopt:
		return h.doSetsockopt(args)
	case ocall.CodeShutdown:
		return h.doShutdown(args)
	case ocall.CodeGettime:
		return h.doGettime(args)
	case ocall.CodeSleep:
		return h.doSleep(args)
	case ocall.CodePoll:
		return h.doPoll(args)
	case ocall.CodeRename:
		return h.doRename(args)
	case ocall.CodeDelete:
		return h.doDelete(args)
	case ocall.CodeLoadDebug:
		return h.doLoadDebug(args)
	case ocall.CodeGetAttestation:
		return h.doGetAttestation(args)
	case ocall.CodeEventfd:
		return h.doEventfd(args)
	default:
		h.log.WithField("code", code).Warn("hostsim: unhandled ocall code")
		return ocall.EPERM
	}
}

func (h *Host) doGettime(args boundary.HostPtr) int32 {
	hostStructAt[ocall.GettimeArgs](args).Microsec = uint64(time.Now().UnixMicro())
	return 0
}

func (h *Host) doSleep(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.SleepArgs](args)
	time.Sleep(time.Duration(a.Microsec) * time.Microsecond)
	a.Microsec = 0
	return 0
}

func (h *Host) doLoadDebug(args boundary.HostPtr) int32 {
	cmd := cString(hostStructAt[ocall.LoadDebugArgs](args).Command)
	h.log.WithField("command", cmd).Debug("hostsim: load_debug")
	return 0
}
