// Package ocall implements the OCALL Gateway: the single chokepoint every
// trusted-to-untrusted call in the enclave runtime passes through. It
// composes the Boundary Memory Checker, the Untrusted-Stack Allocator, the
// Adaptive Cross-Boundary Lock, and the Exitless RPC Queue into one
// marshal/dispatch/unmarshal pipeline, and exposes one Go method per
// OCALL operation.
//
// Grounded throughout on enclave_ocalls.c (the original PAL
// implementation this package reimplements) and on an OcallHandler
// dispatch loop that plays the same "one function per trusted/untrusted
// transition" role for goroutines instead of SGX threads.
package ocall

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/epfl-dcsl/ocallgw/boundary"
	"github.com/epfl-dcsl/ocallgw/erq"
	"github.com/epfl-dcsl/ocallgw/ustack"
	"github.com/epfl-dcsl/ocallgw/xbl"
)

// HostBoundary is the seam between the Gateway and whatever actually
// executes a call once it reaches untrusted code: a real SGX EEXIT/OCALL
// trampoline in production, an in-process dispatcher in hostsim and in
// tests. It is intentionally narrow — everything else the Gateway needs
// from the host (the args struct, the untrusted stack) already lives in
// ordinary host memory reachable through boundary.HostPtr.
type HostBoundary interface {
	// Ocall performs a direct (enclave-exiting) call: code identifies the
	// operation, args is a host pointer to its pre-marshaled argument
	// struct. Returns the operation's raw result code.
	Ocall(code Code, args boundary.HostPtr) int32
	// MmapUntrusted establishes a fresh host-memory mapping for a buffer
	// too large to fit on the untrusted stack.
	MmapUntrusted(size uintptr, prot uint32) (boundary.HostPtr, error)
	// MunmapUntrusted releases a mapping previously returned by
	// MmapUntrusted.
	MunmapUntrusted(addr boundary.HostPtr, size uintptr) error
}

// RequestDescriptor is the host-resident record a producer enclave thread
// builds and an RPC worker thread completes. It embeds an xbl.Lock so the
// whole record can be bump-allocated as one struct on the untrusted
// stack, matching the original's single rpc_queue_request_t.
type RequestDescriptor struct {
	lock   xbl.Lock
	Code   Code
	Args   boundary.HostPtr
	Result int32
}

// Complete is called by the RPC worker once Result has been stored: it
// releases the lock and, if the producer had already promoted to
// LOCKED_WITH_WAITERS, wakes it via w.
func (rd *RequestDescriptor) Complete(result int32, w xbl.Waiter) {
	rd.Result = result
	if rd.lock.Unlock() {
		if err := w.FutexWake(rd.lock.Word(), 1); err != nil {
			// Nothing the worker can do about a failed wake beyond
			// logging: the producer's futex wait has no timeout, so it
			// notices the unlock only if some later wake reaches it.
			logrus.WithError(err).Warn("ocall: futex wake failed after completing request")
		}
	}
}

// Gateway is the trusted-side entry point: one Gateway per enclave thread
// (it owns that thread's untrusted stack), sharing the Checker, the
// Cell, and the HostBoundary with every other Gateway in the process.
type Gateway struct {
	stack   *ustack.Stack
	checker *boundary.Checker
	queue   *erq.Cell
	host    HostBoundary
	waiter  xbl.Waiter
	cfg     Config
	log     *logrus.Logger
}

// NewGateway builds a Gateway bound to one enclave thread's stack and the
// process-wide boundary checker, RPC queue cell, host boundary, and
// futex waiter. opts tunes Config away from DefaultConfig().
func NewGateway(stack *ustack.Stack, checker *boundary.Checker, queue *erq.Cell, host HostBoundary, waiter xbl.Waiter, opts ...Option) *Gateway {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Gateway{
		stack:   stack,
		checker: checker,
		queue:   queue,
		host:    host,
		waiter:  waiter,
		cfg:     cfg,
		log:     cfg.Logger,
	}
}

// call routes through the Exitless RPC Queue if one has been installed,
// falling back to a direct enclave-exiting call whenever no queue exists
// or the queue is full.
func (g *Gateway) call(code Code, args boundary.HostPtr) (int32, error) {
	if q := g.queue.Get(); q != nil {
		return g.exitlessCall(q, code, args)
	}
	return g.host.Ocall(code, args), nil
}

func (g *Gateway) exitlessCall(q *erq.Queue, code Code, args boundary.HostPtr) (int32, error) {
	rdPtr, rd := allocStruct[RequestDescriptor](g.stack)
	if rd == nil {
		g.log.WithField("code", code).Debug("ustack exhausted building request descriptor, falling back to direct exit")
		return g.host.Ocall(code, args), nil
	}
	rd.Code = code
	rd.Args = args
	rd.lock.Init()

	if !q.Enqueue(erq.Request(rdPtr)) {
		g.log.WithField("code", code).Debug("rpc queue full, falling back to direct exit")
		return g.host.Ocall(code, args), nil
	}

	if err := rd.lock.Acquire(g.cfg.SpinIterations, g.waiter); err != nil {
		return 0, fatalErr(code.String(), fmt.Errorf("waiting for rpc worker: %w", err))
	}
	return rd.Result, nil
}

// largeBuffer reports whether n exceeds the untrusted-stack/heap
// threshold, in which case callers must route the buffer through
// MmapUntrusted rather than the stack.
func (g *Gateway) largeBuffer(n uintptr) bool {
	return n > g.cfg.MaxUntrustedStackBuf
}
