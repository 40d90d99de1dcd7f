package hostsim

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/epfl-dcsl/ocallgw/erq"
	"github.com/epfl-dcsl/ocallgw/ocall"
)

// WorkerPool drains the Exitless RPC Queue on the untrusted side: a small
// group of goroutines standing in for the dedicated RPC worker threads a
// real host spawns once per enclave. Grounded on google-gvisor's
// errgroup-based worker pools (e.g. the kubectl/cuda test harnesses in
// the same pack), adapted here to a queue-drain loop instead of a
// fan-out-and-join shape.
type WorkerPool struct {
	group  *errgroup.Group
	cancel context.CancelFunc
	log    *logrus.Logger
}

// StartWorkerPool launches n worker goroutines pulling Request handles
// off q, dispatching each through host.Ocall, and completing the
// corresponding RequestDescriptor so the producer's Acquire can return.
func StartWorkerPool(host *Host, q *erq.Queue, waiter FutexWaiter, n int, log *logrus.Logger) *WorkerPool {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if n < 1 {
		n = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	p := &WorkerPool{group: g, cancel: cancel, log: log}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			p.run(gctx, host, q, waiter)
			return nil
		})
	}
	return p
}

// run drains q until ctx is cancelled, sleeping briefly between empty
// polls rather than busy-spinning: the RPC workers are untrusted-side
// goroutines with no futex wait of their own. After dequeuing a request
// they only unlock its lock and, if the producer is waiting, wake it.
func (p *WorkerPool) run(ctx context.Context, host *Host, q *erq.Queue, waiter FutexWaiter) {
	const idleBackoff = 200 * time.Microsecond
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		req, ok := q.Dequeue()
		if !ok {
			time.Sleep(idleBackoff)
			continue
		}
		rd := ocall.DecodeRequest(req)
		result := host.Ocall(rd.Code, rd.Args)
		rd.Complete(result, waiter)
	}
}

// Stop signals every worker goroutine to exit and waits for them to
// drain their current iteration.
func (p *WorkerPool) Stop() error {
	p.cancel()
	return p.group.Wait()
}
