package ocall

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/epfl-dcsl/ocallgw/boundary"
	"github.com/epfl-dcsl/ocallgw/erq"
	"github.com/epfl-dcsl/ocallgw/ustack"
	"github.com/epfl-dcsl/ocallgw/xbl"
)

func sliceBaseAddr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// fakeHost is a HostBoundary test double: it stands in for the real
// enclave-exit trampoline and a host-side malloc/mmap arena, entirely
// within this process.
type fakeHost struct {
	mu       sync.Mutex
	calls    []Code
	arena    []byte
	arenaTop uintptr
	onOcall  func(code Code, args boundary.HostPtr) int32
}

func newFakeHost(arenaSize int) *fakeHost {
	arena := make([]byte, arenaSize)
	return &fakeHost{arena: arena, arenaTop: sliceBaseAddr(arena) + uintptr(arenaSize)}
}

func (h *fakeHost) Ocall(code Code, args boundary.HostPtr) int32 {
	h.mu.Lock()
	h.calls = append(h.calls, code)
	fn := h.onOcall
	h.mu.Unlock()
	if fn != nil {
		return fn(code, args)
	}
	return 0
}

func (h *fakeHost) MmapUntrusted(size uintptr, _ uint32) (boundary.HostPtr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	base := sliceBaseAddr(h.arena)
	newTop := h.arenaTop - size
	newTop &^= 7
	if newTop < base {
		return 0, errUstackExhausted
	}
	h.arenaTop = newTop
	return boundary.HostPtr(newTop), nil
}

func (h *fakeHost) MunmapUntrusted(boundary.HostPtr, uintptr) error { return nil }

func (h *fakeHost) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

// syncWaiter completes immediately: used when a test never expects a
// Gateway call to actually block on the XBL.
type syncWaiter struct{}

func (syncWaiter) FutexWait(*int32, int32, time.Duration) error { return nil }
func (syncWaiter) FutexWake(*int32, int) error                  { return nil }

// condWaiter mirrors xbl's own test double, reused here to drive the
// exitless path end-to-end with a real blocking wait.
type condWaiter struct {
	mu   sync.Mutex
	cond *sync.Cond
}

func newCondWaiter() *condWaiter {
	w := &condWaiter{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *condWaiter) FutexWait(word *int32, expected int32, _ time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if atomic.LoadInt32(word) != expected {
		return xbl.ErrAgain
	}
	for atomic.LoadInt32(word) == expected {
		w.cond.Wait()
	}
	return nil
}

func (w *condWaiter) FutexWake(word *int32, _ int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cond.Broadcast()
	return nil
}

// testGateway bundles a Gateway together with the enclave-side backing
// array its Checker considers "inside", so tests can exercise the copy
// paths as well as the rejection paths.
type testGateway struct {
	*Gateway
	enclaveBuf []byte
}

func newTestGateway(t *testing.T, host *fakeHost, w xbl.Waiter, queue *erq.Cell, opts ...Option) *testGateway {
	t.Helper()
	enclaveBuf := make([]byte, 4096)
	// The fake host's mmap arena sits right after the untrusted stack inside
	// the registered host region, so memory it hands out classifies as
	// outside the enclave, as real mmap_untrusted memory does.
	hostBuf := make([]byte, 8192+len(host.arena))
	host.arena = hostBuf[8192:]
	host.arenaTop = sliceBaseAddr(host.arena) + uintptr(len(host.arena))
	enclave := boundary.Region{Base: sliceBaseAddr(enclaveBuf), Size: uintptr(len(enclaveBuf))}
	hostRegion := boundary.Region{Base: sliceBaseAddr(hostBuf), Size: uintptr(len(hostBuf))}
	checker := boundary.New(enclave, hostRegion)
	stack := ustack.NewFromSlice(hostBuf[:8192])

	if queue == nil {
		queue = &erq.Cell{}
	}
	allOpts := append([]Option{WithSpinIterations(10)}, opts...)
	g := NewGateway(stack, checker, queue, host, w, allOpts...)
	return &testGateway{Gateway: g, enclaveBuf: enclaveBuf}
}

func TestDirectCallUsedWhenNoQueueInstalled(t *testing.T) {
	host := newFakeHost(4096)
	g := newTestGateway(t, host, syncWaiter{}, nil)

	ret, err := g.Close(3)
	require.NoError(t, err)
	require.EqualValues(t, 0, ret)
	require.Equal(t, 1, host.callCount())
}

func TestExitlessCallRoutesThroughQueueAndWorker(t *testing.T) {
	host := newFakeHost(4096)
	w := newCondWaiter()
	q := erq.New(8)
	cell := &erq.Cell{}
	cell.Set(q)
	g := newTestGateway(t, host, w, cell)

	done := make(chan struct{})
	go func() {
		for {
			req, ok := q.Dequeue()
			if !ok {
				time.Sleep(time.Millisecond)
				continue
			}
			rd := DecodeRequest(req)
			rd.Complete(42, w)
			close(done)
			return
		}
	}()

	ret, err := g.Close(9)
	require.NoError(t, err)
	require.EqualValues(t, 42, ret)
	<-done
	require.Equal(t, 0, host.callCount(), "exitless path must never directly exit when the queue accepts the request")
}

func TestExitlessCallFallsBackWhenQueueFull(t *testing.T) {
	host := newFakeHost(4096)
	q := erq.New(1)
	require.True(t, q.Enqueue(1)) // fill the queue so Enqueue always fails
	cell := &erq.Cell{}
	cell.Set(q)
	g := newTestGateway(t, host, syncWaiter{}, cell)

	_, err := g.Close(1)
	require.NoError(t, err)
	require.Equal(t, 1, host.callCount(), "a full ERQ must fall back to a direct exit")
}

func TestWriteRejectsStraddlingBuffer(t *testing.T) {
	host := newFakeHost(4096)
	g := newTestGateway(t, host, syncWaiter{}, nil)

	// A buffer that starts inside the enclave region but extends past its
	// end straddles the boundary and must never reach the host.
	straddle := sliceBaseAddr(g.enclaveBuf) + uintptr(len(g.enclaveBuf)) - 4
	_, err := g.Write(1, straddle, 64)
	require.Error(t, err)
	require.Equal(t, 0, host.callCount())
}

func TestWriteRejectsBufferInNeitherRegion(t *testing.T) {
	host := newFakeHost(4096)
	g := newTestGateway(t, host, syncWaiter{}, nil)

	// A plain Go slice that is neither the enclave buffer nor the host
	// region backing this Gateway's stack straddles by construction (it's
	// in neither registered range), which is also rejected: only buffers
	// inside the enclave or inside the registered host region are valid.
	hostBuf := make([]byte, 64)
	_, err := g.Write(5, sliceBaseAddr(hostBuf), 64)
	require.Error(t, err)
}

func TestWriteCopiesInsideBufferThroughUstack(t *testing.T) {
	host := newFakeHost(4096)
	var captured boundary.HostPtr
	host.onOcall = func(code Code, args boundary.HostPtr) int32 {
		captured = structAt[WriteArgs](args).Buf
		return 4
	}
	g := newTestGateway(t, host, syncWaiter{}, nil)
	copy(g.enclaveBuf, []byte("data"))

	ret, err := g.Write(1, sliceBaseAddr(g.enclaveBuf), 4)
	require.NoError(t, err)
	require.EqualValues(t, 4, ret)
	require.NotZero(t, captured)
	require.NotEqual(t, sliceBaseAddr(g.enclaveBuf), uintptr(captured), "payload must be copied, not passed by reference, when it is enclave-resident")
}

func TestWriteUsesMmapUntrustedForLargeBuffers(t *testing.T) {
	host := newFakeHost(1 << 20)
	g := newTestGateway(t, host, syncWaiter{}, nil, WithMaxUntrustedStackBuf(16))
	copy(g.enclaveBuf, make([]byte, 256))

	_, err := g.Write(1, sliceBaseAddr(g.enclaveBuf), 256)
	require.NoError(t, err)
	require.Contains(t, host.calls, CodeWrite)
}

func TestStackTopRestoredAfterCall(t *testing.T) {
	host := newFakeHost(4096)
	g := newTestGateway(t, host, syncWaiter{}, nil)

	top0 := g.stack.Top()
	_, err := g.Close(1)
	require.NoError(t, err)
	require.Equal(t, top0, g.stack.Top(), "untrusted stack must return to its prior top after every OCALL")
}

func TestFutexRejectsEnclaveResidentWord(t *testing.T) {
	host := newFakeHost(4096)
	g := newTestGateway(t, host, syncWaiter{}, nil)

	_, err := g.Futex(sliceBaseAddr(g.enclaveBuf), 0, 0, -1)
	require.Error(t, err)
	require.Equal(t, 0, host.callCount(), "an in-enclave futex word must be rejected before reaching the host")
}

func TestGettimeRetriesOnEINTR(t *testing.T) {
	host := newFakeHost(4096)
	var attempts int32
	host.onOcall = func(code Code, args boundary.HostPtr) int32 {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return EINTR
		}
		structAt[GettimeArgs](args).Microsec = 555
		return 0
	}
	g := newTestGateway(t, host, syncWaiter{}, nil)

	us, ret, err := g.Gettime()
	require.NoError(t, err)
	require.EqualValues(t, 0, ret)
	require.EqualValues(t, 555, us)
	require.EqualValues(t, 3, attempts)
}

func TestExitNeverReturns(t *testing.T) {
	host := newFakeHost(4096)
	var calls int32
	host.onOcall = func(Code, boundary.HostPtr) int32 {
		atomic.AddInt32(&calls, 1)
		return 0
	}
	g := newTestGateway(t, host, syncWaiter{}, nil)

	returned := make(chan struct{})
	go func() {
		g.Exit(0, true)
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("Exit must never return")
	case <-time.After(20 * time.Millisecond):
	}
	require.Greater(t, atomic.LoadInt32(&calls), int32(0))
}
