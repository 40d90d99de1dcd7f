package ustack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStack(t *testing.T) *Stack {
	t.Helper()
	buf := make([]byte, 4096)
	return NewFromSlice(buf)
}

func TestAllocAndReset(t *testing.T) {
	s := newTestStack(t)
	top0 := s.Top()

	rsv := s.Reserve()
	p1 := s.Alloc(16)
	require.NotZero(t, p1)
	p2 := s.Alloc(16)
	require.NotZero(t, p2)
	require.NotEqual(t, p1, p2)
	rsv.Release()

	require.Equal(t, top0, s.Top(), "stack top must be restored after release")
}

func TestAllocAlignedMinimumFourBytes(t *testing.T) {
	s := newTestStack(t)
	rsv := s.Reserve()
	defer rsv.Release()

	p := s.AllocAligned(1, 1)
	require.Zero(t, uintptr(p)%4, "alignment must be at least 4 bytes for XBL words")
}

func TestAllocExhaustion(t *testing.T) {
	s := NewFromSlice(make([]byte, 8))
	rsv := s.Reserve()
	defer rsv.Release()

	p := s.Alloc(4096)
	require.Zero(t, p, "oversized allocation must return a null host pointer")
}

func TestCopyInFromEnclave(t *testing.T) {
	s := newTestStack(t)
	rsv := s.Reserve()
	defer rsv.Release()

	data := []byte("hello enclave")
	ptr := s.CopyInFromEnclave(data)
	require.NotZero(t, ptr)

	got := hostBytes(ptr, uintptr(len(data)))
	require.Equal(t, data, got)
}

func TestReleaseIsIdempotent(t *testing.T) {
	s := newTestStack(t)
	rsv := s.Reserve()
	s.Alloc(8)
	rsv.Release()
	top := s.Top()
	rsv.Release()
	require.Equal(t, top, s.Top())
}
