package hostsim

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/epfl-dcsl/ocallgw/xbl"
)

// Linux futex(2) operation codes. golang.org/x/sys/unix exports the
// futex syscall number (SYS_FUTEX) but not these operation constants, so
// they're defined here from uapi/linux/futex.h directly.
const (
	futexWait = 0
	futexWake = 1
)

// FutexWaiter implements xbl.Waiter with the real Linux futex(2)
// syscall. In production the untrusted side genuinely is a separate
// thread waiting on host-shared memory; hostsim runs everything in one
// process, but the wait/wake primitive itself is the same kernel
// mechanism the original PAL relies on, not a condition-variable stand-in.
type FutexWaiter struct{}

func (FutexWaiter) FutexWait(word *int32, expected int32, timeout time.Duration) error {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(word)), uintptr(futexWait), uintptr(expected), uintptr(unsafe.Pointer(ts)), 0, 0)
	switch errno {
	case 0:
		return nil
	case unix.EAGAIN:
		return xbl.ErrAgain
	case unix.EINTR:
		return nil
	default:
		return errno
	}
}

func (FutexWaiter) FutexWake(word *int32, n int) error {
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(word)), uintptr(futexWake), uintptr(n), 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
