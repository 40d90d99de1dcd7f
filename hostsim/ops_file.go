package hostsim

import (
	"errors"
	"os"
	"syscall"

	"github.com/epfl-dcsl/ocallgw/boundary"
	"github.com/epfl-dcsl/ocallgw/ocall"
)

// errnoOf translates a Go error (typically a *fs.PathError wrapping a
// syscall.Errno) into the negative-errno wire convention every OCALL
// return value uses: the result is 0 on success, or the negated errno
// on failure.
func errnoOf(err error) int32 {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return -int32(errno)
	}
	return ocall.EPERM
}

func (h *Host) fileByFd(fd int32) (*os.File, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.files[fd]
	return f, ok
}

func (h *Host) doOpen(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.OpenArgs](args)
	path := cString(a.Pathname)
	f, err := os.OpenFile(path, int(a.Flags), os.FileMode(a.Mode))
	if err != nil {
		return errnoOf(err)
	}
	fd := h.allocFd()
	h.mu.Lock()
	h.files[fd] = f
	h.mu.Unlock()
	return fd
}

func (h *Host) doClose(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.CloseArgs](args)
	h.mu.Lock()
	f, ok := h.files[a.Fd]
	delete(h.files, a.Fd)
	h.mu.Unlock()
	if !ok {
		return ocall.EINVAL
	}
	return errnoOf(f.Close())
}

func (h *Host) doRead(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.ReadArgs](args)
	f, ok := h.fileByFd(a.Fd)
	if !ok {
		return ocall.EINVAL
	}
	buf := hostBytesAt(a.Buf, uintptr(a.Count))
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		if errors.Is(err, os.ErrClosed) {
			return ocall.EPERM
		}
		return errnoOf(err)
	}
	return int32(n)
}

func (h *Host) doWrite(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.WriteArgs](args)
	f, ok := h.fileByFd(a.Fd)
	if !ok {
		return ocall.EINVAL
	}
	buf := hostBytesAt(a.Buf, uintptr(a.Count))
	n, err := f.Write(buf)
	if err != nil && n == 0 {
		return errnoOf(err)
	}
	return int32(n)
}

func (h *Host) doFstat(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.FstatArgs](args)
	f, ok := h.fileByFd(a.Fd)
	if !ok {
		return ocall.EINVAL
	}
	info, err := f.Stat()
	if err != nil {
		return errnoOf(err)
	}
	a.Stat = ocall.StatT{Size: info.Size(), Mode: uint32(info.Mode())}
	if sys, ok := info.Sys().(*syscall.Stat_t); ok {
		a.Stat = ocall.StatT{
			Dev:     uint64(sys.Dev),
			Ino:     sys.Ino,
			Mode:    sys.Mode,
			Nlink:   uint32(sys.Nlink),
			UID:     sys.Uid,
			GID:     sys.Gid,
			Rdev:    uint64(sys.Rdev),
			Size:    sys.Size,
			Blksize: int64(sys.Blksize),
			Blocks:  sys.Blocks,
		}
	}
	return 0
}

func (h *Host) doLseek(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.LseekArgs](args)
	f, ok := h.fileByFd(a.Fd)
	if !ok {
		return ocall.EINVAL
	}
	off, err := f.Seek(int64(a.Offset), int(a.Whence))
	if err != nil {
		return errnoOf(err)
	}
	return int32(off)
}

func (h *Host) doMkdir(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.MkdirArgs](args)
	return errnoOf(os.Mkdir(cString(a.Pathname), os.FileMode(a.Mode)))
}

func (h *Host) doRename(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.RenameArgs](args)
	return errnoOf(os.Rename(cString(a.Oldpath), cString(a.Newpath)))
}

func (h *Host) doDelete(args boundary.HostPtr) int32 {
	a := hostStructAt[ocall.DeleteArgs](args)
	return errnoOf(os.Remove(cString(a.Pathname)))
}
