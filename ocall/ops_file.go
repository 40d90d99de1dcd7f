package ocall

// Open issues the open OCALL, copying pathname onto the untrusted stack
// as the original does rather than trusting a caller-supplied pointer.
func (g *Gateway) Open(pathname string, flags int32, mode uint16) (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	ptr, a := allocStruct[OpenArgs](g.stack)
	if a == nil {
		return -1, permErr("open", errUstackExhausted)
	}
	hp, err := g.copyInPath("open", pathname)
	if err != nil {
		return -1, err
	}
	a.Pathname = hp
	a.Flags = flags
	a.Mode = mode
	return g.call(CodeOpen, ptr)
}

// Close issues the close OCALL.
func (g *Gateway) Close(fd int32) (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	ptr, a := allocStruct[CloseArgs](g.stack)
	if a == nil {
		return -1, permErr("close", errUstackExhausted)
	}
	a.Fd = fd
	return g.call(CodeClose, ptr)
}

// Read issues the read OCALL. dst is the enclave (or host) address of the
// destination buffer; on success the first return value is the number of
// bytes read, already copied back into dst if dst was enclave-resident.
func (g *Gateway) Read(fd int32, dst uintptr, count uint32) (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	hostBuf, release, writeback, err := g.inBuffer("read", dst, uintptr(count))
	if err != nil {
		return -1, err
	}
	defer release()

	ptr, a := allocStruct[ReadArgs](g.stack)
	if a == nil {
		return -1, permErr("read", errUstackExhausted)
	}
	a.Fd = fd
	a.Count = count
	a.Buf = hostBuf

	n, err := g.call(CodeRead, ptr)
	if err != nil || n < 0 {
		return n, err
	}
	if err := writeback(uintptr(n)); err != nil {
		return -1, err
	}
	return n, nil
}

// Write issues the write OCALL. src is the enclave (or host) address of
// the source buffer.
func (g *Gateway) Write(fd int32, src uintptr, count uint32) (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	hostBuf, release, err := g.outBuffer("write", src, uintptr(count))
	if err != nil {
		return -1, err
	}
	defer release()

	ptr, a := allocStruct[WriteArgs](g.stack)
	if a == nil {
		return -1, permErr("write", errUstackExhausted)
	}
	a.Fd = fd
	a.Count = count
	a.Buf = hostBuf

	return g.call(CodeWrite, ptr)
}

// Fstat issues the fstat OCALL, copying the host-filled StatT back into
// out.
func (g *Gateway) Fstat(fd int32, out *StatT) (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	ptr, a := allocStruct[FstatArgs](g.stack)
	if a == nil {
		return -1, permErr("fstat", errUstackExhausted)
	}
	a.Fd = fd

	ret, err := g.call(CodeFstat, ptr)
	if err != nil || ret < 0 {
		return ret, err
	}
	*out = structAt[FstatArgs](ptr).Stat
	return ret, nil
}

// Lseek issues the lseek OCALL.
func (g *Gateway) Lseek(fd int32, offset uint64, whence int32) (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	ptr, a := allocStruct[LseekArgs](g.stack)
	if a == nil {
		return -1, permErr("lseek", errUstackExhausted)
	}
	a.Fd = fd
	a.Offset = offset
	a.Whence = whence
	return g.call(CodeLseek, ptr)
}

// Mkdir issues the mkdir OCALL.
func (g *Gateway) Mkdir(pathname string, mode uint16) (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	ptr, a := allocStruct[MkdirArgs](g.stack)
	if a == nil {
		return -1, permErr("mkdir", errUstackExhausted)
	}
	hp, err := g.copyInPath("mkdir", pathname)
	if err != nil {
		return -1, err
	}
	a.Pathname = hp
	a.Mode = mode
	return g.call(CodeMkdir, ptr)
}

// Getdents issues the getdents OCALL, copying the host-filled directory
// entry buffer back into dst on success.
func (g *Gateway) Getdents(fd int32, dst uintptr, size uint32) (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	hostBuf, release, writeback, err := g.inBuffer("getdents", dst, uintptr(size))
	if err != nil {
		return -1, err
	}
	defer release()

	ptr, a := allocStruct[GetdentsArgs](g.stack)
	if a == nil {
		return -1, permErr("getdents", errUstackExhausted)
	}
	a.Fd = fd
	a.Size = size
	a.Dirp = hostBuf

	n, err := g.call(CodeGetdents, ptr)
	if err != nil || n < 0 {
		return n, err
	}
	if err := writeback(uintptr(n)); err != nil {
		return -1, err
	}
	return n, nil
}

// Rename issues the rename OCALL.
func (g *Gateway) Rename(oldpath, newpath string) (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	ptr, a := allocStruct[RenameArgs](g.stack)
	if a == nil {
		return -1, permErr("rename", errUstackExhausted)
	}
	oldHp, err := g.copyInPath("rename", oldpath)
	if err != nil {
		return -1, err
	}
	newHp, err := g.copyInPath("rename", newpath)
	if err != nil {
		return -1, err
	}
	a.Oldpath = oldHp
	a.Newpath = newHp
	return g.call(CodeRename, ptr)
}

// Delete issues the delete (unlink/rmdir) OCALL.
func (g *Gateway) Delete(pathname string) (int32, error) {
	rsv := g.stack.Reserve()
	defer rsv.Release()

	ptr, a := allocStruct[DeleteArgs](g.stack)
	if a == nil {
		return -1, permErr("delete", errUstackExhausted)
	}
	hp, err := g.copyInPath("delete", pathname)
	if err != nil {
		return -1, err
	}
	a.Pathname = hp
	return g.call(CodeDelete, ptr)
}
