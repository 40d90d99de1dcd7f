package ocall

import "github.com/epfl-dcsl/ocallgw/boundary"

// Code enumerates every OCALL operation the Gateway knows how to marshal.
type Code int32

const (
	CodeOpen Code = iota + 1
	CodeClose
	CodeRead
	CodeWrite
	CodeFstat
	CodeLseek
	CodeMkdir
	CodeGetdents
	CodeMmapUntrusted
	CodeMunmapUntrusted
	CodeCpuid
	CodeExit
	CodeCloneThread
	CodeResumeThread
	CodeCreateProcess
	CodeFutex
	CodeSocketpair
	CodeListen
	CodeAccept
	CodeConnect
	CodeRecv
	CodeSend
	CodeSetsockopt
	CodeShutdown
	CodeGettime
	CodeSleep
	CodePoll
	CodeRename
	CodeDelete
	CodeLoadDebug
	CodeGetAttestation
	CodeEventfd
)

func (c Code) String() string {
	switch c {
	case CodeOpen:
		return "open"
	case CodeClose:
		return "close"
	case CodeRead:
		return "read"
	case CodeWrite:
		return "write"
	case CodeFstat:
		return "fstat"
	case CodeLseek:
		return "lseek"
	case CodeMkdir:
		return "mkdir"
	case CodeGetdents:
		return "getdents"
	case CodeMmapUntrusted:
		return "mmap_untrusted"
	case CodeMunmapUntrusted:
		return "munmap_untrusted"
	case CodeCpuid:
		return "cpuid"
	case CodeExit:
		return "exit"
	case CodeCloneThread:
		return "clone_thread"
	case CodeResumeThread:
		return "resume_thread"
	case CodeCreateProcess:
		return "create_process"
	case CodeFutex:
		return "futex"
	case CodeSocketpair:
		return "socketpair"
	case CodeListen:
		return "listen"
	case CodeAccept:
		return "accept"
	case CodeConnect:
		return "connect"
	case CodeRecv:
		return "recv"
	case CodeSend:
		return "send"
	case CodeSetsockopt:
		return "setsockopt"
	case CodeShutdown:
		return "shutdown"
	case CodeGettime:
		return "gettime"
	case CodeSleep:
		return "sleep"
	case CodePoll:
		return "poll"
	case CodeRename:
		return "rename"
	case CodeDelete:
		return "delete"
	case CodeLoadDebug:
		return "load_debug"
	case CodeGetAttestation:
		return "get_attestation"
	case CodeEventfd:
		return "eventfd"
	default:
		return "unknown"
	}
}

// The argument structs below are bit-copied into host memory: every
// pointer field references host memory (either the untrusted stack or an
// mmap_untrusted region), never enclave memory. They are exported so that
// a host-side dispatcher package (hostsim, or a real SGX backend) outside
// this package can interpret a dequeued request without reaching into
// ocall's internals beyond this wire contract.

type OpenArgs struct {
	Pathname boundary.HostPtr
	Flags    int32
	Mode     uint16
}

type CloseArgs struct {
	Fd int32
}

type ReadArgs struct {
	Fd    int32
	Count uint32
	Buf   boundary.HostPtr
}

type WriteArgs struct {
	Fd    int32
	Count uint32
	Buf   boundary.HostPtr
}

type FstatArgs struct {
	Fd   int32
	Stat StatT
}

// StatT mirrors the fixed-size OS stat struct fields the Gateway needs; it
// is bit-copied wholesale, never reinterpreted field-by-field inside the
// enclave without going through the boundary checker's copy.
type StatT struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Rdev    uint64
	Size    int64
	Blksize int64
	Blocks  int64
}

type LseekArgs struct {
	Fd     int32
	Offset uint64
	Whence int32
}

type MkdirArgs struct {
	Pathname boundary.HostPtr
	Mode     uint16
}

type GetdentsArgs struct {
	Fd   int32
	Size uint32
	Dirp boundary.HostPtr
}

type MmapUntrustedArgs struct {
	Fd     int32
	Offset uint64
	Size   uint64
	Prot   uint16
	Mem    boundary.HostPtr
}

type MunmapUntrustedArgs struct {
	Mem  boundary.HostPtr
	Size uint64
}

type CpuidArgs struct {
	Leaf    uint32
	Subleaf uint32
	Values  [4]uint32
}

type ExitArgs struct {
	Exitcode    int32
	IsExitgroup int32
}

// MaxProcessArgs bounds CreateProcessArgs.Args; the original uses a
// flexible array member sized at allocation time; a fixed cap is the
// idiomatic Go equivalent since a pre-sized struct is what gets
// bit-copied onto the untrusted stack here.
const MaxProcessArgs = 64

type CreateProcessArgs struct {
	URI     boundary.HostPtr
	Nargs   int32
	Args    [MaxProcessArgs]boundary.HostPtr
	Pid     uint32
	ProcFds [3]int32
}

type FutexArgs struct {
	Futex     boundary.HostPtr
	Op        int32
	Val       int32
	TimeoutUs int64
}

type SocketpairArgs struct {
	Domain   int32
	Type     int32
	Protocol int32
	Sockfds  [2]int32
}

// SockAddr mirrors struct sockaddr: a fixed-size, bit-copied buffer.
type SockAddr struct {
	Family uint16
	Data   [126]byte
}

// Sockopt mirrors the bundle of socket options the original PAL threads
// back from listen/accept/connect.
type Sockopt struct {
	ReuseAddr        int32
	KeepAlive        int32
	Linger           int32
	RecvBuf          int32
	SendBuf          int32
	ReceiveTimeoutUs int64
}

type ListenArgs struct {
	Domain   int32
	Type     int32
	Protocol int32
	Addrlen  uint32
	Addr     boundary.HostPtr
	Sockopt  Sockopt
}

type AcceptArgs struct {
	Sockfd  int32
	Addrlen uint32
	Addr    boundary.HostPtr
	Sockopt Sockopt
}

type ConnectArgs struct {
	Domain        int32
	Type          int32
	Protocol      int32
	Addrlen       uint32
	BindAddrlen   uint32
	Addr          boundary.HostPtr
	BindAddr      boundary.HostPtr
	Sockopt       Sockopt
}

type RecvArgs struct {
	Sockfd     int32
	Count      uint32
	Addrlen    uint32
	Addr       boundary.HostPtr
	Controllen uint64
	Control    boundary.HostPtr
	Buf        boundary.HostPtr
}

type SendArgs struct {
	Sockfd     int32
	Count      uint32
	Addrlen    uint32
	Addr       boundary.HostPtr
	Controllen uint64
	Control    boundary.HostPtr
	Buf        boundary.HostPtr
}

type SetsockoptArgs struct {
	Sockfd  int32
	Level   int32
	Optname int32
	Optlen  uint32
	Optval  boundary.HostPtr
}

type ShutdownArgs struct {
	Sockfd int32
	How    int32
}

type GettimeArgs struct {
	Microsec uint64
}

type SleepArgs struct {
	Microsec uint64
}

// PollFd mirrors struct pollfd.
type PollFd struct {
	Fd      int32
	Events  int16
	Revents int16
}

type PollArgs struct {
	Nfds      int32
	TimeoutUs int64
	Fds       boundary.HostPtr
}

type RenameArgs struct {
	Oldpath boundary.HostPtr
	Newpath boundary.HostPtr
}

type DeleteArgs struct {
	Pathname boundary.HostPtr
}

type GetAttestationArgs struct {
	Spid        [16]byte
	Subkey      boundary.HostPtr
	Report      [432]byte
	Nonce       [16]byte
	Linkable    int32
	Attestation AttestationT
}

// AttestationT mirrors sgx_attestation_t: four host-allocated blobs the
// Gateway must copy into fresh enclave memory and then unmap.
type AttestationT struct {
	Quote        boundary.HostPtr
	QuoteLen     uint64
	IASReport    boundary.HostPtr
	IASReportLen uint64
	IASSig       boundary.HostPtr
	IASSigLen    uint64
	IASCerts     boundary.HostPtr
	IASCertsLen  uint64
}

type EventfdArgs struct {
	Initval uint32
	Flags   int32
}

// LoadDebugArgs carries the debug-log command string the host appends to
// its debug log (e.g. a dynamic library load notification for gdb).
type LoadDebugArgs struct {
	Command boundary.HostPtr
}
