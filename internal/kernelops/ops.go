// Package kernelops is the single dependency surface over the OS kernel
// (spec.md §4.A). Every other package in cgmgr talks to the kernel only
// through this interface, so everything above it is testable without root.
package kernelops

import "context"

// Ops is the kernel-operations contract. Every method returns an error
// classified through the errdefs package rather than a bare
// os.PathError/syscall.Errno, so the translation from raw OS failures to
// cgmgr's closed error-kind set happens exactly once, here.
type Ops interface {
	// ReadFileToString reads a small control file in one shot: open, one
	// read, close. Cgroup control files deliver a complete snapshot per
	// open, so no partial-read retry loop is needed or wanted.
	ReadFileToString(path string) (string, error)

	// SafeWriteResFile opens path and writes value as a single token,
	// reporting open and write failures distinctly so the caller can map
	// them to NotFound vs Unavailable per spec.md §4.C's enter() mapping.
	SafeWriteResFile(value, path string) error

	Access(path string, mode AccessMode) error
	MkdirAll(path string) error
	Rmdir(path string) error
	Chown(path string, uid, gid int) error
	ReadDirNames(path string) ([]string, error)

	EventfdCreate() (fd int, err error)
	EpollCreate() (fd int, err error)
	EpollCtlAdd(epfd, fd int) error
	EpollCtlDel(epfd, fd int) error
	// EpollWait blocks up to timeout for readiness on epfd, returning the
	// set of fds that became ready.
	EpollWait(ctx context.Context, epfd int, timeoutMS int) ([]int, error)
	ReadUint64(fd int) (uint64, error)
	OpenRead(path string) (fd int, err error)
	Close(fd int) error

	Mount(source, target, fstype string, flags uintptr, data string) error

	Kill(tid int, signal int) error
	GetTid() int
}

// AccessMode mirrors the subset of access(2) modes cgmgr needs.
type AccessMode int

const (
	AccessExists AccessMode = iota
	AccessRead
	AccessWrite
)
