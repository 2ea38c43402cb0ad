//go:build linux

package kernelops

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/cgmgr/cgmgr/errdefs"
)

// New returns the real, syscall-backed Ops implementation.
func New() Ops {
	return realOps{}
}

type realOps struct{}

func mapOpenErr(err error, path string) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return errdefs.NotFound(fmt.Errorf("%s: %w", path, err))
	}
	if os.IsPermission(err) {
		return errdefs.Forbidden(fmt.Errorf("%s: %w", path, err))
	}
	return errdefs.System(fmt.Errorf("%s: %w", path, err))
}

func (realOps) ReadFileToString(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", mapOpenErr(err, path)
	}
	defer f.Close()

	// Cgroup control files deliver a complete snapshot per open; a single
	// read of a generous buffer avoids a partial-read retry loop.
	buf := make([]byte, 65536)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return "", errdefs.FailedPrecondition(fmt.Errorf("read %s: %w", path, err))
	}
	return string(buf[:n]), nil
}

func (realOps) SafeWriteResFile(value, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return mapOpenErr(err, path)
	}
	defer f.Close()

	if _, err := f.WriteString(value); err != nil {
		return errdefs.Unavailable(fmt.Errorf("write %s: %w", path, err))
	}
	return nil
}

func (realOps) Access(path string, mode AccessMode) error {
	var flags uint32
	switch mode {
	case AccessRead:
		flags = unix.R_OK
	case AccessWrite:
		flags = unix.W_OK
	default:
		flags = unix.F_OK
	}
	if err := unix.Access(path, flags); err != nil {
		return mapOpenErr(err, path)
	}
	return nil
}

func (realOps) MkdirAll(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		if os.IsExist(err) {
			return errdefs.AlreadyExists(fmt.Errorf("%s: %w", path, err))
		}
		return mapOpenErr(err, path)
	}
	return nil
}

func (realOps) Rmdir(path string) error {
	if err := unix.Rmdir(path); err != nil {
		if err == unix.ENOENT {
			return errdefs.NotFound(fmt.Errorf("%s: %w", path, err))
		}
		if err == unix.ENOTEMPTY || err == unix.EBUSY {
			return errdefs.FailedPrecondition(fmt.Errorf("%s: %w", path, err))
		}
		return mapOpenErr(err, path)
	}
	return nil
}

func (realOps) Chown(path string, uid, gid int) error {
	if err := os.Chown(path, uid, gid); err != nil {
		return errdefs.FailedPrecondition(fmt.Errorf("chown %s: %w", path, err))
	}
	return nil
}

func (realOps) ReadDirNames(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, mapOpenErr(err, path)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func (realOps) EventfdCreate() (int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, errdefs.System(fmt.Errorf("eventfd: %w", err))
	}
	return fd, nil
}

func (realOps) EpollCreate() (int, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return -1, errdefs.System(fmt.Errorf("epoll_create1: %w", err))
	}
	return fd, nil
}

func (realOps) EpollCtlAdd(epfd, fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return errdefs.System(fmt.Errorf("epoll_ctl add: %w", err))
	}
	return nil
}

func (realOps) EpollCtlDel(epfd, fd int) error {
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return errdefs.System(fmt.Errorf("epoll_ctl del: %w", err))
	}
	return nil
}

func (realOps) EpollWait(ctx context.Context, epfd int, timeoutMS int) ([]int, error) {
	events := make([]unix.EpollEvent, 32)
	n, err := unix.EpollWait(epfd, events, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, errdefs.System(fmt.Errorf("epoll_wait: %w", err))
	}
	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ready = append(ready, int(events[i].Fd))
	}
	return ready, nil
}

func (realOps) ReadUint64(fd int) (uint64, error) {
	var buf [8]byte
	n, err := unix.Read(fd, buf[:])
	if err != nil {
		return 0, errdefs.Cancelled(fmt.Errorf("read eventfd: %w", err))
	}
	if n != 8 {
		return 0, errdefs.Cancelled(fmt.Errorf("short eventfd read: %d bytes", n))
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(buf[i]) << (8 * i)
	}
	return v, nil
}

func (realOps) OpenRead(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		if err == unix.ENODEV {
			return -1, errdefs.NotFound(fmt.Errorf("cgroup destroyed: %s: %w", path, err))
		}
		return -1, mapOpenErr(err, path)
	}
	return fd, nil
}

func (realOps) Close(fd int) error {
	if err := unix.Close(fd); err != nil {
		return errdefs.System(fmt.Errorf("close fd %d: %w", fd, err))
	}
	return nil
}

func (realOps) Mount(source, target, fstype string, flags uintptr, data string) error {
	if err := unix.Mount(source, target, fstype, flags, data); err != nil {
		return errdefs.System(fmt.Errorf("mount %s on %s: %w", source, target, err))
	}
	return nil
}

func (realOps) Kill(tid int, signal int) error {
	if err := unix.Kill(tid, unix.Signal(signal)); err != nil {
		if err == unix.ESRCH {
			return errdefs.NotFound(fmt.Errorf("kill %d: %w", tid, err))
		}
		return errdefs.System(fmt.Errorf("kill %d: %w", tid, err))
	}
	return nil
}

func (realOps) GetTid() int {
	return unix.Gettid()
}
