package kernelops

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cgmgr/cgmgr/errdefs"
)

// Fake is an in-memory Ops implementation used by every package's unit
// tests, the seam spec.md §4.A calls out ("so that all other components
// are testable without root"). It models a filesystem as a map and a small
// table of open eventfds; it never touches the real kernel.
type Fake struct {
	mu sync.Mutex

	files map[string]string
	dirs  map[string]bool

	nextFD  int
	fdValue map[int]uint64 // eventfd fd -> pending counter
	fdOpen  map[int]bool
	epolls  map[int]map[int]bool // epfd -> set of fds registered

	readyFDs map[int]bool // fds with pending data, consumed by EpollWait

	KillLog  []KillCall
	ChownLog []ChownCall
}

// KillCall records one Kill() invocation for test assertions.
type KillCall struct {
	Tid    int
	Signal int
}

// ChownCall records one Chown() invocation for test assertions.
type ChownCall struct {
	Path     string
	UID, GID int
}

// NewFake returns a ready-to-use Fake with the root directory present.
func NewFake() *Fake {
	return &Fake{
		files:    map[string]string{},
		dirs:     map[string]bool{"/": true},
		fdValue:  map[int]uint64{},
		fdOpen:   map[int]bool{},
		epolls:   map[int]map[int]bool{},
		readyFDs: map[int]bool{},
	}
}

var _ Ops = (*Fake)(nil)

// ReadFileToString models real cgroupfs: every control file under a mounted
// cgroup directory already exists (the kernel populates it on mkdir), so an
// unwritten file reads back empty rather than NotFound. Only a missing
// parent directory (the cgroup itself never existed, or was destroyed)
// produces NotFound.
func (f *Fake) ReadFileToString(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.files[path]; ok {
		return v, nil
	}
	if !f.dirs[parentDir(path)] {
		return "", errdefs.NotFound(fmt.Errorf("%s: no such file", path))
	}
	return "", nil
}

func (f *Fake) SafeWriteResFile(value, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	dir := parentDir(path)
	if !f.dirs[dir] {
		return errdefs.NotFound(fmt.Errorf("%s: no such directory", dir))
	}
	f.files[path] = value
	return nil
}

// PutFile seeds path with contents, creating parent directories as needed.
// Test-only helper, not part of Ops.
func (f *Fake) PutFile(path, contents string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs[parentDir(path)] = true
	f.files[path] = contents
}

func (f *Fake) Access(path string, mode AccessMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dirs[path] {
		return nil
	}
	if _, ok := f.files[path]; ok {
		return nil
	}
	return errdefs.NotFound(fmt.Errorf("%s: no such file or directory", path))
}

func (f *Fake) MkdirAll(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dirs[path] {
		return errdefs.AlreadyExists(fmt.Errorf("%s: already exists", path))
	}
	f.dirs[path] = true
	return nil
}

func (f *Fake) Rmdir(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirs[path] {
		return errdefs.NotFound(fmt.Errorf("%s: no such directory", path))
	}
	prefix := strings.TrimSuffix(path, "/") + "/"
	for p := range f.dirs {
		if p != path && strings.HasPrefix(p, prefix) {
			return errdefs.FailedPrecondition(fmt.Errorf("%s: not empty", path))
		}
	}
	// Control files go away with their directory, as on cgroupfs.
	for p := range f.files {
		if strings.HasPrefix(p, prefix) {
			delete(f.files, p)
		}
	}
	delete(f.dirs, path)
	return nil
}

func (f *Fake) Chown(path string, uid, gid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok := f.dirs[path]
	if !ok {
		if _, ok = f.files[path]; !ok {
			ok = f.dirs[parentDir(path)]
		}
	}
	if !ok {
		return errdefs.FailedPrecondition(fmt.Errorf("chown %s: no such path", path))
	}
	f.ChownLog = append(f.ChownLog, ChownCall{Path: path, UID: uid, GID: gid})
	return nil
}

func (f *Fake) ReadDirNames(path string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirs[path] {
		return nil, errdefs.NotFound(fmt.Errorf("%s: no such directory", path))
	}
	prefix := strings.TrimSuffix(path, "/") + "/"
	seen := map[string]bool{}
	var names []string
	for p := range f.dirs {
		if p == path || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if idx := strings.Index(rest, "/"); idx >= 0 {
			continue // not an immediate child
		}
		if !seen[rest] {
			seen[rest] = true
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *Fake) EventfdCreate() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextFD++
	fd := f.nextFD
	f.fdValue[fd] = 0
	f.fdOpen[fd] = true
	return fd, nil
}

func (f *Fake) EpollCreate() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextFD++
	epfd := f.nextFD
	f.epolls[epfd] = map[int]bool{}
	return epfd, nil
}

func (f *Fake) EpollCtlAdd(epfd, fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.epolls[epfd]
	if !ok {
		return errdefs.System(fmt.Errorf("epoll_ctl add: unknown epfd %d", epfd))
	}
	set[fd] = true
	return nil
}

func (f *Fake) EpollCtlDel(epfd, fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.epolls[epfd]
	if !ok {
		return errdefs.System(fmt.Errorf("epoll_ctl del: unknown epfd %d", epfd))
	}
	delete(set, fd)
	return nil
}

func (f *Fake) EpollWait(ctx context.Context, epfd int, timeoutMS int) ([]int, error) {
	f.mu.Lock()
	set, ok := f.epolls[epfd]
	if !ok {
		f.mu.Unlock()
		return nil, errdefs.System(fmt.Errorf("epoll_wait: unknown epfd %d", epfd))
	}
	var ready []int
	for fd := range set {
		if f.readyFDs[fd] {
			ready = append(ready, fd)
		}
	}
	f.mu.Unlock()
	sort.Ints(ready)
	return ready, nil
}

func (f *Fake) ReadUint64(fd int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.fdOpen[fd] {
		return 0, errdefs.Cancelled(fmt.Errorf("read eventfd %d: closed", fd))
	}
	v := f.fdValue[fd]
	f.fdValue[fd] = 0
	delete(f.readyFDs, fd)
	return v, nil
}

func (f *Fake) OpenRead(path string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[path]; !ok {
		if !f.dirs[parentDir(path)] {
			return -1, errdefs.NotFound(fmt.Errorf("cgroup destroyed: %s", path))
		}
		f.files[path] = ""
	}
	f.nextFD++
	fd := f.nextFD
	f.fdOpen[fd] = true
	return fd, nil
}

func (f *Fake) Close(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.fdOpen, fd)
	delete(f.fdValue, fd)
	delete(f.readyFDs, fd)
	return nil
}

func (f *Fake) Mount(source, target, fstype string, flags uintptr, data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs[target] = true
	return nil
}

func (f *Fake) Kill(tid int, signal int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.KillLog = append(f.KillLog, KillCall{Tid: tid, Signal: signal})
	return nil
}

func (f *Fake) GetTid() int { return 1 }

// Deliver marks fd as having a counter value ready for the next EpollWait,
// the test-only trigger for eventfd-listener unit tests.
func (f *Fake) Deliver(fd int, value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fdValue[fd] += value
	f.readyFDs[fd] = true
}

// RemoveFile deletes path, the test hook scenario 5 uses to simulate the
// cgroup control file disappearing out from under a live registration.
func (f *Fake) RemoveFile(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
}

func parentDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}
