package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/cgmgr/cgmgr/errdefs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	clog "github.com/cgmgr/cgmgr/log"
)

// pollTimeoutMS is the listener's bounded wait per spec.md §4.E step 1
// ("a small bounded timeout (~200 ms)") — the mechanism that lets the
// worker observe the stop flag without blocking forever.
const pollTimeoutMS = 200

// state is the listener's lifecycle, spec.md §4.E: Idle -> Running ->
// StopRequested -> Stopped.
type state int32

const (
	stateIdle state = iota
	stateRunning
	stateStopRequested
	stateStopped
)

// registration is one live eventfd subscription.
type registration struct {
	fd              int
	handle          Handle
	name            string
	args            string
	controlFilePath string
	callback        Callback
}

// Listener is the single background worker described in spec.md §4.E: one
// cooperative thread owning one epoll fd and a map from eventfd to
// registration record. It never re-enters Container API methods; it calls
// user callbacks directly (spec.md §5).
type Listener struct {
	ops      kernelops.Ops
	registry *Registry

	mu    sync.Mutex
	epfd  int
	regs  map[int]*registration
	state state

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewListener returns a Listener in the Idle state.
func NewListener(ops kernelops.Ops, registry *Registry) *Listener {
	return &Listener{
		ops:      ops,
		registry: registry,
		regs:     map[int]*registration{},
		state:    stateIdle,
	}
}

// Running reports whether the worker goroutine is active.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == stateRunning
}

// Start transitions Idle -> Running and spawns the worker goroutine. It is
// a no-op if already running.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == stateRunning {
		return nil
	}
	epfd, err := l.ops.EpollCreate()
	if err != nil {
		return err
	}
	l.epfd = epfd
	l.state = stateRunning
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	go l.run(ctx)
	return nil
}

// Subscribe registers fd (already wired to controlFilePath via the
// notifications façade) with the listener, adding it to the epoll set.
func (l *Listener) Subscribe(fd int, handle Handle, name, args, controlFilePath string, callback Callback) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateRunning {
		return errdefs.FailedPrecondition(fmt.Errorf("listener is not running"))
	}
	if err := l.ops.EpollCtlAdd(l.epfd, fd); err != nil {
		return err
	}
	l.regs[fd] = &registration{
		fd:              fd,
		handle:          handle,
		name:            name,
		args:            args,
		controlFilePath: controlFilePath,
		callback:        callback,
	}
	return nil
}

// StopSoon is the non-blocking cancellation signal (spec.md §4.E, §9): it
// clears the run flag; the worker observes this once per loop iteration.
func (l *Listener) StopSoon() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateRunning {
		return
	}
	l.state = stateStopRequested
	close(l.stopCh)
}

// Stop blocks until the worker has fully exited, bounded by ctx.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	done := l.doneCh
	l.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errdefs.Cancelled(ctx.Err())
	}
}

// EventCount returns the number of registered events.
func (l *Listener) EventCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.regs)
}

func (l *Listener) run(ctx context.Context) {
	logger := clog.Module(ctx, "notify.listener")
	defer func() {
		l.mu.Lock()
		l.ops.Close(l.epfd)
		l.state = stateStopped
		close(l.doneCh)
		l.mu.Unlock()
	}()

	for {
		select {
		case <-l.stopCh:
			l.terminateAll(true)
			return
		default:
		}

		l.mu.Lock()
		epfd := l.epfd
		l.mu.Unlock()

		ready, err := l.ops.EpollWait(ctx, epfd, pollTimeoutMS)
		if err != nil {
			logger.WithError(err).Warn("epoll_wait failed")
			continue
		}

		for _, fd := range ready {
			l.handleReady(fd)
		}
	}
}

// handleReady processes one ready fd per spec.md §4.E step 2-4. Deliveries
// for the same registration are strictly serialized because this is the
// single worker goroutine; deliveries across different fds may interleave
// only in the sense that this loop visits them in sequence within one
// iteration, never concurrently.
func (l *Listener) handleReady(fd int) {
	l.mu.Lock()
	reg, ok := l.regs[fd]
	l.mu.Unlock()
	if !ok {
		return
	}

	if err := l.ops.Access(reg.controlFilePath, kernelops.AccessExists); err != nil {
		l.reportTermination(fd, reg, "exit")
		return
	}

	counter, err := l.ops.ReadUint64(fd)
	if err != nil {
		l.reportTermination(fd, reg, "error")
		return
	}

	if !l.registry.Contains(reg.handle) {
		// Unregistered at the container layer; stop routing silently.
		l.removeRegistration(fd)
		l.ops.EpollCtlDel(l.epollFD(), fd)
		l.ops.Close(fd)
		return
	}

	if cont := reg.callback(reg.name, counter, ""); !cont {
		l.removeRegistration(fd)
		l.ops.EpollCtlDel(l.epollFD(), fd)
		l.ops.Close(fd)
	}
}

func (l *Listener) epollFD() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epfd
}

func (l *Listener) removeRegistration(fd int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.regs, fd)
}

func (l *Listener) reportTermination(fd int, reg *registration, kind string) {
	l.removeRegistration(fd)
	l.ops.EpollCtlDel(l.epollFD(), fd)
	l.ops.Close(fd)
	reg.callback(reg.name, 0, kind)
}

// terminateAll delivers an "exit" notification to every remaining
// registration and clears the map (spec.md §4.E step 5).
func (l *Listener) terminateAll(closeFDs bool) {
	l.mu.Lock()
	regs := make([]*registration, 0, len(l.regs))
	for _, r := range l.regs {
		regs = append(regs, r)
	}
	l.regs = map[int]*registration{}
	l.mu.Unlock()

	for _, r := range regs {
		if closeFDs {
			l.ops.Close(r.fd)
		}
		r.callback(r.name, 0, "exit")
	}
}
