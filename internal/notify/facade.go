package notify

import (
	"context"
	"fmt"
	"path"
	"strconv"

	"github.com/cgmgr/cgmgr/errdefs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
)

// Facade implements spec.md §4.F: creates an eventfd, wires it to a cgroup
// control file via that hierarchy's event-control protocol, allocates a
// handle, and subscribes the listener.
type Facade struct {
	ops      kernelops.Ops
	registry *Registry
	listener *Listener
}

// NewFacade wires a Facade over registry and listener, both expected to be
// the single process-wide instances owned by the Container API
// (spec.md §9).
func NewFacade(ops kernelops.Ops, registry *Registry, listener *Listener) *Facade {
	return &Facade{ops: ops, registry: registry, listener: listener}
}

// RegisterNotification implements spec.md §4.F's seven steps.
func (f *Facade) RegisterNotification(cgroupBasepath, cgroupFile, args string, callback Callback) (Handle, error) {
	if callback == nil {
		panic("notify: RegisterNotification called with a nil callback")
	}

	// 1. Create a close-on-exec eventfd with initial value 0.
	efd, err := f.ops.EventfdCreate()
	if err != nil {
		return 0, err
	}

	// 2. Open the target cgroup_file (read-only); obtain its fd.
	targetPath := path.Join(cgroupBasepath, cgroupFile)
	controlFD, err := f.ops.OpenRead(targetPath)
	if err != nil {
		f.ops.Close(efd)
		if errdefs.IsNotFound(err) {
			return 0, errdefs.NotFound(fmt.Errorf("cgroup destroyed: %s: %w", targetPath, err))
		}
		return 0, errdefs.System(fmt.Errorf("opening %s: %w", targetPath, err))
	}

	// 3. Write "<eventfd_fd> <control_fd> <args>" to
	// <cgroup_basepath>/cgroup.event_control.
	eventControlPath := path.Join(cgroupBasepath, "cgroup.event_control")
	line := strconv.Itoa(efd) + " " + strconv.Itoa(controlFD)
	if args != "" {
		line += " " + args
	}
	writeErr := f.ops.SafeWriteResFile(line, eventControlPath)

	// 4. Close control_fd unconditionally after the event_control write.
	f.ops.Close(controlFD)

	if writeErr != nil {
		f.ops.Close(efd)
		if errdefs.IsNotFound(writeErr) {
			return 0, errdefs.NotFound(fmt.Errorf("missing event_control: %s: %w", eventControlPath, writeErr))
		}
		return 0, errdefs.System(fmt.Errorf("writing %s: %w", eventControlPath, writeErr))
	}

	// 5. Allocate a handle via the active-notifications registry.
	handle := f.registry.Add()

	// 6. Subscribe the eventfd with the listener; start it if not running.
	if !f.listener.Running() {
		if err := f.listener.Start(context.Background()); err != nil {
			f.registry.Remove(handle)
			f.ops.Close(efd)
			return 0, err
		}
	}
	if err := f.listener.Subscribe(efd, handle, cgroupFile, args, targetPath, callback); err != nil {
		f.registry.Remove(handle)
		f.ops.Close(efd)
		return 0, err
	}

	// 7. Return the handle.
	return handle, nil
}

// UnregisterNotification removes h from the registry. Per spec.md §4.F,
// the listener observes the absence on its next delivery attempt for that
// eventfd and stops routing it; the fd itself is closed then, not here.
func (f *Facade) UnregisterNotification(h Handle) bool {
	return f.registry.Remove(h)
}
