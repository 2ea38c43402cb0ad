// Package cgroupfs implements spec.md §4.B (cgroup factory) and §4.C
// (cgroup controller): discovery/mounting of cgroup hierarchies, resolution
// of (hierarchy, container name) to filesystem paths, and the per-cgroup
// controller that reads/writes parameter files.
package cgroupfs

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/moby/sys/mountinfo"

	"github.com/cgmgr/cgmgr/errdefs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/types"
)

// Factory discovers cgroup hierarchy mount points and resolves container
// names to cgroup paths within them (spec.md §4.B).
type Factory struct {
	ops kernelops.Ops

	mu          sync.RWMutex
	mountPoints map[types.Hierarchy]string
}

// NewFactory returns a Factory backed by ops. Callers must call Discover
// (or Mount for each hierarchy they need) before Get/Create will succeed.
func NewFactory(ops kernelops.Ops) *Factory {
	return &Factory{
		ops:         ops,
		mountPoints: map[types.Hierarchy]string{},
	}
}

// Discover scans /proc/self/mountinfo for already-mounted cgroup
// hierarchies, using github.com/moby/sys/mountinfo instead of hand-rolled
// parsing (SPEC_FULL §2.1).
func (f *Factory) Discover() error {
	mounts, err := mountinfo.GetMounts(mountinfo.FSTypeFilter("cgroup"))
	if err != nil {
		return errdefs.System(fmt.Errorf("reading mountinfo: %w", err))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range mounts {
		for _, opt := range strings.Split(m.VFSOptions, ",") {
			if h := types.Hierarchy(opt); h.Owns() || opt == string(types.HierarchyNet) {
				f.mountPoints[h] = m.Mountpoint
			}
		}
	}
	return nil
}

// IsMounted answers "is hierarchy X available?" (spec.md §4.B).
func (f *Factory) IsMounted(h types.Hierarchy) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.mountPoints[h]
	return ok
}

// HierarchyName returns the canonical subsystem name used in
// /proc/<tid>/cgroup's csv_subsystems column.
func (f *Factory) HierarchyName(h types.Hierarchy) string {
	return string(h)
}

// OwnsCgroup reports whether the factory creates/destroys directories for h.
func (f *Factory) OwnsCgroup(h types.Hierarchy) bool {
	return h.Owns()
}

func (f *Factory) mountPoint(h types.Hierarchy) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	mp, ok := f.mountPoints[h]
	if !ok {
		return "", errdefs.NotFound(fmt.Errorf("hierarchy %q is not mounted", h))
	}
	return mp, nil
}

func (f *Factory) cgroupPath(h types.Hierarchy, containerName string) (string, error) {
	mp, err := f.mountPoint(h)
	if err != nil {
		return "", err
	}
	return path.Join(mp, containerName), nil
}

// Get returns the path where the container's cgroup already exists
// (spec.md §4.B).
func (f *Factory) Get(h types.Hierarchy, containerName string) (string, error) {
	cgPath, err := f.cgroupPath(h, containerName)
	if err != nil {
		return "", err
	}
	if err := f.ops.Access(cgPath, kernelops.AccessExists); err != nil {
		return "", errdefs.NotFound(fmt.Errorf("cgroup %s does not exist: %w", cgPath, err))
	}
	return cgPath, nil
}

// Create creates the directory for an owned hierarchy; for unowned
// hierarchies it behaves like Get (spec.md §4.B).
func (f *Factory) Create(h types.Hierarchy, containerName string) (string, error) {
	cgPath, err := f.cgroupPath(h, containerName)
	if err != nil {
		return "", err
	}
	if !h.Owns() {
		if err := f.ops.Access(cgPath, kernelops.AccessExists); err != nil {
			return "", errdefs.FailedPrecondition(fmt.Errorf("unowned hierarchy %q has no cgroup at %s", h, cgPath))
		}
		return cgPath, nil
	}
	if err := f.ops.Access(cgPath, kernelops.AccessExists); err == nil {
		return "", errdefs.AlreadyExists(fmt.Errorf("cgroup %s already exists", cgPath))
	}
	if err := f.ops.MkdirAll(cgPath); err != nil {
		if errdefs.IsAlreadyExists(err) {
			return "", err
		}
		return "", errdefs.FailedPrecondition(fmt.Errorf("creating %s: %w", cgPath, err))
	}
	return cgPath, nil
}

// DetectCgroupPath parses the task's cgroup membership file
// (/proc/<tid>/cgroup, or /proc/self/cgroup for tid 0) and returns the path
// from the first line whose subsystem list contains h's canonical name
// (spec.md §4.B).
func (f *Factory) DetectCgroupPath(tid int, h types.Hierarchy) (string, error) {
	procFile := "/proc/self/cgroup"
	if tid != 0 {
		procFile = fmt.Sprintf("/proc/%d/cgroup", tid)
	}

	contents, err := f.ops.ReadFileToString(procFile)
	if err != nil {
		return "", errdefs.NotFound(fmt.Errorf("reading %s: %w", procFile, err))
	}

	name := f.HierarchyName(h)
	for _, line := range strings.Split(contents, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, ":", 3)
		if len(fields) != 3 {
			continue
		}
		subsystems := strings.Split(fields[1], ",")
		for _, s := range subsystems {
			if s == name {
				return fields[2], nil
			}
		}
	}
	return "", errdefs.NotFound(fmt.Errorf("hierarchy %q not found in %s", h, procFile))
}

// Mount mounts the requested hierarchy if not already mounted (spec.md
// §4.B).
func (f *Factory) Mount(req types.MountRequest) error {
	f.mu.RLock()
	allMounted := true
	for _, h := range req.Hierarchies {
		if _, ok := f.mountPoints[h]; !ok {
			allMounted = false
			break
		}
	}
	f.mu.RUnlock()
	if allMounted {
		return nil // idempotent: init_machine is safe to call twice (spec.md §8)
	}

	if err := f.ops.MkdirAll(req.Path); err != nil && !errdefs.IsAlreadyExists(err) {
		return errdefs.System(fmt.Errorf("mkdir %s: %w", req.Path, err))
	}

	names := make([]string, 0, len(req.Hierarchies))
	for _, h := range req.Hierarchies {
		names = append(names, string(h))
	}
	opts := strings.Join(names, ",")
	if err := f.ops.Mount("cgroup", req.Path, "cgroup", 0, opts); err != nil {
		return err
	}

	f.mu.Lock()
	for _, h := range req.Hierarchies {
		f.mountPoints[h] = req.Path
	}
	f.mu.Unlock()
	return nil
}

// PopulateMachineSpec stamps every observed mount point (spec.md §4.B).
func (f *Factory) PopulateMachineSpec(spec *types.MachineSpec) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for h, mp := range f.mountPoints {
		spec.CgroupMounts[h] = mp
	}
}

// ContainerNameFromPath strips a hierarchy's mount point prefix off an
// absolute cgroup path to recover the container name, the inverse of
// cgroupPath. Used by tasks handlers translating Detect() results.
func (f *Factory) ContainerNameFromPath(h types.Hierarchy, cgPath string) (string, error) {
	mp, err := f.mountPoint(h)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(cgPath, mp) {
		return "", errdefs.InvalidParameter(fmt.Errorf("%s is not under %s", cgPath, mp))
	}
	name := strings.TrimPrefix(cgPath, mp)
	if name == "" {
		return "/", nil
	}
	return name, nil
}

// parseDecimalLines parses a newline-separated list of decimal integers,
// the shape of cgroup.procs/tasks/children_limit files. Used by the
// controller's task-list reads and writes.
func parseDecimalLines(contents string) ([]int, error) {
	var out []int
	for _, line := range strings.Split(contents, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		v, err := strconv.Atoi(line)
		if err != nil {
			return nil, errdefs.FailedPrecondition(fmt.Errorf("parsing %q as decimal: %w", line, err))
		}
		out = append(out, v)
	}
	return out, nil
}
