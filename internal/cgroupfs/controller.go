package cgroupfs

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/cgmgr/cgmgr/errdefs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/internal/notify"
	"github.com/cgmgr/cgmgr/types"
)

// Notifier is the subset of the notifications façade (spec.md §4.F) a
// Controller needs to register an eventfd notification on one of its
// parameter files. Declared here (rather than importing *notify.Facade
// directly into every call site) so Controller's tests can stub it.
type Notifier interface {
	RegisterNotification(cgroupBasepath, cgroupFile, args string, callback notify.Callback) (notify.Handle, error)
}

// Controller is the handle for one (hierarchy, cgroup-path) pair
// (spec.md §4.C). It is owned exclusively by whichever resource or tasks
// handler created it; destroying it consumes it.
type Controller struct {
	hierarchy     types.Hierarchy
	hierarchyPath string
	cgroupPath    string
	ownsCgroup    bool

	ops      kernelops.Ops
	notifier Notifier

	destroyed bool
}

// NewController wires a Controller for (hierarchy, cgroupPath). hierarchyPath
// is the hierarchy's mount point, cgroupPath the full path under it.
func NewController(hierarchy types.Hierarchy, hierarchyPath, cgroupPath string, ownsCgroup bool, ops kernelops.Ops, notifier Notifier) *Controller {
	return &Controller{
		hierarchy:     hierarchy,
		hierarchyPath: hierarchyPath,
		cgroupPath:    cgroupPath,
		ownsCgroup:    ownsCgroup,
		ops:           ops,
		notifier:      notifier,
	}
}

func (c *Controller) Hierarchy() types.Hierarchy { return c.hierarchy }
func (c *Controller) CgroupPath() string         { return c.cgroupPath }
func (c *Controller) OwnsCgroup() bool           { return c.ownsCgroup }

func (c *Controller) paramPath(file string) string {
	return path.Join(c.cgroupPath, file)
}

// Destroy removes the underlying cgroup directory. If ownsCgroup, the
// directory must be empty of non-control entries; rmdir failure on a
// non-empty or permission-denied directory is FailedPrecondition. On
// success the Controller is consumed: callers may not reuse it
// (spec.md §4.C).
func (c *Controller) Destroy() error {
	if c.destroyed {
		return errdefs.FailedPrecondition(fmt.Errorf("controller for %s already destroyed", c.cgroupPath))
	}
	if !c.ownsCgroup {
		c.destroyed = true
		return nil
	}
	children, err := c.ops.ReadDirNames(c.cgroupPath)
	if err != nil && !errdefs.IsNotFound(err) {
		return errdefs.FailedPrecondition(fmt.Errorf("listing %s: %w", c.cgroupPath, err))
	}
	if len(children) > 0 {
		return errdefs.FailedPrecondition(fmt.Errorf("%s is not empty: %v", c.cgroupPath, children))
	}
	if err := c.ops.Rmdir(c.cgroupPath); err != nil {
		if errdefs.IsForbidden(err) {
			return errdefs.FailedPrecondition(fmt.Errorf("rmdir %s: %w", c.cgroupPath, err))
		}
		return err
	}
	c.destroyed = true
	return nil
}

// Enter writes tid to the tasks file. An open error (the cgroup vanished)
// becomes NotFound; a write error (kernel rejected) becomes Unavailable.
// No-op, returning OK, when !ownsCgroup (spec.md §4.C).
//
// The kernel treats a tasks-file write as joining tid's whole thread group
// to the cgroup, so cgroup.procs immediately reflects it too; Enter mirrors
// that by adding tid to both control files instead of just one.
func (c *Controller) Enter(tid int) error {
	if !c.ownsCgroup {
		return nil
	}
	if err := c.addTaskEntry("tasks", tid); err != nil {
		return err
	}
	return c.addTaskEntry("cgroup.procs", tid)
}

// addTaskEntry merges tid into file's existing decimal-lines content.
func (c *Controller) addTaskEntry(file string, tid int) error {
	path := c.paramPath(file)
	existing, err := c.ops.ReadFileToString(path)
	if err != nil && !errdefs.IsNotFound(err) {
		return err
	}
	tids, err := parseDecimalLines(existing)
	if err != nil {
		return err
	}
	for _, t := range tids {
		if t == tid {
			return nil
		}
	}
	tids = append(tids, tid)
	lines := make([]string, len(tids))
	for i, t := range tids {
		lines[i] = strconv.Itoa(t)
	}
	return c.ops.SafeWriteResFile(strings.Join(lines, "\n"), path)
}

// Delegate chowns the cgroup directory and its tasks file to (uid, gid).
// NoOwner/NoGroup sentinels skip that half. No-op when !ownsCgroup
// (spec.md §4.C).
func (c *Controller) Delegate(uid, gid int) error {
	if !c.ownsCgroup {
		return nil
	}
	u, g := -1, -1
	if uid != types.NoOwner {
		u = uid
	}
	if gid != types.NoGroup {
		g = gid
	}
	if u == -1 && g == -1 {
		return nil
	}
	if err := c.ops.Chown(c.cgroupPath, u, g); err != nil {
		return errdefs.FailedPrecondition(fmt.Errorf("chown %s: %w", c.cgroupPath, err))
	}
	if err := c.ops.Chown(c.paramPath("tasks"), u, g); err != nil {
		return errdefs.FailedPrecondition(fmt.Errorf("chown %s/tasks: %w", c.cgroupPath, err))
	}
	return nil
}

// GetProcesses reads cgroup.procs (spec.md §4.C).
func (c *Controller) GetProcesses() ([]int, error) {
	return c.readTaskList("cgroup.procs")
}

// GetThreads reads tasks (spec.md §4.C).
func (c *Controller) GetThreads() ([]int, error) {
	return c.readTaskList("tasks")
}

func (c *Controller) readTaskList(file string) ([]int, error) {
	contents, err := c.ops.ReadFileToString(c.paramPath(file))
	if err != nil {
		if errdefs.IsNotFound(err) && c.ownsCgroup {
			return nil, errdefs.FailedPrecondition(fmt.Errorf("missing %s under owned cgroup %s", file, c.cgroupPath))
		}
		return nil, err
	}
	return parseDecimalLines(contents)
}

// GetSubcontainers lists immediate child directories, returning their bare
// names (spec.md §4.C).
func (c *Controller) GetSubcontainers() ([]string, error) {
	return c.ops.ReadDirNames(c.cgroupPath)
}

// SetParamBool/GetParamBool, SetParamInt/GetParamInt, SetParamString/
// GetParamString, GetParamLines: canonical read/write of per-controller
// attributes (spec.md §4.C).

func (c *Controller) SetParamBool(file string, value bool) error {
	v := "0"
	if value {
		v = "1"
	}
	return c.SetParamString(file, v)
}

func (c *Controller) GetParamBool(file string) (bool, error) {
	v, err := c.GetParamInt(file)
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errdefs.InvalidParameter(fmt.Errorf("%s: out of range bool value %d", file, v))
	}
}

func (c *Controller) SetParamInt(file string, value int64) error {
	return c.SetParamString(file, strconv.FormatInt(value, 10))
}

func (c *Controller) GetParamInt(file string) (int64, error) {
	raw, err := c.GetParamString(file)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errdefs.FailedPrecondition(fmt.Errorf("%s: non-numeric value %q", file, raw))
	}
	return v, nil
}

func (c *Controller) SetParamString(file, value string) error {
	return c.ops.SafeWriteResFile(value, c.paramPath(file))
}

func (c *Controller) GetParamString(file string) (string, error) {
	raw, err := c.ops.ReadFileToString(c.paramPath(file))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

func (c *Controller) GetParamLines(file string) ([]string, error) {
	raw, err := c.ops.ReadFileToString(c.paramPath(file))
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, l := range strings.Split(raw, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// EnableCloneChildren/DisableCloneChildren write "1"/"0" to
// cgroup.clone_children; no-op when unowned (spec.md §4.C).
func (c *Controller) EnableCloneChildren() error {
	if !c.ownsCgroup {
		return nil
	}
	return c.SetParamBool("cgroup.clone_children", true)
}

func (c *Controller) DisableCloneChildren() error {
	if !c.ownsCgroup {
		return nil
	}
	return c.SetParamBool("cgroup.clone_children", false)
}

// SetChildrenLimit/GetChildrenLimit read/write the nested-children cap on
// hierarchies that support it (spec.md §4.C). "job" and "cpuset" are the
// hierarchies that expose this knob in practice. SetChildrenLimit is a no-op
// when unowned; on an owned cgroup whose hierarchy lacks the file, the write
// returns the kernel-ops error. GetChildrenLimit maps a missing file to
// NotImplemented.
func (c *Controller) SetChildrenLimit(n int64) error {
	if !c.ownsCgroup {
		return nil
	}
	return c.SetParamInt("cgroup.children_limit", n)
}

func (c *Controller) GetChildrenLimit() (int64, error) {
	v, err := c.GetParamInt("cgroup.children_limit")
	if err != nil && errdefs.IsNotFound(err) {
		return 0, errdefs.NotImplemented(fmt.Errorf("%s does not support children_limit", c.hierarchy))
	}
	return v, err
}

// RegisterNotification delegates to the notifications façade (spec.md
// §4.C, §4.F).
func (c *Controller) RegisterNotification(controlFile, args string, callback notify.Callback) (notify.Handle, error) {
	if c.notifier == nil {
		return 0, errdefs.NotImplemented(fmt.Errorf("no notifier wired for hierarchy %s", c.hierarchy))
	}
	return c.notifier.RegisterNotification(c.cgroupPath, controlFile, args, callback)
}

// PopulateMachineSpec appends (hierarchy, hierarchy_path) (spec.md §4.C).
func (c *Controller) PopulateMachineSpec(spec *types.MachineSpec) {
	spec.CgroupPaths = append(spec.CgroupPaths, types.CgroupMountPoint{
		Hierarchy: c.hierarchy,
		Path:      c.hierarchyPath,
	})
}
