package tasks

import (
	"fmt"

	"github.com/cgmgr/cgmgr/errdefs"
	"github.com/cgmgr/cgmgr/internal/cgroupfs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/types"
)

// Factory creates new Handlers and gets existing ones; it is also able to
// determine whether a container exists or what container a TID is running
// in (spec.md §4.H, original_source/lmctfy/tasks_handler.h
// TasksHandlerFactory).
type Factory struct {
	cgroups  *cgroupfs.Factory
	notifier cgroupfs.Notifier
	ops      kernelops.Ops

	// hierarchy is the canonical tasks hierarchy this factory was
	// resolved to use: "job" if mounted, else "freezer". spec.md's Open
	// Question is resolved as written: if neither is mounted, NewFactory
	// returns NotFound (no read-only degraded mode).
	hierarchy types.Hierarchy
}

// NewFactory resolves the canonical tasks hierarchy and returns a Factory,
// or NotFound if neither "job" nor "freezer" is mounted (spec.md §9 Open
// Question resolution).
func NewFactory(cgroups *cgroupfs.Factory, notifier cgroupfs.Notifier, ops kernelops.Ops) (*Factory, error) {
	hierarchy := types.HierarchyJob
	if !cgroups.IsMounted(hierarchy) {
		hierarchy = types.HierarchyFreezer
		if !cgroups.IsMounted(hierarchy) {
			return nil, errdefs.NotFound(fmt.Errorf("no job or freezer hierarchy mounted"))
		}
	}
	return &Factory{cgroups: cgroups, notifier: notifier, ops: ops, hierarchy: hierarchy}, nil
}

func (f *Factory) hierarchyPath() string {
	// Factory.Mount guarantees this hierarchy has a mount point once
	// NewFactory has succeeded; errors here would indicate a bug in that
	// invariant, not a runtime condition callers need to handle.
	mp, _ := f.cgroups.Get(f.hierarchy, "/")
	return mp
}

// Create creates a Handler for a new container. Fails if the container
// already exists (spec.md TasksHandlerFactory.Create).
func (f *Factory) Create(containerName string, spec *types.ContainerSpec) (*Handler, error) {
	cgPath, err := f.cgroups.Create(f.hierarchy, containerName)
	if err != nil {
		return nil, err
	}
	controller := cgroupfs.NewController(f.hierarchy, f.hierarchyPath(), cgPath, true, f.ops, f.notifier)
	return &Handler{containerName: containerName, controller: controller, factory: f}, nil
}

// Get attaches a Handler to an existing container. Fails if the container
// does not exist.
func (f *Factory) Get(containerName string) (*Handler, error) {
	cgPath, err := f.cgroups.Get(f.hierarchy, containerName)
	if err != nil {
		return nil, err
	}
	controller := cgroupfs.NewController(f.hierarchy, f.hierarchyPath(), cgPath, true, f.ops, f.notifier)
	return &Handler{containerName: containerName, controller: controller, factory: f}, nil
}

// Exists determines whether the specified container exists.
func (f *Factory) Exists(containerName string) bool {
	_, err := f.cgroups.Get(f.hierarchy, containerName)
	return err == nil
}

// Detect determines in which container the specified TID is running.
func (f *Factory) Detect(tid int) (string, error) {
	return f.cgroups.DetectCgroupPath(tid, f.hierarchy)
}
