package tasks

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cgmgr/cgmgr/errdefs"
	"github.com/cgmgr/cgmgr/internal/cgroupfs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/types"
)

func newTestFactory(t *testing.T) (*Factory, *kernelops.Fake) {
	t.Helper()
	fake := kernelops.NewFake()
	cg := cgroupfs.NewFactory(fake)
	assert.NilError(t, cg.Mount(types.MountRequest{
		Path:        "/dev/cgroup/freezer",
		Hierarchies: []types.Hierarchy{types.HierarchyFreezer},
	}))
	f, err := NewFactory(cg, nil, fake)
	assert.NilError(t, err)
	return f, fake
}

func TestFactoryRequiresJobOrFreezer(t *testing.T) {
	fake := kernelops.NewFake()
	cg := cgroupfs.NewFactory(fake)
	_, err := NewFactory(cg, nil, fake)
	assert.Check(t, errdefs.IsNotFound(err))
}

func TestCreateTrackAndListRecursive(t *testing.T) {
	f, _ := newTestFactory(t)

	root, err := f.Create("/a", &types.ContainerSpec{})
	assert.NilError(t, err)
	_, err = f.Create("/a/b", &types.ContainerSpec{})
	assert.NilError(t, err)
	_, err = f.Create("/a/c", &types.ContainerSpec{})
	assert.NilError(t, err)
	_, err = f.Create("/a/b/d", &types.ContainerSpec{})
	assert.NilError(t, err)

	subs, err := root.ListSubcontainers(types.Recursive)
	assert.NilError(t, err)
	assert.DeepEqual(t, subs, []string{"/a/b", "/a/b/d", "/a/c"})
}

func TestTrackTasksAndListProcesses(t *testing.T) {
	f, _ := newTestFactory(t)
	h, err := f.Create("/t", &types.ContainerSpec{})
	assert.NilError(t, err)

	assert.NilError(t, h.TrackTasks([]int{1, 2, 3}))
	procs, err := h.ListProcesses(types.Self)
	assert.NilError(t, err)
	assert.DeepEqual(t, procs, []int{1, 2, 3})
}

func TestExistsAndDestroy(t *testing.T) {
	f, _ := newTestFactory(t)
	_, err := f.Create("/x", &types.ContainerSpec{})
	assert.NilError(t, err)
	assert.Check(t, f.Exists("/x"))

	h, err := f.Get("/x")
	assert.NilError(t, err)
	assert.NilError(t, h.Destroy())
	assert.Check(t, !f.Exists("/x"))
}
