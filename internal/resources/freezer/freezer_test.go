package freezer

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
	assert.NilError(t, cg.Mount(types.MountRequest{Path: "/dev/cgroup/freezer", Hierarchies: []types.Hierarchy{types.HierarchyFreezer}}))
	return NewFactory(cg, fake), fake
}

func TestPauseThenResume(t *testing.T) {
	f, _ := newTestFactory(t)
	h, err := f.Create("/c", &types.ContainerSpec{})
	assert.NilError(t, err)

	assert.NilError(t, h.Pause())
	state, err := h.State()
	assert.NilError(t, err)
	assert.Equal(t, state, stateFrozen)

	assert.NilError(t, h.Resume())
	state, err = h.State()
	assert.NilError(t, err)
	assert.Equal(t, state, stateThawed)
}

func TestErrNotFrozenIsFailedPrecondition(t *testing.T) {
	assert.Check(t, errdefs.IsFailedPrecondition(ErrNotFrozen()))
}

func TestGetAttachesToExistingCgroup(t *testing.T) {
	f, _ := newTestFactory(t)
	_, err := f.Create("/c", &types.ContainerSpec{})
	assert.NilError(t, err)

	h, err := f.Get("/c")
	assert.NilError(t, err)
	assert.NilError(t, h.Pause())
}
