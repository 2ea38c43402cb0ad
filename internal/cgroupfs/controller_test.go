package cgroupfs

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cgmgr/cgmgr/errdefs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/types"
)

func newTestController(t *testing.T, fake *kernelops.Fake, owns bool) *Controller {
	t.Helper()
	fake.PutFile("/dev/cgroup/memory/test/tasks", "")
	fake.PutFile("/dev/cgroup/memory/test/cgroup.procs", "")
	fake.PutFile("/dev/cgroup/memory/test/cgroup.clone_children", "0")
	fake.PutFile("/dev/cgroup/memory/test/memory.limit_in_bytes", "0")
	return NewController(types.HierarchyMemory, "/dev/cgroup/memory", "/dev/cgroup/memory/test", owns, fake, nil)
}

func TestControllerEnterAndDestroy(t *testing.T) {
	fake := kernelops.NewFake()
	c := newTestController(t, fake, true)

	assert.NilError(t, c.Enter(42))
	procs, err := fake.ReadFileToString("/dev/cgroup/memory/test/tasks")
	assert.NilError(t, err)
	assert.Equal(t, procs, "42")

	// A live parameter file does not block Destroy; only a subdirectory
	// (a child container) does.
	assert.NilError(t, c.Destroy())
}

func TestControllerDestroyFailsOnNonEmptySubdirectory(t *testing.T) {
	fake := kernelops.NewFake()
	c := newTestController(t, fake, true)
	assert.NilError(t, fake.MkdirAll("/dev/cgroup/memory/test/child"))

	err := c.Destroy()
	assert.ErrorContains(t, err, "not empty")
	assert.Check(t, errdefs.IsFailedPrecondition(err))
}

func TestControllerDestroyConsumesObject(t *testing.T) {
	fake := kernelops.NewFake()
	fake.PutFile("/dev/cgroup/memory/empty/tasks", "")
	c := NewController(types.HierarchyMemory, "/dev/cgroup/memory", "/dev/cgroup/memory/empty", true, fake, nil)

	assert.NilError(t, c.Destroy())
	err := c.Destroy()
	assert.Check(t, errdefs.IsFailedPrecondition(err))
}

func TestControllerUnownedIsNoop(t *testing.T) {
	fake := kernelops.NewFake()
	c := newTestController(t, fake, false)

	assert.NilError(t, c.Enter(1))
	assert.NilError(t, c.Destroy())
	assert.NilError(t, c.Delegate(100, 100))
}

func TestControllerParamBoolRoundTrip(t *testing.T) {
	fake := kernelops.NewFake()
	c := newTestController(t, fake, true)

	assert.NilError(t, c.EnableCloneChildren())
	v, err := c.GetParamBool("cgroup.clone_children")
	assert.NilError(t, err)
	assert.Check(t, v)

	assert.NilError(t, c.DisableCloneChildren())
	v, err = c.GetParamBool("cgroup.clone_children")
	assert.NilError(t, err)
	assert.Check(t, !v)
}

func TestControllerParamBoolOutOfRange(t *testing.T) {
	fake := kernelops.NewFake()
	c := newTestController(t, fake, true)
	fake.PutFile("/dev/cgroup/memory/test/weird", "5")

	_, err := c.GetParamBool("weird")
	assert.Check(t, errdefs.IsInvalidParameter(err))
}

func TestControllerDelegateSkipsSentinels(t *testing.T) {
	fake := kernelops.NewFake()
	c := newTestController(t, fake, true)

	assert.NilError(t, c.Delegate(types.NoOwner, types.NoGroup))
}
