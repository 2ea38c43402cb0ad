package memory

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cgmgr/cgmgr/internal/cgroupfs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/types"
)

func newTestFactory(t *testing.T) (*Factory, *kernelops.Fake) {
	t.Helper()
	fake := kernelops.NewFake()
	cg := cgroupfs.NewFactory(fake)
	assert.NilError(t, cg.Mount(types.MountRequest{Path: "/dev/cgroup/memory", Hierarchies: []types.Hierarchy{types.HierarchyMemory}}))
	return NewFactory(cg, nil, fake), fake
}

func TestCreateWritesLimit(t *testing.T) {
	f, fake := newTestFactory(t)
	_, err := f.Create("/c", &types.ContainerSpec{Memory: &types.MemorySpec{Limit: "512m"}})
	assert.NilError(t, err)

	v, err := fake.ReadFileToString("/dev/cgroup/memory/c/memory.limit_in_bytes")
	assert.NilError(t, err)
	assert.Equal(t, v, "536870912")
}

func TestUpdateDiffFillsFromCurrentState(t *testing.T) {
	f, fake := newTestFactory(t)
	h, err := f.Create("/c", &types.ContainerSpec{Memory: &types.MemorySpec{Limit: "256m"}})
	assert.NilError(t, err)
	// The fake does not pre-fill control files with kernel defaults.
	fake.PutFile("/dev/cgroup/memory/c/memory.soft_limit_in_bytes", "0")
	fake.PutFile("/dev/cgroup/memory/c/memory.swappiness", "60")

	swap := uint64(10)
	assert.NilError(t, h.Update(&types.ContainerSpec{Memory: &types.MemorySpec{Swappiness: &swap}}, types.Diff))

	v, err := fake.ReadFileToString("/dev/cgroup/memory/c/memory.limit_in_bytes")
	assert.NilError(t, err)
	assert.Equal(t, v, "268435456")
}

func TestSpecRoundTrip(t *testing.T) {
	f, fake := newTestFactory(t)
	h, err := f.Create("/c", &types.ContainerSpec{Memory: &types.MemorySpec{Limit: "128m"}})
	assert.NilError(t, err)
	// The fake does not pre-fill control files with kernel defaults.
	fake.PutFile("/dev/cgroup/memory/c/memory.soft_limit_in_bytes", "0")
	fake.PutFile("/dev/cgroup/memory/c/memory.swappiness", "60")

	out := &types.ContainerSpec{}
	assert.NilError(t, h.Spec(out))
	assert.Equal(t, out.Memory.Limit, "128MiB")
}

func TestRegisterNotificationOnlySupportsOOM(t *testing.T) {
	f, _ := newTestFactory(t)
	h, err := f.Create("/c", &types.ContainerSpec{})
	assert.NilError(t, err)

	_, err = h.RegisterNotification("exit", "", func(string, uint64, string) bool { return true })
	assert.ErrorContains(t, err, "exit")
}
