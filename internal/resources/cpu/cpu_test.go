package cpu

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
	assert.NilError(t, cg.Mount(types.MountRequest{Path: "/dev/cgroup/cpu", Hierarchies: []types.Hierarchy{types.HierarchyCPU}}))
	return NewFactory(cg, fake), fake
}

func TestCreateWritesShares(t *testing.T) {
	f, fake := newTestFactory(t)
	shares := uint64(512)
	_, err := f.Create("/c", &types.ContainerSpec{CPU: &types.CPUSpec{Shares: &shares}})
	assert.NilError(t, err)

	v, err := fake.ReadFileToString("/dev/cgroup/cpu/c/cpu.shares")
	assert.NilError(t, err)
	assert.Equal(t, v, "512")
}

func TestUpdateDiffLeavesUnsetFieldsAlone(t *testing.T) {
	f, fake := newTestFactory(t)
	shares := uint64(256)
	h, err := f.Create("/c", &types.ContainerSpec{CPU: &types.CPUSpec{Shares: &shares}})
	assert.NilError(t, err)

	period := uint64(100000)
	assert.NilError(t, h.Update(&types.ContainerSpec{CPU: &types.CPUSpec{PeriodUS: &period}}, types.Diff))

	v, err := fake.ReadFileToString("/dev/cgroup/cpu/c/cpu.shares")
	assert.NilError(t, err)
	assert.Equal(t, v, "256")
}

func TestUpdateReplaceResetsUnsetQuota(t *testing.T) {
	f, fake := newTestFactory(t)
	quota := int64(50000)
	h, err := f.Create("/c", &types.ContainerSpec{CPU: &types.CPUSpec{QuotaUS: &quota}})
	assert.NilError(t, err)

	shares := uint64(100)
	assert.NilError(t, h.Update(&types.ContainerSpec{CPU: &types.CPUSpec{Shares: &shares}}, types.Replace))

	v, err := fake.ReadFileToString("/dev/cgroup/cpu/c/cpu.cfs_quota_us")
	assert.NilError(t, err)
	assert.Equal(t, v, "-1")
}

func TestGetWalksToAncestor(t *testing.T) {
	f, fake := newTestFactory(t)
	_, err := f.Create("/a", &types.ContainerSpec{})
	assert.NilError(t, err)
	// The fake does not pre-fill control files with kernel defaults.
	fake.PutFile("/dev/cgroup/cpu/a/cpu.shares", "1024")
	fake.PutFile("/dev/cgroup/cpu/a/cpu.cfs_period_us", "100000")
	fake.PutFile("/dev/cgroup/cpu/a/cpu.cfs_quota_us", "-1")

	h, err := f.Get("/a/b")
	assert.NilError(t, err)

	out := &types.ContainerSpec{}
	assert.NilError(t, h.Spec(out))
}
