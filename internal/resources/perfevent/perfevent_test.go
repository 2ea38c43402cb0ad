package perfevent

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
	assert.NilError(t, cg.Mount(types.MountRequest{Path: "/dev/cgroup/perf_event", Hierarchies: []types.Hierarchy{types.HierarchyPerfEvent}}))
	return NewFactory(cg, fake), fake
}

func TestStatsDisabledByDefault(t *testing.T) {
	f, _ := newTestFactory(t)
	h, err := f.Create("/c", &types.ContainerSpec{})
	assert.NilError(t, err)

	out := &types.ContainerStats{}
	assert.NilError(t, h.Stats(types.StatsFull, out))
	assert.Check(t, out.Monitoring == nil)
}

func TestStatsParsesCountersWhenEnabled(t *testing.T) {
	f, fake := newTestFactory(t)
	h, err := f.Create("/c", &types.ContainerSpec{Monitoring: &types.MonitoringSpec{Enable: true}})
	assert.NilError(t, err)

	fake.PutFile("/dev/cgroup/perf_event/c/perf_event.counters", "cache-misses 17\ninstructions 9001\n")

	out := &types.ContainerStats{}
	assert.NilError(t, h.Stats(types.StatsFull, out))
	assert.Equal(t, out.Monitoring.PerfEvents["cache-misses"], uint64(17))
	assert.Equal(t, out.Monitoring.PerfEvents["instructions"], uint64(9001))
}

func TestSpecReflectsEnable(t *testing.T) {
	f, _ := newTestFactory(t)
	h, err := f.Create("/c", &types.ContainerSpec{Monitoring: &types.MonitoringSpec{Enable: true}})
	assert.NilError(t, err)

	out := &types.ContainerSpec{}
	assert.NilError(t, h.Spec(out))
	assert.Check(t, out.Monitoring.Enable)
}
