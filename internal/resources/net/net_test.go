package net

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cgmgr/cgmgr/internal/cgroupfs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/types"
)

func newTestFactory(t *testing.T) (*Factory, *cgroupfs.Factory, *kernelops.Fake) {
	t.Helper()
	fake := kernelops.NewFake()
	cg := cgroupfs.NewFactory(fake)
	assert.NilError(t, cg.Mount(types.MountRequest{Path: "/dev/cgroup/net_cls", Hierarchies: []types.Hierarchy{types.HierarchyNet}}))
	return NewFactory(cg, fake), cg, fake
}

func TestCreateAttachesWithoutMkdir(t *testing.T) {
	f, cg, fake := newTestFactory(t)

	// net_cls is unowned: the directory must already exist (mkdir'd by
	// whatever owned hierarchy shares this container name), cgmgr only
	// tags classid on it.
	assert.NilError(t, fake.MkdirAll("/dev/cgroup/net_cls/c"))

	classID := uint32(42)
	_, err := f.Create("/c", &types.ContainerSpec{Network: &types.NetworkSpec{ClassID: classID}})
	assert.NilError(t, err)

	v, err := fake.ReadFileToString("/dev/cgroup/net_cls/c/net_cls.classid")
	assert.NilError(t, err)
	assert.Equal(t, v, "42")
}

func TestCreateFailsWithoutExistingCgroup(t *testing.T) {
	f, _, _ := newTestFactory(t)
	_, err := f.Create("/missing", &types.ContainerSpec{})
	assert.Check(t, err != nil)
}
