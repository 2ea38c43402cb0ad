package device

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
	assert.NilError(t, cg.Mount(types.MountRequest{Path: "/dev/cgroup/devices", Hierarchies: []types.Hierarchy{types.HierarchyDevice}}))
	return NewFactory(cg, fake), fake
}

func TestCreateWritesAllowAndDenyRules(t *testing.T) {
	f, fake := newTestFactory(t)
	_, err := f.Create("/c", &types.ContainerSpec{Device: &types.DeviceSpec{
		Deny:  []types.DeviceRule{{Type: "a", Major: -1, Minor: -1, Permissions: "rwm"}},
		Allow: []types.DeviceRule{{Type: "c", Major: 1, Minor: 5, Permissions: "rw"}},
	}})
	assert.NilError(t, err)

	v, err := fake.ReadFileToString("/dev/cgroup/devices/c/devices.deny")
	assert.NilError(t, err)
	assert.Equal(t, v, "a *:* rwm")

	v, err = fake.ReadFileToString("/dev/cgroup/devices/c/devices.allow")
	assert.NilError(t, err)
	assert.Equal(t, v, "c 1:5 rw")
}

func TestSpecParsesDevicesList(t *testing.T) {
	f, fake := newTestFactory(t)
	h, err := f.Create("/c", &types.ContainerSpec{})
	assert.NilError(t, err)

	fake.PutFile("/dev/cgroup/devices/c/devices.list", "c 1:5 rw\n")

	out := &types.ContainerSpec{}
	assert.NilError(t, h.Spec(out))
	assert.Equal(t, len(out.Device.Allow), 1)
	assert.Equal(t, out.Device.Allow[0].Type, "c")
}
