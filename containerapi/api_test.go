package containerapi

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/cgmgr/cgmgr/errdefs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/internal/namespace"
	"github.com/cgmgr/cgmgr/types"
)

func newTestAPI(t *testing.T) (*API, *kernelops.Fake) {
	t.Helper()
	fake := kernelops.NewFake()
	api := New(fake, namespace.NoOp{})
	_, err := api.InitMachine(types.InitSpec{CgroupMount: []types.MountRequest{
		{Path: "/dev/cgroup/freezer", Hierarchies: []types.Hierarchy{types.HierarchyFreezer}},
		{Path: "/dev/cgroup/cpu", Hierarchies: []types.Hierarchy{types.HierarchyCPU}},
		{Path: "/dev/cgroup/memory", Hierarchies: []types.Hierarchy{types.HierarchyMemory}},
	}})
	assert.NilError(t, err)
	return api, fake
}

func TestCreateGetDestroy(t *testing.T) {
	api, _ := newTestAPI(t)

	c, err := api.Create("/app", types.NewContainerSpec())
	assert.NilError(t, err)
	assert.Equal(t, c.Name(), "/app")

	got, err := api.Get("/app")
	assert.NilError(t, err)
	assert.Equal(t, got.Name(), "/app")

	assert.NilError(t, api.Destroy(context.Background(), got))

	_, err = api.Get("/app")
	assert.Check(t, errdefs.IsNotFound(err))
}

func TestCreateDuplicateFails(t *testing.T) {
	api, _ := newTestAPI(t)
	_, err := api.Create("/dup", types.NewContainerSpec())
	assert.NilError(t, err)

	_, err = api.Create("/dup", types.NewContainerSpec())
	assert.Check(t, errdefs.IsAlreadyExists(err))
}

func TestCreateWithCPUSpecWritesShares(t *testing.T) {
	api, fake := newTestAPI(t)

	spec := types.NewContainerSpec()
	shares := uint64(512)
	spec.CPU = &types.CPUSpec{Shares: &shares}

	_, err := api.Create("/withcpu", spec)
	assert.NilError(t, err)

	_, err = api.tasksF.Get("/withcpu")
	assert.NilError(t, err)

	cpuPath, err := api.cgroups.Get(types.HierarchyCPU, "/withcpu")
	assert.NilError(t, err)
	v, err := fake.ReadFileToString(cpuPath + "/cpu.shares")
	assert.NilError(t, err)
	assert.Equal(t, v, "512")
}

func TestCreateRollsBackOnResourceFailure(t *testing.T) {
	api, _ := newTestAPI(t)

	spec := types.NewContainerSpec()
	spec.Memory = &types.MemorySpec{Limit: "not-a-size"}

	_, err := api.Create("/bad", spec)
	assert.Check(t, err != nil)

	assert.Check(t, !api.tasksF.Exists("/bad"))
	_, getErr := api.Get("/bad")
	assert.Check(t, errdefs.IsNotFound(getErr))
}

func TestRegisterNotificationDeliversThroughFacade(t *testing.T) {
	api, fake := newTestAPI(t)

	spec := types.NewContainerSpec()
	spec.Memory = &types.MemorySpec{}
	_, err := api.Create("/watched", spec)
	assert.NilError(t, err)
	c, err := api.Get("/watched")
	assert.NilError(t, err)

	events := make(chan string, 1)
	handle, err := c.RegisterNotification("oom", "", func(name string, counter uint64, termination string) bool {
		events <- name
		return true
	})
	assert.NilError(t, err)

	// RegisterNotification's first step allocates the eventfd, and nothing
	// in this test has allocated any fd before it, so it's fd 1.
	fake.Deliver(1, 1)

	select {
	case name := <-events:
		assert.Equal(t, name, "oom")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for oom delivery")
	}

	assert.Check(t, api.notifier.UnregisterNotification(handle))
}

func TestCreateWithOwnerDelegatesChown(t *testing.T) {
	api, fake := newTestAPI(t)

	spec := types.NewContainerSpec()
	spec.Owner = 1000
	spec.OwnerGroup = 1000
	shares := uint64(256)
	spec.CPU = &types.CPUSpec{Shares: &shares}

	_, err := api.Create("/owned", spec)
	assert.NilError(t, err)

	cpuPath, err := api.cgroups.Get(types.HierarchyCPU, "/owned")
	assert.NilError(t, err)

	var sawCPU bool
	for _, call := range fake.ChownLog {
		if call.Path == cpuPath {
			assert.Equal(t, call.UID, 1000)
			assert.Equal(t, call.GID, 1000)
			sawCPU = true
		}
	}
	assert.Check(t, sawCPU)
}

func TestCreateWithoutOwnerSkipsChown(t *testing.T) {
	api, fake := newTestAPI(t)

	_, err := api.Create("/unowned", types.NewContainerSpec())
	assert.NilError(t, err)

	assert.Equal(t, len(fake.ChownLog), 0)
}

func TestListSubcontainersRecursive(t *testing.T) {
	api, _ := newTestAPI(t)

	_, err := api.Create("/a", types.NewContainerSpec())
	assert.NilError(t, err)
	_, err = api.Create("/a/b", types.NewContainerSpec())
	assert.NilError(t, err)
	_, err = api.Create("/a/c", types.NewContainerSpec())
	assert.NilError(t, err)

	root, err := api.Get("/a")
	assert.NilError(t, err)
	subs, err := root.ListSubcontainers(types.Recursive)
	assert.NilError(t, err)
	assert.DeepEqual(t, subs, []string{"/a/b", "/a/c"})
}

func TestDestroyDepthFirst(t *testing.T) {
	api, _ := newTestAPI(t)

	_, err := api.Create("/p", types.NewContainerSpec())
	assert.NilError(t, err)
	_, err = api.Create("/p/q", types.NewContainerSpec())
	assert.NilError(t, err)

	p, err := api.Get("/p")
	assert.NilError(t, err)
	assert.NilError(t, api.Destroy(context.Background(), p))

	assert.Check(t, !api.tasksF.Exists("/p"))
	assert.Check(t, !api.tasksF.Exists("/p/q"))
}

func TestNameCanonicalizationEquivalence(t *testing.T) {
	api, _ := newTestAPI(t)
	_, err := api.Create("/svc", types.NewContainerSpec())
	assert.NilError(t, err)

	c1, err := api.Get("/svc")
	assert.NilError(t, err)
	c2, err := api.Get("//svc/")
	assert.NilError(t, err)
	assert.Equal(t, c1.Name(), c2.Name())
}

func TestCreateRejectsInvalidName(t *testing.T) {
	api, _ := newTestAPI(t)
	_, err := api.Create("/.bad", types.NewContainerSpec())
	assert.Check(t, errdefs.IsInvalidParameter(err))
}

// recordingNamespace wraps namespace.NoOp, recording NewNamespaceHandler
// calls so TestCreateWithVirtualHost can assert the API routes the
// VirtualHost request to the namespace collaborator.
type recordingNamespace struct {
	namespace.NoOp
	created []string
}

func (r *recordingNamespace) NewNamespaceHandler(containerName string, spec *types.ContainerSpec) error {
	r.created = append(r.created, containerName)
	return nil
}

func TestCreateWithVirtualHost(t *testing.T) {
	fake := kernelops.NewFake()
	ns := &recordingNamespace{}
	api := New(fake, ns)
	_, err := api.InitMachine(types.InitSpec{CgroupMount: []types.MountRequest{
		{Path: "/dev/cgroup/freezer", Hierarchies: []types.Hierarchy{types.HierarchyFreezer}},
		{Path: "/dev/cgroup/cpu", Hierarchies: []types.Hierarchy{types.HierarchyCPU}},
	}})
	assert.NilError(t, err)

	spec := types.NewContainerSpec()
	spec.VirtualHost = true

	_, err = api.Create("/vh", spec)
	assert.NilError(t, err)

	assert.DeepEqual(t, ns.created, []string{"/vh"})
}

func TestDetect(t *testing.T) {
	api, fake := newTestAPI(t)
	_, err := api.Create("/detectme", types.NewContainerSpec())
	assert.NilError(t, err)
	fake.PutFile("/proc/self/cgroup", "4:freezer:/detectme\n")

	name, err := api.Detect(0)
	assert.NilError(t, err)
	assert.Equal(t, name, "/detectme")
}
