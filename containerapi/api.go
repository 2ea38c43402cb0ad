// Package containerapi implements the Container API (spec.md §4.I): the
// top-level orchestrator that resolves names, creates and destroys
// containers with all-or-nothing semantics, and initializes the machine.
package containerapi

import (
	"context"
	"fmt"
	"sort"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix/v2"
	"github.com/moby/locker"

	"github.com/cgmgr/cgmgr/container"
	"github.com/cgmgr/cgmgr/errdefs"
	"github.com/cgmgr/cgmgr/internal/cgroupfs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/internal/namespace"
	"github.com/cgmgr/cgmgr/internal/notify"
	"github.com/cgmgr/cgmgr/internal/resources"
	"github.com/cgmgr/cgmgr/internal/resources/freezer"
	"github.com/cgmgr/cgmgr/internal/tasks"
	"github.com/cgmgr/cgmgr/log"
	"github.com/cgmgr/cgmgr/types"
)

// API is the Container API (spec.md's `ContainerApi`). Exactly one
// notify.Registry and one eventfd-listener worker live behind the
// notify.Facade this struct owns (spec.md §9 Design Notes: "exactly one
// notify.Registry per containerapi.API").
type API struct {
	ops      kernelops.Ops
	cgroups  *cgroupfs.Factory
	notifier *notify.Facade
	tasksF   *tasks.Factory
	freezerF *freezer.Factory
	registry *resources.Registry
	ns       namespace.Collaborator

	locks *locker.Locker

	mu    sync.Mutex
	index *iradix.Tree[*container.Container]
}

// New builds an API over ops. The tasks factory requires a job or freezer
// hierarchy to already be mounted (call InitMachine first); constructing
// API itself never touches the kernel.
func New(ops kernelops.Ops, ns namespace.Collaborator) *API {
	if ns == nil {
		ns = namespace.NoOp{}
	}
	cgroups := cgroupfs.NewFactory(ops)
	notifyRegistry := notify.NewRegistry()
	listener := notify.NewListener(ops, notifyRegistry)
	fac := notify.NewFacade(ops, notifyRegistry, listener)
	reg := resources.NewRegistry()
	return &API{
		ops:      ops,
		cgroups:  cgroups,
		notifier: fac,
		registry: reg,
		ns:       ns,
		locks:    locker.New(),
		index:    iradix.New[*container.Container](),
	}
}

// InitMachine mounts every requested hierarchy (idempotent), wires up the
// tasks/freezer factories and registers the resource factories, then has
// the cgroup factory and the namespace collaborator populate the returned
// MachineSpec (spec.md §4.I `init_machine`). Resource factories have no
// init hook, so none is called on them.
func (a *API) InitMachine(spec types.InitSpec) (*types.MachineSpec, error) {
	for _, mount := range spec.CgroupMount {
		if err := a.cgroups.Mount(mount); err != nil {
			return nil, err
		}
	}

	tasksF, err := tasks.NewFactory(a.cgroups, a.cgroupNotifier(), a.ops)
	if err != nil {
		return nil, err
	}
	a.tasksF = tasksF
	a.freezerF = freezer.NewFactory(a.cgroups, a.ops)

	a.registry.Register(cpuFactory(a.cgroups, a.ops))
	a.registry.Register(memoryFactory(a.cgroups, a.cgroupNotifier(), a.ops))
	a.registry.Register(blkioFactory(a.cgroups, a.ops))
	a.registry.Register(netFactory(a.cgroups, a.ops))
	a.registry.Register(perfEventFactory(a.cgroups, a.ops))
	a.registry.Register(deviceFactory(a.cgroups, a.ops))

	machine := types.NewMachineSpec()
	a.cgroups.PopulateMachineSpec(machine)
	a.ns.PopulateMachineSpec(machine)
	return machine, nil
}

// cgroupNotifier adapts *notify.Facade to cgroupfs.Notifier.
func (a *API) cgroupNotifier() cgroupfs.Notifier { return a.notifier }

// currentContainerName implements the "current container" half of spec.md
// §4.I's name resolution rule via detect(0). If detection fails (e.g. no
// tasks factory yet) it falls back to root, matching the rule's intent for
// hosts with nothing special configured.
func (a *API) currentContainerName() string {
	if a.tasksF == nil {
		return "/"
	}
	name, err := a.tasksF.Detect(0)
	if err != nil {
		return "/"
	}
	return name
}

func (a *API) resolve(name string) (string, error) {
	return canonicalize(name, a.currentContainerName())
}

// Get resolves name, checks existence via the tasks handler factory,
// acquires a freezer controller and a tasks handler, and returns the
// container object (spec.md §4.I `get`).
func (a *API) Get(name string) (*container.Container, error) {
	canon, err := a.resolve(name)
	if err != nil {
		return nil, err
	}
	if c, ok := a.index.Get([]byte(canon)); ok {
		return c, nil
	}
	return a.attach(canon)
}

// attach builds a Container for an existing cgroup tree without consulting
// the in-memory index — used by Get for containers created in a previous
// process and by the destroy walk's subcontainer iteration.
func (a *API) attach(canon string) (*container.Container, error) {
	if !a.tasksF.Exists(canon) {
		return nil, errdefs.NotFound(fmt.Errorf("container %q does not exist", canon))
	}
	th, err := a.tasksF.Get(canon)
	if err != nil {
		return nil, err
	}
	fr, err := a.freezerF.Get(canon)
	if err != nil {
		return nil, err
	}
	res := map[types.ResourceKind]resources.Handler{}
	for _, kind := range a.registry.Kinds() {
		factory, _ := a.registry.Get(kind)
		h, err := factory.Get(canon)
		if err != nil && !errdefs.IsNotFound(err) {
			return nil, err
		}
		if err == nil {
			res[kind] = h
		}
	}
	c := container.New(canon, th, fr, res, a.ns, a.ops)
	a.indexInsert(canon, c)
	return c, nil
}

// Create implements spec.md §4.I's all-or-nothing creation sequence.
func (a *API) Create(name string, spec *types.ContainerSpec) (*container.Container, error) {
	canon, err := a.resolve(name)
	if err != nil {
		return nil, err
	}

	a.locks.Lock(canon)
	defer a.locks.Unlock(canon)

	if _, ok := a.index.Get([]byte(canon)); ok {
		return nil, errdefs.AlreadyExists(fmt.Errorf("container %q already exists", canon))
	}
	if a.tasksF.Exists(canon) {
		return nil, errdefs.AlreadyExists(fmt.Errorf("container %q already exists", canon))
	}

	kinds := intersect(spec.Resources(), a.registry.Kinds())

	var rollback []func() error
	destroyAll := func() {
		for i := len(rollback) - 1; i >= 0; i-- {
			if err := rollback[i](); err != nil {
				log.Module(context.Background(), "containerapi").WithError(err).Warn("rollback step failed")
			}
		}
	}

	fr, err := a.freezerF.Create(canon, spec)
	if err != nil {
		return nil, err
	}
	rollback = append(rollback, fr.Destroy)

	th, err := a.tasksF.Create(canon, spec)
	if err != nil {
		destroyAll()
		return nil, err
	}
	rollback = append(rollback, th.Destroy)

	res := map[types.ResourceKind]resources.Handler{}
	for _, kind := range kinds {
		factory, _ := a.registry.Get(kind)
		h, err := factory.Create(canon, spec)
		if err != nil {
			destroyAll()
			return nil, err
		}
		res[kind] = h
		rollback = append(rollback, h.Destroy)
	}

	if spec.HasOwner() {
		uid, gid := int(spec.Owner), int(spec.OwnerGroup)
		if err := fr.Delegate(uid, gid); err != nil {
			destroyAll()
			return nil, err
		}
		if err := th.Delegate(uid, gid); err != nil {
			destroyAll()
			return nil, err
		}
		for _, h := range res {
			if err := h.Delegate(uid, gid); err != nil {
				destroyAll()
				return nil, err
			}
		}
	}

	c := container.New(canon, th, fr, res, a.ns, a.ops)

	if spec.VirtualHost {
		machine := types.NewMachineSpec()
		c.PopulateMachineSpec(machine)
		if err := c.Enter([]int{a.ops.GetTid()}); err != nil {
			destroyAll()
			return nil, err
		}
		if err := a.ns.NewNamespaceHandler(canon, spec); err != nil {
			destroyAll()
			return nil, err
		}
	}

	a.indexInsert(canon, c)
	return c, nil
}

// Destroy implements spec.md §4.I's depth-first destruction: every
// subcontainer (deepest first, reverse lexicographic order so deeper
// descendants of a shared prefix are destroyed before their ancestor) is
// killed and torn down before the target itself.
func (a *API) Destroy(ctx context.Context, c *container.Container) error {
	subs, err := c.ListSubcontainers(types.Recursive)
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(subs)))

	for _, name := range subs {
		sub, err := a.attach(name)
		if err != nil {
			return err
		}
		if err := a.destroyOne(ctx, name, sub); err != nil {
			return err
		}
	}
	return a.destroyOne(ctx, c.Name(), c)
}

func (a *API) destroyOne(ctx context.Context, name string, c *container.Container) error {
	a.locks.Lock(name)
	defer a.locks.Unlock(name)

	if err := c.KillAll(ctx); err != nil {
		return err
	}
	if err := c.DestroyAll(); err != nil {
		return err
	}
	a.indexDelete(name)
	return nil
}

// Detect delegates to the tasks handler factory to discover tid's current
// container (spec.md §4.I `detect`).
func (a *API) Detect(tid int) (string, error) {
	return a.tasksF.Detect(tid)
}

func (a *API) indexInsert(name string, c *container.Container) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.index, _, _ = a.index.Insert([]byte(name), c)
}

func (a *API) indexDelete(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.index, _, _ = a.index.Delete([]byte(name))
}

func intersect(requested map[types.ResourceKind]bool, supported []types.ResourceKind) []types.ResourceKind {
	var out []types.ResourceKind
	for _, kind := range supported {
		if requested[kind] {
			out = append(out, kind)
		}
	}
	return out
}
