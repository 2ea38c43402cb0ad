// Package container implements the Container object (spec.md §4.J): the
// per-name handle combining a tasks handler, a freezer handler, and
// whichever resource handlers its spec requested.
package container

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/moby/sys/signal"
	"golang.org/x/sync/errgroup"

	"github.com/cgmgr/cgmgr/errdefs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/internal/namespace"
	"github.com/cgmgr/cgmgr/internal/notify"
	"github.com/cgmgr/cgmgr/internal/resources"
	"github.com/cgmgr/cgmgr/internal/resources/freezer"
	"github.com/cgmgr/cgmgr/internal/tasks"
	"github.com/cgmgr/cgmgr/types"
)

// Tasks is the subset of *tasks.Handler Container uses, named so tests can
// stub it.
type Tasks interface {
	ContainerName() string
	Destroy() error
	TrackTasks(tids []int) error
	Delegate(uid, gid int) error
	PopulateMachineSpec(spec *types.MachineSpec)
	ListSubcontainers(listType types.ListType) ([]string, error)
	ListProcesses(listType types.ListType) ([]int, error)
	ListThreads(listType types.ListType) ([]int, error)
}

var _ Tasks = (*tasks.Handler)(nil)

// Container is the object returned by ContainerApi.Get/Create (spec.md
// §4.J). It owns its tasks handler, its freezer handler, and every resource
// handler its spec named at creation time; all are destroyed together by
// DestroyAll, which containerapi calls from its depth-first destroy walk
// (spec.md §4.I).
type Container struct {
	name      string
	tasks     Tasks
	freezer   *freezer.Handler
	resources map[types.ResourceKind]resources.Handler
	ns        namespace.Collaborator
	ops       kernelops.Ops
}

// New assembles a Container from its already-created parts. Called by
// containerapi once every handler in spec.md §4.I step 4's scan has
// succeeded.
func New(name string, t Tasks, fr *freezer.Handler, res map[types.ResourceKind]resources.Handler, ns namespace.Collaborator, ops kernelops.Ops) *Container {
	if ns == nil {
		ns = namespace.NoOp{}
	}
	return &Container{name: name, tasks: t, freezer: fr, resources: res, ns: ns, ops: ops}
}

func (c *Container) Name() string { return c.name }

// sortedKinds returns the resource kinds this container holds handlers
// for, sorted by kind name; handlersInOrder, and through it Enter, Stats,
// Spec, DestroyAll and RegisterNotification's scan, use this order.
func (c *Container) sortedKinds() []types.ResourceKind {
	kinds := make([]types.ResourceKind, 0, len(c.resources))
	for k := range c.resources {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (c *Container) handlersInOrder() []resources.Handler {
	kinds := c.sortedKinds()
	out := make([]resources.Handler, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, c.resources[k])
	}
	return out
}

// Update applies spec to this container's resource handlers under spec.md
// §4.J's isolated/used classification: isolated is the set of resource
// kinds whose handler's controller lives at this container's own name
// rather than an inherited ancestor's (resources.Handler.Isolated); used is
// the set of kinds spec references (types.ContainerSpec.Resources). Diff
// requires used ⊆ isolated, since diffing a resource this container doesn't
// own outright would silently reach into an ancestor's cgroup. Replace
// additionally requires isolated = used: a Replace that omits an isolated
// resource would leave it unmodified rather than reset to defaults, which
// errdefs/defs.go names as the motivating InvalidParameter case. Only
// handlers whose kind is in used are updated.
func (c *Container) Update(spec *types.ContainerSpec, policy types.UpdatePolicy) error {
	used := spec.Resources()
	isolated := make(map[types.ResourceKind]bool, len(c.resources))
	for kind, h := range c.resources {
		if h.Isolated() {
			isolated[kind] = true
		}
	}

	for kind := range used {
		if !isolated[kind] {
			return errdefs.InvalidParameter(fmt.Errorf("update: resource %q is not isolated to container %s", kind, c.name))
		}
	}
	if policy == types.Replace {
		for kind := range isolated {
			if !used[kind] {
				return errdefs.InvalidParameter(fmt.Errorf("replace: omits isolated resource %q for container %s", kind, c.name))
			}
		}
	}

	for _, kind := range c.sortedKinds() {
		if !used[kind] {
			continue
		}
		if err := c.resources[kind].Update(spec, policy); err != nil {
			return err
		}
	}
	return nil
}

// Enter ensures the container still exists and that none of tids already
// belong to a different virtualization scope, then enters each tid into
// the freezer, then the tasks handler, then every resource handler's
// controller, in that order (spec.md §4.J).
func (c *Container) Enter(tids []int) error {
	if _, err := c.tasks.ListProcesses(types.Self); err != nil {
		return err
	}
	for _, tid := range tids {
		different, err := c.ns.InDifferentScope(tid)
		if err != nil {
			return err
		}
		if different {
			return errdefs.FailedPrecondition(fmt.Errorf("tid %d is already in a different virtualization scope", tid))
		}
	}

	if err := c.freezer.Enter(tids); err != nil {
		return err
	}
	if err := c.tasks.TrackTasks(tids); err != nil {
		return err
	}
	for _, h := range c.handlersInOrder() {
		if err := h.Enter(tids); err != nil {
			return err
		}
	}
	return nil
}

// Run launches name+args as the container's root process via the namespace
// collaborator, then enters the resulting pid into every handler.
func (c *Container) Run(ctx context.Context, name string, args []string) (int, error) {
	cmd, err := c.ns.Run(ctx, name, args)
	if err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	if err := c.Enter([]int{pid}); err != nil {
		return 0, err
	}
	return pid, nil
}

// Exec runs name+args inside the container without becoming its root
// process.
func (c *Container) Exec(ctx context.Context, name string, args []string) (int, error) {
	cmd, err := c.ns.Exec(ctx, name, args)
	if err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	if err := c.Enter([]int{pid}); err != nil {
		return 0, err
	}
	return pid, nil
}

// Stats aggregates every resource handler's Stats into one record
// (spec.md §4.J).
func (c *Container) Stats(statsType types.StatsType) (*types.ContainerStats, error) {
	out := &types.ContainerStats{}
	for _, h := range c.handlersInOrder() {
		if err := h.Stats(statsType, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Spec reads back every resource handler's current configuration.
func (c *Container) Spec() (*types.ContainerSpec, error) {
	out := &types.ContainerSpec{Owner: types.NoOwner, OwnerGroup: types.NoGroup}
	for _, h := range c.handlersInOrder() {
		if err := h.Spec(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Pause freezes every task in the container via the freezer hierarchy.
// Pausing an already-frozen container is a no-op success; Resume, by
// contrast, fails on a container that is not frozen.
func (c *Container) Pause() error {
	state, err := c.freezer.State()
	if err != nil {
		return mapFreezerUnavailable(err)
	}
	if state == "FROZEN" {
		return nil
	}
	return mapFreezerUnavailable(c.freezer.Pause())
}

// Resume thaws the container. FailedPrecondition if it was never frozen.
func (c *Container) Resume() error {
	state, err := c.freezer.State()
	if err != nil {
		return mapFreezerUnavailable(err)
	}
	if state != "FROZEN" {
		return freezer.ErrNotFrozen()
	}
	return mapFreezerUnavailable(c.freezer.Resume())
}

// mapFreezerUnavailable implements spec.md §4.J's pause/resume contract:
// "If the freezer is unavailable on this host, map NotFound to
// FailedPrecondition with a descriptive message".
func mapFreezerUnavailable(err error) error {
	if errdefs.IsNotFound(err) {
		return errdefs.FailedPrecondition(fmt.Errorf("freezer not supported on this host: %w", err))
	}
	return err
}

func (c *Container) ListSubcontainers(listType types.ListType) ([]string, error) {
	return c.tasks.ListSubcontainers(listType)
}

func (c *Container) ListProcesses(listType types.ListType) ([]int, error) {
	return c.tasks.ListProcesses(listType)
}

func (c *Container) ListThreads(listType types.ListType) ([]int, error) {
	return c.tasks.ListThreads(listType)
}

// DefaultKillRetries is N in spec.md §4.J's kill_all: "sends SIGKILL to
// each, sleeps, repeats up to N times... until the list is empty".
const DefaultKillRetries = 3

const interKillDelay = 100 * time.Millisecond

// KillAll sends SIGKILL to every process in the container, retrying up to
// DefaultKillRetries times with a short sleep between rounds so tasks that
// ignored the first signal (or re-forked) are caught, then does the same
// bounded-retry pass over "tourist" threads — tids present in ListThreads
// but absent from ListProcesses. Any tourist still alive after that second
// pass is FailedPrecondition with the remaining count (spec.md §4.J, §8
// end-to-end scenario 4: one retry round observed for processes, one for
// threads, with the inter-kill sleep between rounds).
func (c *Container) KillAll(ctx context.Context) error {
	sigKill := int(signal.SignalMap["KILL"])

	if err := c.killUntilEmpty(ctx, sigKill, c.tasks.ListProcesses); err != nil {
		return err
	}

	listTourists := func(types.ListType) ([]int, error) { return c.touristThreads() }
	if err := c.killUntilEmpty(ctx, sigKill, listTourists); err != nil {
		return err
	}

	remaining, err := c.touristThreads()
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return errdefs.FailedPrecondition(fmt.Errorf("%d tasks survived kill_all", len(remaining)))
	}
	return nil
}

func (c *Container) touristThreads() ([]int, error) {
	procs, err := c.tasks.ListProcesses(types.Recursive)
	if err != nil {
		return nil, err
	}
	threads, err := c.tasks.ListThreads(types.Recursive)
	if err != nil {
		return nil, err
	}
	isProc := make(map[int]bool, len(procs))
	for _, p := range procs {
		isProc[p] = true
	}
	var tourists []int
	for _, t := range threads {
		if !isProc[t] {
			tourists = append(tourists, t)
		}
	}
	return tourists, nil
}

func (c *Container) killUntilEmpty(ctx context.Context, sig int, list func(types.ListType) ([]int, error)) error {
	for attempt := 0; attempt < DefaultKillRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		tids, err := list(types.Recursive)
		if err != nil {
			return err
		}
		if len(tids) == 0 {
			return nil
		}
		for _, tid := range tids {
			if err := c.ops.Kill(tid, sig); err != nil && !errdefs.IsNotFound(err) {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interKillDelay):
		}
	}
	return nil
}

// RegisterNotification scans every resource handler in a stable order,
// returning the first registration that is not NotFound (spec.md §4.F's
// "unsupported event" contract is per-resource, so the container layer is
// what knows which handler a given event name belongs to).
func (c *Container) RegisterNotification(eventName, args string, callback notify.Callback) (notify.Handle, error) {
	handlers := append(c.handlersInOrder(), c.freezer)
	for _, h := range handlers {
		handle, err := h.RegisterNotification(eventName, args, callback)
		if err == nil {
			return handle, nil
		}
		if !errdefs.IsNotFound(err) {
			return 0, err
		}
	}
	return 0, errdefs.InvalidParameter(fmt.Errorf("no handler for event %q in container %s", eventName, c.name))
}

// DestroyAll destroys this container's resource handlers, then its tasks
// handler, and finally its freezer handler, in that order (spec.md §4.I
// destruction). Resource handlers are independent of each other, so they
// are destroyed concurrently via errgroup: every handler's Destroy runs even
// if another fails, and the first failure is returned (SPEC_FULL.md §2.1's
// golang.org/x/sync wiring); the tasks and freezer cgroups are destroyed only once every
// resource handler has settled, and only if all of them succeeded.
func (c *Container) DestroyAll() error {
	var g errgroup.Group
	for _, h := range c.handlersInOrder() {
		h := h
		g.Go(h.Destroy)
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := c.tasks.Destroy(); err != nil {
		return err
	}
	return c.freezer.Destroy()
}

func (c *Container) PopulateMachineSpec(spec *types.MachineSpec) {
	c.tasks.PopulateMachineSpec(spec)
	c.freezer.PopulateMachineSpec(spec)
	for _, h := range c.handlersInOrder() {
		h.PopulateMachineSpec(spec)
	}
	c.ns.PopulateMachineSpec(spec)
}
