// Package freezer implements Container.Pause/Resume (spec.md §4.J) via the
// freezer.state control file. Every container gets a freezer handler at
// creation time regardless of ContainerSpec content, since pause/resume is
// ambient container behavior rather than an opt-in resource (spec.md §3
// GLOSSARY "Freezer hierarchy").
package freezer

import (
	"fmt"

	"github.com/cgmgr/cgmgr/errdefs"
	"github.com/cgmgr/cgmgr/internal/cgroupfs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/internal/notify"
	"github.com/cgmgr/cgmgr/internal/resources"
	"github.com/cgmgr/cgmgr/types"
)

const fileState = "freezer.state"

const (
	stateFrozen = "FROZEN"
	stateThawed = "THAWED"
)

type Factory struct {
	cgroups *cgroupfs.Factory
	ops     kernelops.Ops
}

func NewFactory(cgroups *cgroupfs.Factory, ops kernelops.Ops) *Factory {
	return &Factory{cgroups: cgroups, ops: ops}
}

func (f *Factory) Kind() types.ResourceKind   { return "" }
func (f *Factory) Hierarchy() types.Hierarchy { return types.HierarchyFreezer }

func (f *Factory) newController(cgPath string, owns bool) (*cgroupfs.Controller, error) {
	mp, err := f.cgroups.Get(types.HierarchyFreezer, "/")
	if err != nil {
		return nil, err
	}
	return cgroupfs.NewController(types.HierarchyFreezer, mp, cgPath, owns, f.ops, nil), nil
}

func (f *Factory) Create(containerName string, _ *types.ContainerSpec) (*Handler, error) {
	cgPath, err := f.cgroups.Create(types.HierarchyFreezer, containerName)
	if err != nil {
		return nil, err
	}
	ctrl, err := f.newController(cgPath, true)
	if err != nil {
		return nil, err
	}
	return &Handler{Base: resources.NewBase(ctrl, true)}, nil
}

func (f *Factory) Get(containerName string) (*Handler, error) {
	cgPath, err := f.cgroups.Get(types.HierarchyFreezer, containerName)
	if err != nil {
		return nil, err
	}
	ctrl, err := f.newController(cgPath, true)
	if err != nil {
		return nil, err
	}
	return &Handler{Base: resources.NewBase(ctrl, true)}, nil
}

// Handler wraps a freezer Controller with Pause/Resume, in addition to the
// standard resources.Handler contract so it can sit in a container's
// handler list like any other resource.
type Handler struct {
	resources.Base
}

func (h *Handler) Pause() error  { return h.Base.Controller.SetParamString(fileState, stateFrozen) }
func (h *Handler) Resume() error { return h.Base.Controller.SetParamString(fileState, stateThawed) }

// State reads back the current freezer state, used to make a second Pause a
// no-op and to reject a Resume on a non-frozen container (spec.md §4.J
// invariants).
func (h *Handler) State() (string, error) {
	return h.Base.Controller.GetParamString(fileState)
}

func (h *Handler) Update(spec *types.ContainerSpec, _ types.UpdatePolicy) error { return nil }

func (h *Handler) Stats(_ types.StatsType, _ *types.ContainerStats) error { return nil }

func (h *Handler) Spec(_ *types.ContainerSpec) error { return nil }

func (h *Handler) RegisterNotification(eventName, args string, _ notify.Callback) (notify.Handle, error) {
	return resources.NoNotification(eventName, args)
}

var errNotFrozen = errdefs.FailedPrecondition(fmt.Errorf("container is not frozen"))

// ErrNotFrozen is returned by Container.Resume when the freezer state is not
// FROZEN.
func ErrNotFrozen() error { return errNotFrozen }
