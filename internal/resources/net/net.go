// Package net implements the resources.Handler/Factory contract for
// net_cls, an unowned hierarchy (spec.md §3): cgmgr tags classid on the
// shared cgroup but never creates or destroys its directories.
package net

import (
	"github.com/cgmgr/cgmgr/internal/cgroupfs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/internal/notify"
	"github.com/cgmgr/cgmgr/internal/resources"
	"github.com/cgmgr/cgmgr/types"
)

const fileClassID = "net_cls.classid"

type Factory struct {
	cgroups *cgroupfs.Factory
	ops     kernelops.Ops
}

func NewFactory(cgroups *cgroupfs.Factory, ops kernelops.Ops) *Factory {
	return &Factory{cgroups: cgroups, ops: ops}
}

func (f *Factory) Kind() types.ResourceKind   { return types.ResourceNetwork }
func (f *Factory) Hierarchy() types.Hierarchy { return types.HierarchyNet }

// Create on an unowned hierarchy attaches to whatever cgroup already exists
// at containerName (net_cls.Owns() == false, spec.md §3): cgmgr never
// mkdirs it. If no directory exists at containerName itself, Create fails
// with NotFound; unlike Get, it does not attach to an ancestor.
func (f *Factory) Create(containerName string, spec *types.ContainerSpec) (resources.Handler, error) {
	if _, err := f.cgroups.Get(types.HierarchyNet, containerName); err != nil {
		return nil, err
	}
	h, err := f.Get(containerName)
	if err != nil {
		return nil, err
	}
	if spec.Network != nil {
		if err := h.Update(spec, types.Replace); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (f *Factory) Get(containerName string) (resources.Handler, error) {
	name, err := resources.WalkToAncestor(f.cgroups, types.HierarchyNet, containerName)
	if err != nil {
		return nil, err
	}
	cgPath, err := f.cgroups.Get(types.HierarchyNet, name)
	if err != nil {
		return nil, err
	}
	mp, err := f.cgroups.Get(types.HierarchyNet, "/")
	if err != nil {
		return nil, err
	}
	// net_cls is an unowned hierarchy (package doc): the controller's owns
	// flag stays false unconditionally so Enter/Delegate/Destroy never
	// mkdir/rmdir it. Isolation for update's isolated/used classification
	// is a separate question — whether this cgroup happens to sit exactly
	// at containerName — and is tracked independently via NewBase.
	ctrl := cgroupfs.NewController(types.HierarchyNet, mp, cgPath, false, f.ops, nil)
	return &handler{Base: resources.NewBase(ctrl, name == containerName)}, nil
}

type handler struct {
	resources.Base
}

func (h *handler) Update(spec *types.ContainerSpec, _ types.UpdatePolicy) error {
	if spec == nil || spec.Network == nil {
		return nil
	}
	return h.Controller.SetParamInt(fileClassID, int64(spec.Network.ClassID))
}

func (h *handler) Stats(_ types.StatsType, _ *types.ContainerStats) error { return nil }

func (h *handler) Spec(out *types.ContainerSpec) error {
	classID, err := h.Controller.GetParamInt(fileClassID)
	if err != nil {
		return err
	}
	out.Network = &types.NetworkSpec{ClassID: uint32(classID)}
	return nil
}

func (h *handler) RegisterNotification(eventName, args string, _ notify.Callback) (notify.Handle, error) {
	return resources.NoNotification(eventName, args)
}
