// Package device implements the resources.Handler/Factory contract for the
// devices hierarchy: devices.allow/devices.deny allow-list rules
// (spec.md §4.G).
package device

import (
	"fmt"

	"github.com/cgmgr/cgmgr/internal/cgroupfs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/internal/notify"
	"github.com/cgmgr/cgmgr/internal/resources"
	"github.com/cgmgr/cgmgr/types"
)

const (
	fileAllow = "devices.allow"
	fileDeny  = "devices.deny"
	fileList  = "devices.list"
)

type Factory struct {
	cgroups *cgroupfs.Factory
	ops     kernelops.Ops
}

func NewFactory(cgroups *cgroupfs.Factory, ops kernelops.Ops) *Factory {
	return &Factory{cgroups: cgroups, ops: ops}
}

func (f *Factory) Kind() types.ResourceKind   { return types.ResourceDevice }
func (f *Factory) Hierarchy() types.Hierarchy { return types.HierarchyDevice }

func (f *Factory) controller(cgPath string, owns bool) (*cgroupfs.Controller, error) {
	mp, err := f.cgroups.Get(types.HierarchyDevice, "/")
	if err != nil {
		return nil, err
	}
	return cgroupfs.NewController(types.HierarchyDevice, mp, cgPath, owns, f.ops, nil), nil
}

func (f *Factory) Create(containerName string, spec *types.ContainerSpec) (resources.Handler, error) {
	cgPath, err := f.cgroups.Create(types.HierarchyDevice, containerName)
	if err != nil {
		return nil, err
	}
	ctrl, err := f.controller(cgPath, true)
	if err != nil {
		return nil, err
	}
	h := &handler{Base: resources.NewBase(ctrl, true)}
	if spec.Device != nil {
		if err := h.Update(spec, types.Replace); err != nil {
			h.Destroy()
			return nil, err
		}
	}
	return h, nil
}

func (f *Factory) Get(containerName string) (resources.Handler, error) {
	name, err := resources.WalkToAncestor(f.cgroups, types.HierarchyDevice, containerName)
	if err != nil {
		return nil, err
	}
	cgPath, err := f.cgroups.Get(types.HierarchyDevice, name)
	if err != nil {
		return nil, err
	}
	isolated := name == containerName
	ctrl, err := f.controller(cgPath, isolated)
	if err != nil {
		return nil, err
	}
	return &handler{Base: resources.NewBase(ctrl, isolated)}, nil
}

type handler struct {
	resources.Base
}

func ruleLine(r types.DeviceRule) string {
	major := "*"
	if r.Major >= 0 {
		major = fmt.Sprintf("%d", r.Major)
	}
	minor := "*"
	if r.Minor >= 0 {
		minor = fmt.Sprintf("%d", r.Minor)
	}
	return fmt.Sprintf("%s %s:%s %s", r.Type, major, minor, r.Permissions)
}

func (h *handler) Update(spec *types.ContainerSpec, _ types.UpdatePolicy) error {
	if spec == nil || spec.Device == nil {
		return nil
	}
	for _, r := range spec.Device.Deny {
		if err := h.Controller.SetParamString(fileDeny, ruleLine(r)); err != nil {
			return err
		}
	}
	for _, r := range spec.Device.Allow {
		if err := h.Controller.SetParamString(fileAllow, ruleLine(r)); err != nil {
			return err
		}
	}
	return nil
}

func (h *handler) Stats(_ types.StatsType, _ *types.ContainerStats) error { return nil }

func (h *handler) Spec(out *types.ContainerSpec) error {
	lines, err := h.Controller.GetParamLines(fileList)
	if err != nil {
		return err
	}
	spec := &types.DeviceSpec{}
	for _, l := range lines {
		var kind, majorMinor, perms string
		if _, err := fmt.Sscan(l, &kind, &majorMinor, &perms); err != nil {
			continue
		}
		spec.Allow = append(spec.Allow, types.DeviceRule{Type: kind, Permissions: perms, Major: -1, Minor: -1})
	}
	out.Device = spec
	return nil
}

func (h *handler) RegisterNotification(eventName, args string, _ notify.Callback) (notify.Handle, error) {
	return resources.NoNotification(eventName, args)
}
