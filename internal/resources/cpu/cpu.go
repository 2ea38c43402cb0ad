// Package cpu implements the resources.Handler/Factory contract for the cpu
// hierarchy: cpu.shares, cpu.cfs_quota_us, cpu.cfs_period_us (spec.md §4.G).
package cpu

import (
	"github.com/cgmgr/cgmgr/internal/cgroupfs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/internal/notify"
	"github.com/cgmgr/cgmgr/internal/resources"
	"github.com/cgmgr/cgmgr/types"
)

const (
	fileShares   = "cpu.shares"
	fileQuotaUS  = "cpu.cfs_quota_us"
	filePeriodUS = "cpu.cfs_period_us"
)

// Factory creates and attaches cpu Handlers.
type Factory struct {
	cgroups *cgroupfs.Factory
	ops     kernelops.Ops
}

func NewFactory(cgroups *cgroupfs.Factory, ops kernelops.Ops) *Factory {
	return &Factory{cgroups: cgroups, ops: ops}
}

func (f *Factory) Kind() types.ResourceKind    { return types.ResourceCPU }
func (f *Factory) Hierarchy() types.Hierarchy  { return types.HierarchyCPU }

func (f *Factory) Create(containerName string, spec *types.ContainerSpec) (resources.Handler, error) {
	cgPath, err := f.cgroups.Create(types.HierarchyCPU, containerName)
	if err != nil {
		return nil, err
	}
	mp, err := f.cgroups.Get(types.HierarchyCPU, "/")
	if err != nil {
		return nil, err
	}
	h := &handler{Base: resources.NewBase(cgroupfs.NewController(types.HierarchyCPU, mp, cgPath, true, f.ops, nil), true)}
	if spec.CPU != nil {
		if err := h.Update(spec, types.Replace); err != nil {
			h.Destroy()
			return nil, err
		}
	}
	return h, nil
}

func (f *Factory) Get(containerName string) (resources.Handler, error) {
	name, err := resources.WalkToAncestor(f.cgroups, types.HierarchyCPU, containerName)
	if err != nil {
		return nil, err
	}
	cgPath, err := f.cgroups.Get(types.HierarchyCPU, name)
	if err != nil {
		return nil, err
	}
	mp, err := f.cgroups.Get(types.HierarchyCPU, "/")
	if err != nil {
		return nil, err
	}
	isolated := name == containerName
	return &handler{Base: resources.NewBase(cgroupfs.NewController(types.HierarchyCPU, mp, cgPath, isolated, f.ops, nil), isolated)}, nil
}

type handler struct {
	resources.Base
}

// Update writes cpu.shares/cfs_quota_us/cfs_period_us. Under Diff, unset
// fields in spec are left untouched; under Replace, unset fields are written
// back to their cgroup defaults (0 shares is invalid so Replace leaves
// shares alone when nil, matching the kernel's own "don't touch" semantics
// for that single exception).
func (h *handler) Update(spec *types.ContainerSpec, policy types.UpdatePolicy) error {
	if spec == nil || spec.CPU == nil {
		return nil
	}
	c := spec.CPU
	if c.Shares != nil {
		if err := h.Controller.SetParamInt(fileShares, int64(*c.Shares)); err != nil {
			return err
		}
	}
	if c.PeriodUS != nil {
		if err := h.Controller.SetParamInt(filePeriodUS, int64(*c.PeriodUS)); err != nil {
			return err
		}
	} else if policy == types.Replace {
		// 100000us is the kernel's default CFS period.
		if err := h.Controller.SetParamInt(filePeriodUS, 100000); err != nil {
			return err
		}
	}
	if c.QuotaUS != nil {
		if err := h.Controller.SetParamInt(fileQuotaUS, *c.QuotaUS); err != nil {
			return err
		}
	} else if policy == types.Replace {
		if err := h.Controller.SetParamInt(fileQuotaUS, -1); err != nil {
			return err
		}
	}
	return nil
}

func (h *handler) Stats(_ types.StatsType, out *types.ContainerStats) error {
	shares, err := h.Controller.GetParamInt(fileShares)
	if err != nil {
		return err
	}
	out.CPU = &types.CPUStats{Shares: uint64(shares)}
	return nil
}

func (h *handler) Spec(out *types.ContainerSpec) error {
	shares, err := h.Controller.GetParamInt(fileShares)
	if err != nil {
		return err
	}
	period, err := h.Controller.GetParamInt(filePeriodUS)
	if err != nil {
		return err
	}
	quota, err := h.Controller.GetParamInt(fileQuotaUS)
	if err != nil {
		return err
	}
	u, p := uint64(shares), uint64(period)
	out.CPU = &types.CPUSpec{Shares: &u, PeriodUS: &p, QuotaUS: &quota}
	return nil
}

func (h *handler) RegisterNotification(eventName, args string, _ notify.Callback) (notify.Handle, error) {
	return resources.NoNotification(eventName, args)
}
