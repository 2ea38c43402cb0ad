// Package memory implements the resources.Handler/Factory contract for the
// memory hierarchy, including memory.oom_control eventfd registration
// (spec.md §4.G, §4.F).
package memory

import (
	"fmt"

	"dario.cat/mergo"
	units "github.com/docker/go-units"

	"github.com/cgmgr/cgmgr/internal/cgroupfs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/internal/notify"
	"github.com/cgmgr/cgmgr/internal/resources"
	"github.com/cgmgr/cgmgr/types"
)

const (
	fileLimit      = "memory.limit_in_bytes"
	fileSoftLimit  = "memory.soft_limit_in_bytes"
	fileSwappiness = "memory.swappiness"
	fileMaxUsage   = "memory.max_usage_in_bytes"
	fileUsage      = "memory.usage_in_bytes"
	fileFailCnt    = "memory.failcnt"
	fileOOMControl = "memory.oom_control"
)

type Factory struct {
	cgroups *cgroupfs.Factory
	notify  cgroupfs.Notifier
	ops     kernelops.Ops
}

func NewFactory(cgroups *cgroupfs.Factory, notifier cgroupfs.Notifier, ops kernelops.Ops) *Factory {
	return &Factory{cgroups: cgroups, notify: notifier, ops: ops}
}

func (f *Factory) Kind() types.ResourceKind   { return types.ResourceMemory }
func (f *Factory) Hierarchy() types.Hierarchy { return types.HierarchyMemory }

func (f *Factory) newController(cgPath string, owns bool) (*cgroupfs.Controller, error) {
	mp, err := f.cgroups.Get(types.HierarchyMemory, "/")
	if err != nil {
		return nil, err
	}
	return cgroupfs.NewController(types.HierarchyMemory, mp, cgPath, owns, f.ops, f.notify), nil
}

func (f *Factory) Create(containerName string, spec *types.ContainerSpec) (resources.Handler, error) {
	cgPath, err := f.cgroups.Create(types.HierarchyMemory, containerName)
	if err != nil {
		return nil, err
	}
	ctrl, err := f.newController(cgPath, true)
	if err != nil {
		return nil, err
	}
	h := &handler{Base: resources.NewBase(ctrl, true)}
	if spec.Memory != nil {
		if err := h.Update(spec, types.Replace); err != nil {
			h.Destroy()
			return nil, err
		}
	}
	return h, nil
}

func (f *Factory) Get(containerName string) (resources.Handler, error) {
	name, err := resources.WalkToAncestor(f.cgroups, types.HierarchyMemory, containerName)
	if err != nil {
		return nil, err
	}
	cgPath, err := f.cgroups.Get(types.HierarchyMemory, name)
	if err != nil {
		return nil, err
	}
	isolated := name == containerName
	ctrl, err := f.newController(cgPath, isolated)
	if err != nil {
		return nil, err
	}
	return &handler{Base: resources.NewBase(ctrl, isolated)}, nil
}

type handler struct {
	resources.Base
}

// Update applies MemorySpec. Under Diff, missing Limit/SoftLimit/Swappiness
// are first filled in from the current on-disk values via mergo before
// validation and write, matching spec.md §4.G's DIFF definition ("fills
// missing fields... from current state, validates, then applies").
func (h *handler) Update(spec *types.ContainerSpec, policy types.UpdatePolicy) error {
	if spec == nil || spec.Memory == nil {
		return nil
	}
	want := *spec.Memory

	if policy == types.Diff {
		current, err := h.readSpec()
		if err != nil {
			return err
		}
		if err := mergo.Merge(&want, current); err != nil {
			return fmt.Errorf("merging current memory spec: %w", err)
		}
	}

	if want.Limit != "" {
		n, err := units.RAMInBytes(want.Limit)
		if err != nil {
			return err
		}
		if err := h.Controller.SetParamInt(fileLimit, n); err != nil {
			return err
		}
	}
	if want.SoftLimit != "" {
		n, err := units.RAMInBytes(want.SoftLimit)
		if err != nil {
			return err
		}
		if err := h.Controller.SetParamInt(fileSoftLimit, n); err != nil {
			return err
		}
	}
	if want.Swappiness != nil {
		if err := h.Controller.SetParamInt(fileSwappiness, int64(*want.Swappiness)); err != nil {
			return err
		}
	}
	return nil
}

func (h *handler) readSpec() (types.MemorySpec, error) {
	limit, err := h.Controller.GetParamInt(fileLimit)
	if err != nil {
		return types.MemorySpec{}, err
	}
	soft, err := h.Controller.GetParamInt(fileSoftLimit)
	if err != nil {
		return types.MemorySpec{}, err
	}
	swap, err := h.Controller.GetParamInt(fileSwappiness)
	if err != nil {
		return types.MemorySpec{}, err
	}
	u := uint64(swap)
	return types.MemorySpec{
		Limit:      units.BytesSize(float64(limit)),
		SoftLimit:  units.BytesSize(float64(soft)),
		Swappiness: &u,
	}, nil
}

func (h *handler) Stats(statsType types.StatsType, out *types.ContainerStats) error {
	usage, err := h.Controller.GetParamInt(fileUsage)
	if err != nil {
		return err
	}
	limit, err := h.Controller.GetParamInt(fileLimit)
	if err != nil {
		return err
	}
	stats := &types.MemoryStats{UsageBytes: uint64(usage), LimitBytes: uint64(limit)}
	if statsType == types.StatsFull {
		maxUsage, err := h.Controller.GetParamInt(fileMaxUsage)
		if err != nil {
			return err
		}
		failcnt, err := h.Controller.GetParamInt(fileFailCnt)
		if err != nil {
			return err
		}
		stats.MaxUsageBytes = uint64(maxUsage)
		stats.FailCount = uint64(failcnt)
	}
	out.Memory = stats
	return nil
}

func (h *handler) Spec(out *types.ContainerSpec) error {
	s, err := h.readSpec()
	if err != nil {
		return err
	}
	out.Memory = &s
	return nil
}

// RegisterNotification supports "oom", the only event memory.oom_control
// exposes (spec.md §4.F, original_source/lmctfy/eventfd_notifications.h).
func (h *handler) RegisterNotification(eventName, args string, callback notify.Callback) (notify.Handle, error) {
	if eventName != "oom" {
		return resources.NoNotification(eventName, args)
	}
	return h.Controller.RegisterNotification(fileOOMControl, args, callback)
}
