// Package blkio implements the resources.Handler/Factory contract for the
// blkio hierarchy: weight and per-device throttling (spec.md §4.G).
package blkio

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cgmgr/cgmgr/internal/cgroupfs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/internal/notify"
	"github.com/cgmgr/cgmgr/internal/resources"
	"github.com/cgmgr/cgmgr/types"
)

const (
	fileWeight         = "blkio.weight"
	fileThrottleRead   = "blkio.throttle.read_bps_device"
	fileServicedBytes  = "blkio.throttle.io_service_bytes"
)

type Factory struct {
	cgroups *cgroupfs.Factory
	ops     kernelops.Ops
}

func NewFactory(cgroups *cgroupfs.Factory, ops kernelops.Ops) *Factory {
	return &Factory{cgroups: cgroups, ops: ops}
}

func (f *Factory) Kind() types.ResourceKind   { return types.ResourceIO }
func (f *Factory) Hierarchy() types.Hierarchy { return types.HierarchyIO }

func (f *Factory) controller(cgPath string, owns bool) (*cgroupfs.Controller, error) {
	mp, err := f.cgroups.Get(types.HierarchyIO, "/")
	if err != nil {
		return nil, err
	}
	return cgroupfs.NewController(types.HierarchyIO, mp, cgPath, owns, f.ops, nil), nil
}

func (f *Factory) Create(containerName string, spec *types.ContainerSpec) (resources.Handler, error) {
	cgPath, err := f.cgroups.Create(types.HierarchyIO, containerName)
	if err != nil {
		return nil, err
	}
	ctrl, err := f.controller(cgPath, true)
	if err != nil {
		return nil, err
	}
	h := &handler{Base: resources.NewBase(ctrl, true)}
	if spec.IO != nil {
		if err := h.Update(spec, types.Replace); err != nil {
			h.Destroy()
			return nil, err
		}
	}
	return h, nil
}

func (f *Factory) Get(containerName string) (resources.Handler, error) {
	name, err := resources.WalkToAncestor(f.cgroups, types.HierarchyIO, containerName)
	if err != nil {
		return nil, err
	}
	cgPath, err := f.cgroups.Get(types.HierarchyIO, name)
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

func (h *handler) Update(spec *types.ContainerSpec, _ types.UpdatePolicy) error {
	if spec == nil || spec.IO == nil {
		return nil
	}
	io := spec.IO
	if io.Weight != nil {
		if err := h.Controller.SetParamInt(fileWeight, int64(*io.Weight)); err != nil {
			return err
		}
	}
	devices := make([]string, 0, len(io.ThrottleRead))
	for dev := range io.ThrottleRead {
		devices = append(devices, dev)
	}
	sort.Strings(devices)
	for _, dev := range devices {
		line := fmt.Sprintf("%s %d", dev, io.ThrottleRead[dev])
		if err := h.Controller.SetParamString(fileThrottleRead, line); err != nil {
			return err
		}
	}
	return nil
}

func (h *handler) Stats(_ types.StatsType, out *types.ContainerStats) error {
	lines, err := h.Controller.GetParamLines(fileServicedBytes)
	if err != nil {
		return err
	}
	serviced := map[string]uint64{}
	for _, l := range lines {
		fields := strings.Fields(l)
		if len(fields) != 3 {
			continue
		}
		var n uint64
		if _, err := fmt.Sscanf(fields[2], "%d", &n); err == nil {
			serviced[fields[0]] += n
		}
	}
	out.IO = &types.IOStats{ServicedBytes: serviced}
	return nil
}

func (h *handler) Spec(out *types.ContainerSpec) error {
	weight, err := h.Controller.GetParamInt(fileWeight)
	if err != nil {
		return err
	}
	w := uint16(weight)
	out.IO = &types.IOSpec{Weight: &w}
	return nil
}

func (h *handler) RegisterNotification(eventName, args string, _ notify.Callback) (notify.Handle, error) {
	return resources.NoNotification(eventName, args)
}
