// Package perfevent backs the monitoring resource handler with a perf_event
// cgroup and exports its counters to prometheus (spec.md §4.G, SPEC_FULL
// §2.1's prometheus wiring).
package perfevent

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cgmgr/cgmgr/internal/cgroupfs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/internal/notify"
	"github.com/cgmgr/cgmgr/internal/resources"
	"github.com/cgmgr/cgmgr/types"
)

var perfEventCounter = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "cgmgr",
	Subsystem: "perf_event",
	Name:      "counter_value",
	Help:      "Last observed perf_event counter value per container and event name.",
}, []string{"container", "event"})

func init() {
	prometheus.MustRegister(perfEventCounter)
}

type Factory struct {
	cgroups *cgroupfs.Factory
	ops     kernelops.Ops
}

func NewFactory(cgroups *cgroupfs.Factory, ops kernelops.Ops) *Factory {
	return &Factory{cgroups: cgroups, ops: ops}
}

func (f *Factory) Kind() types.ResourceKind   { return types.ResourceMonitoring }
func (f *Factory) Hierarchy() types.Hierarchy { return types.HierarchyPerfEvent }

func (f *Factory) newController(cgPath string, owns bool) (*cgroupfs.Controller, error) {
	mp, err := f.cgroups.Get(types.HierarchyPerfEvent, "/")
	if err != nil {
		return nil, err
	}
	return cgroupfs.NewController(types.HierarchyPerfEvent, mp, cgPath, owns, f.ops, nil), nil
}

func (f *Factory) Create(containerName string, spec *types.ContainerSpec) (resources.Handler, error) {
	cgPath, err := f.cgroups.Create(types.HierarchyPerfEvent, containerName)
	if err != nil {
		return nil, err
	}
	ctrl, err := f.newController(cgPath, true)
	if err != nil {
		return nil, err
	}
	h := &handler{Base: resources.NewBase(ctrl, true), containerName: containerName}
	if spec.Monitoring != nil && spec.Monitoring.Enable {
		h.enabled = true
	}
	return h, nil
}

func (f *Factory) Get(containerName string) (resources.Handler, error) {
	name, err := resources.WalkToAncestor(f.cgroups, types.HierarchyPerfEvent, containerName)
	if err != nil {
		return nil, err
	}
	cgPath, err := f.cgroups.Get(types.HierarchyPerfEvent, name)
	if err != nil {
		return nil, err
	}
	isolated := name == containerName
	ctrl, err := f.newController(cgPath, isolated)
	if err != nil {
		return nil, err
	}
	return &handler{Base: resources.NewBase(ctrl, isolated), containerName: containerName}, nil
}

type handler struct {
	resources.Base
	containerName string
	enabled       bool
}

func (h *handler) Update(spec *types.ContainerSpec, _ types.UpdatePolicy) error {
	if spec == nil || spec.Monitoring == nil {
		return nil
	}
	h.enabled = spec.Monitoring.Enable
	return nil
}

// Stats reads perf_event.counters (one "<name> <value>" line per counter,
// written by the kernel's perf_event cgroup subsystem) and mirrors every
// value into the prometheus gauge, keyed by container and event name, so
// StatsFull queries and /metrics scrapes stay consistent.
func (h *handler) Stats(statsType types.StatsType, out *types.ContainerStats) error {
	if !h.enabled {
		return nil
	}
	lines, err := h.Controller.GetParamLines("perf_event.counters")
	if err != nil {
		return err
	}
	counters := map[string]uint64{}
	for _, l := range lines {
		var name string
		var value uint64
		if _, err := fmt.Sscan(l, &name, &value); err == nil {
			counters[name] = value
			perfEventCounter.WithLabelValues(h.containerName, name).Set(float64(value))
		}
	}
	if statsType == types.StatsFull {
		out.Monitoring = &types.MonitoringStats{PerfEvents: counters}
	} else {
		out.Monitoring = &types.MonitoringStats{}
	}
	return nil
}

func (h *handler) Spec(out *types.ContainerSpec) error {
	out.Monitoring = &types.MonitoringSpec{Enable: h.enabled}
	return nil
}

func (h *handler) RegisterNotification(eventName, args string, _ notify.Callback) (notify.Handle, error) {
	return resources.NoNotification(eventName, args)
}
