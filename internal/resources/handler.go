// Package resources declares the closed interface every per-resource
// handler variant (cpu, memory, freezer, blkio, net, perfevent for
// monitoring, device) implements, replacing the deep polymorphism spec.md's Design
// Notes §9 warns against with "a small closed trait... plus a registry
// keyed by resource kind".
package resources

import (
	"fmt"
	"path"

	"github.com/cgmgr/cgmgr/errdefs"
	"github.com/cgmgr/cgmgr/internal/cgroupfs"
	"github.com/cgmgr/cgmgr/internal/notify"
	"github.com/cgmgr/cgmgr/types"
)

// Handler is the contract spec.md §4.G and Design Notes §9 name:
// Create/Update/Stats/Spec/Destroy/Enter/Delegate/PopulateMachineSpec/
// RegisterNotification.
type Handler interface {
	// Update applies spec under policy (spec.md §4.G DIFF/REPLACE).
	Update(spec *types.ContainerSpec, policy types.UpdatePolicy) error
	// Stats fills the subsection of out this handler owns.
	Stats(statsType types.StatsType, out *types.ContainerStats) error
	// Spec reads back current configuration into the subsection of out
	// this handler owns.
	Spec(out *types.ContainerSpec) error
	// Enter enters each tid into every owned controller.
	Enter(tids []int) error
	// Delegate delegates every owned controller.
	Delegate(uid, gid int) error
	// Destroy destroys every owned controller in reverse creation order;
	// on success the handler is consumed.
	Destroy() error
	// PopulateMachineSpec appends this handler's mount info.
	PopulateMachineSpec(spec *types.MachineSpec)
	// RegisterNotification returns NotFound when eventName is not one this
	// resource handles, so the container layer can scan handlers in order.
	RegisterNotification(eventName, args string, callback notify.Callback) (notify.Handle, error)
	// Isolated reports whether this handler's controller lives at its own
	// container's name, as opposed to being attached to an ancestor's
	// cgroup under the attachment-to-parent rule (spec.md §4.J's update
	// classification: "isolated" vs "used").
	Isolated() bool
}

// Factory creates Handlers for one resource kind and attaches to existing
// ones, implementing the "attachment-to-parent rule" of spec.md §4.G: Get
// walks toward the root when no cgroup exists at containerName, returning
// the nearest ancestor's handler; NotFound at "/" is fatal.
type Factory interface {
	Kind() types.ResourceKind
	Hierarchy() types.Hierarchy
	Create(containerName string, spec *types.ContainerSpec) (Handler, error)
	Get(containerName string) (Handler, error)
}

// Base is embedded by every variant's Handler implementation; it owns the
// single controller each variant needs and implements the mechanical parts
// of the contract (Enter/Delegate/Destroy/PopulateMachineSpec) so each
// variant package need only implement Update/Stats/Spec/RegisterNotification.
type Base struct {
	Controller *cgroupfs.Controller
	// isolated is set by the owning factory's Create/Get: true only when
	// the controller was minted or attached at this container's own name,
	// never when it was inherited from an ancestor that has no cgroup of
	// its own at this resource's hierarchy.
	isolated bool
}

func NewBase(ctrl *cgroupfs.Controller, isolated bool) Base {
	return Base{Controller: ctrl, isolated: isolated}
}

func (b *Base) Isolated() bool { return b.isolated }

func (b *Base) Enter(tids []int) error {
	for _, tid := range tids {
		if err := b.Controller.Enter(tid); err != nil {
			return err
		}
	}
	return nil
}

func (b *Base) Delegate(uid, gid int) error {
	return b.Controller.Delegate(uid, gid)
}

func (b *Base) Destroy() error {
	return b.Controller.Destroy()
}

func (b *Base) PopulateMachineSpec(spec *types.MachineSpec) {
	b.Controller.PopulateMachineSpec(spec)
}

// NoNotification is the shared RegisterNotification implementation for
// variants that register no events at all (cpu, blkio, net, device): always
// NotFound so the container layer's handler scan moves to the next one.
func NoNotification(eventName, _ string) (notify.Handle, error) {
	return 0, errdefs.NotFound(fmt.Errorf("event %q not supported by this resource", eventName))
}

// WalkToAncestor implements the attachment-to-parent rule: if no cgroup
// exists at containerName in hierarchy h, walk toward the root one
// component at a time, returning the first ancestor name that does have
// one. "/" having none is fatal (NotFound).
func WalkToAncestor(cg *cgroupfs.Factory, h types.Hierarchy, containerName string) (string, error) {
	name := containerName
	for {
		if _, err := cg.Get(h, name); err == nil {
			return name, nil
		}
		if name == "/" {
			return "", errdefs.NotFound(fmt.Errorf("no %s cgroup found for %q or any ancestor", h, containerName))
		}
		name = parentContainerName(name)
	}
}

func parentContainerName(name string) string {
	dir := path.Dir(name)
	if dir == "." {
		return "/"
	}
	return dir
}
