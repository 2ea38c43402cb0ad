package types

// Hierarchy is the closed enumeration of cgroup kinds cgmgr can manipulate
// (spec.md §3 "Hierarchy identifier").
type Hierarchy string

const (
	HierarchyCPU       Hierarchy = "cpu"
	HierarchyCPUAcct   Hierarchy = "cpuacct"
	HierarchyCPUSet    Hierarchy = "cpuset"
	HierarchyMemory    Hierarchy = "memory"
	HierarchyIO        Hierarchy = "blkio"
	HierarchyNet       Hierarchy = "net_cls"
	HierarchyPerfEvent Hierarchy = "perf_event"
	HierarchyFreezer   Hierarchy = "freezer"
	HierarchyDevice    Hierarchy = "devices"
	HierarchyJob       Hierarchy = "job"
)

// OwnedHierarchies are the hierarchies for which cgmgr creates and destroys
// directories. Unowned hierarchies (net_cls here) are attach-only: cgmgr
// reads and writes their parameter files but never mkdirs/rmdirs them,
// matching the Controller invariant in spec.md §3.
var OwnedHierarchies = map[Hierarchy]bool{
	HierarchyCPU:       true,
	HierarchyCPUAcct:   true,
	HierarchyCPUSet:    true,
	HierarchyMemory:    true,
	HierarchyIO:        true,
	HierarchyNet:       false,
	HierarchyPerfEvent: true,
	HierarchyFreezer:   true,
	HierarchyDevice:    true,
	HierarchyJob:       true,
}

// Owns reports whether cgmgr owns (creates/destroys) directories in h.
func (h Hierarchy) Owns() bool {
	owns, ok := OwnedHierarchies[h]
	return ok && owns
}

// ResourceKind names the resources a ContainerSpec may request, one per
// resource handler variant (spec.md §2 component G).
type ResourceKind string

const (
	ResourceCPU        ResourceKind = "cpu"
	ResourceMemory     ResourceKind = "memory"
	ResourceIO         ResourceKind = "io"
	ResourceNetwork    ResourceKind = "network"
	ResourceMonitoring ResourceKind = "monitoring"
	ResourceFilesystem ResourceKind = "filesystem"
	ResourceDevice     ResourceKind = "device"
)
