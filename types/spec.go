package types

// UpdatePolicy governs how ContainerSpec fields are applied to an existing
// container (spec.md §4.G, §6 "Update policy flag").
type UpdatePolicy int

const (
	// Diff fills missing fields in the caller's spec from current state,
	// validates, then applies only the writes the spec prescribes.
	Diff UpdatePolicy = iota
	// Replace: the container layer requires the spec to name every
	// isolated resource. Handlers write the fields the spec sets, and the
	// cpu handler also resets an unset quota and period to the kernel
	// defaults. No handler fills in defaults for its other unset fields;
	// those keep their current values.
	Replace
)

func (p UpdatePolicy) String() string {
	if p == Replace {
		return "REPLACE"
	}
	return "DIFF"
}

// ListType governs the scope of ListSubcontainers/ListProcesses/ListThreads
// (spec.md §4.H/§4.J).
type ListType int

const (
	// Self lists only the immediate container.
	Self ListType = iota
	// Recursive lists the container and every descendant.
	Recursive
)

// StatsType governs how much a resource handler's Stats reads
// (spec.md §4.G).
type StatsType int

const (
	StatsSummary StatsType = iota
	StatsFull
)

// CPUSpec is the declarative configuration for the cpu resource handler.
type CPUSpec struct {
	// Shares is the relative cpu.shares weight. nil means "unset".
	Shares *uint64
	// QuotaUS/PeriodUS implement cpu.cfs_quota_us/cfs_period_us.
	QuotaUS  *int64
	PeriodUS *uint64
	// Mask is a human string such as "0-3" naming cpus. It is carried in
	// the spec only: no handler writes it to cpuset.cpus or parses it.
	Mask string
}

// MemorySpec is the declarative configuration for the memory resource
// handler. Limit/SoftLimit accept human strings ("512m") per SPEC_FULL §2.1.
type MemorySpec struct {
	Limit      string
	SoftLimit  string
	Swappiness *uint64
	// EnableOOMNotify is carried in the spec only: the memory handler's
	// Create does not register anything from it. An oom notification is
	// registered only through RegisterNotification.
	EnableOOMNotify bool
}

// IOSpec is the declarative configuration for the blkio resource handler.
type IOSpec struct {
	Weight       *uint16
	ThrottleRead map[string]uint64 // device -> bytes/sec
}

// NetworkSpec configures the net_cls classid tag. net_cls is an unowned
// hierarchy (types.HierarchyNet.Owns() == false): cgmgr never creates or
// removes its directories, and Enter/Delegate/Destroy on its controller are
// no-ops, but the classid write itself goes through.
type NetworkSpec struct {
	ClassID uint32
}

// MonitoringSpec requests a perf_event cgroup and prometheus export of its
// counters (SPEC_FULL §2.1's prometheus wiring).
type MonitoringSpec struct {
	Enable bool
}

// FilesystemSpec records that a mount is expected for this container. cgmgr
// does not itself mount filesystems (spec.md §1 Non-goals); it only records
// the expectation for the namespace collaborator to honor.
type FilesystemSpec struct {
	RootFS string
}

// DeviceSpec configures the devices cgroup allow/deny list.
type DeviceSpec struct {
	Allow []DeviceRule
	Deny  []DeviceRule
}

// DeviceRule is one line of devices.allow/devices.deny.
type DeviceRule struct {
	Type        string // "a", "b", "c"
	Major       int64  // -1 for wildcard
	Minor       int64
	Permissions string // subset of "rwm"
}

// ContainerSpec is the declarative description of a container passed to
// ContainerApi.Create and Container.Update. The wire schema of this message
// is explicitly out of scope per spec.md §1; this is the in-process Go
// shape the rest of the system operates on.
type ContainerSpec struct {
	// Owner/OwnerGroup: delegate ownership of all controllers and tasks to
	// this uid/gid. An invalid sentinel (NoOwner/NoGroup) skips that half.
	Owner      int64
	OwnerGroup int64

	// ChildrenLimit is carried in the spec only: Create and Update do not
	// write it to any controller. Zero means unset.
	ChildrenLimit int64

	CPU        *CPUSpec
	Memory     *MemorySpec
	IO         *IOSpec
	Network    *NetworkSpec
	Monitoring *MonitoringSpec
	Filesystem *FilesystemSpec
	Device     *DeviceSpec

	// VirtualHost requests creation of a namespace handler after entering
	// the new container (spec.md §4.I step 6).
	VirtualHost bool
}

// NoOwner/NoGroup are the invalid sentinels spec.md's Design Notes §9
// requires Delegate to treat as "skip this half".
const (
	NoOwner = -1
	NoGroup = -1
)

// NewContainerSpec returns a ContainerSpec with Owner/OwnerGroup set to
// their "no delegation requested" sentinels. The zero ContainerSpec{} has
// Owner/OwnerGroup == 0, which is a valid uid/gid, so callers that don't
// intend to delegate ownership must build specs through this constructor
// rather than a bare struct literal.
func NewContainerSpec() *ContainerSpec {
	return &ContainerSpec{Owner: NoOwner, OwnerGroup: NoGroup}
}

// Resources returns the set of resource kinds this spec exercises, used by
// ContainerApi.Create's step 3 intersection with supported factories.
func (s *ContainerSpec) Resources() map[ResourceKind]bool {
	out := map[ResourceKind]bool{}
	if s == nil {
		return out
	}
	if s.CPU != nil {
		out[ResourceCPU] = true
	}
	if s.Memory != nil {
		out[ResourceMemory] = true
	}
	if s.IO != nil {
		out[ResourceIO] = true
	}
	if s.Network != nil {
		out[ResourceNetwork] = true
	}
	if s.Monitoring != nil {
		out[ResourceMonitoring] = true
	}
	if s.Filesystem != nil {
		out[ResourceFilesystem] = true
	}
	if s.Device != nil {
		out[ResourceDevice] = true
	}
	return out
}

// HasOwner reports whether the spec carries a delegation request.
func (s *ContainerSpec) HasOwner() bool {
	return s.Owner != NoOwner || s.OwnerGroup != NoGroup
}
