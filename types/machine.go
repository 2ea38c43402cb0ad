package types

// MachineSpec is a passive record populated by factories and controllers
// describing observed mounts and roots, used to initialize namespace scopes
// (spec.md §9 GLOSSARY "Machine spec"; SPEC_FULL §3.1).
type MachineSpec struct {
	// CgroupMounts maps each mounted hierarchy to its mount point.
	CgroupMounts map[Hierarchy]string
	// CgroupPaths records (hierarchy, hierarchy_path) pairs appended by
	// controllers' PopulateMachineSpec (spec.md §4.C).
	CgroupPaths []CgroupMountPoint
}

// CgroupMountPoint is one (hierarchy, path) pair appended to a MachineSpec.
type CgroupMountPoint struct {
	Hierarchy Hierarchy
	Path      string
}

// NewMachineSpec returns an empty, ready-to-populate MachineSpec.
func NewMachineSpec() *MachineSpec {
	return &MachineSpec{CgroupMounts: map[Hierarchy]string{}}
}

// InitSpec configures ContainerApi.InitMachine (spec.md §6 internal API
// surface: "init_spec recognized options: { cgroup_mount: list of (path,
// [hierarchies]) }").
type InitSpec struct {
	CgroupMount []MountRequest
}

// MountRequest asks the cgroup factory to mount the listed hierarchies
// (possibly co-mounted) at Path if not already mounted.
type MountRequest struct {
	Path       string
	Hierarchies []Hierarchy
}
