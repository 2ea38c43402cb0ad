package resources

import "github.com/cgmgr/cgmgr/types"

// Registry is the keyed collection of resource Factories the container API
// consults: intersecting ContainerSpec.Resources() with Registry's keys
// picks which factories participate in a Create (spec.md §4.I step 3).
type Registry struct {
	factories map[types.ResourceKind]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[types.ResourceKind]Factory{}}
}

func (r *Registry) Register(f Factory) {
	r.factories[f.Kind()] = f
}

func (r *Registry) Get(kind types.ResourceKind) (Factory, bool) {
	f, ok := r.factories[kind]
	return f, ok
}

// Kinds returns every resource kind registered, in a stable order matching
// spec.md's §2 component G enumeration (cpu, memory, io, network,
// monitoring, device; filesystem has no handler of its own).
func (r *Registry) Kinds() []types.ResourceKind {
	order := []types.ResourceKind{
		types.ResourceCPU,
		types.ResourceMemory,
		types.ResourceIO,
		types.ResourceNetwork,
		types.ResourceMonitoring,
		types.ResourceDevice,
	}
	out := make([]types.ResourceKind, 0, len(order))
	for _, k := range order {
		if _, ok := r.factories[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
