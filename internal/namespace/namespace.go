// Package namespace is the "run-in-container" collaborator spec.md treats
// as external (§1 Out of scope: "process-spawning details"). Collaborator
// implementations fork or enter namespaces on cgmgr's behalf; neither does
// resource policy math.
package namespace

import (
	"context"
	"os/exec"

	"github.com/cgmgr/cgmgr/types"
)

// Collaborator runs and execs processes attached to a container's
// namespaces (spec.md §4.J).
type Collaborator interface {
	// Run starts name+args as the root process of the container,
	// returning once the process has been launched (not once it exits).
	Run(ctx context.Context, name string, args []string) (*exec.Cmd, error)
	// Exec runs name+args inside an already-running container's
	// namespaces.
	Exec(ctx context.Context, name string, args []string) (*exec.Cmd, error)
	// NewNamespaceHandler is called once per container at creation time
	// when the spec requests VirtualHost; implementations that don't
	// virtualize anything (NoOp) return nil.
	NewNamespaceHandler(containerName string, spec *types.ContainerSpec) error
	// PopulateMachineSpec appends any namespace-related fields this
	// collaborator observed (e.g. supported namespace kinds).
	PopulateMachineSpec(spec *types.MachineSpec)
	// InDifferentScope reports whether tid already belongs to a
	// virtualization scope other than this collaborator's own (spec.md
	// §4.J enter's pre-check). Implementations that never virtualize
	// anything (NoOp) have no scope to collide with, so this is always
	// false.
	InDifferentScope(tid int) (bool, error)
}

// NoOp is used for containers with no VirtualHost request: Run/Exec launch
// directly in the calling process's own namespaces via os/exec, matching
// SPEC_FULL.md §4.J.
type NoOp struct{}

func (NoOp) Run(ctx context.Context, name string, args []string) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (NoOp) Exec(ctx context.Context, name string, args []string) (*exec.Cmd, error) {
	return NoOp{}.Run(ctx, name, args)
}

func (NoOp) NewNamespaceHandler(string, *types.ContainerSpec) error { return nil }

func (NoOp) PopulateMachineSpec(*types.MachineSpec) {}

func (NoOp) InDifferentScope(int) (bool, error) { return false, nil }
