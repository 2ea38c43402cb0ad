// Package tasks implements spec.md §4.H: the per-container authority for
// task membership, backed by the "job" hierarchy when mounted, else
// "freezer" (spec.md §3 GLOSSARY "Tasks handler").
package tasks

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cgmgr/cgmgr/internal/cgroupfs"
	"github.com/cgmgr/cgmgr/types"
)

// Handler owns exactly one controller in the canonical tasks hierarchy and
// is the authority for ListSubcontainers/ListProcesses/ListThreads
// (spec.md §3, §4.H).
type Handler struct {
	containerName string
	controller    *cgroupfs.Controller
	factory       *Factory
}

func (h *Handler) ContainerName() string { return h.containerName }

// Destroy destroys the controller (which rmdirs), then consumes itself
// (spec.md §4.H).
func (h *Handler) Destroy() error {
	return h.controller.Destroy()
}

// TrackTasks enters each tid into the controller, stopping at the first
// failure (spec.md §4.H). A partially applied call leaves the container in
// an undefined state, matching original_source/lmctfy/tasks_handler.h's
// documented TrackTasks contract.
func (h *Handler) TrackTasks(tids []int) error {
	for _, tid := range tids {
		if err := h.controller.Enter(tid); err != nil {
			return err
		}
	}
	return nil
}

// Delegate chowns the underlying controller to (uid, gid).
func (h *Handler) Delegate(uid, gid int) error {
	return h.controller.Delegate(uid, gid)
}

// PopulateMachineSpec appends this handler's controller mount info.
func (h *Handler) PopulateMachineSpec(spec *types.MachineSpec) {
	h.controller.PopulateMachineSpec(spec)
}

// ListSubcontainers lists the children containers present in this handler.
// SELF reads the immediate child directories, prefixed with the container
// name. RECURSIVE performs a BFS using other tasks handlers and returns a
// sorted, deduplicated list (spec.md §4.H).
func (h *Handler) ListSubcontainers(listType types.ListType) ([]string, error) {
	self, err := h.listSelfSubcontainers()
	if err != nil {
		return nil, err
	}
	if listType == types.Self {
		sort.Strings(self)
		return self, nil
	}

	seen := mapset.NewSet[string]()
	queue := append([]string{}, self...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen.Contains(name) {
			continue
		}
		seen.Add(name)

		child, err := h.factory.Get(name)
		if err != nil {
			return nil, err
		}
		grandchildren, err := child.listSelfSubcontainers()
		if err != nil {
			return nil, err
		}
		queue = append(queue, grandchildren...)
	}

	out := seen.ToSlice()
	sort.Strings(out)
	return out, nil
}

func (h *Handler) listSelfSubcontainers() ([]string, error) {
	names, err := h.controller.GetSubcontainers()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, joinContainerName(h.containerName, n))
	}
	return out, nil
}

func joinContainerName(parent, child string) string {
	if parent == "/" {
		return "/" + child
	}
	return parent + "/" + child
}

// ListProcesses/ListThreads: SELF reads cgroup.procs/tasks. RECURSIVE
// unions SELF with the SELF-lists of every subcontainer (recursive).
// Deduplication uses a set because tasks may move between containers
// between queries (spec.md §4.H).
func (h *Handler) ListProcesses(listType types.ListType) ([]int, error) {
	return h.listTasks(listType, (*cgroupfs.Controller).GetProcesses)
}

func (h *Handler) ListThreads(listType types.ListType) ([]int, error) {
	return h.listTasks(listType, (*cgroupfs.Controller).GetThreads)
}

func (h *Handler) listTasks(listType types.ListType, read func(*cgroupfs.Controller) ([]int, error)) ([]int, error) {
	self, err := read(h.controller)
	if err != nil {
		return nil, err
	}
	if listType == types.Self {
		sort.Ints(self)
		return self, nil
	}

	set := mapset.NewSet[int](self...)
	subs, err := h.ListSubcontainers(types.Recursive)
	if err != nil {
		return nil, err
	}
	for _, name := range subs {
		child, err := h.factory.Get(name)
		if err != nil {
			return nil, err
		}
		tids, err := read(child.controller)
		if err != nil {
			return nil, err
		}
		for _, t := range tids {
			set.Add(t)
		}
	}
	out := set.ToSlice()
	sort.Ints(out)
	return out, nil
}

