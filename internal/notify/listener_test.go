package notify

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/cgmgr/cgmgr/internal/kernelops"
)

func waitFor(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		assert.Equal(t, got, want)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestListenerDeliversAndHandlesExit(t *testing.T) {
	fake := kernelops.NewFake()
	fake.PutFile("/cg/memory.oom_control", "")
	registry := NewRegistry()
	l := NewListener(fake, registry)
	assert.NilError(t, l.Start(context.Background()))

	efd, err := fake.EventfdCreate()
	assert.NilError(t, err)
	handle := registry.Add()

	events := make(chan string, 4)
	cb := func(name string, counter uint64, termination string) bool {
		if termination != "" {
			events <- termination
			return true
		}
		events <- "delivered"
		return true
	}
	assert.NilError(t, l.Subscribe(efd, handle, "oom", "", "/cg/memory.oom_control", cb))

	fake.Deliver(efd, 3)
	waitFor(t, events, "delivered")

	// Simulate the backing cgroup file disappearing (scenario 5): next
	// readiness should deliver an "exit" termination.
	fake.RemoveFile("/cg/memory.oom_control")
	fake.Deliver(efd, 1)
	waitFor(t, events, "exit")

	l.StopSoon()
	assert.NilError(t, l.Stop(context.Background()))
}

func TestListenerStopTerminatesRemaining(t *testing.T) {
	fake := kernelops.NewFake()
	fake.PutFile("/cg/a", "")
	registry := NewRegistry()
	l := NewListener(fake, registry)
	assert.NilError(t, l.Start(context.Background()))

	efd, _ := fake.EventfdCreate()
	handle := registry.Add()
	events := make(chan string, 1)
	cb := func(name string, counter uint64, termination string) bool {
		if termination != "" {
			events <- termination
		}
		return true
	}
	assert.NilError(t, l.Subscribe(efd, handle, "a", "", "/cg/a", cb))

	l.StopSoon()
	assert.NilError(t, l.Stop(context.Background()))

	waitFor(t, events, "exit")
}
