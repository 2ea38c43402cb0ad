package notify

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry()

	h1 := r.Add()
	h2 := r.Add()
	assert.Check(t, h2 > h1, "handles must be strictly increasing")
	assert.Check(t, r.Contains(h1))
	assert.Check(t, r.Contains(h2))
	assert.Equal(t, r.Size(), 2)

	assert.Check(t, r.Remove(h1))
	assert.Check(t, !r.Contains(h1))
	assert.Equal(t, r.Size(), 1)

	// Second remove of the same handle returns false.
	assert.Check(t, !r.Remove(h1))
}

func TestRegistryMonotonicAcrossRemovals(t *testing.T) {
	r := NewRegistry()
	h1 := r.Add()
	r.Remove(h1)
	h2 := r.Add()
	assert.Check(t, h2 > h1, "handle ids are never reused")
}
