//go:build linux

package namespace

import (
	"context"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cgmgr/cgmgr/errdefs"
)

func TestNsEnterExecWithoutRootFails(t *testing.T) {
	n := &NsEnter{}
	_, err := n.Exec(context.Background(), "true", nil)
	assert.Check(t, errdefs.IsFailedPrecondition(err))
}

var _ Collaborator = &NsEnter{}
