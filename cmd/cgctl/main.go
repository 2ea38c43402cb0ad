// Command cgctl is a thin CLI front end over containerapi: it marshals
// flags into types.ContainerSpec and calls the API, with no policy math of
// its own (SPEC_FULL.md §1.1).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cgmgr/cgmgr/containerapi"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/internal/namespace"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cgctl",
		Short: "Manage cgroup-backed containers",
	}

	ctx := &cliContext{}
	root.PersistentFlags().StringArrayVar(&ctx.cgroupMounts, "cgroup-mount", nil, "hierarchy=path mount request, repeatable")

	root.AddCommand(
		newInitCmd(ctx),
		newCreateCmd(ctx),
		newDestroyCmd(ctx),
		newGetCmd(ctx),
		newPsCmd(ctx),
		newPauseCmd(ctx),
		newResumeCmd(ctx),
		newKillCmd(ctx),
	)
	return root
}

// cliContext lazily constructs one API per invocation, real kernel ops on
// linux builds.
type cliContext struct {
	cgroupMounts []string
	api          *containerapi.API
}

func (c *cliContext) API() *containerapi.API {
	if c.api == nil {
		c.api = containerapi.New(kernelops.New(), namespace.NoOp{})
	}
	return c.api
}
