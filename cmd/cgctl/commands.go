package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cgmgr/cgmgr/types"
)

func newInitCmd(c *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Mount configured cgroup hierarchies and initialize the machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := types.InitSpec{}
			for _, m := range c.cgroupMounts {
				req, err := parseMountFlag(m)
				if err != nil {
					return err
				}
				spec.CgroupMount = append(spec.CgroupMount, req)
			}
			_, err := c.API().InitMachine(spec)
			return err
		},
	}
}

func parseMountFlag(raw string) (types.MountRequest, error) {
	parts := strings.SplitN(raw, "=", 2)
	if len(parts) != 2 {
		return types.MountRequest{}, fmt.Errorf("invalid --cgroup-mount %q, want hierarchy[,hierarchy...]=path", raw)
	}
	var hierarchies []types.Hierarchy
	for _, h := range strings.Split(parts[0], ",") {
		hierarchies = append(hierarchies, types.Hierarchy(h))
	}
	return types.MountRequest{Path: parts[1], Hierarchies: hierarchies}, nil
}

func newCreateCmd(c *cliContext) *cobra.Command {
	var cpuShares uint64
	var memLimit string
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := types.NewContainerSpec()
			if cpuShares != 0 {
				spec.CPU = &types.CPUSpec{Shares: &cpuShares}
			}
			if memLimit != "" {
				spec.Memory = &types.MemorySpec{Limit: memLimit}
			}
			container, err := c.API().Create(args[0], spec)
			if err != nil {
				return err
			}
			fmt.Println(container.Name())
			return nil
		},
	}
	cmd.Flags().Uint64Var(&cpuShares, "cpu-shares", 0, "cpu.shares value")
	cmd.Flags().StringVar(&memLimit, "memory", "", "memory limit, e.g. 512m")
	return cmd
}

func newDestroyCmd(c *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "destroy NAME",
		Short: "Destroy a container and its descendants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := c.API().Get(args[0])
			if err != nil {
				return err
			}
			return c.API().Destroy(context.Background(), container)
		},
	}
}

func newGetCmd(c *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Print a container's current spec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := c.API().Get(args[0])
			if err != nil {
				return err
			}
			spec, err := container.Spec()
			if err != nil {
				return err
			}
			fmt.Printf("%+v\n", spec)
			return nil
		},
	}
}

func newPsCmd(c *cliContext) *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "ps NAME",
		Short: "List processes in a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := c.API().Get(args[0])
			if err != nil {
				return err
			}
			listType := types.Self
			if recursive {
				listType = types.Recursive
			}
			pids, err := container.ListProcesses(listType)
			if err != nil {
				return err
			}
			for _, pid := range pids {
				fmt.Println(pid)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "include subcontainers")
	return cmd
}

func newPauseCmd(c *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause NAME",
		Short: "Freeze every task in a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := c.API().Get(args[0])
			if err != nil {
				return err
			}
			return container.Pause()
		},
	}
}

func newResumeCmd(c *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume NAME",
		Short: "Thaw a frozen container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := c.API().Get(args[0])
			if err != nil {
				return err
			}
			return container.Resume()
		},
	}
}

func newKillCmd(c *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "kill NAME",
		Short: "Send SIGKILL to every task in a container, retrying until empty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := c.API().Get(args[0])
			if err != nil {
				return err
			}
			return container.KillAll(context.Background())
		},
	}
}
