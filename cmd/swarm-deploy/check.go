package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"swarm-deploy/internal/model"
	"swarm-deploy/internal/service"
)

func newCheckCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the server is reachable and is an active swarm manager",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, a)
		},
	}
	addTargetFlags(cmd.Flags())
	return cmd
}

func runCheck(cmd *cobra.Command, a *app) error {
	resolver := service.NewResolver(a.fs, a.prompter())
	target, err := resolver.ResolveTarget(&model.SSHTestRequest{
		Host: a.cfg.Deploy.Host,
		User: a.cfg.Deploy.User,
	})
	if err != nil {
		return err
	}

	resp := service.NewSSHService(a.sessions, resolver, a.log, a.cfg.SSH.ConnectTimeout).TestTarget(target)
	for _, line := range resp.Details {
		fmt.Fprintln(a.stdout, line)
	}
	if !resp.Success {
		return errors.New(resp.Message)
	}
	a.log.Success(resp.Message)
	return nil
}
