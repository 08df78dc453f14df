package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"swarm-deploy/internal/model"
	"swarm-deploy/internal/pkg/logger"
	"swarm-deploy/internal/pkg/ssh"
)

const swarmActive = "active"

// SSHService checks that a host is reachable and is a swarm manager able to
// take a stack deploy.
type SSHService struct {
	sessions SessionFactory
	resolver *Resolver
	logger   *logger.Logger
	timeout  time.Duration
}

func NewSSHService(sessions SessionFactory, resolver *Resolver, logger *logger.Logger, timeout time.Duration) *SSHService {
	return &SSHService{
		sessions: sessions,
		resolver: resolver,
		logger:   logger,
		timeout:  timeout,
	}
}

// TestConnection resolves req and checks the target. Invalid parameters are
// returned as an error; an unusable host is reported in the response.
func (s *SSHService) TestConnection(req *model.SSHTestRequest) (*model.SSHTestResponse, error) {
	target, err := s.resolver.ResolveTarget(req)
	if err != nil {
		return nil, err
	}
	return s.TestTarget(target), nil
}

func (s *SSHService) TestTarget(target model.Target) *model.SSHTestResponse {
	addr := ssh.JoinHostPort(target.Hostname, target.Port)
	s.logger.SSHConnectionAttempt(addr, target.User)

	session, err := s.sessions.Connect(sshConfig(target, s.timeout))
	if err != nil {
		s.logger.Debugw("ssh connection failed", "addr", addr, "error", err.Error())
		return &model.SSHTestResponse{
			Success: false,
			Message: err.Error(),
			Details: []string{
				"✗ SSH connection failed",
				fmt.Sprintf("error: %s", err.Error()),
			},
		}
	}
	defer session.Close()

	resp := &model.SSHTestResponse{
		Reachable: true,
		Details:   []string{"✓ SSH connection established"},
	}

	if result, err := session.ExecuteCommand(whoamiCommand); err == nil && result.ExitCode == 0 {
		resp.RemoteUser = strings.TrimSpace(result.Stdout)
		resp.Details = append(resp.Details, fmt.Sprintf("✓ remote user: %s", resp.RemoteUser))
	}

	result, err := session.ExecuteCommand(swarmStateCommand)
	switch {
	case err != nil:
		resp.Details = append(resp.Details, fmt.Sprintf("✗ docker info failed: %v", err))
		resp.Message = "docker is not usable"
		return resp
	case result.ExitCode != 0:
		resp.Details = append(resp.Details, fmt.Sprintf("✗ docker info exited with %d: %s", result.ExitCode, result.Output()))
		resp.Message = "docker is not usable"
		return resp
	}

	resp.SwarmState = strings.Trim(strings.TrimSpace(result.Stdout), "'")
	if resp.SwarmState != swarmActive {
		resp.Details = append(resp.Details, fmt.Sprintf("✗ swarm state: %s", resp.SwarmState))
		resp.Message = "host is not part of an active swarm"
		return resp
	}
	resp.Details = append(resp.Details, "✓ swarm state: active")

	s.logger.Debugw("ssh connection check passed", "addr", addr)
	resp.Success = true
	resp.Message = "host is ready for stack deploys"
	return resp
}

// BatchTestConnection checks every node concurrently. Results keep the order
// of the request; a node with invalid parameters is reported as not ready.
func (s *SSHService) BatchTestConnection(req *model.BatchSSHTestRequest) *model.BatchSSHTestResponse {
	results := make([]*model.SSHTestResponse, len(req.Nodes))
	var wg sync.WaitGroup

	for i, node := range req.Nodes {
		wg.Add(1)
		go func(index int, n model.BatchNodeRequest) {
			defer wg.Done()

			result, err := s.TestConnection(&n.SSHTestRequest)
			if err != nil {
				result = &model.SSHTestResponse{
					Message: err.Error(),
					Details: []string{"✗ invalid connection parameters"},
				}
			}
			result.ID = n.ID
			results[index] = result
		}(i, node)
	}

	wg.Wait()
	batch := &model.BatchSSHTestResponse{Total: len(results), Results: results}
	for _, r := range results {
		if r.Success {
			batch.Ready++
		}
	}
	return batch
}
