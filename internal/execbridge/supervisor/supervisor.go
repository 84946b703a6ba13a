// Package supervisor optionally runs the execution runtime as a locally
// managed Docker container, for development deployments where no separately
// operated execution-runtime process exists.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/robofit/arcor2-sub002/internal/common/logger"
)

// Config describes the execution-runtime container to run.
type Config struct {
	Image       string
	Name        string
	Env         []string
	NetworkMode string
}

// LocalSupervisor starts and stops a single execution-runtime container.
type LocalSupervisor struct {
	cli         *client.Client
	logger      *logger.Logger
	cfg         Config
	containerID string
}

// New creates a LocalSupervisor using a Docker client negotiated from the
// host's default environment (DOCKER_HOST et al.).
func New(cfg Config, log *logger.Logger) (*LocalSupervisor, error) {
	cli, err := client.NewClientWithOpts(client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &LocalSupervisor{
		cli:    cli,
		logger: log.WithFields(zap.String("component", "execbridge-supervisor")),
		cfg:    cfg,
	}, nil
}

// Start pulls the configured image if necessary and starts the execution
// runtime container.
func (s *LocalSupervisor) Start(ctx context.Context) error {
	if err := s.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}

	resp, err := s.cli.ContainerCreate(ctx, &container.Config{
		Image: s.cfg.Image,
		Env:   s.cfg.Env,
	}, &container.HostConfig{
		NetworkMode: container.NetworkMode(s.cfg.NetworkMode),
	}, nil, nil, s.cfg.Name)
	if err != nil {
		return fmt.Errorf("create execution runtime container: %w", err)
	}
	s.containerID = resp.ID

	if err := s.cli.ContainerStart(ctx, s.containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start execution runtime container: %w", err)
	}
	s.logger.Info("execution runtime container started",
		zap.String("container_id", s.containerID), zap.String("image", s.cfg.Image))
	return nil
}

// Stop stops and removes the execution runtime container.
func (s *LocalSupervisor) Stop(ctx context.Context) error {
	if s.containerID == "" {
		return nil
	}
	timeout := 10 * time.Second
	seconds := int(timeout.Seconds())
	if err := s.cli.ContainerStop(ctx, s.containerID, container.StopOptions{Timeout: &seconds}); err != nil {
		s.logger.Warn("failed to stop execution runtime container", zap.Error(err))
	}
	if err := s.cli.ContainerRemove(ctx, s.containerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("remove execution runtime container: %w", err)
	}
	s.logger.Info("execution runtime container removed", zap.String("container_id", s.containerID))
	s.containerID = ""
	return nil
}
