// Package browserpool optionally runs each capture session's browser
// inside a throwaway Docker container for additional isolation beyond
// Playwright's own browser-context sandboxing. Docker absence degrades to
// a no-op pool rather than a startup failure.
package browserpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"go.uber.org/zap"

	"github.com/metacogma/meetcapture/logger"
)

// Instance is one throwaway container exposing a headless Chromium
// CDP endpoint a browserdriver.Factory can attach to over remote debugging.
type Instance struct {
	ID          string
	ContainerID string
	CDPEndpoint string
	LastUsed    time.Time
}

// Pool manages Docker containers on demand; Acquire/Release never block a
// caller on Docker being absent, they just report ErrUnavailable.
type Pool struct {
	docker    *client.Client
	available bool
	maxSize   int
	inUse     sync.Map
	active    int
	mu        sync.Mutex
}

// ErrUnavailable is returned by Acquire when Docker could not be reached at
// startup; callers should fall back to a local Playwright browser.
var ErrUnavailable = fmt.Errorf("browserpool: docker unavailable")

// ErrPoolExhausted is returned when maxSize containers are already in use.
var ErrPoolExhausted = fmt.Errorf("browserpool: pool exhausted")

func New(maxSize int) *Pool {
	p := &Pool{maxSize: maxSize}

	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		docker, err = client.NewClientWithOpts(
			client.WithHost("unix:///var/run/docker.sock"),
			client.WithAPIVersionNegotiation(),
		)
	}
	if err != nil {
		logger.Warn("docker unavailable, browser pool running in degraded mode", zap.Error(err))
		return p
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := docker.Ping(pingCtx); err != nil {
		logger.Warn("docker daemon not responding, browser pool running in degraded mode", zap.Error(err))
		docker.Close()
		return p
	}

	p.docker = docker
	p.available = true
	logger.Info("browser pool initialized", zap.Int("max_size", maxSize), zap.Bool("docker_available", true))
	return p
}

// Available reports whether Docker-backed isolation can be offered at all.
func (p *Pool) Available() bool {
	return p.available
}

// Acquire starts a fresh headless-chromium container for one session.
// Returns ErrUnavailable if Docker isn't reachable, ErrPoolExhausted if
// maxSize containers are already running.
func (p *Pool) Acquire(ctx context.Context) (*Instance, error) {
	if !p.available {
		return nil, ErrUnavailable
	}

	p.mu.Lock()
	if p.active >= p.maxSize {
		p.mu.Unlock()
		return nil, ErrPoolExhausted
	}
	p.active++
	p.mu.Unlock()

	instance, err := p.createContainer(ctx)
	if err != nil {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
		return nil, err
	}

	instance.LastUsed = time.Now()
	p.inUse.Store(instance.ID, instance)
	return instance, nil
}

func (p *Pool) createContainer(ctx context.Context) (*Instance, error) {
	config := &container.Config{
		Image: "seleniarm/standalone-chromium:latest",
		ExposedPorts: nat.PortSet{
			"9222/tcp": {},
		},
		Cmd: []string{"--remote-debugging-port=9222", "--remote-debugging-address=0.0.0.0"},
	}
	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Memory:    2 * 1024 * 1024 * 1024,
			CPUShares: 1024,
		},
		AutoRemove: true,
		PortBindings: nat.PortMap{
			"9222/tcp": []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: "0"}},
		},
	}

	resp, err := p.docker.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("browserpool: create container: %w", err)
	}

	if err := p.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.docker.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("browserpool: start container: %w", err)
	}

	inspect, err := p.docker.ContainerInspect(ctx, resp.ID)
	if err != nil {
		p.destroy(resp.ID)
		return nil, fmt.Errorf("browserpool: inspect container: %w", err)
	}

	bindings := inspect.NetworkSettings.Ports["9222/tcp"]
	if len(bindings) == 0 {
		p.destroy(resp.ID)
		return nil, fmt.Errorf("browserpool: no published debug port")
	}

	instance := &Instance{
		ID:          resp.ID[:12],
		ContainerID: resp.ID,
		CDPEndpoint: fmt.Sprintf("http://localhost:%s", bindings[0].HostPort),
	}

	logger.Info("started isolated browser container", zap.String("container_id", instance.ID))
	return instance, nil
}

// Release tears down the container backing instance.
func (p *Pool) Release(instance *Instance) {
	if instance == nil {
		return
	}
	p.inUse.Delete(instance.ID)
	p.destroy(instance.ContainerID)
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
}

func (p *Pool) destroy(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.docker.ContainerStop(ctx, containerID, container.StopOptions{})
	p.docker.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	logger.Debug("destroyed browser container", zap.String("container_id", containerID[:12]))
}

// Shutdown tears down every in-use container, used by the shutdown
// coordinator.
func (p *Pool) Shutdown() {
	if !p.available {
		return
	}
	logger.Info("shutting down browser pool")

	p.inUse.Range(func(_, value interface{}) bool {
		instance := value.(*Instance)
		p.destroy(instance.ContainerID)
		return true
	})

	if p.docker != nil {
		p.docker.Close()
	}
	logger.Info("browser pool shutdown complete")
}
