// Package container wraps the Docker engine API for systems whose install
// method provisions a database server container.
package container

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/sirupsen/logrus"
)

// ManagedByLabel marks containers created by sqlarena for cleanup.
const ManagedByLabel = "sqlarena.managed-by"

// Manager handles container operations for container-installed systems.
type Manager interface {
	Start(ctx context.Context) error
	Stop() error

	EnsureNetwork(ctx context.Context, name string) error

	PullImage(ctx context.Context, imageName, policy string) error

	CreateContainer(ctx context.Context, spec *Spec) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string) error
	RemoveContainer(ctx context.Context, containerID string) error

	// ListManaged returns all containers carrying the sqlarena label,
	// running or not.
	ListManaged(ctx context.Context) ([]Info, error)
}

// ResourceLimits defines container resource constraints.
type ResourceLimits struct {
	CpusetCpus  string
	MemoryBytes int64
}

// Spec defines container configuration for a system under test.
type Spec struct {
	Name           string
	Image          string
	Command        []string
	Env            map[string]string
	NetworkName    string
	Labels         map[string]string
	ResourceLimits *ResourceLimits

	// Port is the server port inside the container, published on the host
	// as HostPort.
	Port     int
	HostPort int
}

// Info describes a managed container for cleanup.
type Info struct {
	ID     string
	Name   string
	Labels map[string]string
}

// NewManager creates a new container manager.
func NewManager(log logrus.FieldLogger) (Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	return &manager{
		log:    log.WithField("component", "container"),
		client: cli,
	}, nil
}

type manager struct {
	log    logrus.FieldLogger
	client *client.Client
}

// Ensure interface compliance.
var _ Manager = (*manager)(nil)

// Start verifies connectivity with the container daemon.
func (m *manager) Start(ctx context.Context) error {
	if _, err := m.client.Ping(ctx); err != nil {
		return fmt.Errorf("connecting to docker daemon: %w", err)
	}

	m.log.Debug("Connected to Docker daemon")

	return nil
}

// Stop closes the client connection.
func (m *manager) Stop() error {
	if err := m.client.Close(); err != nil {
		return fmt.Errorf("closing docker client: %w", err)
	}

	return nil
}

// EnsureNetwork creates the network if it doesn't exist.
func (m *manager) EnsureNetwork(ctx context.Context, name string) error {
	networks, err := m.client.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return fmt.Errorf("listing networks: %w", err)
	}

	for _, net := range networks {
		if net.Name == name {
			m.log.WithField("network", name).Debug("Network already exists")

			return nil
		}
	}

	if _, err := m.client.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
	}); err != nil {
		return fmt.Errorf("creating network %s: %w", name, err)
	}

	m.log.WithField("network", name).Info("Created Docker network")

	return nil
}

// PullImage pulls an image according to the pull policy.
func (m *manager) PullImage(ctx context.Context, imageName, policy string) error {
	log := m.log.WithField("image", imageName)

	if policy == "never" {
		log.Debug("Skipping image pull (policy: never)")

		return nil
	}

	if policy == "if-not-present" {
		images, err := m.client.ImageList(ctx, image.ListOptions{
			Filters: filters.NewArgs(filters.Arg("reference", imageName)),
		})
		if err != nil {
			return fmt.Errorf("listing images: %w", err)
		}

		if len(images) > 0 {
			log.Debug("Image already exists (policy: if-not-present)")

			return nil
		}
	}

	log.Info("Pulling image")

	reader, err := m.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", imageName, err)
	}
	defer func() { _ = reader.Close() }()

	// Consume the pull output.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("reading pull response: %w", err)
	}

	log.Info("Image pulled successfully")

	return nil
}

// CreateContainer creates a container from the spec with its server port
// published on the host.
func (m *manager) CreateContainer(ctx context.Context, spec *Spec) (string, error) {
	log := m.log.WithField("container", spec.Name)

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	port, err := nat.NewPort("tcp", fmt.Sprintf("%d", spec.Port))
	if err != nil {
		return "", fmt.Errorf("building port: %w", err)
	}

	labels := make(map[string]string, len(spec.Labels)+1)
	for k, v := range spec.Labels {
		labels[k] = v
	}

	labels[ManagedByLabel] = "sqlarena"

	containerCfg := &container.Config{
		Image:  spec.Image,
		Env:    env,
		Labels: labels,
		Cmd:    spec.Command,
		ExposedPorts: nat.PortSet{
			port: struct{}{},
		},
	}

	hostCfg := &container.HostConfig{
		NetworkMode: container.NetworkMode(spec.NetworkName),
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{
				HostIP:   "127.0.0.1",
				HostPort: fmt.Sprintf("%d", spec.HostPort),
			}},
		},
	}

	if spec.ResourceLimits != nil {
		hostCfg.CpusetCpus = spec.ResourceLimits.CpusetCpus
		hostCfg.Memory = spec.ResourceLimits.MemoryBytes
	}

	resp, err := m.client.ContainerCreate(ctx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}

	log.WithField("id", resp.ID[:12]).Debug("Created container")

	return resp.ID, nil
}

// StartContainer starts a container.
func (m *manager) StartContainer(ctx context.Context, containerID string) error {
	if err := m.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("starting container %s: %w", containerID[:12], err)
	}

	m.log.WithField("id", containerID[:12]).Debug("Started container")

	return nil
}

// StopContainer stops a container.
func (m *manager) StopContainer(ctx context.Context, containerID string) error {
	if err := m.client.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil {
		return fmt.Errorf("stopping container %s: %w", containerID[:12], err)
	}

	m.log.WithField("id", containerID[:12]).Debug("Stopped container")

	return nil
}

// RemoveContainer force-removes a container and its anonymous volumes.
func (m *manager) RemoveContainer(ctx context.Context, containerID string) error {
	if err := m.client.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	}); err != nil {
		return fmt.Errorf("removing container %s: %w", containerID[:12], err)
	}

	m.log.WithField("id", containerID[:12]).Debug("Removed container")

	return nil
}

// ListManaged returns all sqlarena-labelled containers.
func (m *manager) ListManaged(ctx context.Context) ([]Info, error) {
	containers, err := m.client.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", ManagedByLabel+"=sqlarena"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}

	infos := make([]Info, 0, len(containers))

	for _, c := range containers {
		name := c.ID
		if len(c.Names) > 0 {
			name = c.Names[0]
		}

		infos = append(infos, Info{
			ID:     c.ID,
			Name:   name,
			Labels: c.Labels,
		})
	}

	return infos, nil
}
