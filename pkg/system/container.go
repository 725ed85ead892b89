package system

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sqlarena/sqlarena/pkg/config"
	"github.com/sqlarena/sqlarena/pkg/container"
)

// containerHandle provisions a database server container around an inner
// handle. Install pulls the image and creates the container; Start starts it;
// query execution and health checks go to the inner handle through the
// published port.
type containerHandle struct {
	log         logrus.FieldLogger
	cfg         *config.SystemConfig
	inner       Handle
	mgr         container.Manager
	network     string
	containerID string
}

// Ensure interface compliance.
var _ Handle = (*containerHandle)(nil)

func newContainerHandle(
	log logrus.FieldLogger,
	cfg *config.SystemConfig,
	inner Handle,
	mgr container.Manager,
) (Handle, error) {
	if _, err := cfg.Container.MemoryBytes(); err != nil {
		return nil, err
	}

	return &containerHandle{
		log:     log.WithField("system", cfg.Name),
		cfg:     cfg,
		inner:   inner,
		mgr:     mgr,
		network: config.DefaultDockerNetwork,
	}, nil
}

// Identity returns the inner system identity.
func (h *containerHandle) Identity() Identity {
	return h.inner.Identity()
}

// Install pulls the image, creates the container, and opens the inner pool.
func (h *containerHandle) Install(ctx context.Context) error {
	ctr := h.cfg.Container

	if err := h.mgr.EnsureNetwork(ctx, h.network); err != nil {
		return fmt.Errorf("ensuring network: %w", err)
	}

	if err := h.mgr.PullImage(ctx, ctr.Image, ctr.PullPolicy); err != nil {
		return fmt.Errorf("pulling image: %w", err)
	}

	memory, err := ctr.MemoryBytes()
	if err != nil {
		return err
	}

	spec := &container.Spec{
		Name:        fmt.Sprintf("sqlarena-%s-%s", generateShortID(), h.cfg.Name),
		Image:       ctr.Image,
		Command:     ctr.Command,
		Env:         ctr.Env,
		NetworkName: h.network,
		Port:        ctr.Port,
		HostPort:    ctr.HostPort,
		Labels: map[string]string{
			"sqlarena.system": h.cfg.Name,
			"sqlarena.kind":   h.cfg.Kind,
		},
	}

	if ctr.CpusetCpus != "" || memory > 0 {
		spec.ResourceLimits = &container.ResourceLimits{
			CpusetCpus:  ctr.CpusetCpus,
			MemoryBytes: memory,
		}
	}

	id, err := h.mgr.CreateContainer(ctx, spec)
	if err != nil {
		return fmt.Errorf("creating container: %w", err)
	}

	h.containerID = id

	h.log.WithField("container", spec.Name).Info("Container created")

	return h.inner.Install(ctx)
}

// Start starts the container and waits the configured settle delay.
func (h *containerHandle) Start(ctx context.Context) error {
	if h.containerID == "" {
		return fmt.Errorf("system %s has no container to start", h.cfg.Name)
	}

	if err := h.mgr.StartContainer(ctx, h.containerID); err != nil {
		return fmt.Errorf("starting container: %w", err)
	}

	if wait := h.cfg.Container.ReadyWaitAfter; wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return h.inner.Start(ctx)
}

// IsHealthy delegates to the inner handle.
func (h *containerHandle) IsHealthy(ctx context.Context, quiet bool) bool {
	return h.inner.IsHealthy(ctx, quiet)
}

// ExecuteQuery delegates to the inner handle.
func (h *containerHandle) ExecuteQuery(ctx context.Context, text, name string) (*QueryResult, error) {
	return h.inner.ExecuteQuery(ctx, text, name)
}

// Exec delegates to the inner handle.
func (h *containerHandle) Exec(ctx context.Context, text string) error {
	return h.inner.Exec(ctx, text)
}

// Teardown closes the inner handle and removes the container. Container
// removal failures are reported but never block the inner teardown.
func (h *containerHandle) Teardown(ctx context.Context) error {
	innerErr := h.inner.Teardown(ctx)

	if h.containerID != "" {
		if err := h.mgr.StopContainer(ctx, h.containerID); err != nil {
			h.log.WithError(err).Warn("Failed to stop container")
		}

		if err := h.mgr.RemoveContainer(ctx, h.containerID); err != nil {
			h.log.WithError(err).Warn("Failed to remove container")
		}

		h.containerID = ""
	}

	return innerErr
}

// generateShortID generates a short random hex ID (8 characters).
func generateShortID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xFFFFFFFF)
	}

	return hex.EncodeToString(b)
}
