package mechanism

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/google/uuid"

	"github.com/loominal/weft/internal/common/logger"
	"github.com/loominal/weft/internal/target"
	v1 "github.com/loominal/weft/pkg/api/v1"
)

// Docker spins up a container per spin-up, adapted from the agent
// lifecycle manager's container-launch path: a thin client.Client
// wrapper that creates, starts, and (on failure) rolls back a
// container, reporting the outcome back to the Target Registry instead
// of tracking instance lifecycle itself.
type Docker struct {
	cli   *client.Client
	log   *logger.Logger
	image string
	env   map[string]string
}

// NewDocker negotiates the API version against the configured (or
// environment-default) Docker host.
func NewDocker(host, apiVersion, image string, env map[string]string, log *logger.Logger) (*Docker, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	if apiVersion != "" {
		opts = append(opts, client.WithVersion(apiVersion))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Docker{cli: cli, log: log, image: image, env: env}, nil
}

func (d *Docker) Name() string { return "docker" }

func (d *Docker) Close() error { return d.cli.Close() }

// Ping verifies connectivity to the Docker daemon.
func (d *Docker) Ping(ctx context.Context) error {
	_, err := d.cli.Ping(ctx)
	return err
}

func (d *Docker) SpinUp(ctx context.Context, req target.SpinUpRequest) (target.SpinUpResult, error) {
	d.pullImage(ctx)

	guid := uuid.New().String()
	name := fmt.Sprintf("weft-agent-%s", guid[:8])

	env := make([]string, 0, len(d.env)+2)
	for k, v := range d.env {
		env = append(env, k+"="+v)
	}
	env = append(env, "WEFT_TARGET_ID="+req.TargetID, "WEFT_INSTANCE_ID="+guid)

	cfg := &container.Config{
		Image: d.image,
		Env:   env,
		Labels: map[string]string{
			"weft.managed":   "true",
			"weft.target_id": req.TargetID,
		},
	}
	hostCfg := &container.HostConfig{AutoRemove: false}

	created, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return target.SpinUpResult{Outcome: v1.SpinUpFailure, Error: err.Error()}, nil
	}

	if err := d.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		// Best-effort rollback: the created-but-unstarted container
		// must not linger as an orphan.
		_ = d.cli.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})
		return target.SpinUpResult{Outcome: v1.SpinUpFailure, Error: err.Error()}, nil
	}

	return target.SpinUpResult{
		Outcome: v1.SpinUpSuccess,
		Agent:   &v1.AgentSummary{GUID: guid, Handle: name, AgentType: req.AgentType},
	}, nil
}

// pullImage is used opportunistically before create; failures are
// logged and swallowed since the image may already be present locally.
func (d *Docker) pullImage(ctx context.Context) {
	reader, err := d.cli.ImagePull(ctx, d.image, image.PullOptions{})
	if err != nil {
		d.log.Warn("image pull failed, continuing with local image if present")
		return
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
}
