package imagebuild

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/appdock/appdock/pkg/model"
	"github.com/appdock/appdock/pkg/telemetry"
)

// DockerBuilder implements Builder against a Docker engine.
type DockerBuilder struct {
	cli *client.Client
	log *telemetry.Logger
}

// NewDockerBuilder connects to the engine configured by the environment
// (DOCKER_HOST and friends) with API version negotiation.
func NewDockerBuilder(log *telemetry.Logger) (*DockerBuilder, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.NewBuildError("connecting to container engine", err)
	}
	if log == nil {
		log = telemetry.Nop()
	}
	return &DockerBuilder{cli: cli, log: log}, nil
}

// Close releases the engine connection.
func (b *DockerBuilder) Close() error {
	return b.cli.Close()
}

// Build implements Builder. The build context is streamed to the daemon as a
// tar archive; daemon progress is forwarded line by line to req.Output.
func (b *DockerBuilder) Build(ctx context.Context, req BuildRequest) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(tarContext(req.ContextDir, pw))
	}()

	resp, err := b.cli.ImageBuild(ctx, pr, build.ImageBuildOptions{
		Tags:        req.Tags,
		Dockerfile:  req.Dockerfile,
		BuildArgs:   req.BuildArgs,
		Labels:      req.Labels,
		NoCache:     req.NoCache,
		PullParent:  req.Pull,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return model.NewBuildError("image build request", err).
			WithCode(model.ErrCodeBuildFailed).WithImage(firstTag(req.Tags))
	}
	defer resp.Body.Close()

	if err := drainDaemonStream(resp.Body, req.Output); err != nil {
		return model.NewBuildError("image build", err).
			WithCode(model.ErrCodeBuildFailed).WithImage(firstTag(req.Tags))
	}
	return nil
}

// Tag implements Builder.
func (b *DockerBuilder) Tag(ctx context.Context, source, target string) error {
	if err := b.cli.ImageTag(ctx, source, target); err != nil {
		if errdefs.IsNotFound(err) {
			err = fmt.Errorf("source image %q does not exist: %w", source, err)
		}
		return model.NewBuildError("image tag", err).
			WithCode(model.ErrCodeTagFailed).WithImage(target)
	}
	return nil
}

// Push implements Builder.
func (b *DockerBuilder) Push(ctx context.Context, ref string, auth RegistryAuth) error {
	encoded, err := registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      auth.Username,
		Password:      auth.Password,
		ServerAddress: auth.ServerAddress,
	})
	if err != nil {
		return model.NewBuildError("encoding registry credentials", err).
			WithCode(model.ErrCodePushFailed).WithImage(ref)
	}

	body, err := b.cli.ImagePush(ctx, ref, image.PushOptions{RegistryAuth: encoded})
	if err != nil {
		return model.NewBuildError("image push request", err).
			WithCode(model.ErrCodePushFailed).WithImage(ref)
	}
	defer body.Close()

	if err := drainDaemonStream(body, nil); err != nil {
		return model.NewBuildError("image push", err).
			WithCode(model.ErrCodePushFailed).WithImage(ref)
	}
	return nil
}

// drainDaemonStream consumes a daemon JSON message stream, forwarding
// progress lines to output and surfacing the embedded error, if any. The
// daemon reports failures inside the stream with a 200 response, so the
// stream must be read to the end even when the caller ignores progress.
func drainDaemonStream(r io.Reader, output func(line string)) error {
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if msg.Error != nil {
			return msg.Error
		}
		if output == nil {
			continue
		}
		if line := strings.TrimRight(msg.Stream, "\n"); line != "" {
			output(line)
		} else if msg.Status != "" {
			output(msg.Status)
		}
	}
}

func firstTag(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return tags[0]
}
