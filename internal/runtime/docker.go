package runtime

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/distribution/reference"
	dockercontainer "github.com/docker/docker/api/types/container"
	imagetypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/moby/term"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/raffis/matrun/internal/errdefs"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	dockertypes "github.com/docker/docker/api/types"
)

// DockerClient is the subset of the docker api the runtime depends on.
type DockerClient interface {
	ContainerCreate(ctx context.Context, config *dockercontainer.Config, hostConfig *dockercontainer.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (dockercontainer.CreateResponse, error)
	ContainerAttach(ctx context.Context, containerID string, options dockercontainer.AttachOptions) (dockertypes.HijackedResponse, error)
	ContainerStart(ctx context.Context, containerID string, options dockercontainer.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition dockercontainer.WaitCondition) (<-chan dockercontainer.WaitResponse, <-chan error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options dockercontainer.RemoveOptions) error
	ImageList(ctx context.Context, options imagetypes.ListOptions) ([]imagetypes.Summary, error)
	ImagePull(ctx context.Context, refStr string, options imagetypes.PullOptions) (io.ReadCloser, error)
}

type dockerOption func(*docker)

func WithLogger(logger logr.Logger) dockerOption {
	return func(d *docker) {
		d.logger = logger
	}
}

func WithPullPolicy(policy PullImagePolicy) dockerOption {
	return func(d *docker) {
		d.pullPolicy = policy
	}
}

// WithPullOutput sets the writer pull progress is written to, pull progress is discarded by default.
func WithPullOutput(w io.Writer) dockerOption {
	return func(d *docker) {
		d.pullOutput = w
	}
}

type docker struct {
	client     DockerClient
	logger     logr.Logger
	pullPolicy PullImagePolicy
	pullOutput io.Writer

	mu     sync.Mutex
	pulled map[string]bool
	pulls  singleflight.Group
}

// NewDocker returns a runtime which executes every process in a fresh container.
// Concurrent pulls of the same image are shared and only a successful pull is remembered.
func NewDocker(client DockerClient, opts ...dockerOption) *docker {
	d := &docker{
		client:     client,
		logger:     logr.Discard(),
		pullPolicy: PullImagePolicyMissing,
		pullOutput: io.Discard,
		pulled:     make(map[string]bool),
	}

	for _, o := range opts {
		o(d)
	}

	return d
}

func (d *docker) Exec(ctx context.Context, process *Process, stdout, stderr io.Writer) error {
	if len(process.Args) == 0 {
		return fmt.Errorf("%w: empty command", errdefs.ErrSpawn)
	}

	if process.Image == "" {
		return fmt.Errorf("%w: no image specified for docker runtime", errdefs.ErrSpawn)
	}

	logger := logr.FromContextOrDiscard(ctx)
	if logger.GetSink() == nil {
		logger = d.logger
	}

	image, err := normalizeImage(process.Image)
	if err != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrSpawn, err)
	}

	if err := d.ensureImage(ctx, logger, image); err != nil {
		return fmt.Errorf("%w: failed to pull image `%s`: %w", errdefs.ErrSpawn, image, err)
	}

	containerConfig := dockercontainer.Config{
		Image:        image,
		Entrypoint:   strslice.StrSlice(process.Args[:1]),
		Cmd:          strslice.StrSlice(process.Args[1:]),
		Env:          process.Env,
		WorkingDir:   process.Dir,
		AttachStdout: true,
		AttachStderr: true,
	}

	hostConfig := dockercontainer.HostConfig{}
	for _, volume := range process.Volumes {
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: volume,
			Target: volume,
		})
	}

	name := containerName(process.Name)
	logger.V(3).Info("create new container", "name", name, "container-spec", containerConfig, "host-config", hostConfig)

	cont, err := d.client.ContainerCreate(ctx, &containerConfig, &hostConfig, &network.NetworkingConfig{}, nil, name)
	if err != nil {
		return fmt.Errorf("%w: failed to create container: %w", errdefs.ErrSpawn, err)
	}

	defer func() {
		if err := d.client.ContainerRemove(context.Background(), cont.ID, dockercontainer.RemoveOptions{Force: true}); err != nil {
			logger.V(1).Error(err, "failed to remove container", "container-id", cont.ID)
		}
	}()

	waitC, errC := d.client.ContainerWait(ctx, cont.ID, dockercontainer.WaitConditionNextExit)
	streams, err := d.client.ContainerAttach(ctx, cont.ID, dockercontainer.AttachOptions{
		Stdout: true,
		Stderr: true,
		Stream: true,
	})
	if err != nil {
		return fmt.Errorf("%w: container attach failed: %w", errdefs.ErrSpawn, err)
	}

	defer streams.Close()

	if err := d.client.ContainerStart(ctx, cont.ID, dockercontainer.StartOptions{}); err != nil {
		return fmt.Errorf("%w: failed to start container: %w", errdefs.ErrSpawn, err)
	}

	wg := new(errgroup.Group)
	wg.Go(func() error {
		_, err := stdcopy.StdCopy(stdout, stderr, streams.Reader)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("demux container streams failed: %w", err)
		}

		return nil
	})

	var result error
	select {
	case <-ctx.Done():
		killCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.client.ContainerKill(killCtx, cont.ID, "KILL"); err != nil {
			logger.V(1).Error(err, "failed to kill container", "container-id", cont.ID)
		}

		streams.Close()
		result = fmt.Errorf("container killed: %w", ctx.Err())
	case err := <-errC:
		streams.Close()
		result = fmt.Errorf("wait for container failed: %w", err)
	case await := <-waitC:
		if await.Error != nil && await.Error.Message != "" {
			result = fmt.Errorf("wait for container failed: %s", await.Error.Message)
		} else if await.StatusCode != 0 {
			result = &Result{ExitCode: int(await.StatusCode)}
		}
	}

	if err := wg.Wait(); err != nil && result == nil {
		return err
	}

	return result
}

func (d *docker) ensureImage(ctx context.Context, logger logr.Logger, image string) error {
	if d.isPulled(image) {
		return nil
	}

	// The pull outlives the caller, other steps may be waiting for the same image.
	pullCtx := context.WithoutCancel(ctx)
	ch := d.pulls.DoChan(image, func() (any, error) {
		if d.isPulled(image) {
			return nil, nil
		}

		if err := d.pull(pullCtx, logger, image); err != nil {
			return nil, err
		}

		d.mu.Lock()
		d.pulled[image] = true
		d.mu.Unlock()
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (d *docker) isPulled(image string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pulled[image]
}

func (d *docker) pull(ctx context.Context, logger logr.Logger, image string) error {
	pullImage := false
	switch d.pullPolicy {
	case PullImagePolicyAlways:
		pullImage = true
	case PullImagePolicyMissing:
		has, err := d.hasImage(ctx, image)
		if err != nil {
			return err
		}

		pullImage = !has
	case PullImagePolicyNever:
		pullImage = false
	}

	if !pullImage {
		return nil
	}

	logger.V(1).Info("pulling image", "image", image)
	startedAt := time.Now()

	r, err := d.client.ImagePull(ctx, image, imagetypes.PullOptions{})
	if err != nil {
		return err
	}

	defer func() {
		_ = r.Close()
	}()

	termFd, isTerm := term.GetFdInfo(d.pullOutput)
	if err := jsonmessage.DisplayJSONMessagesStream(r, d.pullOutput, termFd, isTerm, nil); err != nil {
		return err
	}

	logger.V(1).Info("image pulled", "image", image, "duration", time.Since(startedAt))
	return nil
}

func (d *docker) hasImage(ctx context.Context, image string) (bool, error) {
	images, err := d.client.ImageList(ctx, imagetypes.ListOptions{})
	if err != nil {
		return false, err
	}

	familiar := image
	if named, err := reference.ParseNormalizedNamed(image); err == nil {
		familiar = reference.FamiliarString(named)
	}

	for _, img := range images {
		if slices.Contains(img.RepoTags, image) || slices.Contains(img.RepoTags, familiar) {
			return true, nil
		}
	}

	return false, nil
}

// normalizeImage returns the fully qualified reference of image, defaulting to the latest tag.
func normalizeImage(image string) (string, error) {
	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return "", fmt.Errorf("invalid image reference `%s`: %w", image, err)
	}

	return reference.TagNameOnly(named).String(), nil
}

var invalidContainerChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

func containerName(name string) string {
	name = strings.Trim(invalidContainerChars.ReplaceAllString(name, "-"), "-._")
	suffix := strings.Split(uuid.NewString(), "-")[0]
	if name == "" {
		return "matrun-" + suffix
	}

	return fmt.Sprintf("matrun-%s-%s", name, suffix)
}
