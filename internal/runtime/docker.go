package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"time"

	"github.com/distribution/reference"
	"github.com/docker/cli/cli/config"
	dockercontainer "github.com/docker/docker/api/types/container"
	imagetypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	registrytypes "github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/api/types/strslice"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/go-logr/logr"
	"github.com/moby/term"
	"k8s.io/apimachinery/pkg/util/rand"
)

const (
	containerWorkspace = "/rigor/workspace"
	defaultIndexServer = "https://index.docker.io/v1/"
)

var idleCommand = []string{"-c", "trap 'exit 0' TERM INT; while :; do sleep 1; done"}

type dockerOption func(*docker)

func WithDockerLogger(logger logr.Logger) func(*docker) {
	return func(d *docker) {
		d.logger = logger
	}
}

func WithHidePullOutput(hide bool) func(*docker) {
	return func(d *docker) {
		d.hidePullOutput = hide
	}
}

func WithPullPolicy(policy PullImagePolicy) func(*docker) {
	return func(d *docker) {
		d.pullPolicy = policy
	}
}

// WithDefaultImage is used for environments without an image.
func WithDefaultImage(image string) func(*docker) {
	return func(d *docker) {
		d.defaultImage = image
	}
}

// WithPullOutput sets the writer image pull progress is written to.
func WithPullOutput(w io.Writer) func(*docker) {
	return func(d *docker) {
		d.pullOutput = w
	}
}

type docker struct {
	client         dockerclient.APIClient
	self           *dockercontainer.InspectResponse
	logger         logr.Logger
	hidePullOutput bool
	pullPolicy     PullImagePolicy
	defaultImage   string
	pullOutput     io.Writer
}

// NewDocker returns a runtime which starts one long running container per job.
// Steps are executed within the container.
func NewDocker(ctx context.Context, client dockerclient.APIClient, opts ...dockerOption) *docker {
	d := &docker{
		client:       client,
		logger:       logr.Discard(),
		pullPolicy:   PullImagePolicyMissing,
		defaultImage: "alpine:latest",
		pullOutput:   os.Stderr,
	}

	for _, o := range opts {
		o(d)
	}

	// If rigor runs within a container itself, its mounts and networks are inherited.
	hostname, _ := os.Hostname()
	s, err := client.ContainerInspect(ctx, hostname)
	if err == nil {
		d.self = &s
	}

	return d
}

func (d *docker) Acquire(ctx context.Context, spec EnvironmentSpec) (Environment, error) {
	image := spec.Image
	if image == "" {
		image = d.defaultImage
	}

	if err := d.ensureImage(ctx, image); err != nil {
		return nil, Unavailable(spec.Selector, err)
	}

	workspace, err := os.MkdirTemp("", fmt.Sprintf("rigor-%s-", spec.JobID))
	if err != nil {
		return nil, Unavailable(spec.Selector, err)
	}

	createResponse, err := d.createContainer(ctx, spec, image, workspace)
	if err != nil {
		_ = os.RemoveAll(workspace)
		return nil, Unavailable(spec.Selector, err)
	}

	if err := d.client.ContainerStart(ctx, createResponse.ID, dockercontainer.StartOptions{}); err != nil {
		_ = d.resetContainer(context.WithoutCancel(ctx), createResponse.ID)
		_ = os.RemoveAll(workspace)
		return nil, Unavailable(spec.Selector, fmt.Errorf("failed to start container: %w", err))
	}

	d.logger.V(1).Info("container started", "job", spec.JobName, "container-id", createResponse.ID, "image", image)

	return &dockerEnvironment{
		docker:      d,
		spec:        spec,
		containerID: createResponse.ID,
		workspace:   workspace,
	}, nil
}

func (d *docker) ensureImage(ctx context.Context, image string) error {
	pullImage := false
	switch d.pullPolicy {
	case PullImagePolicyAlways:
		pullImage = true
	case PullImagePolicyNever:
		pullImage = false
	default:
		has, err := d.hasImage(ctx, image)
		if err != nil {
			return err
		}

		pullImage = !has
	}

	if !pullImage {
		return nil
	}

	d.logger.V(1).Info("pulling image", "image", image)
	startedAt := time.Now()
	if err := d.pullImage(ctx, image); err != nil {
		return fmt.Errorf("failed to pull image `%s`: %w", image, err)
	}

	d.logger.V(1).Info("image pulled", "image", image, "duration", time.Since(startedAt))
	return nil
}

func (d *docker) hasImage(ctx context.Context, image string) (bool, error) {
	images, err := d.client.ImageList(ctx, imagetypes.ListOptions{})
	if err != nil {
		return false, err
	}

	for _, img := range images {
		if slices.Contains(img.RepoTags, image) {
			return true, nil
		}
	}

	return false, nil
}

func (d *docker) pullImage(ctx context.Context, image string) error {
	ref, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return err
	}

	w := d.pullOutput
	if d.hidePullOutput {
		w = io.Discard
	}

	encodedAuth, err := encodedAuth(ref, w)
	if err != nil {
		return err
	}

	r, err := d.client.ImagePull(ctx, reference.FamiliarString(ref), imagetypes.PullOptions{
		RegistryAuth: encodedAuth,
	})
	if err != nil {
		return err
	}

	defer func() {
		_ = r.Close()
	}()

	termFd, isTerm := term.GetFdInfo(w)
	return jsonmessage.DisplayJSONMessagesStream(r, w, termFd, isTerm, nil)
}

func encodedAuth(ref reference.Named, w io.Writer) (string, error) {
	configFile := config.LoadDefaultConfigFile(w)

	key := reference.Domain(ref)
	if key == "docker.io" {
		key = defaultIndexServer
	}

	authConfig, err := configFile.GetAuthConfig(key)
	if err != nil {
		return "", err
	}

	return registrytypes.EncodeAuthConfig(registrytypes.AuthConfig{
		Username:      authConfig.Username,
		Password:      authConfig.Password,
		Auth:          authConfig.Auth,
		ServerAddress: authConfig.ServerAddress,
		IdentityToken: authConfig.IdentityToken,
		RegistryToken: authConfig.RegistryToken,
	})
}

func (d *docker) createContainer(ctx context.Context, spec EnvironmentSpec, image, workspace string) (*dockercontainer.CreateResponse, error) {
	shell := spec.Shell
	if len(shell) == 0 {
		shell = []string{"/bin/sh", "-c"}
	}

	containerConfig := dockercontainer.Config{
		Image:      image,
		Entrypoint: strslice.StrSlice{shell[0]},
		Cmd:        strslice.StrSlice(idleCommand),
		Env:        envSlice(spec.Env),
		WorkingDir: containerWorkspace,
		Labels: map[string]string{
			"rigor.raffis.github.io/job-id":   spec.JobID,
			"rigor.raffis.github.io/job-name": spec.JobName,
		},
	}

	hostConfig := dockercontainer.HostConfig{
		RestartPolicy: dockercontainer.RestartPolicy{
			Name: dockercontainer.RestartPolicyDisabled,
		},
	}

	netConfig := network.NetworkingConfig{
		EndpointsConfig: make(map[string]*network.EndpointSettings),
	}

	mounts := []mount.Mount{
		{
			Type:   mount.TypeBind,
			Source: workspace,
			Target: containerWorkspace,
		},
	}

	if d.self != nil {
		for _, m := range d.self.Mounts {
			mounts = append(mounts, mount.Mount{
				Type:     m.Type,
				Source:   m.Source,
				Target:   m.Destination,
				ReadOnly: !m.RW,
			})
		}

		if d.self.NetworkSettings != nil {
			for k := range d.self.NetworkSettings.Networks {
				netConfig.EndpointsConfig[k] = &network.EndpointSettings{
					NetworkID: k,
				}
			}
		}
	}

	hostConfig.Mounts = mounts

	d.logger.V(3).Info("create new container", "container-spec", containerConfig, "host-config", hostConfig, "network-config", netConfig)
	cont, err := d.client.ContainerCreate(ctx, &containerConfig, &hostConfig, &netConfig, nil, containerName(spec.JobID))
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	return &cont, nil
}

// containerName is unique per acquisition, job ids are stable across runs.
// The job id label correlates containers of the same job.
func containerName(jobID string) string {
	return fmt.Sprintf("rigor-%s-%s", jobID, rand.String(5))
}

func (d *docker) resetContainer(ctx context.Context, containerID string) error {
	_ = d.client.ContainerStop(ctx, containerID, dockercontainer.StopOptions{})
	return d.client.ContainerRemove(ctx, containerID, dockercontainer.RemoveOptions{
		Force: true,
	})
}

type dockerEnvironment struct {
	docker      *docker
	spec        EnvironmentSpec
	containerID string
	workspace   string
}

func (e *dockerEnvironment) Workspace() string {
	return containerWorkspace
}

func (e *dockerEnvironment) Exec(ctx context.Context, cmd Command) (int, error) {
	workDir := containerWorkspace
	if cmd.WorkDir != "" {
		workDir = cmd.WorkDir
		if !path.IsAbs(workDir) {
			workDir = path.Join(containerWorkspace, workDir)
		}
	}

	execConfig := dockercontainer.ExecOptions{
		Cmd:          shellCommand(e.spec.Shell, []string{"/bin/sh", "-c"}, cmd.Script),
		Env:          envSlice(cmd.Env),
		WorkingDir:   workDir,
		AttachStdout: true,
		AttachStderr: true,
	}

	created, err := e.docker.client.ContainerExecCreate(ctx, e.containerID, execConfig)
	if err != nil {
		return -1, fmt.Errorf("container exec create failed: %w", err)
	}

	streams, err := e.docker.client.ContainerExecAttach(ctx, created.ID, dockercontainer.ExecAttachOptions{})
	if err != nil {
		return -1, fmt.Errorf("container exec attach failed: %w", err)
	}

	defer streams.Close()

	stdout, stderr := cmd.Stdout, cmd.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	done := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, streams.Reader)
		done <- err
	}()

	select {
	case <-ctx.Done():
		streams.Close()
		return -1, ctx.Err()
	case err := <-done:
		if err != nil && !errors.Is(err, io.EOF) {
			return -1, fmt.Errorf("demux container streams failed: %w", err)
		}
	}

	inspect, err := e.docker.client.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return -1, fmt.Errorf("container exec inspect failed: %w", err)
	}

	return inspect.ExitCode, nil
}

func (e *dockerEnvironment) Release(ctx context.Context) error {
	e.docker.logger.V(1).Info("remove container", "job", e.spec.JobName, "container-id", e.containerID)
	return errors.Join(
		e.docker.resetContainer(ctx, e.containerID),
		os.RemoveAll(e.workspace),
	)
}
