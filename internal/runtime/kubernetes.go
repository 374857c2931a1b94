package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes/scheme"
	clientcorev1 "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
	utilexec "k8s.io/client-go/util/exec"
	"k8s.io/utils/ptr"

	"github.com/raffis/rigor/internal/merge"
)

const jobContainerName = "job"

type kubernetesOption func(*kubernetes)

func WithKubernetesLogger(logger logr.Logger) func(*kubernetes) {
	return func(k *kubernetes) {
		k.logger = logger
	}
}

func WithPodTemplate(tmpl corev1.Pod) func(*kubernetes) {
	return func(k *kubernetes) {
		k.podTemplate = tmpl
	}
}

func WithNamespace(namespace string) func(*kubernetes) {
	return func(k *kubernetes) {
		k.namespace = namespace
	}
}

func WithKubernetesDefaultImage(image string) func(*kubernetes) {
	return func(k *kubernetes) {
		k.defaultImage = image
	}
}

type kubernetes struct {
	client       clientcorev1.CoreV1Interface
	restConfig   *rest.Config
	podTemplate  corev1.Pod
	namespace    string
	defaultImage string
	logger       logr.Logger
}

// NewKubernetes returns a runtime which creates one pod per job.
// Steps are executed through the pod exec subresource.
func NewKubernetes(client clientcorev1.CoreV1Interface, restConfig *rest.Config, opts ...kubernetesOption) *kubernetes {
	k := &kubernetes{
		client:       client,
		restConfig:   restConfig,
		namespace:    "default",
		defaultImage: "alpine:latest",
		logger:       logr.Discard(),
	}

	for _, o := range opts {
		o(k)
	}

	return k
}

func (k *kubernetes) Acquire(ctx context.Context, spec EnvironmentSpec) (Environment, error) {
	kubePod, err := k.podSpec(spec)
	if err != nil {
		return nil, Unavailable(spec.Selector, err)
	}

	created, err := k.client.Pods(k.namespace).Create(ctx, kubePod, metav1.CreateOptions{})
	k.logger.V(3).Info("create pod", "pod", created, "error", err)
	if err != nil {
		return nil, Unavailable(spec.Selector, fmt.Errorf("failed to create pod: %w", err))
	}

	env := &kubernetesEnvironment{
		kubernetes: k,
		spec:       spec,
		podName:    created.Name,
	}

	if err := k.waitRunning(ctx, created.Name); err != nil {
		_ = env.Release(context.WithoutCancel(ctx))
		return nil, Unavailable(spec.Selector, err)
	}

	k.logger.V(1).Info("pod running", "job", spec.JobName, "pod", created.Name)
	return env, nil
}

func (k *kubernetes) podSpec(spec EnvironmentSpec) (*corev1.Pod, error) {
	image := spec.Image
	if image == "" {
		image = k.defaultImage
	}

	shell := spec.Shell
	if len(shell) == 0 {
		shell = []string{"/bin/sh", "-c"}
	}

	container := corev1.Container{
		Name:            jobContainerName,
		Image:           image,
		ImagePullPolicy: corev1.PullIfNotPresent,
		Command:         []string{shell[0]},
		Args:            idleCommand,
		WorkingDir:      containerWorkspace,
		VolumeMounts: []corev1.VolumeMount{
			{
				Name:      "workspace",
				MountPath: containerWorkspace,
			},
		},
	}

	for _, env := range envSlice(spec.Env) {
		name, value, _ := strings.Cut(env, "=")
		container.Env = append(container.Env, corev1.EnvVar{
			Name:  name,
			Value: value,
		})
	}

	kubePod := corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: fmt.Sprintf("rigor-%s-", spec.JobID),
			Labels: map[string]string{
				"app.kubernetes.io/managed-by":  "rigor",
				"rigor.raffis.github.io/job-id": spec.JobID,
			},
		},
		Spec: corev1.PodSpec{
			Containers:                    []corev1.Container{container},
			RestartPolicy:                 corev1.RestartPolicyNever,
			TerminationGracePeriodSeconds: ptr.To[int64](0),
			Volumes: []corev1.Volume{
				{
					Name: "workspace",
					VolumeSource: corev1.VolumeSource{
						EmptyDir: &corev1.EmptyDirVolumeSource{},
					},
				},
			},
		},
	}

	tmpl := k.podTemplate.DeepCopy()
	merged, err := merge.Pod(*tmpl, kubePod)
	if err != nil {
		return nil, fmt.Errorf("failed to merge pod template: %w", err)
	}

	return merged, nil
}

func (k *kubernetes) waitRunning(ctx context.Context, podName string) error {
	watchStream, err := k.client.Pods(k.namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector: fields.OneTermEqualSelector(metav1.ObjectNameField, podName).String(),
	})

	if err != nil {
		return fmt.Errorf("failed to watch pod: %w", err)
	}

	defer watchStream.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watchStream.ResultChan():
			if !ok {
				return errors.New("watch stream closed")
			}

			k.logger.V(5).Info("kube watch stream event", "event", event)

			switch event.Type {
			case watch.Error:
				if status, ok := event.Object.(*metav1.Status); ok {
					return fmt.Errorf("watch stream error: %s", status.Message)
				}

				return errors.New("watch stream error")
			case watch.Deleted:
				return errors.New("pod has been deleted")
			case watch.Added, watch.Modified:
				pod, ok := event.Object.(*corev1.Pod)
				if !ok {
					continue
				}

				switch pod.Status.Phase {
				case corev1.PodRunning:
					return nil
				case corev1.PodFailed, corev1.PodSucceeded:
					return fmt.Errorf("pod terminated in phase %s", pod.Status.Phase)
				}
			}
		}
	}
}

type kubernetesEnvironment struct {
	kubernetes *kubernetes
	spec       EnvironmentSpec
	podName    string
}

func (e *kubernetesEnvironment) Workspace() string {
	return containerWorkspace
}

func (e *kubernetesEnvironment) Exec(ctx context.Context, cmd Command) (int, error) {
	workDir := containerWorkspace
	if cmd.WorkDir != "" {
		workDir = cmd.WorkDir
		if !path.IsAbs(workDir) {
			workDir = path.Join(containerWorkspace, workDir)
		}
	}

	// The exec subresource neither supports environment variables nor a working directory.
	script := fmt.Sprintf("cd %s && %s", shellQuote(workDir), cmd.Script)
	command := append([]string{"env"}, envSlice(cmd.Env)...)
	command = append(command, shellCommand(e.spec.Shell, []string{"/bin/sh", "-c"}, script)...)

	req := e.kubernetes.client.RESTClient().Post().
		Resource("pods").
		Name(e.podName).
		Namespace(e.kubernetes.namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: jobContainerName,
			Command:   command,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(e.kubernetes.restConfig, "POST", req.URL())
	if err != nil {
		return -1, fmt.Errorf("failed to create exec: %w", err)
	}

	stdout, stderr := cmd.Stdout, cmd.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: stdout,
		Stderr: stderr,
	})

	var exitErr utilexec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr) && exitErr.Exited():
		return exitErr.ExitStatus(), nil
	case ctx.Err() != nil:
		return -1, ctx.Err()
	default:
		return -1, fmt.Errorf("remote stream executor failed: %w", err)
	}
}

func (e *kubernetesEnvironment) Release(ctx context.Context) error {
	e.kubernetes.logger.V(1).Info("delete pod", "job", e.spec.JobName, "pod", e.podName)
	return e.kubernetes.client.Pods(e.kubernetes.namespace).Delete(ctx, e.podName, metav1.DeleteOptions{
		GracePeriodSeconds: ptr.To[int64](0),
	})
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
