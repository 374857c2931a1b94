package kubesetup

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/yaml"
)

const (
	flagContext      = "kube-context"
	flagNamespace    = "kube-namespace"
	flagAPIServer    = "kube-server"
	flagInsecure     = "kube-insecure-skip-tls-verify"
	flagCAFile       = "kube-certificate-authority"
	flagBearerToken  = "kube-token"
	flagImpersonate  = "kube-as"
	flagTimeout      = "kube-request-timeout"
	flagPodTemplate  = "kube-pod-template"
	flagDefaultImage = "kube-default-image"
	defaultJobImage  = "alpine:latest"
	defaultNamespace = "default"
	kubeconfigFlag   = "kubeconfig"
)

// Options are the options used to configure the kubernetes runtime.
type Options struct {
	*genericclioptions.ConfigFlags
	PodTemplate  string
	DefaultImage string
}

// BindFlags adds flags for the common options on the FlagSet
func (o *Options) BindFlags(flags *pflag.FlagSet) {
	if o.KubeConfig != nil {
		flags.StringVar(o.KubeConfig, kubeconfigFlag, *o.KubeConfig, "Path to the kubeconfig file to use for the kubernetes runtime.")
	}
	if o.BearerToken != nil {
		flags.StringVar(o.BearerToken, flagBearerToken, *o.BearerToken, "Bearer token for authentication to the API server")
	}
	if o.Impersonate != nil {
		flags.StringVar(o.Impersonate, flagImpersonate, *o.Impersonate, "Username to impersonate for the operation. User could be a regular user or a service account in a namespace.")
	}
	if o.Namespace != nil {
		flags.StringVar(o.Namespace, flagNamespace, *o.Namespace, "Namespace job pods are created in")
	}
	if o.Context != nil {
		flags.StringVar(o.Context, flagContext, *o.Context, "The name of the kubeconfig context to use")
	}
	if o.APIServer != nil {
		flags.StringVar(o.APIServer, flagAPIServer, *o.APIServer, "The address and port of the Kubernetes API server")
	}
	if o.Insecure != nil {
		flags.BoolVar(o.Insecure, flagInsecure, *o.Insecure, "If true, the server's certificate will not be checked for validity. This will make your HTTPS connections insecure")
	}
	if o.CAFile != nil {
		flags.StringVar(o.CAFile, flagCAFile, *o.CAFile, "Path to a cert file for the certificate authority")
	}
	if o.Timeout != nil {
		flags.StringVar(o.Timeout, flagTimeout, *o.Timeout, "The length of time to wait before giving up on a single server request. Non-zero values should contain a corresponding time unit (e.g. 1s, 2m, 3h). A value of zero means don't timeout requests.")
	}

	flags.StringVar(&o.PodTemplate, flagPodTemplate, "", "Path to a pod manifest merged into every job pod")
	flags.StringVar(&o.DefaultImage, flagDefaultImage, defaultJobImage, "Image used for environments without an image")
}

// Build returns a kubernetes clientset and the rest config it was created from.
func (o *Options) Build() (*kubernetes.Clientset, *rest.Config, error) {
	restConfig, err := o.ToRESTConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	return clientset, restConfig, nil
}

// TargetNamespace returns the namespace from the flag or the current kubeconfig context.
func (o *Options) TargetNamespace() string {
	if o.Namespace != nil && *o.Namespace != "" {
		return *o.Namespace
	}

	ns, _, err := o.ToRawKubeConfigLoader().Namespace()
	if err != nil || ns == "" {
		return defaultNamespace
	}

	return ns
}

// LoadPodTemplate reads the pod template. An empty pod is returned if none is configured.
func (o *Options) LoadPodTemplate() (corev1.Pod, error) {
	var pod corev1.Pod
	if o.PodTemplate == "" {
		return pod, nil
	}

	b, err := os.ReadFile(o.PodTemplate)
	if err != nil {
		return pod, fmt.Errorf("failed to read pod template: %w", err)
	}

	if err := yaml.Unmarshal(b, &pod); err != nil {
		return pod, fmt.Errorf("failed to decode pod template: %w", err)
	}

	return pod, nil
}

func DefaultOptions() *Options {
	return &Options{
		ConfigFlags:  genericclioptions.NewConfigFlags(false),
		DefaultImage: defaultJobImage,
	}
}
