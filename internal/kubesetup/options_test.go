package kubesetup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPodTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pod.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
apiVersion: v1
kind: Pod
spec:
  serviceAccountName: ci
  nodeSelector:
    pool: ci
`), 0600))

	o := DefaultOptions()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.BindFlags(flags)
	require.NoError(t, flags.Parse([]string{"--kube-pod-template", path, "--kube-namespace", "ci"}))

	pod, err := o.LoadPodTemplate()
	require.NoError(t, err)
	assert.Equal(t, "ci", pod.Spec.ServiceAccountName)
	assert.Equal(t, map[string]string{"pool": "ci"}, pod.Spec.NodeSelector)
	assert.Equal(t, "ci", o.TargetNamespace())
}

func TestLoadPodTemplateNotConfigured(t *testing.T) {
	pod, err := DefaultOptions().LoadPodTemplate()
	require.NoError(t, err)
	assert.Empty(t, pod.Spec.Containers)
}
