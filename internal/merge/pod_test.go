package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestPod(t *testing.T) {
	base := corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Labels: map[string]string{"team": "platform"},
		},
		Spec: corev1.PodSpec{
			ServiceAccountName: "runner",
			NodeSelector:       map[string]string{"pool": "ci"},
			Containers: []corev1.Container{
				{
					Name:  "template",
					Image: "busybox",
					Env:   []corev1.EnvVar{{Name: "FROM_TEMPLATE", Value: "1"}},
				},
			},
		},
	}

	patch := corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:   "rigor-abc",
			Labels: map[string]string{"rigor.raffis.github.io/job-id": "abc"},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:  "job",
					Image: "rust:latest",
					Env:   []corev1.EnvVar{{Name: "CI", Value: "true"}},
				},
			},
		},
	}

	merged, err := Pod(base, patch)
	require.NoError(t, err)

	assert.Equal(t, "rigor-abc", merged.Name)
	assert.Equal(t, map[string]string{"team": "platform", "rigor.raffis.github.io/job-id": "abc"}, merged.Labels)
	assert.Equal(t, "runner", merged.Spec.ServiceAccountName)
	assert.Equal(t, map[string]string{"pool": "ci"}, merged.Spec.NodeSelector)
	assert.Equal(t, corev1.RestartPolicyNever, merged.Spec.RestartPolicy)
	require.Len(t, merged.Spec.Containers, 1)
	assert.Equal(t, "job", merged.Spec.Containers[0].Name)
	assert.Equal(t, "rust:latest", merged.Spec.Containers[0].Image)
	assert.Equal(t, []corev1.EnvVar{{Name: "FROM_TEMPLATE", Value: "1"}, {Name: "CI", Value: "true"}}, merged.Spec.Containers[0].Env)
}

func TestPodWithoutTemplateContainer(t *testing.T) {
	patch := corev1.Pod{
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{Name: "job", Image: "alpine"}},
		},
	}

	merged, err := Pod(corev1.Pod{}, patch)
	require.NoError(t, err)
	require.Len(t, merged.Spec.Containers, 1)
	assert.Equal(t, "alpine", merged.Spec.Containers[0].Image)
}
