package merge

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	corev1 "k8s.io/api/core/v1"
)

// Pod applies patch on top of base as a JSON merge patch.
// The first container of both pods is merged individually, other container lists are replaced.
func Pod(base, patch corev1.Pod) (*corev1.Pod, error) {
	var container *corev1.Container
	if len(base.Spec.Containers) > 0 && len(patch.Spec.Containers) > 0 {
		merged, err := Container(base.Spec.Containers[0], patch.Spec.Containers[0])
		if err != nil {
			return nil, err
		}

		container = merged
	}

	var patchResult corev1.Pod
	if err := mergeJSON(base, patch, &patchResult); err != nil {
		return nil, fmt.Errorf("failed to merge pod: %w", err)
	}

	if container != nil {
		patchResult.Spec.Containers[0] = *container
	}

	return &patchResult, nil
}

func Container(base, patch corev1.Container) (*corev1.Container, error) {
	var patchResult corev1.Container
	if err := mergeJSON(base, patch, &patchResult); err != nil {
		return nil, fmt.Errorf("failed to merge container: %w", err)
	}

	// Env and volume mounts are additive.
	patchResult.Env = append(append([]corev1.EnvVar{}, base.Env...), patch.Env...)
	patchResult.VolumeMounts = append(append([]corev1.VolumeMount{}, base.VolumeMounts...), patch.VolumeMounts...)

	return &patchResult, nil
}

func mergeJSON(base, patch, into any) error {
	baseBytes, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON for base: %w", err)
	}

	patchBytes, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON for patch: %w", err)
	}

	jsonResult, err := jsonpatch.MergePatch(baseBytes, patchBytes)
	if err != nil {
		return fmt.Errorf("failed to apply merge patch: %w", err)
	}

	return json.Unmarshal(jsonResult, into)
}
