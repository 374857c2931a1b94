package matrix

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/raffis/rigor/internal/substitute"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func checkStage() v1beta1.Stage {
	return v1beta1.Stage{
		Name:   "check",
		RunsOn: "$(matrix.os)",
		Matrix: &v1beta1.Matrix{
			Axes: []v1beta1.Axis{
				{Name: "os", Values: []string{"ubuntu-latest", "macos-latest", "windows-latest"}},
				{Name: "toolchain", Values: []string{"stable"}},
			},
		},
		Steps: []v1beta1.Step{
			{Name: "checkout", Uses: "checkout"},
			{Name: "toolchain", Uses: "toolchain", With: map[string]string{"toolchain": "$(matrix.toolchain)"}},
			{Name: "check", Run: "cargo check"},
		},
	}
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name          string
		stage         v1beta1.Stage
		expectedNames []string
		expectError   error
	}{
		{
			name:  "three environments one toolchain",
			stage: checkStage(),
			expectedNames: []string{
				"check (ubuntu-latest, stable)",
				"check (macos-latest, stable)",
				"check (windows-latest, stable)",
			},
		},
		{
			name: "no axes expands to a single job",
			stage: v1beta1.Stage{
				Name:   "lints",
				RunsOn: "ubuntu-latest",
				Steps:  []v1beta1.Step{{Name: "fmt", Run: "cargo fmt --check"}},
			},
			expectedNames: []string{"lints"},
		},
		{
			name: "empty axis set expands to a single job",
			stage: v1beta1.Stage{
				Name:   "lints",
				Matrix: &v1beta1.Matrix{},
			},
			expectedNames: []string{"lints"},
		},
		{
			name: "row major order",
			stage: v1beta1.Stage{
				Name: "test",
				Matrix: &v1beta1.Matrix{
					Axes: []v1beta1.Axis{
						{Name: "a", Values: []string{"1", "2"}},
						{Name: "b", Values: []string{"x", "y", "z"}},
					},
				},
			},
			expectedNames: []string{
				"test (1, x)", "test (1, y)", "test (1, z)",
				"test (2, x)", "test (2, y)", "test (2, z)",
			},
		},
		{
			name: "axis without values",
			stage: v1beta1.Stage{
				Name: "test",
				Matrix: &v1beta1.Matrix{
					Axes: []v1beta1.Axis{
						{Name: "os", Values: []string{"ubuntu-latest"}},
						{Name: "toolchain"},
					},
				},
			},
			expectError: ErrEmptyAxis,
		},
		{
			name: "duplicate axis",
			stage: v1beta1.Stage{
				Name: "test",
				Matrix: &v1beta1.Matrix{
					Axes: []v1beta1.Axis{
						{Name: "os", Values: []string{"a"}},
						{Name: "os", Values: []string{"b"}},
					},
				},
			},
			expectError: ErrDuplicateAxis,
		},
		{
			name: "unknown matrix reference",
			stage: v1beta1.Stage{
				Name:   "test",
				RunsOn: "$(matrix.arch)",
			},
			expectError: substitute.ErrUnknownVariable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := Expand(tt.stage)
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				assert.Nil(t, jobs)
				return
			}

			require.NoError(t, err)
			require.Len(t, jobs, Size(tt.stage.Matrix))

			var names []string
			for _, job := range jobs {
				names = append(names, job.Name)
			}

			assert.Equal(t, tt.expectedNames, names)
		})
	}
}

func TestExpandIsDeterministic(t *testing.T) {
	stage := checkStage()

	first, err := Expand(stage)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Expand(stage)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	ids := make(map[string]struct{})
	for _, job := range first {
		ids[job.ID] = struct{}{}
	}

	assert.Len(t, ids, len(first))
}

func TestExpandSubstitutesMatrix(t *testing.T) {
	stage := checkStage()
	stage.Timeout = metav1.Duration{Duration: time.Minute}
	stage.Env = map[string]string{"TARGET_OS": "$(matrix.os)"}

	jobs, err := Expand(stage,
		WithSource(v1beta1.Source{SHA: "abc123"}),
		WithVars(substitute.Vars{"event.kind": "push"}),
	)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	job := jobs[2]
	assert.Equal(t, "windows-latest", job.Environment)
	assert.Equal(t, "windows-latest", job.Env["TARGET_OS"])
	assert.Equal(t, "stable", job.Steps[1].With["toolchain"])
	assert.Equal(t, "abc123", job.Source.SHA)
	assert.Equal(t, time.Minute, job.Timeout)
	assert.Equal(t, []v1beta1.AxisValue{
		{Name: "os", Value: "windows-latest"},
		{Name: "toolchain", Value: "stable"},
	}, job.Matrix)

	// the stage template stays untouched
	assert.Equal(t, "$(matrix.toolchain)", stage.Steps[1].With["toolchain"])
}

func TestJobID(t *testing.T) {
	a := JobID("check", []v1beta1.AxisValue{{Name: "os", Value: "ubuntu-latest"}})
	b := JobID("check", []v1beta1.AxisValue{{Name: "os", Value: "ubuntu-latest"}})
	c := JobID("test", []v1beta1.AxisValue{{Name: "os", Value: "ubuntu-latest"}})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 12)
}

func TestJobIDUnambiguous(t *testing.T) {
	tests := []struct {
		name  string
		left  []v1beta1.AxisValue
		right []v1beta1.AxisValue
	}{
		{
			name:  "separator within values",
			left:  []v1beta1.AxisValue{{Name: "a", Value: "p"}, {Name: "b", Value: "q\x00b=r"}},
			right: []v1beta1.AxisValue{{Name: "a", Value: "p\x00b=q"}, {Name: "b", Value: "r"}},
		},
		{
			name:  "assignment within name",
			left:  []v1beta1.AxisValue{{Name: "a=b", Value: "c"}},
			right: []v1beta1.AxisValue{{Name: "a", Value: "b=c"}},
		},
		{
			name:  "stage name absorbs axis",
			left:  []v1beta1.AxisValue{{Name: "os", Value: "linux"}},
			right: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage := "s"
			other := "s"
			if tt.right == nil {
				other = "s\x00os=linux"
			}

			assert.NotEqual(t, JobID(stage, tt.left), JobID(other, tt.right))
		})
	}
}

func TestSize(t *testing.T) {
	assert.Equal(t, 1, Size(nil))
	assert.Equal(t, 3, Size(checkStage().Matrix))
	assert.Equal(t, 0, Size(&v1beta1.Matrix{Axes: []v1beta1.Axis{{Name: "os"}}}))
}
