package matrix

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/raffis/rigor/internal/substitute"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

var (
	ErrInvalidMatrix = errors.New("invalid matrix")
	ErrEmptyAxis     = fmt.Errorf("%w: axis without values", ErrInvalidMatrix)
	ErrDuplicateAxis = fmt.Errorf("%w: duplicate axis", ErrInvalidMatrix)
	ErrUnnamedAxis   = fmt.Errorf("%w: axis without name", ErrInvalidMatrix)
)

// Job is one concrete instance of a stage for one point of its matrix.
type Job struct {
	ID          string
	Name        string
	Stage       string
	Environment string
	Matrix      []v1beta1.AxisValue
	Steps       []v1beta1.Step
	Env         map[string]string
	Timeout     time.Duration
	Source      v1beta1.Source
}

// Vars returns the substitution variables of this job.
func (j Job) Vars() substitute.Vars {
	vars := substitute.Vars{
		"stage.name":        j.Stage,
		"job.id":            j.ID,
		"job.name":          j.Name,
		"job.environment":   j.Environment,
		"source.sha":        j.Source.SHA,
		"source.ref":        j.Source.Ref,
		"source.path":       j.Source.Path,
		"source.repository": j.Source.Repository,
	}

	for _, v := range j.Matrix {
		vars["matrix."+v.Name] = v.Value
	}

	return vars
}

type options struct {
	vars   substitute.Vars
	source v1beta1.Source
}

type Option func(*options)

// WithVars adds variables available for substitution next to `matrix.*` and `stage.*`.
func WithVars(vars substitute.Vars) Option {
	return func(o *options) {
		o.vars = o.vars.Merge(vars)
	}
}

// WithSource assigns the immutable source reference to every expanded job.
func WithSource(source v1beta1.Source) Option {
	return func(o *options) {
		o.source = source
	}
}

// Validate checks the axis set without expanding it.
func Validate(m *v1beta1.Matrix) error {
	if m == nil {
		return nil
	}

	seen := make(map[string]struct{}, len(m.Axes))
	for _, axis := range m.Axes {
		if axis.Name == "" {
			return ErrUnnamedAxis
		}

		if _, ok := seen[axis.Name]; ok {
			return fmt.Errorf("%w: `%s`", ErrDuplicateAxis, axis.Name)
		}

		seen[axis.Name] = struct{}{}

		if len(axis.Values) == 0 {
			return fmt.Errorf("%w: `%s`", ErrEmptyAxis, axis.Name)
		}
	}

	return nil
}

// Size returns the number of jobs the given axis set expands to.
func Size(m *v1beta1.Matrix) int {
	size := 1
	if m == nil {
		return size
	}

	for _, axis := range m.Axes {
		size *= len(axis.Values)
	}

	return size
}

// Expand creates one job per element of the cartesian product of the stage axes.
// The order is row-major over the axes in declaration order, the last axis varies fastest.
// A stage without axes expands to exactly one job.
func Expand(stage v1beta1.Stage, opts ...Option) ([]Job, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if err := Validate(stage.Matrix); err != nil {
		return nil, fmt.Errorf("stage `%s`: %w", stage.Name, err)
	}

	var axes []v1beta1.Axis
	if stage.Matrix != nil {
		axes = stage.Matrix.Axes
	}

	combinations := make([][]v1beta1.AxisValue, 0, Size(stage.Matrix))
	generateCombinations(axes, 0, nil, &combinations)

	jobs := make([]Job, 0, len(combinations))
	for _, combination := range combinations {
		job, err := newJob(stage, combination, o)
		if err != nil {
			return nil, fmt.Errorf("stage `%s`: %w", stage.Name, err)
		}

		jobs = append(jobs, job)
	}

	return jobs, nil
}

func generateCombinations(axes []v1beta1.Axis, index int, current []v1beta1.AxisValue, result *[][]v1beta1.AxisValue) {
	if index == len(axes) {
		combination := make([]v1beta1.AxisValue, len(current))
		copy(combination, current)
		*result = append(*result, combination)
		return
	}

	axis := axes[index]
	for _, value := range axis.Values {
		generateCombinations(axes, index+1, append(current, v1beta1.AxisValue{
			Name:  axis.Name,
			Value: value,
		}), result)
	}
}

func newJob(stage v1beta1.Stage, combination []v1beta1.AxisValue, o *options) (Job, error) {
	job := Job{
		ID:     JobID(stage.Name, combination),
		Name:   JobName(stage.Name, combination),
		Stage:  stage.Name,
		Matrix: combination,
		Env:    maps.Clone(stage.Env),
		Source: o.source,
	}

	if job.Env == nil {
		job.Env = make(map[string]string)
	}

	job.Timeout = stage.Timeout.Duration
	vars := o.vars.Merge(job.Vars())

	job.Environment = stage.RunsOn
	if err := vars.Subst(&job.Environment, job.Env); err != nil {
		return job, err
	}

	job.Steps = make([]v1beta1.Step, 0, len(stage.Steps))
	for _, spec := range stage.Steps {
		step := *spec.DeepCopy()
		if err := vars.Subst(&step.Name, &step.Run, &step.Uses, &step.WorkDir, step.With, step.Env); err != nil {
			return job, fmt.Errorf("step `%s`: %w", spec.Name, err)
		}

		job.Steps = append(job.Steps, step)
	}

	return job, nil
}

// JobID is a stable identity of a job derived from the stage name and the ordered axis assignment.
func JobID(stage string, combination []v1beta1.AxisValue) string {
	h := blake3.New()
	writeField(h, stage)
	for _, v := range combination {
		writeField(h, v.Name)
		writeField(h, v.Value)
	}

	return hex.EncodeToString(h.Sum(nil)[:6])
}

// writeField length prefixes s so that no two field sequences share an encoding.
func writeField(w io.Writer, s string) {
	_, _ = w.Write(binary.AppendUvarint(nil, uint64(len(s))))
	_, _ = io.WriteString(w, s)
}

func JobName(stage string, combination []v1beta1.AxisValue) string {
	if len(combination) == 0 {
		return stage
	}

	values := make([]string, 0, len(combination))
	for _, v := range combination {
		values = append(values, v.Value)
	}

	return fmt.Sprintf("%s (%s)", stage, strings.Join(values, ", "))
}
