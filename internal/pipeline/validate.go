package pipeline

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/cel-go/cel"

	"github.com/raffis/rigor/internal/executor"
	"github.com/raffis/rigor/internal/expression"
	"github.com/raffis/rigor/internal/matrix"
	"github.com/raffis/rigor/internal/trigger"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

// Validate checks spec without executing anything. It returns a *ConfigError.
func Validate(spec v1beta1.PipelineSpec, celEnv *cel.Env, actions executor.Actions) error {
	var errs []error

	if len(spec.Stages) == 0 {
		errs = append(errs, errors.New("no stages declared"))
	}

	if _, err := trigger.New(spec.On, celEnv); err != nil {
		errs = append(errs, fmt.Errorf("trigger: %w", err))
	}

	environments := make(map[string]struct{}, len(spec.Environments))
	for _, env := range spec.Environments {
		if env.Name == "" {
			errs = append(errs, errors.New("environment without name"))
			continue
		}

		if _, ok := environments[env.Name]; ok {
			errs = append(errs, fmt.Errorf("duplicate environment `%s`", env.Name))
		}

		environments[env.Name] = struct{}{}
	}

	for _, action := range spec.Actions {
		if action.Name == "" || action.Run == "" {
			errs = append(errs, fmt.Errorf("action `%s`: name and run are required", action.Name))
		}
	}

	stages := make(map[string]struct{}, len(spec.Stages))
	for _, stage := range spec.Stages {
		if stage.Name == "" {
			errs = append(errs, errors.New("stage without name"))
			continue
		}

		if _, ok := stages[stage.Name]; ok {
			errs = append(errs, NewErrDuplicateStage(stage.Name))
		}

		stages[stage.Name] = struct{}{}
		errs = append(errs, validateStage(stage, celEnv, actions)...)
	}

	for _, stage := range spec.Stages {
		for _, need := range stage.Needs {
			if _, ok := stages[need]; !ok {
				errs = append(errs, NewErrUnknownNeed(stage.Name, need))
			}
		}
	}

	if cycle := findCycle(spec.Stages); cycle != nil {
		errs = append(errs, NewErrCycle(cycle))
	}

	if len(errs) > 0 {
		return &ConfigError{Errs: errs}
	}

	return nil
}

func validateStage(stage v1beta1.Stage, celEnv *cel.Env, actions executor.Actions) []error {
	var errs []error

	if stage.RunsOn == "" {
		errs = append(errs, fmt.Errorf("stage `%s`: runsOn is required", stage.Name))
	}

	if stage.MaxParallel < 0 {
		errs = append(errs, fmt.Errorf("stage `%s`: maxParallel must not be negative", stage.Name))
	}

	if err := matrix.Validate(stage.Matrix); err != nil {
		errs = append(errs, fmt.Errorf("stage `%s`: %w", stage.Name, err))
	}

	if len(stage.Steps) == 0 {
		errs = append(errs, fmt.Errorf("stage `%s`: no steps declared", stage.Name))
	}

	steps := make(map[string]struct{}, len(stage.Steps))
	for _, step := range stage.Steps {
		if _, ok := steps[step.Name]; ok {
			errs = append(errs, NewErrDuplicateStep(stage.Name, step.Name))
		}

		steps[step.Name] = struct{}{}

		if (step.Run == "") == (step.Uses == "") {
			errs = append(errs, NewErrRunOrUses(stage.Name, step.Name))
		}

		if step.Uses != "" && !actions.Has(step.Uses) {
			errs = append(errs, NewErrUnknownAction(stage.Name, step.Name, step.Uses))
		}

		if step.If != "" {
			if _, err := expression.Compile(celEnv, step.If); err != nil {
				errs = append(errs, fmt.Errorf("stage `%s`: step `%s`: %w", stage.Name, step.Name, err))
			}
		}
	}

	return errs
}

// findCycle returns the stages of the first dependency cycle found, nil if there is none.
func findCycle(stages []v1beta1.Stage) []string {
	needs := make(map[string][]string, len(stages))
	for _, stage := range stages {
		needs[stage.Name] = stage.Needs
	}

	const (
		unvisited = iota
		visiting
		visited
	)

	state := make(map[string]int, len(stages))
	var path []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		switch state[name] {
		case visiting:
			start := slices.Index(path, name)
			cycle = append(slices.Clone(path[start:]), name)
			return true
		case visited:
			return false
		}

		state[name] = visiting
		path = append(path, name)
		for _, need := range needs[name] {
			if _, ok := needs[need]; ok && visit(need) {
				return true
			}
		}

		path = path[:len(path)-1]
		state[name] = visited
		return false
	}

	for _, stage := range stages {
		if state[stage.Name] == unvisited && visit(stage.Name) {
			return cycle
		}
	}

	return nil
}
