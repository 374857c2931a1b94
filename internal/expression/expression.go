package expression

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

var ErrNotBool = errors.New("expression did not evaluate to a bool")

// NewEnv returns the cel environment shared by trigger and step conditions.
func NewEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		ext.Strings(),
		ext.Math(),
		ext.Encoders(),
		ext.Sets(),
		cel.Variable("event", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("matrix", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("job", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("steps", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("env", cel.MapType(cel.StringType, cel.StringType)),
	)

	if err != nil {
		return nil, fmt.Errorf("setup cel env failed: %w", err)
	}

	return env, nil
}

// Compile compiles a boolean condition.
func Compile(env *cel.Env, condition string) (cel.Program, error) {
	ast, issues := env.Compile(condition)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("expression compilation `%s` failed: %w", condition, issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("expression ast `%s` failed: %w", condition, err)
	}

	return prg, nil
}

// EvalBool evaluates prg with the given variables. Missing top level variables
// are bound to empty maps.
func EvalBool(prg cel.Program, vars map[string]any) (bool, error) {
	activation := map[string]any{
		"event":  map[string]any{},
		"matrix": map[string]string{},
		"job":    map[string]any{},
		"steps":  map[string]any{},
		"env":    map[string]string{},
	}

	for k, v := range vars {
		activation[k] = v
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("condition expression evaluation failed: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %T", ErrNotBool, out.Value())
	}

	return result, nil
}

// EventVars returns the `event` variable of an expression.
func EventVars(event v1beta1.Event) map[string]any {
	return map[string]any{
		"kind":         string(event.Kind),
		"ref":          event.Ref,
		"branch":       event.Branch,
		"baseBranch":   event.BaseBranch,
		"sha":          event.SHA,
		"repository":   event.Repository,
		"changedPaths": slices.Clone(event.ChangedPaths),
	}
}
