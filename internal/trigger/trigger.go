package trigger

import (
	"fmt"
	"path"

	"github.com/go-logr/logr"
	"github.com/google/cel-go/cel"

	"github.com/raffis/rigor/internal/expression"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

// Evaluator decides whether an event starts a pipeline run.
type Evaluator struct {
	triggers  v1beta1.Triggers
	condition cel.Program
	logger    logr.Logger
}

type evaluatorOption func(*Evaluator)

func WithLogger(logger logr.Logger) func(*Evaluator) {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

func New(triggers v1beta1.Triggers, celEnv *cel.Env, opts ...evaluatorOption) (*Evaluator, error) {
	e := &Evaluator{
		triggers: triggers,
		logger:   logr.Discard(),
	}

	for _, o := range opts {
		o(e)
	}

	if triggers.If != "" {
		prg, err := expression.Compile(celEnv, triggers.If)
		if err != nil {
			return nil, err
		}

		e.condition = prg
	}

	return e, nil
}

// ShouldRun reports whether the pipeline runs for the given event.
// Evaluation errors are logged and never start a run.
func (e *Evaluator) ShouldRun(event v1beta1.Event) bool {
	run, err := e.Evaluate(event)
	if err != nil {
		e.logger.Error(err, "trigger evaluation failed", "event", event.Kind)
		return false
	}

	return run
}

func (e *Evaluator) Evaluate(event v1beta1.Event) (bool, error) {
	filter, accepted := e.filterFor(event.Kind)
	if !accepted {
		e.logger.V(1).Info("event kind not accepted", "event", event.Kind)
		return false, nil
	}

	if filter != nil {
		ok, err := matchFilter(*filter, event)
		if err != nil || !ok {
			return false, err
		}
	}

	if e.condition != nil {
		ok, err := expression.EvalBool(e.condition, map[string]any{
			"event": expression.EventVars(event),
		})

		if err != nil {
			return false, fmt.Errorf("trigger condition `%s`: %w", e.triggers.If, err)
		}

		return ok, nil
	}

	return true, nil
}

func (e *Evaluator) filterFor(kind v1beta1.EventKind) (*v1beta1.EventFilter, bool) {
	if e.triggers.Push == nil && e.triggers.PullRequest == nil {
		return nil, kind == v1beta1.EventKindPush || kind == v1beta1.EventKindPullRequest
	}

	switch kind {
	case v1beta1.EventKindPush:
		return e.triggers.Push, e.triggers.Push != nil
	case v1beta1.EventKindPullRequest:
		return e.triggers.PullRequest, e.triggers.PullRequest != nil
	}

	return nil, false
}

func matchFilter(filter v1beta1.EventFilter, event v1beta1.Event) (bool, error) {
	if len(filter.Branches) > 0 {
		ok, err := matchAny(filter.Branches, event.Branch)
		if err != nil || !ok {
			return false, err
		}
	}

	if len(filter.BranchesIgnore) > 0 {
		ok, err := matchAny(filter.BranchesIgnore, event.Branch)
		if err != nil || ok {
			return false, err
		}
	}

	// Without known changed paths path filters can not exclude anything.
	if len(event.ChangedPaths) == 0 {
		return true, nil
	}

	if len(filter.Paths) > 0 {
		var matched bool
		for _, p := range event.ChangedPaths {
			ok, err := matchAny(filter.Paths, p)
			if err != nil {
				return false, err
			}

			if ok {
				matched = true
				break
			}
		}

		if !matched {
			return false, nil
		}
	}

	if len(filter.PathsIgnore) > 0 {
		for _, p := range event.ChangedPaths {
			ok, err := matchAny(filter.PathsIgnore, p)
			if err != nil {
				return false, err
			}

			if !ok {
				return true, nil
			}
		}

		return false, nil
	}

	return true, nil
}

func matchAny(patterns []string, name string) (bool, error) {
	for _, pattern := range patterns {
		ok, err := matchPattern(pattern, name)
		if err != nil {
			return false, fmt.Errorf("invalid pattern `%s`: %w", pattern, err)
		}

		if ok {
			return true, nil
		}
	}

	return false, nil
}

// matchPattern matches like path.Match while a trailing `/**` matches every nested path.
func matchPattern(pattern, name string) (bool, error) {
	if prefix, ok := cutSuffix(pattern, "/**"); ok {
		if name == prefix || len(name) > len(prefix) && name[:len(prefix)+1] == prefix+"/" {
			return true, nil
		}
	}

	if pattern == "**" {
		return true, nil
	}

	return path.Match(pattern, name)
}

func cutSuffix(s, suffix string) (string, bool) {
	if len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)], true
	}

	return s, false
}
