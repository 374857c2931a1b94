package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration is wrapped by every ConfigError.
var ErrConfiguration = errors.New("invalid pipeline configuration")

// ConfigError lists every problem found in a pipeline definition.
// No job is executed for a pipeline with a configuration error.
type ConfigError struct {
	Errs []error
}

func (e *ConfigError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}

	return fmt.Sprintf("%s: %s", ErrConfiguration, strings.Join(msgs, "; "))
}

func (e *ConfigError) Unwrap() []error {
	return append([]error{ErrConfiguration}, e.Errs...)
}

func NewErrDuplicateStage(name string) error {
	return fmt.Errorf("duplicate stage `%s`", name)
}

func NewErrDuplicateStep(stage, name string) error {
	return fmt.Errorf("stage `%s`: duplicate step `%s`", stage, name)
}

func NewErrUnknownAction(stage, step, action string) error {
	return fmt.Errorf("stage `%s`: step `%s`: unknown action `%s`", stage, step, action)
}

func NewErrRunOrUses(stage, step string) error {
	return fmt.Errorf("stage `%s`: step `%s`: exactly one of `run` or `uses` is required", stage, step)
}

func NewErrUnknownNeed(stage, need string) error {
	return fmt.Errorf("stage `%s`: needs unknown stage `%s`", stage, need)
}

func NewErrCycle(stages []string) error {
	return fmt.Errorf("stage dependency cycle: %s", strings.Join(stages, " -> "))
}
