package executor

import (
	"fmt"
	"maps"
	"strings"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

const checkoutScript = `set -e
repository="${INPUT_REPOSITORY:-$RIGOR_SOURCE_PATH}"
if [ -n "$repository" ] && [ ! -e .git ]; then
  git clone --quiet "$repository" .
fi
ref="${INPUT_REF:-$RIGOR_SOURCE_SHA}"
if [ -n "$ref" ]; then
  git checkout --quiet "$ref"
fi
`

const toolchainScript = `set -e
: "${INPUT_TOOLCHAIN:?input toolchain is required}"
if ! command -v rustup >/dev/null 2>&1; then
  echo "rustup is not available in this environment" >&2
  exit 127
fi
rustup toolchain install "$INPUT_TOOLCHAIN" --profile minimal --no-self-update
rustup default "$INPUT_TOOLCHAIN"
if [ -n "$INPUT_COMPONENTS" ]; then
  rustup component add $(echo "$INPUT_COMPONENTS" | tr ',' ' ')
fi
`

// BuiltinActions are available to every pipeline. Actions declared by a pipeline take precedence.
var BuiltinActions = []v1beta1.Action{
	{
		Name:        "checkout",
		Description: "Checks out the validated source into the job workspace",
		Run:         checkoutScript,
	},
	{
		Name:        "toolchain",
		Description: "Installs a rust toolchain",
		Run:         toolchainScript,
	},
}

// Actions is a registry of named setup actions.
type Actions map[string]v1beta1.Action

// NewActions returns the builtin actions merged with declared.
func NewActions(declared []v1beta1.Action) Actions {
	actions := make(Actions, len(BuiltinActions)+len(declared))
	for _, action := range BuiltinActions {
		actions[action.Name] = action
	}

	for _, action := range declared {
		actions[action.Name] = action
	}

	return actions
}

func (a Actions) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Resolve turns a `uses` step into a `run` step. Parameters are passed as INPUT_<NAME>
// environment variables without modification.
func (a Actions) Resolve(step v1beta1.Step) (v1beta1.Step, error) {
	if step.Uses == "" {
		return step, nil
	}

	action, ok := a[step.Uses]
	if !ok {
		return step, fmt.Errorf("unknown action `%s`", step.Uses)
	}

	step.Run = action.Run
	step.Env = maps.Clone(step.Env)
	if step.Env == nil {
		step.Env = make(map[string]string, len(step.With))
	}

	for name, value := range step.With {
		step.Env[InputEnvName(name)] = value
	}

	return step, nil
}

// InputEnvName returns the environment variable name of an action parameter.
func InputEnvName(name string) string {
	name = strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(name)
	return "INPUT_" + strings.ToUpper(name)
}
