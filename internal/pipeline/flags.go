package pipeline

import (
	"github.com/spf13/pflag"

	"github.com/raffis/rigor/internal/trigger"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

// EventOptions builds the triggering event from flags. Unset flags fall back to
// the GitHub Actions environment.
type EventOptions struct {
	Kind         string
	Ref          string
	Branch       string
	BaseBranch   string
	SHA          string
	Repository   string
	ChangedPaths []string
}

func (o *EventOptions) BindFlags(set *pflag.FlagSet) {
	set.StringVarP(&o.Kind, "event", "e", o.Kind, "Event kind (push, pull_request). Defaults to $GITHUB_EVENT_NAME or push")
	set.StringVar(&o.Ref, "ref", o.Ref, "Git ref of the event. Defaults to $GITHUB_REF")
	set.StringVar(&o.Branch, "branch", o.Branch, "Branch of the event, the head branch for pull requests")
	set.StringVar(&o.BaseBranch, "base-branch", o.BaseBranch, "Base branch of a pull request. Defaults to $GITHUB_BASE_REF")
	set.StringVar(&o.SHA, "sha", o.SHA, "Commit sha of the event. Defaults to $GITHUB_SHA")
	set.StringVar(&o.Repository, "repository", o.Repository, "Repository of the event. Defaults to $GITHUB_REPOSITORY")
	set.StringSliceVar(&o.ChangedPaths, "changed-path", o.ChangedPaths, "Path changed by the event. Can be repeated")
}

// Event returns the event described by the flags, completed from getenv.
func (o *EventOptions) Event(getenv func(string) string) (v1beta1.Event, error) {
	event, found, err := trigger.EventFromEnv(getenv)
	if err != nil && o.Kind == "" {
		return event, err
	}

	if !found {
		event = v1beta1.Event{Kind: v1beta1.EventKindPush}
	}

	// The kind flag also replaces an unsupported kind from the environment.
	if o.Kind != "" {
		kind, err := trigger.ParseEventKind(o.Kind)
		if err != nil {
			return event, err
		}

		event.Kind = kind
	}

	set := func(dst *string, value string) {
		if value != "" {
			*dst = value
		}
	}

	set(&event.Ref, o.Ref)
	set(&event.SHA, o.SHA)
	set(&event.Repository, o.Repository)
	set(&event.BaseBranch, o.BaseBranch)
	set(&event.Branch, o.Branch)

	if event.Branch == "" && event.Kind == v1beta1.EventKindPush {
		event.Branch = trigger.BranchFromRef(event.Ref)
	}

	if len(o.ChangedPaths) > 0 {
		event.ChangedPaths = o.ChangedPaths
	}

	return event, nil
}
