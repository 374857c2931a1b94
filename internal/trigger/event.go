package trigger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

var ErrUnknownEventKind = errors.New("unknown event kind")

// ParseEventKind accepts the kinds used by common hosting platforms.
func ParseEventKind(kind string) (v1beta1.EventKind, error) {
	switch strings.ToLower(kind) {
	case "push":
		return v1beta1.EventKindPush, nil
	case "pull_request", "pull-request", "pullrequest", "pull_request_target", "merge_request":
		return v1beta1.EventKindPullRequest, nil
	}

	return "", fmt.Errorf("%w: `%s`", ErrUnknownEventKind, kind)
}

// EventFromEnv builds an event from GitHub Actions style environment variables.
// It returns false if no event kind is found. An unsupported event kind is returned
// as is together with ErrUnknownEventKind and all other fields populated.
func EventFromEnv(getenv func(string) string) (v1beta1.Event, bool, error) {
	name := getenv("GITHUB_EVENT_NAME")
	if name == "" {
		return v1beta1.Event{}, false, nil
	}

	kind, err := ParseEventKind(name)
	if err != nil {
		kind = v1beta1.EventKind(name)
	}

	event := v1beta1.Event{
		Kind:       kind,
		Ref:        getenv("GITHUB_REF"),
		SHA:        getenv("GITHUB_SHA"),
		Repository: getenv("GITHUB_REPOSITORY"),
	}

	switch kind {
	case v1beta1.EventKindPullRequest:
		event.Branch = getenv("GITHUB_HEAD_REF")
		event.BaseBranch = getenv("GITHUB_BASE_REF")
	default:
		event.Branch = BranchFromRef(event.Ref)
	}

	return event, true, err
}

// BranchFromRef strips the `refs/heads/` prefix of a git ref.
func BranchFromRef(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}
