package v1beta1

type EventKind string

var (
	EventKindPush        EventKind = "push"
	EventKindPullRequest EventKind = "pull_request"
)

// Event is a repository event raised by the hosting platform.
type Event struct {
	Kind         EventKind `json:"kind"`
	Ref          string    `json:"ref,omitempty"`
	Branch       string    `json:"branch,omitempty"`
	BaseBranch   string    `json:"baseBranch,omitempty"`
	SHA          string    `json:"sha,omitempty"`
	Repository   string    `json:"repository,omitempty"`
	ChangedPaths []string  `json:"changedPaths,omitempty"`
}

// Source references the checked-out revision every job validates.
// It is never mutated once a run started.
type Source struct {
	Repository string `json:"repository,omitempty"`
	Ref        string `json:"ref,omitempty"`
	SHA        string `json:"sha,omitempty"`
	Path       string `json:"path,omitempty"`
}

func (e Event) Source(path string) Source {
	return Source{
		Repository: e.Repository,
		Ref:        e.Ref,
		SHA:        e.SHA,
		Path:       path,
	}
}

func (e Event) Vars() map[string]string {
	return map[string]string{
		"event.kind":       string(e.Kind),
		"event.ref":        e.Ref,
		"event.branch":     e.Branch,
		"event.baseBranch": e.BaseBranch,
		"event.sha":        e.SHA,
		"event.repository": e.Repository,
	}
}
