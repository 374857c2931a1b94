/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1beta1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// DigestAnnotation carries the digest of the definition a pipeline was decoded from.
const DigestAnnotation = "rigor.raffis.github.io/digest"

// +kubebuilder:object:root=true
type Pipeline struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	PipelineSpec `json:",inline"`
}

type PipelineSpec struct {
	Name         string        `json:"name,omitempty"`
	Description  string        `json:"description,omitempty"`
	On           Triggers      `json:"on,omitempty"`
	Environments []Environment `json:"environments,omitempty"`
	Actions      []Action      `json:"actions,omitempty"`
	// Secrets names environment variables whose values are masked in captured output.
	Secrets []string `json:"secrets,omitempty"`
	Stages  []Stage  `json:"stages,omitempty"`
}

// Triggers decides which repository events start a run.
// With neither Push nor PullRequest set every event kind is accepted.
type Triggers struct {
	Push        *EventFilter `json:"push,omitempty"`
	PullRequest *EventFilter `json:"pullRequest,omitempty"`
	If          string       `json:"if,omitempty"`
}

type EventFilter struct {
	Branches       []string `json:"branches,omitempty"`
	BranchesIgnore []string `json:"branchesIgnore,omitempty"`
	Paths          []string `json:"paths,omitempty"`
	PathsIgnore    []string `json:"pathsIgnore,omitempty"`
}

// Environment maps an environment selector (runsOn) to a runtime.
type Environment struct {
	Name    string            `json:"name,omitempty"`
	Runtime string            `json:"runtime,omitempty"`
	Image   string            `json:"image,omitempty"`
	Shell   []string          `json:"shell,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Action is a named setup action referenced by steps through `uses`.
type Action struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Run         string `json:"run,omitempty"`
}

type Stage struct {
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	RunsOn      string            `json:"runsOn,omitempty"`
	Matrix      *Matrix           `json:"matrix,omitempty"`
	FailFast    bool              `json:"failFast,omitempty"`
	MaxParallel int               `json:"maxParallel,omitempty"`
	Timeout     metav1.Duration   `json:"timeout,omitempty"`
	Needs       []string          `json:"needs,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Steps       []Step            `json:"steps,omitempty"`
}

type Matrix struct {
	Axes []Axis `json:"axes,omitempty"`
}

type Axis struct {
	Name   string   `json:"name,omitempty"`
	Values []string `json:"values,omitempty"`
}

type Step struct {
	Name            string            `json:"name,omitempty"`
	Uses            string            `json:"uses,omitempty"`
	With            map[string]string `json:"with,omitempty"`
	Run             string            `json:"run,omitempty"`
	WorkDir         string            `json:"workDir,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
	If              string            `json:"if,omitempty"`
	Timeout         metav1.Duration   `json:"timeout,omitempty"`
	Retry           *Retry            `json:"retry,omitempty"`
	ContinueOnError bool              `json:"continueOnError,omitempty"`
}

type Retry struct {
	Exponential metav1.Duration `json:"exponential,omitempty"`
	Constant    metav1.Duration `json:"constant,omitempty"`
	MaxRetries  int             `json:"maxRetries,omitempty"`
}

// +kubebuilder:object:root=true
type PipelineList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Pipeline `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Pipeline{}, &PipelineList{})
}
