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
	"fmt"
)

func (in *Pipeline) SetDefaults() {
	if in.PipelineSpec.Name == "" {
		in.PipelineSpec.Name = in.ObjectMeta.Name
	}

	for i := range in.Stages {
		in.Stages[i].SetDefaults()
	}
}

// SetDefaults names unnamed steps after their action or their position.
func (in *Stage) SetDefaults() {
	for i := range in.Steps {
		step := &in.Steps[i]
		if step.Name != "" {
			continue
		}

		if step.Uses != "" {
			step.Name = step.Uses
			continue
		}

		step.Name = fmt.Sprintf("step-%d", i+1)
	}
}
