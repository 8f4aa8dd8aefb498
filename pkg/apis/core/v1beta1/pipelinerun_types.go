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

type RunStatus string

var (
	RunStatusPassed RunStatus = "Passed"
	RunStatusFailed RunStatus = "Failed"
)

// PipelineRunStatus is the last known outcome of a pipeline for a branch.
type PipelineRunStatus struct {
	RunID      string      `json:"runID,omitempty"`
	Pipeline   string      `json:"pipeline,omitempty"`
	Branch     string      `json:"branch,omitempty"`
	Status     RunStatus   `json:"status,omitempty"`
	Jobs       int         `json:"jobs,omitempty"`
	FinishedAt metav1.Time `json:"finishedAt,omitempty"`
}

type PipelineRunStatusList struct {
	metav1.TypeMeta `json:",inline"`
	Items           map[string]PipelineRunStatus `json:"items"`
}
