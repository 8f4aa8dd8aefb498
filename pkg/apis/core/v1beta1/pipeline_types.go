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

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// +kubebuilder:object:root=true
type Pipeline struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec PipelineSpec `json:"spec,omitempty"`
}

type PipelineSpec struct {
	Timeout       metav1.Duration   `json:"timeout,omitempty"`
	Image         string            `json:"image,omitempty"`
	Branches      *BranchFilter     `json:"branches,omitempty"`
	Vars          map[string]string `json:"vars,omitempty"`
	Env           []EnvVar          `json:"env,omitempty"`
	Matrix        Matrix            `json:"matrix,omitempty"`
	Phases        Phases            `json:"phases,omitempty"`
	Notifications []Notification    `json:"notifications,omitempty"`
}

func (p *Pipeline) SetDefaults() {
	for _, phase := range p.Spec.Phases.All() {
		for i := range phase.Steps {
			if phase.Steps[i].Name == "" {
				phase.Steps[i].Name = fmt.Sprintf("%s-%d", phase.Name, i)
			}
		}
	}

	for k := range p.Spec.Notifications {
		p.Spec.Notifications[k].SetDefaults()
	}
}

// BranchFilter restricts jobs to branches. Entries are anchored regular expressions.
type BranchFilter struct {
	Only   []string `json:"only,omitempty"`
	Except []string `json:"except,omitempty"`
}

type EnvVar struct {
	Name string `json:"name,omitempty"`
	// Value is taken from the calling environment if nil.
	Value *string `json:"value,omitempty"`
}

type Matrix struct {
	Axes     []Axis              `json:"axes,omitempty"`
	Include  []Include           `json:"include,omitempty"`
	Exclude  []map[string]string `json:"exclude,omitempty"`
	FailFast bool                `json:"failFast,omitempty"`
}

type Axis struct {
	Name   string   `json:"name,omitempty"`
	Values []string `json:"values,omitempty"`
}

type Include struct {
	Name     string            `json:"name,omitempty"`
	Axes     map[string]string `json:"axes,omitempty"`
	Vars     map[string]string `json:"vars,omitempty"`
	Env      []EnvVar          `json:"env,omitempty"`
	Branches *BranchFilter     `json:"branches,omitempty"`
	Image    string            `json:"image,omitempty"`
}

type PhaseName string

var (
	PhaseBeforeInstall PhaseName = "before_install"
	PhaseInstall       PhaseName = "install"
	PhaseBeforeScript  PhaseName = "before_script"
	PhaseScript        PhaseName = "script"
	PhaseAfterScript   PhaseName = "after_script"
)

type Phases struct {
	BeforeInstall []Step `json:"before_install,omitempty"`
	Install       []Step `json:"install,omitempty"`
	BeforeScript  []Step `json:"before_script,omitempty"`
	Script        []Step `json:"script,omitempty"`
	AfterScript   []Step `json:"after_script,omitempty"`
}

type Phase struct {
	Name  PhaseName
	Steps []Step
}

// Ordered returns the gated phases in execution order. after_script is not part of it.
func (p Phases) Ordered() []Phase {
	return []Phase{
		{Name: PhaseBeforeInstall, Steps: p.BeforeInstall},
		{Name: PhaseInstall, Steps: p.Install},
		{Name: PhaseBeforeScript, Steps: p.BeforeScript},
		{Name: PhaseScript, Steps: p.Script},
	}
}

// All returns every phase including after_script.
func (p Phases) All() []Phase {
	return append(p.Ordered(), Phase{Name: PhaseAfterScript, Steps: p.AfterScript})
}

type Step struct {
	Name            string          `json:"name,omitempty"`
	Run             string          `json:"run,omitempty"`
	Command         []string        `json:"command,omitempty"`
	If              string          `json:"if,omitempty"`
	ContinueOnError bool            `json:"continueOnError,omitempty"`
	Timeout         metav1.Duration `json:"timeout,omitempty"`
	Env             []EnvVar        `json:"env,omitempty"`
	WorkingDir      string          `json:"workingDir,omitempty"`
	Retry           *Retry          `json:"retry,omitempty"`
}

type Retry struct {
	Exponential metav1.Duration `json:"exponential,omitempty"`
	Constant    metav1.Duration `json:"constant,omitempty"`
	MaxRetries  int             `json:"maxRetries,omitempty"`
}

type SinkKind string

var (
	SinkKindEmail   SinkKind = "email"
	SinkKindWebhook SinkKind = "webhook"
	SinkKindChat    SinkKind = "chat"
)

type Trigger string

var (
	TriggerAlways Trigger = "always"
	TriggerChange Trigger = "change"
	TriggerNever  Trigger = "never"
)

type Notification struct {
	Name      string   `json:"name,omitempty"`
	Kind      SinkKind `json:"kind,omitempty"`
	URL       string   `json:"url,omitempty"`
	To        []string `json:"to,omitempty"`
	From      string   `json:"from,omitempty"`
	OnStart   Trigger  `json:"onStart,omitempty"`
	OnSuccess Trigger  `json:"onSuccess,omitempty"`
	OnFailure Trigger  `json:"onFailure,omitempty"`
}

func (n *Notification) SetDefaults() {
	if n.OnStart == "" {
		n.OnStart = TriggerNever
	}

	if n.OnSuccess == "" {
		n.OnSuccess = TriggerChange
	}

	if n.OnFailure == "" {
		n.OnFailure = TriggerAlways
	}

	if n.Name == "" {
		n.Name = string(n.Kind)
	}
}
