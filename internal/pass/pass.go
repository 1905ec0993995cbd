// Copyright 2024 EMQ Technologies Co., Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pass holds the rewrite passes the optimizer pipeline sequences.
package pass

import (
	"github.com/lf-edge/planopt/internal/plan"
)

// Params are the construction parameters of a pass, nil when it has none.
type Params map[string]any

// Pass is one semantics preserving rewrite. Implementations hold no state
// besides their immutable parameters and may be reused across compilations.
//
// Apply takes ownership of pc. It returns the successor context, which may
// be pc itself when nothing changed, or an error. On error the caller drops
// the compilation.
type Pass interface {
	Name() string
	Params() Params
	Apply(pc *plan.Context) (*plan.Context, error)
}

// Info identifies a scheduled pass by name and parameters.
type Info struct {
	Name   string `json:"name"`
	Params Params `json:"params,omitempty"`
}

func Describe(p Pass) Info {
	return Info{Name: p.Name(), Params: p.Params()}
}

// rewrite runs fn on a clone of the plan graph and hands over the clone.
func rewrite(pc *plan.Context, fn func(g *plan.Graph) error) (*plan.Context, error) {
	return pc.Rewrite(fn)
}

// identity stands for a pass whose body lives outside this module. It keeps
// the slot in the pipeline and returns the plan unchanged.
type identity struct {
	name   string
	params Params
}

func (p *identity) Name() string {
	return p.name
}

func (p *identity) Params() Params {
	return p.params
}

func (p *identity) Apply(pc *plan.Context) (*plan.Context, error) {
	return pc, nil
}
