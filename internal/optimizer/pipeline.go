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

package optimizer

import (
	"github.com/lf-edge/planopt/internal/pass"
)

// Pipeline is the ordered pass list of one compilation. It is immutable
// once built.
type Pipeline struct {
	passes   []pass.Pass
	warnings []string
}

// NewPipeline schedules the given passes as is.
func NewPipeline(passes ...pass.Pass) *Pipeline {
	return &Pipeline{passes: append([]pass.Pass(nil), passes...)}
}

func (p *Pipeline) Len() int {
	return len(p.passes)
}

func (p *Pipeline) Passes() []pass.Pass {
	return append([]pass.Pass(nil), p.passes...)
}

func (p *Pipeline) Names() []string {
	names := make([]string, len(p.passes))
	for i, ps := range p.passes {
		names[i] = ps.Name()
	}
	return names
}

// Infos describes every pass with its parameters, in order.
func (p *Pipeline) Infos() []pass.Info {
	infos := make([]pass.Info, len(p.passes))
	for i, ps := range p.passes {
		infos[i] = pass.Describe(ps)
	}
	return infos
}

// Warnings lists the passes the configuration asked for but the engine
// cannot run.
func (p *Pipeline) Warnings() []string {
	return append([]string(nil), p.warnings...)
}
