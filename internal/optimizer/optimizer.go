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
	"github.com/lf-edge/planopt/internal/pkg/def"
	"github.com/lf-edge/planopt/internal/plan"
	"github.com/lf-edge/planopt/pkg/errorx"
)

// Optimizer builds the pipeline of a compilation from its flags and runs it.
type Optimizer struct {
	builder  *Builder
	executor *Executor
}

// New pairs a builder with an executor. Nil arguments select the shipped
// passes and a default executor.
func New(b *Builder, e *Executor) *Optimizer {
	if b == nil {
		b = defaultBuilder
	}
	if e == nil {
		e = NewExecutor()
	}
	return &Optimizer{builder: b, executor: e}
}

func (o *Optimizer) Optimize(opt def.OptimizerOption, pc *plan.Context) (*Result, error) {
	if pc == nil || pc.Consumed() {
		return nil, errorx.NewMalformedPlanError("no usable plan context to optimize")
	}
	p, err := o.builder.Build(opt, pc.Flags())
	if err != nil {
		return nil, err
	}
	return o.executor.Run(p, pc)
}
