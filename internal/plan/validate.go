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

package plan

import (
	"fmt"

	"github.com/lf-edge/planopt/pkg/errorx"
)

// Validate checks the well-formedness of the graph. It returns a
// MalformedPlanError naming the first violation found.
func (g *Graph) Validate() error {
	if len(g.ops) == 0 {
		return errorx.NewMalformedPlanError("plan is empty")
	}
	ops := g.Operators()
	for _, op := range ops {
		if op.Desc == nil {
			return errorx.NewMalformedPlanError(fmt.Sprintf("operator %d has no descriptor", op.ID))
		}
		if op.Desc.Kind() != op.Kind {
			return errorx.NewMalformedPlanError(fmt.Sprintf("operator %d is a %s with a %s descriptor", op.ID, op.Kind, op.Desc.Kind()))
		}
		min, max := op.Kind.arity()
		n := len(op.Inputs)
		if n < min || (max >= 0 && n > max) {
			return errorx.NewMalformedPlanError(fmt.Sprintf("%s operator %d has %d inputs", op.Kind, op.ID, n))
		}
		// A union or join may list one producer in several slots: UNION ALL
		// of the same input and self joins read it once per slot.
		for _, in := range op.Inputs {
			if in == op.ID {
				return errorx.NewMalformedPlanError(fmt.Sprintf("operator %d reads from itself", op.ID))
			}
			if _, ok := g.ops[in]; !ok {
				return errorx.NewMalformedPlanError(fmt.Sprintf("operator %d references missing input %d", op.ID, in))
			}
		}
	}
	if _, err := g.TopoOrder(); err != nil {
		return err
	}

	consumed := make(map[OpID]bool, len(ops))
	for _, op := range ops {
		for _, in := range op.Inputs {
			consumed[in] = true
		}
	}
	sinks := 0
	for _, op := range ops {
		if op.Kind == Sink {
			sinks++
			if consumed[op.ID] {
				return errorx.NewMalformedPlanError(fmt.Sprintf("sink operator %d has consumers", op.ID))
			}
		} else if !consumed[op.ID] {
			return errorx.NewMalformedPlanError(fmt.Sprintf("%s operator %d has no consumer", op.Kind, op.ID))
		}
	}
	if sinks == 0 {
		return errorx.NewMalformedPlanError("plan has no sink")
	}
	if sinks > 1 && !g.allowMultiSink {
		return errorx.NewMalformedPlanError(fmt.Sprintf("plan has %d sinks", sinks))
	}
	return g.checkConnected(ops)
}

func (g *Graph) checkConnected(ops []*Operator) error {
	adj := make(map[OpID][]OpID, len(ops))
	for _, op := range ops {
		for _, in := range op.Inputs {
			adj[op.ID] = append(adj[op.ID], in)
			adj[in] = append(adj[in], op.ID)
		}
	}
	visited := map[OpID]bool{ops[0].ID: true}
	stack := []OpID{ops[0].ID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, n := range adj[id] {
			if !visited[n] {
				visited[n] = true
				stack = append(stack, n)
			}
		}
	}
	for _, op := range ops {
		if !visited[op.ID] {
			return errorx.NewMalformedPlanError(fmt.Sprintf("%s operator %d is not connected to the plan", op.Kind, op.ID))
		}
	}
	return nil
}
