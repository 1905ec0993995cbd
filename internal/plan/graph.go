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
	"sort"

	"github.com/lf-edge/planopt/pkg/errorx"
)

// Graph is the operator DAG of a query. Edges run from a producer, listed in
// Operator.Inputs, to its consumers. The graph may be temporarily malformed
// while a pass edits its own clone; Validate checks it at pass boundaries.
type Graph struct {
	ops            map[OpID]*Operator
	nextID         OpID
	allowMultiSink bool
}

func NewGraph() *Graph {
	return &Graph{ops: make(map[OpID]*Operator), nextID: 1}
}

// Add appends an operator and returns its id. Ids are never reused.
func (g *Graph) Add(desc Desc, inputs ...OpID) OpID {
	id := g.nextID
	g.nextID++
	g.ops[id] = &Operator{
		ID:     id,
		Kind:   desc.Kind(),
		Inputs: append([]OpID(nil), inputs...),
		Desc:   desc,
	}
	return id
}

// Op returns the operator or nil. The result must be treated as read only;
// use the graph methods to change it.
func (g *Graph) Op(id OpID) *Operator {
	return g.ops[id]
}

func (g *Graph) Len() int {
	return len(g.ops)
}

// Operators returns every operator ordered by id.
func (g *Graph) Operators() []*Operator {
	result := make([]*Operator, 0, len(g.ops))
	for _, op := range g.ops {
		result = append(result, op)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// OfKind returns the ids of the operators of kind k, ordered by id.
func (g *Graph) OfKind(k OpKind) []OpID {
	var result []OpID
	for _, op := range g.Operators() {
		if op.Kind == k {
			result = append(result, op.ID)
		}
	}
	return result
}

// Consumers returns the operators reading from id, ordered by id.
func (g *Graph) Consumers(id OpID) []OpID {
	var result []OpID
	for _, op := range g.Operators() {
		for _, in := range op.Inputs {
			if in == id {
				result = append(result, op.ID)
				break
			}
		}
	}
	return result
}

// Reads counts the input slots reading id over the whole graph.
func (g *Graph) Reads(id OpID) int {
	n := 0
	for _, op := range g.ops {
		for _, in := range op.Inputs {
			if in == id {
				n++
			}
		}
	}
	return n
}

func (g *Graph) Sinks() []OpID {
	return g.OfKind(Sink)
}

// AllowMultiSink accepts more than one sink operator, e.g. for multi insert.
func (g *Graph) AllowMultiSink() {
	g.allowMultiSink = true
}

func (g *Graph) MultiSinkAllowed() bool {
	return g.allowMultiSink
}

func (g *Graph) mustOp(id OpID) (*Operator, error) {
	op, ok := g.ops[id]
	if !ok {
		return nil, errorx.NewMalformedPlanError(fmt.Sprintf("operator %d not found", id))
	}
	return op, nil
}

func (g *Graph) SetInputs(id OpID, inputs ...OpID) error {
	op, err := g.mustOp(id)
	if err != nil {
		return err
	}
	op.Inputs = append([]OpID(nil), inputs...)
	return nil
}

// SetDesc replaces the descriptor. The kind cannot change.
func (g *Graph) SetDesc(id OpID, desc Desc) error {
	op, err := g.mustOp(id)
	if err != nil {
		return err
	}
	if desc.Kind() != op.Kind {
		return errorx.NewMalformedPlanError(fmt.Sprintf("cannot change operator %d from %s to %s", id, op.Kind, desc.Kind()))
	}
	op.Desc = desc
	return nil
}

func (g *Graph) SetProp(id OpID, key string, value any) error {
	op, err := g.mustOp(id)
	if err != nil {
		return err
	}
	if op.Props == nil {
		op.Props = make(map[string]any)
	}
	op.Props[key] = value
	return nil
}

// Remove deletes an operator nobody consumes.
func (g *Graph) Remove(id OpID) error {
	if _, err := g.mustOp(id); err != nil {
		return err
	}
	if c := g.Consumers(id); len(c) > 0 {
		return errorx.NewMalformedPlanError(fmt.Sprintf("cannot remove operator %d consumed by %v", id, c))
	}
	delete(g.ops, id)
	return nil
}

// Splice removes a single input operator and connects its consumers to its
// input directly.
func (g *Graph) Splice(id OpID) error {
	op, err := g.mustOp(id)
	if err != nil {
		return err
	}
	if len(op.Inputs) != 1 {
		return errorx.NewMalformedPlanError(fmt.Sprintf("cannot splice operator %d with %d inputs", id, len(op.Inputs)))
	}
	in := op.Inputs[0]
	for _, c := range g.Consumers(id) {
		replaceInput(g.ops[c], id, in)
	}
	delete(g.ops, id)
	return nil
}

// InsertAbove adds a single input operator reading from id and moves every
// previous consumer of id onto it.
func (g *Graph) InsertAbove(id OpID, desc Desc) (OpID, error) {
	if _, err := g.mustOp(id); err != nil {
		return 0, err
	}
	consumers := g.Consumers(id)
	nid := g.Add(desc, id)
	for _, c := range consumers {
		replaceInput(g.ops[c], id, nid)
	}
	return nid, nil
}

// InsertOnEdge adds a single input operator between producer and one of its
// consumers. Other consumers of producer are untouched.
func (g *Graph) InsertOnEdge(producer, consumer OpID, desc Desc) (OpID, error) {
	if _, err := g.mustOp(producer); err != nil {
		return 0, err
	}
	c, err := g.mustOp(consumer)
	if err != nil {
		return 0, err
	}
	found := false
	for _, in := range c.Inputs {
		if in == producer {
			found = true
			break
		}
	}
	if !found {
		return 0, errorx.NewMalformedPlanError(fmt.Sprintf("operator %d does not read from %d", consumer, producer))
	}
	nid := g.Add(desc, producer)
	replaceInput(c, producer, nid)
	return nid, nil
}

// InsertOnInput adds a single input operator on input slot of consumer. Other
// slots reading the same producer are untouched.
func (g *Graph) InsertOnInput(consumer OpID, slot int, desc Desc) (OpID, error) {
	c, err := g.mustOp(consumer)
	if err != nil {
		return 0, err
	}
	if slot < 0 || slot >= len(c.Inputs) {
		return 0, errorx.NewMalformedPlanError(fmt.Sprintf("operator %d has no input %d", consumer, slot))
	}
	nid := g.Add(desc, c.Inputs[slot])
	c.Inputs[slot] = nid
	return nid, nil
}

func replaceInput(op *Operator, from, to OpID) {
	for i, in := range op.Inputs {
		if in == from {
			op.Inputs[i] = to
		}
	}
}

// Clone deep copies the graph structure. Expressions are shared.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		ops:            make(map[OpID]*Operator, len(g.ops)),
		nextID:         g.nextID,
		allowMultiSink: g.allowMultiSink,
	}
	for id, op := range g.ops {
		c.ops[id] = op.clone()
	}
	return c
}

// TopoOrder returns the operator ids with every producer before its
// consumers. Ties are broken by id. It fails on cycles and dangling inputs.
func (g *Graph) TopoOrder() ([]OpID, error) {
	indegree := make(map[OpID]int, len(g.ops))
	consumers := make(map[OpID][]OpID, len(g.ops))
	for _, op := range g.Operators() {
		indegree[op.ID] += 0
		for _, in := range op.Inputs {
			if _, ok := g.ops[in]; !ok {
				return nil, errorx.NewMalformedPlanError(fmt.Sprintf("operator %d references missing input %d", op.ID, in))
			}
			indegree[op.ID]++
			consumers[in] = append(consumers[in], op.ID)
		}
	}
	var ready []OpID
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	order := make([]OpID, 0, len(g.ops))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, c := range consumers[id] {
			indegree[c]--
			if indegree[c] == 0 {
				ready = append(ready, c)
			}
		}
	}
	if len(order) != len(g.ops) {
		return nil, errorx.NewMalformedPlanError("plan contains a cycle")
	}
	return order, nil
}
