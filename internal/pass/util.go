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

package pass

import (
	"github.com/lf-edge/planopt/internal/plan"
	"github.com/lf-edge/planopt/pkg/ast"
)

// soleConsumer returns the only consumer of id, if exactly one input slot
// reads it.
func soleConsumer(g *plan.Graph, id plan.OpID) (plan.OpID, bool) {
	c := g.Consumers(id)
	if len(c) != 1 || g.Reads(id) != 1 {
		return 0, false
	}
	return c[0], true
}

func filterCondition(op *plan.Operator) ast.Expr {
	return op.Desc.(plan.FilterDesc).Condition
}

// containsExpr reports whether list holds an expression printing like e.
func containsExpr(list []ast.Expr, e ast.Expr) bool {
	s := e.String()
	for _, x := range list {
		if x.String() == s {
			return true
		}
	}
	return false
}

// appendUnique adds the expressions not yet in list.
func appendUnique(list []ast.Expr, exprs ...ast.Expr) []ast.Expr {
	for _, e := range exprs {
		if !containsExpr(list, e) {
			list = append(list, e)
		}
	}
	return list
}

// columnSet indexes output columns by their printed form.
type columnSet map[string]struct{}

func newColumnSet(cols []*ast.FieldRef) columnSet {
	s := make(columnSet, len(cols))
	for _, c := range cols {
		s[c.String()] = struct{}{}
	}
	return s
}

func (s columnSet) has(ref *ast.FieldRef) bool {
	_, ok := s[ref.String()]
	return ok
}

// coversRefs reports whether every column referenced by e is in s. A
// condition without column references is not covered.
func (s columnSet) covers(e ast.Expr) bool {
	refs := ast.FieldRefs(e)
	if len(refs) == 0 {
		return false
	}
	for _, r := range refs {
		if !s.has(r) {
			return false
		}
	}
	return true
}

// pushFilter adds conditions on input slot of consumer. An existing filter
// owned by that slot absorbs them. It reports whether anything new was added.
func pushFilter(g *plan.Graph, consumer plan.OpID, slot int, conds []ast.Expr) (bool, error) {
	if len(conds) == 0 {
		return false, nil
	}
	producer := g.Op(consumer).Inputs[slot]
	op := g.Op(producer)
	if op.Kind == plan.Filter {
		if c, ok := soleConsumer(g, producer); ok && c == consumer {
			existing := ast.Conjuncts(filterCondition(op))
			merged := appendUnique(existing, conds...)
			if len(merged) == len(existing) {
				return false, nil
			}
			return true, g.SetDesc(producer, plan.FilterDesc{Condition: ast.And(merged...)})
		}
	}
	_, err := g.InsertOnInput(consumer, slot, plan.FilterDesc{Condition: ast.And(appendUnique(nil, conds...)...)})
	return err == nil, err
}

// substitute replaces the column references found in m.
func substitute(e ast.Expr, m map[string]ast.Expr) ast.Expr {
	return ast.Rewrite(e, func(x ast.Expr) ast.Expr {
		if f, ok := x.(*ast.FieldRef); ok {
			if r, ok := m[f.String()]; ok {
				return r
			}
		}
		return x
	})
}

// projection maps the output columns of a project to their expressions.
func projection(items []plan.ProjectItem) map[string]ast.Expr {
	m := make(map[string]ast.Expr, len(items))
	for _, it := range items {
		m[plan.ItemColumn(it).String()] = it.Expr
	}
	return m
}

// scanColumn is a column traced back to the scan producing it.
type scanColumn struct {
	scan plan.OpID
	desc plan.ScanDesc
	name string
}

// traceToScan follows a column down through operators that forward it
// unchanged until the producing scan.
func traceToScan(g *plan.Graph, id plan.OpID, ref *ast.FieldRef) (scanColumn, bool) {
	for steps := 0; steps <= g.Len(); steps++ {
		op := g.Op(id)
		if op == nil {
			return scanColumn{}, false
		}
		switch d := op.Desc.(type) {
		case plan.ScanDesc:
			if ref.Table != "" && ref.Table != d.Alias {
				return scanColumn{}, false
			}
			for _, c := range d.Columns {
				if c == ref.Name {
					return scanColumn{scan: id, desc: d, name: c}, true
				}
			}
			return scanColumn{}, false
		case plan.FilterDesc, plan.SortDesc, plan.LimitDesc:
			id = op.Inputs[0]
		case plan.ProjectDesc:
			e, ok := projection(d.Items)[ref.String()]
			if !ok {
				return scanColumn{}, false
			}
			f, ok := e.(*ast.FieldRef)
			if !ok {
				return scanColumn{}, false
			}
			ref, id = f, op.Inputs[0]
		case plan.JoinDesc:
			found := false
			for _, in := range op.Inputs {
				if newColumnSet(g.OutputColumns(in)).has(ref) {
					id, found = in, true
					break
				}
			}
			if !found {
				return scanColumn{}, false
			}
		default:
			return scanColumn{}, false
		}
	}
	return scanColumn{}, false
}

// inputOf returns the position of the join input providing every column of
// e, or -1.
func inputOf(g *plan.Graph, op *plan.Operator, e ast.Expr) int {
	for i, in := range op.Inputs {
		if newColumnSet(g.OutputColumns(in)).covers(e) {
			return i
		}
	}
	return -1
}

// keyPair is an equality between columns of two join inputs.
type keyPair struct {
	leftInput, rightInput int
	left, right           *ast.FieldRef
}

// equiKeys returns the column equalities of a join condition whose sides
// come from different inputs.
func equiKeys(g *plan.Graph, op *plan.Operator) []keyPair {
	d := op.Desc.(plan.JoinDesc)
	var pairs []keyPair
	for _, c := range ast.Conjuncts(d.Condition) {
		l, r, ok := ast.EquiJoinKey(c)
		if !ok {
			continue
		}
		li, ri := inputOf(g, op, l), inputOf(g, op, r)
		if li < 0 || ri < 0 || li == ri {
			continue
		}
		pairs = append(pairs, keyPair{leftInput: li, rightInput: ri, left: l, right: r})
	}
	return pairs
}
