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

// predicatePushdown moves filter conjuncts as close to the scans as the
// operators in between allow. The simple variant only crosses filters,
// projections and sorts.
type predicatePushdown struct {
	name string
	full bool
}

func (p *predicatePushdown) Name() string {
	return p.name
}

func (p *predicatePushdown) Params() Params {
	return nil
}

func (p *predicatePushdown) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		limit := 4*g.Len() + 16
		for i := 0; i < limit; i++ {
			changed, err := p.step(g)
			if err != nil || !changed {
				return err
			}
		}
		return nil
	})
}

// step performs the first possible move and reports whether it found one.
func (p *predicatePushdown) step(g *plan.Graph) (bool, error) {
	if p.full {
		for _, jid := range g.OfKind(plan.Join) {
			if changed, err := pushJoinCondition(g, jid); changed || err != nil {
				return changed, err
			}
		}
	}
	for _, id := range g.OfKind(plan.Filter) {
		if changed, err := p.pushDown(g, id); changed || err != nil {
			return changed, err
		}
	}
	return false, nil
}

func (p *predicatePushdown) pushDown(g *plan.Graph, id plan.OpID) (bool, error) {
	op := g.Op(id)
	child := g.Op(op.Inputs[0])
	if c, ok := soleConsumer(g, child.ID); !ok || c != id {
		return false, nil
	}
	conjuncts := ast.Conjuncts(filterCondition(op))
	if len(conjuncts) == 0 {
		return false, nil
	}
	var (
		rest     []ast.Expr
		pushed   = make(map[int][]ast.Expr)
		joinCond []ast.Expr
	)
	switch d := child.Desc.(type) {
	case plan.FilterDesc:
		merged := appendUnique(ast.Conjuncts(d.Condition), conjuncts...)
		if err := g.SetDesc(child.ID, plan.FilterDesc{Condition: ast.And(merged...)}); err != nil {
			return false, err
		}
		return true, g.Splice(id)
	case plan.ProjectDesc:
		m := projection(d.Items)
		cols := make(columnSet, len(m))
		for k := range m {
			cols[k] = struct{}{}
		}
		for _, c := range conjuncts {
			if cols.covers(c) {
				if s := substitute(c, m); !ast.HasAggregate(s) {
					pushed[0] = append(pushed[0], s)
					continue
				}
			}
			rest = append(rest, c)
		}
	case plan.SortDesc:
		pushed[0] = conjuncts
	case plan.AggregateDesc:
		if !p.full {
			return false, nil
		}
		m := make(map[string]ast.Expr, len(d.GroupKeys))
		cols := make(columnSet, len(d.GroupKeys))
		for _, k := range d.GroupKeys {
			name := plan.ItemColumn(plan.ProjectItem{Expr: k}).String()
			m[name] = k
			cols[name] = struct{}{}
		}
		for _, c := range conjuncts {
			if cols.covers(c) {
				pushed[0] = append(pushed[0], substitute(c, m))
			} else {
				rest = append(rest, c)
			}
		}
	case plan.UnionDesc:
		if !p.full {
			return false, nil
		}
		out := g.OutputColumns(child.ID)
		outSet := newColumnSet(out)
		mappings := make([]map[string]ast.Expr, len(child.Inputs))
		for i, in := range child.Inputs {
			cols := g.OutputColumns(in)
			if len(cols) != len(out) {
				return false, nil
			}
			mappings[i] = make(map[string]ast.Expr, len(out))
			for j, c := range out {
				mappings[i][c.String()] = cols[j]
			}
		}
		for _, c := range conjuncts {
			if !outSet.covers(c) {
				rest = append(rest, c)
				continue
			}
			for i := range child.Inputs {
				pushed[i] = append(pushed[i], substitute(c, mappings[i]))
			}
		}
	case plan.JoinDesc:
		if !p.full {
			return false, nil
		}
		all := newColumnSet(g.OutputColumns(child.ID))
		for _, c := range conjuncts {
			k := inputOf(g, child, c)
			switch {
			case k >= 0 && joinAllowsPush(d.Type, k):
				pushed[k] = append(pushed[k], c)
			case k < 0 && d.Type == plan.InnerJoin && all.covers(c):
				joinCond = append(joinCond, c)
			default:
				rest = append(rest, c)
			}
		}
		if len(joinCond) > 0 {
			d.Condition = ast.And(appendUnique(ast.Conjuncts(d.Condition), joinCond...)...)
			if err := g.SetDesc(child.ID, d); err != nil {
				return false, err
			}
		}
	default:
		return false, nil
	}
	if len(pushed) == 0 && len(joinCond) == 0 {
		return false, nil
	}
	for i := range child.Inputs {
		if _, err := pushFilter(g, child.ID, i, pushed[i]); err != nil {
			return false, err
		}
	}
	if len(rest) == 0 {
		return true, g.Splice(id)
	}
	return true, g.SetDesc(id, plan.FilterDesc{Condition: ast.And(rest...)})
}

func joinAllowsPush(t plan.JoinType, input int) bool {
	switch t {
	case plan.InnerJoin:
		return true
	case plan.LeftOuterJoin, plan.LeftSemiJoin:
		return input == 0
	case plan.RightOuterJoin:
		return input == 1
	default:
		return false
	}
}

// pushJoinCondition moves the conjuncts of an inner join condition that
// read a single input onto that input.
func pushJoinCondition(g *plan.Graph, jid plan.OpID) (bool, error) {
	op := g.Op(jid)
	d := op.Desc.(plan.JoinDesc)
	if d.Type != plan.InnerJoin || d.Condition == nil {
		return false, nil
	}
	var (
		rest   []ast.Expr
		pushed = make(map[int][]ast.Expr)
	)
	for _, c := range ast.Conjuncts(d.Condition) {
		if k := inputOf(g, op, c); k >= 0 {
			pushed[k] = append(pushed[k], c)
		} else {
			rest = append(rest, c)
		}
	}
	if len(pushed) == 0 {
		return false, nil
	}
	d.Condition = ast.And(rest...)
	if err := g.SetDesc(jid, d); err != nil {
		return false, err
	}
	for i := range op.Inputs {
		if _, err := pushFilter(g, jid, i, pushed[i]); err != nil {
			return false, err
		}
	}
	return true, nil
}
