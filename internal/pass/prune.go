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

// columnPruner narrows the column list of every scan to what the operators
// above read. Scans feeding a union keep their columns since union inputs
// line up by position.
type columnPruner struct{}

func (p *columnPruner) Name() string {
	return ColumnPruner
}

func (p *columnPruner) Params() Params {
	return nil
}

func (p *columnPruner) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		used := make(columnSet)
		unqualified := make(map[string]struct{})
		mark := func(e ast.Expr) {
			for _, r := range ast.FieldRefs(e) {
				used[r.String()] = struct{}{}
				if r.Table == "" {
					unqualified[r.Name] = struct{}{}
				}
			}
		}
		for _, op := range g.Operators() {
			for _, e := range exprsOf(op.Desc) {
				mark(e)
			}
			if op.Kind == plan.Sink {
				for _, c := range g.OutputColumns(op.Inputs[0]) {
					mark(c)
				}
			}
		}
		for _, id := range g.OfKind(plan.TableScan) {
			if feedsUnion(g, id) {
				continue
			}
			sd := g.Op(id).Desc.(plan.ScanDesc)
			var kept []string
			for _, c := range sd.Columns {
				_, byName := unqualified[c]
				if byName || used.has(&ast.FieldRef{Table: sd.Alias, Name: c}) {
					kept = append(kept, c)
				}
			}
			if len(kept) == 0 && len(sd.Columns) > 0 {
				kept = sd.Columns[:1]
			}
			if len(kept) == len(sd.Columns) {
				continue
			}
			sd.Columns = kept
			if err := g.SetDesc(id, sd); err != nil {
				return err
			}
		}
		return nil
	})
}

// exprsOf returns the expressions a descriptor evaluates.
func exprsOf(d plan.Desc) []ast.Expr {
	switch t := d.(type) {
	case plan.ScanDesc:
		if t.PartitionFilter != nil {
			return []ast.Expr{t.PartitionFilter}
		}
	case plan.FilterDesc:
		return []ast.Expr{t.Condition}
	case plan.ProjectDesc:
		result := make([]ast.Expr, len(t.Items))
		for i, it := range t.Items {
			result[i] = it.Expr
		}
		return result
	case plan.JoinDesc:
		if t.Condition != nil {
			return []ast.Expr{t.Condition}
		}
	case plan.AggregateDesc:
		result := append([]ast.Expr(nil), t.GroupKeys...)
		for _, a := range t.Aggs {
			result = append(result, a.Expr)
		}
		return result
	case plan.SortDesc:
		result := make([]ast.Expr, len(t.Keys))
		for i, k := range t.Keys {
			result[i] = k.Expr
		}
		return result
	}
	return nil
}

// feedsUnion reports whether the columns of id reach a union without a
// projection in between.
func feedsUnion(g *plan.Graph, id plan.OpID) bool {
	for _, c := range g.Consumers(id) {
		switch g.Op(c).Kind {
		case plan.Union:
			return true
		case plan.Filter, plan.Sort, plan.Limit, plan.Join:
			if feedsUnion(g, c) {
				return true
			}
		}
	}
	return false
}

// unionProcessor flattens a union reading from another union of the same
// kind that nothing else consumes.
type unionProcessor struct{}

func (p *unionProcessor) Name() string {
	return UnionProcessor
}

func (p *unionProcessor) Params() Params {
	return nil
}

func (p *unionProcessor) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for changed := true; changed; {
			changed = false
			for _, id := range g.OfKind(plan.Union) {
				op := g.Op(id)
				all := op.Desc.(plan.UnionDesc).All
				var (
					inputs  []plan.OpID
					removed []plan.OpID
				)
				for _, in := range op.Inputs {
					child := g.Op(in)
					if cd, ok := child.Desc.(plan.UnionDesc); ok && cd.All == all {
						if c, ok := soleConsumer(g, in); ok && c == id {
							inputs = append(inputs, child.Inputs...)
							removed = append(removed, in)
							continue
						}
					}
					inputs = append(inputs, in)
				}
				if len(removed) == 0 {
					continue
				}
				if err := g.SetInputs(id, inputs...); err != nil {
					return err
				}
				for _, r := range removed {
					if err := g.Remove(r); err != nil {
						return err
					}
				}
				changed = true
			}
		}
		return nil
	})
}

// nonBlockingOpDedup merges a filter into the filter it reads from and a
// project into the project it reads from when nothing else reads the lower
// operator.
type nonBlockingOpDedup struct{}

func (p *nonBlockingOpDedup) Name() string {
	return NonBlockingOpDedup
}

func (p *nonBlockingOpDedup) Params() Params {
	return nil
}

func (p *nonBlockingOpDedup) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for _, op := range g.Operators() {
			if g.Op(op.ID) == nil || (op.Kind != plan.Filter && op.Kind != plan.Project) {
				continue
			}
			upper := g.Op(op.ID)
			lower := g.Op(upper.Inputs[0])
			if lower.Kind != upper.Kind {
				continue
			}
			if c, ok := soleConsumer(g, lower.ID); !ok || c != upper.ID {
				continue
			}
			var merged plan.Desc
			switch ud := upper.Desc.(type) {
			case plan.FilterDesc:
				conjuncts := appendUnique(ast.Conjuncts(filterCondition(lower)), ast.Conjuncts(ud.Condition)...)
				merged = plan.FilterDesc{Condition: ast.And(conjuncts...)}
			case plan.ProjectDesc:
				items, ok := composeProjects(lower.Desc.(plan.ProjectDesc).Items, ud.Items)
				if !ok {
					continue
				}
				merged = plan.ProjectDesc{Items: items}
			}
			if err := g.SetDesc(lower.ID, merged); err != nil {
				return err
			}
			if err := g.Splice(upper.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// composeProjects rewrites the upper items over the inputs of the lower
// project. It fails when an aggregate would move or an output column would
// change its name.
func composeProjects(lower, upper []plan.ProjectItem) ([]plan.ProjectItem, bool) {
	m := projection(lower)
	result := make([]plan.ProjectItem, len(upper))
	for i, it := range upper {
		e := substitute(it.Expr, m)
		if ast.HasAggregate(e) {
			return nil, false
		}
		n := plan.ProjectItem{Expr: e, Alias: it.Alias}
		want := plan.ItemColumn(it)
		if plan.ItemColumn(n).String() != want.String() {
			if want.Table != "" {
				return nil, false
			}
			n.Alias = want.Name
		}
		result[i] = n
	}
	return result, true
}

// identityProjectRemover removes projects that output exactly the columns
// of their input in order.
type identityProjectRemover struct{}

func (p *identityProjectRemover) Name() string {
	return IdentityProjectRemover
}

func (p *identityProjectRemover) Params() Params {
	return nil
}

func (p *identityProjectRemover) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for _, id := range g.OfKind(plan.Project) {
			op := g.Op(id)
			items := op.Desc.(plan.ProjectDesc).Items
			in := g.OutputColumns(op.Inputs[0])
			if len(items) != len(in) {
				continue
			}
			identity := true
			for i, it := range items {
				f, ok := it.Expr.(*ast.FieldRef)
				if !ok || it.Alias != "" || f.String() != in[i].String() {
					identity = false
					break
				}
			}
			if !identity {
				continue
			}
			if err := g.Splice(id); err != nil {
				return err
			}
		}
		return nil
	})
}
