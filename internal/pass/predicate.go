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
	"fmt"

	"github.com/lf-edge/planopt/internal/plan"
	"github.com/lf-edge/planopt/pkg/ast"
	"github.com/lf-edge/planopt/pkg/errorx"
)

// pointLookup turns a disjunction of equalities on one column into an IN
// list once it has at least minOrTerms branches.
type pointLookup struct {
	minOrTerms int
}

func newPointLookup(params Params) (Pass, error) {
	n, err := intParam(PointLookup, params, "min_or_terms")
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, errorx.NewConfigurationError(fmt.Sprintf("pass %s parameter min_or_terms must be positive, got %d", PointLookup, n))
	}
	return &pointLookup{minOrTerms: n}, nil
}

func (p *pointLookup) Name() string {
	return PointLookup
}

func (p *pointLookup) Params() Params {
	return Params{"min_or_terms": p.minOrTerms}
}

func (p *pointLookup) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for _, id := range g.OfKind(plan.Filter) {
			cond := filterCondition(g.Op(id))
			if cond == nil {
				continue
			}
			n := p.rewriteExpr(cond)
			if n.String() != cond.String() {
				if err := g.SetDesc(id, plan.FilterDesc{Condition: n}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (p *pointLookup) rewriteExpr(e ast.Expr) ast.Expr {
	b, ok := e.(*ast.BinaryExpr)
	if !ok {
		return e
	}
	switch b.OP {
	case ast.AND:
		return &ast.BinaryExpr{OP: ast.AND, LHS: p.rewriteExpr(b.LHS), RHS: p.rewriteExpr(b.RHS)}
	case ast.OR:
		branches := ast.Disjuncts(b)
		if in := p.toIn(branches); in != nil {
			return in
		}
		rewritten := make([]ast.Expr, len(branches))
		for i, d := range branches {
			rewritten[i] = p.rewriteExpr(d)
		}
		return ast.Or(rewritten...)
	default:
		return e
	}
}

func (p *pointLookup) toIn(branches []ast.Expr) ast.Expr {
	if len(branches) < p.minOrTerms {
		return nil
	}
	var (
		col  *ast.FieldRef
		list []ast.Expr
	)
	for _, d := range branches {
		f, l, ok := ast.ColumnEquality(d)
		if !ok || (col != nil && f.String() != col.String()) {
			return nil
		}
		col = f
		list = appendUnique(list, l)
	}
	return &ast.InExpr{Expr: col, List: list}
}

// partitionColumnSeparator splits the conjuncts of a filter over a
// partitioned scan that only read partition columns into their own filter
// right above the scan.
type partitionColumnSeparator struct{}

func (p *partitionColumnSeparator) Name() string {
	return PartitionColumnSeparator
}

func (p *partitionColumnSeparator) Params() Params {
	return nil
}

func (p *partitionColumnSeparator) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for _, id := range g.OfKind(plan.Filter) {
			op := g.Op(id)
			scan := g.Op(op.Inputs[0])
			if scan.Kind != plan.TableScan {
				continue
			}
			sd := scan.Desc.(plan.ScanDesc)
			tbl, err := pc.Table(sd.Table)
			if err != nil {
				return err
			}
			if !tbl.IsPartitioned() {
				continue
			}
			var part, rest []ast.Expr
			for _, c := range ast.Conjuncts(filterCondition(op)) {
				if onlyPartitionColumns(c, sd.Alias, tbl.IsPartitionKey) {
					part = append(part, c)
				} else {
					rest = append(rest, c)
				}
			}
			if len(part) == 0 || len(rest) == 0 {
				continue
			}
			if err := g.SetDesc(id, plan.FilterDesc{Condition: ast.And(rest...)}); err != nil {
				return err
			}
			if _, err := g.InsertOnEdge(scan.ID, id, plan.FilterDesc{Condition: ast.And(part...)}); err != nil {
				return err
			}
		}
		return nil
	})
}

func onlyPartitionColumns(e ast.Expr, alias string, isKey func(string) bool) bool {
	refs := ast.FieldRefs(e)
	if len(refs) == 0 {
		return false
	}
	for _, r := range refs {
		if (r.Table != "" && r.Table != alias) || !isKey(r.Name) {
			return false
		}
	}
	return true
}

// predicateTransitivePropagate copies single column predicates above an
// inner join to the column on the other side of an equi-join key.
type predicateTransitivePropagate struct{}

func (p *predicateTransitivePropagate) Name() string {
	return PredicateTransitivePropagate
}

func (p *predicateTransitivePropagate) Params() Params {
	return nil
}

func (p *predicateTransitivePropagate) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for _, jid := range g.OfKind(plan.Join) {
			join := g.Op(jid)
			if join.Desc.(plan.JoinDesc).Type != plan.InnerJoin {
				continue
			}
			pairs := equiKeys(g, join)
			if len(pairs) == 0 {
				continue
			}
			for _, fid := range g.Consumers(jid) {
				f := g.Op(fid)
				if f.Kind != plan.Filter {
					continue
				}
				conjuncts := ast.Conjuncts(filterCondition(f))
				derived := append([]ast.Expr(nil), conjuncts...)
				for _, c := range conjuncts {
					refs := ast.FieldRefs(c)
					if len(refs) != 1 {
						continue
					}
					for _, kp := range pairs {
						var to *ast.FieldRef
						switch refs[0].String() {
						case kp.left.String():
							to = kp.right
						case kp.right.String():
							to = kp.left
						default:
							continue
						}
						derived = appendUnique(derived, substitute(c, map[string]ast.Expr{refs[0].String(): to}))
					}
				}
				if len(derived) > len(conjuncts) {
					if err := g.SetDesc(fid, plan.FilterDesc{Condition: ast.And(derived...)}); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

// syntheticJoinPredicate adds IS NOT NULL filters on the inputs of inner
// joins for their equi-join keys, since null keys never match.
type syntheticJoinPredicate struct{}

func (p *syntheticJoinPredicate) Name() string {
	return SyntheticJoinPredicate
}

func (p *syntheticJoinPredicate) Params() Params {
	return nil
}

func (p *syntheticJoinPredicate) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for _, jid := range g.OfKind(plan.Join) {
			join := g.Op(jid)
			t := join.Desc.(plan.JoinDesc).Type
			if t != plan.InnerJoin && t != plan.LeftSemiJoin {
				continue
			}
			perInput := make(map[int][]ast.Expr)
			for _, kp := range equiKeys(g, join) {
				perInput[kp.leftInput] = appendUnique(perInput[kp.leftInput], &ast.IsNullExpr{Expr: kp.left, Not: true, Synthetic: true})
				perInput[kp.rightInput] = appendUnique(perInput[kp.rightInput], &ast.IsNullExpr{Expr: kp.right, Not: true, Synthetic: true})
			}
			for i := range join.Inputs {
				if _, err := pushFilter(g, jid, i, perInput[i]); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// redundantDynamicPruningRemoval drops synthetic IS NOT NULL conjuncts when
// another conjunct of the same filter already rejects nulls on the column.
type redundantDynamicPruningRemoval struct{}

func (p *redundantDynamicPruningRemoval) Name() string {
	return RedundantDynamicPruningRemoval
}

func (p *redundantDynamicPruningRemoval) Params() Params {
	return nil
}

func (p *redundantDynamicPruningRemoval) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for _, id := range g.OfKind(plan.Filter) {
			conjuncts := ast.Conjuncts(filterCondition(g.Op(id)))
			kept := make([]ast.Expr, 0, len(conjuncts))
			for i, c := range conjuncts {
				if n, ok := c.(*ast.IsNullExpr); ok && n.Synthetic && n.Not {
					if col, ok := n.Expr.(*ast.FieldRef); ok && rejectedElsewhere(conjuncts, i, col) {
						continue
					}
				}
				kept = append(kept, c)
			}
			if len(kept) < len(conjuncts) {
				if err := g.SetDesc(id, plan.FilterDesc{Condition: ast.And(kept...)}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func rejectedElsewhere(conjuncts []ast.Expr, skip int, col *ast.FieldRef) bool {
	for j, other := range conjuncts {
		if j == skip {
			continue
		}
		if n, ok := other.(*ast.IsNullExpr); ok && n.Synthetic {
			continue
		}
		if ast.RejectsNull(other, col) {
			return true
		}
	}
	return false
}
