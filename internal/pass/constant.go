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

// constantPropagate folds constant expressions, substitutes columns fixed
// by an equality in the same filter and drops filters that are always true.
// Running it twice gives the same plan as running it once.
type constantPropagate struct{}

func (p *constantPropagate) Name() string {
	return ConstantPropagate
}

func (p *constantPropagate) Params() Params {
	return nil
}

func (p *constantPropagate) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for _, op := range g.Operators() {
			var (
				nd      plan.Desc
				changed bool
			)
			switch d := op.Desc.(type) {
			case plan.FilterDesc:
				c := propagateConjuncts(d.Condition)
				if ast.IsTrue(c) || c == nil {
					if err := g.Splice(op.ID); err != nil {
						return err
					}
					continue
				}
				nd, changed = plan.FilterDesc{Condition: c}, c.String() != d.Condition.String()
			case plan.ProjectDesc:
				items := make([]plan.ProjectItem, len(d.Items))
				for i, it := range d.Items {
					items[i] = plan.ProjectItem{Expr: Fold(it.Expr), Alias: it.Alias}
					if items[i].Expr.String() != it.Expr.String() {
						changed = true
						if items[i].Alias == "" {
							items[i].Alias = plan.ItemColumn(it).Name
						}
					}
				}
				nd = plan.ProjectDesc{Items: items}
			case plan.JoinDesc:
				if d.Condition == nil {
					continue
				}
				c := Fold(d.Condition)
				if c.String() != d.Condition.String() {
					d.Condition = c
					nd, changed = d, true
				}
			}
			if changed {
				if err := g.SetDesc(op.ID, nd); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// propagateConjuncts replaces the columns pinned by a col = literal
// conjunct inside the other conjuncts, then folds.
func propagateConjuncts(cond ast.Expr) ast.Expr {
	if cond == nil {
		return nil
	}
	conjuncts := ast.Conjuncts(Fold(cond))
	pinned := make(map[string]ast.Expr)
	owner := make(map[string]int)
	for i, c := range conjuncts {
		if f, l, ok := ast.ColumnEquality(c); ok {
			if _, seen := pinned[f.String()]; !seen {
				pinned[f.String()] = l
				owner[f.String()] = i
			}
		}
	}
	var result []ast.Expr
	for i, c := range conjuncts {
		m := make(map[string]ast.Expr, len(pinned))
		for k, v := range pinned {
			if owner[k] != i {
				m[k] = v
			}
		}
		folded := Fold(substitute(c, m))
		if ast.IsTrue(folded) {
			continue
		}
		if ast.IsFalse(folded) {
			return folded
		}
		result = appendUnique(result, folded)
	}
	if len(result) == 0 {
		return &ast.BooleanLiteral{Val: true}
	}
	return ast.And(result...)
}

// Fold evaluates the constant parts of an expression.
func Fold(e ast.Expr) ast.Expr {
	return ast.Rewrite(e, foldNode)
}

func foldNode(e ast.Expr) ast.Expr {
	switch t := e.(type) {
	case *ast.UnaryExpr:
		switch v := t.Expr.(type) {
		case *ast.BooleanLiteral:
			if t.OP == ast.NOT {
				return &ast.BooleanLiteral{Val: !v.Val}
			}
		case *ast.IntegerLiteral:
			if t.OP == ast.SUB {
				return &ast.IntegerLiteral{Val: -v.Val}
			}
		case *ast.NumberLiteral:
			if t.OP == ast.SUB {
				return &ast.NumberLiteral{Val: -v.Val}
			}
		}
	case *ast.BinaryExpr:
		return foldBinary(t)
	case *ast.IsNullExpr:
		if ast.IsLiteral(t.Expr) {
			_, isNull := t.Expr.(*ast.NullLiteral)
			return &ast.BooleanLiteral{Val: isNull != t.Not}
		}
	}
	return e
}

func foldBinary(b *ast.BinaryExpr) ast.Expr {
	switch b.OP {
	case ast.AND:
		switch {
		case ast.IsFalse(b.LHS) || ast.IsFalse(b.RHS):
			return &ast.BooleanLiteral{Val: false}
		case ast.IsTrue(b.LHS):
			return b.RHS
		case ast.IsTrue(b.RHS):
			return b.LHS
		}
		return b
	case ast.OR:
		switch {
		case ast.IsTrue(b.LHS) || ast.IsTrue(b.RHS):
			return &ast.BooleanLiteral{Val: true}
		case ast.IsFalse(b.LHS):
			return b.RHS
		case ast.IsFalse(b.RHS):
			return b.LHS
		}
		return b
	}
	switch l := b.LHS.(type) {
	case *ast.IntegerLiteral:
		if r, ok := b.RHS.(*ast.IntegerLiteral); ok {
			if v, ok := foldInt(b.OP, l.Val, r.Val); ok {
				return v
			}
		}
	case *ast.NumberLiteral:
		if r, ok := b.RHS.(*ast.NumberLiteral); ok {
			if v, ok := foldFloat(b.OP, l.Val, r.Val); ok {
				return v
			}
		}
	case *ast.StringLiteral:
		if r, ok := b.RHS.(*ast.StringLiteral); ok {
			switch b.OP {
			case ast.EQ:
				return &ast.BooleanLiteral{Val: l.Val == r.Val}
			case ast.NEQ:
				return &ast.BooleanLiteral{Val: l.Val != r.Val}
			}
		}
	}
	return b
}

func foldInt(op ast.Token, l, r int64) (ast.Expr, bool) {
	switch op {
	case ast.ADD:
		return &ast.IntegerLiteral{Val: l + r}, true
	case ast.SUB:
		return &ast.IntegerLiteral{Val: l - r}, true
	case ast.MUL:
		return &ast.IntegerLiteral{Val: l * r}, true
	case ast.DIV:
		if r == 0 {
			return nil, false
		}
		return &ast.IntegerLiteral{Val: l / r}, true
	case ast.MOD:
		if r == 0 {
			return nil, false
		}
		return &ast.IntegerLiteral{Val: l % r}, true
	}
	if op.IsComparison() {
		return compare(op, cmpInt(l, r)), true
	}
	return nil, false
}

func foldFloat(op ast.Token, l, r float64) (ast.Expr, bool) {
	switch op {
	case ast.ADD:
		return &ast.NumberLiteral{Val: l + r}, true
	case ast.SUB:
		return &ast.NumberLiteral{Val: l - r}, true
	case ast.MUL:
		return &ast.NumberLiteral{Val: l * r}, true
	case ast.DIV:
		if r == 0 {
			return nil, false
		}
		return &ast.NumberLiteral{Val: l / r}, true
	}
	if op.IsComparison() {
		c := 0
		if l < r {
			c = -1
		} else if l > r {
			c = 1
		}
		return compare(op, c), true
	}
	return nil, false
}

func cmpInt(l, r int64) int {
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	default:
		return 0
	}
}

func compare(op ast.Token, c int) *ast.BooleanLiteral {
	var v bool
	switch op {
	case ast.EQ:
		v = c == 0
	case ast.NEQ:
		v = c != 0
	case ast.LT:
		v = c < 0
	case ast.LTE:
		v = c <= 0
	case ast.GT:
		v = c > 0
	case ast.GTE:
		v = c >= 0
	}
	return &ast.BooleanLiteral{Val: v}
}
