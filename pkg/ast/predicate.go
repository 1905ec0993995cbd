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

package ast

// Conjuncts splits a condition on its top level ANDs.
func Conjuncts(e Expr) []Expr {
	if e == nil {
		return nil
	}
	if be, ok := e.(*BinaryExpr); ok && be.OP == AND {
		return append(Conjuncts(be.LHS), Conjuncts(be.RHS)...)
	}
	return []Expr{e}
}

// Disjuncts splits a condition on its top level ORs.
func Disjuncts(e Expr) []Expr {
	if e == nil {
		return nil
	}
	if be, ok := e.(*BinaryExpr); ok && be.OP == OR {
		return append(Disjuncts(be.LHS), Disjuncts(be.RHS)...)
	}
	return []Expr{e}
}

// And combines the non nil conditions left deep. It returns nil if there is none.
func And(exprs ...Expr) Expr {
	var result Expr
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if result == nil {
			result = e
		} else {
			result = &BinaryExpr{OP: AND, LHS: result, RHS: e}
		}
	}
	return result
}

func Or(exprs ...Expr) Expr {
	var result Expr
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if result == nil {
			result = e
		} else {
			result = &BinaryExpr{OP: OR, LHS: result, RHS: e}
		}
	}
	return result
}

func IsTrue(e Expr) bool {
	b, ok := e.(*BooleanLiteral)
	return ok && b.Val
}

func IsFalse(e Expr) bool {
	b, ok := e.(*BooleanLiteral)
	return ok && !b.Val
}

func IsLiteral(e Expr) bool {
	_, ok := e.(Literal)
	return ok
}

// ColumnEquality matches `col = literal` in either operand order.
func ColumnEquality(e Expr) (*FieldRef, Literal, bool) {
	be, ok := e.(*BinaryExpr)
	if !ok || be.OP != EQ {
		return nil, nil, false
	}
	if f, ok := be.LHS.(*FieldRef); ok {
		if l, ok := be.RHS.(Literal); ok {
			return f, l, true
		}
	}
	if f, ok := be.RHS.(*FieldRef); ok {
		if l, ok := be.LHS.(Literal); ok {
			return f, l, true
		}
	}
	return nil, nil, false
}

// EquiJoinKey matches `a.x = b.y` between two column references.
func EquiJoinKey(e Expr) (*FieldRef, *FieldRef, bool) {
	be, ok := e.(*BinaryExpr)
	if !ok || be.OP != EQ {
		return nil, nil, false
	}
	l, lok := be.LHS.(*FieldRef)
	r, rok := be.RHS.(*FieldRef)
	if !lok || !rok {
		return nil, nil, false
	}
	return l, r, true
}

// RejectsNull reports whether the condition can only be true for non null
// values of col, e.g. a comparison or IN list on it.
func RejectsNull(e Expr, col *FieldRef) bool {
	switch t := e.(type) {
	case *BinaryExpr:
		if !t.OP.IsComparison() {
			return false
		}
		return Equal(t.LHS, col) || Equal(t.RHS, col)
	case *InExpr:
		return !t.Not && Equal(t.Expr, col)
	case *IsNullExpr:
		return t.Not && Equal(t.Expr, col)
	default:
		return false
	}
}
