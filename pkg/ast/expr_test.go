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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExprString(t *testing.T) {
	tests := []struct {
		e Expr
		s string
	}{
		{&FieldRef{Table: "src", Name: "a"}, "src.a"},
		{&FieldRef{Name: "a"}, "a"},
		{&BinaryExpr{OP: GT, LHS: &FieldRef{Table: "src", Name: "a"}, RHS: &IntegerLiteral{Val: 1}}, "src.a > 1"},
		{
			And(
				&BinaryExpr{OP: EQ, LHS: &FieldRef{Name: "a"}, RHS: &StringLiteral{Val: "x"}},
				&IsNullExpr{Expr: &FieldRef{Name: "b"}, Not: true},
			),
			`(a = "x") AND (b IS NOT NULL)`,
		},
		{&InExpr{Expr: &FieldRef{Name: "a"}, List: []Expr{&IntegerLiteral{Val: 1}, &IntegerLiteral{Val: 2}}}, "a IN (1, 2)"},
		{&UnaryExpr{OP: NOT, Expr: &BooleanLiteral{Val: true}}, "NOT TRUE"},
		{NewCall("count", &FieldRef{Name: "a"}), "count(a)"},
		{&NumberLiteral{Val: 1.5}, "1.5"},
		{&NullLiteral{}, "NULL"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.s, tt.e.String())
	}
	assert.Equal(t, "", ExprString(nil))
}

func TestConjuncts(t *testing.T) {
	a := &BinaryExpr{OP: GT, LHS: &FieldRef{Name: "a"}, RHS: &IntegerLiteral{Val: 1}}
	b := &BinaryExpr{OP: LT, LHS: &FieldRef{Name: "b"}, RHS: &IntegerLiteral{Val: 2}}
	c := &BinaryExpr{OP: EQ, LHS: &FieldRef{Name: "c"}, RHS: &IntegerLiteral{Val: 3}}
	combined := And(a, nil, b, c)
	assert.Equal(t, []Expr{a, b, c}, Conjuncts(combined))
	assert.Nil(t, And())
	assert.Nil(t, Conjuncts(nil))
	assert.Equal(t, []Expr{a, b}, Disjuncts(Or(a, b)))
	// OR is not split by Conjuncts
	assert.Len(t, Conjuncts(Or(a, b)), 1)
}

func TestRewriteDoesNotMutate(t *testing.T) {
	orig := &BinaryExpr{OP: GT, LHS: &FieldRef{Name: "a"}, RHS: &IntegerLiteral{Val: 1}}
	res := Rewrite(orig, func(e Expr) Expr {
		if f, ok := e.(*FieldRef); ok {
			return &FieldRef{Table: "t", Name: f.Name}
		}
		return e
	})
	assert.Equal(t, "a > 1", orig.String())
	assert.Equal(t, "t.a > 1", res.String())
}

func TestRefTables(t *testing.T) {
	e := And(
		&BinaryExpr{OP: EQ, LHS: &FieldRef{Table: "b", Name: "x"}, RHS: &FieldRef{Table: "a", Name: "y"}},
		&BinaryExpr{OP: EQ, LHS: &FieldRef{Name: "z"}, RHS: &IntegerLiteral{Val: 1}},
	)
	tables, unqualified := RefTables(e)
	assert.Equal(t, []string{"a", "b"}, tables)
	assert.True(t, unqualified)
	assert.Len(t, FieldRefs(e), 3)
}

func TestPredicateHelpers(t *testing.T) {
	col := &FieldRef{Table: "t", Name: "a"}
	f, l, ok := ColumnEquality(&BinaryExpr{OP: EQ, LHS: &IntegerLiteral{Val: 3}, RHS: col})
	assert.True(t, ok)
	assert.Equal(t, col, f)
	assert.Equal(t, &IntegerLiteral{Val: 3}, l)

	_, _, ok = ColumnEquality(&BinaryExpr{OP: GT, LHS: col, RHS: &IntegerLiteral{Val: 3}})
	assert.False(t, ok)

	l2, r2, ok := EquiJoinKey(&BinaryExpr{OP: EQ, LHS: col, RHS: &FieldRef{Table: "u", Name: "b"}})
	assert.True(t, ok)
	assert.Equal(t, "t.a", l2.String())
	assert.Equal(t, "u.b", r2.String())

	assert.True(t, RejectsNull(&BinaryExpr{OP: GT, LHS: col, RHS: &IntegerLiteral{Val: 3}}, col))
	assert.True(t, RejectsNull(&IsNullExpr{Expr: col, Not: true}, col))
	assert.False(t, RejectsNull(&IsNullExpr{Expr: col}, col))
	assert.False(t, RejectsNull(&BinaryExpr{OP: GT, LHS: &FieldRef{Name: "other"}, RHS: &IntegerLiteral{Val: 3}}, col))

	assert.True(t, HasAggregate(&BinaryExpr{OP: GT, LHS: NewCall("SUM", col), RHS: &IntegerLiteral{Val: 3}}))
	assert.False(t, HasAggregate(NewCall("upper", col)))
	assert.Equal(t, GT, LT.Commute())
}
