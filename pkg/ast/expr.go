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
	"fmt"
	"strconv"
	"strings"
)

// Expressions attached to a plan are never mutated in place. Rewrites build
// new nodes so that plan clones may share expression trees.

type Node interface {
	node()
}

type Expr interface {
	Node
	expr()
	String() string
}

type Literal interface {
	Expr
	literal()
}

type BooleanLiteral struct {
	Val bool
}

type IntegerLiteral struct {
	Val int64
}

type NumberLiteral struct {
	Val float64
}

type StringLiteral struct {
	Val string
}

type NullLiteral struct{}

// FieldRef references a column. Table is the alias of the producing scan and
// is empty for columns computed by a projection.
type FieldRef struct {
	Table string
	Name  string
}

type BinaryExpr struct {
	OP  Token
	LHS Expr
	RHS Expr
}

// UnaryExpr is NOT or arithmetic negation (SUB).
type UnaryExpr struct {
	OP   Token
	Expr Expr
}

// IsNullExpr is `expr IS [NOT] NULL`. Synthetic marks predicates that were
// derived by the optimizer rather than written by the user.
type IsNullExpr struct {
	Expr      Expr
	Not       bool
	Synthetic bool
}

type InExpr struct {
	Expr Expr
	List []Expr
	Not  bool
}

type FuncType int

const (
	FuncTypeScalar FuncType = iota
	FuncTypeAgg
)

type Call struct {
	Name     string
	FuncType FuncType
	Args     []Expr
}

func (*BooleanLiteral) node() {}
func (*IntegerLiteral) node() {}
func (*NumberLiteral) node()  {}
func (*StringLiteral) node()  {}
func (*NullLiteral) node()    {}
func (*FieldRef) node()       {}
func (*BinaryExpr) node()     {}
func (*UnaryExpr) node()      {}
func (*IsNullExpr) node()     {}
func (*InExpr) node()         {}
func (*Call) node()           {}

func (*BooleanLiteral) expr() {}
func (*IntegerLiteral) expr() {}
func (*NumberLiteral) expr()  {}
func (*StringLiteral) expr()  {}
func (*NullLiteral) expr()    {}
func (*FieldRef) expr()       {}
func (*BinaryExpr) expr()     {}
func (*UnaryExpr) expr()      {}
func (*IsNullExpr) expr()     {}
func (*InExpr) expr()         {}
func (*Call) expr()           {}

func (*BooleanLiteral) literal() {}
func (*IntegerLiteral) literal() {}
func (*NumberLiteral) literal()  {}
func (*StringLiteral) literal()  {}
func (*NullLiteral) literal()    {}

func (bl *BooleanLiteral) String() string {
	if bl.Val {
		return "TRUE"
	}
	return "FALSE"
}

func (il *IntegerLiteral) String() string {
	return strconv.FormatInt(il.Val, 10)
}

func (nl *NumberLiteral) String() string {
	return strconv.FormatFloat(nl.Val, 'g', -1, 64)
}

func (sl *StringLiteral) String() string {
	return strconv.Quote(sl.Val)
}

func (*NullLiteral) String() string {
	return "NULL"
}

func (fr *FieldRef) String() string {
	if fr.Table == "" {
		return fr.Name
	}
	return fr.Table + "." + fr.Name
}

func (be *BinaryExpr) String() string {
	return wrap(be.LHS) + " " + be.OP.String() + " " + wrap(be.RHS)
}

func (ue *UnaryExpr) String() string {
	if ue.OP == NOT {
		return "NOT " + wrap(ue.Expr)
	}
	return ue.OP.String() + wrap(ue.Expr)
}

func (ie *IsNullExpr) String() string {
	if ie.Not {
		return wrap(ie.Expr) + " IS NOT NULL"
	}
	return wrap(ie.Expr) + " IS NULL"
}

func (ie *InExpr) String() string {
	op := " IN "
	if ie.Not {
		op = " NOT IN "
	}
	return wrap(ie.Expr) + op + "(" + join(ie.List) + ")"
}

func (c *Call) String() string {
	return fmt.Sprintf("%s(%s)", c.Name, join(c.Args))
}

func wrap(e Expr) string {
	if e == nil {
		return "<nil>"
	}
	switch e.(type) {
	case *BinaryExpr, *IsNullExpr, *InExpr:
		return "(" + e.String() + ")"
	default:
		return e.String()
	}
}

func join(list []Expr) string {
	parts := make([]string, len(list))
	for i, e := range list {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

// ExprString renders a possibly nil expression.
func ExprString(e Expr) string {
	if e == nil {
		return ""
	}
	return e.String()
}

var aggFuncs = map[string]struct{}{
	"count": {}, "sum": {}, "avg": {}, "min": {}, "max": {}, "collect_set": {},
}

// NewCall builds a call and classifies it as aggregate when the name is one.
func NewCall(name string, args ...Expr) *Call {
	ft := FuncTypeScalar
	if _, ok := aggFuncs[strings.ToLower(name)]; ok {
		ft = FuncTypeAgg
	}
	return &Call{Name: name, FuncType: ft, Args: args}
}
