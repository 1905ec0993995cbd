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
	"reflect"
	"sort"
)

type Visitor interface {
	Visit(Node) bool
}

func Walk(v Visitor, node Node) {
	if node == nil || reflect.ValueOf(node).IsNil() {
		return
	}

	if !v.Visit(node) {
		return
	}

	switch n := node.(type) {
	case *BinaryExpr:
		Walk(v, n.LHS)
		Walk(v, n.RHS)

	case *UnaryExpr:
		Walk(v, n.Expr)

	case *IsNullExpr:
		Walk(v, n.Expr)

	case *InExpr:
		Walk(v, n.Expr)
		for _, e := range n.List {
			Walk(v, e)
		}

	case *Call:
		for _, e := range n.Args {
			Walk(v, e)
		}
	}
}

func WalkFunc(node Node, fn func(Node) bool) {
	Walk(walkFuncVisitor(fn), node)
}

type walkFuncVisitor func(Node) bool

func (fn walkFuncVisitor) Visit(n Node) bool { return fn(n) }

// Rewrite rebuilds the expression bottom up, replacing every node by fn of
// the node with already rewritten children. The input is left untouched.
func Rewrite(e Expr, fn func(Expr) Expr) Expr {
	if e == nil {
		return nil
	}
	var n Expr
	switch t := e.(type) {
	case *BinaryExpr:
		n = &BinaryExpr{OP: t.OP, LHS: Rewrite(t.LHS, fn), RHS: Rewrite(t.RHS, fn)}
	case *UnaryExpr:
		n = &UnaryExpr{OP: t.OP, Expr: Rewrite(t.Expr, fn)}
	case *IsNullExpr:
		n = &IsNullExpr{Expr: Rewrite(t.Expr, fn), Not: t.Not, Synthetic: t.Synthetic}
	case *InExpr:
		list := make([]Expr, len(t.List))
		for i, item := range t.List {
			list[i] = Rewrite(item, fn)
		}
		n = &InExpr{Expr: Rewrite(t.Expr, fn), List: list, Not: t.Not}
	case *Call:
		args := make([]Expr, len(t.Args))
		for i, a := range t.Args {
			args[i] = Rewrite(a, fn)
		}
		n = &Call{Name: t.Name, FuncType: t.FuncType, Args: args}
	default:
		n = e
	}
	return fn(n)
}

// FieldRefs returns every column reference in walk order.
func FieldRefs(e Expr) []*FieldRef {
	var refs []*FieldRef
	WalkFunc(e, func(n Node) bool {
		if f, ok := n.(*FieldRef); ok {
			refs = append(refs, f)
		}
		return true
	})
	return refs
}

// RefTables returns the sorted set of table aliases referenced by e. The
// second value reports whether any reference is unqualified.
func RefTables(e Expr) ([]string, bool) {
	set := make(map[string]struct{})
	unqualified := false
	for _, f := range FieldRefs(e) {
		if f.Table == "" {
			unqualified = true
			continue
		}
		set[f.Table] = struct{}{}
	}
	result := make([]string, 0, len(set))
	for k := range set {
		result = append(result, k)
	}
	sort.Strings(result)
	return result, unqualified
}

func HasAggregate(e Expr) bool {
	found := false
	WalkFunc(e, func(n Node) bool {
		if c, ok := n.(*Call); ok && c.FuncType == FuncTypeAgg {
			found = true
		}
		return !found
	})
	return found
}

func Equal(a, b Expr) bool {
	return reflect.DeepEqual(a, b)
}
