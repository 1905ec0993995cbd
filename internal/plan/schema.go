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
	"github.com/lf-edge/planopt/pkg/ast"
)

// OutputColumns derives the columns produced by an operator. Columns
// forwarded unchanged keep their qualified reference, computed columns are
// unqualified and named by their alias.
func (g *Graph) OutputColumns(id OpID) []*ast.FieldRef {
	return g.outputColumns(id, make(map[OpID]bool))
}

func (g *Graph) outputColumns(id OpID, visiting map[OpID]bool) []*ast.FieldRef {
	op := g.ops[id]
	if op == nil || visiting[id] {
		return nil
	}
	visiting[id] = true
	defer delete(visiting, id)
	switch d := op.Desc.(type) {
	case ScanDesc:
		result := make([]*ast.FieldRef, len(d.Columns))
		for i, c := range d.Columns {
			result[i] = &ast.FieldRef{Table: d.Alias, Name: c}
		}
		return result
	case ProjectDesc:
		result := make([]*ast.FieldRef, len(d.Items))
		for i, it := range d.Items {
			result[i] = ItemColumn(it)
		}
		return result
	case AggregateDesc:
		result := make([]*ast.FieldRef, 0, len(d.GroupKeys)+len(d.Aggs))
		for _, k := range d.GroupKeys {
			result = append(result, ItemColumn(ProjectItem{Expr: k}))
		}
		for _, a := range d.Aggs {
			result = append(result, ItemColumn(a))
		}
		return result
	case JoinDesc:
		var result []*ast.FieldRef
		for i, in := range op.Inputs {
			if d.Type == LeftSemiJoin && i > 0 {
				break
			}
			result = append(result, g.outputColumns(in, visiting)...)
		}
		return result
	default:
		if len(op.Inputs) == 0 {
			return nil
		}
		return g.outputColumns(op.Inputs[0], visiting)
	}
}

// ItemColumn is the column a projection item produces.
func ItemColumn(it ProjectItem) *ast.FieldRef {
	if f, ok := it.Expr.(*ast.FieldRef); ok && it.Alias == "" {
		return f
	}
	name := it.Alias
	if name == "" {
		name = ast.ExprString(it.Expr)
	}
	return &ast.FieldRef{Name: name}
}
