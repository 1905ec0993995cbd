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

// Package plantest builds plans and catalogs shared by the tests of the
// optimizer packages.
package plantest

import (
	"fmt"
	"math/rand"

	"github.com/lf-edge/planopt/internal/catalog"
	"github.com/lf-edge/planopt/internal/plan"
	"github.com/lf-edge/planopt/pkg/ast"
)

func Ref(table, name string) *ast.FieldRef {
	return &ast.FieldRef{Table: table, Name: name}
}

func Int(v int64) *ast.IntegerLiteral {
	return &ast.IntegerLiteral{Val: v}
}

func Str(v string) *ast.StringLiteral {
	return &ast.StringLiteral{Val: v}
}

func Bin(op ast.Token, l, r ast.Expr) *ast.BinaryExpr {
	return &ast.BinaryExpr{OP: op, LHS: l, RHS: r}
}

// Catalog holds src(key, value) partitioned by ds and bucketed by key, and
// dim(key, name) unpartitioned.
func Catalog() *catalog.Memory {
	m, err := catalog.NewMemory(
		&catalog.TableDescriptor{
			Name:             "src",
			Columns:          []catalog.Column{{Name: "key", Type: "int"}, {Name: "value", Type: "string"}},
			PartitionKeys:    []catalog.Column{{Name: "ds", Type: "string"}},
			BucketCols:       []string{"key"},
			NumBuckets:       4,
			SortCols:         []string{"key"},
			BucketingVersion: 2,
			SerdeLib:         "org.apache.hadoop.hive.ql.io.orc.OrcSerde",
			Properties:       map[string]string{"orc.compress": "ZLIB"},
			NumRows:          500,
		},
		&catalog.TableDescriptor{
			Name:             "dim",
			Columns:          []catalog.Column{{Name: "key", Type: "int"}, {Name: "name", Type: "string"}},
			BucketCols:       []string{"key"},
			NumBuckets:       2,
			SortCols:         []string{"key"},
			BucketingVersion: 2,
			NumRows:          20,
		},
	)
	if err != nil {
		panic(err)
	}
	return m
}

type SelectPlan struct {
	Graph                       *plan.Graph
	Scan, Project, Filter, Sink plan.OpID
}

// Select builds scan -> project -> filter -> sink for
// SELECT key, upper(value) AS v FROM src WHERE key > 10.
func Select() SelectPlan {
	g := plan.NewGraph()
	p := SelectPlan{Graph: g}
	p.Scan = g.Add(plan.ScanDesc{Table: "src", Alias: "src", Columns: []string{"key", "value", "ds"}})
	p.Project = g.Add(plan.ProjectDesc{Items: []plan.ProjectItem{
		{Expr: Ref("src", "key")},
		{Expr: ast.NewCall("upper", Ref("src", "value")), Alias: "v"},
	}}, p.Scan)
	p.Filter = g.Add(plan.FilterDesc{Condition: Bin(ast.GT, Ref("src", "key"), Int(10))}, p.Project)
	p.Sink = g.Add(plan.SinkDesc{Target: "stdout"}, p.Filter)
	return p
}

type JoinPlan struct {
	Graph                                   *plan.Graph
	Left, Right, Join, Filter, Project, Sink plan.OpID
}

// Join builds SELECT src.value, dim.name FROM src JOIN dim ON src.key = dim.key
// WHERE src.key > 10 AND dim.name = 'x'.
func Join() JoinPlan {
	g := plan.NewGraph()
	p := JoinPlan{Graph: g}
	p.Left = g.Add(plan.ScanDesc{Table: "src", Alias: "src", Columns: []string{"key", "value"}})
	p.Right = g.Add(plan.ScanDesc{Table: "dim", Alias: "dim", Columns: []string{"key", "name"}})
	p.Join = g.Add(plan.JoinDesc{Type: plan.InnerJoin, Condition: Bin(ast.EQ, Ref("src", "key"), Ref("dim", "key"))}, p.Left, p.Right)
	p.Filter = g.Add(plan.FilterDesc{Condition: ast.And(
		Bin(ast.GT, Ref("src", "key"), Int(10)),
		Bin(ast.EQ, Ref("dim", "name"), Str("x")),
	)}, p.Join)
	p.Project = g.Add(plan.ProjectDesc{Items: []plan.ProjectItem{
		{Expr: Ref("src", "value")},
		{Expr: Ref("dim", "name")},
	}}, p.Filter)
	p.Sink = g.Add(plan.SinkDesc{Target: "stdout"}, p.Project)
	return p
}

// RandomGraph builds a well formed plan with roughly n operators over scans
// of src and dim.
func RandomGraph(r *rand.Rand, n int) *plan.Graph {
	g := plan.NewGraph()
	var frontier []plan.OpID
	scans := 1 + r.Intn(3)
	for i := 0; i < scans; i++ {
		table := "src"
		cols := []string{"key", "value"}
		if r.Intn(2) == 1 {
			table = "dim"
			cols = []string{"key", "name"}
		}
		frontier = append(frontier, g.Add(plan.ScanDesc{Table: table, Alias: fmt.Sprintf("t%d", i), Columns: cols}))
	}
	for g.Len() < n {
		i := r.Intn(len(frontier))
		in := frontier[i]
		var (
			desc plan.Desc
			cols = g.OutputColumns(in)
		)
		if len(frontier) > 1 && r.Intn(4) == 0 {
			j := (i + 1 + r.Intn(len(frontier)-1)) % len(frontier)
			other := frontier[j]
			var id plan.OpID
			if r.Intn(2) == 0 {
				id = g.Add(plan.JoinDesc{Type: plan.InnerJoin, Condition: joinCondition(cols, g.OutputColumns(other))}, in, other)
			} else {
				id = g.Add(plan.UnionDesc{All: true}, in, other)
			}
			frontier = removeAt(frontier, i, j)
			frontier = append(frontier, id)
			continue
		}
		switch r.Intn(5) {
		case 0:
			desc = plan.FilterDesc{Condition: randomPredicate(r, cols)}
		case 1:
			desc = plan.ProjectDesc{Items: forward(cols)}
		case 2:
			if len(cols) > 0 {
				desc = plan.SortDesc{Keys: []plan.SortKey{{Expr: cols[0]}}}
			} else {
				desc = plan.LimitDesc{Count: 10}
			}
		case 3:
			desc = plan.LimitDesc{Count: int64(1 + r.Intn(100))}
		default:
			desc = plan.FilterDesc{Condition: ast.And(randomPredicate(r, cols), randomPredicate(r, cols))}
		}
		frontier[i] = g.Add(desc, in)
	}
	for len(frontier) > 1 {
		id := g.Add(plan.UnionDesc{All: true}, frontier[0], frontier[1])
		frontier = append([]plan.OpID{id}, frontier[2:]...)
	}
	g.Add(plan.SinkDesc{Target: "stdout"}, frontier[0])
	return g
}

func removeAt(ids []plan.OpID, i, j int) []plan.OpID {
	result := make([]plan.OpID, 0, len(ids))
	for k, id := range ids {
		if k != i && k != j {
			result = append(result, id)
		}
	}
	return result
}

func forward(cols []*ast.FieldRef) []plan.ProjectItem {
	items := make([]plan.ProjectItem, len(cols))
	for i, c := range cols {
		items[i] = plan.ProjectItem{Expr: c}
	}
	return items
}

func randomPredicate(r *rand.Rand, cols []*ast.FieldRef) ast.Expr {
	if len(cols) == 0 {
		return &ast.BooleanLiteral{Val: true}
	}
	c := cols[r.Intn(len(cols))]
	switch r.Intn(4) {
	case 0:
		return Bin(ast.GT, c, Int(int64(r.Intn(100))))
	case 1:
		return Bin(ast.EQ, Bin(ast.ADD, Int(1), Int(1)), Int(2))
	case 2:
		return &ast.IsNullExpr{Expr: c, Not: true}
	default:
		return ast.Or(Bin(ast.EQ, c, Int(1)), Bin(ast.EQ, c, Int(2)), Bin(ast.EQ, c, Int(3)))
	}
}

func joinCondition(l, r []*ast.FieldRef) ast.Expr {
	if len(l) == 0 || len(r) == 0 {
		return &ast.BooleanLiteral{Val: true}
	}
	return Bin(ast.EQ, l[0], r[0])
}
