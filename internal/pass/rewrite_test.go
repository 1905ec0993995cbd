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
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lf-edge/planopt/internal/plan"
	"github.com/lf-edge/planopt/internal/plan/plantest"
	"github.com/lf-edge/planopt/pkg/ast"
)

func prop(t *testing.T, g *plan.Graph, id plan.OpID, key string) any {
	t.Helper()
	v, ok := g.Op(id).Prop(key)
	require.True(t, ok, "operator %d has no %s", id, key)
	return v
}

func TestGroupByOptimizer(t *testing.T) {
	build := func(key string) (*plan.Graph, plan.OpID) {
		g := plan.NewGraph()
		scan := g.Add(plan.ScanDesc{Table: "src", Alias: "src", Columns: []string{"key", "value"}})
		agg := g.Add(plan.AggregateDesc{
			GroupKeys: []ast.Expr{plantest.Ref("src", key)},
			Aggs:      []plan.ProjectItem{{Expr: ast.NewCall("count", plantest.Ref("src", "value")), Alias: "c"}},
		}, scan)
		g.Add(plan.SinkDesc{Target: "stdout"}, agg)
		return g, agg
	}
	g, agg := build("key")
	n := run(t, GroupByOptimizer, newContext(t, g))
	assert.Equal(t, true, prop(t, n.Graph(), agg, "groupby.bucketed"))
	assert.Equal(t, true, prop(t, n.Graph(), agg, "groupby.sorted"))

	g, agg = build("value")
	n = run(t, GroupByOptimizer, newContext(t, g))
	_, ok := n.Graph().Op(agg).Prop("groupby.bucketed")
	assert.False(t, ok)
}

func TestJoinAlgorithms(t *testing.T) {
	p := plantest.Join()
	d := p.Graph.Op(p.Join).Desc.(plan.JoinDesc)
	d.MapJoinHint = []int{1}
	require.NoError(t, p.Graph.SetDesc(p.Join, d))
	pc := newContext(t, p.Graph)
	pc = run(t, MapJoinProcessor, pc)
	assert.Equal(t, plan.MapJoin, pc.Graph().Op(p.Join).Desc.(plan.JoinDesc).Algorithm)
	pc = run(t, BucketMapJoin, pc)
	assert.Equal(t, plan.BucketMapJoin, pc.Graph().Op(p.Join).Desc.(plan.JoinDesc).Algorithm)
	// 4 and 2 buckets cannot be merged bucket by bucket
	pc = run(t, SortedMergeBucketMapJoin, pc)
	assert.Equal(t, plan.BucketMapJoin, pc.Graph().Op(p.Join).Desc.(plan.JoinDesc).Algorithm)

	cat := plantest.Catalog()
	dim, err := cat.GetTable("dim")
	require.NoError(t, err)
	dim.NumBuckets = 4
	require.NoError(t, cat.PutTable(dim))
	p = plantest.Join()
	pc, err = plan.New(p.Graph, plan.DefaultFlags(), cat)
	require.NoError(t, err)
	pc = run(t, SortedMergeBucketMapJoin, pc)
	assert.Equal(t, plan.SortMergeBucketMapJoin, pc.Graph().Op(p.Join).Desc.(plan.JoinDesc).Algorithm)
}

func TestMapJoinHintOnOuterSide(t *testing.T) {
	p := plantest.Join()
	d := p.Graph.Op(p.Join).Desc.(plan.JoinDesc)
	d.Type = plan.LeftOuterJoin
	d.MapJoinHint = []int{0}
	require.NoError(t, p.Graph.SetDesc(p.Join, d))
	n := run(t, MapJoinProcessor, newContext(t, p.Graph))
	assert.Equal(t, plan.ShuffleJoin, n.Graph().Op(p.Join).Desc.(plan.JoinDesc).Algorithm)
}

func TestBucketVersionPopulator(t *testing.T) {
	p := plantest.Join()
	cat := plantest.Catalog()
	dim, err := cat.GetTable("dim")
	require.NoError(t, err)
	dim.BucketingVersion = 0
	require.NoError(t, cat.PutTable(dim))
	pc, err := plan.New(p.Graph, plan.DefaultFlags(), cat)
	require.NoError(t, err)
	n := run(t, BucketVersionPopulator, pc)
	assert.Equal(t, 2, prop(t, n.Graph(), p.Left, "bucketing_version"))
	assert.Equal(t, 1, prop(t, n.Graph(), p.Right, "bucketing_version"))
	assert.Equal(t, -1, prop(t, n.Graph(), p.Join, "bucketing_version"))
}

func TestColumnPruner(t *testing.T) {
	p := plantest.Select()
	n := run(t, ColumnPruner, newContext(t, p.Graph))
	assert.Equal(t, []string{"key", "value"}, n.Graph().Op(p.Scan).Desc.(plan.ScanDesc).Columns)

	g := plan.NewGraph()
	scan := g.Add(plan.ScanDesc{Table: "src", Alias: "src", Columns: []string{"key", "value"}})
	agg := g.Add(plan.AggregateDesc{Aggs: []plan.ProjectItem{{Expr: ast.NewCall("count", plantest.Int(1)), Alias: "c"}}}, scan)
	g.Add(plan.SinkDesc{Target: "stdout"}, agg)
	n = run(t, ColumnPruner, newContext(t, g))
	assert.Equal(t, []string{"key"}, n.Graph().Op(scan).Desc.(plan.ScanDesc).Columns)
}

func TestIdentityProjectRemover(t *testing.T) {
	build := func(items ...plan.ProjectItem) (*plan.Graph, plan.OpID) {
		g := plan.NewGraph()
		scan := g.Add(plan.ScanDesc{Table: "src", Alias: "src", Columns: []string{"key", "value"}})
		proj := g.Add(plan.ProjectDesc{Items: items}, scan)
		g.Add(plan.SinkDesc{Target: "stdout"}, proj)
		return g, proj
	}
	g, proj := build(plan.ProjectItem{Expr: plantest.Ref("src", "key")}, plan.ProjectItem{Expr: plantest.Ref("src", "value")})
	n := run(t, IdentityProjectRemover, newContext(t, g))
	assert.Nil(t, n.Graph().Op(proj))

	g, proj = build(plan.ProjectItem{Expr: plantest.Ref("src", "value")}, plan.ProjectItem{Expr: plantest.Ref("src", "key")})
	n = run(t, IdentityProjectRemover, newContext(t, g))
	assert.NotNil(t, n.Graph().Op(proj))
}

func TestNonBlockingOpDedup(t *testing.T) {
	g := plan.NewGraph()
	scan := g.Add(plan.ScanDesc{Table: "src", Alias: "src", Columns: []string{"key", "value"}})
	f1 := g.Add(plan.FilterDesc{Condition: plantest.Bin(ast.GT, plantest.Ref("src", "key"), plantest.Int(1))}, scan)
	f2 := g.Add(plan.FilterDesc{Condition: plantest.Bin(ast.EQ, plantest.Ref("src", "value"), plantest.Str("x"))}, f1)
	p1 := g.Add(plan.ProjectDesc{Items: []plan.ProjectItem{
		{Expr: plantest.Ref("src", "key")},
		{Expr: ast.NewCall("upper", plantest.Ref("src", "value")), Alias: "v"},
	}}, f2)
	p2 := g.Add(plan.ProjectDesc{Items: []plan.ProjectItem{
		{Expr: &ast.FieldRef{Name: "v"}, Alias: "w"},
		{Expr: plantest.Ref("src", "key")},
	}}, p1)
	g.Add(plan.SinkDesc{Target: "stdout"}, p2)

	n := run(t, NonBlockingOpDedup, newContext(t, g))
	assert.Nil(t, n.Graph().Op(f2))
	assert.Nil(t, n.Graph().Op(p2))
	assert.Equal(t, `(src.key > 1) AND (src.value = "x")`, condOf(t, n.Graph(), f1))
	assert.Equal(t, "Fields: [upper(src.value) AS w, src.key]", n.Graph().Op(p1).Desc.Info())
	assert.Equal(t, []plan.OpID{f1}, n.Graph().Op(p1).Inputs)
}

func TestUnionProcessor(t *testing.T) {
	g := plan.NewGraph()
	a := g.Add(plan.ScanDesc{Table: "src", Alias: "a", Columns: []string{"key"}})
	b := g.Add(plan.ScanDesc{Table: "src", Alias: "b", Columns: []string{"key"}})
	c := g.Add(plan.ScanDesc{Table: "src", Alias: "c", Columns: []string{"key"}})
	u1 := g.Add(plan.UnionDesc{All: true}, a, b)
	u2 := g.Add(plan.UnionDesc{All: true}, u1, c)
	g.Add(plan.SinkDesc{Target: "stdout"}, u2)
	n := run(t, UnionProcessor, newContext(t, g))
	assert.Nil(t, n.Graph().Op(u1))
	assert.Equal(t, []plan.OpID{a, b, c}, n.Graph().Op(u2).Inputs)
}

func TestUnionProcessorSharedInputs(t *testing.T) {
	g := plan.NewGraph()
	a := g.Add(plan.ScanDesc{Table: "src", Alias: "a", Columns: []string{"key"}})
	b := g.Add(plan.ScanDesc{Table: "src", Alias: "b", Columns: []string{"key"}})
	u1 := g.Add(plan.UnionDesc{All: true}, a, b)
	u2 := g.Add(plan.UnionDesc{All: true}, u1, a)
	g.Add(plan.SinkDesc{Target: "stdout"}, u2)
	n := run(t, UnionProcessor, newContext(t, g))
	assert.Nil(t, n.Graph().Op(u1))
	assert.Equal(t, []plan.OpID{a, b, a}, n.Graph().Op(u2).Inputs)

	// a union read twice by its parent keeps both reads
	g = plan.NewGraph()
	a = g.Add(plan.ScanDesc{Table: "src", Alias: "a", Columns: []string{"key"}})
	b = g.Add(plan.ScanDesc{Table: "src", Alias: "b", Columns: []string{"key"}})
	u1 = g.Add(plan.UnionDesc{All: true}, a, b)
	u2 = g.Add(plan.UnionDesc{All: true}, u1, u1)
	g.Add(plan.SinkDesc{Target: "stdout"}, u2)
	n = run(t, UnionProcessor, newContext(t, g))
	assert.Equal(t, []plan.OpID{u1, u1}, n.Graph().Op(u2).Inputs)
}

func TestLimitPasses(t *testing.T) {
	g := plan.NewGraph()
	scan := g.Add(plan.ScanDesc{Table: "src", Alias: "src", Columns: []string{"key"}})
	proj := g.Add(plan.ProjectDesc{Items: []plan.ProjectItem{{Expr: plantest.Ref("src", "key")}}}, scan)
	lim := g.Add(plan.LimitDesc{Count: 10, Offset: 5}, proj)
	g.Add(plan.SinkDesc{Target: "stdout"}, lim)
	n := run(t, GlobalLimit, newContext(t, g))
	assert.Equal(t, int64(15), prop(t, n.Graph(), scan, "global_limit"))

	g = plan.NewGraph()
	scan = g.Add(plan.ScanDesc{Table: "src", Alias: "src", Columns: []string{"key"}})
	sorted := g.Add(plan.SortDesc{Keys: []plan.SortKey{{Expr: plantest.Ref("src", "key"), Desc: true}}}, scan)
	lim = g.Add(plan.LimitDesc{Count: 10}, sorted)
	g.Add(plan.SinkDesc{Target: "stdout"}, lim)
	n = run(t, LimitPushdown, newContext(t, g))
	assert.Equal(t, int64(10), prop(t, n.Graph(), sorted, "topn"))
	assert.Equal(t, 0.1, prop(t, n.Graph(), sorted, "topn_memory_fraction"))
	_, ok := n.Graph().Op(scan).Prop("global_limit")
	assert.False(t, ok)
}

func TestOrderlessLimitPushdown(t *testing.T) {
	g := plan.NewGraph()
	a := g.Add(plan.ScanDesc{Table: "src", Alias: "a", Columns: []string{"key"}})
	b := g.Add(plan.ScanDesc{Table: "src", Alias: "b", Columns: []string{"key"}})
	u := g.Add(plan.UnionDesc{All: true}, a, b)
	lim := g.Add(plan.LimitDesc{Count: 5}, u)
	g.Add(plan.SinkDesc{Target: "stdout"}, lim)
	n := run(t, OrderlessLimitPushdown, newContext(t, g))
	in := n.Graph().Op(u).Inputs
	require.Len(t, in, 2)
	for i, id := range in {
		op := n.Graph().Op(id)
		assert.Equal(t, plan.LimitDesc{Count: 5}, op.Desc)
		assert.Equal(t, []plan.OpID{[]plan.OpID{a, b}[i]}, op.Inputs)
	}
	first := plan.Explain(n.Graph())
	n = run(t, OrderlessLimitPushdown, n)
	assert.Equal(t, first, plan.Explain(n.Graph()))
}

func TestOpConverterPostProc(t *testing.T) {
	g := plan.NewGraph()
	scan := g.Add(plan.ScanDesc{Table: "default.SRC", Columns: []string{"key"}})
	g.Add(plan.SinkDesc{Target: "stdout"}, scan)
	n := run(t, OpConverterPostProc, newContext(t, g))
	assert.Equal(t, "src", n.Graph().Op(scan).Desc.(plan.ScanDesc).Alias)
	again := run(t, OpConverterPostProc, n)
	assert.Same(t, n, again)
}

func TestLineageGenerator(t *testing.T) {
	n := run(t, LineageGenerator, newContext(t, plantest.Select().Graph))
	v, ok := n.Annotation(LineageAnnotation)
	require.True(t, ok)
	assert.Equal(t, map[string][]string{
		"src.key": {"src.key"},
		"v":       {"src.value"},
	}, v)

	n = run(t, LineageGenerator, newContext(t, plantest.Join().Graph))
	v, _ = n.Annotation(LineageAnnotation)
	assert.Equal(t, map[string][]string{
		"src.value": {"src.value"},
		"dim.name":  {"dim.name"},
	}, v)
}

func TestCatalogAnnotations(t *testing.T) {
	p := plantest.Join()
	pc := run(t, AnnotateWithStatistics, newContext(t, p.Graph))
	g := pc.Graph()
	assert.Equal(t, int64(500), prop(t, g, p.Left, "stats.rows"))
	assert.Equal(t, int64(20), prop(t, g, p.Right, "stats.rows"))
	assert.Equal(t, int64(500), prop(t, g, p.Join, "stats.rows"))
	assert.Equal(t, int64(250), prop(t, g, p.Filter, "stats.rows"))
	assert.Equal(t, int64(250), prop(t, g, p.Sink, "stats.rows"))

	pc = run(t, AnnotateWithOpTraits, pc)
	g = pc.Graph()
	assert.Equal(t, 4, prop(t, g, p.Left, "traits.num_buckets"))
	assert.Equal(t, []string{"key"}, prop(t, g, p.Right, "traits.bucket_cols"))
	_, ok := g.Op(p.Join).Prop("traits.num_buckets")
	assert.False(t, ok)

	pc = run(t, TablePropertyEnrichment, pc)
	assert.Equal(t, map[string]string{
		"orc.compress": "ZLIB",
		"serde":        "org.apache.hadoop.hive.ql.io.orc.OrcSerde",
	}, pc.Graph().Op(p.Left).Desc.(plan.ScanDesc).Properties)
	assert.Nil(t, pc.Graph().Op(p.Right).Desc.(plan.ScanDesc).Properties)
}

func TestSimpleFetchOptimizer(t *testing.T) {
	limited := func() *plan.Graph {
		g := plan.NewGraph()
		scan := g.Add(plan.ScanDesc{Table: "src", Alias: "src", Columns: []string{"key", "ds"}})
		f := g.Add(plan.FilterDesc{Condition: plantest.Bin(ast.EQ, plantest.Ref("src", "ds"), plantest.Str("2024"))}, scan)
		proj := g.Add(plan.ProjectDesc{Items: []plan.ProjectItem{{Expr: plantest.Ref("src", "key")}}}, f)
		lim := g.Add(plan.LimitDesc{Count: 10}, proj)
		g.Add(plan.SinkDesc{Target: "stdout"}, lim)
		return g
	}
	tests := []struct {
		name       string
		conversion string
		graph      *plan.Graph
		statement  plan.StatementKind
		want       bool
	}{
		{"more select", "more", plantest.Select().Graph, plan.Select, true},
		{"minimal computed column", "minimal", plantest.Select().Graph, plan.Select, false},
		{"minimal partition filter", "minimal", limited(), plan.Select, true},
		{"insert", "more", limited(), plan.Insert, false},
		{"join", "more", plantest.Join().Graph, plan.Select, false},
		{"none", "none", limited(), plan.Select, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := plan.DefaultFlags()
			f.Statement = tt.statement
			pc, err := plan.New(tt.graph, f, plantest.Catalog())
			require.NoError(t, err)
			p, err := newSimpleFetchOptimizer(Params{"conversion": tt.conversion})
			require.NoError(t, err)
			n, err := p.Apply(pc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.Flags().FetchConversion)
			if !tt.want {
				assert.Same(t, pc, n)
			}
		})
	}
}

func TestFixedBucketPruning(t *testing.T) {
	p, err := newFixedBucketPruning(Params{"compat": false})
	require.NoError(t, err)
	assert.Equal(t, Params{"compat": false}, p.Params())
	pc := newContext(t, plantest.Select().Graph)
	n, err := p.Apply(pc)
	require.NoError(t, err)
	assert.Same(t, pc, n)
}

func TestPassesKeepRandomPlansWellFormed(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	names := DefaultRegistry().Names()
	for i := 0; i < 50; i++ {
		g := plantest.RandomGraph(r, 6+r.Intn(20))
		require.NoError(t, g.Validate())
		pc, err := plan.New(g, plan.DefaultFlags(), plantest.Catalog())
		require.NoError(t, err)
		for _, name := range names {
			pc = run(t, name, pc)
		}
	}
}
