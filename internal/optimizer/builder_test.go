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

package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lf-edge/planopt/internal/pass"
	"github.com/lf-edge/planopt/internal/pkg/def"
	"github.com/lf-edge/planopt/internal/plan"
	"github.com/lf-edge/planopt/pkg/errorx"
)

var defaultNames = []string{
	pass.OpConverterPostProc,
	pass.PredicateTransitivePropagate,
	pass.ConstantPropagate,
	pass.SyntheticJoinPredicate,
	pass.PredicatePushdown,
	pass.ConstantPropagate,
	pass.SortedDynPartitionTimeGranularity,
	pass.PartitionPruner,
	pass.PartitionConditionRemover,
	pass.ConstantPropagate,
	pass.GroupByOptimizer,
	pass.ColumnPruner,
	pass.SamplePruner,
	pass.MapJoinProcessor,
	pass.BucketingSortingReduceSink,
	pass.UnionProcessor,
	pass.JoinReorder,
	pass.BucketVersionPopulator,
	pass.ReduceSinkDedup,
	pass.NonBlockingOpDedup,
	pass.IdentityProjectRemover,
	pass.LimitPushdown,
	pass.OrderlessLimitPushdown,
	pass.StatsOptimizer,
	pass.SimpleFetchOptimizer,
}

func TestBuildDefault(t *testing.T) {
	p, err := Build(def.DefaultOptimizerOption(), plan.DefaultFlags())
	require.NoError(t, err)
	assert.Equal(t, defaultNames, p.Names())
	assert.Empty(t, p.Warnings())
	infos := p.Infos()
	assert.Equal(t, pass.Info{Name: pass.LimitPushdown, Params: pass.Params{"memory_fraction": 0.1}}, infos[21])
	assert.Equal(t, pass.Info{Name: pass.SimpleFetchOptimizer, Params: pass.Params{"conversion": "more"}}, infos[24])
}

func TestBuildDeterministic(t *testing.T) {
	opt := def.DefaultOptimizerOption()
	opt.ComputeLineage = true
	opt.PointLookupEnabled = true
	opt.SortedMergeBucketMapJoin = true
	flags := plan.Flags{Statement: plan.Insert, Engine: plan.EngineMR, ExplainSkipExecution: true}
	first, err := Build(opt, flags)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		p, err := Build(opt, flags)
		require.NoError(t, err)
		assert.Equal(t, first.Infos(), p.Infos())
		assert.Equal(t, first.Warnings(), p.Warnings())
	}
}

func count(names []string, name string) int {
	n := 0
	for _, s := range names {
		if s == name {
			n++
		}
	}
	return n
}

func indexOf(names []string, name string) int {
	for i, s := range names {
		if s == name {
			return i
		}
	}
	return -1
}

func TestBuildVariants(t *testing.T) {
	tests := []struct {
		name     string
		opt      func(o *def.OptimizerOption)
		flags    func(f *plan.Flags)
		contains []string
		absent   []string
		counts   map[string]int
		warnings []string
	}{
		{
			name:     "cbo",
			flags:    func(f *plan.Flags) { f.CBOSucceeded = true },
			contains: []string{pass.SyntheticJoinPredicate, pass.SimplePredicatePushdown, pass.RedundantDynamicPruningRemoval},
			absent:   []string{pass.PredicatePushdown, pass.PredicateTransitivePropagate},
			counts:   map[string]int{pass.ConstantPropagate: 0},
		},
		{
			name:   "cbo merge",
			flags:  func(f *plan.Flags) { f.CBOSucceeded = true; f.Statement = plan.Merge },
			counts: map[string]int{pass.ConstantPropagate: 1},
		},
		{
			name:   "no pushdown",
			opt:    func(o *def.OptimizerOption) { o.PredicatePushdownEnabled = false },
			absent: []string{pass.PredicatePushdown, pass.SyntheticJoinPredicate, pass.PartitionPruner, pass.PartitionConditionRemover},
			counts: map[string]int{pass.ConstantPropagate: 1},
		},
		{
			name:   "no constant propagation",
			opt:    func(o *def.OptimizerOption) { o.ConstantPropagationEnabled = false },
			counts: map[string]int{pass.ConstantPropagate: 0, pass.PredicatePushdown: 1},
		},
		{
			name:     "list bucketing",
			opt:      func(o *def.OptimizerOption) { o.ListBucketingEnabled = true },
			contains: []string{pass.ListBucketingPruner},
		},
		{
			name:     "skew join on mr",
			opt:      func(o *def.OptimizerOption) { o.SkewJoinCompileTime = true },
			contains: []string{pass.SkewJoin},
		},
		{
			name:     "skew join on tez",
			opt:      func(o *def.OptimizerOption) { o.SkewJoinCompileTime = true },
			flags:    func(f *plan.Flags) { f.Engine = plan.EngineTez },
			absent:   []string{pass.SkewJoin, pass.ReduceSinkDedup},
			warnings: []string{"skew join is not supported on tez, skipping the skew join optimization"},
		},
		{
			name:   "sorted merge adds bucket map join",
			opt:    func(o *def.OptimizerOption) { o.SortedMergeBucketMapJoin = true },
			counts: map[string]int{pass.BucketMapJoin: 1, pass.SortedMergeBucketMapJoin: 1},
		},
		{
			name: "sorted merge with bucket map join",
			opt: func(o *def.OptimizerOption) {
				o.SortedMergeBucketMapJoin = true
				o.BucketMapJoin = true
			},
			counts: map[string]int{pass.BucketMapJoin: 1, pass.SortedMergeBucketMapJoin: 1},
		},
		{
			name: "bucket joins on tez",
			opt: func(o *def.OptimizerOption) {
				o.SortedMergeBucketMapJoin = true
				o.BucketMapJoin = true
			},
			flags:  func(f *plan.Flags) { f.Engine = plan.EngineTez },
			absent: []string{pass.BucketMapJoin, pass.SortedMergeBucketMapJoin},
		},
		{
			name:     "lineage",
			opt:      func(o *def.OptimizerOption) { o.ComputeLineage = true },
			contains: []string{pass.LineageGenerator},
		},
		{
			name:     "point lookup",
			opt:      func(o *def.OptimizerOption) { o.PointLookupEnabled = true },
			contains: []string{pass.PointLookup},
		},
		{
			name:   "point lookup after cbo",
			opt:    func(o *def.OptimizerOption) { o.PointLookupEnabled = true; o.PointLookupMinOrTerms = 0 },
			flags:  func(f *plan.Flags) { f.CBOSucceeded = true },
			absent: []string{pass.PointLookup},
		},
		{
			name:     "partition column separator",
			opt:      func(o *def.OptimizerOption) { o.PartitionColumnSeparatorEnabled = true },
			contains: []string{pass.PartitionColumnSeparator},
		},
		{
			name:   "groupby disabled",
			opt:    func(o *def.OptimizerOption) { o.GroupByOptimizationEnabled = false; o.MapGroupBySort = false },
			absent: []string{pass.GroupByOptimizer},
		},
		{
			name:     "count distinct in test",
			opt:      func(o *def.OptimizerOption) { o.CountDistinctOptimization = true; o.InTest = true },
			contains: []string{pass.CountDistinctRewrite},
		},
		{
			name:   "count distinct on mr",
			opt:    func(o *def.OptimizerOption) { o.CountDistinctOptimization = true },
			absent: []string{pass.CountDistinctRewrite},
		},
		{
			name:     "bucket pruning",
			opt:      func(o *def.OptimizerOption) { o.BucketPruning = true; o.IndexFilter = true },
			contains: []string{pass.FixedBucketPruning},
		},
		{
			name:   "bucket pruning without index filter",
			opt:    func(o *def.OptimizerOption) { o.BucketPruning = true },
			absent: []string{pass.FixedBucketPruning},
		},
		{
			name:   "cbo return path",
			opt:    func(o *def.OptimizerOption) { o.CBOReturnPath = true },
			absent: []string{pass.IdentityProjectRemover},
		},
		{
			name:     "global limit and correlation",
			opt:      func(o *def.OptimizerOption) { o.GlobalLimit = true; o.Correlation = true },
			contains: []string{pass.GlobalLimit, pass.CorrelationOptimizer},
		},
		{
			name:   "correlation with groupby skew",
			opt:    func(o *def.OptimizerOption) { o.Correlation = true; o.GroupBySkew = true },
			absent: []string{pass.CorrelationOptimizer},
		},
		{
			name:   "limit pushdown disabled",
			opt:    func(o *def.OptimizerOption) { o.LimitPushdownMemoryFraction = 0 },
			absent: []string{pass.LimitPushdown},
		},
		{
			name:     "explain skip execution",
			flags:    func(f *plan.Flags) { f.ExplainSkipExecution = true },
			contains: []string{pass.AnnotateWithStatistics, pass.AnnotateWithOpTraits},
		},
		{
			name:   "explain skip execution on tez",
			flags:  func(f *plan.Flags) { f.ExplainSkipExecution = true; f.Engine = plan.EngineTez },
			absent: []string{pass.AnnotateWithStatistics, pass.AnnotateWithOpTraits},
		},
		{
			name:     "fetch aggregation and serde properties",
			opt:      func(o *def.OptimizerOption) { o.FetchTaskAggregation = true; o.TablePropertiesFromSerde = true },
			contains: []string{pass.SimpleFetchAggregation, pass.TablePropertyEnrichment},
		},
		{
			name:   "fetch none",
			opt:    func(o *def.OptimizerOption) { o.FetchTaskConversion = def.FetchNone },
			absent: []string{pass.SimpleFetchOptimizer},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := def.DefaultOptimizerOption()
			if tt.opt != nil {
				tt.opt(&opt)
			}
			flags := plan.DefaultFlags()
			if tt.flags != nil {
				tt.flags(&flags)
			}
			p, err := Build(opt, flags)
			require.NoError(t, err)
			names := p.Names()
			for _, n := range tt.contains {
				assert.Contains(t, names, n)
			}
			for _, n := range tt.absent {
				assert.NotContains(t, names, n)
			}
			for n, c := range tt.counts {
				assert.Equal(t, c, count(names, n), n)
			}
			assert.Equal(t, tt.warnings, p.Warnings())
			assert.Equal(t, pass.OpConverterPostProc, names[0])
			if i := indexOf(names, pass.SimpleFetchOptimizer); i >= 0 {
				assert.Equal(t, len(names)-1, i)
			}
		})
	}
}

func TestBuildOrdering(t *testing.T) {
	opt := def.DefaultOptimizerOption()
	opt.ComputeLineage = true
	opt.PointLookupEnabled = true
	opt.PartitionColumnSeparatorEnabled = true
	opt.SortedMergeBucketMapJoin = true
	opt.TablePropertiesFromSerde = true
	p, err := Build(opt, plan.Flags{Statement: plan.Select, Engine: plan.EngineMR, ExplainSkipExecution: true})
	require.NoError(t, err)
	names := p.Names()
	before := [][2]string{
		{pass.OpConverterPostProc, pass.LineageGenerator},
		{pass.LineageGenerator, pass.PointLookup},
		{pass.PointLookup, pass.PartitionColumnSeparator},
		{pass.PartitionColumnSeparator, pass.PredicateTransitivePropagate},
		{pass.PredicatePushdown, pass.PartitionPruner},
		{pass.MapJoinProcessor, pass.BucketMapJoin},
		{pass.BucketMapJoin, pass.SortedMergeBucketMapJoin},
		{pass.SortedMergeBucketMapJoin, pass.BucketingSortingReduceSink},
		{pass.StatsOptimizer, pass.AnnotateWithStatistics},
		{pass.AnnotateWithOpTraits, pass.TablePropertyEnrichment},
		{pass.TablePropertyEnrichment, pass.SimpleFetchOptimizer},
	}
	for _, b := range before {
		assert.Less(t, indexOf(names, b[0]), indexOf(names, b[1]), "%s before %s", b[0], b[1])
		assert.GreaterOrEqual(t, indexOf(names, b[0]), 0, b[0])
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name  string
		opt   func(o *def.OptimizerOption)
		flags plan.Flags
		rule  string
	}{
		{
			name:  "point lookup min terms",
			opt:   func(o *def.OptimizerOption) { o.PointLookupEnabled = true; o.PointLookupMinOrTerms = 0 },
			flags: plan.DefaultFlags(),
			rule:  pass.PointLookup,
		},
		{
			name:  "negative memory fraction",
			opt:   func(o *def.OptimizerOption) { o.LimitPushdownMemoryFraction = -0.1 },
			flags: plan.DefaultFlags(),
			rule:  pass.LimitPushdown,
		},
		{
			name:  "memory fraction above one",
			opt:   func(o *def.OptimizerOption) { o.LimitPushdownMemoryFraction = 1.5 },
			flags: plan.DefaultFlags(),
			rule:  pass.LimitPushdown,
		},
		{
			name:  "fetch conversion",
			opt:   func(o *def.OptimizerOption) { o.FetchTaskConversion = "all" },
			flags: plan.DefaultFlags(),
			rule:  pass.SimpleFetchOptimizer,
		},
		{
			name:  "engine",
			flags: plan.Flags{Statement: plan.Select, Engine: "spark"},
		},
		{
			name:  "statement",
			flags: plan.Flags{Statement: plan.StatementKind(99), Engine: plan.EngineMR},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := def.DefaultOptimizerOption()
			if tt.opt != nil {
				tt.opt(&opt)
			}
			p, err := Build(opt, tt.flags)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, errorx.IsConfiguration(err), err.Error())
			if tt.rule != "" {
				assert.Contains(t, err.Error(), "build rule "+tt.rule)
			}
		})
	}
}

func TestBuilderRegistry(t *testing.T) {
	r := pass.NewRegistry()
	r.Register(pass.OpConverterPostProc, func(pass.Params) (pass.Pass, error) {
		return &stubPass{name: pass.OpConverterPostProc}, nil
	})
	_, err := NewBuilder(r).Build(def.DefaultOptimizerOption(), plan.DefaultFlags())
	require.Error(t, err)
	assert.True(t, errorx.IsConfiguration(err))
	assert.Contains(t, err.Error(), "pass predicate_transitive_propagate is not registered")

	r = pass.DefaultRegistry()
	r.Register(pass.ColumnPruner, func(pass.Params) (pass.Pass, error) {
		return &stubPass{name: "custom_pruner"}, nil
	})
	p, err := NewBuilder(r).Build(def.DefaultOptimizerOption(), plan.DefaultFlags())
	require.NoError(t, err)
	assert.Equal(t, "custom_pruner", p.Names()[11])
}
