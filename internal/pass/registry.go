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
	"sort"
	"sync"

	"github.com/lf-edge/planopt/pkg/errorx"
)

const (
	OpConverterPostProc               = "op_converter_postproc"
	LineageGenerator                  = "lineage_generator"
	PointLookup                       = "point_lookup"
	PartitionColumnSeparator          = "partition_column_separator"
	PredicateTransitivePropagate      = "predicate_transitive_propagate"
	ConstantPropagate                 = "constant_propagate"
	SyntheticJoinPredicate            = "synthetic_join_predicate"
	PredicatePushdown                 = "predicate_pushdown"
	SimplePredicatePushdown           = "simple_predicate_pushdown"
	RedundantDynamicPruningRemoval    = "redundant_dynamic_pruning_removal"
	SortedDynPartitionTimeGranularity = "sorted_dyn_partition_time_granularity"
	PartitionPruner                   = "partition_pruner"
	PartitionConditionRemover         = "partition_condition_remover"
	ListBucketingPruner               = "list_bucketing_pruner"
	GroupByOptimizer                  = "group_by_optimizer"
	ColumnPruner                      = "column_pruner"
	CountDistinctRewrite              = "count_distinct_rewrite"
	SkewJoin                          = "skew_join"
	SamplePruner                      = "sample_pruner"
	MapJoinProcessor                  = "map_join_processor"
	BucketMapJoin                     = "bucket_map_join"
	SortedMergeBucketMapJoin          = "sorted_merge_bucket_map_join"
	BucketingSortingReduceSink        = "bucketing_sorting_reduce_sink"
	UnionProcessor                    = "union_processor"
	JoinReorder                       = "join_reorder"
	FixedBucketPruning                = "fixed_bucket_pruning"
	BucketVersionPopulator            = "bucket_version_populator"
	ReduceSinkDedup                   = "reduce_sink_dedup"
	NonBlockingOpDedup                = "non_blocking_op_dedup"
	IdentityProjectRemover            = "identity_project_remover"
	GlobalLimit                       = "global_limit"
	CorrelationOptimizer              = "correlation_optimizer"
	LimitPushdown                     = "limit_pushdown"
	OrderlessLimitPushdown            = "orderless_limit_pushdown"
	StatsOptimizer                    = "stats_optimizer"
	AnnotateWithStatistics            = "annotate_with_statistics"
	AnnotateWithOpTraits              = "annotate_with_op_traits"
	SimpleFetchAggregation            = "simple_fetch_aggregation"
	TablePropertyEnrichment           = "table_property_enrichment"
	SimpleFetchOptimizer              = "simple_fetch_optimizer"
)

// Factory builds a pass from its parameters.
type Factory func(params Params) (Pass, error)

// Registry resolves pass names to implementations. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory of a pass name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Create(name string, params Params) (Pass, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errorx.NewConfigurationError(fmt.Sprintf("pass %s is not registered", name))
	}
	return f(params)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func simple(p Pass) Factory {
	return func(Params) (Pass, error) {
		return p, nil
	}
}

func identityOf(name string) Factory {
	return func(params Params) (Pass, error) {
		return &identity{name: name, params: params}, nil
	}
}

// DefaultRegistry returns a fresh registry holding every shipped pass.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(OpConverterPostProc, simple(&opConverterPostProc{}))
	r.Register(LineageGenerator, simple(&lineageGenerator{}))
	r.Register(PointLookup, newPointLookup)
	r.Register(PartitionColumnSeparator, simple(&partitionColumnSeparator{}))
	r.Register(PredicateTransitivePropagate, simple(&predicateTransitivePropagate{}))
	r.Register(ConstantPropagate, simple(&constantPropagate{}))
	r.Register(SyntheticJoinPredicate, simple(&syntheticJoinPredicate{}))
	r.Register(PredicatePushdown, simple(&predicatePushdown{name: PredicatePushdown, full: true}))
	r.Register(SimplePredicatePushdown, simple(&predicatePushdown{name: SimplePredicatePushdown}))
	r.Register(RedundantDynamicPruningRemoval, simple(&redundantDynamicPruningRemoval{}))
	r.Register(PartitionPruner, simple(&partitionPruner{}))
	r.Register(PartitionConditionRemover, simple(&partitionConditionRemover{}))
	r.Register(GroupByOptimizer, simple(&groupByOptimizer{}))
	r.Register(ColumnPruner, simple(&columnPruner{}))
	r.Register(MapJoinProcessor, simple(&mapJoinProcessor{}))
	r.Register(BucketMapJoin, simple(&bucketMapJoin{}))
	r.Register(SortedMergeBucketMapJoin, simple(&sortedMergeBucketMapJoin{}))
	r.Register(UnionProcessor, simple(&unionProcessor{}))
	r.Register(BucketVersionPopulator, simple(&bucketVersionPopulator{}))
	r.Register(NonBlockingOpDedup, simple(&nonBlockingOpDedup{}))
	r.Register(IdentityProjectRemover, simple(&identityProjectRemover{}))
	r.Register(GlobalLimit, simple(&globalLimit{}))
	r.Register(LimitPushdown, newLimitPushdown)
	r.Register(OrderlessLimitPushdown, simple(&orderlessLimitPushdown{}))
	r.Register(AnnotateWithStatistics, simple(&annotateWithStatistics{}))
	r.Register(AnnotateWithOpTraits, simple(&annotateWithOpTraits{}))
	r.Register(TablePropertyEnrichment, simple(&tablePropertyEnrichment{}))
	r.Register(SimpleFetchOptimizer, newSimpleFetchOptimizer)
	for _, name := range []string{
		SortedDynPartitionTimeGranularity, ListBucketingPruner, CountDistinctRewrite,
		SkewJoin, SamplePruner, BucketingSortingReduceSink, JoinReorder,
		ReduceSinkDedup, CorrelationOptimizer, StatsOptimizer, SimpleFetchAggregation,
	} {
		r.Register(name, identityOf(name))
	}
	r.Register(FixedBucketPruning, newFixedBucketPruning)
	return r
}
