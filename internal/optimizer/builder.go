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

// Package optimizer sequences the rewrite passes of a compilation and runs
// them over its plan.
package optimizer

import (
	"fmt"

	"github.com/lf-edge/planopt/internal/conf"
	"github.com/lf-edge/planopt/internal/pass"
	"github.com/lf-edge/planopt/internal/pkg/def"
	"github.com/lf-edge/planopt/internal/plan"
	"github.com/lf-edge/planopt/pkg/errorx"
)

// buildState is local to one Build call.
type buildState struct {
	opt      def.OptimizerOption
	flags    plan.Flags
	registry *pass.Registry
	passes   []pass.Pass
	warnings []string
	// bucketMapJoinAdded keeps the sorted merge rule from scheduling
	// bucket_map_join a second time.
	bucketMapJoinAdded bool
}

func (s *buildState) add(name string, params pass.Params) error {
	p, err := s.registry.Create(name, params)
	if err != nil {
		return err
	}
	s.passes = append(s.passes, p)
	return nil
}

func (s *buildState) warn(msg string) {
	s.warnings = append(s.warnings, msg)
}

func (s *buildState) cbo() bool {
	return s.flags.CBOSucceeded
}

func (s *buildState) tez() bool {
	return s.flags.Engine == plan.EngineTez
}

// buildRule appends the passes of one slot of the pipeline, possibly none.
type buildRule struct {
	name  string
	apply func(s *buildState) error
}

func always(name string) buildRule {
	return buildRule{name: name, apply: func(s *buildState) error {
		return s.add(name, nil)
	}}
}

func when(name string, cond func(s *buildState) bool) buildRule {
	return buildRule{name: name, apply: func(s *buildState) error {
		if !cond(s) {
			return nil
		}
		return s.add(name, nil)
	}}
}

// ruleList is the pipeline layout. Rules are independent of each other
// except for the bucket map join marker and run in this order.
var ruleList = []buildRule{
	always(pass.OpConverterPostProc),
	when(pass.LineageGenerator, func(s *buildState) bool { return s.opt.ComputeLineage }),
	{name: pass.PointLookup, apply: func(s *buildState) error {
		if !s.opt.PointLookupEnabled || s.cbo() {
			return nil
		}
		if s.opt.PointLookupMinOrTerms <= 0 {
			return errorx.NewConfigurationError(fmt.Sprintf("point_lookup_min_or_terms must be positive, got %d", s.opt.PointLookupMinOrTerms))
		}
		return s.add(pass.PointLookup, pass.Params{"min_or_terms": s.opt.PointLookupMinOrTerms})
	}},
	when(pass.PartitionColumnSeparator, func(s *buildState) bool { return s.opt.PartitionColumnSeparatorEnabled }),
	{name: "predicate_pushdown_block", apply: func(s *buildState) error {
		if !s.opt.PredicatePushdownEnabled {
			return nil
		}
		var names []string
		if !s.cbo() {
			names = append(names, pass.PredicateTransitivePropagate)
			if s.opt.ConstantPropagationEnabled {
				names = append(names, pass.ConstantPropagate)
			}
			names = append(names, pass.SyntheticJoinPredicate, pass.PredicatePushdown)
		} else {
			names = append(names, pass.SyntheticJoinPredicate, pass.SimplePredicatePushdown, pass.RedundantDynamicPruningRemoval)
		}
		return addAll(s, names...)
	}},
	// filters combined by the pushdown may fold further
	when(pass.ConstantPropagate, func(s *buildState) bool {
		return s.opt.ConstantPropagationEnabled && (!s.cbo() || s.flags.Statement == plan.Merge)
	}),
	always(pass.SortedDynPartitionTimeGranularity),
	{name: "partition_block", apply: func(s *buildState) error {
		if !s.opt.PredicatePushdownEnabled {
			return nil
		}
		names := []string{pass.PartitionPruner, pass.PartitionConditionRemover}
		if s.opt.ListBucketingEnabled {
			names = append(names, pass.ListBucketingPruner)
		}
		if s.opt.ConstantPropagationEnabled && !s.cbo() {
			names = append(names, pass.ConstantPropagate)
		}
		return addAll(s, names...)
	}},
	when(pass.GroupByOptimizer, func(s *buildState) bool { return s.opt.GroupByOptimizationEnabled || s.opt.MapGroupBySort }),
	always(pass.ColumnPruner),
	when(pass.CountDistinctRewrite, func(s *buildState) bool {
		return s.opt.CountDistinctOptimization && (s.opt.InTest || s.tez())
	}),
	{name: pass.SkewJoin, apply: func(s *buildState) error {
		if !s.opt.SkewJoinCompileTime {
			return nil
		}
		if s.tez() {
			s.warn("skew join is not supported on tez, skipping the skew join optimization")
			return nil
		}
		return s.add(pass.SkewJoin, nil)
	}},
	always(pass.SamplePruner),
	always(pass.MapJoinProcessor),
	{name: pass.BucketMapJoin, apply: func(s *buildState) error {
		if !s.opt.BucketMapJoin || s.tez() {
			return nil
		}
		s.bucketMapJoinAdded = true
		return s.add(pass.BucketMapJoin, nil)
	}},
	{name: pass.SortedMergeBucketMapJoin, apply: func(s *buildState) error {
		if !s.opt.SortedMergeBucketMapJoin || s.tez() {
			return nil
		}
		if !s.bucketMapJoinAdded {
			if err := s.add(pass.BucketMapJoin, nil); err != nil {
				return err
			}
			s.bucketMapJoinAdded = true
		}
		return s.add(pass.SortedMergeBucketMapJoin, nil)
	}},
	when(pass.BucketingSortingReduceSink, func(s *buildState) bool { return s.opt.BucketingSorting }),
	always(pass.UnionProcessor),
	when(pass.JoinReorder, func(s *buildState) bool { return s.opt.JoinReorder }),
	{name: pass.FixedBucketPruning, apply: func(s *buildState) error {
		if !s.opt.BucketPruning || !s.opt.PredicatePushdownEnabled || !s.opt.IndexFilter {
			return nil
		}
		return s.add(pass.FixedBucketPruning, pass.Params{"compat": s.opt.BucketPruningCompat})
	}},
	always(pass.BucketVersionPopulator),
	when(pass.ReduceSinkDedup, func(s *buildState) bool { return s.opt.ReduceDeduplication && !s.tez() }),
	always(pass.NonBlockingOpDedup),
	when(pass.IdentityProjectRemover, func(s *buildState) bool {
		return s.opt.IdentityProjectRemover && !s.opt.CBOReturnPath
	}),
	when(pass.GlobalLimit, func(s *buildState) bool { return s.opt.GlobalLimit }),
	when(pass.CorrelationOptimizer, func(s *buildState) bool {
		return s.opt.Correlation && !s.opt.GroupBySkew && !s.opt.SkewJoinCompileTime && !s.tez()
	}),
	{name: pass.LimitPushdown, apply: func(s *buildState) error {
		f := s.opt.LimitPushdownMemoryFraction
		if f < 0 || f > 1 {
			return errorx.NewConfigurationError(fmt.Sprintf("limit_pushdown_memory_fraction must be within [0, 1], got %v", f))
		}
		if f == 0 {
			return nil
		}
		return s.add(pass.LimitPushdown, pass.Params{"memory_fraction": f})
	}},
	when(pass.OrderlessLimitPushdown, func(s *buildState) bool { return s.opt.OrderlessLimitPushdown }),
	when(pass.StatsOptimizer, func(s *buildState) bool { return s.opt.MetadataQueries }),
	{name: "annotation_block", apply: func(s *buildState) error {
		if !s.flags.ExplainSkipExecution || s.tez() {
			return nil
		}
		return addAll(s, pass.AnnotateWithStatistics, pass.AnnotateWithOpTraits)
	}},
	when(pass.SimpleFetchAggregation, func(s *buildState) bool { return s.opt.FetchTaskAggregation }),
	when(pass.TablePropertyEnrichment, func(s *buildState) bool { return s.opt.TablePropertiesFromSerde }),
	// must stay last: it decides on the final plan
	{name: pass.SimpleFetchOptimizer, apply: func(s *buildState) error {
		switch s.opt.FetchTaskConversion {
		case def.FetchNone:
			return nil
		case def.FetchMinimal, def.FetchMore:
			return s.add(pass.SimpleFetchOptimizer, pass.Params{"conversion": s.opt.FetchTaskConversion})
		default:
			return errorx.NewConfigurationError(fmt.Sprintf("fetch_task_conversion must be one of none, minimal, more, got %q", s.opt.FetchTaskConversion))
		}
	}},
}

func addAll(s *buildState, names ...string) error {
	for _, n := range names {
		if err := s.add(n, nil); err != nil {
			return err
		}
	}
	return nil
}

// Builder turns a configuration snapshot and the compilation flags into a
// pipeline. It holds no per call state and is safe for concurrent use.
type Builder struct {
	registry *pass.Registry
}

var defaultBuilder = NewBuilder(pass.DefaultRegistry())

// NewBuilder resolves pass names through r.
func NewBuilder(r *pass.Registry) *Builder {
	return &Builder{registry: r}
}

// Build uses the registry of the shipped passes.
func Build(opt def.OptimizerOption, flags plan.Flags) (*Pipeline, error) {
	return defaultBuilder.Build(opt, flags)
}

func (b *Builder) Build(opt def.OptimizerOption, flags plan.Flags) (*Pipeline, error) {
	if err := flags.Validate(); err != nil {
		return nil, err
	}
	s := &buildState{opt: opt, flags: flags, registry: b.registry}
	for _, r := range ruleList {
		if err := r.apply(s); err != nil {
			return nil, fmt.Errorf("build rule %s: %w", r.name, err)
		}
	}
	for _, w := range s.warnings {
		conf.Log.Warn(w)
	}
	p := &Pipeline{passes: s.passes, warnings: s.warnings}
	conf.Log.Debugf("optimizer pipeline for %s on %s: %v", flags.Statement, flags.Engine, p.Names())
	return p, nil
}
