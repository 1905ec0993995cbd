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

package def

import (
	"github.com/mitchellh/mapstructure"
)

const (
	FetchNone    = "none"
	FetchMinimal = "minimal"
	FetchMore    = "more"
)

// OptimizerOption is the immutable configuration snapshot read by the
// pipeline builder. A pipeline is always built from one snapshot.
type OptimizerOption struct {
	PredicatePushdownEnabled        bool `json:"predicate_pushdown_enabled" yaml:"predicate_pushdown_enabled" mapstructure:"predicate_pushdown_enabled"`
	ConstantPropagationEnabled      bool `json:"constant_propagation_enabled" yaml:"constant_propagation_enabled" mapstructure:"constant_propagation_enabled"`
	PointLookupEnabled              bool `json:"point_lookup_enabled" yaml:"point_lookup_enabled" mapstructure:"point_lookup_enabled"`
	PointLookupMinOrTerms           int  `json:"point_lookup_min_or_terms" yaml:"point_lookup_min_or_terms" mapstructure:"point_lookup_min_or_terms"`
	PartitionColumnSeparatorEnabled bool `json:"partition_column_separator_enabled" yaml:"partition_column_separator_enabled" mapstructure:"partition_column_separator_enabled"`
	ComputeLineage                  bool `json:"compute_lineage" yaml:"compute_lineage" mapstructure:"compute_lineage"`
	ListBucketingEnabled            bool `json:"list_bucketing_enabled" yaml:"list_bucketing_enabled" mapstructure:"list_bucketing_enabled"`
	GroupByOptimizationEnabled      bool `json:"groupby_optimization_enabled" yaml:"groupby_optimization_enabled" mapstructure:"groupby_optimization_enabled"`
	MapGroupBySort                  bool `json:"map_groupby_sort" yaml:"map_groupby_sort" mapstructure:"map_groupby_sort"`
	CountDistinctOptimization       bool `json:"count_distinct_optimization" yaml:"count_distinct_optimization" mapstructure:"count_distinct_optimization"`
	InTest                          bool `json:"in_test" yaml:"in_test" mapstructure:"in_test"`
	SkewJoinCompileTime             bool `json:"skewjoin_compiletime" yaml:"skewjoin_compiletime" mapstructure:"skewjoin_compiletime"`
	BucketMapJoin                   bool `json:"bucket_mapjoin" yaml:"bucket_mapjoin" mapstructure:"bucket_mapjoin"`
	SortedMergeBucketMapJoin        bool `json:"sorted_merge_bucket_mapjoin" yaml:"sorted_merge_bucket_mapjoin" mapstructure:"sorted_merge_bucket_mapjoin"`
	BucketingSorting                bool `json:"bucketing_sorting" yaml:"bucketing_sorting" mapstructure:"bucketing_sorting"`
	JoinReorder                     bool `json:"join_reorder" yaml:"join_reorder" mapstructure:"join_reorder"`
	BucketPruning                   bool `json:"bucket_pruning" yaml:"bucket_pruning" mapstructure:"bucket_pruning"`
	BucketPruningCompat             bool `json:"bucket_pruning_compat" yaml:"bucket_pruning_compat" mapstructure:"bucket_pruning_compat"`
	IndexFilter                     bool `json:"index_filter" yaml:"index_filter" mapstructure:"index_filter"`
	ReduceDeduplication             bool `json:"reduce_deduplication" yaml:"reduce_deduplication" mapstructure:"reduce_deduplication"`
	IdentityProjectRemover          bool `json:"identity_project_remover" yaml:"identity_project_remover" mapstructure:"identity_project_remover"`
	CBOReturnPath                   bool `json:"cbo_return_path" yaml:"cbo_return_path" mapstructure:"cbo_return_path"`
	GlobalLimit                     bool `json:"global_limit" yaml:"global_limit" mapstructure:"global_limit"`
	Correlation                     bool `json:"correlation" yaml:"correlation" mapstructure:"correlation"`
	GroupBySkew                     bool `json:"groupby_skew" yaml:"groupby_skew" mapstructure:"groupby_skew"`
	// LimitPushdownMemoryFraction is the share of memory the top-N hash may use. 0 disables the pass.
	LimitPushdownMemoryFraction float64 `json:"limit_pushdown_memory_fraction" yaml:"limit_pushdown_memory_fraction" mapstructure:"limit_pushdown_memory_fraction"`
	OrderlessLimitPushdown      bool    `json:"orderless_limit_pushdown" yaml:"orderless_limit_pushdown" mapstructure:"orderless_limit_pushdown"`
	MetadataQueries             bool    `json:"metadata_queries" yaml:"metadata_queries" mapstructure:"metadata_queries"`
	// FetchTaskConversion is one of none, minimal or more.
	FetchTaskConversion      string `json:"fetch_task_conversion" yaml:"fetch_task_conversion" mapstructure:"fetch_task_conversion"`
	FetchTaskAggregation     bool   `json:"fetch_task_aggregation" yaml:"fetch_task_aggregation" mapstructure:"fetch_task_aggregation"`
	TablePropertiesFromSerde bool   `json:"table_properties_from_serde" yaml:"table_properties_from_serde" mapstructure:"table_properties_from_serde"`
}

func DefaultOptimizerOption() OptimizerOption {
	return OptimizerOption{
		PredicatePushdownEnabled:    true,
		ConstantPropagationEnabled:  true,
		PointLookupMinOrTerms:       2,
		GroupByOptimizationEnabled:  true,
		MapGroupBySort:              true,
		BucketPruningCompat:         true,
		BucketingSorting:            true,
		JoinReorder:                 true,
		ReduceDeduplication:         true,
		IdentityProjectRemover:      true,
		LimitPushdownMemoryFraction: 0.1,
		OrderlessLimitPushdown:      true,
		MetadataQueries:             true,
		FetchTaskConversion:         FetchMore,
	}
}

// ToMap renders the snapshot as option name to value.
func (o OptimizerOption) ToMap() (map[string]any, error) {
	m := make(map[string]any)
	if err := mapstructure.Decode(o, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// FromMap layers the given options over the receiver. Values are weakly typed
// so that "true" or 1 from a JSON body or env var are accepted.
func (o OptimizerOption) FromMap(m map[string]any) (OptimizerOption, error) {
	result := o
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &result,
	})
	if err != nil {
		return o, err
	}
	if err := dec.Decode(m); err != nil {
		return o, err
	}
	return result, nil
}
