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
	"fmt"
	"strings"

	"github.com/lf-edge/planopt/pkg/ast"
)

type OpID int64

type OpKind int

const (
	TableScan OpKind = iota
	Filter
	Project
	Join
	Aggregate
	Sort
	Limit
	Union
	Sink
)

var kindNames = [...]string{
	TableScan: "TableScan",
	Filter:    "Filter",
	Project:   "Project",
	Join:      "Join",
	Aggregate: "Aggregate",
	Sort:      "Sort",
	Limit:     "Limit",
	Union:     "Union",
	Sink:      "Sink",
}

func (k OpKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// arity returns the accepted number of inputs. max < 0 means unbounded.
func (k OpKind) arity() (min, max int) {
	switch k {
	case TableScan:
		return 0, 0
	case Join, Union:
		return 2, -1
	default:
		return 1, 1
	}
}

// Desc is the kind specific part of an operator. Descriptors are values:
// rewrites replace them instead of mutating.
type Desc interface {
	Kind() OpKind
	Info() string
}

type Operator struct {
	ID     OpID
	Kind   OpKind
	Inputs []OpID
	Desc   Desc
	// Props holds annotations written by passes, e.g. statistics or traits.
	Props map[string]any
}

func (o *Operator) Prop(key string) (any, bool) {
	v, ok := o.Props[key]
	return v, ok
}

func (o *Operator) clone() *Operator {
	c := &Operator{
		ID:     o.ID,
		Kind:   o.Kind,
		Inputs: append([]OpID(nil), o.Inputs...),
		Desc:   cloneDesc(o.Desc),
	}
	if o.Props != nil {
		c.Props = make(map[string]any, len(o.Props))
		for k, v := range o.Props {
			c.Props[k] = v
		}
	}
	return c
}

type ScanDesc struct {
	// Table is the catalog name of the scanned table.
	Table   string
	Alias   string
	Columns []string
	// PartitionFilter holds the conjuncts that select partitions.
	PartitionFilter ast.Expr
	Properties      map[string]string
}

type FilterDesc struct {
	Condition ast.Expr
}

type ProjectItem struct {
	Expr  ast.Expr
	Alias string
}

type ProjectDesc struct {
	Items []ProjectItem
}

type JoinType int

const (
	InnerJoin JoinType = iota
	LeftOuterJoin
	RightOuterJoin
	FullOuterJoin
	LeftSemiJoin
)

func (t JoinType) String() string {
	switch t {
	case InnerJoin:
		return "INNER"
	case LeftOuterJoin:
		return "LEFT OUTER"
	case RightOuterJoin:
		return "RIGHT OUTER"
	case FullOuterJoin:
		return "FULL OUTER"
	case LeftSemiJoin:
		return "LEFT SEMI"
	default:
		return "UNKNOWN"
	}
}

type JoinAlgorithm int

const (
	ShuffleJoin JoinAlgorithm = iota
	MapJoin
	BucketMapJoin
	SortMergeBucketMapJoin
)

func (a JoinAlgorithm) String() string {
	switch a {
	case MapJoin:
		return "MAPJOIN"
	case BucketMapJoin:
		return "BUCKET MAPJOIN"
	case SortMergeBucketMapJoin:
		return "SMB MAPJOIN"
	default:
		return "SHUFFLE"
	}
}

type JoinDesc struct {
	Type      JoinType
	Condition ast.Expr
	Algorithm JoinAlgorithm
	// MapJoinHint lists the input positions the query asked to hold in memory.
	MapJoinHint []int
}

type AggregateDesc struct {
	GroupKeys []ast.Expr
	Aggs      []ProjectItem
}

type SortKey struct {
	Expr ast.Expr
	Desc bool
}

type SortDesc struct {
	Keys []SortKey
}

type LimitDesc struct {
	Count  int64
	Offset int64
}

type UnionDesc struct {
	All bool
}

type SinkDesc struct {
	Target string
}

func (ScanDesc) Kind() OpKind      { return TableScan }
func (FilterDesc) Kind() OpKind    { return Filter }
func (ProjectDesc) Kind() OpKind   { return Project }
func (JoinDesc) Kind() OpKind      { return Join }
func (AggregateDesc) Kind() OpKind { return Aggregate }
func (SortDesc) Kind() OpKind      { return Sort }
func (LimitDesc) Kind() OpKind     { return Limit }
func (UnionDesc) Kind() OpKind     { return Union }
func (SinkDesc) Kind() OpKind      { return Sink }

func (d ScanDesc) Info() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s, Alias: %s, Columns: [%s]", d.Table, d.Alias, strings.Join(d.Columns, ", "))
	if d.PartitionFilter != nil {
		fmt.Fprintf(&b, ", PartitionFilter: %s", d.PartitionFilter)
	}
	return b.String()
}

func (d FilterDesc) Info() string {
	return "Condition: " + ast.ExprString(d.Condition)
}

func (it ProjectItem) String() string {
	if it.Alias == "" {
		return ast.ExprString(it.Expr)
	}
	return ast.ExprString(it.Expr) + " AS " + it.Alias
}

func itemsString(items []ProjectItem) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.String()
	}
	return strings.Join(parts, ", ")
}

func exprsString(exprs []ast.Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = ast.ExprString(e)
	}
	return strings.Join(parts, ", ")
}

func (d ProjectDesc) Info() string {
	return "Fields: [" + itemsString(d.Items) + "]"
}

func (d JoinDesc) Info() string {
	return fmt.Sprintf("Type: %s, Condition: %s, Algorithm: %s", d.Type, ast.ExprString(d.Condition), d.Algorithm)
}

func (d AggregateDesc) Info() string {
	return "Keys: [" + exprsString(d.GroupKeys) + "], Aggs: [" + itemsString(d.Aggs) + "]"
}

func (d SortDesc) Info() string {
	parts := make([]string, len(d.Keys))
	for i, k := range d.Keys {
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		parts[i] = ast.ExprString(k.Expr) + " " + dir
	}
	return "Keys: [" + strings.Join(parts, ", ") + "]"
}

func (d LimitDesc) Info() string {
	return fmt.Sprintf("Count: %d, Offset: %d", d.Count, d.Offset)
}

func (d UnionDesc) Info() string {
	return fmt.Sprintf("All: %v", d.All)
}

func (d SinkDesc) Info() string {
	return "Target: " + d.Target
}

// cloneDesc copies the slices and maps of a descriptor. Expressions are
// immutable and shared.
func cloneDesc(d Desc) Desc {
	switch t := d.(type) {
	case ScanDesc:
		t.Columns = append([]string(nil), t.Columns...)
		if t.Properties != nil {
			props := make(map[string]string, len(t.Properties))
			for k, v := range t.Properties {
				props[k] = v
			}
			t.Properties = props
		}
		return t
	case ProjectDesc:
		t.Items = append([]ProjectItem(nil), t.Items...)
		return t
	case JoinDesc:
		t.MapJoinHint = append([]int(nil), t.MapJoinHint...)
		return t
	case AggregateDesc:
		t.GroupKeys = append([]ast.Expr(nil), t.GroupKeys...)
		t.Aggs = append([]ProjectItem(nil), t.Aggs...)
		return t
	case SortDesc:
		t.Keys = append([]SortKey(nil), t.Keys...)
		return t
	default:
		return d
	}
}
