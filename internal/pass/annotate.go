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
	"sort"
	"strings"

	"github.com/lf-edge/planopt/internal/plan"
	"github.com/lf-edge/planopt/pkg/ast"
)

// LineageAnnotation is the context annotation holding the column lineage,
// output column name to sorted source columns (table.column).
const LineageAnnotation = "lineage"

// opConverterPostProc names unaliased scans after their table.
type opConverterPostProc struct{}

func (p *opConverterPostProc) Name() string {
	return OpConverterPostProc
}

func (p *opConverterPostProc) Params() Params {
	return nil
}

func (p *opConverterPostProc) Apply(pc *plan.Context) (*plan.Context, error) {
	missing := false
	for _, id := range pc.Graph().OfKind(plan.TableScan) {
		if pc.Graph().Op(id).Desc.(plan.ScanDesc).Alias == "" {
			missing = true
			break
		}
	}
	if !missing {
		return pc, nil
	}
	return rewrite(pc, func(g *plan.Graph) error {
		for _, id := range g.OfKind(plan.TableScan) {
			sd := g.Op(id).Desc.(plan.ScanDesc)
			if sd.Alias != "" {
				continue
			}
			name := sd.Table
			if i := strings.LastIndexByte(name, '.'); i >= 0 {
				name = name[i+1:]
			}
			sd.Alias = strings.ToLower(name)
			if err := g.SetDesc(id, sd); err != nil {
				return err
			}
		}
		return nil
	})
}

// lineageGenerator records which table columns every output column of the
// plan derives from.
type lineageGenerator struct{}

func (p *lineageGenerator) Name() string {
	return LineageGenerator
}

func (p *lineageGenerator) Params() Params {
	return nil
}

func (p *lineageGenerator) Apply(pc *plan.Context) (*plan.Context, error) {
	g := pc.Graph()
	lineage := make(map[string][]string)
	for _, s := range g.Sinks() {
		in := g.Op(s).Inputs[0]
		for _, c := range g.OutputColumns(in) {
			set := make(map[string]struct{})
			sources(g, in, c, set, 0)
			lineage[c.String()] = mergeSorted(lineage[c.String()], set)
		}
	}
	return pc.WithAnnotation(LineageAnnotation, lineage), nil
}

func sources(g *plan.Graph, id plan.OpID, ref *ast.FieldRef, into map[string]struct{}, depth int) {
	op := g.Op(id)
	if op == nil || depth > g.Len() {
		return
	}
	switch d := op.Desc.(type) {
	case plan.ScanDesc:
		if ref.Table == "" || ref.Table == d.Alias {
			into[d.Table+"."+ref.Name] = struct{}{}
		}
	case plan.ProjectDesc:
		if e, ok := projection(d.Items)[ref.String()]; ok {
			for _, r := range ast.FieldRefs(e) {
				sources(g, op.Inputs[0], r, into, depth+1)
			}
		}
	case plan.AggregateDesc:
		var e ast.Expr
		for _, k := range d.GroupKeys {
			if plan.ItemColumn(plan.ProjectItem{Expr: k}).String() == ref.String() {
				e = k
			}
		}
		for _, a := range d.Aggs {
			if plan.ItemColumn(a).String() == ref.String() {
				e = a.Expr
			}
		}
		for _, r := range ast.FieldRefs(e) {
			sources(g, op.Inputs[0], r, into, depth+1)
		}
	case plan.JoinDesc:
		for _, in := range op.Inputs {
			if newColumnSet(g.OutputColumns(in)).has(ref) {
				sources(g, in, ref, into, depth+1)
				return
			}
		}
	case plan.UnionDesc:
		pos := -1
		for i, c := range g.OutputColumns(id) {
			if c.String() == ref.String() {
				pos = i
				break
			}
		}
		if pos < 0 {
			return
		}
		for _, in := range op.Inputs {
			if cols := g.OutputColumns(in); pos < len(cols) {
				sources(g, in, cols[pos], into, depth+1)
			}
		}
	default:
		for _, in := range op.Inputs {
			sources(g, in, ref, into, depth+1)
		}
	}
}

func mergeSorted(list []string, set map[string]struct{}) []string {
	for _, s := range list {
		set[s] = struct{}{}
	}
	result := make([]string, 0, len(set))
	for s := range set {
		result = append(result, s)
	}
	sort.Strings(result)
	return result
}

// annotateWithStatistics writes the estimated row count of every operator
// under "stats.rows", starting from the catalog row counts of the scans.
type annotateWithStatistics struct{}

func (p *annotateWithStatistics) Name() string {
	return AnnotateWithStatistics
}

func (p *annotateWithStatistics) Params() Params {
	return nil
}

func (p *annotateWithStatistics) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		order, err := g.TopoOrder()
		if err != nil {
			return err
		}
		rows := make(map[plan.OpID]int64, len(order))
		for _, id := range order {
			op := g.Op(id)
			var n int64
			switch d := op.Desc.(type) {
			case plan.ScanDesc:
				tbl, err := pc.Table(d.Table)
				if err != nil {
					return err
				}
				n = tbl.NumRows
			case plan.FilterDesc, plan.AggregateDesc:
				n = halve(rows[op.Inputs[0]])
			case plan.LimitDesc:
				n = rows[op.Inputs[0]]
				if d.Count < n {
					n = d.Count
				}
			case plan.JoinDesc:
				for _, in := range op.Inputs {
					if rows[in] > n {
						n = rows[in]
					}
				}
			case plan.UnionDesc:
				for _, in := range op.Inputs {
					n += rows[in]
				}
			default:
				n = rows[op.Inputs[0]]
			}
			rows[id] = n
			if err := g.SetProp(id, "stats.rows", n); err != nil {
				return err
			}
		}
		return nil
	})
}

func halve(n int64) int64 {
	if n <= 1 {
		return n
	}
	return n / 2
}

// annotateWithOpTraits writes the bucketing and sort traits of scans and
// carries them through operators that keep the row distribution.
type annotateWithOpTraits struct{}

func (p *annotateWithOpTraits) Name() string {
	return AnnotateWithOpTraits
}

func (p *annotateWithOpTraits) Params() Params {
	return nil
}

type opTraits struct {
	bucketCols []string
	numBuckets int
	sortCols   []string
}

func (p *annotateWithOpTraits) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		order, err := g.TopoOrder()
		if err != nil {
			return err
		}
		traits := make(map[plan.OpID]*opTraits)
		for _, id := range order {
			op := g.Op(id)
			var t *opTraits
			switch d := op.Desc.(type) {
			case plan.ScanDesc:
				tbl, err := pc.Table(d.Table)
				if err != nil {
					return err
				}
				if tbl.IsBucketed() {
					t = &opTraits{bucketCols: tbl.BucketCols, numBuckets: tbl.NumBuckets, sortCols: tbl.SortCols}
				}
			case plan.FilterDesc, plan.LimitDesc:
				t = traits[op.Inputs[0]]
			}
			if t == nil {
				continue
			}
			traits[id] = t
			for k, v := range map[string]any{
				"traits.bucket_cols": append([]string(nil), t.bucketCols...),
				"traits.num_buckets": t.numBuckets,
				"traits.sort_cols":   append([]string(nil), t.sortCols...),
			} {
				if err := g.SetProp(id, k, v); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// tablePropertyEnrichment copies the table properties and serde of the
// catalog onto the scans.
type tablePropertyEnrichment struct{}

func (p *tablePropertyEnrichment) Name() string {
	return TablePropertyEnrichment
}

func (p *tablePropertyEnrichment) Params() Params {
	return nil
}

func (p *tablePropertyEnrichment) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for _, id := range g.OfKind(plan.TableScan) {
			sd := g.Op(id).Desc.(plan.ScanDesc)
			tbl, err := pc.Table(sd.Table)
			if err != nil {
				return err
			}
			props := make(map[string]string, len(sd.Properties)+len(tbl.Properties)+1)
			for k, v := range sd.Properties {
				props[k] = v
			}
			for k, v := range tbl.Properties {
				props[k] = v
			}
			if tbl.SerdeLib != "" {
				props["serde"] = tbl.SerdeLib
			}
			if len(props) == 0 {
				continue
			}
			sd.Properties = props
			if err := g.SetDesc(id, sd); err != nil {
				return err
			}
		}
		return nil
	})
}
