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
	"strings"

	"github.com/lf-edge/planopt/internal/catalog"
	"github.com/lf-edge/planopt/internal/plan"
	"github.com/lf-edge/planopt/pkg/ast"
)

// groupByOptimizer marks aggregates whose group keys cover the bucketing
// (and sort) columns of the single table they read, so grouping can happen
// map side.
type groupByOptimizer struct{}

func (p *groupByOptimizer) Name() string {
	return GroupByOptimizer
}

func (p *groupByOptimizer) Params() Params {
	return nil
}

func (p *groupByOptimizer) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for _, id := range g.OfKind(plan.Aggregate) {
			op := g.Op(id)
			d := op.Desc.(plan.AggregateDesc)
			if len(d.GroupKeys) == 0 {
				continue
			}
			var (
				scan plan.OpID
				keys []string
				ok   = true
			)
			for _, k := range d.GroupKeys {
				ref, isRef := k.(*ast.FieldRef)
				if !isRef {
					ok = false
					break
				}
				sc, found := traceToScan(g, op.Inputs[0], ref)
				if !found || (scan != 0 && scan != sc.scan) {
					ok = false
					break
				}
				scan = sc.scan
				keys = append(keys, sc.name)
			}
			if !ok {
				continue
			}
			tbl, err := pc.Table(g.Op(scan).Desc.(plan.ScanDesc).Table)
			if err != nil {
				return err
			}
			if !tbl.IsBucketed() || !subset(tbl.BucketCols, keys) {
				continue
			}
			if err := g.SetProp(id, "groupby.bucketed", true); err != nil {
				return err
			}
			if len(keys) <= len(tbl.SortCols) && sameColumns(tbl.SortCols[:len(keys)], keys) {
				if err := g.SetProp(id, "groupby.sorted", true); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// mapJoinProcessor turns hinted shuffle joins into map joins.
type mapJoinProcessor struct{}

func (p *mapJoinProcessor) Name() string {
	return MapJoinProcessor
}

func (p *mapJoinProcessor) Params() Params {
	return nil
}

func (p *mapJoinProcessor) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for _, id := range g.OfKind(plan.Join) {
			op := g.Op(id)
			d := op.Desc.(plan.JoinDesc)
			if len(d.MapJoinHint) == 0 || d.Algorithm != plan.ShuffleJoin {
				continue
			}
			// the streamed side of an outer join cannot be held in memory
			valid := true
			for _, pos := range d.MapJoinHint {
				if pos < 0 || pos >= len(op.Inputs) ||
					(d.Type == plan.LeftOuterJoin && pos == 0) ||
					(d.Type == plan.RightOuterJoin && pos == 1) ||
					d.Type == plan.FullOuterJoin {
					valid = false
					break
				}
			}
			if !valid {
				continue
			}
			d.Algorithm = plan.MapJoin
			if err := g.SetDesc(id, d); err != nil {
				return err
			}
		}
		return nil
	})
}

// bucketMapJoin upgrades map joins of two tables bucketed on the join keys
// whose bucket counts divide one another.
type bucketMapJoin struct{}

func (p *bucketMapJoin) Name() string {
	return BucketMapJoin
}

func (p *bucketMapJoin) Params() Params {
	return nil
}

func (p *bucketMapJoin) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for _, id := range g.OfKind(plan.Join) {
			op := g.Op(id)
			d := op.Desc.(plan.JoinDesc)
			if d.Algorithm != plan.MapJoin {
				continue
			}
			sides, ok, err := joinSides(pc, g, op)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			l, r := sides[0].table.NumBuckets, sides[1].table.NumBuckets
			if !sameColumns(sides[0].table.BucketCols, sides[0].keys) ||
				!sameColumns(sides[1].table.BucketCols, sides[1].keys) ||
				(l%r != 0 && r%l != 0) {
				continue
			}
			d.Algorithm = plan.BucketMapJoin
			if err := g.SetDesc(id, d); err != nil {
				return err
			}
		}
		return nil
	})
}

// sortedMergeBucketMapJoin picks a sort merge join when both sides are
// bucketed and sorted on the join keys into the same number of buckets.
type sortedMergeBucketMapJoin struct{}

func (p *sortedMergeBucketMapJoin) Name() string {
	return SortedMergeBucketMapJoin
}

func (p *sortedMergeBucketMapJoin) Params() Params {
	return nil
}

func (p *sortedMergeBucketMapJoin) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for _, id := range g.OfKind(plan.Join) {
			op := g.Op(id)
			d := op.Desc.(plan.JoinDesc)
			if d.Type != plan.InnerJoin || d.Algorithm == plan.SortMergeBucketMapJoin {
				continue
			}
			sides, ok, err := joinSides(pc, g, op)
			if err != nil {
				return err
			}
			if !ok || sides[0].table.NumBuckets != sides[1].table.NumBuckets {
				continue
			}
			matched := true
			for _, s := range sides {
				if !sameColumns(s.table.BucketCols, s.keys) || !sameColumns(s.table.SortCols, s.keys) {
					matched = false
					break
				}
			}
			if !matched {
				continue
			}
			d.Algorithm = plan.SortMergeBucketMapJoin
			if err := g.SetDesc(id, d); err != nil {
				return err
			}
		}
		return nil
	})
}

// bucketVersionPopulator writes the bucketing version on scans and joins.
// A join over inputs of different versions gets -1.
type bucketVersionPopulator struct{}

func (p *bucketVersionPopulator) Name() string {
	return BucketVersionPopulator
}

func (p *bucketVersionPopulator) Params() Params {
	return nil
}

func (p *bucketVersionPopulator) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		order, err := g.TopoOrder()
		if err != nil {
			return err
		}
		versions := make(map[plan.OpID]int, len(order))
		for _, id := range order {
			op := g.Op(id)
			switch op.Kind {
			case plan.TableScan:
				tbl, err := pc.Table(op.Desc.(plan.ScanDesc).Table)
				if err != nil {
					return err
				}
				v := tbl.BucketingVersion
				if v == 0 {
					v = 1
				}
				versions[id] = v
				if err := g.SetProp(id, "bucketing_version", v); err != nil {
					return err
				}
			case plan.Join, plan.Union:
				v := versions[op.Inputs[0]]
				for _, in := range op.Inputs[1:] {
					if versions[in] != v {
						v = -1
					}
				}
				versions[id] = v
				if op.Kind == plan.Join {
					if err := g.SetProp(id, "bucketing_version", v); err != nil {
						return err
					}
				}
			default:
				versions[id] = versions[op.Inputs[0]]
			}
		}
		return nil
	})
}

// joinSide is one input of a two way equi-join traced to its table.
type joinSide struct {
	table *catalog.TableDescriptor
	keys  []string
}

// joinSides resolves both inputs of an equi-join to bucketed tables. It
// reports false when a key cannot be traced to a single scan per input.
func joinSides(pc *plan.Context, g *plan.Graph, op *plan.Operator) ([]joinSide, bool, error) {
	if len(op.Inputs) != 2 {
		return nil, false, nil
	}
	pairs := equiKeys(g, op)
	if len(pairs) == 0 {
		return nil, false, nil
	}
	sides := make([]joinSide, 2)
	var scans [2]plan.OpID
	for _, kp := range pairs {
		for _, s := range []struct {
			input int
			ref   *ast.FieldRef
		}{{kp.leftInput, kp.left}, {kp.rightInput, kp.right}} {
			sc, ok := traceToScan(g, op.Inputs[s.input], s.ref)
			if !ok || (scans[s.input] != 0 && scans[s.input] != sc.scan) {
				return nil, false, nil
			}
			scans[s.input] = sc.scan
			sides[s.input].keys = append(sides[s.input].keys, sc.name)
		}
	}
	for i := range sides {
		tbl, err := pc.Table(g.Op(scans[i]).Desc.(plan.ScanDesc).Table)
		if err != nil {
			return nil, false, err
		}
		if !tbl.IsBucketed() {
			return nil, false, nil
		}
		sides[i].table = tbl
	}
	return sides, true, nil
}

// subset reports whether every column of a is in b, ignoring case.
func subset(a, b []string) bool {
	for _, x := range a {
		found := false
		for _, y := range b {
			if strings.EqualFold(x, y) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sameColumns(a, b []string) bool {
	return len(a) > 0 && subset(a, b) && subset(b, a)
}
