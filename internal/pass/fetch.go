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

	"github.com/lf-edge/planopt/internal/pkg/def"
	"github.com/lf-edge/planopt/internal/plan"
	"github.com/lf-edge/planopt/pkg/ast"
	"github.com/lf-edge/planopt/pkg/errorx"
)

// simpleFetchOptimizer decides whether a select can be answered by reading
// the table directly. With "minimal" only column selection, partition
// filters and a limit qualify. With "more" any chain of filters,
// projections and limits over one scan does.
type simpleFetchOptimizer struct {
	conversion string
}

func newSimpleFetchOptimizer(params Params) (Pass, error) {
	c, err := stringParam(SimpleFetchOptimizer, params, "conversion")
	if err != nil {
		return nil, err
	}
	switch c {
	case def.FetchNone, def.FetchMinimal, def.FetchMore:
	default:
		return nil, errorx.NewConfigurationError(fmt.Sprintf("pass %s parameter conversion must be one of none, minimal, more, got %q", SimpleFetchOptimizer, c))
	}
	return &simpleFetchOptimizer{conversion: c}, nil
}

func (p *simpleFetchOptimizer) Name() string {
	return SimpleFetchOptimizer
}

func (p *simpleFetchOptimizer) Params() Params {
	return Params{"conversion": p.conversion}
}

func (p *simpleFetchOptimizer) Apply(pc *plan.Context) (*plan.Context, error) {
	f := pc.Flags()
	if p.conversion == def.FetchNone || f.Statement != plan.Select || f.FetchConversion {
		return pc, nil
	}
	g := pc.Graph()
	sinks := g.Sinks()
	if len(sinks) != 1 {
		return pc, nil
	}
	ok, err := p.qualifies(pc, g, g.Op(sinks[0]).Inputs[0])
	if err != nil {
		return nil, err
	}
	if !ok {
		return pc, nil
	}
	f.FetchConversion = true
	return pc.WithFlags(f), nil
}

func (p *simpleFetchOptimizer) qualifies(pc *plan.Context, g *plan.Graph, id plan.OpID) (bool, error) {
	op := g.Op(id)
	stage := 0
	for op != nil {
		switch d := op.Desc.(type) {
		case plan.ScanDesc:
			return true, nil
		case plan.LimitDesc:
			if p.conversion == def.FetchMinimal && stage > 0 {
				return false, nil
			}
		case plan.ProjectDesc:
			if p.conversion == def.FetchMinimal {
				if stage > 1 {
					return false, nil
				}
				stage = 1
				for _, it := range d.Items {
					if _, ok := it.Expr.(*ast.FieldRef); !ok {
						return false, nil
					}
				}
			}
		case plan.FilterDesc:
			if p.conversion == def.FetchMinimal {
				if stage > 1 {
					return false, nil
				}
				stage = 2
				scan := g.Op(op.Inputs[0])
				if scan.Kind != plan.TableScan {
					return false, nil
				}
				sd := scan.Desc.(plan.ScanDesc)
				tbl, err := pc.Table(sd.Table)
				if err != nil {
					return false, err
				}
				if !ast.IsTrue(d.Condition) && !onlyPartitionColumns(d.Condition, sd.Alias, tbl.IsPartitionKey) {
					return false, nil
				}
			}
		default:
			return false, nil
		}
		if _, ok := soleConsumer(g, op.ID); !ok {
			return false, nil
		}
		op = g.Op(op.Inputs[0])
	}
	return false, nil
}

// fixedBucketPruning keeps its slot for the bucket pruning implementation
// of the execution layer. compat selects the legacy bucket hash.
func newFixedBucketPruning(params Params) (Pass, error) {
	compat, err := boolParam(FixedBucketPruning, params, "compat")
	if err != nil {
		return nil, err
	}
	return &identity{name: FixedBucketPruning, params: Params{"compat": compat}}, nil
}
