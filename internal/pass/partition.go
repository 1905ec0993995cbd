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
	"github.com/lf-edge/planopt/internal/plan"
	"github.com/lf-edge/planopt/pkg/ast"
)

// partitionPruner records on each scan of a partitioned table the
// conjuncts of the filter right above it that only read partition columns.
type partitionPruner struct{}

func (p *partitionPruner) Name() string {
	return PartitionPruner
}

func (p *partitionPruner) Params() Params {
	return nil
}

func (p *partitionPruner) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for _, id := range g.OfKind(plan.TableScan) {
			sd := g.Op(id).Desc.(plan.ScanDesc)
			tbl, err := pc.Table(sd.Table)
			if err != nil {
				return err
			}
			if !tbl.IsPartitioned() {
				continue
			}
			var part []ast.Expr
			for _, c := range g.Consumers(id) {
				op := g.Op(c)
				if op.Kind != plan.Filter {
					part = nil
					break
				}
				var mine []ast.Expr
				for _, e := range ast.Conjuncts(filterCondition(op)) {
					if onlyPartitionColumns(e, sd.Alias, tbl.IsPartitionKey) {
						mine = append(mine, e)
					}
				}
				// a scan shared by several filters may only skip the
				// partitions none of them reads
				if len(mine) == 0 {
					part = nil
					break
				}
				if part == nil {
					part = mine
				} else {
					part = []ast.Expr{ast.Or(ast.And(part...), ast.And(mine...))}
				}
			}
			pf := ast.And(part...)
			if ast.ExprString(pf) == ast.ExprString(sd.PartitionFilter) {
				continue
			}
			sd.PartitionFilter = pf
			if err := g.SetDesc(id, sd); err != nil {
				return err
			}
		}
		return nil
	})
}

// partitionConditionRemover replaces the conjuncts already enforced by the
// partition filter of the scan below with TRUE.
type partitionConditionRemover struct{}

func (p *partitionConditionRemover) Name() string {
	return PartitionConditionRemover
}

func (p *partitionConditionRemover) Params() Params {
	return nil
}

func (p *partitionConditionRemover) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for _, id := range g.OfKind(plan.Filter) {
			op := g.Op(id)
			scan := g.Op(op.Inputs[0])
			if scan.Kind != plan.TableScan {
				continue
			}
			enforced := ast.Conjuncts(scan.Desc.(plan.ScanDesc).PartitionFilter)
			if len(enforced) == 0 {
				continue
			}
			conjuncts := ast.Conjuncts(filterCondition(op))
			kept := make([]ast.Expr, 0, len(conjuncts))
			for _, c := range conjuncts {
				if !containsExpr(enforced, c) {
					kept = append(kept, c)
				}
			}
			if len(kept) == len(conjuncts) {
				continue
			}
			cond := ast.And(kept...)
			if cond == nil {
				cond = &ast.BooleanLiteral{Val: true}
			}
			if err := g.SetDesc(id, plan.FilterDesc{Condition: cond}); err != nil {
				return err
			}
		}
		return nil
	})
}
