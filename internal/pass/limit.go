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

	"github.com/lf-edge/planopt/internal/plan"
	"github.com/lf-edge/planopt/pkg/errorx"
)

// globalLimit lets a scan stop early when only projections separate it
// from a limit.
type globalLimit struct{}

func (p *globalLimit) Name() string {
	return GlobalLimit
}

func (p *globalLimit) Params() Params {
	return nil
}

func (p *globalLimit) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for _, id := range g.OfKind(plan.Limit) {
			op := g.Op(id)
			ld := op.Desc.(plan.LimitDesc)
			cur := g.Op(op.Inputs[0])
			for cur.Kind == plan.Project {
				if _, ok := soleConsumer(g, cur.ID); !ok {
					break
				}
				cur = g.Op(cur.Inputs[0])
			}
			if cur.Kind != plan.TableScan {
				continue
			}
			if _, ok := soleConsumer(g, cur.ID); !ok {
				continue
			}
			if err := g.SetProp(cur.ID, "global_limit", ld.Count+ld.Offset); err != nil {
				return err
			}
		}
		return nil
	})
}

// limitPushdown turns a sort under a limit into a bounded top-N sort that
// may use the given fraction of memory.
type limitPushdown struct {
	memoryFraction float64
}

func newLimitPushdown(params Params) (Pass, error) {
	f, err := floatParam(LimitPushdown, params, "memory_fraction")
	if err != nil {
		return nil, err
	}
	if f <= 0 || f > 1 {
		return nil, errorx.NewConfigurationError(fmt.Sprintf("pass %s parameter memory_fraction must be in (0, 1], got %v", LimitPushdown, f))
	}
	return &limitPushdown{memoryFraction: f}, nil
}

func (p *limitPushdown) Name() string {
	return LimitPushdown
}

func (p *limitPushdown) Params() Params {
	return Params{"memory_fraction": p.memoryFraction}
}

func (p *limitPushdown) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for _, id := range g.OfKind(plan.Limit) {
			op := g.Op(id)
			ld := op.Desc.(plan.LimitDesc)
			cur := g.Op(op.Inputs[0])
			if cur.Kind == plan.Project {
				if _, ok := soleConsumer(g, cur.ID); !ok {
					continue
				}
				cur = g.Op(cur.Inputs[0])
			}
			if cur.Kind != plan.Sort {
				continue
			}
			if _, ok := soleConsumer(g, cur.ID); !ok {
				continue
			}
			if err := g.SetProp(cur.ID, "topn", ld.Count+ld.Offset); err != nil {
				return err
			}
			if err := g.SetProp(cur.ID, "topn_memory_fraction", p.memoryFraction); err != nil {
				return err
			}
		}
		return nil
	})
}

// orderlessLimitPushdown copies a limit over a union onto every union
// input. The original limit stays on top.
type orderlessLimitPushdown struct{}

func (p *orderlessLimitPushdown) Name() string {
	return OrderlessLimitPushdown
}

func (p *orderlessLimitPushdown) Params() Params {
	return nil
}

func (p *orderlessLimitPushdown) Apply(pc *plan.Context) (*plan.Context, error) {
	return rewrite(pc, func(g *plan.Graph) error {
		for _, id := range g.OfKind(plan.Limit) {
			op := g.Op(id)
			union := g.Op(op.Inputs[0])
			if union.Kind != plan.Union || !union.Desc.(plan.UnionDesc).All {
				continue
			}
			if c, ok := soleConsumer(g, union.ID); !ok || c != id {
				continue
			}
			ld := op.Desc.(plan.LimitDesc)
			n := ld.Count + ld.Offset
			for i, in := range union.Inputs {
				if lim, ok := g.Op(in).Desc.(plan.LimitDesc); ok && lim.Offset == 0 && lim.Count <= n {
					continue
				}
				if _, err := g.InsertOnInput(union.ID, i, plan.LimitDesc{Count: n}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
