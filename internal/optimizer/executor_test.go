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
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/lf-edge/planopt/internal/pass"
	"github.com/lf-edge/planopt/internal/pkg/def"
	"github.com/lf-edge/planopt/internal/plan"
	"github.com/lf-edge/planopt/internal/plan/plantest"
	"github.com/lf-edge/planopt/pkg/ast"
	"github.com/lf-edge/planopt/pkg/errorx"
)

type stubPass struct {
	name  string
	apply func(pc *plan.Context) (*plan.Context, error)
	calls int
}

func (s *stubPass) Name() string {
	return s.name
}

func (s *stubPass) Params() pass.Params {
	return nil
}

func (s *stubPass) Apply(pc *plan.Context) (*plan.Context, error) {
	s.calls++
	if s.apply == nil {
		return pc, nil
	}
	return s.apply(pc)
}

type eventRecorder struct {
	events []Event
}

func (r *eventRecorder) Record(ev Event) error {
	r.events = append(r.events, ev)
	return nil
}

func selectContext(t *testing.T) *plan.Context {
	t.Helper()
	pc, err := plan.New(plantest.Select().Graph, plan.DefaultFlags(), plantest.Catalog())
	require.NoError(t, err)
	return pc
}

func TestOptimizeSelect(t *testing.T) {
	pc := selectContext(t)
	id := pc.ID()
	rec := &eventRecorder{}
	res, err := New(nil, NewExecutor(WithSink(rec))).Optimize(def.DefaultOptimizerOption(), pc)
	require.NoError(t, err)
	assert.True(t, pc.Consumed())

	names := make([]string, len(res.Timings))
	for i, tm := range res.Timings {
		names[i] = tm.Pass
	}
	assert.Equal(t, defaultNames, names)
	require.Len(t, rec.events, len(defaultNames))
	for i, ev := range rec.events {
		assert.Equal(t, id, ev.CompilationID)
		assert.Equal(t, i, ev.Index)
		assert.NoError(t, ev.Err)
	}

	out := res.Context
	assert.Equal(t, id, out.ID())
	assert.True(t, out.Flags().FetchConversion)
	g := out.Graph()
	sinks := g.Sinks()
	require.Len(t, sinks, 1)
	project := g.Op(g.Op(sinks[0]).Inputs[0])
	require.Equal(t, plan.Project, project.Kind)
	filter := g.Op(project.Inputs[0])
	require.Equal(t, plan.Filter, filter.Kind)
	assert.Equal(t, "src.key > 10", filter.Desc.(plan.FilterDesc).Condition.String())
	assert.Equal(t, plan.TableScan, g.Op(filter.Inputs[0]).Kind)
}

func TestOptimizeJoin(t *testing.T) {
	pc, err := plan.New(plantest.Join().Graph, plan.DefaultFlags(), plantest.Catalog())
	require.NoError(t, err)
	res, err := New(nil, nil).Optimize(def.DefaultOptimizerOption(), pc)
	require.NoError(t, err)
	assert.False(t, res.Context.Flags().FetchConversion)
	assert.Len(t, res.Timings, len(defaultNames))
	require.NoError(t, res.Context.Graph().Validate())
	joins := res.Context.Graph().OfKind(plan.Join)
	require.Len(t, joins, 1)
	for _, in := range res.Context.Graph().Op(joins[0]).Inputs {
		assert.Equal(t, plan.Filter, res.Context.Graph().Op(in).Kind)
	}
}

func TestOptimizeSharedScanUnion(t *testing.T) {
	g := plan.NewGraph()
	scan := g.Add(plan.ScanDesc{Table: "src", Alias: "src", Columns: []string{"key", "value"}})
	always := g.Add(plan.FilterDesc{Condition: plantest.Bin(ast.EQ, plantest.Int(1), plantest.Int(1))}, scan)
	u := g.Add(plan.UnionDesc{All: true}, scan, always)
	g.Add(plan.SinkDesc{Target: "stdout"}, u)
	pc, err := plan.New(g, plan.DefaultFlags(), plantest.Catalog())
	require.NoError(t, err)

	res, err := New(nil, nil).Optimize(def.DefaultOptimizerOption(), pc)
	require.NoError(t, err)
	out := res.Context.Graph()
	require.NoError(t, out.Validate())
	assert.Nil(t, out.Op(always))
	// both branches of the UNION ALL still read the scan
	assert.Equal(t, []plan.OpID{scan, scan}, out.Op(u).Inputs)
	assert.Len(t, res.Timings, len(defaultNames))
}

func TestOptimizeConcurrent(t *testing.T) {
	cat := plantest.Catalog()
	report := NewReport()
	o := New(nil, NewExecutor(WithSink(report)))
	opt := def.DefaultOptimizerOption()

	ref, err := plan.New(plantest.Join().Graph, plan.DefaultFlags(), cat)
	require.NoError(t, err)
	want, err := New(nil, nil).Optimize(opt, ref)
	require.NoError(t, err)
	expected := plan.Explain(want.Context.Graph())

	const workers = 16
	results := make([]string, workers)
	var eg errgroup.Group
	for i := 0; i < workers; i++ {
		i := i
		eg.Go(func() error {
			pc, err := plan.New(plantest.Join().Graph, plan.DefaultFlags(), cat)
			if err != nil {
				return err
			}
			res, err := o.Optimize(opt, pc)
			if err != nil {
				return err
			}
			results[i] = plan.Explain(res.Context.Graph())
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	for _, r := range results {
		assert.Equal(t, expected, r)
	}
	summaries, err := report.Summaries()
	require.NoError(t, err)
	require.Len(t, summaries, len(defaultNames))
	for i, s := range summaries {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, defaultNames[i], s.Pass)
		assert.Equal(t, workers, s.Runs)
	}
}

func TestOptimizeErrors(t *testing.T) {
	o := New(nil, nil)
	_, err := o.Optimize(def.DefaultOptimizerOption(), nil)
	assert.True(t, errorx.IsMalformedPlan(err))

	pc := selectContext(t)
	opt := def.DefaultOptimizerOption()
	opt.FetchTaskConversion = "all"
	_, err = o.Optimize(opt, pc)
	assert.True(t, errorx.IsConfiguration(err))
	assert.False(t, pc.Consumed())

	// a table missing from the catalog fails the partition pruner
	g := plan.NewGraph()
	scan := g.Add(plan.ScanDesc{Table: "nope", Alias: "nope", Columns: []string{"a"}})
	g.Add(plan.SinkDesc{Target: "stdout"}, scan)
	pc, err = plan.New(g, plan.DefaultFlags(), plantest.Catalog())
	require.NoError(t, err)
	_, err = o.Optimize(def.DefaultOptimizerOption(), pc)
	require.Error(t, err)
	assert.True(t, errorx.IsCatalogLookup(err))
	var pe *errorx.PassError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, pass.PartitionPruner, pe.Pass)
	assert.Equal(t, 7, pe.Index)
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	first := &stubPass{name: "first"}
	failing := &stubPass{name: "failing", apply: func(pc *plan.Context) (*plan.Context, error) {
		return nil, errorx.NewSemanticViolationError("cannot reorder")
	}}
	last := &stubPass{name: "last"}
	rec := &eventRecorder{}
	res, err := NewExecutor(WithSink(rec)).Run(NewPipeline(first, failing, last), selectContext(t))
	require.Error(t, err)
	assert.Nil(t, res)
	var pe *errorx.PassError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "failing", pe.Pass)
	assert.Equal(t, 1, pe.Index)
	assert.True(t, errorx.IsSemanticViolation(err))
	assert.Equal(t, errorx.SemanticViolationErr, pe.Code())
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, last.calls)
	require.Len(t, rec.events, 2)
	assert.NoError(t, rec.events[0].Err)
	assert.Error(t, rec.events[1].Err)
}

func TestRunPassMisbehaviour(t *testing.T) {
	badGraph := func() *plan.Graph {
		g := plan.NewGraph()
		g.Add(plan.ScanDesc{Table: "src", Alias: "src", Columns: []string{"key"}})
		g.Add(plan.FilterDesc{Condition: &ast.BooleanLiteral{Val: true}})
		return g
	}
	tests := []struct {
		name  string
		apply func(pc *plan.Context) (*plan.Context, error)
		msg   string
	}{
		{
			name:  "panic",
			apply: func(pc *plan.Context) (*plan.Context, error) { panic("index out of range") },
			msg:   "pass panicked: index out of range",
		},
		{
			name:  "nil successor",
			apply: func(pc *plan.Context) (*plan.Context, error) { return nil, nil },
			msg:   "pass returned no plan context",
		},
		{
			name: "consumed successor",
			apply: func(pc *plan.Context) (*plan.Context, error) {
				pc.WithFlags(pc.Flags())
				return pc, nil
			},
			msg: "pass returned a consumed plan context",
		},
		{
			name: "reuse of consumed context",
			apply: func(pc *plan.Context) (*plan.Context, error) {
				pc.WithFlags(pc.Flags())
				return pc.WithAnnotation("k", 1), nil
			},
			msg: "already consumed",
		},
		{
			name: "malformed graph",
			apply: func(pc *plan.Context) (*plan.Context, error) {
				return pc.ReplaceGraph(badGraph()), nil
			},
			msg: "Filter operator 2 has 0 inputs",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(&stubPass{name: "noop"}, &stubPass{name: tt.name, apply: tt.apply})
			_, err := NewExecutor().Run(p, selectContext(t))
			require.Error(t, err)
			assert.True(t, errorx.IsMalformedPlan(err), err.Error())
			assert.Contains(t, err.Error(), tt.msg)
			var pe *errorx.PassError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.name, pe.Pass)
			assert.Equal(t, 1, pe.Index)
		})
	}
}

func TestRunWithoutValidation(t *testing.T) {
	p := NewPipeline(&stubPass{name: "break", apply: func(pc *plan.Context) (*plan.Context, error) {
		g := pc.Graph().Clone()
		g.Add(plan.FilterDesc{Condition: &ast.BooleanLiteral{Val: true}})
		return pc.ReplaceGraph(g), nil
	}})
	_, err := NewExecutor(WithValidation(false)).Run(p, selectContext(t))
	assert.NoError(t, err)
	_, err = NewExecutor().Run(p, selectContext(t))
	assert.True(t, errorx.IsMalformedPlan(err))
}

func TestRunRejectsUnusableContext(t *testing.T) {
	e := NewExecutor()
	_, err := e.Run(NewPipeline(), nil)
	assert.True(t, errorx.IsMalformedPlan(err))

	pc := selectContext(t)
	pc.WithFlags(pc.Flags())
	_, err = e.Run(NewPipeline(), pc)
	assert.True(t, errorx.IsMalformedPlan(err))
}

func TestRunEmptyPipeline(t *testing.T) {
	pc := selectContext(t)
	res, err := NewExecutor().Run(NewPipeline(), pc)
	require.NoError(t, err)
	assert.Same(t, pc, res.Context)
	assert.Empty(t, res.Timings)
}

func TestRunSinkFailureIgnored(t *testing.T) {
	failing := SinkFunc(func(Event) error { return errors.New("disk full") })
	panicking := SinkFunc(func(Event) error { panic("broken exporter") })
	rec := &eventRecorder{}
	e := NewExecutor(WithSink(MultiSink{failing, rec}))
	res, err := e.Run(NewPipeline(&stubPass{name: "a"}, &stubPass{name: "b"}), selectContext(t))
	require.NoError(t, err)
	assert.Len(t, res.Timings, 2)
	assert.Len(t, rec.events, 2)

	res, err = NewExecutor(WithSink(panicking)).Run(NewPipeline(&stubPass{name: "a"}), selectContext(t))
	require.NoError(t, err)
	assert.Len(t, res.Timings, 1)
}

func TestRunTimings(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	start := mock.Now()
	advance := func(d time.Duration) func(pc *plan.Context) (*plan.Context, error) {
		return func(pc *plan.Context) (*plan.Context, error) {
			mock.Add(d)
			return pc, nil
		}
	}
	rec := &eventRecorder{}
	report := NewReport()
	e := NewExecutor(WithClock(mock), WithSink(MultiSink{rec, report}))
	p := NewPipeline(
		&stubPass{name: "fast", apply: advance(5 * time.Millisecond)},
		&stubPass{name: "slow", apply: advance(40 * time.Millisecond)},
		&stubPass{name: "instant"},
	)
	res, err := e.Run(p, selectContext(t))
	require.NoError(t, err)
	assert.Equal(t, []Timing{
		{Pass: "fast", Duration: 5 * time.Millisecond},
		{Pass: "slow", Duration: 40 * time.Millisecond},
		{Pass: "instant", Duration: 0},
	}, res.Timings)
	require.Len(t, rec.events, 3)
	assert.Equal(t, start, rec.events[0].Start)
	assert.Equal(t, start.Add(5*time.Millisecond), rec.events[1].Start)
	assert.Equal(t, start.Add(45*time.Millisecond), rec.events[2].Start)

	summaries, err := report.Summaries()
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, PassSummary{Index: 1, Pass: "slow", Runs: 1, Mean: 40 * time.Millisecond, P50: 40 * time.Millisecond, P99: 40 * time.Millisecond}, summaries[1])
}

func TestRunRandomPlans(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	identity := NewPipeline(&stubPass{name: "a"}, &stubPass{name: "b"}, &stubPass{name: "c"})
	o := New(nil, nil)
	for i := 0; i < 30; i++ {
		g := plantest.RandomGraph(r, 6+r.Intn(20))
		before := plan.Explain(g)
		pc, err := plan.New(g, plan.DefaultFlags(), plantest.Catalog())
		require.NoError(t, err)
		res, err := NewExecutor().Run(identity, pc)
		require.NoError(t, err)
		assert.Equal(t, before, plan.Explain(res.Context.Graph()))

		res, err = o.Optimize(def.DefaultOptimizerOption(), res.Context)
		require.NoError(t, err)
		require.NoError(t, res.Context.Graph().Validate())
		assert.Equal(t, before, plan.Explain(g), "input graph must not be mutated")
	}
}
