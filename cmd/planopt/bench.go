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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"text/tabwriter"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lf-edge/planopt/internal/conf"
	"github.com/lf-edge/planopt/internal/optimizer"
	"github.com/lf-edge/planopt/internal/pkg/def"
	"github.com/lf-edge/planopt/internal/plan"
	"github.com/lf-edge/planopt/internal/plan/plantest"
	"github.com/lf-edge/planopt/pkg/tracer"
)

const (
	samplePlanSelect = "select"
	samplePlanJoin   = "join"
	samplePlanRandom = "random"
)

type benchOptions struct {
	plan       string
	iterations int
	seed       int64
	trace      bool
}

func samplePlan(kind string, r *rand.Rand) (*plan.Graph, error) {
	switch kind {
	case samplePlanSelect:
		return plantest.Select().Graph, nil
	case samplePlanJoin:
		return plantest.Join().Graph, nil
	case samplePlanRandom:
		return plantest.RandomGraph(r, 6+r.Intn(20)), nil
	default:
		return nil, fmt.Errorf("unknown sample plan %s, expect select, join or random", kind)
	}
}

// runBench optimizes the sample plan repeatedly with one pipeline and
// writes the per pass timing summary.
func runBench(w io.Writer, opt def.OptimizerOption, flags plan.Flags, b benchOptions) error {
	if b.iterations < 1 {
		return fmt.Errorf("iterations must be positive, got %d", b.iterations)
	}
	p, err := optimizer.Build(opt, flags)
	if err != nil {
		return err
	}
	var tp trace.TracerProvider
	if b.trace {
		if err := tracer.SetTracer(&tracer.TracerConfig{ServiceName: "planopt-bench", LocalTraceCapacity: 16}); err != nil {
			return err
		}
		defer func() {
			if err := tracer.Shutdown(context.Background()); err != nil {
				conf.Log.Warnf("shutdown tracer: %v", err)
			}
		}()
		tp = tracer.GetTracerProvider()
	}

	cat := plantest.Catalog()
	report := optimizer.NewReport()
	r := rand.New(rand.NewSource(b.seed))
	var last string
	for i := 0; i < b.iterations; i++ {
		g, err := samplePlan(b.plan, r)
		if err != nil {
			return err
		}
		pc, err := plan.New(g, flags, cat)
		if err != nil {
			return err
		}
		last = pc.ID()
		sinks := optimizer.MultiSink{report, optimizer.LogSink{Logger: conf.Log}}
		var span trace.Span
		if tp != nil {
			var ctx context.Context
			ctx, span = tp.Tracer("github.com/lf-edge/planopt/cmd/planopt").Start(context.Background(), "optimize",
				trace.WithAttributes(attribute.String(tracer.CompilationIDKey, last)))
			sinks = append(sinks, optimizer.NewTraceSink(ctx, tp))
		}
		_, err = optimizer.NewExecutor(optimizer.WithSink(sinks)).Run(p, pc)
		if span != nil {
			span.End()
		}
		if err != nil {
			return fmt.Errorf("compilation %d: %w", i, err)
		}
	}

	summaries, err := report.Summaries()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPASS\tRUNS\tFAILURES\tMEAN\tP50\tP99")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%v\t%v\t%v\n", s.Index, s.Pass, s.Runs, s.Failures, s.Mean, s.P50, s.P99)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if b.trace {
		ids := tracer.GetTraceIDListByCompilationID(last, 1)
		if len(ids) == 0 {
			return fmt.Errorf("no trace recorded for compilation %s", last)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tracer.GetSpanByTraceID(ids[0]))
	}
	return nil
}
