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
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/lf-edge/planopt/internal/conf"
	"github.com/lf-edge/planopt/internal/pass"
	"github.com/lf-edge/planopt/internal/plan"
	"github.com/lf-edge/planopt/pkg/errorx"
	"github.com/lf-edge/planopt/pkg/timex"
)

// Event reports one pass execution to a sink.
type Event struct {
	CompilationID string
	Pass          string
	Index         int
	Start         time.Time
	Duration      time.Duration
	// Err is the failure of the pass, nil on success.
	Err error
}

type Timing struct {
	Pass     string        `json:"pass"`
	Duration time.Duration `json:"duration"`
}

// Result is the outcome of a successful run: the final context and the time
// spent in each pass.
type Result struct {
	Context *plan.Context
	Timings []Timing
}

// Executor runs pipelines. It keeps no state between runs, so one executor
// may serve concurrent compilations as long as each owns its context.
type Executor struct {
	sink     Sink
	clock    clock.Clock
	validate bool
}

type Option func(e *Executor)

func WithSink(s Sink) Option {
	return func(e *Executor) {
		e.sink = s
	}
}

func WithClock(c clock.Clock) Option {
	return func(e *Executor) {
		e.clock = c
	}
}

// WithValidation toggles the well-formedness check after every pass. It is
// on by default.
func WithValidation(on bool) Option {
	return func(e *Executor) {
		e.validate = on
	}
}

func NewExecutor(opts ...Option) *Executor {
	e := &Executor{clock: timex.Clock, validate: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run applies the passes of p in order, handing each the context returned
// by the previous one. The first failure stops the run and the context is
// dropped; the error is a *errorx.PassError naming the pass.
func (e *Executor) Run(p *Pipeline, pc *plan.Context) (*Result, error) {
	if pc == nil || pc.Consumed() {
		return nil, errorx.NewMalformedPlanError("no usable plan context to optimize")
	}
	id := pc.ID()
	timings := make([]Timing, 0, p.Len())
	for i, ps := range p.passes {
		start := e.clock.Now()
		next, err := e.apply(ps, pc)
		d := e.clock.Since(start)
		if err == nil {
			err = e.check(next)
		}
		e.emit(Event{CompilationID: id, Pass: ps.Name(), Index: i, Start: start, Duration: d, Err: err})
		if err != nil {
			return nil, &errorx.PassError{Pass: ps.Name(), Index: i, Err: err}
		}
		timings = append(timings, Timing{Pass: ps.Name(), Duration: d})
		pc = next
	}
	return &Result{Context: pc, Timings: timings}, nil
}

func (e *Executor) apply(p pass.Pass, pc *plan.Context) (next *plan.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, err = nil, errorx.NewMalformedPlanError(fmt.Sprintf("pass panicked: %v", r))
		}
	}()
	return p.Apply(pc)
}

func (e *Executor) check(next *plan.Context) error {
	if next == nil {
		return errorx.NewMalformedPlanError("pass returned no plan context")
	}
	if next.Consumed() || next.Graph() == nil {
		return errorx.NewMalformedPlanError("pass returned a consumed plan context")
	}
	if e.validate {
		return next.Graph().Validate()
	}
	return nil
}

// emit delivers ev to the sink. Delivery failures never fail the run.
func (e *Executor) emit(ev Event) {
	if e.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			conf.Log.Warnf("instrumentation sink panicked on pass %s: %v", ev.Pass, r)
		}
	}()
	if err := e.sink.Record(ev); err != nil {
		conf.Log.Warnf("instrumentation sink failed on pass %s: %v", ev.Pass, err)
	}
}
