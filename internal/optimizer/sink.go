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
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Sink receives an event per executed pass. Implementations used with a
// shared executor must be safe for concurrent use.
type Sink interface {
	Record(ev Event) error
}

type SinkFunc func(ev Event) error

func (f SinkFunc) Record(ev Event) error {
	return f(ev)
}

// MultiSink forwards every event to all its sinks.
type MultiSink []Sink

func (m MultiSink) Record(ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes a debug line per pass.
type LogSink struct {
	Logger *logrus.Logger
}

func (l LogSink) Record(ev Event) error {
	entry := l.Logger.WithFields(logrus.Fields{
		"compilation": ev.CompilationID,
		"pass":        ev.Pass,
		"index":       ev.Index,
		"duration":    ev.Duration,
	})
	if ev.Err != nil {
		entry.Debugf("pass failed: %v", ev.Err)
	} else {
		entry.Debug("pass done")
	}
	return nil
}

const (
	metricsNamespace = "planopt"
	lblPass          = "pass"
)

// PrometheusSink exports pass durations and failures.
type PrometheusSink struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

// NewPrometheusSink registers the pass metrics with reg, reusing the
// collectors already registered there.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "pass",
		Name:      "duration_seconds",
		Help:      "Histogram of optimizer pass durations",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{lblPass})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "pass",
		Name:      "failures_total",
		Help:      "Counter of failed optimizer passes",
	}, []string{lblPass})
	if err := reg.Register(duration); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		duration = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	if err := reg.Register(failures); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		failures = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return &PrometheusSink{duration: duration, failures: failures}, nil
}

func (p *PrometheusSink) Record(ev Event) error {
	p.duration.WithLabelValues(ev.Pass).Observe(ev.Duration.Seconds())
	if ev.Err != nil {
		p.failures.WithLabelValues(ev.Pass).Inc()
	}
	return nil
}

const tracerName = "github.com/lf-edge/planopt/internal/optimizer"

// TraceSink opens one span per pass under a parent context. Spans carry the
// timestamps measured by the executor.
type TraceSink struct {
	parent context.Context
	tracer trace.Tracer
}

func NewTraceSink(parent context.Context, tp trace.TracerProvider) *TraceSink {
	return &TraceSink{parent: parent, tracer: tp.Tracer(tracerName)}
}

func (t *TraceSink) Record(ev Event) error {
	_, span := t.tracer.Start(t.parent, ev.Pass,
		trace.WithTimestamp(ev.Start),
		trace.WithAttributes(
			attribute.String("compilation.id", ev.CompilationID),
			attribute.Int("pass.index", ev.Index),
		))
	if ev.Err != nil {
		span.RecordError(ev.Err)
		span.SetStatus(codes.Error, ev.Err.Error())
	}
	span.End(trace.WithTimestamp(ev.Start.Add(ev.Duration)))
	return nil
}
