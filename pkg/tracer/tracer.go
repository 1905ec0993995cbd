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

// Package tracer owns the process tracer provider and the local store of the
// optimization traces.
package tracer

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.7.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/lf-edge/planopt/internal/conf"
)

var globalTracerManager = &GlobalTracerManager{}

type GlobalTracerManager struct {
	sync.RWMutex
	ServiceName  string
	SpanExporter *SpanExporter
	provider     *sdktrace.TracerProvider
}

// SetTracer installs a provider exporting to the local store and, when
// enabled, to the remote collector. The previous provider is shut down.
func (g *GlobalTracerManager) SetTracer(config *TracerConfig) error {
	exporter, err := NewSpanExporter(config.EnableRemoteCollector, config.RemoteEndpoint, config.LocalTraceCapacity)
	if err != nil {
		return err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(config.ServiceName),
		)),
		// synchronous so that a finished compilation is queryable at once
		sdktrace.WithSyncer(exporter),
	)
	g.Lock()
	old := g.provider
	g.ServiceName = config.ServiceName
	g.SpanExporter = exporter
	g.provider = tp
	g.Unlock()
	otel.SetTracerProvider(tp)
	if old != nil {
		if err := old.Shutdown(context.Background()); err != nil {
			conf.Log.Warnf("shutdown previous tracer provider: %v", err)
		}
	}
	conf.Log.Infof("set tracer success, enableRemote:%v, serviceName:%v, endpoint:%v", config.EnableRemoteCollector, config.ServiceName, config.RemoteEndpoint)
	return nil
}

func (g *GlobalTracerManager) Provider() trace.TracerProvider {
	g.RLock()
	defer g.RUnlock()
	if g.provider == nil {
		return otel.GetTracerProvider()
	}
	return g.provider
}

func (g *GlobalTracerManager) exporter() *SpanExporter {
	g.RLock()
	defer g.RUnlock()
	return g.SpanExporter
}

func SetTracer(config *TracerConfig) error {
	return globalTracerManager.SetTracer(config)
}

// InitTracer sets the tracer from the loaded configuration.
func InitTracer() error {
	return globalTracerManager.SetTracer(TracerConfigFromConf())
}

func GetTracerProvider() trace.TracerProvider {
	return globalTracerManager.Provider()
}

// GetSpanByTraceID returns nil until a tracer is set.
func GetSpanByTraceID(traceID string) *LocalSpan {
	e := globalTracerManager.exporter()
	if e == nil {
		return nil
	}
	return e.GetTraceById(traceID)
}

func GetTraceIDListByCompilationID(id string, limit int) []string {
	e := globalTracerManager.exporter()
	if e == nil {
		return nil
	}
	return e.GetTraceByCompilationID(id, limit)
}

// Shutdown flushes and stops the installed provider.
func Shutdown(ctx context.Context) error {
	globalTracerManager.Lock()
	tp := globalTracerManager.provider
	globalTracerManager.provider = nil
	globalTracerManager.SpanExporter = nil
	globalTracerManager.Unlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
