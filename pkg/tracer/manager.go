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

package tracer

import (
	"context"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/lf-edge/planopt/internal/conf"
)

// SpanExporter keeps the latest traces in memory and forwards them to a
// remote collector when one is configured.
type SpanExporter struct {
	remoteSpanExport *otlptrace.Exporter
	spanStorage      *LocalSpanMemoryStorage
}

func NewSpanExporter(remoteCollector bool, remoteEndpoint string, capacity int) (*SpanExporter, error) {
	s := &SpanExporter{spanStorage: newLocalSpanMemoryStorage(capacity)}
	if remoteCollector {
		exporter, err := otlptracehttp.New(context.Background(),
			otlptracehttp.WithEndpoint(remoteEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}
		s.remoteSpanExport = exporter
	}
	return s, nil
}

func (l *SpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if l == nil {
		return nil
	}
	if l.remoteSpanExport != nil {
		if err := l.remoteSpanExport.ExportSpans(ctx, spans); err != nil {
			conf.Log.Warnf("export remote span err: %v", err)
		}
	}
	for _, span := range spans {
		l.spanStorage.SaveSpan(span)
	}
	return nil
}

func (l *SpanExporter) Shutdown(ctx context.Context) error {
	if l == nil || l.remoteSpanExport == nil {
		return nil
	}
	return l.remoteSpanExport.Shutdown(ctx)
}

func (l *SpanExporter) GetTraceById(traceID string) *LocalSpan {
	return l.spanStorage.GetTraceById(traceID)
}

func (l *SpanExporter) GetTraceByCompilationID(id string, limit int) []string {
	return l.spanStorage.GetTraceByCompilationID(id, limit)
}

type LocalSpanMemoryStorage struct {
	sync.RWMutex
	queue *Queue
	// traceid -> spanid -> span
	m map[string]map[string]*LocalSpan
	// compilation -> traceIDs, may repeat
	compilationTraces map[string][]string
}

func newLocalSpanMemoryStorage(capacity int) *LocalSpanMemoryStorage {
	return &LocalSpanMemoryStorage{
		queue:             NewQueue(capacity),
		m:                 make(map[string]map[string]*LocalSpan),
		compilationTraces: make(map[string][]string),
	}
}

func (l *LocalSpanMemoryStorage) SaveSpan(span sdktrace.ReadOnlySpan) {
	l.Lock()
	defer l.Unlock()
	l.saveSpan(FromReadonlySpan(span))
}

func (l *LocalSpanMemoryStorage) saveSpan(localSpan *LocalSpan) {
	if dropped := l.queue.Enqueue(localSpan); dropped != "" {
		for _, s := range l.m[dropped] {
			if s.CompilationID != "" {
				l.compilationTraces[s.CompilationID] = remove(l.compilationTraces[s.CompilationID], dropped)
				if len(l.compilationTraces[s.CompilationID]) == 0 {
					delete(l.compilationTraces, s.CompilationID)
				}
			}
		}
		delete(l.m, dropped)
	}
	spanMap, ok := l.m[localSpan.TraceID]
	if !ok {
		spanMap = make(map[string]*LocalSpan)
		l.m[localSpan.TraceID] = spanMap
	}
	if localSpan.CompilationID != "" {
		l.compilationTraces[localSpan.CompilationID] = append(l.compilationTraces[localSpan.CompilationID], localSpan.TraceID)
	}
	spanMap[localSpan.SpanID] = localSpan
}

func remove(ids []string, id string) []string {
	result := ids[:0]
	for _, s := range ids {
		if s != id {
			result = append(result, s)
		}
	}
	return result
}

// GetTraceById returns the root span with its children linked, nil if the
// trace is unknown or was evicted.
func (l *LocalSpanMemoryStorage) GetTraceById(traceID string) *LocalSpan {
	l.RLock()
	defer l.RUnlock()
	allSpans := l.m[traceID]
	if len(allSpans) < 1 {
		return nil
	}
	copySpan := make(map[string]*LocalSpan, len(allSpans))
	for k, s := range allSpans {
		c := *s
		c.ChildSpan = nil
		copySpan[k] = &c
	}
	rootSpan := findRootSpan(copySpan)
	if rootSpan == nil {
		return nil
	}
	delete(copySpan, rootSpan.SpanID)
	buildSpanLink(rootSpan, copySpan)
	return rootSpan
}

// GetTraceByCompilationID lists the trace ids of a compilation, newest
// first. A limit below 1 lists them all.
func (l *LocalSpanMemoryStorage) GetTraceByCompilationID(id string, limit int) []string {
	l.RLock()
	defer l.RUnlock()
	allTraces := l.compilationTraces[id]
	if limit < 1 {
		limit = len(allTraces)
	}
	r := make([]string, 0)
	seen := make(map[string]struct{})
	for i := len(allTraces) - 1; i >= 0 && len(r) < limit; i-- {
		traceID := allTraces[i]
		if _, existed := seen[traceID]; existed {
			continue
		}
		seen[traceID] = struct{}{}
		r = append(r, traceID)
	}
	return r
}

func findRootSpan(allSpans map[string]*LocalSpan) *LocalSpan {
	var root *LocalSpan
	for _, span := range allSpans {
		if span.ParentSpanID != "" {
			if _, ok := allSpans[span.ParentSpanID]; ok {
				continue
			}
		}
		// several orphans: pick the earliest for a stable answer
		if root == nil || span.StartTime.Before(root.StartTime) {
			root = span
		}
	}
	return root
}

func buildSpanLink(cur *LocalSpan, otherSpans map[string]*LocalSpan) {
	for k, otherSpan := range otherSpans {
		if cur.SpanID == otherSpan.ParentSpanID {
			cur.ChildSpan = append(cur.ChildSpan, otherSpan)
			delete(otherSpans, k)
		}
	}
	sort.SliceStable(cur.ChildSpan, func(i, j int) bool {
		return cur.ChildSpan[i].StartTime.Before(cur.ChildSpan[j].StartTime)
	})
	for _, span := range cur.ChildSpan {
		buildSpanLink(span, otherSpans)
	}
}

// Queue is traceID FIFO queue with sized capacity
type Queue struct {
	m        map[string]struct{}
	items    []string
	capacity int
}

func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		m:        make(map[string]struct{}),
		items:    make([]string, 0),
		capacity: capacity,
	}
}

// Enqueue registers the trace of item and returns the trace id evicted to
// make room, if any.
func (q *Queue) Enqueue(item *LocalSpan) string {
	if _, ok := q.m[item.TraceID]; ok {
		return ""
	}
	dropped := ""
	if len(q.items) >= q.capacity {
		dropped = q.Dequeue()
	}
	q.items = append(q.items, item.TraceID)
	q.m[item.TraceID] = struct{}{}
	return dropped
}

func (q *Queue) Dequeue() string {
	if len(q.items) == 0 {
		return ""
	}
	traceID := q.items[0]
	q.items = q.items[1:]
	delete(q.m, traceID)
	return traceID
}

func (q *Queue) Len() int {
	return len(q.items)
}
