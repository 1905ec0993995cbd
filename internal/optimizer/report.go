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
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

// slot identifies one position of the pipeline. A pass scheduled several
// times, like constant_propagate, has one slot per position.
type slot struct {
	index int
	pass  string
}

// Report aggregates pass durations over many runs. It is a Sink.
type Report struct {
	mu      sync.Mutex
	order   []slot
	samples map[slot][]float64
	fails   map[slot]int
}

func NewReport() *Report {
	return &Report{samples: make(map[slot][]float64), fails: make(map[slot]int)}
}

func (r *Report) Record(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := slot{index: ev.Index, pass: ev.Pass}
	if _, ok := r.samples[k]; !ok {
		r.order = append(r.order, k)
		r.samples[k] = nil
	}
	if ev.Err != nil {
		r.fails[k]++
		return nil
	}
	r.samples[k] = append(r.samples[k], float64(ev.Duration))
	return nil
}

type PassSummary struct {
	Index    int           `json:"index"`
	Pass     string        `json:"pass"`
	Runs     int           `json:"runs"`
	Failures int           `json:"failures"`
	Mean     time.Duration `json:"mean"`
	P50      time.Duration `json:"p50"`
	P99      time.Duration `json:"p99"`
}

// Summaries returns one line per pipeline slot ordered by index. Slots that
// never succeeded have zero durations.
func (r *Report) Summaries() ([]PassSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := append([]slot(nil), r.order...)
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].index < keys[j].index })
	result := make([]PassSummary, 0, len(keys))
	for _, k := range keys {
		data := r.samples[k]
		s := PassSummary{Index: k.index, Pass: k.pass, Runs: len(data), Failures: r.fails[k]}
		if len(data) > 0 {
			mean, err := stats.Mean(data)
			if err != nil {
				return nil, err
			}
			p50, err := stats.Percentile(data, 50)
			if err != nil {
				return nil, err
			}
			p99, err := stats.Percentile(data, 99)
			if err != nil {
				return nil, err
			}
			s.Mean, s.P50, s.P99 = time.Duration(mean), time.Duration(p50), time.Duration(p99)
		}
		result = append(result, s)
	}
	return result, nil
}
