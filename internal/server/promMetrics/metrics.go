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

package promMetrics

import "github.com/prometheus/client_golang/prometheus"

const (
	LblStatusType = "status"

	LblBuildSuccess = "success"
	LblBuildFailure = "failure"
)

var (
	PipelineBuildCounter *prometheus.CounterVec
	PipelinePassesGauge  prometheus.Gauge
)

func InitServerMetrics() {
	PipelineBuildCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "planopt",
		Subsystem: "pipeline",
		Name:      "builds_total",
		Help:      "counter of pipeline builds by status",
	}, []string{LblStatusType})

	PipelinePassesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "planopt",
		Subsystem: "pipeline",
		Name:      "passes",
		Help:      "gauge of the pass count of the last built pipeline",
	})
}

func RegisterMetrics() {
	InitServerMetrics()
	prometheus.MustRegister(PipelineBuildCounter)
	prometheus.MustRegister(PipelinePassesGauge)
}

// IncPipelineBuild is a no-op until the metrics are initialized.
func IncPipelineBuild(ok bool) {
	if PipelineBuildCounter == nil {
		return
	}
	lbl := LblBuildSuccess
	if !ok {
		lbl = LblBuildFailure
	}
	PipelineBuildCounter.WithLabelValues(lbl).Inc()
}

func SetPipelinePasses(count int) {
	if PipelinePassesGauge == nil {
		return
	}
	PipelinePassesGauge.Set(float64(count))
}
