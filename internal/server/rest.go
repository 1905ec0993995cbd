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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/propagation"

	"github.com/lf-edge/planopt/internal/catalog"
	"github.com/lf-edge/planopt/internal/conf"
	"github.com/lf-edge/planopt/internal/optimizer"
	"github.com/lf-edge/planopt/internal/pass"
	"github.com/lf-edge/planopt/internal/pkg/def"
	"github.com/lf-edge/planopt/internal/plan"
	"github.com/lf-edge/planopt/internal/server/promMetrics"
	"github.com/lf-edge/planopt/pkg/errorx"
	"github.com/lf-edge/planopt/pkg/timex"
	"github.com/lf-edge/planopt/pkg/tracer"
)

const (
	ContentType     = "Content-Type"
	ContentTypeJSON = "application/json"
)

type pipelineRequest struct {
	Options map[string]interface{} `json:"options,omitempty"`
	Flags   plan.Flags             `json:"flags"`
}

type pipelineResponse struct {
	Passes   []pass.Info `json:"passes"`
	Warnings []string    `json:"warnings"`
}

// restServer holds what the handlers share. base is the option snapshot of
// the configuration file that requests are layered over.
type restServer struct {
	catalog catalog.Store
	builder *optimizer.Builder
	base    def.OptimizerOption
}

func decodePipelineRequest(reader io.Reader) (pipelineRequest, error) {
	req := pipelineRequest{Flags: plan.DefaultFlags()}
	err := json.NewDecoder(reader).Decode(&req)
	// an empty body asks for the configured pipeline
	if err != nil && !errors.Is(err, io.EOF) {
		return req, errorx.NewConfigurationError(fmt.Sprintf("error decoding the pipeline request: %v", err))
	}
	return req, nil
}

func statusOf(err error) int {
	code, ok := errorx.GetErrorCode(err)
	if !ok {
		return http.StatusBadRequest
	}
	switch code {
	case errorx.NOT_FOUND, errorx.CatalogLookupErr:
		return http.StatusNotFound
	case errorx.MalformedPlanErr, errorx.SemanticViolationErr:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

// handleError writes err as a JSON error body with a status matching its code.
func handleError(w http.ResponseWriter, err error, prefix string) {
	message := prefix
	if message != "" {
		message += ": "
	}
	message += err.Error()
	conf.Log.Error(message)
	w.Header().Set(ContentType, ContentTypeJSON)
	w.WriteHeader(statusOf(err))
	_, _ = w.Write([]byte(packageInternalErrorCode(err, message)))
}

func packageInternalErrorCode(err error, msg string) string {
	errCode := errorx.Undefined_Err
	if c, ok := errorx.GetErrorCode(err); ok {
		errCode = c
	}
	return fmt.Sprintf(`{"error":%v,"message":%q}`, int(errCode), msg)
}

func jsonResponse(i interface{}, w http.ResponseWriter, status int) {
	jsonByte, err := json.Marshal(i)
	if err != nil {
		handleError(w, err, "")
		return
	}
	w.Header().Add(ContentType, ContentTypeJSON)
	w.Header().Add("Content-Length", strconv.Itoa(len(jsonByte)))
	w.WriteHeader(status)
	if _, err = w.Write(jsonByte); err != nil {
		conf.Log.Errorf("write response: %v", err)
	}
}

func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		propagator := propagation.TraceContext{}
		originCtx := context.Background()
		ctx := propagator.Extract(originCtx, propagation.HeaderCarrier(req.Header))
		if ctx != originCtx {
			_, span := tracer.GetTracerProvider().Tracer("github.com/lf-edge/planopt/internal/server").Start(ctx, req.URL.Path)
			defer span.End()
		}
		next.ServeHTTP(w, req)
	})
}

func (s *restServer) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(traceMiddleware)
	r.HandleFunc("/", rootHandler).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/ping", pingHandler).Methods(http.MethodGet)
	r.HandleFunc("/pipeline", s.pipelineHandler).Methods(http.MethodPost)
	r.HandleFunc("/options", s.optionsHandler).Methods(http.MethodGet)
	r.HandleFunc("/options/default", defaultOptionsHandler).Methods(http.MethodGet)
	r.HandleFunc("/tables", s.tablesHandler).Methods(http.MethodPost)
	r.HandleFunc("/tables/{name}", s.tableHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func createRestServer(ip string, port int, s *restServer) *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort(ip, strconv.Itoa(port)),
		WriteTimeout: time.Second * 60,
		ReadTimeout:  time.Second * 60,
		IdleTimeout:  time.Second * 60,
		Handler:      handlers.CORS(handlers.AllowedHeaders([]string{"Accept", "Accept-Language", "Content-Type", "Content-Language", "Origin", "Authorization"}), handlers.AllowedMethods([]string{"POST", "GET", "HEAD"}))(s.router()),
	}
}

type information struct {
	Version       string `json:"version"`
	Os            string `json:"os"`
	Arch          string `json:"arch"`
	UpTimeSeconds int64  `json:"upTimeSeconds"`
}

// The handler for root
func rootHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	info := &information{
		Version:       version,
		Os:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		UpTimeSeconds: timex.GetNow().Unix() - startTimeStamp,
	}
	jsonResponse(info, w, http.StatusOK)
}

func pingHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// pipelineHandler builds the pipeline for the posted options and flags
// without running it.
func (s *restServer) pipelineHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req, err := decodePipelineRequest(r.Body)
	if err != nil {
		handleError(w, err, "")
		return
	}
	opt, err := s.base.FromMap(req.Options)
	if err != nil {
		promMetrics.IncPipelineBuild(false)
		handleError(w, errorx.NewConfigurationError(err.Error()), "invalid options")
		return
	}
	p, err := s.builder.Build(opt, req.Flags)
	if err != nil {
		promMetrics.IncPipelineBuild(false)
		handleError(w, err, "build pipeline error")
		return
	}
	promMetrics.IncPipelineBuild(true)
	promMetrics.SetPipelinePasses(p.Len())
	warnings := p.Warnings()
	if warnings == nil {
		warnings = []string{}
	}
	jsonResponse(pipelineResponse{Passes: p.Infos(), Warnings: warnings}, w, http.StatusOK)
}

func (s *restServer) optionsHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	m, err := s.base.ToMap()
	if err != nil {
		handleError(w, err, "list options error")
		return
	}
	jsonResponse(m, w, http.StatusOK)
}

func defaultOptionsHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	m, err := def.DefaultOptimizerOption().ToMap()
	if err != nil {
		handleError(w, err, "list default options error")
		return
	}
	jsonResponse(m, w, http.StatusOK)
}

func (s *restServer) tableHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	name := mux.Vars(r)["name"]
	t, err := s.catalog.GetTable(name)
	if err != nil {
		handleError(w, err, fmt.Sprintf("describe table %s error", name))
		return
	}
	jsonResponse(t, w, http.StatusOK)
}

func (s *restServer) tablesHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	t := &catalog.TableDescriptor{}
	if err := json.NewDecoder(r.Body).Decode(t); err != nil {
		handleError(w, errorx.NewConfigurationError(err.Error()), "invalid table descriptor")
		return
	}
	if err := s.catalog.PutTable(t); err != nil {
		handleError(w, err, "register table error")
		return
	}
	jsonResponse(t, w, http.StatusCreated)
}
