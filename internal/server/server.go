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

// Package server exposes the pipeline builder and the catalog over REST.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lf-edge/planopt/internal/catalog"
	"github.com/lf-edge/planopt/internal/conf"
	"github.com/lf-edge/planopt/internal/optimizer"
	"github.com/lf-edge/planopt/internal/pass"
	"github.com/lf-edge/planopt/internal/server/promMetrics"
	"github.com/lf-edge/planopt/pkg/timex"
	"github.com/lf-edge/planopt/pkg/tracer"
)

var (
	startTimeStamp int64
	version        = ""
)

const shutdownTimeout = 10 * time.Second

// StartUp serves until SIGINT or SIGTERM. Errors of the configuration or
// the catalog backend are returned before listening.
func StartUp(Version, confPath string) error {
	version = Version
	startTimeStamp = timex.GetNow().Unix()
	if err := conf.InitConf(confPath); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	opt, err := conf.Config.OptimizerOption()
	if err != nil {
		return err
	}
	if err := tracer.InitTracer(); err != nil {
		conf.Log.Warnf("init tracer: %v", err)
	}
	cat, err := catalog.Open(conf.Config.Catalog)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer func() {
		if err := cat.Close(); err != nil {
			conf.Log.Warnf("close catalog: %v", err)
		}
	}()
	promMetrics.RegisterMetrics()

	s := &restServer{catalog: cat, builder: optimizer.NewBuilder(pass.DefaultRegistry()), base: opt}
	srvRest := createRestServer(conf.Config.Basic.RestIp, conf.Config.Basic.RestPort, s)
	go func() {
		if err := srvRest.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			conf.Log.Fatalf("Error serving rest service: %s", err)
		}
	}()
	msg := fmt.Sprintf("Serving planopt REST service on %s.", srvRest.Addr)
	conf.Log.Info(msg)
	fmt.Println(msg)

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	<-sigint
	conf.Log.Info("planopt service is shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srvRest.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown rest service: %w", err)
	}
	if err := tracer.Shutdown(ctx); err != nil {
		conf.Log.Warnf("shutdown tracer: %v", err)
	}
	conf.Log.Info("rest server successfully shutdown.")
	return nil
}
