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

package conf

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/lf-edge/planopt/internal/pkg/def"
	"github.com/lf-edge/planopt/pkg/errorx"
)

const ConfFileName = "planopt.yaml"

type CatalogConf struct {
	// Type is one of memory, sqlite or redis.
	Type      string
	CacheSize int
	Sqlite    struct {
		Path string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
		// Timeout in milliseconds
		Timeout int
	}
}

type PlanoptConf struct {
	Basic struct {
		Debug      bool
		ConsoleLog bool
		FileLog    bool
		LogDir     string
		RotateTime int
		MaxAge     int
		RestIp     string
		RestPort   int
	}
	Catalog       CatalogConf
	OpenTelemetry struct {
		ServiceName           string
		EnableRemoteCollector bool
		RemoteEndpoint        string
		LocalTraceCapacity    int
	}
	Optimizer map[string]interface{}
}

var Config *PlanoptConf

func defaultConf() *PlanoptConf {
	c := &PlanoptConf{}
	c.Basic.ConsoleLog = true
	c.Basic.LogDir = "log"
	c.Basic.RestIp = "0.0.0.0"
	c.Basic.RestPort = 9091
	c.Catalog.Type = "memory"
	c.Catalog.CacheSize = 1024
	c.OpenTelemetry.ServiceName = "planopt"
	c.OpenTelemetry.RemoteEndpoint = "localhost:4318"
	c.OpenTelemetry.LocalTraceCapacity = 2048
	return c
}

// InitConf loads the configuration file and applies the logging settings. An
// empty path keeps the defaults.
func InitConf(p string) error {
	c := defaultConf()
	if p != "" {
		if err := LoadConfigFromPath(p, c); err != nil {
			return err
		}
	}
	Config = c
	if c.Basic.Debug {
		Log.SetLevel(logrus.DebugLevel)
	}
	if c.Basic.FileLog {
		if err := SetupFileLog(c.Basic.LogDir, c.Basic.RotateTime, c.Basic.MaxAge, c.Basic.ConsoleLog); err != nil {
			Log.Warnf("Failed to log to file, using default stderr: %v", err)
		}
	} else if c.Basic.ConsoleLog {
		Log.SetOutput(os.Stdout)
	}
	return nil
}

// OptimizerOption layers the optimizer section of the configuration over
// the defaults and validates the result.
func (c *PlanoptConf) OptimizerOption() (def.OptimizerOption, error) {
	opt, err := def.DefaultOptimizerOption().FromMap(c.Optimizer)
	if err != nil {
		return opt, errorx.NewConfigurationError(fmt.Sprintf("invalid optimizer section: %v", err))
	}
	if err := ValidateOptimizerOption(opt); err != nil {
		return opt, err
	}
	return opt, nil
}

func LoadOptimizerOption(p string) (def.OptimizerOption, error) {
	c := defaultConf()
	if err := LoadConfigFromPath(p, c); err != nil {
		return def.OptimizerOption{}, err
	}
	return c.OptimizerOption()
}

// ValidateOptimizerOption reports every invalid value of the snapshot, each
// as a ConfigurationError.
func ValidateOptimizerOption(o def.OptimizerOption) error {
	var errs error
	if o.PointLookupEnabled && o.PointLookupMinOrTerms <= 0 {
		errs = errors.Join(errs, errorx.NewConfigurationError(fmt.Sprintf("point_lookup_min_or_terms must be positive, got %d", o.PointLookupMinOrTerms)))
	}
	if o.LimitPushdownMemoryFraction < 0 || o.LimitPushdownMemoryFraction > 1 {
		errs = errors.Join(errs, errorx.NewConfigurationError(fmt.Sprintf("limit_pushdown_memory_fraction must be between 0 and 1, got %v", o.LimitPushdownMemoryFraction)))
	}
	switch o.FetchTaskConversion {
	case def.FetchNone, def.FetchMinimal, def.FetchMore:
	default:
		errs = errors.Join(errs, errorx.NewConfigurationError(fmt.Sprintf("fetch_task_conversion must be one of none, minimal, more, got %q", o.FetchTaskConversion)))
	}
	if errs != nil {
		Log.Warnf("invalid optimizer option: %v", errs)
	}
	return errs
}
