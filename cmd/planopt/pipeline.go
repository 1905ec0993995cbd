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
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/lf-edge/planopt/internal/optimizer"
	"github.com/lf-edge/planopt/internal/pass"
	"github.com/lf-edge/planopt/internal/pkg/def"
	"github.com/lf-edge/planopt/internal/plan"
	"github.com/lf-edge/planopt/pkg/cast"
)

type pipelineOutput struct {
	Passes   []pass.Info `json:"passes"`
	Warnings []string    `json:"warnings,omitempty"`
}

// printPipeline writes one pass per line followed by the warnings.
func printPipeline(w io.Writer, opt def.OptimizerOption, flags plan.Flags, asJSON bool) error {
	p, err := optimizer.Build(opt, flags)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(pipelineOutput{Passes: p.Infos(), Warnings: p.Warnings()})
	}
	for i, info := range p.Infos() {
		if _, err := fmt.Fprintf(w, "%2d %s%s\n", i, info.Name, paramsString(info.Params)); err != nil {
			return err
		}
	}
	for _, warn := range p.Warnings() {
		if _, err := fmt.Fprintf(w, "warning: %s\n", warn); err != nil {
			return err
		}
	}
	return nil
}

func paramsString(params pass.Params) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + cast.ToStringAlways(params[k])
	}
	return " {" + strings.Join(parts, ", ") + "}"
}
