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

package plan

import (
	"encoding/json"
	"strings"
)

type explainLine struct {
	Type   string         `json:"type"`
	Info   string         `json:"info"`
	ID     OpID           `json:"id"`
	Inputs []OpID         `json:"inputs"`
	Props  map[string]any `json:"props,omitempty"`
}

// Explain renders the graph from its sinks down, one JSON object per
// operator indented by depth. Shared producers are printed under every
// consumer.
func Explain(g *Graph) string {
	var b strings.Builder
	var visit func(id OpID, level int)
	visit = func(id OpID, level int) {
		op := g.Op(id)
		if op == nil || level > g.Len() {
			return
		}
		line := explainLine{
			Type:   op.Kind.String(),
			Info:   op.Desc.Info(),
			ID:     op.ID,
			Inputs: op.Inputs,
			Props:  op.Props,
		}
		if line.Inputs == nil {
			line.Inputs = []OpID{}
		}
		b.WriteString(strings.Repeat("   ", level))
		enc := json.NewEncoder(&b)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(line); err != nil {
			b.WriteString(`{"type":"` + line.Type + `","error":"unprintable props"}` + "\n")
		}
		for _, in := range op.Inputs {
			visit(in, level+1)
		}
	}
	roots := g.Sinks()
	if len(roots) == 0 {
		for _, op := range g.Operators() {
			if len(g.Consumers(op.ID)) == 0 {
				roots = append(roots, op.ID)
			}
		}
	}
	for _, r := range roots {
		visit(r, 0)
	}
	return b.String()
}
