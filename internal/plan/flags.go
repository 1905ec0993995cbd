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
	"fmt"
	"strings"

	"github.com/lf-edge/planopt/pkg/errorx"
)

type StatementKind int

const (
	Select StatementKind = iota
	Insert
	Merge
	Update
	Delete
	CTAS
)

var statementNames = map[StatementKind]string{
	Select: "SELECT",
	Insert: "INSERT",
	Merge:  "MERGE",
	Update: "UPDATE",
	Delete: "DELETE",
	CTAS:   "CTAS",
}

func (s StatementKind) String() string {
	if n, ok := statementNames[s]; ok {
		return n
	}
	return fmt.Sprintf("StatementKind(%d)", int(s))
}

func (s StatementKind) Valid() bool {
	_, ok := statementNames[s]
	return ok
}

func ParseStatementKind(s string) (StatementKind, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	for k, n := range statementNames {
		if n == u {
			return k, nil
		}
	}
	return 0, errorx.NewConfigurationError(fmt.Sprintf("unknown statement kind %q", s))
}

func (s StatementKind) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, errorx.NewConfigurationError(fmt.Sprintf("unknown statement kind %d", int(s)))
	}
	return []byte(s.String()), nil
}

func (s *StatementKind) UnmarshalText(b []byte) error {
	k, err := ParseStatementKind(string(b))
	if err != nil {
		return err
	}
	*s = k
	return nil
}

type Engine string

const (
	EngineMR  Engine = "mr"
	EngineTez Engine = "tez"
)

func (e Engine) Valid() bool {
	return e == EngineMR || e == EngineTez
}

// Flags are the compilation facts the pipeline builder and passes read.
// FetchConversion is an output: it is set when the query can be answered
// without launching execution tasks.
type Flags struct {
	CBOSucceeded         bool          `json:"cbo_succeeded"`
	Statement            StatementKind `json:"statement"`
	Engine               Engine        `json:"engine"`
	ExplainSkipExecution bool          `json:"explain_skip_execution"`
	FetchConversion      bool          `json:"fetch_conversion"`
}

func DefaultFlags() Flags {
	return Flags{Statement: Select, Engine: EngineMR}
}

func (f Flags) Validate() error {
	if !f.Engine.Valid() {
		return errorx.NewConfigurationError(fmt.Sprintf("unknown execution engine %q", f.Engine))
	}
	if !f.Statement.Valid() {
		return errorx.NewConfigurationError(fmt.Sprintf("unknown statement kind %d", int(f.Statement)))
	}
	return nil
}
