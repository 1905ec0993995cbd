// Copyright 2021-2024 EMQ Technologies Co., Ltd.
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

package errorx

import "errors"

type ErrorCode int

const (
	Undefined_Err ErrorCode = 1000
	GENERAL_ERR   ErrorCode = 1001
	NOT_FOUND     ErrorCode = 1002

	// error code for plan optimization

	MalformedPlanErr     ErrorCode = 2101
	SemanticViolationErr ErrorCode = 2102
	CatalogLookupErr     ErrorCode = 2103
	ConfigurationErr     ErrorCode = 2104
)

func (c ErrorCode) String() string {
	switch c {
	case GENERAL_ERR:
		return "GeneralError"
	case NOT_FOUND:
		return "NotFound"
	case MalformedPlanErr:
		return "MalformedPlanError"
	case SemanticViolationErr:
		return "SemanticViolationError"
	case CatalogLookupErr:
		return "CatalogLookupError"
	case ConfigurationErr:
		return "ConfigurationError"
	default:
		return "UndefinedError"
	}
}

var NotFoundErr = NewWithCode(NOT_FOUND, "not found")

// NewMalformedPlanError reports a rewrite that would break the graph invariants.
func NewMalformedPlanError(msg string) error {
	return &Error{
		code: MalformedPlanErr,
		msg:  msg,
	}
}

// NewSemanticViolationError reports a plan that cannot satisfy the query semantics.
func NewSemanticViolationError(msg string) error {
	return &Error{
		code: SemanticViolationErr,
		msg:  msg,
	}
}

// NewCatalogLookupError reports a missing or inaccessible catalog entity.
func NewCatalogLookupError(msg string) error {
	return &Error{
		code: CatalogLookupErr,
		msg:  msg,
	}
}

// NewConfigurationError reports an inconsistent option snapshot.
func NewConfigurationError(msg string) error {
	return &Error{
		code: ConfigurationErr,
		msg:  msg,
	}
}

// GetErrorCode returns the code of the first coded error in the chain.
func GetErrorCode(err error) (ErrorCode, bool) {
	var withCode ErrorWithCode
	if errors.As(err, &withCode) {
		return withCode.Code(), true
	}
	return 0, false
}

func IsKind(err error, code ErrorCode) bool {
	c, ok := GetErrorCode(err)
	return ok && c == code
}

func IsMalformedPlan(err error) bool {
	return IsKind(err, MalformedPlanErr)
}

func IsSemanticViolation(err error) bool {
	return IsKind(err, SemanticViolationErr)
}

func IsCatalogLookup(err error) bool {
	return IsKind(err, CatalogLookupErr)
}

func IsConfiguration(err error) bool {
	return IsKind(err, ConfigurationErr)
}
