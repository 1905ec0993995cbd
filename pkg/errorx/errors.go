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

import "fmt"

type Error struct {
	msg  string
	code ErrorCode
}

func New(message string) *Error {
	return &Error{message, GENERAL_ERR}
}

func NewWithCode(code ErrorCode, message string) *Error {
	return &Error{message, code}
}

func (e *Error) Error() string {
	return e.msg
}

func (e *Error) Code() ErrorCode {
	return e.code
}

type ErrorWithCode interface {
	Error() string
	Code() ErrorCode
}

// PassError attributes an optimization failure to the pass that raised it.
// The wrapped error is kept verbatim so callers can still match its kind.
type PassError struct {
	Pass  string
	Index int
	Err   error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("pass %s (#%d) failed: %v", e.Pass, e.Index, e.Err)
}

func (e *PassError) Unwrap() error {
	return e.Err
}

// Code is the code of the wrapped error, GENERAL_ERR if it carries none.
func (e *PassError) Code() ErrorCode {
	if c, ok := GetErrorCode(e.Err); ok {
		return c
	}
	return GENERAL_ERR
}
