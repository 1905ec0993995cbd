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

package ast

type Token int

const (
	ILLEGAL Token = iota

	logicalBeg
	AND
	OR
	NOT
	logicalEnd

	comparisonBeg
	EQ
	NEQ
	LT
	LTE
	GT
	GTE
	comparisonEnd

	arithmeticBeg
	ADD
	SUB
	MUL
	DIV
	MOD
	arithmeticEnd
)

var tokens = [...]string{
	ILLEGAL: "ILLEGAL",
	AND:     "AND",
	OR:      "OR",
	NOT:     "NOT",
	EQ:      "=",
	NEQ:     "!=",
	LT:      "<",
	LTE:     "<=",
	GT:      ">",
	GTE:     ">=",
	ADD:     "+",
	SUB:     "-",
	MUL:     "*",
	DIV:     "/",
	MOD:     "%",
}

func (tok Token) String() string {
	if tok >= 0 && tok < Token(len(tokens)) && tokens[tok] != "" {
		return tokens[tok]
	}
	return ""
}

func (tok Token) IsLogical() bool {
	return tok > logicalBeg && tok < logicalEnd
}

func (tok Token) IsComparison() bool {
	return tok > comparisonBeg && tok < comparisonEnd
}

func (tok Token) IsArithmetic() bool {
	return tok > arithmeticBeg && tok < arithmeticEnd
}

// Commute returns the operator obtained by swapping the operands, e.g. 1 < a is a > 1.
func (tok Token) Commute() Token {
	switch tok {
	case LT:
		return GT
	case LTE:
		return GTE
	case GT:
		return LT
	case GTE:
		return LTE
	default:
		return tok
	}
}
