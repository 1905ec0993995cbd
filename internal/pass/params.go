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

package pass

import (
	"fmt"

	"github.com/lf-edge/planopt/pkg/cast"
	"github.com/lf-edge/planopt/pkg/errorx"
)

func param(name string, params Params, key string) (any, error) {
	v, ok := params[key]
	if !ok {
		return nil, errorx.NewConfigurationError(fmt.Sprintf("pass %s requires parameter %s", name, key))
	}
	return v, nil
}

func intParam(name string, params Params, key string) (int, error) {
	v, err := param(name, params, key)
	if err != nil {
		return 0, err
	}
	n, err := cast.ToInt(v, cast.STRICT)
	if err != nil {
		return 0, errorx.NewConfigurationError(fmt.Sprintf("pass %s parameter %s must be an integer, got %v", name, key, v))
	}
	return n, nil
}

func floatParam(name string, params Params, key string) (float64, error) {
	v, err := param(name, params, key)
	if err != nil {
		return 0, err
	}
	f, err := cast.ToFloat64(v, cast.CONVERT_SAMEKIND)
	if err != nil {
		return 0, errorx.NewConfigurationError(fmt.Sprintf("pass %s parameter %s must be a number, got %v", name, key, v))
	}
	return f, nil
}

func boolParam(name string, params Params, key string) (bool, error) {
	v, err := param(name, params, key)
	if err != nil {
		return false, err
	}
	b, err := cast.ToBool(v, cast.STRICT)
	if err != nil {
		return false, errorx.NewConfigurationError(fmt.Sprintf("pass %s parameter %s must be a boolean, got %v", name, key, v))
	}
	return b, nil
}

func stringParam(name string, params Params, key string) (string, error) {
	v, err := param(name, params, key)
	if err != nil {
		return "", err
	}
	s, err := cast.ToString(v, cast.STRICT)
	if err != nil {
		return "", errorx.NewConfigurationError(fmt.Sprintf("pass %s parameter %s must be a string, got %v", name, key, v))
	}
	return s, nil
}
