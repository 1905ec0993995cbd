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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Separator splits the key path of an environment override, e.g.
// PLANOPT__OPTIMIZER__POINT_LOOKUP_ENABLED=true for planopt.yaml.
const Separator = "__"

func LoadConfigFromPath(p string, c interface{}) error {
	prefix := getPrefix(p)
	b, err := os.ReadFile(p)
	if err != nil {
		return err
	}
	configMap := make(map[string]interface{})
	err = yaml.Unmarshal(b, &configMap)
	if err != nil {
		return err
	}
	configs := normalize(configMap)
	err = process(configs, os.Environ(), prefix)
	if err != nil {
		return err
	}
	return mapstructure.Decode(configs, c)
}

func getPrefix(p string) string {
	file := filepath.Base(p)
	return strings.ToUpper(strings.TrimSuffix(file, filepath.Ext(file)))
}

func process(configMap map[string]interface{}, variables []string, prefix string) error {
	p := prefix + Separator
	for _, e := range variables {
		if !strings.HasPrefix(e, p) {
			continue
		}
		pair := strings.SplitN(e, "=", 2)
		if len(pair) != 2 {
			return fmt.Errorf("wrong format of variable %s", e)
		}
		keys := nameToKeys(strings.TrimPrefix(pair[0], p))
		if err := handle(configMap, keys, pair[1]); err != nil {
			return fmt.Errorf("cannot apply variable %s: %w", pair[0], err)
		}
		printableV := pair[1]
		if strings.Contains(strings.ToLower(pair[0]), "password") {
			printableV = "*"
		}
		Log.Infof("Set config '%s.%s' to '%s' by environment variable", strings.ToLower(prefix), strings.Join(keys, "."), printableV)
	}
	return nil
}

func handle(conf map[string]interface{}, keysLeft []string, val string) error {
	key := keysLeft[0]
	if len(keysLeft) == 1 {
		conf[key] = getValueType(val)
		return nil
	}
	v, ok := conf[key]
	if !ok {
		next := make(map[string]interface{})
		conf[key] = next
		return handle(next, keysLeft[1:], val)
	}
	casted, ok := v.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%s is not a section", key)
	}
	return handle(casted, keysLeft[1:], val)
}

func nameToKeys(key string) []string {
	return strings.Split(strings.ToLower(key), Separator)
}

func getValueType(val string) interface{} {
	val = strings.TrimSpace(val)
	if strings.HasPrefix(val, "[") && strings.HasSuffix(val, "]") {
		vals := strings.Split(strings.Trim(val, "[]"), ",")
		ret := make([]interface{}, 0, len(vals))
		for _, v := range vals {
			ret = append(ret, getValueType(v))
		}
		return ret
	}
	if i, err := strconv.ParseInt(val, 10, 64); err == nil {
		return i
	} else if b, err := strconv.ParseBool(val); err == nil {
		return b
	} else if f, err := strconv.ParseFloat(val, 64); err == nil {
		return f
	}
	return val
}

func normalize(m map[string]interface{}) map[string]interface{} {
	res := make(map[string]interface{})
	for k, v := range m {
		lowered := strings.ToLower(k)
		if casted, success := v.(map[string]interface{}); success {
			res[lowered] = normalize(casted)
		} else {
			res[lowered] = v
		}
	}
	return res
}
