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

package catalog

import (
	"github.com/fxamacker/cbor/v2"
)

func encode(t *TableDescriptor) ([]byte, error) {
	return cbor.Marshal(t)
}

func decode(b []byte) (*TableDescriptor, error) {
	t := &TableDescriptor{}
	if err := cbor.Unmarshal(b, t); err != nil {
		return nil, err
	}
	return t, nil
}
