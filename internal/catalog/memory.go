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
	"sync"
)

type Memory struct {
	mu     sync.RWMutex
	tables map[string]*TableDescriptor
}

// NewMemory rejects the first invalid descriptor. Lookups return copies.
func NewMemory(tables ...*TableDescriptor) (*Memory, error) {
	m := &Memory{tables: make(map[string]*TableDescriptor)}
	for _, t := range tables {
		if err := m.PutTable(t); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Memory) GetTable(name string) (*TableDescriptor, error) {
	qn, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[qn]
	if !ok {
		return nil, notFound(qn)
	}
	return t.Clone(), nil
}

func (m *Memory) PutTable(t *TableDescriptor) error {
	if err := validate(t); err != nil {
		return err
	}
	c := t.Clone()
	m.mu.Lock()
	m.tables[c.QualifiedName()] = c
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error {
	return nil
}
