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
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Cached fronts a store with an LRU of descriptors. Concurrent misses on the
// same name share one backend lookup. Lookup failures are not cached. Every
// caller gets its own copy of the cached descriptor.
type Cached struct {
	backend Store
	cache   *lru.Cache[string, *TableDescriptor]
	group   singleflight.Group
}

func NewCached(backend Store, size int) (*Cached, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, *TableDescriptor](size)
	if err != nil {
		return nil, err
	}
	return &Cached{backend: backend, cache: c}, nil
}

func (c *Cached) GetTable(name string) (*TableDescriptor, error) {
	qn, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	if t, ok := c.cache.Get(qn); ok {
		return t.Clone(), nil
	}
	v, err, _ := c.group.Do(qn, func() (interface{}, error) {
		t, err := c.backend.GetTable(qn)
		if err != nil {
			return nil, err
		}
		c.cache.Add(qn, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TableDescriptor).Clone(), nil
}

func (c *Cached) PutTable(t *TableDescriptor) error {
	if err := c.backend.PutTable(t); err != nil {
		return err
	}
	c.cache.Remove(t.QualifiedName())
	return nil
}

func (c *Cached) Len() int {
	return c.cache.Len()
}

func (c *Cached) Close() error {
	c.cache.Purge()
	return c.backend.Close()
}
