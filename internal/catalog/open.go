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
	"fmt"
	"time"

	"github.com/lf-edge/planopt/internal/conf"
)

// Open creates the configured backend behind an LRU cache.
func Open(c conf.CatalogConf) (Store, error) {
	var (
		backend Store
		err     error
	)
	switch c.Type {
	case "", "memory":
		backend, err = NewMemory()
	case "sqlite":
		p := c.Sqlite.Path
		if p == "" {
			p = "data/catalog.db"
		}
		backend, err = NewSQLite(p)
	case "redis":
		backend = NewRedisFromAddr(c.Redis.Addr, c.Redis.Password, c.Redis.DB, time.Duration(c.Redis.Timeout)*time.Millisecond)
	default:
		return nil, fmt.Errorf("unknown catalog type %s", c.Type)
	}
	if err != nil {
		return nil, err
	}
	conf.Log.Infof("catalog backend %s opened with cache size %d", c.Type, c.CacheSize)
	return NewCached(backend, c.CacheSize)
}
