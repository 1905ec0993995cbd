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
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lf-edge/planopt/internal/conf"
	"github.com/lf-edge/planopt/pkg/errorx"
)

func sampleTable() *TableDescriptor {
	return &TableDescriptor{
		Name:             "src",
		Columns:          []Column{{Name: "key", Type: "string"}, {Name: "value", Type: "string"}},
		PartitionKeys:    []Column{{Name: "ds", Type: "string"}},
		BucketCols:       []string{"key"},
		NumBuckets:       4,
		SortCols:         []string{"key"},
		BucketingVersion: 2,
		SerdeLib:         "org.apache.hadoop.hive.serde2.lazy.LazySimpleSerDe",
		Properties:       map[string]string{"transactional": "false"},
		NumRows:          500,
	}
}

// testStore runs the same contract checks on every backend.
func testStore(t *testing.T, s Store) {
	_, err := s.GetTable("src")
	require.Error(t, err)
	assert.True(t, errorx.IsCatalogLookup(err))

	require.NoError(t, s.PutTable(sampleTable()))
	for _, name := range []string{"src", "default.src", "DEFAULT.SRC", " src "} {
		tbl, err := s.GetTable(name)
		require.NoError(t, err, name)
		expected := sampleTable()
		expected.Database = DefaultDatabase
		assert.Equal(t, expected, tbl)
	}
	// lookups hand out copies
	tbl, err := s.GetTable("src")
	require.NoError(t, err)
	tbl.NumRows = -1
	tbl.Properties["transactional"] = "true"
	tbl.Columns[0].Name = "changed"
	tbl, err = s.GetTable("src")
	require.NoError(t, err)
	assert.Equal(t, int64(500), tbl.NumRows)
	assert.Equal(t, "false", tbl.Properties["transactional"])
	assert.Equal(t, "key", tbl.Columns[0].Name)

	_, err = s.GetTable("other.src")
	assert.True(t, errorx.IsCatalogLookup(err))
	_, err = s.GetTable("a.b.c")
	assert.True(t, errorx.IsCatalogLookup(err))
	require.Error(t, s.PutTable(&TableDescriptor{}))
}

func TestMemory(t *testing.T) {
	m, err := NewMemory()
	require.NoError(t, err)
	testStore(t, m)

	_, err = NewMemory(sampleTable(), &TableDescriptor{})
	assert.EqualError(t, err, "table name is required")
}

func TestSQLite(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "db", "catalog.db"))
	require.NoError(t, err)
	defer s.Close()
	testStore(t, s)
}

func TestRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	r := NewRedisFromAddr(mr.Addr(), "", 0, 0)
	defer r.Close()
	testStore(t, r)
	assert.True(t, mr.Exists(redisKeyPrefix+":default.src"))

	mr.Set(redisKeyPrefix+":default.broken", "not cbor")
	_, err = r.GetTable("broken")
	assert.True(t, errorx.IsCatalogLookup(err))
}

type countingStore struct {
	Store
	calls atomic.Int32
}

func (c *countingStore) GetTable(name string) (*TableDescriptor, error) {
	c.calls.Add(1)
	return c.Store.GetTable(name)
}

func TestCached(t *testing.T) {
	m, err := NewMemory()
	require.NoError(t, err)
	backend := &countingStore{Store: m}
	c, err := NewCached(backend, 2)
	require.NoError(t, err)
	testStore(t, c)

	backend.calls.Store(0)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetTable("default.src")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(0), backend.calls.Load())

	updated := sampleTable()
	updated.NumRows = 1000
	require.NoError(t, c.PutTable(updated))
	tbl, err := c.GetTable("src")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), tbl.NumRows)
	assert.Equal(t, int32(1), backend.calls.Load())

	// misses are not cached
	_, err = c.GetTable("missing")
	require.Error(t, err)
	_, err = c.GetTable("missing")
	require.Error(t, err)
	assert.Equal(t, int32(3), backend.calls.Load())
	require.NoError(t, c.Close())
}

func TestOpen(t *testing.T) {
	c := conf.CatalogConf{Type: "memory", CacheSize: 8}
	s, err := Open(c)
	require.NoError(t, err)
	testStore(t, s)

	c = conf.CatalogConf{Type: "sqlite"}
	c.Sqlite.Path = filepath.Join(t.TempDir(), "catalog.db")
	s, err = Open(c)
	require.NoError(t, err)
	defer s.Close()
	testStore(t, s)

	_, err = Open(conf.CatalogConf{Type: "etcd"})
	require.Error(t, err)
}

func TestDescriptor(t *testing.T) {
	tbl := sampleTable()
	tbl.Database = "Sales"
	assert.Equal(t, "sales.src", tbl.QualifiedName())
	assert.True(t, tbl.IsPartitioned())
	assert.True(t, tbl.IsPartitionKey("DS"))
	assert.False(t, tbl.IsPartitionKey("key"))
	assert.True(t, tbl.IsBucketed())

	c := tbl.Clone()
	c.Properties["transactional"] = "true"
	c.Columns[0].Name = "changed"
	assert.Equal(t, "false", tbl.Properties["transactional"])
	assert.Equal(t, "key", tbl.Columns[0].Name)
}
