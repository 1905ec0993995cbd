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
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/lf-edge/planopt/pkg/errorx"
)

const sqliteTable = "catalog_tables"

// SQLite keeps CBOR encoded descriptors in a single table keyed by the
// qualified name.
type SQLite struct {
	db   *sql.DB
	Path string
	mu   sync.Mutex
}

func NewSQLite(p string) (*SQLite, error) {
	if dir := filepath.Dir(p); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?cache=shared", p))
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(-1)
	s := &SQLite{db: db, Path: p}
	err = s.apply(func(db *sql.DB) error {
		query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS '%s'('qname' VARCHAR(255) PRIMARY KEY, 'val' BLOB);", sqliteTable)
		_, err := db.Exec(query)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) apply(f func(db *sql.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return f(s.db)
}

func (s *SQLite) GetTable(name string) (*TableDescriptor, error) {
	qn, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	var t *TableDescriptor
	err = s.apply(func(db *sql.DB) error {
		query := fmt.Sprintf("SELECT val FROM '%s' WHERE qname=?;", sqliteTable)
		var tmp []byte
		if err := db.QueryRow(query, qn).Scan(&tmp); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notFound(qn)
			}
			return errorx.NewCatalogLookupError(fmt.Sprintf("read table %s: %v", qn, err))
		}
		d, err := decode(tmp)
		if err != nil {
			return errorx.NewCatalogLookupError(fmt.Sprintf("decode table %s: %v", qn, err))
		}
		t = d
		return nil
	})
	return t, err
}

func (s *SQLite) PutTable(t *TableDescriptor) error {
	if err := validate(t); err != nil {
		return err
	}
	b, err := encode(t)
	if err != nil {
		return err
	}
	return s.apply(func(db *sql.DB) error {
		query := fmt.Sprintf("REPLACE INTO '%s'(qname,val) values(?,?);", sqliteTable)
		stmt, err := db.Prepare(query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		_, err = stmt.Exec(t.QualifiedName(), b)
		return err
	})
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
