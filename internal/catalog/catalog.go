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

// Package catalog provides read-only access to table metadata for the
// optimizer passes.
package catalog

import (
	"fmt"
	"strings"

	"github.com/lf-edge/planopt/pkg/errorx"
)

const DefaultDatabase = "default"

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type TableDescriptor struct {
	Database         string            `json:"database"`
	Name             string            `json:"name"`
	Columns          []Column          `json:"columns"`
	PartitionKeys    []Column          `json:"partitionKeys,omitempty"`
	BucketCols       []string          `json:"bucketCols,omitempty"`
	NumBuckets       int               `json:"numBuckets,omitempty"`
	SortCols         []string          `json:"sortCols,omitempty"`
	BucketingVersion int               `json:"bucketingVersion,omitempty"`
	SerdeLib         string            `json:"serdeLib,omitempty"`
	Properties       map[string]string `json:"properties,omitempty"`
	NumRows          int64             `json:"numRows,omitempty"`
}

func (t *TableDescriptor) QualifiedName() string {
	return strings.ToLower(t.Database + "." + t.Name)
}

func (t *TableDescriptor) IsPartitioned() bool {
	return len(t.PartitionKeys) > 0
}

func (t *TableDescriptor) IsPartitionKey(col string) bool {
	for _, k := range t.PartitionKeys {
		if strings.EqualFold(k.Name, col) {
			return true
		}
	}
	return false
}

func (t *TableDescriptor) IsBucketed() bool {
	return t.NumBuckets > 0 && len(t.BucketCols) > 0
}

func (t *TableDescriptor) Clone() *TableDescriptor {
	if t == nil {
		return nil
	}
	c := *t
	c.Columns = append([]Column(nil), t.Columns...)
	c.PartitionKeys = append([]Column(nil), t.PartitionKeys...)
	c.BucketCols = append([]string(nil), t.BucketCols...)
	c.SortCols = append([]string(nil), t.SortCols...)
	if t.Properties != nil {
		c.Properties = make(map[string]string, len(t.Properties))
		for k, v := range t.Properties {
			c.Properties[k] = v
		}
	}
	return &c
}

// Catalog resolves table names. Implementations are safe for concurrent
// readers. Each lookup returns a descriptor owned by the caller.
type Catalog interface {
	GetTable(qualifiedName string) (*TableDescriptor, error)
}

// Store is a catalog that can also be populated.
type Store interface {
	Catalog
	PutTable(t *TableDescriptor) error
	Close() error
}

// NormalizeName resolves an optionally qualified table name to db.table in
// lower case. Unqualified names live in the default database.
func NormalizeName(name string) (string, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(name)), ".")
	switch {
	case len(parts) == 1 && parts[0] != "":
		return DefaultDatabase + "." + parts[0], nil
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return parts[0] + "." + parts[1], nil
	default:
		return "", errorx.NewCatalogLookupError(fmt.Sprintf("invalid table name %q", name))
	}
}

func notFound(name string) error {
	return errorx.NewCatalogLookupError(fmt.Sprintf("table %s not found", name))
}

func validate(t *TableDescriptor) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if t.Database == "" {
		t.Database = DefaultDatabase
	}
	return nil
}
