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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lf-edge/planopt/pkg/errorx"
)

const redisKeyPrefix = "CATALOG:TABLE"

type Redis struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedis wraps a connected client. A zero timeout means one second per call.
func NewRedis(client *redis.Client, timeout time.Duration) *Redis {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Redis{client: client, timeout: timeout}
}

func NewRedisFromAddr(addr, password string, db int, timeout time.Duration) *Redis {
	return NewRedis(redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: timeout,
	}), timeout)
}

func (r *Redis) key(qn string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, qn)
}

func (r *Redis) GetTable(name string) (*TableDescriptor, error) {
	qn, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	b, err := r.client.Get(ctx, r.key(qn)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(qn)
		}
		return nil, errorx.NewCatalogLookupError(fmt.Sprintf("read table %s: %v", qn, err))
	}
	t, err := decode(b)
	if err != nil {
		return nil, errorx.NewCatalogLookupError(fmt.Sprintf("decode table %s: %v", qn, err))
	}
	return t, nil
}

func (r *Redis) PutTable(t *TableDescriptor) error {
	if err := validate(t); err != nil {
		return err
	}
	b, err := encode(t)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.client.Set(ctx, r.key(t.QualifiedName()), b, 0).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
