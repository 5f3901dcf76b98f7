/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/neoproj/robo32/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type priorSuccess struct {
	JobID int64
	NewID int64
}

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client)
}

func TestSetAndGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "prior-success:1001", priorSuccess{JobID: 3, NewID: 9001}, 10*time.Minute))

	var got priorSuccess
	found, err := c.Get(ctx, "prior-success:1001", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, priorSuccess{JobID: 3, NewID: 9001}, got)
}

func TestGetMiss(t *testing.T) {
	c := newTestCache(t)

	var got priorSuccess
	found, err := c.Get(context.Background(), "nonExistentKey", &got)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, got)
}

func TestDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))

	var got string
	found, err := c.Get(ctx, "k", &got)
	assert.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, c.Delete(ctx, "never-set"))
}

func TestNewCache_RequiresRedis(t *testing.T) {
	config.MockConfig(&config.Configuration{})
	c, err := NewCache()
	assert.Error(t, err)
	assert.Nil(t, c)
}
