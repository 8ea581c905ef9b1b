// Copyright 2025 Tom Barlow
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

// Package cache provides a single-value TTL cache for upstream snapshots
// such as the capability catalog and the default LLM configuration.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc loads a fresh value.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Status describes the cached value.
type Status struct {
	Valid     bool          `json:"is_valid"`
	HasValue  bool          `json:"has_value"`
	Age       time.Duration `json:"age"`
	TTL       time.Duration `json:"ttl"`
	FetchedAt time.Time     `json:"fetched_at,omitempty"`
}

type options struct {
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a TTL cache.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// TTL caches one value for a fixed duration. Concurrent misses share a
// single fetch. When a fetch fails and an expired value is held, the
// expired value is served. It is safe for concurrent use.
type TTL[T any] struct {
	name   string
	ttl    time.Duration
	fetch  FetchFunc[T]
	logger *slog.Logger
	now    func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	value     T
	has       bool
	fetchedAt time.Time
}

// New creates a cache named name. The name appears in logs.
func New[T any](name string, ttl time.Duration, fetch FetchFunc[T], opts ...Option) *TTL[T] {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTL[T]{
		name:   name,
		ttl:    ttl,
		fetch:  fetch,
		logger: o.logger.With(slog.String("component", "cache"), slog.String("cache", name)),
		now:    o.now,
	}
}

// Get returns the cached value while it is younger than the TTL and
// fetches otherwise.
func (c *TTL[T]) Get(ctx context.Context) (T, error) {
	c.mu.RLock()
	if c.has && c.now().Sub(c.fetchedAt) < c.ttl {
		v := c.value
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	v, err := c.load(ctx)
	if err == nil {
		return v, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.has {
		c.logger.Warn("serving stale value after fetch failure",
			"age", c.now().Sub(c.fetchedAt).Round(time.Second), "error", err)
		return c.value, nil
	}
	var zero T
	return zero, err
}

// Refresh fetches a fresh value regardless of age. On failure the previous
// value is kept and the error returned.
func (c *TTL[T]) Refresh(ctx context.Context) (T, error) {
	return c.load(ctx)
}

// Invalidate drops the cached value.
func (c *TTL[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value, c.has, c.fetchedAt = zero, false, time.Time{}
	c.logger.Info("cache invalidated")
}

// Peek returns the cached value without fetching, even when expired.
func (c *TTL[T]) Peek() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.has
}

// Status reports the state of the cached value.
func (c *TTL[T]) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Status{HasValue: c.has, TTL: c.ttl}
	if c.has {
		s.FetchedAt = c.fetchedAt
		s.Age = c.now().Sub(c.fetchedAt)
		s.Valid = s.Age < c.ttl
	}
	return s
}

// load runs one shared fetch. The fetch is detached from the caller's
// cancellation; each caller stops waiting when its own context is done.
func (c *TTL[T]) load(ctx context.Context) (T, error) {
	ch := c.group.DoChan(c.name, func() (any, error) {
		start := c.now()
		v, err := c.fetch(context.WithoutCancel(ctx))
		if err != nil {
			c.logger.Error("fetch failed", "error", err)
			return nil, err
		}
		c.mu.Lock()
		c.value, c.has, c.fetchedAt = v, true, c.now()
		c.mu.Unlock()
		c.logger.Debug("fetched", "duration", c.now().Sub(start))
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
