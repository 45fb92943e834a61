/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"time"

	"github.com/tomoncle/tombstone/database"
	"github.com/tomoncle/tombstone/dynamic"
	"github.com/tomoncle/tombstone/relation"
	"github.com/tomoncle/tombstone/types"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace"
)

// QueryOption customizes a read operation.
type QueryOption func(*queryOptions)

type include struct {
	name  string
	apply []func(*bun.SelectQuery) *bun.SelectQuery
}

type queryOptions struct {
	tracking    bool
	withDeleted bool
	includes    []include
	predicates  []dynamic.Modifier
	orders      []dynamic.Modifier
}

func newQueryOptions(opts []QueryOption) *queryOptions {
	o := &queryOptions{tracking: true}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Tracking controls whether returned entities are attached to the repository
// tracker. Tracking is on by default.
func Tracking(enabled bool) QueryOption {
	return func(o *queryOptions) { o.tracking = enabled }
}

func NoTracking() QueryOption { return Tracking(false) }

// WithDeleted lifts the soft delete filter for the query and its includes.
func WithDeleted() QueryOption {
	return func(o *queryOptions) { o.withDeleted = true }
}

// Include eager loads Bun relations by name, e.g. "Posts" or "Posts.Comments".
func Include(names ...string) QueryOption {
	return func(o *queryOptions) {
		for _, name := range names {
			o.includes = append(o.includes, include{name: name})
		}
	}
}

// IncludeFunc eager loads one relation and customizes its query.
func IncludeFunc(name string, apply ...func(*bun.SelectQuery) *bun.SelectQuery) QueryOption {
	return func(o *queryOptions) {
		o.includes = append(o.includes, include{name: name, apply: apply})
	}
}

// Where adds a predicate. Use ?TableAlias to qualify columns of the root model.
func Where(query string, args ...interface{}) QueryOption {
	return Predicate(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where(query, args...)
	})
}

// Filter adds the predicate held by f. A nil filter is ignored.
func Filter(f *types.QueryFilter) QueryOption {
	if f == nil || f.Schema == "" {
		return nil
	}
	return Where(f.Schema, f.Args...)
}

// Predicate adds an arbitrary predicate modifier.
func Predicate(m dynamic.Modifier) QueryOption {
	return func(o *queryOptions) {
		if m != nil {
			o.predicates = append(o.predicates, m)
		}
	}
}

// OrderBy orders by column expressions such as "title DESC".
func OrderBy(orders ...string) QueryOption {
	if len(orders) == 0 {
		return nil
	}
	return OrderFunc(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Order(orders...)
	})
}

func OrderFunc(m dynamic.Modifier) QueryOption {
	return func(o *queryOptions) {
		if m != nil {
			o.orders = append(o.orders, m)
		}
	}
}

// Option configures a repository.
type Option func(*settings)

type settings struct {
	logger       database.Logger
	registry     *relation.Registry
	clock        func() time.Time
	tracer       trace.Tracer
	pageSize     int
	queryTimeout time.Duration
}

func WithLogger(logger database.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry sets the relation registry used for cascades. The default is
// relation.Default().
func WithRegistry(registry *relation.Registry) Option {
	return func(s *settings) {
		if registry != nil {
			s.registry = registry
		}
	}
}

// WithClock sets the time source for timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *settings) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithDefaultPageSize sets the size used when a page size below 1 is requested.
func WithDefaultPageSize(size int) Option {
	return func(s *settings) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithQueryTimeout bounds every store call made by one operation.
func WithQueryTimeout(timeout time.Duration) Option {
	return func(s *settings) { s.queryTimeout = timeout }
}
