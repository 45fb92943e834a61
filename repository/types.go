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
	"context"

	"github.com/tomoncle/tombstone/entity"
	"github.com/tomoncle/tombstone/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// CommandRepository persists changes. Every call writes immediately.
type CommandRepository[T any, PT entity.Model[T]] interface {
	// Add inserts e and sets its CreatedDate.
	Add(ctx context.Context, e PT) error

	// AddRange inserts all entities in one transaction.
	AddRange(ctx context.Context, es []PT) error

	// Update writes e and sets its UpdatedDate. CreatedDate and DeletedDate
	// are never written. A missing or soft deleted row yields ErrNotFound.
	Update(ctx context.Context, e PT) error

	UpdateRange(ctx context.Context, es []PT) error

	// Upsert inserts entities, updating fields on a conflict of conflictKeys
	// (the primary key when empty).
	Upsert(ctx context.Context, fields []string, conflictKeys []string, es ...PT) error

	// Delete soft deletes e and its cascade reachable dependents, or removes
	// the row when hardDelete is set.
	Delete(ctx context.Context, e PT, hardDelete bool) error

	// DeleteRange deletes all entities as one change set.
	DeleteRange(ctx context.Context, es []PT, hardDelete bool) error
}

// QueryRepository reads entities. Soft deleted rows are excluded unless
// WithDeleted is given.
type QueryRepository[T any, PT entity.Model[T]] interface {
	// Get returns the first match, or nil without an error when nothing matches.
	Get(ctx context.Context, opts ...QueryOption) (PT, error)

	GetList(ctx context.Context, index, size int, opts ...QueryOption) (*types.Paginate[T], error)

	// GetListByDynamic compiles dq into a predicate and ordering, then lists
	// like GetList. Malformed queries fail with ErrMalformedFilter.
	GetListByDynamic(ctx context.Context, dq types.DynamicQuery, index, size int, opts ...QueryOption) (*types.Paginate[T], error)

	// Page lists using the filter and orders of a page request.
	Page(ctx context.Context, page *types.PageRequest, opts ...QueryOption) (*types.Paginate[T], error)

	Any(ctx context.Context, opts ...QueryOption) (bool, error)

	Count(ctx context.Context, opts ...QueryOption) (int, error)
}

// Repository combines reads, writes and change tracking, and exposes Bun
// query builders for advanced use cases.
type Repository[T any, PT entity.Model[T]] interface {
	CommandRepository[T, PT]
	QueryRepository[T, PT]

	// WithTx returns a repository running every statement in tx. It shares
	// the tracker of the receiver.
	WithTx(tx bun.Tx) Repository[T, PT]

	// Tracked reports whether e is the instance tracked for its identity.
	Tracked(e PT) bool

	// Detach stops tracking e.
	Detach(e PT)

	// ClearTracker forgets every tracked instance.
	ClearTracker()

	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
	NewInsert() *bun.InsertQuery
	NewUpdate() *bun.UpdateQuery
	NewDelete() *bun.DeleteQuery
}
