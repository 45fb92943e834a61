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

	"github.com/tomoncle/tombstone/types"
	"github.com/uptrace/bun"
)

// compose layers the options onto q in a fixed order: tracking, deletion
// scope, includes, predicates, ordering. Includes share the deletion scope of
// the root query. Tracking has no SQL effect; it is applied to the results.
func (o *queryOptions) compose(q *bun.SelectQuery) *bun.SelectQuery {
	if o.withDeleted {
		q = q.WhereAllWithDeleted()
	}
	for _, inc := range o.includes {
		apply := inc.apply
		if o.withDeleted {
			apply = append([]func(*bun.SelectQuery) *bun.SelectQuery{allWithDeleted}, apply...)
		}
		q = q.Relation(inc.name, apply...)
	}
	for _, predicate := range o.predicates {
		q = predicate(q)
	}
	for _, order := range o.orders {
		q = order(q)
	}
	return q
}

func allWithDeleted(q *bun.SelectQuery) *bun.SelectQuery {
	return q.WhereAllWithDeleted()
}

// QueryBuilder returns a fresh query over model with all filters applied.
type QueryBuilder func(model interface{}) *bun.SelectQuery

// Paginate counts the rows matched by build and fetches the page at index.
// The count and the fetch are two queries built from the same definition, so
// Count reflects the whole match set. index < 0 is treated as 0 and size < 1
// as types.DefaultPageSize.
func Paginate[T any](ctx context.Context, build QueryBuilder, index, size int) (*types.Paginate[T], error) {
	if index < 0 {
		index = 0
	}
	if size < 1 {
		size = types.DefaultPageSize
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	count, err := build((*T)(nil)).Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return types.NewPaginate[T](index, size, 0, nil), nil
	}

	items := make([]*T, 0, size)
	err = build(&items).
		Offset(index * size).
		Limit(size).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return types.NewPaginate(index, size, count, items), nil
}
