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

package tombstone

import (
	"context"
	"fmt"
	"reflect"

	"github.com/tomoncle/tombstone/database"
	"github.com/tomoncle/tombstone/entity"
	"github.com/tomoncle/tombstone/relation"
	"github.com/tomoncle/tombstone/repository"
	"github.com/tomoncle/tombstone/types"
	"github.com/uptrace/bun"
)

// Service is a convenience layer over the global database. Each call runs on
// a fresh repository, so a Service may be shared between goroutines; use
// Repository for request scoped change tracking.
type Service[T any, PT entity.Model[T]] interface {
	// Get returns the entity with the given primary key, or nil.
	Get(ctx context.Context, id any, opts ...repository.QueryOption) (PT, error)

	// Find returns the first entity matching opts, or nil.
	Find(ctx context.Context, opts ...repository.QueryOption) (PT, error)

	// List returns one page of entities.
	List(ctx context.Context, index, size int, opts ...repository.QueryOption) (*types.Paginate[T], error)

	// Search returns one page of entities matching a dynamic query.
	Search(ctx context.Context, dq types.DynamicQuery, index, size int, opts ...repository.QueryOption) (*types.Paginate[T], error)

	// Page returns a page described by a page request.
	Page(ctx context.Context, page *types.PageRequest, opts ...repository.QueryOption) (*types.Paginate[T], error)

	// Exists reports whether any entity matches opts.
	Exists(ctx context.Context, opts ...repository.QueryOption) (bool, error)

	// Save inserts one or more new entities in one transaction.
	Save(ctx context.Context, models ...PT) error

	// SaveOrUpdate upserts entities based on fields and conflict keys.
	SaveOrUpdate(ctx context.Context, fields []string, conflictKeys []string, models ...PT) error

	// Update writes one or more existing entities in one transaction.
	Update(ctx context.Context, models ...PT) error

	// Delete soft deletes models and their cascading dependents, or removes
	// them when hardDelete is set.
	Delete(ctx context.Context, hardDelete bool, models ...PT) error

	// Repository returns a new repository with its own tracker.
	Repository() repository.Repository[T, PT]

	// SelectBuilder returns a Bun select query builder for the entity.
	SelectBuilder() *bun.SelectQuery
}

type baseServiceImpl[T any, PT entity.Model[T]] struct {
	opts []repository.Option
}

// NewService returns a Service backed by the global database connection and
// the default relation registry. The database is looked up on every call, so
// a Service created before InitDB, or used across a reconnect, stays valid.
func NewService[T any, PT entity.Model[T]](opts ...repository.Option) Service[T, PT] {
	return &baseServiceImpl[T, PT]{opts: opts}
}

func (s *baseServiceImpl[T, PT]) session() *bun.DB {
	db := database.GetDB()
	if db == nil {
		panic("tombstone: database not initialized, call database.InitDB first")
	}
	return db
}

func (s *baseServiceImpl[T, PT]) Repository() repository.Repository[T, PT] {
	return s.repository(s.session())
}

func (s *baseServiceImpl[T, PT]) repository(db *bun.DB) repository.Repository[T, PT] {
	cfg := database.GetConfig().RepositoryConfig
	opts := append([]repository.Option{
		repository.WithRegistry(relation.Default()),
		repository.WithDefaultPageSize(cfg.DefaultPageSize),
		repository.WithQueryTimeout(cfg.QueryTimeout),
	}, s.opts...)
	return repository.NewRepository[T, PT](db, opts...)
}

func (s *baseServiceImpl[T, PT]) Get(ctx context.Context, id any, opts ...repository.QueryOption) (PT, error) {
	db := s.session()
	pks := db.Table(reflect.TypeOf((*T)(nil)).Elem()).PKs
	if len(pks) == 0 {
		return nil, fmt.Errorf("%w: %s has no primary key", repository.ErrConfiguration, entity.NameOf(entity.TypeOf[T]()))
	}
	opts = append([]repository.QueryOption{repository.Where("?TableAlias.? = ?", bun.Ident(pks[0].Name), id)}, opts...)
	return s.repository(db).Get(ctx, opts...)
}

func (s *baseServiceImpl[T, PT]) Find(ctx context.Context, opts ...repository.QueryOption) (PT, error) {
	return s.Repository().Get(ctx, opts...)
}

func (s *baseServiceImpl[T, PT]) List(ctx context.Context, index, size int, opts ...repository.QueryOption) (*types.Paginate[T], error) {
	return s.Repository().GetList(ctx, index, size, opts...)
}

func (s *baseServiceImpl[T, PT]) Search(ctx context.Context, dq types.DynamicQuery, index, size int, opts ...repository.QueryOption) (*types.Paginate[T], error) {
	return s.Repository().GetListByDynamic(ctx, dq, index, size, opts...)
}

func (s *baseServiceImpl[T, PT]) Page(ctx context.Context, page *types.PageRequest, opts ...repository.QueryOption) (*types.Paginate[T], error) {
	return s.Repository().Page(ctx, page, opts...)
}

func (s *baseServiceImpl[T, PT]) Exists(ctx context.Context, opts ...repository.QueryOption) (bool, error) {
	return s.Repository().Any(ctx, opts...)
}

func (s *baseServiceImpl[T, PT]) Save(ctx context.Context, models ...PT) error {
	return s.Repository().AddRange(ctx, models)
}

func (s *baseServiceImpl[T, PT]) SaveOrUpdate(ctx context.Context, fields []string, conflictKeys []string, models ...PT) error {
	return s.Repository().Upsert(ctx, fields, conflictKeys, models...)
}

func (s *baseServiceImpl[T, PT]) Update(ctx context.Context, models ...PT) error {
	return s.Repository().UpdateRange(ctx, models)
}

func (s *baseServiceImpl[T, PT]) Delete(ctx context.Context, hardDelete bool, models ...PT) error {
	return s.Repository().DeleteRange(ctx, models, hardDelete)
}

func (s *baseServiceImpl[T, PT]) SelectBuilder() *bun.SelectQuery {
	return s.Repository().NewSelect()
}
