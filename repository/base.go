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
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/tomoncle/tombstone/database"
	"github.com/tomoncle/tombstone/dynamic"
	"github.com/tomoncle/tombstone/entity"
	"github.com/tomoncle/tombstone/relation"
	"github.com/tomoncle/tombstone/types"
	"github.com/tomoncle/tombstone/validation"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tomoncle/tombstone/repository"

type baseRepositoryImpl[T any, PT entity.Model[T]] struct {
	settings
	db      *bun.DB
	conn    bun.IDB
	table   *schema.Table
	name    string
	tracker *tracker
}

// NewRepository returns a generic repository for model T backed by db:
//
//	posts := repository.NewRepository[Post](db)
func NewRepository[T any, PT entity.Model[T]](db *bun.DB, opts ...Option) Repository[T, PT] {
	s := settings{
		logger:   database.GetLogger(),
		registry: relation.Default(),
		clock:    time.Now,
		tracer:   otel.Tracer(tracerName),
		pageSize: types.DefaultPageSize,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &baseRepositoryImpl[T, PT]{
		settings: s,
		db:       db,
		conn:     db,
		table:    db.Table(reflect.TypeOf((*T)(nil)).Elem()),
		name:     entity.NameOf(entity.TypeOf[T]()),
		tracker:  newTracker(),
	}
}

func (r *baseRepositoryImpl[T, PT]) Dialect() schema.Dialect { return r.db.Dialect() }

func (r *baseRepositoryImpl[T, PT]) NewSelect() *bun.SelectQuery { return r.conn.NewSelect() }

func (r *baseRepositoryImpl[T, PT]) NewInsert() *bun.InsertQuery { return r.conn.NewInsert() }

func (r *baseRepositoryImpl[T, PT]) NewUpdate() *bun.UpdateQuery { return r.conn.NewUpdate() }

func (r *baseRepositoryImpl[T, PT]) NewDelete() *bun.DeleteQuery { return r.conn.NewDelete() }

func (r *baseRepositoryImpl[T, PT]) WithTx(tx bun.Tx) Repository[T, PT] {
	c := *r
	c.conn = tx
	return &c
}

func (r *baseRepositoryImpl[T, PT]) Tracked(e PT) bool {
	return !isNil[T](e) && r.tracker.tracked(e)
}

func (r *baseRepositoryImpl[T, PT]) Detach(e PT) {
	if !isNil[T](e) {
		r.tracker.detach(e)
	}
}

func (r *baseRepositoryImpl[T, PT]) ClearTracker() { r.tracker.clear() }

func (r *baseRepositoryImpl[T, PT]) now() time.Time { return r.clock().UTC() }

// begin starts the span of one operation and applies the query timeout. The
// returned func ends both and records err on the span.
func (r *baseRepositoryImpl[T, PT]) begin(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := r.tracer.Start(ctx, "repository."+op, trace.WithAttributes(
		attribute.String("tombstone.entity", r.name),
	))
	cancel := context.CancelFunc(func() {})
	if r.queryTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.queryTimeout)
	}
	return ctx, func(err error) {
		cancel()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func (r *baseRepositoryImpl[T, PT]) builder(o *queryOptions) QueryBuilder {
	return func(model interface{}) *bun.SelectQuery {
		return o.compose(r.conn.NewSelect().Model(model))
	}
}

func (r *baseRepositoryImpl[T, PT]) track(o *queryOptions, e PT) {
	if o.tracking {
		r.tracker.attachGraph(r.registry, e)
	}
}

func (r *baseRepositoryImpl[T, PT]) orderByPK(q *bun.SelectQuery) *bun.SelectQuery {
	for _, pk := range r.table.PKs {
		q = q.OrderExpr("?TableAlias.? ASC", bun.Ident(pk.Name))
	}
	return q
}

func (r *baseRepositoryImpl[T, PT]) Get(ctx context.Context, opts ...QueryOption) (_ PT, err error) {
	ctx, end := r.begin(ctx, "Get")
	defer func() { end(err) }()

	o := newQueryOptions(opts)
	e := PT(new(T))
	if err := r.builder(o)(e).Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, database.WrapError("get "+r.name, err)
	}
	r.track(o, e)
	return e, nil
}

func (r *baseRepositoryImpl[T, PT]) GetList(ctx context.Context, index, size int, opts ...QueryOption) (_ *types.Paginate[T], err error) {
	ctx, end := r.begin(ctx, "GetList")
	defer func() { end(err) }()

	return r.list(ctx, newQueryOptions(opts), index, size)
}

func (r *baseRepositoryImpl[T, PT]) GetListByDynamic(ctx context.Context, dq types.DynamicQuery, index, size int, opts ...QueryOption) (_ *types.Paginate[T], err error) {
	ctx, end := r.begin(ctx, "GetListByDynamic")
	defer func() { end(err) }()

	compiled, err := dynamic.Compile(r.table, dq)
	if err != nil {
		return nil, err
	}
	o := newQueryOptions(opts)
	if compiled.Where != nil {
		o.predicates = append(o.predicates, compiled.Where)
	}
	if compiled.Order != nil {
		o.orders = append(o.orders, compiled.Order)
	}
	return r.list(ctx, o, index, size)
}

func (r *baseRepositoryImpl[T, PT]) Page(ctx context.Context, page *types.PageRequest, opts ...QueryOption) (*types.Paginate[T], error) {
	if page == nil {
		page = types.NewDefaultPageRequest(0, r.pageSize)
	}
	opts = append([]QueryOption{Filter(page.GetFilter()), OrderBy(page.GetOrders()...)}, opts...)
	return r.GetList(ctx, page.GetIndex(), page.GetSize(), opts...)
}

func (r *baseRepositoryImpl[T, PT]) list(ctx context.Context, o *queryOptions, index, size int) (*types.Paginate[T], error) {
	if size < 1 {
		size = r.pageSize
	}
	if len(o.orders) == 0 {
		o.orders = append(o.orders, r.orderByPK)
	}
	page, err := Paginate[T](ctx, r.builder(o), index, size)
	if err != nil {
		return nil, database.WrapError("list "+r.name, err)
	}
	if o.tracking {
		for _, item := range page.Items {
			r.tracker.attachGraph(r.registry, PT(item))
		}
	}
	return page, nil
}

func (r *baseRepositoryImpl[T, PT]) Any(ctx context.Context, opts ...QueryOption) (_ bool, err error) {
	ctx, end := r.begin(ctx, "Any")
	defer func() { end(err) }()

	exists, err := r.builder(newQueryOptions(opts))((*T)(nil)).Exists(ctx)
	if err != nil {
		return false, database.WrapError("any "+r.name, err)
	}
	return exists, nil
}

func (r *baseRepositoryImpl[T, PT]) Count(ctx context.Context, opts ...QueryOption) (_ int, err error) {
	ctx, end := r.begin(ctx, "Count")
	defer func() { end(err) }()

	count, err := r.builder(newQueryOptions(opts))((*T)(nil)).Count(ctx)
	if err != nil {
		return 0, database.WrapError("count "+r.name, err)
	}
	return count, nil
}

func (r *baseRepositoryImpl[T, PT]) Add(ctx context.Context, e PT) (err error) {
	ctx, end := r.begin(ctx, "Add")
	defer func() { end(err) }()

	if err := r.check(e); err != nil {
		return err
	}
	previous := e.GetCreatedDate()
	e.SetCreatedDate(r.now())
	if _, err := r.conn.NewInsert().Model(e).Exec(ctx); err != nil {
		e.SetCreatedDate(previous)
		return database.WrapError("add "+r.name, err)
	}
	r.tracker.attach(e)
	return nil
}

func (r *baseRepositoryImpl[T, PT]) AddRange(ctx context.Context, es []PT) (err error) {
	ctx, end := r.begin(ctx, "AddRange")
	defer func() { end(err) }()

	if len(es) == 0 {
		return nil
	}
	for _, e := range es {
		if err := r.check(e); err != nil {
			return err
		}
	}
	now := r.now()
	previous := make([]time.Time, len(es))
	for i, e := range es {
		previous[i] = e.GetCreatedDate()
		e.SetCreatedDate(now)
	}
	err = runInTx(ctx, r.conn, func(ctx context.Context, tx bun.IDB) error {
		_, err := tx.NewInsert().Model(&es).Exec(ctx)
		return err
	})
	if err != nil {
		for i, e := range es {
			e.SetCreatedDate(previous[i])
		}
		return database.WrapError("add "+r.name, err)
	}
	for _, e := range es {
		r.tracker.attach(e)
	}
	return nil
}

func (r *baseRepositoryImpl[T, PT]) Update(ctx context.Context, e PT) (err error) {
	ctx, end := r.begin(ctx, "Update")
	defer func() { end(err) }()

	if err := r.check(e); err != nil {
		return err
	}
	previous := e.GetUpdatedDate()
	e.SetUpdatedDate(r.now())
	if err := r.update(ctx, r.conn, e); err != nil {
		e.SetUpdatedDate(previous)
		return err
	}
	r.tracker.attach(e)
	return nil
}

func (r *baseRepositoryImpl[T, PT]) UpdateRange(ctx context.Context, es []PT) (err error) {
	ctx, end := r.begin(ctx, "UpdateRange")
	defer func() { end(err) }()

	for _, e := range es {
		if err := r.check(e); err != nil {
			return err
		}
	}
	now := r.now()
	previous := make([]time.Time, len(es))
	for i, e := range es {
		previous[i] = e.GetUpdatedDate()
		e.SetUpdatedDate(now)
	}
	err = runInTx(ctx, r.conn, func(ctx context.Context, tx bun.IDB) error {
		for _, e := range es {
			if err := r.update(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for i, e := range es {
			e.SetUpdatedDate(previous[i])
		}
		return err
	}
	for _, e := range es {
		r.tracker.attach(e)
	}
	return nil
}

func (r *baseRepositoryImpl[T, PT]) update(ctx context.Context, db bun.IDB, e PT) error {
	res, err := db.NewUpdate().
		Model(e).
		ExcludeColumn("created_date", "deleted_date").
		WherePK().
		Exec(ctx)
	if err != nil {
		return database.WrapError("update "+r.name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update %s: %w", entity.IdentityOf(e), ErrNotFound)
	}
	return nil
}

func (r *baseRepositoryImpl[T, PT]) Delete(ctx context.Context, e PT, hardDelete bool) (err error) {
	ctx, end := r.begin(ctx, "Delete")
	defer func() { end(err) }()

	return r.delete(ctx, []PT{e}, hardDelete)
}

func (r *baseRepositoryImpl[T, PT]) DeleteRange(ctx context.Context, es []PT, hardDelete bool) (err error) {
	ctx, end := r.begin(ctx, "DeleteRange")
	defer func() { end(err) }()

	return r.delete(ctx, es, hardDelete)
}

// delete builds one change set for all roots and flushes it atomically. Any
// failure restores the in-memory deletion timestamps of every touched entity.
func (r *baseRepositoryImpl[T, PT]) delete(ctx context.Context, es []PT, hardDelete bool) error {
	for _, e := range es {
		if isNil[T](e) {
			return fmt.Errorf("%w: nil %s", ErrInvalidOperation, r.name)
		}
	}
	cs := newChangeSet()
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("tombstone.changeset", cs.id.String()),
		attribute.Bool("tombstone.hard_delete", hardDelete),
	)

	if hardDelete {
		for _, e := range es {
			cs.remove(e)
		}
	} else {
		c := newCascader(r.registry, r.conn, r.tracker, cs, r.logger, r.now())
		for _, e := range es {
			if err := c.guard(e); err != nil {
				return err
			}
		}
		for _, e := range es {
			cs.addRoot(e)
			if err := c.softDelete(ctx, e); err != nil {
				cs.revert()
				r.logger.Warn("Soft delete aborted", "entity", r.name, "changeset", cs.id, "error", err)
				return fmt.Errorf("delete %s: %w", r.name, err)
			}
		}
	}

	if err := cs.flush(ctx, r.conn); err != nil {
		cs.revert()
		r.logger.Warn("Delete rolled back", "entity", r.name, "changeset", cs.id, "error", err)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("delete %s: %w", r.name, err)
		}
		return database.WrapError("delete "+r.name, err)
	}
	if hardDelete {
		for _, e := range es {
			r.tracker.detach(e)
		}
	}
	r.logger.Debug("Delete flushed", "entity", r.name, "changeset", cs.id, "changes", cs.len(), "hard", hardDelete)
	return nil
}

func (r *baseRepositoryImpl[T, PT]) Upsert(ctx context.Context, fields []string, conflictKeys []string, es ...PT) (err error) {
	ctx, end := r.begin(ctx, "Upsert")
	defer func() { end(err) }()

	fields = upsertColumns(fields)
	if len(fields) == 0 {
		return fmt.Errorf("fields cannot be empty")
	}
	if len(es) == 0 {
		return nil
	}
	now := r.now()
	for _, e := range es {
		if err := r.check(e); err != nil {
			return err
		}
		if e.GetCreatedDate().IsZero() {
			e.SetCreatedDate(now)
		}
		e.SetUpdatedDate(now)
	}

	switch {
	case r.db.HasFeature(feature.InsertOnConflict):
		err = r.upsertOnConflict(ctx, fields, conflictKeys, es)
	case r.db.HasFeature(feature.InsertOnDuplicateKey):
		err = r.upsertOnDuplicateKey(ctx, fields, es)
	default:
		err = r.upsertFallback(ctx, es)
	}
	if err != nil {
		return database.WrapError("upsert "+r.name, err)
	}
	return nil
}

// upsertColumns drops the lifecycle columns an upsert must never overwrite.
func upsertColumns(fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.EqualFold(f, "created_date") || strings.EqualFold(f, "deleted_date") {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (r *baseRepositoryImpl[T, PT]) upsertOnConflict(ctx context.Context, fields []string, conflictKeys []string, es []PT) error {
	if len(conflictKeys) == 0 {
		for _, pk := range r.table.PKs {
			conflictKeys = append(conflictKeys, pk.Name)
		}
	}
	q := r.conn.NewInsert().
		Model(&es).
		On("CONFLICT (" + strings.Join(conflictKeys, ",") + ") DO UPDATE")
	for _, field := range fields {
		q = q.Set("? = EXCLUDED.?", bun.Ident(field), bun.Ident(field))
	}
	_, err := q.Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T, PT]) upsertOnDuplicateKey(ctx context.Context, fields []string, es []PT) error {
	q := r.conn.NewInsert().
		Model(&es).
		On("DUPLICATE KEY UPDATE")
	for _, field := range fields {
		q = q.Set("? = VALUES(?)", bun.Ident(field), bun.Ident(field))
	}
	_, err := q.Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T, PT]) upsertFallback(ctx context.Context, es []PT) error {
	return runInTx(ctx, r.conn, func(ctx context.Context, tx bun.IDB) error {
		for _, e := range es {
			if _, err := tx.NewInsert().Model(e).Exec(ctx); err != nil {
				if _, updateErr := tx.NewUpdate().Model(e).ExcludeColumn("created_date", "deleted_date").WherePK().Exec(ctx); updateErr != nil {
					return fmt.Errorf("upsert failed for entity: insert error: %v, update error: %w", err, updateErr)
				}
			}
		}
		return nil
	})
}

// check rejects nil entities and runs Validate when the model implements it.
// Validation errors are returned unchanged.
func (r *baseRepositoryImpl[T, PT]) check(e PT) error {
	if isNil[T](e) {
		return fmt.Errorf("%w: nil %s", ErrInvalidOperation, r.name)
	}
	if v, ok := any(e).(validation.Validatable); ok {
		return v.Validate()
	}
	return nil
}

func isNil[T any, PT entity.Model[T]](e PT) bool {
	return (*T)(e) == nil
}
