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
	"time"

	"github.com/google/uuid"
	"github.com/tomoncle/tombstone/entity"
	"github.com/uptrace/bun"
)

type change struct {
	record   entity.Record
	hard     bool
	previous time.Time
}

// changeSet accumulates the deletes of one operation and writes them in a
// single transaction.
type changeSet struct {
	id      uuid.UUID
	changes []change
	roots   map[entity.Identity]struct{}
}

func newChangeSet() *changeSet {
	return &changeSet{id: uuid.New(), roots: make(map[entity.Identity]struct{})}
}

// addRoot records rec as a target of the delete rather than a dependent
// reached by the cascade.
func (cs *changeSet) addRoot(rec entity.Record) {
	cs.roots[entity.IdentityOf(rec)] = struct{}{}
}

func (cs *changeSet) isRoot(rec entity.Record) bool {
	_, ok := cs.roots[entity.IdentityOf(rec)]
	return ok
}

// markDeleted stamps rec as soft deleted in memory and queues the write.
func (cs *changeSet) markDeleted(rec entity.Record, now time.Time) {
	cs.changes = append(cs.changes, change{record: rec, previous: rec.GetDeletedDate()})
	rec.SetDeletedDate(now)
}

// remove queues a physical delete of rec.
func (cs *changeSet) remove(rec entity.Record) {
	cs.changes = append(cs.changes, change{record: rec, hard: true, previous: rec.GetDeletedDate()})
}

func (cs *changeSet) len() int { return len(cs.changes) }

// revert restores the in-memory deletion timestamps changed by markDeleted.
func (cs *changeSet) revert() {
	for i := len(cs.changes) - 1; i >= 0; i-- {
		c := cs.changes[i]
		if !c.hard {
			c.record.SetDeletedDate(c.previous)
		}
	}
}

// flush writes every queued change atomically. Soft deletes only write the
// deletion column; physical deletes fail with ErrNotFound when the row is gone.
func (cs *changeSet) flush(ctx context.Context, db bun.IDB) error {
	if len(cs.changes) == 0 {
		return nil
	}
	return runInTx(ctx, db, func(ctx context.Context, tx bun.IDB) error {
		for _, c := range cs.changes {
			if c.hard {
				res, err := tx.NewDelete().
					Model(c.record).
					WherePK().
					WhereAllWithDeleted().
					ForceDelete().
					Exec(ctx)
				if err != nil {
					return fmt.Errorf("delete %s: %w", entity.IdentityOf(c.record), err)
				}
				if n, err := res.RowsAffected(); err == nil && n == 0 {
					return fmt.Errorf("delete %s: %w", entity.IdentityOf(c.record), ErrNotFound)
				}
				continue
			}
			res, err := tx.NewUpdate().
				Model(c.record).
				Column("deleted_date").
				WherePK().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("soft delete %s: %w", entity.IdentityOf(c.record), err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				if err := cs.settle(ctx, tx, c); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// settle handles a soft delete that matched no live row. The stored deletion
// timestamp of a row deleted elsewhere is loaded into the record. A missing
// root fails with ErrNotFound; a missing dependent keeps its previous value.
func (cs *changeSet) settle(ctx context.Context, tx bun.IDB, c change) error {
	err := tx.NewSelect().
		Model(c.record).
		Column("deleted_date").
		WherePK().
		WhereAllWithDeleted().
		Scan(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		if cs.isRoot(c.record) {
			return fmt.Errorf("soft delete %s: %w", entity.IdentityOf(c.record), ErrNotFound)
		}
		c.record.SetDeletedDate(c.previous)
		return nil
	default:
		return fmt.Errorf("soft delete %s: %w", entity.IdentityOf(c.record), err)
	}
}

// runInTx runs fn in a new transaction on a *bun.DB, or directly on db when it
// is already a transaction.
func runInTx(ctx context.Context, db bun.IDB, fn func(ctx context.Context, tx bun.IDB) error) error {
	if d, ok := db.(*bun.DB); ok {
		return d.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return fn(ctx, tx)
		})
	}
	return fn(ctx, db)
}
