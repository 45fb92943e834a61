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
	"fmt"
	"reflect"
	"time"

	"github.com/tomoncle/tombstone/database"
	"github.com/tomoncle/tombstone/entity"
	"github.com/tomoncle/tombstone/relation"
	"github.com/uptrace/bun"
)

// cascader walks the relation graph from the roots of one delete operation and
// marks every cascade reachable dependent as soft deleted. One cascader, and
// therefore one visited set, is shared by all roots of the operation.
type cascader struct {
	registry *relation.Registry
	db       bun.IDB
	tracker  *tracker
	changes  *changeSet
	logger   database.Logger
	now      time.Time
	visited  map[entity.Identity]struct{}
}

func newCascader(registry *relation.Registry, db bun.IDB, t *tracker, cs *changeSet, logger database.Logger, now time.Time) *cascader {
	if logger == nil {
		logger = database.NopLogger{}
	}
	return &cascader{
		registry: registry,
		db:       db,
		tracker:  t,
		changes:  cs,
		logger:   logger,
		now:      now,
		visited:  make(map[entity.Identity]struct{}),
	}
}

// guard rejects a soft delete of root when root is either end of a required
// one-to-one edge whose deletion cascades. Only the root is checked.
func (c *cascader) guard(root entity.Record) error {
	for _, d := range c.registry.EdgesOf(reflect.TypeOf(root)) {
		if d.GuardsSoftDelete() {
			return fmt.Errorf("%w: %s has the required one-to-one relation %s and must be hard deleted",
				ErrInvalidOperation, entity.IdentityOf(root), d)
		}
	}
	return nil
}

func (c *cascader) softDelete(ctx context.Context, rec entity.Record) error {
	id := entity.IdentityOf(rec)
	if _, ok := c.visited[id]; ok {
		return nil
	}
	c.visited[id] = struct{}{}

	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.IsDeleted() {
		return nil
	}
	c.changes.markDeleted(rec, c.now)

	for _, d := range c.registry.DependentsOf(reflect.TypeOf(rec)) {
		if !d.Cascades() {
			continue
		}
		dependents, err := c.dependents(ctx, d, rec)
		if err != nil {
			return err
		}
		c.logger.Debug("Cascading soft delete", "relation", d.String(), "principal", id, "dependents", len(dependents))
		for _, dep := range dependents {
			if err := c.softDelete(ctx, dep); err != nil {
				return err
			}
		}
	}
	return nil
}

// dependents returns the loaded navigation of d, or loads it from the store
// including soft deleted rows. Loaded rows are resolved through the tracker.
func (c *cascader) dependents(ctx context.Context, d *relation.Descriptor, principal entity.Record) ([]entity.Record, error) {
	if items, loaded := d.Navigate(principal); loaded {
		return items, nil
	}
	if d.Load == nil {
		return nil, fmt.Errorf("%w: %s is not loaded and has no loader", relation.ErrConfiguration, d)
	}
	items, err := d.Load(ctx, c.db, principal)
	if err != nil {
		return nil, err
	}
	for i, item := range items {
		items[i] = c.tracker.resolve(item)
	}
	return items, nil
}
