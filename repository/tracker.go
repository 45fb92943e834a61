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
	"reflect"

	"github.com/tomoncle/tombstone/entity"
	"github.com/tomoncle/tombstone/relation"
)

// tracker is an identity map of the records a repository has read or written.
// Records loaded during a cascade are resolved through it, so marks made on a
// dependent are visible on the instance the caller already holds. It is not
// safe for concurrent use.
type tracker struct {
	entries map[entity.Identity]entity.Record
}

func newTracker() *tracker {
	return &tracker{entries: make(map[entity.Identity]entity.Record)}
}

// attach registers rec, replacing any instance tracked under the same identity.
func (t *tracker) attach(rec entity.Record) {
	t.entries[entity.IdentityOf(rec)] = rec
}

// attachGraph attaches rec and every dependent reachable through loaded
// navigations of the registry.
func (t *tracker) attachGraph(registry *relation.Registry, rec entity.Record) {
	seen := make(map[entity.Identity]struct{})
	var walk func(entity.Record)
	walk = func(r entity.Record) {
		id := entity.IdentityOf(r)
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		t.entries[id] = r
		for _, d := range registry.DependentsOf(reflect.TypeOf(r)) {
			if d.Navigate == nil {
				continue
			}
			items, loaded := d.Navigate(r)
			if !loaded {
				continue
			}
			for _, item := range items {
				walk(item)
			}
		}
	}
	walk(rec)
}

// resolve returns the tracked instance with rec's identity, attaching rec when
// none is tracked.
func (t *tracker) resolve(rec entity.Record) entity.Record {
	id := entity.IdentityOf(rec)
	if tracked, ok := t.entries[id]; ok {
		return tracked
	}
	t.entries[id] = rec
	return rec
}

func (t *tracker) detach(rec entity.Record) {
	id := entity.IdentityOf(rec)
	if tracked, ok := t.entries[id]; ok && tracked == rec {
		delete(t.entries, id)
	}
}

func (t *tracker) tracked(rec entity.Record) bool {
	tracked, ok := t.entries[entity.IdentityOf(rec)]
	return ok && tracked == rec
}

func (t *tracker) clear() {
	t.entries = make(map[entity.Identity]entity.Record)
}
