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

package relation

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/tomoncle/tombstone/database"
	"github.com/uptrace/bun"
)

// ErrConfiguration reports a relationship graph that cannot be traversed.
var ErrConfiguration = errors.New("tombstone: relation configuration error")

var defaultRegistry = NewRegistry()

// Registry indexes descriptors by principal and dependent type.
type Registry struct {
	mu          sync.RWMutex
	descriptors []*Descriptor
	byPrincipal map[reflect.Type][]*Descriptor
	byDependent map[reflect.Type][]*Descriptor
}

// NewRegistry returns a registry holding ds.
func NewRegistry(ds ...*Descriptor) *Registry {
	r := &Registry{
		byPrincipal: make(map[reflect.Type][]*Descriptor),
		byDependent: make(map[reflect.Type][]*Descriptor),
	}
	return r.Register(ds...)
}

// Register adds descriptors and returns the registry for chaining.
func (r *Registry) Register(ds ...*Descriptor) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range ds {
		if d == nil {
			continue
		}
		r.descriptors = append(r.descriptors, d)
		r.byPrincipal[d.Principal] = append(r.byPrincipal[d.Principal], d)
		r.byDependent[d.Dependent] = append(r.byDependent[d.Dependent], d)
	}
	return r
}

// DependentsOf returns the edges on which t is the principal.
func (r *Registry) DependentsOf(t reflect.Type) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Descriptor(nil), r.byPrincipal[t]...)
}

// PrincipalsOf returns the edges on which t is the dependent.
func (r *Registry) PrincipalsOf(t reflect.Type) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Descriptor(nil), r.byDependent[t]...)
}

// EdgesOf returns every edge touching t, principal side first.
func (r *Registry) EdgesOf(t reflect.Type) []*Descriptor {
	return append(r.DependentsOf(t), r.PrincipalsOf(t)...)
}

// Descriptors returns all registered descriptors in registration order.
func (r *Registry) Descriptors() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Descriptor(nil), r.descriptors...)
}

// Validate checks that every cascading edge can be traversed. All problems are
// returned joined, each wrapping ErrConfiguration.
func (r *Registry) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for _, d := range r.Descriptors() {
		if d.Principal == nil || d.Dependent == nil {
			errs = append(errs, fmt.Errorf("%w: relation %q has no principal or dependent type", ErrConfiguration, d.Name))
			continue
		}
		if seen[d.String()] {
			errs = append(errs, fmt.Errorf("%w: relation %s registered twice", ErrConfiguration, d))
		}
		seen[d.String()] = true
		if !d.Kind.IsValid() {
			errs = append(errs, fmt.Errorf("%w: relation %s has invalid kind %d", ErrConfiguration, d, d.Kind))
		}
		if !d.OnDelete.IsValid() {
			errs = append(errs, fmt.Errorf("%w: relation %s has invalid delete policy %d", ErrConfiguration, d, d.OnDelete))
		}
		if d.Cascades() && d.Load == nil {
			errs = append(errs, fmt.Errorf("%w: relation %s cascades but has no loader", ErrConfiguration, d))
		}
	}
	return errors.Join(errs...)
}

// ForeignKeys derives store level constraints for every edge with a foreign key
// column. Owned edges are skipped.
func (r *Registry) ForeignKeys(db *bun.DB) []database.ForeignKeyConstraint {
	var constraints []database.ForeignKeyConstraint
	for _, d := range r.Descriptors() {
		if d.Owned || d.ForeignKey == "" || d.Principal == nil || d.Dependent == nil {
			continue
		}
		dependent := db.Table(d.Dependent.Elem())
		principal := db.Table(d.Principal.Elem())
		if len(principal.PKs) == 0 {
			continue
		}
		constraints = append(constraints, database.ForeignKeyConstraint{
			Table:           dependent.Name,
			Column:          d.ForeignKey,
			ReferenceTable:  principal.Name,
			ReferenceColumn: principal.PKs[0].Name,
			OnDelete:        d.OnDelete.SQL(),
		})
	}
	return constraints
}

// Default returns the process wide registry used by tombstone.Service.
func Default() *Registry {
	return defaultRegistry
}

// Register adds descriptors to the default registry.
func Register(ds ...*Descriptor) {
	defaultRegistry.Register(ds...)
}
