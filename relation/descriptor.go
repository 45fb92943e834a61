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
	"context"
	"fmt"
	"reflect"

	"github.com/tomoncle/tombstone/entity"
	"github.com/uptrace/bun"
)

// Navigator returns the dependents already held in memory by principal. The
// boolean is false when the navigation member has not been loaded.
type Navigator func(principal entity.Record) ([]entity.Record, bool)

// Loader fetches the dependents of principal from the store. Loaders must
// include rows that are already soft deleted.
type Loader func(ctx context.Context, db bun.IDB, principal entity.Record) ([]entity.Record, error)

// Descriptor is one principal -> dependent edge of the relationship graph.
type Descriptor struct {
	Name       string
	Principal  reflect.Type
	Dependent  reflect.Type
	Kind       Kind
	OnDelete   DeletePolicy
	Required   bool
	Owned      bool
	ForeignKey string
	Navigate   Navigator
	Load       Loader
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s.%s", entity.NameOf(d.Principal), d.Name)
}

// Cascades reports whether a soft delete of the principal travels along this edge.
func (d *Descriptor) Cascades() bool {
	return d.OnDelete.Cascades() && !d.Owned && d.Navigate != nil
}

// GuardsSoftDelete reports whether the edge forbids soft deleting either end:
// a required one-to-one edge whose deletion cascades.
func (d *Descriptor) GuardsSoftDelete() bool {
	return d.Kind == OneToOne && d.Required && d.OnDelete.Cascades()
}

// Option customizes a descriptor built by HasMany or HasOne.
type Option func(*Descriptor)

// OnDelete sets the delete policy. The default is Cascade.
func OnDelete(p DeletePolicy) Option {
	return func(d *Descriptor) { d.OnDelete = p }
}

// Optional marks the dependent foreign key as nullable.
func Optional() Option {
	return func(d *Descriptor) { d.Required = false }
}

// Owned marks the dependent as an embedded sub-object without its own lifecycle.
func Owned() Option {
	return func(d *Descriptor) { d.Owned = true }
}

// WithLoader replaces the default foreign key loader.
func WithLoader(l Loader) Option {
	return func(d *Descriptor) { d.Load = l }
}

// HasMany declares a one-to-many edge. nav reads the loaded collection from the
// principal; a nil slice means "not loaded". Dependents are loaded by matching
// foreignKey against the principal key.
func HasMany[P, D any, PP entity.Model[P], PD entity.Model[D]](name, foreignKey string, nav func(PP) []PD, opts ...Option) *Descriptor {
	d := newDescriptor[P, D, PD](name, foreignKey, OneToMany)
	if nav != nil {
		d.Navigate = func(principal entity.Record) ([]entity.Record, bool) {
			p, ok := principal.(PP)
			if !ok {
				return nil, false
			}
			items := nav(p)
			if items == nil {
				return nil, false
			}
			out := make([]entity.Record, 0, len(items))
			for _, item := range items {
				if (*D)(item) != nil {
					out = append(out, item)
				}
			}
			return out, true
		}
	}
	return d.apply(opts)
}

// HasOne declares a one-to-one edge. nav returns nil when the reference is not loaded.
func HasOne[P, D any, PP entity.Model[P], PD entity.Model[D]](name, foreignKey string, nav func(PP) PD, opts ...Option) *Descriptor {
	d := newDescriptor[P, D, PD](name, foreignKey, OneToOne)
	if nav != nil {
		d.Navigate = func(principal entity.Record) ([]entity.Record, bool) {
			p, ok := principal.(PP)
			if !ok {
				return nil, false
			}
			item := nav(p)
			if (*D)(item) == nil {
				return nil, false
			}
			return []entity.Record{item}, true
		}
	}
	return d.apply(opts)
}

func newDescriptor[P, D any, PD entity.Model[D]](name, foreignKey string, kind Kind) *Descriptor {
	return &Descriptor{
		Name:       name,
		Principal:  entity.TypeOf[P](),
		Dependent:  entity.TypeOf[D](),
		Kind:       kind,
		OnDelete:   Cascade,
		Required:   true,
		ForeignKey: foreignKey,
		Load:       ForeignKeyLoader[D, PD](foreignKey),
	}
}

func (d *Descriptor) apply(opts []Option) *Descriptor {
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ForeignKeyLoader selects every D whose foreignKey column equals the principal
// key, soft deleted rows included.
func ForeignKeyLoader[D any, PD entity.Model[D]](foreignKey string) Loader {
	return func(ctx context.Context, db bun.IDB, principal entity.Record) ([]entity.Record, error) {
		var items []PD
		err := db.NewSelect().
			Model(&items).
			WhereAllWithDeleted().
			Where("? = ?", bun.Ident(foreignKey), principal.Key()).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("load %s by %s: %w", entity.NameOf(entity.TypeOf[D]()), foreignKey, err)
		}
		out := make([]entity.Record, 0, len(items))
		for _, item := range items {
			out = append(out, item)
		}
		return out, nil
	}
}
