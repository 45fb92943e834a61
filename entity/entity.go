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

package entity

import (
	"fmt"
	"reflect"
	"time"
)

// Timestamps is the lifecycle surface shared by every managed record.
type Timestamps interface {
	GetCreatedDate() time.Time
	SetCreatedDate(t time.Time)
	GetUpdatedDate() time.Time
	SetUpdatedDate(t time.Time)
	GetDeletedDate() time.Time
	SetDeletedDate(t time.Time)
	IsDeleted() bool
}

// Record is a persisted entity with an identity.
type Record interface {
	Timestamps
	Key() any
}

// Model constrains a type parameter to a pointer to T that is also a Record,
// so generic code can be instantiated as New[Post](...) with *Post inferred.
type Model[T any] interface {
	*T
	Record
}

// Entity is embedded by concrete models. DeletedDate is the bun soft delete
// column, so default selects exclude rows where it is set.
type Entity[ID comparable] struct {
	ID          ID        `bun:"id,pk,autoincrement" json:"id"`
	CreatedDate time.Time `bun:"created_date,notnull" json:"createdDate"`
	UpdatedDate time.Time `bun:"updated_date,nullzero" json:"updatedDate,omitempty"`
	DeletedDate time.Time `bun:"deleted_date,soft_delete,nullzero" json:"deletedDate,omitempty"`
}

func (e *Entity[ID]) GetID() ID { return e.ID }

func (e *Entity[ID]) Key() any { return e.ID }

func (e *Entity[ID]) GetCreatedDate() time.Time { return e.CreatedDate }

func (e *Entity[ID]) SetCreatedDate(t time.Time) { e.CreatedDate = t }

func (e *Entity[ID]) GetUpdatedDate() time.Time { return e.UpdatedDate }

func (e *Entity[ID]) SetUpdatedDate(t time.Time) { e.UpdatedDate = t }

func (e *Entity[ID]) GetDeletedDate() time.Time { return e.DeletedDate }

func (e *Entity[ID]) SetDeletedDate(t time.Time) { e.DeletedDate = t }

// IsDeleted reports whether the record is logically absent.
func (e *Entity[ID]) IsDeleted() bool { return !e.DeletedDate.IsZero() }

// Identity identifies one record instance across types: the dynamic type plus the key.
type Identity struct {
	Type reflect.Type
	Key  any
}

func (i Identity) String() string {
	return fmt.Sprintf("%s#%v", i.Type, i.Key)
}

// IdentityOf returns the identity of r. Keys must be comparable.
func IdentityOf(r Record) Identity {
	return Identity{Type: reflect.TypeOf(r), Key: r.Key()}
}

// TypeOf returns the pointer type used as the registry key for model T.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil))
}

// NameOf returns a short human readable name for r's model type.
func NameOf(t reflect.Type) string {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return "<nil>"
	}
	return t.Name()
}
