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
	"fmt"
	"strings"

	"github.com/tomoncle/tombstone/types"
)

// Kind is the cardinality of an edge seen from the principal side.
type Kind int

const (
	OneToMany Kind = iota + 1
	OneToOne
)

var kindNames = map[Kind][2]string{
	OneToMany: {"one-to-many", "principal owns a collection of dependents"},
	OneToOne:  {"one-to-one", "principal owns a single dependent reference"},
}

func (k Kind) IsValid() bool {
	_, ok := kindNames[k]
	return ok
}

func (k Kind) Number() int {
	if !k.IsValid() {
		return types.IllegalValue
	}
	return int(k)
}

func (k Kind) String() string { return k.Name() }

func (k Kind) Name() string {
	if v, ok := kindNames[k]; ok {
		return v[0]
	}
	return types.IllegalName
}

func (k Kind) Desc() string {
	if v, ok := kindNames[k]; ok {
		return v[1]
	}
	return types.IllegalDesc
}

// DeletePolicy is what happens to dependents when their principal is deleted.
type DeletePolicy int

const (
	Cascade DeletePolicy = iota + 1
	ClientCascade
	Restrict
	SetNull
	ClientSetNull
	NoAction
)

type policyInfo struct {
	name string
	desc string
	sql  string
}

var policies = map[DeletePolicy]policyInfo{
	Cascade:       {"cascade", "dependents are deleted with the principal", "CASCADE"},
	ClientCascade: {"client-cascade", "dependents are deleted by the client, the store takes no action", "NO ACTION"},
	Restrict:      {"restrict", "deleting a principal with dependents fails", "RESTRICT"},
	SetNull:       {"set-null", "the dependent foreign key is cleared", "SET NULL"},
	ClientSetNull: {"client-set-null", "the client clears the dependent foreign key", "NO ACTION"},
	NoAction:      {"no-action", "nothing happens to dependents", "NO ACTION"},
}

func (p DeletePolicy) IsValid() bool {
	_, ok := policies[p]
	return ok
}

func (p DeletePolicy) Number() int {
	if !p.IsValid() {
		return types.IllegalValue
	}
	return int(p)
}

func (p DeletePolicy) String() string { return p.Name() }

func (p DeletePolicy) Name() string {
	if v, ok := policies[p]; ok {
		return v.name
	}
	return types.IllegalName
}

func (p DeletePolicy) Desc() string {
	if v, ok := policies[p]; ok {
		return v.desc
	}
	return types.IllegalDesc
}

// SQL returns the ON DELETE action enforced by the store for this policy.
func (p DeletePolicy) SQL() string {
	return policies[p].sql
}

// Cascades reports whether soft deleting a principal must also soft delete its dependents.
func (p DeletePolicy) Cascades() bool {
	return p == Cascade || p == ClientCascade
}

// ParseDeletePolicy accepts either the policy name ("client-cascade") or its SQL
// action ("SET NULL"), case-insensitively.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for p, info := range policies {
		if norm == info.name {
			return p, nil
		}
	}
	for _, p := range []DeletePolicy{Cascade, Restrict, SetNull, NoAction} {
		if strings.EqualFold(norm, policies[p].sql) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown delete policy %q", ErrConfiguration, s)
}

var (
	_ types.BaseEnum = Kind(0)
	_ types.BaseEnum = DeletePolicy(0)
)
