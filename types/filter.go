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

package types

// Sort directions accepted by a dynamic sort.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Filter logic combinators.
const (
	LogicAnd = "and"
	LogicOr  = "or"
)

// Filter operators understood by the dynamic compiler.
const (
	OpEq             = "eq"
	OpNeq            = "neq"
	OpLt             = "lt"
	OpLte            = "lte"
	OpGt             = "gt"
	OpGte            = "gte"
	OpIsNull         = "isnull"
	OpIsNotNull      = "isnotnull"
	OpStartsWith     = "startswith"
	OpEndsWith       = "endswith"
	OpContains       = "contains"
	OpDoesNotContain = "doesnotcontain"
	OpIn             = "in"
)

// DynamicQuery is a data driven description of a predicate and an ordering.
type DynamicQuery struct {
	Sort   []Sort  `json:"sort,omitempty" yaml:"sort,omitempty"`
	Filter *Filter `json:"filter,omitempty" yaml:"filter,omitempty"`
}

// Sort orders by one field.
type Sort struct {
	Field string `json:"field" yaml:"field"`
	Dir   string `json:"dir" yaml:"dir"`
}

// Filter is either a leaf comparison (Field, Operator, Value) or, when Filters
// is non-empty, a group whose members are joined with Logic. A node may carry
// both; the leaf is then the first member of the group.
type Filter struct {
	Field    string   `json:"field,omitempty" yaml:"field,omitempty"`
	Operator string   `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty"`
	Logic    string   `json:"logic,omitempty" yaml:"logic,omitempty"`
	Filters  []Filter `json:"filters,omitempty" yaml:"filters,omitempty"`
}
