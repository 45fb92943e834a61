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
	"errors"

	"github.com/tomoncle/tombstone/dynamic"
	"github.com/tomoncle/tombstone/relation"
	"github.com/tomoncle/tombstone/validation"
)

var (
	// ErrNotFound is returned when an update or delete target does not exist.
	// Single entity reads return a nil entity instead.
	ErrNotFound = errors.New("tombstone: entity not found")

	// ErrInvalidOperation is returned when a soft delete is requested for an
	// entity with a required one-to-one cascading relation.
	ErrInvalidOperation = errors.New("tombstone: invalid operation")

	ErrConfiguration    = relation.ErrConfiguration
	ErrMalformedFilter  = dynamic.ErrMalformedFilter
	ErrValidationFailed = validation.ErrValidationFailed
)
