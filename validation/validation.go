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

package validation

import (
	"errors"
	"strings"
)

// ErrValidationFailed is wrapped by every *Error.
var ErrValidationFailed = errors.New("tombstone: validation failed")

// Validatable is implemented by models that check themselves before being persisted.
type Validatable interface {
	Validate() error
}

// FieldError holds the messages reported for one property.
type FieldError struct {
	Field    string   `json:"property"`
	Messages []string `json:"errors"`
}

// Error aggregates field errors for transport.
type Error struct {
	Errors []FieldError `json:"errors"`
}

// New returns an empty aggregate; use Add and then Err.
func New() *Error {
	return &Error{}
}

// Add appends messages to field, merging with an existing entry.
func (e *Error) Add(field string, messages ...string) *Error {
	if len(messages) == 0 {
		return e
	}
	for i := range e.Errors {
		if e.Errors[i].Field == field {
			e.Errors[i].Messages = append(e.Errors[i].Messages, messages...)
			return e
		}
	}
	e.Errors = append(e.Errors, FieldError{Field: field, Messages: messages})
	return e
}

// Check adds message to field when ok is false.
func (e *Error) Check(ok bool, field, message string) *Error {
	if !ok {
		e.Add(field, message)
	}
	return e
}

// Err returns e when it holds at least one failure, nil otherwise.
func (e *Error) Err() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("Validation Failed: ")
	for _, fe := range e.Errors {
		b.WriteString("\n -- ")
		b.WriteString(fe.Field)
		b.WriteString(" : ")
		b.WriteString(strings.Join(fe.Messages, "\n"))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return ErrValidationFailed }

// Fields returns the messages grouped by field.
func (e *Error) Fields() map[string][]string {
	out := make(map[string][]string, len(e.Errors))
	for _, fe := range e.Errors {
		out[fe.Field] = append([]string(nil), fe.Messages...)
	}
	return out
}
