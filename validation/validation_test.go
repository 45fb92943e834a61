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
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyErrorIsNil(t *testing.T) {
	assert.NoError(t, New().Err())
	assert.NoError(t, New().Add("name").Err())
	assert.NoError(t, New().Check(true, "name", "required").Err())
}

func TestErrorFormat(t *testing.T) {
	err := New().
		Add("Name", "must not be empty").
		Check(false, "Email", "must contain @").
		Add("Name", "must be shorter than 64").
		Err()
	require.Error(t, err)

	assert.Equal(t, "Validation Failed: \n -- Name : must not be empty\nmust be shorter than 64\n -- Email : must contain @", err.Error())
	assert.True(t, errors.Is(err, ErrValidationFailed))

	var ve *Error
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"must contain @"}, ve.Fields()["Email"])
}

func TestErrorJSON(t *testing.T) {
	err := New().Add("Title", "required")
	raw, jerr := json.Marshal(err)
	require.NoError(t, jerr)
	assert.JSONEq(t, `{"errors":[{"property":"Title","errors":["required"]}]}`, string(raw))
}
