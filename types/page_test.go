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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageCount(t *testing.T) {
	tests := []struct {
		count, size, want int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{23, 10, 3},
		{5, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PageCount(tt.count, tt.size), "count=%d size=%d", tt.count, tt.size)
	}
}

func TestNewPaginate(t *testing.T) {
	p := NewPaginate[int](0, 10, 0, nil)
	assert.NotNil(t, p.Items)
	assert.Empty(t, p.Items)
	assert.Equal(t, 0, p.Pages)
	assert.False(t, p.HasNext())
	assert.False(t, p.HasPrevious())

	one, two, three := 1, 2, 3
	p = NewPaginate(2, 10, 23, []*int{&one, &two, &three})
	assert.Len(t, p.Items, 3)
	assert.Equal(t, 3, p.Pages)
	assert.True(t, p.HasPrevious())
	assert.False(t, p.HasNext())
}

func TestPageRequestDefaults(t *testing.T) {
	req := NewDefaultPageRequest(-3, 0)
	assert.Equal(t, 0, req.GetIndex())
	assert.Equal(t, DefaultPageSize, req.GetSize())
	assert.Equal(t, 0, req.GetOffset())

	req = NewPageRequestWithOrders(2, 5, []string{"id ASC"})
	assert.Equal(t, 10, req.GetOffset())
	assert.Nil(t, req.GetFilter())
}
