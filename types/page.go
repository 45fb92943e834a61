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

// DefaultPageSize is used when a page request carries no usable size.
const DefaultPageSize = 10

// QueryFilter describes a WHERE clause schema and its argument values.
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

// PageRequest describes a zero-based page window, optional filter, and ordering.
type PageRequest struct {
	index  int
	size   int
	filter *QueryFilter
	orders []string // "id ASC", "name DESC"
}

func (p *PageRequest) GetSize() int {
	if p.size < 1 {
		p.size = DefaultPageSize
	}
	return p.size
}

func (p *PageRequest) GetIndex() int {
	if p.index < 0 {
		p.index = 0
	}
	return p.index
}

func (p *PageRequest) GetOffset() int {
	return p.GetIndex() * p.GetSize()
}

func (p *PageRequest) GetFilter() *QueryFilter {
	return p.filter
}

func (p *PageRequest) GetOrders() []string {
	return p.orders
}

// NewPageRequest constructs a PageRequest with filter and order settings.
func NewPageRequest(index int, size int, filter *QueryFilter, orders []string) *PageRequest {
	return &PageRequest{index, size, filter, orders}
}

// NewPageRequestWithFilter constructs a PageRequest with a filter only.
func NewPageRequestWithFilter(index int, size int, filter *QueryFilter) *PageRequest {
	return NewPageRequest(index, size, filter, make([]string, 0))
}

// NewPageRequestWithOrders constructs a PageRequest with ordering only.
func NewPageRequestWithOrders(index int, size int, orders []string) *PageRequest {
	return NewPageRequest(index, size, nil, orders)
}

// NewDefaultPageRequest constructs a PageRequest with no filter or ordering.
func NewDefaultPageRequest(index int, size int) *PageRequest {
	return NewPageRequest(index, size, nil, make([]string, 0))
}

// Paginate holds one page of items together with the size of the full match set.
// Pages is always derived from Count and Size.
type Paginate[T any] struct {
	Items []*T `json:"items"`
	Index int  `json:"index"`
	Size  int  `json:"size"`
	Count int  `json:"count"`
	Pages int  `json:"pages"`
}

// NewPaginate builds a page and computes Pages from count and size.
func NewPaginate[T any](index, size, count int, items []*T) *Paginate[T] {
	if items == nil {
		items = make([]*T, 0)
	}
	return &Paginate[T]{
		Items: items,
		Index: index,
		Size:  size,
		Count: count,
		Pages: PageCount(count, size),
	}
}

// PageCount returns ceil(count/size), or 0 when either is not positive.
func PageCount(count, size int) int {
	if count <= 0 || size <= 0 {
		return 0
	}
	return (count + size - 1) / size
}

func (p *Paginate[T]) HasPrevious() bool { return p.Index > 0 }

func (p *Paginate[T]) HasNext() bool { return p.Index+1 < p.Pages }
