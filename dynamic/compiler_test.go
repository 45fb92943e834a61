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

package dynamic

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/tombstone/entity"
	"github.com/tomoncle/tombstone/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type post struct {
	bun.BaseModel `bun:"table:posts,alias:p"`
	entity.Entity[int64]
	Title     string `bun:"title"`
	Views     int    `bun:"views"`
	Published bool   `bun:"published"`
	Summary   string `bun:"summary,nullzero"`
}

var seed = []*post{
	{Title: "go generics", Views: 40, Published: true},
	{Title: "go channels", Views: 5, Published: true},
	{Title: "rust lifetimes", Views: 30, Published: false, Summary: "borrowing"},
	{Title: "go modules", Views: 12, Published: false},
	{Title: "sql joins", Views: 0, Published: true, Summary: "inner and outer"},
}

func newTestDB(t *testing.T) *bun.DB {
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	_, err = db.NewCreateTable().Model((*post)(nil)).Exec(ctx)
	require.NoError(t, err)
	for _, p := range seed {
		row := *p
		row.CreatedDate = time.Now()
		_, err := db.NewInsert().Model(&row).Exec(ctx)
		require.NoError(t, err)
	}
	return db
}

func titles(t *testing.T, db *bun.DB, dq types.DynamicQuery) []string {
	t.Helper()
	compiled, err := CompileFor[post](db, dq)
	require.NoError(t, err)

	var rows []*post
	err = compiled.Apply(db.NewSelect().Model(&rows)).Scan(context.Background())
	require.NoError(t, err)

	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Title)
	}
	return out
}

func TestCompileSelectsExactSubset(t *testing.T) {
	db := newTestDB(t)

	got := titles(t, db, types.DynamicQuery{Filter: &types.Filter{
		Logic: "and",
		Filters: []types.Filter{
			{Field: "views", Operator: "gte", Value: 10},
			{Field: "Title", Operator: "startswith", Value: "go"},
		},
	}})
	assert.ElementsMatch(t, []string{"go generics", "go modules"}, got)
}

func TestCompileNestedOrGroup(t *testing.T) {
	db := newTestDB(t)

	got := titles(t, db, types.DynamicQuery{Filter: &types.Filter{
		Field:    "published",
		Operator: "eq",
		Value:    true,
		Logic:    "and",
		Filters: []types.Filter{{
			Logic: "or",
			Filters: []types.Filter{
				{Field: "views", Operator: "lt", Value: 10},
				{Field: "title", Operator: "endswith", Value: "generics"},
			},
		}},
	}})
	assert.ElementsMatch(t, []string{"go generics", "go channels", "sql joins"}, got)
}

func TestCompileFromJSON(t *testing.T) {
	db := newTestDB(t)

	var dq types.DynamicQuery
	raw := `{
		"filter": {"logic": "or", "filters": [
			{"field": "views", "operator": "in", "value": [5, 30]},
			{"field": "summary", "operator": "contains", "value": "outer"}
		]},
		"sort": [{"field": "views", "dir": "desc"}]
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &dq))

	got := titles(t, db, dq)
	assert.Equal(t, []string{"rust lifetimes", "go channels", "sql joins"}, got)
}

func TestCompileNullChecksAndSort(t *testing.T) {
	db := newTestDB(t)

	got := titles(t, db, types.DynamicQuery{
		Filter: &types.Filter{Field: "summary", Operator: "isnull"},
		Sort:   []types.Sort{{Field: "title"}},
	})
	assert.Equal(t, []string{"go channels", "go generics", "go modules"}, got)

	got = titles(t, db, types.DynamicQuery{
		Filter: &types.Filter{Field: "summary", Operator: "isnotnull"},
	})
	assert.ElementsMatch(t, []string{"rust lifetimes", "sql joins"}, got)

	got = titles(t, db, types.DynamicQuery{
		Filter: &types.Filter{Field: "title", Operator: "doesnotcontain", Value: "go"},
	})
	assert.ElementsMatch(t, []string{"rust lifetimes", "sql joins"}, got)
}

func TestCompileRejectsMalformedFilters(t *testing.T) {
	db := newTestDB(t)

	tests := []struct {
		name string
		dq   types.DynamicQuery
	}{
		{"unknown field", types.DynamicQuery{Filter: &types.Filter{Field: "nope", Operator: "eq", Value: 1}}},
		{"missing field", types.DynamicQuery{Filter: &types.Filter{Operator: "eq", Value: 1}}},
		{"unknown operator", types.DynamicQuery{Filter: &types.Filter{Field: "views", Operator: "like", Value: 1}}},
		{"missing operator", types.DynamicQuery{Filter: &types.Filter{Field: "views"}}},
		{"bad integer", types.DynamicQuery{Filter: &types.Filter{Field: "views", Operator: "eq", Value: "ten"}}},
		{"fractional integer", types.DynamicQuery{Filter: &types.Filter{Field: "views", Operator: "eq", Value: 1.5}}},
		{"nil value", types.DynamicQuery{Filter: &types.Filter{Field: "views", Operator: "gt"}}},
		{"in needs list", types.DynamicQuery{Filter: &types.Filter{Field: "views", Operator: "in", Value: 3}}},
		{"like needs string", types.DynamicQuery{Filter: &types.Filter{Field: "title", Operator: "contains", Value: 3}}},
		{"unknown logic", types.DynamicQuery{Filter: &types.Filter{Logic: "xor", Filters: []types.Filter{{Field: "views", Operator: "eq", Value: 1}}}}},
		{"nested failure", types.DynamicQuery{Filter: &types.Filter{Filters: []types.Filter{{Field: "views", Operator: "eq", Value: 1}, {Field: "ghost", Operator: "eq", Value: 1}}}}},
		{"bad sort dir", types.DynamicQuery{Sort: []types.Sort{{Field: "views", Dir: "sideways"}}}},
		{"bad sort field", types.DynamicQuery{Sort: []types.Sort{{Field: "ghost"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := CompileFor[post](db, tt.dq)
			require.Error(t, err)
			assert.Nil(t, compiled)
			assert.True(t, errors.Is(err, ErrMalformedFilter))

			var fe *FilterError
			assert.True(t, errors.As(err, &fe))
		})
	}
}

func TestEmptyDynamicQueryIsNoop(t *testing.T) {
	db := newTestDB(t)
	got := titles(t, db, types.DynamicQuery{})
	assert.Len(t, got, len(seed))
}

func TestCompileEscapesLikeWildcards(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for _, title := range []string{"50% off", "500 off", "snake_case", "snakexcase", "wow!"} {
		_, err := db.NewInsert().Model(&post{Title: title}).Exec(ctx)
		require.NoError(t, err)
	}

	got := titles(t, db, types.DynamicQuery{Filter: &types.Filter{Field: "title", Operator: "contains", Value: "50%"}})
	assert.Equal(t, []string{"50% off"}, got)

	got = titles(t, db, types.DynamicQuery{Filter: &types.Filter{Field: "title", Operator: "startswith", Value: "snake_"}})
	assert.Equal(t, []string{"snake_case"}, got)

	got = titles(t, db, types.DynamicQuery{Filter: &types.Filter{Field: "title", Operator: "endswith", Value: "!"}})
	assert.Equal(t, []string{"wow!"}, got)

	got = titles(t, db, types.DynamicQuery{Filter: &types.Filter{
		Logic: "and",
		Filters: []types.Filter{
			{Field: "title", Operator: "doesnotcontain", Value: "_"},
			{Field: "title", Operator: "startswith", Value: "snake"},
		},
	}})
	assert.Equal(t, []string{"snakexcase"}, got)
}
