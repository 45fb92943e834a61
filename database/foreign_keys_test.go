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

package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func TestForeignKeyConstraintSQL(t *testing.T) {
	fk := ForeignKeyConstraint{
		Table:           "posts",
		Column:          "author_id",
		ReferenceTable:  "authors",
		ReferenceColumn: "id",
		OnDelete:        "set null",
		OnUpdate:        "cascade",
	}
	assert.Equal(t, "fk_posts_author_id", fk.GenerateConstraintName())
	assert.Equal(t,
		"ALTER TABLE posts ADD CONSTRAINT fk_posts_author_id FOREIGN KEY (author_id) REFERENCES authors(id) ON DELETE SET NULL ON UPDATE CASCADE",
		fk.GenerateSQL())
	assert.NoError(t, fk.Validate())

	fk.ConstraintName = "posts_author"
	assert.Contains(t, fk.GenerateSQL(), "ADD CONSTRAINT posts_author ")
}

func TestForeignKeyConstraintValidate(t *testing.T) {
	cases := []struct {
		name string
		fk   ForeignKeyConstraint
		msg  string
	}{
		{"no table", ForeignKeyConstraint{}, "table name cannot be empty"},
		{"no column", ForeignKeyConstraint{Table: "posts"}, "column name cannot be empty"},
		{"no reference table", ForeignKeyConstraint{Table: "posts", Column: "author_id"}, "reference table name"},
		{"no reference column", ForeignKeyConstraint{Table: "posts", Column: "author_id", ReferenceTable: "authors"}, "reference column name"},
		{"bad action", ForeignKeyConstraint{Table: "posts", Column: "author_id", ReferenceTable: "authors", ReferenceColumn: "id", OnDelete: "EXPLODE"}, "invalid referential action: EXPLODE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.fk.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestForeignKeyManagerAdd(t *testing.T) {
	fkm := NewForeignKeyManager(nil,
		ForeignKeyConstraint{Table: "posts", Column: "author_id", ReferenceTable: "authors", ReferenceColumn: "id"},
		ForeignKeyConstraint{Table: "comments", Column: "post_id", ReferenceTable: "posts", ReferenceColumn: "id"},
	)
	fkm.Add(ForeignKeyConstraint{Table: "posts", Column: "author_id", ReferenceTable: "users", ReferenceColumn: "id"})

	require.Len(t, fkm.ListAllConstraints(), 2)
	require.Len(t, fkm.GetConstraintsByTable("POSTS"), 1)
	assert.Equal(t, "authors", fkm.GetConstraintsByTable("posts")[0].ReferenceTable)
	assert.Len(t, fkm.SQLStatements(), 2)
	assert.Empty(t, fkm.ValidateConstraints())
}

func TestAddAllForeignKeys(t *testing.T) {
	mockdb, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	db := bun.NewDB(mockdb, pgdialect.New())
	defer func() { _ = db.Close() }()

	ok := ForeignKeyConstraint{Table: "posts", Column: "author_id", ReferenceTable: "authors", ReferenceColumn: "id", OnDelete: "CASCADE"}
	exists := ForeignKeyConstraint{Table: "comments", Column: "post_id", ReferenceTable: "posts", ReferenceColumn: "id"}
	mock.ExpectExec(ok.GenerateSQL()).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(exists.GenerateSQL()).WillReturnError(errors.New(`constraint "fk_comments_post_id" already exists`))

	logger := &recordingLogger{}
	applied, err := NewForeignKeyManager(logger, ok, exists).AddAllForeignKeys(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.True(t, logger.contains("DEBUG", "fk_comments_post_id"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddAllForeignKeysSkipsSQLite(t *testing.T) {
	db := newSQLiteDB(t)
	fkm := NewForeignKeyManager(nil, ForeignKeyConstraint{Table: "posts", Column: "author_id", ReferenceTable: "authors", ReferenceColumn: "id"})

	applied, err := fkm.AddAllForeignKeys(context.Background(), db)
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func TestForeignKeyConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "foreign_keys.yaml")

	source := NewForeignKeyManager(nil, ForeignKeyConstraint{
		Table: "posts", Column: "author_id", ReferenceTable: "authors", ReferenceColumn: "id", OnDelete: "CASCADE",
	})
	require.NoError(t, source.ExportToConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "reference_table: authors")
	assert.Contains(t, string(data), "description: posts.author_id -> authors.id")

	loaded, err := NewConfigurableForeignKeyManager(nil, path,
		ForeignKeyConstraint{Table: "comments", Column: "post_id", ReferenceTable: "posts", ReferenceColumn: "id"})
	require.NoError(t, err)
	assert.Equal(t, path, loaded.GetConfigPath())
	require.Len(t, loaded.ListAllConstraints(), 2)
	assert.Equal(t, "CASCADE", loaded.ListAllConstraints()[0].OnDelete)
}

func TestForeignKeyConfigMissingOrBroken(t *testing.T) {
	dir := t.TempDir()

	fkm, err := NewConfigurableForeignKeyManager(nil, filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, fkm.ListAllConstraints())

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("foreign_keys: [oops"), 0o644))
	_, err = NewConfigurableForeignKeyManager(nil, broken)
	require.ErrorContains(t, err, "failed to parse foreign key config")
}
