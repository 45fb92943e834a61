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


package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/tombstone/database"
	"github.com/urfave/cli/v3"
)

const foreignKeysYAML = `foreign_keys:
  - table: posts
    column: author_id
    reference_table: authors
    reference_column: id
    on_delete: cascade
  - table: comments
    column: post_id
    reference_table: posts
    reference_column: id
    on_delete: explode
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func sqliteConfig(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "cli.db")
	return writeFile(t, "tombstone.yaml", "connection_config:\n  type: sqlite\n  dbname: "+db+"\n")
}

// run executes the CLI with args and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	database.InitLogger(database.NopLogger{})
	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.ExitErrHandler = func(context.Context, *cli.Command, error) {}
	err := app.Run(context.Background(), append([]string{"tombstone"}, args...))
	return stdout.String(), stderr.String(), err
}

func TestForeignKeySQL(t *testing.T) {
	path := writeFile(t, "fk.yaml", foreignKeysYAML)

	out, _, err := run(t, "fk", "sql", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ALTER TABLE posts ADD CONSTRAINT fk_posts_author_id FOREIGN KEY (author_id) REFERENCES authors(id) ON DELETE CASCADE;\n")
	assert.Contains(t, out, "fk_comments_post_id")
}

func TestForeignKeyValidate(t *testing.T) {
	path := writeFile(t, "fk.yaml", foreignKeysYAML)

	_, stderr, err := run(t, "fk", "validate", "--file", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 invalid constraints")
	assert.Contains(t, stderr, "invalid referential action: explode")

	valid := writeFile(t, "ok.yaml", "foreign_keys:\n  - {table: posts, column: author_id, reference_table: authors, reference_column: id}\n")
	out, _, err := run(t, "fk", "validate", "-f", valid)
	require.NoError(t, err)
	assert.Equal(t, "1 constraints ok\n", out)

	_, _, err = run(t, "fk", "sql", "--file", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestStatsAndHealth(t *testing.T) {
	cfg := sqliteConfig(t)

	out, _, err := run(t, "--config", cfg, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "max_open_conns: 100")

	out, _, err = run(t, "--config", cfg, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "healthy: true")
	assert.Nil(t, database.GetDB())
}

func TestMigrate(t *testing.T) {
	cfg := sqliteConfig(t)

	out, _, err := run(t, "-c", cfg, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "name: create_base_tables")

	out, _, err = run(t, "-c", cfg, "migrate", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "version: \"001\"")
}
