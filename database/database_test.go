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
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) record(level, msg string, fields []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+" "+msg+formatFields(fields))
}

func (l *recordingLogger) SetLevel(LogLevel) {}

func (l *recordingLogger) Debug(msg string, fields ...interface{}) { l.record("DEBUG", msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...interface{})  { l.record("INFO", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...interface{})  { l.record("WARN", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...interface{}) { l.record("ERROR", msg, fields) }

func (l *recordingLogger) contains(level, fragment string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if strings.HasPrefix(e, level+" ") && strings.Contains(e, fragment) {
			return true
		}
	}
	return false
}

func newSQLiteDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type widget struct {
	bun.BaseModel `bun:"table:widgets"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero"`
}

type gadget struct {
	bun.BaseModel `bun:"table:gadgets"`

	ID       int64 `bun:"id,pk,autoincrement"`
	WidgetID int64 `bun:"widget_id"`
}

func TestFormatFields(t *testing.T) {
	require.Equal(t, "", formatFields(nil))
	require.Equal(t, " a=1 b=two", formatFields([]interface{}{"a", 1, "b", "two"}))
	require.Equal(t, " a=1 dangling=<missing>", formatFields([]interface{}{"a", 1, "dangling"}))
}

func TestSlowQueryHook(t *testing.T) {
	db := newSQLiteDB(t)
	logger := &recordingLogger{}
	db.AddQueryHook(NewSlowQueryHook(time.Nanosecond, logger))

	var one int
	require.NoError(t, db.NewSelect().ColumnExpr("1").Scan(context.Background(), &one))
	require.True(t, logger.contains("WARN", "slow query"), fmt.Sprint(logger.entries))
}

func TestSlowQueryHookIgnoresFastAndFailedQueries(t *testing.T) {
	db := newSQLiteDB(t)
	logger := &recordingLogger{}
	db.AddQueryHook(NewSlowQueryHook(time.Hour, logger))

	var one int
	require.NoError(t, db.NewSelect().ColumnExpr("1").Scan(context.Background(), &one))
	require.Error(t, db.NewSelect().Table("missing_table").ColumnExpr("1").Scan(context.Background(), &one))
	require.Empty(t, logger.entries)
}
