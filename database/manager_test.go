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
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/dialect"
)

func TestDataSource(t *testing.T) {
	cases := []struct {
		cfg     ConnectionConfig
		driver  string
		dialect dialect.Name
		dsn     string
	}{
		{ConnectionConfig{Type: "mysql", Username: "u", Password: "p", Host: "h", Port: 3306, DBName: "blog"}, "mysql", dialect.MySQL, "u:p@tcp(h:3306)/blog?charset=utf8mb4&parseTime=True&loc=UTC"},
		{ConnectionConfig{Type: "postgres", Username: "u", Password: "p", Host: "h", Port: 5432, DBName: "blog"}, "postgres", dialect.PG, "postgres://u:p@h:5432/blog?sslmode=disable"},
		{ConnectionConfig{Type: "postgresql", Driver: "pgx", Host: "h", Port: 5432, DBName: "blog", SSLMode: "require"}, "pgx", dialect.PG, "sslmode=require"},
		{ConnectionConfig{Type: "sqlite"}, "sqlite", dialect.SQLite, "file::memory:?cache=shared"},
		{ConnectionConfig{Type: "sqlite3", DBName: "data/blog"}, "sqlite", dialect.SQLite, "data/blog.db"},
	}
	for _, tc := range cases {
		dm := &defaultDatabaseManager{config: &tc.cfg}
		driver, dsn, d, err := dm.dataSource()
		require.NoError(t, err)
		if tc.driver == "sqlite" {
			assert.NotEmpty(t, driver)
		} else {
			assert.Equal(t, tc.driver, driver)
		}
		assert.Equal(t, tc.dialect, d.Name())
		assert.True(t, strings.Contains(dsn, tc.dsn), dsn)
	}

	_, _, _, err := (&defaultDatabaseManager{config: &ConnectionConfig{Type: "oracle"}}).dataSource()
	require.Error(t, err)
}

func TestManagerLifecycle(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DBName = "file:manager_lifecycle?mode=memory&cache=shared"
	cfg.HealthCheckInterval = 0
	cfg.SlowQueryTime = 0
	cfg.EnableMetrics = true

	dm := NewDatabaseManager(cfg, WithRegisterer(prometheus.NewRegistry()))
	dm.SetLogger(NopLogger{})
	ctx := context.Background()

	status := dm.HealthCheck(ctx)
	assert.False(t, status.Healthy)
	assert.Equal(t, "Database not initialized", status.LastError)
	require.Error(t, dm.Ping(ctx))

	require.NoError(t, dm.Connect(ctx))
	defer func() { _ = dm.Disconnect() }()
	require.NoError(t, dm.Connect(ctx))
	require.NotNil(t, dm.GetDB())
	require.NotNil(t, dm.GetSQLDB())
	require.NoError(t, dm.Ping(ctx))

	status = dm.HealthCheck(ctx)
	assert.True(t, status.Healthy)
	assert.True(t, status.Connected)
	assert.Equal(t, 100, dm.GetStats().MaxOpenConns)

	require.NoError(t, dm.Reconnect(ctx))
	require.NoError(t, dm.Ping(ctx))

	require.NoError(t, dm.Disconnect())
	assert.Nil(t, dm.GetDB())
	assert.Equal(t, &DBStats{}, dm.GetStats())
	require.Error(t, dm.RunMigrations(ctx))
}
