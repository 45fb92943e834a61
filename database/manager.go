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
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

var errNotConnected = errors.New("database not connected")

type defaultDatabaseManager struct {
	config     *ConnectionConfig
	migrate    DataMigrateConfig
	logger     Logger
	registerer prometheus.Registerer

	mu          sync.RWMutex
	db          *bun.DB
	sqlDB       *sql.DB
	status      *HealthStatus
	stopMonitor context.CancelFunc
}

// ManagerOption customizes a manager created by NewDatabaseManager.
type ManagerOption func(*defaultDatabaseManager)

// WithMigrateConfig sets the migration settings used by RunMigrations.
func WithMigrateConfig(cfg DataMigrateConfig) ManagerOption {
	return func(dm *defaultDatabaseManager) { dm.migrate = cfg }
}

// WithRegisterer sets where query metrics are registered. The default is
// prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) ManagerOption {
	return func(dm *defaultDatabaseManager) { dm.registerer = reg }
}

// NewDatabaseManager returns a manager backed by Bun. A nil config uses
// DefaultConnectionConfig.
func NewDatabaseManager(config *ConnectionConfig, opts ...ManagerOption) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	dm := &defaultDatabaseManager{
		config:     config,
		logger:     GetLogger(),
		registerer: prometheus.DefaultRegisterer,
		status:     &HealthStatus{},
	}
	for _, opt := range opts {
		opt(dm)
	}
	return dm
}

// Connect opens the pool and starts the health monitor when an interval is
// configured. Connecting an open manager is a no-op.
func (dm *defaultDatabaseManager) Connect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.db != nil {
		return nil
	}
	if err := dm.open(ctx); err != nil {
		return err
	}
	if dm.config.HealthCheckInterval > 0 && dm.stopMonitor == nil {
		monitorCtx, cancel := context.WithCancel(context.Background())
		dm.stopMonitor = cancel
		go dm.monitor(monitorCtx)
	}

	dm.logger.Info("Database connected", "type", dm.config.Type, "host", dm.config.Host, "dbname", dm.config.DBName)
	return nil
}

// open must be called with dm.mu held.
func (dm *defaultDatabaseManager) open(ctx context.Context) error {
	sqlDB, db, err := dm.createConnection()
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	configurePool(sqlDB, dm.config)

	pingCtx, cancel := context.WithTimeout(ctx, dm.config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("database connection test failed: %w", err)
	}
	dm.db, dm.sqlDB = db, sqlDB
	return nil
}

// close must be called with dm.mu held.
func (dm *defaultDatabaseManager) close() error {
	if dm.db == nil {
		return nil
	}
	err := dm.db.Close()
	dm.db, dm.sqlDB = nil, nil
	return err
}

func (dm *defaultDatabaseManager) createConnection() (*sql.DB, *bun.DB, error) {
	if dm.config.ConnectTimeout <= 0 {
		dm.config.ConnectTimeout = 30 * time.Second
	}

	driverName, dsn, dialect, err := dm.dataSource()
	if err != nil {
		return nil, nil, err
	}

	var sqlDB *sql.DB
	if dm.config.EnableTracing {
		sqlDB, err = otelsql.Open(driverName, dsn, otelsql.WithAttributes(dbSystem(dm.config.Type)))
	} else {
		sqlDB, err = sql.Open(driverName, dsn)
	}
	if err != nil {
		return nil, nil, err
	}
	db := bun.NewDB(sqlDB, dialect)
	// Every pool, including one opened by Reconnect, knows the registered models.
	if models := RegisteredModelInstances(); len(models) > 0 {
		db.RegisterModel(models...)
	}

	if dm.config.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if dm.config.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(dm.config.SlowQueryTime, dm.logger))
	}
	if dm.config.EnableMetrics {
		hook, err := NewMetricsHook(dm.registerer, dm.config.MetricsNamespace)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to register query metrics: %w", err)
		}
		db.AddQueryHook(hook)
	}
	return sqlDB, db, nil
}

// dataSource resolves the driver name, DSN and Bun dialect for the configured type.
func (dm *defaultDatabaseManager) dataSource() (string, string, schema.Dialect, error) {
	c := dm.config
	switch strings.ToLower(c.Type) {
	case "mysql":
		charset := c.Charset
		if charset == "" {
			charset = "utf8mb4"
		}
		// clientFoundRows: RowsAffected counts matched rows, not changed ones.
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=UTC&timeout=%s&readTimeout=%s&writeTimeout=%s&clientFoundRows=true",
			c.Username, c.Password, c.Host, c.Port, c.DBName, charset, c.ConnectTimeout, c.ReadTimeout, c.WriteTimeout)
		return "mysql", dsn, mysqldialect.New(), nil
	case "postgres", "postgresql":
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
			c.Username, c.Password, c.Host, c.Port, c.DBName, sslMode, int(c.ConnectTimeout.Seconds()))
		driver := "postgres"
		if strings.EqualFold(c.Driver, "pgx") {
			driver = "pgx"
		}
		return driver, dsn, pgdialect.New(), nil
	case "sqlite", "sqlite3":
		dsn := c.DBName
		switch {
		case dsn == "" || dsn == ":memory:":
			dsn = "file::memory:?cache=shared"
		case !strings.HasPrefix(dsn, "file:") && !strings.HasSuffix(dsn, ".db"):
			dsn += ".db"
		}
		return sqliteshim.ShimName, dsn, sqlitedialect.New(), nil
	default:
		return "", "", nil, fmt.Errorf("unsupported database type: %s", c.Type)
	}
}

func dbSystem(dbType string) attribute.KeyValue {
	switch strings.ToLower(dbType) {
	case "mysql":
		return semconv.DBSystemMySQL
	case "sqlite", "sqlite3":
		return semconv.DBSystemSqlite
	default:
		return semconv.DBSystemPostgreSQL
	}
}

func configurePool(sqlDB *sql.DB, c *ConnectionConfig) {
	sqlDB.SetMaxIdleConns(c.MaxIdleConns)
	sqlDB.SetMaxOpenConns(c.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(c.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(c.ConnMaxIdleTime)
}

// Disconnect stops the health monitor and closes the pool.
func (dm *defaultDatabaseManager) Disconnect() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.stopMonitor != nil {
		dm.stopMonitor()
		dm.stopMonitor = nil
	}
	if dm.db == nil {
		return nil
	}
	if err := dm.close(); err != nil {
		dm.logger.Error("Failed to close database connection", "error", err.Error())
		return err
	}
	dm.logger.Info("Database connection closed")
	return nil
}

// Reconnect replaces the pool. A running health monitor keeps running.
func (dm *defaultDatabaseManager) Reconnect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.logger.Info("Reconnecting to the database", "type", dm.config.Type)
	if err := dm.close(); err != nil {
		dm.logger.Warn("Error closing previous connection", "error", err.Error())
	}
	return dm.open(ctx)
}

func (dm *defaultDatabaseManager) Ping(ctx context.Context) error {
	db := dm.GetDB()
	if db == nil {
		return errNotConnected
	}
	return db.PingContext(ctx)
}

func (dm *defaultDatabaseManager) GetDB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

func (dm *defaultDatabaseManager) GetSQLDB() *sql.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.sqlDB
}

// HealthCheck pings the database and records the result. The ping runs
// without holding the manager lock.
func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) *HealthStatus {
	dm.mu.RLock()
	db, sqlDB := dm.db, dm.sqlDB
	dm.mu.RUnlock()

	start := time.Now()
	status := &HealthStatus{LastCheckTime: start}
	if db == nil {
		status.LastError = "Database not initialized"
		return dm.record(status)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := db.PingContext(pingCtx)
	status.ResponseTime = time.Since(start)
	status.Healthy = err == nil
	status.Connected = err == nil
	if err != nil {
		status.LastError = err.Error()
	}

	stats := sqlDB.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections
	return dm.record(status)
}

func (dm *defaultDatabaseManager) record(status *HealthStatus) *HealthStatus {
	dm.mu.Lock()
	dm.status = status
	dm.mu.Unlock()
	return status
}

// monitor checks health every HealthCheckInterval and, when reconnect is
// enabled, replaces an unhealthy pool. It gives up after MaxReconnectTries
// consecutive failed reconnects.
func (dm *defaultDatabaseManager) monitor(ctx context.Context) {
	ticker := time.NewTicker(dm.config.HealthCheckInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		status := dm.HealthCheck(checkCtx)
		cancel()
		if status.Healthy {
			failures = 0
			continue
		}
		if !dm.config.EnableReconnect {
			continue
		}
		if failures >= dm.config.MaxReconnectTries {
			dm.logger.Error("Max reconnect attempts reached, stopping health monitor", "tries", failures)
			return
		}

		failures++
		dm.logger.Warn("Database unhealthy, reconnecting", "try", failures, "error", status.LastError)
		select {
		case <-ctx.Done():
			return
		case <-time.After(dm.config.ReconnectInterval):
		}

		reconnectCtx, cancel := context.WithTimeout(ctx, dm.config.ConnectTimeout)
		err := dm.Reconnect(reconnectCtx)
		cancel()
		if err != nil {
			dm.logger.Error("Reconnect failed", "try", failures, "error", err.Error())
			continue
		}
		dm.logger.Info("Reconnect succeeded", "tries", failures)
		failures = 0
	}
}

func (dm *defaultDatabaseManager) GetStats() *DBStats {
	sqlDB := dm.GetSQLDB()
	if sqlDB == nil {
		return &DBStats{}
	}
	return newDBStats(sqlDB.Stats())
}

func newDBStats(s sql.DBStats) *DBStats {
	return &DBStats{
		MaxOpenConns:      s.MaxOpenConnections,
		OpenConns:         s.OpenConnections,
		InUse:             s.InUse,
		Idle:              s.Idle,
		WaitCount:         s.WaitCount,
		WaitDuration:      s.WaitDuration,
		MaxIdleClosed:     s.MaxIdleClosed,
		MaxIdleTimeClosed: s.MaxIdleTimeClosed,
		MaxLifetimeClosed: s.MaxLifetimeClosed,
	}
}

func (dm *defaultDatabaseManager) RunMigrations(ctx context.Context, extra ...ForeignKeyConstraint) error {
	db := dm.GetDB()
	if db == nil {
		return errNotConnected
	}
	return NewMigrationManager(db, dm.logger, dm.migrate).
		WithForeignKeys(extra...).
		RunMigrations(ctx)
}

func (dm *defaultDatabaseManager) SetLogger(logger Logger) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if logger != nil {
		dm.logger = logger
	}
}
