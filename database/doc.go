// Package database provides the storage session behind the repository:
// configuration, connection management, query hooks, migrations, foreign key
// handling, SQL error classification, logging and health checks, built on Bun.
package database
