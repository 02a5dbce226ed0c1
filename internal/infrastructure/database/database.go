package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect identifies the SQL flavour of a connection
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DB is a database connection together with its dialect
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Rebind rewrites ? placeholders into the dialect's form.
// Question marks inside single-quoted literals are left alone.
func (d *DB) Rebind(query string) string {
	if d.Dialect != DialectPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			quoted = !quoted
		case ch == '?' && !quoted:
			n++
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(ch)
	}
	return sb.String()
}

// HealthCheck checks if the database connection is healthy
func (d *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := d.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// RunMigrations brings the schema up to date
func (d *DB) RunMigrations() error {
	switch d.Dialect {
	case DialectPostgres:
		m, err := d.Migrator()
		if err != nil {
			return err
		}
		return Up(m)
	case DialectSQLite:
		if _, err := d.Exec(sqliteSchema); err != nil {
			return fmt.Errorf("failed to apply sqlite schema: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unsupported dialect %q", d.Dialect)
}

// Close closes the database connection
func (d *DB) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
