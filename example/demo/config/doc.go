// Package config provides database and observability configuration helpers
// for the docstore demo.
//
// This package contains factory functions for creating database connections
// using different PostgreSQL drivers (pgx.Pool, sql.DB, sqlx.DB) with a
// pre-configured demo database DSN, plus an OpenTelemetry provider setup
// pointing at a local observability stack.
package config
