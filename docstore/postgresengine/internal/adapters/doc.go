// Package adapters provides database adapter implementations for the document
// store engine.
//
// This internal package contains adapters that allow the document store to
// work with different database connection types (pgx pool, sql.DB, sqlx.DB)
// through a common interface, including transaction support.
package adapters
