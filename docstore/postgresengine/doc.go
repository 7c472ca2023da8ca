// Package postgresengine provides a PostgreSQL implementation of the docstore
// storage engine interface.
//
// Documents live in a single table with a jsonb payload column, supporting
// multiple database adapters (pgx, sql.DB, sqlx) with atomic batch writes and
// keyset pagination.
//
// Key features:
//   - Multiple database adapter support (PGX, SQL, SQLX)
//   - Optional read replica routing for eventually consistent reads
//   - Field filtering and ordering pushed down to jsonb operators
//   - Configurable table names and dual-logger support
//   - Transaction-scoped engines via BeginTx
//
// Usage examples:
//
//	// Basic usage
//	db, _ := pgxpool.New(context.Background(), dsn)
//	engine, _ := postgresengine.NewEngineFromPGXPool(db)
//
//	// With a custom table and operational logging
//	engine, _ := postgresengine.NewEngineFromPGXPool(
//		db,
//		postgresengine.WithTableName("my_documents"),
//		postgresengine.WithLogger(logger),
//	)
//
//	client := docstore.NewClient(engine)
//	page, cursor, _ := docstore.CursorQuery[Item](ctx, client, "items", docstore.NewCursor(25))
package postgresengine
