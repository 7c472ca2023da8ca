package adapters

import "context"

// DBExecutor defines the query/exec surface shared by connections and
// transactions.
type DBExecutor interface {
	Query(ctx context.Context, query string) (DBRows, error)
	Exec(ctx context.Context, query string) (DBResult, error)
}

// DBAdapter defines the interface for database operations needed by the
// document store.
type DBAdapter interface {
	DBExecutor

	// Begin starts a database transaction.
	Begin(ctx context.Context) (DBTx, error)
}

// DBTx defines the interface for an open database transaction.
type DBTx interface {
	DBExecutor
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DBRows defines the interface for query result rows.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
}

// DBResult defines the interface for execution results.
type DBResult interface {
	RowsAffected() (int64, error)
}
