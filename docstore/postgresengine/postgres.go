package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/pagedstore/docstore-go/docstore"
	"github.com/pagedstore/docstore-go/docstore/postgresengine/internal/adapters"
)

const (
	defaultDocumentsTableName = "documents"

	logMsgBuildSelectQueryFailed = "failed to build select query"
	logMsgBuildUpsertQueryFailed = "failed to build upsert query"
	logMsgBuildDeleteQueryFailed = "failed to build delete query"
	logMsgDBQueryFailed          = "database query execution failed"
	logMsgDBExecFailed           = "database execution failed"
	logMsgCloseRowsFailed        = "failed to close database rows"
	logMsgScanRowFailed          = "failed to scan database row"
	logMsgQueryCompleted         = "query completed"
	logMsgDocumentStored         = "document stored"
	logMsgDocumentDeleted        = "document deleted"
	logMsgBatchDeleted           = "document batch deleted"
	logMsgSQLExecuted            = "executed sql for: "

	logAttrError         = "error"
	logAttrQuery         = "query"
	logAttrPath          = "path"
	logAttrCollection    = "collection"
	logAttrDocumentCount = "document_count"
	logAttrDurationMS    = "duration_ms"
	logAttrRowsAffected  = "rows_affected"

	logActionQuery       = "query"
	logActionGet         = "get"
	logActionSet         = "set"
	logActionDelete      = "delete"
	logActionBatchDelete = "batch_delete"

	colRef        = "ref"
	colDocID      = "doc_id"
	colCollection = "collection"
	colPayload    = "payload"

	dialectPostgres = "postgres"

	castJsonb = "?::jsonb"

	maxBatchWriteSize = 500
)

type (
	sqlQueryString = string
	queryDuration  = time.Duration
)

// Engine implements docstore.StorageEngine on a single Postgres table with a
// jsonb payload column. It leverages a database adapter and supports
// customizable logging, metrics, tracing and table configuration.
type Engine struct {
	db        adapters.DBExecutor
	adapter   adapters.DBAdapter // nil inside a transaction scope
	tableName string

	logger           docstore.Logger
	contextualLogger docstore.ContextualLogger
	metricsCollector docstore.MetricsCollector
	tracingCollector docstore.TracingCollector
}

// NewEngineFromPGXPool creates a new Engine using a pgx pool with optional configuration.
func NewEngineFromPGXPool(db *pgxpool.Pool, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, docstore.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewPGXAdapter(db), options)
}

// NewEngineFromPGXPoolAndReplica creates a new Engine using a primary pgx pool
// plus a read replica. Reads are routed to the replica when the context allows
// eventual consistency (docstore.WithEventualConsistency).
func NewEngineFromPGXPoolAndReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*Engine, error) {
	if db == nil || replica == nil {
		return nil, docstore.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewPGXAdapterWithReplica(db, replica), options)
}

// NewEngineFromSQLDB creates a new Engine using a sql.DB with optional configuration.
func NewEngineFromSQLDB(db *sql.DB, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, docstore.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewSQLAdapter(db), options)
}

// NewEngineFromSQLX creates a new Engine using a sqlx.DB with optional configuration.
func NewEngineFromSQLX(db *sqlx.DB, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, docstore.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewSQLXAdapter(db), options)
}

func newEngine(adapter adapters.DBAdapter, options []Option) (*Engine, error) {
	engine := &Engine{
		db:        adapter,
		adapter:   adapter,
		tableName: defaultDocumentsTableName,
	}

	for _, option := range options {
		if optionErr := option(engine); optionErr != nil {
			return nil, optionErr
		}
	}

	return engine, nil
}

// Schema returns the DDL for the documents table an Engine expects.
func Schema(tableName string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ref         text PRIMARY KEY,
	collection  text NOT NULL,
	doc_id      text NOT NULL,
	payload     jsonb NOT NULL,
	inserted_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %s_collection_idx ON %s (collection, ref);`,
		tableName, tableName, tableName)
}

// GetDocument fetches the document at path. A missing document is reported
// through a snapshot with Exists() == false and a nil error.
func (e *Engine) GetDocument(ctx context.Context, path string) (docstore.Snapshot, error) {
	sqlQuery, buildErr := e.buildGetQuery(path)
	if buildErr != nil {
		e.logError(ctx, logMsgBuildSelectQueryFailed, buildErr, logAttrPath, path)
		return nil, buildErr
	}

	rows, duration, queryErr := e.executeQuery(ctx, sqlQuery, logActionGet)
	if queryErr != nil {
		return nil, queryErr
	}
	defer e.closeRows(ctx, rows)

	if !rows.Next() {
		return pgSnapshot{ref: path, id: docstore.DocumentIDFromRef(path)}, nil
	}

	snap, scanErr := e.scanSnapshot(ctx, rows)
	if scanErr != nil {
		return nil, scanErr
	}

	e.recordDurationMetrics(ctx, metricGetDuration, duration, operationGet, statusSuccess)

	return snap, nil
}

func (e *Engine) buildGetQuery(path string) (sqlQueryString, error) {
	stmt := goqu.Dialect(dialectPostgres).
		From(e.tableName).
		Select(colRef, colDocID, colPayload).
		Where(goqu.C(colRef).Eq(path)).
		Limit(1)

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(docstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// SetDocument stores payload under path, overwriting any existing document.
func (e *Engine) SetDocument(ctx context.Context, path string, payload []byte) error {
	sqlQuery, buildErr := e.buildUpsertQuery(path, payload)
	if buildErr != nil {
		e.logError(ctx, logMsgBuildUpsertQueryFailed, buildErr, logAttrPath, path)
		return buildErr
	}

	_, duration, execErr := e.executeStatement(ctx, sqlQuery, logActionSet)
	if execErr != nil {
		return execErr
	}

	e.logOperation(ctx, logMsgDocumentStored, logAttrPath, path, logAttrDurationMS, e.toMilliseconds(duration))
	e.recordDurationMetrics(ctx, metricWriteDuration, duration, operationSet, statusSuccess)

	return nil
}

func (e *Engine) buildUpsertQuery(path string, payload []byte) (sqlQueryString, error) {
	payloadExpr := goqu.L(castJsonb, string(payload))

	stmt := goqu.Dialect(dialectPostgres).
		Insert(e.tableName).
		Cols(colRef, colCollection, colDocID, colPayload).
		Vals(goqu.Vals{path, collectionOf(path), docstore.DocumentIDFromRef(path), payloadExpr}).
		OnConflict(goqu.DoUpdate(colRef, goqu.Record{colPayload: payloadExpr}))

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(docstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// DeleteDocument deletes the document at path; deleting a missing document is
// not an error.
func (e *Engine) DeleteDocument(ctx context.Context, path string) error {
	stmt := goqu.Dialect(dialectPostgres).
		Delete(e.tableName).
		Where(goqu.C(colRef).Eq(path))

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		buildErr := errors.Join(docstore.ErrBuildingQueryFailed, toSQLErr)
		e.logError(ctx, logMsgBuildDeleteQueryFailed, buildErr, logAttrPath, path)
		return buildErr
	}

	_, duration, execErr := e.executeStatement(ctx, sqlQuery, logActionDelete)
	if execErr != nil {
		return execErr
	}

	e.logOperation(ctx, logMsgDocumentDeleted, logAttrPath, path, logAttrDurationMS, e.toMilliseconds(duration))
	e.recordDurationMetrics(ctx, metricDeleteDuration, duration, operationDelete, statusSuccess)

	return nil
}

// Query starts a chainable query against one collection.
func (e *Engine) Query(collectionPath string) docstore.QueryHandle {
	return pgQuery{engine: e, collection: collectionPath}
}

// BatchWrite starts collecting deletes for one atomic commit.
func (e *Engine) BatchWrite() docstore.BatchWriter {
	return &pgBatch{engine: e}
}

// MaxBatchWriteSize is the atomic batch-write ceiling of one commit.
func (e *Engine) MaxBatchWriteSize() int {
	return maxBatchWriteSize
}

// BeginTx starts a database transaction. The returned Tx implements the full
// storage engine contract with transaction-scoped equivalents of every call.
func (e *Engine) BeginTx(ctx context.Context) (*Tx, error) {
	if e.adapter == nil {
		return nil, errors.New("nested transactions are not supported")
	}

	dbTx, beginErr := e.adapter.Begin(ctx)
	if beginErr != nil {
		return nil, beginErr
	}

	txEngine := *e
	txEngine.db = dbTx
	txEngine.adapter = nil

	return &Tx{Engine: txEngine, dbTx: dbTx}, nil
}

// Tx is a transaction-scoped Engine.
type Tx struct {
	Engine
	dbTx adapters.DBTx
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	return t.dbTx.Commit(ctx)
}

// Rollback aborts the transaction.
func (t *Tx) Rollback(ctx context.Context) error {
	return t.dbTx.Rollback(ctx)
}

/***** batch *****/

// pgBatch deletes all collected refs in one statement, which makes the whole
// batch atomic without an explicit transaction.
type pgBatch struct {
	engine *Engine
	refs   []string
}

func (b *pgBatch) Delete(ref string) {
	b.refs = append(b.refs, ref)
}

func (b *pgBatch) Commit(ctx context.Context) error {
	if len(b.refs) == 0 {
		return nil
	}

	if len(b.refs) > b.engine.MaxBatchWriteSize() {
		return docstore.ErrBatchTooLarge
	}

	stmt := goqu.Dialect(dialectPostgres).
		Delete(b.engine.tableName).
		Where(goqu.C(colRef).In(b.refs))

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		buildErr := errors.Join(docstore.ErrBuildingQueryFailed, toSQLErr)
		b.engine.logError(ctx, logMsgBuildDeleteQueryFailed, buildErr, logAttrDocumentCount, len(b.refs))
		return buildErr
	}

	result, duration, execErr := b.engine.executeStatement(ctx, sqlQuery, logActionBatchDelete)
	if execErr != nil {
		return execErr
	}

	rowsAffected, _ := result.RowsAffected()

	b.engine.logOperation(
		ctx,
		logMsgBatchDeleted,
		logAttrDocumentCount, len(b.refs),
		logAttrRowsAffected, rowsAffected,
		logAttrDurationMS, b.engine.toMilliseconds(duration),
	)
	b.engine.recordDurationMetrics(ctx, metricDeleteDuration, duration, operationBatchDelete, statusSuccess)

	return nil
}

/***** execution helpers *****/

// executeQuery executes a SQL query and returns rows with timing information.
func (e *Engine) executeQuery(ctx context.Context, sqlQuery string, action string) (
	adapters.DBRows,
	queryDuration,
	error,
) {

	start := time.Now()
	rows, queryErr := e.db.Query(ctx, sqlQuery)
	duration := time.Since(start)
	e.logQueryWithDuration(ctx, sqlQuery, action, duration)

	if queryErr != nil {
		e.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		e.recordErrorMetrics(ctx, action, errorTypeDatabase)

		return nil, duration, queryErr
	}

	return rows, duration, nil
}

// executeStatement executes a SQL statement and returns the result with timing
// information.
func (e *Engine) executeStatement(ctx context.Context, sqlQuery string, action string) (
	adapters.DBResult,
	queryDuration,
	error,
) {

	start := time.Now()
	result, execErr := e.db.Exec(ctx, sqlQuery)
	duration := time.Since(start)
	e.logQueryWithDuration(ctx, sqlQuery, action, duration)

	if execErr != nil {
		e.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		e.recordErrorMetrics(ctx, action, errorTypeDatabase)

		return nil, duration, execErr
	}

	return result, duration, nil
}

// closeRows safely closes database rows and logs any errors.
func (e *Engine) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		e.logWarn(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

// scanSnapshot reads one document row into a snapshot.
func (e *Engine) scanSnapshot(ctx context.Context, rows adapters.DBRows) (pgSnapshot, error) {
	var ref, docID string
	var payload []byte

	if scanErr := rows.Scan(&ref, &docID, &payload); scanErr != nil {
		e.logError(ctx, logMsgScanRowFailed, scanErr)
		return pgSnapshot{}, errors.Join(docstore.ErrScanningRowFailed, scanErr)
	}

	return pgSnapshot{ref: ref, id: docID, exists: true, payload: payload}, nil
}

/***** snapshot *****/

type pgSnapshot struct {
	id      string
	ref     string
	exists  bool
	payload []byte
}

func (s pgSnapshot) ID() string {
	return s.id
}

func (s pgSnapshot) Ref() string {
	return s.ref
}

func (s pgSnapshot) Exists() bool {
	return s.exists
}

func (s pgSnapshot) Data() []byte {
	return s.payload
}

// collectionOf returns the parent collection path of a ref.
func collectionOf(ref string) string {
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '/' {
			return ref[:i]
		}
	}

	return ""
}

var (
	_ docstore.StorageEngine = (*Engine)(nil)
	_ docstore.TxEngine      = (*Tx)(nil)
)
