package docstore

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// DefaultDeleteBatchSize bounds one deletion round when no explicit batch size
// is configured. It stays well below the engines' atomic batch-write ceiling.
const DefaultDeleteBatchSize = 300

// Client is the convenience layer over a StorageEngine. It is stateless and
// safe for concurrent use; cursors and constraint lists are caller-owned and
// passed by value.
type Client struct {
	engine StorageEngine
}

// NewClient creates a Client on top of the given storage engine.
func NewClient(engine StorageEngine) (*Client, error) {
	if engine == nil {
		return nil, ErrNilStorageEngine
	}

	return &Client{engine: engine}, nil
}

/***** Execution context *****/

// Execution selects how a client's storage calls run: directly against the
// engine, or scoped to a caller-supplied transaction.
type Execution struct {
	tx StorageEngine
}

// Direct runs storage calls directly against the client's engine.
func Direct() Execution {
	return Execution{}
}

// Transactional replaces direct storage calls with transaction-scoped
// equivalents on the supplied transaction handle. The caller owns the
// transaction's lifecycle (Commit / Rollback).
func Transactional(tx TxEngine) Execution {
	return Execution{tx: tx}
}

// WithExecution derives a client using the given execution context. The
// receiver is unchanged; Direct() returns the receiver itself.
func (c *Client) WithExecution(exec Execution) *Client {
	if exec.tx == nil {
		return c
	}

	return &Client{engine: exec.tx}
}

/***** Document reads *****/

// DocQuery fetches a single document and decodes its payload into T.
// A non-existent path returns (nil, nil), not an error.
func DocQuery[T any](ctx context.Context, c *Client, path string) (*Record[T], error) {
	if path == "" {
		return nil, ErrEmptyDocumentPath
	}

	snap, getErr := c.engine.GetDocument(ctx, path)
	if getErr != nil {
		return nil, getErr
	}

	if !snap.Exists() {
		return nil, nil
	}

	record, buildErr := recordFromSnapshot[T](snap)
	if buildErr != nil {
		return nil, buildErr
	}

	return &record, nil
}

// CollectionQuery fetches all documents of a collection matching the given
// constraints, applied in caller-supplied order.
func CollectionQuery[T any](
	ctx context.Context,
	c *Client,
	collectionPath string,
	constraints ...Constraint,
) ([]Record[T], error) {

	if collectionPath == "" {
		return nil, ErrEmptyCollectionPath
	}

	q := applyConstraints(c.engine.Query(collectionPath), constraints)

	snaps, queryErr := q.Documents(ctx)
	if queryErr != nil {
		return nil, errors.Join(ErrQueryingDocumentsFailed, queryErr)
	}

	return recordsFromSnapshots[T](snaps)
}

// CursorQuery fetches one page of a collection and returns it together with the
// advanced cursor for the following call. Start a session with the zero Cursor
// or NewCursor; stop when the returned cursor's HasNext is false.
//
// A continuation ref pointing at a since-deleted document fails with
// ErrStaleCursor; the caller recovers by restarting with a fresh cursor.
func CursorQuery[T any](
	ctx context.Context,
	c *Client,
	collectionPath string,
	cursor Cursor,
	constraints ...Constraint,
) ([]Record[T], Cursor, error) {

	if collectionPath == "" {
		return nil, cursor, ErrEmptyCollectionPath
	}

	cur := cursor.normalized()

	q := applyConstraints(c.engine.Query(collectionPath), constraints)

	q, cursorErr := c.applyCursor(ctx, q, cur)
	if cursorErr != nil {
		return nil, cur, cursorErr
	}

	snaps, queryErr := q.Documents(ctx)
	if queryErr != nil {
		return nil, cur, errors.Join(ErrQueryingDocumentsFailed, queryErr)
	}

	records, buildErr := recordsFromSnapshots[T](snaps)
	if buildErr != nil {
		return nil, cur, buildErr
	}

	return records, cur.Advance(snaps), nil
}

// applyCursor refines a query with the cursor's continuation position and page
// bound. Resolving the continuation ref costs one extra document fetch.
func (c *Client) applyCursor(ctx context.Context, q QueryHandle, cursor Cursor) (QueryHandle, error) {
	if ref := cursor.ContinuationRef(); ref != "" {
		boundary, getErr := c.engine.GetDocument(ctx, ref)
		if getErr != nil {
			return nil, errors.Join(ErrResolvingCursorFailed, getErr)
		}

		if !boundary.Exists() {
			return nil, ErrStaleCursor
		}

		q = q.StartAfter(boundary)
	}

	return q.Limit(cursor.PageSize()), nil
}

/***** Document writes *****/

// SetDoc stores a payload under the given document path, overwriting any
// existing document. Dynamic payloads previously read through this library
// must be stripped with QueryData first.
func SetDoc[T any](ctx context.Context, c *Client, path string, payload T) error {
	if path == "" {
		return ErrEmptyDocumentPath
	}

	raw, encodeErr := encodePayload(payload)
	if encodeErr != nil {
		return encodeErr
	}

	if setErr := c.engine.SetDocument(ctx, path, raw); setErr != nil {
		return errors.Join(ErrWritingDocumentFailed, setErr)
	}

	return nil
}

// AddDoc stores a payload under a freshly generated document ID in the given
// collection and returns the new document's ref. IDs are UUIDv7, so insertion
// order and identity order roughly coincide.
func AddDoc[T any](ctx context.Context, c *Client, collectionPath string, payload T) (string, error) {
	if collectionPath == "" {
		return "", ErrEmptyCollectionPath
	}

	id, idErr := uuid.NewV7()
	if idErr != nil {
		return "", idErr
	}

	ref := collectionPath + "/" + id.String()

	if setErr := SetDoc(ctx, c, ref, payload); setErr != nil {
		return "", setErr
	}

	return ref, nil
}

/***** Deletion *****/

// DeleteDoc deletes a single document. Deleting a non-existent document is not
// an error.
func (c *Client) DeleteDoc(ctx context.Context, path string) error {
	if path == "" {
		return ErrEmptyDocumentPath
	}

	if deleteErr := c.engine.DeleteDocument(ctx, path); deleteErr != nil {
		return errors.Join(ErrDeletingDocumentsFailed, deleteErr)
	}

	return nil
}

// DeleteOption configures DeleteCollection.
type DeleteOption func(*deleteConfig)

type deleteConfig struct {
	batchSize int
}

// WithBatchSize bounds the number of documents deleted per round. Values above
// the engine's atomic batch-write ceiling are passed through and fail at the
// storage layer when the first batch commits.
func WithBatchSize(batchSize int) DeleteOption {
	return func(cfg *deleteConfig) {
		cfg.batchSize = batchSize
	}
}

// DeleteCollection empties a collection in bounded batches. Each round queries
// up to the batch size of documents ordered by DocumentID and deletes them in
// one atomic batch write; re-querying afresh is correct because every round
// shrinks the head of the identity-ordered collection, so no continuation
// token is needed. Rounds run strictly sequentially and the loop keeps stack
// depth constant regardless of collection size.
//
// Deletion is not globally atomic: a failing round leaves earlier rounds
// deleted. The first failing fetch or commit aborts with that error.
func (c *Client) DeleteCollection(ctx context.Context, collectionPath string, options ...DeleteOption) error {
	if collectionPath == "" {
		return ErrEmptyCollectionPath
	}

	cfg := deleteConfig{batchSize: DefaultDeleteBatchSize}
	for _, option := range options {
		option(&cfg)
	}

	for {
		snaps, queryErr := c.engine.
			Query(collectionPath).
			Sort(DocumentID, Asc).
			Limit(cfg.batchSize).
			Documents(ctx)
		if queryErr != nil {
			return errors.Join(ErrQueryingDocumentsFailed, queryErr)
		}

		if len(snaps) == 0 {
			return nil
		}

		batch := c.engine.BatchWrite()
		for _, snap := range snaps {
			batch.Delete(snap.Ref())
		}

		if commitErr := batch.Commit(ctx); commitErr != nil {
			return errors.Join(ErrDeletingDocumentsFailed, commitErr)
		}
	}
}

// DocumentIDFromRef returns the last path segment of a document ref.
func DocumentIDFromRef(ref string) string {
	if idx := strings.LastIndexByte(ref, '/'); idx >= 0 {
		return ref[idx+1:]
	}

	return ref
}
