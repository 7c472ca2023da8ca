package docstore

import "context"

// Snapshot is a storage engine's view of one document at read time. Identity
// (ID, Ref) always comes from the engine's own identity fields, never from the
// payload.
type Snapshot interface {
	// ID is the last path segment of the document's ref.
	ID() string

	// Ref is the fully-qualified path of the document ("items/abc").
	Ref() string

	// Exists reports whether the document was present. Engines report missing
	// documents through Exists() == false with a nil error; errors are reserved
	// for infrastructure failures.
	Exists() bool

	// Data is the raw JSON payload of the document.
	Data() []byte
}

// QueryHandle is a chainable, immutable query under construction against one
// collection. Each method returns a refined handle; the receiver stays usable.
type QueryHandle interface {
	Filter(fieldPath FieldPathString, op ComparisonOp, value any) QueryHandle
	Sort(fieldPath FieldPathString, direction Direction) QueryHandle

	// StartAfter positions the result set strictly after the boundary document
	// with respect to the query's sort order.
	StartAfter(boundary Snapshot) QueryHandle

	Limit(n int) QueryHandle

	// Documents executes the query and returns the matching snapshots.
	Documents(ctx context.Context) ([]Snapshot, error)
}

// BatchWriter collects deletes and commits them as one atomic multi-document
// mutation. Commit fails with ErrBatchTooLarge when more refs were collected
// than the engine's MaxBatchWriteSize allows.
type BatchWriter interface {
	Delete(ref string)
	Commit(ctx context.Context) error
}

// StorageEngine is the storage collaborator contract this library is a
// convenience layer over. Implementations: postgresengine, memoryengine.
type StorageEngine interface {
	GetDocument(ctx context.Context, path string) (Snapshot, error)
	SetDocument(ctx context.Context, path string, payload []byte) error
	DeleteDocument(ctx context.Context, path string) error
	Query(collectionPath string) QueryHandle
	BatchWrite() BatchWriter

	// MaxBatchWriteSize is the engine's atomic batch-write ceiling.
	MaxBatchWriteSize() int
}

// TxEngine is a transaction-scoped StorageEngine. All document operations on it
// run inside the transaction until Commit or Rollback.
type TxEngine interface {
	StorageEngine
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
