package docstore

import "errors"

var (
	// ErrNilStorageEngine is returned when a client is created without a storage engine.
	ErrNilStorageEngine = errors.New("nil storage engine supplied")

	// ErrEmptyDocumentPath is returned when a document operation receives an empty path.
	ErrEmptyDocumentPath = errors.New("document path must not be empty")

	// ErrEmptyCollectionPath is returned when a collection operation receives an empty path.
	ErrEmptyCollectionPath = errors.New("collection path must not be empty")

	// ErrStaleCursor is returned when a cursor's continuation document no longer
	// exists. This is recoverable: the caller restarts pagination with a fresh cursor.
	ErrStaleCursor = errors.New("cursor continuation document no longer exists")

	// ErrResolvingCursorFailed is returned when fetching the cursor's continuation
	// document fails for infrastructure reasons.
	ErrResolvingCursorFailed = errors.New("resolving cursor continuation document failed")

	// ErrQueryingDocumentsFailed is returned when query execution fails.
	ErrQueryingDocumentsFailed = errors.New("querying documents failed")

	// ErrDecodingPayloadFailed is returned when a document payload does not
	// unmarshal into the caller's payload type.
	ErrDecodingPayloadFailed = errors.New("decoding document payload failed")

	// ErrEncodingPayloadFailed is returned when a payload does not marshal to JSON.
	ErrEncodingPayloadFailed = errors.New("encoding document payload failed")

	// ErrWritingDocumentFailed is returned when storing a document fails.
	ErrWritingDocumentFailed = errors.New("writing document failed")

	// ErrDeletingDocumentsFailed is returned when a delete or batch commit fails.
	ErrDeletingDocumentsFailed = errors.New("deleting documents failed")

	// ErrBatchTooLarge is returned by a batch commit that exceeds the storage
	// engine's maximum atomic batch-write size.
	ErrBatchTooLarge = errors.New("batch exceeds the maximum atomic batch-write size")

	// ErrNilDatabaseConnection is returned by engine factories when the supplied
	// database connection is nil.
	ErrNilDatabaseConnection = errors.New("nil database connection supplied")

	// ErrEmptyTableName is returned when an engine is configured with an empty table name.
	ErrEmptyTableName = errors.New("empty table name supplied")

	// ErrBuildingQueryFailed is returned when translating a query into the
	// engine's query language fails.
	ErrBuildingQueryFailed = errors.New("building query failed")

	// ErrScanningRowFailed is returned when reading a database row fails.
	ErrScanningRowFailed = errors.New("scanning database row failed")
)
