// Package docstore provides a typed convenience layer over a hierarchical
// document store: single-document and collection retrieval, declarative
// query-constraint composition, cursor-based pagination and recursive batched
// deletion.
//
// The storage backend is pluggable through the StorageEngine interface;
// postgresengine implements it on a Postgres jsonb table, memoryengine keeps
// documents in memory.
//
// Key types:
//   - Constraint: a where/order-by directive, built with Where and OrderBy
//   - Cursor: pagination state carried by the caller across page fetches
//   - Record: a decoded payload plus its identity metadata (ID, Ref)
//
// Common usage pattern:
//
//	client, _ := docstore.NewClient(engine)
//
//	cursor := docstore.NewCursor(25)
//	for cursor.HasNext() {
//		page, next, err := docstore.CursorQuery[Item](ctx, client, "items", cursor,
//			docstore.Where("status", docstore.OpEqual, "open"),
//			docstore.OrderBy("createdAt", docstore.Desc),
//		)
//		if err != nil {
//			// handle error; ErrStaleCursor means restart with a fresh cursor
//		}
//		// consume page
//		cursor = next
//	}
//
//	err := client.DeleteCollection(ctx, "items", docstore.WithBatchSize(200))
package docstore
