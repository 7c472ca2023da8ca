package docstore

// DefaultPageSize is used when a cursor is created without an explicit page size.
const DefaultPageSize = 10

// Cursor holds the pagination state of one session: the page size, an opaque
// continuation token (the ref of the last-seen document) and a more-data hint.
// Cursors are immutable; Advance produces a new value, the old one stays valid.
type Cursor struct {
	pageSize        int
	hasNext         bool
	continuationRef string
}

// NewCursor creates a fresh cursor for the start of a pagination session.
// Page sizes below 1 fall back to DefaultPageSize.
func NewCursor(pageSize int) Cursor {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	return Cursor{pageSize: pageSize, hasNext: true}
}

// ResumeCursor rebuilds a cursor from externally persisted state, e.g. a
// continuation token that went over the wire between page requests.
func ResumeCursor(pageSize int, continuationRef string) Cursor {
	c := NewCursor(pageSize)
	c.continuationRef = continuationRef

	return c
}

func (c Cursor) PageSize() int {
	return c.pageSize
}

// HasNext reports whether another page is expected. It is a hint derived from
// the last page being full, not a guarantee: when the collection size is an
// exact multiple of the page size, one extra empty page will be fetched and
// that page sets it to false.
func (c Cursor) HasNext() bool {
	return c.hasNext
}

// ContinuationRef returns the ref of the last document of the previous page,
// or "" at the start of a session.
func (c Cursor) ContinuationRef() string {
	return c.continuationRef
}

// Advance derives the cursor for the next page from this cursor plus the page
// just fetched. An empty page keeps the continuation ref at its last valid
// position and clears the more-data hint; otherwise the ref of the page's last
// document becomes the new continuation point and the hint stays set iff the
// page was full.
func (c Cursor) Advance(page []Snapshot) Cursor {
	c = c.normalized()

	if len(page) == 0 {
		return Cursor{pageSize: c.pageSize, hasNext: false, continuationRef: c.continuationRef}
	}

	return Cursor{
		pageSize:        c.pageSize,
		hasNext:         len(page) == c.pageSize,
		continuationRef: page[len(page)-1].Ref(),
	}
}

// normalized maps the zero value (and invalid page sizes) onto a usable fresh
// cursor, so callers can start a session with docstore.Cursor{}.
func (c Cursor) normalized() Cursor {
	if c.pageSize < 1 {
		return ResumeCursor(DefaultPageSize, c.continuationRef)
	}

	return c
}
