package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubSnapshot struct {
	ref string
}

func (s stubSnapshot) ID() string {
	return DocumentIDFromRef(s.ref)
}

func (s stubSnapshot) Ref() string {
	return s.ref
}

func (s stubSnapshot) Exists() bool {
	return true
}

func (s stubSnapshot) Data() []byte {
	return []byte(`{}`)
}

func pageOfRefs(refs ...string) []Snapshot {
	page := make([]Snapshot, 0, len(refs))
	for _, ref := range refs {
		page = append(page, stubSnapshot{ref: ref})
	}

	return page
}

func Test_NewCursor_Construction(t *testing.T) {
	tests := []struct {
		name             string
		pageSize         int
		expectedPageSize int
	}{
		{
			name:             "positive_page_size_is_kept",
			pageSize:         25,
			expectedPageSize: 25,
		},
		{
			name:             "zero_page_size_falls_back_to_default",
			pageSize:         0,
			expectedPageSize: DefaultPageSize,
		},
		{
			name:             "negative_page_size_falls_back_to_default",
			pageSize:         -3,
			expectedPageSize: DefaultPageSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursor := NewCursor(tt.pageSize)

			assert.Equal(t, tt.expectedPageSize, cursor.PageSize())
			assert.True(t, cursor.HasNext())
			assert.Empty(t, cursor.ContinuationRef())
		})
	}
}

func Test_ResumeCursor_RestoresContinuationRef(t *testing.T) {
	cursor := ResumeCursor(5, "items/doc-07")

	assert.Equal(t, 5, cursor.PageSize())
	assert.True(t, cursor.HasNext())
	assert.Equal(t, "items/doc-07", cursor.ContinuationRef())
}

func Test_Cursor_Advance(t *testing.T) {
	tests := []struct {
		name            string
		cursor          Cursor
		page            []Snapshot
		expectedHasNext bool
		expectedRef     string
	}{
		{
			name:            "full_page_keeps_has_next_and_moves_ref_to_last_document",
			cursor:          NewCursor(3),
			page:            pageOfRefs("items/a", "items/b", "items/c"),
			expectedHasNext: true,
			expectedRef:     "items/c",
		},
		{
			name:            "short_page_clears_has_next_but_still_moves_ref",
			cursor:          NewCursor(3),
			page:            pageOfRefs("items/a", "items/b"),
			expectedHasNext: false,
			expectedRef:     "items/b",
		},
		{
			name:            "empty_page_clears_has_next_and_keeps_previous_ref",
			cursor:          ResumeCursor(3, "items/z"),
			page:            nil,
			expectedHasNext: false,
			expectedRef:     "items/z",
		},
		{
			name:            "empty_page_on_fresh_cursor_keeps_empty_ref",
			cursor:          NewCursor(3),
			page:            nil,
			expectedHasNext: false,
			expectedRef:     "",
		},
		{
			name:            "zero_value_cursor_is_normalized_before_advancing",
			cursor:          Cursor{},
			page:            pageOfRefs("items/a"),
			expectedHasNext: false,
			expectedRef:     "items/a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			advanced := tt.cursor.Advance(tt.page)

			assert.Equal(t, tt.expectedHasNext, advanced.HasNext())
			assert.Equal(t, tt.expectedRef, advanced.ContinuationRef())
		})
	}
}

func Test_Cursor_AdvanceDoesNotMutateReceiver(t *testing.T) {
	original := ResumeCursor(3, "items/a")

	_ = original.Advance(pageOfRefs("items/b", "items/c", "items/d"))

	assert.Equal(t, "items/a", original.ContinuationRef())
	assert.True(t, original.HasNext())
}

func Test_Cursor_FullPageOnExactMultipleStillReportsHasNext(t *testing.T) {
	// The more-data hint is a heuristic: a full final page looks like more data
	// is coming, and only the following empty page clears it.
	cursor := NewCursor(2)

	cursor = cursor.Advance(pageOfRefs("items/a", "items/b"))
	assert.True(t, cursor.HasNext())
	assert.Equal(t, "items/b", cursor.ContinuationRef())

	cursor = cursor.Advance(nil)
	assert.False(t, cursor.HasNext())
	assert.Equal(t, "items/b", cursor.ContinuationRef())
}
