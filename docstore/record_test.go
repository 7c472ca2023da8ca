package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payloadSnapshot struct {
	id      string
	ref     string
	payload []byte
}

func (s payloadSnapshot) ID() string {
	return s.id
}

func (s payloadSnapshot) Ref() string {
	return s.ref
}

func (s payloadSnapshot) Exists() bool {
	return true
}

func (s payloadSnapshot) Data() []byte {
	return s.payload
}

func Test_RecordFromSnapshot_DecodesPayloadAndAttachesIdentity(t *testing.T) {
	type item struct {
		Name string `json:"name"`
		Rank int    `json:"rank"`
	}

	snap := payloadSnapshot{
		id:      "doc-1",
		ref:     "items/doc-1",
		payload: []byte(`{"name":"first","rank":7}`),
	}

	record, err := recordFromSnapshot[item](snap)

	require.NoError(t, err)
	assert.Equal(t, "doc-1", record.ID)
	assert.Equal(t, "items/doc-1", record.Ref)
	assert.Equal(t, item{Name: "first", Rank: 7}, record.Data)
}

func Test_RecordFromSnapshot_InvalidPayloadFails(t *testing.T) {
	snap := payloadSnapshot{
		id:      "doc-1",
		ref:     "items/doc-1",
		payload: []byte(`{broken`),
	}

	_, err := recordFromSnapshot[map[string]any](snap)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecodingPayloadFailed)
}

func Test_RecordFromSnapshot_IdentityNeverComesFromPayload(t *testing.T) {
	// Payload fields named like identity metadata stay payload fields; the
	// record's identity comes from the snapshot alone.
	snap := payloadSnapshot{
		id:      "doc-1",
		ref:     "items/doc-1",
		payload: []byte(`{"id":"spoofed","ref":"elsewhere/x"}`),
	}

	record, err := recordFromSnapshot[map[string]any](snap)

	require.NoError(t, err)
	assert.Equal(t, "doc-1", record.ID)
	assert.Equal(t, "items/doc-1", record.Ref)
	assert.Equal(t, map[string]any{"id": "spoofed", "ref": "elsewhere/x"}, record.Data)
}

func Test_QueryData_StripsExactlyIdentityKeys(t *testing.T) {
	tests := []struct {
		name     string
		payload  map[string]any
		expected map[string]any
	}{
		{
			name:     "nil_payload_yields_empty_map",
			payload:  nil,
			expected: map[string]any{},
		},
		{
			name:     "payload_without_identity_keys_is_copied_unchanged",
			payload:  map[string]any{"name": "first", "rank": 7.0},
			expected: map[string]any{"name": "first", "rank": 7.0},
		},
		{
			name:     "identity_keys_are_removed",
			payload:  map[string]any{"id": "doc-1", "ref": "items/doc-1", "name": "first"},
			expected: map[string]any{"name": "first"},
		},
		{
			name:     "similarly_named_keys_survive",
			payload:  map[string]any{"id": "doc-1", "idx": 3.0, "reference": "kept"},
			expected: map[string]any{"idx": 3.0, "reference": "kept"},
		},
		{
			name:     "nested_identity_keys_are_not_touched",
			payload:  map[string]any{"id": "doc-1", "owner": map[string]any{"id": "user-9"}},
			expected: map[string]any{"owner": map[string]any{"id": "user-9"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, QueryData(tt.payload))
		})
	}
}

func Test_QueryData_IsIdempotentAndDoesNotMutateInput(t *testing.T) {
	payload := map[string]any{"id": "doc-1", "ref": "items/doc-1", "name": "first"}

	once := QueryData(payload)
	twice := QueryData(once)

	assert.Equal(t, once, twice)
	assert.Equal(t, map[string]any{"id": "doc-1", "ref": "items/doc-1", "name": "first"}, payload)
}

func Test_DocumentIDFromRef(t *testing.T) {
	tests := []struct {
		name     string
		ref      string
		expected string
	}{
		{name: "plain_ref", ref: "items/doc-1", expected: "doc-1"},
		{name: "nested_collection_ref", ref: "users/u1/orders/o7", expected: "o7"},
		{name: "ref_without_separator", ref: "doc-1", expected: "doc-1"},
		{name: "empty_ref", ref: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DocumentIDFromRef(tt.ref))
		})
	}
}
