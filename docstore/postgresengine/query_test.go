package postgresengine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagedstore/docstore-go/docstore"
)

func testEngine() *Engine {
	return &Engine{tableName: defaultDocumentsTableName}
}

func selectSQL(t *testing.T, q docstore.QueryHandle) string {
	t.Helper()

	pq, isPGQuery := q.(pgQuery)
	require.True(t, isPGQuery)

	sqlQuery, err := pq.buildSelectQuery()
	require.NoError(t, err)

	return sqlQuery
}

// assertOrderedFragments checks that every fragment occurs in the SQL, in the
// given order.
func assertOrderedFragments(t *testing.T, sqlQuery string, fragments ...string) {
	t.Helper()

	pos := 0
	for _, fragment := range fragments {
		idx := strings.Index(sqlQuery[pos:], fragment)
		require.GreaterOrEqual(t, idx, 0, "fragment %q not found in order in: %s", fragment, sqlQuery)
		pos += idx + len(fragment)
	}
}

func Test_BuildSelectQuery_PlainCollectionScan(t *testing.T) {
	engine := testEngine()

	sqlQuery := selectSQL(t, engine.Query("items"))

	assertOrderedFragments(t, sqlQuery,
		`SELECT "ref", "doc_id", "payload" FROM "documents"`,
		`"collection" = 'items'`,
		`ORDER BY "ref" ASC`,
	)
	assert.NotContains(t, sqlQuery, "LIMIT")
}

func Test_BuildSelectQuery_FieldFilters(t *testing.T) {
	tests := []struct {
		name             string
		op               docstore.ComparisonOp
		value            any
		expectedFragment string
	}{
		{
			name:             "equality_compares_jsonb_values",
			op:               docstore.OpEqual,
			value:            "open",
			expectedFragment: `(payload #> '{status}'::text[]) = '"open"'::jsonb`,
		},
		{
			name:             "inequality",
			op:               docstore.OpNotEqual,
			value:            "open",
			expectedFragment: `(payload #> '{status}'::text[]) <> '"open"'::jsonb`,
		},
		{
			name:             "greater_than_on_number",
			op:               docstore.OpGreaterThan,
			value:            3,
			expectedFragment: `(payload #> '{status}'::text[]) > '3'::jsonb`,
		},
		{
			name:             "less_than_or_equal_on_number",
			op:               docstore.OpLessThanOrEqual,
			value:            7.5,
			expectedFragment: `(payload #> '{status}'::text[]) <= '7.5'::jsonb`,
		},
		{
			name:             "array_contains_wraps_value_in_array",
			op:               docstore.OpArrayContains,
			value:            "blue",
			expectedFragment: `(payload #> '{status}'::text[]) @> '["blue"]'::jsonb`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := testEngine()

			sqlQuery := selectSQL(t, engine.Query("items").Filter("status", tt.op, tt.value))

			assert.Contains(t, sqlQuery, tt.expectedFragment)
		})
	}
}

func Test_BuildSelectQuery_NestedFieldPathBecomesTextArray(t *testing.T) {
	engine := testEngine()

	sqlQuery := selectSQL(t, engine.Query("items").Filter("address.city", docstore.OpEqual, "Berlin"))

	assert.Contains(t, sqlQuery, `(payload #> '{address,city}'::text[]) = '"Berlin"'::jsonb`)
}

func Test_BuildSelectQuery_IdentityFilterUsesRefColumn(t *testing.T) {
	engine := testEngine()

	sqlQuery := selectSQL(t, engine.Query("items").Filter(docstore.DocumentID, docstore.OpGreaterThan, "items/doc-05"))

	assert.Contains(t, sqlQuery, `"ref" > 'items/doc-05'`)
	assert.NotContains(t, sqlQuery, "__name__")
}

func Test_BuildSelectQuery_IdentityFilterRequiresStringRef(t *testing.T) {
	engine := testEngine()

	pq, isPGQuery := engine.Query("items").Filter(docstore.DocumentID, docstore.OpEqual, 42).(pgQuery)
	require.True(t, isPGQuery)

	_, err := pq.buildSelectQuery()

	assert.ErrorIs(t, err, docstore.ErrBuildingQueryFailed)
}

func Test_BuildSelectQuery_SortAppendsRefTiebreak(t *testing.T) {
	engine := testEngine()

	sqlQuery := selectSQL(t, engine.Query("items").Sort("rank", docstore.Desc).Limit(10))

	assertOrderedFragments(t, sqlQuery,
		`ORDER BY (payload #> '{rank}'::text[]) DESC`,
		`"ref" ASC`,
		`LIMIT 10`,
	)
}

func Test_BuildSelectQuery_ExplicitIdentitySortGetsNoExtraTiebreak(t *testing.T) {
	engine := testEngine()

	sqlQuery := selectSQL(t, engine.Query("items").Sort(docstore.DocumentID, docstore.Desc))

	assert.Contains(t, sqlQuery, `ORDER BY "ref" DESC`)
	assert.Equal(t, 1, strings.Count(sqlQuery, `"ref" DESC`))
	assert.NotContains(t, sqlQuery, `"ref" ASC`)
}

func Test_BuildSelectQuery_StartAfterExpandsKeysetPredicate(t *testing.T) {
	engine := testEngine()
	boundary := pgSnapshot{
		ref:     "items/doc-05",
		id:      "doc-05",
		exists:  true,
		payload: []byte(`{"rank":5,"name":"item 5"}`),
	}

	sqlQuery := selectSQL(t, engine.Query("items").
		Sort("rank", docstore.Asc).
		StartAfter(boundary).
		Limit(10))

	// Keyset predicate: past the boundary's rank, or equal rank and past its ref.
	assert.Contains(t, sqlQuery, `(payload #> '{rank}'::text[]) > '5'::jsonb`)
	assert.Contains(t, sqlQuery, `(payload #> '{rank}'::text[]) = '5'::jsonb`)
	assert.Contains(t, sqlQuery, `"ref" > 'items/doc-05'`)
	assert.Contains(t, sqlQuery, " OR ")
}

func Test_BuildSelectQuery_StartAfterOnDescendingSortInvertsComparison(t *testing.T) {
	engine := testEngine()
	boundary := pgSnapshot{
		ref:     "items/doc-05",
		id:      "doc-05",
		exists:  true,
		payload: []byte(`{"rank":5}`),
	}

	sqlQuery := selectSQL(t, engine.Query("items").
		Sort("rank", docstore.Desc).
		StartAfter(boundary))

	assert.Contains(t, sqlQuery, `(payload #> '{rank}'::text[]) < '5'::jsonb`)
}

func Test_BuildSelectQuery_StartAfterWithMissingBoundaryFieldUsesJSONNull(t *testing.T) {
	engine := testEngine()
	boundary := pgSnapshot{
		ref:     "items/doc-05",
		id:      "doc-05",
		exists:  true,
		payload: []byte(`{"name":"item 5"}`),
	}

	sqlQuery := selectSQL(t, engine.Query("items").
		Sort("rank", docstore.Asc).
		StartAfter(boundary))

	assert.Contains(t, sqlQuery, `(payload #> '{rank}'::text[]) > 'null'::jsonb`)
}

func Test_BuildSelectQuery_IdentityOnlyStartAfter(t *testing.T) {
	engine := testEngine()
	boundary := pgSnapshot{
		ref:     "items/doc-05",
		id:      "doc-05",
		exists:  true,
		payload: []byte(`{"rank":5}`),
	}

	sqlQuery := selectSQL(t, engine.Query("items").StartAfter(boundary).Limit(300))

	assertOrderedFragments(t, sqlQuery,
		`"ref" > 'items/doc-05'`,
		`ORDER BY "ref" ASC`,
		`LIMIT 300`,
	)
}

func Test_BuildSelectQuery_HandleIsImmutable(t *testing.T) {
	engine := testEngine()

	base := engine.Query("items")
	_ = base.Filter("rank", docstore.OpGreaterThan, 2)

	sqlQuery := selectSQL(t, base)

	assert.NotContains(t, sqlQuery, "rank")
}

func Test_BuildGetQuery_SelectsByRef(t *testing.T) {
	engine := testEngine()

	sqlQuery, err := engine.buildGetQuery("items/doc-01")

	require.NoError(t, err)
	assertOrderedFragments(t, sqlQuery,
		`SELECT "ref", "doc_id", "payload" FROM "documents"`,
		`"ref" = 'items/doc-01'`,
		`LIMIT 1`,
	)
}

func Test_BuildUpsertQuery_InsertsAndUpdatesPayload(t *testing.T) {
	engine := testEngine()

	sqlQuery, err := engine.buildUpsertQuery("items/doc-01", []byte(`{"rank":1}`))

	require.NoError(t, err)
	assertOrderedFragments(t, sqlQuery,
		`INSERT INTO "documents"`,
		`'items/doc-01'`,
		`'items'`,
		`'doc-01'`,
		`'{"rank":1}'::jsonb`,
		`ON CONFLICT`,
		`DO UPDATE SET`,
	)
}

func Test_TextArrayPath(t *testing.T) {
	tests := []struct {
		name      string
		fieldPath string
		expected  string
	}{
		{name: "plain_field", fieldPath: "rank", expected: "{rank}"},
		{name: "nested_field", fieldPath: "address.city", expected: "{address,city}"},
		{name: "deeply_nested_field", fieldPath: "a.b.c", expected: "{a,b,c}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, textArrayPath(tt.fieldPath))
		})
	}
}

func Test_CollectionOf(t *testing.T) {
	tests := []struct {
		name     string
		ref      string
		expected string
	}{
		{name: "plain_ref", ref: "items/doc-1", expected: "items"},
		{name: "nested_ref", ref: "users/u1/orders/o7", expected: "users/u1/orders"},
		{name: "no_separator", ref: "doc-1", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, collectionOf(tt.ref))
		})
	}
}

func Test_Schema_ContainsTableAndColumns(t *testing.T) {
	ddl := Schema("my_documents")

	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS my_documents")
	for _, col := range []string{colRef, colCollection, colDocID, colPayload} {
		assert.Contains(t, ddl, col)
	}
}
