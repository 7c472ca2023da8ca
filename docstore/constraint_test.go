package docstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// recordingQuery captures the clause sequence applied to it, so tests can
// assert that constraints translate one-to-one and in caller order.
type recordingQuery struct {
	clauses []string
}

func (q recordingQuery) Filter(fieldPath FieldPathString, op ComparisonOp, value any) QueryHandle {
	q.clauses = append(append([]string(nil), q.clauses...),
		fmt.Sprintf("filter(%s %s %v)", fieldPath, op, value))
	return q
}

func (q recordingQuery) Sort(fieldPath FieldPathString, direction Direction) QueryHandle {
	q.clauses = append(append([]string(nil), q.clauses...),
		fmt.Sprintf("sort(%s %s)", fieldPath, direction))
	return q
}

func (q recordingQuery) StartAfter(boundary Snapshot) QueryHandle {
	q.clauses = append(append([]string(nil), q.clauses...),
		fmt.Sprintf("startAfter(%s)", boundary.Ref()))
	return q
}

func (q recordingQuery) Limit(n int) QueryHandle {
	q.clauses = append(append([]string(nil), q.clauses...), fmt.Sprintf("limit(%d)", n))
	return q
}

func (q recordingQuery) Documents(_ context.Context) ([]Snapshot, error) {
	return nil, nil
}

func Test_Where_CapturesFieldOperatorAndValue(t *testing.T) {
	constraint := Where("address.city", OpEqual, "Berlin")

	assert.Equal(t, "address.city", constraint.FieldPath())
	assert.Equal(t, OpEqual, constraint.Operator())
	assert.Equal(t, "Berlin", constraint.Value())
}

func Test_OrderBy_DirectionDefaultsToAscending(t *testing.T) {
	tests := []struct {
		name              string
		constraint        OrderByConstraint
		expectedDirection Direction
	}{
		{
			name:              "no_direction_defaults_to_asc",
			constraint:        OrderBy("rank"),
			expectedDirection: Asc,
		},
		{
			name:              "explicit_asc",
			constraint:        OrderBy("rank", Asc),
			expectedDirection: Asc,
		},
		{
			name:              "explicit_desc",
			constraint:        OrderBy("rank", Desc),
			expectedDirection: Desc,
		},
		{
			name:              "only_first_direction_is_used",
			constraint:        OrderBy("rank", Desc, Asc),
			expectedDirection: Desc,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, "rank", tt.constraint.FieldPath())
			assert.Equal(t, tt.expectedDirection, tt.constraint.Direction())
		})
	}
}

func Test_ApplyConstraints_AppliesInCallerOrder(t *testing.T) {
	tests := []struct {
		name            string
		constraints     []Constraint
		expectedClauses []string
	}{
		{
			name:            "no_constraints_leave_query_untouched",
			constraints:     nil,
			expectedClauses: nil,
		},
		{
			name: "single_where",
			constraints: []Constraint{
				Where("status", OpEqual, "open"),
			},
			expectedClauses: []string{"filter(status == open)"},
		},
		{
			name: "where_then_order_by",
			constraints: []Constraint{
				Where("rank", OpGreaterThan, 3),
				OrderBy("rank", Desc),
			},
			expectedClauses: []string{"filter(rank > 3)", "sort(rank desc)"},
		},
		{
			name: "duplicates_are_preserved_not_deduplicated",
			constraints: []Constraint{
				Where("rank", OpGreaterThan, 1),
				Where("rank", OpGreaterThan, 1),
			},
			expectedClauses: []string{"filter(rank > 1)", "filter(rank > 1)"},
		},
		{
			name: "interleaved_constraints_keep_relative_order",
			constraints: []Constraint{
				OrderBy("rank"),
				Where("status", OpNotEqual, "closed"),
				OrderBy(DocumentID, Desc),
			},
			expectedClauses: []string{
				"sort(rank asc)",
				"filter(status != closed)",
				"sort(__name__ desc)",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := applyConstraints(recordingQuery{}, tt.constraints)

			recorded, isRecording := result.(recordingQuery)
			assert.True(t, isRecording)
			assert.Equal(t, tt.expectedClauses, recorded.clauses)
		})
	}
}

func Test_ApplyConstraints_LeavesOriginalHandleUsable(t *testing.T) {
	base := recordingQuery{}

	_ = applyConstraints(base, []Constraint{Where("a", OpEqual, 1)})
	second := applyConstraints(base, []Constraint{Where("b", OpEqual, 2)})

	recorded, isRecording := second.(recordingQuery)
	assert.True(t, isRecording)
	assert.Equal(t, []string{"filter(b == 2)"}, recorded.clauses)
}
