package memoryengine

import (
	"context"
	"reflect"
	"slices"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/pagedstore/docstore-go/docstore"
)

type filterSpec struct {
	fieldPath docstore.FieldPathString
	op        docstore.ComparisonOp
	value     any
}

type sortSpec struct {
	fieldPath docstore.FieldPathString
	direction docstore.Direction
}

// query is an immutable query under construction; every refinement returns a
// copy, so handles can be shared and reused.
type query struct {
	engine     *Engine
	collection string
	filters    []filterSpec
	sorts      []sortSpec
	startAfter docstore.Snapshot
	limit      int
}

func (q query) Filter(fieldPath docstore.FieldPathString, op docstore.ComparisonOp, value any) docstore.QueryHandle {
	q.filters = append(slices.Clone(q.filters), filterSpec{fieldPath: fieldPath, op: op, value: value})
	return q
}

func (q query) Sort(fieldPath docstore.FieldPathString, direction docstore.Direction) docstore.QueryHandle {
	q.sorts = append(slices.Clone(q.sorts), sortSpec{fieldPath: fieldPath, direction: direction})
	return q
}

func (q query) StartAfter(boundary docstore.Snapshot) docstore.QueryHandle {
	q.startAfter = boundary
	return q
}

func (q query) Limit(n int) docstore.QueryHandle {
	q.limit = n
	return q
}

// Documents evaluates the query: filter, sort (with an implicit ascending ref
// tiebreak), position after the boundary, bound the count.
func (q query) Documents(ctx context.Context) ([]docstore.Snapshot, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	candidates := q.engine.collect(q.collection)

	matching := make([]evaluatedDoc, 0, len(candidates))
	for _, doc := range candidates {
		fields, decodeErr := decodeFields(doc.payload)
		if decodeErr != nil {
			return nil, decodeErr
		}

		if q.matches(doc, fields) {
			matching = append(matching, evaluatedDoc{doc: doc, fields: fields})
		}
	}

	keys := q.sortKeys()

	slices.SortStableFunc(matching, func(a, b evaluatedDoc) int {
		return compareByKeys(a, b, keys)
	})

	if q.startAfter != nil {
		boundary, boundaryErr := boundaryDoc(q.startAfter)
		if boundaryErr != nil {
			return nil, boundaryErr
		}

		matching = slices.DeleteFunc(matching, func(d evaluatedDoc) bool {
			return compareByKeys(d, boundary, keys) <= 0
		})
	}

	if q.limit > 0 && len(matching) > q.limit {
		matching = matching[:q.limit]
	}

	snaps := make([]docstore.Snapshot, 0, len(matching))
	for _, d := range matching {
		snaps = append(snaps, snapshotOf(d.doc))
	}

	return snaps, nil
}

// collect grabs all documents of one collection under the lock and counts the
// query round.
func (e *Engine) collect(collection string) []document {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queryCount++

	docs := make([]document, 0)
	for _, doc := range e.docs {
		if collectionOf(doc.ref) == collection {
			docs = append(docs, doc)
		}
	}

	return docs
}

type evaluatedDoc struct {
	doc    document
	fields map[string]any
}

func boundaryDoc(boundary docstore.Snapshot) (evaluatedDoc, error) {
	fields, decodeErr := decodeFields(boundary.Data())
	if decodeErr != nil {
		return evaluatedDoc{}, decodeErr
	}

	return evaluatedDoc{
		doc:    document{ref: boundary.Ref(), id: boundary.ID()},
		fields: fields,
	}, nil
}

func decodeFields(payload []byte) (map[string]any, error) {
	fields := make(map[string]any)
	if unmarshalErr := jsoniter.ConfigFastest.Unmarshal(payload, &fields); unmarshalErr != nil {
		return nil, unmarshalErr
	}

	return fields, nil
}

// sortKeys returns the effective sort key list: the explicit order-by
// constraints followed by the ascending ref tiebreak, which also serves as the
// identity ordering when no explicit sort was given.
func (q query) sortKeys() []sortSpec {
	keys := slices.Clone(q.sorts)

	hasIdentity := slices.ContainsFunc(keys, func(k sortSpec) bool {
		return k.fieldPath == docstore.DocumentID
	})
	if !hasIdentity {
		keys = append(keys, sortSpec{fieldPath: docstore.DocumentID, direction: docstore.Asc})
	}

	return keys
}

func compareByKeys(a, b evaluatedDoc, keys []sortSpec) int {
	for _, key := range keys {
		cmp := compareValues(fieldValue(a, key.fieldPath), fieldValue(b, key.fieldPath))
		if key.direction == docstore.Desc {
			cmp = -cmp
		}

		if cmp != 0 {
			return cmp
		}
	}

	return 0
}

func fieldValue(d evaluatedDoc, fieldPath docstore.FieldPathString) any {
	if fieldPath == docstore.DocumentID {
		return d.doc.ref
	}

	value, _ := extractField(d.fields, fieldPath)

	return value
}

// extractField walks a dotted field path through nested objects.
func extractField(fields map[string]any, fieldPath docstore.FieldPathString) (any, bool) {
	segments := strings.Split(fieldPath, ".")

	var current any = fields
	for _, segment := range segments {
		object, isObject := current.(map[string]any)
		if !isObject {
			return nil, false
		}

		next, found := object[segment]
		if !found {
			return nil, false
		}

		current = next
	}

	return current, true
}

func (q query) matches(doc document, fields map[string]any) bool {
	for _, filter := range q.filters {
		var fieldVal any
		var present bool

		if filter.fieldPath == docstore.DocumentID {
			fieldVal, present = doc.ref, true
		} else {
			fieldVal, present = extractField(fields, filter.fieldPath)
		}

		// A missing field matches no operator.
		if !present {
			return false
		}

		if !applyOp(fieldVal, filter.op, normalizeValue(filter.value)) {
			return false
		}
	}

	return true
}

func applyOp(fieldVal any, op docstore.ComparisonOp, want any) bool {
	switch op {
	case docstore.OpEqual:
		return reflect.DeepEqual(fieldVal, want)
	case docstore.OpNotEqual:
		return !reflect.DeepEqual(fieldVal, want)
	case docstore.OpLessThan:
		return compareValues(fieldVal, want) < 0
	case docstore.OpLessThanOrEqual:
		return compareValues(fieldVal, want) <= 0
	case docstore.OpGreaterThan:
		return compareValues(fieldVal, want) > 0
	case docstore.OpGreaterThanOrEqual:
		return compareValues(fieldVal, want) >= 0
	case docstore.OpArrayContains:
		elements, isArray := fieldVal.([]any)
		if !isArray {
			return false
		}
		return slices.ContainsFunc(elements, func(element any) bool {
			return reflect.DeepEqual(element, want)
		})
	default:
		return false
	}
}

// normalizeValue brings a caller-supplied Go value into the same shape decoded
// JSON payloads have (float64 numbers, []any arrays, map[string]any objects).
func normalizeValue(value any) any {
	raw, marshalErr := jsoniter.ConfigFastest.Marshal(value)
	if marshalErr != nil {
		return value
	}

	var normalized any
	if unmarshalErr := jsoniter.ConfigFastest.Unmarshal(raw, &normalized); unmarshalErr != nil {
		return value
	}

	return normalized
}

// compareValues orders decoded JSON values: nil < bool < number < string <
// everything else; same-type scalars compare naturally.
func compareValues(a, b any) int {
	rankA, rankB := typeRank(a), typeRank(b)
	if rankA != rankB {
		return rankA - rankB
	}

	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		return strings.Compare(av, b.(string))
	default:
		// Composite values have no meaningful order; compare their JSON forms
		// so sorting stays deterministic.
		rawA, _ := jsoniter.ConfigFastest.Marshal(a)
		rawB, _ := jsoniter.ConfigFastest.Marshal(b)
		return strings.Compare(string(rawA), string(rawB))
	}
}

func typeRank(value any) int {
	switch value.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}
