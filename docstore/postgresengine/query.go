package postgresengine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	jsoniter "github.com/json-iterator/go"

	"github.com/pagedstore/docstore-go/docstore"
)

// jsonb accessor and comparison shapes; the field path is bound as a text[]
// literal so dotted paths address nested objects.
const (
	jsonFieldEq       = "(payload #> ?::text[]) = ?::jsonb"
	jsonFieldNeq      = "(payload #> ?::text[]) <> ?::jsonb"
	jsonFieldLt       = "(payload #> ?::text[]) < ?::jsonb"
	jsonFieldLte      = "(payload #> ?::text[]) <= ?::jsonb"
	jsonFieldGt       = "(payload #> ?::text[]) > ?::jsonb"
	jsonFieldGte      = "(payload #> ?::text[]) >= ?::jsonb"
	jsonFieldContains = "(payload #> ?::text[]) @> ?::jsonb"
	jsonFieldOrder    = "(payload #> ?::text[])"
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

// pgQuery is an immutable query under construction; every refinement returns a
// copy, so handles can be shared and reused.
type pgQuery struct {
	engine     *Engine
	collection string
	filters    []filterSpec
	sorts      []sortSpec
	startAfter docstore.Snapshot
	limit      int
}

func (q pgQuery) Filter(fieldPath docstore.FieldPathString, op docstore.ComparisonOp, value any) docstore.QueryHandle {
	q.filters = append(slices.Clone(q.filters), filterSpec{fieldPath: fieldPath, op: op, value: value})
	return q
}

func (q pgQuery) Sort(fieldPath docstore.FieldPathString, direction docstore.Direction) docstore.QueryHandle {
	q.sorts = append(slices.Clone(q.sorts), sortSpec{fieldPath: fieldPath, direction: direction})
	return q
}

func (q pgQuery) StartAfter(boundary docstore.Snapshot) docstore.QueryHandle {
	q.startAfter = boundary
	return q
}

func (q pgQuery) Limit(n int) docstore.QueryHandle {
	q.limit = n
	return q
}

// Documents executes the query and returns the matching snapshots in sort order.
func (q pgQuery) Documents(ctx context.Context) ([]docstore.Snapshot, error) {
	e := q.engine

	spanCtx, span := e.startSpan(ctx, spanNameQuery, map[string]string{spanAttrCollection: q.collection})

	sqlQuery, buildErr := q.buildSelectQuery()
	if buildErr != nil {
		e.logError(spanCtx, logMsgBuildSelectQueryFailed, buildErr, logAttrCollection, q.collection)
		e.finishSpanError(span, errorTypeQueryBuild)

		return nil, buildErr
	}

	rows, duration, queryErr := e.executeQuery(spanCtx, sqlQuery, logActionQuery)
	if queryErr != nil {
		e.finishSpanError(span, errorTypeDatabase)
		return nil, queryErr
	}
	defer e.closeRows(spanCtx, rows)

	snaps := make([]docstore.Snapshot, 0)
	for rows.Next() {
		snap, scanErr := e.scanSnapshot(spanCtx, rows)
		if scanErr != nil {
			e.finishSpanError(span, errorTypeRowScan)
			return nil, scanErr
		}

		snaps = append(snaps, snap)
	}

	e.logOperation(
		spanCtx,
		logMsgQueryCompleted,
		logAttrCollection, q.collection,
		logAttrDocumentCount, len(snaps),
		logAttrDurationMS, e.toMilliseconds(duration),
	)
	e.recordDurationMetrics(spanCtx, metricQueryDuration, duration, operationQuery, statusSuccess)
	e.recordValueMetrics(spanCtx, metricDocumentsQueried, float64(len(snaps)), operationQuery, statusSuccess)
	e.finishSpanSuccess(span, map[string]string{
		spanAttrDocumentCount: fmt.Sprintf("%d", len(snaps)),
		spanAttrDurationMS:    fmt.Sprintf("%.2f", e.toMilliseconds(duration)),
	})

	return snaps, nil
}

func (q pgQuery) buildSelectQuery() (sqlQueryString, error) {
	stmt := goqu.Dialect(dialectPostgres).
		From(q.engine.tableName).
		Select(colRef, colDocID, colPayload).
		Where(goqu.C(colCollection).Eq(q.collection))

	for _, filter := range q.filters {
		filterExpr, filterErr := filterExpression(filter)
		if filterErr != nil {
			return "", filterErr
		}

		stmt = stmt.Where(filterExpr)
	}

	keys := q.sortKeys()

	ordered := make([]exp.OrderedExpression, 0, len(keys))
	for _, key := range keys {
		ordered = append(ordered, key.ordered())
	}
	stmt = stmt.Order(ordered...)

	if q.startAfter != nil {
		keysetExpr, keysetErr := keysetExpression(keys, q.startAfter)
		if keysetErr != nil {
			return "", keysetErr
		}

		stmt = stmt.Where(keysetExpr)
	}

	if q.limit > 0 {
		stmt = stmt.Limit(uint(q.limit))
	}

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(docstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// sortKeys returns the effective sort key list: the explicit order-by
// constraints followed by the ascending ref tiebreak. The tiebreak makes the
// total order strict, which startAfter needs to position unambiguously.
func (q pgQuery) sortKeys() []sortSpec {
	keys := slices.Clone(q.sorts)

	hasIdentity := slices.ContainsFunc(keys, func(k sortSpec) bool {
		return k.fieldPath == docstore.DocumentID
	})
	if !hasIdentity {
		keys = append(keys, sortSpec{fieldPath: docstore.DocumentID, direction: docstore.Asc})
	}

	return keys
}

func (k sortSpec) ordered() exp.OrderedExpression {
	if k.fieldPath == docstore.DocumentID {
		if k.direction == docstore.Desc {
			return goqu.C(colRef).Desc()
		}
		return goqu.C(colRef).Asc()
	}

	lit := goqu.L(jsonFieldOrder, textArrayPath(k.fieldPath))
	if k.direction == docstore.Desc {
		return lit.Desc()
	}

	return lit.Asc()
}

// equal builds "key = boundary value" for the keyset predicate.
func (k sortSpec) equal(boundary boundaryValue) exp.Expression {
	if k.fieldPath == docstore.DocumentID {
		return goqu.C(colRef).Eq(boundary.ref)
	}

	return goqu.L(jsonFieldEq, textArrayPath(k.fieldPath), boundary.rawJSON)
}

// strictlyAfter builds "key past the boundary value" with respect to the key's
// direction.
func (k sortSpec) strictlyAfter(boundary boundaryValue) exp.Expression {
	if k.fieldPath == docstore.DocumentID {
		if k.direction == docstore.Desc {
			return goqu.C(colRef).Lt(boundary.ref)
		}
		return goqu.C(colRef).Gt(boundary.ref)
	}

	shape := jsonFieldGt
	if k.direction == docstore.Desc {
		shape = jsonFieldLt
	}

	return goqu.L(shape, textArrayPath(k.fieldPath), boundary.rawJSON)
}

type boundaryValue struct {
	ref     string
	rawJSON string
}

// keysetExpression positions the result set strictly after the boundary
// document: an OR over key prefixes, each holding every earlier key equal and
// moving the current key strictly past the boundary's value.
func keysetExpression(keys []sortSpec, boundary docstore.Snapshot) (exp.Expression, error) {
	values, valuesErr := boundaryValues(keys, boundary)
	if valuesErr != nil {
		return nil, valuesErr
	}

	ors := make([]exp.Expression, 0, len(keys))
	for i := range keys {
		ands := make([]exp.Expression, 0, i+1)
		for j := 0; j < i; j++ {
			ands = append(ands, keys[j].equal(values[j]))
		}
		ands = append(ands, keys[i].strictlyAfter(values[i]))

		ors = append(ors, goqu.And(ands...))
	}

	return goqu.Or(ors...), nil
}

// boundaryValues extracts the boundary document's value for every sort key.
// Fields absent from the boundary payload become JSON null, which jsonb orders
// below every other value.
func boundaryValues(keys []sortSpec, boundary docstore.Snapshot) ([]boundaryValue, error) {
	fields := make(map[string]any)
	if unmarshalErr := jsoniter.ConfigFastest.Unmarshal(boundary.Data(), &fields); unmarshalErr != nil {
		return nil, errors.Join(docstore.ErrBuildingQueryFailed, unmarshalErr)
	}

	values := make([]boundaryValue, 0, len(keys))

	for _, key := range keys {
		if key.fieldPath == docstore.DocumentID {
			values = append(values, boundaryValue{ref: boundary.Ref()})
			continue
		}

		fieldVal, found := extractField(fields, key.fieldPath)
		if !found {
			values = append(values, boundaryValue{rawJSON: "null"})
			continue
		}

		raw, marshalErr := jsoniter.ConfigFastest.Marshal(fieldVal)
		if marshalErr != nil {
			return nil, errors.Join(docstore.ErrBuildingQueryFailed, marshalErr)
		}

		values = append(values, boundaryValue{rawJSON: string(raw)})
	}

	return values, nil
}

func filterExpression(filter filterSpec) (exp.Expression, error) {
	if filter.fieldPath == docstore.DocumentID {
		return identityFilterExpression(filter)
	}

	raw, marshalErr := jsoniter.ConfigFastest.Marshal(filter.value)
	if marshalErr != nil {
		return nil, errors.Join(docstore.ErrBuildingQueryFailed, marshalErr)
	}

	path := textArrayPath(filter.fieldPath)

	switch filter.op {
	case docstore.OpEqual:
		return goqu.L(jsonFieldEq, path, string(raw)), nil
	case docstore.OpNotEqual:
		return goqu.L(jsonFieldNeq, path, string(raw)), nil
	case docstore.OpLessThan:
		return goqu.L(jsonFieldLt, path, string(raw)), nil
	case docstore.OpLessThanOrEqual:
		return goqu.L(jsonFieldLte, path, string(raw)), nil
	case docstore.OpGreaterThan:
		return goqu.L(jsonFieldGt, path, string(raw)), nil
	case docstore.OpGreaterThanOrEqual:
		return goqu.L(jsonFieldGte, path, string(raw)), nil
	case docstore.OpArrayContains:
		return goqu.L(jsonFieldContains, path, "["+string(raw)+"]"), nil
	default:
		return nil, errors.Join(
			docstore.ErrBuildingQueryFailed,
			fmt.Errorf("unsupported comparison operator %q", filter.op),
		)
	}
}

func identityFilterExpression(filter filterSpec) (exp.Expression, error) {
	refVal, isString := filter.value.(string)
	if !isString {
		return nil, errors.Join(
			docstore.ErrBuildingQueryFailed,
			fmt.Errorf("filter on %s requires a string ref, got %T", docstore.DocumentID, filter.value),
		)
	}

	col := goqu.C(colRef)

	switch filter.op {
	case docstore.OpEqual:
		return col.Eq(refVal), nil
	case docstore.OpNotEqual:
		return col.Neq(refVal), nil
	case docstore.OpLessThan:
		return col.Lt(refVal), nil
	case docstore.OpLessThanOrEqual:
		return col.Lte(refVal), nil
	case docstore.OpGreaterThan:
		return col.Gt(refVal), nil
	case docstore.OpGreaterThanOrEqual:
		return col.Gte(refVal), nil
	default:
		return nil, errors.Join(
			docstore.ErrBuildingQueryFailed,
			fmt.Errorf("unsupported comparison operator %q on %s", filter.op, docstore.DocumentID),
		)
	}
}

// textArrayPath converts a dotted field path into a Postgres text[] literal
// ("a.b" -> "{a,b}").
func textArrayPath(fieldPath docstore.FieldPathString) string {
	return "{" + strings.ReplaceAll(fieldPath, ".", ",") + "}"
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
