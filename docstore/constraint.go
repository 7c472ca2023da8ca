package docstore

// FieldPathString names a field inside a document payload; nested fields are
// addressed with dots ("address.city").
type FieldPathString = string

// DocumentID is the sentinel field path addressing a document's own identity
// instead of a payload field. Ordering by it is stable across deletions, which
// is what the batched deletion loop relies on to make progress.
const DocumentID FieldPathString = "__name__"

// ComparisonOp is the operator of a where constraint. Operators are not
// validated against field types here; an unsupported combination surfaces as an
// execution-time failure from the storage engine.
type ComparisonOp string

const (
	OpEqual              ComparisonOp = "=="
	OpNotEqual           ComparisonOp = "!="
	OpLessThan           ComparisonOp = "<"
	OpLessThanOrEqual    ComparisonOp = "<="
	OpGreaterThan        ComparisonOp = ">"
	OpGreaterThanOrEqual ComparisonOp = ">="
	OpArrayContains      ComparisonOp = "array-contains"
)

// Direction is the sort direction of an order-by constraint.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// String provides a string representation of Direction for logging and debugging.
func (d Direction) String() string {
	switch d {
	case Asc:
		return "asc"
	case Desc:
		return "desc"
	default:
		return "unknown"
	}
}

/***** Constraint *****/

// Constraint is a filter or sort directive applied to a collection query.
// Constraints are immutable once constructed and are applied strictly in
// caller-supplied order.
type Constraint interface {
	applyTo(q QueryHandle) QueryHandle
}

/***** WhereConstraint *****/

// WhereConstraint filters a query on one payload field.
type WhereConstraint struct {
	fieldPath FieldPathString
	op        ComparisonOp
	value     any
}

// Where creates a WhereConstraint. It is a pure factory: no validation of the
// operator against the field's type happens here, validity is deferred to the
// storage engine at execution time.
func Where(fieldPath FieldPathString, op ComparisonOp, value any) WhereConstraint {
	return WhereConstraint{fieldPath: fieldPath, op: op, value: value}
}

func (wc WhereConstraint) FieldPath() FieldPathString {
	return wc.fieldPath
}

func (wc WhereConstraint) Operator() ComparisonOp {
	return wc.op
}

func (wc WhereConstraint) Value() any {
	return wc.value
}

func (wc WhereConstraint) applyTo(q QueryHandle) QueryHandle {
	return q.Filter(wc.fieldPath, wc.op, wc.value)
}

/***** OrderByConstraint *****/

// OrderByConstraint sorts a query on one payload field.
type OrderByConstraint struct {
	fieldPath FieldPathString
	direction Direction
}

// OrderBy creates an OrderByConstraint. The direction defaults to Asc when
// none is supplied; at most the first supplied direction is used.
func OrderBy(fieldPath FieldPathString, direction ...Direction) OrderByConstraint {
	dir := Asc
	if len(direction) > 0 {
		dir = direction[0]
	}

	return OrderByConstraint{fieldPath: fieldPath, direction: dir}
}

func (oc OrderByConstraint) FieldPath() FieldPathString {
	return oc.fieldPath
}

func (oc OrderByConstraint) Direction() Direction {
	return oc.direction
}

func (oc OrderByConstraint) applyTo(q QueryHandle) QueryHandle {
	return q.Sort(oc.fieldPath, oc.direction)
}

// applyConstraints folds the constraint list left-to-right onto the query
// handle. No reordering, no deduplication, no conflict detection: a semantic
// conflict between constraints is the storage engine's to report.
func applyConstraints(q QueryHandle, constraints []Constraint) QueryHandle {
	for _, constraint := range constraints {
		q = constraint.applyTo(q)
	}

	return q
}
