package store

// FilterOp is a filter predicate operator. The set mirrors what the remote
// service supports: equality, greater-or-equal, less-or-equal and
// substring match.
type FilterOp string

const (
	OpEq       FilterOp = "eq"
	OpGte      FilterOp = "gte"
	OpLte      FilterOp = "lte"
	OpContains FilterOp = "contains"
)

// Cond is a single filter condition.
type Cond struct {
	Column string
	Op     FilterOp
	Value  any
}

// Valid checks if the condition is well formed.
func (c Cond) Valid() bool {
	if c.Column == "" {
		return false
	}
	switch c.Op {
	case OpEq, OpGte, OpLte, OpContains:
		return true
	default:
		return false
	}
}

// Query combines filter conditions with ordering and a row limit.
// A zero Query matches everything.
type Query struct {
	Conds   []Cond
	OrderBy string
	Desc    bool
	Limit   int
}

// Where appends a condition and returns the query for chaining.
func (q Query) Where(column string, op FilterOp, value any) Query {
	q.Conds = append(q.Conds, Cond{Column: column, Op: op, Value: value})
	return q
}

// Order sets the ordering column and direction.
func (q Query) Order(column string, desc bool) Query {
	q.OrderBy = column
	q.Desc = desc
	return q
}

// Take sets the row limit.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// Valid checks every condition in the query.
func (q Query) Valid() bool {
	for _, c := range q.Conds {
		if !c.Valid() {
			return false
		}
	}
	return true
}

// Eq is shorthand for a single-condition equality query.
func Eq(column string, value any) Query {
	return Query{}.Where(column, OpEq, value)
}
