package filter

import (
	"fmt"

	appErrors "github.com/noah-isme/member-signups/pkg/errors"
)

// Operator is a comparison understood by the remote search action.
type Operator string

const (
	OpEq Operator = "="
	OpLt Operator = "<"
	OpLe Operator = "<="
	OpGt Operator = ">"
	OpGe Operator = ">="
	OpIn Operator = "in"
)

// Valid reports whether op belongs to the supported operator set.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpLt, OpLe, OpGt, OpGe, OpIn:
		return true
	default:
		return false
	}
}

// Clause is a single (field, operator, value) predicate.
type Clause struct {
	Field string
	Op    Operator
	Value interface{}
}

// Tuple returns the clause in the remote triple form.
func (c Clause) Tuple() []interface{} {
	return []interface{}{c.Field, string(c.Op), c.Value}
}

// Expression accumulates filter clauses. A freshly created expression is open
// and bound to one field; the first comparison closes it. Further comparisons
// on a closed expression record a validation error instead of a clause.
type Expression struct {
	field   string
	clauses []Clause
	closed  bool
	err     error
}

// Field starts an open expression for the given field.
func Field(name string) *Expression {
	return &Expression{field: name}
}

// Eq appends field = value.
func (e *Expression) Eq(value interface{}) *Expression { return e.append(OpEq, value) }

// Lt appends field < value.
func (e *Expression) Lt(value interface{}) *Expression { return e.append(OpLt, value) }

// Le appends field <= value.
func (e *Expression) Le(value interface{}) *Expression { return e.append(OpLe, value) }

// Gt appends field > value.
func (e *Expression) Gt(value interface{}) *Expression { return e.append(OpGt, value) }

// Ge appends field >= value.
func (e *Expression) Ge(value interface{}) *Expression { return e.append(OpGe, value) }

// In appends a membership clause. Values keep their order.
func (e *Expression) In(values ...interface{}) *Expression {
	list := make([]interface{}, len(values))
	copy(list, values)
	return e.append(OpIn, list)
}

func (e *Expression) append(op Operator, value interface{}) *Expression {
	if e.err != nil {
		return e
	}
	if e.closed {
		e.err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("filter on %q already finalized", e.field))
		return e
	}
	e.clauses = append(e.clauses, Clause{Field: e.field, Op: op, Value: value})
	e.closed = true
	return e
}

// Combine returns a new closed expression holding the clauses of e followed by
// those of other.
func (e *Expression) Combine(other *Expression) *Expression {
	out := &Expression{closed: true}
	if e != nil {
		out.field = e.field
		out.err = e.err
		out.clauses = append(out.clauses, e.clauses...)
	}
	if other != nil {
		if out.err == nil {
			out.err = other.err
		}
		out.clauses = append(out.clauses, other.clauses...)
	}
	return out
}

// And combines any number of expressions left to right.
func And(exprs ...*Expression) *Expression {
	out := &Expression{closed: true}
	for _, expr := range exprs {
		out = out.Combine(expr)
	}
	return out
}

// Closed reports whether a comparison has been applied.
func (e *Expression) Closed() bool {
	return e.closed
}

// Empty reports whether the expression carries no clauses.
func (e *Expression) Empty() bool {
	return e == nil || len(e.clauses) == 0
}

// Err returns the first construction error, if any.
func (e *Expression) Err() error {
	return e.err
}

// Clauses returns a copy of the accumulated clauses.
func (e *Expression) Clauses() ([]Clause, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([]Clause, len(e.clauses))
	copy(out, e.clauses)
	return out, nil
}

// Domain renders the clauses in the list-of-triples wire form.
func (e *Expression) Domain() ([]interface{}, error) {
	clauses, err := e.Clauses()
	if err != nil {
		return nil, err
	}
	return ToDomain(clauses), nil
}

// ToDomain renders arbitrary clauses in the list-of-triples wire form.
func ToDomain(clauses []Clause) []interface{} {
	domain := make([]interface{}, 0, len(clauses))
	for _, clause := range clauses {
		domain = append(domain, clause.Tuple())
	}
	return domain
}

// FromClauses builds a closed expression out of already parsed clauses.
func FromClauses(clauses []Clause) *Expression {
	out := &Expression{closed: true, clauses: make([]Clause, len(clauses))}
	copy(out.clauses, clauses)
	return out
}
