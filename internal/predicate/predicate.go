// Package predicate is a typed filter tree over trade dataset columns.
// Trees are evaluated in memory by Compile or translated to parameterized
// SQL by ToSQL; both validate column references against a schema first.
package predicate

import (
	"errors"
	"fmt"
	"sort"

	"solana-trade-inspector/internal/domain"
)

var (
	// ErrUnknownColumn is returned when a tree references a column absent from the schema.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrNonNumericColumn is returned when a numeric operation targets a string column.
	ErrNonNumericColumn = errors.New("non-numeric column")
)

// Expr is a numeric value expression.
type Expr interface {
	exprNode()
}

// Column reads a numeric column.
type Column struct {
	Name string
}

// Scaled multiplies a numeric column by a constant factor.
type Scaled struct {
	Column Column
	Factor float64
}

func (Column) exprNode() {}
func (Scaled) exprNode() {}

// Col is shorthand for Column{Name: name}.
func Col(name string) Column {
	return Column{Name: name}
}

// Op is a numeric comparison operator.
type Op int

const (
	OpEq Op = iota + 1
	OpGt
	OpGe
	OpLt
	OpLe
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

func (o Op) apply(a, b float64) bool {
	switch o {
	case OpEq:
		return a == b
	case OpGt:
		return a > b
	case OpGe:
		return a >= b
	case OpLt:
		return a < b
	case OpLe:
		return a <= b
	}
	return false
}

// Predicate is a boolean condition over a row.
type Predicate interface {
	predicateNode()
}

// Compare holds when Left Op Value; null operands never match.
type Compare struct {
	Left  Expr
	Op    Op
	Value float64
}

// Equals holds when a string column equals Value.
type Equals struct {
	Column string
	Value  string
}

// In holds when a string column is one of Values.
type In struct {
	Column string
	Values []string
}

// Missing holds when a numeric column is null or NaN.
type Missing struct {
	Column string
}

// NotNull holds when a column is not null.
type NotNull struct {
	Column string
}

// And holds when every term holds. An empty And matches all rows.
type And []Predicate

// Or holds when any term holds. An empty Or matches no rows.
type Or []Predicate

func (Compare) predicateNode() {}
func (Equals) predicateNode()  {}
func (In) predicateNode()      {}
func (Missing) predicateNode() {}
func (NotNull) predicateNode() {}
func (And) predicateNode()     {}
func (Or) predicateNode()      {}

// All returns the conjunction of the non-nil terms, flattening nested Ands.
func All(terms ...Predicate) And {
	out := And{}
	for _, t := range terms {
		switch v := t.(type) {
		case nil:
		case And:
			out = append(out, All(v...)...)
		default:
			out = append(out, v)
		}
	}
	return out
}

// Any returns the disjunction of the non-nil terms.
func Any(terms ...Predicate) Or {
	out := Or{}
	for _, t := range terms {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Columns returns the sorted set of columns referenced by p.
func Columns(p Predicate) []string {
	seen := make(map[string]struct{})
	walk(p, func(name string, _ bool) { seen[name] = struct{}{} })
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Validate checks that every column referenced by p exists in schema and that
// numeric operations only target numeric columns.
func Validate(p Predicate, schema domain.Schema) error {
	var err error
	walk(p, func(name string, numeric bool) {
		if err != nil {
			return
		}
		err = checkColumn(name, numeric, schema)
	})
	return err
}

// ValidateExpr checks that e references an existing numeric column.
func ValidateExpr(e Expr, schema domain.Schema) error {
	c, err := exprColumn(e)
	if err != nil {
		return err
	}
	return checkColumn(c.Name, true, schema)
}

func checkColumn(name string, numeric bool, schema domain.Schema) error {
	def, ok := schema.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	if numeric && !def.Kind.Numeric() {
		return fmt.Errorf("%w: %s", ErrNonNumericColumn, name)
	}
	return nil
}

func exprColumn(e Expr) (Column, error) {
	switch v := e.(type) {
	case Column:
		return v, nil
	case Scaled:
		return v.Column, nil
	}
	return Column{}, fmt.Errorf("unsupported expression %T", e)
}

// walk visits every column reference with whether it is used numerically.
func walk(p Predicate, visit func(name string, numeric bool)) {
	switch v := p.(type) {
	case Compare:
		if c, err := exprColumn(v.Left); err == nil {
			visit(c.Name, true)
		}
	case Equals:
		visit(v.Column, false)
	case In:
		visit(v.Column, false)
	case Missing:
		visit(v.Column, true)
	case NotNull:
		visit(v.Column, false)
	case And:
		for _, t := range v {
			walk(t, visit)
		}
	case Or:
		for _, t := range v {
			walk(t, visit)
		}
	}
}
