package predicate

import (
	"fmt"
	"strings"
)

// ToSQL renders p as a ClickHouse WHERE clause with positional (?) arguments.
// Column names must have been validated against the table schema; values are
// always passed as arguments. A nil or empty predicate renders as "1 = 1".
func ToSQL(p Predicate) (string, []any, error) {
	return ToSQLWith(p, nil)
}

// ExprSQL renders e as a ClickHouse numeric expression.
func ExprSQL(e Expr) (string, []any, error) {
	return ExprSQLWith(e, nil)
}

// ColumnSQL renders a column reference and any arguments it needs.
type ColumnSQL func(name string) (string, []any)

// ToSQLWith is ToSQL with a column renderer for columns that are not plain
// table columns. A nil renderer quotes the name.
func ToSQLWith(p Predicate, cols ColumnSQL) (string, []any, error) {
	b := sqlBuilder{cols: cols}
	if err := b.predicate(p); err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.args, nil
}

// ExprSQLWith is ExprSQL with a column renderer.
func ExprSQLWith(e Expr, cols ColumnSQL) (string, []any, error) {
	b := sqlBuilder{cols: cols}
	if err := b.expr(e); err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.args, nil
}

// QuoteIdent quotes a column identifier.
func QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}

type sqlBuilder struct {
	sb   strings.Builder
	args []any
	cols ColumnSQL
}

func (b *sqlBuilder) column(name string) {
	if b.cols == nil {
		b.sb.WriteString(QuoteIdent(name))
		return
	}
	sql, args := b.cols(name)
	b.sb.WriteString(sql)
	b.args = append(b.args, args...)
}

func (b *sqlBuilder) expr(e Expr) error {
	switch v := e.(type) {
	case Column:
		b.column(v.Name)
	case Scaled:
		b.sb.WriteString("(")
		b.column(v.Column.Name)
		b.sb.WriteString(" * ?)")
		b.args = append(b.args, v.Factor)
	default:
		return fmt.Errorf("unsupported expression %T", e)
	}
	return nil
}

func (b *sqlBuilder) predicate(p Predicate) error {
	switch v := p.(type) {
	case nil:
		b.sb.WriteString("1 = 1")
	case Compare:
		if err := b.expr(v.Left); err != nil {
			return err
		}
		fmt.Fprintf(&b.sb, " %s ?", v.Op)
		b.args = append(b.args, v.Value)
	case Equals:
		b.column(v.Column)
		b.sb.WriteString(" = ?")
		b.args = append(b.args, v.Value)
	case In:
		if len(v.Values) == 0 {
			b.sb.WriteString("1 = 0")
			return nil
		}
		b.column(v.Column)
		b.sb.WriteString(" IN (")
		for i, s := range v.Values {
			if i > 0 {
				b.sb.WriteString(", ")
			}
			b.sb.WriteString("?")
			b.args = append(b.args, s)
		}
		b.sb.WriteString(")")
	case Missing:
		b.sb.WriteString("(isNull(")
		b.column(v.Column)
		b.sb.WriteString(") OR isNaN(")
		b.column(v.Column)
		b.sb.WriteString("))")
	case NotNull:
		b.sb.WriteString("isNotNull(")
		b.column(v.Column)
		b.sb.WriteString(")")
	case And:
		return b.join(v, " AND ", "1 = 1")
	case Or:
		return b.join(v, " OR ", "1 = 0")
	default:
		return fmt.Errorf("unsupported predicate %T", p)
	}
	return nil
}

func (b *sqlBuilder) join(terms []Predicate, sep, empty string) error {
	if len(terms) == 0 {
		b.sb.WriteString(empty)
		return nil
	}
	b.sb.WriteString("(")
	for i, t := range terms {
		if i > 0 {
			b.sb.WriteString(sep)
		}
		if err := b.predicate(t); err != nil {
			return err
		}
	}
	b.sb.WriteString(")")
	return nil
}
