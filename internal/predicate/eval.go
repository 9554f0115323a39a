package predicate

import (
	"fmt"
	"math"

	"solana-trade-inspector/internal/domain"
)

// Matcher reports whether a record satisfies a compiled predicate.
type Matcher func(r *domain.TradeRecord) bool

// Evaluator returns the value of a compiled expression; ok is false for null.
type Evaluator func(r *domain.TradeRecord) (float64, bool)

// Compile validates p against schema and returns an in-memory matcher.
// A nil predicate matches every row.
func Compile(p Predicate, schema domain.Schema) (Matcher, error) {
	if p == nil {
		return func(*domain.TradeRecord) bool { return true }, nil
	}
	if err := Validate(p, schema); err != nil {
		return nil, err
	}
	return compile(p)
}

// CompileExpr validates e against schema and returns an evaluator.
func CompileExpr(e Expr, schema domain.Schema) (Evaluator, error) {
	if err := ValidateExpr(e, schema); err != nil {
		return nil, err
	}
	return compileExpr(e)
}

func compileExpr(e Expr) (Evaluator, error) {
	switch v := e.(type) {
	case Column:
		name := v.Name
		return func(r *domain.TradeRecord) (float64, bool) {
			return r.Float(name)
		}, nil
	case Scaled:
		name, factor := v.Column.Name, v.Factor
		return func(r *domain.TradeRecord) (float64, bool) {
			f, ok := r.Float(name)
			if !ok {
				return 0, false
			}
			return f * factor, true
		}, nil
	}
	return nil, fmt.Errorf("unsupported expression %T", e)
}

func compile(p Predicate) (Matcher, error) {
	switch v := p.(type) {
	case Compare:
		eval, err := compileExpr(v.Left)
		if err != nil {
			return nil, err
		}
		op, value := v.Op, v.Value
		return func(r *domain.TradeRecord) bool {
			f, ok := eval(r)
			return ok && op.apply(f, value)
		}, nil

	case Equals:
		col, want := v.Column, v.Value
		return func(r *domain.TradeRecord) bool {
			s, ok := r.String(col)
			return ok && s == want
		}, nil

	case In:
		col := v.Column
		set := make(map[string]struct{}, len(v.Values))
		for _, s := range v.Values {
			set[s] = struct{}{}
		}
		return func(r *domain.TradeRecord) bool {
			s, ok := r.String(col)
			if !ok {
				return false
			}
			_, hit := set[s]
			return hit
		}, nil

	case Missing:
		col := v.Column
		return func(r *domain.TradeRecord) bool {
			f, ok := r.Float(col)
			return !ok || math.IsNaN(f)
		}, nil

	case NotNull:
		col := v.Column
		return func(r *domain.TradeRecord) bool {
			if _, ok := r.Float(col); ok {
				return true
			}
			_, ok := r.String(col)
			return ok
		}, nil

	case And:
		terms, err := compileAll(v)
		if err != nil {
			return nil, err
		}
		return func(r *domain.TradeRecord) bool {
			for _, m := range terms {
				if !m(r) {
					return false
				}
			}
			return true
		}, nil

	case Or:
		terms, err := compileAll(v)
		if err != nil {
			return nil, err
		}
		return func(r *domain.TradeRecord) bool {
			for _, m := range terms {
				if m(r) {
					return true
				}
			}
			return false
		}, nil
	}
	return nil, fmt.Errorf("unsupported predicate %T", p)
}

func compileAll(ps []Predicate) ([]Matcher, error) {
	out := make([]Matcher, 0, len(ps))
	for _, p := range ps {
		m, err := compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
