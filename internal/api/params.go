package api

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"

	"solana-trade-inspector/internal/query"
)

// publicKeyLen is the decoded length of a Solana address.
const publicKeyLen = 32

// params reads typed query parameters, keeping the first error.
type params struct {
	values url.Values
	err    error
}

func newParams(v url.Values) *params {
	return &params{values: v}
}

func (p *params) fail(name, raw, want string) {
	if p.err == nil {
		p.err = query.Invalidf("%s: %q is not %s", name, raw, want)
	}
}

func (p *params) raw(name string) (string, bool) {
	s := strings.TrimSpace(p.values.Get(name))
	return s, s != ""
}

func (p *params) str(name, def string) string {
	if s, ok := p.raw(name); ok {
		return s
	}
	return def
}

func (p *params) intPtr(name string) *int {
	s, ok := p.raw(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		p.fail(name, s, "an integer")
		return nil
	}
	return &n
}

func (p *params) int(name string, def int) int {
	if n := p.intPtr(name); n != nil {
		return *n
	}
	return def
}

func (p *params) float(name string, def float64) float64 {
	s, ok := p.raw(name)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		p.fail(name, s, "a number")
		return def
	}
	return f
}

func (p *params) bool(name string, def bool) bool {
	s, ok := p.raw(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(name, s, "a boolean")
		return def
	}
	return b
}

// ints parses a comma-separated list of integers.
func (p *params) ints(name, def string) []int {
	raw := p.str(name, def)
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			p.fail(name, part, "an integer")
			return nil
		}
		out = append(out, n)
	}
	return out
}

// tokens parses token_list and checks that every entry is a base58 encoded
// 32-byte address.
func (p *params) tokens(name string) []string {
	tokens := query.ParseTokens(p.values.Get(name))
	for _, t := range tokens {
		if err := validateAddress(t); err != nil {
			p.fail(name, t, "a token address")
			return nil
		}
	}
	return tokens
}

func validateAddress(addr string) error {
	b, err := base58.Decode(addr)
	if err != nil {
		return err
	}
	if len(b) != publicKeyLen {
		return query.Invalidf("address decodes to %d bytes", len(b))
	}
	return nil
}
