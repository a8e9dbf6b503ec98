package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/agentstation/corroborate/pkg/records"
)

// Normalize returns the canonical comparison form of v for spec: a float64
// for numeric fields that parse as numbers, a string otherwise.
func Normalize(spec FieldSpec, v records.Value) any {
	if d, ok := v.(records.Dated); ok {
		v = d.Value
	}
	switch spec.Kind {
	case Numeric:
		if f, ok := toFloat(v); ok {
			return f
		}
		return foldText(fmt.Sprint(v))
	case Identity:
		return canonicalIdentity(fmt.Sprint(v))
	default:
		return foldText(fmt.Sprint(v))
	}
}

// Equivalent reports whether a and b are the same value under spec.
func Equivalent(spec FieldSpec, a, b records.Value) bool {
	na, nb := Normalize(spec, a), Normalize(spec, b)
	fa, aNum := na.(float64)
	fb, bNum := nb.(float64)
	if aNum && bNum {
		return withinTolerance(fa, fb, spec.Tolerance)
	}
	if aNum != bNum {
		return false
	}
	return na == nb
}

// withinTolerance reports |a-b| / max(|a|,|b|) < tol, or exact equality when tol is 0.
func withinTolerance(a, b, tol float64) bool {
	if a == b {
		return true
	}
	if tol <= 0 {
		return false
	}
	denom := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b)/denom < tol
}

// foldText applies NFKC, Unicode case folding, and whitespace collapse.
func foldText(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// canonicalIdentity lowercases and strips scheme, leading www., query,
// fragment, and trailing slashes.
func canonicalIdentity(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			s = u.Host + u.Path
		}
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimRight(s, "/")
}

var magnitude = map[byte]float64{'k': 1e3, 'm': 1e6, 'b': 1e9, 't': 1e12}

func toFloat(v records.Value) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		return parseNumber(n)
	}
	return 0, false
}

// parseNumber accepts forms like "1,200", "$5.2M", and "12k".
func parseNumber(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "$")
	s = strings.NewReplacer(",", "", "_", "", " ", "").Replace(s)
	if s == "" {
		return 0, false
	}
	mult := 1.0
	if m, ok := magnitude[s[len(s)-1]]; ok {
		mult = m
		s = s[:len(s)-1]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f * mult, true
}
