package index

import (
	"regexp"
	"strings"

	"github.com/BennyH26/titan/internal/index/geo"
	"github.com/BennyH26/titan/internal/index/tokenizer"
)

// Operator is a closed enum of the predicate operators the engine knows.
// Adding an operator is a deliberate extension here plus a capability-table
// entry per backend that can evaluate it.
type Operator int

const (
	// Comparison family, over a field's native value domain.
	OpEqual Operator = iota
	OpNotEqual
	OpLessThan
	OpLessThanEqual
	OpGreaterThan
	OpGreaterThanEqual

	// Token text family (TEXT mapping): case-insensitive, per analyzed token.
	OpTextContains
	OpTextContainsPrefix
	OpTextContainsRegex

	// Full-string text family (STRING mapping): case-sensitive, whole value.
	OpTextPrefix
	OpTextRegex

	// Geo family, against a backend-declared shape.
	OpGeoWithin
	OpGeoIntersect
	OpGeoDisjoint
)

var operatorNames = map[Operator]string{
	OpEqual:              "=",
	OpNotEqual:           "<>",
	OpLessThan:           "<",
	OpLessThanEqual:      "<=",
	OpGreaterThan:        ">",
	OpGreaterThanEqual:   ">=",
	OpTextContains:       "textContains",
	OpTextContainsPrefix: "textContainsPrefix",
	OpTextContainsRegex:  "textContainsRegex",
	OpTextPrefix:         "textPrefix",
	OpTextRegex:          "textRegex",
	OpGeoWithin:          "geoWithin",
	OpGeoIntersect:       "geoIntersect",
	OpGeoDisjoint:        "geoDisjoint",
}

func (op Operator) String() string {
	if name, ok := operatorNames[op]; ok {
		return name
	}
	return "unknown"
}

// IsComparison reports membership in the equality/ordering family.
func (op Operator) IsComparison() bool {
	return op >= OpEqual && op <= OpGreaterThanEqual
}

// IsTokenText reports membership in the tokenized (TEXT mapping) family.
func (op Operator) IsTokenText() bool {
	return op == OpTextContains || op == OpTextContainsPrefix || op == OpTextContainsRegex
}

// IsFullText reports membership in the whole-string (STRING mapping) family.
func (op Operator) IsFullText() bool {
	return op == OpTextPrefix || op == OpTextRegex
}

// IsGeo reports membership in the geo family.
func (op Operator) IsGeo() bool {
	return op == OpGeoWithin || op == OpGeoIntersect || op == OpGeoDisjoint
}

// NormalizeValue collapses Go's numeric zoo into the engine's canonical
// value domain: int64 for integral types, float64 for floating point,
// string, and geo types unchanged.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

// compareValues orders two canonical values. The bool result is false when
// the values are not comparable (mixed or non-ordered types).
func compareValues(a, b any) (int, bool) {
	a, b = NormalizeValue(a), NormalizeValue(b)
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// EvaluateOperator applies op to a document field value and a query value,
// both in canonical form. Missing or incomparable values never match; the
// capability check has already rejected operator/type combinations the
// backend does not support.
func EvaluateOperator(op Operator, fieldValue, queryValue any) bool {
	switch {
	case op.IsComparison():
		return evaluateComparison(op, fieldValue, queryValue)
	case op.IsTokenText():
		return evaluateTokenText(op, fieldValue, queryValue)
	case op.IsFullText():
		return evaluateFullText(op, fieldValue, queryValue)
	case op.IsGeo():
		return evaluateGeo(op, fieldValue, queryValue)
	}
	return false
}

func evaluateComparison(op Operator, fieldValue, queryValue any) bool {
	cmp, ok := compareValues(fieldValue, queryValue)
	if !ok {
		return false
	}
	switch op {
	case OpEqual:
		return cmp == 0
	case OpNotEqual:
		return cmp != 0
	case OpLessThan:
		return cmp < 0
	case OpLessThanEqual:
		return cmp <= 0
	case OpGreaterThan:
		return cmp > 0
	case OpGreaterThanEqual:
		return cmp >= 0
	}
	return false
}

func evaluateTokenText(op Operator, fieldValue, queryValue any) bool {
	text, ok := fieldValue.(string)
	if !ok {
		return false
	}
	query, ok := queryValue.(string)
	if !ok {
		return false
	}
	switch op {
	case OpTextContains:
		// Every query token must appear in the field.
		queryTokens := tokenizer.Tokenize(query)
		if len(queryTokens) == 0 {
			return false
		}
		set := tokenizer.TokenSet(text)
		for _, tok := range queryTokens {
			if _, found := set[tok]; !found {
				return false
			}
		}
		return true
	case OpTextContainsPrefix:
		prefix := strings.ToLower(strings.TrimSpace(query))
		for _, tok := range tokenizer.Tokenize(text) {
			if strings.HasPrefix(tok, prefix) {
				return true
			}
		}
		return false
	case OpTextContainsRegex:
		re, err := regexp.Compile("^(?:" + query + ")$")
		if err != nil {
			return false
		}
		for _, tok := range tokenizer.Tokenize(text) {
			if re.MatchString(tok) {
				return true
			}
		}
		return false
	}
	return false
}

func evaluateFullText(op Operator, fieldValue, queryValue any) bool {
	text, ok := fieldValue.(string)
	if !ok {
		return false
	}
	query, ok := queryValue.(string)
	if !ok {
		return false
	}
	switch op {
	case OpTextPrefix:
		return strings.HasPrefix(text, query)
	case OpTextRegex:
		re, err := regexp.Compile("^(?:" + query + ")$")
		if err != nil {
			return false
		}
		return re.MatchString(text)
	}
	return false
}

func evaluateGeo(op Operator, fieldValue, queryValue any) bool {
	point, ok := fieldValue.(geo.Point)
	if !ok {
		return false
	}
	shape, ok := queryValue.(geo.Shape)
	if !ok {
		return false
	}
	switch op {
	case OpGeoWithin:
		return shape.Contains(point)
	case OpGeoIntersect:
		return shape.Intersects(point)
	case OpGeoDisjoint:
		return !shape.Intersects(point)
	}
	return false
}
