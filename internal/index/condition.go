package index

import (
	"fmt"
	"strings"

	"github.com/BennyH26/titan/pkg/errors"
)

// Condition is a node of the predicate expression tree: a Leaf compares one
// field against a value, And/Or/Not compose without restriction. Conditions
// are immutable once built.
type Condition interface {
	fmt.Stringer
	isCondition()
}

// Leaf is a single (field, operator, value) predicate. The value is opaque
// until the leaf is validated against a backend's capability model.
type Leaf struct {
	Field string
	Op    Operator
	Value any
}

// And matches documents satisfying every child condition.
type And []Condition

// Or matches documents satisfying at least one child condition.
type Or []Condition

// Not matches documents that do not satisfy the child condition.
type Not struct {
	Child Condition
}

func (Leaf) isCondition() {}
func (And) isCondition()  {}
func (Or) isCondition()   {}
func (Not) isCondition()  {}

// Pred builds a Leaf with the value in canonical form.
func Pred(field string, op Operator, value any) Leaf {
	return Leaf{Field: field, Op: op, Value: NormalizeValue(value)}
}

// NewAnd conjoins the given conditions.
func NewAnd(children ...Condition) And { return And(children) }

// NewOr disjoins the given conditions.
func NewOr(children ...Condition) Or { return Or(children) }

// NewNot negates the given condition.
func NewNot(child Condition) Not { return Not{Child: child} }

func (l Leaf) String() string {
	return fmt.Sprintf("%s %s %v", l.Field, l.Op, l.Value)
}

func (a And) String() string { return joinChildren("AND", a) }
func (o Or) String() string  { return joinChildren("OR", o) }

func (n Not) String() string {
	return fmt.Sprintf("NOT (%s)", n.Child)
}

func joinChildren(sep string, children []Condition) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " "+sep+" ") + ")"
}

// CapabilityChecker is the capability-negotiation surface of a backend.
type CapabilityChecker interface {
	// Supports reports whether the backend indexes this type/mapping at all.
	Supports(ki KeyInformation) bool
	// SupportsOperator reports whether the backend can evaluate op for
	// fields of this type/mapping.
	SupportsOperator(ki KeyInformation, op Operator) bool
}

// ValidateCondition walks the expression tree and eagerly rejects any leaf
// whose (field type, mapping, operator) combination the backend does not
// support. A leaf referencing a field with no declared KeyInformation is
// permitted; it simply matches nothing at evaluation time.
func ValidateCondition(cond Condition, store string, caps CapabilityChecker, keys KeyRetriever) error {
	switch c := cond.(type) {
	case Leaf:
		ki, ok := keys.Get(store, c.Field)
		if !ok {
			return nil
		}
		if !caps.Supports(ki) {
			return errors.Newf(errors.ErrUnsupportedPredicate, "index", "validate",
				"field %q: type %s with mapping %s is not indexed", c.Field, ki.DataType, ki.Mapping())
		}
		if !caps.SupportsOperator(ki, c.Op) {
			return errors.Newf(errors.ErrUnsupportedPredicate, "index", "validate",
				"field %q: operator %s is not supported for type %s with mapping %s",
				c.Field, c.Op, ki.DataType, ki.Mapping())
		}
		return nil
	case And:
		for _, child := range c {
			if err := ValidateCondition(child, store, caps, keys); err != nil {
				return err
			}
		}
		return nil
	case Or:
		for _, child := range c {
			if err := ValidateCondition(child, store, caps, keys); err != nil {
				return err
			}
		}
		return nil
	case Not:
		return ValidateCondition(c.Child, store, caps, keys)
	default:
		return errors.Newf(errors.ErrUnsupportedPredicate, "index", "validate",
			"unknown condition node %T", cond)
	}
}

// EvaluateCondition applies the expression tree to one document, looking
// field values up through lookup. Backends without a native query language
// evaluate boolean combinations this way: intersection for And, union for
// Or, complement for Not.
func EvaluateCondition(cond Condition, lookup func(field string) (any, bool)) bool {
	switch c := cond.(type) {
	case Leaf:
		value, ok := lookup(c.Field)
		if !ok {
			return false
		}
		return EvaluateOperator(c.Op, value, c.Value)
	case And:
		for _, child := range c {
			if !EvaluateCondition(child, lookup) {
				return false
			}
		}
		return true
	case Or:
		for _, child := range c {
			if EvaluateCondition(child, lookup) {
				return true
			}
		}
		return false
	case Not:
		return !EvaluateCondition(c.Child, lookup)
	default:
		return false
	}
}
