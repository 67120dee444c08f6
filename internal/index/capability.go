package index

// OperatorSet is a set of operators a backend can evaluate for one
// (data type, mapping) combination.
type OperatorSet map[Operator]struct{}

// Operators builds an OperatorSet from its members.
func Operators(ops ...Operator) OperatorSet {
	set := make(OperatorSet, len(ops))
	for _, op := range ops {
		set[op] = struct{}{}
	}
	return set
}

// Union returns a new set containing the members of both sets.
func (s OperatorSet) Union(other OperatorSet) OperatorSet {
	merged := make(OperatorSet, len(s)+len(other))
	for op := range s {
		merged[op] = struct{}{}
	}
	for op := range other {
		merged[op] = struct{}{}
	}
	return merged
}

// Contains reports membership.
func (s OperatorSet) Contains(op Operator) bool {
	_, ok := s[op]
	return ok
}

// CapabilityKey identifies one (declared type, mapping option) combination.
type CapabilityKey struct {
	DataType DataType
	Mapping  Mapping
}

// CapabilityTable is an immutable mapping from (type, mapping) to the
// operators a backend supports for it. It is constructed once per backend
// instance and consulted before any predicate is accepted; combinations
// absent from the table are unsupported.
type CapabilityTable map[CapabilityKey]OperatorSet

// Supports reports whether the backend indexes this type/mapping at all.
func (t CapabilityTable) Supports(ki KeyInformation) bool {
	_, ok := t[CapabilityKey{DataType: ki.DataType, Mapping: ki.Mapping()}]
	return ok
}

// SupportsOperator reports whether op can be evaluated for this
// type/mapping.
func (t CapabilityTable) SupportsOperator(ki KeyInformation, op Operator) bool {
	set, ok := t[CapabilityKey{DataType: ki.DataType, Mapping: ki.Mapping()}]
	return ok && set.Contains(op)
}

// ComparisonOperators is the equality/ordering family.
func ComparisonOperators() OperatorSet {
	return Operators(OpEqual, OpNotEqual, OpLessThan, OpLessThanEqual, OpGreaterThan, OpGreaterThanEqual)
}

// TokenTextOperators is the tokenized TEXT-mapping family.
func TokenTextOperators() OperatorSet {
	return Operators(OpTextContains, OpTextContainsPrefix, OpTextContainsRegex)
}

// FullTextOperators is the whole-string STRING-mapping family, which also
// carries exact equality.
func FullTextOperators() OperatorSet {
	return Operators(OpEqual, OpNotEqual, OpTextPrefix, OpTextRegex)
}

// DefaultCapabilities is the capability table shared by the built-in
// document-evaluating backends: all numeric types support comparisons under
// the default mapping, strings follow their declared mapping (DEFAULT
// resolves to TEXT), and geoshapes support within/intersect but not
// disjoint.
func DefaultCapabilities() CapabilityTable {
	table := CapabilityTable{}
	for _, t := range []DataType{TypeLong, TypeDouble, TypeInteger, TypeShort, TypeByte, TypeFloat} {
		table[CapabilityKey{DataType: t, Mapping: MappingDefault}] = ComparisonOperators()
	}
	table[CapabilityKey{DataType: TypeString, Mapping: MappingDefault}] = TokenTextOperators()
	table[CapabilityKey{DataType: TypeString, Mapping: MappingText}] = TokenTextOperators()
	table[CapabilityKey{DataType: TypeString, Mapping: MappingString}] = FullTextOperators()
	table[CapabilityKey{DataType: TypeString, Mapping: MappingTextString}] = TokenTextOperators().Union(FullTextOperators())
	table[CapabilityKey{DataType: TypeGeoshape, Mapping: MappingDefault}] = Operators(OpGeoWithin, OpGeoIntersect)
	return table
}
