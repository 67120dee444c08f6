package index

import "testing"

func TestDefaultCapabilitiesNumerics(t *testing.T) {
	caps := DefaultCapabilities()
	cmpOps := []Operator{OpEqual, OpNotEqual, OpLessThan, OpLessThanEqual, OpGreaterThan, OpGreaterThanEqual}
	for _, dt := range []DataType{TypeLong, TypeDouble, TypeInteger, TypeShort, TypeByte, TypeFloat} {
		ki := KeyOf(dt)
		if !caps.Supports(ki) {
			t.Errorf("%s should be indexable under the default mapping", dt)
		}
		for _, op := range cmpOps {
			if !caps.SupportsOperator(ki, op) {
				t.Errorf("%s should support %s", dt, op)
			}
		}
		for _, op := range []Operator{OpTextContains, OpTextPrefix, OpGeoWithin} {
			if caps.SupportsOperator(ki, op) {
				t.Errorf("%s should not support %s", dt, op)
			}
		}
		// Numerics are only indexable under the default mapping.
		if caps.Supports(MappedKey(dt, MappingText)) {
			t.Errorf("%s with TEXT mapping should not be indexable", dt)
		}
		if caps.Supports(MappedKey(dt, MappingString)) {
			t.Errorf("%s with STRING mapping should not be indexable", dt)
		}
	}
}

func TestDefaultCapabilitiesStringMappings(t *testing.T) {
	caps := DefaultCapabilities()
	tokenOps := []Operator{OpTextContains, OpTextContainsPrefix, OpTextContainsRegex}
	fullOps := []Operator{OpEqual, OpNotEqual, OpTextPrefix, OpTextRegex}

	// DEFAULT resolves to tokenized text.
	def := KeyOf(TypeString)
	for _, op := range tokenOps {
		if !caps.SupportsOperator(def, op) {
			t.Errorf("string DEFAULT should support %s", op)
		}
	}
	for _, op := range fullOps {
		if caps.SupportsOperator(def, op) {
			t.Errorf("string DEFAULT should not support %s", op)
		}
	}

	text := MappedKey(TypeString, MappingText)
	for _, op := range tokenOps {
		if !caps.SupportsOperator(text, op) {
			t.Errorf("string TEXT should support %s", op)
		}
	}
	if caps.SupportsOperator(text, OpEqual) {
		t.Error("string TEXT should not support exact equality")
	}

	str := MappedKey(TypeString, MappingString)
	for _, op := range fullOps {
		if !caps.SupportsOperator(str, op) {
			t.Errorf("string STRING should support %s", op)
		}
	}
	for _, op := range tokenOps {
		if caps.SupportsOperator(str, op) {
			t.Errorf("string STRING should not support %s", op)
		}
	}

	both := MappedKey(TypeString, MappingTextString)
	for _, op := range append(append([]Operator{}, tokenOps...), fullOps...) {
		if !caps.SupportsOperator(both, op) {
			t.Errorf("string TEXTSTRING should support %s", op)
		}
	}
}

func TestDefaultCapabilitiesGeoshape(t *testing.T) {
	caps := DefaultCapabilities()
	ki := KeyOf(TypeGeoshape)
	if !caps.Supports(ki) {
		t.Fatal("geoshape should be indexable")
	}
	if !caps.SupportsOperator(ki, OpGeoWithin) {
		t.Error("geoshape should support geoWithin")
	}
	if !caps.SupportsOperator(ki, OpGeoIntersect) {
		t.Error("geoshape should support geoIntersect")
	}
	if caps.SupportsOperator(ki, OpGeoDisjoint) {
		t.Error("geoshape should not support geoDisjoint")
	}
	if caps.SupportsOperator(ki, OpEqual) {
		t.Error("geoshape should not support equality")
	}
}

func TestOperatorSetUnion(t *testing.T) {
	a := Operators(OpEqual, OpNotEqual)
	b := Operators(OpNotEqual, OpTextPrefix)
	u := a.Union(b)
	for _, op := range []Operator{OpEqual, OpNotEqual, OpTextPrefix} {
		if !u.Contains(op) {
			t.Errorf("union should contain %s", op)
		}
	}
	if len(u) != 3 {
		t.Errorf("union size = %d, want 3", len(u))
	}
	if a.Contains(OpTextPrefix) {
		t.Error("union must not mutate its receiver")
	}
}
