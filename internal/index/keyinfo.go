// Package index implements the backend-agnostic secondary-index engine: the
// typed predicate algebra, capability negotiation, the query and transaction
// models, and the provider contract concrete backends implement.
package index

// DataType enumerates the value domains a field can be indexed under.
type DataType int

const (
	TypeUnknown DataType = iota
	TypeString
	TypeLong
	TypeDouble
	TypeInteger
	TypeShort
	TypeByte
	TypeFloat
	TypeGeoshape
)

var dataTypeNames = map[DataType]string{
	TypeUnknown:  "unknown",
	TypeString:   "string",
	TypeLong:     "long",
	TypeDouble:   "double",
	TypeInteger:  "integer",
	TypeShort:    "short",
	TypeByte:     "byte",
	TypeFloat:    "float",
	TypeGeoshape: "geoshape",
}

func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsNumeric reports whether t is an integral or floating-point type.
func (t DataType) IsNumeric() bool {
	switch t {
	case TypeLong, TypeDouble, TypeInteger, TypeShort, TypeByte, TypeFloat:
		return true
	}
	return false
}

// ParseDataType maps a type name back to its DataType, TypeUnknown if the
// name is not recognised.
func ParseDataType(name string) DataType {
	for t, n := range dataTypeNames {
		if n == name {
			return t
		}
	}
	return TypeUnknown
}

// Mapping is the string-indexing strategy declared for a field. It controls
// which text operators apply: TEXT fields are tokenized and matched
// case-insensitively, STRING fields are matched whole and case-sensitively,
// TEXTSTRING supports both on one field.
type Mapping int

const (
	MappingDefault Mapping = iota
	MappingText
	MappingString
	MappingTextString
)

func (m Mapping) String() string {
	switch m {
	case MappingText:
		return "TEXT"
	case MappingString:
		return "STRING"
	case MappingTextString:
		return "TEXTSTRING"
	default:
		return "DEFAULT"
	}
}

// ParameterMapping is the well-known parameter key carrying a field's Mapping.
const ParameterMapping = "mapping"

// Parameter is a named option attached to a field declaration.
type Parameter struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// KeyInformation is the immutable type/mapping declaration attached to a
// field name. A backend is consulted with it during capability negotiation.
type KeyInformation struct {
	DataType   DataType    `json:"dataType"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// KeyOf builds a KeyInformation for the given type and parameters.
func KeyOf(dataType DataType, parameters ...Parameter) KeyInformation {
	return KeyInformation{DataType: dataType, Parameters: parameters}
}

// MappedKey builds a KeyInformation with an explicit string mapping.
func MappedKey(dataType DataType, mapping Mapping) KeyInformation {
	return KeyOf(dataType, Parameter{Key: ParameterMapping, Value: mapping})
}

// Mapping returns the declared mapping parameter, MappingDefault if absent.
func (k KeyInformation) Mapping() Mapping {
	for _, p := range k.Parameters {
		if p.Key != ParameterMapping {
			continue
		}
		switch v := p.Value.(type) {
		case Mapping:
			return v
		case int:
			return Mapping(v)
		case float64:
			// JSON round-trips mapping values as float64.
			return Mapping(int(v))
		case string:
			for _, m := range []Mapping{MappingDefault, MappingText, MappingString, MappingTextString} {
				if m.String() == v {
					return m
				}
			}
		}
	}
	return MappingDefault
}

// KeyRetriever resolves the declared KeyInformation for a field of a store.
type KeyRetriever interface {
	Get(store, field string) (KeyInformation, bool)
}

// MapRetriever is a KeyRetriever backed by a field map shared by all stores.
type MapRetriever map[string]KeyInformation

func (m MapRetriever) Get(_, field string) (KeyInformation, bool) {
	ki, ok := m[field]
	return ki, ok
}
