package index

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BennyH26/titan/internal/index/geo"
)

// WireValue is the JSON-safe encoding of a canonical field value. A tagged
// union keeps integral and floating-point values distinct across the round
// trip, which plain JSON numbers would not.
type WireValue struct {
	S *string    `json:"s,omitempty"`
	I *int64     `json:"i,omitempty"`
	F *float64   `json:"f,omitempty"`
	G *geo.Point `json:"g,omitempty"`
}

// EncodeValue converts a canonical value into its wire form.
func EncodeValue(v any) (WireValue, error) {
	switch x := NormalizeValue(v).(type) {
	case string:
		return WireValue{S: &x}, nil
	case int64:
		return WireValue{I: &x}, nil
	case float64:
		return WireValue{F: &x}, nil
	case geo.Point:
		return WireValue{G: &x}, nil
	default:
		return WireValue{}, fmt.Errorf("value type %T cannot be indexed", v)
	}
}

// Decode returns the canonical value carried by w, nil if w is empty.
func (w WireValue) Decode() any {
	switch {
	case w.S != nil:
		return *w.S
	case w.I != nil:
		return *w.I
	case w.F != nil:
		return *w.F
	case w.G != nil:
		return *w.G
	}
	return nil
}

// WireField is one stored document field: a value plus an optional expiry
// as Unix milliseconds.
type WireField struct {
	WireValue
	ExpiresAtMs int64 `json:"exp,omitempty"`
}

// WireDocument is the stored form of a document's field set, used by the
// backends that persist documents as encoded blobs.
type WireDocument map[string]WireField

// EncodeDocument serialises a document to JSON.
func EncodeDocument(doc Document) ([]byte, error) {
	wire := make(WireDocument, len(doc))
	for field, fv := range doc {
		wv, err := EncodeValue(fv.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		wf := WireField{WireValue: wv}
		if !fv.ExpiresAt.IsZero() {
			wf.ExpiresAtMs = fv.ExpiresAt.UnixMilli()
		}
		wire[field] = wf
	}
	return json.Marshal(wire)
}

// DecodeDocument deserialises a document from JSON.
func DecodeDocument(data []byte) (Document, error) {
	var wire WireDocument
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	doc := make(Document, len(wire))
	for field, wf := range wire {
		fv := FieldValue{Value: wf.Decode()}
		if wf.ExpiresAtMs > 0 {
			fv.ExpiresAt = time.UnixMilli(wf.ExpiresAtMs)
		}
		doc[field] = fv
	}
	return doc, nil
}
