package index

import "time"

// FieldValue is one field of an indexed document. A zero ExpiresAt means
// the field does not expire.
type FieldValue struct {
	Value     any
	ExpiresAt time.Time
}

// Live reports whether the field is still visible at the given instant.
func (f FieldValue) Live(now time.Time) bool {
	return f.ExpiresAt.IsZero() || f.ExpiresAt.After(now)
}

// Document is the in-memory representation of one indexed document's field
// set, shared by the backends that evaluate predicates document-by-document.
type Document map[string]FieldValue

// Lookup returns the live value of a field for predicate evaluation.
func (d Document) Lookup(now time.Time) func(field string) (any, bool) {
	return func(field string) (any, bool) {
		fv, ok := d[field]
		if !ok || !fv.Live(now) {
			return nil, false
		}
		return fv.Value, true
	}
}

// LiveValue returns a field's value if present and unexpired.
func (d Document) LiveValue(field string, now time.Time) (any, bool) {
	return d.Lookup(now)(field)
}

// IsEmpty reports whether no live fields remain; expired documents vanish
// from query results once every field has expired.
func (d Document) IsEmpty(now time.Time) bool {
	for _, fv := range d {
		if fv.Live(now) {
			return false
		}
	}
	return true
}

// Apply folds one mutation into the document, honouring the commit-order
// semantics: a whole-document delete wipes pre-existing state, field
// deletions run before additions, and additions resurrect deleted
// documents with only the fields they supply.
func (d Document) Apply(m *Mutation, now time.Time) Document {
	doc := d
	if m.Deleted || (m.IsNew && doc == nil) {
		doc = Document{}
	}
	if doc == nil {
		doc = Document{}
	}
	for _, del := range m.Deletions {
		delete(doc, del.Field)
	}
	for _, add := range m.Additions {
		fv := FieldValue{Value: NormalizeValue(add.Value)}
		if add.TTLSeconds > 0 {
			fv.ExpiresAt = now.Add(time.Duration(add.TTLSeconds) * time.Second)
		}
		doc[add.Field] = fv
	}
	return doc
}

// DocumentFromEntries builds a document holding exactly the given entries,
// the shape a restore writes.
func DocumentFromEntries(entries []IndexEntry, now time.Time) Document {
	doc := make(Document, len(entries))
	for _, e := range entries {
		fv := FieldValue{Value: NormalizeValue(e.Value)}
		if e.TTLSeconds > 0 {
			fv.ExpiresAt = now.Add(time.Duration(e.TTLSeconds) * time.Second)
		}
		doc[e.Field] = fv
	}
	return doc
}
