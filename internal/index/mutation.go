package index

// IndexEntry is a single field value carried by a mutation or a restore.
// TTLSeconds > 0 asks the backend to expire this field's contribution (and,
// once no fields remain, the document) after that many seconds, on a
// best-effort schedule.
type IndexEntry struct {
	Field      string `json:"field"`
	Value      any    `json:"value"`
	TTLSeconds int    `json:"ttlSeconds,omitempty"`
}

// NewEntry builds an IndexEntry with the value in canonical form.
func NewEntry(field string, value any) IndexEntry {
	return IndexEntry{Field: field, Value: NormalizeValue(value)}
}

// WithTTL returns a copy of e expiring after the given number of seconds.
func (e IndexEntry) WithTTL(seconds int) IndexEntry {
	e.TTLSeconds = seconds
	return e
}

// Mutation is the buffered change set of one document within one
// transaction. At commit the backend applies deletions before additions;
// if Deleted is set the document's pre-existing state is wiped first and
// any additions resurrect it with only the fields they supply.
type Mutation struct {
	Store     string
	DocID     string
	IsNew     bool
	Deleted   bool
	Additions []IndexEntry
	Deletions []IndexEntry
}

// IsConsolidated reports whether the mutation still carries any effect.
func (m *Mutation) IsConsolidated() bool {
	return m.Deleted || len(m.Additions) > 0 || len(m.Deletions) > 0
}

// AddField buffers an upsert of one field.
func (m *Mutation) AddField(entry IndexEntry) {
	m.Additions = append(m.Additions, entry)
}

// DeleteField buffers the removal of one field. The value is kept for
// backends distinguishing multi-valued fields.
func (m *Mutation) DeleteField(entry IndexEntry) {
	m.Deletions = append(m.Deletions, entry)
}

// DeleteAll marks the whole document for deletion, dropping any buffered
// field-level changes that precede it.
func (m *Mutation) DeleteAll() {
	m.Deleted = true
	m.Additions = nil
	m.Deletions = nil
}

// RestoreSet maps store -> document id -> the document's complete new field
// set. An empty entry list deletes the document.
type RestoreSet map[string]map[string][]IndexEntry
