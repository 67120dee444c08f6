package index

import "context"

// Features is a backend's static capability descriptor.
type Features struct {
	// SupportsRawQueries allows RawQuery passthrough in the backend's
	// native syntax.
	SupportsRawQueries bool
	// SupportsDocumentTTL allows per-field TTL metadata on IndexEntry.
	SupportsDocumentTTL bool
	// SortableTypes lists the data types the backend can order results by.
	SortableTypes []DataType
}

// Sortable reports whether results can be ordered by fields of type t.
func (f Features) Sortable(t DataType) bool {
	for _, st := range f.SortableTypes {
		if st == t {
			return true
		}
	}
	return false
}

// Provider is the contract a concrete index backend implements. The
// provider exclusively owns persisted index state; transactions hand their
// buffered mutation batches to Mutate at commit time.
//
// Implementations must serialize the application of mutation batches so one
// batch is fully visible before or after another, never interleaved
// field-by-field. Query may run concurrently with commits and observes some
// consistent snapshot no older than the start of the call.
type Provider interface {
	CapabilityChecker

	// Register idempotently declares that field should be indexed with the
	// given type/mapping for store. Callers check Supports first;
	// registering an unsupported type is an error.
	Register(ctx context.Context, store, field string, ki KeyInformation) error

	// Mutate applies one transaction's buffered mutation batch atomically.
	Mutate(ctx context.Context, mutations []Mutation, keys KeyRetriever) error

	// Query returns the ids of the documents currently matching the query,
	// deduplicated, ordered per the query's sort keys.
	Query(ctx context.Context, query IndexQuery, keys KeyRetriever) ([]string, error)

	// QueryRaw executes a backend-native query, only valid when Features
	// declares raw-query support.
	QueryRaw(ctx context.Context, query RawQuery, keys KeyRetriever) ([]RawResult, error)

	// Restore bulk-replaces each named document's entire field set with
	// exactly the given entries; an empty list deletes the document.
	// Atomic per document; documents need not pre-exist.
	Restore(ctx context.Context, docs RestoreSet, keys KeyRetriever) error

	// ClearStorage irreversibly removes all indexed data for this provider.
	ClearStorage(ctx context.Context) error

	// Features returns the backend's static capability descriptor.
	Features() Features

	Close() error
}
