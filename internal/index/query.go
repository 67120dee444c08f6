package index

import "sort"

// Direction orders a sort key ascending or descending.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// OrderEntry is one key of a multi-key sort: ties on earlier entries are
// broken by later ones, then by document id.
type OrderEntry struct {
	Field     string
	Direction Direction
	DataType  DataType
}

// IndexQuery asks a store for the documents matching a predicate tree,
// optionally sorted and paginated. Limit 0 means unlimited.
type IndexQuery struct {
	Store     string
	Condition Condition
	Orders    []OrderEntry
	Limit     int
	Offset    int
}

// NewIndexQuery builds a query over the given store and condition.
func NewIndexQuery(store string, condition Condition) IndexQuery {
	return IndexQuery{Store: store, Condition: condition}
}

// OrderBy returns a copy of q sorted by the given keys.
func (q IndexQuery) OrderBy(orders ...OrderEntry) IndexQuery {
	q.Orders = orders
	return q
}

// WithLimit returns a copy of q returning at most limit documents.
func (q IndexQuery) WithLimit(limit int) IndexQuery {
	q.Limit = limit
	return q
}

// WithOffset returns a copy of q skipping the first offset documents.
func (q IndexQuery) WithOffset(offset int) IndexQuery {
	q.Offset = offset
	return q
}

// HasLimit reports whether a result limit is set.
func (q IndexQuery) HasLimit() bool {
	return q.Limit > 0
}

// RawQuery is an opaque passthrough in a backend's native query syntax,
// only usable when the backend's Features declare raw-query support.
type RawQuery struct {
	Store      string
	Query      string
	Parameters []Parameter
	Limit      int
	Offset     int
}

// NewRawQuery builds a raw query against the given store.
func NewRawQuery(store, query string, parameters ...Parameter) RawQuery {
	return RawQuery{Store: store, Query: query, Parameters: parameters}
}

// WithLimit returns a copy of q returning at most limit results.
func (q RawQuery) WithLimit(limit int) RawQuery {
	q.Limit = limit
	return q
}

// WithOffset returns a copy of q skipping the first offset results.
func (q RawQuery) WithOffset(offset int) RawQuery {
	q.Offset = offset
	return q
}

// HasLimit reports whether a result limit is set.
func (q RawQuery) HasLimit() bool {
	return q.Limit > 0
}

// RawResult is one raw-query hit with its backend relevance score.
type RawResult struct {
	DocID string
	Score float64
}

// SortResults orders document ids by the given sort keys, reading field
// values through value. Documents missing a sort field rank after those
// that have it; remaining ties fall back to ascending document id, making
// the overall order deterministic.
func SortResults(ids []string, orders []OrderEntry, value func(id, field string) (any, bool)) {
	sort.SliceStable(ids, func(i, j int) bool {
		for _, order := range orders {
			vi, iok := value(ids[i], order.Field)
			vj, jok := value(ids[j], order.Field)
			if !iok && !jok {
				continue
			}
			if !iok {
				return false
			}
			if !jok {
				return true
			}
			cmp, comparable := compareValues(vi, vj)
			if !comparable || cmp == 0 {
				continue
			}
			if order.Direction == Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return ids[i] < ids[j]
	})
}

// Paginate applies offset then limit to an ordered id list.
func Paginate(ids []string, limit, offset int) []string {
	if offset > 0 {
		if offset >= len(ids) {
			return nil
		}
		ids = ids[offset:]
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}
