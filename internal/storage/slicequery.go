package storage

import (
	"fmt"

	"github.com/BennyH26/titan/pkg/errors"
)

// SliceQuery is a half-open column range [Start, End) with an optional
// result limit. Limit <= 0 means unlimited.
type SliceQuery struct {
	Start ByteKey
	End   ByteKey
	Limit int
}

// NewSliceQuery returns an unlimited query over [start, end).
func NewSliceQuery(start, end ByteKey) SliceQuery {
	return SliceQuery{Start: start, End: end}
}

// WithLimit returns a copy of q that returns at most limit entries.
func (q SliceQuery) WithLimit(limit int) SliceQuery {
	q.Limit = limit
	return q
}

// HasLimit reports whether a result limit is set.
func (q SliceQuery) HasLimit() bool {
	return q.Limit > 0
}

// Validate checks the range invariant Start <= End.
func (q SliceQuery) Validate() error {
	if q.Start.Compare(q.End) > 0 {
		return fmt.Errorf("%w: slice start %x exceeds end %x", errors.ErrInvalidRange, []byte(q.Start), []byte(q.End))
	}
	return nil
}

// IsGrounding reports whether q spans the entire key space, i.e. its start is
// all zero bytes and its end is all 0xff bytes. The first of several slice
// queries issued together must be grounding.
func (q SliceQuery) IsGrounding() bool {
	return q.Start.Equal(ZeroKey(len(q.Start))) && q.End.Equal(OneKey(len(q.End)))
}

func (q SliceQuery) String() string {
	if q.HasLimit() {
		return fmt.Sprintf("SliceQuery[%x,%x):%d", []byte(q.Start), []byte(q.End), q.Limit)
	}
	return fmt.Sprintf("SliceQuery[%x,%x)", []byte(q.Start), []byte(q.End))
}
