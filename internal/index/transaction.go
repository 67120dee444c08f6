package index

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BennyH26/titan/pkg/errors"
	"github.com/BennyH26/titan/pkg/resilience"
)

type txState int

const (
	txOpen txState = iota
	txCommitted
	txRolledBack
)

func (s txState) String() string {
	switch s {
	case txCommitted:
		return "committed"
	case txRolledBack:
		return "rolled back"
	default:
		return "open"
	}
}

var txCounter atomic.Uint64

type docKey struct {
	store string
	docID string
}

// Transaction buffers field-level add/delete mutations per document and
// flushes them to the provider as one batch at commit. A transaction is a
// single-writer object: it is used by one logical caller until commit, then
// becomes terminal and rejects further use.
//
// Conflict resolution across transactions is last-write-wins at commit
// order: the provider applies each batch in the order commits arrive, so a
// later-committing transaction overrides an earlier one for whatever its
// buffer touches, regardless of which transaction was opened first.
type Transaction struct {
	provider Provider
	keys     KeyRetriever
	budget   time.Duration
	logger   *slog.Logger
	id       uint64

	mu        sync.Mutex
	state     txState
	mutations map[docKey]*Mutation
	order     []docKey
}

// NewTransaction opens a transaction against the provider. budget bounds
// how long Commit may block; exceeding it is a reported failure, never an
// internal retry.
func NewTransaction(provider Provider, keys KeyRetriever, budget time.Duration) *Transaction {
	id := txCounter.Add(1)
	return &Transaction{
		provider:  provider,
		keys:      keys,
		budget:    budget,
		id:        id,
		logger:    slog.Default().With("component", "index-tx", "tx_id", id),
		mutations: make(map[docKey]*Mutation),
	}
}

// Add buffers an upsert of one field on a document. isNew is an existence
// hint only; it never changes the final observable state.
func (t *Transaction) Add(store, docID string, entry IndexEntry, isNew bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != txOpen {
		return fmt.Errorf("add on %s transaction: %w", t.state, errors.ErrTransactionClosed)
	}
	m := t.mutation(store, docID, isNew)
	m.AddField(entry)
	return nil
}

// Delete buffers a deletion. With deleteAll the entire document is removed
// regardless of field and value (both are accepted for API uniformity);
// otherwise only the named field is deleted.
func (t *Transaction) Delete(store, docID, field string, value any, deleteAll bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != txOpen {
		return fmt.Errorf("delete on %s transaction: %w", t.state, errors.ErrTransactionClosed)
	}
	m := t.mutation(store, docID, false)
	if deleteAll {
		m.DeleteAll()
		return nil
	}
	m.DeleteField(IndexEntry{Field: field, Value: NormalizeValue(value)})
	return nil
}

func (t *Transaction) mutation(store, docID string, isNew bool) *Mutation {
	key := docKey{store: store, docID: docID}
	m, ok := t.mutations[key]
	if !ok {
		m = &Mutation{Store: store, DocID: docID, IsNew: isNew}
		t.mutations[key] = m
		t.order = append(t.order, key)
	}
	if isNew {
		m.IsNew = true
	}
	return m
}

// Query validates the query's predicate tree against the provider's
// capability model and executes it. Unsupported (type, mapping, operator)
// combinations fail eagerly; the query is never partially evaluated.
// Buffered, uncommitted mutations of this transaction are not observed.
func (t *Transaction) Query(ctx context.Context, query IndexQuery) ([]string, error) {
	if err := ValidateCondition(query.Condition, query.Store, t.provider, t.keys); err != nil {
		return nil, err
	}
	return t.provider.Query(ctx, query, t.keys)
}

// QueryRaw executes a backend-native query if the provider supports them.
func (t *Transaction) QueryRaw(ctx context.Context, query RawQuery) ([]RawResult, error) {
	if !t.provider.Features().SupportsRawQueries {
		return nil, errors.New(errors.ErrUnsupportedPredicate, "index", "raw_query",
			"backend does not support native queries")
	}
	return t.provider.QueryRaw(ctx, query, t.keys)
}

// Mutations returns the buffered mutation batch in buffer order. Exposed
// for commit hooks such as the mutation feed.
func (t *Transaction) Mutations() []Mutation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Transaction) snapshotLocked() []Mutation {
	batch := make([]Mutation, 0, len(t.order))
	for _, key := range t.order {
		m := t.mutations[key]
		if m.IsConsolidated() {
			batch = append(batch, *m)
		}
	}
	return batch
}

// Commit flushes the buffered mutations to the provider as one atomic
// batch and makes the transaction terminal. A commit that exceeds the
// transaction's time budget fails with ErrCommitTimeout; its final backend
// state is indeterminate and must be treated as possibly applied.
func (t *Transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	if t.state != txOpen {
		t.mu.Unlock()
		return fmt.Errorf("commit on %s transaction: %w", t.state, errors.ErrTransactionClosed)
	}
	batch := t.snapshotLocked()
	t.state = txCommitted
	t.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	err := resilience.WithTimeout(ctx, t.budget, "index commit", func(ctx context.Context) error {
		return t.provider.Mutate(ctx, batch, t.keys)
	})
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return errors.Newf(errors.ErrCommitTimeout, "index", "commit",
				"budget %v exceeded; state is indeterminate", t.budget)
		}
		return fmt.Errorf("committing %d mutations: %w", len(batch), err)
	}
	t.logger.Debug("transaction committed",
		"documents", len(batch),
		"duration", time.Since(start),
	)
	return nil
}

// Rollback discards the buffer and makes the transaction terminal.
func (t *Transaction) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != txOpen {
		return fmt.Errorf("rollback on %s transaction: %w", t.state, errors.ErrTransactionClosed)
	}
	t.state = txRolledBack
	t.mutations = nil
	t.order = nil
	return nil
}
