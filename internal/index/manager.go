package index

import (
	"context"
	"sync"
	"time"

	"github.com/BennyH26/titan/pkg/metrics"
)

// KeyRegistry is a concurrent store/field -> KeyInformation registry
// implementing KeyRetriever. The Manager keeps it in sync with the
// provider's own registrations.
type KeyRegistry struct {
	mu     sync.RWMutex
	fields map[string]map[string]KeyInformation
}

// NewKeyRegistry creates an empty registry.
func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{fields: make(map[string]map[string]KeyInformation)}
}

func (r *KeyRegistry) Get(store, field string) (KeyInformation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ki, ok := r.fields[store][field]
	return ki, ok
}

func (r *KeyRegistry) put(store, field string, ki KeyInformation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byField, ok := r.fields[store]
	if !ok {
		byField = make(map[string]KeyInformation)
		r.fields[store] = byField
	}
	byField[field] = ki
}

// CommitHook observes successfully committed mutation batches, after the
// backend has applied them. The mutation feed publisher is wired in here.
type CommitHook func(ctx context.Context, batch []Mutation)

// Manager owns one provider plus the pieces every caller needs around it:
// the key registry, the commit time budget, metric collectors, and the
// commit hooks. Transactions are opened through it.
type Manager struct {
	provider Provider
	backend  string
	keys     *KeyRegistry
	budget   time.Duration
	metrics  *metrics.Metrics
	hooks    []CommitHook
}

// NewManager wraps a provider. backend names the provider in metrics.
func NewManager(provider Provider, backend string, budget time.Duration, m *metrics.Metrics, hooks ...CommitHook) *Manager {
	return &Manager{
		provider: provider,
		backend:  backend,
		keys:     NewKeyRegistry(),
		budget:   budget,
		metrics:  m,
		hooks:    hooks,
	}
}

// Keys exposes the registry for read access.
func (mgr *Manager) Keys() KeyRetriever {
	return mgr.keys
}

// Provider exposes the wrapped provider.
func (mgr *Manager) Provider() Provider {
	return mgr.provider
}

// RegisterKey declares an indexed field, first with the backend, then in
// the local registry once the backend accepted it.
func (mgr *Manager) RegisterKey(ctx context.Context, store, field string, ki KeyInformation) error {
	if err := mgr.provider.Register(ctx, store, field, ki); err != nil {
		return err
	}
	mgr.keys.put(store, field, ki)
	return nil
}

// Begin opens a transaction against the managed provider.
func (mgr *Manager) Begin() *Transaction {
	return NewTransaction(mgr.provider, mgr.keys, mgr.budget)
}

// Commit commits tx, records commit metrics, and runs the commit hooks on
// success. Hooks see the batch that was applied.
func (mgr *Manager) Commit(ctx context.Context, tx *Transaction) error {
	batch := tx.Mutations()
	if mgr.metrics != nil {
		mgr.metrics.MutationsBuffered.Add(float64(len(batch)))
		defer mgr.metrics.MutationsBuffered.Sub(float64(len(batch)))
	}
	start := time.Now()
	err := tx.Commit(ctx)
	if mgr.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		mgr.metrics.CommitsTotal.WithLabelValues(mgr.backend, status).Inc()
		mgr.metrics.CommitDuration.WithLabelValues(mgr.backend).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return err
	}
	for _, hook := range mgr.hooks {
		hook(ctx, batch)
	}
	return nil
}

// Query runs a structured query with metrics.
func (mgr *Manager) Query(ctx context.Context, query IndexQuery) ([]string, error) {
	if err := ValidateCondition(query.Condition, query.Store, mgr.provider, mgr.keys); err != nil {
		return nil, err
	}
	start := time.Now()
	ids, err := mgr.provider.Query(ctx, query, mgr.keys)
	mgr.observeQuery("structured", start, err)
	return ids, err
}

// QueryRaw runs a backend-native query with metrics.
func (mgr *Manager) QueryRaw(ctx context.Context, query RawQuery) ([]RawResult, error) {
	start := time.Now()
	results, err := mgr.provider.QueryRaw(ctx, query, mgr.keys)
	mgr.observeQuery("raw", start, err)
	return results, err
}

// Restore bulk-rewrites documents and counts them.
func (mgr *Manager) Restore(ctx context.Context, docs RestoreSet) error {
	if err := mgr.provider.Restore(ctx, docs, mgr.keys); err != nil {
		return err
	}
	if mgr.metrics != nil {
		total := 0
		for _, byDoc := range docs {
			total += len(byDoc)
		}
		mgr.metrics.RestoredDocsTotal.WithLabelValues(mgr.backend).Add(float64(total))
	}
	return nil
}

func (mgr *Manager) observeQuery(kind string, start time.Time, err error) {
	if mgr.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	mgr.metrics.QueriesTotal.WithLabelValues(mgr.backend, kind, status).Inc()
	mgr.metrics.QueryDuration.WithLabelValues(mgr.backend).Observe(time.Since(start).Seconds())
}
