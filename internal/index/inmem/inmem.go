// Package inmem implements the index provider contract on plain in-process
// maps. It is the reference backend: single-node deployments and tests use
// it directly, and the persistent backends mirror its observable semantics.
package inmem

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BennyH26/titan/internal/index"
	"github.com/BennyH26/titan/pkg/errors"
)

const backendName = "inmem"

func init() {
	index.RegisterBackend(backendName, func(ctx context.Context, options map[string]string) (index.Provider, error) {
		return New(), nil
	})
}

// Provider holds every store's documents in memory. Mutation batches are
// applied under a single write lock so commits serialize in arrival order;
// queries take the read lock and see whole batches only.
type Provider struct {
	mu     sync.RWMutex
	stores map[string]map[string]index.Document
	keys   map[string]map[string]index.KeyInformation
	caps   index.CapabilityTable
	seq    uint64
	now    func() time.Time
	logger *slog.Logger
}

// New creates an empty in-memory provider.
func New() *Provider {
	return &Provider{
		stores: make(map[string]map[string]index.Document),
		keys:   make(map[string]map[string]index.KeyInformation),
		caps:   index.DefaultCapabilities(),
		now:    time.Now,
		logger: slog.Default().With("component", "index-inmem"),
	}
}

// SetClock replaces the provider's time source. Field TTLs are evaluated
// against it lazily on read.
func (p *Provider) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

func (p *Provider) Supports(ki index.KeyInformation) bool {
	return p.caps.Supports(ki)
}

func (p *Provider) SupportsOperator(ki index.KeyInformation, op index.Operator) bool {
	return p.caps.SupportsOperator(ki, op)
}

func (p *Provider) Register(ctx context.Context, store, field string, ki index.KeyInformation) error {
	if !p.caps.Supports(ki) {
		return errors.Newf(errors.ErrUnsupportedPredicate, backendName, "register",
			"type %s with mapping %s is not indexable", ki.DataType, ki.Mapping())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fields, ok := p.keys[store]
	if !ok {
		fields = make(map[string]index.KeyInformation)
		p.keys[store] = fields
	}
	fields[field] = ki
	return nil
}

func (p *Provider) Mutate(ctx context.Context, mutations []index.Mutation, keys index.KeyRetriever) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	for i := range mutations {
		m := &mutations[i]
		store, ok := p.stores[m.Store]
		if !ok {
			store = make(map[string]index.Document)
			p.stores[m.Store] = store
		}
		doc := store[m.DocID].Apply(m, now)
		if m.Deleted && len(m.Additions) == 0 {
			delete(store, m.DocID)
			continue
		}
		if doc.IsEmpty(now) {
			delete(store, m.DocID)
			continue
		}
		store[m.DocID] = doc
	}
	p.seq++
	p.logger.Debug("batch applied", "seq", p.seq, "documents", len(mutations))
	return nil
}

func (p *Provider) Query(ctx context.Context, query index.IndexQuery, keys index.KeyRetriever) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	now := p.now()
	store := p.stores[query.Store]

	var ids []string
	for id, doc := range store {
		if doc.IsEmpty(now) {
			continue
		}
		if index.EvaluateCondition(query.Condition, doc.Lookup(now)) {
			ids = append(ids, id)
		}
	}
	index.SortResults(ids, query.Orders, func(id, field string) (any, bool) {
		return store[id].LiveValue(field, now)
	})
	return index.Paginate(ids, query.Limit, query.Offset), nil
}

func (p *Provider) QueryRaw(ctx context.Context, query index.RawQuery, keys index.KeyRetriever) ([]index.RawResult, error) {
	return nil, errors.New(errors.ErrUnsupportedPredicate, backendName, "raw_query",
		"backend has no native query syntax")
}

func (p *Provider) Restore(ctx context.Context, docs index.RestoreSet, keys index.KeyRetriever) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	for storeName, byDoc := range docs {
		store, ok := p.stores[storeName]
		if !ok {
			store = make(map[string]index.Document)
			p.stores[storeName] = store
		}
		for docID, entries := range byDoc {
			if len(entries) == 0 {
				delete(store, docID)
				continue
			}
			store[docID] = index.DocumentFromEntries(entries, now)
		}
	}
	return nil
}

func (p *Provider) ClearStorage(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stores = make(map[string]map[string]index.Document)
	p.keys = make(map[string]map[string]index.KeyInformation)
	return nil
}

func (p *Provider) Features() index.Features {
	return index.Features{
		SupportsRawQueries:  false,
		SupportsDocumentTTL: true,
		SortableTypes: []index.DataType{
			index.TypeString, index.TypeLong, index.TypeDouble,
			index.TypeInteger, index.TypeShort, index.TypeByte, index.TypeFloat,
		},
	}
}

func (p *Provider) Close() error {
	return nil
}
