// Package badgerx implements the index provider contract on an embedded
// BadgerDB. Documents are stored one key per document under a per-store
// prefix; predicate evaluation happens document-by-document after decoding,
// with the same observable semantics as the in-memory backend.
package badgerx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/BennyH26/titan/internal/index"
	"github.com/BennyH26/titan/pkg/errors"
)

const backendName = "badger"

const (
	prefixDoc = "doc/"
	prefixReg = "reg/"
)

// Factory option keys.
const (
	OptDir        = "dir"
	OptInMemory   = "inMemory"
	OptSyncWrites = "syncWrites"
)

func init() {
	index.RegisterBackend(backendName, func(ctx context.Context, options map[string]string) (index.Provider, error) {
		return Open(options)
	})
}

// Provider stores each document as one Badger key holding its encoded
// field set. The commit mutex serializes mutation batches so they apply in
// arrival order.
type Provider struct {
	db     *badger.DB
	caps   index.CapabilityTable
	logger *slog.Logger

	commitMu sync.Mutex
}

// Open creates a provider from a free-form option map. inMemory=true gives
// a throwaway store useful in tests; otherwise dir must name a writable
// directory.
func Open(options map[string]string) (*Provider, error) {
	inMemory, _ := strconv.ParseBool(options[OptInMemory])
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dir := options[OptDir]
		if dir == "" {
			return nil, errors.New(errors.ErrConfiguration, backendName, "open", "dir option is required")
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating badger directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
		if syncWrites, _ := strconv.ParseBool(options[OptSyncWrites]); syncWrites {
			opts = opts.WithSyncWrites(true)
		}
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}
	slog.Info("badger index backend initialized", "dir", options[OptDir], "in_memory", inMemory)
	return NewWithDB(db), nil
}

// NewWithDB wraps an already-open database.
func NewWithDB(db *badger.DB) *Provider {
	return &Provider{
		db:     db,
		caps:   index.DefaultCapabilities(),
		logger: slog.Default().With("component", "index-badger"),
	}
}

func docKey(store, docID string) []byte {
	return []byte(prefixDoc + store + "/" + docID)
}

func regKey(store, field string) []byte {
	return []byte(prefixReg + store + "/" + field)
}

func storePrefix(store string) []byte {
	return []byte(prefixDoc + store + "/")
}

type registration struct {
	DataType string `json:"dataType"`
	Mapping  string `json:"mapping"`
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
	reg, err := json.Marshal(registration{
		DataType: ki.DataType.String(),
		Mapping:  ki.Mapping().String(),
	})
	if err != nil {
		return fmt.Errorf("encoding registration: %w", err)
	}
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(regKey(store, field), reg)
	})
}

func (p *Provider) Mutate(ctx context.Context, mutations []index.Mutation, keys index.KeyRetriever) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	now := time.Now()
	err := p.db.Update(func(txn *badger.Txn) error {
		for i := range mutations {
			m := &mutations[i]
			key := docKey(m.Store, m.DocID)
			doc, err := readDoc(txn, key)
			if err != nil {
				return err
			}
			doc = doc.Apply(m, now)
			if (m.Deleted && len(m.Additions) == 0) || doc.IsEmpty(now) {
				if err := txn.Delete(key); err != nil {
					return err
				}
				continue
			}
			data, err := index.EncodeDocument(doc)
			if err != nil {
				return err
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("applying mutation batch: %w", err)
	}
	return nil
}

func readDoc(txn *badger.Txn, key []byte) (index.Document, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc index.Document
	err = item.Value(func(val []byte) error {
		var decErr error
		doc, decErr = index.DecodeDocument(val)
		return decErr
	})
	return doc, err
}

func (p *Provider) Query(ctx context.Context, query index.IndexQuery, keys index.KeyRetriever) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now()
	prefix := storePrefix(query.Store)

	matched := make(map[string]index.Document)
	var ids []string
	err := p.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id := string(item.Key()[len(prefix):])
			var doc index.Document
			err := item.Value(func(val []byte) error {
				var decErr error
				doc, decErr = index.DecodeDocument(val)
				return decErr
			})
			if err != nil {
				return err
			}
			if doc.IsEmpty(now) {
				continue
			}
			if index.EvaluateCondition(query.Condition, doc.Lookup(now)) {
				matched[id] = doc
				ids = append(ids, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning store %s: %w", query.Store, err)
	}
	index.SortResults(ids, query.Orders, func(id, field string) (any, bool) {
		return matched[id].LiveValue(field, now)
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
	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	now := time.Now()
	err := p.db.Update(func(txn *badger.Txn) error {
		for storeName, byDoc := range docs {
			for docID, entries := range byDoc {
				key := docKey(storeName, docID)
				if len(entries) == 0 {
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				data, err := index.EncodeDocument(index.DocumentFromEntries(entries, now))
				if err != nil {
					return err
				}
				if err := txn.Set(key, data); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("applying restore set: %w", err)
	}
	return nil
}

func (p *Provider) ClearStorage(ctx context.Context) error {
	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	if err := p.db.DropAll(); err != nil {
		return fmt.Errorf("dropping badger data: %w", err)
	}
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
	return p.db.Close()
}
