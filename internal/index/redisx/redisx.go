// Package redisx implements the index provider contract on Redis. Each
// document lives at its own key as an encoded field set, with a per-store
// set tracking document ids for enumeration. Writes go through pipelined
// transactions so one mutation batch becomes visible atomically.
package redisx

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/BennyH26/titan/internal/index"
	"github.com/BennyH26/titan/pkg/config"
	"github.com/BennyH26/titan/pkg/errors"
	"github.com/BennyH26/titan/pkg/redis"
)

const backendName = "redis"

// Factory option keys.
const (
	OptAddr     = "addr"
	OptPassword = "password"
	OptDB       = "db"
)

func init() {
	index.RegisterBackend(backendName, func(ctx context.Context, options map[string]string) (index.Provider, error) {
		db, _ := strconv.Atoi(options[OptDB])
		client, err := redis.NewClient(config.RedisConfig{
			Addr:     options[OptAddr],
			Password: options[OptPassword],
			DB:       db,
		})
		if err != nil {
			return nil, errors.Unavailable(backendName, "open", err)
		}
		return NewWithClient(client), nil
	})
}

// Provider keeps index documents in Redis. The commit mutex serializes
// mutation batches from concurrent transactions into arrival order.
type Provider struct {
	client *redis.Client
	caps   index.CapabilityTable
	logger *slog.Logger

	commitMu sync.Mutex
}

// NewWithClient wraps an already-connected Redis client.
func NewWithClient(client *redis.Client) *Provider {
	return &Provider{
		client: client,
		caps:   index.DefaultCapabilities(),
		logger: slog.Default().With("component", "index-redis"),
	}
}

func docKey(store, docID string) string {
	return "titan:doc:" + store + ":" + docID
}

func idsKey(store string) string {
	return "titan:docs:" + store
}

func regKey(store string) string {
	return "titan:reg:" + store
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
	value := ki.DataType.String() + "/" + ki.Mapping().String()
	if err := p.client.RDB().HSet(ctx, regKey(store), field, value).Err(); err != nil {
		return errors.Unavailable(backendName, "register", err)
	}
	return nil
}

func (p *Provider) Mutate(ctx context.Context, mutations []index.Mutation, keys index.KeyRetriever) error {
	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	now := time.Now()

	// Read-modify-write: fetch current documents, fold the batch in, then
	// flush all writes in one pipelined transaction.
	docs := make(map[string]index.Document, len(mutations))
	for i := range mutations {
		m := &mutations[i]
		key := docKey(m.Store, m.DocID)
		if _, seen := docs[key]; seen {
			continue
		}
		doc, err := p.readDoc(ctx, key)
		if err != nil {
			return err
		}
		docs[key] = doc
	}

	_, err := p.client.RDB().TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i := range mutations {
			m := &mutations[i]
			key := docKey(m.Store, m.DocID)
			doc := docs[key].Apply(m, now)
			docs[key] = doc
			if (m.Deleted && len(m.Additions) == 0) || doc.IsEmpty(now) {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, idsKey(m.Store), m.DocID)
				continue
			}
			data, err := index.EncodeDocument(doc)
			if err != nil {
				return err
			}
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, idsKey(m.Store), m.DocID)
		}
		return nil
	})
	if err != nil {
		return errors.Unavailable(backendName, "mutate", err)
	}
	return nil
}

func (p *Provider) readDoc(ctx context.Context, key string) (index.Document, error) {
	data, err := p.client.Get(ctx, key)
	if redis.IsNilError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Unavailable(backendName, "read", err)
	}
	doc, err := index.DecodeDocument([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", key, err)
	}
	return doc, nil
}

func (p *Provider) Query(ctx context.Context, query index.IndexQuery, keys index.KeyRetriever) ([]string, error) {
	now := time.Now()
	docIDs, err := p.client.RDB().SMembers(ctx, idsKey(query.Store)).Result()
	if err != nil {
		return nil, errors.Unavailable(backendName, "query", err)
	}
	if len(docIDs) == 0 {
		return nil, nil
	}

	docKeys := make([]string, len(docIDs))
	for i, id := range docIDs {
		docKeys[i] = docKey(query.Store, id)
	}
	values, err := p.client.RDB().MGet(ctx, docKeys...).Result()
	if err != nil {
		return nil, errors.Unavailable(backendName, "query", err)
	}

	matched := make(map[string]index.Document)
	var ids []string
	for i, raw := range values {
		data, ok := raw.(string)
		if !ok {
			continue
		}
		doc, err := index.DecodeDocument([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("decoding document %s: %w", docKeys[i], err)
		}
		if doc.IsEmpty(now) {
			continue
		}
		if index.EvaluateCondition(query.Condition, doc.Lookup(now)) {
			matched[docIDs[i]] = doc
			ids = append(ids, docIDs[i])
		}
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
	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	now := time.Now()
	_, err := p.client.RDB().TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for storeName, byDoc := range docs {
			for docID, entries := range byDoc {
				key := docKey(storeName, docID)
				if len(entries) == 0 {
					pipe.Del(ctx, key)
					pipe.SRem(ctx, idsKey(storeName), docID)
					continue
				}
				data, err := index.EncodeDocument(index.DocumentFromEntries(entries, now))
				if err != nil {
					return err
				}
				pipe.Set(ctx, key, data, 0)
				pipe.SAdd(ctx, idsKey(storeName), docID)
			}
		}
		return nil
	})
	if err != nil {
		return errors.Unavailable(backendName, "restore", err)
	}
	return nil
}

func (p *Provider) ClearStorage(ctx context.Context) error {
	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	deleted, err := p.client.FlushByPattern(ctx, "titan:*")
	if err != nil {
		return errors.Unavailable(backendName, "clear", err)
	}
	p.logger.Info("index storage cleared", "keys_deleted", deleted)
	return nil
}

// Ping lets the health checker probe the backend connection.
func (p *Provider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
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
	return p.client.Close()
}
