package scan

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/BennyH26/titan/internal/index"
	"github.com/BennyH26/titan/internal/storage"
	"github.com/BennyH26/titan/pkg/config"
)

// RowDecoder turns one storage row into an index document: the document id
// plus its complete field set. Returning ok=false drops the row.
type RowDecoder func(key storage.ByteKey, entries storage.EntryList) (docID string, fields []index.IndexEntry, ok bool, err error)

const (
	// ReindexJobName is the registry name the composing binary registers
	// the job under.
	ReindexJobName = "reindex"
	// ReindexConfStore selects the target store in the job configuration.
	ReindexConfStore = "store"
	// ReindexConfBatchSize bounds how many documents each restore carries.
	ReindexConfBatchSize = "batchSize"
)

const defaultReindexBatch = 500

// ReindexJob rebuilds one index store from a storage sweep. Each decoded
// row becomes a full-document restore, so a reindex over existing data
// converges to exactly the rows' current state.
type ReindexJob struct {
	provider  index.Provider
	keys      index.KeyRetriever
	decoder   RowDecoder
	broadcast func(context.Context, index.RestoreSet) error

	store     string
	batchSize int

	mu      sync.Mutex
	pending map[string][]index.IndexEntry
	flushed int64
}

// NewReindexJob creates a job writing decoded documents to provider.
func NewReindexJob(provider index.Provider, keys index.KeyRetriever, decoder RowDecoder) *ReindexJob {
	return &ReindexJob{provider: provider, keys: keys, decoder: decoder}
}

// Broadcast mirrors every flushed batch to fn after the local restore
// succeeded, typically the restore feed publisher, so follower indexes
// rebuild alongside the local store.
func (j *ReindexJob) Broadcast(fn func(context.Context, index.RestoreSet) error) {
	j.broadcast = fn
}

func (j *ReindexJob) Setup(jobConf map[string]string, cfg *config.Config, m Metrics) error {
	j.store = jobConf[ReindexConfStore]
	if j.store == "" {
		return fmt.Errorf("job configuration misses %q", ReindexConfStore)
	}
	j.batchSize = defaultReindexBatch
	if v := jobConf[ReindexConfBatchSize]; v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			return fmt.Errorf("invalid %s %q", ReindexConfBatchSize, v)
		}
		j.batchSize = size
	}
	j.pending = make(map[string][]index.IndexEntry)
	return nil
}

func (j *ReindexJob) Process(key storage.ByteKey, matches []storage.EntryList, m Metrics) error {
	docID, fields, ok, err := j.decoder(key, matches[0])
	if err != nil {
		return fmt.Errorf("decoding row %x: %w", []byte(key), err)
	}
	if !ok {
		m.Increment("reindex.rows.dropped")
		return nil
	}

	j.mu.Lock()
	j.pending[docID] = fields
	full := len(j.pending) >= j.batchSize
	var batch map[string][]index.IndexEntry
	if full {
		batch = j.pending
		j.pending = make(map[string][]index.IndexEntry)
	}
	j.mu.Unlock()

	if full {
		if err := j.flush(batch, m); err != nil {
			return err
		}
	}
	m.Increment("reindex.rows.indexed")
	return nil
}

func (j *ReindexJob) Teardown(m Metrics) error {
	j.mu.Lock()
	batch := j.pending
	j.pending = make(map[string][]index.IndexEntry)
	j.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	return j.flush(batch, m)
}

func (j *ReindexJob) flush(batch map[string][]index.IndexEntry, m Metrics) error {
	set := index.RestoreSet{j.store: batch}
	if err := j.provider.Restore(context.Background(), set, j.keys); err != nil {
		return fmt.Errorf("restoring %d documents: %w", len(batch), err)
	}
	m.Add("reindex.docs.restored", int64(len(batch)))
	if j.broadcast != nil {
		if err := j.broadcast(context.Background(), set); err != nil {
			return fmt.Errorf("broadcasting %d restored documents: %w", len(batch), err)
		}
		m.Add("reindex.docs.broadcast", int64(len(batch)))
	}
	return nil
}

func (j *ReindexJob) KeyFilter() func(storage.ByteKey) bool {
	return nil
}

func (j *ReindexJob) Queries() []storage.SliceQuery {
	return []storage.SliceQuery{
		storage.NewSliceQuery(storage.ZeroKey(8), storage.OneKey(8)),
	}
}
