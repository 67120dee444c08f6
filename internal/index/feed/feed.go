// Package feed replicates committed index mutations over Kafka. A Publisher
// turns each committed batch into one message per document; an Applier on
// the consuming side folds those messages into a local provider, so a
// follower index converges on the primary's state in commit order.
package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BennyH26/titan/internal/index"
	"github.com/BennyH26/titan/pkg/kafka"
	"github.com/BennyH26/titan/pkg/metrics"
)

// WireEntry is the wire form of one field-level change.
type WireEntry struct {
	Field      string          `json:"field"`
	Value      index.WireValue `json:"value"`
	TTLSeconds int             `json:"ttlSeconds,omitempty"`
}

// MutationEvent is the wire form of one document's committed change set.
type MutationEvent struct {
	Store     string      `json:"store"`
	DocID     string      `json:"docId"`
	IsNew     bool        `json:"isNew,omitempty"`
	Deleted   bool        `json:"deleted,omitempty"`
	Additions []WireEntry `json:"additions,omitempty"`
	Deletions []WireEntry `json:"deletions,omitempty"`
}

// RestoreMessage carries full replacement field sets for a group of
// documents: store -> doc id -> complete field set, empty meaning delete.
type RestoreMessage struct {
	Docs map[string]map[string][]WireEntry `json:"docs"`
}

func encodeEntries(entries []index.IndexEntry) ([]WireEntry, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	wire := make([]WireEntry, 0, len(entries))
	for _, e := range entries {
		wv, err := index.EncodeValue(e.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", e.Field, err)
		}
		wire = append(wire, WireEntry{Field: e.Field, Value: wv, TTLSeconds: e.TTLSeconds})
	}
	return wire, nil
}

func decodeEntries(wire []WireEntry) []index.IndexEntry {
	if len(wire) == 0 {
		return nil
	}
	entries := make([]index.IndexEntry, 0, len(wire))
	for _, w := range wire {
		entries = append(entries, index.IndexEntry{
			Field:      w.Field,
			Value:      w.Value.Decode(),
			TTLSeconds: w.TTLSeconds,
		})
	}
	return entries
}

// EncodeMutation converts a committed mutation into its feed event.
func EncodeMutation(m index.Mutation) (MutationEvent, error) {
	additions, err := encodeEntries(m.Additions)
	if err != nil {
		return MutationEvent{}, err
	}
	deletions, err := encodeEntries(m.Deletions)
	if err != nil {
		return MutationEvent{}, err
	}
	return MutationEvent{
		Store:     m.Store,
		DocID:     m.DocID,
		IsNew:     m.IsNew,
		Deleted:   m.Deleted,
		Additions: additions,
		Deletions: deletions,
	}, nil
}

// DecodeMutation converts a feed event back into a mutation.
func DecodeMutation(ev MutationEvent) index.Mutation {
	return index.Mutation{
		Store:     ev.Store,
		DocID:     ev.DocID,
		IsNew:     ev.IsNew,
		Deleted:   ev.Deleted,
		Additions: decodeEntries(ev.Additions),
		Deletions: decodeEntries(ev.Deletions),
	}
}

// Sink is the producing side of the feed, satisfied by kafka.Producer.
type Sink interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Publisher emits one feed event per committed document mutation. Keys are
// store/doc so Kafka's hash partitioner keeps each document's history on a
// single partition, preserving commit order per document.
type Publisher struct {
	sink    Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a Publisher writing to the given sink.
func NewPublisher(sink Sink, m *metrics.Metrics) *Publisher {
	return &Publisher{
		sink:    sink,
		metrics: m,
		logger:  slog.Default().With("component", "index-feed"),
	}
}

// PublishCommit emits a committed mutation batch to the feed.
func (p *Publisher) PublishCommit(ctx context.Context, batch []index.Mutation) error {
	if len(batch) == 0 {
		return nil
	}
	events := make([]kafka.Event, 0, len(batch))
	for _, m := range batch {
		ev, err := EncodeMutation(m)
		if err != nil {
			p.count("encode_error", 1)
			return fmt.Errorf("encoding mutation for %s/%s: %w", m.Store, m.DocID, err)
		}
		events = append(events, kafka.Event{
			Key:   m.Store + "/" + m.DocID,
			Value: ev,
		})
	}
	if err := p.sink.PublishBatch(ctx, events); err != nil {
		p.count("error", len(events))
		return err
	}
	p.count("ok", len(events))
	return nil
}

// CommitHook adapts the publisher to the manager's commit hook signature.
// Hooks run after the backend applied the batch, so a publish failure is
// logged and counted rather than surfaced to the committer; the follower
// catches up on the next successful publish for the document.
func (p *Publisher) CommitHook() index.CommitHook {
	return func(ctx context.Context, batch []index.Mutation) {
		if err := p.PublishCommit(ctx, batch); err != nil {
			p.logger.Error("publishing committed batch failed",
				"documents", len(batch),
				"error", err,
			)
		}
	}
}

// PublishRestore emits full-document replacement sets to the feed, one
// message per store so each store's rewrites stay on one partition.
func (p *Publisher) PublishRestore(ctx context.Context, docs index.RestoreSet) error {
	if len(docs) == 0 {
		return nil
	}
	events := make([]kafka.Event, 0, len(docs))
	for store, byDoc := range docs {
		wire := make(map[string][]WireEntry, len(byDoc))
		for docID, entries := range byDoc {
			enc, err := encodeEntries(entries)
			if err != nil {
				p.count("encode_error", 1)
				return fmt.Errorf("encoding restore for %s/%s: %w", store, docID, err)
			}
			wire[docID] = enc
		}
		events = append(events, kafka.Event{
			Key:   store,
			Value: RestoreMessage{Docs: map[string]map[string][]WireEntry{store: wire}},
		})
	}
	if err := p.sink.PublishBatch(ctx, events); err != nil {
		p.count("error", len(events))
		return err
	}
	p.count("ok", len(events))
	return nil
}

func (p *Publisher) count(status string, n int) {
	p.metrics.FeedPublishedTotal.WithLabelValues(status).Add(float64(n))
}

// Applier consumes feed messages and folds them into a provider. Its
// handler methods satisfy kafka.MessageHandler.
type Applier struct {
	provider index.Provider
	keys     index.KeyRetriever
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewApplier creates an Applier targeting the given provider.
func NewApplier(provider index.Provider, keys index.KeyRetriever, m *metrics.Metrics) *Applier {
	return &Applier{
		provider: provider,
		keys:     keys,
		metrics:  m,
		logger:   slog.Default().With("component", "index-feed-applier"),
	}
}

// HandleMutation applies one mutation feed message.
func (a *Applier) HandleMutation(ctx context.Context, key, value []byte) error {
	ev, err := kafka.DecodeJSON[MutationEvent](value)
	if err != nil {
		a.metrics.FeedConsumedTotal.WithLabelValues("decode_error").Inc()
		return err
	}
	m := DecodeMutation(ev)
	if err := a.provider.Mutate(ctx, []index.Mutation{m}, a.keys); err != nil {
		a.metrics.FeedConsumedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("applying feed mutation for %s/%s: %w", m.Store, m.DocID, err)
	}
	a.metrics.FeedConsumedTotal.WithLabelValues("ok").Inc()
	return nil
}

// HandleRestore applies one restore message, rewriting every named document.
func (a *Applier) HandleRestore(ctx context.Context, key, value []byte) error {
	msg, err := kafka.DecodeJSON[RestoreMessage](value)
	if err != nil {
		a.metrics.FeedConsumedTotal.WithLabelValues("decode_error").Inc()
		return err
	}
	docs := make(index.RestoreSet, len(msg.Docs))
	total := 0
	for store, byDoc := range msg.Docs {
		docs[store] = make(map[string][]index.IndexEntry, len(byDoc))
		for docID, entries := range byDoc {
			docs[store][docID] = decodeEntries(entries)
			total++
		}
	}
	if err := a.provider.Restore(ctx, docs, a.keys); err != nil {
		a.metrics.FeedConsumedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("applying restore of %d documents: %w", total, err)
	}
	a.metrics.FeedConsumedTotal.WithLabelValues("ok").Inc()
	a.logger.Info("restore applied", "documents", total)
	return nil
}
