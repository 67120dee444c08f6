package feed

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/BennyH26/titan/internal/index"
	"github.com/BennyH26/titan/internal/index/inmem"
	"github.com/BennyH26/titan/pkg/kafka"
	"github.com/BennyH26/titan/pkg/metrics"
)

// The default Prometheus registry rejects duplicate collectors, so the whole
// test binary shares one Metrics instance.
var testMetrics = metrics.New()

type fakeSink struct {
	events []kafka.Event
	err    error
}

func (f *fakeSink) PublishBatch(ctx context.Context, events []kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

func testKeys() index.MapRetriever {
	return index.MapRetriever{
		"text": index.KeyOf(index.TypeString),
		"time": index.KeyOf(index.TypeLong),
	}
}

func TestPublishCommitEmitsOneEventPerDocument(t *testing.T) {
	sink := &fakeSink{}
	pub := NewPublisher(sink, testMetrics)

	err := pub.PublishCommit(context.Background(), []index.Mutation{
		{Store: "vertex", DocID: "d1", IsNew: true, Additions: []index.IndexEntry{index.NewEntry("time", 42)}},
		{Store: "vertex", DocID: "d2", Deleted: true},
		{Store: "edge", DocID: "d1", Deletions: []index.IndexEntry{index.NewEntry("text", "stale")}},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sink.events) != 3 {
		t.Fatalf("published %d events, want 3", len(sink.events))
	}
	// Keys carry store and document so per-document history stays on one
	// partition.
	wantKeys := []string{"vertex/d1", "vertex/d2", "edge/d1"}
	for i, ev := range sink.events {
		if ev.Key != wantKeys[i] {
			t.Errorf("event %d key = %q, want %q", i, ev.Key, wantKeys[i])
		}
	}
}

func TestPublishCommitEmptyBatchIsANoop(t *testing.T) {
	sink := &fakeSink{}
	pub := NewPublisher(sink, testMetrics)
	if err := pub.PublishCommit(context.Background(), nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sink.events) != 0 {
		t.Errorf("published %d events, want 0", len(sink.events))
	}
}

func TestMutationWireRoundTrip(t *testing.T) {
	original := index.Mutation{
		Store: "vertex",
		DocID: "d1",
		IsNew: true,
		Additions: []index.IndexEntry{
			index.NewEntry("time", int64(42)),
			index.NewEntry("weight", 42.0),
			index.NewEntry("text", "hello").WithTTL(60),
		},
		Deletions: []index.IndexEntry{
			index.NewEntry("old", "stale"),
		},
	}
	ev, err := EncodeMutation(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// The JSON hop is what production traffic goes through.
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded MutationEvent
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := DecodeMutation(decoded)
	if !reflect.DeepEqual(got, original) {
		t.Errorf("round trip = %+v, want %+v", got, original)
	}
	// Integer and float identity must survive, JSON would otherwise merge
	// them into float64.
	if v := got.Additions[0].Value; v != int64(42) {
		t.Errorf("integer value = %v (%T), want int64(42)", v, v)
	}
	if v := got.Additions[1].Value; v != 42.0 {
		t.Errorf("float value = %v (%T), want 42.0", v, v)
	}
	if got.Additions[2].TTLSeconds != 60 {
		t.Errorf("ttl = %d, want 60", got.Additions[2].TTLSeconds)
	}
}

func TestCommitHookPublishesCommittedBatches(t *testing.T) {
	sink := &fakeSink{}
	pub := NewPublisher(sink, testMetrics)
	provider := inmem.New()
	mgr := index.NewManager(provider, "inmem", time.Second, nil, pub.CommitHook())
	if err := mgr.RegisterKey(context.Background(), "vertex", "time", index.KeyOf(index.TypeLong)); err != nil {
		t.Fatal(err)
	}

	tx := mgr.Begin()
	if err := tx.Add("vertex", "d1", index.NewEntry("time", 42), true); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Commit(context.Background(), tx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(sink.events) != 1 || sink.events[0].Key != "vertex/d1" {
		t.Fatalf("events = %+v, want one for vertex/d1", sink.events)
	}
}

func TestCommitHookPublishFailureDoesNotFailCommit(t *testing.T) {
	sink := &fakeSink{err: stderrors.New("broker unreachable")}
	pub := NewPublisher(sink, testMetrics)
	provider := inmem.New()
	mgr := index.NewManager(provider, "inmem", time.Second, nil, pub.CommitHook())
	if err := mgr.RegisterKey(context.Background(), "vertex", "time", index.KeyOf(index.TypeLong)); err != nil {
		t.Fatal(err)
	}

	tx := mgr.Begin()
	if err := tx.Add("vertex", "d1", index.NewEntry("time", 42), true); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Commit(context.Background(), tx); err != nil {
		t.Fatalf("commit must survive a publish failure: %v", err)
	}
}

func TestPublishRestoreReachesApplier(t *testing.T) {
	sink := &fakeSink{}
	pub := NewPublisher(sink, testMetrics)
	applier, p := applierWithProvider(t)

	err := pub.PublishRestore(context.Background(), index.RestoreSet{
		"vertex": {
			"fresh": {index.NewEntry("text", "restored")},
			"old":   nil,
		},
	})
	if err != nil {
		t.Fatalf("publish restore: %v", err)
	}
	if len(sink.events) != 1 || sink.events[0].Key != "vertex" {
		t.Fatalf("events = %+v, want one keyed by store", sink.events)
	}

	// The consumer side applies the same bytes the producer emitted.
	data, err := json.Marshal(sink.events[0].Value)
	if err != nil {
		t.Fatal(err)
	}
	if err := applier.HandleRestore(context.Background(), []byte(sink.events[0].Key), data); err != nil {
		t.Fatalf("handle restore: %v", err)
	}
	if got := queryIDs(t, p, index.NewIndexQuery("vertex", index.Pred("text", index.OpTextContains, "restored"))); !reflect.DeepEqual(got, []string{"fresh"}) {
		t.Errorf("restored document = %v", got)
	}
}

func applierWithProvider(t *testing.T) (*Applier, *inmem.Provider) {
	t.Helper()
	p := inmem.New()
	keys := testKeys()
	for field, ki := range keys {
		if err := p.Register(context.Background(), "vertex", field, ki); err != nil {
			t.Fatalf("register %s: %v", field, err)
		}
	}
	return NewApplier(p, keys, testMetrics), p
}

func queryIDs(t *testing.T, p *inmem.Provider, q index.IndexQuery) []string {
	t.Helper()
	ids, err := p.Query(context.Background(), q, testKeys())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	sort.Strings(ids)
	return ids
}

func TestApplierFoldsMutationsIntoProvider(t *testing.T) {
	applier, p := applierWithProvider(t)

	publish := func(m index.Mutation) {
		t.Helper()
		ev, err := EncodeMutation(m)
		if err != nil {
			t.Fatal(err)
		}
		data, err := json.Marshal(ev)
		if err != nil {
			t.Fatal(err)
		}
		if err := applier.HandleMutation(context.Background(), []byte(m.Store+"/"+m.DocID), data); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}

	publish(index.Mutation{Store: "vertex", DocID: "d1", IsNew: true,
		Additions: []index.IndexEntry{index.NewEntry("time", 42)}})
	publish(index.Mutation{Store: "vertex", DocID: "d2", IsNew: true,
		Additions: []index.IndexEntry{index.NewEntry("time", 42)}})

	if got := queryIDs(t, p, index.NewIndexQuery("vertex", index.Pred("time", index.OpEqual, 42))); !reflect.DeepEqual(got, []string{"d1", "d2"}) {
		t.Errorf("after additions: %v", got)
	}

	publish(index.Mutation{Store: "vertex", DocID: "d1", Deleted: true})
	if got := queryIDs(t, p, index.NewIndexQuery("vertex", index.Pred("time", index.OpEqual, 42))); !reflect.DeepEqual(got, []string{"d2"}) {
		t.Errorf("after delete: %v", got)
	}
}

func TestApplierRejectsMalformedPayload(t *testing.T) {
	applier, _ := applierWithProvider(t)
	if err := applier.HandleMutation(context.Background(), nil, []byte("{not json")); err == nil {
		t.Error("expected a decode error")
	}
}

func TestApplierHandleRestore(t *testing.T) {
	applier, p := applierWithProvider(t)

	// Pre-existing state that the restore must replace.
	err := p.Mutate(context.Background(), []index.Mutation{
		{Store: "vertex", DocID: "old", IsNew: true,
			Additions: []index.IndexEntry{index.NewEntry("time", 1)}},
	}, testKeys())
	if err != nil {
		t.Fatal(err)
	}

	wv, err := index.EncodeValue("restored")
	if err != nil {
		t.Fatal(err)
	}
	msg := RestoreMessage{Docs: map[string]map[string][]WireEntry{
		"vertex": {
			"old":   nil,
			"fresh": {{Field: "text", Value: wv}},
		},
	}}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if err := applier.HandleRestore(context.Background(), nil, data); err != nil {
		t.Fatalf("handle restore: %v", err)
	}

	if got := queryIDs(t, p, index.NewIndexQuery("vertex", index.Pred("time", index.OpEqual, 1))); len(got) != 0 {
		t.Errorf("deleted document still visible: %v", got)
	}
	if got := queryIDs(t, p, index.NewIndexQuery("vertex", index.Pred("text", index.OpTextContains, "restored"))); !reflect.DeepEqual(got, []string{"fresh"}) {
		t.Errorf("restored document = %v", got)
	}
}
