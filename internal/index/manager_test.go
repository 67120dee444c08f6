package index

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/BennyH26/titan/pkg/metrics"
)

// The default Prometheus registry rejects duplicate collectors, so the whole
// test binary shares one Metrics instance.
var testManagerMetrics = metrics.New()

func TestManagerCommitRunsHooks(t *testing.T) {
	provider := newFakeProvider()
	var hooked [][]Mutation
	mgr := NewManager(provider, "fake", time.Second, nil, func(ctx context.Context, batch []Mutation) {
		hooked = append(hooked, batch)
	})

	tx := mgr.Begin()
	if err := tx.Add("things", "d1", NewEntry("name", "x"), true); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Commit(context.Background(), tx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(hooked) != 1 || len(hooked[0]) != 1 || hooked[0][0].DocID != "d1" {
		t.Fatalf("hook saw %v", hooked)
	}
}

func TestManagerRegisterKeyPopulatesRegistry(t *testing.T) {
	provider := newFakeProvider()
	mgr := NewManager(provider, "fake", time.Second, nil)
	ki := MappedKey(TypeString, MappingString)
	if err := mgr.RegisterKey(context.Background(), "things", "label", ki); err != nil {
		t.Fatal(err)
	}
	got, ok := mgr.Keys().Get("things", "label")
	if !ok || got.Mapping() != MappingString {
		t.Fatalf("registry lookup = %+v, %v", got, ok)
	}
	if _, ok := mgr.Keys().Get("other", "label"); ok {
		t.Error("registration must be scoped per store")
	}
}

func TestManagerQueryMetricsSplitKindAndStatus(t *testing.T) {
	provider := newFakeProvider()
	mgr := NewManager(provider, "metered", time.Second, testManagerMetrics)
	if err := mgr.RegisterKey(context.Background(), "things", "name", KeyOf(TypeString)); err != nil {
		t.Fatal(err)
	}
	counter := func(kind, status string) float64 {
		return testutil.ToFloat64(testManagerMetrics.QueriesTotal.WithLabelValues("metered", kind, status))
	}

	if _, err := mgr.Query(context.Background(), NewIndexQuery("things", Pred("name", OpTextContains, "x"))); err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := counter("structured", "ok"); got != 1 {
		t.Errorf("structured ok = %v, want 1", got)
	}

	provider.queryErr = stderrors.New("backend down")
	if _, err := mgr.Query(context.Background(), NewIndexQuery("things", Pred("name", OpTextContains, "x"))); err == nil {
		t.Fatal("expected the provider error")
	}
	if got := counter("structured", "error"); got != 1 {
		t.Errorf("structured error = %v, want 1", got)
	}
	// The kind label never absorbs the outcome.
	if got := counter("structured_error", ""); got != 0 {
		t.Errorf("structured_error series = %v, want none", got)
	}

	if _, err := mgr.QueryRaw(context.Background(), NewRawQuery("things", "name:x")); err != nil {
		t.Fatalf("raw query: %v", err)
	}
	if got := counter("raw", "ok"); got != 1 {
		t.Errorf("raw ok = %v, want 1", got)
	}
}

func TestManagerQueryValidates(t *testing.T) {
	provider := newFakeProvider()
	mgr := NewManager(provider, "fake", time.Second, nil)
	if err := mgr.RegisterKey(context.Background(), "things", "name", KeyOf(TypeString)); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Query(context.Background(), NewIndexQuery("things", Pred("name", OpEqual, "x"))); err == nil {
		t.Error("equality on a TEXT field should be rejected")
	}
	if _, err := mgr.Query(context.Background(), NewIndexQuery("things", Pred("name", OpTextContains, "x"))); err != nil {
		t.Errorf("valid query failed: %v", err)
	}
}
