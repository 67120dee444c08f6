package badgerx

import (
	"context"
	stderrors "errors"
	"reflect"
	"sort"
	"testing"

	"github.com/BennyH26/titan/internal/index"
	"github.com/BennyH26/titan/pkg/errors"
)

const store = "vertex"

func testKeys() index.MapRetriever {
	return index.MapRetriever{
		"text":   index.KeyOf(index.TypeString),
		"name":   index.MappedKey(index.TypeString, index.MappingString),
		"time":   index.KeyOf(index.TypeLong),
		"weight": index.KeyOf(index.TypeDouble),
	}
}

func openTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := Open(map[string]string{OptInMemory: "true"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	keys := testKeys()
	for field, ki := range keys {
		if err := p.Register(context.Background(), store, field, ki); err != nil {
			t.Fatalf("register %s: %v", field, err)
		}
	}
	return p
}

func mutate(t *testing.T, p *Provider, mutations ...index.Mutation) {
	t.Helper()
	if err := p.Mutate(context.Background(), mutations, testKeys()); err != nil {
		t.Fatalf("mutate: %v", err)
	}
}

func addMutation(docID string, isNew bool, entries ...index.IndexEntry) index.Mutation {
	return index.Mutation{Store: store, DocID: docID, IsNew: isNew, Additions: entries}
}

func queryIDs(t *testing.T, p *Provider, q index.IndexQuery) []string {
	t.Helper()
	ids, err := p.Query(context.Background(), q, testKeys())
	if err != nil {
		t.Fatalf("query %v: %v", q.Condition, err)
	}
	return ids
}

func expectIDs(t *testing.T, got []string, want ...string) {
	t.Helper()
	g := append([]string(nil), got...)
	w := append([]string(nil), want...)
	sort.Strings(g)
	sort.Strings(w)
	if !reflect.DeepEqual(g, w) {
		t.Errorf("result = %v, want %v", got, want)
	}
}

func seed(t *testing.T, p *Provider) {
	t.Helper()
	mutate(t, p,
		addMutation("doc1", true,
			index.NewEntry("text", "This is Hello World."),
			index.NewEntry("name", "Hello World"),
			index.NewEntry("time", 1001),
			index.NewEntry("weight", 1.5)),
		addMutation("doc2", true,
			index.NewEntry("text", "Tomorrow is the world"),
			index.NewEntry("name", "Tomorrow is the world"),
			index.NewEntry("time", 1018),
			index.NewEntry("weight", 2.5)),
		addMutation("doc3", true,
			index.NewEntry("text", "Hello Bob, are you there?"),
			index.NewEntry("name", "Bob"),
			index.NewEntry("time", -500),
			index.NewEntry("weight", 4.5)),
	)
}

func TestBadgerQueries(t *testing.T) {
	p := openTestProvider(t)
	seed(t, p)

	expectIDs(t, queryIDs(t, p, index.NewIndexQuery(store, index.Pred("text", index.OpTextContains, "world"))), "doc1", "doc2")
	expectIDs(t, queryIDs(t, p, index.NewIndexQuery(store, index.Pred("name", index.OpEqual, "Bob"))), "doc3")
	expectIDs(t, queryIDs(t, p, index.NewIndexQuery(store, index.Pred("time", index.OpLessThan, 1010))), "doc1", "doc3")
	expectIDs(t, queryIDs(t, p, index.NewIndexQuery(store, index.NewAnd(
		index.Pred("text", index.OpTextContains, "hello"),
		index.Pred("weight", index.OpGreaterThan, 2.0),
	))), "doc3")
	expectIDs(t, queryIDs(t, p, index.NewIndexQuery(store, index.Pred("missing", index.OpEqual, int64(1)))))

	desc := queryIDs(t, p, index.NewIndexQuery(store, index.Pred("text", index.OpTextContains, "world")).
		OrderBy(index.OrderEntry{Field: "weight", Direction: index.Desc, DataType: index.TypeDouble}))
	if !reflect.DeepEqual(desc, []string{"doc2", "doc1"}) {
		t.Errorf("descending = %v", desc)
	}
}

func TestBadgerMutationOrdering(t *testing.T) {
	p := openTestProvider(t)
	seed(t, p)

	// Later batches win over earlier ones for the same field.
	mutate(t, p, addMutation("doc1", false, index.NewEntry("time", 5000)))
	mutate(t, p, addMutation("doc1", false, index.NewEntry("time", 6000)))
	expectIDs(t, queryIDs(t, p, index.NewIndexQuery(store, index.Pred("time", index.OpEqual, 6000))), "doc1")
	expectIDs(t, queryIDs(t, p, index.NewIndexQuery(store, index.Pred("time", index.OpEqual, 5000))))

	// Whole-document delete wipes every field; a later add resurrects it
	// with only the new fields.
	mutate(t, p, index.Mutation{Store: store, DocID: "doc2", Deleted: true})
	expectIDs(t, queryIDs(t, p, index.NewIndexQuery(store, index.Pred("time", index.OpEqual, 1018))))
	mutate(t, p, addMutation("doc2", false, index.NewEntry("weight", 7.0)))
	expectIDs(t, queryIDs(t, p, index.NewIndexQuery(store, index.Pred("weight", index.OpEqual, 7.0))), "doc2")
	expectIDs(t, queryIDs(t, p, index.NewIndexQuery(store, index.Pred("text", index.OpTextContains, "tomorrow"))))

	// Field-level delete leaves the rest of the document queryable.
	mutate(t, p, index.Mutation{Store: store, DocID: "doc3",
		Deletions: []index.IndexEntry{index.NewEntry("text", nil)}})
	expectIDs(t, queryIDs(t, p, index.NewIndexQuery(store, index.Pred("text", index.OpTextContains, "bob"))))
	expectIDs(t, queryIDs(t, p, index.NewIndexQuery(store, index.Pred("name", index.OpEqual, "Bob"))), "doc3")
}

func TestBadgerPersistenceRoundTrip(t *testing.T) {
	p := openTestProvider(t)
	// Values must come back with their numeric identity intact after the
	// encode/decode cycle through storage.
	mutate(t, p, addMutation("typed", true,
		index.NewEntry("time", int64(42)),
		index.NewEntry("weight", 42.0)))
	expectIDs(t, queryIDs(t, p, index.NewIndexQuery(store, index.NewAnd(
		index.Pred("time", index.OpEqual, int64(42)),
		index.Pred("weight", index.OpEqual, 42.0),
	))), "typed")
}

func TestBadgerRestore(t *testing.T) {
	p := openTestProvider(t)
	seed(t, p)

	err := p.Restore(context.Background(), index.RestoreSet{
		store: {
			"doc1": {index.NewEntry("text", "rebuilt from scan")},
			"doc2": {},
		},
	}, testKeys())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	expectIDs(t, queryIDs(t, p, index.NewIndexQuery(store, index.Pred("text", index.OpTextContains, "rebuilt"))), "doc1")
	expectIDs(t, queryIDs(t, p, index.NewIndexQuery(store, index.Pred("time", index.OpEqual, 1001))))
	expectIDs(t, queryIDs(t, p, index.NewIndexQuery(store, index.Pred("time", index.OpEqual, 1018))))
	expectIDs(t, queryIDs(t, p, index.NewIndexQuery(store, index.Pred("name", index.OpEqual, "Bob"))), "doc3")
}

func TestBadgerClearStorage(t *testing.T) {
	p := openTestProvider(t)
	seed(t, p)
	if err := p.ClearStorage(context.Background()); err != nil {
		t.Fatal(err)
	}
	expectIDs(t, queryIDs(t, p, index.NewIndexQuery(store, index.Pred("text", index.OpTextContains, "world"))))
}

func TestBadgerOpenRequiresDir(t *testing.T) {
	_, err := Open(map[string]string{})
	if !stderrors.Is(err, errors.ErrConfiguration) {
		t.Fatalf("open error = %v, want ErrConfiguration", err)
	}
}

func TestBadgerRawQueriesUnsupported(t *testing.T) {
	p := openTestProvider(t)
	_, err := p.QueryRaw(context.Background(), index.NewRawQuery(store, "x"), testKeys())
	if !stderrors.Is(err, errors.ErrUnsupportedPredicate) {
		t.Fatalf("raw query error = %v, want ErrUnsupportedPredicate", err)
	}
}
