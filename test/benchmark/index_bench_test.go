// Package benchmark contains Go benchmarks for the slice matcher, predicate
// evaluation, and the in-memory index backend, measuring throughput and
// allocation behaviour.
package benchmark

import (
	"context"
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/BennyH26/titan/internal/index"
	"github.com/BennyH26/titan/internal/index/inmem"
	"github.com/BennyH26/titan/internal/index/tokenizer"
	"github.com/BennyH26/titan/internal/storage"
)

func sortedEntries(n int) storage.EntryList {
	entries := make(storage.EntryList, n)
	for i := 0; i < n; i++ {
		col := make(storage.ByteKey, 8)
		binary.BigEndian.PutUint64(col, uint64(i*3))
		entries[i] = storage.Entry{Column: col, Value: []byte("v")}
	}
	return entries
}

func columnKey(v uint64) storage.ByteKey {
	col := make(storage.ByteKey, 8)
	binary.BigEndian.PutUint64(col, v)
	return col
}

// BenchmarkMatch measures range extraction over a large sorted row at
// several selectivities.
func BenchmarkMatch(b *testing.B) {
	entries := sortedEntries(100000)
	ranges := []struct {
		name       string
		start, end uint64
	}{
		{"narrow", 150000, 150300},
		{"quarter", 0, 75000},
		{"full", 0, 300000},
	}
	for _, r := range ranges {
		b.Run(r.name, func(b *testing.B) {
			query := storage.NewSliceQuery(columnKey(r.start), columnKey(r.end))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				result := storage.Match(query, entries)
				_ = result
			}
		})
	}
}

// BenchmarkTokenize measures the text analyzer over a medium-length value.
func BenchmarkTokenize(b *testing.B) {
	text := "The quick brown Fox jumps over the lazy dog, 42 times per second!"
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tokens := tokenizer.Tokenize(text)
		_ = tokens
	}
}

// BenchmarkEvaluateCondition measures predicate-tree evaluation against a
// single document.
func BenchmarkEvaluateCondition(b *testing.B) {
	doc := func(field string) (any, bool) {
		switch field {
		case "text":
			return "the quick brown fox jumps over the lazy dog", true
		case "weight":
			return 2.5, true
		case "time":
			return int64(1018), true
		}
		return nil, false
	}
	cond := index.NewAnd(
		index.Pred("text", index.OpTextContains, "quick fox"),
		index.NewOr(
			index.Pred("weight", index.OpGreaterThan, 2.0),
			index.Pred("time", index.OpLessThan, 1000),
		),
	)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		matched := index.EvaluateCondition(cond, doc)
		_ = matched
	}
}

// BenchmarkInmemMutate measures per-document commit throughput into the
// in-memory backend.
func BenchmarkInmemMutate(b *testing.B) {
	p := inmem.New()
	keys := index.MapRetriever{
		"text": index.KeyOf(index.TypeString),
		"time": index.KeyOf(index.TypeLong),
	}
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := index.Mutation{
			Store: "vertex",
			DocID: fmt.Sprintf("doc-%d", i),
			IsNew: true,
			Additions: []index.IndexEntry{
				index.NewEntry("text", "benchmark document with several tokens for indexing"),
				index.NewEntry("time", i),
			},
		}
		if err := p.Mutate(ctx, []index.Mutation{m}, keys); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkInmemQuery measures structured query latency over 10 000
// documents at various result sizes.
func BenchmarkInmemQuery(b *testing.B) {
	p := inmem.New()
	keys := index.MapRetriever{
		"text": index.KeyOf(index.TypeString),
		"time": index.KeyOf(index.TypeLong),
	}
	ctx := context.Background()
	terms := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta"}
	for i := 0; i < 10000; i++ {
		m := index.Mutation{
			Store: "vertex",
			DocID: fmt.Sprintf("doc-%d", i),
			IsNew: true,
			Additions: []index.IndexEntry{
				index.NewEntry("text", fmt.Sprintf("document about %s and %s", terms[i%len(terms)], terms[(i+1)%len(terms)])),
				index.NewEntry("time", i),
			},
		}
		if err := p.Mutate(ctx, []index.Mutation{m}, keys); err != nil {
			b.Fatal(err)
		}
	}

	b.Run("contains", func(b *testing.B) {
		q := index.NewIndexQuery("vertex", index.Pred("text", index.OpTextContains, "gamma")).WithLimit(100)
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			ids, err := p.Query(ctx, q, keys)
			if err != nil {
				b.Fatal(err)
			}
			_ = ids
		}
	})
	b.Run("range_ordered", func(b *testing.B) {
		q := index.NewIndexQuery("vertex", index.Pred("time", index.OpLessThan, 500)).
			OrderBy(index.OrderEntry{Field: "time", Direction: index.Desc, DataType: index.TypeLong}).
			WithLimit(50)
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			ids, err := p.Query(ctx, q, keys)
			if err != nil {
				b.Fatal(err)
			}
			_ = ids
		}
	})
}

// BenchmarkTransactionCommit measures the full transaction path including
// buffering and consolidation.
func BenchmarkTransactionCommit(b *testing.B) {
	p := inmem.New()
	keys := index.MapRetriever{
		"text": index.KeyOf(index.TypeString),
	}
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx := index.NewTransaction(p, keys, time.Second)
		docID := fmt.Sprintf("doc-%d", i)
		if err := tx.Add("vertex", docID, index.NewEntry("text", "committed through the transaction layer"), true); err != nil {
			b.Fatal(err)
		}
		if err := tx.Commit(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
