package scan

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/BennyH26/titan/internal/storage"
)

// EntryRecord is the JSON form of one column/value pair in a row export.
// Byte fields use encoding/json's base64 representation.
type EntryRecord struct {
	Column []byte `json:"column"`
	Value  []byte `json:"value"`
}

// RowRecord is the JSON form of one storage row in a row export.
type RowRecord struct {
	Key     []byte        `json:"key"`
	Entries []EntryRecord `json:"entries"`
}

// SnapshotSource reads rows from a JSON-lines export, one RowRecord per
// line. Blank lines are skipped; a malformed line aborts the sweep.
type SnapshotSource struct {
	scanner *bufio.Scanner
	line    int
}

// NewSnapshotSource creates a source reading from r.
func NewSnapshotSource(r io.Reader) *SnapshotSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &SnapshotSource{scanner: sc}
}

func (s *SnapshotSource) Next(ctx context.Context) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	for s.scanner.Scan() {
		s.line++
		text := bytes.TrimSpace(s.scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var rec RowRecord
		if err := json.Unmarshal(text, &rec); err != nil {
			return Row{}, fmt.Errorf("snapshot line %d: %w", s.line, err)
		}
		entries := make(storage.EntryList, 0, len(rec.Entries))
		for _, e := range rec.Entries {
			entries = append(entries, storage.Entry{Column: storage.ByteKey(e.Column), Value: e.Value})
		}
		// The matcher needs entries in ascending column order; exports are
		// not trusted to be ordered.
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Column.Compare(entries[j].Column) < 0
		})
		return Row{Key: storage.ByteKey(rec.Key), Entries: entries}, nil
	}
	if err := s.scanner.Err(); err != nil {
		return Row{}, fmt.Errorf("reading snapshot: %w", err)
	}
	return Row{}, io.EOF
}
