package scan

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/BennyH26/titan/internal/storage"
	"github.com/BennyH26/titan/pkg/config"
	apperrors "github.com/BennyH26/titan/pkg/errors"
)

type recordingJob struct {
	queries   []storage.SliceQuery
	keyFilter func(storage.ByteKey) bool

	setupErr   error
	processErr error

	mu        sync.Mutex
	processed []string
	matches   map[string][]storage.EntryList
	setups    int
	teardowns int
}

func (j *recordingJob) Setup(jobConf map[string]string, cfg *config.Config, m Metrics) error {
	j.setups++
	j.matches = make(map[string][]storage.EntryList)
	return j.setupErr
}

func (j *recordingJob) Process(key storage.ByteKey, matches []storage.EntryList, m Metrics) error {
	if j.processErr != nil {
		return j.processErr
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.processed = append(j.processed, string(key))
	j.matches[string(key)] = matches
	return nil
}

func (j *recordingJob) Teardown(m Metrics) error {
	j.teardowns++
	return nil
}

func (j *recordingJob) KeyFilter() func(storage.ByteKey) bool { return j.keyFilter }

func (j *recordingJob) Queries() []storage.SliceQuery { return j.queries }

func entry(col byte) storage.Entry {
	return storage.Entry{Column: storage.ByteKey{col}, Value: []byte{col}}
}

func row(key string, cols ...byte) Row {
	entries := make(storage.EntryList, 0, len(cols))
	for _, c := range cols {
		entries = append(entries, entry(c))
	}
	return Row{Key: storage.ByteKey(key), Entries: entries}
}

func columnRange(start, end byte) storage.SliceQuery {
	return storage.NewSliceQuery(storage.ByteKey{start}, storage.ByteKey{end})
}

func groundingQuery() storage.SliceQuery {
	return storage.NewSliceQuery(storage.ZeroKey(1), storage.OneKey(1))
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

func TestDriverSweep(t *testing.T) {
	job := &recordingJob{queries: []storage.SliceQuery{columnRange(0x02, 0x05)}}
	m := NewCounterMetrics()
	d, err := NewDriver(job, 4, m)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}

	source := NewSliceSource([]Row{
		row("r1", 0x01, 0x03),
		row("r2", 0x01),
		row("r3", 0x02, 0x04, 0x09),
		row("r4", 0x05),
	})
	if err := d.Run(context.Background(), source, nil, nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := sortedCopy(job.processed)
	want := []string{"r1", "r3"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("processed = %v, want %v", got, want)
	}
	// r3's match list carries only the in-range columns.
	if r3 := job.matches["r3"]; len(r3) != 1 || len(r3[0]) != 2 {
		t.Errorf("r3 matches = %v", job.matches["r3"])
	}

	if n := m.Get(MetricRowsScanned); n != 4 {
		t.Errorf("rows scanned = %d, want 4", n)
	}
	if n := m.Get(MetricRowsMatched); n != 2 {
		t.Errorf("rows matched = %d, want 2", n)
	}
	if n := m.Get(MetricRowsSkippedEmpty); n != 2 {
		t.Errorf("rows skipped no_match = %d, want 2", n)
	}
	if job.setups != 1 || job.teardowns != 1 {
		t.Errorf("setup/teardown = %d/%d, want 1/1", job.setups, job.teardowns)
	}
}

func TestDriverKeyFilter(t *testing.T) {
	job := &recordingJob{
		queries:   []storage.SliceQuery{groundingQuery()},
		keyFilter: func(key storage.ByteKey) bool { return string(key) != "skip" },
	}
	m := NewCounterMetrics()
	d, err := NewDriver(job, 1, m)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	source := NewSliceSource([]Row{
		row("keep", 0x01),
		row("skip", 0x01),
	})
	if err := d.Run(context.Background(), source, nil, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if fmt.Sprint(job.processed) != "[keep]" {
		t.Errorf("processed = %v", job.processed)
	}
	if n := m.Get(MetricRowsSkippedFilter); n != 1 {
		t.Errorf("rows skipped key_filter = %d, want 1", n)
	}
}

func TestDriverSecondaryRanges(t *testing.T) {
	// The grounding range decides row existence; the second range may come
	// back empty without dropping the row.
	job := &recordingJob{queries: []storage.SliceQuery{
		groundingQuery(),
		columnRange(0x10, 0x20),
	}}
	d, err := NewDriver(job, 2, NewCounterMetrics())
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	source := NewSliceSource([]Row{row("r1", 0x01, 0x15), row("r2", 0x01)})
	if err := d.Run(context.Background(), source, nil, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := sortedCopy(job.processed); fmt.Sprint(got) != "[r1 r2]" {
		t.Errorf("processed = %v", got)
	}
	if len(job.matches["r1"][1]) != 1 {
		t.Errorf("r1 secondary matches = %v", job.matches["r1"][1])
	}
	if len(job.matches["r2"][1]) != 0 {
		t.Errorf("r2 secondary matches = %v", job.matches["r2"][1])
	}
}

func TestNewDriverValidation(t *testing.T) {
	t.Run("no queries", func(t *testing.T) {
		_, err := NewDriver(&recordingJob{}, 1, NewCounterMetrics())
		if !stderrors.Is(err, apperrors.ErrInvalidRange) {
			t.Errorf("error = %v, want ErrInvalidRange", err)
		}
	})
	t.Run("inverted range", func(t *testing.T) {
		job := &recordingJob{queries: []storage.SliceQuery{columnRange(0x05, 0x02)}}
		_, err := NewDriver(job, 1, NewCounterMetrics())
		if !stderrors.Is(err, apperrors.ErrInvalidRange) {
			t.Errorf("error = %v, want ErrInvalidRange", err)
		}
	})
	t.Run("first of multiple must be grounding", func(t *testing.T) {
		job := &recordingJob{queries: []storage.SliceQuery{
			columnRange(0x02, 0x05),
			columnRange(0x10, 0x20),
		}}
		_, err := NewDriver(job, 1, NewCounterMetrics())
		if !stderrors.Is(err, apperrors.ErrInvalidRange) {
			t.Errorf("error = %v, want ErrInvalidRange", err)
		}
	})
}

func TestDriverProcessErrorCancelsSweepAndTearsDown(t *testing.T) {
	wantErr := stderrors.New("boom")
	job := &recordingJob{
		queries:    []storage.SliceQuery{groundingQuery()},
		processErr: wantErr,
	}
	d, err := NewDriver(job, 2, NewCounterMetrics())
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	rows := make([]Row, 100)
	for i := range rows {
		rows[i] = row(fmt.Sprintf("r%03d", i), 0x01)
	}
	err = d.Run(context.Background(), NewSliceSource(rows), nil, nil)
	if !stderrors.Is(err, wantErr) {
		t.Errorf("run error = %v, want wrapped boom", err)
	}
	if job.teardowns != 1 {
		t.Errorf("teardowns = %d, want 1", job.teardowns)
	}
}

func TestDriverSetupErrorSkipsSweep(t *testing.T) {
	job := &recordingJob{
		queries:  []storage.SliceQuery{groundingQuery()},
		setupErr: stderrors.New("no storage"),
	}
	d, err := NewDriver(job, 1, NewCounterMetrics())
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	if err := d.Run(context.Background(), NewSliceSource([]Row{row("r1", 0x01)}), nil, nil); err == nil {
		t.Fatal("expected setup error")
	}
	if len(job.processed) != 0 {
		t.Errorf("processed = %v, want none", job.processed)
	}
}

func TestJobRegistry(t *testing.T) {
	RegisterJob("registry-test", func() Job {
		return &recordingJob{queries: []storage.SliceQuery{groundingQuery()}}
	})

	found := false
	for _, name := range Jobs() {
		if name == "registry-test" {
			found = true
		}
	}
	if !found {
		t.Fatalf("registered job missing from %v", Jobs())
	}

	job, err := NewJob("registry-test")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if len(job.Queries()) != 1 {
		t.Errorf("queries = %v", job.Queries())
	}
	if _, err := NewJob("no-such-job"); err == nil {
		t.Error("expected an error for an unknown job")
	}

	defer func() {
		if recover() == nil {
			t.Error("expected a panic on duplicate registration")
		}
	}()
	RegisterJob("registry-test", func() Job { return &recordingJob{} })
}

func TestSliceSourceEOF(t *testing.T) {
	source := NewSliceSource([]Row{row("r1", 0x01)})
	if _, err := source.Next(context.Background()); err != nil {
		t.Fatalf("first next: %v", err)
	}
	if _, err := source.Next(context.Background()); err != io.EOF {
		t.Fatalf("second next = %v, want io.EOF", err)
	}
}
