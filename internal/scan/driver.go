package scan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BennyH26/titan/internal/storage"
	"github.com/BennyH26/titan/pkg/config"
	apperrors "github.com/BennyH26/titan/pkg/errors"
)

// Row is one storage row: a key and its column entries in ascending column
// order.
type Row struct {
	Key     storage.ByteKey
	Entries storage.EntryList
}

// RowSource feeds rows to the driver. Next returns io.EOF after the last
// row. Sources need not be safe for concurrent use; the driver reads from
// a single goroutine.
type RowSource interface {
	Next(ctx context.Context) (Row, error)
}

// SliceSource is a RowSource over an in-memory row list.
type SliceSource struct {
	rows []Row
	pos  int
}

// NewSliceSource creates a source yielding the given rows in order.
func NewSliceSource(rows []Row) *SliceSource {
	return &SliceSource{rows: rows}
}

func (s *SliceSource) Next(ctx context.Context) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	if s.pos >= len(s.rows) {
		return Row{}, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

// Driver executes one job over a full row sweep with a bounded worker pool.
type Driver struct {
	job     Job
	queries []storage.SliceQuery
	workers int
	metrics Metrics
	logger  *slog.Logger
}

// NewDriver validates the job's declared queries and builds a driver.
// When a job declares several ranges the first must span the whole column
// space, because it decides row existence for the others.
func NewDriver(job Job, workers int, m Metrics) (*Driver, error) {
	queries := job.Queries()
	if len(queries) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidRange, "scan", "setup",
			"job declares no column ranges")
	}
	for i, q := range queries {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
	}
	if len(queries) > 1 && !queries[0].IsGrounding() {
		return nil, apperrors.New(apperrors.ErrInvalidRange, "scan", "setup",
			"first of multiple queries must span the whole column space")
	}
	if workers <= 0 {
		workers = 1
	}
	return &Driver{
		job:     job,
		queries: queries,
		workers: workers,
		metrics: m,
		logger:  slog.Default().With("component", "scan-driver"),
	}, nil
}

// Run sweeps every row of the source through the job. Row order across
// workers is unspecified. The first Process error cancels the sweep;
// Teardown runs regardless.
func (d *Driver) Run(ctx context.Context, source RowSource, jobConf map[string]string, cfg *config.Config) error {
	if err := d.job.Setup(jobConf, cfg, d.metrics); err != nil {
		return fmt.Errorf("job setup: %w", err)
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	rows := make(chan Row)

	g.Go(func() error {
		defer close(rows)
		for {
			row, err := source.Next(gctx)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading row: %w", err)
			}
			select {
			case rows <- row:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	keyFilter := d.job.KeyFilter()
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for row := range rows {
				if err := d.processRow(row, keyFilter); err != nil {
					return err
				}
				if err := gctx.Err(); err != nil {
					return err
				}
			}
			return nil
		})
	}

	runErr := g.Wait()
	if err := d.job.Teardown(d.metrics); err != nil {
		if runErr == nil {
			runErr = fmt.Errorf("job teardown: %w", err)
		} else {
			d.logger.Error("job teardown failed after scan error", "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	d.logger.Info("scan complete", "duration", time.Since(start), "workers", d.workers)
	return nil
}

func (d *Driver) processRow(row Row, keyFilter func(storage.ByteKey) bool) error {
	d.metrics.Increment(MetricRowsScanned)
	if keyFilter != nil && !keyFilter(row.Key) {
		d.metrics.Increment(MetricRowsSkippedFilter)
		return nil
	}
	matches := make([]storage.EntryList, len(d.queries))
	for i, q := range d.queries {
		matches[i] = storage.Match(q, row.Entries)
	}
	// The first range decides whether the row exists for this job at all.
	if len(matches[0]) == 0 {
		d.metrics.Increment(MetricRowsSkippedEmpty)
		return nil
	}
	d.metrics.Increment(MetricRowsMatched)
	if err := d.job.Process(row.Key, matches, d.metrics); err != nil {
		return fmt.Errorf("processing row %x: %w", []byte(row.Key), err)
	}
	return nil
}
