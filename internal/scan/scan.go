// Package scan runs user-defined jobs over a full sweep of the storage
// layer. A job declares the column ranges it needs per row; the driver
// fetches each row once, slices it per query, and hands the matches to the
// job across a worker pool.
package scan

import (
	"fmt"
	"sort"
	"sync"

	"github.com/BennyH26/titan/internal/storage"
	"github.com/BennyH26/titan/pkg/config"
)

// Job is the unit of work executed by the scan driver. Setup runs once
// before any row, Teardown once after the last row, and Process once per
// surviving row. Process may run concurrently across rows; implementations
// guard their own state.
type Job interface {
	// Setup receives the job's own configuration namespace plus the full
	// application configuration.
	Setup(jobConf map[string]string, cfg *config.Config, m Metrics) error

	// Process receives one row key and, aligned with Queries(), the entries
	// of that row matching each declared range.
	Process(key storage.ByteKey, matches []storage.EntryList, m Metrics) error

	Teardown(m Metrics) error

	// KeyFilter cheaply rejects rows before any range matching. A nil
	// filter accepts every row.
	KeyFilter() func(key storage.ByteKey) bool

	// Queries declares the column ranges the job reads. When more than one
	// is declared the first must span the whole column space; a row is
	// handed to Process only if that spanning range matched something.
	Queries() []storage.SliceQuery
}

// JobFactory creates a fresh job instance per scan run.
type JobFactory func() Job

var (
	jobs   = make(map[string]JobFactory)
	jobsMu sync.RWMutex
)

// RegisterJob registers a job factory under the given name. Panics on
// duplicates.
func RegisterJob(name string, factory JobFactory) {
	jobsMu.Lock()
	defer jobsMu.Unlock()
	if _, exists := jobs[name]; exists {
		panic(fmt.Sprintf("scan job %q already registered", name))
	}
	jobs[name] = factory
}

// Jobs returns the names of all registered jobs, sorted.
func Jobs() []string {
	jobsMu.RLock()
	defer jobsMu.RUnlock()
	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewJob creates a job instance by registered name.
func NewJob(name string) (Job, error) {
	jobsMu.RLock()
	factory, ok := jobs[name]
	jobsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown scan job %q (available: %v)", name, Jobs())
	}
	return factory(), nil
}
