// Package store keeps the summaries of finished runs.
package store

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/skycoin/datalink/pkg/arq"
)

// Store types.
const (
	MemoryType = "memory"
	BoltDBType = "boltdb"
)

var (
	// ErrRunNotFound is returned when no run has the requested ID.
	ErrRunNotFound = errors.New("run not found")

	// ErrUnknownType is returned by New for an unsupported store type.
	ErrUnknownType = errors.New("unknown store type")
)

// RunStore stores run summaries.
type RunStore interface {
	Record(sum arq.RunSummary) error
	Run(id uuid.UUID) (arq.RunSummary, error)
	// Runs returns every stored run, most recently finished first.
	Runs() ([]arq.RunSummary, error)
	Close() error
}

// New creates a RunStore of the given type. location is the database file
// of a BoltDB store.
func New(typ, location string) (RunStore, error) {
	switch typ {
	case MemoryType, "":
		return InMemory(), nil
	case BoltDBType:
		return BoltDB(location)
	default:
		return nil, errors.Wrapf(ErrUnknownType, "%q", typ)
	}
}

type inMemoryRunStore struct {
	runs map[uuid.UUID]arq.RunSummary
	mu   sync.Mutex
}

// InMemory creates a RunStore that lives as long as the process.
func InMemory() RunStore {
	return &inMemoryRunStore{runs: make(map[uuid.UUID]arq.RunSummary)}
}

func (s *inMemoryRunStore) Record(sum arq.RunSummary) error {
	s.mu.Lock()
	s.runs[sum.ID] = sum
	s.mu.Unlock()
	return nil
}

func (s *inMemoryRunStore) Run(id uuid.UUID) (arq.RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.runs[id]
	if !ok {
		return arq.RunSummary{}, ErrRunNotFound
	}
	return sum, nil
}

func (s *inMemoryRunStore) Runs() ([]arq.RunSummary, error) {
	s.mu.Lock()
	runs := make([]arq.RunSummary, 0, len(s.runs))
	for _, sum := range s.runs {
		runs = append(runs, sum)
	}
	s.mu.Unlock()
	sortRuns(runs)
	return runs, nil
}

func (s *inMemoryRunStore) Close() error { return nil }

func sortRuns(runs []arq.RunSummary) {
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Finished.After(runs[j].Finished)
	})
}
