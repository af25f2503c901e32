// Package crawl orchestrates one collection run: genre fan-out, bounded
// detail resolution, and the multi-pass retry loop over the quota ledger.
package crawl

import (
	"sync"

	"github.com/Baabao/insert-itunes-collector/internal/catalog"
)

const initialRetryQuota = 3

// QuotaEvent describes what a transient failure did to the ledger.
type QuotaEvent string

const (
	// QuotaCreated means the id failed for the first time and received
	// a fresh retry quota.
	QuotaCreated QuotaEvent = "created"
	// QuotaDecremented means an existing quota was reduced by one.
	QuotaDecremented QuotaEvent = "decremented"
	// QuotaExhausted means the quota was already spent and the id is
	// dropped for the rest of the run.
	QuotaExhausted QuotaEvent = "exhausted"
)

// CostRecord is an append-only telemetry entry for one processed id.
type CostRecord struct {
	GenreID catalog.GenreID
	Seconds float64
}

// State is the shared mutable state of one run: the resolved-detail map,
// the retry-quota ledger, and the cost telemetry list. All methods are
// safe for concurrent use; a run creates one State and discards it at the
// end. Ledger entries are never deleted, a spent id is only marked
// dropped.
type State struct {
	mu      sync.Mutex
	details map[catalog.CollectionID]catalog.Detail
	quotas  map[catalog.CollectionID]int
	dropped map[catalog.CollectionID]bool
	costs   []CostRecord
}

// NewState creates an empty State.
func NewState() *State {
	return &State{
		details: make(map[catalog.CollectionID]catalog.Detail),
		quotas:  make(map[catalog.CollectionID]int),
		dropped: make(map[catalog.CollectionID]bool),
	}
}

// Insert stores the detail for id unless a detail is already present.
// First writer wins; a late duplicate from an abandoned task is a no-op.
// It reports whether the insert took effect.
func (s *State) Insert(id catalog.CollectionID, detail catalog.Detail) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.details[id]; ok {
		return false
	}
	s.details[id] = detail
	return true
}

// Resolved reports whether id already has a detail in the result map.
func (s *State) Resolved(id catalog.CollectionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.details[id]
	return ok
}

// Detail returns the resolved detail for id, if any.
func (s *State) Detail(id catalog.CollectionID) (catalog.Detail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.details[id]
	return d, ok
}

// Details returns a copy of the resolved-detail map.
func (s *State) Details() map[catalog.CollectionID]catalog.Detail {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[catalog.CollectionID]catalog.Detail, len(s.details))
	for id, d := range s.details {
		out[id] = d
	}
	return out
}

// ResolvedCount returns the size of the result map.
func (s *State) ResolvedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.details)
}

// NoteFailure applies the quota rules for one transient failure of id:
// create the quota on first failure, decrement it while spendable, and
// drop the id once it falls below one. Dropped ids are never mutated
// again this run.
func (s *State) NoteFailure(id catalog.CollectionID) QuotaEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	quota, ok := s.quotas[id]
	switch {
	case !ok:
		s.quotas[id] = initialRetryQuota
		return QuotaCreated
	case quota < 1:
		s.dropped[id] = true
		return QuotaExhausted
	default:
		s.quotas[id] = quota - 1
		return QuotaDecremented
	}
}

// Quota returns the remaining quota for id and whether a ledger entry
// exists.
func (s *State) Quota(id catalog.CollectionID) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[id]
	return q, ok
}

// Dropped reports whether id has exhausted its quota this run.
func (s *State) Dropped(id catalog.CollectionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped[id]
}

// ActiveRetryIDs returns the ids with a ledger entry that are neither
// resolved nor dropped, in unspecified order.
func (s *State) ActiveRetryIDs() []catalog.CollectionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]catalog.CollectionID, 0, len(s.quotas))
	for id := range s.quotas {
		if s.dropped[id] {
			continue
		}
		if _, resolved := s.details[id]; resolved {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// AddCost appends one telemetry record.
func (s *State) AddCost(genreID catalog.GenreID, seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.costs = append(s.costs, CostRecord{GenreID: genreID, Seconds: seconds})
}

// Costs returns a copy of the telemetry list.
func (s *State) Costs() []CostRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CostRecord, len(s.costs))
	copy(out, s.costs)
	return out
}
