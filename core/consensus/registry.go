package consensus

import (
	"fmt"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrUnknownProposal builds the error returned for a proposal id nobody
// has seen.
func ErrUnknownProposal(id string) error {
	return status.Error(codes.NotFound, fmt.Sprintf("unknown proposal %s", id))
}

// Stats counts proposals by status.
type Stats struct {
	Total    int
	Pending  int
	Accepted int
	Rejected int
	Expired  int
}

// Registry is a mutex-guarded index of proposals keyed by id. Both the
// algorithms and the engine facade keep one; the facade's copy is a
// read-side cache, not a second source of truth.
type Registry struct {
	mu        sync.RWMutex
	proposals map[string]*Proposal
}

func NewRegistry() *Registry {
	return &Registry{proposals: make(map[string]*Proposal)}
}

// Add indexes a proposal. Re-adding the same id is a no-op.
func (r *Registry) Add(p *Proposal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.proposals[p.ID]; ok {
		return
	}
	r.proposals[p.ID] = p
}

// Get returns the proposal with the given id.
func (r *Registry) Get(id string) (*Proposal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.proposals[id]
	return p, ok
}

// Active returns all proposals still pending.
func (r *Registry) Active() []*Proposal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []*Proposal
	for _, p := range r.proposals {
		if !p.Terminal() {
			active = append(active, p)
		}
	}

	return active
}

// Len returns the number of indexed proposals.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.proposals)
}

// Stats tallies proposals by status.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{Total: len(r.proposals)}
	for _, p := range r.proposals {
		switch p.Status() {
		case StatusPending:
			s.Pending++
		case StatusAccepted:
			s.Accepted++
		case StatusRejected:
			s.Rejected++
		case StatusExpired:
			s.Expired++
		}
	}

	return s
}
