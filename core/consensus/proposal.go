// Package consensus holds the proposal/vote/result model shared by all
// agreement algorithms.
//
// A proposal is created by an algorithm's propose path, accumulates votes
// through protocol message handlers, and becomes immutable once it reaches
// a terminal status. Status transitions are monotonic: pending is the only
// non-terminal state and a terminal state never reverts.
package consensus

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a proposal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// statusTransitions encodes the allowed lifecycle moves. Anything not
// listed is an invalid transition and is refused.
var statusTransitions = map[Status]map[Status]struct{}{
	StatusPending: {
		StatusAccepted: struct{}{},
		StatusRejected: struct{}{},
		StatusExpired:  struct{}{},
	},
}

// Vote is a single participant's position on a proposal. Confidence is
// informational and must not influence binary quorum counting.
type Vote struct {
	VoterID    string
	Approve    bool
	Confidence float64
	Timestamp  time.Time
}

// Result is a read-only snapshot derived from a terminal proposal.
type Result struct {
	ProposalID        string
	Approved          bool
	ApprovalRate      float64
	ParticipationRate float64
	FinalValue        []byte
	Rounds            int
	Duration          time.Duration
}

// Proposal is the unit of agreement. All mutable fields are guarded by mu;
// the identity fields are set at construction and never change.
type Proposal struct {
	ID         string
	ProposerID string
	Value      []byte
	Term       uint64
	Timestamp  time.Time

	mu        sync.RWMutex
	votes     map[string]Vote
	status    Status
	rounds    int
	decidedAt time.Time
	done      chan struct{}
}

// NewProposal creates a pending proposal.
func NewProposal(id, proposerID string, value []byte, term uint64) *Proposal {
	return &Proposal{
		ID:         id,
		ProposerID: proposerID,
		Value:      value,
		Term:       term,
		Timestamp:  time.Now(),
		votes:      make(map[string]Vote),
		status:     StatusPending,
		done:       make(chan struct{}),
	}
}

// Status returns the current lifecycle state.
func (p *Proposal) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Terminal reports whether the proposal left the pending state.
func (p *Proposal) Terminal() bool {
	return p.Status() != StatusPending
}

// Done returns a channel closed exactly once, when the proposal becomes
// terminal. Waiters must not poll Status.
func (p *Proposal) Done() <-chan struct{} {
	return p.done
}

// RecordVote stores a vote, overwriting any previous vote by the same
// voter. It is a no-op on a terminal proposal. Confidence is clamped
// to [0, 1].
func (p *Proposal) RecordVote(v Vote) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != StatusPending {
		return false
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	} else if v.Confidence > 1 {
		v.Confidence = 1
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now()
	}
	p.votes[v.VoterID] = v

	return true
}

// Votes returns a copy of the vote map.
func (p *Proposal) Votes() map[string]Vote {
	p.mu.RLock()
	defer p.mu.RUnlock()

	votes := make(map[string]Vote, len(p.votes))
	for id, v := range p.votes {
		votes[id] = v
	}

	return votes
}

// VoteCounts returns the number of approving votes and the total number
// of votes received.
func (p *Proposal) VoteCounts() (approving, total int) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, v := range p.votes {
		if v.Approve {
			approving++
		}
	}

	return approving, len(p.votes)
}

// HasVoted reports whether the given voter already voted.
func (p *Proposal) HasVoted(voterID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.votes[voterID]
	return ok
}

// AddRound increments the protocol round counter (heartbeat cycle, gossip
// round, PBFT phase — whatever the owning algorithm counts in).
func (p *Proposal) AddRound() {
	p.mu.Lock()
	p.rounds++
	p.mu.Unlock()
}

// Rounds returns the number of protocol rounds observed so far.
func (p *Proposal) Rounds() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rounds
}

// Finalize moves the proposal to a terminal status and wakes all waiters.
// It returns false if the transition is not allowed (already terminal, or
// target is not a terminal state). The first successful call wins; later
// calls are no-ops.
func (p *Proposal) Finalize(s Status) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	allowed, ok := statusTransitions[p.status]
	if !ok {
		return false
	}
	if _, ok = allowed[s]; !ok {
		return false
	}

	p.status = s
	p.decidedAt = time.Now()
	close(p.done)

	return true
}

// Result computes the derived snapshot for a terminal proposal. The
// eligible count is the size of the membership at decision time; callers
// pass it in because the proposal itself knows nothing about membership.
// Returns nil while the proposal is still pending.
func (p *Proposal) Result(eligible int) *Result {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.status == StatusPending {
		return nil
	}

	approving := 0
	for _, v := range p.votes {
		if v.Approve {
			approving++
		}
	}

	res := &Result{
		ProposalID: p.ID,
		Approved:   p.status == StatusAccepted,
		FinalValue: p.Value,
		Rounds:     p.rounds,
		Duration:   p.decidedAt.Sub(p.Timestamp),
	}
	if len(p.votes) > 0 {
		res.ApprovalRate = float64(approving) / float64(len(p.votes))
	}
	if eligible > 0 {
		res.ParticipationRate = float64(len(p.votes)) / float64(eligible)
	}

	return res
}
