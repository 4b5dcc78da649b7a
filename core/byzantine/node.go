package byzantine

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/swarmesh/quorum/core/consensus"
	"github.com/swarmesh/quorum/core/transport"
)

const (
	slotPrePrepared = "pre-prepared"
	slotPrepared    = "prepared"
	slotCommitted   = "committed"
)

// slotTransitions orders the phases per (view, sequence): no commit before
// prepare, no second finalization.
var slotTransitions = map[string]map[string]struct{}{
	slotPrePrepared: {slotPrepared: struct{}{}},
	slotPrepared:    {slotCommitted: struct{}{}},
}

// slot is one entry of the message log: everything a node collected for a
// (view, sequence) pair. Prepare/commit votes may arrive before the
// pre-prepare; they are held until the value and digest are known.
type slot struct {
	proposalID string
	digest     string
	value      []byte
	state      string
	prepares   map[string]struct{}
	commits    map[string]struct{}
}

func newSlot() *slot {
	return &slot{
		prepares: make(map[string]struct{}),
		commits:  make(map[string]struct{}),
	}
}

func (s *slot) advance(next string) bool {
	allowed, ok := slotTransitions[s.state]
	if !ok {
		return false
	}
	if _, ok = allowed[next]; !ok {
		return false
	}
	s.state = next
	return true
}

// node is one PBFT participant. State is owned by the run loop.
type node struct {
	id      string
	cluster *Cluster

	inbox <-chan transport.Message
	cmdc  chan func()
	stopc chan struct{}
	donec chan struct{}

	view       uint64
	sequence   uint64
	messageLog map[viewSeq]*slot
}

func newNode(id string, c *Cluster, inbox <-chan transport.Message) *node {
	return &node{
		id:         id,
		cluster:    c,
		inbox:      inbox,
		cmdc:       make(chan func()),
		stopc:      make(chan struct{}),
		donec:      make(chan struct{}),
		messageLog: make(map[viewSeq]*slot),
	}
}

func (n *node) do(fn func()) {
	done := make(chan struct{})
	select {
	case n.cmdc <- func() { fn(); close(done) }:
		<-done
	case <-n.donec:
	}
}

func (n *node) stop() {
	close(n.stopc)
	<-n.donec
}

func (n *node) run() {
	defer close(n.donec)

	for {
		select {
		case <-n.stopc:
			return
		case fn := <-n.cmdc:
			fn()
		case msg := <-n.inbox:
			n.handle(msg)
		}
	}
}

func (n *node) handle(msg transport.Message) {
	switch m := msg.Payload.(type) {
	case prePrepareMsg:
		n.onPrePrepare(msg.From, m)
	case voteMsg:
		n.onVote(m)
	default:
		log.Debugf("pbft: %s ignores unknown message %T", n.id, msg.Payload)
	}
}

// propose runs on the primary's loop.
func (n *node) propose(value []byte) (*consensus.Proposal, error) {
	if n.cluster.primaryFor(n.view) != n.id {
		return nil, ErrNotPrimary
	}

	n.sequence++
	key := viewSeq{View: n.view, Sequence: n.sequence}
	proposalID := fmt.Sprintf("pbft-%d-%d-%s", key.View, key.Sequence, n.id)

	p := consensus.NewProposal(proposalID, n.id, value, n.view)
	n.cluster.registry.Add(p)

	msg := prePrepareMsg{
		View:       key.View,
		Sequence:   key.Sequence,
		Digest:     digestOf(value),
		ProposalID: proposalID,
		ProposerID: n.id,
		Value:      value,
	}

	log.Infof("pbft: primary %s pre-prepares %s (view %d, seq %d)", n.id, proposalID, key.View, key.Sequence)

	n.onPrePrepare(n.id, msg)
	n.cluster.network.Broadcast(n.id, msg)

	return p, nil
}

func (n *node) onPrePrepare(from string, m prePrepareMsg) {
	if m.View != n.view {
		log.Debugf("pbft: %s drops pre-prepare for view %d (current %d)", n.id, m.View, n.view)
		return
	}
	if from != n.cluster.primaryFor(m.View) {
		log.Debugf("pbft: %s drops pre-prepare from non-primary %s", n.id, from)
		return
	}
	if digestOf(m.Value) != m.Digest {
		log.Debugf("pbft: %s drops pre-prepare with bad digest for seq %d", n.id, m.Sequence)
		return
	}

	key := viewSeq{View: m.View, Sequence: m.Sequence}
	s := n.slot(key)
	if s.digest != "" && s.digest != m.Digest {
		// equivocation: a different value is already bound to this slot
		return
	}
	s.digest = m.Digest
	s.value = m.Value
	s.proposalID = m.ProposalID
	if s.state == "" {
		s.state = slotPrePrepared
	}

	vote := voteMsg{
		View:       m.View,
		Sequence:   m.Sequence,
		Digest:     m.Digest,
		NodeID:     n.id,
		ProposalID: m.ProposalID,
		Phase:      phasePrepare,
	}
	n.onVote(vote)
	n.cluster.network.Broadcast(n.id, vote)

	n.evaluate(key)
}

func (n *node) onVote(m voteMsg) {
	if m.View != n.view {
		return
	}

	key := viewSeq{View: m.View, Sequence: m.Sequence}
	s := n.slot(key)
	if s.digest != "" && s.digest != m.Digest {
		log.Debugf("pbft: %s drops %s vote with mismatched digest from %s", n.id, m.Phase, m.NodeID)
		return
	}

	switch m.Phase {
	case phasePrepare:
		s.prepares[m.NodeID] = struct{}{}
	case phaseCommit:
		s.commits[m.NodeID] = struct{}{}
		if s.proposalID != "" {
			if p, ok := n.cluster.registry.Get(s.proposalID); ok {
				p.RecordVote(consensus.Vote{VoterID: m.NodeID, Approve: true, Confidence: 1})
			}
		}
	default:
		return
	}

	n.evaluate(key)
}

// evaluate advances the slot when a 2f+1 quorum of the matching phase is
// collected. Quorums only count once the pre-prepare bound a value to the
// slot.
func (n *node) evaluate(key viewSeq) {
	s := n.messageLog[key]
	if s == nil || s.state == "" {
		return
	}
	quorum := consensus.ByzantineQuorum(n.cluster.memberCount())

	if s.state == slotPrePrepared && len(s.prepares) >= quorum {
		if !s.advance(slotPrepared) {
			return
		}
		if n.id == n.cluster.primaryFor(key.View) {
			if p, ok := n.cluster.registry.Get(s.proposalID); ok {
				p.AddRound()
			}
		}

		vote := voteMsg{
			View:       key.View,
			Sequence:   key.Sequence,
			Digest:     s.digest,
			NodeID:     n.id,
			ProposalID: s.proposalID,
			Phase:      phaseCommit,
		}
		n.onVote(vote)
		n.cluster.network.Broadcast(n.id, vote)
		return
	}

	if s.state == slotPrepared && len(s.commits) >= quorum {
		if !s.advance(slotCommitted) {
			return
		}
		log.Infof("pbft: %s finalizes %s (view %d, seq %d)", n.id, s.proposalID, key.View, key.Sequence)
		n.cluster.finalize(s.proposalID, consensus.StatusAccepted)
	}
}

func (n *node) slot(key viewSeq) *slot {
	s, ok := n.messageLog[key]
	if !ok {
		s = newSlot()
		n.messageLog[key] = s
	}
	return s
}
