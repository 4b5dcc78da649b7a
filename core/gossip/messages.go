package gossip

import "github.com/swarmesh/quorum/core/consensus"

// proposalMsg spreads knowledge of a new proposal through the swarm.
// MsgID is the dedup key; Hops counts forwardings so far.
type proposalMsg struct {
	MsgID      string
	ProposalID string
	ProposerID string
	Value      []byte
	Hops       int
}

// voteMsg spreads one participant's vote the same way proposals spread.
type voteMsg struct {
	MsgID      string
	ProposalID string
	Vote       consensus.Vote
	Hops       int
}

// syncMsg is the anti-entropy exchange: a full copy of the sender's
// key/value state. Reply marks the answering half of a push-pull round so
// the exchange terminates.
type syncMsg struct {
	From  string
	State map[string]entry
	Reply bool
}

// entry is a versioned value in a node's state map; merges are
// last-writer-wins by version.
type entry struct {
	Value   []byte
	Version uint64
}
