package gossip

import (
	"fmt"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/swarmesh/quorum/core/consensus"
	"github.com/swarmesh/quorum/core/transport"
)

// node is one gossip participant. There is no leader and no per-proposal
// quorum machinery; the node's job is dissemination and local bookkeeping.
type node struct {
	id      string
	cluster *Cluster
	rng     *rand.Rand

	inbox <-chan transport.Message
	cmdc  chan func()
	stopc chan struct{}
	donec chan struct{}

	state     map[string]entry
	version   uint64
	neighbors []string
	seen      map[string]struct{}
	queue     []any
	counter   uint64
	lastSync  time.Time
}

func newNode(id string, c *Cluster, inbox <-chan transport.Message) *node {
	return &node{
		id:      id,
		cluster: c,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(len(id)<<16))),
		inbox:   inbox,
		cmdc:    make(chan func()),
		stopc:   make(chan struct{}),
		donec:   make(chan struct{}),
		state:   make(map[string]entry),
		seen:    make(map[string]struct{}),
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
	cfg := n.cluster.cfg
	round := time.NewTicker(cfg.Interval)
	sync := time.NewTicker(cfg.AntiEntropyInterval)
	defer func() {
		round.Stop()
		sync.Stop()
		close(n.donec)
	}()

	for {
		select {
		case <-n.stopc:
			return
		case fn := <-n.cmdc:
			fn()
		case msg := <-n.inbox:
			n.handle(msg)
		case <-round.C:
			n.gossipRound()
		case <-sync.C:
			n.antiEntropy()
		}
	}
}

func (n *node) handle(msg transport.Message) {
	switch m := msg.Payload.(type) {
	case proposalMsg:
		n.onProposal(m)
	case voteMsg:
		n.onVote(m)
	case syncMsg:
		n.onSync(m)
	default:
		log.Debugf("gossip: %s ignores unknown message %T", n.id, msg.Payload)
	}
}

// propose runs on the loop; any node may originate.
func (n *node) propose(value []byte) *consensus.Proposal {
	n.counter++
	proposalID := fmt.Sprintf("gossip-%d-%s", n.counter, n.id)

	p := consensus.NewProposal(proposalID, n.id, value, 0)
	p.RecordVote(consensus.Vote{VoterID: n.id, Approve: true, Confidence: 1})
	n.cluster.registry.Add(p)
	n.cluster.markSeen(proposalID, n.id)

	msg := proposalMsg{
		MsgID:      "p:" + proposalID,
		ProposalID: proposalID,
		ProposerID: n.id,
		Value:      value,
	}
	n.seen[msg.MsgID] = struct{}{}
	n.queue = append(n.queue, msg)

	log.Infof("gossip: %s proposes %s", n.id, proposalID)

	return p
}

// enqueueVote runs on the loop; called for locally recorded votes so that
// acceptance knowledge diffuses the same way as proposals.
func (n *node) enqueueVote(proposalID string, v consensus.Vote) {
	msg := voteMsg{
		MsgID:      fmt.Sprintf("v:%s:%s", proposalID, v.VoterID),
		ProposalID: proposalID,
		Vote:       v,
	}
	if _, ok := n.seen[msg.MsgID]; ok {
		return
	}
	n.seen[msg.MsgID] = struct{}{}
	n.queue = append(n.queue, msg)
}

func (n *node) onProposal(m proposalMsg) {
	if m.Hops >= n.cluster.cfg.MaxHops {
		return
	}
	if _, ok := n.seen[m.MsgID]; ok {
		return
	}
	n.seen[m.MsgID] = struct{}{}
	n.cluster.markSeen(m.ProposalID, n.id)
	n.queue = append(n.queue, m)
}

func (n *node) onVote(m voteMsg) {
	if m.Hops >= n.cluster.cfg.MaxHops {
		return
	}
	if _, ok := n.seen[m.MsgID]; ok {
		return
	}
	n.seen[m.MsgID] = struct{}{}

	if p, ok := n.cluster.registry.Get(m.ProposalID); ok {
		p.RecordVote(m.Vote)
		n.cluster.maybeDecide(m.ProposalID)
	}
	n.queue = append(n.queue, m)
}

// gossipRound pops a bounded batch off the queue and forwards each message
// to a random subset of neighbors.
func (n *node) gossipRound() {
	batch := len(n.queue)
	if batch > n.cluster.cfg.BatchSize {
		batch = n.cluster.cfg.BatchSize
	}
	if batch > 0 {
		msgs := n.queue[:batch]
		n.queue = append([]any(nil), n.queue[batch:]...)

		for _, msg := range msgs {
			n.forward(msg)
		}
	}

	for _, p := range n.cluster.registry.Active() {
		if p.ProposerID == n.id {
			p.AddRound()
		}
	}
}

func (n *node) forward(msg any) {
	switch m := msg.(type) {
	case proposalMsg:
		m.Hops++
		if m.Hops >= n.cluster.cfg.MaxHops {
			return
		}
		for _, peer := range n.pickNeighbors() {
			n.cluster.network.Send(n.id, peer, m)
		}
	case voteMsg:
		m.Hops++
		if m.Hops >= n.cluster.cfg.MaxHops {
			return
		}
		for _, peer := range n.pickNeighbors() {
			n.cluster.network.Send(n.id, peer, m)
		}
	}
}

// pickNeighbors samples up to fanout targets from the wired neighbors,
// falling back to the whole membership when the node is poorly connected.
func (n *node) pickNeighbors() []string {
	candidates := n.neighbors
	if len(candidates) == 0 {
		candidates = n.cluster.network.Pick(n.id, n.cluster.cfg.Fanout)
		return candidates
	}

	shuffled := append([]string(nil), candidates...)
	n.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if len(shuffled) > n.cluster.cfg.Fanout {
		shuffled = shuffled[:n.cluster.cfg.Fanout]
	}

	return shuffled
}

// antiEntropy reconciles the full state map with one random neighbor,
// bounding divergence even when gossip messages were lost.
func (n *node) antiEntropy() {
	peers := n.pickNeighbors()
	if len(peers) == 0 {
		return
	}
	peer := peers[n.rng.Intn(len(peers))]

	n.cluster.network.Send(n.id, peer, syncMsg{From: n.id, State: n.snapshotState()})
	n.lastSync = time.Now()
}

func (n *node) onSync(m syncMsg) {
	n.mergeState(m.State)
	if !m.Reply {
		n.cluster.network.Send(n.id, m.From, syncMsg{From: n.id, State: n.snapshotState(), Reply: true})
	}
}

// mergeState applies last-writer-wins by version.
func (n *node) mergeState(remote map[string]entry) {
	for key, incoming := range remote {
		current, ok := n.state[key]
		if !ok || incoming.Version > current.Version {
			n.state[key] = incoming
			if incoming.Version > n.version {
				n.version = incoming.Version
			}
		}
	}
}

func (n *node) snapshotState() map[string]entry {
	snapshot := make(map[string]entry, len(n.state))
	for k, v := range n.state {
		snapshot[k] = v
	}
	return snapshot
}

func (n *node) setState(key string, value []byte) {
	n.version++
	n.state[key] = entry{Value: value, Version: n.version}
}
