// Package gossip implements epidemic, eventually consistent agreement.
// There is no leader: proposals and votes are queued and forwarded to a
// random fanout of neighbors each round, with hop limits and per-node
// dedup. A proposal is decided once participation crosses the convergence
// threshold; periodic anti-entropy bounds state divergence.
package gossip

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/swarmesh/quorum/core/consensus"
	"github.com/swarmesh/quorum/core/transport"
)

// Config tunes dissemination and decision making.
type Config struct {
	Interval             time.Duration // gossip round period
	AntiEntropyInterval  time.Duration // full-state reconciliation period
	Fanout               int           // forward targets per message per round
	MaxHops              int           // drop threshold for message age
	BatchSize            int           // max messages forwarded per round
	ConvergenceThreshold float64       // participation needed before deciding
	ApprovalThreshold    float64       // approval ratio needed to accept
	NeighborCount        int           // wired neighbors per node
	RequireQuorum        bool          // refuse timeout decisions below convergence
}

// DefaultConfig returns the reference tuning: 100ms rounds, fanout 3,
// 10 hops, 0.9 convergence, 0.66 approval.
func DefaultConfig() Config {
	return Config{
		Interval:             100 * time.Millisecond,
		AntiEntropyInterval:  500 * time.Millisecond,
		Fanout:               3,
		MaxHops:              10,
		BatchSize:            10,
		ConvergenceThreshold: 0.9,
		ApprovalThreshold:    0.66,
		NeighborCount:        6,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.AntiEntropyInterval <= 0 {
		c.AntiEntropyInterval = def.AntiEntropyInterval
	}
	if c.Fanout <= 0 {
		c.Fanout = def.Fanout
	}
	if c.MaxHops <= 0 {
		c.MaxHops = def.MaxHops
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.ConvergenceThreshold <= 0 {
		c.ConvergenceThreshold = def.ConvergenceThreshold
	}
	if c.ApprovalThreshold <= 0 {
		c.ApprovalThreshold = def.ApprovalThreshold
	}
	if c.NeighborCount <= 0 {
		c.NeighborCount = def.NeighborCount
	}
	return c
}

// Cluster owns the gossip nodes of one in-process deployment.
type Cluster struct {
	cfg      Config
	localID  string
	network  *transport.Network
	registry *consensus.Registry
	emit     func(event string, fields map[string]any)

	mu     sync.RWMutex
	nodes  map[string]*node
	seenBy map[string]map[string]struct{}
	rng    *rand.Rand
}

// NewCluster builds an empty cluster; nodes are added with AddNode.
func NewCluster(localID string, cfg Config, network *transport.Network, registry *consensus.Registry, emit func(string, map[string]any)) *Cluster {
	if emit == nil {
		emit = func(string, map[string]any) {}
	}
	return &Cluster{
		cfg:      cfg.withDefaults(),
		localID:  localID,
		network:  network,
		registry: registry,
		emit:     emit,
		nodes:    make(map[string]*node),
		seenBy:   make(map[string]map[string]struct{}),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// AddNode registers a node, wires it to a random subset of existing nodes
// and starts its loop.
func (c *Cluster) AddNode(id string) error {
	c.mu.Lock()

	if _, ok := c.nodes[id]; ok {
		c.mu.Unlock()
		return fmt.Errorf("gossip: node %s already exists", id)
	}

	n := newNode(id, c, c.network.Join(id))

	existing := make([]*node, 0, len(c.nodes))
	for _, other := range c.nodes {
		existing = append(existing, other)
	}
	c.rng.Shuffle(len(existing), func(i, j int) {
		existing[i], existing[j] = existing[j], existing[i]
	})
	if len(existing) > c.cfg.NeighborCount {
		existing = existing[:c.cfg.NeighborCount]
	}
	for _, other := range existing {
		n.neighbors = append(n.neighbors, other.id)
	}

	c.nodes[id] = n
	c.mu.Unlock()

	// wire back-edges on the live loops
	for _, other := range existing {
		peer := other
		peer.do(func() { peer.neighbors = append(peer.neighbors, id) })
	}

	go n.run()

	return nil
}

// RemoveNode stops a node and unwires it from its neighbors.
func (c *Cluster) RemoveNode(id string) error {
	c.mu.Lock()
	n, ok := c.nodes[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("gossip: unknown node %s", id)
	}
	delete(c.nodes, id)
	survivors := make([]*node, 0, len(c.nodes))
	for _, other := range c.nodes {
		survivors = append(survivors, other)
	}
	c.mu.Unlock()

	c.network.Leave(id)
	n.stop()

	for _, other := range survivors {
		peer := other
		peer.do(func() {
			for i, neighbor := range peer.neighbors {
				if neighbor == id {
					peer.neighbors = append(peer.neighbors[:i], peer.neighbors[i+1:]...)
					break
				}
			}
		})
	}

	return nil
}

// Stop shuts down every node loop and waits for them.
func (c *Cluster) Stop() {
	c.mu.Lock()
	nodes := make([]*node, 0, len(c.nodes))
	for id, n := range c.nodes {
		nodes = append(nodes, n)
		c.network.Leave(id)
	}
	c.nodes = make(map[string]*node)
	c.mu.Unlock()

	for _, n := range nodes {
		n.stop()
	}
}

// Propose submits a value through the local node. Gossip imposes no
// proposer restriction.
func (c *Cluster) Propose(value []byte) (*consensus.Proposal, error) {
	n, ok := c.node(c.localID)
	if !ok {
		return nil, fmt.Errorf("gossip: local node %s is not part of the cluster", c.localID)
	}

	var p *consensus.Proposal
	n.do(func() { p = n.propose(value) })
	if p == nil {
		return nil, fmt.Errorf("gossip: node %s is shut down", c.localID)
	}

	return p, nil
}

// Vote records a vote locally and re-gossips it so the knowledge diffuses
// the same way the proposal did.
func (c *Cluster) Vote(proposalID string, v consensus.Vote) error {
	p, ok := c.registry.Get(proposalID)
	if !ok {
		return consensus.ErrUnknownProposal(proposalID)
	}
	if !p.RecordVote(v) {
		return nil
	}

	if n, found := c.node(c.localID); found {
		n.do(func() { n.enqueueVote(proposalID, v) })
	}
	c.maybeDecide(proposalID)

	return nil
}

// Convergence returns the fraction of members that have seen a proposal.
func (c *Cluster) Convergence(proposalID string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.nodes) == 0 {
		return 0
	}
	return float64(len(c.seenBy[proposalID])) / float64(len(c.nodes))
}

// Decide resolves a proposal from whatever participation was reached; the
// engine calls it when awaitConsensus times out before convergence. With
// RequireQuorum set, or with no votes at all, the proposal expires
// instead. This is the documented availability-over-consistency trade:
// the outcome is a best-effort call from partial data, not an error.
func (c *Cluster) Decide(proposalID string) {
	p, ok := c.registry.Get(proposalID)
	if !ok || p.Terminal() {
		return
	}

	approving, total := p.VoteCounts()
	if total == 0 || c.cfg.RequireQuorum {
		c.finalize(proposalID, consensus.StatusExpired)
		return
	}

	if float64(approving)/float64(total) >= c.cfg.ApprovalThreshold {
		c.finalize(proposalID, consensus.StatusAccepted)
	} else {
		c.finalize(proposalID, consensus.StatusRejected)
	}
}

// LeaderID always reports no leader; gossip has none.
func (c *Cluster) LeaderID() (string, bool) {
	return "", false
}

// IsLeader is always false; gossip has no leader.
func (c *Cluster) IsLeader() bool {
	return false
}

// Name returns the canonical algorithm name.
func (c *Cluster) Name() string {
	return "gossip"
}

// Expire resolves a timed-out proposal with the best-effort decision.
func (c *Cluster) Expire(proposalID string) {
	c.Decide(proposalID)
}

// Eligible returns the number of members eligible to vote.
func (c *Cluster) Eligible() int {
	return c.memberCount()
}

// SetState writes a key into the local node's state map; anti-entropy
// spreads it with last-writer-wins semantics.
func (c *Cluster) SetState(key string, value []byte) error {
	n, ok := c.node(c.localID)
	if !ok {
		return fmt.Errorf("gossip: local node %s is not part of the cluster", c.localID)
	}
	n.do(func() { n.setState(key, value) })
	return nil
}

// State reads a key from a node's state map.
func (c *Cluster) State(nodeID, key string) ([]byte, bool) {
	n, ok := c.node(nodeID)
	if !ok {
		return nil, false
	}
	var (
		value []byte
		found bool
	)
	n.do(func() {
		e, ok := n.state[key]
		if ok {
			value, found = e.Value, true
		}
	})
	return value, found
}

// maybeDecide checks the convergence threshold after any recorded vote.
func (c *Cluster) maybeDecide(proposalID string) {
	p, ok := c.registry.Get(proposalID)
	if !ok || p.Terminal() {
		return
	}

	approving, total := p.VoteCounts()
	n := c.memberCount()
	if n == 0 || float64(total)/float64(n) < c.cfg.ConvergenceThreshold {
		return
	}

	if float64(approving)/float64(total) >= c.cfg.ApprovalThreshold {
		c.finalize(proposalID, consensus.StatusAccepted)
	} else {
		c.finalize(proposalID, consensus.StatusRejected)
	}
}

func (c *Cluster) markSeen(proposalID, nodeID string) {
	c.mu.Lock()
	set, ok := c.seenBy[proposalID]
	if !ok {
		set = make(map[string]struct{})
		c.seenBy[proposalID] = set
	}
	set[nodeID] = struct{}{}
	c.mu.Unlock()
}

func (c *Cluster) node(id string) (*node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[id]
	return n, ok
}

func (c *Cluster) memberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

func (c *Cluster) finalize(proposalID string, s consensus.Status) {
	p, ok := c.registry.Get(proposalID)
	if !ok {
		return
	}
	if p.Finalize(s) {
		c.emit("consensus.achieved", map[string]any{
			"proposalId": proposalID,
			"approved":   s == consensus.StatusAccepted,
		})
	}
}
