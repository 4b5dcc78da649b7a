// Package raft implements leader-based, crash-fault-tolerant replication:
// randomized leader election plus log replication with majority commit.
// Every node runs as its own event loop; peers talk exclusively through the
// simulated transport.
package raft

import (
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/swarmesh/quorum/core/consensus"
	"github.com/swarmesh/quorum/core/transport"
)

// ErrNotLeader is returned when propose is called on a node that is not
// the current leader.
var ErrNotLeader = status.Error(codes.FailedPrecondition, "only the raft leader can propose")

// Config carries the protocol timing knobs.
type Config struct {
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
}

// DefaultConfig returns the reference timing: 150-300ms election timeout,
// 50ms heartbeats.
func DefaultConfig() Config {
	return Config{
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		HeartbeatInterval:  50 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ElectionTimeoutMin <= 0 {
		c.ElectionTimeoutMin = def.ElectionTimeoutMin
	}
	if c.ElectionTimeoutMax <= c.ElectionTimeoutMin {
		c.ElectionTimeoutMax = c.ElectionTimeoutMin * 2
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	return c
}

// StateStore persists a node's hard state and log. Optional: without one
// the node is volatile-memory-only.
//
//go:generate mockgen -destination=../../mocks/mock_statestore.go -package=mocks . StateStore
type StateStore interface {
	SaveHardState(term uint64, votedFor string) error
	LoadHardState() (term uint64, votedFor string, found bool, err error)
	AppendEntry(index, term uint64, proposalID string, value []byte) error
	WalkEntries(fn func(index, term uint64, proposalID string, value []byte) error) error
}

// Cluster owns the raft nodes of one in-process deployment and the shared
// proposal registry.
type Cluster struct {
	cfg      Config
	localID  string
	network  *transport.Network
	registry *consensus.Registry
	emit     func(event string, fields map[string]any)

	mu         sync.RWMutex
	nodes      map[string]*node
	stores     map[string]StateStore
	leaderID   string
	leaderTerm uint64
}

// NewCluster builds an empty cluster; nodes are added with AddNode. The
// emit callback receives protocol events (leader.elected,
// consensus.achieved) and may be nil.
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
		stores:   make(map[string]StateStore),
	}
}

// UseStore attaches a durable state store to a node. Must be called before
// the node joins; recovery happens inside AddNode.
func (c *Cluster) UseStore(nodeID string, st StateStore) {
	c.mu.Lock()
	c.stores[nodeID] = st
	c.mu.Unlock()
}

// AddNode creates a node, recovers its persisted state if a store is
// attached, and starts its event loop.
func (c *Cluster) AddNode(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.nodes[id]; ok {
		return fmt.Errorf("raft: node %s already exists", id)
	}

	n := newNode(id, c, c.network.Join(id))
	if st := c.stores[id]; st != nil {
		if err := recoverNode(n, st); err != nil {
			c.network.Leave(id)
			return err
		}
	}
	c.nodes[id] = n
	go n.run()

	return nil
}

func recoverNode(n *node, st StateStore) error {
	term, votedFor, found, err := st.LoadHardState()
	if err != nil {
		return err
	}
	if found {
		n.currentTerm = term
		n.votedFor = votedFor
	}
	return st.WalkEntries(func(index, term uint64, proposalID string, value []byte) error {
		n.logEntries = append(n.logEntries, LogEntry{
			Index: index, Term: term, ProposalID: proposalID, Value: value,
		})
		return nil
	})
}

// RemoveNode stops a node and removes it from membership. Quorums shrink
// immediately; a removed leader triggers re-election on the survivors.
func (c *Cluster) RemoveNode(id string) error {
	c.mu.Lock()
	n, ok := c.nodes[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("raft: unknown node %s", id)
	}
	delete(c.nodes, id)
	if c.leaderID == id {
		c.leaderID = ""
	}
	c.mu.Unlock()

	c.network.Leave(id)
	n.stop()

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

// Propose submits a value through the local node. Fails with ErrNotLeader
// if the local node is not the leader.
func (c *Cluster) Propose(value []byte) (*consensus.Proposal, error) {
	n, ok := c.node(c.localID)
	if !ok {
		return nil, fmt.Errorf("raft: local node %s is not part of the cluster", c.localID)
	}

	var (
		p   *consensus.Proposal
		err error
	)
	n.do(func() {
		p, err = n.propose(value)
	})
	if p == nil && err == nil {
		err = fmt.Errorf("raft: node %s is shut down", c.localID)
	}

	return p, err
}

// Vote records an explicit vote on a proposal. Acceptance is driven by
// replication acks; a disapproving vote can only make quorum impossible
// and reject the proposal early.
func (c *Cluster) Vote(proposalID string, v consensus.Vote) error {
	p, ok := c.registry.Get(proposalID)
	if !ok {
		return consensus.ErrUnknownProposal(proposalID)
	}
	if !p.RecordVote(v) {
		return nil // already terminal
	}

	approving, total := p.VoteCounts()
	n := c.memberCount()
	if approving+(n-total) < consensus.Majority(n) {
		c.finalize(proposalID, consensus.StatusRejected)
	}

	return nil
}

// IsLeader reports whether the local node currently leads.
func (c *Cluster) IsLeader() bool {
	return c.Role(c.localID) == RoleLeader
}

// LeaderID returns the most recently elected leader.
func (c *Cluster) LeaderID() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.leaderID, c.leaderID != ""
}

// Role returns the role of a node, or "" for unknown/stopped nodes.
func (c *Cluster) Role(id string) string {
	n, ok := c.node(id)
	if !ok {
		return ""
	}
	var role string
	n.do(func() { role = n.role })
	return role
}

// Term returns a node's current term.
func (c *Cluster) Term(id string) uint64 {
	n, ok := c.node(id)
	if !ok {
		return 0
	}
	var term uint64
	n.do(func() { term = n.currentTerm })
	return term
}

// LeaderCount counts nodes that currently believe they lead. The election
// safety property keeps this at most one per term.
func (c *Cluster) LeaderCount() int {
	count := 0
	for _, id := range c.members() {
		if c.Role(id) == RoleLeader {
			count++
		}
	}
	return count
}

// Eligible returns the number of members eligible to vote.
func (c *Cluster) Eligible() int {
	return c.memberCount()
}

// Name returns the canonical algorithm name.
func (c *Cluster) Name() string {
	return "raft"
}

// Expire finalizes a proposal that ran out of time without a decision.
func (c *Cluster) Expire(proposalID string) {
	c.finalize(proposalID, consensus.StatusExpired)
}

func (c *Cluster) node(id string) (*node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[id]
	return n, ok
}

func (c *Cluster) members() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.nodes))
	for id := range c.nodes {
		ids = append(ids, id)
	}
	return ids
}

func (c *Cluster) memberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

func (c *Cluster) stateStore(id string) StateStore {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stores[id]
}

func (c *Cluster) setLeader(id string, term uint64) {
	c.mu.Lock()
	changed := c.leaderID != id || c.leaderTerm != term
	c.leaderID = id
	c.leaderTerm = term
	c.mu.Unlock()

	if changed {
		c.emit("leader.elected", map[string]any{"leaderId": id, "term": term})
	}
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
