// Package byzantine implements PBFT-style three-phase agreement:
// pre-prepare, prepare, commit, reply. A cluster of n nodes tolerates
// f = (n-1)/3 faulty members; both the prepare and commit phases require
// a 2f+1 quorum keyed by (view, sequence).
//
// View change is unilateral here: the view number is bumped and the
// primary re-elected deterministically, without collecting 2f+1
// view-change messages. That matches the reference behavior and is a
// known simplification, not a safe production view change.
package byzantine

import (
	"fmt"
	"sort"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/swarmesh/quorum/core/consensus"
	"github.com/swarmesh/quorum/core/transport"
)

// ErrNotPrimary is returned when propose is called on a node that is not
// the primary of the current view.
var ErrNotPrimary = status.Error(codes.FailedPrecondition, "only the pbft primary can propose")

// Cluster owns the PBFT nodes of one in-process deployment.
type Cluster struct {
	localID  string
	network  *transport.Network
	registry *consensus.Registry
	emit     func(event string, fields map[string]any)

	mu    sync.RWMutex
	nodes map[string]*node
	order []string
	view  uint64
}

// NewCluster builds an empty cluster; nodes are added with AddNode.
func NewCluster(localID string, network *transport.Network, registry *consensus.Registry, emit func(string, map[string]any)) *Cluster {
	if emit == nil {
		emit = func(string, map[string]any) {}
	}
	return &Cluster{
		localID:  localID,
		network:  network,
		registry: registry,
		emit:     emit,
		nodes:    make(map[string]*node),
	}
}

// AddNode registers a node at the current view and starts its loop.
func (c *Cluster) AddNode(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.nodes[id]; ok {
		return fmt.Errorf("pbft: node %s already exists", id)
	}

	n := newNode(id, c, c.network.Join(id))
	n.view = c.view
	c.nodes[id] = n
	c.order = append(c.order, id)
	sort.Strings(c.order)
	go n.run()

	return nil
}

// RemoveNode stops a node; f is recomputed from the survivors.
func (c *Cluster) RemoveNode(id string) error {
	c.mu.Lock()
	n, ok := c.nodes[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("pbft: unknown node %s", id)
	}
	delete(c.nodes, id)
	for i, member := range c.order {
		if member == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
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
	c.order = nil
	c.mu.Unlock()

	for _, n := range nodes {
		n.stop()
	}
}

// Propose submits a value through the local node; fails with
// ErrNotPrimary unless the local node is the primary of the current view.
func (c *Cluster) Propose(value []byte) (*consensus.Proposal, error) {
	n, ok := c.node(c.localID)
	if !ok {
		return nil, fmt.Errorf("pbft: local node %s is not part of the cluster", c.localID)
	}

	var (
		p   *consensus.Proposal
		err error
	)
	n.do(func() {
		p, err = n.propose(value)
	})
	if p == nil && err == nil {
		err = fmt.Errorf("pbft: node %s is shut down", c.localID)
	}

	return p, err
}

// Vote records an explicit vote. Acceptance is driven by the commit
// quorum; a disapproving vote can only make that quorum impossible.
func (c *Cluster) Vote(proposalID string, v consensus.Vote) error {
	p, ok := c.registry.Get(proposalID)
	if !ok {
		return consensus.ErrUnknownProposal(proposalID)
	}
	if !p.RecordVote(v) {
		return nil
	}

	approving, total := p.VoteCounts()
	n := c.memberCount()
	if approving+(n-total) < consensus.ByzantineQuorum(n) {
		c.finalize(proposalID, consensus.StatusRejected)
	}

	return nil
}

// ViewChange bumps the view and re-elects the primary deterministically.
// Triggered explicitly, e.g. on suspected primary failure.
func (c *Cluster) ViewChange() {
	c.mu.Lock()
	c.view++
	view := c.view
	nodes := make([]*node, 0, len(c.nodes))
	for _, n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.mu.Unlock()

	for _, n := range nodes {
		n.do(func() { n.view = view })
	}

	primary := c.Primary()
	c.emit("view.changed", map[string]any{"viewNumber": view, "primary": primary})
	if primary != "" {
		c.emit("leader.elected", map[string]any{"leaderId": primary, "viewNumber": view})
	}
}

// View returns the current view number.
func (c *Cluster) View() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Primary returns the primary of the current view.
func (c *Cluster) Primary() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.primaryLocked(c.view)
}

// IsPrimary reports whether the local node is the current primary.
func (c *Cluster) IsPrimary() bool {
	return c.Primary() == c.localID
}

// IsLeader aliases IsPrimary for the engine's uniform query surface.
func (c *Cluster) IsLeader() bool {
	return c.IsPrimary()
}

// Name returns the canonical algorithm name.
func (c *Cluster) Name() string {
	return "byzantine"
}

// Expire finalizes a proposal that ran out of time without a decision.
func (c *Cluster) Expire(proposalID string) {
	c.finalize(proposalID, consensus.StatusExpired)
}

// LeaderID satisfies the engine's leader query with the current primary.
func (c *Cluster) LeaderID() (string, bool) {
	p := c.Primary()
	return p, p != ""
}

// MaxFaultyNodes returns f for the current membership.
func (c *Cluster) MaxFaultyNodes() int {
	return consensus.MaxFaulty(c.memberCount())
}

// CanTolerate reports whether the current membership survives f faults.
func (c *Cluster) CanTolerate(f int) bool {
	return consensus.CanTolerate(c.memberCount(), f)
}

// Eligible returns the number of members eligible to vote.
func (c *Cluster) Eligible() int {
	return c.memberCount()
}

func (c *Cluster) primaryFor(view uint64) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.primaryLocked(view)
}

func (c *Cluster) primaryLocked(view uint64) string {
	if len(c.order) == 0 {
		return ""
	}
	return c.order[int(view%uint64(len(c.order)))]
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
