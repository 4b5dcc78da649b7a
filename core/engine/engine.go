// Package engine wraps the configured agreement algorithm behind one
// propose/vote/await contract. The facade owns the lifecycle, forwards
// protocol events upward unchanged, and keeps a read-side cache of every
// proposal it has brokered; the algorithm's own registry stays the source
// of truth.
package engine

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/swarmesh/quorum/core/byzantine"
	"github.com/swarmesh/quorum/core/consensus"
	"github.com/swarmesh/quorum/core/engine/hooks"
	"github.com/swarmesh/quorum/core/gossip"
	"github.com/swarmesh/quorum/core/raft"
	"github.com/swarmesh/quorum/core/transport"
	"github.com/swarmesh/quorum/io/metrics"
)

// Canonical algorithm names accepted by the factory. "paxos" is an alias
// of raft.
const (
	AlgorithmRaft      = "raft"
	AlgorithmByzantine = "byzantine"
	AlgorithmGossip    = "gossip"
)

// ErrNotRunning is returned by every API call before Initialize or after
// Shutdown.
var ErrNotRunning = status.Error(codes.FailedPrecondition, "consensus engine is not running")

// ErrHookVeto is returned when a registered hook rejects a propose or
// vote call before it reaches the algorithm.
var ErrHookVeto = status.Error(codes.FailedPrecondition, "rejected by hook")

// Algorithm is the uniform contract the facade dispatches to; one
// implementation per protocol.
//
//go:generate mockgen -destination=../../mocks/mock_algorithm.go -package=mocks . Algorithm
type Algorithm interface {
	Name() string
	AddNode(id string) error
	RemoveNode(id string) error
	Propose(value []byte) (*consensus.Proposal, error)
	Vote(proposalID string, v consensus.Vote) error
	// Expire resolves a proposal whose await timed out. Gossip decides
	// opportunistically from partial data; the quorum algorithms expire.
	Expire(proposalID string)
	IsLeader() bool
	LeaderID() (string, bool)
	Eligible() int
	Stop()
}

// Config assembles an engine.
type Config struct {
	// Algorithm is raft, byzantine, gossip, or paxos (aliased to raft).
	Algorithm string
	// NodeID identifies the local participant; propose authorization is
	// checked against it.
	NodeID string
	// Peers are the other simulated participants joined at Initialize.
	Peers []string
	// ProposalTimeout is the default awaitConsensus timeout.
	ProposalTimeout time.Duration
	// Raft and Gossip tune the respective protocols.
	Raft   raft.Config
	Gossip gossip.Config
	// Transport configures fault injection for the simulated network.
	Transport transport.Options
	// Store optionally persists the local raft node's hard state and log.
	Store raft.StateStore
}

const defaultProposalTimeout = 5 * time.Second

// Engine is the consensus facade handed to orchestration collaborators.
type Engine struct {
	cfg       Config
	algorithm string
	network   *transport.Network
	registry  *consensus.Registry
	brokered  *consensus.Registry
	alg       Algorithm
	hooks     *hooks.Registry
	bus       *eventBus

	mu      sync.RWMutex
	running bool
}

// New builds an engine for the configured algorithm. The cluster starts
// empty; Initialize joins the local node and the configured peers.
func New(cfg Config, customHooks ...hooks.Hook) (*Engine, error) {
	e, err := newEngine(cfg, customHooks)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.Algorithm) {
	case "", AlgorithmRaft, "paxos":
		e.algorithm = AlgorithmRaft
		cluster := raft.NewCluster(cfg.NodeID, cfg.Raft, e.network, e.registry, e.emit)
		if cfg.Store != nil {
			cluster.UseStore(cfg.NodeID, cfg.Store)
		}
		e.alg = cluster
	case AlgorithmByzantine, "bft", "pbft":
		e.algorithm = AlgorithmByzantine
		e.alg = byzantine.NewCluster(cfg.NodeID, e.network, e.registry, e.emit)
	case AlgorithmGossip, "epidemic":
		e.algorithm = AlgorithmGossip
		e.alg = gossip.NewCluster(cfg.NodeID, cfg.Gossip, e.network, e.registry, e.emit)
	default:
		return nil, errors.Errorf("engine: unknown consensus algorithm %q", cfg.Algorithm)
	}

	return e, nil
}

// NewWithAlgorithm builds an engine around an externally constructed
// algorithm implementation. The caller keeps ownership of the algorithm's
// proposal registry; the engine only sees proposals returned by Propose.
func NewWithAlgorithm(cfg Config, alg Algorithm, customHooks ...hooks.Hook) (*Engine, error) {
	e, err := newEngine(cfg, customHooks)
	if err != nil {
		return nil, err
	}
	e.algorithm = alg.Name()
	e.alg = alg
	return e, nil
}

func newEngine(cfg Config, customHooks []hooks.Hook) (*Engine, error) {
	if cfg.NodeID == "" {
		return nil, errors.New("engine: empty NodeID")
	}
	if cfg.ProposalTimeout <= 0 {
		cfg.ProposalTimeout = defaultProposalTimeout
	}

	e := &Engine{
		cfg:      cfg,
		network:  transport.New(cfg.Transport),
		registry: consensus.NewRegistry(),
		brokered: consensus.NewRegistry(),
		hooks:    hooks.NewRegistry(),
		bus:      newEventBus(),
	}

	for _, hook := range customHooks {
		e.hooks.Register(hook)
	}
	if len(customHooks) == 0 {
		e.hooks.Register(hooks.NewDefaultHook())
	}

	return e, nil
}

// RegisterHook adds a hook to the engine.
func (e *Engine) RegisterHook(hook hooks.Hook) {
	e.hooks.Register(hook)
}

// Initialize joins the local node and the configured peers and starts the
// protocol loops.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()

	metrics.Register()

	if err := e.alg.AddNode(e.cfg.NodeID); err != nil {
		return errors.Wrap(err, "failed to join local node")
	}
	for _, peer := range e.cfg.Peers {
		if err := e.alg.AddNode(peer); err != nil {
			return errors.Wrapf(err, "failed to join peer %s", peer)
		}
	}

	log.Infof("consensus engine initialized (%s, %d members)", e.algorithm, e.alg.Eligible())
	e.emit(EventInitialized, map[string]any{"algorithm": e.algorithm})

	return nil
}

// Shutdown stops all protocol loops and timers. Idempotent.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	e.alg.Stop()
	e.network.Close()
	e.emit(EventShutdown, nil)
	log.Infof("consensus engine shut down (%s)", e.algorithm)
}

// AddNode adds a participant; the membership effect is algorithm-specific.
func (e *Engine) AddNode(nodeID string) error {
	if !e.isRunning() {
		return ErrNotRunning
	}
	if err := e.alg.AddNode(nodeID); err != nil {
		return err
	}
	metrics.Members.Set(float64(e.alg.Eligible()))
	return nil
}

// RemoveNode removes a participant.
func (e *Engine) RemoveNode(nodeID string) error {
	if !e.isRunning() {
		return ErrNotRunning
	}
	if err := e.alg.RemoveNode(nodeID); err != nil {
		return err
	}
	metrics.Members.Set(float64(e.alg.Eligible()))
	return nil
}

// Propose submits a value for agreement through the local node. The
// algorithm decides whether this node may propose at all.
func (e *Engine) Propose(value []byte) (*consensus.Proposal, error) {
	if !e.isRunning() {
		return nil, ErrNotRunning
	}
	if !e.hooks.ExecutePropose(value) {
		return nil, ErrHookVeto
	}

	p, err := e.alg.Propose(value)
	if err != nil {
		return nil, err
	}

	e.brokered.Add(p)
	metrics.ProposalsTotal.Inc()
	e.emit(EventMessageBroadcast, map[string]any{"proposalId": p.ID})

	return p, nil
}

// Vote records a vote on a pending proposal. Idempotent per voter; a
// terminal proposal makes this a no-op.
func (e *Engine) Vote(proposalID string, v consensus.Vote) error {
	if !e.isRunning() {
		return ErrNotRunning
	}
	if !e.hooks.ExecuteVote(proposalID, v) {
		return ErrHookVeto
	}
	return e.alg.Vote(proposalID, v)
}

// AwaitConsensus blocks until the proposal reaches a terminal status or
// the timeout elapses; zero timeout uses the configured default. On
// timeout the algorithm resolves the proposal (expiry, or gossip's
// best-effort decision) so the returned result is always terminal.
func (e *Engine) AwaitConsensus(proposalID string, timeout time.Duration) (*consensus.Result, error) {
	if !e.isRunning() {
		return nil, ErrNotRunning
	}

	p, ok := e.lookup(proposalID)
	if !ok {
		return nil, consensus.ErrUnknownProposal(proposalID)
	}
	if timeout <= 0 {
		timeout = e.cfg.ProposalTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.Done():
	case <-timer.C:
		e.alg.Expire(proposalID)
		// the expiry path races a concurrent decision; whichever
		// finalized first wins, and Done is closed either way
		<-p.Done()
	}

	res := p.Result(e.alg.Eligible())
	metrics.Decided.WithLabelValues(string(p.Status())).Inc()

	return res, nil
}

// GetProposal returns a proposal known to the engine.
func (e *Engine) GetProposal(proposalID string) (*consensus.Proposal, error) {
	p, ok := e.lookup(proposalID)
	if !ok {
		return nil, consensus.ErrUnknownProposal(proposalID)
	}
	return p, nil
}

// lookup consults the shared algorithm registry first and falls back to
// the brokered cache (which matters when the algorithm was injected and
// keeps its own registry).
func (e *Engine) lookup(proposalID string) (*consensus.Proposal, bool) {
	if p, ok := e.registry.Get(proposalID); ok {
		return p, true
	}
	return e.brokered.Get(proposalID)
}

// ActiveProposals lists proposals brokered by this engine that are still
// pending.
func (e *Engine) ActiveProposals() []*consensus.Proposal {
	return e.brokered.Active()
}

// Stats counts the proposals brokered by this engine by status.
func (e *Engine) Stats() consensus.Stats {
	return e.brokered.Stats()
}

// IsLeader reports whether the local node currently leads (raft leader or
// pbft primary; always false for gossip).
func (e *Engine) IsLeader() bool {
	return e.alg.IsLeader()
}

// LeaderID returns the current leader, if the algorithm has one.
func (e *Engine) LeaderID() (string, bool) {
	return e.alg.LeaderID()
}

// Algorithm returns the canonical name of the running algorithm.
func (e *Engine) Algorithm() string {
	return e.algorithm
}

// MaxFaultyNodes returns how many byzantine-faulty members the current
// membership tolerates.
func (e *Engine) MaxFaultyNodes() int {
	return consensus.MaxFaulty(e.alg.Eligible())
}

// CanTolerate reports whether the current membership survives f faults.
func (e *Engine) CanTolerate(f int) bool {
	return consensus.CanTolerate(e.alg.Eligible(), f)
}

// ViewChange triggers a byzantine view change; an error for every other
// algorithm.
func (e *Engine) ViewChange() error {
	cluster, ok := e.alg.(*byzantine.Cluster)
	if !ok {
		return status.Error(codes.FailedPrecondition, "view change requires the byzantine algorithm")
	}
	cluster.ViewChange()
	return nil
}

func (e *Engine) isRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// emit forwards a protocol event to subscribers and the metrics sink.
func (e *Engine) emit(event string, fields map[string]any) {
	switch event {
	case EventLeaderElected:
		metrics.LeaderChanges.Inc()
	case EventConsensusAchieved:
		metrics.Achieved.Inc()
	}
	e.bus.publish(Event{Type: event, At: time.Now(), Fields: fields})
}
