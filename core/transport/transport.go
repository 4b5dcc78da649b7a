// Package transport simulates the swarm network in-process. Every node
// registers an inbox channel; sends are delivered asynchronously through
// the network, optionally with random loss and delay so tests can exercise
// protocol behavior under bad network conditions.
//
// A real deployment replaces this package with RPC; nothing outside it may
// touch another node's state directly.
package transport

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Message is an envelope for a protocol payload in flight between nodes.
type Message struct {
	From    string
	To      string
	Payload any
}

// Options tunes fault injection and buffering.
type Options struct {
	// LossRate is the probability in [0,1] that a message is silently dropped.
	LossRate float64
	// MaxDelay is the upper bound of a uniformly random delivery delay.
	// Zero delivers immediately.
	MaxDelay time.Duration
	// BufferSize is the inbox capacity per node (default 256). A full inbox
	// drops the message, like a congested link would.
	BufferSize int
}

const defaultBufferSize = 256

// Network connects node inboxes. Safe for concurrent use.
type Network struct {
	opts Options

	mu      sync.RWMutex
	inboxes map[string]chan Message
	closed  bool

	rngMu sync.Mutex
	rng   *rand.Rand

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func New(opts Options) *Network {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	return &Network{
		opts:    opts,
		inboxes: make(map[string]chan Message),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Join registers a node and returns its inbox. The inbox is never closed;
// consumers must stop reading on their own shutdown signal.
func (n *Network) Join(id string) <-chan Message {
	n.mu.Lock()
	defer n.mu.Unlock()

	if inbox, ok := n.inboxes[id]; ok {
		return inbox
	}
	inbox := make(chan Message, n.opts.BufferSize)
	n.inboxes[id] = inbox

	return inbox
}

// Leave removes a node; in-flight messages to it are dropped.
func (n *Network) Leave(id string) {
	n.mu.Lock()
	delete(n.inboxes, id)
	n.mu.Unlock()
}

// Send delivers a payload to a single node. Returns false if the message
// was dropped (unknown destination, injected loss, or full inbox); the
// caller must treat that exactly like a lost packet.
func (n *Network) Send(from, to string, payload any) bool {
	if n.lose() {
		n.dropped.Add(1)
		return false
	}

	delay := n.delay()
	if delay > 0 {
		time.AfterFunc(delay, func() {
			n.deliver(Message{From: from, To: to, Payload: payload})
		})
		n.sent.Add(1)
		return true
	}

	ok := n.deliver(Message{From: from, To: to, Payload: payload})
	if ok {
		n.sent.Add(1)
	}

	return ok
}

// Broadcast sends a payload to every registered node except the sender.
func (n *Network) Broadcast(from string, payload any) {
	for _, id := range n.Members() {
		if id == from {
			continue
		}
		n.Send(from, id, payload)
	}
}

// Members returns the ids of all registered nodes.
func (n *Network) Members() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	members := make([]string, 0, len(n.inboxes))
	for id := range n.inboxes {
		members = append(members, id)
	}

	return members
}

// Sent returns the number of messages handed to the network so far.
func (n *Network) Sent() uint64 {
	return n.sent.Load()
}

// Dropped returns the number of messages lost to fault injection.
func (n *Network) Dropped() uint64 {
	return n.dropped.Load()
}

// Close stops delivery; later sends are dropped.
func (n *Network) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
}

func (n *Network) deliver(msg Message) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return false
	}
	inbox, ok := n.inboxes[msg.To]
	if !ok {
		return false
	}

	select {
	case inbox <- msg:
		return true
	default:
		log.Debugf("inbox of %s full, dropping message from %s", msg.To, msg.From)
		n.dropped.Add(1)
		return false
	}
}

func (n *Network) lose() bool {
	if n.opts.LossRate <= 0 {
		return false
	}
	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	return n.rng.Float64() < n.opts.LossRate
}

func (n *Network) delay() time.Duration {
	if n.opts.MaxDelay <= 0 {
		return 0
	}
	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	return time.Duration(n.rng.Int63n(int64(n.opts.MaxDelay)))
}

// Pick returns up to k distinct random members excluding the given id.
// Used by the gossip fanout path.
func (n *Network) Pick(exclude string, k int) []string {
	members := n.Members()

	n.rngMu.Lock()
	n.rng.Shuffle(len(members), func(i, j int) {
		members[i], members[j] = members[j], members[i]
	})
	n.rngMu.Unlock()

	picked := make([]string, 0, k)
	for _, id := range members {
		if id == exclude {
			continue
		}
		picked = append(picked, id)
		if len(picked) == k {
			break
		}
	}

	return picked
}
