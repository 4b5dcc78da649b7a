// Package hooks provides an extensible hook system for the consensus
// engine. Hooks allow custom validation, metrics collection, and business
// logic to run before a value is proposed or a vote is recorded, without
// modifying protocol logic. Any hook returning false vetoes the call.
package hooks

import (
	log "github.com/sirupsen/logrus"

	"github.com/swarmesh/quorum/core/consensus"
)

// Hook intercepts the engine's write paths.
type Hook interface {
	OnPropose(value []byte) bool
	OnVote(proposalID string, v consensus.Vote) bool
}

// DefaultHook provides the default logging behavior.
type DefaultHook struct{}

func NewDefaultHook() *DefaultHook {
	return &DefaultHook{}
}

func (h *DefaultHook) OnPropose(value []byte) bool {
	log.Debugf("propose hook OK (%d bytes)", len(value))
	return true
}

func (h *DefaultHook) OnVote(proposalID string, v consensus.Vote) bool {
	log.Debugf("vote hook on %s by %s is OK", proposalID, v.VoterID)
	return true
}

// Registry manages a collection of hooks.
type Registry struct {
	hooks []Hook
}

func NewRegistry() *Registry {
	return &Registry{hooks: make([]Hook, 0)}
}

// Register adds a new hook to the registry.
func (r *Registry) Register(hook Hook) {
	r.hooks = append(r.hooks, hook)
}

// ExecutePropose runs all propose hooks; false if any vetoes.
func (r *Registry) ExecutePropose(value []byte) bool {
	for _, hook := range r.hooks {
		if !hook.OnPropose(value) {
			return false
		}
	}
	return true
}

// ExecuteVote runs all vote hooks; false if any vetoes.
func (r *Registry) ExecuteVote(proposalID string, v consensus.Vote) bool {
	for _, hook := range r.hooks {
		if !hook.OnVote(proposalID, v) {
			return false
		}
	}
	return true
}

// Count returns the number of registered hooks.
func (r *Registry) Count() int {
	return len(r.hooks)
}
