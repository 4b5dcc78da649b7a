package hooks

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/swarmesh/quorum/core/consensus"
)

type recordingHook struct {
	proposeCalls int
	voteCalls    int
	allow        bool
}

func (h *recordingHook) OnPropose([]byte) bool {
	h.proposeCalls++
	return h.allow
}

func (h *recordingHook) OnVote(string, consensus.Vote) bool {
	h.voteCalls++
	return h.allow
}

func TestRegistry_Count(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, 0, r.Count())

	r.Register(NewDefaultHook())
	r.Register(&recordingHook{allow: true})
	require.Equal(t, 2, r.Count())
}

func TestExecutePropose_AllAllow(t *testing.T) {
	r := NewRegistry()
	first := &recordingHook{allow: true}
	second := &recordingHook{allow: true}
	r.Register(first)
	r.Register(second)

	require.True(t, r.ExecutePropose([]byte("v")))
	require.Equal(t, 1, first.proposeCalls)
	require.Equal(t, 1, second.proposeCalls)
}

func TestExecutePropose_VetoShortCircuits(t *testing.T) {
	r := NewRegistry()
	veto := &recordingHook{allow: false}
	after := &recordingHook{allow: true}
	r.Register(veto)
	r.Register(after)

	require.False(t, r.ExecutePropose([]byte("v")))
	require.Equal(t, 0, after.proposeCalls, "hooks after a veto must not run")
}

func TestExecuteVote(t *testing.T) {
	r := NewRegistry()
	hook := &recordingHook{allow: true}
	r.Register(hook)

	require.True(t, r.ExecuteVote("p1", consensus.Vote{VoterID: "n1", Approve: true}))
	require.Equal(t, 1, hook.voteCalls)

	hook.allow = false
	require.False(t, r.ExecuteVote("p1", consensus.Vote{VoterID: "n1", Approve: true}))
}

func TestDefaultHook_AllowsEverything(t *testing.T) {
	h := NewDefaultHook()
	require.True(t, h.OnPropose([]byte("v")))
	require.True(t, h.OnVote("p1", consensus.Vote{VoterID: "n1"}))
}
