package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordVote_IdempotentPerVoter(t *testing.T) {
	p := NewProposal("raft-1-1-n1", "n1", []byte("v"), 1)

	require.True(t, p.RecordVote(Vote{VoterID: "n2", Approve: true, Confidence: 0.8}))
	require.True(t, p.RecordVote(Vote{VoterID: "n2", Approve: true, Confidence: 0.8}))

	_, total := p.VoteCounts()
	require.Equal(t, 1, total, "re-voting must overwrite, never duplicate")
}

func TestRecordVote_OverwriteChangesPosition(t *testing.T) {
	p := NewProposal("raft-1-1-n1", "n1", []byte("v"), 1)

	p.RecordVote(Vote{VoterID: "n2", Approve: true})
	p.RecordVote(Vote{VoterID: "n2", Approve: false})

	approving, total := p.VoteCounts()
	require.Equal(t, 1, total)
	require.Equal(t, 0, approving)
}

func TestRecordVote_ClampsConfidence(t *testing.T) {
	p := NewProposal("raft-1-1-n1", "n1", []byte("v"), 1)

	p.RecordVote(Vote{VoterID: "n2", Approve: true, Confidence: 3.5})
	p.RecordVote(Vote{VoterID: "n3", Approve: true, Confidence: -1})

	votes := p.Votes()
	require.Equal(t, 1.0, votes["n2"].Confidence)
	require.Equal(t, 0.0, votes["n3"].Confidence)
}

func TestRecordVote_NoOpOnTerminal(t *testing.T) {
	p := NewProposal("raft-1-1-n1", "n1", []byte("v"), 1)
	p.RecordVote(Vote{VoterID: "n1", Approve: true})
	require.True(t, p.Finalize(StatusAccepted))

	require.False(t, p.RecordVote(Vote{VoterID: "n2", Approve: true}))
	_, total := p.VoteCounts()
	require.Equal(t, 1, total)
}

func TestFinalize_TerminalStatusNeverReverts(t *testing.T) {
	p := NewProposal("raft-1-1-n1", "n1", []byte("v"), 1)

	require.True(t, p.Finalize(StatusRejected))
	require.False(t, p.Finalize(StatusAccepted))
	require.False(t, p.Finalize(StatusExpired))
	require.Equal(t, StatusRejected, p.Status())
}

func TestFinalize_RefusesNonTerminalTarget(t *testing.T) {
	p := NewProposal("raft-1-1-n1", "n1", []byte("v"), 1)
	require.False(t, p.Finalize(StatusPending))
	require.Equal(t, StatusPending, p.Status())
}

func TestDone_ClosedExactlyOnFinalize(t *testing.T) {
	p := NewProposal("raft-1-1-n1", "n1", []byte("v"), 1)

	select {
	case <-p.Done():
		t.Fatal("done must stay open while pending")
	default:
	}

	p.Finalize(StatusAccepted)

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("done must be closed after finalize")
	}
}

func TestResult_Rates(t *testing.T) {
	p := NewProposal("raft-2-7-n1", "n1", []byte("payload"), 2)
	p.RecordVote(Vote{VoterID: "n1", Approve: true})
	p.RecordVote(Vote{VoterID: "n2", Approve: true})
	p.RecordVote(Vote{VoterID: "n3", Approve: true})
	p.RecordVote(Vote{VoterID: "n4", Approve: false})

	require.Nil(t, p.Result(5), "no result while pending")

	p.Finalize(StatusAccepted)
	res := p.Result(5)
	require.NotNil(t, res)
	require.True(t, res.Approved)
	require.InDelta(t, 0.75, res.ApprovalRate, 1e-9)
	require.InDelta(t, 0.8, res.ParticipationRate, 1e-9)
	require.Equal(t, []byte("payload"), res.FinalValue)
}

func TestRegistry_StatsAndActive(t *testing.T) {
	r := NewRegistry()

	accepted := NewProposal("p1", "n1", nil, 1)
	pending := NewProposal("p2", "n1", nil, 1)
	expired := NewProposal("p3", "n1", nil, 1)
	r.Add(accepted)
	r.Add(pending)
	r.Add(expired)
	r.Add(accepted) // duplicate add is a no-op

	accepted.Finalize(StatusAccepted)
	expired.Finalize(StatusExpired)

	stats := r.Stats()
	require.Equal(t, Stats{Total: 3, Pending: 1, Accepted: 1, Expired: 1}, stats)

	active := r.Active()
	require.Len(t, active, 1)
	require.Equal(t, "p2", active[0].ID)
}
