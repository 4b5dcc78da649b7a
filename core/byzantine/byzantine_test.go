package byzantine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/swarmesh/quorum/core/consensus"
	"github.com/swarmesh/quorum/core/transport"
)

func startCluster(t *testing.T, localID string, ids ...string) (*Cluster, *transport.Network, *consensus.Registry, chan string) {
	t.Helper()

	net := transport.New(transport.Options{})
	registry := consensus.NewRegistry()
	events := make(chan string, 32)
	c := NewCluster(localID, net, registry, func(event string, _ map[string]any) {
		select {
		case events <- event:
		default:
		}
	})
	for _, id := range ids {
		require.NoError(t, c.AddNode(id))
	}
	t.Cleanup(func() {
		c.Stop()
		net.Close()
	})

	return c, net, registry, events
}

func TestPropose_CommittedWithQuorum(t *testing.T) {
	c, _, _, _ := startCluster(t, "n1", "n1", "n2", "n3", "n4")
	require.Equal(t, "n1", c.Primary(), "lowest id is the primary of view 0")

	p, err := c.Propose([]byte(`{"op":"set","k":"x","v":1}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return p.Status() == consensus.StatusAccepted
	}, 5*time.Second, 20*time.Millisecond)

	res := p.Result(c.Eligible())
	require.NotNil(t, res)
	require.True(t, res.Approved)
	require.GreaterOrEqual(t, res.ApprovalRate, 0.6)
	require.Equal(t, []byte(`{"op":"set","k":"x","v":1}`), res.FinalValue)
}

func TestPropose_RejectedOnBackup(t *testing.T) {
	c, _, _, _ := startCluster(t, "n2", "n1", "n2", "n3", "n4")

	_, err := c.Propose([]byte("x"))
	require.ErrorIs(t, err, ErrNotPrimary)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestPrePrepare_BadDigestDropped(t *testing.T) {
	c, net, _, _ := startCluster(t, "n1", "n1", "n2", "n3", "n4")

	net.Send("n1", "n2", prePrepareMsg{
		View:       0,
		Sequence:   9,
		Digest:     "not-the-digest-of-the-value",
		ProposalID: "pbft-0-9-n1",
		ProposerID: "n1",
		Value:      []byte("v"),
	})
	time.Sleep(200 * time.Millisecond)

	n, ok := c.node("n2")
	require.True(t, ok)
	var s *slot
	n.do(func() { s = n.messageLog[viewSeq{View: 0, Sequence: 9}] })
	require.Nil(t, s, "a forged pre-prepare must leave no slot behind")
}

func TestPrePrepare_NonPrimaryDropped(t *testing.T) {
	c, net, _, _ := startCluster(t, "n1", "n1", "n2", "n3", "n4")

	value := []byte("impostor")
	net.Send("n3", "n2", prePrepareMsg{
		View:       0,
		Sequence:   9,
		Digest:     digestOf(value),
		ProposalID: "pbft-0-9-n3",
		ProposerID: "n3",
		Value:      value,
	})
	time.Sleep(200 * time.Millisecond)

	n, ok := c.node("n2")
	require.True(t, ok)
	var s *slot
	n.do(func() { s = n.messageLog[viewSeq{View: 0, Sequence: 9}] })
	require.Nil(t, s, "only the primary may pre-prepare")
}

func TestEquivocatingPrimary_SecondValueDropped(t *testing.T) {
	c, net, _, _ := startCluster(t, "n1", "n1", "n2", "n3", "n4")

	p, err := c.Propose([]byte("honest"))
	require.NoError(t, err)

	// same slot, different value: backups must stick with the first binding
	forged := []byte("forged")
	net.Broadcast("n1", prePrepareMsg{
		View:       0,
		Sequence:   1,
		Digest:     digestOf(forged),
		ProposalID: "pbft-0-1-n1",
		ProposerID: "n1",
		Value:      forged,
	})

	require.Eventually(t, func() bool {
		return p.Status() == consensus.StatusAccepted
	}, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, []byte("honest"), p.Result(c.Eligible()).FinalValue)
}

func TestMismatchedDigestPrepare_DoesNotBlockAgreement(t *testing.T) {
	c, net, _, _ := startCluster(t, "n1", "n1", "n2", "n3", "n4")

	p, err := c.Propose([]byte("honest"))
	require.NoError(t, err)

	// a faulty node floods prepares for the same slot with a wrong digest;
	// the slot is already bound, so every one of them must be dropped
	net.Broadcast("n2", voteMsg{
		View:       0,
		Sequence:   1,
		Digest:     "ffffffffffffffff",
		NodeID:     "n2",
		ProposalID: p.ID,
		Phase:      phasePrepare,
	})

	require.Eventually(t, func() bool {
		return p.Status() == consensus.StatusAccepted
	}, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, []byte("honest"), p.Result(c.Eligible()).FinalValue)
}

func TestViewChange_RotatesPrimary(t *testing.T) {
	c, _, _, events := startCluster(t, "n2", "n1", "n2", "n3", "n4")
	require.Equal(t, "n1", c.Primary())

	c.ViewChange()

	require.Equal(t, uint64(1), c.View())
	require.Equal(t, "n2", c.Primary(), "primary rotates in id order with the view number")
	require.True(t, c.IsPrimary())

	var seen []string
	for len(events) > 0 {
		seen = append(seen, <-events)
	}
	require.Contains(t, seen, "view.changed")
	require.Contains(t, seen, "leader.elected")

	// the new primary can now drive a proposal through
	p, err := c.Propose([]byte("after-view-change"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return p.Status() == consensus.StatusAccepted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestFaultToleranceBounds(t *testing.T) {
	c, _, _, _ := startCluster(t, "n1", "n1", "n2", "n3", "n4")

	require.Equal(t, 1, c.MaxFaultyNodes())
	require.True(t, c.CanTolerate(1))
	require.False(t, c.CanTolerate(2))

	require.NoError(t, c.AddNode("n5"))
	require.NoError(t, c.AddNode("n6"))
	require.NoError(t, c.AddNode("n7"))
	require.Equal(t, 2, c.MaxFaultyNodes(), "f grows with membership")
}

func TestPropose_SurvivesCrashedBackup(t *testing.T) {
	c, _, _, _ := startCluster(t, "n1", "n1", "n2", "n3", "n4")
	require.NoError(t, c.RemoveNode("n4"))

	p, err := c.Propose([]byte("v"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return p.Status() == consensus.StatusAccepted
	}, 5*time.Second, 20*time.Millisecond, "losing one of four backups must not block agreement")
}

func TestVote_DissentRejects(t *testing.T) {
	c, _, registry, _ := startCluster(t, "n1", "n1", "n2", "n3", "n4")

	p := consensus.NewProposal("pbft-0-1-n1", "n1", []byte("v"), 0)
	registry.Add(p)

	require.NoError(t, c.Vote(p.ID, consensus.Vote{VoterID: "n2", Approve: false}))
	require.Equal(t, consensus.StatusPending, p.Status())

	require.NoError(t, c.Vote(p.ID, consensus.Vote{VoterID: "n3", Approve: false}))
	require.Equal(t, consensus.StatusRejected, p.Status(), "two dissents out of four make the 2f+1 quorum impossible")
}

func TestVote_UnknownProposal(t *testing.T) {
	c, _, _, _ := startCluster(t, "n1", "n1", "n2", "n3", "n4")

	err := c.Vote("pbft-0-42-n1", consensus.Vote{VoterID: "n2", Approve: true})
	require.Error(t, err)
	require.Equal(t, codes.NotFound, status.Code(err))
}
