package raft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/swarmesh/quorum/core/consensus"
	"github.com/swarmesh/quorum/core/transport"
	"github.com/swarmesh/quorum/mocks"
)

func startCluster(t *testing.T, ids ...string) (*Cluster, *transport.Network, *consensus.Registry) {
	t.Helper()

	net := transport.New(transport.Options{})
	registry := consensus.NewRegistry()
	c := NewCluster(ids[0], DefaultConfig(), net, registry, nil)
	for _, id := range ids {
		require.NoError(t, c.AddNode(id))
	}
	t.Cleanup(func() {
		c.Stop()
		net.Close()
	})

	return c, net, registry
}

func waitLeader(t *testing.T, c *Cluster) string {
	t.Helper()

	var leader string
	require.Eventually(t, func() bool {
		id, ok := c.LeaderID()
		if !ok || c.Role(id) != RoleLeader {
			return false
		}
		leader = id
		return c.LeaderCount() == 1
	}, 5*time.Second, 20*time.Millisecond, "cluster must elect exactly one leader")

	return leader
}

func proposeFrom(t *testing.T, c *Cluster, id string, value []byte) *consensus.Proposal {
	t.Helper()

	n, ok := c.node(id)
	require.True(t, ok)

	var (
		p   *consensus.Proposal
		err error
	)
	n.do(func() {
		p, err = n.propose(value)
	})
	require.NoError(t, err)
	require.NotNil(t, p)

	return p
}

func TestElection_SingleLeader(t *testing.T) {
	c, _, _ := startCluster(t, "n1", "n2", "n3", "n4", "n5")
	leader := waitLeader(t, c)
	require.NotEmpty(t, leader)
	require.GreaterOrEqual(t, c.Term(leader), uint64(1))
}

func TestPropose_CommittedByMajority(t *testing.T) {
	c, _, _ := startCluster(t, "n1", "n2", "n3", "n4", "n5")
	leader := waitLeader(t, c)

	p := proposeFrom(t, c, leader, []byte(`{"op":"set","k":"x","v":1}`))

	require.Eventually(t, func() bool {
		return p.Status() == consensus.StatusAccepted
	}, 5*time.Second, 20*time.Millisecond)

	res := p.Result(c.Eligible())
	require.NotNil(t, res)
	require.True(t, res.Approved)
	require.GreaterOrEqual(t, res.ApprovalRate, 0.6)
	require.Equal(t, []byte(`{"op":"set","k":"x","v":1}`), res.FinalValue)
}

func TestPropose_RejectedOnFollower(t *testing.T) {
	c, _, _ := startCluster(t, "n1", "n2", "n3")
	leader := waitLeader(t, c)

	follower := ""
	for _, id := range c.members() {
		if id != leader {
			follower = id
			break
		}
	}

	n, ok := c.node(follower)
	require.True(t, ok)

	var err error
	n.do(func() {
		_, err = n.propose([]byte("x"))
	})
	require.ErrorIs(t, err, ErrNotLeader)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestLeaderRemoval_TriggersReElection(t *testing.T) {
	c, _, _ := startCluster(t, "n1", "n2", "n3", "n4", "n5")
	oldLeader := waitLeader(t, c)
	oldTerm := c.Term(oldLeader)

	require.NoError(t, c.RemoveNode(oldLeader))

	var newLeader string
	require.Eventually(t, func() bool {
		id, ok := c.LeaderID()
		if !ok || id == oldLeader || c.Role(id) != RoleLeader {
			return false
		}
		newLeader = id
		return true
	}, 5*time.Second, 20*time.Millisecond, "survivors must elect a replacement")

	require.Greater(t, c.Term(newLeader), oldTerm, "a new leader implies a higher term")
}

func TestStaleTermMessagesIgnored(t *testing.T) {
	c, net, _ := startCluster(t, "n1", "n2", "n3")
	leader := waitLeader(t, c)
	term := c.Term(leader)

	net.Send("ghost", leader, appendEntriesReq{Term: 0, LeaderID: "ghost"})
	time.Sleep(200 * time.Millisecond)

	require.Equal(t, RoleLeader, c.Role(leader), "a stale leader claim must not depose the leader")
	require.Equal(t, term, c.Term(leader))
	id, _ := c.LeaderID()
	require.Equal(t, leader, id)
}

func TestVote_DisapprovalCanRejectEarly(t *testing.T) {
	c, _, registry := startCluster(t, "n1", "n2", "n3")

	p := consensus.NewProposal("raft-1-1-n1", "n1", []byte("v"), 1)
	registry.Add(p)

	require.NoError(t, c.Vote(p.ID, consensus.Vote{VoterID: "n2", Approve: false}))
	require.Equal(t, consensus.StatusPending, p.Status(), "one dissent out of three still leaves quorum reachable")

	require.NoError(t, c.Vote(p.ID, consensus.Vote{VoterID: "n3", Approve: false}))
	require.Equal(t, consensus.StatusRejected, p.Status(), "two dissents make majority impossible")
}

func TestVote_UnknownProposal(t *testing.T) {
	c, _, _ := startCluster(t, "n1")

	err := c.Vote("raft-9-9-nobody", consensus.Vote{VoterID: "n1", Approve: true})
	require.Error(t, err)
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestExpire(t *testing.T) {
	c, _, registry := startCluster(t, "n1", "n2", "n3")

	p := consensus.NewProposal("raft-1-1-n1", "n1", []byte("v"), 1)
	registry.Add(p)

	c.Expire(p.ID)
	require.Equal(t, consensus.StatusExpired, p.Status())
}

func TestAddNode_RecoversFromStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStateStore(ctrl)

	st.EXPECT().LoadHardState().Return(uint64(3), "n1", true, nil)
	st.EXPECT().WalkEntries(gomock.Any()).DoAndReturn(func(fn func(uint64, uint64, string, []byte) error) error {
		require.NoError(t, fn(1, 2, "raft-2-1-n1", []byte("a")))
		require.NoError(t, fn(2, 3, "raft-3-2-n1", []byte("b")))
		return nil
	})
	st.EXPECT().SaveHardState(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	st.EXPECT().AppendEntry(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	net := transport.New(transport.Options{})
	registry := consensus.NewRegistry()
	c := NewCluster("n1", DefaultConfig(), net, registry, nil)
	c.UseStore("n1", st)
	require.NoError(t, c.AddNode("n1"))
	t.Cleanup(func() {
		c.Stop()
		net.Close()
	})

	require.GreaterOrEqual(t, c.Term("n1"), uint64(3), "recovered term must not regress")

	// a single node elects itself and appends after the recovered log
	waitLeader(t, c)
	p := proposeFrom(t, c, "n1", []byte("c"))
	require.Contains(t, p.ID, "-3-n1", "new entries continue after the replayed log")
}

func TestLeaderElected_EventEmitted(t *testing.T) {
	net := transport.New(transport.Options{})
	registry := consensus.NewRegistry()

	events := make(chan string, 16)
	c := NewCluster("n1", DefaultConfig(), net, registry, func(event string, _ map[string]any) {
		events <- event
	})
	for _, id := range []string{"n1", "n2", "n3"} {
		require.NoError(t, c.AddNode(id))
	}
	t.Cleanup(func() {
		c.Stop()
		net.Close()
	})

	select {
	case event := <-events:
		require.Equal(t, "leader.elected", event)
	case <-time.After(5 * time.Second):
		t.Fatal("no leader.elected event")
	}
}
