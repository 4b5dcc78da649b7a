package main

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/swarmesh/quorum/config"
	"github.com/swarmesh/quorum/core/engine"
	"github.com/swarmesh/quorum/core/gossip"
	"github.com/swarmesh/quorum/core/raft"
	"github.com/swarmesh/quorum/io/store"
)

func main() {
	conf := config.Get()

	engineCfg := engine.Config{
		Algorithm:       conf.Algorithm,
		NodeID:          conf.NodeID,
		Peers:           conf.Peers,
		ProposalTimeout: time.Duration(conf.ProposalTimeout) * time.Millisecond,
		Raft: raft.Config{
			ElectionTimeoutMin: time.Duration(conf.ElectionTimeoutMin) * time.Millisecond,
			ElectionTimeoutMax: time.Duration(conf.ElectionTimeoutMax) * time.Millisecond,
			HeartbeatInterval:  time.Duration(conf.HeartbeatInterval) * time.Millisecond,
		},
		Gossip: gossip.Config{
			Interval:             time.Duration(conf.GossipInterval) * time.Millisecond,
			Fanout:               conf.Fanout,
			MaxHops:              conf.MaxHops,
			ConvergenceThreshold: conf.ConvergenceThreshold,
			ApprovalThreshold:    conf.ApprovalThreshold,
		},
	}

	if conf.WalDir != "" && conf.DBPath != "" {
		st, err := store.New(conf.WalDir, conf.DBPath)
		if err != nil {
			log.Fatalf("failed to open state store: %v", err)
		}
		defer st.Close()
		engineCfg.Store = st
	}

	eng, err := engine.New(engineCfg)
	if err != nil {
		log.Fatalf("failed to build consensus engine: %v", err)
	}
	if err := eng.Initialize(); err != nil {
		log.Fatalf("failed to initialize consensus engine: %v", err)
	}
	defer eng.Shutdown()

	// give the cluster a moment to elect (raft) or wire up (gossip)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := eng.LeaderID(); ok || eng.Algorithm() == engine.AlgorithmGossip {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if leader, ok := eng.LeaderID(); ok && !eng.IsLeader() {
		log.Infof("node %s is a follower; current leader is %s", conf.NodeID, leader)
		return
	}

	p, err := eng.Propose([]byte(`{"op":"set","k":"x","v":1}`))
	if err != nil {
		log.Fatalf("propose failed: %v", err)
	}

	res, err := eng.AwaitConsensus(p.ID, 0)
	if err != nil {
		log.Fatalf("await failed: %v", err)
	}

	log.Infof("proposal %s: approved=%v approval=%.2f participation=%.2f rounds=%d in %s",
		res.ProposalID, res.Approved, res.ApprovalRate, res.ParticipationRate, res.Rounds, res.Duration)

	stats := eng.Stats()
	log.Infof("stats: total=%d pending=%d accepted=%d rejected=%d expired=%d",
		stats.Total, stats.Pending, stats.Accepted, stats.Rejected, stats.Expired)
}
