package config

import (
	"flag"
	"strings"
)

// Config carries the runtime configuration of a consensus node.
type Config struct {
	NodeID    string
	Algorithm string
	Peers     []string

	ProposalTimeout uint64 // ms

	// raft timing
	ElectionTimeoutMin uint64 // ms
	ElectionTimeoutMax uint64 // ms
	HeartbeatInterval  uint64 // ms

	// gossip tuning
	GossipInterval       uint64 // ms
	Fanout               int
	MaxHops              int
	ConvergenceThreshold float64
	ApprovalThreshold    float64

	// durability; empty paths keep the engine volatile-memory-only
	WalDir string
	DBPath string
}

// Default returns the reference configuration for library use.
func Default() *Config {
	return &Config{
		NodeID:               "node-0",
		Algorithm:            "raft",
		ProposalTimeout:      5000,
		ElectionTimeoutMin:   150,
		ElectionTimeoutMax:   300,
		HeartbeatInterval:    50,
		GossipInterval:       100,
		Fanout:               3,
		MaxHops:              10,
		ConvergenceThreshold: 0.9,
		ApprovalThreshold:    0.66,
	}
}

// Get creates configuration from command-line arguments.
func Get() *Config {
	nodeID := flag.String("node", "node-0", "local node id")
	algorithm := flag.String("algorithm", "raft", "consensus algorithm (raft, byzantine, gossip; paxos is an alias of raft)")
	peers := flag.String("peers", "", "comma-separated peer node ids")
	timeout := flag.Uint64("timeout", 5000, "ms, await-consensus timeout after which a proposal expires")
	electionMin := flag.Uint64("election-min", 150, "ms, lower bound of the randomized election timeout")
	electionMax := flag.Uint64("election-max", 300, "ms, upper bound of the randomized election timeout")
	heartbeat := flag.Uint64("heartbeat", 50, "ms, leader heartbeat interval")
	gossipInterval := flag.Uint64("gossip-interval", 100, "ms, gossip round period")
	fanout := flag.Int("fanout", 3, "gossip forward targets per round")
	maxHops := flag.Int("max-hops", 10, "gossip message hop limit")
	convergence := flag.Float64("convergence", 0.9, "gossip participation required before deciding")
	approval := flag.Float64("approval", 0.66, "gossip approval ratio required to accept")
	walDir := flag.String("waldir", "", "write-ahead log directory (empty disables durability)")
	dbPath := flag.String("dbpath", "", "database path on filesystem (empty disables durability)")
	flag.Parse()

	var peersArray []string
	if *peers != "" {
		for _, p := range strings.Split(*peers, ",") {
			if p = strings.TrimSpace(p); p != "" {
				peersArray = append(peersArray, p)
			}
		}
	}

	return &Config{
		NodeID:               *nodeID,
		Algorithm:            *algorithm,
		Peers:                peersArray,
		ProposalTimeout:      *timeout,
		ElectionTimeoutMin:   *electionMin,
		ElectionTimeoutMax:   *electionMax,
		HeartbeatInterval:    *heartbeat,
		GossipInterval:       *gossipInterval,
		Fanout:               *fanout,
		MaxHops:              *maxHops,
		ConvergenceThreshold: *convergence,
		ApprovalThreshold:    *approval,
		WalDir:               *walDir,
		DBPath:               *dbPath,
	}
}
