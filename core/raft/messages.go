package raft

// LogEntry is a replicated log record. Index is 1-based; index 0 means
// "before the log".
type LogEntry struct {
	Term       uint64
	Index      uint64
	ProposalID string
	Value      []byte
}

type requestVoteReq struct {
	Term         uint64
	CandidateID  string
	LastLogIndex uint64
	LastLogTerm  uint64
}

type requestVoteResp struct {
	Term    uint64
	VoterID string
	Granted bool
}

type appendEntriesReq struct {
	Term         uint64
	LeaderID     string
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []LogEntry
	LeaderCommit uint64
}

type appendEntriesResp struct {
	Term       uint64
	From       string
	Success    bool
	MatchIndex uint64
}
