package raft

import (
	"fmt"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/swarmesh/quorum/core/consensus"
	"github.com/swarmesh/quorum/core/transport"
)

const (
	RoleFollower  = "follower"
	RoleCandidate = "candidate"
	RoleLeader    = "leader"
)

// hardState is what must survive a restart when durability is enabled.
type hardState struct {
	CurrentTerm uint64
	VotedFor    string
}

// node is one Raft participant. All fields below the channels are owned by
// the run loop; nothing else may touch them. External calls are delivered
// as closures on cmdc.
type node struct {
	id      string
	cluster *Cluster
	rng     *rand.Rand

	inbox <-chan transport.Message
	cmdc  chan func()
	stopc chan struct{}
	donec chan struct{}

	role        string
	currentTerm uint64
	votedFor    string
	leaderID    string
	logEntries  []LogEntry
	commitIndex uint64
	lastApplied uint64

	votesReceived map[string]struct{}
	nextIndex     map[string]uint64
	matchIndex    map[string]uint64

	electionTimer *time.Timer
	heartbeatc    <-chan time.Time
	heartbeat     *time.Ticker
}

func newNode(id string, c *Cluster, inbox <-chan transport.Message) *node {
	return &node{
		id:      id,
		cluster: c,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(len(id)))),
		inbox:   inbox,
		cmdc:    make(chan func()),
		stopc:   make(chan struct{}),
		donec:   make(chan struct{}),
		role:    RoleFollower,
	}
}

// do runs fn on the node's loop and waits for it. Safe to call from any
// goroutine except the loop itself.
func (n *node) do(fn func()) {
	done := make(chan struct{})
	select {
	case n.cmdc <- func() { fn(); close(done) }:
		<-done
	case <-n.donec:
	}
}

func (n *node) stop() {
	close(n.stopc)
	<-n.donec
}

func (n *node) run() {
	defer close(n.donec)

	n.electionTimer = time.NewTimer(n.electionTimeout())
	defer n.electionTimer.Stop()

	for {
		select {
		case <-n.stopc:
			if n.heartbeat != nil {
				n.heartbeat.Stop()
			}
			return
		case fn := <-n.cmdc:
			fn()
		case msg := <-n.inbox:
			n.handle(msg)
		case <-n.electionTimer.C:
			n.startElection()
		case <-n.heartbeatc:
			n.broadcastAppend()
		}
	}
}

func (n *node) electionTimeout() time.Duration {
	cfg := n.cluster.cfg
	spread := cfg.ElectionTimeoutMax - cfg.ElectionTimeoutMin
	return cfg.ElectionTimeoutMin + time.Duration(n.rng.Int63n(int64(spread)+1))
}

func (n *node) resetElectionTimer() {
	if !n.electionTimer.Stop() {
		select {
		case <-n.electionTimer.C:
		default:
		}
	}
	n.electionTimer.Reset(n.electionTimeout())
}

func (n *node) lastLog() (index, term uint64) {
	if len(n.logEntries) == 0 {
		return 0, 0
	}
	last := n.logEntries[len(n.logEntries)-1]
	return last.Index, last.Term
}

func (n *node) entryAt(index uint64) (LogEntry, bool) {
	if index == 0 || index > uint64(len(n.logEntries)) {
		return LogEntry{}, false
	}
	return n.logEntries[index-1], true
}

// stepDown reverts to follower and adopts the observed term.
func (n *node) stepDown(term uint64) {
	if term > n.currentTerm {
		n.currentTerm = term
		n.votedFor = ""
		n.persistHardState()
	}
	if n.role != RoleFollower {
		log.Debugf("raft: %s steps down to follower at term %d", n.id, n.currentTerm)
	}
	n.role = RoleFollower
	n.votesReceived = nil
	if n.heartbeat != nil {
		n.heartbeat.Stop()
		n.heartbeat = nil
		n.heartbeatc = nil
	}
	n.resetElectionTimer()
}

func (n *node) startElection() {
	if n.role == RoleLeader {
		return
	}

	n.role = RoleCandidate
	n.currentTerm++
	n.votedFor = n.id
	n.persistHardState()
	n.votesReceived = map[string]struct{}{n.id: {}}
	n.resetElectionTimer()

	log.Debugf("raft: %s starts election for term %d", n.id, n.currentTerm)

	if len(n.votesReceived) >= consensus.Majority(n.cluster.memberCount()) {
		n.becomeLeader()
		return
	}

	lastIndex, lastTerm := n.lastLog()
	n.cluster.network.Broadcast(n.id, requestVoteReq{
		Term:         n.currentTerm,
		CandidateID:  n.id,
		LastLogIndex: lastIndex,
		LastLogTerm:  lastTerm,
	})
}

// becomeLeader switches roles, starts heartbeats and stops the election
// timer before any other event gets processed.
func (n *node) becomeLeader() {
	n.role = RoleLeader
	n.leaderID = n.id
	n.votesReceived = nil
	n.electionTimer.Stop()

	n.nextIndex = make(map[string]uint64)
	n.matchIndex = make(map[string]uint64)
	lastIndex, _ := n.lastLog()
	for _, peer := range n.cluster.members() {
		if peer == n.id {
			continue
		}
		n.nextIndex[peer] = lastIndex + 1
		n.matchIndex[peer] = 0
	}

	n.heartbeat = time.NewTicker(n.cluster.cfg.HeartbeatInterval)
	n.heartbeatc = n.heartbeat.C

	log.Infof("raft: %s elected leader for term %d", n.id, n.currentTerm)
	n.cluster.setLeader(n.id, n.currentTerm)

	n.broadcastAppend()
}

func (n *node) handle(msg transport.Message) {
	switch m := msg.Payload.(type) {
	case requestVoteReq:
		n.onRequestVote(m)
	case requestVoteResp:
		n.onRequestVoteResp(m)
	case appendEntriesReq:
		n.onAppendEntries(m)
	case appendEntriesResp:
		n.onAppendEntriesResp(m)
	default:
		log.Debugf("raft: %s ignores unknown message %T", n.id, msg.Payload)
	}
}

func (n *node) onRequestVote(req requestVoteReq) {
	if req.Term > n.currentTerm {
		n.stepDown(req.Term)
	}

	granted := false
	if req.Term >= n.currentTerm &&
		(n.votedFor == "" || n.votedFor == req.CandidateID) &&
		n.candidateUpToDate(req) {
		granted = true
		n.votedFor = req.CandidateID
		n.persistHardState()
		n.resetElectionTimer()
	}

	n.cluster.network.Send(n.id, req.CandidateID, requestVoteResp{
		Term:    n.currentTerm,
		VoterID: n.id,
		Granted: granted,
	})
}

// candidateUpToDate compares logs by last entry term, then index.
func (n *node) candidateUpToDate(req requestVoteReq) bool {
	lastIndex, lastTerm := n.lastLog()
	if req.LastLogTerm != lastTerm {
		return req.LastLogTerm > lastTerm
	}
	return req.LastLogIndex >= lastIndex
}

func (n *node) onRequestVoteResp(resp requestVoteResp) {
	if resp.Term > n.currentTerm {
		n.stepDown(resp.Term)
		return
	}
	if n.role != RoleCandidate || !resp.Granted || resp.Term != n.currentTerm {
		return
	}

	n.votesReceived[resp.VoterID] = struct{}{}
	if len(n.votesReceived) >= consensus.Majority(n.cluster.memberCount()) {
		n.becomeLeader()
	}
}

func (n *node) onAppendEntries(req appendEntriesReq) {
	if req.Term < n.currentTerm {
		n.cluster.network.Send(n.id, req.LeaderID, appendEntriesResp{
			Term: n.currentTerm, From: n.id, Success: false,
		})
		return
	}

	if req.Term > n.currentTerm || n.role != RoleFollower {
		n.stepDown(req.Term)
	}
	n.leaderID = req.LeaderID
	n.resetElectionTimer()

	// log consistency check
	if req.PrevLogIndex > 0 {
		prev, ok := n.entryAt(req.PrevLogIndex)
		if !ok || prev.Term != req.PrevLogTerm {
			lastIndex, _ := n.lastLog()
			n.cluster.network.Send(n.id, req.LeaderID, appendEntriesResp{
				Term: n.currentTerm, From: n.id, Success: false, MatchIndex: lastIndex,
			})
			return
		}
	}

	for _, e := range req.Entries {
		if existing, ok := n.entryAt(e.Index); ok {
			if existing.Term == e.Term {
				continue
			}
			// conflict: drop the tail
			n.logEntries = n.logEntries[:e.Index-1]
		}
		n.logEntries = append(n.logEntries, e)
		n.persistEntry(e)
	}

	lastIndex, _ := n.lastLog()
	if req.LeaderCommit > n.commitIndex {
		n.commitIndex = min(req.LeaderCommit, lastIndex)
		n.lastApplied = n.commitIndex
	}

	n.cluster.network.Send(n.id, req.LeaderID, appendEntriesResp{
		Term: n.currentTerm, From: n.id, Success: true, MatchIndex: lastIndex,
	})
}

func (n *node) onAppendEntriesResp(resp appendEntriesResp) {
	if resp.Term > n.currentTerm {
		n.stepDown(resp.Term)
		return
	}
	if n.role != RoleLeader || resp.Term != n.currentTerm {
		return
	}

	if !resp.Success {
		next := n.nextIndex[resp.From]
		if resp.MatchIndex > 0 && resp.MatchIndex < next {
			n.nextIndex[resp.From] = resp.MatchIndex + 1
		} else if next > 1 {
			n.nextIndex[resp.From] = next - 1
		}
		n.sendAppend(resp.From)
		return
	}

	prev := n.matchIndex[resp.From]
	if resp.MatchIndex > prev {
		n.matchIndex[resp.From] = resp.MatchIndex
		n.nextIndex[resp.From] = resp.MatchIndex + 1

		// every newly acknowledged entry counts as an approving vote from
		// that follower on the entry's proposal
		for idx := prev + 1; idx <= resp.MatchIndex; idx++ {
			entry, ok := n.entryAt(idx)
			if !ok || entry.ProposalID == "" {
				continue
			}
			if p, found := n.cluster.registry.Get(entry.ProposalID); found {
				p.RecordVote(consensus.Vote{VoterID: resp.From, Approve: true, Confidence: 1})
			}
		}
		n.advanceCommit()
	}
}

// advanceCommit moves commitIndex to the highest index of the current term
// replicated on a strict majority, then finalizes the proposals behind the
// newly committed entries. This is the single authoritative definition of
// "committed": replication acks and approving votes are the same tally.
func (n *node) advanceCommit() {
	lastIndex, _ := n.lastLog()
	total := n.cluster.memberCount()

	for idx := lastIndex; idx > n.commitIndex; idx-- {
		entry, ok := n.entryAt(idx)
		if !ok || entry.Term != n.currentTerm {
			continue
		}

		acks := 1 // self
		for _, match := range n.matchIndex {
			if match >= idx {
				acks++
			}
		}
		if acks < consensus.Majority(total) {
			continue
		}

		for committed := n.commitIndex + 1; committed <= idx; committed++ {
			if e, found := n.entryAt(committed); found && e.ProposalID != "" {
				n.cluster.finalize(e.ProposalID, consensus.StatusAccepted)
			}
		}
		n.commitIndex = idx
		n.lastApplied = idx
		break
	}
}

// broadcastAppend sends append entries (possibly empty heartbeats) to all
// peers and counts a round on every pending proposal this leader owns.
func (n *node) broadcastAppend() {
	for _, peer := range n.cluster.members() {
		if peer == n.id {
			continue
		}
		n.sendAppend(peer)
	}
	for _, p := range n.cluster.registry.Active() {
		if p.ProposerID == n.id {
			p.AddRound()
		}
	}
}

func (n *node) sendAppend(peer string) {
	next := n.nextIndex[peer]
	if next == 0 {
		next = 1
	}

	var prevIndex, prevTerm uint64
	if next > 1 {
		if prev, ok := n.entryAt(next - 1); ok {
			prevIndex, prevTerm = prev.Index, prev.Term
		}
	}

	var entries []LogEntry
	if uint64(len(n.logEntries)) >= next {
		entries = append(entries, n.logEntries[next-1:]...)
	}

	n.cluster.network.Send(n.id, peer, appendEntriesReq{
		Term:         n.currentTerm,
		LeaderID:     n.id,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: n.commitIndex,
	})
}

// propose runs on the loop; only the leader appends.
func (n *node) propose(value []byte) (*consensus.Proposal, error) {
	if n.role != RoleLeader {
		return nil, ErrNotLeader
	}

	lastIndex, _ := n.lastLog()
	entry := LogEntry{
		Term:       n.currentTerm,
		Index:      lastIndex + 1,
		ProposalID: fmt.Sprintf("raft-%d-%d-%s", n.currentTerm, lastIndex+1, n.id),
		Value:      value,
	}

	p := consensus.NewProposal(entry.ProposalID, n.id, value, n.currentTerm)
	p.RecordVote(consensus.Vote{VoterID: n.id, Approve: true, Confidence: 1})
	n.cluster.registry.Add(p)

	n.logEntries = append(n.logEntries, entry)
	n.persistEntry(entry)

	log.Infof("raft: %s proposes %s at term %d", n.id, entry.ProposalID, n.currentTerm)

	if consensus.Majority(n.cluster.memberCount()) == 1 {
		n.advanceCommit()
	}
	n.broadcastAppend()

	return p, nil
}

func (n *node) persistHardState() {
	if st := n.cluster.stateStore(n.id); st != nil {
		if err := st.SaveHardState(n.currentTerm, n.votedFor); err != nil {
			log.Errorf("raft: %s failed to persist hard state: %v", n.id, err)
		}
	}
}

func (n *node) persistEntry(e LogEntry) {
	if st := n.cluster.stateStore(n.id); st != nil {
		if err := st.AppendEntry(e.Index, e.Term, e.ProposalID, e.Value); err != nil {
			log.Errorf("raft: %s failed to persist log entry %d: %v", n.id, e.Index, err)
		}
	}
}
