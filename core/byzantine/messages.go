package byzantine

// viewSeq identifies one agreement slot. All phase bookkeeping is keyed
// by it.
type viewSeq struct {
	View     uint64
	Sequence uint64
}

// prePrepareMsg is originated by the primary only.
type prePrepareMsg struct {
	View       uint64
	Sequence   uint64
	Digest     string
	ProposalID string
	ProposerID string
	Value      []byte
}

type phase string

const (
	phasePrepare phase = "prepare"
	phaseCommit  phase = "commit"
)

// voteMsg carries a prepare or commit vote for a (view, sequence) slot.
type voteMsg struct {
	View       uint64
	Sequence   uint64
	Digest     string
	NodeID     string
	ProposalID string
	Phase      phase
}
