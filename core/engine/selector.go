package engine

// Requirements describes what a caller needs from the agreement layer.
type Requirements struct {
	// FaultTolerance is "crash" or "byzantine".
	FaultTolerance string
	// Consistency is "strong" or "eventual".
	Consistency string
	// NodeCount is the expected membership size.
	NodeCount int
	// LatencySensitive marks workloads that prefer fewer round trips.
	LatencySensitive bool
}

// largeScaleCutoff is the membership size beyond which epidemic
// dissemination beats quorum round trips.
const largeScaleCutoff = 50

// SelectAlgorithm is a pure decision table over the requirement
// dimensions; it is total and deterministic, with no side effects.
// Byzantine fault tolerance dominates every other requirement.
func SelectAlgorithm(r Requirements) string {
	if r.FaultTolerance == "byzantine" {
		return AlgorithmByzantine
	}
	if r.Consistency == "eventual" && r.NodeCount >= largeScaleCutoff {
		return AlgorithmGossip
	}
	return AlgorithmRaft
}
