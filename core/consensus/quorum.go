package consensus

// Majority returns the size of a strict majority quorum for n members.
func Majority(n int) int {
	return n/2 + 1
}

// MaxFaulty returns the number of byzantine-faulty members a cluster of n
// can tolerate: f = (n-1)/3.
func MaxFaulty(n int) int {
	if n <= 0 {
		return 0
	}
	return (n - 1) / 3
}

// ByzantineQuorum returns the 2f+1 quorum required by the three-phase
// protocol for a cluster of n members.
func ByzantineQuorum(n int) int {
	return 2*MaxFaulty(n) + 1
}

// CanTolerate reports whether a cluster of n members survives f
// simultaneously faulty ones.
func CanTolerate(n, f int) bool {
	return f <= MaxFaulty(n)
}
