// Package rank holds the head-to-head count comparison shared by the media providers.
package rank

// Tied is the leader name reported when both sides are equal.
const Tied = "Tied"

// Advantage returns the leader, the absolute difference and the percentage lead of one count over the other.
// The percentage is 100 when the trailing side has nothing.
func Advantage(nameA, nameB string, a, b int) (leader string, diff int, pct float64) {
	switch {
	case a > b:
		leader, diff = nameA, a-b
	case b > a:
		leader, diff, b = nameB, b-a, a
	default:
		return Tied, 0, 0
	}
	if b == 0 {
		return leader, diff, 100
	}
	return leader, diff, float64(diff) / float64(b) * 100
}
