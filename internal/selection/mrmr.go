package selection

// rankMRMR orders features by minimum-redundancy maximum-relevance using
// the difference criterion: relevance I(f;y) minus the mean I(f;s) over
// the features s already chosen. The first pick is the most relevant
// feature. Ties go to the lower column index. At most k indices are
// returned.
func rankMRMR(bins [][]int, y []int, k int) []int {
	n := len(bins)
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}

	relevance := make([]float64, n)
	for i := range bins {
		relevance[i] = mutualInformation(bins[i], y)
	}

	chosen := make([]bool, n)
	redundancy := make([]float64, n) // running sum of I(f;s) over chosen s
	order := make([]int, 0, k)

	for len(order) < k {
		best := -1
		bestScore := 0.0
		for i := 0; i < n; i++ {
			if chosen[i] {
				continue
			}
			score := relevance[i]
			if len(order) > 0 {
				score -= redundancy[i] / float64(len(order))
			}
			if best < 0 || score > bestScore {
				best, bestScore = i, score
			}
		}

		chosen[best] = true
		order = append(order, best)
		for i := 0; i < n; i++ {
			if !chosen[i] {
				redundancy[i] += mutualInformation(bins[i], bins[best])
			}
		}
	}
	return order
}
