package selection

import (
	"math"
	"sort"
)

// DefaultBins is the number of quantile bins used to discretise features
const DefaultBins = 10

// discretize maps continuous values to quantile bins. Equal values always
// land in the same bin.
func discretize(data []float64, numBins int) []int {
	if len(data) == 0 {
		return []int{}
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	thresholds := make([]float64, 0, numBins-1)
	for b := 1; b < numBins; b++ {
		thresholds = append(thresholds, sorted[(len(sorted)*b)/numBins])
	}

	bins := make([]int, len(data))
	for i, val := range data {
		bin := 0
		for b, threshold := range thresholds {
			if val >= threshold {
				bin = b + 1
			} else {
				break
			}
		}
		bins[i] = bin
	}
	return bins
}

// classes maps a label vector to class indices
func classes(y []float64) []int {
	ids := make(map[float64]int)
	out := make([]int, len(y))
	for i, v := range y {
		id, ok := ids[v]
		if !ok {
			id = len(ids)
			ids[v] = id
		}
		out[i] = id
	}
	return out
}

// entropy is the Shannon entropy of a discrete variable, in bits
func entropy(bins []int) float64 {
	if len(bins) == 0 {
		return 0
	}
	counts := make(map[int]int)
	for _, b := range bins {
		counts[b]++
	}
	return entropyOf(counts, len(bins))
}

// jointEntropy is H(X,Y)
func jointEntropy(xBins, yBins []int) float64 {
	if len(xBins) != len(yBins) || len(xBins) == 0 {
		return 0
	}
	type pair struct{ x, y int }
	counts := make(map[pair]int)
	for i := range xBins {
		counts[pair{xBins[i], yBins[i]}]++
	}
	return entropyOf(counts, len(xBins))
}

func entropyOf[K comparable](counts map[K]int, total int) float64 {
	h := 0.0
	n := float64(total)
	for _, count := range counts {
		if count > 0 {
			p := float64(count) / n
			h -= p * math.Log2(p)
		}
	}
	return h
}

// mutualInformation is I(X;Y) = H(X) + H(Y) - H(X,Y), floored at zero
func mutualInformation(xBins, yBins []int) float64 {
	return math.Max(0, entropy(xBins)+entropy(yBins)-jointEntropy(xBins, yBins))
}
