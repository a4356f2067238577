package scoring

import (
	"fmt"
	"math"

	"github.com/katalvlaran/lvlath/dtw"
)

// dtwOptions selects the plain recurrence: no Sakoe-Chiba band, no slope
// penalty and no alignment path.
var dtwOptions = dtw.DTWOptions{
	Window:       -1,
	SlopePenalty: 0,
	ReturnPath:   false,
}

// DTW returns the dynamic time warping distance between a and b, normalised
// by the length of the longer sequence.
//
// The local cost is the absolute difference of two samples and the
// recurrence admits the three classic steps (insertion, deletion, match)
// without any band constraint. If either sequence is empty the distance is 0.
func DTW(a, b []float64) float64 {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return 0
	}
	opts := dtwOptions
	dist, _, err := dtw.DTW(a, b, &opts)
	if err != nil {
		// Only reachable with invalid options.
		panic(fmt.Sprintf("scoring: dtw: %v", err))
	}
	return dist / float64(max(n, m))
}

// Similarity maps a non-negative difference to a score in [0, 100] with a
// Gaussian kernel: 100·exp(-0.5·(diff/sigma)²). A zero difference scores 100
// and the score falls monotonically as diff grows.
//
// A non-positive sigma degenerates to a step function: 100 for diff == 0,
// otherwise 0. [Calibration.Validate] rejects such sigmas.
func Similarity(diff, sigma float64) float64 {
	if !(sigma > 0) {
		if diff == 0 {
			return 100
		}
		return 0
	}
	z := diff / sigma
	return 100 * math.Exp(-0.5*z*z)
}

// round1 rounds x to one decimal place, halves away from zero.
func round1(x float64) float64 { return math.Round(x*10) / 10 }

// round2 rounds x to two decimal places, halves away from zero.
func round2(x float64) float64 { return math.Round(x*100) / 100 }
