// Package scoring compares a learner's acoustic feature bundle with a
// native-speaker reference bundle and produces a 0-100 pronunciation score.
//
// Each of the five dimensions (pitch, formants, intensity, duration, voice
// quality) is scored independently from DTW distances between contours and
// Gaussian similarities between scalar statistics; the weighted sum of the
// five sub-scores is the overall score. Every constant involved lives in
// [Calibration].
//
// A [Scorer] holds no mutable state and is safe for concurrent use.
package scoring

import (
	"fmt"
	"math"

	"github.com/MrWong99/speakingbuddy/pkg/features"
)

// Scorer scores feature bundles against a fixed calibration.
type Scorer struct {
	cal Calibration
}

// NewScorer returns a Scorer for cal. The calibration is validated and
// copied; later changes to the caller's value have no effect.
func NewScorer(cal Calibration) (*Scorer, error) {
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("scoring: %w", err)
	}
	return &Scorer{cal: cal}, nil
}

// DefaultScorer returns a Scorer using [DefaultCalibration].
func DefaultScorer() *Scorer {
	return &Scorer{cal: DefaultCalibration()}
}

// Calibration returns a copy of the scorer's calibration.
func (s *Scorer) Calibration() Calibration { return s.cal }

// Score compares user against ref. Sub-scores and details are rounded for
// reporting; the overall score is computed from the unrounded sub-scores.
// Neither bundle is modified.
func (s *Scorer) Score(user, ref *features.Bundle) Result {
	if user == nil {
		user = &features.Bundle{}
	}
	if ref == nil {
		ref = &features.Bundle{}
	}

	pitch, pitchDetail := s.Pitch(user.Pitch, ref.Pitch)
	formants, formantDetail := s.Formants(user.Formants, ref.Formants)
	intensity, intensityDetail := s.Intensity(user.Intensity, ref.Intensity)
	duration, durationDetail := s.Duration(user.Duration, ref.Duration)
	voice, voiceDetail := s.VoiceQuality(user.VoiceQuality, ref.VoiceQuality)

	full := Breakdown{
		Pitch:        pitch,
		Formants:     formants,
		Intensity:    intensity,
		Duration:     duration,
		VoiceQuality: voice,
	}

	return Result{
		Overall: Aggregate(full, s.cal.Weights),
		Breakdown: Breakdown{
			Pitch:        round1(pitch),
			Formants:     round1(formants),
			Intensity:    round1(intensity),
			Duration:     round1(duration),
			VoiceQuality: round1(voice),
		},
		Details: Details{
			Pitch:        pitchDetail,
			Formants:     formantDetail,
			Intensity:    intensityDetail,
			Duration:     durationDetail,
			VoiceQuality: voiceDetail,
		},
	}
}

// Aggregate returns the weighted sum of the sub-scores in b, rounded to one
// decimal and clamped to [0, 100].
func Aggregate(b Breakdown, w Weights) float64 {
	var sum float64
	for _, d := range Dimensions {
		sum += w.Of(d) * b.Of(d)
	}
	return round1(clamp100(sum))
}

// Pitch scores two pitch tracks. If either track has no voiced values the
// neutral score is returned and the detail is marked insufficient.
func (s *Scorer) Pitch(user, ref features.Track) (float64, PitchDetail) {
	c := s.cal.Pitch
	if user.Empty() || ref.Empty() {
		return s.cal.NeutralScore, PitchDetail{Insufficient: true}
	}

	dist := DTW(user.Values, ref.Values)
	contour := Similarity(dist, c.ContourSigma)

	meanDiff := math.Abs(user.Mean - ref.Mean)
	mean := Similarity(meanDiff, c.MeanSigma)

	rng := Similarity(math.Abs(user.Range()-ref.Range()), c.RangeSigma)

	score := c.ContourWeight*contour + c.MeanWeight*mean + c.RangeWeight*rng
	return score, PitchDetail{
		ContourScore: round1(contour),
		MeanScore:    round1(mean),
		RangeScore:   round1(rng),
		DTWDistance:  round2(dist),
		MeanDiffHz:   round1(meanDiff),
	}
}

// Formants scores F1, F2 and F3 individually and combines them. A formant
// whose track is empty on either side is scored from the means.
func (s *Scorer) Formants(user, ref features.Formants) (float64, FormantDetail) {
	c := s.cal.Formants

	one := func(u, r features.Formant) (float64, FormantScore) {
		if !u.Empty() && !r.Empty() {
			v := Similarity(DTW(u.Values, r.Values), c.Sigma)
			return v, FormantScore{Score: round1(v)}
		}
		v := Similarity(math.Abs(u.Mean-r.Mean), c.Sigma)
		return v, FormantScore{Score: round1(v), MeanFallback: true}
	}

	f1, d1 := one(user.F1, ref.F1)
	f2, d2 := one(user.F2, ref.F2)
	f3, d3 := one(user.F3, ref.F3)

	score := c.F1Weight*f1 + c.F2Weight*f2 + c.F3Weight*f3
	return score, FormantDetail{F1: d1, F2: d2, F3: d3}
}

// Intensity scores two intensity tracks. The contour component falls back to
// the neutral score when either track is empty; the mean component is always
// computed.
func (s *Scorer) Intensity(user, ref features.Track) (float64, IntensityDetail) {
	c := s.cal.Intensity
	var detail IntensityDetail

	contour := s.cal.NeutralScore
	if !user.Empty() && !ref.Empty() {
		contour = Similarity(DTW(user.Values, ref.Values), c.ContourSigma)
	} else {
		detail.InsufficientContour = true
	}
	mean := Similarity(math.Abs(user.Mean-ref.Mean), c.MeanSigma)

	detail.ContourScore = round1(contour)
	detail.MeanScore = round1(mean)
	return c.ContourWeight*contour + c.MeanWeight*mean, detail
}

// Duration scores speaking pace and voicing. Without a positive reference
// duration the pace component is neutral and no ratio is reported.
func (s *Scorer) Duration(user, ref features.Duration) (float64, DurationDetail) {
	c := s.cal.Duration
	var detail DurationDetail

	pace := s.cal.NeutralScore
	if ref.TotalSeconds > 0 {
		ratio := user.TotalSeconds / ref.TotalSeconds
		pace = Similarity(math.Abs(1-ratio), c.PaceSigma)
		detail.Ratio = round2(ratio)
		detail.HasRatio = true
	}
	voiced := Similarity(math.Abs(user.VoicedFraction-ref.VoicedFraction), c.VoicedSigma)

	detail.PaceScore = round1(pace)
	detail.VoicedFractionScore = round1(voiced)
	return c.PaceWeight*pace + c.VoicedWeight*voiced, detail
}

// VoiceQuality scores jitter and shimmer differences.
func (s *Scorer) VoiceQuality(user, ref features.VoiceQuality) (float64, VoiceQualityDetail) {
	c := s.cal.VoiceQuality
	jitter := Similarity(math.Abs(user.Jitter-ref.Jitter), c.JitterSigma)
	shimmer := Similarity(math.Abs(user.Shimmer-ref.Shimmer), c.ShimmerSigma)
	return c.JitterWeight*jitter + c.ShimmerWeight*shimmer, VoiceQualityDetail{
		JitterScore:  round1(jitter),
		ShimmerScore: round1(shimmer),
	}
}

func clamp100(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
