// Package feedback turns a pronunciation score into coaching text for the
// learner.
//
// Rules run in a fixed order (pitch, formants, intensity, duration, voice
// quality) and each may add an improvement (something concretely wrong) or a
// suggestion (something to practise). The overall score selects a one-line
// summary. Output depends only on the score result and the two bundles, so
// identical inputs always yield identical text.
package feedback

import (
	"fmt"
	"strings"

	"github.com/MrWong99/speakingbuddy/internal/scoring"
	"github.com/MrWong99/speakingbuddy/pkg/features"
)

// Result is the coaching text for one assessment.
type Result struct {
	OverallText  string   `json:"overall_text"`
	Improvements []string `json:"improvements"`
	Suggestions  []string `json:"suggestions"`
}

const (
	msgMelody      = "The pitch contour (melody) of your speech differs from the reference. Try to match the rise and fall pattern of the native speaker."
	msgMouthMore   = "Try opening your mouth a bit more."
	msgMouthLess   = "Try opening your mouth a bit less."
	msgTongueFront = "Move your tongue slightly forward so the vowel sounds more 'front'."
	msgTongueBack  = "Move your tongue slightly back so the vowel sounds more 'back'."
	msgTooSoft     = "You're speaking too softly. Try to project your voice more."
	msgTooLoud     = "You're speaking too loudly. Try a more moderate volume."
	msgStress      = "Your volume pattern differs from the reference. Try to match the stress pattern of the native speaker."
	msgTooFast     = "You're speaking too fast. Try to slow down a bit."
	msgTooSlow     = "You're speaking too slowly. Try to be a bit more fluid."
	msgPace        = "Adjust your speaking pace to better match the native speaker."
	msgJitter      = "Your voice sounds somewhat unstable. Try to maintain a steady, relaxed tone."
	msgShimmer     = "Your voice volume fluctuates too much. Try to keep a consistent volume throughout."

	msgExcellent = "Excellent pronunciation! Very close to native."
	msgGood      = "Good pronunciation with minor differences."
	msgFair      = "Fair attempt, some aspects need work."
	msgNeedsWork = "Your pronunciation needs improvement in several areas."
	msgPractise  = "Keep practising! Focus on the suggestions below."

	msgKeepGoing   = "Keep up the great work!"
	msgListenAgain = "Listen to the reference audio again and try to imitate it closely."
)

// formantAspects names the articulatory aspect each formant reflects.
var formantAspects = [3]string{"mouth openness", "tongue position", "lip rounding"}

// Synthesizer produces feedback against a fixed set of thresholds. It holds
// no mutable state and is safe for concurrent use.
type Synthesizer struct {
	th Thresholds
}

// NewSynthesizer returns a Synthesizer for th after validating it.
func NewSynthesizer(th Thresholds) (*Synthesizer, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	return &Synthesizer{th: th}, nil
}

// Synthesize is shorthand for a Synthesizer with [DefaultThresholds].
func Synthesize(res scoring.Result, user, ref *features.Bundle) Result {
	return (&Synthesizer{th: DefaultThresholds()}).Synthesize(res, user, ref)
}

// Synthesize builds the feedback for res. user and ref are the bundles res
// was computed from; they are only read.
func (s *Synthesizer) Synthesize(res scoring.Result, user, ref *features.Bundle) Result {
	if user == nil {
		user = &features.Bundle{}
	}
	if ref == nil {
		ref = &features.Bundle{}
	}

	out := Result{
		Improvements: []string{},
		Suggestions:  []string{},
	}
	s.pitch(&out, res, user, ref)
	s.formants(&out, res, user, ref)
	s.intensity(&out, res, user, ref)
	s.duration(&out, res)
	s.voiceQuality(&out, res)

	out.OverallText = s.band(res.Overall)

	if len(out.Improvements) == 0 && len(out.Suggestions) == 0 {
		if res.Overall >= s.th.Encourage {
			out.Suggestions = append(out.Suggestions, msgKeepGoing)
		} else {
			out.Suggestions = append(out.Suggestions, msgListenAgain)
		}
	}
	return out
}

func (s *Synthesizer) pitch(out *Result, res scoring.Result, user, ref *features.Bundle) {
	if res.Breakdown.Pitch >= s.th.DimensionWeak {
		return
	}
	d := res.Details.Pitch
	if d.Insufficient {
		return
	}
	if d.MeanDiffHz > s.th.PitchMeanDiffHz {
		// A learner below the reference is "too low" and should go higher.
		state, direction := "too high", "lower"
		if user.Pitch.Mean < ref.Pitch.Mean {
			state, direction = "too low", "higher"
		}
		out.Improvements = append(out.Improvements, fmt.Sprintf(
			"Your pitch is %s by about %.0f Hz. Try speaking slightly %s.", state, d.MeanDiffHz, direction))
	}
	if d.ContourScore < s.th.ComponentWeak {
		out.Suggestions = append(out.Suggestions, msgMelody)
	}
}

func (s *Synthesizer) formants(out *Result, res scoring.Result, user, ref *features.Bundle) {
	if res.Breakdown.Formants >= s.th.DimensionWeak {
		return
	}
	d := res.Details.Formants
	scores := [3]float64{d.F1.Score, d.F2.Score, d.F3.Score}

	var weak []string
	for i, v := range scores {
		if v < s.th.ComponentWeak {
			weak = append(weak, formantAspects[i])
		}
	}
	if len(weak) > 0 {
		out.Improvements = append(out.Improvements,
			"Your vowel quality differs. Focus on: "+strings.Join(weak, ", ")+".")
	}

	if scores[0] < s.th.ComponentWeak {
		u, r := user.Formants.F1.Mean, ref.Formants.F1.Mean
		if u != 0 && r != 0 {
			if u < r {
				out.Suggestions = append(out.Suggestions, msgMouthMore)
			} else {
				out.Suggestions = append(out.Suggestions, msgMouthLess)
			}
		}
	}
	if scores[1] < s.th.ComponentWeak {
		u, r := user.Formants.F2.Mean, ref.Formants.F2.Mean
		if u != 0 && r != 0 {
			if u < r {
				out.Suggestions = append(out.Suggestions, msgTongueFront)
			} else {
				out.Suggestions = append(out.Suggestions, msgTongueBack)
			}
		}
	}
}

func (s *Synthesizer) intensity(out *Result, res scoring.Result, user, ref *features.Bundle) {
	if res.Breakdown.Intensity >= s.th.DimensionWeak {
		return
	}
	u, r := user.Intensity.Mean, ref.Intensity.Mean
	if u == 0 || r == 0 {
		return
	}
	switch {
	case u < r-s.th.LoudnessMarginDB:
		out.Improvements = append(out.Improvements, msgTooSoft)
	case u > r+s.th.LoudnessMarginDB:
		out.Improvements = append(out.Improvements, msgTooLoud)
	default:
		out.Suggestions = append(out.Suggestions, msgStress)
	}
}

func (s *Synthesizer) duration(out *Result, res scoring.Result) {
	if res.Breakdown.Duration >= s.th.DimensionWeak {
		return
	}
	ratio := 1.0
	if res.Details.Duration.HasRatio {
		ratio = res.Details.Duration.Ratio
	}
	switch {
	case ratio < s.th.TooFastRatio:
		out.Improvements = append(out.Improvements, msgTooFast)
	case ratio > s.th.TooSlowRatio:
		out.Improvements = append(out.Improvements, msgTooSlow)
	default:
		out.Suggestions = append(out.Suggestions, msgPace)
	}
}

func (s *Synthesizer) voiceQuality(out *Result, res scoring.Result) {
	if res.Breakdown.VoiceQuality >= s.th.VoiceQualityWeak {
		return
	}
	d := res.Details.VoiceQuality
	if d.JitterScore < s.th.VoiceComponentWeak {
		out.Suggestions = append(out.Suggestions, msgJitter)
	}
	if d.ShimmerScore < s.th.VoiceComponentWeak {
		out.Suggestions = append(out.Suggestions, msgShimmer)
	}
}

func (s *Synthesizer) band(overall float64) string {
	switch {
	case overall >= s.th.Excellent:
		return msgExcellent
	case overall >= s.th.Good:
		return msgGood
	case overall >= s.th.Fair:
		return msgFair
	case overall >= s.th.NeedsWork:
		return msgNeedsWork
	default:
		return msgPractise
	}
}
