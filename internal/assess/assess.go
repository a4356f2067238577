// Package assess runs the pronunciation assessment pipeline: normalize the
// learner upload, extract features from it (and from the reference when no
// precomputed bundle exists), score the two bundles and synthesize feedback.
//
// An [Assessor] holds no per-request state and is safe for concurrent use.
// The two extractions run concurrently; if either fails the other is
// cancelled and no partial result is returned.
package assess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/speakingbuddy/internal/feedback"
	"github.com/MrWong99/speakingbuddy/internal/observe"
	"github.com/MrWong99/speakingbuddy/internal/scoring"
	"github.com/MrWong99/speakingbuddy/pkg/audio"
	"github.com/MrWong99/speakingbuddy/pkg/features"
	"github.com/MrWong99/speakingbuddy/pkg/provider/extractor"
)

// Normalizer turns raw upload bytes into a canonical speech signal.
// [*preprocess.Normalizer] is the production implementation.
type Normalizer interface {
	Normalize(ctx context.Context, raw []byte, formatHint string) (audio.Signal, error)
}

// Reference is the native-speaker side of an assessment. Bundle takes
// precedence; Signal is only used when Bundle is nil.
type Reference struct {
	WordID string
	Word   string

	// Bundle holds precomputed reference features.
	Bundle *features.Bundle

	// Signal is the canonical reference recording.
	Signal audio.Signal
}

// HasData reports whether r carries features or audio to extract them from.
func (r Reference) HasData() bool {
	return r.Bundle != nil || r.Signal.Len() > 0
}

// Request is a single assessment.
type Request struct {
	// Audio is the raw learner upload.
	Audio []byte

	// FormatHint is the upload's file name, extension or MIME type. It is
	// only consulted when the container cannot be sniffed.
	FormatHint string

	Reference Reference
}

// Outcome is the result of a successful assessment.
type Outcome struct {
	ID        uuid.UUID
	WordID    string
	Score     scoring.Result
	Feedback  feedback.Result
	User      *features.Bundle
	Reference *features.Bundle

	// Warnings lists dimensions that fell back to neutral scores because of
	// missing data.
	Warnings []scoring.Dimension

	// SpeechDuration is the length of the normalized learner speech.
	SpeechDuration time.Duration
}

// Assessor runs assessments.
type Assessor struct {
	normalizer Normalizer
	extractor  extractor.Provider
	scorer     *scoring.Scorer
	feedback   *feedback.Synthesizer
	metrics    *observe.Metrics
}

// Option is a functional option for [New].
type Option func(*Assessor)

// WithScorer replaces the default scorer.
func WithScorer(s *scoring.Scorer) Option {
	return func(a *Assessor) { a.scorer = s }
}

// WithFeedback replaces the default feedback synthesizer.
func WithFeedback(s *feedback.Synthesizer) Option {
	return func(a *Assessor) { a.feedback = s }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assessor) { a.metrics = m }
}

// New returns an Assessor. n and ex are required.
func New(n Normalizer, ex extractor.Provider, opts ...Option) (*Assessor, error) {
	if n == nil {
		return nil, errors.New("assess: normalizer is required")
	}
	if ex == nil {
		return nil, errors.New("assess: extractor is required")
	}
	a := &Assessor{normalizer: n, extractor: ex}
	for _, o := range opts {
		o(a)
	}
	if a.scorer == nil {
		a.scorer = scoring.DefaultScorer()
	}
	if a.feedback == nil {
		fb, err := feedback.NewSynthesizer(feedback.DefaultThresholds())
		if err != nil {
			return nil, fmt.Errorf("assess: %w", err)
		}
		a.feedback = fb
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a, nil
}

// Assess scores the learner upload in req against its reference.
//
// Errors are one of [ErrEmptyAudio], [*DecodeError], [ErrMissingReference],
// [*ExtractionError] or a context error, possibly wrapped.
func (a *Assessor) Assess(ctx context.Context, req Request) (out *Outcome, err error) {
	start := time.Now()
	a.metrics.ActiveAssessments.Add(ctx, 1)
	defer a.metrics.ActiveAssessments.Add(ctx, -1)

	ctx, span := observe.StartSpan(ctx, "assess",
		trace.WithAttributes(observe.WordIDKey.String(req.Reference.WordID)))
	defer observe.EndSpan(span, &err)

	defer func() {
		a.metrics.RecordAssessment(ctx, ErrorKind(err))
		a.metrics.AssessDuration.Record(ctx, time.Since(start).Seconds())
	}()

	ref := req.Reference
	if !ref.HasData() {
		return nil, fmt.Errorf("%w for %q", ErrMissingReference, ref.label())
	}

	sig, err := a.normalize(ctx, req)
	if err != nil {
		return nil, err
	}

	user, refBundle, err := a.extractBoth(ctx, sig, ref)
	if err != nil {
		return nil, err
	}

	_, scoreSpan := observe.StartSpan(ctx, "assess.score")
	res := a.scorer.Score(user, refBundle)
	fb := a.feedback.Synthesize(res, user, refBundle)
	scoreSpan.SetAttributes(attribute.Float64("overall_score", res.Overall))
	scoreSpan.End()

	out = &Outcome{
		ID:             uuid.New(),
		WordID:         ref.WordID,
		Score:          res,
		Feedback:       fb,
		User:           user,
		Reference:      refBundle,
		Warnings:       res.InsufficientData(),
		SpeechDuration: sig.Duration(),
	}
	a.report(ctx, out)
	return out, nil
}

func (a *Assessor) normalize(ctx context.Context, req Request) (audio.Signal, error) {
	ctx, span := observe.StartSpan(ctx, "assess.normalize")
	defer span.End()

	start := time.Now()
	sig, err := a.normalizer.Normalize(ctx, req.Audio, req.FormatHint)
	a.metrics.NormalizeDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return audio.Signal{}, err
	}
	span.SetAttributes(attribute.Int("speech_ms", sig.LengthMs()))
	return sig, nil
}

// extractBoth extracts the learner bundle and, when needed, the reference
// bundle concurrently. The first failure cancels the other extraction.
func (a *Assessor) extractBoth(ctx context.Context, sig audio.Signal, ref Reference) (user, refBundle *features.Bundle, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b, err := a.extract(gctx, SideUser, sig)
		user = b
		return err
	})

	if ref.Bundle != nil {
		refBundle = ref.Bundle
	} else {
		g.Go(func() error {
			b, err := a.extract(gctx, SideReference, ref.Signal)
			refBundle = b
			return err
		})
	}

	if err := g.Wait(); err != nil {
		// Prefer the caller's cancellation over the knock-on error of the
		// cancelled sibling.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, err
	}
	return user, refBundle, nil
}

func (a *Assessor) extract(ctx context.Context, side Side, sig audio.Signal) (b *features.Bundle, err error) {
	ctx, span := observe.StartSpan(ctx, "assess.extract",
		trace.WithAttributes(attribute.String("side", string(side))))
	defer observe.EndSpan(span, &err)

	start := time.Now()
	b, err = a.extractor.Extract(ctx, sig)
	a.metrics.ExtractDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("side", string(side))))

	switch {
	case err != nil:
		return nil, &ExtractionError{Side: side, Err: err}
	case b == nil:
		return nil, &ExtractionError{Side: side, Err: errors.New("extractor returned no features")}
	}
	if verr := b.Validate(); verr != nil {
		return nil, &ExtractionError{Side: side, Err: verr}
	}
	return b, nil
}

func (a *Assessor) report(ctx context.Context, out *Outcome) {
	scores := make(map[string]float64, len(scoring.Dimensions))
	for _, d := range scoring.Dimensions {
		scores[string(d)] = out.Score.Breakdown.Of(d)
	}
	a.metrics.RecordScore(ctx, out.Score.Overall, scores)

	log := observe.Logger(ctx)
	for _, d := range out.Warnings {
		a.metrics.RecordInsufficientData(ctx, string(d))
		log.Debug("assess: insufficient data, neutral score used",
			"word_id", out.WordID, "dimension", d)
	}
	log.Info("assessment complete",
		"id", out.ID,
		"word_id", out.WordID,
		"overall", out.Score.Overall,
		"speech_ms", out.SpeechDuration.Milliseconds(),
	)
}

func (r Reference) label() string {
	if r.Word != "" {
		return r.Word
	}
	return r.WordID
}
