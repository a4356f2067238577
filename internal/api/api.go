// Package api exposes the pronunciation check over HTTP.
//
//	POST /api/pronunciation/check
//	  multipart/form-data:
//	    word_id  reference word ID (or "word", matched by spelling/sound)
//	    audio    the learner recording (wav, mp3, webm, ogg, m4a)
//
// A successful response carries the overall score, the five sub-scores,
// the feedback text and the detailed diagnostics:
//
//	{"id": "…", "word_id": "haus", "score": 82.4, "feedback": "…",
//	 "breakdown": {"pitch": 91.2, …}, "improvements": […], "suggestions": […]}
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrWong99/speakingbuddy/internal/assess"
	"github.com/MrWong99/speakingbuddy/internal/observe"
	"github.com/MrWong99/speakingbuddy/internal/reference"
	"github.com/MrWong99/speakingbuddy/internal/scoring"
)

const (
	defaultMaxUploadBytes = 10 << 20

	// multipartMemory is the part of a form kept in memory before the rest
	// spills to temporary files.
	multipartMemory = 8 << 20
)

// Assessor scores a learner upload. [*assess.Assessor] implements it.
type Assessor interface {
	Assess(ctx context.Context, req assess.Request) (*assess.Outcome, error)
}

// Resolver finds the reference for a word. [*reference.Resolver] implements it.
type Resolver interface {
	Resolve(ctx context.Context, wordID string) (assess.Reference, error)
	ResolveWord(ctx context.Context, word string) (assess.Reference, error)
}

// assessorRef lets the assessor be swapped while requests are in flight.
type assessorRef struct{ Assessor }

// Handler serves the pronunciation API. Safe for concurrent use.
type Handler struct {
	assessor atomic.Pointer[assessorRef]
	resolver Resolver

	maxUploadBytes int64
	requestTimeout time.Duration
}

// Option configures a [Handler].
type Option func(*Handler)

// WithMaxUploadBytes caps the request body size. Larger uploads get 413.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithRequestTimeout bounds the work done for one request. Zero disables it.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) { h.requestTimeout = d }
}

// New returns a Handler.
func New(a Assessor, r Resolver, opts ...Option) (*Handler, error) {
	if a == nil || r == nil {
		return nil, errors.New("api: assessor and resolver are required")
	}
	h := &Handler{resolver: r, maxUploadBytes: defaultMaxUploadBytes}
	h.assessor.Store(&assessorRef{a})
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// SetAssessor replaces the assessor used by subsequent requests, for
// example after a calibration reload. Requests already running keep the
// previous one.
func (h *Handler) SetAssessor(a Assessor) {
	if a != nil {
		h.assessor.Store(&assessorRef{a})
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/pronunciation/check", h.Check)
}

// CheckResponse is the JSON body of a successful check.
type CheckResponse struct {
	ID           string            `json:"id"`
	WordID       string            `json:"word_id"`
	Word         string            `json:"word,omitempty"`
	Score        float64           `json:"score"`
	Feedback     string            `json:"feedback"`
	Breakdown    scoring.Breakdown `json:"breakdown"`
	Improvements []string          `json:"improvements"`
	Suggestions  []string          `json:"suggestions"`
	Details      scoring.Details   `json:"details"`

	// Warnings names dimensions scored neutrally for lack of data.
	Warnings []scoring.Dimension `json:"warnings,omitempty"`

	SpeechMs int64 `json:"speech_ms"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Check handles POST /api/pronunciation/check.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "expected a multipart/form-data body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	wordID, word := r.FormValue("word_id"), r.FormValue("word")
	if wordID == "" && word == "" {
		writeError(w, http.StatusBadRequest, "word_id or word is required")
		return
	}
	ctx = observe.WithWordID(ctx, wordID)

	data, hint, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var ref assess.Reference
	if wordID != "" {
		ref, err = h.resolver.Resolve(ctx, wordID)
	} else {
		ref, err = h.resolver.ResolveWord(ctx, word)
	}
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	out, err := h.assessor.Load().Assess(ctx, assess.Request{
		Audio:      data,
		FormatHint: hint,
		Reference:  ref,
	})
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, CheckResponse{
		ID:           out.ID.String(),
		WordID:       out.WordID,
		Word:         ref.Word,
		Score:        out.Score.Overall,
		Feedback:     out.Feedback.OverallText,
		Breakdown:    out.Score.Breakdown,
		Improvements: out.Feedback.Improvements,
		Suggestions:  out.Feedback.Suggestions,
		Details:      out.Score.Details,
		Warnings:     out.Warnings,
		SpeechMs:     out.SpeechDuration.Milliseconds(),
	})
}

// readUpload returns the bytes of the "audio" part and the best format hint
// available: the file name, else the part's content type.
func readUpload(r *http.Request) ([]byte, string, error) {
	f, hdr, err := r.FormFile("audio")
	if err != nil {
		return nil, "", errors.New("audio file is required")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("read audio: %w", err)
	}
	hint := strings.TrimSpace(hdr.Filename)
	if hint == "" {
		hint = hdr.Header.Get("Content-Type")
	}
	return data, hint, nil
}

// fail maps err to a status code and writes it.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, err error) {
	status, msg := classify(err)
	log := observe.Logger(ctx)
	if status >= http.StatusInternalServerError {
		log.Error("pronunciation check failed", "status", status, "err", err)
	} else {
		log.Info("pronunciation check rejected", "status", status, "err", err)
	}
	writeError(w, status, msg)
}

// classify returns the HTTP status for err and a message safe to show the
// client. Server-side failures do not leak their cause.
func classify(err error) (int, string) {
	var (
		de *assess.DecodeError
		ee *assess.ExtractionError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "assessment timed out"
	case errors.Is(err, context.Canceled):
		// The client went away; the status is only seen in logs.
		return 499, "request cancelled"
	case errors.Is(err, assess.ErrEmptyAudio):
		return http.StatusBadRequest, "audio file is empty"
	case errors.As(err, &de):
		return http.StatusBadRequest, "audio could not be decoded; upload wav, mp3, webm, ogg or m4a"
	case errors.Is(err, reference.ErrNotFound):
		return http.StatusNotFound, "unknown word"
	case errors.Is(err, assess.ErrMissingReference):
		return http.StatusConflict, "no reference recording is available for this word yet"
	case errors.As(err, &ee) && ee.Side == assess.SideUser:
		return http.StatusUnprocessableEntity, "the recording could not be analysed; record the word again clearly"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("api: write response", "err", err)
	}
}
