package assess

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/speakingbuddy/internal/preprocess"
)

// ErrEmptyAudio is returned when the learner upload has no bytes.
var ErrEmptyAudio = preprocess.ErrEmptyAudio

// DecodeError reports a learner upload that could not be decoded. Use
// errors.As to retrieve it.
type DecodeError = preprocess.DecodeError

// ErrMissingReference is returned, wrapped with the word, when a reference
// has neither precomputed features nor audio to extract them from.
var ErrMissingReference = errors.New("assess: missing reference data")

// Side identifies which recording an extraction belonged to.
type Side string

const (
	SideUser      Side = "user"
	SideReference Side = "reference"
)

// ExtractionError reports a feature extraction failure and which side it
// happened on. A user-side failure usually means the recording is unusable;
// a reference-side failure is a server problem.
type ExtractionError struct {
	Side Side
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("assess: extract %s features: %v", e.Side, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ErrorKind classifies err into a short label for metrics and logs.
func ErrorKind(err error) string {
	var (
		de *DecodeError
		ee *ExtractionError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrEmptyAudio):
		return "empty_audio"
	case errors.As(err, &de):
		return "decode"
	case errors.Is(err, ErrMissingReference):
		return "missing_reference"
	case errors.As(err, &ee):
		return "extraction_" + string(ee.Side)
	default:
		return "internal"
	}
}
