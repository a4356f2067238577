package reference

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate checks e for required fields and a well-formed bundle.
func (e Entry) Validate() error {
	var errs []error
	if strings.TrimSpace(e.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if strings.TrimSpace(e.Word) == "" {
		errs = append(errs, errors.New("word is required"))
	}
	if e.AudioFile != "" && !filepath.IsLocal(e.AudioFile) {
		errs = append(errs, fmt.Errorf("audio_file %q must be a relative path inside the audio directory", e.AudioFile))
	}
	if e.Features != nil {
		if err := e.Features.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("reference: entry %q: %w", e.ID, err)
	}
	return nil
}
