package dispatch

import (
	"errors"
	"strings"
)

// Error kinds returned by Service. Callers match them with errors.Is; the
// wrapped message is safe to show to clients.
var (
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrInternal   = errors.New("internal error")
)

var kinds = []error{ErrValidation, ErrConflict, ErrNotFound, ErrForbidden}

// Message returns the client-facing text of err: the detail after the
// error kind, or a generic text for internal failures.
func Message(err error) string {
	for _, kind := range kinds {
		if !errors.Is(err, kind) {
			continue
		}
		if _, detail, ok := strings.Cut(err.Error(), kind.Error()+": "); ok {
			return detail
		}
		return err.Error()
	}
	return "internal server error"
}
