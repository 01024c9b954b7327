package dispatch

import (
	"errors"
	"fmt"
	"testing"
)

func TestMessage(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"validation": {fmt.Errorf("%w: origin.lat is required", ErrValidation), "origin.lat is required"},
		"conflict":   {fmt.Errorf("%w: ride is no longer open", ErrConflict), "ride is no longer open"},
		"wrapped":    {fmt.Errorf("accept: %w", fmt.Errorf("%w: ride not found", ErrNotFound)), "ride not found"},
		"bare kind":  {ErrForbidden, "forbidden"},
		"internal":   {fmt.Errorf("%w: get ride: connection refused", ErrInternal), "internal server error"},
		"unknown":    {errors.New("boom"), "internal server error"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := Message(tc.err); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
