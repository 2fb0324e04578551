package scrape

import (
	"errors"
	"fmt"
)

// NotInteractableError reports a control that was found but hidden or
// disabled at the moment we needed to use it. Distinct from not-found:
// filling an occluded control would silently do nothing.
type NotInteractableError struct {
	Control string
}

func (e *NotInteractableError) Error() string {
	return fmt.Sprintf("control not interactable: %s is present but hidden or disabled", e.Control)
}

// LoginRejectedError reports a known failure phrase on the post-submit page.
type LoginRejectedError struct {
	Marker string
}

func (e *LoginRejectedError) Error() string {
	return fmt.Sprintf("login rejected: page contains failure marker %q", e.Marker)
}

// AmbiguousLoginError reports that neither a success nor a failure marker
// appeared within the bounded wait. Fail-closed: treated as failure.
type AmbiguousLoginError struct {
	URL string
}

func (e *AmbiguousLoginError) Error() string {
	return fmt.Sprintf("ambiguous login outcome: no success or failure marker at %s", e.URL)
}

// TableNotFoundError reports that no table candidate met the acceptance
// threshold.
type TableNotFoundError struct {
	BestScore  int
	MinScore   int
	Candidates int
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("results table not found: best score %d < min %d across %d candidates",
		e.BestScore, e.MinScore, e.Candidates)
}

// ErrStallDetected marks pagination that stopped advancing. It terminates
// extraction gracefully with the rows collected so far; it is a
// partial-success condition, not a fatal error.
var ErrStallDetected = errors.New("pagination stalled: consecutive pages yielded identical leading rows")
