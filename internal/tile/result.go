package tile

import (
	"errors"

	"qtsettings/internal/cycle"
	"qtsettings/internal/settings"
)

// Outcome classifies what a tap did.
type Outcome string

const (
	Changed      Outcome = "changed"
	Unchanged    Outcome = "unchanged"
	NoCandidates Outcome = "no_candidates"
	Denied       Outcome = "permission_denied"
	DevModeOff   Outcome = "developer_options_off"
	Failed       Outcome = "failed"
)

// Result is returned by a tap. Errors are already reported to the user
// through the notifier; Err is kept for callers that want the detail.
type Result struct {
	Outcome      Outcome      `json:"outcome"`
	From         string       `json:"from,omitempty"`
	To           string       `json:"to,omitempty"`
	RevertArmed  bool         `json:"revert_armed"`
	Presentation Presentation `json:"presentation"`
	Err          error        `json:"-"`
}

func outcomeFor(err error) Outcome {
	switch {
	case errors.Is(err, settings.ErrPermissionDenied):
		return Denied
	case errors.Is(err, cycle.ErrNoCandidates):
		return NoCandidates
	}
	return Failed
}
