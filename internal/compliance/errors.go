package compliance

import "errors"

var (
	// ErrInvalidDate marks an issue or expiry date that cannot be parsed.
	ErrInvalidDate = errors.New("invalid_date")
	// ErrMissingTemplate marks a position without a competency template.
	// It is only ever reported as a warning.
	ErrMissingTemplate = errors.New("missing_template")
)

const (
	WarnInvalidDate     = "invalid_date"
	WarnMissingTemplate = "missing_template"
)

// Warning is a data-quality finding that did not stop an evaluation pass.
type Warning struct {
	Code            string `json:"code" enum:"invalid_date,missing_template"`
	PersonID        string `json:"person_id,omitempty"`
	CertificationID string `json:"certification_id,omitempty"`
	PositionID      string `json:"position_id,omitempty"`
	Message         string `json:"message"`
}
