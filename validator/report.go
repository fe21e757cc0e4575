package validator

import "time"

// Report is the outcome of one validation run.
type Report struct {
	TotalRows     int       `json:"total_rows"`
	ValidRows     int       `json:"valid_rows"`
	CorrectedRows int       `json:"corrected_rows"`
	RejectedRows  int       `json:"invalid_rows"`
	Errors        []string  `json:"errors"`
	Warnings      []string  `json:"warnings"`
	CheckedAt     time.Time `json:"validation_timestamp"`
}

// Valid reports whether the run recorded no errors.
func (r Report) Valid() bool {
	return len(r.Errors) == 0
}

// AddError records an error and marks the report invalid.
func (r *Report) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// AddWarning records a non-fatal finding.
func (r *Report) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Clone returns a copy that shares no slices with r.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	out := *r
	out.Errors = append([]string(nil), r.Errors...)
	out.Warnings = append([]string(nil), r.Warnings...)
	return &out
}
