package domain

// Status is the closed vocabulary of gateway payment statuses. Raw gateway
// strings are parsed through ParseStatus; anything outside the vocabulary is
// coerced to StatusError and must never be treated as success.
type Status string

const (
	StatusCreated    Status = "created"
	StatusProcessing Status = "processing"
	StatusError      Status = "error"
	StatusFiltered   Status = "filtered"
	StatusDeclined   Status = "declined"
	StatusApproved   Status = "approved"
	StatusSuccess    Status = "success"
)

// ParseStatus maps a raw gateway status string into the closed vocabulary.
// Unrecognized values come back as StatusError with ok=false so the caller
// can tell a genuine gateway error apart from a coerced unknown.
func ParseStatus(raw string) (status Status, ok bool) {
	switch Status(raw) {
	case StatusCreated, StatusProcessing, StatusError,
		StatusFiltered, StatusDeclined, StatusApproved, StatusSuccess:
		return Status(raw), true
	default:
		return StatusError, false
	}
}
