// Package approval implements challenge resolution: converting a pending
// CHALLENGE decision into allow/deny/alert via an external channel, and
// installing approval leases on temporary grants.
package approval

// Status is the raw outcome an external channel resolves a challenge to,
// before runtime folding.
type Status string

const (
	StatusApproved          Status = "approved"
	StatusApprovedTemporary Status = "approved_temporary"
	StatusDenied            Status = "denied"
	StatusTimeout           Status = "timeout"
	StatusError             Status = "error"
)

// Outcome is a connector's raw resolution of one challenge.
type Outcome struct {
	Status Status
	TTLSec int // only meaningful for StatusApprovedTemporary
	Reason string
}
