package ctdf

import "time"

type ClaimResult string

const (
	ClaimResultOK       ClaimResult = "OK"
	ClaimResultConflict ClaimResult = "CONFLICT"
	ClaimResultExpired  ClaimResult = "EXPIRED"
	ClaimResultNotFound ClaimResult = "NOT_FOUND"
)

// Won is true only for a claim that moved the passenger to CLAIMED
func (r ClaimResult) Won() bool {
	return r == ClaimResultOK
}

// ClaimToken records a successful claim, it is never persisted on its own
type ClaimToken struct {
	VehicleRef string    `groups:"basic" json:"vehicle_id"`
	RecordRef  string    `groups:"basic" json:"record_id"`
	ClaimedAt  time.Time `groups:"basic" json:"claimed_at"`
}
