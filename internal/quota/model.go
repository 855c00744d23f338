package quota

import (
	"time"

	"github.com/google/uuid"
)

// State is a user's current allowance: the authoritative "now", as opposed
// to the usage ledger's historical trail.
type State struct {
	UserID    uuid.UUID `json:"user_id"`
	Tier      Tier      `json:"tier"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Decision is the outcome of a gate check. Exhaustion is an expected,
// frequent outcome, so it is a value here and never an error.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	Tier      Tier      `json:"tier"`
}
