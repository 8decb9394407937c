package license

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusSuspended Status = "suspended"
)

// Failure and warning codes propagated verbatim to booking callers.
const (
	FailNoLicense             = "NO_LICENSE"
	FailInsufficient          = "LICENSE_INSUFFICIENT"
	FailSuspended             = "LICENSE_SUSPENDED"
	FailExpired               = "LICENSE_EXPIRED"
	FailWrongState            = "LICENSE_WRONG_STATE"
	FailCertificationRequired = "CERTIFICATION_REQUIRED"
	FailLookupTimeout         = "LICENSE_LOOKUP_TIMEOUT"

	WarnExpiringSoon = "LICENSE_EXPIRING_SOON"
)

// Record is a license as reported by the issuing state board.
type Record struct {
	Number             string     `json:"number"`
	State              string     `json:"state"`
	Type               string     `json:"license_type"`
	Status             Status     `json:"status"`
	ExpirationDate     time.Time  `json:"expiration_date"`
	AuthorizedServices []string   `json:"authorized_services"`
	Certifications     []string   `json:"certifications,omitempty"`
	SuspensionReason   string     `json:"suspension_reason,omitempty"`
	SuspendedAt        *time.Time `json:"suspended_at,omitempty"`
}

// Ref is a provider-held pointer to a board license.
type Ref struct {
	ProviderID uuid.UUID
	Number     string
	State      string
}

// Agreement is a bilateral reciprocity rule between two states. Its own
// validity window is authoritative; the registry only checks that now
// falls inside it.
type Agreement struct {
	ID            string
	FromState     string
	ToState       string
	EffectiveFrom time.Time
	ExpiresAt     time.Time
}

func (a *Agreement) ValidAt(t time.Time) bool {
	return !t.Before(a.EffectiveFrom) && t.Before(a.ExpiresAt)
}

type Warning struct {
	Code                string `json:"code"`
	Message             string `json:"message"`
	DaysUntilExpiration int    `json:"days_until_expiration,omitempty"`
}

// Verification is the outcome of a license check. Failed verifications are
// values, not errors: only infrastructure problems surface as Go errors.
type Verification struct {
	Valid       bool           `json:"valid"`
	FailureCode string         `json:"failure_code,omitempty"`
	Message     string         `json:"message,omitempty"`
	Detail      map[string]any `json:"detail,omitempty"`

	LicenseNumber  string    `json:"license_number,omitempty"`
	LicenseState   string    `json:"license_state,omitempty"`
	LicenseType    string    `json:"license_type,omitempty"`
	ExpirationDate time.Time `json:"expiration_date"`

	Reciprocity bool   `json:"reciprocity,omitempty"`
	AgreementID string `json:"agreement_id,omitempty"`

	Warnings []Warning `json:"warnings,omitempty"`

	Cached        bool          `json:"cached"`
	LookupLatency time.Duration `json:"lookup_latency"`
	CheckedAt     time.Time     `json:"checked_at"`
}
