package models

import "time"

// ProfileKind tags the variant returned by the polymorphic profile lookup
type ProfileKind string

const (
	ProfileKindInvestor ProfileKind = "investor"
	ProfileKindStartup  ProfileKind = "startup"
	ProfileKindUnknown  ProfileKind = "unknown"
)

// Profile is the tagged union over the investor and startup tables, both
// keyed by the same user id. Exactly one of Investor/Startup is set unless
// Kind is unknown.
type Profile struct {
	UserID   string           `json:"user_id"`
	Kind     ProfileKind      `json:"kind"`
	Investor *InvestorProfile `json:"investor,omitempty"`
	Startup  *StartupProfile  `json:"startup,omitempty"`
}

// DisplayName returns the human-readable name for the profile's variant
func (p *Profile) DisplayName() string {
	switch p.Kind {
	case ProfileKindInvestor:
		return p.Investor.Name
	case ProfileKindStartup:
		return p.Startup.Name
	default:
		return ""
	}
}

// InvestorProfile is the read model for a row in the investors table
type InvestorProfile struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Company   *string   `json:"company,omitempty" db:"company"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// StartupProfile is the read model for a row in the startups table
type StartupProfile struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Industry  *string   `json:"industry,omitempty" db:"industry"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
