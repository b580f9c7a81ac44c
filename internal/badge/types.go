package badge

import "time"

// Issuer is an organization that defines and awards badge classes.
type Issuer struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	URL         string         `json:"url"`
	Email       string         `json:"email,omitempty"`
	Description string         `json:"description,omitempty"`
	Image       string         `json:"image,omitempty"`
	PublicKey   string         `json:"publicKey,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Extensions  map[string]any `json:"extensions,omitempty"`
}

// Criteria describes what a recipient must do to earn a badge.
type Criteria struct {
	ID        string `json:"id,omitempty"`
	Narrative string `json:"narrative,omitempty"`
}

// Alignment maps a badge class onto an external skill framework entry.
type Alignment struct {
	TargetName        string `json:"targetName"`
	TargetURL         string `json:"targetUrl"`
	TargetDescription string `json:"targetDescription,omitempty"`
	TargetFramework   string `json:"targetFramework,omitempty"`
	TargetCode        string `json:"targetCode,omitempty"`
}

// BadgeClass is a badge template owned by exactly one issuer.
type BadgeClass struct {
	ID          string         `json:"id"`
	IssuerID    string         `json:"issuer"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Image       string         `json:"image"`
	Criteria    *Criteria      `json:"criteria,omitempty"`
	Alignments  []Alignment    `json:"alignment,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Extensions  map[string]any `json:"extensions,omitempty"`
}

// Recipient identifies who an assertion was awarded to.
type Recipient struct {
	Identity string `json:"identity"`
	Type     string `json:"type"`
	Hashed   bool   `json:"hashed"`
	Salt     string `json:"salt,omitempty"`
}

// Evidence is supporting material attached to an assertion.
type Evidence struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Narrative   string `json:"narrative,omitempty"`
}

// Verification describes how an assertion can be verified downstream.
type Verification struct {
	Type    string `json:"type"`
	Creator string `json:"creator,omitempty"`
}

// Assertion is an awarded instance of a badge class.
type Assertion struct {
	ID               string         `json:"id"`
	BadgeClassID     string         `json:"badgeClass"`
	Recipient        Recipient      `json:"recipient"`
	IssuedAt         time.Time      `json:"issuedOn"`
	ExpiresAt        *time.Time     `json:"expires,omitempty"`
	Evidence         []Evidence     `json:"evidence,omitempty"`
	Verification     *Verification  `json:"verification,omitempty"`
	Revoked          bool           `json:"revoked"`
	RevocationReason string         `json:"revocationReason,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Extensions       map[string]any `json:"extensions,omitempty"`
}

// PlatformStatus is the lifecycle state of an integrated platform.
type PlatformStatus string

const (
	PlatformActive    PlatformStatus = "active"
	PlatformInactive  PlatformStatus = "inactive"
	PlatformSuspended PlatformStatus = "suspended"
)

// Valid reports whether the status is one of the known states.
func (s PlatformStatus) Valid() bool {
	switch s {
	case PlatformActive, PlatformInactive, PlatformSuspended:
		return true
	}
	return false
}

// Platform is an external system integrated with the badge service.
type Platform struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ClientID    string         `json:"clientId"`
	PublicKey   string         `json:"publicKey"`
	Status      PlatformStatus `json:"status"`
	Description string         `json:"description,omitempty"`
	WebhookURL  string         `json:"webhookUrl,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Extensions  map[string]any `json:"extensions,omitempty"`
}

// PlatformUser is an end user known to a platform, keyed by the platform's
// own external identifier.
type PlatformUser struct {
	ID          string         `json:"id"`
	PlatformID  string         `json:"platform"`
	ExternalID  string         `json:"externalUserId"`
	DisplayName string         `json:"displayName,omitempty"`
	Email       string         `json:"email,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Extensions  map[string]any `json:"extensions,omitempty"`
}

// UserAssertionStatus is the soft-delete tri-state of a user/assertion link.
type UserAssertionStatus string

const (
	UserAssertionActive  UserAssertionStatus = "active"
	UserAssertionHidden  UserAssertionStatus = "hidden"
	UserAssertionDeleted UserAssertionStatus = "deleted"
)

// Valid reports whether the status is one of the known states.
func (s UserAssertionStatus) Valid() bool {
	switch s {
	case UserAssertionActive, UserAssertionHidden, UserAssertionDeleted:
		return true
	}
	return false
}

// UserAssertion joins a platform user to an assertion in their backpack.
// Rows are never hard-deleted; Status carries the soft-delete state.
type UserAssertion struct {
	ID          string              `json:"id"`
	UserID      string              `json:"user"`
	AssertionID string              `json:"assertion"`
	Status      UserAssertionStatus `json:"status"`
	Metadata    map[string]any      `json:"metadata,omitempty"`
	AddedAt     time.Time           `json:"added_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}
