package badge

import (
	"context"
	"strings"
)

// ValidateID rejects empty or blank identifiers before any engine call.
func ValidateID(entity, id string) error {
	if strings.TrimSpace(id) == "" {
		return Validationf("%s id must not be blank", entity)
	}
	return nil
}

// IssuerUpdate is a partial update; only non-nil fields change. Extensions
// are merged key-by-key into the stored bag, never replaced wholesale.
type IssuerUpdate struct {
	Name        *string
	URL         *string
	Email       *string
	Description *string
	Image       *string
	PublicKey   *string
	Extensions  map[string]any
}

// BadgeClassUpdate is a partial update for a badge class. The owning issuer
// reference is immutable only in the sense that a new value must name an
// existing issuer at write time.
type BadgeClassUpdate struct {
	IssuerID    *string
	Name        *string
	Description *string
	Image       *string
	Criteria    *Criteria
	Alignments  []Alignment
	Tags        []string
	Extensions  map[string]any
}

// AssertionUpdate is a partial update for an assertion.
type AssertionUpdate struct {
	Recipient        *Recipient
	Evidence         []Evidence
	Verification     *Verification
	Revoked          *bool
	RevocationReason *string
	Extensions       map[string]any
}

// PlatformUpdate is a partial update for a platform.
type PlatformUpdate struct {
	Name        *string
	PublicKey   *string
	Status      *PlatformStatus
	Description *string
	WebhookURL  *string
	Extensions  map[string]any
}

// PlatformUserUpdate is a partial update for a platform user.
type PlatformUserUpdate struct {
	DisplayName *string
	Email       *string
	Extensions  map[string]any
}

// IssuerRepository persists issuers.
//
// Update and Delete resolve a missing target locally: Update returns
// (nil, nil) and Delete returns (false, nil) rather than an error.
type IssuerRepository interface {
	Create(ctx context.Context, issuer Issuer) (Issuer, error)
	FindByID(ctx context.Context, id string) (*Issuer, error)
	FindAll(ctx context.Context) ([]Issuer, error)
	Update(ctx context.Context, id string, upd IssuerUpdate) (*Issuer, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// BadgeClassRepository persists badge classes. Create and Update verify the
// referenced issuer exists before writing.
type BadgeClassRepository interface {
	Create(ctx context.Context, bc BadgeClass) (BadgeClass, error)
	FindByID(ctx context.Context, id string) (*BadgeClass, error)
	FindAll(ctx context.Context) ([]BadgeClass, error)
	FindByIssuer(ctx context.Context, issuerID string) ([]BadgeClass, error)
	Update(ctx context.Context, id string, upd BadgeClassUpdate) (*BadgeClass, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// AssertionRepository persists assertions. Create verifies the referenced
// badge class exists before writing.
type AssertionRepository interface {
	Create(ctx context.Context, a Assertion) (Assertion, error)
	FindByID(ctx context.Context, id string) (*Assertion, error)
	FindAll(ctx context.Context) ([]Assertion, error)
	FindByBadgeClass(ctx context.Context, badgeClassID string) ([]Assertion, error)
	Update(ctx context.Context, id string, upd AssertionUpdate) (*Assertion, error)
	Delete(ctx context.Context, id string) (bool, error)
	// DeleteByBadgeClass removes every assertion under the badge class and
	// returns how many rows went away. Used by the cascade path.
	DeleteByBadgeClass(ctx context.Context, badgeClassID string) (int, error)
}

// PlatformRepository persists platform integrations. ClientID is unique.
type PlatformRepository interface {
	Create(ctx context.Context, p Platform) (Platform, error)
	FindByID(ctx context.Context, id string) (*Platform, error)
	FindAll(ctx context.Context) ([]Platform, error)
	FindByClientID(ctx context.Context, clientID string) (*Platform, error)
	Update(ctx context.Context, id string, upd PlatformUpdate) (*Platform, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// PlatformUserRepository persists platform users. Create verifies the
// referenced platform exists; ExternalID is unique per platform.
type PlatformUserRepository interface {
	Create(ctx context.Context, u PlatformUser) (PlatformUser, error)
	FindByID(ctx context.Context, id string) (*PlatformUser, error)
	FindByPlatformAndExternalID(ctx context.Context, platformID, externalID string) (*PlatformUser, error)
	Update(ctx context.Context, id string, upd PlatformUserUpdate) (*PlatformUser, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// UserAssertionRepository persists the user/assertion join. Rows are soft
// deleted via status; deleted rows stay out of List and Has results but are
// retained for audit.
type UserAssertionRepository interface {
	// Add links an assertion to a user's backpack. Re-adding a previously
	// deleted link reactivates it and merges metadata.
	Add(ctx context.Context, userID, assertionID string, metadata map[string]any) (UserAssertion, error)
	FindByUserAndAssertion(ctx context.Context, userID, assertionID string) (*UserAssertion, error)
	ListByUser(ctx context.Context, userID string) ([]UserAssertion, error)
	UpdateStatus(ctx context.Context, userID, assertionID string, status UserAssertionStatus) (*UserAssertion, error)
	Has(ctx context.Context, userID, assertionID string) (bool, error)
	// Remove soft-deletes the link. Returns false when no active link exists.
	Remove(ctx context.Context, userID, assertionID string) (bool, error)
}

// Database is the single entry point the surrounding system depends on. One
// implementation exists per engine, selected at startup; callers construct
// it explicitly and close it at shutdown.
type Database interface {
	// Engine returns the engine name ("sqlite" or "postgres").
	Engine() string

	// Connection lifecycle.
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	HealthCheck(ctx context.Context) bool

	// Runtime configuration.
	ApplySettings(ctx context.Context, settings map[string]string) error
	RuntimeConfig(ctx context.Context) map[string]any
	Stats(ctx context.Context) map[string]any
	ConnectionInfo(ctx context.Context) map[string]any

	// Repositories.
	Issuers() IssuerRepository
	BadgeClasses() BadgeClassRepository
	Assertions() AssertionRepository
	Platforms() PlatformRepository
	PlatformUsers() PlatformUserRepository
	UserAssertions() UserAssertionRepository
}
