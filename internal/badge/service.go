package badge

import (
	"context"
	"fmt"
)

// Ecosystem is the result of the coupled issuer/badge class/assertion create.
type Ecosystem struct {
	Issuer     Issuer     `json:"issuer"`
	BadgeClass BadgeClass `json:"badgeClass"`
	Assertion  Assertion  `json:"assertion"`
}

// CascadeResult reports what a cascading issuer delete removed so callers
// can verify completeness.
type CascadeResult struct {
	IssuerDeleted       bool `json:"issuerDeleted"`
	BadgeClassesDeleted int  `json:"badgeClassesDeleted"`
	AssertionsDeleted   int  `json:"assertionsDeleted"`
}

// BatchSummary is the fixed-shape accounting attached to every batch call.
type BatchSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// AssertionResult is one per-item outcome of a batch call, in input order.
// Exactly one of Assertion and Error is set.
type AssertionResult struct {
	Assertion *Assertion `json:"assertion,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// AssertionBatch is a batch outcome: summary plus per-item results.
type AssertionBatch struct {
	Summary BatchSummary      `json:"summary"`
	Results []AssertionResult `json:"results"`
}

// StatusUpdate revokes or reinstates one assertion in a batch call.
type StatusUpdate struct {
	ID      string `json:"id"`
	Revoked bool   `json:"revoked"`
	Reason  string `json:"reason,omitempty"`
}

// Service orchestrates operations that span multiple repositories. It holds
// no engine state of its own; all durability comes from the Database it
// wraps.
type Service struct {
	db Database
}

// NewService wraps a connected Database.
func NewService(db Database) *Service {
	return &Service{db: db}
}

// CreateEcosystem creates an issuer, a badge class under it, and an
// assertion under that badge class, in order. There is no cross-step
// transaction: on failure, entities already created are left in place and
// the error names the failed step so the caller can decide on compensating
// cleanup.
func (s *Service) CreateEcosystem(ctx context.Context, issuer Issuer, bc BadgeClass, a Assertion) (Ecosystem, error) {
	createdIssuer, err := s.db.Issuers().Create(ctx, issuer)
	if err != nil {
		return Ecosystem{}, fmt.Errorf("create ecosystem: issuer step: %w", err)
	}

	bc.IssuerID = createdIssuer.ID
	createdBC, err := s.db.BadgeClasses().Create(ctx, bc)
	if err != nil {
		return Ecosystem{}, fmt.Errorf("create ecosystem: badge class step (issuer %s kept): %w", createdIssuer.ID, err)
	}

	a.BadgeClassID = createdBC.ID
	createdA, err := s.db.Assertions().Create(ctx, a)
	if err != nil {
		return Ecosystem{}, fmt.Errorf("create ecosystem: assertion step (issuer %s, badge class %s kept): %w", createdIssuer.ID, createdBC.ID, err)
	}

	return Ecosystem{Issuer: createdIssuer, BadgeClass: createdBC, Assertion: createdA}, nil
}

// DeleteIssuerCascade removes every assertion under every badge class of the
// issuer, then the badge classes, then the issuer itself. Children always go
// before parents so no dangling-reference window opens even without engine
// foreign keys.
func (s *Service) DeleteIssuerCascade(ctx context.Context, issuerID string) (CascadeResult, error) {
	if err := ValidateID("issuer", issuerID); err != nil {
		return CascadeResult{}, err
	}

	var result CascadeResult
	classes, err := s.db.BadgeClasses().FindByIssuer(ctx, issuerID)
	if err != nil {
		return result, fmt.Errorf("cascade delete issuer %s: list badge classes: %w", issuerID, err)
	}

	for _, bc := range classes {
		removed, err := s.db.Assertions().DeleteByBadgeClass(ctx, bc.ID)
		if err != nil {
			return result, fmt.Errorf("cascade delete issuer %s: assertions of badge class %s: %w", issuerID, bc.ID, err)
		}
		result.AssertionsDeleted += removed

		deleted, err := s.db.BadgeClasses().Delete(ctx, bc.ID)
		if err != nil {
			return result, fmt.Errorf("cascade delete issuer %s: badge class %s: %w", issuerID, bc.ID, err)
		}
		if deleted {
			result.BadgeClassesDeleted++
		}
	}

	deleted, err := s.db.Issuers().Delete(ctx, issuerID)
	if err != nil {
		return result, fmt.Errorf("cascade delete issuer %s: %w", issuerID, err)
	}
	result.IssuerDeleted = deleted
	return result, nil
}

// CreateAssertions creates each assertion independently; one item's failure
// never aborts its siblings. Results keep input order.
func (s *Service) CreateAssertions(ctx context.Context, assertions []Assertion) (AssertionBatch, error) {
	if len(assertions) == 0 {
		return AssertionBatch{}, Validationf("batch create requires at least one assertion")
	}

	batch := AssertionBatch{
		Summary: BatchSummary{Total: len(assertions)},
		Results: make([]AssertionResult, len(assertions)),
	}
	for i, a := range assertions {
		created, err := s.db.Assertions().Create(ctx, a)
		if err != nil {
			batch.Summary.Failed++
			batch.Results[i] = AssertionResult{Error: err.Error()}
			continue
		}
		batch.Summary.Successful++
		result := created
		batch.Results[i] = AssertionResult{Assertion: &result}
	}
	return batch, nil
}

// GetAssertions looks up each id independently. A missing assertion is a
// per-item failure, not a call-level one.
func (s *Service) GetAssertions(ctx context.Context, ids []string) (AssertionBatch, error) {
	if len(ids) == 0 {
		return AssertionBatch{}, Validationf("batch retrieve requires at least one id")
	}

	batch := AssertionBatch{
		Summary: BatchSummary{Total: len(ids)},
		Results: make([]AssertionResult, len(ids)),
	}
	for i, id := range ids {
		a, err := s.db.Assertions().FindByID(ctx, id)
		if err != nil {
			batch.Summary.Failed++
			batch.Results[i] = AssertionResult{Error: err.Error()}
			continue
		}
		if a == nil {
			batch.Summary.Failed++
			batch.Results[i] = AssertionResult{Error: NotFoundf("assertion", id).Error()}
			continue
		}
		batch.Summary.Successful++
		batch.Results[i] = AssertionResult{Assertion: a}
	}
	return batch, nil
}

// UpdateAssertionStatuses applies revocation updates independently per item.
func (s *Service) UpdateAssertionStatuses(ctx context.Context, updates []StatusUpdate) (AssertionBatch, error) {
	if len(updates) == 0 {
		return AssertionBatch{}, Validationf("batch status update requires at least one entry")
	}

	batch := AssertionBatch{
		Summary: BatchSummary{Total: len(updates)},
		Results: make([]AssertionResult, len(updates)),
	}
	for i, upd := range updates {
		revoked := upd.Revoked
		reason := upd.Reason
		a, err := s.db.Assertions().Update(ctx, upd.ID, AssertionUpdate{
			Revoked:          &revoked,
			RevocationReason: &reason,
		})
		if err != nil {
			batch.Summary.Failed++
			batch.Results[i] = AssertionResult{Error: err.Error()}
			continue
		}
		if a == nil {
			batch.Summary.Failed++
			batch.Results[i] = AssertionResult{Error: NotFoundf("assertion", upd.ID).Error()}
			continue
		}
		batch.Summary.Successful++
		batch.Results[i] = AssertionResult{Assertion: a}
	}
	return batch, nil
}
