package badge

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
)

// memDB is a minimal in-memory Database for service-level tests. Failures
// are injected per entity kind to exercise partial-failure paths.
type memDB struct {
	issuers    map[string]Issuer
	classes    map[string]BadgeClass
	assertions map[string]Assertion
	nextID     int

	failIssuerCreate error
	failClassCreate  error
	failClassDelete  error
}

func newMemDB() *memDB {
	return &memDB{
		issuers:    map[string]Issuer{},
		classes:    map[string]BadgeClass{},
		assertions: map[string]Assertion{},
	}
}

func (m *memDB) id() string {
	m.nextID++
	return "urn:uuid:test-" + strconv.Itoa(m.nextID)
}

func (m *memDB) Engine() string                                       { return "mem" }
func (m *memDB) Connect(context.Context) error                        { return nil }
func (m *memDB) Disconnect(context.Context) error                     { return nil }
func (m *memDB) IsConnected() bool                                    { return true }
func (m *memDB) HealthCheck(context.Context) bool                     { return true }
func (m *memDB) ApplySettings(context.Context, map[string]string) error { return nil }
func (m *memDB) RuntimeConfig(context.Context) map[string]any         { return nil }
func (m *memDB) Stats(context.Context) map[string]any                 { return nil }
func (m *memDB) ConnectionInfo(context.Context) map[string]any        { return nil }

func (m *memDB) Issuers() IssuerRepository             { return &memIssuers{m} }
func (m *memDB) BadgeClasses() BadgeClassRepository    { return &memClasses{m} }
func (m *memDB) Assertions() AssertionRepository       { return &memAssertions{m} }
func (m *memDB) Platforms() PlatformRepository         { return nil }
func (m *memDB) PlatformUsers() PlatformUserRepository { return nil }
func (m *memDB) UserAssertions() UserAssertionRepository {
	return nil
}

type memIssuers struct{ db *memDB }

func (r *memIssuers) Create(_ context.Context, issuer Issuer) (Issuer, error) {
	if r.db.failIssuerCreate != nil {
		return Issuer{}, r.db.failIssuerCreate
	}
	if issuer.ID == "" {
		issuer.ID = r.db.id()
	}
	r.db.issuers[issuer.ID] = issuer
	return issuer, nil
}

func (r *memIssuers) FindByID(_ context.Context, id string) (*Issuer, error) {
	if issuer, ok := r.db.issuers[id]; ok {
		return &issuer, nil
	}
	return nil, nil
}

func (r *memIssuers) FindAll(context.Context) ([]Issuer, error) { return nil, nil }

func (r *memIssuers) Update(context.Context, string, IssuerUpdate) (*Issuer, error) {
	return nil, nil
}

func (r *memIssuers) Delete(_ context.Context, id string) (bool, error) {
	if _, ok := r.db.issuers[id]; !ok {
		return false, nil
	}
	delete(r.db.issuers, id)
	return true, nil
}

type memClasses struct{ db *memDB }

func (r *memClasses) Create(_ context.Context, bc BadgeClass) (BadgeClass, error) {
	if r.db.failClassCreate != nil {
		return BadgeClass{}, r.db.failClassCreate
	}
	if _, ok := r.db.issuers[bc.IssuerID]; !ok {
		return BadgeClass{}, NotFoundf("issuer", bc.IssuerID)
	}
	if bc.ID == "" {
		bc.ID = r.db.id()
	}
	r.db.classes[bc.ID] = bc
	return bc, nil
}

func (r *memClasses) FindByID(_ context.Context, id string) (*BadgeClass, error) {
	if bc, ok := r.db.classes[id]; ok {
		return &bc, nil
	}
	return nil, nil
}

func (r *memClasses) FindAll(context.Context) ([]BadgeClass, error) { return nil, nil }

func (r *memClasses) FindByIssuer(_ context.Context, issuerID string) ([]BadgeClass, error) {
	var out []BadgeClass
	for _, bc := range r.db.classes {
		if bc.IssuerID == issuerID {
			out = append(out, bc)
		}
	}
	return out, nil
}

func (r *memClasses) Update(context.Context, string, BadgeClassUpdate) (*BadgeClass, error) {
	return nil, nil
}

func (r *memClasses) Delete(_ context.Context, id string) (bool, error) {
	if r.db.failClassDelete != nil {
		return false, r.db.failClassDelete
	}
	if _, ok := r.db.classes[id]; !ok {
		return false, nil
	}
	delete(r.db.classes, id)
	return true, nil
}

type memAssertions struct{ db *memDB }

func (r *memAssertions) Create(_ context.Context, a Assertion) (Assertion, error) {
	if _, ok := r.db.classes[a.BadgeClassID]; !ok {
		return Assertion{}, NotFoundf("badge class", a.BadgeClassID)
	}
	if a.ID == "" {
		a.ID = r.db.id()
	}
	r.db.assertions[a.ID] = a
	return a, nil
}

func (r *memAssertions) FindByID(_ context.Context, id string) (*Assertion, error) {
	if a, ok := r.db.assertions[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (r *memAssertions) FindAll(context.Context) ([]Assertion, error) { return nil, nil }

func (r *memAssertions) FindByBadgeClass(context.Context, string) ([]Assertion, error) {
	return nil, nil
}

func (r *memAssertions) Update(_ context.Context, id string, upd AssertionUpdate) (*Assertion, error) {
	a, ok := r.db.assertions[id]
	if !ok {
		return nil, nil
	}
	if upd.Revoked != nil {
		a.Revoked = *upd.Revoked
	}
	if upd.RevocationReason != nil {
		a.RevocationReason = *upd.RevocationReason
	}
	r.db.assertions[id] = a
	return &a, nil
}

func (r *memAssertions) Delete(_ context.Context, id string) (bool, error) {
	if _, ok := r.db.assertions[id]; !ok {
		return false, nil
	}
	delete(r.db.assertions, id)
	return true, nil
}

func (r *memAssertions) DeleteByBadgeClass(_ context.Context, badgeClassID string) (int, error) {
	var n int
	for id, a := range r.db.assertions {
		if a.BadgeClassID == badgeClassID {
			delete(r.db.assertions, id)
			n++
		}
	}
	return n, nil
}

func TestCreateEcosystem(t *testing.T) {
	db := newMemDB()
	svc := NewService(db)

	eco, err := svc.CreateEcosystem(context.Background(),
		Issuer{Name: "Org", URL: "https://org.example"},
		BadgeClass{Name: "Badge"},
		Assertion{Recipient: Recipient{Identity: "a@example.org", Type: "email"}},
	)
	if err != nil {
		t.Fatalf("create ecosystem: %v", err)
	}
	if eco.BadgeClass.IssuerID != eco.Issuer.ID {
		t.Fatalf("badge class not linked to issuer: %+v", eco)
	}
	if eco.Assertion.BadgeClassID != eco.BadgeClass.ID {
		t.Fatalf("assertion not linked to badge class: %+v", eco)
	}
}

func TestCreateEcosystemFailureKeepsEarlierSteps(t *testing.T) {
	db := newMemDB()
	db.failClassCreate = errors.New("disk full")
	svc := NewService(db)

	_, err := svc.CreateEcosystem(context.Background(),
		Issuer{Name: "Org", URL: "https://org.example"},
		BadgeClass{Name: "Badge"},
		Assertion{},
	)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "badge class step") {
		t.Fatalf("error should name the failed step: %v", err)
	}
	// The issuer from the first step stays in place.
	if len(db.issuers) != 1 {
		t.Fatalf("issuer should be kept after later-step failure, have %d", len(db.issuers))
	}
}

func TestDeleteIssuerCascadeCounts(t *testing.T) {
	db := newMemDB()
	svc := NewService(db)
	ctx := context.Background()

	issuer, _ := db.Issuers().Create(ctx, Issuer{Name: "Org", URL: "https://org.example"})
	bc, _ := db.BadgeClasses().Create(ctx, BadgeClass{IssuerID: issuer.ID, Name: "Badge"})
	for i := 0; i < 3; i++ {
		if _, err := db.Assertions().Create(ctx, Assertion{BadgeClassID: bc.ID}); err != nil {
			t.Fatalf("seed assertion: %v", err)
		}
	}

	result, err := svc.DeleteIssuerCascade(ctx, issuer.ID)
	if err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if !result.IssuerDeleted || result.BadgeClassesDeleted != 1 || result.AssertionsDeleted != 3 {
		t.Fatalf("unexpected cascade result: %+v", result)
	}
	if len(db.assertions) != 0 || len(db.classes) != 0 || len(db.issuers) != 0 {
		t.Fatalf("cascade left rows behind: %d/%d/%d", len(db.issuers), len(db.classes), len(db.assertions))
	}
}

func TestDeleteIssuerCascadeMissingIssuer(t *testing.T) {
	db := newMemDB()
	svc := NewService(db)

	result, err := svc.DeleteIssuerCascade(context.Background(), "urn:uuid:absent")
	if err != nil {
		t.Fatalf("missing issuer is not an error: %v", err)
	}
	if result.IssuerDeleted || result.BadgeClassesDeleted != 0 || result.AssertionsDeleted != 0 {
		t.Fatalf("unexpected result for missing issuer: %+v", result)
	}
}

func TestCreateAssertionsPartialFailure(t *testing.T) {
	db := newMemDB()
	svc := NewService(db)
	ctx := context.Background()

	issuer, _ := db.Issuers().Create(ctx, Issuer{Name: "Org", URL: "https://org.example"})
	bc, _ := db.BadgeClasses().Create(ctx, BadgeClass{IssuerID: issuer.ID, Name: "Badge"})

	batch, err := svc.CreateAssertions(ctx, []Assertion{
		{BadgeClassID: bc.ID},
		{BadgeClassID: "urn:uuid:absent"},
		{BadgeClassID: bc.ID},
	})
	if err != nil {
		t.Fatalf("batch create: %v", err)
	}
	if batch.Summary.Total != 3 || batch.Summary.Successful != 2 || batch.Summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", batch.Summary)
	}
	if batch.Results[0].Assertion == nil || batch.Results[2].Assertion == nil {
		t.Fatalf("successful results missing: %+v", batch.Results)
	}
	if batch.Results[1].Error == "" {
		t.Fatalf("failed item should carry an error: %+v", batch.Results[1])
	}
	// The sibling failure must not roll back the successes.
	if len(db.assertions) != 2 {
		t.Fatalf("expected 2 stored assertions, have %d", len(db.assertions))
	}
}

func TestBatchOperationsRejectEmptyInput(t *testing.T) {
	svc := NewService(newMemDB())
	ctx := context.Background()

	if _, err := svc.CreateAssertions(ctx, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty create batch: %v", err)
	}
	if _, err := svc.GetAssertions(ctx, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty get batch: %v", err)
	}
	if _, err := svc.UpdateAssertionStatuses(ctx, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty status batch: %v", err)
	}
}

func TestUpdateAssertionStatuses(t *testing.T) {
	db := newMemDB()
	svc := NewService(db)
	ctx := context.Background()

	issuer, _ := db.Issuers().Create(ctx, Issuer{Name: "Org", URL: "https://org.example"})
	bc, _ := db.BadgeClasses().Create(ctx, BadgeClass{IssuerID: issuer.ID, Name: "Badge"})
	a, _ := db.Assertions().Create(ctx, Assertion{BadgeClassID: bc.ID})

	batch, err := svc.UpdateAssertionStatuses(ctx, []StatusUpdate{
		{ID: a.ID, Revoked: true, Reason: "test revocation"},
		{ID: "urn:uuid:absent", Revoked: true},
	})
	if err != nil {
		t.Fatalf("status batch: %v", err)
	}
	if batch.Summary.Successful != 1 || batch.Summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", batch.Summary)
	}
	if got := batch.Results[0].Assertion; got == nil || !got.Revoked || got.RevocationReason != "test revocation" {
		t.Fatalf("revocation not applied: %+v", got)
	}
	if !strings.Contains(batch.Results[1].Error, "does not exist") {
		t.Fatalf("missing id should read as not found: %+v", batch.Results[1])
	}
}
