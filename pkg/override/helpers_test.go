package override

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/audit"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, NewStore(db).AutoMigrate())
	require.NoError(t, audit.NewStore(db).AutoMigrate())
	return db
}

type fixture struct {
	db    *gorm.DB
	svc   *Service
	audit *audit.Store
	clock *fakeClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db := newTestDB(t)
	clock := &fakeClock{t: baseTime}
	auditStore := audit.NewStore(db)
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return &fixture{
		db:    db,
		svc:   NewService(db, auditStore, opts...),
		audit: auditStore,
		clock: clock,
	}
}

func (f *fixture) auditEvents(t *testing.T, id string) []audit.EventRecord {
	t.Helper()
	records, _, _, err := f.audit.ListByTarget(context.Background(), AuditTargetType, id, 100, "")
	require.NoError(t, err)
	return records
}

func (f *fixture) stored(t *testing.T, id string) *Record {
	t.Helper()
	rec, err := f.svc.store.Get(context.Background(), nil, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

// create stores req and fails the test on error.
func (f *fixture) create(t *testing.T, req CreateRequest) *Override {
	t.Helper()
	o, _, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	return o
}

// ageRequest is a valid MEDIUM risk age exception.
func ageRequest() CreateRequest {
	return CreateRequest{
		Title:        "Age exception for J. Smith",
		OverrideType: TypeAgeRequirement,
		Justification: "Volunteer is 14 years 11 months old; parental consent on file and role is " +
			"low-risk administrative support role with adult supervision at all times.",
		Target:        TargetRef{Type: "volunteer_profile", ID: "vp-1"},
		RequestedBy:   "coordinator",
		RiskLevel:     RiskMedium,
		ImpactLevel:   ImpactLow,
		PriorityLevel: 5,
	}
}

// highRiskRequest is a valid HIGH risk deadline extension.
func highRiskRequest() CreateRequest {
	return CreateRequest{
		Title:         "Late registration for regional games",
		OverrideType:  TypeDeadlineExtension,
		Justification: strings.Repeat("Registration portal outage blocked this volunteer. ", 2),
		BusinessCase:  "Venue is short three marshals for the opening day.",
		Target:        TargetRef{Type: "assignment", ID: "as-9"},
		RequestedBy:   "coordinator",
		RiskLevel:     RiskHigh,
		ImpactLevel:   ImpactMedium,
		PriorityLevel: 3,
	}
}

// approved creates and approves an override, returning its id.
func (f *fixture) approved(t *testing.T, req CreateRequest) string {
	t.Helper()
	o := f.create(t, req)
	_, err := f.svc.Approve(context.Background(), o.ID, "manager", "Reviewed, consent verified")
	require.NoError(t, err)
	return o.ID
}

// active creates, approves and activates an override, returning its id.
func (f *fixture) active(t *testing.T, req CreateRequest) string {
	t.Helper()
	id := f.approved(t, req)
	_, err := f.svc.Activate(context.Background(), id, "manager", "")
	require.NoError(t, err)
	return id
}

var errAuditDown = errors.New("audit store unavailable")

type failingSink struct{}

func (failingSink) Record(context.Context, *gorm.DB, audit.Entry) error { return errAuditDown }
