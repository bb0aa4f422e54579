package override

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/audit"
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	clock := &fakeClock{t: baseTime}
	return NewService(db, audit.NewStore(db), WithClock(clock.Now)), mock
}

func pendingRow(mock sqlmock.Sqlmock) *sqlmock.Rows {
	return mock.NewRows([]string{
		"id", "override_type", "status", "target_type", "target_id", "title",
		"justification", "risk_level", "impact_level", "priority_level",
		"requested_by", "requested_at", "version", "created_at", "updated_at",
	}).AddRow(
		"ov-1", string(TypeAgeRequirement), string(StatusPending), "volunteer_profile", "vp-1", "Age exception",
		ageRequest().Justification, string(RiskMedium), string(ImpactLow), 5,
		"coordinator", baseTime, 1, baseTime, baseTime,
	)
}

func TestService_GetDatabaseFailure(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectQuery(`SELECT \* FROM "admin_overrides"`).WillReturnError(errors.New("connection reset by peer"))

	_, err := svc.Get(context.Background(), "ov-1")
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "get override", pe.Op)
	assert.ErrorContains(t, err, "connection reset by peer")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_ApproveRollsBackOnReadFailure(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "admin_overrides"`).WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := svc.Approve(context.Background(), "ov-1", "manager", "")
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_ApproveStaleWriteRollsBack(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "admin_overrides"`).WillReturnRows(pendingRow(mock))
	mock.ExpectExec(`UPDATE "admin_overrides" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := svc.Approve(context.Background(), "ov-1", "manager", "Consent verified")
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeStaleState, te.Code)
	assert.Equal(t, StatusPending, te.From)
	assert.NoError(t, mock.ExpectationsWereMet(), "no audit insert after a stale write")
}

func TestService_ExpireDueListFailure(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectQuery(`SELECT "id" FROM "admin_overrides"`).WillReturnError(errors.New("too many connections"))

	n, err := svc.ExpireDue(context.Background(), 50)
	assert.Zero(t, n)
	var pe *PersistenceError
	assert.ErrorAs(t, err, &pe)
	assert.NoError(t, mock.ExpectationsWereMet())
}
