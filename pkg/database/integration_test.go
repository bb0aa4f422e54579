//go:build integration

package database_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/audit"
	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/database"
	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/override"
)

func startPostgres(t *testing.T) database.Config {
	t.Helper()
	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("overrides"),
		tcpostgres.WithUsername("override"),
		tcpostgres.WithPassword("override"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)
	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return database.Config{Type: database.TypePostgres, DSN: dsn, LogLevel: "silent"}
}

func startMySQL(t *testing.T) database.Config {
	t.Helper()
	ctx := context.Background()
	ctr, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase("overrides"),
		tcmysql.WithUsername("override"),
		tcmysql.WithPassword("override"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)
	dsn, err := ctr.ConnectionString(ctx, "parseTime=true", "loc=UTC")
	require.NoError(t, err)
	return database.Config{Type: database.TypeMySQL, DSN: dsn, LogLevel: "silent"}
}

func TestOverrideLifecycleOnRealDatabases(t *testing.T) {
	for name, start := range map[string]func(*testing.T) database.Config{
		"postgres": startPostgres,
		"mysql":    startMySQL,
	} {
		t.Run(name, func(t *testing.T) {
			cfg := start(t)
			db, err := database.Open(cfg)
			require.NoError(t, err)
			ctx := context.Background()

			// Replicas racing to migrate must serialize on the schema lock.
			var wg sync.WaitGroup
			errs := make([]error, 3)
			for i := range errs {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs[i] = database.Migrate(ctx, db, append(override.Models(), audit.Models()...)...)
				}()
			}
			wg.Wait()
			for _, err := range errs {
				require.NoError(t, err)
			}

			auditStore := audit.NewStore(db)
			svc := override.NewService(db, auditStore)
			until := time.Now().Add(time.Hour)
			o, _, err := svc.Create(ctx, override.CreateRequest{
				Title:          "Late registration for the relay",
				OverrideType:   override.TypeDeadlineExtension,
				Justification:  "Portal outage blocked registration for two days before the deadline.",
				Target:         override.TargetRef{Type: "assignment", ID: "as-7"},
				RequestedBy:    "coordinator",
				RiskLevel:      override.RiskLow,
				ImpactLevel:    override.ImpactMinimal,
				EffectiveUntil: &until,
				Tags:           []string{"Relay", "late"},
			})
			require.NoError(t, err)

			_, err = svc.Approve(ctx, o.ID, "manager", "")
			require.NoError(t, err)
			active, err := svc.Activate(ctx, o.ID, "manager", "")
			require.NoError(t, err)
			assert.Equal(t, override.StatusActive, active.Status)
			assert.Equal(t, 3, active.Version)
			assert.Equal(t, []string{"late", "relay"}, active.Tags)
			assert.Len(t, active.CommunicationLog, 3)

			list, err := svc.Queries().Search(ctx, `status = "ACTIVE" AND target_id = "as-7"`, 10, "")
			require.NoError(t, err)
			assert.Equal(t, 1, list.TotalSize)

			events, _, total, err := auditStore.ListByTarget(ctx, override.AuditTargetType, o.ID, 10, "")
			require.NoError(t, err)
			assert.Equal(t, 3, total)
			assert.Len(t, events, 3)
		})
	}
}
