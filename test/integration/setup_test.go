//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/healthdesk/triage/internal/domain/attendances"
	"github.com/healthdesk/triage/internal/domain/forms"
	"github.com/healthdesk/triage/internal/domain/identity"
	"github.com/healthdesk/triage/internal/domain/responses"
	"github.com/healthdesk/triage/internal/domain/scheduling"
	"github.com/healthdesk/triage/internal/platform/db"
	"github.com/healthdesk/triage/migrations"
)

// globalPool is the package-level test database, initialized once in TestMain.
var globalPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr, cleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "create pool: %v\n", err)
		os.Exit(1)
	}

	globalPool = pool
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// createTenantSchema creates a new tenant schema and runs all migrations.
func createTenantSchema(t *testing.T, ctx context.Context, tenantID string) {
	t.Helper()
	migrator := db.NewMigrator(globalPool, migrations.FS)
	if err := db.CreateTenantSchema(ctx, globalPool, tenantID, migrator); err != nil {
		t.Fatalf("create tenant schema %s: %v", tenantID, err)
	}
}

// dropTenantSchema drops a tenant schema for cleanup.
func dropTenantSchema(t *testing.T, ctx context.Context, tenantID string) {
	t.Helper()
	schema := db.SchemaName(tenantID)
	if _, err := globalPool.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
		t.Logf("warning: failed to drop schema %s: %v", schema, err)
	}
}

// withTenant runs fn on a connection scoped to the tenant schema, the way
// the tenant middleware does for a request.
func withTenant(t *testing.T, ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	t.Helper()
	ctx, release, err := db.AcquireTenant(ctx, globalPool, tenantID)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// uniqueTenantID generates a unique tenant ID for test isolation.
func uniqueTenantID(prefix string) string {
	short := strings.ReplaceAll(uuid.New().String()[:8], "-", "")
	return fmt.Sprintf("%s_%s", prefix, short)
}

// stack is the fully wired service graph used by the server.
type stack struct {
	identity    *identity.Service
	forms       *forms.Service
	responses   *responses.Service
	scheduling  *scheduling.Service
	attendances *attendances.Service
}

func newStack(pool *pgxpool.Pool) *stack {
	tx := db.NewTransactor(pool)
	logger := zerolog.Nop()

	identitySvc := identity.NewService(identity.NewUserRepoPG(pool))
	formsSvc := forms.NewService(tx, forms.NewFormRepoPG(pool), forms.NewRuleRepoPG(pool), identitySvc)
	apptRepo := scheduling.NewAppointmentRepoPG(pool)
	router := scheduling.NewRouter(apptRepo, identitySvc, logger)
	responsesSvc := responses.NewService(tx, responses.NewResponseRepoPG(pool), formsSvc, router, identitySvc, logger)

	schedulingSvc := scheduling.NewService(tx, apptRepo, identitySvc, responsesSvc)

	return &stack{
		identity:    identitySvc,
		forms:       formsSvc,
		responses:   responsesSvc,
		scheduling:  schedulingSvc,
		attendances: attendances.NewService(tx, attendances.NewAttendanceRepoPG(pool), identitySvc, schedulingSvc),
	}
}

func createUser(t *testing.T, ctx context.Context, s *stack, name string, typ identity.UserType) *identity.User {
	t.Helper()
	u := &identity.User{
		Name:  name,
		Email: strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.org",
		Type:  typ,
	}
	if err := s.identity.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func ptrInt(i int) *int { return &i }
