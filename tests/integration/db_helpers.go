package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/warden/internal/database"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/repositories"
)

// TestDB manages the PostgreSQL testcontainer backing the audit sink
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, applies the embedded migrations and returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("warden"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	if err := database.Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         database.NewFromPool(pool, logger),
	}, nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates the audit tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	for _, table := range []string{"security_alerts", "security_events"} {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}
	return nil
}

// Repository returns an audit repository over the test pool
func (db *TestDB) Repository() *repositories.SecurityAuditRepository {
	return repositories.NewSecurityAuditRepository(db.DB)
}

// SeedAlert inserts an alert raised at the given time
func SeedAlert(ctx context.Context, repo *repositories.SecurityAuditRepository, tenantID string, eventType models.EventType, raisedAt time.Time) (*models.Alert, error) {
	alert := &models.Alert{
		ID:           uuid.New(),
		Type:         eventType,
		Severity:     eventType.Severity(),
		Timestamp:    raisedAt,
		TenantID:     tenantID,
		Description:  "seeded " + string(eventType),
		DedupKey:     string(eventType) + ":" + AttackerAddress,
		Metadata:     models.EventMetadata{models.MetaAddress: AttackerAddress},
		ChannelsSent: []string{"slack"},
	}
	if err := repo.InsertSecurityAlert(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// SeedEvent inserts an event recorded at the given time
func SeedEvent(ctx context.Context, repo *repositories.SecurityAuditRepository, tenantID string, eventType models.EventType, at time.Time) (*models.SecurityEvent, error) {
	event := &models.SecurityEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Severity:  eventType.Severity(),
		Timestamp: at,
		TenantID:  tenantID,
		Metadata:  models.EventMetadata{models.MetaAddress: AttackerAddress},
	}
	if err := repo.InsertSecurityEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}
