// Package testhelpers provides fixtures for tests: a containerized Postgres
// for integration tests and builders for attestation evidence.
//
// The container approach uses testcontainers-go so integration tests only
// need a Docker daemon, not a local Postgres installation.
package testhelpers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresImage is the image started by SetupPostgresContainer.
const PostgresImage = "postgres:16-alpine"

// PostgresContainer provides a containerized Postgres test database.
//
// Example usage:
//
//	func TestWithPostgres(t *testing.T) {
//	    if testing.Short() {
//	        t.Skip("Skipping container-based test in short mode")
//	    }
//	    pg, cleanup := testhelpers.SetupPostgresContainer(t)
//	    defer cleanup()
//
//	    store, err := postgres.Open(ctx, pg.DSN, 4)
//	    // ... test code ...
//	}
type PostgresContainer struct {
	t *testing.T

	// DSN connects to the test database with sslmode=disable.
	DSN string

	// Container is the running Postgres container.
	Container testcontainers.Container

	Host string
	Port int
}

// SetupPostgresContainer starts Postgres and waits until it accepts
// connections. The container is terminated via t.Cleanup().
//
// Requirements:
//   - Docker daemon running and accessible
func SetupPostgresContainer(t *testing.T) (*PostgresContainer, func()) {
	t.Helper()

	ctx := context.Background()
	const (
		user     = "popc"
		password = "popc-test"
		database = "popc"
	)

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     user,
			"POSTGRES_PASSWORD": password,
			"POSTGRES_DB":       database,
		},
		// The server logs readiness twice: once for the init run, once for
		// the real start.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}

	pc := &PostgresContainer{t: t, Container: container}

	cleanup := func() {
		if pc.Container == nil {
			return
		}
		t.Log("Terminating Postgres container...")
		if err := pc.Container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate Postgres container: %v", err)
		}
		pc.Container = nil
	}
	t.Cleanup(cleanup)

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get Postgres host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get Postgres port: %v", err)
	}

	pc.Host = host
	pc.Port = port.Int()
	pc.DSN = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", user, password, host, pc.Port, database)

	t.Logf("Postgres started: %s:%d", pc.Host, pc.Port)
	return pc, cleanup
}
