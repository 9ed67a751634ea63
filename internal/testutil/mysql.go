//go:build integration

package testutil

import (
	"context"
	"database/sql"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/learntrack/learntrack/internal/config"
	"github.com/learntrack/learntrack/internal/database"
)

const (
	mysqlImage    = "mysql:8.4"
	mysqlPort     = "3306/tcp"
	mysqlPassword = "learntrack"
	mysqlDatabase = "learntrack"
)

// SkipIfNoDocker skips the test when no Docker daemon answers.
func SkipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("docker not available")
	}
}

// MySQL starts a throwaway MySQL server, applies both schemas and returns
// an open pool. The container is removed when the test ends.
func MySQL(t *testing.T) *sql.DB {
	t.Helper()
	SkipIfNoDocker(t)
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        mysqlImage,
			ExposedPorts: []string{mysqlPort},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": mysqlPassword,
				"MYSQL_DATABASE":      mysqlDatabase,
			},
			// The init server logs "port: 0"; only the final one listens on 3306.
			WaitingFor: wait.ForAll(
				wait.ForLog("port: 3306"),
				wait.ForListeningPort(mysqlPort),
			).WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("terminate mysql container: %v", err)
		}
	})

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, mysqlPort)
	require.NoError(t, err)

	cfg := config.Database{
		DBUser:            "root",
		DBPass:            mysqlPassword,
		DBHost:            host,
		DBPort:            port.Port(),
		DBName:            mysqlDatabase,
		DBMaxOpenConns:    10,
		DBMaxIdleConns:    10,
		DBConnMaxLifetime: time.Minute,
	}
	var db *sql.DB
	require.Eventually(t, func() bool {
		conn, err := database.Open(ctx, cfg)
		if err != nil {
			return false
		}
		db = conn
		return true
	}, time.Minute, time.Second, "mysql never accepted connections")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db, database.AuthSchema))
	require.NoError(t, database.Migrate(ctx, db, database.ResourceSchema))
	return db
}
