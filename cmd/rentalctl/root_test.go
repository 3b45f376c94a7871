package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rentaldesk/rentals/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "rentals.db") + "?_pragma=foreign_keys(1)"
	t.Setenv("DATABASE_URL", dsn)
	t.Setenv("RENTALS_DB_DRIVER", "sqlite")
	t.Setenv("RENTALS_LOG_LEVEL", "error")

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrated sqlite database")

	out, err = run(t, "create-user", "--username", "Ops", "--password", "ops12345", "--admin")
	require.NoError(t, err)
	assert.Contains(t, out, `created admin user "ops"`)

	_, err = run(t, "create-user", "--username", "ops", "--password", "ops12345")
	assert.ErrorContains(t, err, "already taken")

	out, err = run(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 2 owners")

	out, err = run(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing seeded")

	out, err = run(t, "dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, `"total_contracts": 2`)
}

func TestMigrateRejectsMemoryDriver(t *testing.T) {
	err := migrate(context.Background(), config.DatabaseConfig{Driver: "memory"}, zap.NewNop(), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestCreateUserRequiresFlags(t *testing.T) {
	_, err := run(t, "create-user", "--username", "x")
	assert.ErrorContains(t, err, "password")
}
