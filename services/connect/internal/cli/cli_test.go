package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes connectctl against a fresh SQLite database in a temp dir.
func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("BACKEND", "sqlite")
	t.Setenv("REDIS_URL", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("ADMIN_EMAILS", "admin@ruet.ac.bd")
	t.Setenv("DEMO_ENABLED", "true")
	t.Setenv("ENV", "development")
	t.Setenv("JWT_SIGNING_KEY", "")

	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append([]string{"--db", dbPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func tempDB(t *testing.T) string {
	return filepath.Join(t.TempDir(), "connect.db")
}

func TestShortID(t *testing.T) {
	db := tempDB(t)

	out, err := run(t, db, "short-id", "2103141")
	require.NoError(t, err)
	assert.Contains(t, out, "2103141@student.ruet.ac.bd")
	assert.Contains(t, out, "role=Student admin=false")

	out, err = run(t, db, "-o", "json", "short-id", "admin@ruet.ac.bd")
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "admin", got["short_id"])
	assert.Equal(t, "Teacher", got["role"])
	assert.Equal(t, true, got["is_admin"])

	_, err = run(t, db, "short-id", "21@student.ruet.ac.bd")
	assert.Error(t, err)
}

func TestProvisionDemoAndPending(t *testing.T) {
	db := tempDB(t)

	out, err := run(t, db, "-o", "json", "provision-demo")
	require.NoError(t, err)
	var user map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &user))
	assert.Equal(t, "2103141", user["short_id"])
	id, _ := user["id"].(string)
	require.NotEmpty(t, id)

	out, err = run(t, db, "provision-demo")
	require.NoError(t, err)
	assert.Contains(t, out, "(id "+id+")", "second run reuses the account")

	out, err = run(t, db, "pending", id)
	require.NoError(t, err)
	assert.Equal(t, "0", strings.TrimSpace(out))
}

func TestMigrateAndPurge(t *testing.T) {
	db := tempDB(t)

	out, err := run(t, db, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied")

	out, err = run(t, db, "purge-orphans")
	require.NoError(t, err)
	assert.Equal(t, "purged 0 orphaned profile(s), 0 expired token(s)", strings.TrimSpace(out))

	_, err = run(t, db, "--backend", "firebase", "migrate")
	assert.ErrorContains(t, err, "sqlite backend only")
}

func TestOutputFlagValidated(t *testing.T) {
	_, err := run(t, tempDB(t), "-o", "yaml", "version")
	assert.ErrorContains(t, err, "--output")
}
