package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perfhrm/internal/domain/auth"
	"perfhrm/internal/domain/evaluation"
)

const cliSecret = "cli-test-secret-0123456789abcdefghij"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(VersionInfo{Version: "test"})
	var out, logs bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCommandMintsParsableToken(t *testing.T) {
	t.Setenv("JWT_SECRET", cliSecret)

	out, err := run(t, "token", "--user", "mgr-1", "--tenant", "t1", "--role", auth.RoleEvaluator)
	require.NoError(t, err)

	claims, err := auth.ParseToken(cliSecret, strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "mgr-1", claims.UserID)
	assert.Equal(t, "t1", claims.TenantID)
	assert.Equal(t, auth.RoleEvaluator, claims.RoleName)

	_, err = run(t, "token", "--user", "mgr-1", "--role", "owner")
	require.Error(t, err)
}

func TestStatusAndRevisionsAgainstMemoryDriver(t *testing.T) {
	dir := t.TempDir()
	fixtures := filepath.Join(dir, "fixtures.yaml")
	require.NoError(t, os.WriteFile(fixtures, []byte(`
periods:
  - id: p1
    employees:
      - id: emp-1
        wbs:
          - wbsItemId: w1
            projectId: proj
`), 0o600))
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", cliSecret)
	t.Setenv("FIXTURES_FILE", fixtures)
	t.Setenv("REPORT_DIR", dir)

	out, err := run(t, "status", "--period", "p1", "--employee", "emp-1")
	require.NoError(t, err)
	var status evaluation.EmployeeStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, evaluation.StatusInProgress, status.SelfEvaluation.Status)
	assert.Equal(t, evaluation.StatusNone, status.PrimaryEvaluation.Status)

	out, err = run(t, "revisions", "--period", "p1", "--open")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))

	out, err = run(t, "report", "--period", "p1")
	require.NoError(t, err)
	_, err = os.Stat(strings.TrimSpace(out))
	require.NoError(t, err)

	_, err = run(t, "revisions", "--period", "p1", "--step", "peer")
	require.Error(t, err)
}
