package commands

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bit2swaz/tmpsweep/internal/api"
	"github.com/bit2swaz/tmpsweep/internal/auth"
	"github.com/bit2swaz/tmpsweep/internal/runner"
	"github.com/bit2swaz/tmpsweep/internal/sweeper"
)

type stubRunner struct {
	req runner.Request
}

func (s *stubRunner) Run(_ context.Context, req runner.Request) (sweeper.Summary, error) {
	s.req = req
	return sweeper.Summary{Root: "tmp", DryRun: req.DryRun, Files: 2, Bytes: 1048576}, nil
}

func TestLoginThenRemoteSweep(t *testing.T) {
	t.Setenv(auth.PathEnv, filepath.Join(t.TempDir(), "credentials.json"))

	sr := &stubRunner{}
	srv := httptest.NewServer(api.NewServer(sr, nil, api.Config{WindowDays: 1, AuthToken: "tok"}).Handler())
	defer srv.Close()

	out, _, err := execute(t, "login", "--server", srv.URL, "--token", "tok")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved credentials for "+srv.URL)

	out, _, err = execute(t, "remote", "sweep", "--dry-run", "--days", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Would delete 2 files (1 MB)")
	assert.Equal(t, 3, sr.req.WindowDays)
	assert.True(t, sr.req.DryRun)
}

func TestRemoteWithoutLogin(t *testing.T) {
	t.Setenv(auth.PathEnv, filepath.Join(t.TempDir(), "credentials.json"))

	_, stderr, err := execute(t, "remote", "sweep")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
	assert.Contains(t, stderr, "not logged in")
}

func TestRemoteSweepRejectedToken(t *testing.T) {
	t.Setenv(auth.PathEnv, filepath.Join(t.TempDir(), "credentials.json"))

	srv := httptest.NewServer(api.NewServer(&stubRunner{}, nil, api.Config{AuthToken: "tok"}).Handler())
	defer srv.Close()

	require.NoError(t, auth.Save(auth.Credentials{Server: srv.URL, Token: "bad"}))

	_, stderr, err := execute(t, "remote", "sweep")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, stderr, "401")
}
