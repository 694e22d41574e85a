package commands

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// sandbox is a local store plus a config file pointing at it.
type sandbox struct {
	dir    string
	store  string
	config string
}

func newSandbox(t *testing.T, extra string) *sandbox {
	t.Helper()
	dir := t.TempDir()
	sb := &sandbox{
		dir:    dir,
		store:  filepath.Join(dir, "storage"),
		config: filepath.Join(dir, "tmpsweep.yml"),
	}
	require.NoError(t, os.MkdirAll(sb.store, 0o755))

	cfg := "storage:\n  driver: local\n  local:\n    path: " + filepath.ToSlash(sb.store) + "\n" +
		"ignore_file: " + filepath.ToSlash(filepath.Join(dir, ".sweepignore")) + "\n" + extra
	require.NoError(t, os.WriteFile(sb.config, []byte(cfg), 0o644))
	return sb
}

func (sb *sandbox) write(t *testing.T, rel string, size int) {
	t.Helper()
	path := filepath.Join(sb.store, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), size), 0o644))
}

func (sb *sandbox) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(sb.store, filepath.FromSlash(rel)))
	return err == nil
}

func today() string {
	return time.Now().UTC().Format("2006/01/02")
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}
