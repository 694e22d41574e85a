package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bit2swaz/tmpsweep"
	"github.com/bit2swaz/tmpsweep/internal/config"
)

func TestInitWritesTemplate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "tmpsweep.yml")

	out, _, err := execute(t, "init", "--output", target)
	require.NoError(t, err)
	assert.Equal(t, "Generated tmpsweep.yml\n", out)

	cfg, err := config.Load(target)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	def := config.Default()
	assert.Equal(t, def.Root, cfg.Root)
	assert.Equal(t, def.WindowDays, cfg.WindowDays)
	assert.Equal(t, def.Storage, cfg.Storage)
	assert.Equal(t, def.Schedule, cfg.Schedule)
	assert.Equal(t, def.Log, cfg.Log)
	assert.Equal(t, def.Server, cfg.Server)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Retention root inside the store.")
}

func TestInitOverrides(t *testing.T) {
	target := filepath.Join(t.TempDir(), "conf", "tmpsweep.yml")

	_, _, err := execute(t, "init", "--output", target,
		"--driver", "s3", "--bucket", "uploads", "--endpoint", "http://localhost:9000",
		"--days", "7", "--root", "incoming/tmp")
	require.NoError(t, err)

	cfg, err := config.Load(target)
	require.NoError(t, err)
	assert.Equal(t, "s3", cfg.Storage.Driver)
	assert.Equal(t, "uploads", cfg.Storage.S3.Bucket)
	assert.Equal(t, "http://localhost:9000", cfg.Storage.S3.Endpoint)
	assert.True(t, cfg.Storage.S3.UsePathStyle)
	assert.Equal(t, 7, cfg.WindowDays)
	assert.Equal(t, "incoming/tmp", cfg.Root)
}

func TestInitRefusesExistingFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "tmpsweep.yml")
	require.NoError(t, os.WriteFile(target, []byte("root: keep\n"), 0o644))

	_, _, err := execute(t, "init", "--output", target)
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "root: keep\n", string(data))

	_, _, err = execute(t, "init", "--output", target, "--force")
	require.NoError(t, err)
}

func TestInitRejectsInvalidValues(t *testing.T) {
	target := filepath.Join(t.TempDir(), "tmpsweep.yml")

	_, _, err := execute(t, "init", "--output", target, "--driver", "ftp")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
	assert.NoFileExists(t, target)
}

func TestRenderTemplateUnknownKey(t *testing.T) {
	_, err := renderTemplate(tmpsweep.ConfigTemplate(), map[string]string{"storage.gcs.bucket": "x"})
	assert.ErrorContains(t, err, `"storage.gcs"`)
}
