package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
)

const sampleYAML = `
surfin:
  batch:
    job_name: ${TEST_JOB_NAME:simpleJob}
    chunk_size: 25
    retry:
      max_attempts: 5
      initial_interval: 50ms
    repository:
      type: sql
      db_ref: metadata
  database:
    metadata:
      type: sqlite
      database: ":memory:"
  storage:
    export:
      type: local
      base_dir: /tmp/export
  system:
    logging:
      level: debug
`

func TestLoadConfig_YAMLOverDefaults(t *testing.T) {
	cfg, err := LoadConfig("", EmbeddedConfig(sampleYAML), nil)
	require.NoError(t, err)

	assert.Equal(t, "simpleJob", cfg.Surfin.Batch.JobName)
	assert.Equal(t, 25, cfg.Surfin.Batch.ChunkSize)
	assert.Equal(t, 5, cfg.Surfin.Batch.Retry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Surfin.Batch.Retry.InitialInterval)
	// untouched defaults survive
	assert.Equal(t, 2*time.Second, cfg.Surfin.Batch.Retry.MaxInterval)
	assert.Equal(t, "sqlite", cfg.Surfin.Database["metadata"].Type)
	assert.Equal(t, "/tmp/export", cfg.Surfin.Storage["export"].BaseDir)
	assert.Equal(t, "debug", cfg.Surfin.System.Logging.Level)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("TEST_JOB_NAME", "deciderJob")
	t.Setenv("SURFIN_BATCH_CHUNK_SIZE", "7")
	t.Setenv("SURFIN_BATCH_RETRY_MAX_INTERVAL", "5s")
	t.Setenv("SURFIN_DATABASE_METADATA_HOST", "db.internal")
	t.Setenv("SURFIN_SECURITY_MASKED_PARAMETER_KEYS", "token, pin")

	cfg, err := LoadConfig("", EmbeddedConfig(sampleYAML), nil)
	require.NoError(t, err)

	assert.Equal(t, "deciderJob", cfg.Surfin.Batch.JobName)
	assert.Equal(t, 7, cfg.Surfin.Batch.ChunkSize)
	assert.Equal(t, 5*time.Second, cfg.Surfin.Batch.Retry.MaxInterval)
	assert.Equal(t, "db.internal", cfg.Surfin.Database["metadata"].Host)
	assert.Equal(t, "sqlite", cfg.Surfin.Database["metadata"].Type)
	assert.Equal(t, []string{"token", "pin"}, cfg.Surfin.Security.MaskedParameterKeys)
}

func TestLoadConfig_InvalidChunkSize(t *testing.T) {
	_, err := LoadConfig("", EmbeddedConfig("surfin:\n  batch:\n    chunk_size: -1\n"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrConfiguration))
}

func TestLoadConfig_SQLRepositoryNeedsDatasource(t *testing.T) {
	_, err := LoadConfig("", EmbeddedConfig("surfin:\n  batch:\n    repository:\n      type: sql\n      db_ref: missing\n"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrConfiguration))
}

func TestOsEnvironmentExpander(t *testing.T) {
	t.Setenv("EXPANDER_SET", "value")
	out, err := NewOsEnvironmentExpander().Expand([]byte("a=${EXPANDER_SET} b=${EXPANDER_UNSET:fallback} c=${EXPANDER_UNSET}"))
	require.NoError(t, err)
	assert.Equal(t, "a=value b=fallback c=", string(out))
}
