package container

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/USSTM/microservice/internal/config"
	"github.com/USSTM/microservice/internal/crash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.Filename = ""
	cfg.Deploy = filepath.Join(t.TempDir(), config.DeployConfigName)
	cfg.AWS.AccessKeyID = "test"
	cfg.AWS.SecretAccessKey = "test"
	return cfg
}

func TestNew(t *testing.T) {
	c, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer c.Cleanup()

	assert.NotNil(t, c.API)
	assert.NotNil(t, c.Metrics)
	assert.NotNil(t, c.EC2Detector)
	assert.IsType(t, crash.LogReporter{}, c.Reporter)
}

func TestNewReporter(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown reporter", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Crash.Reporter = "pager"
		_, err := newReporter(ctx, cfg)
		assert.Error(t, err)
	})

	t.Run("s3 needs a bucket", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Crash.Reporter = "s3"
		_, err := newReporter(ctx, cfg)
		assert.Error(t, err)
	})

	t.Run("ses needs a recipient", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Crash.Reporter = "ses"
		cfg.AWS.FromEmail = "crash@example.com"
		_, err := newReporter(ctx, cfg)
		assert.Error(t, err)
	})

	t.Run("s3", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Crash.Reporter = "s3"
		cfg.AWS.Bucket = "error-reports"
		r, err := newReporter(ctx, cfg)
		require.NoError(t, err)
		assert.NotNil(t, r)
	})
}
