package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepwise/interview-engine/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "postgres", cfg.JobStore)
	assert.Equal(t, []string{"groq", "together", "gemini", "anthropic"}, cfg.ProviderOrder)
	assert.Equal(t, 120*time.Second, cfg.PipelineDeadline)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 5, cfg.QuestionCount)
	assert.True(t, cfg.IsDev())
	assert.False(t, cfg.IsProd())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("PROVIDER_ORDER", "gemini,groq")
	t.Setenv("PIPELINE_DEADLINE", "90s")
	t.Setenv("QUESTION_COUNT", "0")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, []string{"gemini", "groq"}, cfg.ProviderOrder)
	assert.Equal(t, 90*time.Second, cfg.PipelineDeadline)
	assert.Equal(t, 5, cfg.QuestionCount, "zero falls back to default")
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("PIPELINE_DEADLINE", "not-a-duration")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestRetryWait(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsTest())
	assert.Equal(t, 10*time.Millisecond, cfg.RetryWait())

	cfg.AppEnv = "prod"
	assert.Equal(t, 2*time.Second, cfg.RetryWait())
}
