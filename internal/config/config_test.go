package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into a fresh directory so no stray config.yaml or .env is read.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Economy, cfg.Economy)
	assert.Equal(t, Default().Content, cfg.Content)
	assert.Equal(t, "none", cfg.LLM.Provider)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.RegenEvery)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "zapquiz.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
economy:
  heart_price: 75
  heart_interval: 2h
content:
  pass_threshold: 60
http:
  jwt_secret: from-file
`), 0o600))

	t.Setenv("ZAPQUIZ_HTTP_JWT_SECRET", "from-env")
	t.Setenv("ZAPQUIZ_STORE_DSN", "/tmp/quiz.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.Economy.HeartPrice)
	assert.Equal(t, 2*time.Hour, cfg.Economy.HeartInterval)
	assert.Equal(t, 5, cfg.Economy.MaxHearts)
	assert.InDelta(t, 60.0, cfg.Content.PassThreshold, 0.001)
	assert.Equal(t, "from-env", cfg.HTTP.JWTSecret)
	assert.Equal(t, "/tmp/quiz.db", cfg.Store.DSN)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ZAPQUIZ_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("ZAPQUIZ_LOG_LEVEL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	chdir(t)

	t.Setenv("ZAPQUIZ_STORE_DRIVER", "oracle")
	_, err := Load("")
	assert.ErrorContains(t, err, "store.driver")

	t.Setenv("ZAPQUIZ_STORE_DRIVER", "")
	t.Setenv("ZAPQUIZ_LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err = Load("")
	assert.ErrorContains(t, err, "api_key")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())

	log.Info("dropped")
	log.WithField("attempt_id", "a1").Warn("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "a1", line["attempt_id"])

	_, err = NewLogger(LogConfig{Format: "xml"})
	assert.Error(t, err)
	_, err = NewLogger(LogConfig{Level: "loud"})
	assert.Error(t, err)
}
