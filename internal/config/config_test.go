package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "procuredata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9000"
auth:
  jwt_secret: "file-secret-0123456789"
mail:
  concurrency: 4
  send_timeout: 3s
cors:
  allowed_origins: ["https://app.procuredata.io"]
`), 0o600))

	t.Setenv("PROCUREDATA_HTTP_ADDR", ":9100")
	t.Setenv("PROCUREDATA_PG_DSN", "postgres://localhost/procuredata")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.HTTP.Addr)
	assert.Equal(t, "postgres://localhost/procuredata", cfg.Database.DSN)
	assert.Equal(t, "file-secret-0123456789", cfg.Auth.JWTSecret)
	assert.Equal(t, 4, cfg.Mail.Concurrency)
	assert.Equal(t, 3*time.Second, cfg.Mail.SendTimeout)
	assert.Equal(t, []string{"https://app.procuredata.io"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "https://api.resend.com", cfg.Mail.APIURL)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("PROCUREDATA_JWT_SECRET", "")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret")
}

func TestApplyEnvParsesListsAndDurations(t *testing.T) {
	env := map[string]string{
		"PROCUREDATA_CORS_ORIGINS":      "https://a.example, https://b.example,",
		"PROCUREDATA_MAIL_SEND_TIMEOUT": "250ms",
		"PROCUREDATA_GRPC_ADDR":         "-",
	}
	cfg := Default()
	require.NoError(t, applyEnv(&cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.Mail.SendTimeout)
	assert.Empty(t, cfg.GRPC.Addr)
}

func TestApplyEnvRejectsBadConcurrency(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, func(k string) (string, bool) {
		if k == "PROCUREDATA_MAIL_CONCURRENCY" {
			return "many", true
		}
		return "", false
	})
	require.Error(t, err)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "short"
	cfg.Identity.URL = "https://id.example"
	cfg.Mail.Concurrency = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 16 bytes")
	assert.Contains(t, err.Error(), "identity.service_key")
	assert.Contains(t, err.Error(), "mail.concurrency")
}
