package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "env-secret")
	t.Setenv("API_KEY", "env-api-key")
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("JWT_EXPIRY_HOURS", "2")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.JWT.SecretKey)
	assert.Equal(t, "env-api-key", cfg.Server.APIKey)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 2*time.Hour, cfg.JWT.Expiry())
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 20, cfg.Pagination.HistoryPageSize)
	assert.Equal(t, 30, cfg.Pagination.AdminPageSize)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Contains(t, cfg.Database.DSN(), "host=db.internal")
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "JWT_SECRET_KEY=file-secret\nAPI_KEY=file-key\nDATABASE_NAME=ledger_test\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Run("file values are used", func(t *testing.T) {
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "file-secret", cfg.JWT.SecretKey)
		assert.Equal(t, "file-key", cfg.Server.APIKey)
		assert.Equal(t, "ledger_test", cfg.Database.Name)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("DATABASE_NAME", "from_env")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "from_env", cfg.Database.Name)
	})
}

func TestLoad_MissingFileFallsBackToEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "env-secret")
	t.Setenv("API_KEY", "env-api-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.JWT.SecretKey)
}

func TestLoad_RequiresSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")
	t.Setenv("API_KEY", "key")

	_, err := Load("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET_KEY")
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		Server:     ServerConfig{APIKey: "k"},
		JWT:        JWTConfig{SecretKey: "s", ExpiryHours: 1},
		Argon2:     Argon2Config{SaltLength: 16, KeyLength: 32},
		Pagination: PaginationConfig{HistoryPageSize: 20, AdminPageSize: 30, MaxPageSize: 100},
	}
	assert.NoError(t, valid.Validate())

	tooSmall := valid
	tooSmall.Pagination.MaxPageSize = 10
	assert.Error(t, tooSmall.Validate())

	noKey := valid
	noKey.Server.APIKey = ""
	assert.Error(t, noKey.Validate())
}
