package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "587", cfg.SMTP.Port)
	assert.Equal(t, "starttls", cfg.SMTP.Encryption)
	assert.Equal(t, "993", cfg.IMAP.Port)
	assert.Equal(t, "ssl", cfg.IMAP.Encryption)
	assert.Equal(t, 10, cfg.Policy.MaxRecipients)
	assert.Equal(t, 10, cfg.Policy.DailyRequestLimit)
	assert.Equal(t, 1000, cfg.Reply.PauseMillis)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, 60, cfg.Watch.IntervalSec)
}

func TestLoadConfig_EnvironmentOverridesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
imap:
  host: imap.file.example
  username: bot@example.com
policy:
  allowed_domains:
    - example.com
    - example.org
  max_recipients: 5
`), 0o600))

	t.Setenv("IMAP_HOST", "imap.env.example")
	t.Setenv("BLOCKED_SENDERS", " spam@example.com, ,noreply@example.com ")
	t.Setenv("ALLOW_AI_RECIPIENTS", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "imap.env.example", cfg.IMAP.Host)
	assert.Equal(t, []string{"example.com", "example.org"}, cfg.Policy.AllowedDomains)
	assert.Equal(t, []string{"spam@example.com", "noreply@example.com"}, cfg.Policy.BlockedSenders)
	assert.Equal(t, 5, cfg.Policy.MaxRecipients)
	assert.True(t, cfg.Policy.AllowAIRecipients)
	assert.Equal(t, "bot@example.com", cfg.SMTP.Username)
	assert.Equal(t, "bot@example.com", cfg.SelfAddress())
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENAI_MODEL=gpt-4o-mini\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("OPENAI_MODEL") })

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
}

func TestValidate(t *testing.T) {
	cfg := &AppConfig{
		IMAP:    MailServerConfig{Host: "imap.example.com", Username: "bot@example.com"},
		SMTP:    MailServerConfig{Host: "smtp.example.com", Username: "bot@example.com"},
		OpenAI:  OpenAIConfig{APIKey: "sk-test"},
		Storage: StorageConfig{Backend: "sqlite"},
	}
	require.NoError(t, cfg.Validate())

	cfg.OpenAI.APIKey = " "
	assert.EqualError(t, cfg.Validate(), "missing required setting OPENAI_API_KEY")

	cfg.OpenAI.APIKey = "sk-test"
	cfg.Storage.Backend = "redis"
	assert.EqualError(t, cfg.Validate(), `unknown storage backend "redis"`)
}

func TestSaveConfig_RedactsSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := &AppConfig{
		IMAP:   MailServerConfig{Host: "imap.example.com", Password: "imap-secret"},
		OpenAI: OpenAIConfig{APIKey: "sk-secret", Model: "gpt-4o"},
	}

	require.NoError(t, SaveConfig(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "imap.example.com")
	assert.NotContains(t, string(data), "imap-secret")
	assert.NotContains(t, string(data), "sk-secret")
	assert.Equal(t, "imap-secret", cfg.IMAP.Password)
}
