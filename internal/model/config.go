package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// MailServerConfig holds connection settings for one mail server.
type MailServerConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`

	// Encryption is "ssl" for implicit TLS, "tls" or "starttls" for an
	// upgraded connection, or "none".
	Encryption string `mapstructure:"encryption" yaml:"encryption"`

	// FromName is the display name used on outgoing mail (SMTP only).
	FromName string `mapstructure:"from_name" yaml:"from_name"`
}

// Addr returns host:port.
func (c MailServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// OpenAIConfig holds settings for the AI provider.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// PolicyConfig holds the gating and routing policy.
type PolicyConfig struct {
	AllowedDomains      []string `mapstructure:"allowed_domains" yaml:"allowed_domains"`
	BlockedRecipients   []string `mapstructure:"blocked_recipients" yaml:"blocked_recipients"`
	BlockedSenders      []string `mapstructure:"blocked_senders" yaml:"blocked_senders"`
	ReplyAllowedSenders []string `mapstructure:"reply_allowed_senders" yaml:"reply_allowed_senders"`
	MaxRecipients       int      `mapstructure:"max_recipients" yaml:"max_recipients"`
	DailyRequestLimit   int      `mapstructure:"daily_request_limit" yaml:"daily_request_limit"`
	AllowAIRecipients   bool     `mapstructure:"allow_ai_recipients" yaml:"allow_ai_recipients"`
	IgnoreCcEmails      bool     `mapstructure:"ignore_cc_emails" yaml:"ignore_cc_emails"`
	SenderDirectives    bool     `mapstructure:"sender_directives" yaml:"sender_directives"`
}

// ReplyConfig holds settings for reply generation.
type ReplyConfig struct {
	DefaultPrompt       string `mapstructure:"default_prompt" yaml:"default_prompt"`
	IncludeThreadEmails bool   `mapstructure:"include_thread_emails" yaml:"include_thread_emails"`
	PauseMillis         int    `mapstructure:"pause_ms" yaml:"pause_ms"`
}

// StorageConfig selects where the rate-limit history lives.
type StorageConfig struct {
	// Backend is "file" or "sqlite".
	Backend            string `mapstructure:"backend" yaml:"backend"`
	RequestHistoryFile string `mapstructure:"request_history_file" yaml:"request_history_file"`
	DatabasePath       string `mapstructure:"database_path" yaml:"database_path"`
}

// WatchConfig holds settings for the polling loop.
type WatchConfig struct {
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	SMTP    MailServerConfig `mapstructure:"smtp" yaml:"smtp"`
	IMAP    MailServerConfig `mapstructure:"imap" yaml:"imap"`
	OpenAI  OpenAIConfig     `mapstructure:"openai" yaml:"openai"`
	Policy  PolicyConfig     `mapstructure:"policy" yaml:"policy"`
	Reply   ReplyConfig      `mapstructure:"reply" yaml:"reply"`
	Storage StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Watch   WatchConfig      `mapstructure:"watch" yaml:"watch"`
	Debug   bool             `mapstructure:"debug" yaml:"debug"`
}

// SelfAddress is the mailbox address the service answers from.
func (c *AppConfig) SelfAddress() string {
	return c.SMTP.Username
}

// envBindings maps config keys to the environment variable names the
// service has always been configured with.
var envBindings = map[string]string{
	"smtp.host":                    "EMAIL_HOST",
	"smtp.port":                    "EMAIL_PORT",
	"smtp.username":                "EMAIL_USERNAME",
	"smtp.password":                "EMAIL_PASSWORD",
	"smtp.encryption":              "EMAIL_ENCRYPTION",
	"smtp.from_name":               "EMAIL_FROM_NAME",
	"imap.host":                    "IMAP_HOST",
	"imap.port":                    "IMAP_PORT",
	"imap.username":                "IMAP_USERNAME",
	"imap.password":                "IMAP_PASSWORD",
	"imap.encryption":              "IMAP_ENCRYPTION",
	"openai.api_key":               "OPENAI_API_KEY",
	"openai.model":                 "OPENAI_MODEL",
	"openai.base_url":              "OPENAI_BASE_URL",
	"policy.allowed_domains":       "ALLOWED_DOMAINS",
	"policy.blocked_recipients":    "BLOCKED_RECIPIENTS",
	"policy.blocked_senders":       "BLOCKED_SENDERS",
	"policy.reply_allowed_senders": "REPLY_ALLOWED_SENDERS",
	"policy.max_recipients":        "MAX_RECIPIENTS",
	"policy.daily_request_limit":   "DAILY_REQUEST_LIMIT",
	"policy.allow_ai_recipients":   "ALLOW_AI_RECIPIENTS",
	"policy.ignore_cc_emails":      "IGNORE_CC_EMAILS",
	"policy.sender_directives":     "SENDER_DIRECTIVES",
	"reply.default_prompt":         "DEFAULT_PROMPT",
	"reply.include_thread_emails":  "INCLUDE_THREAD_EMAILS",
	"reply.pause_ms":               "PAUSE_MS",
	"storage.backend":              "STORAGE_BACKEND",
	"storage.request_history_file": "REQUEST_HISTORY_FILE",
	"storage.database_path":        "DATABASE_PATH",
	"watch.interval_sec":           "POLL_INTERVAL_SEC",
	"debug":                        "DEBUG",
}

// listKeys are read as comma separated strings from the environment.
var listKeys = []string{
	"policy.allowed_domains",
	"policy.blocked_recipients",
	"policy.blocked_senders",
	"policy.reply_allowed_senders",
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailreply/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailreply", "config.yaml")
}

// DefaultDataDir returns the directory for history and database files.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".local", "share", "mailreply")
}

// LoadConfig reads configuration from an optional .env file, the YAML
// file at path and the environment, in increasing order of precedence.
// A missing file at either location is not an error.
func LoadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("smtp.port", "587")
	v.SetDefault("smtp.encryption", "starttls")
	v.SetDefault("smtp.from_name", "Ai.Z")
	v.SetDefault("imap.port", "993")
	v.SetDefault("imap.encryption", "ssl")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("policy.max_recipients", 10)
	v.SetDefault("policy.daily_request_limit", 10)
	v.SetDefault("reply.pause_ms", 1000)
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.request_history_file", filepath.Join(DefaultDataDir(), "request_history.json"))
	v.SetDefault("storage.database_path", filepath.Join(DefaultDataDir(), "mailreply.db"))
	v.SetDefault("watch.interval_sec", 60)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			var pathErr *fs.PathError
			if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	lists := map[string]*[]string{
		"policy.allowed_domains":       &cfg.Policy.AllowedDomains,
		"policy.blocked_recipients":    &cfg.Policy.BlockedRecipients,
		"policy.blocked_senders":       &cfg.Policy.BlockedSenders,
		"policy.reply_allowed_senders": &cfg.Policy.ReplyAllowedSenders,
	}
	for _, key := range listKeys {
		*lists[key] = stringList(v, key)
	}

	// The IMAP account doubles as the sending account unless set apart.
	if cfg.SMTP.Username == "" {
		cfg.SMTP.Username = cfg.IMAP.Username
	}
	if cfg.IMAP.Username == "" {
		cfg.IMAP.Username = cfg.SMTP.Username
	}

	return cfg, nil
}

// Validate reports the first missing required setting.
func (c *AppConfig) Validate() error {
	required := []struct {
		name, value string
	}{
		{"IMAP_HOST", c.IMAP.Host},
		{"IMAP_USERNAME", c.IMAP.Username},
		{"EMAIL_HOST", c.SMTP.Host},
		{"EMAIL_USERNAME", c.SMTP.Username},
		{"OPENAI_API_KEY", c.OpenAI.APIKey},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("missing required setting %s", r.name)
		}
	}

	switch c.Storage.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed. Secrets are not written.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	redacted := *cfg
	redacted.SMTP.Password = ""
	redacted.IMAP.Password = ""
	redacted.OpenAI.APIKey = ""

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("smtp", redacted.SMTP)
	v.Set("imap", redacted.IMAP)
	v.Set("openai", redacted.OpenAI)
	v.Set("policy", redacted.Policy)
	v.Set("reply", redacted.Reply)
	v.Set("storage", redacted.Storage)
	v.Set("watch", redacted.Watch)
	v.Set("debug", redacted.Debug)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// stringList reads key as a YAML sequence or as a comma separated string.
func stringList(v *viper.Viper, key string) []string {
	raw := v.Get(key)
	var parts []string
	switch val := raw.(type) {
	case nil:
		return nil
	case string:
		parts = strings.Split(val, ",")
	default:
		parts = v.GetStringSlice(key)
	}

	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
