package credential

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"
	"github.com/samber/lo"

	"github.com/nhle/mailreply/internal/model"
)

const serviceName = "mailreply"

// Keys under which secrets are stored.
const (
	KeyIMAPPassword = "imap-password"
	KeySMTPPassword = "smtp-password"
	KeyOpenAIAPIKey = "openai-api-key"
)

// Keys lists every key the responder reads.
var Keys = []string{KeyIMAPPassword, KeySMTPPassword, KeyOpenAIAPIKey}

// ErrNotFound is returned by Get when no secret is stored under the key.
var ErrNotFound = keyring.ErrKeyNotFound

// Store reads and writes secrets.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Keyring is a Store backed by the OS keyring.
type Keyring struct {
	open func() (keyring.Keyring, error)
}

// NewKeyring returns a Store using the system keyring, falling back to an
// encrypted file under dataDir.
func NewKeyring(dataDir string) *Keyring {
	return &Keyring{open: func() (keyring.Keyring, error) {
		return openKeyring(dataDir)
	}}
}

// newKeyringFrom wraps an already opened keyring.
func newKeyringFrom(ring keyring.Keyring) *Keyring {
	return &Keyring{open: func() (keyring.Keyring, error) { return ring, nil }}
}

// openKeyring returns a configured keyring instance.
func openKeyring(dataDir string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(dataDir, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("mailreply-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key.
func (k *Keyring) Get(key string) (string, error) {
	ring, err := k.open()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key.
func (k *Keyring) Set(key string, value string) error {
	ring, err := k.open()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key.
func (k *Keyring) Delete(key string) error {
	ring, err := k.open()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// ValidKey reports whether key is one the responder reads.
func ValidKey(key string) bool {
	return lo.Contains(Keys, key)
}

// FillSecrets reads every secret that cfg leaves empty from store.
// Missing keys are skipped; any other store error is returned.
func FillSecrets(cfg *model.AppConfig, store Store) error {
	fields := []struct {
		key string
		dst *string
	}{
		{KeyIMAPPassword, &cfg.IMAP.Password},
		{KeySMTPPassword, &cfg.SMTP.Password},
		{KeyOpenAIAPIKey, &cfg.OpenAI.APIKey},
	}

	for _, f := range fields {
		if *f.dst != "" {
			continue
		}
		v, err := store.Get(f.key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		*f.dst = v
	}

	// Same account on both servers: one stored password serves both.
	if cfg.SMTP.Password == "" && cfg.SMTP.Username == cfg.IMAP.Username {
		cfg.SMTP.Password = cfg.IMAP.Password
	}

	return nil
}
