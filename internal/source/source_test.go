package source

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAuthError(t *testing.T) {
	err := fmt.Errorf("connecting: %w", &AuthError{Service: ServiceIMAP, Message: "bad password"})
	assert.True(t, IsAuthError(err))
	assert.EqualError(t, err, "connecting: auth error (imap): bad password")
	assert.False(t, IsAuthError(fmt.Errorf("timeout")))
}

func TestParseEncryption(t *testing.T) {
	tests := map[string]Encryption{
		"ssl":      EncryptionImplicitTLS,
		"tls":      EncryptionStartTLS,
		"starttls": EncryptionStartTLS,
		"none":     EncryptionNone,
		"":         EncryptionNone,
	}
	for name, want := range tests {
		got, err := ParseEncryption(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseEncryption("quantum")
	assert.Error(t, err)
}
