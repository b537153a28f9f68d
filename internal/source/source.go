// Package source holds what the external service clients share.
package source

import (
	"errors"
	"fmt"
)

// Service identifies an external service the responder talks to.
type Service string

const (
	ServiceIMAP   Service = "imap"
	ServiceSMTP   Service = "smtp"
	ServiceOpenAI Service = "openai"
)

// AuthError indicates that authentication has failed for a service.
// It is returned when a login is refused or an API key is rejected.
type AuthError struct {
	Service Service
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Service, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Encryption is how a mail connection is secured.
type Encryption int

const (
	// EncryptionImplicitTLS opens the connection over TLS ("ssl").
	EncryptionImplicitTLS Encryption = iota

	// EncryptionStartTLS upgrades a plain connection ("tls", "starttls").
	EncryptionStartTLS

	// EncryptionNone leaves the connection in clear text ("none", "notls").
	EncryptionNone
)

// ParseEncryption maps a configured encryption name to an Encryption.
func ParseEncryption(name string) (Encryption, error) {
	switch name {
	case "ssl", "implicit":
		return EncryptionImplicitTLS, nil
	case "tls", "starttls":
		return EncryptionStartTLS, nil
	case "none", "notls", "":
		return EncryptionNone, nil
	default:
		return 0, fmt.Errorf("unknown encryption %q", name)
	}
}
