package signature

import "strings"

// DefaultSignatureHeaders are the headers the signing service uses, one per
// active HMAC key.
var DefaultSignatureHeaders = []string{
	"X-DocuSign-Signature-1",
	"X-DocuSign-Signature-2",
}

// SecretParam is the query parameter carrying the shared secret.
const SecretParam = "secret"

// Config holds the webhook trust settings.
type Config struct {
	// HMACKey signs push payloads. Empty disables HMAC verification.
	HMACKey string `json:"-"`

	// SharedSecret is compared with the `secret` query parameter. Empty
	// disables the check.
	SharedSecret string `json:"-"`

	// RequireAuth rejects requests that neither mechanism trusts.
	RequireAuth bool `json:"require_auth"`

	// SignatureHeaders overrides DefaultSignatureHeaders.
	SignatureHeaders []string `json:"signature_headers,omitempty"`
}

func (c Config) hmacKey() string {
	return strings.TrimSpace(c.HMACKey)
}

func (c Config) sharedSecret() string {
	return strings.TrimSpace(c.SharedSecret)
}

func (c Config) headers() []string {
	if len(c.SignatureHeaders) > 0 {
		return c.SignatureHeaders
	}
	return DefaultSignatureHeaders
}

// HMACConfigured reports whether an HMAC key is set.
func (c Config) HMACConfigured() bool {
	return c.hmacKey() != ""
}

// SecretConfigured reports whether a shared secret is set.
func (c Config) SecretConfigured() bool {
	return c.sharedSecret() != ""
}
