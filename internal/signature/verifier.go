package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"hash"
	"net/http"
	"strings"

	"esign-sync/internal/common/logging"
)

// Method names the mechanism that established trust.
type Method string

const (
	MethodNone   Method = "none"
	MethodHMAC   Method = "hmac"
	MethodSecret Method = "secret"
)

// Result is the outcome of a successful evaluation. An untrusted result is
// not an error; callers narrow what they accept instead.
type Result struct {
	Trusted bool
	Method  Method
}

// Verifier evaluates webhook trust
type Verifier struct {
	config Config
	logger logging.Logger
}

// NewVerifier creates a new verifier
func NewVerifier(config Config, logger logging.Logger) *Verifier {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Verifier{
		config: config,
		logger: logger.WithFields(logging.String("component", "webhook_verifier")),
	}
}

// Evaluate checks r against the configured mechanisms. body must be the raw
// payload exactly as received. A returned error is always an authentication
// error and means the request must be rejected.
func (v *Verifier) Evaluate(r *http.Request, body []byte) (Result, error) {
	hmacOn := v.config.HMACConfigured()
	secretOn := v.config.SecretConfigured()

	if v.config.RequireAuth && !hmacOn && !secretOn {
		return Result{}, verificationError(CodeAuthRequired,
			"webhook auth is required (configure DOCUSIGN_CONNECT_HMAC_KEY or DOCUSIGN_WEBHOOK_SECRET)")
	}

	if hmacOn {
		signatures := v.signatures(r)
		if len(signatures) > 0 {
			if !v.matchesAny(body, signatures) {
				v.logger.Warn("Webhook signature mismatch",
					logging.Int("signatures", len(signatures)),
				)
				return Result{}, verificationError(CodeInvalidSignature, "invalid DocuSign signature")
			}
			return Result{Trusted: true, Method: MethodHMAC}, nil
		}
	}

	if secretOn {
		provided := strings.TrimSpace(r.URL.Query().Get(SecretParam))
		if provided == "" || !hmac.Equal([]byte(provided), []byte(v.config.sharedSecret())) {
			v.logger.Warn("Webhook secret missing or invalid")
			return Result{}, verificationError(CodeInvalidSecret, "invalid webhook secret")
		}
		return Result{Trusted: true, Method: MethodSecret}, nil
	}

	if v.config.RequireAuth {
		return Result{}, verificationError(CodeAuthRequired,
			"webhook auth is required (configure DOCUSIGN_CONNECT_HMAC_KEY or DOCUSIGN_WEBHOOK_SECRET)")
	}

	return Result{Trusted: false, Method: MethodNone}, nil
}

func (v *Verifier) signatures(r *http.Request) []string {
	var out []string
	for _, header := range v.config.headers() {
		if value := strings.TrimSpace(r.Header.Get(header)); value != "" {
			out = append(out, value)
		}
	}
	return out
}

func (v *Verifier) matchesAny(body []byte, signatures []string) bool {
	key := v.config.hmacKey()
	expected := []string{
		ComputeSignature(body, key, sha256.New),
		ComputeSignature(body, key, sha1.New),
	}
	for _, sig := range signatures {
		for _, want := range expected {
			if hmac.Equal([]byte(sig), []byte(want)) {
				return true
			}
		}
	}
	return false
}

// ComputeSignature returns the base64 HMAC of body under key.
func ComputeSignature(body []byte, key string, algorithm func() hash.Hash) string {
	mac := hmac.New(algorithm, []byte(key))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
