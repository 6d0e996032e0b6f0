package signature

import (
	"crypto/sha1"
	"crypto/sha256"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
)

const (
	testKey    = "connect-hmac-key"
	testSecret = "s3cret"
	testBody   = `<?xml version="1.0"?><DocuSignEnvelopeInformation><EnvelopeStatus><EnvelopeID>e-1</EnvelopeID></EnvelopeStatus></DocuSignEnvelopeInformation>`
)

func newRequest(query string, headers map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/webhooks/docusign/connect"+query, strings.NewReader(testBody))
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestVerifier_Evaluate(t *testing.T) {
	sig256 := ComputeSignature([]byte(testBody), testKey, sha256.New)
	sig1 := ComputeSignature([]byte(testBody), testKey, sha1.New)

	tests := []struct {
		name        string
		config      Config
		query       string
		headers     map[string]string
		wantTrusted bool
		wantMethod  Method
		wantCode    string
	}{
		{
			name:        "valid sha256 signature trusted without secret",
			config:      Config{HMACKey: testKey, SharedSecret: testSecret},
			headers:     map[string]string{"X-DocuSign-Signature-1": sig256},
			wantTrusted: true,
			wantMethod:  MethodHMAC,
		},
		{
			name:        "valid signature trusted with wrong secret",
			config:      Config{HMACKey: testKey, SharedSecret: testSecret},
			query:       "?secret=wrong",
			headers:     map[string]string{"X-DocuSign-Signature-1": sig256},
			wantTrusted: true,
			wantMethod:  MethodHMAC,
		},
		{
			name:        "sha1 signature in second header",
			config:      Config{HMACKey: testKey},
			headers:     map[string]string{"X-DocuSign-Signature-1": "bm9wZQ==", "X-DocuSign-Signature-2": sig1},
			wantTrusted: true,
			wantMethod:  MethodHMAC,
		},
		{
			name:     "wrong signature rejected despite correct secret",
			config:   Config{HMACKey: testKey, SharedSecret: testSecret},
			query:    "?secret=" + testSecret,
			headers:  map[string]string{"X-DocuSign-Signature-1": "bm9wZQ=="},
			wantCode: CodeInvalidSignature,
		},
		{
			name:        "no header falls through to correct secret",
			config:      Config{HMACKey: testKey, SharedSecret: testSecret},
			query:       "?secret=" + testSecret,
			wantTrusted: true,
			wantMethod:  MethodSecret,
		},
		{
			name:     "no header and wrong secret",
			config:   Config{HMACKey: testKey, SharedSecret: testSecret},
			query:    "?secret=nope",
			wantCode: CodeInvalidSecret,
		},
		{
			name:     "missing secret when configured",
			config:   Config{SharedSecret: testSecret},
			wantCode: CodeInvalidSecret,
		},
		{
			name:       "no header and no secret configured is untrusted",
			config:     Config{HMACKey: testKey},
			wantMethod: MethodNone,
		},
		{
			name:       "nothing configured is untrusted",
			config:     Config{},
			wantMethod: MethodNone,
		},
		{
			name:     "require auth with nothing configured",
			config:   Config{RequireAuth: true},
			wantCode: CodeAuthRequired,
		},
		{
			name:     "require auth with unsigned request and no secret",
			config:   Config{HMACKey: testKey, RequireAuth: true},
			wantCode: CodeAuthRequired,
		},
		{
			name:        "require auth satisfied by secret",
			config:      Config{SharedSecret: testSecret, RequireAuth: true},
			query:       "?secret=" + testSecret,
			wantTrusted: true,
			wantMethod:  MethodSecret,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVerifier(tt.config, logging.NewNopLogger())
			result, err := v.Evaluate(newRequest(tt.query, tt.headers), []byte(testBody))

			if tt.wantCode != "" {
				require.Error(t, err)
				appErr, ok := errors.As(err)
				require.True(t, ok)
				assert.Equal(t, errors.ErrTypeAuth, appErr.Type)
				assert.Equal(t, tt.wantCode, appErr.Code)
				assert.Equal(t, 401, errors.StatusCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTrusted, result.Trusted)
			assert.Equal(t, tt.wantMethod, result.Method)
		})
	}
}

func TestVerifier_SignatureCoversRawBytes(t *testing.T) {
	v := NewVerifier(Config{HMACKey: testKey}, logging.NewNopLogger())
	sig := ComputeSignature([]byte(testBody), testKey, sha256.New)
	r := newRequest("", map[string]string{"X-DocuSign-Signature-1": sig})

	_, err := v.Evaluate(r, []byte(testBody+"\n"))
	assert.Error(t, err)
}

func TestVerifier_TrimsConfiguredValues(t *testing.T) {
	v := NewVerifier(Config{HMACKey: "  " + testKey + "\n", SharedSecret: " " + testSecret + " "}, logging.NewNopLogger())

	sig := ComputeSignature([]byte(testBody), testKey, sha256.New)
	result, err := v.Evaluate(newRequest("", map[string]string{"X-DocuSign-Signature-1": " " + sig + " "}), []byte(testBody))
	require.NoError(t, err)
	assert.True(t, result.Trusted)

	result, err = v.Evaluate(newRequest("?secret="+testSecret, nil), []byte(testBody))
	require.NoError(t, err)
	assert.Equal(t, MethodSecret, result.Method)
}

func TestVerifier_CustomHeaders(t *testing.T) {
	v := NewVerifier(Config{HMACKey: testKey, SignatureHeaders: []string{"X-Test-Signature"}}, logging.NewNopLogger())
	sig := ComputeSignature([]byte(testBody), testKey, sha256.New)

	result, err := v.Evaluate(newRequest("", map[string]string{"X-Test-Signature": sig}), []byte(testBody))
	require.NoError(t, err)
	assert.True(t, result.Trusted)

	result, err = v.Evaluate(newRequest("", map[string]string{"X-DocuSign-Signature-1": sig}), []byte(testBody))
	require.NoError(t, err)
	assert.False(t, result.Trusted)
}

func TestConfig_Presence(t *testing.T) {
	assert.False(t, Config{HMACKey: "   "}.HMACConfigured())
	assert.True(t, Config{HMACKey: "k"}.HMACConfigured())
	assert.False(t, Config{}.SecretConfigured())
	assert.True(t, Config{SharedSecret: "s"}.SecretConfigured())
}
