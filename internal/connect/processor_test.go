package connect

import (
	"context"
	"crypto/sha256"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/models"
	"esign-sync/internal/signature"
)

// memoryStore mimics the (envelope, payload hash) uniqueness of the real
// ledger.
type memoryStore struct {
	mu        sync.Mutex
	envelopes map[string]string // envelopeID -> hostKey
	seen      map[string]bool
	updates   []models.StatusUpdate
	recordErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{envelopes: map[string]string{}, seen: map[string]bool{}}
}

func (s *memoryStore) FindHostKeyByEnvelopeID(_ context.Context, envelopeID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.envelopes[envelopeID], nil
}

func (s *memoryStore) HasEnvelope(_ context.Context, hostKey, envelopeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.envelopes[envelopeID] == hostKey, nil
}

func (s *memoryStore) RecordConnectWebhookIfNew(_ context.Context, update models.StatusUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return false, s.recordErr
	}
	key := update.EnvelopeID + "|" + update.PayloadHash
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	s.envelopes[update.EnvelopeID] = update.HostKey
	s.updates = append(s.updates, update)
	return true, nil
}

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) AttachOnCompletion(ctx context.Context, actor models.Actor, hostKey, envelopeID string) error {
	args := m.Called(ctx, actor, hostKey, envelopeID)
	return args.Error(0)
}

func payloadFor(envelopeID, status, hostKey string) string {
	return `<?xml version="1.0"?><DocuSignEnvelopeInformation><EnvelopeStatus>` +
		`<EnvelopeID>` + envelopeID + `</EnvelopeID><Status>` + status + `</Status>` +
		`<Subject>Please sign documents</Subject>` +
		`<CustomFields><CustomField><Name>hostKey</Name><Value>` + hostKey + `</Value></CustomField></CustomFields>` +
		`<RecipientStatuses><RecipientStatus><Email>a@x.com</Email><UserName>A</UserName><RoutingOrder>1</RoutingOrder><Status>` + status + `</Status></RecipientStatus></RecipientStatuses>` +
		`</EnvelopeStatus></DocuSignEnvelopeInformation>`
}

func newProcessor(cfg signature.Config, store *memoryStore, completer Completer) *Processor {
	logger := logging.NewNopLogger()
	return NewProcessor(
		signature.NewVerifier(cfg, logger),
		NewResolver(store, false, logger),
		store,
		completer,
		logger,
	)
}

func signedRequest(body, key string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/webhooks/docusign/connect", strings.NewReader(body))
	if key != "" {
		r.Header.Set("X-DocuSign-Signature-1", signature.ComputeSignature([]byte(body), key, sha256.New))
	}
	return r
}

func TestProcessor_TrustedDuplicateAppliesOnce(t *testing.T) {
	store := newMemoryStore()
	completer := &mockCompleter{}
	completer.On("AttachOnCompletion", mock.Anything, models.SystemActor(), "OPS-1", "env-1").Return(nil).Once()
	p := newProcessor(signature.Config{HMACKey: "k"}, store, completer)

	body := payloadFor("env-1", "completed", "OPS-1")

	first, err := p.Process(signedRequest(body, "k"))
	require.NoError(t, err)
	assert.True(t, first.OK)
	assert.False(t, first.Duplicate)
	assert.True(t, first.Trusted)

	second, err := p.Process(signedRequest(body, "k"))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	completer.AssertExpectations(t)
	require.Len(t, store.updates, 1)
	update := store.updates[0]
	assert.Equal(t, models.EventWebhookConnect, update.EventType)
	assert.Equal(t, PayloadHash([]byte(body)), update.PayloadHash)
	assert.Equal(t, "completed", update.Status)
	assert.Len(t, update.Recipients, 1)
	assert.True(t, update.Actor.SkipPermissions)
}

func TestProcessor_ConcurrentDuplicates(t *testing.T) {
	store := newMemoryStore()
	completer := &mockCompleter{}
	completer.On("AttachOnCompletion", mock.Anything, mock.Anything, "OPS-1", "env-1").Return(nil).Once()
	p := newProcessor(signature.Config{HMACKey: "k"}, store, completer)
	body := payloadFor("env-1", "completed", "OPS-1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Process(signedRequest(body, "k"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	completer.AssertNumberOfCalls(t, "AttachOnCompletion", 1)
}

func TestProcessor_InvalidSignatureRejected(t *testing.T) {
	store := newMemoryStore()
	p := newProcessor(signature.Config{HMACKey: "k", SharedSecret: "s"}, store, nil)

	r := signedRequest(payloadFor("env-1", "sent", "OPS-1"), "wrong-key")
	r.URL.RawQuery = "secret=s"

	_, err := p.Process(r)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apperrors.StatusCode(err))
	assert.Empty(t, store.updates)
}

func TestProcessor_UntrustedNeedsKnownEnvelope(t *testing.T) {
	store := newMemoryStore()
	p := newProcessor(signature.Config{}, store, nil)
	body := payloadFor("env-1", "delivered", "OPS-1")

	result, err := p.Process(signedRequest(body, ""))
	require.NoError(t, err)
	assert.True(t, result.Ignored)
	assert.Equal(t, ReasonUnknownEnvelope, result.Reason)

	store.envelopes["env-1"] = "OPS-1"
	result, err = p.Process(signedRequest(body, ""))
	require.NoError(t, err)
	assert.False(t, result.Ignored)
	assert.False(t, result.Trusted)
	require.Len(t, store.updates, 1)
	assert.False(t, store.updates[0].Actor.SkipPermissions)
}

func TestProcessor_UntrustedQueryHostKeyMustMatchKnownEnvelope(t *testing.T) {
	store := newMemoryStore()
	store.envelopes["env-1"] = "OPS-1"
	p := newProcessor(signature.Config{}, store, nil)

	r := signedRequest(payloadFor("env-1", "delivered", "OPS-1"), "")
	r.URL.RawQuery = "hostKey=OTHER-9"

	result, err := p.Process(r)
	require.NoError(t, err)
	assert.Equal(t, ReasonUnknownEnvelope, result.Reason)
}

func TestProcessor_IgnoredPayloads(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{"doctype", `<?xml version="1.0"?><!DOCTYPE x [<!ENTITY a "b">]><x/>`, ReasonDoctype},
		{"not xml", `<EnvelopeStatus>`, ReasonUnparseable},
		{"no host key", payloadFor("env-1", "sent", ""), ReasonUnresolvedHost},
		{"malformed host key", payloadFor("env-1", "sent", "not a key"), ReasonInvalidHost},
		{"no envelope id", payloadFor("", "sent", "OPS-1"), ReasonMissingEnvelope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			p := newProcessor(signature.Config{HMACKey: "k"}, store, nil)

			result, err := p.Process(signedRequest(tt.body, "k"))
			require.NoError(t, err)
			assert.True(t, result.OK)
			assert.True(t, result.Ignored)
			assert.Equal(t, tt.reason, result.Reason)
			assert.Empty(t, store.updates)
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestProcessor_ReadFailureIsIgnored(t *testing.T) {
	p := newProcessor(signature.Config{RequireAuth: true, HMACKey: "k"}, newMemoryStore(), nil)
	r := httptest.NewRequest(http.MethodPost, "/webhooks/docusign/connect", failingReader{})

	result, err := p.Process(r)
	require.NoError(t, err)
	assert.Equal(t, ReasonReadFailed, result.Reason)
}

func TestProcessor_PersistFailureIsIgnored(t *testing.T) {
	store := newMemoryStore()
	store.recordErr = errors.New("disk full")
	p := newProcessor(signature.Config{HMACKey: "k"}, store, nil)

	result, err := p.Process(signedRequest(payloadFor("env-1", "sent", "OPS-1"), "k"))
	require.NoError(t, err)
	assert.Equal(t, ReasonPersistFailed, result.Reason)
}

func TestProcessor_CompletionFailureDoesNotFail(t *testing.T) {
	store := newMemoryStore()
	completer := &mockCompleter{}
	completer.On("AttachOnCompletion", mock.Anything, mock.Anything, "OPS-1", "env-1").Return(errors.New("remote down"))
	p := newProcessor(signature.Config{HMACKey: "k"}, store, completer)

	result, err := p.Process(signedRequest(payloadFor("env-1", "completed", "OPS-1"), "k"))
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.False(t, result.Ignored)
}

func TestProcessor_NonCompletedSkipsCompleter(t *testing.T) {
	completer := &mockCompleter{}
	p := newProcessor(signature.Config{HMACKey: "k"}, newMemoryStore(), completer)

	_, err := p.Process(signedRequest(payloadFor("env-1", "delivered", "OPS-1"), "k"))
	require.NoError(t, err)
	completer.AssertNotCalled(t, "AttachOnCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
