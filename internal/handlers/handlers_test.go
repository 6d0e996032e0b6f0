package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	xoauth2 "golang.org/x/oauth2"

	"esign-sync/internal/auth"
	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/config"
	"esign-sync/internal/connect"
	"esign-sync/internal/docusign"
	"esign-sync/internal/envelope"
	"esign-sync/internal/handlers"
	"esign-sync/internal/host"
	"esign-sync/internal/models"
	"esign-sync/internal/oauth2"
	"esign-sync/internal/reconciler"
	"esign-sync/internal/storage/sqlite"
)

// Mocks

type MockTokens struct {
	mock.Mock
}

func (m *MockTokens) GetValidAccessToken(ctx context.Context, userKey string, session oauth2.SessionCache) (string, bool) {
	args := m.Called(ctx, userKey, session)
	return args.String(0), args.Bool(1)
}

func (m *MockTokens) AccountContext(ctx context.Context, userKey string) (string, string, error) {
	args := m.Called(ctx, userKey)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockTokens) SaveExchange(ctx context.Context, userKey string, tok *xoauth2.Token, account *oauth2.Account, session oauth2.SessionCache) error {
	args := m.Called(ctx, userKey, tok, account, session)
	return args.Error(0)
}

func (m *MockTokens) Status(ctx context.Context, userKey string, session oauth2.SessionCache) oauth2.Status {
	args := m.Called(ctx, userKey, session)
	return args.Get(0).(oauth2.Status)
}

func (m *MockTokens) Disconnect(ctx context.Context, userKey string, session oauth2.SessionCache) error {
	args := m.Called(ctx, userKey, session)
	return args.Error(0)
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) AuthCodeURL(state, verifier string) string {
	args := m.Called(state, verifier)
	return args.String(0)
}

func (m *MockProvider) Exchange(ctx context.Context, code, verifier string) (*xoauth2.Token, error) {
	args := m.Called(ctx, code, verifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*xoauth2.Token), args.Error(1)
}

func (m *MockProvider) UserInfo(ctx context.Context, accessToken string) (*oauth2.Account, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth2.Account), args.Error(1)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) CreateEnvelope(ctx context.Context, cred docusign.Credentials, request interface{}) (*docusign.CreateResult, error) {
	args := m.Called(ctx, cred, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*docusign.CreateResult), args.Error(1)
}

type MockStatus struct {
	mock.Mock
}

func (m *MockStatus) Refresh(ctx context.Context, req reconciler.Request) (*reconciler.View, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciler.View), args.Error(1)
}

func (m *MockStatus) Live(ctx context.Context, req reconciler.Request) (*reconciler.View, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciler.View), args.Error(1)
}

func (m *MockStatus) AttachSigned(ctx context.Context, req reconciler.Request, mode reconciler.Mode) (*reconciler.View, error) {
	args := m.Called(ctx, req, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciler.View), args.Error(1)
}

func (m *MockStatus) Download(ctx context.Context, req reconciler.Request, documentID string) (*reconciler.Document, error) {
	args := m.Called(ctx, req, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciler.Document), args.Error(1)
}

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Process(r *http.Request) (*connect.Result, error) {
	args := m.Called(r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connect.Result), args.Error(1)
}

type denyAll struct{}

func (denyAll) CanEdit(context.Context, models.Actor, string) (bool, error) { return false, nil }

// failingLedger fails RecordSent and delegates everything else.
type failingLedger struct {
	handlers.Ledger
}

func (failingLedger) RecordSent(context.Context, models.SentEnvelope) error {
	return errors.PersistenceError("insert envelope", fmt.Errorf("disk full"))
}

// Fixture

const testHostKey = "OPS-1"

type fixture struct {
	h           *handlers.Handlers
	deps        handlers.Deps
	store       *sqlite.Adapter
	attachments *host.FSAttachments
	tokens      *MockTokens
	provider    *MockProvider
	sender      *MockSender
	status      *MockStatus
	processor   *MockProcessor
	sessions    *auth.SessionStore
	session     *auth.Session
}

func newFixture(t *testing.T, mutate ...func(*handlers.Deps)) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := sqlite.NewAdapter(&sqlite.Config{DatabasePath: filepath.Join(dir, "ledger.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	attachments, err := host.NewFSAttachments(filepath.Join(dir, "attachments"), logging.NewNopLogger())
	require.NoError(t, err)

	f := &fixture{
		store:       store,
		attachments: attachments,
		tokens:      &MockTokens{},
		provider:    &MockProvider{},
		sender:      &MockSender{},
		status:      &MockStatus{},
		processor:   &MockProcessor{},
		sessions:    auth.NewSessionStore(0),
	}
	f.session, _ = f.sessions.GetOrCreate("", "alice")

	f.deps = handlers.Deps{
		Config: &config.Config{
			DatabaseType:     "sqlite",
			SignedAttachMode: "individual",
			DocuSignClientID: "client-id",
			ConnectHMACKey:   "super-secret-hmac",
		},
		Storage:     store,
		Tokens:      f.tokens,
		Provider:    f.provider,
		Sender:      f.sender,
		Builder:     envelope.NewBuilder(envelope.NotificationConfig{}),
		Processor:   f.processor,
		Reconciler:  f.status,
		Attachments: attachments,
		Permissions: host.AllowAll{},
		Directory:   host.AddressDirectory{},
		Logger:      logging.NewNopLogger(),
	}
	for _, m := range mutate {
		m(&f.deps)
	}
	f.h = handlers.New(f.deps)
	return f
}

// request builds an authenticated request for alice with her session.
func (f *fixture) request(method, target string, body io.Reader, vars map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	ctx := auth.WithIdentity(req.Context(), auth.Identity{UserKey: "alice", Email: "alice@example.com"})
	ctx = auth.WithSession(ctx, f.session)
	req = req.WithContext(ctx)
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	return req
}

func (f *fixture) upload(t *testing.T, filename, content string) *host.Attachment {
	t.Helper()
	att, err := f.attachments.Create(context.Background(), models.UserActor("alice"), testHostKey, filename, []byte(content))
	require.NoError(t, err)
	return att
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func hostVars() map[string]string {
	return map[string]string{"hostKey": testHostKey}
}

// Tests

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	require.NoError(t, f.store.Close())
	rec = httptest.NewRecorder()
	f.h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decode(t, rec)["status"])
}

func TestDiagnostics_ReportsPresenceOnly(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.h.Diagnostics(rec, f.request(http.MethodGet, "/api/diagnostics", nil, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "super-secret-hmac")
	body := decode(t, rec)
	presence := body["config"].(map[string]interface{})
	assert.Equal(t, true, presence["connectHmacKey"])
	assert.Equal(t, false, presence["webhookSecret"])
	assert.Equal(t, true, body["storageHealthy"])
}

func TestSendEnvelope(t *testing.T) {
	f := newFixture(t)
	contract := f.upload(t, "contract.pdf", "%PDF-1.4 contract")
	annex := f.upload(t, "annex.docx", "annex")

	f.tokens.On("GetValidAccessToken", mock.Anything, "alice", mock.Anything).Return("access-token", true)
	f.tokens.On("AccountContext", mock.Anything, "alice").Return("acct-1", "https://demo.docusign.net/restapi", nil)

	var sent *envelope.Request
	cred := docusign.Credentials{AccessToken: "access-token", AccountID: "acct-1", RestBase: "https://demo.docusign.net/restapi"}
	f.sender.On("CreateEnvelope", mock.Anything, cred, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(2).(*envelope.Request) }).
		Return(&docusign.CreateResult{EnvelopeID: "env-1", Status: "sent", Raw: []byte(`{"envelopeId":"env-1"}`)}, nil)

	body := jsonBody(t, map[string]interface{}{
		"hostKey":       testHostKey,
		"attachmentIds": []string{annex.ID, contract.ID},
		"signers": []map[string]interface{}{
			{"type": "EXTERNAL", "email": "a@x.com", "name": "Ann"},
			{"type": "HOST_USER", "identityRef": "Bob Builder <bob@example.com>"},
		},
	})
	rec := httptest.NewRecorder()
	f.h.SendEnvelope(rec, f.request(http.MethodPost, "/api/envelopes", body, nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"envelopeId":"env-1","status":"sent"}`, rec.Body.String())

	require.NotNil(t, sent)
	require.Len(t, sent.Documents, 2)
	assert.Equal(t, "1", sent.Documents[0].DocumentID)
	assert.Equal(t, "annex.docx", sent.Documents[0].Name, "selection order defines document ids")
	assert.Equal(t, "2", sent.Documents[1].DocumentID)
	require.Len(t, sent.Recipients.Signers, 2)
	assert.Equal(t, "bob@example.com", sent.Recipients.Signers[1].Email)
	assert.Equal(t, "Bob Builder", sent.Recipients.Signers[1].Name)
	assert.Equal(t, "2", sent.Recipients.Signers[1].RoutingOrder)

	state, err := f.store.LoadActiveIssueState(context.Background(), testHostKey)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "env-1", state.EnvelopeID)
	require.Len(t, state.SignerUIState, 2)
	assert.Equal(t, models.UIStatusCurrent, state.SignerUIState[0].UIStatus)
	assert.Equal(t, models.UIStatusPending, state.SignerUIState[1].UIStatus)

	f.sender.AssertExpectations(t)
}

func TestSendEnvelope_SingleSignerScenario(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "one.pdf", "%PDF-1.4")

	f.tokens.On("GetValidAccessToken", mock.Anything, "alice", mock.Anything).Return("tok", true)
	f.tokens.On("AccountContext", mock.Anything, "alice").Return("acct", "https://na3.docusign.net/restapi", nil)
	f.sender.On("CreateEnvelope", mock.Anything, mock.Anything, mock.Anything).
		Return(&docusign.CreateResult{EnvelopeID: "env-9"}, nil)

	body := jsonBody(t, map[string]interface{}{
		"hostKey":       testHostKey,
		"attachmentIds": []string{doc.ID},
		"signers":       []map[string]interface{}{{"email": "a@x.com"}},
	})
	rec := httptest.NewRecorder()
	f.h.SendEnvelope(rec, f.request(http.MethodPost, "/api/envelopes", body, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "sent", decode(t, rec)["status"])

	state, err := f.store.LoadActiveIssueState(context.Background(), testHostKey)
	require.NoError(t, err)
	require.Len(t, state.Signers, 1)
	assert.Equal(t, 1, state.Signers[0].RoutingOrder)
	assert.Equal(t, models.UIStatusCurrent, state.SignerUIState[0].UIStatus)
}

func TestSendEnvelope_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "contract.pdf", "%PDF")

	page := 1
	tests := []struct {
		name    string
		body    map[string]interface{}
		wantErr string
	}{
		{
			name:    "bad host key",
			body:    map[string]interface{}{"hostKey": "not a key", "attachmentIds": []string{doc.ID}, "signers": []map[string]interface{}{{"email": "a@x.com"}}},
			wantErr: "hostKey",
		},
		{
			name:    "no signers",
			body:    map[string]interface{}{"hostKey": testHostKey, "attachmentIds": []string{doc.ID}},
			wantErr: "signers",
		},
		{
			name:    "no documents",
			body:    map[string]interface{}{"hostKey": testHostKey, "signers": []map[string]interface{}{{"email": "a@x.com"}}},
			wantErr: "attachmentIds",
		},
		{
			name:    "external without at sign",
			body:    map[string]interface{}{"hostKey": testHostKey, "attachmentIds": []string{doc.ID}, "signers": []map[string]interface{}{{"type": "EXTERNAL", "email": "nobody"}}},
			wantErr: "signer at index 0",
		},
		{
			name: "partial position",
			body: map[string]interface{}{"hostKey": testHostKey, "attachmentIds": []string{doc.ID}, "signers": []map[string]interface{}{
				{"email": "a@x.com"},
				{"email": "b@x.com", "positions": []map[string]interface{}{{"page": page, "x": 10}}},
			}},
			wantErr: "signer at index 1: position 0",
		},
		{
			name:    "partial legacy override",
			body:    map[string]interface{}{"hostKey": testHostKey, "attachmentIds": []string{doc.ID}, "signers": []map[string]interface{}{{"email": "a@x.com", "page": 2}}},
			wantErr: "page, x and y",
		},
		{
			name:    "page out of range",
			body:    map[string]interface{}{"hostKey": testHostKey, "attachmentIds": []string{doc.ID}, "signers": []map[string]interface{}{{"email": "a@x.com", "positions": []map[string]interface{}{{"page": 0, "x": 1, "y": 1}}}}},
			wantErr: "page",
		},
		{
			name:    "unknown signer type",
			body:    map[string]interface{}{"hostKey": testHostKey, "attachmentIds": []string{doc.ID}, "signers": []map[string]interface{}{{"type": "ROBOT", "email": "a@x.com"}}},
			wantErr: "type",
		},
		{
			name:    "unresolvable host user",
			body:    map[string]interface{}{"hostKey": testHostKey, "attachmentIds": []string{doc.ID}, "signers": []map[string]interface{}{{"type": "HOST_USER", "identityRef": "not an address"}}},
			wantErr: "could not be resolved",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			f.h.SendEnvelope(rec, f.request(http.MethodPost, "/api/envelopes", jsonBody(t, tt.body), nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, decode(t, rec)["error"], tt.wantErr)
		})
	}
	f.sender.AssertNotCalled(t, "CreateEnvelope", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendEnvelope_NotConnected(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "contract.pdf", "%PDF")
	f.tokens.On("GetValidAccessToken", mock.Anything, "alice", mock.Anything).Return("", false)

	body := jsonBody(t, map[string]interface{}{
		"hostKey": testHostKey, "attachmentIds": []string{doc.ID},
		"signers": []map[string]interface{}{{"email": "a@x.com"}},
	})
	rec := httptest.NewRecorder()
	f.h.SendEnvelope(rec, f.request(http.MethodPost, "/api/envelopes", body, nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"DocuSign not connected"}`, rec.Body.String())
}

func TestSendEnvelope_Forbidden(t *testing.T) {
	f := newFixture(t, func(d *handlers.Deps) { d.Permissions = denyAll{} })
	doc := f.upload(t, "contract.pdf", "%PDF")

	body := jsonBody(t, map[string]interface{}{
		"hostKey": testHostKey, "attachmentIds": []string{doc.ID},
		"signers": []map[string]interface{}{{"email": "a@x.com"}},
	})
	rec := httptest.NewRecorder()
	f.h.SendEnvelope(rec, f.request(http.MethodPost, "/api/envelopes", body, nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	f.tokens.AssertNotCalled(t, "GetValidAccessToken", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendEnvelope_UnknownAttachment(t *testing.T) {
	f := newFixture(t)
	f.tokens.On("GetValidAccessToken", mock.Anything, "alice", mock.Anything).Return("tok", true)
	f.tokens.On("AccountContext", mock.Anything, "alice").Return("acct", "", nil)

	body := jsonBody(t, map[string]interface{}{
		"hostKey": testHostKey, "attachmentIds": []string{"missing"},
		"signers": []map[string]interface{}{{"email": "a@x.com"}},
	})
	rec := httptest.NewRecorder()
	f.h.SendEnvelope(rec, f.request(http.MethodPost, "/api/envelopes", body, nil))

	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestSendEnvelope_RemoteRejects(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "contract.pdf", "%PDF")
	f.tokens.On("GetValidAccessToken", mock.Anything, "alice", mock.Anything).Return("tok", true)
	f.tokens.On("AccountContext", mock.Anything, "alice").Return("acct", "", nil)
	f.sender.On("CreateEnvelope", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.RemoteServiceError(400, "INVALID_EMAIL_ADDRESS_FOR_RECIPIENT", "The email address is invalid"))

	body := jsonBody(t, map[string]interface{}{
		"hostKey": testHostKey, "attachmentIds": []string{doc.ID},
		"signers": []map[string]interface{}{{"email": "a@x.com"}},
	})
	rec := httptest.NewRecorder()
	f.h.SendEnvelope(rec, f.request(http.MethodPost, "/api/envelopes", body, nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "DocuSign error (INVALID_EMAIL_ADDRESS_FOR_RECIPIENT): The email address is invalid", decode(t, rec)["error"])

	state, err := f.store.LoadActiveIssueState(context.Background(), testHostKey)
	require.NoError(t, err)
	assert.Nil(t, state, "nothing is recorded when the send fails")
}

func TestSendEnvelope_PersistenceWarning(t *testing.T) {
	f := newFixture(t, func(d *handlers.Deps) { d.Storage = failingLedger{Ledger: d.Storage} })
	doc := f.upload(t, "contract.pdf", "%PDF")
	f.tokens.On("GetValidAccessToken", mock.Anything, "alice", mock.Anything).Return("tok", true)
	f.tokens.On("AccountContext", mock.Anything, "alice").Return("acct", "", nil)
	f.sender.On("CreateEnvelope", mock.Anything, mock.Anything, mock.Anything).
		Return(&docusign.CreateResult{EnvelopeID: "env-2", Status: "sent"}, nil)

	body := jsonBody(t, map[string]interface{}{
		"hostKey": testHostKey, "attachmentIds": []string{doc.ID},
		"signers": []map[string]interface{}{{"email": "a@x.com"}},
	})
	rec := httptest.NewRecorder()
	f.h.SendEnvelope(rec, f.request(http.MethodPost, "/api/envelopes", body, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "env-2", resp["envelopeId"])
	assert.NotEmpty(t, resp["persistenceWarning"])
}

func TestGetState(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.h.GetState(rec, f.request(http.MethodGet, "/api/hosts/OPS-1/state", nil, hostVars()))
	require.Equal(t, http.StatusOK, rec.Code)
	empty := decode(t, rec)
	assert.Equal(t, "", empty["envelopeId"])
	assert.Equal(t, []interface{}{}, empty["signerUiState"])

	require.NoError(t, f.store.RecordSent(context.Background(), models.SentEnvelope{
		HostKey: testHostKey, EnvelopeID: "env-1", Status: "sent", Sender: "alice",
		Documents: []models.Document{{DocumentID: "1", Filename: "a.pdf"}},
		Signers: []models.Signer{
			{Email: "a@x.com", Name: "A", RoutingOrder: 1, RecipientID: "1", Status: "completed"},
			{Email: "b@x.com", Name: "B", RoutingOrder: 2, RecipientID: "2", Status: "sent"},
			{Email: "c@x.com", Name: "C", RoutingOrder: 3, RecipientID: "3", Status: "created"},
		},
	}))

	rec = httptest.NewRecorder()
	f.h.GetState(rec, f.request(http.MethodGet, "/api/hosts/OPS-1/state", nil, hostVars()))
	require.Equal(t, http.StatusOK, rec.Code)

	var state models.IssueState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "env-1", state.EnvelopeID)
	require.Len(t, state.SignerUIState, 3)
	assert.Equal(t, models.UIStatusCompleted, state.SignerUIState[0].UIStatus)
	assert.Equal(t, models.UIStatusCurrent, state.SignerUIState[1].UIStatus)
	assert.Equal(t, models.UIStatusPending, state.SignerUIState[2].UIStatus)

	rec = httptest.NewRecorder()
	f.h.GetState(rec, f.request(http.MethodGet, "/api/hosts/bad/state", nil, map[string]string{"hostKey": "bad"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, f.store.RecordSent(ctx, models.SentEnvelope{
			HostKey: testHostKey, EnvelopeID: fmt.Sprintf("env-%d", i), Status: "sent", Sender: "alice",
			Signers: []models.Signer{{Email: "a@x.com", RoutingOrder: 1, RecipientID: "1"}},
		}))
	}

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantLen  int
	}{
		{"default limit", "", http.StatusOK, 3},
		{"limited", "?limit=2", http.StatusOK, 2},
		{"large limit is clamped", "?limit=5000", http.StatusOK, 3},
		{"zero", "?limit=0", http.StatusBadRequest, 0},
		{"not a number", "?limit=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			f.h.GetHistory(rec, f.request(http.MethodGet, "/api/hosts/OPS-1/history"+tt.query, nil, hostVars()))
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			var history []models.HistoryEntry
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
			require.Len(t, history, tt.wantLen)
			assert.Equal(t, "env-3", history[0].EnvelopeID, "newest first")
			assert.True(t, history[0].Active)
		})
	}
}

func TestClearState(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.RecordSent(context.Background(), models.SentEnvelope{
		HostKey: testHostKey, EnvelopeID: "env-1", Status: "sent",
		Signers: []models.Signer{{Email: "a@x.com", RoutingOrder: 1, RecipientID: "1"}},
	}))

	rec := httptest.NewRecorder()
	f.h.ClearState(rec, f.request(http.MethodPost, "/api/hosts/OPS-1/state/clear", nil, hostVars()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cleared":1}`, rec.Body.String())

	state, err := f.store.LoadActiveIssueState(context.Background(), testHostKey)
	require.NoError(t, err)
	assert.Nil(t, state)

	denied := newFixture(t, func(d *handlers.Deps) { d.Permissions = denyAll{} })
	rec = httptest.NewRecorder()
	denied.h.ClearState(rec, denied.request(http.MethodPost, "/api/hosts/OPS-1/state/clear", nil, hostVars()))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRefreshStatus(t *testing.T) {
	f := newFixture(t)
	view := &reconciler.View{EnvelopeID: "env-7", EnvelopeStatus: "delivered"}
	f.status.On("Refresh", mock.Anything, mock.MatchedBy(func(req reconciler.Request) bool {
		return req.HostKey == testHostKey && req.EnvelopeID == "env-7" &&
			req.Actor == models.UserActor("alice") && req.Session != nil
	})).Return(view, nil)

	rec := httptest.NewRecorder()
	f.h.RefreshStatus(rec, f.request(http.MethodPost, "/api/hosts/OPS-1/status/refresh",
		strings.NewReader(`{"envelopeId":"env-7"}`), hostVars()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "delivered", decode(t, rec)["envelopeStatus"])
	f.status.AssertExpectations(t)
}

func TestRefreshStatus_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"no envelope", errors.NotFoundError("active envelope"), http.StatusNotFound, ""},
		{"not connected", errors.AuthError("DocuSign not connected"), http.StatusUnauthorized, "DocuSign not connected"},
		{"remote unauthorized", errors.RemoteServiceError(401, "", ""), http.StatusBadGateway, errors.MsgReconnect},
		{"remote not found", errors.RemoteServiceError(404, "ENVELOPE_DOES_NOT_EXIST", "The envelope was not found"), http.StatusBadGateway, errors.MsgEnvelopeAbsent},
		{"network", errors.ConnectionError("dial", fmt.Errorf("no such host")), http.StatusBadGateway, errors.MsgNetwork},
		{"store failure", errors.PersistenceError("update", fmt.Errorf("locked")), http.StatusInternalServerError, "Failed to refresh envelope status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.status.On("Refresh", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := httptest.NewRecorder()
			f.h.RefreshStatus(rec, f.request(http.MethodPost, "/api/hosts/OPS-1/status/refresh", nil, hostVars()))

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, decode(t, rec)["error"])
			}
		})
	}
}

func TestLiveStatus(t *testing.T) {
	f := newFixture(t)
	f.status.On("Live", mock.Anything, mock.MatchedBy(func(req reconciler.Request) bool {
		return req.EnvelopeID == "env-3"
	})).Return(&reconciler.View{EnvelopeID: "env-3", EnvelopeStatus: "sent"}, nil)

	rec := httptest.NewRecorder()
	f.h.LiveStatus(rec, f.request(http.MethodGet, "/api/hosts/OPS-1/status/live?envelopeId=env-3", nil, hostVars()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "env-3", decode(t, rec)["envelopeId"])
}

func TestAttachSigned(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		configMode string
		wantMode   reconciler.Mode
		wantID     string
		wantCode   int
	}{
		{"configured default", ``, "combined", reconciler.ModeCombined, "", http.StatusOK},
		{"explicit mode", `{"remoteId":"env-1","mode":"individual"}`, "combined", reconciler.ModeIndividual, "env-1", http.StatusOK},
		{"mode is case insensitive", `{"mode":"COMBINED"}`, "individual", reconciler.ModeCombined, "", http.StatusOK},
		{"unknown mode", `{"mode":"zip"}`, "individual", "", "", http.StatusBadRequest},
		{"malformed body", `{"mode":`, "individual", "", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(d *handlers.Deps) { d.Config.SignedAttachMode = tt.configMode })
			f.status.On("AttachSigned", mock.Anything, mock.MatchedBy(func(req reconciler.Request) bool {
				return req.EnvelopeID == tt.wantID
			}), tt.wantMode).Return(&reconciler.View{SignedAttached: true, SignedAttachments: []string{"Signed_OPS-1_combined.pdf"}}, nil)

			rec := httptest.NewRecorder()
			f.h.AttachSigned(rec, f.request(http.MethodPost, "/api/hosts/OPS-1/signed/attach", strings.NewReader(tt.body), hostVars()))

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, true, decode(t, rec)["signedAttached"])
				f.status.AssertExpectations(t)
			} else {
				f.status.AssertNotCalled(t, "AttachSigned", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestDownloadSigned(t *testing.T) {
	f := newFixture(t)
	f.status.On("Download", mock.Anything, mock.MatchedBy(func(req reconciler.Request) bool {
		return req.EnvelopeID == "env-1" && req.HostKey == ""
	}), "2").Return(&reconciler.Document{Filename: "Signed_OPS-1_env-1_doc2_annex.pdf", Content: []byte("%PDF-1.7")}, nil)
	f.status.On("Download", mock.Anything, mock.Anything, "").
		Return(nil, errors.ValidationError("envelopeId is required"))

	rec := httptest.NewRecorder()
	f.h.DownloadSigned(rec, f.request(http.MethodGet, "/api/signed/download?envelopeId=env-1&documentId=2", nil, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="Signed_OPS-1_env-1_doc2_annex.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.7", rec.Body.String())

	rec = httptest.NewRecorder()
	f.h.DownloadSigned(rec, f.request(http.MethodGet, "/api/signed/download", nil, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttachments_UploadAndList(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "contract.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4 body"))
	require.NoError(t, mw.Close())

	req := f.request(http.MethodPost, "/api/hosts/OPS-1/attachments", &buf, hostVars())
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.h.UploadAttachment(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, "contract.pdf", created["filename"])

	rec = httptest.NewRecorder()
	f.h.ListAttachments(rec, f.request(http.MethodGet, "/api/hosts/OPS-1/attachments", nil, hostVars()))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []host.Attachment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, created["id"], list[0].ID)

	rec = httptest.NewRecorder()
	f.h.UploadAttachment(rec, f.request(http.MethodPost, "/api/hosts/OPS-1/attachments", strings.NewReader("x"), hostVars()))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing file field")
}

func TestHandleConnectWebhook(t *testing.T) {
	tests := []struct {
		name     string
		result   *connect.Result
		err      error
		wantCode int
		wantBody string
	}{
		{"applied", &connect.Result{OK: true}, nil, http.StatusOK, `{"ok":true}`},
		{"duplicate", &connect.Result{OK: true, Duplicate: true}, nil, http.StatusOK, `{"ok":true,"duplicate":true}`},
		{"ignored", &connect.Result{OK: true, Ignored: true, Reason: connect.ReasonUnknownEnvelope}, nil, http.StatusOK, `{"ok":true,"ignored":true,"reason":"unknown_envelope"}`},
		{"unauthorized", nil, errors.AuthError("invalid signature"), http.StatusUnauthorized, `{"error":"unauthorized"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.processor.On("Process", mock.Anything).Return(tt.result, tt.err)

			rec := httptest.NewRecorder()
			f.h.HandleConnectWebhook(rec, httptest.NewRequest(http.MethodPost, "/webhooks/docusign/connect", strings.NewReader("<x/>")))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestLogout_ClearsSession(t *testing.T) {
	a, err := auth.New("test-secret-key-that-is-long-enough", nil, auth.NewSessionStore(0))
	require.NoError(t, err)
	f := newFixture(t, func(d *handlers.Deps) { d.Auth = a })
	session, _ := a.Sessions().GetOrCreate("", "alice")
	f.session = session

	rec := httptest.NewRecorder()
	f.h.Logout(rec, f.request(http.MethodPost, "/api/auth/logout", nil, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"loggedOut":true,"revoked":false}`, rec.Body.String())
	_, ok := a.Sessions().Get(session.ID)
	assert.False(t, ok)
	for _, c := range rec.Result().Cookies() {
		assert.Equal(t, -1, c.MaxAge, c.Name)
	}
}
