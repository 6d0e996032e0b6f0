package oauth2

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"esign-sync/internal/common/logging"
	"esign-sync/internal/crypto"
	"esign-sync/internal/models"
)

type memoryRecordStore struct {
	mu      sync.Mutex
	records map[string]models.TokenRecord
	saves   int
}

func newMemoryRecordStore() *memoryRecordStore {
	return &memoryRecordStore{records: make(map[string]models.TokenRecord)}
}

func (s *memoryRecordStore) GetTokenRecord(_ context.Context, userKey string) (*models.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userKey]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memoryRecordStore) SaveTokenRecord(_ context.Context, record *models.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.UserKey] = *record
	s.saves++
	return nil
}

func (s *memoryRecordStore) DeleteTokenRecord(_ context.Context, userKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userKey)
	return nil
}

type fakeSession struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func (s *fakeSession) CachedAccessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || time.Now().After(s.expiresAt) {
		return "", false
	}
	return s.token, true
}

func (s *fakeSession) SetCachedAccessToken(token string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.expiresAt = token, expiresAt
}

func (s *fakeSession) ClearCachedAccessToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

type tokenServer struct {
	*httptest.Server
	refreshCalls int32
	rotate       bool
	reject       bool
	lastOrigin   atomic.Value
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.lastOrigin.Store(r.Header.Get("Origin"))
		require.NoError(t, r.ParseForm())

		w.Header().Set("Content-Type", "application/json")
		if ts.reject {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
			return
		}

		body := map[string]any{"token_type": "Bearer", "expires_in": 3600}
		switch r.Form.Get("grant_type") {
		case "refresh_token":
			atomic.AddInt32(&ts.refreshCalls, 1)
			time.Sleep(50 * time.Millisecond)
			body["access_token"] = "refreshed-access"
			if ts.rotate {
				body["refresh_token"] = "rotated-refresh"
			}
		case "authorization_code":
			body["access_token"] = "exchanged-access"
			body["refresh_token"] = "exchanged-refresh"
			body["verifier_seen"] = r.Form.Get("code_verifier")
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func testCodec(t *testing.T) *crypto.Codec {
	t.Helper()
	codec, err := crypto.NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return codec
}

func seal(t *testing.T, codec *crypto.Codec, value string) string {
	t.Helper()
	out, err := codec.Encrypt(value)
	require.NoError(t, err)
	return out
}

func newTestManager(t *testing.T, ts *tokenServer, store *memoryRecordStore, opts ...ManagerOption) *Manager {
	t.Helper()
	provider := NewProvider(ProviderConfig{
		ClientID:    "client-id",
		RedirectURI: "http://localhost/callback",
		OAuthBase:   ts.URL,
		Origin:      "http://localhost:8080",
	}, ts.Client(), logging.NewNopLogger())

	opts = append([]ManagerOption{WithLogger(logging.NewNopLogger())}, opts...)
	return NewManager(store, testCodec(t), provider, opts...)
}

func TestManager_SessionTierWins(t *testing.T) {
	ts := newTokenServer(t)
	store := newMemoryRecordStore()
	m := newTestManager(t, ts, store)

	session := &fakeSession{}
	session.SetCachedAccessToken("session-token", time.Now().Add(time.Minute))

	token, ok := m.GetValidAccessToken(context.Background(), "alice", session)
	require.True(t, ok)
	assert.Equal(t, "session-token", token)
	assert.Zero(t, atomic.LoadInt32(&ts.refreshCalls))
}

func TestManager_PersistedRecordStillValid(t *testing.T) {
	ts := newTokenServer(t)
	store := newMemoryRecordStore()
	m := newTestManager(t, ts, store)
	codec := testCodec(t)

	store.records["alice"] = models.TokenRecord{
		UserKey:      "alice",
		AccessToken:  seal(t, codec, "stored-access"),
		RefreshToken: seal(t, codec, "stored-refresh"),
		ExpiresAtMs:  time.Now().Add(time.Hour).UnixMilli(),
	}

	session := &fakeSession{}
	token, ok := m.GetValidAccessToken(context.Background(), "alice", session)
	require.True(t, ok)
	assert.Equal(t, "stored-access", token)

	cached, ok := session.CachedAccessToken()
	assert.True(t, ok)
	assert.Equal(t, "stored-access", cached)

	delete(store.records, "alice")
	token, ok = m.GetValidAccessToken(context.Background(), "alice", nil)
	assert.True(t, ok, "process cache should answer once the record is gone")
	assert.Equal(t, "stored-access", token)
}

func TestManager_LegacyPlaintextRecord(t *testing.T) {
	ts := newTokenServer(t)
	store := newMemoryRecordStore()
	m := newTestManager(t, ts, store, WithTokenCache(NopTokenCache{}))

	store.records["alice"] = models.TokenRecord{
		UserKey:     "alice",
		AccessToken: "plain-access",
		ExpiresAtMs: time.Now().Add(time.Hour).UnixMilli(),
	}

	token, ok := m.GetValidAccessToken(context.Background(), "alice", nil)
	require.True(t, ok)
	assert.Equal(t, "plain-access", token)
}

func TestManager_RefreshReplacesWholeRecord(t *testing.T) {
	ts := newTokenServer(t)
	store := newMemoryRecordStore()
	m := newTestManager(t, ts, store, WithTokenCache(NopTokenCache{}))
	codec := testCodec(t)

	store.records["alice"] = models.TokenRecord{
		UserKey:      "alice",
		AccessToken:  seal(t, codec, "old-access"),
		RefreshToken: seal(t, codec, "old-refresh"),
		ExpiresAtMs:  time.Now().Add(-time.Minute).UnixMilli(),
		AccountID:    "acct-1",
		RestBase:     "https://demo.docusign.net/restapi",
	}

	session := &fakeSession{}
	token, ok := m.GetValidAccessToken(context.Background(), "alice", session)
	require.True(t, ok)
	assert.Equal(t, "refreshed-access", token)
	assert.Equal(t, "http://localhost:8080", ts.lastOrigin.Load())

	rec := store.records["alice"]
	assert.True(t, crypto.IsEncoded(rec.AccessToken))
	assert.True(t, crypto.IsEncoded(rec.RefreshToken))

	refresh, err := codec.Decrypt(rec.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "old-refresh", refresh, "refresh token kept when none is issued")
	assert.Equal(t, "acct-1", rec.AccountID)
	assert.Equal(t, "https://demo.docusign.net/restapi", rec.RestBase)
	assert.Greater(t, rec.ExpiresAtMs, time.Now().Add(50*time.Minute).UnixMilli())

	cached, _ := session.CachedAccessToken()
	assert.Equal(t, "refreshed-access", cached)
}

func TestManager_RefreshStoresRotatedRefreshToken(t *testing.T) {
	ts := newTokenServer(t)
	ts.rotate = true
	store := newMemoryRecordStore()
	m := newTestManager(t, ts, store, WithTokenCache(NopTokenCache{}))
	codec := testCodec(t)

	store.records["alice"] = models.TokenRecord{
		UserKey:      "alice",
		RefreshToken: seal(t, codec, "old-refresh"),
	}

	_, ok := m.GetValidAccessToken(context.Background(), "alice", nil)
	require.True(t, ok)

	refresh, err := codec.Decrypt(store.records["alice"].RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "rotated-refresh", refresh)
}

func TestManager_ConcurrentRefreshHappensOnce(t *testing.T) {
	ts := newTokenServer(t)
	store := newMemoryRecordStore()
	m := newTestManager(t, ts, store, WithTokenCache(NopTokenCache{}))
	codec := testCodec(t)

	store.records["alice"] = models.TokenRecord{
		UserKey:      "alice",
		AccessToken:  seal(t, codec, "expired-access"),
		RefreshToken: seal(t, codec, "old-refresh"),
		ExpiresAtMs:  time.Now().Add(-time.Second).UnixMilli(),
	}

	const callers = 16
	results := make([]string, callers)
	oks := make([]bool, callers)

	var start, done sync.WaitGroup
	start.Add(1)
	for i := 0; i < callers; i++ {
		done.Add(1)
		go func(i int) {
			defer done.Done()
			start.Wait()
			results[i], oks[i] = m.GetValidAccessToken(context.Background(), "alice", nil)
		}(i)
	}
	start.Done()
	done.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&ts.refreshCalls))
	for i := 0; i < callers; i++ {
		assert.True(t, oks[i])
		assert.Equal(t, "refreshed-access", results[i])
	}
}

func TestManager_DifferentUsersRefreshIndependently(t *testing.T) {
	ts := newTokenServer(t)
	store := newMemoryRecordStore()
	m := newTestManager(t, ts, store, WithTokenCache(NopTokenCache{}))
	codec := testCodec(t)

	for _, user := range []string{"alice", "bob"} {
		store.records[user] = models.TokenRecord{UserKey: user, RefreshToken: seal(t, codec, user+"-refresh")}
	}

	var wg sync.WaitGroup
	for _, user := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, ok := m.GetValidAccessToken(context.Background(), user, nil)
			assert.True(t, ok)
		}(user)
	}
	wg.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&ts.refreshCalls))
}

func TestManager_NotConnected(t *testing.T) {
	codec := testCodec(t)

	tests := []struct {
		name   string
		record *models.TokenRecord
		reject bool
	}{
		{name: "no record"},
		{
			name:   "no refresh token",
			record: &models.TokenRecord{UserKey: "alice", ExpiresAtMs: 1},
		},
		{
			name:   "refresh token unreadable",
			record: &models.TokenRecord{UserKey: "alice", RefreshToken: "enc:v1:bm9uY2U=:Z2FyYmFnZQ=="},
		},
		{
			name:   "refresh rejected",
			record: &models.TokenRecord{UserKey: "alice", RefreshToken: seal(t, codec, "revoked")},
			reject: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTokenServer(t)
			ts.reject = tt.reject
			store := newMemoryRecordStore()
			if tt.record != nil {
				store.records["alice"] = *tt.record
			}
			m := newTestManager(t, ts, store)

			token, ok := m.GetValidAccessToken(context.Background(), "alice", nil)
			assert.False(t, ok)
			assert.Empty(t, token)
		})
	}
}

func TestManager_SaveExchangeAndDisconnect(t *testing.T) {
	ts := newTokenServer(t)
	store := newMemoryRecordStore()
	m := newTestManager(t, ts, store)
	ctx := context.Background()

	session := &fakeSession{}
	err := m.SaveExchange(ctx, "alice", &oauth2.Token{
		AccessToken:  "fresh-access",
		RefreshToken: "fresh-refresh",
		Expiry:       time.Now().Add(time.Hour),
	}, &Account{AccountID: "acct-9", BaseURI: "https://na3.docusign.net/"}, session)
	require.NoError(t, err)

	status := m.Status(ctx, "alice", session)
	assert.True(t, status.Connected)
	assert.Equal(t, "acct-9", status.AccountID)
	assert.Equal(t, "https://na3.docusign.net/restapi", status.RestBase)

	accountID, restBase, err := m.AccountContext(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "acct-9", accountID)
	assert.Equal(t, "https://na3.docusign.net/restapi", restBase)

	require.NoError(t, m.Disconnect(ctx, "alice", session))
	_, ok := m.GetValidAccessToken(ctx, "alice", session)
	assert.False(t, ok)
	assert.False(t, m.Status(ctx, "alice", session).Connected)

	_, _, err = m.AccountContext(ctx, "alice")
	assert.Error(t, err)
}
