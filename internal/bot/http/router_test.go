package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/signinbot/pkg/connector"
	"github.com/aussiebroadwan/signinbot/pkg/httpx"
	"github.com/aussiebroadwan/signinbot/pkg/jwtx"
	"github.com/aussiebroadwan/signinbot/pkg/slogx"
)

const (
	testIssuer     = "https://api.botframework.com"
	testAppID      = "bot-app-id"
	testServiceURL = "https://smba.example.net/apac/"
)

type recordingHandler struct {
	mu       sync.Mutex
	handled  []*connector.Activity
	reported []error
	deadline bool

	err       error
	reportErr error
}

func (h *recordingHandler) Handle(ctx context.Context, a *connector.Activity) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, a)
	_, h.deadline = ctx.Deadline()
	return h.err
}

func (h *recordingHandler) ReportError(_ context.Context, _ *connector.Activity, cause error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reported = append(h.reported, cause)
	return h.reportErr
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeKeys bool

func (k fakeKeys) IsReady() bool { return bool(k) }

func newTestRouter(h ActivityHandler, auth Authenticator, keys ReadyChecker) *Router {
	r := NewRouter("test", slogx.Discard())
	r.Handler = h
	r.Registry = fakePinger{}
	r.Auth = auth
	r.Keys = keys
	r.HandleTimeout = time.Second
	r.ApplyRoutes()
	return r
}

func activityJSON(t *testing.T, mutate func(a *connector.Activity)) []byte {
	t.Helper()
	a := connector.Activity{
		Type:         connector.ActivityTypeMessage,
		ID:           "in-1",
		ServiceURL:   testServiceURL,
		ChannelID:    connector.ChannelMsteams,
		From:         &connector.ChannelAccount{ID: "U1"},
		Recipient:    &connector.ChannelAccount{ID: "B1"},
		Conversation: &connector.ConversationAccount{ID: "conv-1"},
		Text:         "login",
	}
	if mutate != nil {
		mutate(&a)
	}
	raw, err := json.Marshal(a)
	require.NoError(t, err)
	return raw
}

func post(r http.Handler, body []byte, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestMessages_DispatchesValidActivity(t *testing.T) {
	h := &recordingHandler{}
	r := newTestRouter(h, nil, nil)

	rec := post(r, activityJSON(t, nil), "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, h.handled, 1)
	require.Equal(t, "login", h.handled[0].Text)
	require.True(t, h.deadline)
	require.Empty(t, h.reported)
}

func TestMessages_RejectsInvalidActivity(t *testing.T) {
	cases := map[string][]byte{
		"malformed json":     []byte(`{"type":`),
		"null body":          []byte(`null`),
		"missing type":       activityJSON(t, func(a *connector.Activity) { a.Type = "" }),
		"missing from":       activityJSON(t, func(a *connector.Activity) { a.From = nil }),
		"empty from id":      activityJSON(t, func(a *connector.Activity) { a.From = &connector.ChannelAccount{} }),
		"missing conv":       activityJSON(t, func(a *connector.Activity) { a.Conversation = nil }),
		"missing channel":    activityJSON(t, func(a *connector.Activity) { a.ChannelID = "" }),
		"missing serviceUrl": activityJSON(t, func(a *connector.Activity) { a.ServiceURL = "" }),
		"bad serviceUrl":     activityJSON(t, func(a *connector.Activity) { a.ServiceURL = "not a url" }),
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			h := &recordingHandler{}
			r := newTestRouter(h, nil, nil)

			rec := post(r, body, "")
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var eb httpx.ErrorBody
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&eb))
			require.Equal(t, "BadRequest", eb.Error.Code)

			require.Empty(t, h.handled)
			require.Empty(t, h.reported)
		})
	}
}

func TestMessages_HandlerErrorSendsBestEffortReply(t *testing.T) {
	boom := errors.New("token service unavailable")

	t.Run("reply delivered", func(t *testing.T) {
		h := &recordingHandler{err: boom}
		rec := post(newTestRouter(h, nil, nil), activityJSON(t, nil), "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, []error{boom}, h.reported)
	})

	t.Run("reply failure is swallowed", func(t *testing.T) {
		h := &recordingHandler{err: boom, reportErr: errors.New("channel down")}
		rec := post(newTestRouter(h, nil, nil), activityJSON(t, nil), "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, h.reported, 1)
	})
}

func TestMessages_ChannelAuthentication(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer, err := jwtx.NewRS256Signer("k1", key, connector.ChannelMsteams)
	require.NoError(t, err)

	keys := jwtx.NewKeySet()
	require.NoError(t, keys.ResetFromJWKS(signer.PublicJWKS()))
	verifier := jwtx.NewChannelVerifier(keys, jwtx.VerifyOptions{
		Issuers: []string{testIssuer},
		AppID:   testAppID,
	})

	sign := func(audience, serviceURL string) string {
		tok, err := signer.Sign(jwtx.NewChannelClaims(testIssuer, audience, serviceURL, time.Hour, time.Now()))
		require.NoError(t, err)
		return tok
	}

	cases := map[string]struct {
		token string
		want  int
	}{
		"valid":               {sign(testAppID, testServiceURL), http.StatusOK},
		"missing token":       {"", http.StatusUnauthorized},
		"garbage token":       {"not.a.jwt", http.StatusUnauthorized},
		"wrong audience":      {sign("someone-else", testServiceURL), http.StatusUnauthorized},
		"service url differs": {sign(testAppID, "https://evil.example.com/"), http.StatusUnauthorized},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := &recordingHandler{}
			rec := post(newTestRouter(h, verifier, keys), activityJSON(t, nil), tc.token)
			require.Equal(t, tc.want, rec.Code)

			if tc.want == http.StatusOK {
				require.Len(t, h.handled, 1)
				return
			}
			require.Empty(t, h.handled)
			require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
		})
	}

	t.Run("key not endorsed for channel", func(t *testing.T) {
		h := &recordingHandler{}
		body := activityJSON(t, func(a *connector.Activity) { a.ChannelID = "slack" })
		rec := post(newTestRouter(h, verifier, keys), body, sign(testAppID, testServiceURL))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Empty(t, h.handled)
	})
}

func TestHealthEndpoints(t *testing.T) {
	get := func(r http.Handler, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	t.Run("livez", func(t *testing.T) {
		rec := get(newTestRouter(&recordingHandler{}, nil, nil), "/livez")
		require.Equal(t, http.StatusOK, rec.Code)

		var body HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Equal(t, "ok", body.Status)
		require.Equal(t, "test", body.Version)
	})

	t.Run("readyz ok without auth", func(t *testing.T) {
		rec := get(newTestRouter(&recordingHandler{}, nil, nil), "/readyz")
		require.Equal(t, http.StatusOK, rec.Code)

		var body HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Equal(t, "ok", body.Checks.Registry)
		require.Empty(t, body.Checks.Keys)
	})

	t.Run("readyz registry down", func(t *testing.T) {
		r := newTestRouter(&recordingHandler{}, nil, nil)
		r.Registry = fakePinger{err: errors.New("connection refused")}
		r.Mux = http.NewServeMux()
		r.ApplyRoutes()

		rec := get(r, "/readyz")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Equal(t, "degraded", body.Status)
		require.True(t, strings.HasPrefix(body.Checks.Registry, "error:"))
	})

	t.Run("readyz keys not loaded", func(t *testing.T) {
		rec := get(newTestRouter(&recordingHandler{}, nil, fakeKeys(false)), "/readyz")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("swagger", func(t *testing.T) {
		rec := get(newTestRouter(&recordingHandler{}, nil, nil), "/swagger/doc.json")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "/api/messages")
	})
}

func TestMessages_RateLimited(t *testing.T) {
	h := &recordingHandler{}
	r := NewRouter("test", slogx.Discard())
	r.Handler = h
	r.Registry = fakePinger{}
	r.RateLimit = httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
	r.ApplyRoutes()

	require.Equal(t, http.StatusOK, post(r, activityJSON(t, nil), "").Code)
	require.Equal(t, http.StatusTooManyRequests, post(r, activityJSON(t, nil), "").Code)
	require.Len(t, h.handled, 1)
}
