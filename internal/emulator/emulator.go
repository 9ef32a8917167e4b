// Package emulator is an in-memory stand-in for the token service and a
// channel's conversation API, for local development and end-to-end tests.
//
// A typical round trip: the bot asks GetSignInUrl for a consent link, the
// user opens /consent and reads back a magic code, and the bot redeems it via
// GetToken. Replies the bot sends are recorded and exposed by Activities.
package emulator

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/signinbot/pkg/connector"
	"github.com/aussiebroadwan/signinbot/pkg/httpx"
	"github.com/aussiebroadwan/signinbot/pkg/jwtx"
	"github.com/aussiebroadwan/signinbot/pkg/slogx"
)

// DefaultIssuer is the issuer of channel tokens the emulator signs.
const DefaultIssuer = "https://api.botframework.com"

// Options configure a Server.
type Options struct {
	// BaseURL is the emulator's own public address. It is used for consent
	// links and as the serviceUrl of delivered activities. When empty, consent
	// links are built from the request host.
	BaseURL string

	// BearerToken, when set, must be presented by every API caller.
	BearerToken string

	// Signer signs channel tokens for delivered activities. Nil delivers
	// activities unauthenticated.
	Signer *jwtx.RS256Signer
	Issuer string
	AppID  string

	// BotEndpoint is where /emulator/say delivers activities.
	BotEndpoint string

	// TokenTTL is the lifetime of issued user tokens. Defaults to an hour.
	TokenTTL time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

type tokenKey struct {
	userID, connectionName, channelID string
}

// RecordedActivity is an activity the bot sent to the emulator.
type RecordedActivity struct {
	// Operation is "send", "reply", "update" or "delete".
	Operation      string
	ConversationID string
	// ActivityID is the path activity id for reply, update and delete.
	ActivityID string
	// ID is the id the emulator assigned.
	ID       string
	Activity connector.Activity
}

// Server implements the emulated endpoints. It is an http.Handler.
type Server struct {
	opts  Options
	mux   *http.ServeMux
	codes *codeIssuer
	now   func() time.Time
	log   *slog.Logger

	mu         sync.Mutex
	baseURL    string
	pending    map[tokenKey]string
	tokens     map[tokenKey]connector.TokenResponse
	activities []RecordedActivity
	members    map[string]map[string]connector.ChannelAccount
}

// New builds an emulator.
func New(opts Options) (*Server, error) {
	codes, err := newCodeIssuer()
	if err != nil {
		return nil, err
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.Issuer == "" {
		opts.Issuer = DefaultIssuer
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slogx.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		opts:    opts,
		mux:     http.NewServeMux(),
		codes:   codes,
		now:     opts.Now,
		log:     opts.Logger,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		pending: map[tokenKey]string{},
		tokens:  map[tokenKey]connector.TokenResponse{},
		members: map[string]map[string]connector.ChannelAccount{},
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	api := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, s.requireBearer)
	}

	s.mux.Handle("GET /api/botsignin/GetSignInUrl", api(s.handleGetSignInURL))
	s.mux.Handle("GET /api/botsignin/GetSignInResource", api(s.handleGetSignInResource))
	s.mux.Handle("GET /api/usertoken/GetToken", api(s.handleGetToken))
	s.mux.Handle("DELETE /api/usertoken/SignOut", api(s.handleSignOut))
	s.mux.Handle("GET /api/usertoken/GetTokenStatus", api(s.handleGetTokenStatus))
	s.mux.Handle("POST /api/usertoken/exchange", api(s.handleExchange))
	s.mux.Handle("POST /api/usertoken/GetAadTokens", api(s.handleGetAADTokens))

	s.mux.Handle("POST /v3/conversations/{conversationId}/activities", api(s.handleSend))
	s.mux.Handle("POST /v3/conversations/{conversationId}/activities/{activityId}", api(s.handleReply))
	s.mux.Handle("PUT /v3/conversations/{conversationId}/activities/{activityId}", api(s.handleUpdate))
	s.mux.Handle("DELETE /v3/conversations/{conversationId}/activities/{activityId}", api(s.handleDelete))
	s.mux.Handle("GET /v3/conversations/{conversationId}/members", api(s.handleMembers))

	// Browser and developer facing, never authenticated.
	s.mux.HandleFunc("GET /consent", s.handleConsent)
	s.mux.HandleFunc("GET /v1/.well-known/keys", s.handleKeys)
	s.mux.HandleFunc("POST /emulator/say", s.handleSay)
	s.mux.HandleFunc("GET /emulator/activities", s.handleActivities)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// SetBaseURL sets the emulator's public address once it is known, e.g. after
// an httptest server has started.
func (s *Server) SetBaseURL(u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = strings.TrimRight(u, "/")
}

// BaseURL returns the configured public address.
func (s *Server) BaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL
}

// Activities returns a copy of everything the bot has sent so far.
func (s *Server) Activities() []RecordedActivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedActivity(nil), s.activities...)
}

// HasToken reports whether a user token is currently issued.
func (s *Server) HasToken(userID, connectionName, channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.liveToken(tokenKey{userID, connectionName, channelID})
	return ok
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	if s.opts.BearerToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := httpx.BearerToken(r)
		if !ok || token != s.opts.BearerToken {
			httpx.WriteBearerError(w, "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// liveToken must be called with s.mu held. Expired tokens are dropped.
func (s *Server) liveToken(k tokenKey) (connector.TokenResponse, bool) {
	tok, ok := s.tokens[k]
	if !ok {
		return connector.TokenResponse{}, false
	}
	exp, err := time.Parse(time.RFC3339, tok.Expiration)
	if err == nil && !s.now().Before(exp) {
		delete(s.tokens, k)
		return connector.TokenResponse{}, false
	}
	return tok, true
}
