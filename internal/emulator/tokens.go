package emulator

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/signinbot/pkg/connector"
	"github.com/aussiebroadwan/signinbot/pkg/httpx"
)

func keyFromQuery(q url.Values) tokenKey {
	return tokenKey{
		userID:         q.Get("userId"),
		connectionName: q.Get("connectionName"),
		channelID:      q.Get("channelId"),
	}
}

func (s *Server) consentURL(r *http.Request, state string) string {
	base := s.BaseURL()
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + "/consent?" + url.Values{"state": {state}}.Encode()
}

func (s *Server) handleGetSignInURL(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		httpx.WriteError(w, http.StatusBadRequest, "BadArgument", "state is required")
		return
	}
	httpx.WriteText(w, http.StatusOK, s.consentURL(r, state))
}

func (s *Server) handleGetSignInResource(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		httpx.WriteError(w, http.StatusBadRequest, "BadArgument", "state is required")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, connector.SignInResource{SignInLink: s.consentURL(r, state)})
}

// handleConsent stands in for the identity provider: it accepts the state
// blob and shows the user a magic code bound to their user, connection and
// channel.
func (s *Server) handleConsent(w http.ResponseWriter, r *http.Request) {
	state, err := connector.DecodeExchangeState(r.URL.Query().Get("state"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BadArgument", err.Error())
		return
	}
	if state.Conversation.User == nil || state.Conversation.User.ID == "" || state.ConnectionName == "" {
		httpx.WriteError(w, http.StatusBadRequest, "BadArgument", "state has no user or connection")
		return
	}

	code, err := s.codes.next()
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "InternalServerError", "failed to issue code")
		return
	}

	k := tokenKey{state.Conversation.User.ID, state.ConnectionName, state.Conversation.ChannelID}
	s.mu.Lock()
	s.pending[k] = code
	s.mu.Unlock()

	s.log.Info("magic code issued",
		"user_id", k.userID,
		"connection_name", k.connectionName,
		"channel_id", k.channelID,
	)
	httpx.WriteText(w, http.StatusOK, code)
}

func (s *Server) issueToken(k tokenKey) connector.TokenResponse {
	tok := connector.TokenResponse{
		ChannelID:      k.channelID,
		ConnectionName: k.connectionName,
		Token:          "emu_" + uuid.NewString(),
		Expiration:     s.now().Add(s.opts.TokenTTL).UTC().Format(time.RFC3339),
	}
	s.tokens[k] = tok
	return tok
}

// handleGetToken returns the user's token, or redeems a magic code for one.
// A missing token is a 404, which clients read as "no token".
func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	k := keyFromQuery(q)
	if k.userID == "" || k.connectionName == "" {
		httpx.WriteError(w, http.StatusBadRequest, "BadArgument", "userId and connectionName are required")
		return
	}
	code := q.Get("code")

	s.mu.Lock()
	defer s.mu.Unlock()

	if code != "" {
		if want, ok := s.pending[k]; ok && want == code {
			delete(s.pending, k)
			httpx.WriteJSON(w, http.StatusOK, s.issueToken(k))
			return
		}
		httpx.WriteError(w, http.StatusNotFound, "TokenNotFound", "magic code not recognised")
		return
	}

	tok, ok := s.liveToken(k)
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "TokenNotFound", "no token for user")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tok)
}

// handleSignOut drops the user's tokens and pending codes. An empty
// connectionName covers every connection.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	k := keyFromQuery(r.URL.Query())
	if k.userID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "BadArgument", "userId is required")
		return
	}

	matches := func(c tokenKey) bool {
		return c.userID == k.userID &&
			(k.connectionName == "" || c.connectionName == k.connectionName) &&
			(k.channelID == "" || c.channelID == k.channelID)
	}

	s.mu.Lock()
	for c := range s.tokens {
		if matches(c) {
			delete(s.tokens, c)
		}
	}
	for c := range s.pending {
		if matches(c) {
			delete(s.pending, c)
		}
	}
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleGetTokenStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, channelID := q.Get("userId"), q.Get("channelId")
	if userID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "BadArgument", "userId is required")
		return
	}

	var include []string
	if raw := q.Get("include"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			include = append(include, strings.TrimSpace(name))
		}
	}

	s.mu.Lock()
	out := []connector.TokenStatus{}
	for k := range s.tokens {
		if k.userID != userID || (channelID != "" && k.channelID != channelID) {
			continue
		}
		if len(include) > 0 && !slices.Contains(include, k.connectionName) {
			continue
		}
		if _, ok := s.liveToken(k); !ok {
			continue
		}
		out = append(out, connector.TokenStatus{
			ChannelID:      k.channelID,
			ConnectionName: k.connectionName,
			HasToken:       true,
		})
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b connector.TokenStatus) int {
		return strings.Compare(a.ConnectionName, b.ConnectionName)
	})
	httpx.WriteJSON(w, http.StatusOK, out)
}

// handleExchange accepts an SSO token only for users that already hold a
// token for the connection. Anything else is answered with an error body.
func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	k := keyFromQuery(r.URL.Query())

	var req connector.TokenExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || (req.Token == "" && req.URI == "") {
		httpx.WriteError(w, http.StatusBadRequest, "BadArgument", "exchange request needs a token or uri")
		return
	}

	s.mu.Lock()
	tok, ok := s.liveToken(k)
	s.mu.Unlock()
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "TokenNotFound", "no token to exchange for")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tok)
}

func (s *Server) handleGetAADTokens(w http.ResponseWriter, r *http.Request) {
	k := keyFromQuery(r.URL.Query())

	var req connector.AADResourceURLs
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BadArgument", "malformed resource list")
		return
	}

	s.mu.Lock()
	tok, ok := s.liveToken(k)
	s.mu.Unlock()
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "TokenNotFound", "no token for user")
		return
	}

	out := make(map[string]connector.TokenResponse, len(req.ResourceURLs))
	for _, resource := range req.ResourceURLs {
		rt := tok
		rt.Token = "emu_" + uuid.NewString()
		out[resource] = rt
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
