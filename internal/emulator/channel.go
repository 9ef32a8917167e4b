package emulator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/signinbot/pkg/connector"
	"github.com/aussiebroadwan/signinbot/pkg/httpx"
	"github.com/aussiebroadwan/signinbot/pkg/jwtx"
)

const channelTokenTTL = 5 * time.Minute

var ErrNoBaseURL = errors.New("emulator: base url not set")

// DeliveryError is returned when the bot answers a delivery with a non-2xx
// status.
type DeliveryError struct {
	StatusCode int
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("emulator: bot answered %d", e.StatusCode)
}

// Deliver posts activity to the bot's messaging endpoint the way a channel
// does. Missing id, timestamp and serviceUrl are filled in, and the request
// carries a signed channel token when a Signer is configured.
func (s *Server) Deliver(ctx context.Context, botEndpoint string, activity *connector.Activity) error {
	base := s.BaseURL()
	if base == "" {
		return ErrNoBaseURL
	}

	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.Timestamp == nil {
		now := s.now().UTC()
		activity.Timestamp = &now
	}
	if activity.ServiceURL == "" {
		activity.ServiceURL = base + "/"
	}
	if activity.ChannelID == "" {
		activity.ChannelID = connector.ChannelEmulator
	}
	s.rememberMembers(activity)

	body, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to encode activity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, botEndpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if s.opts.Signer != nil {
		claims := jwtx.NewChannelClaims(s.opts.Issuer, s.opts.AppID, activity.ServiceURL, channelTokenTTL, s.now())
		token, err := s.opts.Signer.Sign(claims)
		if err != nil {
			return fmt.Errorf("failed to sign channel token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver activity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (s *Server) rememberMembers(a *connector.Activity) {
	if a.Conversation == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	known := s.members[a.Conversation.ID]
	if known == nil {
		known = map[string]connector.ChannelAccount{}
		s.members[a.Conversation.ID] = known
	}
	for _, acc := range []*connector.ChannelAccount{a.From, a.Recipient} {
		if acc != nil && acc.ID != "" {
			known[acc.ID] = *acc
		}
	}
}

// handleKeys publishes the signer's public keys in the shape channel key
// endpoints use.
func (s *Server) handleKeys(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Signer == nil {
		httpx.WriteJSON(w, http.StatusOK, jwtx.JWKS{Keys: []jwtx.JWK{}})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s.opts.Signer.PublicJWKS())
}

// SayRequest is the body of /emulator/say.
type SayRequest struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Text           string `json:"text"`
	// Type defaults to "message".
	Type string `json:"type,omitempty"`
}

// handleSay lets a developer talk to the bot with curl.
func (s *Server) handleSay(w http.ResponseWriter, r *http.Request) {
	if s.opts.BotEndpoint == "" {
		httpx.WriteError(w, http.StatusServiceUnavailable, "NoBot", "no bot endpoint configured")
		return
	}

	var req SayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "BadArgument", "userId is required")
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = "conv-" + req.UserID
	}
	if req.Type == "" {
		req.Type = connector.ActivityTypeMessage
	}

	activity := &connector.Activity{
		Type:         req.Type,
		From:         &connector.ChannelAccount{ID: req.UserID, Role: connector.RoleUser},
		Recipient:    &connector.ChannelAccount{ID: "bot", Role: connector.RoleBot},
		Conversation: &connector.ConversationAccount{ID: req.ConversationID},
		Text:         req.Text,
	}
	if err := s.Deliver(r.Context(), s.opts.BotEndpoint, activity); err != nil {
		httpx.WriteError(w, http.StatusBadGateway, "DeliveryFailed", err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, connector.ResourceResponse{ID: activity.ID})
}
