package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/signinbot/pkg/connector"
)

var ErrUnknownScope = errors.New("domain: unknown login scope")

// Scope decides how widely one login attempt is shared.
type Scope string

const (
	// ScopeUser shares a login across every conversation a user id appears
	// in, for the lifetime of the registry.
	ScopeUser Scope = "user"

	// ScopeConversation keeps one login per channel, conversation and user.
	ScopeConversation Scope = "conversation"
)

// ParseScope accepts "user" or "conversation", case-insensitively. Empty
// means ScopeUser.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeUser:
		return ScopeUser, nil
	case ScopeConversation:
		return ScopeConversation, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScope, s)
	}
}

// LoginKey is the registry key for the sender of activity. It is empty when
// the activity carries no sender.
func LoginKey(scope Scope, activity *connector.Activity) string {
	if activity == nil || activity.From == nil || activity.From.ID == "" {
		return ""
	}
	if scope != ScopeConversation {
		return activity.From.ID
	}

	conversationID := ""
	if activity.Conversation != nil {
		conversationID = activity.Conversation.ID
	}
	// Ids are opaque and may contain separators, so length-prefix each part.
	parts := []string{strings.ToLower(activity.ChannelID), conversationID, activity.From.ID}
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('|')
		}
		fmt.Fprintf(&b, "%d:%s", len(p), p)
	}
	return b.String()
}
