package connector

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidExchangeState is returned when a state blob cannot be decoded.
var ErrInvalidExchangeState = errors.New("connector: invalid exchange state")

// Channels that cannot resolve a reply target for a conversation update.
var noReplyTargetChannels = map[string]struct{}{
	ChannelDirectline: {},
	ChannelWebchat:    {},
}

// ExchangeState is the context that rides through the identity provider's
// redirect so the token service can resume the originating conversation.
type ExchangeState struct {
	ConnectionName string                 `json:"connectionName"`
	Conversation   ConversationReference  `json:"conversation"`
	RelatesTo      *ConversationReference `json:"relatesTo,omitempty"`
	BotURL         string                 `json:"botUrl,omitempty"`
	MsAppID        string                 `json:"msAppId"`
}

// NewExchangeState captures the conversation an activity belongs to. The
// activity id is left out for conversation updates on channels that cannot
// reply to them.
func NewExchangeState(appID, connectionName string, activity *Activity) ExchangeState {
	ref := ConversationReference{
		ActivityID:   activity.ID,
		User:         activity.From,
		Bot:          activity.Recipient,
		Conversation: activity.Conversation,
		ChannelID:    activity.ChannelID,
		ServiceURL:   activity.ServiceURL,
		Locale:       activity.Locale,
	}

	if activity.Type == ActivityTypeConversationUpdate {
		if _, ok := noReplyTargetChannels[strings.ToLower(activity.ChannelID)]; ok {
			ref.ActivityID = ""
		}
	}

	return ExchangeState{
		ConnectionName: connectionName,
		Conversation:   ref,
		RelatesTo:      activity.RelatesTo,
		MsAppID:        appID,
	}
}

// EncodeExchangeState serializes the state to JSON and encodes it with
// standard base64. Identical states always produce identical blobs.
func EncodeExchangeState(state ExchangeState) (string, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to encode exchange state: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeExchangeState reverses EncodeExchangeState. Standard and URL-safe
// alphabets are accepted, padded or not, and JSON keys match case-insensitively.
func DecodeExchangeState(blob string) (ExchangeState, error) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return ExchangeState{}, fmt.Errorf("%w: empty", ErrInvalidExchangeState)
	}

	normalized := strings.TrimRight(blob, "=")
	normalized = strings.NewReplacer("-", "+", "_", "/").Replace(normalized)

	raw, err := base64.RawStdEncoding.DecodeString(normalized)
	if err != nil {
		return ExchangeState{}, fmt.Errorf("%w: %v", ErrInvalidExchangeState, err)
	}

	var state ExchangeState
	if err := json.Unmarshal(raw, &state); err != nil {
		return ExchangeState{}, fmt.Errorf("%w: %v", ErrInvalidExchangeState, err)
	}
	return state, nil
}
