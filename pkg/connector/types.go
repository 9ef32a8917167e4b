package connector

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Activity Types
// ============================================================================

// Activity types the bot reacts to. Anything else is delivered but ignored.
const (
	ActivityTypeMessage            = "message"
	ActivityTypeConversationUpdate = "conversationUpdate"
	ActivityTypeTyping             = "typing"
	ActivityTypeEndOfConversation  = "endOfConversation"
	ActivityTypeEvent              = "event"
	ActivityTypeInvoke             = "invoke"
)

// Channel ids the bot has to special-case.
const (
	ChannelDirectline = "directline"
	ChannelWebchat    = "webchat"
	ChannelEmulator   = "emulator"
	ChannelMsteams    = "msteams"
	ChannelTest       = "test"
)

// Role values carried on a ChannelAccount.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// ActionTypeSignin is the card action type that opens a sign-in flow.
const ActionTypeSignin = "signin"

// ContentTypeOAuthCard is the attachment content type of an OAuthCard.
const ContentTypeOAuthCard = "application/vnd.microsoft.card.oauth"

// Activity is the basic communication type exchanged with a channel. Only the
// fields the sign-in flow reads or writes are modelled; everything else is
// preserved in ChannelData/Entities as raw JSON.
type Activity struct {
	Type         string                 `json:"type"`
	ID           string                 `json:"id,omitempty"`
	Timestamp    *time.Time             `json:"timestamp,omitempty"`
	ServiceURL   string                 `json:"serviceUrl,omitempty"`
	ChannelID    string                 `json:"channelId,omitempty"`
	From         *ChannelAccount        `json:"from,omitempty"`
	Conversation *ConversationAccount   `json:"conversation,omitempty"`
	Recipient    *ChannelAccount        `json:"recipient,omitempty"`
	TextFormat   string                 `json:"textFormat,omitempty"`
	Locale       string                 `json:"locale,omitempty"`
	Text         string                 `json:"text,omitempty"`
	Attachments  []Attachment           `json:"attachments,omitempty"`
	MembersAdded []ChannelAccount       `json:"membersAdded,omitempty"`
	ReplyToID    string                 `json:"replyToId,omitempty"`
	RelatesTo    *ConversationReference `json:"relatesTo,omitempty"`
	Name         string                 `json:"name,omitempty"`
	Value        json.RawMessage        `json:"value,omitempty"`
	ChannelData  json.RawMessage        `json:"channelData,omitempty"`
	Entities     []json.RawMessage      `json:"entities,omitempty"`
}

// CreateReply returns a message addressed back to the sender of a: sender and
// recipient swap, the conversation and channel carry over, and ReplyToID
// points at a.
func (a *Activity) CreateReply(text string) *Activity {
	return &Activity{
		Type:         ActivityTypeMessage,
		ServiceURL:   a.ServiceURL,
		ChannelID:    a.ChannelID,
		From:         a.Recipient,
		Recipient:    a.From,
		Conversation: a.Conversation,
		Locale:       a.Locale,
		Text:         text,
		ReplyToID:    a.ID,
	}
}

// ChannelAccount identifies a user or bot on a channel. The id is scoped to
// the channel, so the same person may carry different ids on different
// channels.
type ChannelAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
	Role        string `json:"role,omitempty"`
}

// ConversationAccount identifies a conversation on a channel.
type ConversationAccount struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	AADObjectID      string `json:"aadObjectId,omitempty"`
	Role             string `json:"role,omitempty"`
}

// ConversationReference points at a specific place in a conversation so the
// bot can resume it later.
type ConversationReference struct {
	ActivityID   string               `json:"activityId,omitempty"`
	User         *ChannelAccount      `json:"user,omitempty"`
	Bot          *ChannelAccount      `json:"bot,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	Locale       string               `json:"locale,omitempty"`
}

// Attachment is a file or card attached to an activity.
type Attachment struct {
	ContentType  string `json:"contentType"`
	ContentURL   string `json:"contentUrl,omitempty"`
	Content      any    `json:"content,omitempty"`
	Name         string `json:"name,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// ============================================================================
// Card Types
// ============================================================================

// CardAction is a clickable action on a card.
type CardAction struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
	Value any    `json:"value,omitempty"`
}

// OAuthCard asks the user to sign in with a configured OAuth connection.
type OAuthCard struct {
	Text                  string                 `json:"text,omitempty"`
	ConnectionName        string                 `json:"connectionName,omitempty"`
	Buttons               []CardAction           `json:"buttons,omitempty"`
	TokenExchangeResource *TokenExchangeResource `json:"tokenExchangeResource,omitempty"`
}

// Attachment wraps the card in an attachment carrying the OAuthCard content type.
func (c OAuthCard) Attachment() Attachment {
	return Attachment{
		ContentType: ContentTypeOAuthCard,
		Content:     c,
	}
}

// ============================================================================
// Conversation Types
// ============================================================================

// ResourceResponse carries the id the channel assigned to a created resource.
type ResourceResponse struct {
	ID string `json:"id"`
}

// ConversationParameters describes a conversation to create.
type ConversationParameters struct {
	IsGroup     bool             `json:"isGroup,omitempty"`
	Bot         *ChannelAccount  `json:"bot,omitempty"`
	Members     []ChannelAccount `json:"members,omitempty"`
	TopicName   string           `json:"topicName,omitempty"`
	TenantID    string           `json:"tenantId,omitempty"`
	Activity    *Activity        `json:"activity,omitempty"`
	ChannelData json.RawMessage  `json:"channelData,omitempty"`
}

// ConversationResourceResponse is returned when a conversation is created.
type ConversationResourceResponse struct {
	ActivityID string `json:"activityId,omitempty"`
	ServiceURL string `json:"serviceUrl,omitempty"`
	ID         string `json:"id"`
}

// ConversationMembers lists the members of one conversation.
type ConversationMembers struct {
	ID      string           `json:"id"`
	Members []ChannelAccount `json:"members"`
}

// ConversationsResult is a page of conversations the bot participates in.
type ConversationsResult struct {
	ContinuationToken string                `json:"continuationToken,omitempty"`
	Conversations     []ConversationMembers `json:"conversations"`
}

// PagedMembersResult is a page of conversation members.
type PagedMembersResult struct {
	ContinuationToken string           `json:"continuationToken,omitempty"`
	Members           []ChannelAccount `json:"members"`
}

// Transcript is a batch of activities uploaded as conversation history.
type Transcript struct {
	Activities []Activity `json:"activities"`
}

// AttachmentData is the payload for uploading an attachment to a channel.
type AttachmentData struct {
	Type            string `json:"type"`
	Name            string `json:"name"`
	OriginalBase64  []byte `json:"originalBase64,omitempty"`
	ThumbnailBase64 []byte `json:"thumbnailBase64,omitempty"`
}

// AttachmentView describes one renderable view of a stored attachment.
type AttachmentView struct {
	ViewID string `json:"viewId"`
	Size   int    `json:"size"`
}

// AttachmentInfo describes a stored attachment and its views.
type AttachmentInfo struct {
	Name  string           `json:"name"`
	Type  string           `json:"type"`
	Views []AttachmentView `json:"views"`
}

// ============================================================================
// User Token Types
// ============================================================================

// TokenResponse is a user token issued for an OAuth connection.
type TokenResponse struct {
	ChannelID      string `json:"channelId,omitempty"`
	ConnectionName string `json:"connectionName"`
	Token          string `json:"token"`
	// Expiration is an ISO-8601 timestamp, passed through as received.
	Expiration string `json:"expiration,omitempty"`
}

// TokenStatus reports whether a user has a token for a connection.
type TokenStatus struct {
	ChannelID                  string `json:"channelId,omitempty"`
	ConnectionName             string `json:"connectionName"`
	HasToken                   bool   `json:"hasToken"`
	ServiceProviderDisplayName string `json:"serviceProviderDisplayName,omitempty"`
}

// TokenExchangeResource lets a channel perform single sign-on on the bot's
// behalf.
type TokenExchangeResource struct {
	ID         string `json:"id,omitempty"`
	URI        string `json:"uri,omitempty"`
	ProviderID string `json:"providerId,omitempty"`
}

// SignInResource bundles a sign-in link with an optional SSO resource.
type SignInResource struct {
	SignInLink            string                 `json:"signInLink"`
	TokenExchangeResource *TokenExchangeResource `json:"tokenExchangeResource,omitempty"`
}

// TokenExchangeRequest exchanges a channel SSO token for a user token.
type TokenExchangeRequest struct {
	URI   string `json:"uri,omitempty"`
	Token string `json:"token,omitempty"`
}

// AADResourceURLs is the body of a batch resource token request.
type AADResourceURLs struct {
	ResourceURLs []string `json:"resourceUrls"`
}

// ============================================================================
// Error Envelope
// ============================================================================

// ErrorResponse is the error body returned by connector services.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine code and a human message.
type ErrorDetail struct {
	Code           string          `json:"code"`
	Message        string          `json:"message"`
	InnerHTTPError *InnerHTTPError `json:"innerHttpError,omitempty"`
}

// InnerHTTPError is the upstream failure wrapped by an ErrorResponse.
type InnerHTTPError struct {
	StatusCode int             `json:"statusCode"`
	Body       json.RawMessage `json:"body,omitempty"`
}
