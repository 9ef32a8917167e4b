package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aussiebroadwan/signinbot/internal/bot/domain"
	"github.com/aussiebroadwan/signinbot/internal/bot/store"
	"github.com/aussiebroadwan/signinbot/pkg/connector"
	"github.com/aussiebroadwan/signinbot/pkg/slogx"
)

// Commands recognised in message text, compared case-insensitively after
// trimming.
const (
	CommandLogin  = "login"
	CommandLogout = "logout"
)

// Reply texts.
const (
	TextGreeting        = "hi"
	TextAlreadyLogged   = "You are already logged in."
	TextSignInPrompt    = "Login to continue"
	TextSignInButton    = "Login"
	TextSignedIn        = "Successful sign in! You can now use your connection."
	TextSignInFailed    = "Unable to retrieve your token. Cannot login."
	TextSignedOut       = "You have been signed out."
	TextAwaitingCode    = "You are currently logging in. Please complete the login process by providing a valid magic code, or send 'logout'."
	textEchoFormat      = "you said %s"
	textExceptionFormat = "Exception: %s"
)

var (
	ErrNilActivity     = errors.New("service: nil activity")
	ErrInvalidActivity = errors.New("service: activity has no sender or conversation")
)

var magicCodePattern = regexp.MustCompile(`\d{6}`)

// TokenService is the part of the token backend the sign-in flow uses.
// *connector.UserTokenClient satisfies it.
type TokenService interface {
	GetUserToken(ctx context.Context, userID, connectionName, channelID, code string) (*connector.TokenResponse, error)
	GetSignInURL(ctx context.Context, state string, opts connector.SignInURLOptions) (string, error)
	SignOutUser(ctx context.Context, userID, connectionName, channelID string) error
}

// Messenger delivers outgoing activities. *connector.ConversationsClient
// satisfies it.
type Messenger interface {
	SendToConversation(ctx context.Context, conversationID string, activity *connector.Activity) (*connector.ResourceResponse, error)
	ReplyToActivity(ctx context.Context, conversationID string, activity *connector.Activity) (*connector.ResourceResponse, error)
}

// MessengerFactory returns the messenger for a channel's service URL.
type MessengerFactory func(serviceURL string) Messenger

// SignInService runs the login/logout/magic-code conversation for each inbound
// activity. It keeps no state of its own; outstanding logins live in Registry.
type SignInService struct {
	Tokens         TokenService
	Messengers     MessengerFactory
	Registry       store.LoginRegistry
	Scope          domain.Scope
	AppID          string
	ConnectionName string
}

// Handle processes one inbound activity and sends at most one reply. Backend
// and delivery errors are returned to the caller unhandled.
func (s *SignInService) Handle(ctx context.Context, activity *connector.Activity) error {
	if activity == nil {
		return ErrNilActivity
	}
	if activity.From == nil || activity.From.ID == "" || activity.Conversation == nil || activity.Conversation.ID == "" {
		return ErrInvalidActivity
	}

	ctx = slogx.With(ctx,
		slog.String("activity_type", activity.Type),
		slog.String("channel_id", activity.ChannelID),
		slog.String("conversation_id", activity.Conversation.ID),
		slog.String("user_id", activity.From.ID),
	)

	switch activity.Type {
	case connector.ActivityTypeMessage:
		text := strings.TrimSpace(activity.Text)
		switch strings.ToLower(text) {
		case CommandLogin:
			return s.login(ctx, activity)
		case CommandLogout:
			return s.logout(ctx, activity)
		}
		return s.message(ctx, activity, text)

	case connector.ActivityTypeConversationUpdate:
		return s.deliver(ctx, activity, activity.CreateReply(TextGreeting))

	default:
		slogx.FromContext(ctx).Debug("ignoring activity")
		return nil
	}
}

func (s *SignInService) login(ctx context.Context, activity *connector.Activity) error {
	l := slogx.FromContext(ctx)

	token, err := s.Tokens.GetUserToken(ctx, activity.From.ID, s.ConnectionName, activity.ChannelID, "")
	if err != nil {
		return fmt.Errorf("failed to look up user token: %w", err)
	}
	if token != nil {
		l.Info("login requested with an existing token")
		return s.deliver(ctx, activity, activity.CreateReply(TextAlreadyLogged))
	}

	state, err := connector.EncodeExchangeState(connector.NewExchangeState(s.AppID, s.ConnectionName, activity))
	if err != nil {
		return err
	}

	signInURL, err := s.Tokens.GetSignInURL(ctx, state, connector.SignInURLOptions{})
	if err != nil {
		return fmt.Errorf("failed to get sign-in url: %w", err)
	}

	reply := activity.CreateReply("")
	reply.Attachments = []connector.Attachment{
		connector.OAuthCard{
			Text:           TextSignInPrompt,
			ConnectionName: s.ConnectionName,
			Buttons: []connector.CardAction{{
				Type:  connector.ActionTypeSignin,
				Title: TextSignInButton,
				Value: signInURL,
			}},
		}.Attachment(),
	}
	if err := s.deliver(ctx, activity, reply); err != nil {
		return err
	}

	if err := s.Registry.Add(ctx, s.key(activity)); err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	l.Info("sign-in prompt issued")
	return nil
}

// logout signs the user out even when no token exists.
func (s *SignInService) logout(ctx context.Context, activity *connector.Activity) error {
	if err := s.Tokens.SignOutUser(ctx, activity.From.ID, s.ConnectionName, activity.ChannelID); err != nil {
		return fmt.Errorf("failed to sign out user: %w", err)
	}

	if err := s.deliver(ctx, activity, activity.CreateReply(TextSignedOut)); err != nil {
		return err
	}

	if err := s.Registry.Remove(ctx, s.key(activity)); err != nil {
		return fmt.Errorf("failed to clear login attempt: %w", err)
	}
	slogx.FromContext(ctx).Info("user signed out")
	return nil
}

func (s *SignInService) message(ctx context.Context, activity *connector.Activity, text string) error {
	key := s.key(activity)

	pending, err := s.Registry.Contains(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to check login attempt: %w", err)
	}
	if !pending {
		return s.deliver(ctx, activity, activity.CreateReply(fmt.Sprintf(textEchoFormat, text)))
	}

	code := magicCodePattern.FindString(text)
	if code == "" {
		return s.deliver(ctx, activity, activity.CreateReply(TextAwaitingCode))
	}

	token, err := s.Tokens.GetUserToken(ctx, activity.From.ID, s.ConnectionName, activity.ChannelID, code)
	if err != nil {
		return fmt.Errorf("failed to redeem magic code: %w", err)
	}
	if token == nil {
		slogx.FromContext(ctx).Info("magic code rejected")
		return s.deliver(ctx, activity, activity.CreateReply(TextSignInFailed))
	}

	if err := s.deliver(ctx, activity, activity.CreateReply(TextSignedIn)); err != nil {
		return err
	}
	if err := s.Registry.Remove(ctx, key); err != nil {
		return fmt.Errorf("failed to clear login attempt: %w", err)
	}
	slogx.FromContext(ctx).Info("user signed in")
	return nil
}

func (s *SignInService) key(activity *connector.Activity) string {
	return domain.LoginKey(s.Scope, activity)
}

// deliver threads the reply when the inbound activity was itself a reply and
// appends to the conversation otherwise; some channels don't support threads.
func (s *SignInService) deliver(ctx context.Context, inbound, reply *connector.Activity) error {
	messenger := s.Messengers(inbound.ServiceURL)
	conversationID := inbound.Conversation.ID

	var err error
	if inbound.ReplyToID != "" {
		_, err = messenger.ReplyToActivity(ctx, conversationID, reply)
	} else {
		_, err = messenger.SendToConversation(ctx, conversationID, reply)
	}
	if err != nil {
		return fmt.Errorf("failed to deliver reply: %w", err)
	}
	return nil
}

// ReportError sends a best-effort "Exception: ..." message to the conversation
// the failed activity came from. The delivery error, if any, is returned for
// logging only.
func (s *SignInService) ReportError(ctx context.Context, activity *connector.Activity, cause error) error {
	if activity == nil || activity.Conversation == nil || activity.Conversation.ID == "" || activity.ServiceURL == "" {
		return ErrInvalidActivity
	}
	reply := activity.CreateReply(fmt.Sprintf(textExceptionFormat, cause.Error()))
	_, err := s.Messengers(activity.ServiceURL).SendToConversation(ctx, activity.Conversation.ID, reply)
	return err
}
