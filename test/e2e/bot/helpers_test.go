package bot_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/signinbot/internal/bot/app"
	"github.com/aussiebroadwan/signinbot/internal/emulator"
	"github.com/aussiebroadwan/signinbot/pkg/connector"
	"github.com/aussiebroadwan/signinbot/pkg/jwtx"
)

/*
 * End-to-end tests run the real bot application against the in-memory
 * emulator. The emulator stands in for both the token service and the
 * channel: it delivers activities to /api/messages and records the replies.
 */

const (
	connectionName = "graph"
	appID          = "signinbot-e2e"

	// botAccessToken is what the fake authority hands the bot, and what the
	// emulator demands as bearer when channel auth is on.
	botAccessToken = "bot-app-token"
)

type setupOptions struct {
	// channelAuth turns on signed channel tokens and outbound credentials.
	channelAuth bool

	// env is applied on top of the defaults.
	env map[string]string
}

type harness struct {
	emu    *emulator.Server
	emuURL string
	botURL string
}

// setupBot starts an emulator and a bot wired to it. Both are torn down with
// the test.
func setupBot(t *testing.T, opts setupOptions) *harness {
	t.Helper()

	emuOpts := emulator.Options{}
	env := map[string]string{
		"BOT_CONNECTION_NAME": connectionName,
		"BOT_LOGIN_TTL":       "10m",
		"LOG_LEVEL":           "error",
		"ENV":                 "test",
	}

	if opts.channelAuth {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		signer, err := jwtx.NewRS256Signer("e2e-key", key, connector.ChannelEmulator)
		require.NoError(t, err)

		emuOpts.Signer = signer
		emuOpts.AppID = appID
		emuOpts.BearerToken = botAccessToken

		authority := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": botAccessToken,
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		}))
		t.Cleanup(authority.Close)

		env["BOT_APP_ID"] = appID
		env["BOT_APP_PASSWORD"] = "secret"
		env["BOT_AUTHORITY_HOST"] = authority.URL
		env["BOT_TOKEN_ISSUERS"] = emulator.DefaultIssuer
	}

	emu, err := emulator.New(emuOpts)
	require.NoError(t, err)
	emuSrv := httptest.NewServer(emu)
	t.Cleanup(emuSrv.Close)
	emu.SetBaseURL(emuSrv.URL)

	env["BOT_TOKEN_ENDPOINT"] = emuSrv.URL
	env["BOT_OPENID_KEYS_URL"] = emuSrv.URL + "/v1/.well-known/keys"
	for k, v := range opts.env {
		env[k] = v
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := app.ParseConfig()
	require.NoError(t, err)

	bot, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bot.Shutdown() })

	botSrv := httptest.NewServer(bot.Handler())
	t.Cleanup(botSrv.Close)

	return &harness{emu: emu, emuURL: emuSrv.URL, botURL: botSrv.URL}
}

// say delivers a message from userID and returns the bot's reply.
func (h *harness) say(t *testing.T, userID, text string) emulator.RecordedActivity {
	t.Helper()
	return h.deliver(t, &connector.Activity{
		Type:         connector.ActivityTypeMessage,
		From:         &connector.ChannelAccount{ID: userID, Role: connector.RoleUser},
		Recipient:    &connector.ChannelAccount{ID: "bot", Role: connector.RoleBot},
		Conversation: &connector.ConversationAccount{ID: "conv-" + userID},
		Text:         text,
	})
}

func (h *harness) deliver(t *testing.T, activity *connector.Activity) emulator.RecordedActivity {
	t.Helper()

	before := len(h.emu.Activities())
	require.NoError(t, h.emu.Deliver(context.Background(), h.botURL+"/api/messages", activity))

	after := h.emu.Activities()
	require.Len(t, after, before+1, "expected exactly one reply")
	return after[len(after)-1]
}

// signInLink pulls the sign-in url out of an OAuthCard reply.
func signInLink(t *testing.T, reply emulator.RecordedActivity) string {
	t.Helper()

	require.Len(t, reply.Activity.Attachments, 1)
	att := reply.Activity.Attachments[0]
	require.Equal(t, connector.ContentTypeOAuthCard, att.ContentType)

	raw, err := json.Marshal(att.Content)
	require.NoError(t, err)
	var card connector.OAuthCard
	require.NoError(t, json.Unmarshal(raw, &card))
	require.Equal(t, connectionName, card.ConnectionName)
	require.Len(t, card.Buttons, 1)
	require.Equal(t, connector.ActionTypeSignin, card.Buttons[0].Type)

	link, ok := card.Buttons[0].Value.(string)
	require.True(t, ok)
	return link
}

// consent opens the sign-in link like a browser and returns the magic code.
func consent(t *testing.T, link string) string {
	t.Helper()

	resp, err := http.Get(link)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	code, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(code)
}
