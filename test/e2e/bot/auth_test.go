package bot_test

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/signinbot/internal/bot/service"
	"github.com/aussiebroadwan/signinbot/pkg/connector"
)

func TestChannelAuth_SignedRoundTrip(t *testing.T) {
	h := setupBot(t, setupOptions{channelAuth: true})

	// Every call the bot makes to the emulator carries the app token, so a
	// recorded reply proves outbound credentials work.
	reply := h.say(t, "u1", "login")
	code := consent(t, signInLink(t, reply))

	reply = h.say(t, "u1", code)
	require.Equal(t, service.TextSignedIn, reply.Activity.Text)
	require.True(t, h.emu.HasToken("u1", connectionName, connector.ChannelEmulator))
}

func TestChannelAuth_RejectsUnsignedActivity(t *testing.T) {
	h := setupBot(t, setupOptions{channelAuth: true})

	body := []byte(`{
		"type": "message",
		"channelId": "emulator",
		"serviceUrl": "` + h.emuURL + `/",
		"from": {"id": "u1"},
		"conversation": {"id": "conv-u1"},
		"text": "login"
	}`)
	resp, err := http.Post(h.botURL+"/api/messages", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Empty(t, h.emu.Activities())
}

func TestChannelAuth_ReadyWithKeys(t *testing.T) {
	h := setupBot(t, setupOptions{channelAuth: true})

	resp, err := http.Get(h.botURL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
