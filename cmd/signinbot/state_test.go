package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/signinbot/pkg/connector"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStateEncodeDecode(t *testing.T) {
	blob, err := run(t, "state", "encode",
		"--app-id", "app-1",
		"--connection", "graph",
		"--user", "u1",
		"--conversation", "c1",
		"--activity-id", "a1",
		"--service-url", "https://smba.example/",
	)
	require.NoError(t, err)
	blob = strings.TrimSpace(blob)

	state, err := connector.DecodeExchangeState(blob)
	require.NoError(t, err)
	require.Equal(t, "graph", state.ConnectionName)
	require.Equal(t, "app-1", state.MsAppID)
	require.Equal(t, "u1", state.Conversation.User.ID)
	require.Equal(t, "a1", state.Conversation.ActivityID)

	out, err := run(t, "state", "decode", blob)
	require.NoError(t, err)

	var decoded connector.ExchangeState
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, state, decoded)
}

func TestStateEncode_RequiresFlags(t *testing.T) {
	_, err := run(t, "state", "encode", "--user", "u1")
	require.Error(t, err)
}

func TestStateDecode_Invalid(t *testing.T) {
	_, err := run(t, "state", "decode", "not a blob")
	require.ErrorIs(t, err, connector.ErrInvalidExchangeState)
}
