package connector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aussiebroadwan/signinbot/pkg/connector/credentials"
)

// fixture is a fake backend plus a span recorder shared by the surface tests.
type fixture struct {
	srv      *httptest.Server
	recorder *tracetest.SpanRecorder
	opts     Options
	calls    atomic.Int32
}

func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()

	f := &fixture{recorder: tracetest.NewSpanRecorder()}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(f.srv.Close)

	f.opts = Options{
		Credential:     credentials.StaticCredential("test-token"),
		Scope:          "https://api.botframework.com/.default",
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(f.recorder)),
	}
	return f
}

func (f *fixture) spans() []sdktrace.ReadOnlySpan {
	return f.recorder.Ended()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_AttachesBearerToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, ResourceResponse{ID: "a1"})
	})

	cc := NewConversationsClient(f.srv.URL, f.opts)
	res, err := cc.SendToConversation(context.Background(), "conv", &Activity{Type: ActivityTypeMessage})
	require.NoError(t, err)
	require.Equal(t, "a1", res.ID)
}

func TestClient_NoCredentialSendsNoAuthorization(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, ResourceResponse{ID: "a1"})
	})
	f.opts.Credential = nil

	cc := NewConversationsClient(f.srv.URL, f.opts)
	_, err := cc.SendToConversation(context.Background(), "conv", &Activity{Type: ActivityTypeMessage})
	require.NoError(t, err)
}

func TestClient_SpanPerCall(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ResourceResponse{ID: "a1"})
	})

	cc := NewConversationsClient(f.srv.URL, f.opts)
	_, err := cc.SendToConversation(context.Background(), "conv", &Activity{Type: ActivityTypeMessage})
	require.NoError(t, err)

	spans := f.spans()
	require.Len(t, spans, 1)
	require.Equal(t, "ConversationsClient.SendToConversation", spans[0].Name())
	require.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestClient_RequestFailed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: ErrorDetail{
			Code:    "BotNotInConversationRoster",
			Message: "the bot is not part of the conversation roster",
		}})
	})

	cc := NewConversationsClient(f.srv.URL, f.opts)
	_, err := cc.SendToConversation(context.Background(), "conv", &Activity{Type: ActivityTypeMessage})

	var rerr *RequestFailedError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, http.StatusForbidden, rerr.StatusCode)
	require.Equal(t, "BotNotInConversationRoster", rerr.Code)
	require.Contains(t, string(rerr.Body), "roster")
	require.True(t, IsStatus(err, http.StatusForbidden))

	spans := f.spans()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.NotEmpty(t, spans[0].Events(), "error should be recorded on the span")
}

func TestClient_RequestFailedWithoutEnvelope(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	cc := NewConversationsClient(f.srv.URL, f.opts)
	err := cc.DeleteActivity(context.Background(), "conv", "act")

	var rerr *RequestFailedError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, http.StatusBadGateway, rerr.StatusCode)
	require.Empty(t, rerr.Code)
	require.Contains(t, rerr.Error(), "502")
}

func TestClient_NoRetries(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	cc := NewConversationsClient(f.srv.URL, f.opts)
	_, err := cc.GetConversations(context.Background(), "")
	require.Error(t, err)
	require.Equal(t, int32(1), f.calls.Load())
}

func TestClient_CredentialFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	f.opts.Credential = credentials.StaticCredential("")

	cc := NewConversationsClient(f.srv.URL, f.opts)
	_, err := cc.GetConversations(context.Background(), "")
	require.ErrorIs(t, err, credentials.ErrEmptyToken)
	require.Equal(t, codes.Error, f.spans()[0].Status().Code)
}

func TestAttachmentsClient(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v3/attachments/att%201", "/v3/attachments/att 1":
			writeJSON(w, http.StatusOK, AttachmentInfo{
				Name:  "report.pdf",
				Type:  "application/pdf",
				Views: []AttachmentView{{ViewID: "original", Size: 5}},
			})
		case "/v3/attachments/att 1/views/original":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-"))
		default:
			http.NotFound(w, r)
		}
	})

	ac := NewAttachmentsClient(f.srv.URL, f.opts)
	ctx := context.Background()

	info, err := ac.GetAttachmentInfo(ctx, "att 1")
	require.NoError(t, err)
	require.Equal(t, "report.pdf", info.Name)
	require.Len(t, info.Views, 1)

	body, err := ac.GetAttachment(ctx, "att 1", "original")
	require.NoError(t, err)
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	require.Equal(t, "%PDF-", string(raw))

	_, err = ac.GetAttachment(ctx, "att 1", "thumbnail")
	require.True(t, IsStatus(err, http.StatusNotFound))

	names := make([]string, 0, 3)
	for _, s := range f.spans() {
		names = append(names, s.Name())
	}
	require.Equal(t, []string{
		"AttachmentsClient.GetAttachmentInfo",
		"AttachmentsClient.GetAttachment",
		"AttachmentsClient.GetAttachment",
	}, names)
}
