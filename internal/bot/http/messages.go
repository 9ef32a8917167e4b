package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aussiebroadwan/signinbot/pkg/connector"
	"github.com/aussiebroadwan/signinbot/pkg/httpx"
	"github.com/aussiebroadwan/signinbot/pkg/jwtx"
	"github.com/aussiebroadwan/signinbot/pkg/slogx"
)

const (
	maxActivityBytes = 1 << 20

	// errorReplyTimeout bounds the best-effort error reply.
	errorReplyTimeout = 10 * time.Second
)

// ActivityHandler processes activities. *service.SignInService satisfies it.
type ActivityHandler interface {
	Handle(ctx context.Context, activity *connector.Activity) error
	ReportError(ctx context.Context, activity *connector.Activity, cause error) error
}

// Authenticator verifies the bearer token a channel attaches to an activity.
// *jwtx.ChannelVerifier satisfies it.
type Authenticator interface {
	Verify(ctx context.Context, token, channelID string) (*jwtx.ChannelClaims, error)
}

// MessagesHandler is the channel webhook. A nil Auth disables channel
// authentication.
type MessagesHandler struct {
	Handler ActivityHandler
	Auth    Authenticator
	Timeout time.Duration
	Tracer  trace.Tracer
}

// ServeHTTP handles inbound activities.
//
//	@Summary		Receive an activity
//	@Description	Webhook the channel delivers activities to. The bot answers through the conversation's service URL, so the response carries no body.
//	@Description	Processing failures are reported to the conversation as a best-effort "Exception" message and still answer 200.
//	@Tags			Bot
//	@Accept			json
//	@Param			activity	body	connector.Activity	true	"Inbound activity"
//	@Success		200
//	@Failure		400	{object}	httpx.ErrorBody	"Malformed or incomplete activity"
//	@Failure		401	{object}	httpx.ErrorBody	"Missing or invalid channel token"
//	@Security		BearerAuth
//	@Router			/api/messages [post].
func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	token, hasToken := httpx.BearerToken(r)
	if h.Auth != nil && !hasToken {
		httpx.WriteBearerError(w, "missing bearer token")
		return
	}

	var activity connector.Activity
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActivityBytes))
	if err := dec.Decode(&activity); err != nil {
		log.Info("malformed activity", "error", err)
		httpx.WriteError(w, http.StatusBadRequest, "BadRequest", "malformed activity")
		return
	}
	if err := validateActivity(&activity); err != nil {
		log.Info("invalid activity", "error", err)
		httpx.WriteError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}

	if h.Auth != nil {
		claims, err := h.Auth.Verify(ctx, token, activity.ChannelID)
		if err == nil {
			err = claims.ValidateServiceURL(activity.ServiceURL)
		}
		if err != nil {
			log.Warn("channel authentication failed", "error", err, "channel_id", activity.ChannelID)
			httpx.WriteBearerError(w, "invalid channel token")
			return
		}
	}

	ctx, span := h.Tracer.Start(ctx, "SignInBot.Handle", trace.WithAttributes(
		attribute.String("activity.type", activity.Type),
		attribute.String("activity.channel_id", activity.ChannelID),
	))
	defer span.End()
	ctx = slogx.WithSpan(ctx)
	log = slogx.FromContext(ctx)

	handleCtx := ctx
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		handleCtx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	if err := h.Handler.Handle(handleCtx, &activity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("failed to handle activity",
			slog.String("activity_id", activity.ID),
			slog.String("activity_type", activity.Type),
			slog.String("error", err.Error()),
		)
		h.reportError(ctx, &activity, err)
	}

	w.WriteHeader(http.StatusOK)
}

// reportError tells the conversation something went wrong. It runs on its own
// deadline because the handle deadline may be what failed.
func (h *MessagesHandler) reportError(ctx context.Context, activity *connector.Activity, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), errorReplyTimeout)
	defer cancel()

	if err := h.Handler.ReportError(ctx, activity, cause); err != nil {
		slogx.FromContext(ctx).Warn("failed to send error reply", "error", err)
	}
}
