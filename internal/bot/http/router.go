package http

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/aussiebroadwan/signinbot/pkg/httpx"
	"github.com/aussiebroadwan/signinbot/pkg/slogx"

	_ "github.com/aussiebroadwan/signinbot/api/bot" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

const tracerName = "github.com/aussiebroadwan/signinbot/internal/bot/http"

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	Handler       ActivityHandler
	Registry      Pinger
	Auth          Authenticator // nil disables channel authentication
	Keys          ReadyChecker  // nil when Auth is nil
	HandleTimeout time.Duration
	RateLimit     httpx.RateLimitConfig
}

func NewRouter(buildVersion string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recover(),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerMessages()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Sign-in Bot API
//	@version		0.1.0
//	@description	Conversational bot brokering delegated OAuth logins for channel users.
//	@description
//	@description				Channels deliver activities to /api/messages with an RS256 bearer token issued by the channel service.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/signinbot
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:3978
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Channel token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerMessages() {
	h := &MessagesHandler{
		Handler: r.Handler,
		Auth:    r.Auth,
		Timeout: r.HandleTimeout,
		Tracer:  otel.Tracer(tracerName),
	}

	r.Mux.Handle("POST /api/messages",
		httpx.Chain(h,
			httpx.RateLimitByIP(r.RateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.Registry, r.Keys))
}
