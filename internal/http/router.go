package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/authhub/internal/auth"
	"github.com/geocoder89/authhub/internal/config"
	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/http/handlers"
	"github.com/geocoder89/authhub/internal/http/middlewares"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const ServiceName = "authhub"

type TokenCodec interface {
	Issue(accountID string, roles []string) (string, error)
	Verify(token string) (auth.Identity, error)
}

// Deps is everything the router needs from main.
type Deps struct {
	Config   config.Config
	Accounts handlers.AccountService
	Tokens   TokenCodec
	Ping     func(ctx context.Context) error
	Draining func() bool

	// Prom and Gatherer are optional; without them /metrics is not mounted.
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
}

func NewRouter(log *slog.Logger, deps Deps) *gin.Engine {
	if deps.Config.Env != config.EnvDev {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(ServiceName))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	if len(deps.Config.AllowedOrigins) > 0 {
		r.Use(middlewares.CORSMiddleware(deps.Config.AllowedOrigins))
	}
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}

	// health
	h := handlers.NewHealthHandler(deps.Ping, deps.Draining, log)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	authMw := middlewares.NewAuthMiddleware(deps.Tokens, deps.Prom)
	authHandler := handlers.NewAuthHandler(deps.Accounts, deps.Tokens, log)

	limit := deps.Config.LoginRateLimit
	if limit <= 0 {
		limit = 10
	}
	loginLimiter := middlewares.NewRateLimiter(limit, time.Minute)
	registerLimiter := middlewares.NewRateLimiter(limit, time.Minute)
	// password changes re-hash, keep them on the same budget per account
	updateLimiter := middlewares.NewRateLimiter(limit, time.Minute)

	maxBody := deps.Config.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	api := r.Group("/api/auth")
	api.Use(middlewares.MaxBodyBytes(maxBody), middlewares.RequireJSON())
	{
		api.POST("/register", registerLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Register)
		api.POST("/login", loginLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Login)
		api.GET("/authorized", middlewares.TokenPresent(), authHandler.Authorized)
		api.GET("/user", authMw.MustRequireRoles(user.RoleUser), authHandler.Me)
		api.PUT("", authMw.RequireAuth(), updateLimiter.RateLimiterMiddleware(middlewares.KeyByAccountOrIP), authHandler.Update)
		api.POST("/roles/set/:id", authMw.MustRequireRoles(user.RoleAdmin), authHandler.SetRoles)
	}

	return r
}
