package routes

import (
	"net/http"

	"referr/internal/handlers"
	"referr/internal/middleware"
	"referr/internal/observability"
	"referr/internal/utils"
	"referr/pkg/logger"
	"referr/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies is everything the router needs from main.
type Dependencies struct {
	AuthHandler      *handlers.AuthHandler
	ReferralHandler  *handlers.ReferralHandler
	UserHandler      *handlers.UserHandler
	HealthHandler    *handlers.HealthHandler
	WebSocketHandler *websocket.Handler

	Sessions middleware.SessionValidator
	Users    middleware.UserLookup

	CookieName     string
	AllowedOrigins []string
	TrustedProxies []string

	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
	Logger   *logger.Logger
}

func NewRouter(deps *Dependencies) (*gin.Engine, error) {
	router := gin.New()
	if err := router.SetTrustedProxies(deps.TrustedProxies); err != nil {
		return nil, err
	}

	// Global middleware
	router.Use(middleware.RecoveryMiddleware(deps.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(deps.Logger))
	router.Use(middleware.MetricsMiddleware(deps.Metrics))
	router.Use(middleware.CORSMiddleware(deps.AllowedOrigins))

	router.GET("/health", deps.HealthHandler.Health)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	{
		SetupAuthRoutes(v1, deps)
		SetupReferralRoutes(v1, deps)
		SetupUserRoutes(v1, deps)
	}

	router.NoRoute(func(c *gin.Context) {
		utils.ErrorResponse(c, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})

	return router, nil
}

func SetupAuthRoutes(r *gin.RouterGroup, deps *Dependencies) {
	auth := r.Group("/auth")
	{
		auth.POST("/request-otp", deps.AuthHandler.RequestOTP)
		auth.POST("/verify-otp", deps.AuthHandler.VerifyOTP)
		auth.POST("/logout", deps.AuthHandler.Logout)
	}
}

func SetupReferralRoutes(r *gin.RouterGroup, deps *Dependencies) {
	// Public: hit from the landing page before anyone signs in
	r.POST("/referral/click", deps.ReferralHandler.RegisterClick)

	dashboard := r.Group("")
	dashboard.Use(middleware.AuthRequired(deps.Sessions, deps.CookieName), middleware.OnboardingRequired(deps.Users))
	{
		dashboard.GET("/stats/me", deps.ReferralHandler.GetMyStats)
		dashboard.GET("/leaderboard", deps.ReferralHandler.GetLeaderboard)
		if deps.WebSocketHandler != nil {
			dashboard.GET("/stats/live", deps.WebSocketHandler.HandleWebSocket)
		}
	}
}

func SetupUserRoutes(r *gin.RouterGroup, deps *Dependencies) {
	user := r.Group("")
	user.Use(middleware.AuthRequired(deps.Sessions, deps.CookieName))
	{
		user.GET("/user/me", deps.UserHandler.GetMe)
		user.POST("/onboarding", deps.UserHandler.CompleteOnboarding)
	}
}
