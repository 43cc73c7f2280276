package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/consultportal/portal/internal/app"
	iauth "github.com/consultportal/portal/internal/auth"
	"github.com/consultportal/portal/internal/handlers"
	"github.com/consultportal/portal/internal/middleware"
	"github.com/consultportal/portal/internal/monitoring"
	"github.com/consultportal/portal/internal/realtime"
	"github.com/consultportal/portal/internal/services"
)

// Dependencies carries the long-lived services the HTTP surface is built on.
type Dependencies struct {
	DB            *gorm.DB
	JWT           *iauth.JWTService
	Hub           *realtime.Hub
	Notifications *services.NotificationService
	Preferences   *services.PreferenceService
	RateStore     middleware.RateStore
	// Health defaults to a database readiness probe.
	Health *monitoring.Health
}

func (d Dependencies) validate() error {
	switch {
	case d.DB == nil:
		return errors.New("router: database handle must be provided")
	case d.JWT == nil:
		return errors.New("router: jwt service must be provided")
	case d.Hub == nil:
		return errors.New("router: realtime hub must be provided")
	case d.Notifications == nil:
		return errors.New("router: notification service must be provided")
	case d.Preferences == nil:
		return errors.New("router: preference service must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(cfg *app.Config, deps Dependencies) (*gin.Engine, error) {
	if cfg == nil {
		return nil, errors.New("router: config must be provided")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins...))

	health := deps.Health
	if health == nil {
		health = monitoring.NewHealth()
		health.AddReadiness(monitoring.DatabaseProbe(deps.DB, 0))
	}
	registerHealthRoutes(r, cfg, deps.DB, health)
	registerRealtimeRoutes(r, handlers.NewRealtimeHandler(deps.Hub, deps.JWT, realtime.StreamNotifications))

	rateStore := deps.RateStore
	if rateStore == nil {
		rateStore = middleware.NewMemoryRateStore()
	}
	requests, window := cfg.RateLimit.Limits()

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))
	api.Use(middleware.RateLimit(rateStore, requests, window))

	notificationHandler, err := handlers.NewNotificationHandler(deps.Notifications, cfg.Notifications.ListPageSize())
	if err != nil {
		return nil, err
	}
	preferenceHandler, err := handlers.NewPreferenceHandler(deps.Preferences)
	if err != nil {
		return nil, err
	}
	registerNotificationRoutes(api, notificationHandler, preferenceHandler)

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
