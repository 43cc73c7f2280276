package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/consultportal/portal/internal/app"
	"github.com/consultportal/portal/internal/handlers"
	"github.com/consultportal/portal/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, db *gorm.DB, probes *monitoring.Health) {
	health := handlers.Health(db)
	r.GET("/health", health)
	r.GET("/api/health", health)
	r.GET("/health/live", handlers.Probes(probes.Liveness))
	r.GET("/health/ready", handlers.Probes(probes.Readiness))

	if !cfg.Monitoring.Prometheus.Enabled {
		return
	}
	endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	r.GET(endpoint, gin.WrapH(promhttp.Handler()))
}
