package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/consultportal/portal/internal/monitoring"
	apperrors "github.com/consultportal/portal/pkg/errors"
	"github.com/consultportal/portal/pkg/response"
)

// Health reports readiness. When db is supplied it must answer a ping.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{"status": "ok", "checked_at": time.Now().UTC()}
		if db != nil {
			if err := pingDatabase(requestContext(c), db); err != nil {
				response.ErrorWithData(c,
					apperrors.ErrServiceUnavailable.WithMessage("database unavailable").WithInternal(err),
					gin.H{"status": "degraded", "database": "unreachable"})
				return
			}
			status["database"] = "ok"
		}
		response.Success(c, http.StatusOK, status)
	}
}

func pingDatabase(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// Probes serves a monitoring report. Anything but an all-up report answers 503.
func Probes(evaluate func(ctx context.Context) monitoring.Report) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := evaluate(requestContext(c))
		if report.Success {
			response.Success(c, http.StatusOK, report)
			return
		}
		response.ErrorWithData(c, apperrors.ErrServiceUnavailable.WithMessage("dependency "+string(report.Status)), report)
	}
}
