package monitoring

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/consultportal/portal/internal/database"
)

const (
	defaultProbeTimeout    = 2 * time.Second
	defaultRetentionMaxAge = 48 * time.Hour
)

// Pinger is implemented by dependencies that answer a connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseProbe pings the database connection pool.
func DatabaseProbe(db *gorm.DB, timeout time.Duration) Probe {
	return Probe{Name: "database", Run: func(ctx context.Context) Result {
		if db == nil {
			return Result{Status: StatusDown, Details: "database not configured"}
		}
		sqlDB, err := db.DB()
		if err != nil {
			return FromError(err)
		}
		ctx, cancel := context.WithTimeout(ctx, orDefault(timeout, defaultProbeTimeout))
		defer cancel()
		return FromError(sqlDB.PingContext(ctx))
	}}
}

// RedisProbe pings the shared cache. A nil pinger means redis is not in use
// and reports up.
func RedisProbe(pinger Pinger, timeout time.Duration) Probe {
	return Probe{Name: "redis", Run: func(ctx context.Context) Result {
		if pinger == nil {
			return Result{Status: StatusUp, Details: "redis disabled"}
		}
		ctx, cancel := context.WithTimeout(ctx, orDefault(timeout, defaultProbeTimeout))
		defer cancel()
		return FromError(pinger.Ping(ctx))
	}}
}

// RetentionProbe degrades when the last completed retention sweep is older
// than maxAge. A service that never swept yet reports up.
func RetentionProbe(db *gorm.DB, maxAge time.Duration, now func() time.Time) Probe {
	maxAge = orDefault(maxAge, defaultRetentionMaxAge)
	if now == nil {
		now = time.Now
	}
	return Probe{Name: "retention", Run: func(ctx context.Context) Result {
		last, err := database.LastCleanup(ctx, db)
		if err != nil {
			return Result{Status: StatusDegraded, Details: err.Error()}
		}
		if last.IsZero() {
			return Result{Status: StatusUp, Details: "no sweep recorded yet"}
		}
		if age := now().Sub(last); age > maxAge {
			return Result{Status: StatusDegraded, Details: "last sweep " + last.UTC().Format(time.RFC3339)}
		}
		return Result{Status: StatusUp}
	}}
}

func orDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
