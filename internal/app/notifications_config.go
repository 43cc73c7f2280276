package app

import (
	"strings"
	"time"
)

const (
	defaultPageSize           = 50
	defaultRetentionDays      = 30
	defaultCleanupSchedule    = "@daily"
	defaultPreferenceCacheTTL = 5 * time.Minute
	defaultRateLimitRequests  = 100
	defaultRateLimitWindow    = time.Minute
)

// ListPageSize returns the list default, bounded to the service maximum.
func (c NotificationsConfig) ListPageSize() int {
	if c.PageSize <= 0 || c.PageSize > defaultPageSize {
		return defaultPageSize
	}
	return c.PageSize
}

// Retention returns how many days read notifications are kept.
func (c NotificationsConfig) Retention() int {
	if c.RetentionDays <= 0 {
		return defaultRetentionDays
	}
	return c.RetentionDays
}

// Schedule returns the cron expression for the retention sweep.
func (c NotificationsConfig) Schedule() string {
	if spec := strings.TrimSpace(c.CleanupSchedule); spec != "" {
		return spec
	}
	return defaultCleanupSchedule
}

// CacheTTL returns how long preference lookups stay cached.
func (c NotificationsConfig) CacheTTL() time.Duration {
	if c.PreferenceCacheTTL <= 0 {
		return defaultPreferenceCacheTTL
	}
	return c.PreferenceCacheTTL
}

// Limits returns the request budget per window with defaults applied.
func (c RateLimitConfig) Limits() (int, time.Duration) {
	requests, window := c.Requests, c.Window
	if requests <= 0 {
		requests = defaultRateLimitRequests
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return requests, window
}
