package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/consultportal/portal/internal/api"
	"github.com/consultportal/portal/internal/app"
	"github.com/consultportal/portal/internal/app/maintenance"
	iauth "github.com/consultportal/portal/internal/auth"
	"github.com/consultportal/portal/internal/cache"
	"github.com/consultportal/portal/internal/database"
	"github.com/consultportal/portal/internal/ingest"
	"github.com/consultportal/portal/internal/middleware"
	"github.com/consultportal/portal/internal/monitoring"
	"github.com/consultportal/portal/internal/notifications"
	"github.com/consultportal/portal/internal/realtime"
	"github.com/consultportal/portal/internal/services"
	"github.com/consultportal/portal/pkg/logger"
	"github.com/consultportal/portal/pkg/mail"
)

// Email channels selectable with notifications.email.channel.
const (
	channelNone    = "none"
	channelLog     = "log"
	channelSMTP    = "smtp"
	channelWebhook = "webhook"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB            *gorm.DB
	Redis         *cache.RedisStore
	Hub           *realtime.Hub
	Notifications *services.NotificationService
	Cleaner       *maintenance.Cleaner
	Ingest        *ingest.Consumer
	Router        *gin.Engine

	ingestCancel context.CancelFunc
	ingestDone   sync.WaitGroup
}

// bootstrapRuntime initialises the database, caches, services, background jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	var store cache.Store = cache.NewMemoryStore(nil)
	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to in-process cache", zap.Error(err))
			stack.Redis = nil
		} else {
			store = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Hub = realtime.NewHub(realtime.WithAllowedOrigins(cfg.Server.AllowedOrigins...))

	prefs, err := services.NewPreferenceService(stack.DB,
		services.WithPreferenceCache(store, cfg.Notifications.CacheTTL()))
	if err != nil {
		return nil, fmt.Errorf("initialise preference service: %w", err)
	}

	dispatcher, err := buildEmailDispatcher(cfg, stack.DB)
	if err != nil {
		return nil, err
	}
	opts := []services.NotificationOption{services.WithPreferences(prefs)}
	if dispatcher != nil {
		opts = append(opts, services.WithEmailDispatcher(dispatcher))
	}
	log.Info("notification email channel", zap.String("channel", cfg.Notifications.EmailChannel()))

	stack.Notifications, err = services.NewNotificationService(stack.DB, stack.Hub, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}

	stack.Cleaner, err = maintenance.NewCleaner(stack.DB, stack.Notifications,
		maintenance.WithRetentionDays(cfg.Notifications.Retention()),
		maintenance.WithSchedule(cfg.Notifications.Schedule()),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise maintenance jobs: %w", err)
	}
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	if cfg.Ingest.Kafka.Enabled {
		reader, err := ingest.NewKafkaReader(cfg.Ingest.KafkaReaderConfig())
		if err != nil {
			return nil, fmt.Errorf("initialise ingest reader: %w", err)
		}
		stack.Ingest, err = ingest.NewConsumer(reader, stack.Notifications)
		if err != nil {
			_ = reader.Close()
			return nil, fmt.Errorf("initialise ingest consumer: %w", err)
		}
		stack.startIngest(ctx, log)
	}

	stack.Router, err = api.NewRouter(cfg, api.Dependencies{
		Health:        stack.healthProbes(cfg),
		DB:            stack.DB,
		JWT:           jwtSvc,
		Hub:           stack.Hub,
		Notifications: stack.Notifications,
		Preferences:   prefs,
		RateStore:     middleware.NewRateStore(store),
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// healthProbes registers readiness probes for the dependencies in use.
func (s *runtimeStack) healthProbes(cfg *app.Config) *monitoring.Health {
	health := monitoring.NewHealth()
	health.AddLiveness(monitoring.Probe{Name: "process", Run: func(context.Context) monitoring.Result {
		return monitoring.Result{Status: monitoring.StatusUp}
	}})
	health.AddReadiness(monitoring.DatabaseProbe(s.DB, 0))

	var pinger monitoring.Pinger
	if s.Redis != nil {
		pinger = s.Redis
	}
	health.AddReadiness(monitoring.RedisProbe(pinger, cfg.Cache.Redis.Timeout))
	health.AddReadiness(monitoring.RetentionProbe(s.DB, 48*time.Hour, nil))
	return health
}

func (s *runtimeStack) startIngest(ctx context.Context, log *zap.Logger) {
	ingestCtx, cancel := context.WithCancel(ctx)
	s.ingestCancel = cancel
	s.ingestDone.Add(1)
	go func() {
		defer s.ingestDone.Done()
		if err := s.Ingest.Run(ingestCtx); err != nil {
			log.Error("notification ingest stopped", zap.Error(err))
		}
	}()
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.ingestCancel != nil {
		s.ingestCancel()
		s.ingestDone.Wait()
	}
	if s.Ingest != nil {
		if err := s.Ingest.Close(); err != nil {
			log.Warn("ingest shutdown", zap.Error(err))
		}
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Hub != nil {
		s.Hub.Close()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

// buildEmailDispatcher selects the email side channel. A nil dispatcher
// disables email delivery.
func buildEmailDispatcher(cfg *app.Config, db *gorm.DB) (notifications.EmailDispatcher, error) {
	switch channel := cfg.Notifications.EmailChannel(); channel {
	case channelNone:
		return nil, nil
	case channelLog:
		return services.NewLogDispatcher(), nil
	case channelSMTP:
		mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
		if err != nil {
			return nil, fmt.Errorf("initialise smtp mailer: %w", err)
		}
		dispatcher, err := services.NewSMTPDispatcher(db, mailer)
		if err != nil {
			return nil, fmt.Errorf("initialise smtp dispatcher: %w", err)
		}
		return dispatcher, nil
	case channelWebhook:
		client := &http.Client{Timeout: cfg.Notifications.WebhookTimeout()}
		dispatcher, err := services.NewWebhookDispatcher(cfg.Notifications.Email.WebhookURL, client)
		if err != nil {
			return nil, fmt.Errorf("initialise webhook dispatcher: %w", err)
		}
		return dispatcher, nil
	default:
		return nil, fmt.Errorf("unsupported notifications.email.channel %q", channel)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Prepare(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("prepare database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	var auth app.DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		auth = cfg.Database.Postgres
	case "mysql", "mariadb":
		dbCfg.Driver = "mysql"
		auth = cfg.Database.MySQL
	default:
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = auth.Password
	return dbCfg
}
