// Package appwire builds the shared component graph both cmd/server and
// cmd/worker start from: database, cache, stores, rate limiter, channel
// adapters, socket hub, dispatcher, and analytics aggregator. Splitting
// this out keeps the two composition roots thin and guarantees they wire
// the same components the same way.
package appwire

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"notifyhub/internal/analytics"
	"notifyhub/internal/breaker"
	"notifyhub/internal/cache"
	"notifyhub/internal/channels"
	"notifyhub/internal/config"
	"notifyhub/internal/database"
	"notifyhub/internal/dispatcher"
	"notifyhub/internal/email"
	"notifyhub/internal/history"
	"notifyhub/internal/model"
	"notifyhub/internal/preference"
	"notifyhub/internal/ratelimit"
	"notifyhub/internal/retry"
	"notifyhub/internal/secrets"
	"notifyhub/internal/sockethub"
	"notifyhub/internal/templatestore"
)

// App is the fully wired component graph. Fields are exported so
// cmd/server and cmd/worker can reach into it for anything not already
// exposed through a constructor method.
type App struct {
	Config      *config.Config
	DB          *sql.DB
	Redis       *redis.Client
	Cache       *cache.Layered
	Secrets     secrets.Provider
	History     *history.Store
	Templates   *templatestore.Store
	Preferences *preference.Store
	Limiter     *ratelimit.Limiter
	Hub         *sockethub.Hub
	Dispatcher  *dispatcher.Dispatcher
	Analytics   *analytics.Aggregator
}

// Build constructs every shared component from cfg. instanceID
// distinguishes this process's socket-hub presence entries from its
// siblings (see internal/sockethub).
func Build(cfg *config.Config, instanceID string) (*App, error) {
	db, err := database.Open(&database.Config{
		Driver:       database.Driver(cfg.Database.Driver),
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxLifetime:  cfg.Database.ConnMaxLifetime(),
	})
	if err != nil {
		return nil, fmt.Errorf("appwire: open database: %w", err)
	}

	driver := database.Driver(cfg.Database.Driver)
	migrator, err := database.NewMigrator(db, driver)
	if err != nil {
		return nil, fmt.Errorf("appwire: build migrator: %w", err)
	}
	if err := migrator.ApplyAll(); err != nil {
		return nil, fmt.Errorf("appwire: apply migrations: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Cache.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
	}

	cacheLayer := cache.New(redisClient, cfg.Cache.DefaultTTL(), cfg.Cache.CleanupInterval(), cfg.Cache.KeyPrefix)

	secretsProvider, err := secrets.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("appwire: build secrets provider: %w", err)
	}

	limiter := buildLimiter(cfg, redisClient)

	historyStore := history.New(db)
	templateStore := templatestore.New(db, cacheLayer)
	preferenceStore := preference.New(db, cacheLayer)

	hub := sockethub.New(redisClient, instanceID)

	adapters, err := buildAdapters(cfg, secretsProvider, templateStore, hub)
	if err != nil {
		return nil, fmt.Errorf("appwire: build channel adapters: %w", err)
	}

	disp := dispatcher.New(historyStore, preferenceStore, templateStore, limiter, adapters, 8,
		dispatcher.WithQuietHoursUrgentBypass(cfg.QuietHours.UrgentBypass),
		dispatcher.WithInAppSessionPolicy(hub, cfg.InApp.RequireSession))

	return &App{
		Config:      cfg,
		DB:          db,
		Redis:       redisClient,
		Cache:       cacheLayer,
		Secrets:     secretsProvider,
		History:     historyStore,
		Templates:   templateStore,
		Preferences: preferenceStore,
		Limiter:     limiter,
		Hub:         hub,
		Dispatcher:  disp,
		Analytics:   analytics.New(historyStore),
	}, nil
}

func buildLimiter(cfg *config.Config, redisClient *redis.Client) *ratelimit.Limiter {
	var backend ratelimit.Backend
	if cfg.RateLimit.Backend == "redis" && redisClient != nil {
		backend = ratelimit.NewRedisBackend(redisClient, cfg.Cache.KeyPrefix+":ratelimit:")
	} else {
		backend = ratelimit.NewMemoryBackend()
	}
	return ratelimit.New(backend,
		ratelimit.WithLimit(model.ChannelEmail, cfg.RateLimit.EmailPerHour),
		ratelimit.WithLimit(model.ChannelSMS, cfg.RateLimit.SMSPerHour),
		ratelimit.WithLimit(model.ChannelPush, cfg.RateLimit.PushPerHour),
		ratelimit.WithLimit(model.ChannelInApp, cfg.RateLimit.InAppPerHour),
	)
}

func buildAdapters(cfg *config.Config, secretsProvider secrets.Provider, templateStore *templatestore.Store, hub *sockethub.Hub) (map[model.Channel]channels.Adapter, error) {
	emailPassword, err := secretsProvider.Get(context.Background(), "SMTP_PASSWORD")
	if err != nil {
		emailPassword = ""
	}
	emailSender := email.NewSender(&email.Config{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: emailPassword,
		FromAddr: cfg.Email.FromAddr,
		FromName: cfg.Email.FromName,
		TLS:      cfg.Email.TLS,
	})

	emailAdapter := channels.NewEmailAdapter(emailSender, templateStore)
	smsAdapter := channels.NewSMSAdapter(nil)                  // no SMS provider SDK in the pack, see DESIGN.md
	pushAdapter := channels.NewPushAdapter(nil)                // no push provider SDK in the pack, see DESIGN.md
	inAppAdapter := channels.NewInAppAdapter(hub)

	adapters := map[model.Channel]channels.Adapter{
		model.ChannelEmail: wrap(emailAdapter, cfg.Breaker.Email, cfg.Timeout.Email()),
		model.ChannelSMS:   wrap(smsAdapter, cfg.Breaker.SMS, cfg.Timeout.SMS()),
		model.ChannelPush:  wrap(pushAdapter, cfg.Breaker.Push, cfg.Timeout.Push()),
		model.ChannelInApp: wrap(inAppAdapter, cfg.Breaker.InApp, cfg.Timeout.InApp()),
	}
	return adapters, nil
}

func wrap(inner channels.Adapter, bc config.BreakerSetting, timeout time.Duration) *channels.Composed {
	b := breaker.New(breaker.Config{
		Name:             string(inner.Channel()),
		ErrorRateToTrip:  bc.ErrorRate,
		MinRequests:      10,
		OpenWait:         bc.Wait(),
		HalfOpenMaxCalls: uint32(bc.HalfOpenCalls),
	})
	r := retry.New(retry.DefaultConfig())
	return channels.NewComposed(inner, b, r, timeout)
}
