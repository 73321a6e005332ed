package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"minuto/config"
	"minuto/internal/app"
	"minuto/internal/bible"
	"minuto/internal/content"
	"minuto/internal/db"
	"minuto/internal/gpt"
	"minuto/internal/journal"
	"minuto/internal/metrics"
	"minuto/internal/notify"
	"minuto/internal/payment"
	"minuto/internal/progress"
	"minuto/internal/server"
	"minuto/pkg/logger"
)

func ProvideLogger(cfg *config.Config) *logger.Logger {
	if cfg.App.Env == "development" {
		return logger.NewDevelopment()
	}
	return logger.New(cfg.Log.Level)
}

// ProvideStore opens the configured store. The cleanup closes it.
func ProvideStore(cfg *config.Config, l *logger.Logger) (db.Store, func(), error) {
	switch cfg.DB.Driver {
	case "memory":
		l.Warnw("Using the in-memory store; data is lost on restart")
		store := db.NewMemoryDB()
		return store, store.Close, nil
	case "postgres":
		store, err := connectPostgres(cfg.DB, l)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown db driver %q", cfg.DB.Driver)
}

const connectAttempts = 5

// connectPostgres retries the initial connection with a linear backoff so
// the service survives the database starting after it.
func connectPostgres(cfg config.DBConfig, l *logger.Logger) (*db.PostgresDB, error) {
	var lastErr error
	for i := 0; i < connectAttempts; i++ {
		store, err := db.NewPostgresDB(cfg)
		if err == nil {
			return store, nil
		}
		lastErr = err
		l.Warnw("Failed to connect to database, retrying", "attempt", i+1, "error", err)
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", connectAttempts, lastErr)
}

func ProvideClock(cfg *config.Config) progress.Clock {
	return progress.SystemClock{Location: cfg.Location()}
}

func ProvideTelegram(cfg *config.Config, l *logger.Logger) (*notify.TelegramNotifier, error) {
	return notify.NewTelegramNotifier(cfg.Telegram.Token, l)
}

func ProvideAnnouncer(store db.Store, telegram *notify.TelegramNotifier) *notify.RecordAnnouncer {
	return notify.NewRecordAnnouncer(store, telegram)
}

func ProvideEngine(cfg *config.Config, store db.Store, clock progress.Clock, announcer *notify.RecordAnnouncer, l *logger.Logger) *progress.Engine {
	return progress.NewEngine(store, store, clock, progress.Options{
		MonthlyLimit: cfg.Limits.FreeMonthlyQuestions,
		Notifier:     announcer,
	}, l)
}

func ProvideContent(cfg *config.Config, store db.Store, l *logger.Logger) *content.Service {
	cache := content.NewCache(cfg.Cache.Enabled, cfg.Cache.SizeMB, cfg.Cache.TTL, l)
	return content.NewService(store, cache, l)
}

func ProvideJournal(store db.Store, clock progress.Clock, l *logger.Logger) *journal.Service {
	return journal.NewService(store, clock, l)
}

func ProvideBible(store db.Store, clock progress.Clock, l *logger.Logger) *bible.Service {
	return bible.NewService(store, clock, l)
}

func ProvideConversations(store db.Store, clock progress.Clock) *gpt.Conversations {
	return gpt.NewConversations(store, clock)
}

func ProvideEmail(cfg *config.Config, l *logger.Logger) (*notify.EmailSender, error) {
	return notify.NewEmailSender(context.Background(), cfg.Email.Region, cfg.Email.From, cfg.App.BaseURL, l)
}

func ProvidePayments(cfg *config.Config, store db.Store, email *notify.EmailSender, l *logger.Logger) *payment.Service {
	client := payment.NewStripeClient(payment.StripeConfig{
		SecretKey:  cfg.Stripe.SecretKey,
		WebhookKey: cfg.Stripe.WebhookKey,
		PriceID:    cfg.Stripe.PriceID,
	})
	return payment.NewService(client, store, email, cfg.App.BaseURL, l)
}

func ProvideGPT(cfg *config.Config) *gpt.Client {
	return gpt.NewClient(gpt.Config{
		APIKey:    cfg.GPT.APIKey,
		Model:     cfg.GPT.Model,
		BaseURL:   cfg.GPT.BaseURL,
		MaxTokens: cfg.GPT.MaxTokens,
	})
}

// ProvideRegistry returns the registry /metrics serves, with the Go and
// process collectors registered.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func ProvideRecorder(cfg *config.Config, reg *prometheus.Registry) metrics.Recorder {
	return metrics.New(cfg.Metrics.Enabled, reg)
}

func ProvideGatherer(cfg *config.Config, reg *prometheus.Registry) prometheus.Gatherer {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return reg
}

func ProvideAuthenticator(cfg *config.Config, store db.Store, l *logger.Logger) *server.Authenticator {
	return server.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, store, l)
}

func ProvideServer(cfg *config.Config, api *server.API, auth *server.Authenticator, rec metrics.Recorder, gatherer prometheus.Gatherer, l *logger.Logger) *server.Server {
	return server.NewServer(cfg.Server.Port, server.NewHandler(api, auth, rec, gatherer), l)
}

func ProvideReminder(store db.Store, telegram *notify.TelegramNotifier, rec metrics.Recorder, clock progress.Clock, l *logger.Logger) *notify.Reminder {
	return notify.NewReminder(store, telegram, rec, clock, l)
}

func ProvideApp(cfg *config.Config, srv *server.Server, reminder *notify.Reminder, telegram *notify.TelegramNotifier, engine *progress.Engine, l *logger.Logger) *app.App {
	return app.New(srv, reminder, telegram, engine, l, cfg.ShutdownTimeout)
}
