package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"minuto/internal/notify"
	"minuto/internal/progress"
	"minuto/internal/server"
	"minuto/pkg/logger"
)

// App is the running service: the HTTP API, the reminder ticker and the
// Telegram command listener.
type App struct {
	server          *server.Server
	reminder        *notify.Reminder
	telegram        *notify.TelegramNotifier
	engine          *progress.Engine
	logger          *logger.Logger
	shutdownTimeout time.Duration
}

func New(srv *server.Server, reminder *notify.Reminder, telegram *notify.TelegramNotifier, engine *progress.Engine, l *logger.Logger, shutdownTimeout time.Duration) *App {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &App{
		server:          srv,
		reminder:        reminder,
		telegram:        telegram,
		engine:          engine,
		logger:          l,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run serves until ctx is cancelled or the HTTP server fails, then shuts
// everything down.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go a.reminder.Run(ctx)

	go func() {
		if err := a.telegram.Listen(ctx); err != nil {
			a.logger.Errorw("Telegram listener stopped", "error", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Infow("Shutdown signal received")
	case runErr = <-serverErr:
		a.logger.Errorw("HTTP server failed", "error", runErr)
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer stop()
	if err := a.server.Stop(shutdownCtx); err != nil {
		a.logger.Errorw("Error during HTTP server shutdown", "error", err)
	}
	a.engine.Wait()

	a.logger.Infow("Service stopped")
	return runErr
}
