package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notifyhub/internal/appwire"
	"notifyhub/internal/config"
	"notifyhub/internal/httpapi"
	"notifyhub/internal/logging"
	"notifyhub/internal/scheduler"
)

// Build-time variables (set by ldflags).
var (
	Version   = "dev"
	GitCommit = "unknown"
)

const (
	exitOK = iota
	exitConfig
	exitDependency
)

func main() {
	os.Exit(run())
}

func run() int {
	logging.Info("notifyhub server %s (%s) starting", Version, GitCommit)

	cfgPath := os.Getenv("NOTIFYHUB_CONFIG_FILE")
	if cfgPath == "" {
		cfgPath = "config/notifyhub.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logging.Error("config: %v", err)
		return exitConfig
	}

	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "notifyhub-server-" + GitCommit
	}

	app, err := appwire.Build(cfg, instanceID)
	if err != nil {
		logging.Error("appwire: %v", err)
		return exitDependency
	}
	defer app.DB.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.Limiter.StartJanitor(ctx, 5*time.Minute)

	sched := scheduler.New()
	sched.Register(scheduler.RetryTask(app.History, app.Dispatcher, 30*time.Second, 100))
	sched.Register(scheduler.HistoryRetentionTask(app.History, 24*time.Hour, cfg.Retention.AuditWindow()))
	sched.Register(scheduler.SocketHeartbeatTask(app.Hub, time.Minute))
	sched.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.NewRouter(httpapi.Deps{
		Dispatcher: app.Dispatcher,
		History:    app.History,
		Templates:  app.Templates,
		Analytics:  app.Analytics,
	}))
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			http.Error(w, "userId is required", http.StatusBadRequest)
			return
		}
		app.Hub.ServeWS(w, r, userID)
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		IdleTimeout:  cfg.Server.IdleTimeout(),
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Info("httpapi: listening on %s", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logging.Info("server: shutdown signal received")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logging.Error("server: listen failed: %v", err)
			return exitDependency
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("server: graceful shutdown failed: %v", err)
	}
	sched.Shutdown(10 * time.Second)

	return exitOK
}
