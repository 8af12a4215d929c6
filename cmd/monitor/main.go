package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"restock_bot/internal/cart"
	"restock_bot/internal/catalog"
	"restock_bot/internal/config"
	"restock_bot/internal/monitor"
	"restock_bot/internal/notify"
	"restock_bot/internal/schedule"
	"restock_bot/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if cfg.CatalogBaseURL == "" {
		log.Error("CATALOG_BASE_URL is required")
		os.Exit(1)
	}
	if cfg.CartServiceURL == "" {
		log.Error("CART_SERVICE_URL is required")
		os.Exit(1)
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	source := newSource(cfg)

	carts := cart.NewClient(cfg.CartServiceURL, http.DefaultClient, cfg.CartTimeout())
	ledger := cart.NewLedger(carts, store, cfg.DefaultPolicy(), log)

	notifiers := []notify.Notifier{notify.NewLogNotifier(log)}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			log.Error("create telegram notifier", "error", err)
			os.Exit(1)
		}
		notifiers = append(notifiers, tg)
		log.Info("telegram notifications enabled", "chat_id", cfg.TelegramChatID)
	}
	fanout := notify.NewFanout(log, notifiers...)

	committer := monitor.NewCommitter(store, ledger, carts, fanout, log)
	selector := schedule.NewSelector(schedule.NewPhase(cfg.PhaseWindow()))

	loop := monitor.New(store, source, selector, committer, log)
	loop.SetTickInterval(cfg.Tick())
	loop.SetMaxParallelProbes(cfg.MaxParallelProbes)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting monitor",
		"tick", cfg.Tick().String(),
		"phase_window", cfg.PhaseWindow().String(),
		"parallel_probes", cfg.MaxParallelProbes,
	)

	loop.Run(ctx)

	log.Info("monitor stopped")
}

// newSource wires the catalog adapters: item pages scrape the site
// directly; keyword watches go through the search feed when one is
// configured and fall back to HTML search otherwise. All probing is
// throttled per host.
func newSource(cfg *config.Config) catalog.Source {
	html := catalog.NewHTML(http.DefaultClient, cfg.CatalogBaseURL, cfg.ProbeTimeout())

	var keyword catalog.Source
	if cfg.CatalogFeedURL != "" {
		keyword = catalog.NewRSS(http.DefaultClient, cfg.CatalogFeedURL, cfg.ProbeTimeout())
	}

	throttle := catalog.NewThrottle(cfg.ProbeHostDelay())
	return catalog.Throttled(catalog.NewComposite(html, keyword), throttle)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
