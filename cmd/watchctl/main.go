// watchctl is the operator tool for the restock monitor: it creates
// and inspects watches, maintains group threshold policies, reviews the
// purchase log, and can force a buy past a threshold denial.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"restock_bot/internal/cart"
	"restock_bot/internal/catalog"
	"restock_bot/internal/config"
	"restock_bot/internal/model"
	"restock_bot/internal/monitor"
	"restock_bot/internal/notify"
	"restock_bot/internal/storage"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: watchctl <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  add       Create a watch (-name, -item|-keyword, -ceiling, ...)")
	fmt.Fprintln(os.Stderr, "  list      List watches")
	fmt.Fprintln(os.Stderr, "  show      Show one watch (-id)")
	fmt.Fprintln(os.Stderr, "  disable   Permanently disable a watch (-id)")
	fmt.Fprintln(os.Stderr, "  recheck   Make a watch due on the next tick (-id)")
	fmt.Fprintln(os.Stderr, "  buy       Probe and buy now (-id, optionally -override-thresholds)")
	fmt.Fprintln(os.Stderr, "  policy    Show or set group threshold policies (-group, -min, -max, -items, -enabled)")
	fmt.Fprintln(os.Stderr, "  log       Show the purchase log (-limit)")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			fmt.Fprintln(os.Stderr, "error: create data directory:", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: open database:", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch os.Args[1] {
	case "add":
		err = cmdAdd(ctx, store, cfg, os.Args[2:])
	case "list":
		err = cmdList(ctx, store, os.Args[2:])
	case "show":
		err = cmdShow(ctx, store, os.Args[2:])
	case "disable":
		err = cmdDisable(ctx, store, os.Args[2:])
	case "recheck":
		err = cmdRecheck(ctx, store, os.Args[2:])
	case "buy":
		err = cmdBuy(ctx, store, cfg, os.Args[2:])
	case "policy":
		err = cmdPolicy(ctx, store, cfg, os.Args[2:])
	case "log":
		err = cmdLog(ctx, store, os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func cmdAdd(ctx context.Context, store storage.Storage, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	name := fs.String("name", "", "display name for the watch")
	item := fs.String("item", "", "direct item reference (code or URL)")
	keyword := fs.String("keyword", "", "search term to monitor")
	ceiling := fs.Int64("ceiling", 0, "maximum acceptable price")
	interval := fs.Int("interval", 30, "check interval in minutes")
	expires := fs.String("expires", "", "optional expiry, RFC 3339")
	exclude := fs.String("exclude", "", "comma-separated exclusion terms for keyword watches")
	_ = fs.Parse(args)

	if *name == "" {
		return errors.New("-name is required")
	}
	if (*item == "") == (*keyword == "") {
		return errors.New("exactly one of -item or -keyword is required")
	}
	if *ceiling <= 0 {
		return errors.New("-ceiling must be a positive price")
	}
	if *interval < cfg.MinCheckIntervalMinutes {
		return fmt.Errorf("-interval must be at least %d minutes", cfg.MinCheckIntervalMinutes)
	}

	target := model.Target{Kind: model.TargetItem, Value: *item}
	if *keyword != "" {
		terms, err := parseExcludeTerms(*exclude)
		if err != nil {
			return err
		}
		target = model.Target{Kind: model.TargetKeyword, Value: *keyword, ExcludeTerms: terms}
	} else if *exclude != "" {
		return errors.New("-exclude only applies to keyword watches")
	}

	w := model.Watch{
		Name:                 *name,
		Target:               target,
		PriceCeiling:         *ceiling,
		CheckIntervalMinutes: *interval,
	}
	if *expires != "" {
		t, err := time.Parse(time.RFC3339, *expires)
		if err != nil {
			return fmt.Errorf("invalid -expires: %w", err)
		}
		u := t.UTC()
		w.ExpiresAt = &u
	}

	if err := store.CreateWatch(ctx, &w); err != nil {
		return err
	}
	fmt.Printf("created watch #%d %q\n", w.ID, w.Name)
	return nil
}

func cmdList(ctx context.Context, store storage.Storage, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	activeOnly := fs.Bool("active", false, "only watches still monitoring")
	_ = fs.Parse(args)

	var (
		watches []model.Watch
		err     error
	)
	if *activeOnly {
		watches, err = store.ListActiveWatches(ctx)
	} else {
		watches, err = store.ListWatches(ctx)
	}
	if err != nil {
		return err
	}
	if len(watches) == 0 {
		fmt.Println("no watches")
		return nil
	}
	for _, w := range watches {
		fmt.Println(formatWatchLine(w))
	}
	return nil
}

func cmdShow(ctx context.Context, store storage.Storage, args []string) error {
	id, err := idArg("show", args)
	if err != nil {
		return err
	}
	w, err := store.GetWatch(ctx, id)
	if err != nil {
		return err
	}
	fmt.Print(formatWatch(*w))
	return nil
}

func cmdDisable(ctx context.Context, store storage.Storage, args []string) error {
	id, err := idArg("disable", args)
	if err != nil {
		return err
	}
	if err := store.UpdateWatchStatus(ctx, id, model.StatusDisabled); err != nil {
		return err
	}
	fmt.Printf("watch #%d disabled\n", id)
	return nil
}

func cmdRecheck(ctx context.Context, store storage.Storage, args []string) error {
	id, err := idArg("recheck", args)
	if err != nil {
		return err
	}
	w, err := store.GetWatch(ctx, id)
	if err != nil {
		return err
	}
	if w.Status != model.StatusMonitoring {
		return fmt.Errorf("watch #%d is %s", w.ID, w.Status)
	}
	if err := store.ClearWatchCheck(ctx, id); err != nil {
		return err
	}
	fmt.Printf("watch #%d will be checked on the next tick\n", id)
	return nil
}

func cmdBuy(ctx context.Context, store storage.Storage, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("buy", flag.ExitOnError)
	id := fs.Int64("id", 0, "watch id")
	override := fs.Bool("override-thresholds", false, "force past max-value/max-items denials (audited)")
	_ = fs.Parse(args)

	if *id == 0 {
		return errors.New("-id is required")
	}
	if cfg.CatalogBaseURL == "" {
		return errors.New("CATALOG_BASE_URL is required for buy")
	}
	if cfg.CartServiceURL == "" {
		return errors.New("CART_SERVICE_URL is required for buy")
	}

	w, err := store.GetWatch(ctx, *id)
	if err != nil {
		return err
	}
	if w.Status != model.StatusMonitoring {
		return fmt.Errorf("watch #%d is %s", w.ID, w.Status)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	source := newSource(cfg)
	carts := cart.NewClient(cfg.CartServiceURL, http.DefaultClient, cfg.CartTimeout())
	ledger := cart.NewLedger(carts, store, cfg.DefaultPolicy(), logger)

	notifiers := []notify.Notifier{notify.NewLogNotifier(logger)}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			return fmt.Errorf("create telegram notifier: %w", err)
		}
		notifiers = append(notifiers, tg)
	}
	committer := monitor.NewCommitter(store, ledger, carts, notify.NewFanout(logger, notifiers...), logger)

	avail, err := source.Probe(ctx, w.Target)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	if !avail.Found {
		fmt.Println("not in stock")
		return nil
	}
	fmt.Printf("found: %s at %d (%s)\n", avail.Title, avail.Price, avail.GroupKey)

	res := committer.Commit(ctx, w, avail, *override)
	switch res.Outcome {
	case monitor.OutcomePurchased:
		fmt.Printf("purchased, order %s\n", res.OrderRef)
	case monitor.OutcomePriceMiss:
		fmt.Printf("price %d is above the ceiling %d; not buying\n", avail.Price, w.PriceCeiling)
	case monitor.OutcomeDenied:
		fmt.Println("cart thresholds deny this purchase:")
		for _, v := range res.Violations {
			fmt.Printf("  %s: resulting %d over limit %d\n", v.Kind, v.ResultingValue, v.Limit)
		}
		fmt.Println("re-run with -override-thresholds to force it")
	case monitor.OutcomeFailed:
		return res.Err
	}
	return nil
}

func cmdPolicy(ctx context.Context, store storage.Storage, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("policy", flag.ExitOnError)
	group := fs.String("group", "", "group key (shop)")
	minValue := fs.Int64("min", 0, "advisory minimum cart value")
	maxValue := fs.Int64("max", 0, "maximum cart value")
	maxItems := fs.Int("items", 0, "maximum cart item count")
	enabled := fs.Bool("enabled", true, "enforce thresholds for the group")
	_ = fs.Parse(args)

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	setting := setFlags["min"] || setFlags["max"] || setFlags["items"] || setFlags["enabled"]

	if *group == "" {
		if setting {
			return errors.New("-group is required when setting a policy")
		}
		policies, err := store.ListGroupPolicies(ctx)
		if err != nil {
			return err
		}
		fmt.Println(formatPolicyDefaults(cfg.DefaultPolicy()))
		for _, p := range policies {
			fmt.Println(formatPolicyLine(p))
		}
		return nil
	}

	stored, err := store.GetGroupPolicy(ctx, *group)
	if err != nil {
		return err
	}

	if !setting {
		if stored == nil {
			fmt.Printf("no override for %q; defaults apply\n", *group)
			fmt.Println(formatPolicyDefaults(cfg.DefaultPolicy()))
			return nil
		}
		fmt.Println(formatPolicyLine(*stored))
		return nil
	}

	p := cfg.DefaultPolicy()
	if stored != nil {
		p = *stored
	}
	p.GroupKey = *group
	if setFlags["min"] {
		p.MinValue = *minValue
	}
	if setFlags["max"] {
		p.MaxValue = *maxValue
	}
	if setFlags["items"] {
		p.MaxItems = *maxItems
	}
	if setFlags["enabled"] {
		p.Enabled = *enabled
	}
	if p.MaxValue <= 0 {
		return errors.New("-max must be a positive value")
	}
	if p.MaxItems <= 0 {
		return errors.New("-items must be positive")
	}

	if err := store.SetGroupPolicy(ctx, &p); err != nil {
		return err
	}
	fmt.Println(formatPolicyLine(p))
	return nil
}

func cmdLog(ctx context.Context, store storage.Storage, args []string) error {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	limit := fs.Int("limit", 20, "number of entries to show, 0 for all")
	_ = fs.Parse(args)

	entries, err := store.ListPurchaseLog(ctx, *limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no purchases yet")
		return nil
	}
	for _, e := range entries {
		fmt.Println(formatLogEntry(e))
	}
	return nil
}

func idArg(cmd string, args []string) (int64, error) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	id := fs.Int64("id", 0, "watch id")
	_ = fs.Parse(args)
	if *id == 0 {
		return 0, errors.New("-id is required")
	}
	return *id, nil
}

// newSource mirrors the monitor daemon's catalog wiring so a manual buy
// probes exactly the way the loop does.
func newSource(cfg *config.Config) catalog.Source {
	html := catalog.NewHTML(http.DefaultClient, cfg.CatalogBaseURL, cfg.ProbeTimeout())

	var keyword catalog.Source
	if cfg.CatalogFeedURL != "" {
		keyword = catalog.NewRSS(http.DefaultClient, cfg.CatalogFeedURL, cfg.ProbeTimeout())
	}

	throttle := catalog.NewThrottle(cfg.ProbeHostDelay())
	return catalog.Throttled(catalog.NewComposite(html, keyword), throttle)
}

func parseExcludeTerms(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var terms []string
	for _, raw := range strings.Split(s, ",") {
		term := strings.TrimSpace(raw)
		if term == "" {
			continue
		}
		if err := catalog.ValidateExcludeTerm(term); err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	return terms, nil
}
