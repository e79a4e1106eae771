package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qwamber/qwala-go/internal/config"
	"github.com/qwamber/qwala-go/internal/logger"
	"github.com/qwamber/qwala-go/pkg/qwala"
	"github.com/qwamber/qwala-go/pkg/rediscache"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const usage = `Usage: qwala [--config FILE] [--base-url URL] [--timeout D] <command> [args]

Commands:
  shorten <url> [--words] [--hide-stats] [--expires RFC3339] [--custom ID]
  lengthen <short-link-id>
  stats <short-link-id> [--json]
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("qwala", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.SetInterspersed(false)
	flags.Usage = func() { fmt.Fprint(stderr, usage) }

	configPath := flags.String("config", ".env", "path to .env config file")
	baseURL := flags.String("base-url", "", "API base URL (overrides QWALA_BASE_URL)")
	timeout := flags.Duration("timeout", 0, "request timeout (overrides QWALA_TIMEOUT)")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	rest := flags.Args()
	if len(rest) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFailure
	}
	if *baseURL != "" {
		cfg.Client.BaseURL = *baseURL
	}
	if flags.Changed("timeout") {
		cfg.Client.Timeout = *timeout
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFailure
	}
	defer log.Sync()

	client, cleanup, err := newClient(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFailure
	}
	defer cleanup()

	command, cmdArgs := rest[0], rest[1:]
	switch command {
	case "shorten":
		return runShorten(ctx, client, cmdArgs, stdout, stderr)
	case "lengthen":
		return runLengthen(ctx, client, cmdArgs, stdout, stderr)
	case "stats", "statistics":
		return runStats(ctx, client, cmdArgs, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return exitUsage
	}
}

// newClient собирает клиент по конфигу. Redis необязателен: если он
// недоступен, работаем без кэша.
func newClient(ctx context.Context, cfg *config.Config, log *zap.Logger) (*qwala.Client, func(), error) {
	cleanup := func() {}

	opts := []qwala.Option{
		qwala.WithBaseURL(cfg.Client.BaseURL),
		qwala.WithTimeout(cfg.Client.Timeout),
		qwala.WithLogger(log),
	}
	if cfg.Client.MaxRetries > 0 {
		opts = append(opts, qwala.WithRetry(cfg.Client.MaxRetries, 200*time.Millisecond))
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.BurstSize)
		opts = append(opts, qwala.WithRateLimiter(limiter))
	}

	if cfg.Redis.Enabled() {
		redisClient, err := rediscache.Connect(ctx, rediscache.Options{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
		})
		if err != nil {
			log.Warn("Redis unavailable, link cache disabled", zap.Error(err))
		} else {
			opts = append(opts, qwala.WithLinkCache(rediscache.New(redisClient), cfg.Redis.CacheTTL))
			cleanup = func() { redisClient.Close() }
		}
	}

	client, err := qwala.New(opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return client, cleanup, nil
}

func runShorten(ctx context.Context, api qwala.API, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("shorten", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	words := flags.Bool("words", false, "use words instead of alphanumeric characters")
	hideStats := flags.Bool("hide-stats", false, "hide view statistics")
	expires := flags.String("expires", "", "expiry instant, RFC3339")
	custom := flags.String("custom", "", "custom short link ID")

	if err := flags.Parse(args); err != nil {
		return exitUsage
	}
	if flags.NArg() != 1 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	// Флаги, которые не указали, в запрос не попадают
	opts := &qwala.ShortenOptions{CustomShortLinkID: *custom}
	if flags.Changed("words") {
		opts.IsWords = qwala.Bool(*words)
	}
	if flags.Changed("hide-stats") {
		opts.HideStatistics = qwala.Bool(*hideStats)
	}
	if *expires != "" {
		expiry, err := time.Parse(time.RFC3339, *expires)
		if err != nil {
			fmt.Fprintf(stderr, "invalid --expires: %v\n", err)
			return exitUsage
		}
		opts.ExpiryDate = &expiry
	}

	id, err := api.Shorten(ctx, flags.Arg(0), opts)
	if err != nil {
		return printError(stderr, err)
	}

	fmt.Fprintln(stdout, id)
	return exitOK
}

func runLengthen(ctx context.Context, api qwala.API, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	longLink, err := api.Lengthen(ctx, args[0])
	if err != nil {
		return printError(stderr, err)
	}

	fmt.Fprintln(stdout, longLink)
	return exitOK
}

func runStats(ctx context.Context, api qwala.API, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("stats", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	asJSON := flags.Bool("json", false, "print views as a JSON array")

	if err := flags.Parse(args); err != nil {
		return exitUsage
	}
	if flags.NArg() != 1 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	views, err := api.Statistics(ctx, flags.Arg(0))
	if err != nil {
		return printError(stderr, err)
	}

	if *asJSON {
		if err := json.NewEncoder(stdout).Encode(views); err != nil {
			return printError(stderr, err)
		}
		return exitOK
	}

	for _, view := range views {
		fmt.Fprintf(stdout, "%s\t%s\n", view.IPAddress, view.Viewed.UTC().Format(time.RFC3339))
	}
	return exitOK
}

func printError(stderr io.Writer, err error) int {
	var se *qwala.ServiceError
	if errors.As(err, &se) && se.Code != "" {
		fmt.Fprintf(stderr, "error: %s (HTTP %d)\n", se.Code, se.StatusCode)
		return exitFailure
	}

	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitFailure
}
