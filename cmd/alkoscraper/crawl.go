package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"alkoscraper/internal/downloader"
	"alkoscraper/internal/dupefilter"
	"alkoscraper/pkg/alkoteka"
	"alkoscraper/pkg/auth"
	"alkoscraper/pkg/config"
	"alkoscraper/pkg/crawl"
	"alkoscraper/pkg/feed"
	"alkoscraper/pkg/fetch"
	"alkoscraper/pkg/logger"
	"alkoscraper/pkg/proxy"
	"alkoscraper/pkg/ratelimit"
	"alkoscraper/pkg/retry"
	"alkoscraper/pkg/stats"
	"alkoscraper/pkg/ui"
)

var (
	cityName      string
	inputFile     string
	outputPath    string
	feedFormat    string
	proxyFile     string
	proxyAccount  string
	concurrency   int
	maxRetries    int
	downloadDelay time.Duration
	redisURL      string
	metricsAddr   string
	statsReport   string
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl the catalogue categories listed in the input file",
	Long: `Crawl every category URL listed in the input file and export one record
per product.

Proxy credentials are resolved in this order:
  - proxy.username / proxy.password from the config file or environment
  - the stored account named by --proxy-account (see 'alkoscraper auth login')

Without a proxy list every request goes out directly.`,
	Example: `  # Crawl Krasnodar prices into result.json
  alkoscraper crawl

  # Moscow prices, through a custom proxy list and a stored account
  alkoscraper crawl --city Москва --proxy-file proxies.txt --proxy-account work

  # Share the seen-request set between runs and expose metrics
  alkoscraper crawl --redis-url redis://localhost:6379/0 --metrics-addr :9090`,
	Args: cobra.NoArgs,
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	f := crawlCmd.Flags()
	f.StringVar(&cityName, "city", "", "city whose prices are crawled (default Краснодар)")
	f.StringVarP(&inputFile, "input", "i", "", "file with one category URL per line")
	f.StringVarP(&outputPath, "output", "o", "", "feed path")
	f.StringVar(&feedFormat, "format", "", "feed format: json or sqlite")
	f.StringVar(&proxyFile, "proxy-file", "", "proxy list, one host:port per line")
	f.StringVar(&proxyAccount, "proxy-account", "", "stored account holding the proxy credentials")
	f.IntVar(&concurrency, "concurrency", 0, "number of in-flight requests")
	f.IntVar(&maxRetries, "max-retries", 0, "proxy retries per request for blocked responses")
	f.DurationVar(&downloadDelay, "download-delay", 0, "minimum delay between dispatches")
	f.StringVar(&redisURL, "redis-url", "", "share the seen-request set through Redis")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.StringVar(&statsReport, "stats-report", "", "write a markdown stats report to this path")
}

// changedFlags returns only the flags set on the command line, keyed by
// flag name, so unset flags never override the config file.
func changedFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	fs := cmd.Flags()
	set := func(name string, value interface{}) {
		if fs.Changed(name) {
			flags[name] = value
		}
	}
	set("city", cityName)
	set("input", inputFile)
	set("output", outputPath)
	set("format", feedFormat)
	set("proxy-file", proxyFile)
	set("proxy-account", proxyAccount)
	set("concurrency", concurrency)
	set("max-retries", maxRetries)
	set("download-delay", downloadDelay)
	set("redis-url", redisURL)
	set("metrics-addr", metricsAddr)
	set("stats-report", statsReport)
	return flags
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(changedFlags(cmd))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("alkoscraper starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var accounts accountSource
	if cfg.Proxy.CredentialsAccount != "" && !(cfg.Proxy.Username != "" && cfg.Proxy.Password != "") {
		manager, err := auth.NewManager()
		if err != nil {
			return fmt.Errorf("failed to initialize credential manager: %w", err)
		}
		accounts = manager
	}

	c, err := buildCrawler(ctx, cfg, log, accounts)
	if err != nil {
		return err
	}
	defer c.close()

	ui.PrintInfo("City", c.info.City)
	if c.info.ProxyCount > 0 {
		ui.PrintInfo("Proxies", fmt.Sprintf("%d from %s", c.info.ProxyCount, cfg.Proxy.File))
	} else {
		ui.PrintWarning("No proxies loaded, requests go out directly")
	}

	runErr := c.run(ctx)
	if err := c.exporter.Close(); err != nil {
		log.WithError(err).Error("failed to close feed")
		if runErr == nil {
			runErr = err
		}
	}

	snap := c.engine.Stats().Snapshot()
	if cfg.Stats.ReportPath != "" {
		if err := stats.SaveReport(cfg.Stats.ReportPath, c.info, snap); err != nil {
			log.WithError(err).Error("failed to write stats report")
		} else {
			log.WithField("path", cfg.Stats.ReportPath).Info("stats report written")
		}
	}
	ui.PrintSummary(c.info, snap)

	if errors.Is(runErr, context.Canceled) {
		ui.PrintWarning("Crawl interrupted, feed contains the items scraped so far")
		return nil
	}
	if runErr != nil {
		return runErr
	}
	ui.PrintSuccess(fmt.Sprintf("Scraped %d items into %s", snap.ItemsScraped, cfg.Feed.Path))
	return nil
}

// accountSource looks up stored proxy accounts
type accountSource interface {
	Retrieve(name string) (*auth.Account, error)
}

// resolveProxyCredentials picks the shared proxy credentials: explicit
// username and password first, then a stored account. Nil means none.
func resolveProxyCredentials(cfg config.ProxyConfig, accounts accountSource, log logger.Logger) (*proxy.Credentials, error) {
	if cfg.Username != "" && cfg.Password != "" {
		return &proxy.Credentials{Username: cfg.Username, Password: cfg.Password}, nil
	}
	if cfg.CredentialsAccount == "" {
		return nil, nil
	}
	if accounts == nil {
		return nil, fmt.Errorf("proxy account %q: %w", cfg.CredentialsAccount, auth.ErrStoreUnavailable)
	}
	account, err := accounts.Retrieve(cfg.CredentialsAccount)
	if err != nil {
		return nil, fmt.Errorf("proxy account %q: %w", cfg.CredentialsAccount, err)
	}
	log.WithField("account", cfg.CredentialsAccount).Info("using stored proxy credentials")
	return account.Credentials(), nil
}

// crawler is one fully wired crawl
type crawler struct {
	engine   *crawl.Engine
	seeds    []*fetch.Request
	exporter feed.Exporter
	info     stats.ReportInfo
	closers  []func()
}

// run crawls the seeds. Without seeds the spider has already logged why;
// the crawl ends cleanly with an empty feed.
func (c *crawler) run(ctx context.Context) error {
	if len(c.seeds) == 0 {
		ui.PrintWarning("No category requests to crawl, check the input file")
		c.engine.Stats().Finish()
		return nil
	}
	return c.engine.Run(ctx, c.seeds)
}

func (c *crawler) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// buildCrawler wires the proxy pool, both retry layers, pacing, the
// duplicate filter, the feed and the spider into an engine.
func buildCrawler(ctx context.Context, cfg *config.Config, log logger.Logger, accounts accountSource) (*crawler, error) {
	creds, err := resolveProxyCredentials(cfg.Proxy, accounts, log)
	if err != nil {
		return nil, err
	}

	c := &crawler{}
	ok := false
	defer func() {
		if !ok {
			c.close()
		}
	}()

	pool := proxy.Load(cfg.Proxy.File, log)
	assigner := proxy.NewAssigner(pool, creds, log)

	policy := retry.NewPolicy(retry.PolicyConfig{
		RetryableStatusCodes: cfg.Retry.HTTPCodes,
		MaxRetries:           cfg.Retry.MaxRetries,
	}, log)

	transport := crawl.TransportRetry{MaxAttempts: 1}
	if tr := cfg.Retry.Transport; tr.Enabled {
		backoff := retry.NewErrorTypeBackoff()
		backoff.NetworkErrorBackoff = &retry.ExponentialBackoff{
			BaseDelay:    tr.InitialDelay,
			MaxDelay:     tr.MaxDelay,
			Multiplier:   2.0,
			JitterFactor: 0.2,
		}
		transport = crawl.TransportRetry{
			MaxAttempts: tr.Times + 1,
			HTTPCodes:   tr.HTTPCodes,
			Backoff:     backoff,
		}
	}

	var limiter ratelimit.Limiter
	if at := cfg.Crawl.AutoThrottle; at.Enabled {
		limiter = ratelimit.NewAutoThrottle(ratelimit.AutoThrottleConfig{
			MinDelay:          cfg.Crawl.DownloadDelay,
			StartDelay:        at.StartDelay,
			MaxDelay:          at.MaxDelay,
			TargetConcurrency: at.TargetConcurrency,
			ErrorCodes:        at.ErrorCodes,
		})
	} else {
		limiter = ratelimit.NewDelayLimiter(cfg.Crawl.DownloadDelay)
	}

	filter, err := dupefilter.New(ctx, cfg.Dedup, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open duplicate filter: %w", err)
	}
	c.closers = append(c.closers, func() {
		if err := filter.Close(); err != nil {
			log.WithError(err).Warn("failed to close duplicate filter")
		}
	})

	exporter, err := feed.New(cfg.Feed)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed: %w", err)
	}
	c.exporter = exporter
	c.closers = append(c.closers, func() { _ = exporter.Close() })

	st := stats.New()
	if cfg.Metrics.Addr != "" {
		srv, err := stats.Serve(cfg.Metrics.Addr, cfg.Metrics.Path, st, log)
		if err != nil {
			return nil, fmt.Errorf("failed to start metrics endpoint: %w", err)
		}
		c.closers = append(c.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	dl := downloader.New(downloader.Options{
		Timeout:        cfg.Crawl.Timeout,
		UserAgent:      cfg.Crawl.UserAgent,
		MaxBodySize:    cfg.Crawl.MaxBodySize,
		DefaultHeaders: cfg.Crawl.DefaultHeaders,
	}, log)
	c.closers = append(c.closers, dl.CloseIdleConnections)

	c.engine = crawl.New(crawl.Options{
		Concurrency:      cfg.Crawl.Concurrency,
		Limiter:          limiter,
		Filter:           filter,
		RequestHooks:     []crawl.RequestHook{assigner},
		ResponseHooks:    []crawl.ResponseHook{policy},
		Transport:        transport,
		Exporter:         exporter,
		Stats:            st,
		ProgressInterval: 30 * time.Second,
	}, dl, log)

	spider := alkoteka.New(alkoteka.Options{
		InputFile: cfg.Spider.InputFile,
		City:      cfg.Spider.City,
		PerPage:   cfg.Spider.PerPage,
	}, log)
	c.seeds = spider.StartRequests()

	city, _ := spider.City()
	c.info = stats.ReportInfo{
		City:       city,
		ProxyCount: pool.Len(),
		FeedPath:   cfg.Feed.Path,
	}

	ok = true
	return c, nil
}
