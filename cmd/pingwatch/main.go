package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/hako/durafmt"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/gosom/pingwatch/client"
	"github.com/gosom/pingwatch/internal/common"
	"github.com/gosom/pingwatch/internal/cryptoutils"
	"github.com/gosom/pingwatch/internal/entities"
	"github.com/gosom/pingwatch/internal/eventstore"
	"github.com/gosom/pingwatch/internal/gate"
	"github.com/gosom/pingwatch/internal/metrics"
	"github.com/gosom/pingwatch/internal/notify"
	"github.com/gosom/pingwatch/internal/rca"
	"github.com/gosom/pingwatch/internal/rest"
	"github.com/gosom/pingwatch/internal/services/auth"
	"github.com/gosom/pingwatch/internal/services/monitor"
	"github.com/gosom/pingwatch/internal/storage"
	"github.com/gosom/pingwatch/internal/worker"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := &cli.App{
		Name:     "pingwatch",
		HelpName: "heartbeat monitor with root cause analysis",
		Commands: []*cli.Command{
			serverTask(ctx),
			pingerTask(ctx),
			reportTask(ctx),
			fixturesTask(ctx),
			genkeyTask(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ============================================================================

type serverConfig struct {
	Addr              string `envconfig:"ADDR" default:"localhost:8000"`
	Debug             bool   `envconfig:"DEBUG" default:"false"`
	FailTimeout       int    `envconfig:"FAIL_TIMEOUT" default:"180"`
	DataDir           string `envconfig:"DATA_DIR" default:"data"`
	MaxEventsFileSize int64  `envconfig:"MAX_EVENTS_FILE_SIZE" default:"104857600"`
	EventCacheSize    int    `envconfig:"EVENT_CACHE_SIZE" default:"1000"`
	APIKey            string `envconfig:"API_KEY" default:""`
	APIKeyHash        string `envconfig:"API_KEY_HASH" default:""`
	TelegramToken     string `envconfig:"TELEGRAM_TOKEN" default:""`
	ChatID            string `envconfig:"CHAT_ID" default:""`
	DiscordToken      string `envconfig:"DISCORD_BOT_TOKEN" default:""`
	DiscordChannelID  string `envconfig:"DISCORD_CHANNEL_ID" default:""`
	MaxRetryWait      int    `envconfig:"MAX_RETRY_WAIT" default:"0"`
	RetryJitter       int    `envconfig:"RETRY_JITTER" default:"0"`
	PolicyFile        string `envconfig:"POLICY_FILE" default:""`
	MirrorDriver      string `envconfig:"MIRROR_DRIVER" default:""`
	MirrorDSN         string `envconfig:"MIRROR_DSN" default:""`
	MirrorPgDriver    bool   `envconfig:"MIRROR_PGDRIVER" default:"false"`
}

func serverTask(ctx context.Context) *cli.Command {
	var cfg serverConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}

	logger := common.NewLogger(cfg.Debug)
	cmd := cli.Command{
		Name:  "server",
		Usage: "starts the heartbeat monitor",
		Action: func(c *cli.Context) error {
			return runServer(ctx, logger, cfg)
		},
	}
	return &cmd
}

func runServer(ctx context.Context, logger zerolog.Logger, cfg serverConfig) error {
	// ----------------- storage -----------------------------------------
	var (
		sink    eventstore.Sink
		history rest.History
	)
	if len(cfg.MirrorDriver) > 0 {
		db, err := storage.New(storage.DbConfig{
			Driver:       cfg.MirrorDriver,
			DSN:          cfg.MirrorDSN,
			MaxOpenConns: 4 * runtime.GOMAXPROCS(0),
			Debug:        cfg.Debug,
			PgDriver:     cfg.MirrorPgDriver,
		})
		if err != nil {
			return err
		}
		defer db.Close()
		if err := storage.CreateSchema(ctx, db); err != nil {
			return err
		}
		mirror := storage.NewMirror(logger, db)
		sink = mirror
		history = mirror
		logger.Info().Str("driver", cfg.MirrorDriver).Msg("mirroring events to database")
	}

	storeCfg := eventstore.Config{
		Log:         logger,
		Dir:         cfg.DataDir,
		MaxFileSize: cfg.MaxEventsFileSize,
		CacheSize:   cfg.EventCacheSize,
		Sink:        sink,
	}
	events, err := eventstore.Open(storeCfg)
	if err != nil {
		return err
	}
	defer events.Close()
	diagnostics, err := eventstore.OpenDiagnostics(storeCfg)
	if err != nil {
		return err
	}
	defer diagnostics.Close()

	// ----------------- analysis ----------------------------------------
	thresholds := rca.DefaultThresholds()
	if len(cfg.PolicyFile) > 0 {
		thresholds, err = rca.LoadThresholdsFile(cfg.PolicyFile, thresholds)
		if err != nil {
			return err
		}
	}
	classifier, err := rca.New(rca.Config{Events: events, Thresholds: thresholds})
	if err != nil {
		return err
	}

	// ----------------- alerting ----------------------------------------
	collector := metrics.New(prometheus.DefaultRegisterer, "")
	g := gate.New()
	transport, err := newTransport(logger, cfg)
	if err != nil {
		return err
	}
	dispatcher, err := notify.New(notify.Config{
		Log:          logger,
		Transport:    transport,
		Gate:         g,
		Metrics:      collector,
		MaxRetryWait: time.Duration(cfg.MaxRetryWait) * time.Second,
		Jitter:       time.Duration(cfg.RetryJitter) * time.Millisecond,
	})
	if err != nil {
		return err
	}
	go func() {
		_ = dispatcher.Run(ctx)
	}()

	// ----------------- monitor -----------------------------------------
	mon, err := monitor.New(monitor.Config{
		Log:         logger,
		FailTimeout: time.Duration(cfg.FailTimeout) * time.Second,
		Events:      events,
		Diagnostics: diagnostics,
		Classifier:  classifier,
		Notifier:    dispatcher,
		Gate:        g,
		Metrics:     collector,
	})
	if err != nil {
		return err
	}
	defer mon.Close()
	go func() {
		_ = mon.StatsPrinter(ctx, 5*time.Minute)
	}()

	aSrv, err := auth.New(auth.Config{
		Log:        logger,
		APIKey:     cfg.APIKey,
		APIKeyHash: cfg.APIKeyHash,
	})
	if err != nil {
		return err
	}

	// -------------------------------------------------------------------
	routerCfg := rest.RouterConfig{
		Log:         logger,
		Monitor:     mon,
		Events:      events,
		Diagnostics: diagnostics,
		History:     history,
		Analyzer:    classifier,
		Alerts:      dispatcher,
		Gate:        g,
		Auth:        aSrv.APIKey,
		Metrics:     promhttp.Handler(),
	}
	router := rest.NewRouter(routerCfg)
	srvConfig := rest.ServerConfig{
		Addr:    cfg.Addr,
		Log:     logger,
		Handler: router,
	}
	// -------------------------------------------------------------------
	logger.Info().
		Dur("failTimeout", mon.FailTimeout()).
		Str("dataDir", cfg.DataDir).
		Int("cachedEvents", len(events.Query(entities.EventQuery{Limit: events.Capacity()}))).
		Msg("monitor ready")
	srv, err := rest.New(srvConfig)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func newTransport(logger zerolog.Logger, cfg serverConfig) (notify.Transport, error) {
	switch {
	case len(cfg.TelegramToken) > 0:
		logger.Info().Msg("alerts go to telegram")
		return notify.NewTelegram(notify.TelegramConfig{
			Token:  cfg.TelegramToken,
			ChatID: cfg.ChatID,
		})
	case len(cfg.DiscordToken) > 0:
		logger.Info().Msg("alerts go to discord")
		return notify.NewDiscord(cfg.DiscordToken, cfg.DiscordChannelID)
	}
	logger.Warn().Msg("no alert transport configured, alerts are only logged")
	return notify.LogTransport{Log: logger}, nil
}

// ============================================================================

type pingerConfig struct {
	Debug            bool   `envconfig:"DEBUG" default:"false"`
	Node             string `envconfig:"NODE" default:"http://localhost:8000"`
	APIKey           string `envconfig:"API_KEY" default:""`
	WorkerName       string `envconfig:"WORKER_NAME" default:""`
	Interval         int    `envconfig:"PING_INTERVAL" default:"60"`
	FleetSize        int    `envconfig:"FLEET_SIZE" default:"0"`
	FleetPrefix      string `envconfig:"FLEET_PREFIX" default:"sim"`
	FleetConcurrency int    `envconfig:"FLEET_CONCURRENCY" default:"10"`
}

func pingerTask(ctx context.Context) *cli.Command {
	var cfg pingerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}

	logger := common.NewLogger(cfg.Debug)
	cmd := cli.Command{
		Name:  "pinger",
		Usage: "sends heartbeats for this host, or for a simulated fleet",
		Action: func(c *cli.Context) error {
			return runPinger(ctx, logger, cfg)
		},
	}
	return &cmd
}

func runPinger(ctx context.Context, logger zerolog.Logger, cfg pingerConfig) error {
	api, err := client.New(client.Config{
		BaseUrl: cfg.Node,
		APIKey:  cfg.APIKey,
		Logf: func(format string, a ...any) {
			logger.Debug().Msgf(format, a...)
		},
	})
	if err != nil {
		return err
	}
	interval := time.Duration(cfg.Interval) * time.Second
	if cfg.FleetSize > 0 {
		fleet, err := worker.NewFleet(worker.FleetConfig{
			Log:         logger,
			API:         api,
			Prefix:      cfg.FleetPrefix,
			Count:       cfg.FleetSize,
			Interval:    interval,
			Concurrency: cfg.FleetConcurrency,
		})
		if err != nil {
			return err
		}
		return fleet.Start(ctx)
	}
	name := cfg.WorkerName
	if len(name) == 0 {
		name, _ = os.Hostname()
	}
	p, err := worker.NewPinger(worker.PingerConfig{
		Log:      logger,
		API:      api,
		Name:     name,
		Interval: interval,
	})
	if err != nil {
		return err
	}
	return p.Start(ctx)
}

// ============================================================================

type reportConfig struct {
	Node   string `envconfig:"NODE" default:"http://localhost:8000"`
	APIKey string `envconfig:"API_KEY" default:""`
}

func reportTask(ctx context.Context) *cli.Command {
	var cfg reportConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	cmd := cli.Command{
		Name:  "report",
		Usage: "prints the server's root cause analysis report",
		Action: func(c *cli.Context) error {
			return runReport(ctx, cfg)
		},
	}
	return &cmd
}

func runReport(ctx context.Context, cfg reportConfig) error {
	api, err := client.New(client.Config{BaseUrl: cfg.Node, APIKey: cfg.APIKey})
	if err != nil {
		return err
	}
	status, err := api.Status(ctx)
	if err != nil {
		return err
	}
	report, err := api.RCA(ctx)
	if err != nil {
		return err
	}
	uptime := "unknown"
	if t, err := entities.ParseTime(status.ServerUpSince); err == nil {
		uptime = durafmt.Parse(time.Since(t).Truncate(time.Second)).LimitFirstN(2).String()
	}
	fmt.Printf("server up for %s, %d active workers\n", uptime, status.ActiveWorkers)
	fmt.Printf("%s: %d events (%d up, %d down)\n", report.Period, report.TotalEvents, report.UpEvents, report.DownEvents)
	for _, w := range report.MassFailureWindows {
		fmt.Printf("  mass failure at %s: %d workers %v\n", w.Time, w.Count, w.Workers)
	}
	a := report.CurrentAnalysis
	fmt.Printf("current: %s", a.Status)
	if len(a.Severity) > 0 {
		fmt.Printf(" (%s)", a.Severity)
	}
	fmt.Printf(" %s\n", a.Message)
	if a.LikelyCause != nil {
		fmt.Printf("likely cause: %s\n", *a.LikelyCause)
	}
	return nil
}

// ============================================================================

type fixturesConfig struct {
	Num     int    `envconfig:"NUM" default:"200"`
	Workers int    `envconfig:"FIXTURE_WORKERS" default:"12"`
	Debug   bool   `envconfig:"DEBUG" default:"false"`
	DataDir string `envconfig:"DATA_DIR" default:"data"`
}

func fixturesTask(ctx context.Context) *cli.Command {
	var cfg fixturesConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	logger := common.NewLogger(cfg.Debug)
	cmd := cli.Command{
		Name:  "fixtures",
		Usage: "appends synthetic up/down events to the data dir",
		Action: func(c *cli.Context) error {
			return runFixtures(ctx, logger, cfg)
		},
	}
	return &cmd
}

func runFixtures(ctx context.Context, logger zerolog.Logger, cfg fixturesConfig) error {
	if cfg.Num <= 0 {
		return fmt.Errorf("NUM must be positive")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("FIXTURE_WORKERS must be positive")
	}
	events, err := eventstore.Open(eventstore.Config{Log: logger, Dir: cfg.DataDir})
	if err != nil {
		return err
	}
	defer events.Close()

	now := time.Now().UTC()
	start := now.Add(-time.Hour)
	step := time.Hour / time.Duration(cfg.Num+1)
	sources := []string{"10.0.0.1", "10.0.0.2", "192.0.2.10", "198.51.100.20"}
	for i := 0; i < cfg.Num; i++ {
		ts := start.Add(time.Duration(i+1) * step)
		w := rand.IntN(cfg.Workers)
		typ := entities.EventUp
		if rand.IntN(2) == 0 {
			typ = entities.EventDown
		}
		ev := entities.Event{
			Timestamp:     ts,
			Type:          typ,
			Worker:        fmt.Sprintf("fixture-%d", w+1),
			SourceAddress: sources[w%len(sources)],
		}
		if typ == entities.EventDown {
			ev.LastSeen = ts.Add(-3 * time.Minute)
			ev.SecondsSincePing = 180
		}
		events.Append(ctx, ev)
	}
	logger.Info().Int("events", cfg.Num).Str("dir", cfg.DataDir).Msg("fixtures written")
	return nil
}

// ============================================================================

func genkeyTask() *cli.Command {
	cmd := cli.Command{
		Name:  "genkey",
		Usage: "generates an API key and its bcrypt hash",
		Action: func(c *cli.Context) error {
			key := cryptoutils.XApiKey()
			hash, err := cryptoutils.HashAPIKey(key)
			if err != nil {
				return err
			}
			fmt.Printf("API_KEY=%s\n", key)
			fmt.Printf("API_KEY_HASH=%s\n", hash)
			return nil
		},
	}
	return &cmd
}
