package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"flight-fare-monitor/internal/alerting"
	"flight-fare-monitor/internal/config"
	"flight-fare-monitor/internal/detector"
	"flight-fare-monitor/internal/intelligence"
	"flight-fare-monitor/internal/metrics"
	"flight-fare-monitor/internal/monitor"
	"flight-fare-monitor/internal/quality"
	"flight-fare-monitor/internal/quotes"
	"flight-fare-monitor/internal/scheduler"
	"flight-fare-monitor/internal/spamcheck"
	"flight-fare-monitor/internal/stats"
	"flight-fare-monitor/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newStatsCache() stats.Cache {
	if a.Config.Redis.Addr == "" {
		return stats.NewMemoryCache()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	return stats.NewRedisCache(client, a.Config.Redis.Prefix)
}

func (a *App) newQuoteSource() *quotes.Source {
	providers := make([]quotes.Provider, 0, len(a.Config.Quotes.Providers))
	limits := make(map[string]quotes.Limit, len(a.Config.Quotes.Providers))
	for _, pc := range a.Config.Quotes.Providers {
		providers = append(providers, quotes.NewHTTPProvider(quotes.HTTPOptions{
			Name:      pc.Name,
			BaseURL:   pc.BaseURL,
			APIKey:    pc.APIKey,
			Timeout:   pc.RequestTimeout,
			UserAgent: a.Config.Quotes.UserAgent,
		}, a.Logger))
		if pc.RateLimit > 0 {
			limits[pc.Name] = quotes.Limit{Requests: pc.RateLimit, Window: pc.RateWindow}
		}
	}

	return quotes.NewSource(
		providers,
		quotes.StrategyByName(a.Config.Quotes.Strategy),
		quotes.NewRateLimiter(limits),
		quotes.Options{
			RequestTimeout: a.Config.Quotes.RequestTimeout,
			MaxRetries:     a.Config.Quotes.MaxRetries,
			RetryBackoff:   a.Config.Quotes.RetryBackoff,
			MinResults:     a.Config.Quotes.MinResults,
		},
		a.Logger,
	)
}

func (a *App) newNotifiers() []alerting.Notifier {
	var notifiers []alerting.Notifier
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}
	return notifiers
}

// pipeline wires the detection components over the given store.
type pipeline struct {
	statsEngine *stats.Engine
	detector    *detector.Detector
	classifier  *intelligence.Classifier
	dispatcher  *alerting.Dispatcher
	scorer      *quality.Scorer
}

func (a *App) buildPipeline(store *storage.Store) pipeline {
	cfg := a.Config

	statsEngine := stats.NewEngine(store, a.newStatsCache(), stats.Options{
		LookbackDays: cfg.Detection.LookbackDays,
		CacheTTL:     cfg.Detection.StatsCacheTTL,
	}, a.Logger)

	spam := spamcheck.NewPipeline(store, spamcheck.Thresholds{
		HardVolatilityPct: cfg.Detection.HardVolatilityPct,
		SoftVolatilityPct: cfg.Detection.SoftVolatilityPct,
		FilterSoftPerDay:  cfg.Detection.FilterSoftPerDay,
		FilterHardPerDay:  cfg.Detection.FilterHardPerDay,
		RouteHardPerHour:  cfg.Detection.RouteHardPerHour,
	}, a.Logger)

	det := detector.New(spam, detector.Thresholds{
		MinDropPct:     cfg.Detection.MinDropPct,
		MinConfidence:  cfg.Detection.MinConfidence,
		MaxDropPct:     cfg.Detection.MaxDropPct,
		MaxRecentDrops: cfg.Detection.MaxRecentDrops,
	}, a.Logger)

	classifier := intelligence.NewClassifier(store, intelligence.Options{
		MaxPerFilterHour: cfg.Alerting.MaxPerFilterHour,
		RouteCooldown:    cfg.Alerting.RouteCooldown,
	}, a.Logger)

	dispatcher := alerting.NewDispatcher(a.newNotifiers(), store, a.Logger)

	scorer := quality.NewScorer(store, dispatcher, quality.Options{
		BatchSize:       cfg.Quality.BatchSize,
		ChangeThreshold: cfg.Quality.ChangeThreshold,
	}, a.Logger)

	return pipeline{
		statsEngine: statsEngine,
		detector:    det,
		classifier:  classifier,
		dispatcher:  dispatcher,
		scorer:      scorer,
	}
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required to run the monitor")
	}
	defer closeStore()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}
	a.serveMetrics(ctx)

	p := a.buildPipeline(store)

	orch := monitor.New(
		store, store, store,
		p.statsEngine, p.detector, p.classifier, p.dispatcher,
		a.newQuoteSource(),
		store,
		monitor.Options{
			Workers:              a.Config.Scheduler.Workers,
			BatchSize:            a.Config.Scheduler.BatchSize,
			AdvisoryLockKey:      a.Config.Scheduler.AdvisoryLockKey,
			ObservationRetention: a.Config.Detection.ObservationRetention,
		},
		a.Logger,
	)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	go a.runQualityLoop(ctx, p.scorer)

	a.Logger.Info().Msg("starting monitoring service")
	err = sched.Run(ctx, orch.Tick)
	p.dispatcher.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

func (a *App) runQualityLoop(ctx context.Context, scorer *quality.Scorer) {
	interval := a.Config.Quality.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed, err := scorer.RescoreBatch(ctx, time.Now().UTC())
			if err != nil {
				a.Logger.Error().Err(err).Msg("quality rescore batch failed")
				continue
			}
			a.Logger.Info().Int("alerts", processed).Msg("quality rescore completed")
		}
	}
}

func (a *App) serveMetrics(ctx context.Context) {
	addr := a.Config.App.MetricsAddr
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

// ExportOptions hold parameters for exporting a route's price history.
type ExportOptions struct {
	Route     string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Route string
	Limit int
}

// SimulateOptions configure the synthetic detection run.
type SimulateOptions struct {
	Route       string
	TargetPrice float64
	QuotePrice  float64
	History     []float64
}
