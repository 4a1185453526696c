package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"CoinSentinel/internal/calculator"
	"CoinSentinel/internal/collector"
	"CoinSentinel/internal/config"
	"CoinSentinel/internal/execution"
	"CoinSentinel/internal/fund"
	"CoinSentinel/internal/metrics"
	"CoinSentinel/internal/notifier"
	"CoinSentinel/internal/recorder"
	"CoinSentinel/internal/risk"
	"CoinSentinel/internal/scheduler"
	"CoinSentinel/internal/strategy"

	"github.com/rs/zerolog"
)

// app holds the wired components and what must be closed on exit.
type app struct {
	sched    *scheduler.Scheduler
	telegram *notifier.TelegramNotifier // nil when not configured
	metrics  *metrics.Metrics
	closers  []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

func newFetcher(cfg *config.Config) collector.Fetcher {
	c := cfg.Collector
	switch c.Source {
	case "yahoo":
		return collector.NewYahooFetcher(cfg.Proxy, c.Timeout)
	case "mock":
		symbols := c.Symbols
		if len(symbols) == 0 {
			symbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
		}
		return &collector.MockFetcher{Price: 100, Volume: 1e6, Symbols: symbols}
	default:
		return collector.NewBinanceFetcher(c.BaseURL, cfg.Proxy, c.Timeout)
	}
}

func buildApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{metrics: metrics.New()}
	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	fetcher := newFetcher(cfg)
	log.Info().Str("source", fetcher.Name()).Msg("data source")
	colCfg, err := cfg.CollectorConfig()
	if err != nil {
		return fail(err)
	}
	col, err := collector.NewCollector(fetcher, colCfg, log)
	if err != nil {
		return fail(fmt.Errorf("init collector: %w", err))
	}

	sc := cfg.Strategy
	cache, err := calculator.NewBaselineCacheFor(sc.LookbackDays, sc.Timeframe, sc.MinPeriods)
	if err != nil {
		return fail(fmt.Errorf("init baseline cache: %w", err))
	}
	detector, err := strategy.NewDetector(sc.VolumeMultiplier, strategy.VolumeField(sc.VolumeField))
	if err != nil {
		return fail(fmt.Errorf("init detector: %w", err))
	}
	filterCfg, err := cfg.FilterConfig()
	if err != nil {
		return fail(err)
	}
	filters, err := strategy.NewFilters(filterCfg)
	if err != nil {
		return fail(fmt.Errorf("init filters: %w", err))
	}
	monitor := strategy.NewMonitor(cache, detector, filters, strategy.NewDedupeTracker(cfg.Location()), log)
	pullback, err := strategy.NewPullbackDetector(cfg.PullbackConfig())
	if err != nil {
		return fail(fmt.Errorf("init pullback detector: %w", err))
	}
	if pullback != nil {
		monitor.SetPullback(pullback)
	}

	rm, err := risk.NewManager(cfg.RiskConfig(), log)
	if err != nil {
		return fail(fmt.Errorf("init risk manager: %w", err))
	}
	fm, err := fund.NewManager(cfg.Trading.StateFile, cfg.FundConfig(), log)
	if err != nil {
		return fail(fmt.Errorf("init fund manager: %w", err))
	}
	paper, err := execution.NewPaper(cfg.PaperConfig(), log)
	if err != nil {
		return fail(fmt.Errorf("init executor: %w", err))
	}

	var notify notifier.Notifier = notifier.NewLogNotifier(log)
	if cfg.Telegram.BotToken != "" {
		a.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, cfg.Telegram.MaxRetries, log)
		notify = a.telegram
	} else {
		log.Warn().Msg("telegram not configured, alerts go to the log")
	}

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		} else {
			rec = sr
			a.closers = append(a.closers, sr)
		}
	}

	a.sched, err = scheduler.NewScheduler(ctx, scheduler.Deps{
		Collector: col,
		Monitor:   monitor,
		Risk:      rm,
		Fund:      fm,
		Executor:  paper,
		Notifier:  notify,
		Recorder:  rec,
		Metrics:   a.metrics,
	}, scheduler.Options{
		ScanCron:  cfg.Schedule.ScanCron,
		RiskCron:  cfg.Schedule.RiskCron,
		MaxAlerts: sc.MaxAlertsPerScan,
		AutoTrade: cfg.Trading.AutoTrade,
		Location:  cfg.Location(),
	}, log)
	if err != nil {
		return fail(fmt.Errorf("init scheduler: %w", err))
	}
	return a, nil
}
