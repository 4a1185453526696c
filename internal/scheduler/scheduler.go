package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"CoinSentinel/internal/collector"
	"CoinSentinel/internal/execution"
	"CoinSentinel/internal/fund"
	"CoinSentinel/internal/metrics"
	"CoinSentinel/internal/model"
	"CoinSentinel/internal/notifier"
	"CoinSentinel/internal/recorder"
	"CoinSentinel/internal/risk"
	"CoinSentinel/internal/strategy"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Deps are the components a Scheduler drives.
type Deps struct {
	Collector *collector.Collector
	Monitor   *strategy.Monitor
	Risk      *risk.Manager
	Fund      *fund.Manager
	Executor  execution.Executor
	Notifier  notifier.Notifier
	Recorder  recorder.Recorder
	Metrics   *metrics.Metrics
}

// Options tune the cycles.
type Options struct {
	ScanCron  string
	RiskCron  string
	MaxAlerts int  // per scan, 0 means no cap
	AutoTrade bool // open paper positions on alerts
	Location  *time.Location
}

// Report summarizes one cycle.
type Report struct {
	Symbols   int
	Bars      int
	Rejected  int
	Signals   []model.Signal
	Alerts    []model.Signal
	Pullbacks []model.Pullback // surfaced pullback alerts
	Opened    []risk.Position
	Closed    []model.CloseDecision
}

// Scheduler owns all mutable trading state. Cycles and read-only views are
// serialized by one mutex.
type Scheduler struct {
	Cron *cron.Cron
	Now  func() time.Time

	mu     sync.Mutex
	adhoc  sync.WaitGroup // ScanNow runs
	deps   Deps
	opts   Options
	ctx    context.Context
	log    zerolog.Logger
	costs  map[string]float64 // cash reserved per position id
	status model.BotStatus
}

// NewScheduler creates a Scheduler and restores positions left open by a
// previous run from the recorder.
func NewScheduler(ctx context.Context, deps Deps, opts Options, log zerolog.Logger) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	log = log.With().Str("component", "scheduler").Logger()
	cronLog := log.With().Str("component", "cron").Logger()

	s := &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(opts.Location),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(&cronLog))),
		),
		Now:   time.Now,
		deps:  deps,
		opts:  opts,
		ctx:   ctx,
		log:   log,
		costs: make(map[string]float64),
	}
	s.status = model.BotStatus{
		Source:    deps.Collector.Fetcher.Name(),
		AutoTrade: opts.AutoTrade,
		StartedAt: s.Now(),
	}
	if err := s.restore(); err != nil {
		return nil, fmt.Errorf("restore positions: %w", err)
	}
	return s, nil
}

func (s *Scheduler) restore() error {
	opens, err := s.deps.Recorder.OpenPositions()
	if err != nil {
		return err
	}
	for _, o := range opens {
		p, err := s.deps.Risk.Open(o.Symbol, o.Price, o.Quantity, o.Time)
		if err != nil {
			s.log.Warn().Err(err).Str("position_id", o.PositionID).Msg("skip restoring position")
			continue
		}
		p.ID = o.PositionID
		s.costs[p.ID] = o.Cost
	}
	if len(opens) > 0 {
		s.log.Info().Int("positions", s.deps.Risk.Len()).Msg("open positions restored")
	}
	s.deps.Metrics.PositionsOpen(s.deps.Risk.Len())
	return nil
}

// Register adds the scan and risk jobs.
func (s *Scheduler) Register() error {
	if _, err := s.Cron.AddFunc(s.opts.ScanCron, func() { s.runJob("scan") }); err != nil {
		return fmt.Errorf("register scan task: %w", err)
	}
	if _, err := s.Cron.AddFunc(s.opts.RiskCron, func() { s.runJob("risk") }); err != nil {
		return fmt.Errorf("register risk task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Str("scan_cron", s.opts.ScanCron).Str("risk_cron", s.opts.RiskCron).Msg("scheduler started")
}

// ScanNow runs a scan in the background outside the cron schedule.
// Stop waits for it.
func (s *Scheduler) ScanNow() {
	s.adhoc.Add(1)
	go func() {
		defer s.adhoc.Done()
		s.runJob("scan")
	}()
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.adhoc.Wait()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runJob(kind string) {
	if s.ctx.Err() != nil {
		return
	}
	var err error
	if kind == "scan" {
		_, err = s.RunScan(s.ctx)
	} else {
		_, err = s.RunRiskCheck(s.ctx)
	}
	if err != nil {
		s.log.Error().Err(err).Str("kind", kind).Msg("cycle failed")
	}
}

// RunScan runs a risk pass, then detection over newly collected bars, then
// alerting and optional paper entries.
func (s *Scheduler) RunScan(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	start := s.Now()
	var rep Report

	rep.Closed = s.riskPass(ctx, start)

	batches, err := s.deps.Collector.Collect(ctx)
	if err != nil {
		s.deps.Metrics.Error("collect")
		s.finish("scan", start, &rep, err)
		return rep, fmt.Errorf("collect: %w", err)
	}

	var pullbacks []model.Pullback
	for _, b := range batches {
		rep.Symbols++
		if b.Rejected > 0 {
			rep.Rejected += b.Rejected
			s.deps.Metrics.BarsRejected("collector", b.Rejected)
		}
		bars := b.Bars
		if b.Initial && len(bars) > 1 {
			w := s.deps.Monitor.Warmup(b.Symbol, bars[:len(bars)-1])
			rep.Bars += w.Accepted
			rep.Rejected += w.Rejected
			s.deps.Metrics.BarsRejected("monitor", w.Rejected)
			bars = bars[len(bars)-1:]
		}
		res := s.deps.Monitor.Process(b.Symbol, bars)
		rep.Bars += res.Accepted
		rep.Rejected += res.Rejected
		s.deps.Metrics.BarsRejected("monitor", res.Rejected)
		for range res.Filtered {
			s.deps.Metrics.Signal("filtered")
		}
		rep.Signals = append(rep.Signals, res.Signals...)
		pullbacks = append(pullbacks, res.Pullbacks...)
	}
	s.deps.Metrics.BarsProcessed(rep.Bars)

	rep.Alerts = s.deps.Monitor.SelectAlerts(rep.Signals, s.opts.MaxAlerts)
	s.recordSignals(rep.Signals, rep.Alerts)

	if len(rep.Alerts) > 0 {
		s.trySend(ctx, notifier.FormatSignals(rep.Alerts, s.opts.Location))
		for range rep.Alerts {
			s.deps.Metrics.AlertSent()
		}
	}

	rep.Pullbacks = s.deps.Monitor.SelectPullbacks(pullbacks, s.opts.MaxAlerts)
	if len(rep.Pullbacks) > 0 {
		s.trySend(ctx, notifier.FormatPullbacks(rep.Pullbacks, s.opts.Location))
		for range rep.Pullbacks {
			s.deps.Metrics.Signal("pullback")
		}
	}

	if s.opts.AutoTrade {
		for _, sig := range rep.Alerts {
			if ctx.Err() != nil {
				break
			}
			if p, ok := s.enter(ctx, sig, start); ok {
				rep.Opened = append(rep.Opened, p)
			}
		}
	}

	s.status.LastScan = start
	s.finish("scan", start, &rep, nil)
	return rep, nil
}

// RunRiskCheck evaluates open positions against fresh prices.
func (s *Scheduler) RunRiskCheck(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	start := s.Now()
	rep := Report{Closed: s.riskPass(ctx, start)}
	s.finish("risk", start, &rep, nil)
	return rep, nil
}

func (s *Scheduler) riskPass(ctx context.Context, now time.Time) []model.CloseDecision {
	s.status.LastRiskCheck = now
	if s.deps.Risk.Len() == 0 {
		return nil
	}
	positions := s.deps.Risk.Positions()
	symbols := make([]string, len(positions))
	for i, p := range positions {
		symbols[i] = p.Symbol
	}
	quotes := s.deps.Collector.Quotes(ctx, symbols)
	if len(quotes) < len(symbols) {
		s.deps.Metrics.Error("quote")
	}
	return s.deps.Risk.CheckAll(ctx, quotes, now, risk.CloseSinkFunc(s.closePosition))
}

// closePosition executes a close decision. An error keeps the position open.
func (s *Scheduler) closePosition(ctx context.Context, d model.CloseDecision) error {
	fill, err := s.deps.Executor.Sell(ctx, d)
	if err != nil {
		s.deps.Metrics.Error("execute")
		return fmt.Errorf("sell %s: %w", d.Symbol, err)
	}

	cost, ok := s.costs[d.PositionID]
	if !ok {
		cost = d.EntryPrice * d.Quantity
	}
	delete(s.costs, d.PositionID)
	s.deps.Fund.Settle(cost, fill.Amount)
	s.deps.Metrics.PositionClosed(string(d.Reason))

	if err := s.deps.Recorder.RecordClose(&recorder.CloseEvent{
		Decision: d,
		OrderID:  fill.OrderID,
		Cost:     cost,
		Proceeds: fill.Amount,
		Fee:      fill.Fee,
	}); err != nil {
		s.deps.Metrics.Error("record")
		s.log.Error().Err(err).Msg("record close")
	}
	s.trySend(ctx, notifier.FormatClose(d, cost, fill.Amount))
	return nil
}

// enter sizes and opens a paper position for sig.
func (s *Scheduler) enter(ctx context.Context, sig model.Signal, now time.Time) (risk.Position, bool) {
	l := s.log.With().Str("symbol", sig.Symbol).Logger()
	if _, open := s.deps.Risk.Get(sig.Symbol); open {
		l.Info().Msg("position already open, entry skipped")
		return risk.Position{}, false
	}

	price := sig.Price
	if q, ok := s.deps.Collector.Quotes(ctx, []string{sig.Symbol})[sig.Symbol]; ok {
		price = q.Price
	}

	alloc, err := s.deps.Fund.PositionSize(sig.VolumeRatio, price)
	if err != nil {
		if errors.Is(err, fund.ErrBelowMinimum) || errors.Is(err, fund.ErrExposureLimit) {
			l.Info().Err(err).Msg("entry skipped")
		} else {
			l.Warn().Err(err).Msg("position sizing failed")
		}
		return risk.Position{}, false
	}

	fill, err := s.deps.Executor.Buy(ctx, sig.Symbol, alloc.Amount, price)
	if err != nil {
		s.deps.Metrics.Error("execute")
		l.Warn().Err(err).Float64("amount", alloc.Amount).Msg("buy failed")
		return risk.Position{}, false
	}
	if err := s.deps.Fund.Reserve(fill.Amount); err != nil {
		l.Error().Err(err).Str("order_id", fill.OrderID).Msg("reserve failed after fill")
		return risk.Position{}, false
	}
	p, err := s.deps.Risk.Open(sig.Symbol, fill.Price, fill.Quantity, now)
	if err != nil {
		s.deps.Fund.Release(fill.Amount)
		l.Error().Err(err).Msg("open position failed")
		return risk.Position{}, false
	}
	s.costs[p.ID] = fill.Amount
	s.deps.Metrics.Signal("entered")

	if err := s.deps.Recorder.RecordOpen(&recorder.OpenEvent{
		PositionID:  p.ID,
		OrderID:     fill.OrderID,
		Symbol:      p.Symbol,
		Price:       fill.Price,
		Quantity:    fill.Quantity,
		Cost:        fill.Amount,
		VolumeRatio: sig.VolumeRatio,
		Time:        now,
	}); err != nil {
		s.deps.Metrics.Error("record")
		l.Error().Err(err).Msg("record open")
	}
	s.trySend(ctx, notifier.FormatOpen(p, sig.VolumeRatio))
	return *p, true
}

func (s *Scheduler) recordSignals(signals, alerts []model.Signal) {
	alerted := make(map[string]bool, len(alerts))
	for _, a := range alerts {
		alerted[a.Symbol+a.Time.String()] = true
	}
	for _, sig := range signals {
		outcome := "suppressed"
		ok := alerted[sig.Symbol+sig.Time.String()]
		if ok {
			outcome = "alerted"
		}
		s.deps.Metrics.Signal(outcome)
		if err := s.deps.Recorder.RecordSignal(&recorder.SignalEvent{Signal: sig, Alerted: ok}); err != nil {
			s.deps.Metrics.Error("record")
			s.log.Error().Err(err).Msg("record signal")
		}
	}
}

func (s *Scheduler) finish(kind string, start time.Time, rep *Report, cycleErr error) {
	dur := s.Now().Sub(start)
	s.deps.Metrics.CycleDuration(kind, dur.Seconds())
	s.deps.Metrics.PositionsOpen(s.deps.Risk.Len())
	s.deps.Metrics.BaselineSymbols(s.deps.Monitor.Symbols())
	s.deps.Metrics.PortfolioValue(s.deps.Risk.Summary(s.deps.Fund.Cash()).TotalValue)

	evt := &recorder.CycleEvent{
		Kind:     kind,
		Started:  start,
		Duration: dur,
		Symbols:  rep.Symbols,
		Bars:     rep.Bars,
		Rejected: rep.Rejected,
		Signals:  len(rep.Signals),
		Alerts:   len(rep.Alerts),
		Closed:   len(rep.Closed),
	}
	if cycleErr != nil {
		evt.Err = cycleErr.Error()
		s.status.LastError = evt.Err
	}
	if err := s.deps.Recorder.RecordCycle(evt); err != nil {
		s.log.Error().Err(err).Msg("record cycle")
	}
	s.log.Info().
		Str("kind", kind).
		Dur("took", dur).
		Int("symbols", rep.Symbols).
		Int("bars", rep.Bars).
		Int("rejected", rep.Rejected).
		Int("signals", len(rep.Signals)).
		Int("alerts", len(rep.Alerts)).
		Int("opened", len(rep.Opened)).
		Int("closed", len(rep.Closed)).
		Msg("cycle done")
}

func (s *Scheduler) trySend(ctx context.Context, text string) {
	if err := s.deps.Notifier.Notify(ctx, text); err != nil {
		s.deps.Metrics.Error("notify")
		s.log.Error().Err(err).Msg("send notification")
	}
}

// Positions returns the open positions.
func (s *Scheduler) Positions() []risk.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deps.Risk.Positions()
}

// Summary values cash plus open positions at their last price.
func (s *Scheduler) Summary() model.PortfolioSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deps.Risk.Summary(s.deps.Fund.Cash())
}

func (s *Scheduler) Status() model.BotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Symbols = s.deps.Collector.KnownSymbols()
	st.BaselineSymbols = s.deps.Monitor.Symbols()
	st.OpenPositions = s.deps.Risk.Len()
	return st
}

func (s *Scheduler) RecentCloses(limit int) ([]recorder.CloseEvent, error) {
	return s.deps.Recorder.RecentCloses(limit)
}

// HandleCommand answers a chat command.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	switch cmd {
	case "/positions", "查看持仓":
		return notifier.FormatPositions(s.Positions(), s.Now())
	case "/summary", "查看资金":
		s.mu.Lock()
		sum := s.deps.Risk.Summary(s.deps.Fund.Cash())
		state := s.deps.Fund.GetState()
		s.mu.Unlock()
		return notifier.FormatSummary(sum, state)
	case "/status", "查看状态":
		return formatStatus(s.Status(), s.opts.Location)
	case "/closes", "最近平仓":
		closes, err := s.RecentCloses(5)
		if err != nil {
			return fmt.Sprintf("❌ 查询失败: %v", err)
		}
		return formatCloses(closes)
	case "/baseline":
		if len(fields) < 2 {
			return "用法: /baseline BTCUSDT"
		}
		s.mu.Lock()
		st := s.deps.Monitor.Inspect(strings.ToUpper(fields[1]))
		s.mu.Unlock()
		return formatBaseline(st, s.opts.Location)
	default:
		return helpText
	}
}

const helpText = "可用命令:\n• /positions 查看持仓\n• /summary 查看资金\n• /status 查看状态\n• /closes 最近平仓\n• /baseline SYMBOL 查看基线"

func formatBaseline(st strategy.SymbolState, loc *time.Location) string {
	if st.Samples == 0 {
		return fmt.Sprintf("📭 %s 暂无数据", st.Symbol)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📈 <b>%s 基线</b>\n\n", st.Symbol)
	fmt.Fprintf(&b, "样本: %d / %d (最少 %d)\n", st.Samples, st.Capacity, st.MinPeriods)
	if st.Ready {
		fmt.Fprintf(&b, "平均成交额: %.0f\n", st.Baseline)
	} else {
		b.WriteString("平均成交额: 数据不足\n")
	}
	fmt.Fprintf(&b, "最新K线: %s\n", st.LastBar.In(loc).Format("2006-01-02 15:04"))
	if st.LastAlert != "" {
		fmt.Fprintf(&b, "上次提醒: %s", st.LastAlert)
	} else {
		b.WriteString("上次提醒: -")
	}
	return b.String()
}

func formatStatus(st model.BotStatus, loc *time.Location) string {
	ts := func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.In(loc).Format("2006-01-02 15:04:05")
	}
	var b strings.Builder
	b.WriteString("🛰 <b>运行状态</b>\n\n")
	fmt.Fprintf(&b, "数据源: %s\n", st.Source)
	fmt.Fprintf(&b, "监控币种: %d (基线 %d)\n", st.Symbols, st.BaselineSymbols)
	fmt.Fprintf(&b, "持仓数: %d\n", st.OpenPositions)
	fmt.Fprintf(&b, "自动交易: %v\n", st.AutoTrade)
	fmt.Fprintf(&b, "上次扫描: %s\n", ts(st.LastScan))
	fmt.Fprintf(&b, "上次风控: %s\n", ts(st.LastRiskCheck))
	fmt.Fprintf(&b, "启动时间: %s", ts(st.StartedAt))
	if st.LastError != "" {
		fmt.Fprintf(&b, "\n最近错误: %s", st.LastError)
	}
	return b.String()
}

func formatCloses(closes []recorder.CloseEvent) string {
	if len(closes) == 0 {
		return "📭 暂无平仓记录"
	}
	sort.SliceStable(closes, func(i, j int) bool { return closes[i].Decision.Time.After(closes[j].Decision.Time) })
	parts := make([]string, len(closes))
	for i, c := range closes {
		parts[i] = notifier.FormatClose(c.Decision, c.Cost, c.Proceeds)
	}
	return strings.Join(parts, "\n\n")
}
