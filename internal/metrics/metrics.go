package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's Prometheus instruments on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	barsProcessed  prometheus.Counter
	barsRejected   *prometheus.CounterVec
	signals        *prometheus.CounterVec
	alerts         prometheus.Counter
	positionsOpen  prometheus.Gauge
	closes         *prometheus.CounterVec
	errors         *prometheus.CounterVec
	cycleDuration  *prometheus.HistogramVec
	portfolioValue prometheus.Gauge
	baselineSyms   prometheus.Gauge
}

// New registers all instruments plus Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		barsProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "coinsentinel_bars_processed_total",
			Help: "Bars accepted into the baseline",
		}),
		barsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coinsentinel_bars_rejected_total",
			Help: "Bars skipped by stage",
		}, []string{"stage"}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coinsentinel_signals_total",
			Help: "Breakouts by outcome",
		}, []string{"outcome"}),
		alerts: f.NewCounter(prometheus.CounterOpts{
			Name: "coinsentinel_alerts_sent_total",
			Help: "Alert messages delivered",
		}),
		positionsOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "coinsentinel_positions_open",
			Help: "Open positions",
		}),
		closes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coinsentinel_position_closes_total",
			Help: "Closed positions by exit reason",
		}, []string{"reason"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coinsentinel_errors_total",
			Help: "Collaborator failures by kind",
		}, []string{"kind"}),
		cycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coinsentinel_cycle_duration_seconds",
			Help:    "Scheduler cycle duration",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"kind"}),
		portfolioValue: f.NewGauge(prometheus.GaugeOpts{
			Name: "coinsentinel_portfolio_value",
			Help: "Cash plus marked position value",
		}),
		baselineSyms: f.NewGauge(prometheus.GaugeOpts{
			Name: "coinsentinel_baseline_symbols",
			Help: "Symbols with baseline state",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) BarsProcessed(n int)              { m.barsProcessed.Add(float64(n)) }
func (m *Metrics) BarsRejected(stage string, n int) { m.barsRejected.WithLabelValues(stage).Add(float64(n)) }
func (m *Metrics) Signal(outcome string)            { m.signals.WithLabelValues(outcome).Inc() }
func (m *Metrics) AlertSent()                       { m.alerts.Inc() }
func (m *Metrics) PositionsOpen(n int)              { m.positionsOpen.Set(float64(n)) }
func (m *Metrics) PositionClosed(reason string)     { m.closes.WithLabelValues(reason).Inc() }
func (m *Metrics) Error(kind string)                { m.errors.WithLabelValues(kind).Inc() }
func (m *Metrics) PortfolioValue(v float64)         { m.portfolioValue.Set(v) }
func (m *Metrics) BaselineSymbols(n int)            { m.baselineSyms.Set(float64(n)) }

// CycleDuration records how long a cycle took, in seconds.
func (m *Metrics) CycleDuration(kind string, seconds float64) {
	m.cycleDuration.WithLabelValues(kind).Observe(seconds)
}
