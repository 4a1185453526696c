package model

import "time"

// Signal is a volume breakout detected on a single bar.
type Signal struct {
	Symbol      string
	Timeframe   string
	Time        time.Time
	Price       float64 // close of the breakout bar
	Volume      float64
	Baseline    float64 // rolling average the volume was compared against
	VolumeRatio float64
	PriceChange float64
}

// Pullback is a retrace from a recent high on rising volume with RSI in the
// recovery band. It is alert-only and never opens a position.
type Pullback struct {
	Symbol      string
	Timeframe   string
	Time        time.Time
	Price       float64
	RecentHigh  float64
	Retrace     float64 // (RecentHigh - Price) / RecentHigh
	RSI         float64
	VolumeRatio float64 // recent average volume over the lookback average
	Strength    float64 // higher for shallower retraces
}

// ExitReason names the exit rule that closed a position.
type ExitReason string

const (
	ExitQuickProfit  ExitReason = "quick profit"
	ExitProfitTaking ExitReason = "profit taking"
	ExitTimeStopLoss ExitReason = "time-based stop loss"
	ExitForcedClose  ExitReason = "forced close"
	ExitStopLoss     ExitReason = "stop loss"
	ExitMaxProfit    ExitReason = "max profit"
	ExitTrailingStop ExitReason = "trailing stop"
)

// CloseDecision is emitted by the risk manager when a position must be closed.
type CloseDecision struct {
	PositionID string
	Symbol     string
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	Time       time.Time
	Reason     ExitReason
	PnL        float64 // unrealized pnl ratio at the decision
	HeldFor    time.Duration
}

// PortfolioSummary aggregates cash and open position value.
type PortfolioSummary struct {
	Cash          float64
	PositionValue float64
	TotalValue    float64
	PositionCount int
	Exposure      float64 // PositionValue / TotalValue
}

// BotStatus is the runtime view served to operators.
type BotStatus struct {
	Source          string    `json:"source"`
	Symbols         int       `json:"symbols"`
	BaselineSymbols int       `json:"baseline_symbols"`
	OpenPositions   int       `json:"open_positions"`
	AutoTrade       bool      `json:"auto_trade"`
	LastScan        time.Time `json:"last_scan"`
	LastRiskCheck   time.Time `json:"last_risk_check"`
	LastError       string    `json:"last_error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
}
