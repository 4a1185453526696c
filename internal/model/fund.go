package model

import "time"

// FundState tracks the paper trading capital book.
type FundState struct {
	InitialCapital float64   `json:"initial_capital"`
	Cash           float64   `json:"cash"`
	Invested       float64   `json:"invested"` // cost basis of open positions
	RealizedPnL    float64   `json:"realized_pnl"`
	TradeCount     int       `json:"trade_count"`
	WinCount       int       `json:"win_count"`
	LossCount      int       `json:"loss_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}
