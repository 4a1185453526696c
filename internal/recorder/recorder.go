package recorder

import (
	"time"

	"CoinSentinel/internal/model"
)

// SignalEvent is a detected breakout and whether it was surfaced as an alert.
type SignalEvent struct {
	Signal  model.Signal
	Alerted bool
}

// OpenEvent records a paper entry.
type OpenEvent struct {
	PositionID  string
	OrderID     string
	Symbol      string
	Price       float64
	Quantity    float64
	Cost        float64
	VolumeRatio float64
	Time        time.Time
}

// CloseEvent records an executed close decision.
type CloseEvent struct {
	Decision model.CloseDecision
	OrderID  string
	Cost     float64 // cash reserved at entry, buy fee included
	Proceeds float64
	Fee      float64
}

// CycleEvent summarizes one scheduler cycle.
type CycleEvent struct {
	Kind     string // "scan" or "risk"
	Started  time.Time
	Duration time.Duration
	Symbols  int
	Bars     int
	Rejected int
	Signals  int
	Alerts   int
	Closed   int
	Err      string
}

// Recorder persists history for later analysis.
type Recorder interface {
	RecordSignal(evt *SignalEvent) error
	RecordOpen(evt *OpenEvent) error
	RecordClose(evt *CloseEvent) error
	RecordCycle(evt *CycleEvent) error
	RecentCloses(limit int) ([]CloseEvent, error)
	// OpenPositions returns entries that have no recorded close, oldest first.
	OpenPositions() ([]OpenEvent, error)
	Close() error
}
