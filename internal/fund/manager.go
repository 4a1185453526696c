package fund

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"CoinSentinel/internal/model"

	"github.com/rs/zerolog"
)

// basePositionPct is the share of free cash a signal of base strength receives.
const basePositionPct = 0.05

// maxStrengthMultiplier caps how much a strong signal can scale the base size.
const maxStrengthMultiplier = 2.0

var (
	ErrBelowMinimum      = errors.New("investment below minimum")
	ErrExposureLimit     = errors.New("total exposure limit reached")
	ErrInsufficientFunds = errors.New("insufficient cash")
)

// Config controls position sizing.
type Config struct {
	InitialCapital      float64
	MaxPositionPct      float64
	MaxTotalExposure    float64
	MinInvestmentAmount float64
	SignalStrengthBase  float64
}

// Allocation is the capital assigned to a new entry.
type Allocation struct {
	Amount   float64 // quote currency
	Quantity float64
	Pct      float64 // share of free cash
}

// Manager is the paper capital book. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	state    *model.FundState
	filePath string // empty keeps the book in memory
	now      func() time.Time
	log      zerolog.Logger
}

// NewManager loads the book from filePath or starts a fresh one with the
// configured initial capital.
func NewManager(filePath string, cfg Config, log zerolog.Logger) (*Manager, error) {
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %v", cfg.InitialCapital)
	}
	if cfg.SignalStrengthBase <= 0 {
		return nil, fmt.Errorf("signal strength base must be positive, got %v", cfg.SignalStrengthBase)
	}

	state := &model.FundState{}
	if filePath != "" {
		var err error
		if state, err = LoadState(filePath); err != nil {
			return nil, err
		}
	}
	if state.InitialCapital == 0 {
		state.InitialCapital = cfg.InitialCapital
		state.Cash = cfg.InitialCapital
	}

	m := &Manager{
		cfg:      cfg,
		state:    state,
		filePath: filePath,
		now:      time.Now,
		log:      log.With().Str("component", "fund").Logger(),
	}
	if err := m.save(); err != nil {
		return nil, err
	}
	return m, nil
}

// GetState returns a copy of the book.
func (m *Manager) GetState() model.FundState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.state
}

// Cash returns the free cash.
func (m *Manager) Cash() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Cash
}

// PositionSize sizes an entry: 5% of free cash scaled by strength/base (at
// most 2x), capped at MaxPositionPct. It refuses entries below the minimum
// amount or that would push invested capital over MaxTotalExposure.
func (m *Manager) PositionSize(strength, price float64) (Allocation, error) {
	if price <= 0 {
		return Allocation{}, fmt.Errorf("price must be positive, got %v", price)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	mult := math.Min(strength/m.cfg.SignalStrengthBase, maxStrengthMultiplier)
	pct := math.Min(basePositionPct*mult, m.cfg.MaxPositionPct)
	amount := m.state.Cash * pct
	if amount < m.cfg.MinInvestmentAmount || amount <= 0 {
		return Allocation{}, fmt.Errorf("%w: %.2f < %.2f", ErrBelowMinimum, amount, m.cfg.MinInvestmentAmount)
	}

	total := m.state.Cash + m.state.Invested
	if total > 0 && (m.state.Invested+amount)/total > m.cfg.MaxTotalExposure {
		return Allocation{}, fmt.Errorf("%w: %.1f%% invested", ErrExposureLimit, m.state.Invested/total*100)
	}
	return Allocation{Amount: amount, Quantity: amount / price, Pct: pct}, nil
}

// Reserve moves cost from cash into invested capital when a position opens.
func (m *Manager) Reserve(cost float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cost > m.state.Cash {
		return fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientFunds, cost, m.state.Cash)
	}
	m.state.Cash -= cost
	m.state.Invested += cost
	if err := m.save(); err != nil {
		m.log.Error().Err(err).Msg("failed to save fund state")
	}
	return nil
}

// Release undoes a Reserve for an entry that never opened.
func (m *Manager) Release(cost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Cash += cost
	m.state.Invested = math.Max(0, m.state.Invested-cost)
	if err := m.save(); err != nil {
		m.log.Error().Err(err).Msg("failed to save fund state after release")
	}
}

// Settle books a closed position: proceeds return to cash and the
// difference to cost is realized.
func (m *Manager) Settle(cost, proceeds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pnl := proceeds - cost
	m.state.Cash += proceeds
	m.state.Invested = math.Max(0, m.state.Invested-cost)
	m.state.RealizedPnL += pnl
	m.state.TradeCount++
	if pnl > 0 {
		m.state.WinCount++
	} else {
		m.state.LossCount++
	}
	if err := m.save(); err != nil {
		m.log.Error().Err(err).Msg("failed to save fund state after settle")
	}
}

func (m *Manager) save() error {
	if m.filePath == "" {
		m.state.UpdatedAt = m.now()
		return nil
	}
	return SaveState(m.filePath, m.state, m.now())
}
