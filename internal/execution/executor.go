package execution

import (
	"context"
	"errors"
	"time"

	"CoinSentinel/internal/model"
)

// ErrBelowLotSize is returned when an order rounds down to zero quantity.
var ErrBelowLotSize = errors.New("order below lot size")

// Side is the order direction.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Fill is the result of an executed market order.
type Fill struct {
	OrderID  string
	Symbol   string
	Side     Side
	Quantity float64
	Price    float64
	Amount   float64 // quote value after fees
	Fee      float64
	Time     time.Time
}

// Executor places market orders with an exchange or a simulator.
type Executor interface {
	// Buy spends up to amount of quote currency on symbol at price.
	Buy(ctx context.Context, symbol string, amount, price float64) (Fill, error)
	// Sell liquidates the position described by the close decision.
	Sell(ctx context.Context, d model.CloseDecision) (Fill, error)
	Name() string
}
