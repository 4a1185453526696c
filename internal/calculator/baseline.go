package calculator

import (
	"errors"
	"fmt"

	"CoinSentinel/internal/model"
)

// BaselineCache keeps a fixed-capacity rolling window of volume observations
// per symbol together with a running sum, so each update is O(1).
//
// The cache is not safe for concurrent use; callers serialize access.
type BaselineCache struct {
	capacity   int
	minPeriods int
	records    map[string]*baselineRecord
}

// baselineRecord is a circular buffer. head points at the oldest value.
type baselineRecord struct {
	buf       []float64
	head      int
	size      int
	sum       float64
	evictions int
}

// NewBaselineCache creates a cache holding at most capacity observations per
// symbol. An average is reported only once minPeriods observations exist.
func NewBaselineCache(capacity, minPeriods int) (*BaselineCache, error) {
	if capacity <= 0 {
		return nil, errors.New("baseline capacity must be positive")
	}
	if minPeriods <= 0 {
		return nil, errors.New("baseline min periods must be positive")
	}
	if minPeriods > capacity {
		return nil, fmt.Errorf("baseline min periods %d exceeds capacity %d", minPeriods, capacity)
	}
	return &BaselineCache{
		capacity:   capacity,
		minPeriods: minPeriods,
		records:    make(map[string]*baselineRecord),
	}, nil
}

// NewBaselineCacheFor sizes the window as lookbackDays × bars per day of the timeframe.
func NewBaselineCacheFor(lookbackDays int, timeframe string, minPeriods int) (*BaselineCache, error) {
	if lookbackDays <= 0 {
		return nil, errors.New("lookback days must be positive")
	}
	perDay, err := model.PeriodsPerDay(timeframe)
	if err != nil {
		return nil, err
	}
	return NewBaselineCache(lookbackDays*perDay, minPeriods)
}

// Capacity returns the maximum window length.
func (c *BaselineCache) Capacity() int { return c.capacity }

// MinPeriods returns the number of observations required before an average is defined.
func (c *BaselineCache) MinPeriods() int { return c.minPeriods }

// Observe appends volume to the symbol's window, evicting the oldest value
// when the window is full, and returns the new average. ok is false while
// fewer than MinPeriods observations exist.
func (c *BaselineCache) Observe(symbol string, volume float64) (avg float64, ok bool) {
	r, exists := c.records[symbol]
	if !exists {
		r = &baselineRecord{buf: make([]float64, c.capacity)}
		c.records[symbol] = r
	}

	if r.size < c.capacity {
		r.buf[(r.head+r.size)%c.capacity] = volume
		r.size++
		r.sum += volume
	} else {
		r.sum -= r.buf[r.head]
		r.buf[r.head] = volume
		r.sum += volume
		r.head = (r.head + 1) % c.capacity
		r.evictions++
		// Re-derive the sum once per full rotation to stop float drift accumulating.
		if r.evictions >= c.capacity {
			r.recompute()
		}
	}
	return c.average(r)
}

// Average returns the current average without modifying the window.
func (c *BaselineCache) Average(symbol string) (float64, bool) {
	r, ok := c.records[symbol]
	if !ok {
		return 0, false
	}
	return c.average(r)
}

// Len returns the number of observations currently held for symbol.
func (c *BaselineCache) Len(symbol string) int {
	if r, ok := c.records[symbol]; ok {
		return r.size
	}
	return 0
}

// Window returns a copy of the retained observations, oldest first.
func (c *BaselineCache) Window(symbol string) []float64 {
	r, ok := c.records[symbol]
	if !ok {
		return nil
	}
	out := make([]float64, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%c.capacity]
	}
	return out
}

// Symbols returns the number of symbols tracked.
func (c *BaselineCache) Symbols() int { return len(c.records) }

// Reset drops all observations for symbol.
func (c *BaselineCache) Reset(symbol string) {
	delete(c.records, symbol)
}

func (c *BaselineCache) average(r *baselineRecord) (float64, bool) {
	if r.size < c.minPeriods {
		return 0, false
	}
	return r.sum / float64(r.size), true
}

func (r *baselineRecord) recompute() {
	sum := 0.0
	for i := 0; i < r.size; i++ {
		sum += r.buf[(r.head+i)%len(r.buf)]
	}
	r.sum = sum
	r.evictions = 0
}
