package calculator

import (
	"fmt"

	"CoinSentinel/internal/model"
)

// Aggregate folds bars of the source interval into bars of the target
// timeframe. Groups are aligned to target boundaries and only complete groups
// are emitted. Input must be sorted by time.
func Aggregate(bars []model.Bar, source, target string) ([]model.Bar, error) {
	srcDur, err := model.TimeframeDuration(source)
	if err != nil {
		return nil, err
	}
	dstDur, err := model.TimeframeDuration(target)
	if err != nil {
		return nil, err
	}
	if dstDur < srcDur || dstDur%srcDur != 0 {
		return nil, fmt.Errorf("cannot aggregate %s bars into %s", source, target)
	}
	if srcDur == dstDur {
		out := make([]model.Bar, len(bars))
		copy(out, bars)
		return out, nil
	}
	if len(bars) == 0 {
		return nil, nil
	}

	perGroup := int(dstDur / srcDur)
	var out []model.Bar
	var group model.Bar
	var count int
	var started bool

	flush := func() {
		if started && count == perGroup {
			out = append(out, group)
		}
	}

	for _, b := range bars {
		start := b.Time.Truncate(dstDur)
		if !started || !start.Equal(group.Time) {
			flush()
			group = model.Bar{
				Symbol:      b.Symbol,
				Timeframe:   target,
				Time:        start,
				Open:        b.Open,
				High:        b.High,
				Low:         b.Low,
				Close:       b.Close,
				Volume:      b.Volume,
				QuoteVolume: b.QuoteVolume,
			}
			count = 1
			started = true
			continue
		}
		if b.High > group.High {
			group.High = b.High
		}
		if b.Low < group.Low {
			group.Low = b.Low
		}
		group.Close = b.Close
		group.Volume += b.Volume
		group.QuoteVolume += b.QuoteVolume
		count++
	}
	flush()
	return out, nil
}
