package calculator

// Tolerance absorbs rounding in ratios and percentages. A running mean of
// identical volumes or a pnl of -8% is rarely exactly representable.
const Tolerance = 1e-9

// AtLeast reports whether v reaches threshold within Tolerance.
func AtLeast(v, threshold float64) bool { return v >= threshold-Tolerance }

// AtMost reports whether v stays at or below threshold within Tolerance.
func AtMost(v, threshold float64) bool { return v <= threshold+Tolerance }
