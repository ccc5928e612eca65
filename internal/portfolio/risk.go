package portfolio

// DrawdownTracker follows an equity sequence and records the deepest
// peak-to-trough fall, in percent of the running peak.
type DrawdownTracker struct {
	peakEquity  float64
	maxDrawdown float64
	seen        bool
}

// Observe feeds the next equity value.
func (d *DrawdownTracker) Observe(equity float64) {
	if !d.seen || equity > d.peakEquity {
		d.peakEquity = equity
		d.seen = true
	}
	if d.peakEquity <= 0 {
		return
	}
	dd := (d.peakEquity - equity) / d.peakEquity * 100
	if dd > d.maxDrawdown {
		d.maxDrawdown = dd
	}
}

// Max returns the largest drawdown observed so far.
func (d *DrawdownTracker) Max() float64 { return d.maxDrawdown }

// Peak returns the running equity peak.
func (d *DrawdownTracker) Peak() float64 { return d.peakEquity }

// MaxDrawdown computes the largest drawdown of a complete sequence.
func MaxDrawdown(equity []float64) float64 {
	var d DrawdownTracker
	for _, v := range equity {
		d.Observe(v)
	}
	return d.Max()
}
