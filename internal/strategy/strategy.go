// Package strategy turns an indicator snapshot into a single trading signal.
//
// A Strategy is a named IndicatorSelection. It is a plain value: callers
// pass it explicitly to the screener and the backtester, there is no
// process-wide "current" strategy.
package strategy

import (
	"errors"
	"fmt"
	"sort"
)

// Indicator names accepted in a Selection.
const (
	IndRSI        = "rsi"
	IndMACD       = "macd"
	IndBollinger  = "bollinger"
	IndStochastic = "stochastic"
	IndADX        = "adx"
	IndVolume     = "volume"
	IndCCI        = "cci"
	IndWillR      = "willr"
	IndMFI        = "mfi"
)

// Names lists every supported indicator in evaluation order.
var Names = []string{
	IndRSI, IndMACD, IndBollinger, IndStochastic, IndADX,
	IndVolume, IndCCI, IndWillR, IndMFI,
}

// ErrUnknownIndicator is returned for a selection key outside Names.
var ErrUnknownIndicator = errors.New("strategy: unknown indicator")

// VolumeBased reports whether an indicator needs volume data.
func VolumeBased(name string) bool {
	return name == IndVolume || name == IndMFI
}

// Selection enables or disables each indicator. Missing keys are disabled.
type Selection map[string]bool

// DefaultSelection enables all nine indicators.
func DefaultSelection() Selection {
	s := make(Selection, len(Names))
	for _, n := range Names {
		s[n] = true
	}
	return s
}

// Enabled reports whether name is switched on.
func (s Selection) Enabled(name string) bool {
	return s[name]
}

// Validate rejects keys that are not indicator names.
func (s Selection) Validate() error {
	var unknown []string
	for k := range s {
		if !known(k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: %v", ErrUnknownIndicator, unknown)
	}
	return nil
}

// Active returns the enabled indicator names in evaluation order.
func (s Selection) Active() []string {
	var out []string
	for _, n := range Names {
		if s[n] {
			out = append(out, n)
		}
	}
	return out
}

// ActiveCount counts enabled indicators, leaving out volume-based ones
// when the data has no volume.
func (s Selection) ActiveCount(volumeAvailable bool) int {
	n := 0
	for _, name := range Names {
		if !s[name] {
			continue
		}
		if VolumeBased(name) && !volumeAvailable {
			continue
		}
		n++
	}
	return n
}

// Clone returns an independent copy.
func (s Selection) Clone() Selection {
	out := make(Selection, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func known(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

// Strategy is a named indicator selection.
type Strategy struct {
	Name       string    `json:"name" yaml:"name"`
	Indicators Selection `json:"indicators" yaml:"indicators"`
}

// Default returns the all-indicators strategy.
func Default() Strategy {
	return Strategy{Name: "My Strategy", Indicators: DefaultSelection()}
}

// Description is the API view of a strategy.
type Description struct {
	Name        string    `json:"name"`
	Indicators  Selection `json:"indicators"`
	ActiveCount int       `json:"active_count"`
}

// Describe reports the strategy with its enabled-indicator count.
func (s Strategy) Describe() Description {
	return Description{
		Name:        s.Name,
		Indicators:  s.Indicators.Clone(),
		ActiveCount: s.Indicators.ActiveCount(true),
	}
}
