package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"trading-screener/internal/backtest"
	"trading-screener/internal/strategy"
)

// StrategyFile is the YAML strategy configuration:
//
//	name: Momentum
//	indicators: {rsi: true, macd: true, adx: true}
//	params:
//	  initial_capital: 250000
//	  stop_loss: 30
//
// Omitted params keep their defaults. An omitted indicators block enables
// all nine; a present one lists exactly the enabled indicators.
type StrategyFile struct {
	Strategy strategy.Strategy
	Params   backtest.Params

	// ScreenTieBreak is the screening tie-break; the backtest one is
	// Params.TieBreak.
	ScreenTieBreak strategy.TieBreak
}

type strategyYAML struct {
	Name           string             `yaml:"name"`
	Indicators     strategy.Selection `yaml:"indicators"`
	ScreenTieBreak strategy.TieBreak  `yaml:"screen_tie_break"`
	Params         backtest.Params    `yaml:"params"`
}

// DefaultStrategyFile is the configuration used without a file.
func DefaultStrategyFile() StrategyFile {
	return StrategyFile{
		Strategy:       strategy.Default(),
		Params:         backtest.DefaultParams(),
		ScreenTieBreak: strategy.TieBreakInclusive,
	}
}

// LoadStrategyFile reads and validates path. An empty path returns the
// defaults.
func LoadStrategyFile(path string) (StrategyFile, error) {
	if path == "" {
		return DefaultStrategyFile(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return StrategyFile{}, fmt.Errorf("%w: read strategy file: %v", ErrConfig, err)
	}
	return ParseStrategy(data)
}

// ParseStrategy decodes a strategy file body.
func ParseStrategy(data []byte) (StrategyFile, error) {
	raw := strategyYAML{Params: backtest.DefaultParams(), ScreenTieBreak: strategy.TieBreakInclusive}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return StrategyFile{}, fmt.Errorf("%w: parse strategy file: %v", ErrConfig, err)
	}

	def := strategy.Default()
	sf := StrategyFile{
		Strategy: strategy.Strategy{Name: raw.Name, Indicators: raw.Indicators},
		Params:   raw.Params,

		ScreenTieBreak: raw.ScreenTieBreak,
	}
	if sf.Strategy.Name == "" {
		sf.Strategy.Name = def.Name
	}
	if sf.Strategy.Indicators == nil {
		sf.Strategy.Indicators = def.Indicators
	}

	if err := sf.Strategy.Indicators.Validate(); err != nil {
		return StrategyFile{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if !sf.ScreenTieBreak.Valid() {
		return StrategyFile{}, fmt.Errorf("%w: screen_tie_break %q", ErrConfig, sf.ScreenTieBreak)
	}
	if err := sf.Params.Validate(); err != nil {
		return StrategyFile{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return sf, nil
}
