package risk

import (
	"errors"
	"fmt"
)

// Parameters configures the risk layer for an engine. Values are read at
// trade time; changing them does not retroactively move thresholds that
// positions have already been evaluated against.
type Parameters struct {
	MaxPositionSizeFraction float64 `json:"max_position_size_fraction" yaml:"max_position_size_fraction"`
	MaxDailyLossFraction    float64 `json:"max_daily_loss_fraction" yaml:"max_daily_loss_fraction"`
	StopLossFraction        float64 `json:"stop_loss_fraction" yaml:"stop_loss_fraction"`
	TakeProfitFraction      float64 `json:"take_profit_fraction" yaml:"take_profit_fraction"`
	TrailingStopFraction    float64 `json:"trailing_stop_fraction" yaml:"trailing_stop_fraction"`
	VolatilityThreshold     float64 `json:"volatility_threshold" yaml:"volatility_threshold"`
	MaxConsecutiveLosses    int     `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
}

// DefaultParameters returns the stock configuration.
func DefaultParameters() Parameters {
	return Parameters{
		MaxPositionSizeFraction: 0.20,
		MaxDailyLossFraction:    0.05,
		StopLossFraction:        0.05,
		TakeProfitFraction:      0.15,
		TrailingStopFraction:    0.03,
		VolatilityThreshold:     0.10,
		MaxConsecutiveLosses:    3,
	}
}

// Validate rejects parameter sets that cannot gate anything sensibly.
func (p Parameters) Validate() error {
	checkFraction := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %v", name, v)
		}
		return nil
	}

	if err := checkFraction("max_position_size_fraction", p.MaxPositionSizeFraction); err != nil {
		return err
	}
	if err := checkFraction("max_daily_loss_fraction", p.MaxDailyLossFraction); err != nil {
		return err
	}
	if err := checkFraction("stop_loss_fraction", p.StopLossFraction); err != nil {
		return err
	}
	if err := checkFraction("take_profit_fraction", p.TakeProfitFraction); err != nil {
		return err
	}
	if err := checkFraction("trailing_stop_fraction", p.TrailingStopFraction); err != nil {
		return err
	}
	if err := checkFraction("volatility_threshold", p.VolatilityThreshold); err != nil {
		return err
	}
	if p.MaxConsecutiveLosses < 0 {
		return errors.New("max_consecutive_losses must not be negative")
	}
	return nil
}
