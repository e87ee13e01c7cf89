package risk

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// limitsFile is the YAML shape for overriding risk limits. Unset fields keep
// the base value.
type limitsFile struct {
	Limits struct {
		MaxStake             *float64 `yaml:"max_stake"`
		MaxDailyLoss         *float64 `yaml:"max_daily_loss"`
		MaxConsecutiveLosses *int     `yaml:"max_consecutive_losses"`
		MaxTradesPerHour     *int     `yaml:"max_trades_per_hour"`
		MaxTradesPerDay      *int     `yaml:"max_trades_per_day"`
		CooldownMinutes      *int     `yaml:"cooldown_minutes"`
		MinBalance           *float64 `yaml:"min_balance"`
		MaxDrawdownPercent   *float64 `yaml:"max_drawdown_percent"`
	} `yaml:"limits"`
}

// LoadLimits applies overrides from a YAML file on top of base.
func LoadLimits(path string, base Limits) (Limits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read risk limits: %w", err)
	}

	var file limitsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return base, fmt.Errorf("parse risk limits: %w", err)
	}

	l := file.Limits
	if l.MaxStake != nil {
		base.MaxStake = *l.MaxStake
	}
	if l.MaxDailyLoss != nil {
		base.MaxDailyLoss = *l.MaxDailyLoss
	}
	if l.MaxConsecutiveLosses != nil {
		base.MaxConsecutiveLosses = *l.MaxConsecutiveLosses
	}
	if l.MaxTradesPerHour != nil {
		base.MaxTradesPerHour = *l.MaxTradesPerHour
	}
	if l.MaxTradesPerDay != nil {
		base.MaxTradesPerDay = *l.MaxTradesPerDay
	}
	if l.CooldownMinutes != nil {
		base.Cooldown = time.Duration(*l.CooldownMinutes) * time.Minute
	}
	if l.MinBalance != nil {
		base.MinBalance = *l.MinBalance
	}
	if l.MaxDrawdownPercent != nil {
		base.MaxDrawdownPercent = *l.MaxDrawdownPercent
	}
	return base, nil
}
