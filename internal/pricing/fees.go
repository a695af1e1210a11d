// Package pricing implements the pricing oracle: deterministic per-service
// price formulas plus intelligence derived from historical negotiation
// outcomes.
package pricing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TransferFee prices one banking transfer type: fixed base fee plus a
// percentage of the transferred amount.
type TransferFee struct {
	Base float64 `yaml:"base"`
	Pct  float64 `yaml:"pct"`
}

// HourlyFee prices time-based work: hourly rate with a platform markup
// percentage on top.
type HourlyFee struct {
	Rate         float64 `yaml:"rate"`
	PlatformPct  float64 `yaml:"platform_pct"`
	DefaultHours float64 `yaml:"default_hours"`
}

// FeeTable is the declarative pricing configuration. The deal engine never
// reads it directly; all price rules flow through Oracle.SuggestPrice so they
// stay unit-testable independent of transition logic.
type FeeTable struct {
	Banking struct {
		Transfers   map[string]TransferFee `yaml:"transfers"`
		DefaultType string                 `yaml:"default_type"`
	} `yaml:"banking"`
	Physical   HourlyFee `yaml:"physical"`
	Employment HourlyFee `yaml:"employment"`
	Proxy      struct {
		SetupFees    map[string]float64 `yaml:"setup_fees"`
		DefaultSetup float64            `yaml:"default_setup"`
	} `yaml:"proxy"`
	Backup struct {
		Plans       map[string]float64 `yaml:"plans"`
		DefaultPlan string             `yaml:"default_plan"`
	} `yaml:"backup"`
	CustomBase float64 `yaml:"custom_base"`
}

// DefaultFees returns the built-in fee table.
func DefaultFees() *FeeTable {
	t := &FeeTable{}
	t.Banking.Transfers = map[string]TransferFee{
		"ach_transfer":       {Base: 10, Pct: 1.0},
		"sepa_transfer":      {Base: 5, Pct: 1.0},
		"international_wire": {Base: 25, Pct: 1.5},
	}
	t.Banking.DefaultType = "ach_transfer"
	t.Physical = HourlyFee{Rate: 50, PlatformPct: 15, DefaultHours: 2}
	t.Employment = HourlyFee{Rate: 50, PlatformPct: 15, DefaultHours: 40}
	t.Proxy.SetupFees = map[string]float64{
		"datacenter_lease":      500,
		"business_registration": 1000,
		"bank_account":          500,
		"equipment_ownership":   200,
		"real_estate_lease":     750,
	}
	t.Proxy.DefaultSetup = 500
	t.Backup.Plans = map[string]float64{
		"basic":      10,
		"standard":   30,
		"premium":    100,
		"enterprise": 500,
	}
	t.Backup.DefaultPlan = "standard"
	t.CustomBase = 50
	return t
}

// LoadFees reads a YAML fee table from path, applied on top of the defaults so
// a partial file only overrides what it names.
func LoadFees(path string) (*FeeTable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fee table: %w", err)
	}
	t := DefaultFees()
	if err := yaml.Unmarshal(b, t); err != nil {
		return nil, fmt.Errorf("failed to parse fee table: %w", err)
	}
	return t, nil
}
