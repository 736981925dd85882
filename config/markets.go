package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Markets describes the reserves a pool lists on boot.
type Markets struct {
	Treasury                   string              `toml:"Treasury"`
	FlashLoanPremiumTotal      *uint64             `toml:"FlashLoanPremiumTotal"`
	FlashLoanPremiumToProtocol *uint64             `toml:"FlashLoanPremiumToProtocol"`
	Admins                     Admins              `toml:"Admins"`
	Strategies                 map[string]Strategy `toml:"Strategies"`
	EModes                     []EMode             `toml:"EMode"`
	Reserves                   []Reserve           `toml:"Reserves"`
}

// Admins lists the addresses holding each role.
type Admins struct {
	Pool           []string `toml:"Pool"`
	Emergency      []string `toml:"Emergency"`
	Risk           []string `toml:"Risk"`
	AssetListing   []string `toml:"AssetListing"`
	FlashBorrowers []string `toml:"FlashBorrowers"`
}

// Strategy is a two-slope rate curve. Values are decimal fractions such as
// "0.04" for 4% a year.
type Strategy struct {
	OptimalUsageRatio             string `toml:"OptimalUsageRatio"`
	OptimalStableToTotalDebtRatio string `toml:"OptimalStableToTotalDebtRatio"`
	BaseVariableBorrowRate        string `toml:"BaseVariableBorrowRate"`
	VariableRateSlope1            string `toml:"VariableRateSlope1"`
	VariableRateSlope2            string `toml:"VariableRateSlope2"`
	StableRateSlope1              string `toml:"StableRateSlope1"`
	StableRateSlope2              string `toml:"StableRateSlope2"`
	BaseStableRateOffset          string `toml:"BaseStableRateOffset"`
	StableRateExcessOffset        string `toml:"StableRateExcessOffset"`
}

// EMode is an efficiency mode category. Percentages are basis points.
type EMode struct {
	ID                   uint8  `toml:"ID"`
	Label                string `toml:"Label"`
	LTV                  uint16 `toml:"LTV"`
	LiquidationThreshold uint16 `toml:"LiquidationThreshold"`
	LiquidationBonus     uint16 `toml:"LiquidationBonus"`
	PriceSource          string `toml:"PriceSource"`
}

// Reserve lists one asset. Percentages are basis points, caps are whole
// tokens and the debt ceiling has two decimals.
type Reserve struct {
	Asset                  string `toml:"Asset"`
	Symbol                 string `toml:"Symbol"`
	Decimals               uint8  `toml:"Decimals"`
	Strategy               string `toml:"Strategy"`
	Price                  string `toml:"Price"`
	LTV                    uint64 `toml:"LTV"`
	LiquidationThreshold   uint64 `toml:"LiquidationThreshold"`
	LiquidationBonus       uint64 `toml:"LiquidationBonus"`
	ReserveFactor          uint64 `toml:"ReserveFactor"`
	SupplyCap              uint64 `toml:"SupplyCap"`
	BorrowCap              uint64 `toml:"BorrowCap"`
	DebtCeiling            uint64 `toml:"DebtCeiling"`
	LiquidationProtocolFee uint64 `toml:"LiquidationProtocolFee"`
	EModeCategory          uint8  `toml:"EModeCategory"`
	Borrowing              bool   `toml:"Borrowing"`
	StableBorrowing        bool   `toml:"StableBorrowing"`
	FlashLoans             bool   `toml:"FlashLoans"`
	BorrowableInIsolation  bool   `toml:"BorrowableInIsolation"`
	Siloed                 bool   `toml:"Siloed"`
	Frozen                 bool   `toml:"Frozen"`
}

// Load decodes and validates the markets file at path. Unknown keys are
// rejected so that typos do not silently drop a parameter.
func Load(path string) (*Markets, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("markets path required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("markets file: %w", err)
	}
	m := &Markets{}
	meta, err := toml.DecodeFile(path, m)
	if err != nil {
		return nil, fmt.Errorf("decode markets %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("markets %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("markets %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a markets document held in memory.
func Parse(data string) (*Markets, error) {
	m := &Markets{}
	if _, err := toml.Decode(data, m); err != nil {
		return nil, fmt.Errorf("decode markets: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
