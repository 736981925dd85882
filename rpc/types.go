package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending"
)

type method struct {
	// scope is required of the caller; empty marks a read-only view.
	scope string
	fn    func(*call) (interface{}, error)
}

type call struct {
	ctx    context.Context
	caller common.Address
	raw    json.RawMessage
}

// decode unmarshals the parameter object, rejecting unknown fields.
func decode[T any](c *call) (T, error) {
	var out T
	if len(c.raw) == 0 {
		return out, invalidParams("parameter object required", nil)
	}
	dec := json.NewDecoder(strings.NewReader(string(c.raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, invalidParams("invalid parameter object", err.Error())
	}
	return out, nil
}

func parseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}, fmt.Errorf("%s required", field)
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: %q is not an address", field, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseAddresses(field string, raw []string) ([]common.Address, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s required", field)
	}
	out := make([]common.Address, 0, len(raw))
	for i, v := range raw {
		addr, err := parseAddress(fmt.Sprintf("%s[%d]", field, i), v)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// parseOptionalAddress returns fallback for an empty value.
func parseOptionalAddress(field, raw string, fallback common.Address) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return parseAddress(field, raw)
}

// parseAmount reads a base-10 integer amount. "max" maps to the full
// balance sentinel where allowMax is set.
func parseAmount(field, raw string, allowMax bool) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%s required", field)
	}
	if strings.EqualFold(raw, "max") {
		if !allowMax {
			return nil, fmt.Errorf("%s: max is not accepted here", field)
		}
		return lending.MaxUint(), nil
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %q is not a decimal amount", field, raw)
	}
	return v, nil
}

func parseRateMode(field string, raw uint8) (lending.InterestRateMode, error) {
	mode := lending.InterestRateMode(raw)
	if mode != lending.RateModeStable && mode != lending.RateModeVariable {
		return lending.RateModeNone, fmt.Errorf("%s: must be 1 (stable) or 2 (variable)", field)
	}
	return mode, nil
}

// paramError wraps a parse failure as an invalid params error.
func paramError(err error) error {
	if err == nil {
		return nil
	}
	return invalidParams(err.Error(), nil)
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

type AmountResult struct {
	Amount string `json:"amount"`
}

type OKResult struct {
	OK bool `json:"ok"`
}

var okResult = OKResult{OK: true}

type ReserveConfigurationResult struct {
	LTV                        uint64 `json:"ltv"`
	LiquidationThreshold       uint64 `json:"liquidationThreshold"`
	LiquidationBonus           uint64 `json:"liquidationBonus"`
	Decimals                   uint8  `json:"decimals"`
	Active                     bool   `json:"active"`
	Frozen                     bool   `json:"frozen"`
	Paused                     bool   `json:"paused"`
	BorrowingEnabled           bool   `json:"borrowingEnabled"`
	StableRateBorrowingEnabled bool   `json:"stableRateBorrowingEnabled"`
	FlashLoanEnabled           bool   `json:"flashLoanEnabled"`
	BorrowableInIsolation      bool   `json:"borrowableInIsolation"`
	SiloedBorrowing            bool   `json:"siloedBorrowing"`
	ReserveFactor              uint64 `json:"reserveFactor"`
	BorrowCap                  uint64 `json:"borrowCap"`
	SupplyCap                  uint64 `json:"supplyCap"`
	DebtCeiling                uint64 `json:"debtCeiling"`
	LiquidationProtocolFee     uint64 `json:"liquidationProtocolFee"`
	EModeCategory              uint8  `json:"eModeCategory"`
}

// ReserveDataResult reflects a reserve and its token totals.
type ReserveDataResult struct {
	Asset                     string                     `json:"asset"`
	ID                        uint16                     `json:"id"`
	Configuration             ReserveConfigurationResult `json:"configuration"`
	LiquidityIndex            string                     `json:"liquidityIndex"`
	VariableBorrowIndex       string                     `json:"variableBorrowIndex"`
	CurrentLiquidityRate      string                     `json:"currentLiquidityRate"`
	CurrentVariableBorrowRate string                     `json:"currentVariableBorrowRate"`
	CurrentStableBorrowRate   string                     `json:"currentStableBorrowRate"`
	LastUpdateTimestamp       uint64                     `json:"lastUpdateTimestamp"`
	ATokenAddress             string                     `json:"aTokenAddress"`
	StableDebtTokenAddress    string                     `json:"stableDebtTokenAddress"`
	VariableDebtTokenAddress  string                     `json:"variableDebtTokenAddress"`
	InterestRateStrategy      string                     `json:"interestRateStrategy"`
	AccruedToTreasury         string                     `json:"accruedToTreasury"`
	IsolationModeTotalDebt    uint64                     `json:"isolationModeTotalDebt"`
	AvailableLiquidity        string                     `json:"availableLiquidity"`
	TotalAToken               string                     `json:"totalAToken"`
	TotalStableDebt           string                     `json:"totalStableDebt"`
	TotalVariableDebt         string                     `json:"totalVariableDebt"`
	AverageStableBorrowRate   string                     `json:"averageStableBorrowRate"`
}

func newReserveDataResult(asset common.Address, r *lending.ReserveData, supplies lending.TokenSupplies) ReserveDataResult {
	cfg := r.Configuration
	return ReserveDataResult{
		Asset: asset.Hex(),
		ID:    r.ID,
		Configuration: ReserveConfigurationResult{
			LTV:                        cfg.LTV,
			LiquidationThreshold:       cfg.LiquidationThreshold,
			LiquidationBonus:           cfg.LiquidationBonus,
			Decimals:                   cfg.Decimals,
			Active:                     cfg.Active,
			Frozen:                     cfg.Frozen,
			Paused:                     cfg.Paused,
			BorrowingEnabled:           cfg.BorrowingEnabled,
			StableRateBorrowingEnabled: cfg.StableRateBorrowingEnabled,
			FlashLoanEnabled:           cfg.FlashLoanEnabled,
			BorrowableInIsolation:      cfg.BorrowableInIsolation,
			SiloedBorrowing:            cfg.SiloedBorrowing,
			ReserveFactor:              cfg.ReserveFactor,
			BorrowCap:                  cfg.BorrowCap,
			SupplyCap:                  cfg.SupplyCap,
			DebtCeiling:                cfg.DebtCeiling,
			LiquidationProtocolFee:     cfg.LiquidationProtocolFee,
			EModeCategory:              cfg.EModeCategory,
		},
		LiquidityIndex:            amountString(r.LiquidityIndex),
		VariableBorrowIndex:       amountString(r.VariableBorrowIndex),
		CurrentLiquidityRate:      amountString(r.CurrentLiquidityRate),
		CurrentVariableBorrowRate: amountString(r.CurrentVariableBorrowRate),
		CurrentStableBorrowRate:   amountString(r.CurrentStableBorrowRate),
		LastUpdateTimestamp:       r.LastUpdateTimestamp,
		ATokenAddress:             r.ATokenAddress.Hex(),
		StableDebtTokenAddress:    r.StableDebtAddress.Hex(),
		VariableDebtTokenAddress:  r.VariableDebtAddress.Hex(),
		InterestRateStrategy:      r.InterestRateStrategy,
		AccruedToTreasury:         amountString(r.AccruedToTreasury),
		IsolationModeTotalDebt:    r.IsolationModeTotalDebt,
		AvailableLiquidity:        amountString(supplies.AvailableLiquidity),
		TotalAToken:               amountString(supplies.ATokenTotal),
		TotalStableDebt:           amountString(supplies.StableDebtTotal),
		TotalVariableDebt:         amountString(supplies.VariableDebtTotal),
		AverageStableBorrowRate:   amountString(supplies.AverageStableRate),
	}
}

// AccountDataResult is a user's aggregate position in base currency.
type AccountDataResult struct {
	TotalCollateralBase         string `json:"totalCollateralBase"`
	TotalDebtBase               string `json:"totalDebtBase"`
	AvailableBorrowsBase        string `json:"availableBorrowsBase"`
	CurrentLiquidationThreshold uint64 `json:"currentLiquidationThreshold"`
	LTV                         uint64 `json:"ltv"`
	HealthFactor                string `json:"healthFactor"`
	EModeCategory               uint8  `json:"eModeCategory"`
}

type UserReserveDataResult struct {
	Asset                    string `json:"asset"`
	CurrentATokenBalance     string `json:"currentATokenBalance"`
	ScaledATokenBalance      string `json:"scaledATokenBalance"`
	CurrentStableDebt        string `json:"currentStableDebt"`
	PrincipalStableDebt      string `json:"principalStableDebt"`
	CurrentVariableDebt      string `json:"currentVariableDebt"`
	ScaledVariableDebt       string `json:"scaledVariableDebt"`
	StableBorrowRate         string `json:"stableBorrowRate"`
	StableRateLastUpdated    uint64 `json:"stableRateLastUpdated"`
	UsageAsCollateralEnabled bool   `json:"usageAsCollateralEnabled"`
}

type LiquidationResult struct {
	DebtRepaid       string `json:"debtRepaid"`
	CollateralSeized string `json:"collateralSeized"`
	ProtocolFee      string `json:"protocolFee"`
	ReceivedAToken   bool   `json:"receivedAToken"`
}

type EModeCategoryResult struct {
	ID                   uint8  `json:"id"`
	LTV                  uint16 `json:"ltv"`
	LiquidationThreshold uint16 `json:"liquidationThreshold"`
	LiquidationBonus     uint16 `json:"liquidationBonus"`
	PriceSource          string `json:"priceSource,omitempty"`
	Label                string `json:"label"`
}

type SettingsResult struct {
	Pool                           string `json:"pool"`
	Treasury                       string `json:"treasury"`
	FlashLoanPremiumTotal          uint64 `json:"flashLoanPremiumTotal"`
	FlashLoanPremiumToProtocol     uint64 `json:"flashLoanPremiumToProtocol"`
	MaxStableRateBorrowSizePercent uint64 `json:"maxStableRateBorrowSizePercent"`
}

// EventRecordResult is one journaled pool event.
type EventRecordResult struct {
	ID         uint64            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt int64             `json:"recordedAt"`
}
