package lending

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func fullConfiguration() ReserveConfiguration {
	return ReserveConfiguration{
		LTV:                        MaxValidLTV,
		LiquidationThreshold:       MaxValidLiquidationThreshold,
		LiquidationBonus:           MaxValidLiquidationBonus,
		Decimals:                   MaxValidDecimals,
		Active:                     true,
		Frozen:                     true,
		BorrowingEnabled:           true,
		StableRateBorrowingEnabled: true,
		Paused:                     true,
		BorrowableInIsolation:      true,
		SiloedBorrowing:            true,
		FlashLoanEnabled:           true,
		ReserveFactor:              MaxValidReserveFactor,
		BorrowCap:                  MaxValidBorrowCap,
		SupplyCap:                  MaxValidSupplyCap,
		LiquidationProtocolFee:     MaxValidLiquidationProtocolFee,
		EModeCategory:              MaxValidEModeCategory,
		DebtCeiling:                MaxValidDebtCeiling,
	}
}

func TestReserveConfigurationPacking(t *testing.T) {
	cases := map[string]ReserveConfiguration{
		"zero": {},
		"full": fullConfiguration(),
		"typical": {
			LTV: 7500, LiquidationThreshold: 8000, LiquidationBonus: 10500, Decimals: 6,
			Active: true, BorrowingEnabled: true, ReserveFactor: 1000,
			BorrowCap: 2_000_000, SupplyCap: 5_000_000, EModeCategory: 1,
		},
		"flags only": {Frozen: true, SiloedBorrowing: true},
	}
	for name, cfg := range cases {
		got := UnpackReserveConfiguration(cfg.Pack())
		if got != cfg {
			t.Fatalf("%s: round trip mismatch: got %+v want %+v", name, got, cfg)
		}
	}
}

func TestReserveConfigurationFieldsDoNotOverlap(t *testing.T) {
	full := fullConfiguration()
	word := full.Pack()
	// Bits 176..211 are unused.
	reserved := new(uint256.Int).Rsh(word, 176)
	reserved.And(reserved, new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 36), uint256.NewInt(1)))
	if !reserved.IsZero() {
		t.Fatalf("reserved bits set: %s", reserved.Hex())
	}

	only := ReserveConfiguration{DebtCeiling: MaxValidDebtCeiling}
	if got := UnpackReserveConfiguration(only.Pack()); got != only {
		t.Fatalf("debt ceiling leaked into other fields: %+v", got)
	}
	if got := UnpackReserveConfiguration(nil); got != (ReserveConfiguration{}) {
		t.Fatalf("nil word should decode to zero configuration, got %+v", got)
	}
}

func TestReserveConfigurationValidate(t *testing.T) {
	valid := ReserveConfiguration{LTV: 7500, LiquidationThreshold: 8000, LiquidationBonus: 10500}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid configuration rejected: %v", err)
	}
	cases := []struct {
		name string
		edit func(*ReserveConfiguration)
		want error
	}{
		{"ltv above threshold", func(c *ReserveConfiguration) { c.LTV = 8001 }, ErrInvalidReserveParams},
		{"bonus without premium", func(c *ReserveConfiguration) { c.LiquidationBonus = 10000 }, ErrInvalidReserveParams},
		{"bonus exceeds collateral", func(c *ReserveConfiguration) { c.LiquidationThreshold = 9600 }, ErrInvalidReserveParams},
		{"bonus without threshold", func(c *ReserveConfiguration) { c.LTV, c.LiquidationThreshold = 0, 0 }, ErrInvalidReserveParams},
		{"reserve factor", func(c *ReserveConfiguration) { c.ReserveFactor = 10001 }, ErrInvalidReserveFactor},
		{"protocol fee", func(c *ReserveConfiguration) { c.LiquidationProtocolFee = 10001 }, ErrInvalidLiquidationProtocolFee},
		{"supply cap", func(c *ReserveConfiguration) { c.SupplyCap = MaxValidSupplyCap + 1 }, ErrInvalidSupplyCap},
		{"debt ceiling", func(c *ReserveConfiguration) { c.DebtCeiling = MaxValidDebtCeiling + 1 }, ErrInvalidDebtCeiling},
		{"ltv range", func(c *ReserveConfiguration) { c.LTV = MaxValidLTV + 1 }, ErrInvalidLTV},
	}
	for _, tc := range cases {
		cfg := valid
		tc.edit(&cfg)
		if err := cfg.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestUserConfigurationBits(t *testing.T) {
	var u UserConfiguration
	if !u.IsEmpty() || u.IsBorrowingAny() || u.IsUsingAsCollateralAny() {
		t.Fatalf("zero configuration should be empty")
	}
	if _, ok := u.FirstBorrowed(); ok {
		t.Fatalf("empty configuration reports a borrow")
	}

	u.SetUsingAsCollateral(3, true)
	if !u.IsUsingAsCollateral(3) || u.IsBorrowing(3) || u.IsBorrowingAny() {
		t.Fatalf("collateral bit leaked into borrowing: %s", u.Data.Hex())
	}
	if !u.IsUsingAsCollateralOne() {
		t.Fatalf("expected a single collateral")
	}
	if id, ok := u.FirstCollateral(); !ok || id != 3 {
		t.Fatalf("first collateral = %d, %v", id, ok)
	}

	u.SetBorrowing(MaxReservesCount-1, true)
	u.SetBorrowing(5, true)
	if u.IsBorrowingOne() {
		t.Fatalf("two borrows reported as one")
	}
	if id, ok := u.FirstBorrowed(); !ok || id != 5 {
		t.Fatalf("first borrowed = %d, %v", id, ok)
	}
	if !u.IsBorrowing(MaxReservesCount - 1) {
		t.Fatalf("highest reserve id not tracked")
	}

	u.SetBorrowing(5, false)
	if !u.IsBorrowingOne() || !u.IsUsingAsCollateralOrBorrowing(3) || u.IsUsingAsCollateralOrBorrowing(5) {
		t.Fatalf("clearing a borrow changed other bits: %s", u.Data.Hex())
	}

	clone := u.Clone()
	clone.SetUsingAsCollateral(3, false)
	if !u.IsUsingAsCollateral(3) {
		t.Fatalf("clone shares storage with original")
	}
}
