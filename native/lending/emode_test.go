package lending

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"lendcore/core/events"
)

var gov = common.HexToAddress("0x000000000000000000000000000000000000900f")

func stablecoins() EModeCategory {
	return EModeCategory{ID: 1, LTV: 9700, LiquidationThreshold: 9750, LiquidationBonus: 10100, Label: "stablecoins"}
}

func TestEModeRaisesBorrowingPower(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	require.NoError(f.pool.SetEModeCategory(admin, stablecoins()))
	require.NoError(f.pool.SetAssetEModeCategory(admin, dai, 1))
	require.NoError(f.pool.SetAssetEModeCategory(admin, usdc, 1))

	f.supply(t, dai, alice, units(t, "5000", 18))
	f.supply(t, weth, alice, units(t, "10", 18))
	f.supply(t, usdc, bob, units(t, "1000", 6))

	err := f.pool.Borrow(bob, dai, units(t, "960", 18), RateModeVariable, 0, bob)
	require.ErrorIs(err, ErrHealthFactorLowerThanLiquidationThreshold)

	require.NoError(f.pool.SetUserEMode(bob, 1))
	require.Equal(uint8(1), f.pool.UserEMode(bob))
	require.Len(f.recorder.OfType(events.TypeLendingUserEModeSet), 1)
	require.NoError(f.pool.Borrow(bob, dai, units(t, "960", 18), RateModeVariable, 0, bob))

	data, err := f.pool.UserAccountData(bob)
	require.NoError(err)
	require.Equal(uint64(9700), data.LTV)
	require.Equal(uint64(9750), data.CurrentLiquidationThreshold)

	err = f.pool.Borrow(bob, weth, units(t, "0.001", 18), RateModeVariable, 0, bob)
	require.ErrorIs(err, ErrInconsistentEModeCategory)

	// Leaving the category would drop the threshold back to 80%.
	require.ErrorIs(f.pool.SetUserEMode(bob, 0), ErrHealthFactorLowerThanLiquidationThreshold)
	require.Equal(uint8(1), f.pool.UserEMode(bob))
}

func TestEModeRequiresBorrowsInCategory(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	require.NoError(f.pool.SetEModeCategory(admin, stablecoins()))
	require.NoError(f.pool.SetAssetEModeCategory(admin, dai, 1))

	f.supply(t, weth, alice, units(t, "10", 18))
	f.supply(t, dai, bob, units(t, "10000", 18))
	require.NoError(f.pool.Borrow(bob, weth, units(t, "1", 18), RateModeVariable, 0, bob))

	require.ErrorIs(f.pool.SetUserEMode(bob, 1), ErrInconsistentEModeCategory)
	require.ErrorIs(f.pool.SetUserEMode(bob, 7), ErrInconsistentEModeCategory)
}

func TestEModeCategoryValidation(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)

	low := stablecoins()
	low.LiquidationThreshold = 8000
	low.LTV = 7900
	require.NoError(f.pool.SetEModeCategory(admin, low))
	// dai's 80% threshold is not below the category's.
	require.ErrorIs(f.pool.SetAssetEModeCategory(admin, dai, 1), ErrInvalidEModeCategoryAssignment)

	require.NoError(f.pool.SetEModeCategory(admin, stablecoins()))
	require.NoError(f.pool.SetAssetEModeCategory(admin, dai, 1))
	require.ErrorIs(f.pool.SetEModeCategory(admin, low), ErrInvalidEModeCategoryParams)

	zero := stablecoins()
	zero.ID = 0
	require.ErrorIs(f.pool.SetEModeCategory(admin, zero), ErrInvalidEModeCategory)
	greedy := stablecoins()
	greedy.LiquidationBonus = 10500
	require.ErrorIs(f.pool.SetEModeCategory(admin, greedy), ErrInvalidEModeCategoryParams)
	require.ErrorIs(f.pool.SetEModeCategory(bob, stablecoins()), ErrCallerNotRiskOrPoolAdmin)

	c, ok := f.pool.EModeCategory(1)
	require.True(ok)
	require.Equal(stablecoins(), c)
}

func listGov(t *testing.T, f *fixture) {
	t.Helper()
	require := require.New(t)
	f.list(t, gov, dollars(10), reserveParams{decimals: 18, ltv: 5000, threshold: 6000, bonus: 11000})
	require.NoError(f.pool.SetDebtCeiling(admin, gov, 100_000))
	require.NoError(f.pool.SetBorrowableInIsolation(admin, dai, true))
}

func TestIsolationModeDebtCeiling(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	listGov(t, f)
	f.supply(t, dai, alice, units(t, "5000", 18))
	f.supply(t, usdc, alice, units(t, "5000", 6))
	f.supply(t, gov, bob, units(t, "1000", 18))
	require.True(f.pool.UserConfiguration(bob).IsUsingAsCollateral(f.reserve(t, gov).ID))

	require.NoError(f.pool.Borrow(bob, dai, units(t, "500", 18), RateModeVariable, 0, bob))
	require.Equal(uint64(50_000), f.reserve(t, gov).IsolationModeTotalDebt)

	err := f.pool.Borrow(bob, dai, units(t, "600", 18), RateModeVariable, 0, bob)
	require.ErrorIs(err, ErrDebtCeilingExceeded)
	err = f.pool.Borrow(bob, usdc, units(t, "10", 6), RateModeVariable, 0, bob)
	require.ErrorIs(err, ErrAssetNotBorrowableInIsolation)

	f.clock.Advance(12)
	require.NoError(f.pool.Approve(bob, dai, f.pool.Address(), MaxUint()))
	_, err = f.pool.Repay(bob, dai, units(t, "200", 18), RateModeVariable, bob)
	require.NoError(err)
	require.Equal(uint64(30_000), f.reserve(t, gov).IsolationModeTotalDebt)

	// Other supplies do not join an isolated position as collateral.
	f.supply(t, weth, bob, units(t, "1", 18))
	require.False(f.pool.UserConfiguration(bob).IsUsingAsCollateral(f.reserve(t, weth).ID))
	require.ErrorIs(f.pool.SetUserUseReserveAsCollateral(bob, weth, true), ErrUserInIsolationModeOrLTVZero)
}

func TestDebtCeilingNeedsEmptyReserve(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "10", 18))
	require.ErrorIs(f.pool.SetDebtCeiling(admin, dai, 1000), ErrReserveLiquidityNotZero)
}
