package lending

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"lendcore/core/events"
	"lendcore/native/lending/wadray"
)

func lastMint(t testing.TB, rec *events.Recorder, token common.Address) events.LendingTokenMint {
	t.Helper()
	var found *events.LendingTokenMint
	for _, e := range rec.OfType(events.TypeLendingTokenMint) {
		if m := e.(events.LendingTokenMint); m.Token == token {
			found = &m
		}
	}
	require.NotNil(t, found, "no mint of %s", token.Hex())
	return *found
}

func TestSecondBorrowReportsAccruedInterest(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	first, second := units(t, "100", 18), units(t, "100", 18)

	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, weth, bob, units(t, "1", 18))
	require.NoError(f.pool.Borrow(bob, dai, first, RateModeVariable, 0, bob))
	debtToken := f.reserve(t, dai).VariableDebtAddress
	requireEq(t, first, lastMint(t, f.recorder, debtToken).Value)

	f.clock.Advance(day)
	f.recorder.Reset()
	require.NoError(f.pool.Borrow(bob, dai, second, RateModeVariable, 0, bob))

	r := f.reserve(t, dai)
	scaled, err := wadray.RayDiv(first, wadray.RAY)
	require.NoError(err)
	owed, err := wadray.RayMul(scaled, r.VariableBorrowIndex)
	require.NoError(err)
	interest := new(uint256.Int).Sub(owed, first)
	require.True(interest.Sign() > 0)

	mint := lastMint(t, f.recorder, debtToken)
	requireEq(t, interest, mint.BalanceIncrease)
	requireEq(t, new(uint256.Int).Add(interest, second), mint.Value)
	requireEq(t, r.VariableBorrowIndex, mint.Index)

	// The balance is rescaled from the summed scaled amount, so it may differ
	// from owed plus second by a rounding unit.
	_, variable := f.debt(t, dai, bob)
	requireNear(t, new(uint256.Int).Add(owed, second), variable, 1)
	require.Len(f.recorder.OfType(events.TypeLendingBorrow), 1)
}

func TestBorrowCap(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	require.NoError(f.pool.SetBorrowCap(admin, dai, 10))
	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, weth, bob, units(t, "1", 18))

	err := f.pool.Borrow(bob, dai, units(t, "10.000000000000000001", 18), RateModeVariable, 0, bob)
	require.ErrorIs(err, ErrBorrowCapExceeded)
	require.NoError(f.pool.Borrow(bob, dai, units(t, "10", 18), RateModeVariable, 0, bob))
	err = f.pool.Borrow(bob, dai, uint256.NewInt(1), RateModeStable, 0, bob)
	require.ErrorIs(err, ErrBorrowCapExceeded)
}

func TestBorrowRejectsBadRequests(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "1000", 18))

	require.ErrorIs(f.pool.Borrow(bob, dai, units(t, "1", 18), RateModeVariable, 0, bob), ErrCollateralBalanceIsZero)
	f.supply(t, weth, bob, units(t, "1", 18))
	require.ErrorIs(f.pool.Borrow(bob, dai, new(uint256.Int), RateModeVariable, 0, bob), ErrInvalidAmount)
	require.ErrorIs(f.pool.Borrow(bob, dai, units(t, "1", 18), RateModeNone, 0, bob), ErrInvalidInterestRateModeSelected)
	require.ErrorIs(f.pool.Borrow(bob, dai, units(t, "1", 18), InterestRateMode(3), 0, bob), ErrInvalidInterestRateModeSelected)

	require.NoError(f.pool.SetReserveStableRateBorrowing(admin, dai, false))
	require.NoError(f.pool.SetReserveBorrowing(admin, dai, false))
	require.ErrorIs(f.pool.Borrow(bob, dai, units(t, "1", 18), RateModeVariable, 0, bob), ErrBorrowingNotEnabled)
}

func TestBorrowHealthFactorBoundary(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, usdc, bob, units(t, "1000", 6))

	// usdc has ltv equal to its liquidation threshold, so borrowing the whole
	// allowance lands on a health factor of exactly one.
	err := f.pool.Borrow(bob, dai, units(t, "801", 18), RateModeVariable, 0, bob)
	require.ErrorIs(err, ErrHealthFactorLowerThanLiquidationThreshold)
	require.NoError(f.pool.Borrow(bob, dai, units(t, "800", 18), RateModeVariable, 0, bob))

	data, err := f.pool.UserAccountData(bob)
	require.NoError(err)
	requireEq(t, wadray.RAY, data.HealthFactor)
	requireEq(t, dollars(1000), data.TotalCollateralBase)
	requireEq(t, dollars(800), data.TotalDebtBase)
	require.True(data.AvailableBorrowsBase.IsZero())
	require.Equal(uint64(8000), data.LTV)
	require.Equal(uint64(8000), data.CurrentLiquidationThreshold)
}

func TestBorrowNeedsLTVCoverage(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "5000", 18))
	f.supply(t, weth, bob, units(t, "1", 18))

	// 1620 keeps the health factor above one at an 82.5% threshold but needs
	// more than the 80% ltv allows.
	err := f.pool.Borrow(bob, dai, units(t, "1620", 18), RateModeVariable, 0, bob)
	require.ErrorIs(err, ErrCollateralCannotCoverNewBorrow)
	require.NoError(f.pool.Borrow(bob, dai, units(t, "1600", 18), RateModeVariable, 0, bob))
}

func TestSameBlockRepayGuard(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, weth, bob, units(t, "1", 18))
	require.NoError(f.pool.Approve(bob, dai, f.pool.Address(), MaxUint()))

	require.NoError(f.pool.Borrow(bob, dai, units(t, "100", 18), RateModeVariable, 0, bob))
	_, err := f.pool.Repay(bob, dai, units(t, "10", 18), RateModeVariable, bob)
	require.ErrorIs(err, ErrSameBlockBorrowRepay)

	f.clock.Advance(12)
	require.NoError(f.pool.Borrow(bob, dai, units(t, "50", 18), RateModeStable, 0, bob))
	_, err = f.pool.Repay(bob, dai, units(t, "10", 18), RateModeStable, bob)
	require.ErrorIs(err, ErrSameBlockBorrowRepay)

	// The variable loan was minted a block earlier.
	repaid, err := f.pool.Repay(bob, dai, units(t, "10", 18), RateModeVariable, bob)
	require.NoError(err)
	requireEq(t, units(t, "10", 18), repaid)
}

func TestSameBlockRepayGuardAtTimestampZero(t *testing.T) {
	require := require.New(t)
	f := newFixtureAt(t, 0)
	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, weth, bob, units(t, "1", 18))
	require.NoError(f.pool.Approve(bob, dai, f.pool.Address(), MaxUint()))

	require.NoError(f.pool.Borrow(bob, dai, units(t, "100", 18), RateModeVariable, 0, bob))
	_, err := f.pool.Repay(bob, dai, units(t, "10", 18), RateModeVariable, bob)
	require.ErrorIs(err, ErrSameBlockBorrowRepay)
	require.NoError(f.pool.Borrow(bob, dai, units(t, "10", 18), RateModeStable, 0, bob))
	_, err = f.pool.Repay(bob, dai, units(t, "1", 18), RateModeStable, bob)
	require.ErrorIs(err, ErrSameBlockBorrowRepay)

	f.clock.Advance(1)
	_, err = f.pool.Repay(bob, dai, units(t, "10", 18), RateModeVariable, bob)
	require.NoError(err)
}

func TestRepayInFull(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, weth, bob, units(t, "1", 18))
	f.fund(t, dai, bob, units(t, "10", 18))
	require.NoError(f.pool.Borrow(bob, dai, units(t, "100", 18), RateModeVariable, 0, bob))
	id := f.reserve(t, dai).ID

	f.clock.Advance(30 * day)
	_, owed := f.debt(t, dai, bob)

	_, err := f.pool.Repay(carol, dai, MaxUint(), RateModeVariable, bob)
	require.ErrorIs(err, ErrNoExplicitAmountToRepayOnBehalf)
	_, err = f.pool.Repay(bob, dai, MaxUint(), RateModeStable, bob)
	require.ErrorIs(err, ErrNoDebtOfSelectedType)

	repaid, err := f.pool.Repay(bob, dai, MaxUint(), RateModeVariable, bob)
	require.NoError(err)
	requireEq(t, owed, repaid)
	_, variable := f.debt(t, dai, bob)
	require.True(variable.IsZero())
	require.False(f.pool.UserConfiguration(bob).IsBorrowing(id))
}

func TestRepayWithATokens(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, weth, bob, units(t, "1", 18))
	require.NoError(f.pool.Borrow(bob, dai, units(t, "100", 18), RateModeVariable, 0, bob))
	require.NoError(f.pool.Approve(bob, dai, f.pool.Address(), MaxUint()))
	require.NoError(f.pool.Supply(bob, dai, units(t, "100", 18), bob, 0))

	f.clock.Advance(12)
	repaid, err := f.pool.RepayWithATokens(bob, dai, units(t, "40", 18), RateModeVariable)
	require.NoError(err)
	requireEq(t, units(t, "40", 18), repaid)
	require.True(f.aBalance(t, dai, bob).Lt(units(t, "61", 18)))
	_, variable := f.debt(t, dai, bob)
	require.True(variable.Lt(units(t, "61", 18)))
	require.True(variable.Gt(units(t, "60", 18)))
}

func TestCreditDelegation(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, weth, bob, units(t, "1", 18))

	err := f.pool.Borrow(carol, dai, units(t, "10", 18), RateModeVariable, 0, bob)
	require.ErrorIs(err, ErrBorrowAllowanceNotEnough)

	require.NoError(f.pool.ApproveDelegation(bob, dai, RateModeVariable, carol, units(t, "100", 18)))
	require.NoError(f.pool.Borrow(carol, dai, units(t, "60", 18), RateModeVariable, 0, bob))
	requireEq(t, units(t, "60", 18), f.pool.BalanceOf(dai, carol))
	_, variable := f.debt(t, dai, bob)
	requireEq(t, units(t, "60", 18), variable)
	_, carolDebt := f.debt(t, dai, carol)
	require.True(carolDebt.IsZero())

	left, err := f.pool.BorrowAllowance(dai, RateModeVariable, bob, carol)
	require.NoError(err)
	requireEq(t, units(t, "40", 18), left)
	stableLeft, err := f.pool.BorrowAllowance(dai, RateModeStable, bob, carol)
	require.NoError(err)
	require.True(stableLeft.IsZero())

	err = f.pool.Borrow(carol, dai, units(t, "50", 18), RateModeVariable, 0, bob)
	require.ErrorIs(err, ErrBorrowAllowanceNotEnough)
	require.ErrorIs(f.pool.TransferDebtToken(bob, dai, RateModeVariable, carol, units(t, "1", 18)), ErrOperationNotSupported)
}

func TestSwapBorrowRateMode(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, weth, bob, units(t, "1", 18))
	require.NoError(f.pool.Borrow(bob, dai, units(t, "100", 18), RateModeVariable, 0, bob))

	require.ErrorIs(f.pool.SwapBorrowRateMode(bob, dai, RateModeStable), ErrNoOutstandingStableDebt)

	f.clock.Advance(day)
	_, before := f.debt(t, dai, bob)
	require.NoError(f.pool.SwapBorrowRateMode(bob, dai, RateModeVariable))
	stable, variable := f.debt(t, dai, bob)
	require.True(variable.IsZero())
	requireEq(t, before, stable)

	data, err := f.pool.UserReserveData(dai, bob)
	require.NoError(err)
	require.True(data.StableBorrowRate.Sign() > 0)

	f.clock.Advance(day)
	require.NoError(f.pool.SwapBorrowRateMode(bob, dai, RateModeStable))
	stable, variable = f.debt(t, dai, bob)
	require.True(stable.IsZero())
	require.True(variable.Sign() > 0)
	require.Len(f.recorder.OfType(events.TypeLendingSwapBorrowRateMode), 2)
}

func TestRebalanceNeedsConditions(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, weth, bob, units(t, "1", 18))

	require.ErrorIs(f.pool.RebalanceStableBorrowRate(carol, dai, bob), ErrNoOutstandingStableDebt)
	require.NoError(f.pool.Borrow(bob, dai, units(t, "100", 18), RateModeStable, 0, bob))
	// Utilization is far below the rebalance threshold.
	require.ErrorIs(f.pool.RebalanceStableBorrowRate(carol, dai, bob), ErrInterestRateRebalanceConditionsNotMet)
}

func TestStableBorrowRules(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, weth, bob, units(t, "10", 18))

	// A stable loan is capped at a quarter of the available liquidity.
	err := f.pool.Borrow(bob, dai, units(t, "250.000000000000000001", 18), RateModeStable, 0, bob)
	require.ErrorIs(err, ErrAmountBiggerThanMaxLoanSizeStable)
	require.NoError(f.pool.Borrow(bob, dai, units(t, "250", 18), RateModeStable, 0, bob))

	// Borrowing stable against the same asset as collateral is refused when
	// the loan does not exceed the collateral.
	f.supply(t, weth, alice, units(t, "100", 18))
	err = f.pool.Borrow(bob, weth, units(t, "1", 18), RateModeStable, 0, bob)
	require.ErrorIs(err, ErrCollateralSameAsBorrowingCurrency)
	require.NoError(f.pool.Borrow(bob, weth, units(t, "1", 18), RateModeVariable, 0, bob))
}

func TestStableDebtAccrues(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, weth, bob, units(t, "1", 18))
	require.NoError(f.pool.Borrow(bob, dai, units(t, "100", 18), RateModeStable, 0, bob))

	data, err := f.pool.UserReserveData(dai, bob)
	require.NoError(err)
	requireEq(t, units(t, "100", 18), data.PrincipalStableDebt)
	require.Equal(f.clock.Now().Timestamp, data.StableRateLastUpdated)

	f.clock.Advance(365 * day)
	stable, _ := f.debt(t, dai, bob)
	expected, err := wadray.CompoundedInterest(data.StableBorrowRate, data.StableRateLastUpdated, f.clock.Now().Timestamp)
	require.NoError(err)
	expected, err = wadray.RayMul(units(t, "100", 18), expected)
	require.NoError(err)
	requireEq(t, expected, stable)

	supplies, err := f.pool.TokenSupplies(dai)
	require.NoError(err)
	requireEq(t, data.StableBorrowRate, supplies.AverageStableRate)
	requireEq(t, stable, supplies.StableDebtTotal)
}

func TestSiloedBorrowing(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	require.NoError(f.pool.SetSiloedBorrowing(admin, usdc, true))
	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, usdc, alice, units(t, "1000", 6))
	f.supply(t, weth, bob, units(t, "1", 18))

	require.NoError(f.pool.Borrow(bob, usdc, units(t, "100", 6), RateModeVariable, 0, bob))
	require.ErrorIs(f.pool.Borrow(bob, dai, units(t, "100", 18), RateModeVariable, 0, bob), ErrSiloedBorrowingViolation)
	require.NoError(f.pool.Borrow(bob, usdc, units(t, "100", 6), RateModeVariable, 0, bob))

	f.supply(t, weth, carol, units(t, "1", 18))
	require.NoError(f.pool.Borrow(carol, dai, units(t, "100", 18), RateModeVariable, 0, carol))
	require.ErrorIs(f.pool.Borrow(carol, usdc, units(t, "100", 6), RateModeVariable, 0, carol), ErrSiloedBorrowingViolation)
}
