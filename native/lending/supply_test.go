package lending

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"lendcore/core/events"
	"lendcore/native/lending/wadray"
)

const day = 24 * 60 * 60

func TestSupplyWithdrawRoundTrip(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	amount := units(t, "100", 18)
	f.supply(t, dai, alice, amount)

	requireEq(t, amount, f.aBalance(t, dai, alice))
	require.True(f.pool.BalanceOf(dai, alice).IsZero())
	require.True(f.pool.UserConfiguration(alice).IsUsingAsCollateral(f.reserve(t, dai).ID))
	require.Len(f.recorder.OfType(events.TypeLendingSupply), 1)

	withdrawn, err := f.pool.Withdraw(alice, dai, MaxUint(), alice)
	require.NoError(err)
	requireEq(t, amount, withdrawn)
	requireEq(t, amount, f.pool.BalanceOf(dai, alice))
	require.True(f.aBalance(t, dai, alice).IsZero())
	require.False(f.pool.UserConfiguration(alice).IsUsingAsCollateralAny())
}

func TestWithdrawMoreThanBalance(t *testing.T) {
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "100", 18))
	_, err := f.pool.Withdraw(alice, dai, units(t, "100.000000000000000001", 18), alice)
	require.ErrorIs(t, err, ErrNotEnoughAvailableUserBalance)
	_, err = f.pool.Withdraw(alice, dai, new(uint256.Int), alice)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSupplyOnBehalfOfCreditsBeneficiary(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	amount := units(t, "5", 18)
	f.fund(t, dai, alice, amount)
	require.NoError(f.pool.Supply(alice, dai, amount, carol, 0))
	requireEq(t, amount, f.aBalance(t, dai, carol))
	require.True(f.aBalance(t, dai, alice).IsZero())
	require.True(f.pool.UserConfiguration(carol).IsUsingAsCollateralAny())
}

func TestSupplyCap(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	require.NoError(f.pool.SetSupplyCap(admin, dai, 1000))
	f.fund(t, dai, alice, units(t, "2000", 18))

	require.NoError(f.pool.Supply(alice, dai, units(t, "1000", 18), alice, 0))
	err := f.pool.Supply(alice, dai, uint256.NewInt(1), alice, 0)
	require.ErrorIs(err, ErrSupplyCapExceeded)

	require.NoError(f.pool.SetSupplyCap(admin, dai, 0))
	require.NoError(f.pool.Supply(alice, dai, uint256.NewInt(1), alice, 0))
}

func TestFrozenReserveRejectsSupply(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "10", 18))
	require.NoError(f.pool.SetReserveFreeze(admin, dai, true))

	f.fund(t, dai, alice, units(t, "1", 18))
	require.ErrorIs(f.pool.Supply(alice, dai, units(t, "1", 18), alice, 0), ErrReserveFrozen)
	_, err := f.pool.Withdraw(alice, dai, units(t, "10", 18), alice)
	require.NoError(err)
}

func TestInterestAccruesToSuppliers(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, weth, bob, units(t, "1", 18))
	require.NoError(f.pool.Borrow(bob, dai, units(t, "100", 18), RateModeVariable, 0, bob))

	r := f.reserve(t, dai)
	require.True(r.CurrentLiquidityRate.Sign() > 0)
	require.True(r.CurrentVariableBorrowRate.Gt(r.CurrentLiquidityRate))

	f.clock.Advance(30 * day)
	supplied := f.aBalance(t, dai, alice)
	_, owed := f.debt(t, dai, bob)
	require.True(supplied.Gt(units(t, "1000", 18)))
	require.True(owed.Gt(units(t, "100", 18)))

	// With a zero reserve factor suppliers earn everything borrowers owe,
	// minus the rounding of the two indexes.
	earned := new(uint256.Int).Sub(supplied, units(t, "1000", 18))
	interest := new(uint256.Int).Sub(owed, units(t, "100", 18))
	require.False(earned.Gt(interest))
}

func TestIndexesNeverDecrease(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, weth, bob, units(t, "10", 18))
	f.fund(t, dai, bob, units(t, "1000", 18))

	liquidity, debt := f.reserve(t, dai).LiquidityIndex, f.reserve(t, dai).VariableBorrowIndex
	steps := []func() error{
		func() error { return f.pool.Borrow(bob, dai, units(t, "400", 18), RateModeVariable, 0, bob) },
		func() error { return f.pool.Borrow(bob, dai, units(t, "100", 18), RateModeStable, 0, bob) },
		func() error {
			_, err := f.pool.Repay(bob, dai, units(t, "250", 18), RateModeVariable, bob)
			return err
		},
		func() error { return f.pool.Supply(bob, dai, units(t, "50", 18), bob, 0) },
		func() error {
			_, err := f.pool.Withdraw(alice, dai, units(t, "200", 18), alice)
			return err
		},
		func() error {
			_, err := f.pool.Repay(bob, dai, MaxUint(), RateModeStable, bob)
			return err
		},
	}
	for i, step := range steps {
		f.clock.Advance(7 * day)
		require.NoErrorf(step(), "step %d", i)
		r := f.reserve(t, dai)
		require.Falsef(r.LiquidityIndex.Lt(liquidity), "liquidity index went down at step %d", i)
		require.Falsef(r.VariableBorrowIndex.Lt(debt), "borrow index went down at step %d", i)
		require.Equal(f.clock.Now().Timestamp, r.LastUpdateTimestamp)
		liquidity, debt = r.LiquidityIndex, r.VariableBorrowIndex
	}
	require.True(liquidity.Gt(wadray.RAY))
	require.True(debt.Gt(wadray.RAY))
}

func TestUpdateStateIsIdempotentWithinBlock(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, weth, bob, units(t, "1", 18))
	require.NoError(f.pool.Borrow(bob, dai, units(t, "300", 18), RateModeVariable, 0, bob))
	f.clock.Advance(day)

	tx := f.pool.begin()
	r, err := tx.reserve(dai)
	require.NoError(err)
	require.NoError(tx.updateState(r))
	first := r.Clone()
	require.True(first.LiquidityIndex.Gt(wadray.RAY))

	require.NoError(tx.updateState(r))
	require.Equal(first, r)

	income, err := f.pool.NormalizedIncome(dai)
	require.NoError(err)
	requireEq(t, first.LiquidityIndex, income)
	debt, err := f.pool.NormalizedDebt(dai)
	require.NoError(err)
	requireEq(t, first.VariableBorrowIndex, debt)
}

func TestScaledMintBurnRoundTrip(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	tx := f.pool.begin()
	r, err := tx.reserve(dai)
	require.NoError(err)
	token := tx.aToken(r)

	for _, index := range []string{"1", "1.1", "1.000000000000000000000000007", "3.333333333333333333333333333"} {
		idx := ray(t, index)
		amount := units(t, "1000", 18)
		first, err := token.mint(alice, alice, amount, idx)
		require.NoError(err)
		require.True(first)
		require.NoError(token.burn(alice, alice, amount, idx))
		require.Truef(token.scaledBalanceOf(alice).IsZero(), "dust left at index %s", index)
		require.True(token.scaledTotalSupply().IsZero())
	}
}

func TestTreasuryAccrual(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	require.NoError(f.pool.SetReserveFactor(admin, dai, 2000))
	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, weth, bob, units(t, "1", 18))
	require.NoError(f.pool.Borrow(bob, dai, units(t, "500", 18), RateModeVariable, 0, bob))

	f.clock.Advance(90 * day)
	// The treasury share is booked when the reserve is next touched.
	require.NoError(f.pool.MintToTreasury([]common.Address{dai}))
	require.True(f.aBalance(t, dai, treasury).IsZero())
	_, err := f.pool.Withdraw(alice, dai, units(t, "1", 18), alice)
	require.NoError(err)
	require.True(f.reserve(t, dai).AccruedToTreasury.Sign() > 0)

	require.NoError(f.pool.MintToTreasury([]common.Address{dai}))
	require.True(f.aBalance(t, dai, treasury).Sign() > 0)
	require.True(f.reserve(t, dai).AccruedToTreasury.IsZero())
	require.Len(f.recorder.OfType(events.TypeLendingMintedToTreasury), 1)

	// Nothing accrued since: a second mint is a no-op.
	f.recorder.Reset()
	require.NoError(f.pool.MintToTreasury([]common.Address{dai}))
	require.Empty(f.recorder.OfType(events.TypeLendingMintedToTreasury))
}

func TestWithdrawHealthFactorBoundary(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, usdc, bob, units(t, "1000", 6))
	require.NoError(f.pool.Borrow(bob, dai, units(t, "400", 18), RateModeVariable, 0, bob))

	_, err := f.pool.Withdraw(bob, usdc, units(t, "500.000001", 6), bob)
	require.ErrorIs(err, ErrHealthFactorLowerThanLiquidationThreshold)

	// usdc has ltv equal to its threshold: the remaining 500 cover exactly 400
	// of debt at 80%, a health factor of one.
	_, err = f.pool.Withdraw(bob, usdc, units(t, "500", 6), bob)
	require.NoError(err)
	data, err := f.pool.UserAccountData(bob)
	require.NoError(err)
	requireEq(t, wadray.RAY, data.HealthFactor)
}

func TestCollateralToggle(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "1000", 18))
	f.supply(t, weth, bob, units(t, "1", 18))
	f.supply(t, usdc, bob, units(t, "100", 6))
	id := f.reserve(t, usdc).ID

	require.NoError(f.pool.SetUserUseReserveAsCollateral(bob, usdc, false))
	require.False(f.pool.UserConfiguration(bob).IsUsingAsCollateral(id))
	require.NoError(f.pool.SetUserUseReserveAsCollateral(bob, usdc, true))
	require.True(f.pool.UserConfiguration(bob).IsUsingAsCollateral(id))

	err := f.pool.SetUserUseReserveAsCollateral(carol, usdc, true)
	require.ErrorIs(err, ErrUnderlyingBalanceZero)

	// Dropping the weth collateral would leave the loan uncovered.
	require.NoError(f.pool.Borrow(bob, dai, units(t, "1000", 18), RateModeVariable, 0, bob))
	err = f.pool.SetUserUseReserveAsCollateral(bob, weth, false)
	require.ErrorIs(err, ErrHealthFactorLowerThanLiquidationThreshold)
}

func TestATokenTransfer(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.supply(t, dai, alice, units(t, "100", 18))

	require.NoError(f.pool.TransferAToken(alice, dai, carol, units(t, "40", 18)))
	requireEq(t, units(t, "60", 18), f.aBalance(t, dai, alice))
	requireEq(t, units(t, "40", 18), f.aBalance(t, dai, carol))
	require.True(f.pool.UserConfiguration(carol).IsUsingAsCollateral(f.reserve(t, dai).ID))

	err := f.pool.TransferATokenFrom(bob, dai, alice, bob, units(t, "1", 18))
	require.ErrorIs(err, ErrTransferAmountExceedsAllowance)
	require.NoError(f.pool.ApproveAToken(alice, dai, bob, units(t, "10", 18)))
	require.NoError(f.pool.TransferATokenFrom(bob, dai, alice, bob, units(t, "10", 18)))
	allowance, err := f.pool.ATokenAllowance(dai, alice, bob)
	require.NoError(err)
	require.True(allowance.IsZero())

	err = f.pool.TransferAToken(alice, dai, carol, units(t, "51", 18))
	require.ErrorIs(err, ErrTransferAmountExceedsBalance)
}
