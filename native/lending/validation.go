package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/rates"
	"lendcore/native/lending/wadray"
)

// Validation runs before any mutation of the call it guards, except for the
// health factor checks that inspect the position after the mutation. A
// failing check aborts the whole txn.

// liquidationCloseFactorThreshold is the health factor below which a
// position can be liquidated in full.
var liquidationCloseFactorThreshold = uint256.MustFromDecimal("950000000000000000000000000")

const (
	// DefaultLiquidationCloseFactor is the share of debt one liquidation may repay.
	DefaultLiquidationCloseFactor = 5_000
	// MaxLiquidationCloseFactor applies below the close factor threshold.
	MaxLiquidationCloseFactor = 10_000
	// DefaultMaxStableRateBorrowSizePercent caps a stable loan as a share of available liquidity.
	DefaultMaxStableRateBorrowSizePercent = 2_500
)

func requireAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}

func requireActiveNotPaused(cfg ReserveConfiguration) error {
	if !cfg.Active {
		return ErrReserveInactive
	}
	if cfg.Paused {
		return ErrReservePaused
	}
	return nil
}

func requireActiveUsable(cfg ReserveConfiguration) error {
	if err := requireActiveNotPaused(cfg); err != nil {
		return err
	}
	if cfg.Frozen {
		return ErrReserveFrozen
	}
	return nil
}

func unitsOf(limit uint64, decimals uint8) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(limit), wadray.Pow10(decimals))
}

func (t *txn) validateSupply(r *ReserveData, amount *uint256.Int) error {
	if err := requireAmount(amount); err != nil {
		return err
	}
	cfg := r.Configuration
	if err := requireActiveUsable(cfg); err != nil {
		return err
	}
	if cfg.SupplyCap == 0 {
		return nil
	}
	scaled, err := wadray.Add(t.aToken(r).scaledTotalSupply(), wadray.Or(r.AccruedToTreasury))
	if err != nil {
		return err
	}
	total, err := wadray.RayMul(scaled, r.LiquidityIndex)
	if err != nil {
		return err
	}
	if total, err = wadray.Add(total, amount); err != nil {
		return err
	}
	if total.Gt(unitsOf(cfg.SupplyCap, cfg.Decimals)) {
		return ErrSupplyCapExceeded
	}
	return nil
}

func validateWithdraw(r *ReserveData, amount, balance *uint256.Int) error {
	if err := requireAmount(amount); err != nil {
		return err
	}
	if amount.Gt(balance) {
		return ErrNotEnoughAvailableUserBalance
	}
	return requireActiveNotPaused(r.Configuration)
}

type borrowCheck struct {
	asset      common.Address
	reserve    *ReserveData
	user       common.Address
	amount     *uint256.Int
	mode       InterestRateMode
	isolated   bool
	collateral common.Address
	ceiling    uint64
}

func (t *txn) validateBorrow(c borrowCheck) error {
	if err := requireAmount(c.amount); err != nil {
		return err
	}
	r := c.reserve
	cfg := r.Configuration
	if err := requireActiveUsable(cfg); err != nil {
		return err
	}
	if !cfg.BorrowingEnabled {
		return ErrBorrowingNotEnabled
	}
	if c.mode != RateModeStable && c.mode != RateModeVariable {
		return ErrInvalidInterestRateModeSelected
	}

	if cfg.BorrowCap != 0 {
		stable, err := t.stableDebt(r).totalSupply()
		if err != nil {
			return err
		}
		variable, err := t.variableDebt(r).totalSupply(r.VariableBorrowIndex)
		if err != nil {
			return err
		}
		total, err := wadray.Add(stable, variable)
		if err != nil {
			return err
		}
		if total, err = wadray.Add(total, c.amount); err != nil {
			return err
		}
		if total.Gt(unitsOf(cfg.BorrowCap, cfg.Decimals)) {
			return ErrBorrowCapExceeded
		}
	}

	if c.isolated {
		if !cfg.BorrowableInIsolation {
			return ErrAssetNotBorrowableInIsolation
		}
		collateral, err := t.reserve(c.collateral)
		if err != nil {
			return err
		}
		units, err := isolationDebtUnits(c.amount, cfg.Decimals)
		if err != nil {
			return err
		}
		if collateral.IsolationModeTotalDebt+units > c.ceiling || collateral.IsolationModeTotalDebt+units < units {
			return ErrDebtCeilingExceeded
		}
	}

	u := t.user(c.user)
	if u.EModeCategory != 0 && cfg.EModeCategory != u.EModeCategory {
		return ErrInconsistentEModeCategory
	}

	data, err := t.accountData(c.user)
	if err != nil {
		return err
	}
	if data.TotalCollateralBase.IsZero() {
		return ErrCollateralBalanceIsZero
	}
	if data.LTV == 0 {
		return ErrLTVValidationFailed
	}
	price, err := t.assetPrice(c.asset, r, u.EModeCategory)
	if err != nil {
		return err
	}
	amountBase, err := toBase(c.amount, price, cfg.Decimals)
	if err != nil {
		return err
	}
	hf, err := healthFactorWith(data, amountBase)
	if err != nil {
		return err
	}
	if hf.Lt(healthFactorOne) {
		return ErrHealthFactorLowerThanLiquidationThreshold
	}
	needed, err := wadray.Add(data.TotalDebtBase, amountBase)
	if err != nil {
		return err
	}
	if needed, err = wadray.PercentDiv(needed, data.LTV); err != nil {
		return err
	}
	if needed.Gt(data.TotalCollateralBase) {
		return ErrCollateralCannotCoverNewBorrow
	}

	if c.mode == RateModeStable {
		if !cfg.StableRateBorrowingEnabled {
			return ErrStableBorrowingNotEnabled
		}
		if u.Configuration.IsUsingAsCollateral(r.ID) && cfg.LTV != 0 {
			supplied, err := t.userSupply(c.user, r)
			if err != nil {
				return err
			}
			if !c.amount.Gt(supplied) {
				return ErrCollateralSameAsBorrowingCurrency
			}
		}
		maxLoan, err := wadray.PercentMul(t.availableLiquidity(c.asset, r), t.maxStableBorrowPercent())
		if err != nil {
			return err
		}
		if c.amount.Gt(maxLoan) {
			return ErrAmountBiggerThanMaxLoanSizeStable
		}
	}

	if u.Configuration.IsBorrowingAny() {
		siloed, siloedAsset := t.siloedState(u)
		if siloed {
			if siloedAsset != c.asset {
				return ErrSiloedBorrowingViolation
			}
		} else if cfg.SiloedBorrowing {
			return ErrSiloedBorrowingViolation
		}
	}
	return nil
}

func (t *txn) maxStableBorrowPercent() uint64 {
	if t.settings.MaxStableRateBorrowSizePercent == 0 {
		return DefaultMaxStableRateBorrowSizePercent
	}
	return t.settings.MaxStableRateBorrowSizePercent
}

func (t *txn) validateRepay(caller, onBehalfOf common.Address, r *ReserveData, amount *uint256.Int, mode InterestRateMode, stable, variable *uint256.Int) error {
	if err := requireAmount(amount); err != nil {
		return err
	}
	if amount.Eq(maxUint) && caller != onBehalfOf {
		return ErrNoExplicitAmountToRepayOnBehalf
	}
	if err := requireActiveNotPaused(r.Configuration); err != nil {
		return err
	}
	var token common.Address
	switch mode {
	case RateModeStable:
		token = r.StableDebtAddress
	case RateModeVariable:
		token = r.VariableDebtAddress
	default:
		return ErrInvalidInterestRateModeSelected
	}
	if b := t.balance(token, onBehalfOf); b.Minted && b.LastMint >= t.now() {
		return ErrSameBlockBorrowRepay
	}
	if (mode == RateModeStable && stable.IsZero()) || (mode == RateModeVariable && variable.IsZero()) {
		return ErrNoDebtOfSelectedType
	}
	return nil
}

func (t *txn) validateSwapRateMode(user common.Address, r *ReserveData, stable, variable *uint256.Int, mode InterestRateMode) error {
	cfg := r.Configuration
	if err := requireActiveUsable(cfg); err != nil {
		return err
	}
	switch mode {
	case RateModeStable:
		if stable.IsZero() {
			return ErrNoOutstandingStableDebt
		}
	case RateModeVariable:
		if variable.IsZero() {
			return ErrNoOutstandingVariableDebt
		}
		if !cfg.StableRateBorrowingEnabled {
			return ErrStableBorrowingNotEnabled
		}
		if t.user(user).Configuration.IsUsingAsCollateral(r.ID) && cfg.LTV != 0 {
			supplied, err := t.userSupply(user, r)
			if err != nil {
				return err
			}
			if !new(uint256.Int).Add(stable, variable).Gt(supplied) {
				return ErrCollateralSameAsBorrowingCurrency
			}
		}
	default:
		return ErrInvalidInterestRateModeSelected
	}
	return nil
}

// validateRebalanceStableBorrowRate allows a rebalance only while suppliers
// earn no more than they would if every loan were variable.
func (t *txn) validateRebalanceStableBorrowRate(asset common.Address, r *ReserveData, stable *uint256.Int) error {
	if err := requireActiveNotPaused(r.Configuration); err != nil {
		return err
	}
	if stable.IsZero() {
		return ErrNoOutstandingStableDebt
	}
	strategy, err := t.strategyFor(r)
	if err != nil {
		return err
	}
	totalStable, err := t.stableDebt(r).totalSupply()
	if err != nil {
		return err
	}
	totalVariable, err := t.variableDebt(r).totalSupply(r.VariableBorrowIndex)
	if err != nil {
		return err
	}
	totalDebt, err := wadray.Add(totalStable, totalVariable)
	if err != nil {
		return err
	}
	variableOnly, err := strategy.CalculateRates(rates.Params{
		AvailableLiquidity: t.availableLiquidity(asset, r),
		TotalVariableDebt:  totalDebt,
		ReserveFactor:      r.Configuration.ReserveFactor,
	})
	if err != nil {
		return err
	}
	if r.CurrentLiquidityRate.Gt(variableOnly.LiquidityRate) {
		return ErrInterestRateRebalanceConditionsNotMet
	}
	return nil
}

func validateSetUseAsCollateral(r *ReserveData, balance *uint256.Int) error {
	if balance.IsZero() {
		return ErrUnderlyingBalanceZero
	}
	return requireActiveNotPaused(r.Configuration)
}

// canUseAsCollateral reports whether r may be enabled as collateral for u
// automatically or on request.
func (t *txn) canUseAsCollateral(u *UserState, r *ReserveData) bool {
	if r.Configuration.LTV == 0 {
		return false
	}
	if !u.Configuration.IsUsingAsCollateralAny() {
		return true
	}
	isolated, _, _ := t.isolationState(u)
	return !isolated && r.Configuration.DebtCeiling == 0
}

// validateHealthFactor requires the position to be at or above a health
// factor of one.
func (t *txn) validateHealthFactor(user common.Address) (AccountData, error) {
	data, err := t.accountData(user)
	if err != nil {
		return AccountData{}, err
	}
	if data.HealthFactor.Lt(healthFactorOne) {
		return AccountData{}, ErrHealthFactorLowerThanLiquidationThreshold
	}
	return data, nil
}

// validateHFAndLTV guards actions that lower collateral: the position must
// stay healthy and, while it holds zero LTV collateral, only zero LTV
// collateral may be reduced.
func (t *txn) validateHFAndLTV(user common.Address, r *ReserveData) error {
	data, err := t.validateHealthFactor(user)
	if err != nil {
		return err
	}
	if data.HasZeroLTVCollateral && r.Configuration.LTV != 0 {
		return ErrLTVValidationFailed
	}
	return nil
}

func validateFlashloanReserve(r *ReserveData) error {
	if err := requireActiveNotPaused(r.Configuration); err != nil {
		return err
	}
	if !r.Configuration.FlashLoanEnabled {
		return ErrFlashloanDisabled
	}
	return nil
}

func (t *txn) validateLiquidation(user common.Address, collateral, debt *ReserveData, hf, totalDebt *uint256.Int) error {
	if !collateral.Configuration.Active || !debt.Configuration.Active {
		return ErrReserveInactive
	}
	if collateral.Configuration.Paused || debt.Configuration.Paused {
		return ErrReservePaused
	}
	if !hf.Lt(healthFactorOne) {
		return ErrHealthFactorNotBelowThreshold
	}
	if collateral.Configuration.LiquidationThreshold == 0 || !t.user(user).Configuration.IsUsingAsCollateral(collateral.ID) {
		return ErrCollateralCannotBeLiquidated
	}
	if totalDebt.IsZero() {
		return ErrSpecifiedCurrencyNotBorrowedByUser
	}
	return nil
}

func (t *txn) validateDropReserve(asset common.Address, r *ReserveData) error {
	if asset == (common.Address{}) {
		return ErrZeroAddressNotValid
	}
	if !t.supply(r.StableDebtAddress).Total.IsZero() {
		return ErrStableDebtNotZero
	}
	if !t.supply(r.VariableDebtAddress).Total.IsZero() {
		return ErrVariableDebtSupplyNotZero
	}
	if !t.supply(r.ATokenAddress).Total.IsZero() || !wadray.IsZero(r.AccruedToTreasury) {
		return ErrUnderlyingClaimableRightsNotZero
	}
	return nil
}

func (t *txn) validateSetUserEMode(u *UserState, category uint8) error {
	if category != 0 {
		c, ok := t.emode(category)
		if !ok || c.LiquidationThreshold == 0 {
			return ErrInconsistentEModeCategory
		}
	}
	if u.Configuration.IsEmpty() || category == 0 {
		return nil
	}
	for id := range t.list {
		rid := uint16(id)
		if !u.Configuration.IsBorrowing(rid) {
			continue
		}
		if _, r, ok := t.reserveAt(rid); ok && r.Configuration.EModeCategory != category {
			return ErrInconsistentEModeCategory
		}
	}
	return nil
}
