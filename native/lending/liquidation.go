package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/native/lending/wadray"
)

// LiquidationResult reports what a liquidation settled.
type LiquidationResult struct {
	DebtRepaid          *uint256.Int
	CollateralSeized    *uint256.Int
	ProtocolFee         *uint256.Int
	ReceivedAsSupplyTok bool
}

type liquidationPricing struct {
	collateralPrice *uint256.Int
	debtPrice       *uint256.Int
	bonus           uint64
}

func (t *txn) liquidationPricing(u *UserState, collateralAsset common.Address, collateral *ReserveData, debtAsset common.Address, debt *ReserveData) (liquidationPricing, error) {
	bonus := collateral.Configuration.LiquidationBonus
	collateralSource, debtSource := collateralAsset, debtAsset
	if c, ok := t.emode(u.EModeCategory); ok {
		if collateral.Configuration.EModeCategory == c.ID {
			bonus = uint64(c.LiquidationBonus)
			if c.PriceSource != (common.Address{}) {
				collateralSource = c.PriceSource
			}
		}
		if debt.Configuration.EModeCategory == c.ID && c.PriceSource != (common.Address{}) {
			debtSource = c.PriceSource
		}
	}
	collateralPrice, err := t.price(collateralSource)
	if err != nil {
		return liquidationPricing{}, err
	}
	debtPrice, err := t.price(debtSource)
	if err != nil {
		return liquidationPricing{}, err
	}
	return liquidationPricing{collateralPrice: collateralPrice, debtPrice: debtPrice, bonus: bonus}, nil
}

// mulDiv computes a*b*c / (d*e) with overflow detection.
func mulDiv(a, b, c, d, e *uint256.Int) (*uint256.Int, error) {
	num, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, wadray.ErrMultiplicationOverflow
	}
	if _, overflow = num.MulOverflow(num, c); overflow {
		return nil, wadray.ErrMultiplicationOverflow
	}
	den, overflow := new(uint256.Int).MulOverflow(d, e)
	if overflow {
		return nil, wadray.ErrMultiplicationOverflow
	}
	if den.IsZero() {
		return nil, wadray.ErrDivisionByZero
	}
	return num.Div(num, den), nil
}

// collateralToSeize returns the collateral to hand the liquidator, the debt
// it covers and the protocol fee carved from the bonus.
func collateralToSeize(collateral, debt *ReserveData, pricing liquidationPricing, debtToCover, userCollateral *uint256.Int) (*uint256.Int, *uint256.Int, *uint256.Int, error) {
	collateralUnit := wadray.Pow10(collateral.Configuration.Decimals)
	debtUnit := wadray.Pow10(debt.Configuration.Decimals)

	base, err := mulDiv(pricing.debtPrice, debtToCover, collateralUnit, pricing.collateralPrice, debtUnit)
	if err != nil {
		return nil, nil, nil, err
	}
	maxCollateral, err := wadray.PercentMul(base, pricing.bonus)
	if err != nil {
		return nil, nil, nil, err
	}
	seized := maxCollateral
	debtNeeded := new(uint256.Int).Set(debtToCover)
	if maxCollateral.Gt(userCollateral) {
		seized = new(uint256.Int).Set(userCollateral)
		value, err := mulDiv(pricing.collateralPrice, seized, debtUnit, pricing.debtPrice, collateralUnit)
		if err != nil {
			return nil, nil, nil, err
		}
		if debtNeeded, err = wadray.PercentDiv(value, pricing.bonus); err != nil {
			return nil, nil, nil, err
		}
	}
	fee := new(uint256.Int)
	if pct := collateral.Configuration.LiquidationProtocolFee; pct != 0 {
		withoutBonus, err := wadray.PercentDiv(seized, pricing.bonus)
		if err != nil {
			return nil, nil, nil, err
		}
		if fee, err = wadray.PercentMul(wadray.SubFloor(seized, withoutBonus), pct); err != nil {
			return nil, nil, nil, err
		}
		seized = wadray.SubFloor(seized, fee)
	}
	return seized, debtNeeded, fee, nil
}

// LiquidationCall repays part of an unhealthy user's debt in debtAsset and
// seizes collateralAsset at a bonus. The liquidator receives the underlying,
// or supply tokens when receiveAToken is set.
func (p *Pool) LiquidationCall(caller, collateralAsset, debtAsset, user common.Address, debtToCover *uint256.Int, receiveAToken bool) (LiquidationResult, error) {
	var result LiquidationResult
	err := p.run("liquidationCall", func(t *txn) error {
		var err error
		result, err = t.executeLiquidation(caller, collateralAsset, debtAsset, user, debtToCover, receiveAToken)
		return err
	})
	if err != nil {
		return LiquidationResult{}, err
	}
	return result, nil
}

func (t *txn) executeLiquidation(caller, collateralAsset, debtAsset, user common.Address, debtToCover *uint256.Int, receiveAToken bool) (LiquidationResult, error) {
	if err := requireAmount(debtToCover); err != nil {
		return LiquidationResult{}, err
	}
	collateral, err := t.reserve(collateralAsset)
	if err != nil {
		return LiquidationResult{}, err
	}
	debt, err := t.reserve(debtAsset)
	if err != nil {
		return LiquidationResult{}, err
	}
	if err := t.updateState(debt); err != nil {
		return LiquidationResult{}, err
	}
	u := t.user(user)
	data, err := t.accountData(user)
	if err != nil {
		return LiquidationResult{}, err
	}
	stable, variable, err := t.userDebt(user, debt)
	if err != nil {
		return LiquidationResult{}, err
	}
	totalDebt, err := wadray.Add(stable, variable)
	if err != nil {
		return LiquidationResult{}, err
	}
	closeFactor := uint64(DefaultLiquidationCloseFactor)
	if data.HealthFactor.Lt(liquidationCloseFactorThreshold) {
		closeFactor = MaxLiquidationCloseFactor
	}
	maxLiquidatable, err := wadray.PercentMul(totalDebt, closeFactor)
	if err != nil {
		return LiquidationResult{}, err
	}
	actualDebt := new(uint256.Int).Set(debtToCover)
	if actualDebt.Gt(maxLiquidatable) {
		actualDebt.Set(maxLiquidatable)
	}
	if err := t.validateLiquidation(user, collateral, debt, data.HealthFactor, totalDebt); err != nil {
		return LiquidationResult{}, err
	}

	pricing, err := t.liquidationPricing(u, collateralAsset, collateral, debtAsset, debt)
	if err != nil {
		return LiquidationResult{}, err
	}
	userCollateral, err := t.userSupply(user, collateral)
	if err != nil {
		return LiquidationResult{}, err
	}
	seized, actualDebt, fee, err := collateralToSeize(collateral, debt, pricing, actualDebt, userCollateral)
	if err != nil {
		return LiquidationResult{}, err
	}

	if totalDebt.Eq(actualDebt) {
		u.Configuration.SetBorrowing(debt.ID, false)
	}
	if new(uint256.Int).Add(seized, fee).Eq(userCollateral) {
		t.setCollateral(user, u, collateralAsset, collateral, false)
	}

	if !variable.Lt(actualDebt) {
		if err := t.variableDebt(debt).burn(user, user, actualDebt, debt.VariableBorrowIndex); err != nil {
			return LiquidationResult{}, err
		}
	} else {
		if !variable.IsZero() {
			if err := t.variableDebt(debt).burn(user, user, variable, debt.VariableBorrowIndex); err != nil {
				return LiquidationResult{}, err
			}
		}
		if _, _, err := t.stableDebt(debt).burn(user, new(uint256.Int).Sub(actualDebt, variable)); err != nil {
			return LiquidationResult{}, err
		}
	}
	if err := t.updateInterestRates(debtAsset, debt, actualDebt, nil); err != nil {
		return LiquidationResult{}, err
	}
	if err := t.updateIsolatedDebt(u, debt, actualDebt); err != nil {
		return LiquidationResult{}, err
	}

	if receiveAToken {
		liquidatorBefore, err := t.userSupply(caller, collateral)
		if err != nil {
			return LiquidationResult{}, err
		}
		if err := t.transferAToken(collateralAsset, collateral, user, caller, seized, false); err != nil {
			return LiquidationResult{}, err
		}
		if liquidatorBefore.IsZero() {
			liquidator := t.user(caller)
			if t.canUseAsCollateral(liquidator, collateral) {
				t.setCollateral(caller, liquidator, collateralAsset, collateral, true)
			}
		}
	} else {
		if err := t.updateState(collateral); err != nil {
			return LiquidationResult{}, err
		}
		if err := t.updateInterestRates(collateralAsset, collateral, nil, seized); err != nil {
			return LiquidationResult{}, err
		}
		if err := t.aToken(collateral).burn(user, caller, seized, collateral.LiquidityIndex); err != nil {
			return LiquidationResult{}, err
		}
		if err := t.transferUnderlying(collateralAsset, collateral.ATokenAddress, caller, seized); err != nil {
			return LiquidationResult{}, err
		}
	}

	if !fee.IsZero() {
		index, err := normalizedIncome(collateral, t.now())
		if err != nil {
			return LiquidationResult{}, err
		}
		scaledFee, err := wadray.RayDiv(fee, index)
		if err != nil {
			return LiquidationResult{}, err
		}
		if scaledBalance := t.aToken(collateral).scaledBalanceOf(user); scaledFee.Gt(scaledBalance) {
			if fee, err = wadray.RayMul(scaledBalance, index); err != nil {
				return LiquidationResult{}, err
			}
		}
		if !fee.IsZero() {
			if err := t.transferAToken(collateralAsset, collateral, user, t.settings.Treasury, fee, false); err != nil {
				return LiquidationResult{}, err
			}
		}
	}

	if err := t.transferUnderlyingFrom(debtAsset, t.pool, caller, debt.ATokenAddress, actualDebt); err != nil {
		return LiquidationResult{}, err
	}
	t.emit(events.LendingLiquidationCall{
		CollateralAsset:            collateralAsset,
		DebtAsset:                  debtAsset,
		User:                       user,
		DebtToCover:                new(uint256.Int).Set(actualDebt),
		LiquidatedCollateralAmount: new(uint256.Int).Set(seized),
		Liquidator:                 caller,
		ReceiveAToken:              receiveAToken,
	})
	return LiquidationResult{
		DebtRepaid:          actualDebt,
		CollateralSeized:    seized,
		ProtocolFee:         fee,
		ReceivedAsSupplyTok: receiveAToken,
	}, nil
}
