package lending

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/wadray"
)

// userDebt returns the stable and variable debt of user in r, interest
// included.
func (t *txn) userDebt(user common.Address, r *ReserveData) (*uint256.Int, *uint256.Int, error) {
	stable, err := t.stableDebt(r).balanceOf(user)
	if err != nil {
		return nil, nil, err
	}
	index, err := normalizedDebt(r, t.now())
	if err != nil {
		return nil, nil, err
	}
	variable, err := t.variableDebt(r).balanceOf(user, index)
	if err != nil {
		return nil, nil, err
	}
	return stable, variable, nil
}

func (t *txn) userSupply(user common.Address, r *ReserveData) (*uint256.Int, error) {
	index, err := normalizedIncome(r, t.now())
	if err != nil {
		return nil, err
	}
	return t.aToken(r).balanceOf(user, index)
}

// toBase converts amount of an asset with decimals to base currency.
func toBase(amount, price *uint256.Int, decimals uint8) (*uint256.Int, error) {
	value, overflow := new(uint256.Int).MulOverflow(amount, price)
	if overflow {
		return nil, wadray.ErrMultiplicationOverflow
	}
	return value.Div(value, wadray.Pow10(decimals)), nil
}

// assetPrice resolves the price of asset for a user in e-mode category
// userCategory, preferring the category price source for its own assets.
func (t *txn) assetPrice(asset common.Address, r *ReserveData, userCategory uint8) (*uint256.Int, error) {
	if userCategory != 0 && r.Configuration.EModeCategory == userCategory {
		if c, ok := t.emode(userCategory); ok && c.PriceSource != (common.Address{}) {
			return t.price(c.PriceSource)
		}
	}
	return t.price(asset)
}

// accountData aggregates user's position over every reserve flagged in the
// configuration bitmap.
func (t *txn) accountData(user common.Address) (AccountData, error) {
	u := t.user(user)
	out := AccountData{
		TotalCollateralBase:  new(uint256.Int),
		TotalDebtBase:        new(uint256.Int),
		AvailableBorrowsBase: new(uint256.Int),
		HealthFactor:         new(uint256.Int).Set(wadray.MaxUint256),
	}
	if u.Configuration.IsEmpty() {
		return out, nil
	}
	var category *EModeCategory
	if c, ok := t.emode(u.EModeCategory); ok {
		category = c
	}

	weightedLTV := new(uint256.Int)
	weightedThreshold := new(uint256.Int)
	for id := range t.list {
		rid := uint16(id)
		if !u.Configuration.IsUsingAsCollateralOrBorrowing(rid) {
			continue
		}
		asset, r, ok := t.reserveAt(rid)
		if !ok {
			continue
		}
		cfg := r.Configuration
		inCategory := category != nil && cfg.EModeCategory == category.ID
		price, err := t.assetPrice(asset, r, u.EModeCategory)
		if err != nil {
			return AccountData{}, err
		}

		if cfg.LiquidationThreshold != 0 && u.Configuration.IsUsingAsCollateral(rid) && (category == nil || inCategory) {
			supplied, err := t.userSupply(user, r)
			if err != nil {
				return AccountData{}, err
			}
			value, err := toBase(supplied, price, cfg.Decimals)
			if err != nil {
				return AccountData{}, err
			}
			if out.TotalCollateralBase, err = wadray.Add(out.TotalCollateralBase, value); err != nil {
				return AccountData{}, err
			}
			ltv, threshold := cfg.LTV, cfg.LiquidationThreshold
			if inCategory {
				ltv, threshold = uint64(category.LTV), uint64(category.LiquidationThreshold)
			}
			if cfg.LTV != 0 {
				weightedLTV.Add(weightedLTV, new(uint256.Int).Mul(value, uint256.NewInt(ltv)))
			} else {
				out.HasZeroLTVCollateral = true
			}
			weightedThreshold.Add(weightedThreshold, new(uint256.Int).Mul(value, uint256.NewInt(threshold)))
		}

		if u.Configuration.IsBorrowing(rid) {
			stable, variable, err := t.userDebt(user, r)
			if err != nil {
				return AccountData{}, err
			}
			debt, err := wadray.Add(stable, variable)
			if err != nil {
				return AccountData{}, err
			}
			value, err := toBase(debt, price, cfg.Decimals)
			if err != nil {
				return AccountData{}, err
			}
			if out.TotalDebtBase, err = wadray.Add(out.TotalDebtBase, value); err != nil {
				return AccountData{}, err
			}
		}
	}

	if !out.TotalCollateralBase.IsZero() {
		out.LTV = new(uint256.Int).Div(weightedLTV, out.TotalCollateralBase).Uint64()
		out.CurrentLiquidationThreshold = new(uint256.Int).Div(weightedThreshold, out.TotalCollateralBase).Uint64()
	}
	if !out.TotalDebtBase.IsZero() {
		adjusted, err := wadray.PercentMul(out.TotalCollateralBase, out.CurrentLiquidationThreshold)
		if err != nil {
			return AccountData{}, err
		}
		if out.HealthFactor, err = wadray.RayDiv(adjusted, out.TotalDebtBase); err != nil {
			return AccountData{}, err
		}
	}
	borrowable, err := wadray.PercentMul(out.TotalCollateralBase, out.LTV)
	if err != nil {
		return AccountData{}, err
	}
	out.AvailableBorrowsBase = wadray.SubFloor(borrowable, out.TotalDebtBase)
	return out, nil
}

// healthFactorWith is the health factor of a position after adding
// extraDebt base currency to its debt.
func healthFactorWith(data AccountData, extraDebt *uint256.Int) (*uint256.Int, error) {
	debt, err := wadray.Add(data.TotalDebtBase, extraDebt)
	if err != nil {
		return nil, err
	}
	if debt.IsZero() {
		return new(uint256.Int).Set(wadray.MaxUint256), nil
	}
	adjusted, err := wadray.PercentMul(data.TotalCollateralBase, data.CurrentLiquidationThreshold)
	if err != nil {
		return nil, err
	}
	return wadray.RayDiv(adjusted, debt)
}

// isolationState reports whether user is in isolation mode: their only
// collateral has a debt ceiling.
func (t *txn) isolationState(u *UserState) (bool, common.Address, uint64) {
	if !u.Configuration.IsUsingAsCollateralOne() {
		return false, common.Address{}, 0
	}
	id, ok := u.Configuration.FirstCollateral()
	if !ok {
		return false, common.Address{}, 0
	}
	asset, r, ok := t.reserveAt(id)
	if !ok || r.Configuration.DebtCeiling == 0 {
		return false, common.Address{}, 0
	}
	return true, asset, r.Configuration.DebtCeiling
}

// siloedState reports whether user borrows a single siloed asset.
func (t *txn) siloedState(u *UserState) (bool, common.Address) {
	if !u.Configuration.IsBorrowingOne() {
		return false, common.Address{}
	}
	id, ok := u.Configuration.FirstBorrowed()
	if !ok {
		return false, common.Address{}
	}
	asset, r, ok := t.reserveAt(id)
	if !ok || !r.Configuration.SiloedBorrowing {
		return false, common.Address{}
	}
	return true, asset
}

// isolationDebtUnits converts amount to the two decimal precision of debt
// ceilings.
func isolationDebtUnits(amount *uint256.Int, decimals uint8) (uint64, error) {
	units := new(uint256.Int)
	if decimals >= DebtCeilingDecimals {
		units.Div(amount, wadray.Pow10(decimals-DebtCeilingDecimals))
	} else {
		var overflow bool
		if units, overflow = units.MulOverflow(amount, wadray.Pow10(DebtCeilingDecimals-decimals)); overflow {
			return 0, wadray.ErrMultiplicationOverflow
		}
	}
	if !units.IsUint64() {
		return 0, fmt.Errorf("%w: isolation debt", wadray.ErrUint128Overflow)
	}
	return units.Uint64(), nil
}
