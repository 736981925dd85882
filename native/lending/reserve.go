package lending

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/native/lending/rates"
	"lendcore/native/lending/wadray"
)

// normalizedIncome is the liquidity index projected to now.
func normalizedIncome(r *ReserveData, now uint64) (*uint256.Int, error) {
	if r.LastUpdateTimestamp == now {
		return new(uint256.Int).Set(r.LiquidityIndex), nil
	}
	factor, err := wadray.LinearInterest(r.CurrentLiquidityRate, r.LastUpdateTimestamp, now)
	if err != nil {
		return nil, err
	}
	return wadray.RayMul(factor, r.LiquidityIndex)
}

// normalizedDebt is the variable borrow index projected to now.
func normalizedDebt(r *ReserveData, now uint64) (*uint256.Int, error) {
	if r.LastUpdateTimestamp == now {
		return new(uint256.Int).Set(r.VariableBorrowIndex), nil
	}
	factor, err := wadray.CompoundedInterest(r.CurrentVariableBorrowRate, r.LastUpdateTimestamp, now)
	if err != nil {
		return nil, err
	}
	return wadray.RayMul(factor, r.VariableBorrowIndex)
}

// updateState accrues interest on r up to the current block. A second call
// in the same block is a no-op.
func (t *txn) updateState(r *ReserveData) error {
	now := t.now()
	if r.LastUpdateTimestamp == now {
		return nil
	}
	scaledVariable := t.variableDebt(r).scaledTotalSupply()
	prevVariableIndex := new(uint256.Int).Set(r.VariableBorrowIndex)

	nextLiquidityIndex := new(uint256.Int).Set(r.LiquidityIndex)
	if !r.CurrentLiquidityRate.IsZero() {
		factor, err := wadray.LinearInterest(r.CurrentLiquidityRate, r.LastUpdateTimestamp, now)
		if err != nil {
			return err
		}
		if nextLiquidityIndex, err = wadray.RayMul(factor, r.LiquidityIndex); err != nil {
			return err
		}
		if nextLiquidityIndex, err = wadray.ToUint128(nextLiquidityIndex); err != nil {
			return err
		}
	}
	nextVariableIndex := new(uint256.Int).Set(r.VariableBorrowIndex)
	if !scaledVariable.IsZero() {
		factor, err := wadray.CompoundedInterest(r.CurrentVariableBorrowRate, r.LastUpdateTimestamp, now)
		if err != nil {
			return err
		}
		if nextVariableIndex, err = wadray.RayMul(factor, r.VariableBorrowIndex); err != nil {
			return err
		}
		if nextVariableIndex, err = wadray.ToUint128(nextVariableIndex); err != nil {
			return err
		}
	}

	if err := t.accrueToTreasury(r, scaledVariable, prevVariableIndex, nextVariableIndex, nextLiquidityIndex); err != nil {
		return err
	}
	r.LiquidityIndex = nextLiquidityIndex
	r.VariableBorrowIndex = nextVariableIndex
	r.LastUpdateTimestamp = now
	return nil
}

// accrueToTreasury books the reserve factor share of the debt interest
// accrued since the last update, as scaled supply.
func (t *txn) accrueToTreasury(r *ReserveData, scaledVariable, prevIndex, nextIndex, nextLiquidityIndex *uint256.Int) error {
	factor := r.Configuration.ReserveFactor
	if factor == 0 {
		return nil
	}
	prevVariable, err := wadray.RayMul(scaledVariable, prevIndex)
	if err != nil {
		return err
	}
	currVariable, err := wadray.RayMul(scaledVariable, nextIndex)
	if err != nil {
		return err
	}
	stable := t.stableDebt(r)
	currStable, err := stable.totalSupply()
	if err != nil {
		return err
	}
	prevStable, err := stable.principalTotalAt(r.LastUpdateTimestamp)
	if err != nil {
		return err
	}
	current, err := wadray.Add(currVariable, currStable)
	if err != nil {
		return err
	}
	previous, err := wadray.Add(prevVariable, prevStable)
	if err != nil {
		return err
	}
	accrued, err := wadray.PercentMul(wadray.SubFloor(current, previous), factor)
	if err != nil {
		return err
	}
	if accrued.IsZero() {
		return nil
	}
	scaled, err := wadray.RayDiv(accrued, nextLiquidityIndex)
	if err != nil {
		return err
	}
	if r.AccruedToTreasury, err = wadray.Add(wadray.Or(r.AccruedToTreasury), scaled); err != nil {
		return err
	}
	r.AccruedToTreasury, err = wadray.ToUint128(r.AccruedToTreasury)
	return err
}

// availableLiquidity is the underlying held by the reserve's supply token.
func (t *txn) availableLiquidity(asset common.Address, r *ReserveData) *uint256.Int {
	return t.underlyingBalance(asset, r.ATokenAddress)
}

func (t *txn) strategyFor(r *ReserveData) (rates.Strategy, error) {
	if t.strategies == nil {
		return nil, ErrInvalidStrategy
	}
	s, err := t.strategies.Lookup(r.InterestRateStrategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStrategy, err)
	}
	return s, nil
}

// updateInterestRates reprices r for the liquidity it will hold once the
// current action settles.
func (t *txn) updateInterestRates(asset common.Address, r *ReserveData, added, taken *uint256.Int) error {
	strategy, err := t.strategyFor(r)
	if err != nil {
		return err
	}
	liquidity, err := wadray.Add(t.availableLiquidity(asset, r), wadray.Or(added))
	if err != nil {
		return err
	}
	taken = wadray.Or(taken)
	if liquidity.Lt(taken) {
		return ErrTransferAmountExceedsBalance
	}
	liquidity.Sub(liquidity, taken)

	stable := t.stableDebt(r)
	totalStable, err := stable.totalSupply()
	if err != nil {
		return err
	}
	totalVariable, err := t.variableDebt(r).totalSupply(r.VariableBorrowIndex)
	if err != nil {
		return err
	}
	out, err := strategy.CalculateRates(rates.Params{
		AvailableLiquidity:      liquidity,
		TotalStableDebt:         totalStable,
		TotalVariableDebt:       totalVariable,
		AverageStableBorrowRate: stable.averageRate(),
		ReserveFactor:           r.Configuration.ReserveFactor,
	})
	if err != nil {
		return err
	}
	if r.CurrentLiquidityRate, err = wadray.ToUint128(out.LiquidityRate); err != nil {
		return err
	}
	if r.CurrentStableBorrowRate, err = wadray.ToUint128(out.StableBorrowRate); err != nil {
		return err
	}
	if r.CurrentVariableBorrowRate, err = wadray.ToUint128(out.VariableBorrowRate); err != nil {
		return err
	}
	t.utilization[asset] = utilization(liquidity, totalStable, totalVariable)
	t.emit(events.LendingReserveDataUpdated{
		Reserve:             asset,
		LiquidityRate:       new(uint256.Int).Set(r.CurrentLiquidityRate),
		StableBorrowRate:    new(uint256.Int).Set(r.CurrentStableBorrowRate),
		VariableBorrowRate:  new(uint256.Int).Set(r.CurrentVariableBorrowRate),
		LiquidityIndex:      new(uint256.Int).Set(r.LiquidityIndex),
		VariableBorrowIndex: new(uint256.Int).Set(r.VariableBorrowIndex),
	})
	return nil
}

// utilization is reported to metrics only.
func utilization(liquidity, stable, variable *uint256.Int) float64 {
	debt := new(uint256.Int).Add(stable, variable)
	total := new(uint256.Int).Add(debt, liquidity)
	if total.IsZero() {
		return 0
	}
	ratio, err := wadray.WadDiv(debt, total)
	if err != nil {
		return 0
	}
	return ratio.Float64() / 1e18
}

// cumulateToLiquidityIndex distributes amount to every supplier at once by
// bumping the liquidity index.
func (t *txn) cumulateToLiquidityIndex(r *ReserveData, totalLiquidity, amount *uint256.Int) error {
	amountRay, err := wadray.WadToRay(amount)
	if err != nil {
		return err
	}
	totalRay, err := wadray.WadToRay(totalLiquidity)
	if err != nil {
		return err
	}
	share, err := wadray.RayDiv(amountRay, totalRay)
	if err != nil {
		return err
	}
	factor, err := wadray.Add(share, wadray.RAY)
	if err != nil {
		return err
	}
	next, err := wadray.RayMul(factor, r.LiquidityIndex)
	if err != nil {
		return err
	}
	r.LiquidityIndex, err = wadray.ToUint128(next)
	return err
}

// mintToTreasury turns the accrued protocol share of the listed assets into
// treasury supply balance.
func (t *txn) mintToTreasury(assets []common.Address) error {
	for _, asset := range assets {
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		if !r.Configuration.Active || wadray.IsZero(r.AccruedToTreasury) {
			continue
		}
		accrued := new(uint256.Int).Set(r.AccruedToTreasury)
		r.AccruedToTreasury = new(uint256.Int)
		index, err := normalizedIncome(r, t.now())
		if err != nil {
			return err
		}
		amount, err := wadray.RayMul(accrued, index)
		if err != nil {
			return err
		}
		if _, err := t.aToken(r).mint(t.pool, t.settings.Treasury, amount, index); err != nil {
			return err
		}
		t.emit(events.LendingMintedToTreasury{Reserve: asset, Amount: amount})
	}
	return nil
}
