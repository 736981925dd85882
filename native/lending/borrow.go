package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/native/lending/wadray"
)

type borrowParams struct {
	asset      common.Address
	user       common.Address
	onBehalfOf common.Address
	amount     *uint256.Int
	mode       InterestRateMode
	referral   uint16
	release    bool
}

// executeBorrow opens debt for onBehalfOf. Flash loans kept as debt call it
// with release unset because the funds already left the reserve.
func (t *txn) executeBorrow(p borrowParams) error {
	r, err := t.reserve(p.asset)
	if err != nil {
		return err
	}
	if err := t.updateState(r); err != nil {
		return err
	}
	u := t.user(p.onBehalfOf)
	isolated, collateralAsset, ceiling := t.isolationState(u)
	if err := t.validateBorrow(borrowCheck{
		asset:      p.asset,
		reserve:    r,
		user:       p.onBehalfOf,
		amount:     p.amount,
		mode:       p.mode,
		isolated:   isolated,
		collateral: collateralAsset,
		ceiling:    ceiling,
	}); err != nil {
		return err
	}
	if p.user != p.onBehalfOf {
		token := r.VariableDebtAddress
		if p.mode == RateModeStable {
			token = r.StableDebtAddress
		}
		if err := t.decreaseBorrowAllowance(token, p.onBehalfOf, p.user, p.amount); err != nil {
			return err
		}
	}

	var first bool
	var borrowRate *uint256.Int
	if p.mode == RateModeStable {
		borrowRate = new(uint256.Int).Set(r.CurrentStableBorrowRate)
		if first, _, _, err = t.stableDebt(r).mint(p.user, p.onBehalfOf, p.amount, borrowRate); err != nil {
			return err
		}
	} else {
		if first, err = t.variableDebt(r).mint(p.user, p.onBehalfOf, p.amount, r.VariableBorrowIndex); err != nil {
			return err
		}
		t.markMint(r.VariableDebtAddress, p.onBehalfOf)
	}
	if first {
		u.Configuration.SetBorrowing(r.ID, true)
	}
	if isolated {
		collateral, err := t.reserve(collateralAsset)
		if err != nil {
			return err
		}
		units, err := isolationDebtUnits(p.amount, r.Configuration.Decimals)
		if err != nil {
			return err
		}
		collateral.IsolationModeTotalDebt += units
		t.emit(events.LendingIsolationDebtUpdated{Asset: collateralAsset, TotalDebt: collateral.IsolationModeTotalDebt})
	}
	var taken *uint256.Int
	if p.release {
		taken = p.amount
	}
	if err := t.updateInterestRates(p.asset, r, nil, taken); err != nil {
		return err
	}
	if p.release {
		if err := t.transferUnderlying(p.asset, r.ATokenAddress, p.user, p.amount); err != nil {
			return err
		}
	}
	if borrowRate == nil {
		borrowRate = new(uint256.Int).Set(r.CurrentVariableBorrowRate)
	}
	t.emit(events.LendingBorrow{
		Reserve:          p.asset,
		User:             p.user,
		OnBehalfOf:       p.onBehalfOf,
		Amount:           new(uint256.Int).Set(p.amount),
		InterestRateMode: uint8(p.mode),
		BorrowRate:       borrowRate,
		ReferralCode:     p.referral,
	})
	return nil
}

// Borrow opens debt of the given mode for onBehalfOf and sends the funds to
// caller. Borrowing on behalf of another user consumes their delegated
// credit.
func (p *Pool) Borrow(caller, asset common.Address, amount *uint256.Int, mode InterestRateMode, referral uint16, onBehalfOf common.Address) error {
	return p.run("borrow", func(t *txn) error {
		return t.executeBorrow(borrowParams{
			asset:      asset,
			user:       caller,
			onBehalfOf: onBehalfOf,
			amount:     amount,
			mode:       mode,
			referral:   referral,
			release:    true,
		})
	})
}

// updateIsolatedDebt lowers the isolation debt counter of the user's
// isolated collateral by repaid units of r's asset.
func (t *txn) updateIsolatedDebt(u *UserState, r *ReserveData, repaid *uint256.Int) error {
	isolated, collateralAsset, _ := t.isolationState(u)
	if !isolated {
		return nil
	}
	collateral, err := t.reserve(collateralAsset)
	if err != nil {
		return err
	}
	units, err := isolationDebtUnits(repaid, r.Configuration.Decimals)
	if err != nil {
		return err
	}
	if collateral.IsolationModeTotalDebt <= units {
		collateral.IsolationModeTotalDebt = 0
	} else {
		collateral.IsolationModeTotalDebt -= units
	}
	t.emit(events.LendingIsolationDebtUpdated{Asset: collateralAsset, TotalDebt: collateral.IsolationModeTotalDebt})
	return nil
}

func (t *txn) executeRepay(caller, asset common.Address, amount *uint256.Int, mode InterestRateMode, onBehalfOf common.Address, useATokens bool) (*uint256.Int, error) {
	r, err := t.reserve(asset)
	if err != nil {
		return nil, err
	}
	if err := t.updateState(r); err != nil {
		return nil, err
	}
	stable, variable, err := t.userDebt(onBehalfOf, r)
	if err != nil {
		return nil, err
	}
	if err := t.validateRepay(caller, onBehalfOf, r, amount, mode, stable, variable); err != nil {
		return nil, err
	}
	payback := variable
	if mode == RateModeStable {
		payback = stable
	}
	amount = new(uint256.Int).Set(amount)
	if useATokens && amount.Eq(maxUint) {
		if amount, err = t.aToken(r).balanceOf(caller, r.LiquidityIndex); err != nil {
			return nil, err
		}
	}
	if amount.Lt(payback) {
		payback = amount
	}
	payback = new(uint256.Int).Set(payback)

	if mode == RateModeStable {
		if _, _, err := t.stableDebt(r).burn(onBehalfOf, payback); err != nil {
			return nil, err
		}
	} else {
		if err := t.variableDebt(r).burn(onBehalfOf, onBehalfOf, payback, r.VariableBorrowIndex); err != nil {
			return nil, err
		}
	}
	var added *uint256.Int
	if !useATokens {
		added = payback
	}
	if err := t.updateInterestRates(asset, r, added, nil); err != nil {
		return nil, err
	}
	u := t.user(onBehalfOf)
	total, err := wadray.Add(stable, variable)
	if err != nil {
		return nil, err
	}
	if total.Eq(payback) {
		u.Configuration.SetBorrowing(r.ID, false)
	}
	if err := t.updateIsolatedDebt(u, r, payback); err != nil {
		return nil, err
	}

	if useATokens {
		if err := t.aToken(r).burn(caller, r.ATokenAddress, payback, r.LiquidityIndex); err != nil {
			return nil, err
		}
		payer := t.user(caller)
		if payer.Configuration.IsUsingAsCollateral(r.ID) && t.aToken(r).scaledBalanceOf(caller).IsZero() {
			t.setCollateral(caller, payer, asset, r, false)
		}
	} else if err := t.transferUnderlyingFrom(asset, t.pool, caller, r.ATokenAddress, payback); err != nil {
		return nil, err
	}
	t.emit(events.LendingRepay{Reserve: asset, User: onBehalfOf, Repayer: caller, Amount: new(uint256.Int).Set(payback), UseATokens: useATokens})
	return payback, nil
}

// Repay pays back debt of the given mode for onBehalfOf with caller's
// underlying. MaxUint repays the whole debt and is only accepted for the
// caller's own position. It returns the amount repaid.
func (p *Pool) Repay(caller, asset common.Address, amount *uint256.Int, mode InterestRateMode, onBehalfOf common.Address) (*uint256.Int, error) {
	var repaid *uint256.Int
	err := p.run("repay", func(t *txn) error {
		var err error
		repaid, err = t.executeRepay(caller, asset, amount, mode, onBehalfOf, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return repaid, nil
}

// RepayWithATokens pays back caller's own debt by burning their supply
// tokens of the same asset. MaxUint uses the whole supply balance.
func (p *Pool) RepayWithATokens(caller, asset common.Address, amount *uint256.Int, mode InterestRateMode) (*uint256.Int, error) {
	var repaid *uint256.Int
	err := p.run("repayWithATokens", func(t *txn) error {
		var err error
		repaid, err = t.executeRepay(caller, asset, amount, mode, caller, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return repaid, nil
}

// SwapBorrowRateMode moves caller's whole debt of mode in asset to the
// other mode.
func (p *Pool) SwapBorrowRateMode(caller, asset common.Address, mode InterestRateMode) error {
	return p.run("swapBorrowRateMode", func(t *txn) error {
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		stable, variable, err := t.userDebt(caller, r)
		if err != nil {
			return err
		}
		if err := t.validateSwapRateMode(caller, r, stable, variable, mode); err != nil {
			return err
		}
		if err := t.updateState(r); err != nil {
			return err
		}
		if mode == RateModeStable {
			if _, _, err := t.stableDebt(r).burn(caller, stable); err != nil {
				return err
			}
			if _, err := t.variableDebt(r).mint(caller, caller, stable, r.VariableBorrowIndex); err != nil {
				return err
			}
			t.markMint(r.VariableDebtAddress, caller)
		} else {
			if err := t.variableDebt(r).burn(caller, caller, variable, r.VariableBorrowIndex); err != nil {
				return err
			}
			if _, _, _, err := t.stableDebt(r).mint(caller, caller, variable, r.CurrentStableBorrowRate); err != nil {
				return err
			}
		}
		if err := t.updateInterestRates(asset, r, nil, nil); err != nil {
			return err
		}
		t.emit(events.LendingSwapBorrowRateMode{Reserve: asset, User: caller, InterestRateMode: uint8(mode)})
		return nil
	})
}

// RebalanceStableBorrowRate reprices user's stable loan at the current
// stable rate.
func (p *Pool) RebalanceStableBorrowRate(caller, asset, user common.Address) error {
	return p.run("rebalanceStableBorrowRate", func(t *txn) error {
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		stable, _, err := t.userDebt(user, r)
		if err != nil {
			return err
		}
		if err := t.updateState(r); err != nil {
			return err
		}
		if err := t.validateRebalanceStableBorrowRate(asset, r, stable); err != nil {
			return err
		}
		token := t.stableDebt(r)
		prev := *t.balance(r.StableDebtAddress, user)
		if _, _, err := token.burn(user, stable); err != nil {
			return err
		}
		if _, _, _, err := token.mint(user, user, stable, r.CurrentStableBorrowRate); err != nil {
			return err
		}
		minted := t.balance(r.StableDebtAddress, user)
		minted.LastMint, minted.Minted = prev.LastMint, prev.Minted
		if err := t.updateInterestRates(asset, r, nil, nil); err != nil {
			return err
		}
		t.emit(events.LendingRebalanceStableRate{Reserve: asset, User: user})
		return nil
	})
}

func debtToken(r *ReserveData, mode InterestRateMode) (common.Address, error) {
	switch mode {
	case RateModeStable:
		return r.StableDebtAddress, nil
	case RateModeVariable:
		return r.VariableDebtAddress, nil
	}
	return common.Address{}, ErrInvalidInterestRateModeSelected
}

// ApproveDelegation lets delegatee borrow up to amount of asset in mode on
// caller's behalf.
func (p *Pool) ApproveDelegation(caller, asset common.Address, mode InterestRateMode, delegatee common.Address, amount *uint256.Int) error {
	return p.run("approveDelegation", func(t *txn) error {
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		token, err := debtToken(r, mode)
		if err != nil {
			return err
		}
		t.setAllowance(token, caller, delegatee, amount)
		t.emit(events.LendingBorrowAllowance{Token: token, From: caller, To: delegatee, Asset: asset, Amount: wadray.Or(cloneInt(amount))})
		return nil
	})
}

// BorrowAllowance returns the credit delegator granted delegatee.
func (p *Pool) BorrowAllowance(asset common.Address, mode InterestRateMode, delegator, delegatee common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.view()
	r, err := t.reserve(asset)
	if err != nil {
		return nil, err
	}
	token, err := debtToken(r, mode)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(t.allowance(token, delegator, delegatee)), nil
}

// TransferDebtToken always fails: debt cannot change hands.
func (p *Pool) TransferDebtToken(common.Address, common.Address, InterestRateMode, common.Address, *uint256.Int) error {
	return ErrOperationNotSupported
}

// ApproveDebtToken always fails; use ApproveDelegation.
func (p *Pool) ApproveDebtToken(common.Address, common.Address, InterestRateMode, common.Address, *uint256.Int) error {
	return ErrOperationNotSupported
}

// DebtTokenAllowance always fails; use BorrowAllowance.
func (p *Pool) DebtTokenAllowance(common.Address, InterestRateMode, common.Address, common.Address) (*uint256.Int, error) {
	return nil, ErrOperationNotSupported
}
