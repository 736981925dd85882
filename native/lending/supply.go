package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
)

func (t *txn) setCollateral(user common.Address, u *UserState, asset common.Address, r *ReserveData, enabled bool) {
	u.Configuration.SetUsingAsCollateral(r.ID, enabled)
	t.emit(events.LendingCollateralToggled{Reserve: asset, User: user, Enabled: enabled})
}

// Supply pulls amount of asset from caller and credits supply tokens to
// onBehalfOf. The first supply of an eligible asset is enabled as
// collateral automatically.
func (p *Pool) Supply(caller, asset common.Address, amount *uint256.Int, onBehalfOf common.Address, referral uint16) error {
	return p.run("supply", func(t *txn) error {
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		if err := t.updateState(r); err != nil {
			return err
		}
		if err := t.validateSupply(r, amount); err != nil {
			return err
		}
		if err := t.updateInterestRates(asset, r, amount, nil); err != nil {
			return err
		}
		if err := t.transferUnderlyingFrom(asset, t.pool, caller, r.ATokenAddress, amount); err != nil {
			return err
		}
		first, err := t.aToken(r).mint(caller, onBehalfOf, amount, r.LiquidityIndex)
		if err != nil {
			return err
		}
		if first {
			u := t.user(onBehalfOf)
			if t.canUseAsCollateral(u, r) {
				t.setCollateral(onBehalfOf, u, asset, r, true)
			}
		}
		t.emit(events.LendingSupply{Reserve: asset, User: caller, OnBehalfOf: onBehalfOf, Amount: new(uint256.Int).Set(amount), ReferralCode: referral})
		return nil
	})
}

// Deposit is Supply under its legacy name.
func (p *Pool) Deposit(caller, asset common.Address, amount *uint256.Int, onBehalfOf common.Address, referral uint16) error {
	return p.Supply(caller, asset, amount, onBehalfOf, referral)
}

// Withdraw burns caller's supply tokens and sends the underlying to to.
// MaxUint withdraws the full balance. It returns the amount withdrawn.
func (p *Pool) Withdraw(caller, asset common.Address, amount *uint256.Int, to common.Address) (*uint256.Int, error) {
	var withdrawn *uint256.Int
	err := p.run("withdraw", func(t *txn) error {
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		if err := t.updateState(r); err != nil {
			return err
		}
		balance, err := t.aToken(r).balanceOf(caller, r.LiquidityIndex)
		if err != nil {
			return err
		}
		if amount == nil {
			return ErrInvalidAmount
		}
		toWithdraw := new(uint256.Int).Set(amount)
		if amount.Eq(maxUint) {
			toWithdraw.Set(balance)
		}
		if err := validateWithdraw(r, toWithdraw, balance); err != nil {
			return err
		}
		if err := t.updateInterestRates(asset, r, nil, toWithdraw); err != nil {
			return err
		}
		u := t.user(caller)
		collateral := u.Configuration.IsUsingAsCollateral(r.ID)
		if collateral && toWithdraw.Eq(balance) {
			t.setCollateral(caller, u, asset, r, false)
		}
		if err := t.aToken(r).burn(caller, to, toWithdraw, r.LiquidityIndex); err != nil {
			return err
		}
		if err := t.transferUnderlying(asset, r.ATokenAddress, to, toWithdraw); err != nil {
			return err
		}
		if collateral && u.Configuration.IsBorrowingAny() {
			if err := t.validateHFAndLTV(caller, r); err != nil {
				return err
			}
		}
		t.emit(events.LendingWithdraw{Reserve: asset, User: caller, To: to, Amount: new(uint256.Int).Set(toWithdraw)})
		withdrawn = toWithdraw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawn, nil
}

// SetUserUseReserveAsCollateral toggles whether caller's supply of asset
// backs their debt.
func (p *Pool) SetUserUseReserveAsCollateral(caller, asset common.Address, useAsCollateral bool) error {
	return p.run("setUserUseReserveAsCollateral", func(t *txn) error {
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		balance, err := t.userSupply(caller, r)
		if err != nil {
			return err
		}
		if err := validateSetUseAsCollateral(r, balance); err != nil {
			return err
		}
		u := t.user(caller)
		if useAsCollateral == u.Configuration.IsUsingAsCollateral(r.ID) {
			return nil
		}
		if useAsCollateral {
			if !t.canUseAsCollateral(u, r) {
				return ErrUserInIsolationModeOrLTVZero
			}
			t.setCollateral(caller, u, asset, r, true)
			return nil
		}
		t.setCollateral(caller, u, asset, r, false)
		return t.validateHFAndLTV(caller, r)
	})
}

// transferAToken moves supply tokens and keeps both users' collateral
// flags consistent with their balances.
func (t *txn) transferAToken(asset common.Address, r *ReserveData, from, to common.Address, amount *uint256.Int, validate bool) error {
	if err := requireActiveNotPaused(r.Configuration); err != nil {
		return err
	}
	index, err := normalizedIncome(r, t.now())
	if err != nil {
		return err
	}
	fromBefore, toBefore, err := t.aToken(r).transfer(from, to, amount, index)
	if err != nil {
		return err
	}
	if !validate || from == to {
		return nil
	}
	sender := t.user(from)
	if sender.Configuration.IsUsingAsCollateral(r.ID) {
		if sender.Configuration.IsBorrowingAny() {
			if err := t.validateHFAndLTV(from, r); err != nil {
				return err
			}
		}
		if fromBefore.Eq(amount) {
			t.setCollateral(from, sender, asset, r, false)
		}
	}
	if toBefore.IsZero() && !amount.IsZero() {
		receiver := t.user(to)
		if t.canUseAsCollateral(receiver, r) {
			t.setCollateral(to, receiver, asset, r, true)
		}
	}
	return nil
}

// TransferAToken moves caller's supply tokens of asset to to.
func (p *Pool) TransferAToken(caller, asset, to common.Address, amount *uint256.Int) error {
	return p.run("transferAToken", func(t *txn) error {
		if err := requireAmount(amount); err != nil {
			return err
		}
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		return t.transferAToken(asset, r, caller, to, amount, true)
	})
}

// TransferATokenFrom moves from's supply tokens within caller's allowance.
func (p *Pool) TransferATokenFrom(caller, asset, from, to common.Address, amount *uint256.Int) error {
	return p.run("transferATokenFrom", func(t *txn) error {
		if err := requireAmount(amount); err != nil {
			return err
		}
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		allowed := t.allowance(r.ATokenAddress, from, caller)
		if allowed.Lt(amount) {
			return ErrTransferAmountExceedsAllowance
		}
		if !allowed.Eq(maxUint) {
			t.setAllowance(r.ATokenAddress, from, caller, new(uint256.Int).Sub(allowed, amount))
		}
		return t.transferAToken(asset, r, from, to, amount, true)
	})
}

// ApproveAToken lets spender move caller's supply tokens of asset.
func (p *Pool) ApproveAToken(caller, asset, spender common.Address, amount *uint256.Int) error {
	return p.run("approveAToken", func(t *txn) error {
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		t.setAllowance(r.ATokenAddress, caller, spender, amount)
		return nil
	})
}
