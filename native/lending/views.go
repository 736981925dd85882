package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/wadray"
)

// read runs fn against the committed state at the current block. Nothing
// fn changes is kept.
func (p *Pool) read(fn func(*txn) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(p.view())
}

// ReserveData returns a copy of asset's reserve as last stored.
func (p *Pool) ReserveData(asset common.Address) (*ReserveData, error) {
	var out *ReserveData
	err := p.read(func(t *txn) error {
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		out = r.Clone()
		return nil
	})
	return out, err
}

// ReservesList returns the listed assets in reserve id order.
func (p *Pool) ReservesList() []common.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]common.Address, 0, len(p.state.ReserveList))
	for _, asset := range p.state.ReserveList {
		if asset != (common.Address{}) {
			out = append(out, asset)
		}
	}
	return out
}

// UserAccountData aggregates user's position in base currency.
func (p *Pool) UserAccountData(user common.Address) (AccountData, error) {
	var out AccountData
	err := p.read(func(t *txn) error {
		var err error
		out, err = t.accountData(user)
		return err
	})
	return out, err
}

// UserConfiguration returns user's collateral and borrowing bitmap.
func (p *Pool) UserConfiguration(user common.Address) UserConfiguration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.state.Users[user]; ok {
		return u.Configuration.Clone()
	}
	return UserConfiguration{}
}

// UserEMode returns user's e-mode category, 0 when none.
func (p *Pool) UserEMode(user common.Address) uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.state.Users[user]; ok {
		return u.EModeCategory
	}
	return 0
}

// EModeCategory returns a defined category.
func (p *Pool) EModeCategory(id uint8) (EModeCategory, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.state.EModes[id]
	if !ok || id == 0 {
		return EModeCategory{}, false
	}
	return *c, true
}

// ATokenBalance returns user's supply balance of asset, interest included.
func (p *Pool) ATokenBalance(asset, user common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.read(func(t *txn) error {
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		out, err = t.userSupply(user, r)
		return err
	})
	return out, err
}

// ScaledATokenBalance returns user's supply balance divided by the index.
func (p *Pool) ScaledATokenBalance(asset, user common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.read(func(t *txn) error {
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		out = t.aToken(r).scaledBalanceOf(user)
		return nil
	})
	return out, err
}

// ATokenAllowance returns the supply token allowance owner granted spender.
func (p *Pool) ATokenAllowance(asset, owner, spender common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.read(func(t *txn) error {
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		out = new(uint256.Int).Set(t.allowance(r.ATokenAddress, owner, spender))
		return nil
	})
	return out, err
}

// DebtBalances returns user's stable and variable debt of asset, interest
// included.
func (p *Pool) DebtBalances(asset, user common.Address) (stable, variable *uint256.Int, err error) {
	err = p.read(func(t *txn) error {
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		stable, variable, err = t.userDebt(user, r)
		return err
	})
	return stable, variable, err
}

// UserReserveData returns user's position in asset.
func (p *Pool) UserReserveData(asset, user common.Address) (UserReserveData, error) {
	var out UserReserveData
	err := p.read(func(t *txn) error {
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		supplied, err := t.userSupply(user, r)
		if err != nil {
			return err
		}
		stable, variable, err := t.userDebt(user, r)
		if err != nil {
			return err
		}
		sd := t.stableDebt(r)
		u := t.user(user)
		out = UserReserveData{
			Asset:                    asset,
			CurrentATokenBalance:     supplied,
			ScaledATokenBalance:      t.aToken(r).scaledBalanceOf(user),
			CurrentStableDebt:        stable,
			PrincipalStableDebt:      sd.principalOf(user),
			CurrentVariableDebt:      variable,
			ScaledVariableDebt:       t.variableDebt(r).scaledBalanceOf(user),
			StableBorrowRate:         sd.userRate(user),
			StableRateLastUpdated:    sd.userLastUpdated(user),
			UsageAsCollateralEnabled: u.Configuration.IsUsingAsCollateral(r.ID),
		}
		return nil
	})
	return out, err
}

// NormalizedIncome returns asset's liquidity index projected to now.
func (p *Pool) NormalizedIncome(asset common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.read(func(t *txn) error {
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		out, err = normalizedIncome(r, t.now())
		return err
	})
	return out, err
}

// NormalizedDebt returns asset's variable borrow index projected to now.
func (p *Pool) NormalizedDebt(asset common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.read(func(t *txn) error {
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		out, err = normalizedDebt(r, t.now())
		return err
	})
	return out, err
}

// TokenSupplies reports the totals of asset's tokens.
func (p *Pool) TokenSupplies(asset common.Address) (TokenSupplies, error) {
	var out TokenSupplies
	err := p.read(func(t *txn) error {
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		income, err := normalizedIncome(r, t.now())
		if err != nil {
			return err
		}
		debtIndex, err := normalizedDebt(r, t.now())
		if err != nil {
			return err
		}
		aToken, variable, stable := t.aToken(r), t.variableDebt(r), t.stableDebt(r)
		if out.ATokenTotal, err = aToken.totalSupply(income); err != nil {
			return err
		}
		if out.StableDebtTotal, err = stable.totalSupply(); err != nil {
			return err
		}
		if out.VariableDebtTotal, err = variable.totalSupply(debtIndex); err != nil {
			return err
		}
		out.ScaledATokenTotal = aToken.scaledTotalSupply()
		out.AverageStableRate = stable.averageRate()
		out.ScaledVariableDebt = variable.scaledTotalSupply()
		out.AvailableLiquidity = t.availableLiquidity(asset, r)
		out.AccruedToTreasury = new(uint256.Int).Set(wadray.Or(r.AccruedToTreasury))
		return nil
	})
	return out, err
}

// Settings returns the pool wide parameters.
func (p *Pool) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Settings
}
