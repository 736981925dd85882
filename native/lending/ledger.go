package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
)

// Underlying assets live in the same balance ledger as pool tokens, keyed by
// the asset address. Movements fail with the low level transfer errors and
// are never retried.

func (t *txn) underlyingBalance(asset, holder common.Address) *uint256.Int {
	return new(uint256.Int).Set(t.balance(asset, holder).Amount)
}

func (t *txn) transferUnderlying(asset, from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	src := t.balance(asset, from)
	if src.Amount.Lt(amount) {
		return ErrTransferAmountExceedsBalance
	}
	src.Amount.Sub(src.Amount, amount)
	dst := t.balance(asset, to)
	if _, overflow := dst.Amount.AddOverflow(dst.Amount, amount); overflow {
		return ErrTransferAmountExceedsBalance
	}
	t.emit(events.LendingUnderlyingTransfer{Asset: asset, From: from, To: to, Amount: new(uint256.Int).Set(amount)})
	return nil
}

func (t *txn) transferUnderlyingFrom(asset, spender, from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	allowed := t.allowance(asset, from, spender)
	if allowed.Lt(amount) {
		return ErrTransferAmountExceedsAllowance
	}
	if err := t.transferUnderlying(asset, from, to, amount); err != nil {
		return err
	}
	if !allowed.Eq(maxUint) {
		t.setAllowance(asset, from, spender, new(uint256.Int).Sub(allowed, amount))
	}
	return nil
}

func (t *txn) mintUnderlying(asset, to common.Address, amount *uint256.Int) error {
	dst := t.balance(asset, to)
	if _, overflow := dst.Amount.AddOverflow(dst.Amount, amount); overflow {
		return ErrInvalidAmount
	}
	t.emit(events.LendingUnderlyingTransfer{Asset: asset, To: to, Amount: new(uint256.Int).Set(amount)})
	return nil
}

// BalanceOf returns holder's balance of an underlying asset.
func (p *Pool) BalanceOf(asset, holder common.Address) *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view().underlyingBalance(asset, holder)
}

// Allowance returns the underlying allowance owner granted spender.
func (p *Pool) Allowance(asset, owner, spender common.Address) *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(uint256.Int).Set(p.view().allowance(asset, owner, spender))
}

// Transfer moves underlying from caller to to.
func (p *Pool) Transfer(caller, asset, to common.Address, amount *uint256.Int) error {
	return p.run("transfer", func(t *txn) error {
		return t.transferUnderlying(asset, caller, to, amount)
	})
}

// TransferFrom moves underlying on behalf of from, consuming caller's allowance.
func (p *Pool) TransferFrom(caller, asset, from, to common.Address, amount *uint256.Int) error {
	return p.run("transferFrom", func(t *txn) error {
		return t.transferUnderlyingFrom(asset, caller, from, to, amount)
	})
}

// Approve sets the underlying allowance of spender over caller's balance.
// Approving the pool address is how suppliers and repayers fund calls.
func (p *Pool) Approve(caller, asset, spender common.Address, amount *uint256.Int) error {
	return p.run("approve", func(t *txn) error {
		t.setAllowance(asset, caller, spender, amount)
		return nil
	})
}

// Mint credits underlying out of thin air. It backs faucets and simulation;
// the daemon only exposes it to pool admins.
func (p *Pool) Mint(asset, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return p.run("mint", func(t *txn) error {
		return t.mintUnderlying(asset, to, amount)
	})
}
