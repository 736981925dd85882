package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/native/lending/wadray"
)

type tokenKind byte

const (
	kindAToken tokenKind = iota + 1
	kindStableDebt
	kindVariableDebt
)

var tokenTags = map[tokenKind]string{
	kindAToken:       "lendcore/atoken",
	kindStableDebt:   "lendcore/stable-debt",
	kindVariableDebt: "lendcore/variable-debt",
}

// tokenAddress derives the address of one of a reserve's tokens. Relisting
// an asset yields the same addresses.
func tokenAddress(asset common.Address, kind tokenKind) common.Address {
	return common.BytesToAddress(crypto.Keccak256(asset.Bytes(), []byte(tokenTags[kind])))
}

// scaledToken is the balance core shared by the supply token and the
// variable debt token. Balances are stored divided by the reserve index
// current at the time of the interaction.
type scaledToken struct {
	t    *txn
	addr common.Address
}

func (t *txn) aToken(r *ReserveData) scaledToken {
	return scaledToken{t: t, addr: r.ATokenAddress}
}

func (t *txn) variableDebt(r *ReserveData) scaledToken {
	return scaledToken{t: t, addr: r.VariableDebtAddress}
}

func (s scaledToken) scaledBalanceOf(holder common.Address) *uint256.Int {
	return new(uint256.Int).Set(s.t.balance(s.addr, holder).Amount)
}

func (s scaledToken) scaledTotalSupply() *uint256.Int {
	return new(uint256.Int).Set(s.t.supply(s.addr).Total)
}

func (s scaledToken) balanceOf(holder common.Address, index *uint256.Int) (*uint256.Int, error) {
	return wadray.RayMul(s.t.balance(s.addr, holder).Amount, index)
}

func (s scaledToken) totalSupply(index *uint256.Int) (*uint256.Int, error) {
	return wadray.RayMul(s.t.supply(s.addr).Total, index)
}

// previousIndex is the index of holder's last interaction.
func (s scaledToken) previousIndex(holder common.Address) *uint256.Int {
	return new(uint256.Int).Set(s.t.balance(s.addr, holder).Index)
}

func balanceIncrease(scaled, lastIndex, index *uint256.Int) (*uint256.Int, error) {
	current, err := wadray.RayMul(scaled, index)
	if err != nil {
		return nil, err
	}
	previous, err := wadray.RayMul(scaled, lastIndex)
	if err != nil {
		return nil, err
	}
	return wadray.SubFloor(current, previous), nil
}

// mint credits amount at index and reports whether the holder had no
// balance before.
func (s scaledToken) mint(caller, onBehalfOf common.Address, amount, index *uint256.Int) (bool, error) {
	scaled, err := wadray.RayDiv(amount, index)
	if err != nil {
		return false, err
	}
	if scaled.IsZero() {
		return false, ErrInvalidMintAmount
	}
	b := s.t.balance(s.addr, onBehalfOf)
	first := b.Amount.IsZero()
	increase, err := balanceIncrease(b.Amount, b.Index, index)
	if err != nil {
		return false, err
	}
	if b.Amount, err = wadray.Add(b.Amount, scaled); err != nil {
		return false, err
	}
	b.Index = new(uint256.Int).Set(index)
	sup := s.t.supply(s.addr)
	if sup.Total, err = wadray.Add(sup.Total, scaled); err != nil {
		return false, err
	}
	value, err := wadray.Add(amount, increase)
	if err != nil {
		return false, err
	}
	s.t.emit(events.LendingTokenMint{
		Token:           s.addr,
		Caller:          caller,
		OnBehalfOf:      onBehalfOf,
		Value:           value,
		BalanceIncrease: increase,
		Index:           new(uint256.Int).Set(index),
	})
	return first, nil
}

// burn debits amount at index. Burning the full real balance always clears
// the scaled balance, even when rounding would leave dust.
func (s scaledToken) burn(from, target common.Address, amount, index *uint256.Int) error {
	b := s.t.balance(s.addr, from)
	scaled, err := wadray.RayDiv(amount, index)
	if err != nil {
		return err
	}
	full, err := wadray.RayMul(b.Amount, index)
	if err != nil {
		return err
	}
	if amount.Eq(full) {
		scaled = new(uint256.Int).Set(b.Amount)
	}
	if scaled.IsZero() {
		return ErrInvalidBurnAmount
	}
	if scaled.Gt(b.Amount) {
		return ErrNotEnoughAvailableUserBalance
	}
	increase, err := balanceIncrease(b.Amount, b.Index, index)
	if err != nil {
		return err
	}
	b.Amount = new(uint256.Int).Sub(b.Amount, scaled)
	b.Index = new(uint256.Int).Set(index)
	sup := s.t.supply(s.addr)
	sup.Total = wadray.SubFloor(sup.Total, scaled)

	if increase.Gt(amount) {
		s.t.emit(events.LendingTokenMint{
			Token:           s.addr,
			Caller:          from,
			OnBehalfOf:      from,
			Value:           new(uint256.Int).Sub(increase, amount),
			BalanceIncrease: increase,
			Index:           new(uint256.Int).Set(index),
		})
		return nil
	}
	s.t.emit(events.LendingTokenBurn{
		Token:           s.addr,
		From:            from,
		Target:          target,
		Value:           new(uint256.Int).Sub(amount, increase),
		BalanceIncrease: increase,
		Index:           new(uint256.Int).Set(index),
	})
	return nil
}

// transfer moves amount of real balance at index and returns both real
// balances from before the move.
func (s scaledToken) transfer(from, to common.Address, amount, index *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	fromBefore, err := s.balanceOf(from, index)
	if err != nil {
		return nil, nil, err
	}
	toBefore, err := s.balanceOf(to, index)
	if err != nil {
		return nil, nil, err
	}
	if fromBefore.Lt(amount) {
		return nil, nil, ErrTransferAmountExceedsBalance
	}
	scaled, err := wadray.RayDiv(amount, index)
	if err != nil {
		return nil, nil, err
	}
	src := s.t.balance(s.addr, from)
	if amount.Eq(fromBefore) || scaled.Gt(src.Amount) {
		scaled = new(uint256.Int).Set(src.Amount)
	}
	if err := s.accrueOnTransfer(from, index); err != nil {
		return nil, nil, err
	}
	if from != to {
		if err := s.accrueOnTransfer(to, index); err != nil {
			return nil, nil, err
		}
	}
	src.Amount = new(uint256.Int).Sub(src.Amount, scaled)
	dst := s.t.balance(s.addr, to)
	if dst.Amount, err = wadray.Add(dst.Amount, scaled); err != nil {
		return nil, nil, err
	}
	s.t.emit(events.LendingBalanceTransfer{Token: s.addr, From: from, To: to, Value: scaled, Index: new(uint256.Int).Set(index)})
	return fromBefore, toBefore, nil
}

// accrueOnTransfer moves holder's interaction index forward, reporting the
// interest earned since the last one as a mint.
func (s scaledToken) accrueOnTransfer(holder common.Address, index *uint256.Int) error {
	b := s.t.balance(s.addr, holder)
	increase, err := balanceIncrease(b.Amount, b.Index, index)
	if err != nil {
		return err
	}
	b.Index = new(uint256.Int).Set(index)
	if increase.IsZero() {
		return nil
	}
	s.t.emit(events.LendingTokenMint{
		Token:           s.addr,
		Caller:          holder,
		OnBehalfOf:      holder,
		Value:           increase,
		BalanceIncrease: increase,
		Index:           new(uint256.Int).Set(index),
	})
	return nil
}

// markMint records the timestamp used by the same block repay guard.
func (t *txn) markMint(token, holder common.Address) {
	b := t.balance(token, holder)
	b.LastMint = t.now()
	b.Minted = true
}

// decreaseBorrowAllowance consumes credit delegated by delegator to
// delegatee on a debt token.
func (t *txn) decreaseBorrowAllowance(debtToken, delegator, delegatee common.Address, amount *uint256.Int) error {
	allowed := t.allowance(debtToken, delegator, delegatee)
	if allowed.Lt(amount) {
		return ErrBorrowAllowanceNotEnough
	}
	remaining := new(uint256.Int).Sub(allowed, amount)
	t.setAllowance(debtToken, delegator, delegatee, remaining)
	t.emit(events.LendingBorrowAllowance{Token: debtToken, From: delegator, To: delegatee, Amount: remaining})
	return nil
}
