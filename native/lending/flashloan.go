package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/native/lending/wadray"
)

const (
	// DefaultFlashLoanPremiumTotal is the flash loan fee in basis points.
	DefaultFlashLoanPremiumTotal = 9
	// DefaultFlashLoanPremiumToProtocol is the treasury share of the fee.
	DefaultFlashLoanPremiumToProtocol = 0
)

// FlashLoanRequest describes the funds a receiver holds during its callback.
type FlashLoanRequest struct {
	Assets    []common.Address
	Amounts   []*uint256.Int
	Premiums  []*uint256.Int
	Initiator common.Address
	Params    []byte
}

// FlashLoanReceiver is invoked while it holds borrowed funds. Before
// returning true it must approve the pool for amount plus premium of every
// asset borrowed without opening debt.
type FlashLoanReceiver interface {
	Address() common.Address
	ExecuteOperation(ledger *FlashLoanLedger, req FlashLoanRequest) bool
}

// FlashLoanLedger is the underlying ledger as seen by a receiver during its
// callback. Every movement acts as the receiver and lands in the same
// atomic call as the loan.
type FlashLoanLedger struct {
	t    *txn
	self common.Address
}

// Pool returns the address the receiver approves for repayment.
func (l *FlashLoanLedger) Pool() common.Address { return l.t.pool }

// BalanceOf returns holder's underlying balance.
func (l *FlashLoanLedger) BalanceOf(asset, holder common.Address) *uint256.Int {
	return l.t.underlyingBalance(asset, holder)
}

// Transfer moves the receiver's underlying to to.
func (l *FlashLoanLedger) Transfer(asset, to common.Address, amount *uint256.Int) error {
	return l.t.transferUnderlying(asset, l.self, to, amount)
}

// Approve sets spender's allowance over the receiver's underlying.
func (l *FlashLoanLedger) Approve(asset, spender common.Address, amount *uint256.Int) {
	l.t.setAllowance(asset, l.self, spender, amount)
}

func (t *txn) flashLoanPremium(initiator common.Address, amount *uint256.Int, mode InterestRateMode) (*uint256.Int, error) {
	if mode != RateModeNone || (t.acl != nil && t.acl.IsFlashBorrower(initiator)) {
		return new(uint256.Int), nil
	}
	return wadray.PercentMul(amount, t.settings.FlashLoanPremiumTotal)
}

// repayFlashLoan pulls amount plus premium back from the receiver and
// splits the premium between suppliers and the treasury.
func (t *txn) repayFlashLoan(asset, receiver common.Address, amount, premium *uint256.Int) error {
	r, err := t.reserve(asset)
	if err != nil {
		return err
	}
	toProtocol, err := wadray.PercentMul(premium, t.settings.FlashLoanPremiumToProtocol)
	if err != nil {
		return err
	}
	toLP := wadray.SubFloor(premium, toProtocol)
	total, err := wadray.Add(amount, premium)
	if err != nil {
		return err
	}
	if err := t.updateState(r); err != nil {
		return err
	}
	index := new(uint256.Int).Set(r.LiquidityIndex)
	supplied, err := t.aToken(r).totalSupply(index)
	if err != nil {
		return err
	}
	accrued, err := wadray.RayMul(wadray.Or(r.AccruedToTreasury), index)
	if err != nil {
		return err
	}
	liquidity, err := wadray.Add(supplied, accrued)
	if err != nil {
		return err
	}
	if !toLP.IsZero() {
		if err := t.cumulateToLiquidityIndex(r, liquidity, toLP); err != nil {
			return err
		}
	}
	if !toProtocol.IsZero() {
		scaled, err := wadray.RayDiv(toProtocol, r.LiquidityIndex)
		if err != nil {
			return err
		}
		accrued, err := wadray.Add(wadray.Or(r.AccruedToTreasury), scaled)
		if err != nil {
			return err
		}
		if r.AccruedToTreasury, err = wadray.ToUint128(accrued); err != nil {
			return err
		}
	}
	if err := t.updateInterestRates(asset, r, total, nil); err != nil {
		return err
	}
	return t.transferUnderlyingFrom(asset, t.pool, receiver, r.ATokenAddress, total)
}

func (t *txn) executeFlashLoan(caller common.Address, receiver FlashLoanReceiver, assets []common.Address, amounts []*uint256.Int, modes []InterestRateMode, onBehalfOf common.Address, params []byte, referral uint16, simple bool) error {
	if receiver == nil {
		return ErrNoFlashLoanReceiver
	}
	if len(assets) == 0 || len(assets) != len(amounts) || len(assets) != len(modes) {
		return ErrInconsistentFlashloanParams
	}
	target := receiver.Address()
	premiums := make([]*uint256.Int, len(assets))
	for i, asset := range assets {
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		if err := validateFlashloanReserve(r); err != nil {
			return err
		}
		if modes[i] > RateModeVariable {
			return ErrInvalidInterestRateModeSelected
		}
		if amounts[i] == nil {
			return ErrInvalidAmount
		}
		if simple {
			premiums[i], err = wadray.PercentMul(amounts[i], t.settings.FlashLoanPremiumTotal)
		} else {
			premiums[i], err = t.flashLoanPremium(caller, amounts[i], modes[i])
		}
		if err != nil {
			return err
		}
		if err := t.transferUnderlying(asset, r.ATokenAddress, target, amounts[i]); err != nil {
			return err
		}
	}

	req := FlashLoanRequest{Assets: assets, Amounts: amounts, Premiums: premiums, Initiator: caller, Params: params}
	if !receiver.ExecuteOperation(&FlashLoanLedger{t: t, self: target}, req) {
		return ErrInvalidFlashLoanExecutorReturn
	}

	for i, asset := range assets {
		if modes[i] == RateModeNone {
			if err := t.repayFlashLoan(asset, target, amounts[i], premiums[i]); err != nil {
				return err
			}
		} else {
			if err := t.executeBorrow(borrowParams{
				asset:      asset,
				user:       caller,
				onBehalfOf: onBehalfOf,
				amount:     amounts[i],
				mode:       modes[i],
				referral:   referral,
			}); err != nil {
				return err
			}
		}
		t.emit(events.LendingFlashLoan{
			Target:           target,
			Initiator:        caller,
			Asset:            asset,
			Amount:           new(uint256.Int).Set(amounts[i]),
			InterestRateMode: uint8(modes[i]),
			Premium:          new(uint256.Int).Set(premiums[i]),
			ReferralCode:     referral,
		})
	}
	return nil
}

// FlashLoan lends assets to receiver for the duration of its callback. For
// each asset a mode of zero requires repayment with premium; stable or
// variable keeps the funds as debt of onBehalfOf.
func (p *Pool) FlashLoan(caller common.Address, receiver FlashLoanReceiver, assets []common.Address, amounts []*uint256.Int, modes []InterestRateMode, onBehalfOf common.Address, params []byte, referral uint16) error {
	return p.run("flashLoan", func(t *txn) error {
		return t.executeFlashLoan(caller, receiver, assets, amounts, modes, onBehalfOf, params, referral, false)
	})
}

// FlashLoanSimple lends a single asset that must be repaid with premium.
// Flash borrowers are charged as well.
func (p *Pool) FlashLoanSimple(caller common.Address, receiver FlashLoanReceiver, asset common.Address, amount *uint256.Int, params []byte, referral uint16) error {
	return p.run("flashLoanSimple", func(t *txn) error {
		return t.executeFlashLoan(caller, receiver, []common.Address{asset}, []*uint256.Int{amount},
			[]InterestRateMode{RateModeNone}, caller, params, referral, true)
	})
}
