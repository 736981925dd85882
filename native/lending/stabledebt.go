package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/native/lending/wadray"
)

// stableDebtToken tracks fixed rate loans. Each holder carries a principal,
// a personal rate and the time of the last rate change; the token carries
// the principal total, the weighted average rate and the supply timestamp.
type stableDebtToken struct {
	t    *txn
	addr common.Address
}

func (t *txn) stableDebt(r *ReserveData) stableDebtToken {
	return stableDebtToken{t: t, addr: r.StableDebtAddress}
}

func (s stableDebtToken) principalOf(holder common.Address) *uint256.Int {
	return new(uint256.Int).Set(s.t.balance(s.addr, holder).Amount)
}

func (s stableDebtToken) userRate(holder common.Address) *uint256.Int {
	return new(uint256.Int).Set(s.t.balance(s.addr, holder).Index)
}

func (s stableDebtToken) userLastUpdated(holder common.Address) uint64 {
	return s.t.balance(s.addr, holder).Timestamp
}

func (s stableDebtToken) averageRate() *uint256.Int {
	return new(uint256.Int).Set(s.t.supply(s.addr).AvgRate)
}

func (s stableDebtToken) balanceOf(holder common.Address) (*uint256.Int, error) {
	b := s.t.balance(s.addr, holder)
	if b.Amount.IsZero() {
		return new(uint256.Int), nil
	}
	factor, err := wadray.CompoundedInterest(b.Index, b.Timestamp, s.t.now())
	if err != nil {
		return nil, err
	}
	return wadray.RayMul(b.Amount, factor)
}

func (s stableDebtToken) totalSupply() (*uint256.Int, error) {
	sup := s.t.supply(s.addr)
	if sup.Total.IsZero() {
		return new(uint256.Int), nil
	}
	factor, err := wadray.CompoundedInterest(sup.AvgRate, sup.Timestamp, s.t.now())
	if err != nil {
		return nil, err
	}
	return wadray.RayMul(sup.Total, factor)
}

// principalTotalAt projects the principal total from its last update to at.
func (s stableDebtToken) principalTotalAt(at uint64) (*uint256.Int, error) {
	sup := s.t.supply(s.addr)
	factor, err := wadray.CompoundedInterest(sup.AvgRate, sup.Timestamp, at)
	if err != nil {
		return nil, err
	}
	return wadray.RayMul(sup.Total, factor)
}

func (s stableDebtToken) balanceIncrease(holder common.Address) (current, increase *uint256.Int, err error) {
	principal := s.principalOf(holder)
	if principal.IsZero() {
		return new(uint256.Int), new(uint256.Int), nil
	}
	current, err = s.balanceOf(holder)
	if err != nil {
		return nil, nil, err
	}
	return current, wadray.SubFloor(current, principal), nil
}

func weightedRate(rateA, amountA, rateB, amountB, total *uint256.Int) (*uint256.Int, error) {
	rayA, err := wadray.WadToRay(amountA)
	if err != nil {
		return nil, err
	}
	rayB, err := wadray.WadToRay(amountB)
	if err != nil {
		return nil, err
	}
	partA, err := wadray.RayMul(rateA, rayA)
	if err != nil {
		return nil, err
	}
	partB, err := wadray.RayMul(rateB, rayB)
	if err != nil {
		return nil, err
	}
	sum, err := wadray.Add(partA, partB)
	if err != nil {
		return nil, err
	}
	totalRay, err := wadray.WadToRay(total)
	if err != nil {
		return nil, err
	}
	return wadray.RayDiv(sum, totalRay)
}

// mint opens or extends onBehalfOf's stable position at rate. It returns
// whether the position is new, the next total supply and the average rate.
func (s stableDebtToken) mint(user, onBehalfOf common.Address, amount, rate *uint256.Int) (bool, *uint256.Int, *uint256.Int, error) {
	current, increase, err := s.balanceIncrease(onBehalfOf)
	if err != nil {
		return false, nil, nil, err
	}
	previousSupply, err := s.totalSupply()
	if err != nil {
		return false, nil, nil, err
	}
	nextSupply, err := wadray.Add(previousSupply, amount)
	if err != nil {
		return false, nil, nil, err
	}
	b := s.t.balance(s.addr, onBehalfOf)
	sup := s.t.supply(s.addr)

	newBalance, err := wadray.Add(current, amount)
	if err != nil {
		return false, nil, nil, err
	}
	nextRate, err := weightedRate(b.Index, current, rate, amount, newBalance)
	if err != nil {
		return false, nil, nil, err
	}
	if nextRate, err = wadray.ToUint128(nextRate); err != nil {
		return false, nil, nil, err
	}
	avg, err := weightedRate(sup.AvgRate, previousSupply, rate, amount, nextSupply)
	if err != nil {
		return false, nil, nil, err
	}
	if avg, err = wadray.ToUint128(avg); err != nil {
		return false, nil, nil, err
	}

	now := s.t.now()
	b.Index = nextRate
	b.Timestamp = now
	b.LastMint = now
	b.Minted = true
	toMint, err := wadray.Add(amount, increase)
	if err != nil {
		return false, nil, nil, err
	}
	if b.Amount, err = wadray.Add(b.Amount, toMint); err != nil {
		return false, nil, nil, err
	}
	sup.Total = new(uint256.Int).Set(nextSupply)
	sup.AvgRate = new(uint256.Int).Set(avg)
	sup.Timestamp = now

	s.t.emit(events.LendingStableDebtMint{
		Token:           s.addr,
		User:            user,
		OnBehalfOf:      onBehalfOf,
		Amount:          toMint,
		CurrentBalance:  current,
		BalanceIncrease: increase,
		NewRate:         new(uint256.Int).Set(nextRate),
		AvgStableRate:   new(uint256.Int).Set(avg),
		NewTotalSupply:  new(uint256.Int).Set(nextSupply),
	})
	return current.IsZero(), nextSupply, avg, nil
}

// burn repays amount of from's stable debt and returns the next total supply
// and average rate. When the departing loan's weight reaches the whole
// weighted supply the average rate and the stored total drop to zero.
func (s stableDebtToken) burn(from common.Address, amount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	current, increase, err := s.balanceIncrease(from)
	if err != nil {
		return nil, nil, err
	}
	previousSupply, err := s.totalSupply()
	if err != nil {
		return nil, nil, err
	}
	b := s.t.balance(s.addr, from)
	sup := s.t.supply(s.addr)
	userRate := new(uint256.Int).Set(b.Index)
	nextSupply := new(uint256.Int)
	nextAvg := new(uint256.Int)

	if previousSupply.Cmp(amount) <= 0 {
		sup.Total = new(uint256.Int)
		sup.AvgRate = new(uint256.Int)
	} else {
		nextSupply.Sub(previousSupply, amount)
		sup.Total = new(uint256.Int).Set(nextSupply)
		previousRay, err := wadray.WadToRay(previousSupply)
		if err != nil {
			return nil, nil, err
		}
		firstTerm, err := wadray.RayMul(sup.AvgRate, previousRay)
		if err != nil {
			return nil, nil, err
		}
		amountRay, err := wadray.WadToRay(amount)
		if err != nil {
			return nil, nil, err
		}
		secondTerm, err := wadray.RayMul(userRate, amountRay)
		if err != nil {
			return nil, nil, err
		}
		if secondTerm.Cmp(firstTerm) >= 0 {
			sup.Total = new(uint256.Int)
			sup.AvgRate = new(uint256.Int)
		} else {
			nextRay, err := wadray.WadToRay(nextSupply)
			if err != nil {
				return nil, nil, err
			}
			if nextAvg, err = wadray.RayDiv(new(uint256.Int).Sub(firstTerm, secondTerm), nextRay); err != nil {
				return nil, nil, err
			}
			if nextAvg, err = wadray.ToUint128(nextAvg); err != nil {
				return nil, nil, err
			}
			sup.AvgRate = new(uint256.Int).Set(nextAvg)
		}
	}

	now := s.t.now()
	if amount.Eq(current) {
		b.Index = new(uint256.Int)
		b.Timestamp = 0
	} else {
		b.Timestamp = now
	}
	sup.Timestamp = now

	if increase.Gt(amount) {
		toMint := new(uint256.Int).Sub(increase, amount)
		if b.Amount, err = wadray.Add(b.Amount, toMint); err != nil {
			return nil, nil, err
		}
		s.t.emit(events.LendingStableDebtMint{
			Token:           s.addr,
			User:            from,
			OnBehalfOf:      from,
			Amount:          toMint,
			CurrentBalance:  current,
			BalanceIncrease: increase,
			NewRate:         userRate,
			AvgStableRate:   new(uint256.Int).Set(nextAvg),
			NewTotalSupply:  new(uint256.Int).Set(nextSupply),
		})
		return nextSupply, nextAvg, nil
	}
	toBurn := new(uint256.Int).Sub(amount, increase)
	b.Amount = wadray.SubFloor(b.Amount, toBurn)
	s.t.emit(events.LendingStableDebtBurn{
		Token:           s.addr,
		From:            from,
		Amount:          toBurn,
		CurrentBalance:  current,
		BalanceIncrease: increase,
		AvgStableRate:   new(uint256.Int).Set(nextAvg),
		NewTotalSupply:  new(uint256.Int).Set(nextSupply),
	})
	return nextSupply, nextAvg, nil
}
