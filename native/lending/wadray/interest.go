package wadray

import "github.com/holiman/uint256"

// SecondsPerYear is the accrual year used for per-second rates.
const SecondsPerYear = 365 * 24 * 60 * 60

var secondsPerYear = uint256.NewInt(SecondsPerYear)

// LinearInterest returns the ray factor accumulated by a continuously simple
// rate between last and now.
func LinearInterest(rate *uint256.Int, last, now uint64) (*uint256.Int, error) {
	if now <= last {
		return Ray(), nil
	}
	elapsed := uint256.NewInt(now - last)
	result, overflow := new(uint256.Int).MulOverflow(Or(rate), elapsed)
	if overflow {
		return nil, ErrMultiplicationOverflow
	}
	result.Div(result, secondsPerYear)
	return Add(result, RAY)
}

// CompoundedInterest approximates (1 + rate/SecondsPerYear)^elapsed with the
// first three terms of the binomial expansion. The approximation slightly
// undercounts interest, which favours borrowers.
func CompoundedInterest(rate *uint256.Int, last, now uint64) (*uint256.Int, error) {
	if now <= last {
		return Ray(), nil
	}
	rate = Or(rate)
	exp := now - last
	var expMinusOne, expMinusTwo uint64
	if exp > 2 {
		expMinusOne = exp - 1
		expMinusTwo = exp - 2
	} else if exp == 2 {
		expMinusOne = 1
	}

	squared, err := RayMul(rate, rate)
	if err != nil {
		return nil, err
	}
	spySquared := new(uint256.Int).Mul(secondsPerYear, secondsPerYear)
	basePowerTwo := new(uint256.Int).Div(squared, spySquared)

	cubed, err := RayMul(basePowerTwo, rate)
	if err != nil {
		return nil, err
	}
	basePowerThree := new(uint256.Int).Div(cubed, secondsPerYear)

	n := uint256.NewInt(exp)
	nn := new(uint256.Int).Mul(n, uint256.NewInt(expMinusOne))

	secondTerm, overflow := new(uint256.Int).MulOverflow(nn, basePowerTwo)
	if overflow {
		return nil, ErrMultiplicationOverflow
	}
	secondTerm.Rsh(secondTerm, 1)

	nnn, overflow := new(uint256.Int).MulOverflow(nn, uint256.NewInt(expMinusTwo))
	if overflow {
		return nil, ErrMultiplicationOverflow
	}
	thirdTerm, overflow := new(uint256.Int).MulOverflow(nnn, basePowerThree)
	if overflow {
		return nil, ErrMultiplicationOverflow
	}
	thirdTerm.Div(thirdTerm, uint256.NewInt(6))

	firstTerm, overflow := new(uint256.Int).MulOverflow(rate, n)
	if overflow {
		return nil, ErrMultiplicationOverflow
	}
	firstTerm.Div(firstTerm, secondsPerYear)

	out, err := Add(RAY, firstTerm)
	if err != nil {
		return nil, err
	}
	if out, err = Add(out, secondTerm); err != nil {
		return nil, err
	}
	return Add(out, thirdTerm)
}
