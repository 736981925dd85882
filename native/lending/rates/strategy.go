// Package rates maps reserve utilisation to borrow and supply rates.
package rates

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"lendcore/native/lending/wadray"
)

var (
	errInvalidOptimalUsage  = errors.New("rates: optimal usage ratio must be in (0, RAY]")
	errInvalidOptimalStable = errors.New("rates: optimal stable to total debt ratio must be in [0, RAY]")
	// ErrUnknownStrategy is returned when a registry lookup misses.
	ErrUnknownStrategy = errors.New("rates: unknown strategy")
)

// Params carries the reserve figures a strategy prices.
type Params struct {
	AvailableLiquidity      *uint256.Int
	TotalStableDebt         *uint256.Int
	TotalVariableDebt       *uint256.Int
	AverageStableBorrowRate *uint256.Int
	// ReserveFactor in basis points.
	ReserveFactor uint64
}

// Rates are per-year ray rates.
type Rates struct {
	LiquidityRate      *uint256.Int
	StableBorrowRate   *uint256.Int
	VariableBorrowRate *uint256.Int
}

// Strategy computes reserve rates from Params. Implementations must be pure.
type Strategy interface {
	CalculateRates(Params) (Rates, error)
}

// DefaultOptimalUsageRatio is 80% in ray.
var DefaultOptimalUsageRatio = uint256.MustFromDecimal("800000000000000000000000000")

// DefaultStrategy is the two-slope utilisation curve.
type DefaultStrategy struct {
	OptimalUsageRatio             *uint256.Int
	OptimalStableToTotalDebtRatio *uint256.Int
	BaseVariableBorrowRate        *uint256.Int
	VariableRateSlope1            *uint256.Int
	VariableRateSlope2            *uint256.Int
	StableRateSlope1              *uint256.Int
	StableRateSlope2              *uint256.Int
	BaseStableRateOffset          *uint256.Int
	StableRateExcessOffset        *uint256.Int

	maxExcessUsageRatio  *uint256.Int
	maxExcessStableRatio *uint256.Int
}

// NewDefaultStrategy validates the curve and precomputes the excess ranges.
// Nil fields are treated as zero, a nil optimal usage ratio as 80%.
func NewDefaultStrategy(s DefaultStrategy) (*DefaultStrategy, error) {
	out := s
	if out.OptimalUsageRatio == nil {
		out.OptimalUsageRatio = new(uint256.Int).Set(DefaultOptimalUsageRatio)
	}
	if out.OptimalUsageRatio.IsZero() || out.OptimalUsageRatio.Cmp(wadray.RAY) > 0 {
		return nil, errInvalidOptimalUsage
	}
	out.OptimalStableToTotalDebtRatio = wadray.Or(out.OptimalStableToTotalDebtRatio)
	if out.OptimalStableToTotalDebtRatio.Cmp(wadray.RAY) > 0 {
		return nil, errInvalidOptimalStable
	}
	out.BaseVariableBorrowRate = wadray.Or(out.BaseVariableBorrowRate)
	out.VariableRateSlope1 = wadray.Or(out.VariableRateSlope1)
	out.VariableRateSlope2 = wadray.Or(out.VariableRateSlope2)
	out.StableRateSlope1 = wadray.Or(out.StableRateSlope1)
	out.StableRateSlope2 = wadray.Or(out.StableRateSlope2)
	out.BaseStableRateOffset = wadray.Or(out.BaseStableRateOffset)
	out.StableRateExcessOffset = wadray.Or(out.StableRateExcessOffset)
	out.maxExcessUsageRatio = new(uint256.Int).Sub(wadray.RAY, out.OptimalUsageRatio)
	out.maxExcessStableRatio = new(uint256.Int).Sub(wadray.RAY, out.OptimalStableToTotalDebtRatio)
	return &out, nil
}

// BaseStableBorrowRate is the stable rate at zero utilisation.
func (s *DefaultStrategy) BaseStableBorrowRate() *uint256.Int {
	return new(uint256.Int).Add(s.VariableRateSlope1, s.BaseStableRateOffset)
}

// MaxVariableBorrowRate is the variable rate at full utilisation.
func (s *DefaultStrategy) MaxVariableBorrowRate() *uint256.Int {
	out := new(uint256.Int).Add(s.BaseVariableBorrowRate, s.VariableRateSlope1)
	return out.Add(out, s.VariableRateSlope2)
}

// CalculateRates implements Strategy.
func (s *DefaultStrategy) CalculateRates(p Params) (Rates, error) {
	stableDebt := wadray.Or(p.TotalStableDebt)
	variableDebt := wadray.Or(p.TotalVariableDebt)
	totalDebt, err := wadray.Add(stableDebt, variableDebt)
	if err != nil {
		return Rates{}, err
	}

	variableRate := new(uint256.Int).Set(s.BaseVariableBorrowRate)
	stableRate := s.BaseStableBorrowRate()
	usage := new(uint256.Int)
	stableToTotal := new(uint256.Int)

	if !totalDebt.IsZero() {
		if stableToTotal, err = wadray.RayDiv(stableDebt, totalDebt); err != nil {
			return Rates{}, err
		}
		liquidityPlusDebt, err := wadray.Add(p.AvailableLiquidity, totalDebt)
		if err != nil {
			return Rates{}, err
		}
		if usage, err = wadray.RayDiv(totalDebt, liquidityPlusDebt); err != nil {
			return Rates{}, err
		}
	}

	if usage.Cmp(s.OptimalUsageRatio) > 0 {
		excess, err := wadray.RayDiv(new(uint256.Int).Sub(usage, s.OptimalUsageRatio), s.maxExcessUsageRatio)
		if err != nil {
			return Rates{}, err
		}
		stableExtra, err := wadray.RayMul(s.StableRateSlope2, excess)
		if err != nil {
			return Rates{}, err
		}
		stableRate.Add(stableRate, s.StableRateSlope1).Add(stableRate, stableExtra)
		variableExtra, err := wadray.RayMul(s.VariableRateSlope2, excess)
		if err != nil {
			return Rates{}, err
		}
		variableRate.Add(variableRate, s.VariableRateSlope1).Add(variableRate, variableExtra)
	} else {
		stablePart, err := slopeShare(s.StableRateSlope1, usage, s.OptimalUsageRatio)
		if err != nil {
			return Rates{}, err
		}
		stableRate.Add(stableRate, stablePart)
		variablePart, err := slopeShare(s.VariableRateSlope1, usage, s.OptimalUsageRatio)
		if err != nil {
			return Rates{}, err
		}
		variableRate.Add(variableRate, variablePart)
	}

	if stableToTotal.Cmp(s.OptimalStableToTotalDebtRatio) > 0 && !s.maxExcessStableRatio.IsZero() {
		excessStable, err := wadray.RayDiv(new(uint256.Int).Sub(stableToTotal, s.OptimalStableToTotalDebtRatio), s.maxExcessStableRatio)
		if err != nil {
			return Rates{}, err
		}
		offset, err := wadray.RayMul(s.StableRateExcessOffset, excessStable)
		if err != nil {
			return Rates{}, err
		}
		stableRate.Add(stableRate, offset)
	}

	overall, err := OverallBorrowRate(stableDebt, variableDebt, variableRate, p.AverageStableBorrowRate)
	if err != nil {
		return Rates{}, err
	}
	liquidityRate, err := wadray.RayMul(overall, usage)
	if err != nil {
		return Rates{}, err
	}
	factor := uint64(wadray.PercentageFactor)
	if p.ReserveFactor < factor {
		factor -= p.ReserveFactor
	} else {
		factor = 0
	}
	if liquidityRate, err = wadray.PercentMul(liquidityRate, factor); err != nil {
		return Rates{}, err
	}
	return Rates{LiquidityRate: liquidityRate, StableBorrowRate: stableRate, VariableBorrowRate: variableRate}, nil
}

func slopeShare(slope, usage, optimal *uint256.Int) (*uint256.Int, error) {
	scaled, err := wadray.RayMul(slope, usage)
	if err != nil {
		return nil, err
	}
	return wadray.RayDiv(scaled, optimal)
}

// OverallBorrowRate is the debt weighted mix of the variable rate and the
// average stable rate.
func OverallBorrowRate(stableDebt, variableDebt, variableRate, avgStableRate *uint256.Int) (*uint256.Int, error) {
	total, err := wadray.Add(stableDebt, variableDebt)
	if err != nil {
		return nil, err
	}
	if total.IsZero() {
		return new(uint256.Int), nil
	}
	variableRay, err := wadray.WadToRay(variableDebt)
	if err != nil {
		return nil, err
	}
	weightedVariable, err := wadray.RayMul(variableRay, variableRate)
	if err != nil {
		return nil, err
	}
	stableRay, err := wadray.WadToRay(stableDebt)
	if err != nil {
		return nil, err
	}
	weightedStable, err := wadray.RayMul(stableRay, avgStableRate)
	if err != nil {
		return nil, err
	}
	sum, err := wadray.Add(weightedVariable, weightedStable)
	if err != nil {
		return nil, err
	}
	totalRay, err := wadray.WadToRay(total)
	if err != nil {
		return nil, err
	}
	return wadray.RayDiv(sum, totalRay)
}

// Registry holds named strategies so reserves can reference them by id.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds or replaces a strategy.
func (r *Registry) Register(id string, s Strategy) error {
	if id == "" || s == nil {
		return fmt.Errorf("rates: strategy id and implementation required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[id] = s
	return nil
}

// Lookup resolves a strategy id.
func (r *Registry) Lookup(id string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, id)
	}
	return s, nil
}

// IDs lists registered strategy ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
