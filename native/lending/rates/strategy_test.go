package rates

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"lendcore/native/lending/wadray"
)

func mustRay(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := wadray.ParseRay(s)
	if err != nil {
		t.Fatalf("parse ray %q: %v", s, err)
	}
	return v
}

func wad(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), wadray.WAD)
}

func newTestStrategy(t *testing.T) *DefaultStrategy {
	t.Helper()
	s, err := NewDefaultStrategy(DefaultStrategy{
		VariableRateSlope1:   mustRay(t, "0.04"),
		VariableRateSlope2:   mustRay(t, "0.75"),
		StableRateSlope1:     mustRay(t, "0.02"),
		StableRateSlope2:     mustRay(t, "0.75"),
		BaseStableRateOffset: mustRay(t, "0.02"),
	})
	if err != nil {
		t.Fatalf("new strategy: %v", err)
	}
	return s
}

func TestRatesWithoutDebt(t *testing.T) {
	s := newTestStrategy(t)
	got, err := s.CalculateRates(Params{AvailableLiquidity: wad(100)})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !got.VariableBorrowRate.IsZero() || !got.LiquidityRate.IsZero() {
		t.Fatalf("expected zero variable and liquidity rate, got %s / %s", got.VariableBorrowRate, got.LiquidityRate)
	}
	if want := mustRay(t, "0.06"); !got.StableBorrowRate.Eq(want) {
		t.Fatalf("unexpected base stable rate: got %s want %s", got.StableBorrowRate, want)
	}
}

func TestRatesBelowOptimal(t *testing.T) {
	s := newTestStrategy(t)
	got, err := s.CalculateRates(Params{
		AvailableLiquidity: wad(60),
		TotalVariableDebt:  wad(40),
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if want := mustRay(t, "0.02"); !got.VariableBorrowRate.Eq(want) {
		t.Fatalf("unexpected variable rate: got %s want %s", got.VariableBorrowRate, want)
	}
	if want := mustRay(t, "0.008"); !got.LiquidityRate.Eq(want) {
		t.Fatalf("unexpected liquidity rate: got %s want %s", got.LiquidityRate, want)
	}

	withFactor, err := s.CalculateRates(Params{
		AvailableLiquidity: wad(60),
		TotalVariableDebt:  wad(40),
		ReserveFactor:      1_000,
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if want := mustRay(t, "0.0072"); !withFactor.LiquidityRate.Eq(want) {
		t.Fatalf("reserve factor not applied: got %s want %s", withFactor.LiquidityRate, want)
	}
}

func TestRatesAboveOptimal(t *testing.T) {
	s := newTestStrategy(t)
	got, err := s.CalculateRates(Params{
		AvailableLiquidity: wad(10),
		TotalVariableDebt:  wad(90),
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if want := mustRay(t, "0.415"); !got.VariableBorrowRate.Eq(want) {
		t.Fatalf("unexpected variable rate: got %s want %s", got.VariableBorrowRate, want)
	}
	if got.VariableBorrowRate.Cmp(s.MaxVariableBorrowRate()) > 0 {
		t.Fatalf("variable rate above max")
	}
}

func TestRatesAreMonotonicInUtilisation(t *testing.T) {
	s := newTestStrategy(t)
	prev := new(uint256.Int)
	for debt := uint64(0); debt <= 100; debt += 5 {
		got, err := s.CalculateRates(Params{
			AvailableLiquidity: wad(100 - debt),
			TotalVariableDebt:  wad(debt),
		})
		if err != nil {
			t.Fatalf("calculate at %d: %v", debt, err)
		}
		if got.VariableBorrowRate.Cmp(prev) < 0 {
			t.Fatalf("variable rate decreased at debt %d", debt)
		}
		prev = got.VariableBorrowRate
	}
}

func TestNewDefaultStrategyValidates(t *testing.T) {
	if _, err := NewDefaultStrategy(DefaultStrategy{OptimalUsageRatio: new(uint256.Int)}); !errors.Is(err, errInvalidOptimalUsage) {
		t.Fatalf("expected invalid optimal usage, got %v", err)
	}
	tooHigh := new(uint256.Int).AddUint64(wadray.RAY, 1)
	if _, err := NewDefaultStrategy(DefaultStrategy{OptimalStableToTotalDebtRatio: tooHigh}); !errors.Is(err, errInvalidOptimalStable) {
		t.Fatalf("expected invalid stable ratio, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	s := newTestStrategy(t)
	if err := r.Register("stable", s); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.Lookup("volatile"); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected unknown strategy, got %v", err)
	}
	got, err := r.Lookup("stable")
	if err != nil || got != Strategy(s) {
		t.Fatalf("lookup returned %v, %v", got, err)
	}
}
