package config

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending"
	"lendcore/native/lending/rates"
	"lendcore/native/lending/wadray"
)

func parseRay(field, raw string) (*uint256.Int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := wadray.ParseRay(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

func (s Strategy) params() (rates.DefaultStrategy, error) {
	var out rates.DefaultStrategy
	for _, f := range []struct {
		name string
		raw  string
		dst  **uint256.Int
	}{
		{"OptimalUsageRatio", s.OptimalUsageRatio, &out.OptimalUsageRatio},
		{"OptimalStableToTotalDebtRatio", s.OptimalStableToTotalDebtRatio, &out.OptimalStableToTotalDebtRatio},
		{"BaseVariableBorrowRate", s.BaseVariableBorrowRate, &out.BaseVariableBorrowRate},
		{"VariableRateSlope1", s.VariableRateSlope1, &out.VariableRateSlope1},
		{"VariableRateSlope2", s.VariableRateSlope2, &out.VariableRateSlope2},
		{"StableRateSlope1", s.StableRateSlope1, &out.StableRateSlope1},
		{"StableRateSlope2", s.StableRateSlope2, &out.StableRateSlope2},
		{"BaseStableRateOffset", s.BaseStableRateOffset, &out.BaseStableRateOffset},
		{"StableRateExcessOffset", s.StableRateExcessOffset, &out.StableRateExcessOffset},
	} {
		v, err := parseRay(f.name, f.raw)
		if err != nil {
			return out, err
		}
		*f.dst = v
	}
	return out, nil
}

// Registry builds the strategy registry the pool prices reserves with.
func (m *Markets) Registry() (*rates.Registry, error) {
	registry := rates.NewRegistry()
	for id, s := range m.Strategies {
		params, err := s.params()
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", id, err)
		}
		strategy, err := rates.NewDefaultStrategy(params)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", id, err)
		}
		if err := registry.Register(id, strategy); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// ACL grants the configured roles.
func (m *Markets) ACL() *lending.StaticACL {
	acl := lending.NewStaticACL()
	for role, list := range map[lending.Role][]string{
		lending.RolePoolAdmin:         m.Admins.Pool,
		lending.RoleEmergencyAdmin:    m.Admins.Emergency,
		lending.RoleRiskAdmin:         m.Admins.Risk,
		lending.RoleAssetListingAdmin: m.Admins.AssetListing,
		lending.RoleFlashBorrower:     m.Admins.FlashBorrowers,
	} {
		for _, addr := range list {
			acl.Grant(role, common.HexToAddress(addr))
		}
	}
	return acl
}

// Oracle seeds a static oracle with the configured prices.
func (m *Markets) Oracle() (*lending.StaticOracle, error) {
	oracle := lending.NewStaticOracle()
	for _, r := range m.Reserves {
		if r.Price == "" {
			continue
		}
		price, err := parsePrice(r.Price)
		if err != nil {
			return nil, fmt.Errorf("reserve %s price: %w", r.Symbol, err)
		}
		oracle.SetAssetPrice(common.HexToAddress(r.Asset), price)
	}
	return oracle, nil
}

// Admin returns the pool admin used to apply the file.
func (m *Markets) Admin() common.Address { return common.HexToAddress(m.Admins.Pool[0]) }

// Apply drives the configurator. Pool settings and e-mode categories are
// always applied; reserves already listed, for example after a restore,
// keep their persisted parameters. It returns the number of reserves
// listed.
func (m *Markets) Apply(pool *lending.Pool) (int, error) {
	admin := m.Admin()
	if m.Treasury != "" {
		if err := pool.SetTreasury(admin, common.HexToAddress(m.Treasury)); err != nil {
			return 0, fmt.Errorf("treasury: %w", err)
		}
	}
	if m.FlashLoanPremiumTotal != nil {
		if err := pool.UpdateFlashloanPremiumTotal(admin, *m.FlashLoanPremiumTotal); err != nil {
			return 0, fmt.Errorf("flash loan premium: %w", err)
		}
	}
	if m.FlashLoanPremiumToProtocol != nil {
		if err := pool.UpdateFlashloanPremiumToProtocol(admin, *m.FlashLoanPremiumToProtocol); err != nil {
			return 0, fmt.Errorf("flash loan protocol premium: %w", err)
		}
	}
	for _, e := range m.EModes {
		category := lending.EModeCategory{
			ID:                   e.ID,
			LTV:                  e.LTV,
			LiquidationThreshold: e.LiquidationThreshold,
			LiquidationBonus:     e.LiquidationBonus,
			Label:                e.Label,
		}
		if e.PriceSource != "" {
			category.PriceSource = common.HexToAddress(e.PriceSource)
		}
		if err := pool.SetEModeCategory(admin, category); err != nil {
			return 0, fmt.Errorf("emode %d: %w", e.ID, err)
		}
	}

	listed := 0
	for _, r := range m.Reserves {
		asset := common.HexToAddress(r.Asset)
		if _, err := pool.ReserveData(asset); err == nil {
			continue
		} else if !errors.Is(err, lending.ErrAssetNotListed) {
			return listed, err
		}
		if err := listReserve(pool, admin, asset, r); err != nil {
			return listed, fmt.Errorf("reserve %s: %w", r.Symbol, err)
		}
		listed++
	}
	return listed, nil
}

func listReserve(pool *lending.Pool, admin, asset common.Address, r Reserve) error {
	if err := pool.InitReserve(admin, lending.InitReserveInput{Asset: asset, Decimals: r.Decimals, Strategy: r.Strategy}); err != nil {
		return err
	}
	steps := []struct {
		name string
		run  func() error
		skip bool
	}{
		{"collateral", func() error {
			return pool.ConfigureReserveAsCollateral(admin, asset, r.LTV, r.LiquidationThreshold, r.LiquidationBonus)
		}, r.LiquidationThreshold == 0},
		{"reserve factor", func() error { return pool.SetReserveFactor(admin, asset, r.ReserveFactor) }, r.ReserveFactor == 0},
		{"supply cap", func() error { return pool.SetSupplyCap(admin, asset, r.SupplyCap) }, r.SupplyCap == 0},
		{"borrow cap", func() error { return pool.SetBorrowCap(admin, asset, r.BorrowCap) }, r.BorrowCap == 0},
		{"borrowing", func() error { return pool.SetReserveBorrowing(admin, asset, true) }, !r.Borrowing},
		{"stable borrowing", func() error { return pool.SetReserveStableRateBorrowing(admin, asset, true) }, !r.StableBorrowing},
		{"flash loans", func() error { return pool.SetReserveFlashLoaning(admin, asset, true) }, !r.FlashLoans},
		{"isolation borrowing", func() error { return pool.SetBorrowableInIsolation(admin, asset, true) }, !r.BorrowableInIsolation},
		{"debt ceiling", func() error { return pool.SetDebtCeiling(admin, asset, r.DebtCeiling) }, r.DebtCeiling == 0},
		{"siloed", func() error { return pool.SetSiloedBorrowing(admin, asset, true) }, !r.Siloed},
		{"protocol fee", func() error { return pool.SetLiquidationProtocolFee(admin, asset, r.LiquidationProtocolFee) }, r.LiquidationProtocolFee == 0},
		{"emode", func() error { return pool.SetAssetEModeCategory(admin, asset, r.EModeCategory) }, r.EModeCategory == 0},
		{"frozen", func() error { return pool.SetReserveFreeze(admin, asset, true) }, !r.Frozen},
	}
	for _, step := range steps {
		if step.skip {
			continue
		}
		if err := step.run(); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}
