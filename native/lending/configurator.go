package lending

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/native/lending/wadray"
)

// InitReserveInput lists a new asset. Risk parameters start at zero and are
// set through the other configurator calls.
type InitReserveInput struct {
	Asset    common.Address
	Decimals uint8
	Strategy string
}

type authFunc func(*txn, common.Address) error

func (t *txn) hasSuppliers(r *ReserveData) bool {
	return !t.aToken(r).scaledTotalSupply().IsZero() || !wadray.IsZero(r.AccruedToTreasury)
}

func (t *txn) hasBorrowers(r *ReserveData) bool {
	return !t.supply(r.StableDebtAddress).Total.IsZero() || !t.variableDebt(r).scaledTotalSupply().IsZero()
}

func (t *txn) configChanged(asset common.Address, field string, value any) {
	t.emit(events.LendingReserveConfigChanged{Asset: asset, Field: field, Value: fmt.Sprint(value)})
}

// updateReserve runs fn against asset's reserve after auth and records the
// resulting value of field.
func (p *Pool) updateReserve(op string, caller, asset common.Address, auth authFunc, field string, fn func(*txn, *ReserveData) (any, error)) error {
	return p.run(op, func(t *txn) error {
		if err := auth(t, caller); err != nil {
			return err
		}
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		value, err := fn(t, r)
		if err != nil {
			return err
		}
		t.configChanged(asset, field, value)
		return nil
	})
}

// InitReserve lists an asset in the first free slot of the reserves list.
func (p *Pool) InitReserve(caller common.Address, in InitReserveInput) error {
	return p.run("initReserve", func(t *txn) error {
		if err := t.onlyAssetListingOrPoolAdmin(caller); err != nil {
			return err
		}
		if in.Asset == (common.Address{}) {
			return ErrZeroAddressNotValid
		}
		if _, listed := t.reserves.get(in.Asset); listed {
			return ErrReserveAlreadyInitialized
		}
		id := -1
		for i, asset := range t.list {
			if asset == (common.Address{}) {
				id = i
				break
			}
		}
		if id < 0 {
			if len(t.list) >= MaxReservesCount {
				return ErrNoMoreReservesAllowed
			}
			id = len(t.list)
			t.list = append(t.list, in.Asset)
		} else {
			t.list[id] = in.Asset
		}
		r := &ReserveData{
			ID: uint16(id),
			Configuration: ReserveConfiguration{
				Decimals: in.Decimals,
				Active:   true,
			},
			LiquidityIndex:            wadray.Ray(),
			VariableBorrowIndex:       wadray.Ray(),
			CurrentLiquidityRate:      new(uint256.Int),
			CurrentVariableBorrowRate: new(uint256.Int),
			CurrentStableBorrowRate:   new(uint256.Int),
			LastUpdateTimestamp:       t.now(),
			ATokenAddress:             tokenAddress(in.Asset, kindAToken),
			StableDebtAddress:         tokenAddress(in.Asset, kindStableDebt),
			VariableDebtAddress:       tokenAddress(in.Asset, kindVariableDebt),
			InterestRateStrategy:      in.Strategy,
			AccruedToTreasury:         new(uint256.Int),
		}
		if err := r.Configuration.Validate(); err != nil {
			return err
		}
		if _, err := t.strategyFor(r); err != nil {
			return err
		}
		t.reserves.put(in.Asset, r)
		t.emit(events.LendingReserveInitialized{
			Asset:             in.Asset,
			AToken:            r.ATokenAddress,
			StableDebtToken:   r.StableDebtAddress,
			VariableDebtToken: r.VariableDebtAddress,
			Strategy:          in.Strategy,
		})
		return nil
	})
}

// DropReserve delists an asset nobody supplies or owes.
func (p *Pool) DropReserve(caller, asset common.Address) error {
	return p.run("dropReserve", func(t *txn) error {
		if err := t.onlyPoolAdmin(caller); err != nil {
			return err
		}
		if asset == (common.Address{}) {
			return ErrZeroAddressNotValid
		}
		r, err := t.reserve(asset)
		if err != nil {
			return err
		}
		if err := t.validateDropReserve(asset, r); err != nil {
			return err
		}
		t.list[r.ID] = common.Address{}
		t.reserves.del(asset)
		t.emit(events.LendingReserveDropped{Asset: asset})
		return nil
	})
}

// SetSupplyCap limits total supply in whole units; zero disables the cap.
func (p *Pool) SetSupplyCap(caller, asset common.Address, supplyCap uint64) error {
	return p.updateReserve("setSupplyCap", caller, asset, (*txn).onlyRiskOrPoolAdmin, "supplyCap", func(_ *txn, r *ReserveData) (any, error) {
		if supplyCap > MaxValidSupplyCap {
			return nil, ErrInvalidSupplyCap
		}
		r.Configuration.SupplyCap = supplyCap
		return supplyCap, nil
	})
}

// SetBorrowCap limits total debt in whole units; zero disables the cap.
func (p *Pool) SetBorrowCap(caller, asset common.Address, borrowCap uint64) error {
	return p.updateReserve("setBorrowCap", caller, asset, (*txn).onlyRiskOrPoolAdmin, "borrowCap", func(_ *txn, r *ReserveData) (any, error) {
		if borrowCap > MaxValidBorrowCap {
			return nil, ErrInvalidBorrowCap
		}
		r.Configuration.BorrowCap = borrowCap
		return borrowCap, nil
	})
}

// ConfigureReserveAsCollateral sets the LTV, liquidation threshold and
// liquidation bonus of asset. A zero threshold disables the asset as
// collateral and requires that nobody supplies it.
func (p *Pool) ConfigureReserveAsCollateral(caller, asset common.Address, ltv, threshold, bonus uint64) error {
	return p.updateReserve("configureReserveAsCollateral", caller, asset, (*txn).onlyRiskOrPoolAdmin, "collateral", func(t *txn, r *ReserveData) (any, error) {
		if ltv > MaxValidLTV || threshold > MaxValidLiquidationThreshold || bonus > MaxValidLiquidationBonus {
			return nil, ErrInvalidReserveParams
		}
		if err := validateCollateralParams(ltv, threshold, bonus); err != nil {
			return nil, err
		}
		if threshold == 0 && t.hasSuppliers(r) {
			return nil, ErrReserveLiquidityNotZero
		}
		if c, ok := t.emode(r.Configuration.EModeCategory); ok && uint64(c.LiquidationThreshold) <= threshold {
			return nil, ErrInvalidEModeCategoryParams
		}
		r.Configuration.LTV = ltv
		r.Configuration.LiquidationThreshold = threshold
		r.Configuration.LiquidationBonus = bonus
		return fmt.Sprintf("%d/%d/%d", ltv, threshold, bonus), nil
	})
}

// SetReserveActive activates or deactivates asset. Deactivation requires
// that nobody supplies it.
func (p *Pool) SetReserveActive(caller, asset common.Address, active bool) error {
	return p.updateReserve("setReserveActive", caller, asset, (*txn).onlyPoolAdmin, "active", func(t *txn, r *ReserveData) (any, error) {
		if !active && t.hasSuppliers(r) {
			return nil, ErrReserveLiquidityNotZero
		}
		r.Configuration.Active = active
		return active, nil
	})
}

// SetReserveFreeze blocks new supply and borrow while letting positions
// unwind.
func (p *Pool) SetReserveFreeze(caller, asset common.Address, frozen bool) error {
	return p.updateReserve("setReserveFreeze", caller, asset, (*txn).onlyRiskOrPoolAdmin, "frozen", func(_ *txn, r *ReserveData) (any, error) {
		r.Configuration.Frozen = frozen
		return frozen, nil
	})
}

// SetReservePause halts every operation on asset.
func (p *Pool) SetReservePause(caller, asset common.Address, paused bool) error {
	return p.updateReserve("setReservePause", caller, asset, (*txn).onlyEmergencyOrPoolAdmin, "paused", func(_ *txn, r *ReserveData) (any, error) {
		r.Configuration.Paused = paused
		return paused, nil
	})
}

// SetPoolPause pauses or unpauses every listed reserve.
func (p *Pool) SetPoolPause(caller common.Address, paused bool) error {
	return p.run("setPoolPause", func(t *txn) error {
		if err := t.onlyEmergencyAdmin(caller); err != nil {
			return err
		}
		for _, asset := range t.list {
			if asset == (common.Address{}) {
				continue
			}
			r, err := t.reserve(asset)
			if err != nil {
				return err
			}
			r.Configuration.Paused = paused
			t.configChanged(asset, "paused", paused)
		}
		return nil
	})
}

// SetReserveBorrowing toggles borrowing. Stable borrowing must be disabled
// before borrowing is.
func (p *Pool) SetReserveBorrowing(caller, asset common.Address, enabled bool) error {
	return p.updateReserve("setReserveBorrowing", caller, asset, (*txn).onlyRiskOrPoolAdmin, "borrowing", func(_ *txn, r *ReserveData) (any, error) {
		if !enabled && r.Configuration.StableRateBorrowingEnabled {
			return nil, ErrStableBorrowingEnabled
		}
		r.Configuration.BorrowingEnabled = enabled
		return enabled, nil
	})
}

// SetReserveStableRateBorrowing toggles stable rate borrowing, which needs
// borrowing enabled.
func (p *Pool) SetReserveStableRateBorrowing(caller, asset common.Address, enabled bool) error {
	return p.updateReserve("setReserveStableRateBorrowing", caller, asset, (*txn).onlyRiskOrPoolAdmin, "stableBorrowing", func(_ *txn, r *ReserveData) (any, error) {
		if enabled && !r.Configuration.BorrowingEnabled {
			return nil, ErrBorrowingNotEnabled
		}
		r.Configuration.StableRateBorrowingEnabled = enabled
		return enabled, nil
	})
}

// SetReserveFlashLoaning toggles flash loans of asset.
func (p *Pool) SetReserveFlashLoaning(caller, asset common.Address, enabled bool) error {
	return p.updateReserve("setReserveFlashLoaning", caller, asset, (*txn).onlyRiskOrPoolAdmin, "flashLoan", func(_ *txn, r *ReserveData) (any, error) {
		r.Configuration.FlashLoanEnabled = enabled
		return enabled, nil
	})
}

// SetBorrowableInIsolation lets isolated positions borrow asset.
func (p *Pool) SetBorrowableInIsolation(caller, asset common.Address, borrowable bool) error {
	return p.updateReserve("setBorrowableInIsolation", caller, asset, (*txn).onlyRiskOrPoolAdmin, "borrowableInIsolation", func(_ *txn, r *ReserveData) (any, error) {
		r.Configuration.BorrowableInIsolation = borrowable
		return borrowable, nil
	})
}

// SetReserveFactor sets the protocol share of interest. Interest up to now
// accrues under the previous factor.
func (p *Pool) SetReserveFactor(caller, asset common.Address, factor uint64) error {
	return p.updateReserve("setReserveFactor", caller, asset, (*txn).onlyRiskOrPoolAdmin, "reserveFactor", func(t *txn, r *ReserveData) (any, error) {
		if factor > wadray.PercentageFactor {
			return nil, ErrInvalidReserveFactor
		}
		if err := t.updateState(r); err != nil {
			return nil, err
		}
		r.Configuration.ReserveFactor = factor
		return factor, t.updateInterestRates(asset, r, nil, nil)
	})
}

// SetReserveInterestRateStrategy switches asset to a registered strategy.
func (p *Pool) SetReserveInterestRateStrategy(caller, asset common.Address, strategy string) error {
	return p.updateReserve("setReserveInterestRateStrategy", caller, asset, (*txn).onlyRiskOrPoolAdmin, "strategy", func(t *txn, r *ReserveData) (any, error) {
		if err := t.updateState(r); err != nil {
			return nil, err
		}
		if t.strategies == nil {
			return nil, ErrInvalidStrategy
		}
		if _, err := t.strategies.Lookup(strategy); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStrategy, err)
		}
		r.InterestRateStrategy = strategy
		return strategy, t.updateInterestRates(asset, r, nil, nil)
	})
}

// SetDebtCeiling isolates asset as collateral with the given ceiling, two
// decimals. Isolating a supplied asset is rejected; lifting the ceiling
// clears the isolated debt counter.
func (p *Pool) SetDebtCeiling(caller, asset common.Address, ceiling uint64) error {
	return p.updateReserve("setDebtCeiling", caller, asset, (*txn).onlyRiskOrPoolAdmin, "debtCeiling", func(t *txn, r *ReserveData) (any, error) {
		if ceiling > MaxValidDebtCeiling {
			return nil, ErrInvalidDebtCeiling
		}
		if r.Configuration.DebtCeiling == 0 && t.hasSuppliers(r) {
			return nil, ErrReserveLiquidityNotZero
		}
		r.Configuration.DebtCeiling = ceiling
		if ceiling == 0 {
			r.IsolationModeTotalDebt = 0
			t.emit(events.LendingIsolationDebtUpdated{Asset: asset})
		}
		return ceiling, nil
	})
}

// SetSiloedBorrowing makes asset the only one a borrower of it may owe.
// Enabling it on a borrowed asset is rejected.
func (p *Pool) SetSiloedBorrowing(caller, asset common.Address, siloed bool) error {
	return p.updateReserve("setSiloedBorrowing", caller, asset, (*txn).onlyRiskOrPoolAdmin, "siloedBorrowing", func(t *txn, r *ReserveData) (any, error) {
		if siloed && t.hasBorrowers(r) {
			return nil, ErrReserveDebtNotZero
		}
		r.Configuration.SiloedBorrowing = siloed
		return siloed, nil
	})
}

// SetLiquidationProtocolFee sets the treasury share of liquidation bonuses.
func (p *Pool) SetLiquidationProtocolFee(caller, asset common.Address, fee uint64) error {
	return p.updateReserve("setLiquidationProtocolFee", caller, asset, (*txn).onlyRiskOrPoolAdmin, "liquidationProtocolFee", func(_ *txn, r *ReserveData) (any, error) {
		if fee > wadray.PercentageFactor {
			return nil, ErrInvalidLiquidationProtocolFee
		}
		r.Configuration.LiquidationProtocolFee = fee
		return fee, nil
	})
}

// SetEModeCategory defines or updates an e-mode category. Its threshold
// must exceed that of every asset already assigned to it.
func (p *Pool) SetEModeCategory(caller common.Address, c EModeCategory) error {
	return p.run("setEModeCategory", func(t *txn) error {
		if err := t.onlyRiskOrPoolAdmin(caller); err != nil {
			return err
		}
		if c.ID == 0 {
			return ErrInvalidEModeCategory
		}
		if c.LTV == 0 || c.LiquidationThreshold == 0 || c.LTV > c.LiquidationThreshold {
			return ErrInvalidEModeCategoryParams
		}
		if uint64(c.LiquidationBonus) <= wadray.PercentageFactor {
			return ErrInvalidEModeCategoryParams
		}
		seized, err := wadray.PercentMul(uint256.NewInt(uint64(c.LiquidationThreshold)), uint64(c.LiquidationBonus))
		if err != nil {
			return err
		}
		if seized.Uint64() > wadray.PercentageFactor {
			return ErrInvalidEModeCategoryParams
		}
		for id := range t.list {
			_, r, ok := t.reserveAt(uint16(id))
			if !ok || r.Configuration.EModeCategory != c.ID {
				continue
			}
			if uint64(c.LiquidationThreshold) <= r.Configuration.LiquidationThreshold {
				return ErrInvalidEModeCategoryParams
			}
		}
		category := c
		t.emodes.put(c.ID, &category)
		t.emit(events.LendingEModeCategoryAdded{
			CategoryID:           c.ID,
			LTV:                  c.LTV,
			LiquidationThreshold: c.LiquidationThreshold,
			LiquidationBonus:     c.LiquidationBonus,
			PriceSource:          c.PriceSource,
			Label:                c.Label,
		})
		return nil
	})
}

// SetAssetEModeCategory assigns asset to category, or removes it with 0.
func (p *Pool) SetAssetEModeCategory(caller, asset common.Address, category uint8) error {
	return p.updateReserve("setAssetEModeCategory", caller, asset, (*txn).onlyRiskOrPoolAdmin, "emodeCategory", func(t *txn, r *ReserveData) (any, error) {
		if category != 0 {
			c, ok := t.emode(category)
			if !ok || uint64(c.LiquidationThreshold) <= r.Configuration.LiquidationThreshold {
				return nil, ErrInvalidEModeCategoryAssignment
			}
		}
		r.Configuration.EModeCategory = category
		return category, nil
	})
}

// UpdateFlashloanPremiumTotal sets the flash loan fee in basis points.
func (p *Pool) UpdateFlashloanPremiumTotal(caller common.Address, premium uint64) error {
	return p.updatePremiums("updateFlashloanPremiumTotal", caller, func(s *Settings) { s.FlashLoanPremiumTotal = premium }, premium)
}

// UpdateFlashloanPremiumToProtocol sets the treasury share of flash loan
// fees in basis points.
func (p *Pool) UpdateFlashloanPremiumToProtocol(caller common.Address, premium uint64) error {
	return p.updatePremiums("updateFlashloanPremiumToProtocol", caller, func(s *Settings) { s.FlashLoanPremiumToProtocol = premium }, premium)
}

func (p *Pool) updatePremiums(op string, caller common.Address, set func(*Settings), premium uint64) error {
	return p.run(op, func(t *txn) error {
		if err := t.onlyPoolAdmin(caller); err != nil {
			return err
		}
		if premium > wadray.PercentageFactor {
			return ErrFlashloanPremiumInvalid
		}
		set(&t.settings)
		t.emit(events.LendingFlashloanPremiumChanged{
			PremiumTotal:      t.settings.FlashLoanPremiumTotal,
			PremiumToProtocol: t.settings.FlashLoanPremiumToProtocol,
		})
		return nil
	})
}

// SetTreasury sets the receiver of protocol fees.
func (p *Pool) SetTreasury(caller, treasury common.Address) error {
	return p.run("setTreasury", func(t *txn) error {
		if err := t.onlyPoolAdmin(caller); err != nil {
			return err
		}
		if treasury == (common.Address{}) {
			return ErrZeroAddressNotValid
		}
		t.settings.Treasury = treasury
		return nil
	})
}

// MintToTreasury mints the accrued protocol share of assets to the
// treasury. Anyone may call it.
func (p *Pool) MintToTreasury(assets []common.Address) error {
	return p.run("mintToTreasury", func(t *txn) error {
		return t.mintToTreasury(assets)
	})
}
