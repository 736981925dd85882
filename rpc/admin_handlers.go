package rpc

import (
	"github.com/ethereum/go-ethereum/common"

	"lendcore/gateway/middleware"
	"lendcore/native/lending"
	"lendcore/observability/logging"
)

type capParams struct {
	callerParam
	Asset string `json:"asset"`
	Cap   uint64 `json:"cap"`
}

type flagParams struct {
	callerParam
	Asset   string `json:"asset"`
	Enabled bool   `json:"enabled"`
}

type valueParams struct {
	callerParam
	Asset string `json:"asset"`
	Value uint64 `json:"value"`
}

type collateralConfigParams struct {
	callerParam
	Asset                string `json:"asset"`
	LTV                  uint64 `json:"ltv"`
	LiquidationThreshold uint64 `json:"liquidationThreshold"`
	LiquidationBonus     uint64 `json:"liquidationBonus"`
}

type poolPauseParams struct {
	callerParam
	Paused bool `json:"paused"`
}

type emodeCategoryParams struct {
	callerParam
	ID                   uint8  `json:"id"`
	LTV                  uint16 `json:"ltv"`
	LiquidationThreshold uint16 `json:"liquidationThreshold"`
	LiquidationBonus     uint16 `json:"liquidationBonus"`
	PriceSource          string `json:"priceSource,omitempty"`
	Label                string `json:"label"`
}

type assetCategoryParams struct {
	callerParam
	Asset      string `json:"asset"`
	CategoryID uint8  `json:"categoryId"`
}

type treasuryParams struct {
	callerParam
	Treasury string `json:"treasury"`
}

type mintParams struct {
	callerParam
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// assetSetter adapts a configurator call taking an asset and one value.
func assetSetter[T any](set func(caller, asset common.Address, v T) error, asset string, caller common.Address, v T) (interface{}, error) {
	addr, err := parseAddress("asset", asset)
	if err != nil {
		return nil, paramError(err)
	}
	if err := set(caller, addr, v); err != nil {
		return nil, err
	}
	return okResult, nil
}

func (s *Server) registerAdmin() {
	admin := func(fn func(*call) (interface{}, error)) method {
		return method{scope: middleware.ScopeAdmin, fn: fn}
	}
	caps := func(set func(caller, asset common.Address, v uint64) error) method {
		return admin(func(c *call) (interface{}, error) {
			p, err := decode[capParams](c)
			if err != nil {
				return nil, err
			}
			return assetSetter(set, p.Asset, c.caller, p.Cap)
		})
	}
	values := func(set func(caller, asset common.Address, v uint64) error) method {
		return admin(func(c *call) (interface{}, error) {
			p, err := decode[valueParams](c)
			if err != nil {
				return nil, err
			}
			return assetSetter(set, p.Asset, c.caller, p.Value)
		})
	}
	flags := func(set func(caller, asset common.Address, v bool) error) method {
		return admin(func(c *call) (interface{}, error) {
			p, err := decode[flagParams](c)
			if err != nil {
				return nil, err
			}
			return assetSetter(set, p.Asset, c.caller, p.Enabled)
		})
	}

	s.methods["lending_admin_setSupplyCap"] = caps(s.pool.SetSupplyCap)
	s.methods["lending_admin_setBorrowCap"] = caps(s.pool.SetBorrowCap)
	s.methods["lending_admin_setReserveFactor"] = values(s.pool.SetReserveFactor)
	s.methods["lending_admin_setDebtCeiling"] = values(s.pool.SetDebtCeiling)
	s.methods["lending_admin_setLiquidationProtocolFee"] = values(s.pool.SetLiquidationProtocolFee)
	s.methods["lending_admin_setReserveActive"] = flags(s.pool.SetReserveActive)
	s.methods["lending_admin_setReserveFreeze"] = flags(s.pool.SetReserveFreeze)
	s.methods["lending_admin_setReservePause"] = flags(s.pool.SetReservePause)
	s.methods["lending_admin_setReserveBorrowing"] = flags(s.pool.SetReserveBorrowing)
	s.methods["lending_admin_setReserveStableRateBorrowing"] = flags(s.pool.SetReserveStableRateBorrowing)
	s.methods["lending_admin_setReserveFlashLoaning"] = flags(s.pool.SetReserveFlashLoaning)
	s.methods["lending_admin_setBorrowableInIsolation"] = flags(s.pool.SetBorrowableInIsolation)
	s.methods["lending_admin_setSiloedBorrowing"] = flags(s.pool.SetSiloedBorrowing)
	s.methods["lending_admin_configureReserveAsCollateral"] = admin(s.configureReserveAsCollateral)
	s.methods["lending_admin_setPoolPause"] = admin(s.setPoolPause)
	s.methods["lending_admin_setEModeCategory"] = admin(s.setEModeCategory)
	s.methods["lending_admin_setAssetEModeCategory"] = admin(s.setAssetEModeCategory)
	s.methods["lending_admin_setTreasury"] = admin(s.setTreasury)
	s.methods["lending_admin_mint"] = admin(s.mint)
	if s.cfg.Pauses != nil {
		s.methods["lending_admin_setModulePaused"] = admin(s.setModulePaused)
	}
}

func (s *Server) configureReserveAsCollateral(c *call) (interface{}, error) {
	p, err := decode[collateralConfigParams](c)
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", p.Asset)
	if err != nil {
		return nil, paramError(err)
	}
	if err := s.pool.ConfigureReserveAsCollateral(c.caller, asset, p.LTV, p.LiquidationThreshold, p.LiquidationBonus); err != nil {
		return nil, err
	}
	return okResult, nil
}

func (s *Server) setPoolPause(c *call) (interface{}, error) {
	p, err := decode[poolPauseParams](c)
	if err != nil {
		return nil, err
	}
	if err := s.pool.SetPoolPause(c.caller, p.Paused); err != nil {
		return nil, err
	}
	return okResult, nil
}

func (s *Server) setEModeCategory(c *call) (interface{}, error) {
	p, err := decode[emodeCategoryParams](c)
	if err != nil {
		return nil, err
	}
	priceSource, err := parseOptionalAddress("priceSource", p.PriceSource, common.Address{})
	if err != nil {
		return nil, paramError(err)
	}
	err = s.pool.SetEModeCategory(c.caller, lending.EModeCategory{
		ID:                   p.ID,
		LTV:                  p.LTV,
		LiquidationThreshold: p.LiquidationThreshold,
		LiquidationBonus:     p.LiquidationBonus,
		PriceSource:          priceSource,
		Label:                p.Label,
	})
	if err != nil {
		return nil, err
	}
	return okResult, nil
}

func (s *Server) setAssetEModeCategory(c *call) (interface{}, error) {
	p, err := decode[assetCategoryParams](c)
	if err != nil {
		return nil, err
	}
	return assetSetter(s.pool.SetAssetEModeCategory, p.Asset, c.caller, p.CategoryID)
}

func (s *Server) setTreasury(c *call) (interface{}, error) {
	p, err := decode[treasuryParams](c)
	if err != nil {
		return nil, err
	}
	treasury, err := parseAddress("treasury", p.Treasury)
	if err != nil {
		return nil, paramError(err)
	}
	if err := s.pool.SetTreasury(c.caller, treasury); err != nil {
		return nil, err
	}
	return okResult, nil
}

// mint credits underlying tokens, acting as a faucet for test deployments.
func (s *Server) mint(c *call) (interface{}, error) {
	p, err := decode[mintParams](c)
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", p.Asset)
	if err != nil {
		return nil, paramError(err)
	}
	to, err := parseAddress("to", p.To)
	if err != nil {
		return nil, paramError(err)
	}
	amount, err := parseAmount("amount", p.Amount, false)
	if err != nil {
		return nil, paramError(err)
	}
	if err := s.pool.Mint(asset, to, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

// setModulePaused flips the daemon kill switch that rejects every pool
// mutation. Views keep working.
func (s *Server) setModulePaused(c *call) (interface{}, error) {
	p, err := decode[poolPauseParams](c)
	if err != nil {
		return nil, err
	}
	s.cfg.Pauses.Set(lending.ModuleName, p.Paused)
	s.logger.Warn("lending module pause changed", "paused", p.Paused, "caller", logging.MaskAddress(c.caller.Hex()))
	return okResult, nil
}
