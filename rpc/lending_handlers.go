package rpc

import (
	"lendcore/gateway/middleware"
	"lendcore/native/lending"
)

// callerParam is accepted on every write so that unauthenticated
// deployments can name the acting address.
type callerParam struct {
	Caller string `json:"caller,omitempty"`
}

type supplyParams struct {
	callerParam
	Asset        string `json:"asset"`
	Amount       string `json:"amount"`
	OnBehalfOf   string `json:"onBehalfOf,omitempty"`
	ReferralCode uint16 `json:"referralCode,omitempty"`
}

type withdrawParams struct {
	callerParam
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	To     string `json:"to,omitempty"`
}

type borrowParams struct {
	callerParam
	Asset            string `json:"asset"`
	Amount           string `json:"amount"`
	InterestRateMode uint8  `json:"interestRateMode"`
	ReferralCode     uint16 `json:"referralCode,omitempty"`
	OnBehalfOf       string `json:"onBehalfOf,omitempty"`
}

type repayParams struct {
	callerParam
	Asset            string `json:"asset"`
	Amount           string `json:"amount"`
	InterestRateMode uint8  `json:"interestRateMode"`
	OnBehalfOf       string `json:"onBehalfOf,omitempty"`
}

type liquidationParams struct {
	callerParam
	CollateralAsset string `json:"collateralAsset"`
	DebtAsset       string `json:"debtAsset"`
	User            string `json:"user"`
	DebtToCover     string `json:"debtToCover"`
	ReceiveAToken   bool   `json:"receiveAToken"`
}

type collateralParams struct {
	callerParam
	Asset           string `json:"asset"`
	UseAsCollateral bool   `json:"useAsCollateral"`
}

type emodeParams struct {
	callerParam
	CategoryID uint8 `json:"categoryId"`
}

type swapRateParams struct {
	callerParam
	Asset            string `json:"asset"`
	InterestRateMode uint8  `json:"interestRateMode"`
}

type rebalanceParams struct {
	callerParam
	Asset string `json:"asset"`
	User  string `json:"user"`
}

type delegationParams struct {
	callerParam
	Asset            string `json:"asset"`
	InterestRateMode uint8  `json:"interestRateMode"`
	Delegatee        string `json:"delegatee"`
	Amount           string `json:"amount"`
}

type approveParams struct {
	callerParam
	Asset   string `json:"asset"`
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount"`
}

type transferParams struct {
	callerParam
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type assetsParams struct {
	callerParam
	Assets []string `json:"assets"`
}

func (s *Server) registerLending() {
	write := func(fn func(*call) (interface{}, error)) method {
		return method{scope: middleware.ScopeWrite, fn: fn}
	}
	s.methods["lending_supply"] = write(s.supply)
	s.methods["lending_deposit"] = write(s.supply)
	s.methods["lending_withdraw"] = write(s.withdraw)
	s.methods["lending_borrow"] = write(s.borrow)
	s.methods["lending_repay"] = write(s.repay)
	s.methods["lending_repayWithATokens"] = write(s.repayWithATokens)
	s.methods["lending_liquidationCall"] = write(s.liquidationCall)
	s.methods["lending_setUserUseReserveAsCollateral"] = write(s.setUserUseReserveAsCollateral)
	s.methods["lending_setUserEMode"] = write(s.setUserEMode)
	s.methods["lending_swapBorrowRateMode"] = write(s.swapBorrowRateMode)
	s.methods["lending_rebalanceStableBorrowRate"] = write(s.rebalanceStableBorrowRate)
	s.methods["lending_approveDelegation"] = write(s.approveDelegation)
	s.methods["lending_mintToTreasury"] = write(s.mintToTreasury)
	s.methods["lending_approve"] = write(s.approve)
	s.methods["lending_transferAToken"] = write(s.transferAToken)
}

func (s *Server) supply(c *call) (interface{}, error) {
	p, err := decode[supplyParams](c)
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", p.Asset)
	if err != nil {
		return nil, paramError(err)
	}
	amount, err := parseAmount("amount", p.Amount, false)
	if err != nil {
		return nil, paramError(err)
	}
	onBehalfOf, err := parseOptionalAddress("onBehalfOf", p.OnBehalfOf, c.caller)
	if err != nil {
		return nil, paramError(err)
	}
	if err := s.pool.Supply(c.caller, asset, amount, onBehalfOf, p.ReferralCode); err != nil {
		return nil, err
	}
	return okResult, nil
}

func (s *Server) withdraw(c *call) (interface{}, error) {
	p, err := decode[withdrawParams](c)
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", p.Asset)
	if err != nil {
		return nil, paramError(err)
	}
	amount, err := parseAmount("amount", p.Amount, true)
	if err != nil {
		return nil, paramError(err)
	}
	to, err := parseOptionalAddress("to", p.To, c.caller)
	if err != nil {
		return nil, paramError(err)
	}
	withdrawn, err := s.pool.Withdraw(c.caller, asset, amount, to)
	if err != nil {
		return nil, err
	}
	return AmountResult{Amount: amountString(withdrawn)}, nil
}

func (s *Server) borrow(c *call) (interface{}, error) {
	p, err := decode[borrowParams](c)
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", p.Asset)
	if err != nil {
		return nil, paramError(err)
	}
	amount, err := parseAmount("amount", p.Amount, false)
	if err != nil {
		return nil, paramError(err)
	}
	mode, err := parseRateMode("interestRateMode", p.InterestRateMode)
	if err != nil {
		return nil, paramError(err)
	}
	onBehalfOf, err := parseOptionalAddress("onBehalfOf", p.OnBehalfOf, c.caller)
	if err != nil {
		return nil, paramError(err)
	}
	if err := s.pool.Borrow(c.caller, asset, amount, mode, p.ReferralCode, onBehalfOf); err != nil {
		return nil, err
	}
	return okResult, nil
}

func (s *Server) repay(c *call) (interface{}, error) {
	p, err := decode[repayParams](c)
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", p.Asset)
	if err != nil {
		return nil, paramError(err)
	}
	amount, err := parseAmount("amount", p.Amount, true)
	if err != nil {
		return nil, paramError(err)
	}
	mode, err := parseRateMode("interestRateMode", p.InterestRateMode)
	if err != nil {
		return nil, paramError(err)
	}
	onBehalfOf, err := parseOptionalAddress("onBehalfOf", p.OnBehalfOf, c.caller)
	if err != nil {
		return nil, paramError(err)
	}
	repaid, err := s.pool.Repay(c.caller, asset, amount, mode, onBehalfOf)
	if err != nil {
		return nil, err
	}
	return AmountResult{Amount: amountString(repaid)}, nil
}

func (s *Server) repayWithATokens(c *call) (interface{}, error) {
	p, err := decode[repayParams](c)
	if err != nil {
		return nil, err
	}
	if p.OnBehalfOf != "" {
		return nil, invalidParams("onBehalfOf is not accepted when repaying with aTokens", nil)
	}
	asset, err := parseAddress("asset", p.Asset)
	if err != nil {
		return nil, paramError(err)
	}
	amount, err := parseAmount("amount", p.Amount, true)
	if err != nil {
		return nil, paramError(err)
	}
	mode, err := parseRateMode("interestRateMode", p.InterestRateMode)
	if err != nil {
		return nil, paramError(err)
	}
	repaid, err := s.pool.RepayWithATokens(c.caller, asset, amount, mode)
	if err != nil {
		return nil, err
	}
	return AmountResult{Amount: amountString(repaid)}, nil
}

func (s *Server) liquidationCall(c *call) (interface{}, error) {
	p, err := decode[liquidationParams](c)
	if err != nil {
		return nil, err
	}
	collateral, err := parseAddress("collateralAsset", p.CollateralAsset)
	if err != nil {
		return nil, paramError(err)
	}
	debt, err := parseAddress("debtAsset", p.DebtAsset)
	if err != nil {
		return nil, paramError(err)
	}
	user, err := parseAddress("user", p.User)
	if err != nil {
		return nil, paramError(err)
	}
	debtToCover, err := parseAmount("debtToCover", p.DebtToCover, true)
	if err != nil {
		return nil, paramError(err)
	}
	res, err := s.pool.LiquidationCall(c.caller, collateral, debt, user, debtToCover, p.ReceiveAToken)
	if err != nil {
		return nil, err
	}
	return LiquidationResult{
		DebtRepaid:       amountString(res.DebtRepaid),
		CollateralSeized: amountString(res.CollateralSeized),
		ProtocolFee:      amountString(res.ProtocolFee),
		ReceivedAToken:   res.ReceivedAsSupplyTok,
	}, nil
}

func (s *Server) setUserUseReserveAsCollateral(c *call) (interface{}, error) {
	p, err := decode[collateralParams](c)
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", p.Asset)
	if err != nil {
		return nil, paramError(err)
	}
	if err := s.pool.SetUserUseReserveAsCollateral(c.caller, asset, p.UseAsCollateral); err != nil {
		return nil, err
	}
	return okResult, nil
}

func (s *Server) setUserEMode(c *call) (interface{}, error) {
	p, err := decode[emodeParams](c)
	if err != nil {
		return nil, err
	}
	if err := s.pool.SetUserEMode(c.caller, p.CategoryID); err != nil {
		return nil, err
	}
	return okResult, nil
}

func (s *Server) swapBorrowRateMode(c *call) (interface{}, error) {
	p, err := decode[swapRateParams](c)
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", p.Asset)
	if err != nil {
		return nil, paramError(err)
	}
	// The mode is the one currently held; the pool validates it.
	if err := s.pool.SwapBorrowRateMode(c.caller, asset, lending.InterestRateMode(p.InterestRateMode)); err != nil {
		return nil, err
	}
	return okResult, nil
}

func (s *Server) rebalanceStableBorrowRate(c *call) (interface{}, error) {
	p, err := decode[rebalanceParams](c)
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", p.Asset)
	if err != nil {
		return nil, paramError(err)
	}
	user, err := parseAddress("user", p.User)
	if err != nil {
		return nil, paramError(err)
	}
	if err := s.pool.RebalanceStableBorrowRate(c.caller, asset, user); err != nil {
		return nil, err
	}
	return okResult, nil
}

func (s *Server) approveDelegation(c *call) (interface{}, error) {
	p, err := decode[delegationParams](c)
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", p.Asset)
	if err != nil {
		return nil, paramError(err)
	}
	mode, err := parseRateMode("interestRateMode", p.InterestRateMode)
	if err != nil {
		return nil, paramError(err)
	}
	delegatee, err := parseAddress("delegatee", p.Delegatee)
	if err != nil {
		return nil, paramError(err)
	}
	amount, err := parseAmount("amount", p.Amount, true)
	if err != nil {
		return nil, paramError(err)
	}
	if err := s.pool.ApproveDelegation(c.caller, asset, mode, delegatee, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

func (s *Server) mintToTreasury(c *call) (interface{}, error) {
	p, err := decode[assetsParams](c)
	if err != nil {
		return nil, err
	}
	assets, err := parseAddresses("assets", p.Assets)
	if err != nil {
		return nil, paramError(err)
	}
	if err := s.pool.MintToTreasury(assets); err != nil {
		return nil, err
	}
	return okResult, nil
}

// approve sets an underlying allowance, by default for the pool itself.
func (s *Server) approve(c *call) (interface{}, error) {
	p, err := decode[approveParams](c)
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", p.Asset)
	if err != nil {
		return nil, paramError(err)
	}
	spender, err := parseOptionalAddress("spender", p.Spender, s.pool.Address())
	if err != nil {
		return nil, paramError(err)
	}
	amount, err := parseAmount("amount", p.Amount, true)
	if err != nil {
		return nil, paramError(err)
	}
	if err := s.pool.Approve(c.caller, asset, spender, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}

func (s *Server) transferAToken(c *call) (interface{}, error) {
	p, err := decode[transferParams](c)
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
	if err := s.pool.TransferAToken(c.caller, asset, to, amount); err != nil {
		return nil, err
	}
	return okResult, nil
}
