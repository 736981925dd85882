package rpc

import (
	"github.com/ethereum/go-ethereum/common"

	"lendcore/native/lending"
	"lendcore/storage/journal"
)

type assetParams struct {
	Asset string `json:"asset"`
}

type userParams struct {
	User string `json:"user"`
}

type userReserveParams struct {
	Asset string `json:"asset"`
	User  string `json:"user"`
}

type balanceParams struct {
	Asset  string `json:"asset"`
	Holder string `json:"holder"`
}

type categoryParams struct {
	CategoryID uint8 `json:"categoryId"`
}

type eventsParams struct {
	Type    string `json:"type,omitempty"`
	Reserve string `json:"reserve,omitempty"`
	Account string `json:"account,omitempty"`
	After   uint64 `json:"after,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type borrowAllowanceParams struct {
	Asset            string `json:"asset"`
	InterestRateMode uint8  `json:"interestRateMode"`
	Delegator        string `json:"delegator"`
	Delegatee        string `json:"delegatee"`
}

func (s *Server) registerViews() {
	view := func(fn func(*call) (interface{}, error)) method { return method{fn: fn} }
	s.methods["lending_getReserveData"] = view(s.getReserveData)
	s.methods["lending_getReservesList"] = view(s.getReservesList)
	s.methods["lending_getUserAccountData"] = view(s.getUserAccountData)
	s.methods["lending_getUserReserveData"] = view(s.getUserReserveData)
	s.methods["lending_getEModeCategory"] = view(s.getEModeCategory)
	s.methods["lending_getSettings"] = view(s.getSettings)
	s.methods["lending_balanceOf"] = view(s.balanceOf)
	s.methods["lending_borrowAllowance"] = view(s.borrowAllowance)
	if s.cfg.Journal != nil {
		s.methods["lending_getEvents"] = view(s.getEvents)
	}
}

func (s *Server) getReserveData(c *call) (interface{}, error) {
	p, err := decode[assetParams](c)
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", p.Asset)
	if err != nil {
		return nil, paramError(err)
	}
	reserve, err := s.pool.ReserveData(asset)
	if err != nil {
		return nil, err
	}
	supplies, err := s.pool.TokenSupplies(asset)
	if err != nil {
		return nil, err
	}
	return newReserveDataResult(asset, reserve, supplies), nil
}

func (s *Server) getReservesList(*call) (interface{}, error) {
	assets := s.pool.ReservesList()
	out := make([]string, 0, len(assets))
	for _, asset := range assets {
		out = append(out, asset.Hex())
	}
	return out, nil
}

func (s *Server) getUserAccountData(c *call) (interface{}, error) {
	p, err := decode[userParams](c)
	if err != nil {
		return nil, err
	}
	user, err := parseAddress("user", p.User)
	if err != nil {
		return nil, paramError(err)
	}
	data, err := s.pool.UserAccountData(user)
	if err != nil {
		return nil, err
	}
	return AccountDataResult{
		TotalCollateralBase:         amountString(data.TotalCollateralBase),
		TotalDebtBase:               amountString(data.TotalDebtBase),
		AvailableBorrowsBase:        amountString(data.AvailableBorrowsBase),
		CurrentLiquidationThreshold: data.CurrentLiquidationThreshold,
		LTV:                         data.LTV,
		HealthFactor:                amountString(data.HealthFactor),
		EModeCategory:               s.pool.UserEMode(user),
	}, nil
}

func (s *Server) getUserReserveData(c *call) (interface{}, error) {
	p, err := decode[userReserveParams](c)
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
	data, err := s.pool.UserReserveData(asset, user)
	if err != nil {
		return nil, err
	}
	return UserReserveDataResult{
		Asset:                    asset.Hex(),
		CurrentATokenBalance:     amountString(data.CurrentATokenBalance),
		ScaledATokenBalance:      amountString(data.ScaledATokenBalance),
		CurrentStableDebt:        amountString(data.CurrentStableDebt),
		PrincipalStableDebt:      amountString(data.PrincipalStableDebt),
		CurrentVariableDebt:      amountString(data.CurrentVariableDebt),
		ScaledVariableDebt:       amountString(data.ScaledVariableDebt),
		StableBorrowRate:         amountString(data.StableBorrowRate),
		StableRateLastUpdated:    data.StableRateLastUpdated,
		UsageAsCollateralEnabled: data.UsageAsCollateralEnabled,
	}, nil
}

func (s *Server) getEModeCategory(c *call) (interface{}, error) {
	p, err := decode[categoryParams](c)
	if err != nil {
		return nil, err
	}
	category, found := s.pool.EModeCategory(p.CategoryID)
	if !found {
		return nil, lending.ErrInvalidEModeCategory
	}
	out := EModeCategoryResult{
		ID:                   category.ID,
		LTV:                  category.LTV,
		LiquidationThreshold: category.LiquidationThreshold,
		LiquidationBonus:     category.LiquidationBonus,
		Label:                category.Label,
	}
	if category.PriceSource != (common.Address{}) {
		out.PriceSource = category.PriceSource.Hex()
	}
	return out, nil
}

func (s *Server) getSettings(*call) (interface{}, error) {
	settings := s.pool.Settings()
	return SettingsResult{
		Pool:                           s.pool.Address().Hex(),
		Treasury:                       settings.Treasury.Hex(),
		FlashLoanPremiumTotal:          settings.FlashLoanPremiumTotal,
		FlashLoanPremiumToProtocol:     settings.FlashLoanPremiumToProtocol,
		MaxStableRateBorrowSizePercent: settings.MaxStableRateBorrowSizePercent,
	}, nil
}

func (s *Server) balanceOf(c *call) (interface{}, error) {
	p, err := decode[balanceParams](c)
	if err != nil {
		return nil, err
	}
	asset, err := parseAddress("asset", p.Asset)
	if err != nil {
		return nil, paramError(err)
	}
	holder, err := parseAddress("holder", p.Holder)
	if err != nil {
		return nil, paramError(err)
	}
	return AmountResult{Amount: amountString(s.pool.BalanceOf(asset, holder))}, nil
}

func (s *Server) borrowAllowance(c *call) (interface{}, error) {
	p, err := decode[borrowAllowanceParams](c)
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
	delegator, err := parseAddress("delegator", p.Delegator)
	if err != nil {
		return nil, paramError(err)
	}
	delegatee, err := parseAddress("delegatee", p.Delegatee)
	if err != nil {
		return nil, paramError(err)
	}
	allowance, err := s.pool.BorrowAllowance(asset, mode, delegator, delegatee)
	if err != nil {
		return nil, err
	}
	return AmountResult{Amount: amountString(allowance)}, nil
}

func (s *Server) getEvents(c *call) (interface{}, error) {
	var p eventsParams
	if len(c.raw) > 0 {
		var err error
		if p, err = decode[eventsParams](c); err != nil {
			return nil, err
		}
	}
	if p.Limit < 0 || p.Limit > journal.MaxLimit {
		return nil, invalidParams("limit out of range", journal.MaxLimit)
	}
	q := journal.Query{Type: p.Type, AfterID: p.After, Limit: p.Limit}
	if p.Reserve != "" {
		reserve, err := parseAddress("reserve", p.Reserve)
		if err != nil {
			return nil, paramError(err)
		}
		q.Reserve = reserve.Hex()
	}
	if p.Account != "" {
		account, err := parseAddress("account", p.Account)
		if err != nil {
			return nil, paramError(err)
		}
		q.Account = account.Hex()
	}
	records, err := s.cfg.Journal.List(c.ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]EventRecordResult, 0, len(records))
	for _, rec := range records {
		attrs, err := rec.Attrs()
		if err != nil {
			return nil, err
		}
		out = append(out, EventRecordResult{
			ID:         rec.ID,
			Type:       rec.Type,
			Attributes: attrs,
			RecordedAt: rec.RecordedAt.Unix(),
		})
	}
	return out, nil
}
