package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/types"
)

const (
	TypeLendingSupply                 = "lending.supply"
	TypeLendingWithdraw               = "lending.withdraw"
	TypeLendingBorrow                 = "lending.borrow"
	TypeLendingRepay                  = "lending.repay"
	TypeLendingLiquidationCall        = "lending.liquidation"
	TypeLendingFlashLoan              = "lending.flashloan"
	TypeLendingReserveDataUpdated     = "lending.reserve.updated"
	TypeLendingCollateralEnabled      = "lending.collateral.enabled"
	TypeLendingCollateralDisabled     = "lending.collateral.disabled"
	TypeLendingUserEModeSet           = "lending.emode.user"
	TypeLendingSwapBorrowRateMode     = "lending.ratemode.swap"
	TypeLendingRebalanceStableRate    = "lending.ratemode.rebalance"
	TypeLendingMintedToTreasury       = "lending.treasury.minted"
	TypeLendingTokenMint              = "lending.token.mint"
	TypeLendingTokenBurn              = "lending.token.burn"
	TypeLendingBalanceTransfer        = "lending.token.transfer"
	TypeLendingStableDebtMint         = "lending.stable.mint"
	TypeLendingStableDebtBurn         = "lending.stable.burn"
	TypeLendingBorrowAllowance        = "lending.delegation"
	TypeLendingIsolationDebtUpdated   = "lending.isolation.debt"
	TypeLendingReserveInitialized     = "lending.reserve.initialized"
	TypeLendingReserveDropped         = "lending.reserve.dropped"
	TypeLendingReserveConfigChanged   = "lending.reserve.config"
	TypeLendingEModeCategoryAdded     = "lending.emode.category"
	TypeLendingUnderlyingTransfer     = "lending.underlying.transfer"
	TypeLendingFlashloanPremiumChange = "lending.flashloan.premium"
)

// LendingSupply is emitted when liquidity is supplied to a reserve.
type LendingSupply struct {
	Reserve      common.Address
	User         common.Address
	OnBehalfOf   common.Address
	Amount       *uint256.Int
	ReferralCode uint16
}

func (LendingSupply) EventType() string { return TypeLendingSupply }

func (e LendingSupply) Event() *types.Event {
	attrs := attributes{}.address("reserve", e.Reserve).address("user", e.User).
		address("onBehalfOf", e.OnBehalfOf).amount("amount", e.Amount).uint("referral", uint64(e.ReferralCode))
	return &types.Event{Type: TypeLendingSupply, Attributes: attrs}
}

// LendingWithdraw is emitted when supplied liquidity leaves a reserve.
type LendingWithdraw struct {
	Reserve common.Address
	User    common.Address
	To      common.Address
	Amount  *uint256.Int
}

func (LendingWithdraw) EventType() string { return TypeLendingWithdraw }

func (e LendingWithdraw) Event() *types.Event {
	attrs := attributes{}.address("reserve", e.Reserve).address("user", e.User).
		address("to", e.To).amount("amount", e.Amount)
	return &types.Event{Type: TypeLendingWithdraw, Attributes: attrs}
}

// LendingBorrow is emitted for new debt, including flash loans kept as debt.
type LendingBorrow struct {
	Reserve          common.Address
	User             common.Address
	OnBehalfOf       common.Address
	Amount           *uint256.Int
	InterestRateMode uint8
	BorrowRate       *uint256.Int
	ReferralCode     uint16
}

func (LendingBorrow) EventType() string { return TypeLendingBorrow }

func (e LendingBorrow) Event() *types.Event {
	attrs := attributes{}.address("reserve", e.Reserve).address("user", e.User).
		address("onBehalfOf", e.OnBehalfOf).amount("amount", e.Amount).
		uint("rateMode", uint64(e.InterestRateMode)).amount("borrowRate", e.BorrowRate).
		uint("referral", uint64(e.ReferralCode))
	return &types.Event{Type: TypeLendingBorrow, Attributes: attrs}
}

// LendingRepay is emitted when debt is paid back.
type LendingRepay struct {
	Reserve    common.Address
	User       common.Address
	Repayer    common.Address
	Amount     *uint256.Int
	UseATokens bool
}

func (LendingRepay) EventType() string { return TypeLendingRepay }

func (e LendingRepay) Event() *types.Event {
	attrs := attributes{}.address("reserve", e.Reserve).address("user", e.User).
		address("repayer", e.Repayer).amount("amount", e.Amount).boolean("useATokens", e.UseATokens)
	return &types.Event{Type: TypeLendingRepay, Attributes: attrs}
}

// LendingLiquidationCall records a liquidation.
type LendingLiquidationCall struct {
	CollateralAsset            common.Address
	DebtAsset                  common.Address
	User                       common.Address
	DebtToCover                *uint256.Int
	LiquidatedCollateralAmount *uint256.Int
	Liquidator                 common.Address
	ReceiveAToken              bool
}

func (LendingLiquidationCall) EventType() string { return TypeLendingLiquidationCall }

func (e LendingLiquidationCall) Event() *types.Event {
	attrs := attributes{}.address("collateralAsset", e.CollateralAsset).address("debtAsset", e.DebtAsset).
		address("user", e.User).amount("debtToCover", e.DebtToCover).
		amount("liquidatedCollateral", e.LiquidatedCollateralAmount).address("liquidator", e.Liquidator).
		boolean("receiveAToken", e.ReceiveAToken)
	return &types.Event{Type: TypeLendingLiquidationCall, Attributes: attrs}
}

// LendingFlashLoan records a flash loan leg.
type LendingFlashLoan struct {
	Target           common.Address
	Initiator        common.Address
	Asset            common.Address
	Amount           *uint256.Int
	InterestRateMode uint8
	Premium          *uint256.Int
	ReferralCode     uint16
}

func (LendingFlashLoan) EventType() string { return TypeLendingFlashLoan }

func (e LendingFlashLoan) Event() *types.Event {
	attrs := attributes{}.address("target", e.Target).address("initiator", e.Initiator).
		address("asset", e.Asset).amount("amount", e.Amount).uint("rateMode", uint64(e.InterestRateMode)).
		amount("premium", e.Premium).uint("referral", uint64(e.ReferralCode))
	return &types.Event{Type: TypeLendingFlashLoan, Attributes: attrs}
}

// LendingReserveDataUpdated carries the rates and indexes after a reserve update.
type LendingReserveDataUpdated struct {
	Reserve             common.Address
	LiquidityRate       *uint256.Int
	StableBorrowRate    *uint256.Int
	VariableBorrowRate  *uint256.Int
	LiquidityIndex      *uint256.Int
	VariableBorrowIndex *uint256.Int
}

func (LendingReserveDataUpdated) EventType() string { return TypeLendingReserveDataUpdated }

func (e LendingReserveDataUpdated) Event() *types.Event {
	attrs := attributes{}.address("reserve", e.Reserve).amount("liquidityRate", e.LiquidityRate).
		amount("stableBorrowRate", e.StableBorrowRate).amount("variableBorrowRate", e.VariableBorrowRate).
		amount("liquidityIndex", e.LiquidityIndex).amount("variableBorrowIndex", e.VariableBorrowIndex)
	return &types.Event{Type: TypeLendingReserveDataUpdated, Attributes: attrs}
}

// LendingCollateralToggled is emitted when a reserve starts or stops counting
// as collateral for a user.
type LendingCollateralToggled struct {
	Reserve common.Address
	User    common.Address
	Enabled bool
}

func (e LendingCollateralToggled) EventType() string {
	if e.Enabled {
		return TypeLendingCollateralEnabled
	}
	return TypeLendingCollateralDisabled
}

func (e LendingCollateralToggled) Event() *types.Event {
	attrs := attributes{}.address("reserve", e.Reserve).address("user", e.User)
	return &types.Event{Type: e.EventType(), Attributes: attrs}
}

// LendingUserEModeSet is emitted when a user changes e-mode category.
type LendingUserEModeSet struct {
	User       common.Address
	CategoryID uint8
}

func (LendingUserEModeSet) EventType() string { return TypeLendingUserEModeSet }

func (e LendingUserEModeSet) Event() *types.Event {
	attrs := attributes{}.address("user", e.User).uint("category", uint64(e.CategoryID))
	return &types.Event{Type: TypeLendingUserEModeSet, Attributes: attrs}
}

// LendingSwapBorrowRateMode is emitted when debt moves between stable and variable.
type LendingSwapBorrowRateMode struct {
	Reserve          common.Address
	User             common.Address
	InterestRateMode uint8
}

func (LendingSwapBorrowRateMode) EventType() string { return TypeLendingSwapBorrowRateMode }

func (e LendingSwapBorrowRateMode) Event() *types.Event {
	attrs := attributes{}.address("reserve", e.Reserve).address("user", e.User).
		uint("rateMode", uint64(e.InterestRateMode))
	return &types.Event{Type: TypeLendingSwapBorrowRateMode, Attributes: attrs}
}

// LendingRebalanceStableRate is emitted when a stable position is repriced.
type LendingRebalanceStableRate struct {
	Reserve common.Address
	User    common.Address
}

func (LendingRebalanceStableRate) EventType() string { return TypeLendingRebalanceStableRate }

func (e LendingRebalanceStableRate) Event() *types.Event {
	attrs := attributes{}.address("reserve", e.Reserve).address("user", e.User)
	return &types.Event{Type: TypeLendingRebalanceStableRate, Attributes: attrs}
}

// LendingMintedToTreasury records accrued protocol share turned into treasury balance.
type LendingMintedToTreasury struct {
	Reserve common.Address
	Amount  *uint256.Int
}

func (LendingMintedToTreasury) EventType() string { return TypeLendingMintedToTreasury }

func (e LendingMintedToTreasury) Event() *types.Event {
	attrs := attributes{}.address("reserve", e.Reserve).amount("amount", e.Amount)
	return &types.Event{Type: TypeLendingMintedToTreasury, Attributes: attrs}
}

// LendingTokenMint is emitted by scaled balance tokens. Value includes the
// interest accrued since the holder's last interaction.
type LendingTokenMint struct {
	Token           common.Address
	Caller          common.Address
	OnBehalfOf      common.Address
	Value           *uint256.Int
	BalanceIncrease *uint256.Int
	Index           *uint256.Int
}

func (LendingTokenMint) EventType() string { return TypeLendingTokenMint }

func (e LendingTokenMint) Event() *types.Event {
	attrs := attributes{}.address("token", e.Token).address("caller", e.Caller).
		address("onBehalfOf", e.OnBehalfOf).amount("value", e.Value).
		amount("balanceIncrease", e.BalanceIncrease).amount("index", e.Index)
	return &types.Event{Type: TypeLendingTokenMint, Attributes: attrs}
}

// LendingTokenBurn is emitted by scaled balance tokens.
type LendingTokenBurn struct {
	Token           common.Address
	From            common.Address
	Target          common.Address
	Value           *uint256.Int
	BalanceIncrease *uint256.Int
	Index           *uint256.Int
}

func (LendingTokenBurn) EventType() string { return TypeLendingTokenBurn }

func (e LendingTokenBurn) Event() *types.Event {
	attrs := attributes{}.address("token", e.Token).address("from", e.From).
		address("target", e.Target).amount("value", e.Value).
		amount("balanceIncrease", e.BalanceIncrease).amount("index", e.Index)
	return &types.Event{Type: TypeLendingTokenBurn, Attributes: attrs}
}

// LendingBalanceTransfer records a supply token transfer in scaled units.
type LendingBalanceTransfer struct {
	Token common.Address
	From  common.Address
	To    common.Address
	Value *uint256.Int
	Index *uint256.Int
}

func (LendingBalanceTransfer) EventType() string { return TypeLendingBalanceTransfer }

func (e LendingBalanceTransfer) Event() *types.Event {
	attrs := attributes{}.address("token", e.Token).address("from", e.From).
		address("to", e.To).amount("value", e.Value).amount("index", e.Index)
	return &types.Event{Type: TypeLendingBalanceTransfer, Attributes: attrs}
}

// LendingStableDebtMint is emitted by the stable debt token.
type LendingStableDebtMint struct {
	Token           common.Address
	User            common.Address
	OnBehalfOf      common.Address
	Amount          *uint256.Int
	CurrentBalance  *uint256.Int
	BalanceIncrease *uint256.Int
	NewRate         *uint256.Int
	AvgStableRate   *uint256.Int
	NewTotalSupply  *uint256.Int
}

func (LendingStableDebtMint) EventType() string { return TypeLendingStableDebtMint }

func (e LendingStableDebtMint) Event() *types.Event {
	attrs := attributes{}.address("token", e.Token).address("user", e.User).
		address("onBehalfOf", e.OnBehalfOf).amount("amount", e.Amount).
		amount("currentBalance", e.CurrentBalance).amount("balanceIncrease", e.BalanceIncrease).
		amount("newRate", e.NewRate).amount("avgStableRate", e.AvgStableRate).
		amount("newTotalSupply", e.NewTotalSupply)
	return &types.Event{Type: TypeLendingStableDebtMint, Attributes: attrs}
}

// LendingStableDebtBurn is emitted by the stable debt token.
type LendingStableDebtBurn struct {
	Token           common.Address
	From            common.Address
	Amount          *uint256.Int
	CurrentBalance  *uint256.Int
	BalanceIncrease *uint256.Int
	AvgStableRate   *uint256.Int
	NewTotalSupply  *uint256.Int
}

func (LendingStableDebtBurn) EventType() string { return TypeLendingStableDebtBurn }

func (e LendingStableDebtBurn) Event() *types.Event {
	attrs := attributes{}.address("token", e.Token).address("from", e.From).
		amount("amount", e.Amount).amount("currentBalance", e.CurrentBalance).
		amount("balanceIncrease", e.BalanceIncrease).amount("avgStableRate", e.AvgStableRate).
		amount("newTotalSupply", e.NewTotalSupply)
	return &types.Event{Type: TypeLendingStableDebtBurn, Attributes: attrs}
}

// LendingBorrowAllowance is emitted when credit is delegated.
type LendingBorrowAllowance struct {
	Token  common.Address
	From   common.Address
	To     common.Address
	Asset  common.Address
	Amount *uint256.Int
}

func (LendingBorrowAllowance) EventType() string { return TypeLendingBorrowAllowance }

func (e LendingBorrowAllowance) Event() *types.Event {
	attrs := attributes{}.address("token", e.Token).address("from", e.From).
		address("to", e.To).address("asset", e.Asset).amount("amount", e.Amount)
	return &types.Event{Type: TypeLendingBorrowAllowance, Attributes: attrs}
}

// LendingIsolationDebtUpdated tracks the debt borrowed against an isolated collateral.
type LendingIsolationDebtUpdated struct {
	Asset     common.Address
	TotalDebt uint64
}

func (LendingIsolationDebtUpdated) EventType() string { return TypeLendingIsolationDebtUpdated }

func (e LendingIsolationDebtUpdated) Event() *types.Event {
	attrs := attributes{}.address("asset", e.Asset).uint("totalDebt", e.TotalDebt)
	return &types.Event{Type: TypeLendingIsolationDebtUpdated, Attributes: attrs}
}

// LendingReserveInitialized is emitted when a reserve is listed.
type LendingReserveInitialized struct {
	Asset             common.Address
	AToken            common.Address
	StableDebtToken   common.Address
	VariableDebtToken common.Address
	Strategy          string
}

func (LendingReserveInitialized) EventType() string { return TypeLendingReserveInitialized }

func (e LendingReserveInitialized) Event() *types.Event {
	attrs := attributes{}.address("asset", e.Asset).address("aToken", e.AToken).
		address("stableDebtToken", e.StableDebtToken).address("variableDebtToken", e.VariableDebtToken).
		text("strategy", e.Strategy)
	return &types.Event{Type: TypeLendingReserveInitialized, Attributes: attrs}
}

// LendingReserveDropped is emitted when a reserve is removed.
type LendingReserveDropped struct {
	Asset common.Address
}

func (LendingReserveDropped) EventType() string { return TypeLendingReserveDropped }

func (e LendingReserveDropped) Event() *types.Event {
	return &types.Event{Type: TypeLendingReserveDropped, Attributes: attributes{}.address("asset", e.Asset)}
}

// LendingReserveConfigChanged records an admin change to one reserve setting.
type LendingReserveConfigChanged struct {
	Asset common.Address
	Field string
	Value string
}

func (LendingReserveConfigChanged) EventType() string { return TypeLendingReserveConfigChanged }

func (e LendingReserveConfigChanged) Event() *types.Event {
	attrs := attributes{}.address("asset", e.Asset).text("field", e.Field)
	attrs["value"] = e.Value
	return &types.Event{Type: TypeLendingReserveConfigChanged, Attributes: attrs}
}

// LendingEModeCategoryAdded is emitted when an e-mode category is defined or updated.
type LendingEModeCategoryAdded struct {
	CategoryID           uint8
	LTV                  uint16
	LiquidationThreshold uint16
	LiquidationBonus     uint16
	PriceSource          common.Address
	Label                string
}

func (LendingEModeCategoryAdded) EventType() string { return TypeLendingEModeCategoryAdded }

func (e LendingEModeCategoryAdded) Event() *types.Event {
	attrs := attributes{}.uint("category", uint64(e.CategoryID)).uint("ltv", uint64(e.LTV)).
		uint("liquidationThreshold", uint64(e.LiquidationThreshold)).
		uint("liquidationBonus", uint64(e.LiquidationBonus)).
		address("priceSource", e.PriceSource).text("label", e.Label)
	return &types.Event{Type: TypeLendingEModeCategoryAdded, Attributes: attrs}
}

// LendingUnderlyingTransfer records a movement on the underlying asset ledger.
type LendingUnderlyingTransfer struct {
	Asset  common.Address
	From   common.Address
	To     common.Address
	Amount *uint256.Int
}

func (LendingUnderlyingTransfer) EventType() string { return TypeLendingUnderlyingTransfer }

func (e LendingUnderlyingTransfer) Event() *types.Event {
	attrs := attributes{}.address("asset", e.Asset).address("from", e.From).
		address("to", e.To).amount("amount", e.Amount)
	return &types.Event{Type: TypeLendingUnderlyingTransfer, Attributes: attrs}
}

// LendingFlashloanPremiumChanged is emitted when flash loan premiums change.
type LendingFlashloanPremiumChanged struct {
	PremiumTotal      uint64
	PremiumToProtocol uint64
}

func (LendingFlashloanPremiumChanged) EventType() string { return TypeLendingFlashloanPremiumChange }

func (e LendingFlashloanPremiumChanged) Event() *types.Event {
	attrs := attributes{}.uint("premiumTotal", e.PremiumTotal).uint("premiumToProtocol", e.PremiumToProtocol)
	return &types.Event{Type: TypeLendingFlashloanPremiumChange, Attributes: attrs}
}
