package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/native/lending/wadray"
)

// InterestRateMode selects the debt flavour of a borrow. None is only valid
// for flash loans, where it means the funds are returned in the same call.
type InterestRateMode uint8

const (
	RateModeNone     InterestRateMode = 0
	RateModeStable   InterestRateMode = 1
	RateModeVariable InterestRateMode = 2
)

func (m InterestRateMode) String() string {
	switch m {
	case RateModeNone:
		return "none"
	case RateModeStable:
		return "stable"
	case RateModeVariable:
		return "variable"
	default:
		return "invalid"
	}
}

// Block is the execution context of a call. Every call observed at the same
// timestamp accrues no additional interest.
type Block struct {
	Number    uint64
	Timestamp uint64
}

// ReserveData captures the accounting state of one listed asset. Indexes and
// rates are rays; balances are in the asset's native precision.
type ReserveData struct {
	// ID is the reserve's slot in the reserves list and its bit position in
	// user configuration bitmaps.
	ID uint16
	// Configuration holds the risk parameters and flags of the reserve.
	Configuration ReserveConfiguration
	// LiquidityIndex is the cumulative supply interest, starting at one ray.
	LiquidityIndex *uint256.Int
	// VariableBorrowIndex is the cumulative variable debt interest.
	VariableBorrowIndex *uint256.Int
	// CurrentLiquidityRate is the annual supply rate.
	CurrentLiquidityRate *uint256.Int
	// CurrentVariableBorrowRate is the annual variable borrow rate.
	CurrentVariableBorrowRate *uint256.Int
	// CurrentStableBorrowRate is the annual rate assigned to new stable loans.
	CurrentStableBorrowRate *uint256.Int
	// LastUpdateTimestamp is the block timestamp of the last accrual.
	LastUpdateTimestamp uint64
	ATokenAddress       common.Address
	StableDebtAddress   common.Address
	VariableDebtAddress common.Address
	// InterestRateStrategy names the strategy in the pool registry.
	InterestRateStrategy string
	// AccruedToTreasury is the protocol share not yet minted, in scaled units.
	AccruedToTreasury *uint256.Int
	// IsolationModeTotalDebt is the debt borrowed against this asset while it
	// is isolated collateral, with two decimals.
	IsolationModeTotalDebt uint64
}

// Clone returns a deep copy of the reserve.
func (r *ReserveData) Clone() *ReserveData {
	if r == nil {
		return nil
	}
	clone := *r
	clone.LiquidityIndex = cloneInt(r.LiquidityIndex)
	clone.VariableBorrowIndex = cloneInt(r.VariableBorrowIndex)
	clone.CurrentLiquidityRate = cloneInt(r.CurrentLiquidityRate)
	clone.CurrentVariableBorrowRate = cloneInt(r.CurrentVariableBorrowRate)
	clone.CurrentStableBorrowRate = cloneInt(r.CurrentStableBorrowRate)
	clone.AccruedToTreasury = cloneInt(r.AccruedToTreasury)
	return &clone
}

// EModeCategory groups correlated assets that borrow against each other with
// higher LTV. Values are basis points.
type EModeCategory struct {
	ID                   uint8
	LTV                  uint16
	LiquidationThreshold uint16
	LiquidationBonus     uint16
	// PriceSource, when set, prices every asset of the category.
	PriceSource common.Address
	Label       string
}

// Clone returns a copy of the category.
func (c *EModeCategory) Clone() *EModeCategory {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// UserState is the per-user pool record.
type UserState struct {
	Configuration UserConfiguration
	EModeCategory uint8
}

// Clone returns a deep copy of the user record.
func (u *UserState) Clone() *UserState {
	if u == nil {
		return nil
	}
	return &UserState{Configuration: u.Configuration.Clone(), EModeCategory: u.EModeCategory}
}

// TokenBalance is one holder's entry in a token ledger. For scaled tokens
// Amount is the scaled balance and Index the index of the last interaction;
// for the stable debt token Amount is the principal and Index the user's
// rate. Timestamp is the stable debt last update; LastMint is the timestamp
// of the last debt mint and drives the same block guard, valid when Minted.
type TokenBalance struct {
	Amount    *uint256.Int
	Index     *uint256.Int
	Timestamp uint64
	LastMint  uint64
	Minted    bool
}

// Clone returns a deep copy of the balance.
func (b *TokenBalance) Clone() *TokenBalance {
	if b == nil {
		return nil
	}
	return &TokenBalance{Amount: cloneInt(b.Amount), Index: cloneInt(b.Index), Timestamp: b.Timestamp, LastMint: b.LastMint, Minted: b.Minted}
}

func (b *TokenBalance) isZero() bool {
	return (b.Amount == nil || b.Amount.IsZero()) && (b.Index == nil || b.Index.IsZero()) &&
		b.Timestamp == 0 && b.LastMint == 0 && !b.Minted
}

// TokenSupply is a token's aggregate entry. For the stable debt token
// AvgRate and Timestamp track the weighted average rate.
type TokenSupply struct {
	Total     *uint256.Int
	AvgRate   *uint256.Int
	Timestamp uint64
}

// Clone returns a deep copy of the supply.
func (s *TokenSupply) Clone() *TokenSupply {
	if s == nil {
		return nil
	}
	return &TokenSupply{Total: cloneInt(s.Total), AvgRate: cloneInt(s.AvgRate), Timestamp: s.Timestamp}
}

// BalanceKey addresses a holder's balance of a token. Underlying assets use
// the asset address as Token.
type BalanceKey struct {
	Token  common.Address
	Holder common.Address
}

// AllowanceKey addresses an allowance granted by Owner to Spender.
type AllowanceKey struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address
}

// Settings are pool wide parameters.
type Settings struct {
	Treasury common.Address
	// FlashLoanPremiumTotal is the flash loan fee in basis points.
	FlashLoanPremiumTotal uint64
	// FlashLoanPremiumToProtocol is the treasury share of the fee in basis points.
	FlashLoanPremiumToProtocol uint64
	// MaxStableRateBorrowSizePercent caps a stable loan as a share of
	// available liquidity, in basis points.
	MaxStableRateBorrowSizePercent uint64
}

// AccountData is a user's aggregated position in base currency.
type AccountData struct {
	TotalCollateralBase  *uint256.Int
	TotalDebtBase        *uint256.Int
	AvailableBorrowsBase *uint256.Int
	// CurrentLiquidationThreshold and LTV are collateral weighted averages in
	// basis points.
	CurrentLiquidationThreshold uint64
	LTV                         uint64
	// HealthFactor is a ray; MaxUint256 when the user has no debt.
	HealthFactor         *uint256.Int
	HasZeroLTVCollateral bool
}

// UserReserveData is a user's position in a single reserve.
type UserReserveData struct {
	Asset                    common.Address
	CurrentATokenBalance     *uint256.Int
	ScaledATokenBalance      *uint256.Int
	CurrentStableDebt        *uint256.Int
	PrincipalStableDebt      *uint256.Int
	CurrentVariableDebt      *uint256.Int
	ScaledVariableDebt       *uint256.Int
	StableBorrowRate         *uint256.Int
	StableRateLastUpdated    uint64
	UsageAsCollateralEnabled bool
}

// TokenSupplies reports the totals of a reserve's three tokens, interest included.
type TokenSupplies struct {
	ATokenTotal        *uint256.Int
	ScaledATokenTotal  *uint256.Int
	StableDebtTotal    *uint256.Int
	AverageStableRate  *uint256.Int
	VariableDebtTotal  *uint256.Int
	ScaledVariableDebt *uint256.Int
	AvailableLiquidity *uint256.Int
	AccruedToTreasury  *uint256.Int
}

var (
	healthFactorOne = new(uint256.Int).Set(wadray.RAY)
	maxUint         = new(uint256.Int).Set(wadray.MaxUint256)
)

// HealthFactorLiquidationThreshold returns a health factor of exactly one.
func HealthFactorLiquidationThreshold() *uint256.Int { return new(uint256.Int).Set(healthFactorOne) }

// MaxUint returns the amount sentinel meaning "the full balance" for withdraw
// and repay.
func MaxUint() *uint256.Int { return new(uint256.Int).Set(maxUint) }

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return new(uint256.Int).Set(v)
}

func zeroIfNil(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
