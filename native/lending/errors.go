package lending

import (
	"errors"

	nativecommon "lendcore/native/common"
	"lendcore/native/lending/wadray"
)

// Kind classifies lending failures for callers that map them onto their own
// status codes.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindArithmetic
	KindBusinessRule
	KindAuthorization
	KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindArithmetic:
		return "arithmetic"
	case KindBusinessRule:
		return "business_rule"
	case KindAuthorization:
		return "authorization"
	case KindTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// Error is a lending failure with a stable code.
type Error struct {
	Code string
	Kind Kind
}

func (e *Error) Error() string { return "lending: " + e.Code }

func newError(kind Kind, code string) *Error { return &Error{Code: code, Kind: kind} }

// Authorization.
var (
	ErrCallerNotPoolAdmin               = newError(KindAuthorization, "CALLER_NOT_POOL_ADMIN")
	ErrCallerNotEmergencyAdmin          = newError(KindAuthorization, "CALLER_NOT_EMERGENCY_ADMIN")
	ErrCallerNotPoolOrEmergencyAdmin    = newError(KindAuthorization, "CALLER_NOT_POOL_OR_EMERGENCY_ADMIN")
	ErrCallerNotRiskOrPoolAdmin         = newError(KindAuthorization, "CALLER_NOT_RISK_OR_POOL_ADMIN")
	ErrCallerNotAssetListingOrPoolAdmin = newError(KindAuthorization, "CALLER_NOT_ASSET_LISTING_OR_POOL_ADMIN")
)

// Configuration.
var (
	ErrReserveInactive                = newError(KindConfiguration, "RESERVE_INACTIVE")
	ErrReserveFrozen                  = newError(KindConfiguration, "RESERVE_FROZEN")
	ErrReservePaused                  = newError(KindConfiguration, "RESERVE_PAUSED")
	ErrPoolPaused                     = newError(KindConfiguration, "POOL_PAUSED")
	ErrBorrowingNotEnabled            = newError(KindConfiguration, "BORROWING_NOT_ENABLED")
	ErrStableBorrowingNotEnabled      = newError(KindConfiguration, "STABLE_BORROWING_NOT_ENABLED")
	ErrFlashloanDisabled              = newError(KindConfiguration, "FLASHLOAN_DISABLED")
	ErrAssetNotListed                 = newError(KindConfiguration, "ASSET_NOT_LISTED")
	ErrReserveAlreadyInitialized      = newError(KindConfiguration, "RESERVE_ALREADY_INITIALIZED")
	ErrNoMoreReservesAllowed          = newError(KindConfiguration, "NO_MORE_RESERVES_ALLOWED")
	ErrZeroAddressNotValid            = newError(KindConfiguration, "ZERO_ADDRESS_NOT_VALID")
	ErrInvalidReserveParams           = newError(KindConfiguration, "INVALID_RESERVE_PARAMS")
	ErrInvalidLTV                     = newError(KindConfiguration, "INVALID_LTV")
	ErrInvalidLiqThreshold            = newError(KindConfiguration, "INVALID_LIQ_THRESHOLD")
	ErrInvalidLiqBonus                = newError(KindConfiguration, "INVALID_LIQ_BONUS")
	ErrInvalidDecimals                = newError(KindConfiguration, "INVALID_DECIMALS")
	ErrInvalidReserveFactor           = newError(KindConfiguration, "INVALID_RESERVE_FACTOR")
	ErrInvalidBorrowCap               = newError(KindConfiguration, "INVALID_BORROW_CAP")
	ErrInvalidSupplyCap               = newError(KindConfiguration, "INVALID_SUPPLY_CAP")
	ErrInvalidLiquidationProtocolFee  = newError(KindConfiguration, "INVALID_LIQUIDATION_PROTOCOL_FEE")
	ErrInvalidEModeCategory           = newError(KindConfiguration, "INVALID_EMODE_CATEGORY")
	ErrInvalidEModeCategoryParams     = newError(KindConfiguration, "INVALID_EMODE_CATEGORY_PARAMS")
	ErrInvalidEModeCategoryAssignment = newError(KindConfiguration, "INVALID_EMODE_CATEGORY_ASSIGNMENT")
	ErrInvalidDebtCeiling             = newError(KindConfiguration, "INVALID_DEBT_CEILING")
	ErrDebtCeilingNotZero             = newError(KindConfiguration, "DEBT_CEILING_NOT_ZERO")
	ErrReserveDebtNotZero             = newError(KindConfiguration, "RESERVE_DEBT_NOT_ZERO")
	ErrReserveLiquidityNotZero        = newError(KindConfiguration, "RESERVE_LIQUIDITY_NOT_ZERO")
	ErrFlashloanPremiumInvalid        = newError(KindConfiguration, "FLASHLOAN_PREMIUM_INVALID")
	ErrInvalidStrategy                = newError(KindConfiguration, "INVALID_INTEREST_RATE_STRATEGY")
	ErrOracleUnavailable              = newError(KindConfiguration, "ORACLE_PRICE_UNAVAILABLE")
	ErrStableBorrowingEnabled         = newError(KindConfiguration, "STABLE_BORROWING_ENABLED")
)

// Business rules.
var (
	ErrInvalidAmount                             = newError(KindBusinessRule, "INVALID_AMOUNT")
	ErrNotEnoughAvailableUserBalance             = newError(KindBusinessRule, "NOT_ENOUGH_AVAILABLE_USER_BALANCE")
	ErrInvalidInterestRateModeSelected           = newError(KindBusinessRule, "INVALID_INTEREST_RATE_MODE_SELECTED")
	ErrCollateralBalanceIsZero                   = newError(KindBusinessRule, "COLLATERAL_BALANCE_IS_ZERO")
	ErrHealthFactorLowerThanLiquidationThreshold = newError(KindBusinessRule, "HEALTH_FACTOR_LOWER_THAN_LIQUIDATION_THRESHOLD")
	ErrCollateralCannotCoverNewBorrow            = newError(KindBusinessRule, "COLLATERAL_CANNOT_COVER_NEW_BORROW")
	ErrCollateralSameAsBorrowingCurrency         = newError(KindBusinessRule, "COLLATERAL_SAME_AS_BORROWING_CURRENCY")
	ErrAmountBiggerThanMaxLoanSizeStable         = newError(KindBusinessRule, "AMOUNT_BIGGER_THAN_MAX_LOAN_SIZE_STABLE")
	ErrNoDebtOfSelectedType                      = newError(KindBusinessRule, "NO_DEBT_OF_SELECTED_TYPE")
	ErrNoExplicitAmountToRepayOnBehalf           = newError(KindBusinessRule, "NO_EXPLICIT_AMOUNT_TO_REPAY_ON_BEHALF")
	ErrNoOutstandingStableDebt                   = newError(KindBusinessRule, "NO_OUTSTANDING_STABLE_DEBT")
	ErrNoOutstandingVariableDebt                 = newError(KindBusinessRule, "NO_OUTSTANDING_VARIABLE_DEBT")
	ErrUnderlyingBalanceZero                     = newError(KindBusinessRule, "UNDERLYING_BALANCE_ZERO")
	ErrInterestRateRebalanceConditionsNotMet     = newError(KindBusinessRule, "INTEREST_RATE_REBALANCE_CONDITIONS_NOT_MET")
	ErrHealthFactorNotBelowThreshold             = newError(KindBusinessRule, "HEALTH_FACTOR_NOT_BELOW_THRESHOLD")
	ErrCollateralCannotBeLiquidated              = newError(KindBusinessRule, "COLLATERAL_CANNOT_BE_LIQUIDATED")
	ErrSpecifiedCurrencyNotBorrowedByUser        = newError(KindBusinessRule, "SPECIFIED_CURRENCY_NOT_BORROWED_BY_USER")
	ErrSameBlockBorrowRepay                      = newError(KindBusinessRule, "SAME_BLOCK_BORROW_REPAY")
	ErrInconsistentFlashloanParams               = newError(KindBusinessRule, "INCONSISTENT_FLASHLOAN_PARAMS")
	ErrBorrowCapExceeded                         = newError(KindBusinessRule, "BORROW_CAP_EXCEEDED")
	ErrSupplyCapExceeded                         = newError(KindBusinessRule, "SUPPLY_CAP_EXCEEDED")
	ErrDebtCeilingExceeded                       = newError(KindBusinessRule, "DEBT_CEILING_EXCEEDED")
	ErrUnderlyingClaimableRightsNotZero          = newError(KindBusinessRule, "UNDERLYING_CLAIMABLE_RIGHTS_NOT_ZERO")
	ErrStableDebtNotZero                         = newError(KindBusinessRule, "STABLE_DEBT_NOT_ZERO")
	ErrVariableDebtSupplyNotZero                 = newError(KindBusinessRule, "VARIABLE_DEBT_SUPPLY_NOT_ZERO")
	ErrLTVValidationFailed                       = newError(KindBusinessRule, "LTV_VALIDATION_FAILED")
	ErrInconsistentEModeCategory                 = newError(KindBusinessRule, "INCONSISTENT_EMODE_CATEGORY")
	ErrUserInIsolationModeOrLTVZero              = newError(KindBusinessRule, "USER_IN_ISOLATION_MODE_OR_LTV_ZERO")
	ErrAssetNotBorrowableInIsolation             = newError(KindBusinessRule, "ASSET_NOT_BORROWABLE_IN_ISOLATION")
	ErrSiloedBorrowingViolation                  = newError(KindBusinessRule, "SILOED_BORROWING_VIOLATION")
	ErrInvalidMintAmount                         = newError(KindBusinessRule, "INVALID_MINT_AMOUNT")
	ErrInvalidBurnAmount                         = newError(KindBusinessRule, "INVALID_BURN_AMOUNT")
	ErrInvalidFlashLoanExecutorReturn            = newError(KindBusinessRule, "INVALID_FLASHLOAN_EXECUTOR_RETURN")
	ErrOperationNotSupported                     = newError(KindBusinessRule, "OPERATION_NOT_SUPPORTED")
	ErrBorrowAllowanceNotEnough                  = newError(KindBusinessRule, "BORROW_ALLOWANCE_NOT_ENOUGH")
	ErrNoFlashLoanReceiver                       = newError(KindBusinessRule, "INVALID_FLASHLOAN_RECEIVER")
)

// Low level transfers on the underlying ledger.
var (
	ErrTransferAmountExceedsBalance   = newError(KindTransfer, "TRANSFER_AMOUNT_EXCEEDS_BALANCE")
	ErrTransferAmountExceedsAllowance = newError(KindTransfer, "TRANSFER_AMOUNT_EXCEEDS_ALLOWANCE")
)

// Code returns the canonical failure code carried by err, or "" when err is
// not a lending failure.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	switch {
	case errors.Is(err, wadray.ErrMultiplicationOverflow):
		return "MULTIPLICATION_OVERFLOW"
	case errors.Is(err, wadray.ErrDivisionByZero):
		return "DIVISION_BY_ZERO"
	case errors.Is(err, wadray.ErrUint128Overflow):
		return "UINT128_OVERFLOW"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return ErrPoolPaused.Code
	}
	return ""
}

// KindOf classifies err.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	switch {
	case errors.Is(err, wadray.ErrMultiplicationOverflow),
		errors.Is(err, wadray.ErrDivisionByZero),
		errors.Is(err, wadray.ErrUint128Overflow):
		return KindArithmetic
	case errors.Is(err, nativecommon.ErrModulePaused):
		return KindConfiguration
	}
	return KindUnknown
}
