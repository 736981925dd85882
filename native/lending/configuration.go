package lending

import (
	"github.com/holiman/uint256"

	"lendcore/native/lending/wadray"
)

const (
	MaxValidLTV                    = 65535
	MaxValidLiquidationThreshold   = 65535
	MaxValidLiquidationBonus       = 65535
	MaxValidDecimals               = 255
	MaxValidReserveFactor          = 65535
	MaxValidBorrowCap              = 68719476735
	MaxValidSupplyCap              = 68719476735
	MaxValidLiquidationProtocolFee = 65535
	MaxValidEModeCategory          = 255
	MaxValidDebtCeiling            = 1099511627775
	// DebtCeilingDecimals is the precision of debt ceilings and isolation debt.
	DebtCeilingDecimals = 2
	// MaxReservesCount bounds the reserves list by the user bitmap width.
	MaxReservesCount = 128
)

// ReserveConfiguration is the structured form of a reserve's risk settings.
// Percentages are basis points; caps and the debt ceiling are whole units.
type ReserveConfiguration struct {
	LTV                        uint64
	LiquidationThreshold       uint64
	LiquidationBonus           uint64
	Decimals                   uint8
	Active                     bool
	Frozen                     bool
	BorrowingEnabled           bool
	StableRateBorrowingEnabled bool
	Paused                     bool
	BorrowableInIsolation      bool
	SiloedBorrowing            bool
	FlashLoanEnabled           bool
	ReserveFactor              uint64
	BorrowCap                  uint64
	SupplyCap                  uint64
	LiquidationProtocolFee     uint64
	EModeCategory              uint8
	DebtCeiling                uint64
}

type bitField struct {
	start uint
	width uint
}

var (
	fieldLTV             = bitField{0, 16}
	fieldLiqThreshold    = bitField{16, 16}
	fieldLiqBonus        = bitField{32, 16}
	fieldDecimals        = bitField{48, 8}
	fieldActive          = bitField{56, 1}
	fieldFrozen          = bitField{57, 1}
	fieldBorrowing       = bitField{58, 1}
	fieldStableBorrowing = bitField{59, 1}
	fieldPaused          = bitField{60, 1}
	fieldIsolation       = bitField{61, 1}
	fieldSiloed          = bitField{62, 1}
	fieldFlashLoan       = bitField{63, 1}
	fieldReserveFactor   = bitField{64, 16}
	fieldBorrowCap       = bitField{80, 36}
	fieldSupplyCap       = bitField{116, 36}
	fieldProtocolFee     = bitField{152, 16}
	fieldEModeCategory   = bitField{168, 8}
	fieldDebtCeiling     = bitField{212, 40}
)

func (f bitField) mask() *uint256.Int {
	m := new(uint256.Int).Lsh(uint256.NewInt(1), f.width)
	return m.Sub(m, uint256.NewInt(1))
}

func (f bitField) put(word *uint256.Int, value uint64) {
	v := uint256.NewInt(value)
	v.And(v, f.mask())
	v.Lsh(v, f.start)
	word.Or(word, v)
}

func (f bitField) get(word *uint256.Int) uint64 {
	v := new(uint256.Int).Rsh(word, f.start)
	return v.And(v, f.mask()).Uint64()
}

func putBool(word *uint256.Int, f bitField, b bool) {
	if b {
		f.put(word, 1)
	}
}

// Pack encodes the configuration into its 256-bit storage layout.
func (c ReserveConfiguration) Pack() *uint256.Int {
	word := new(uint256.Int)
	fieldLTV.put(word, c.LTV)
	fieldLiqThreshold.put(word, c.LiquidationThreshold)
	fieldLiqBonus.put(word, c.LiquidationBonus)
	fieldDecimals.put(word, uint64(c.Decimals))
	putBool(word, fieldActive, c.Active)
	putBool(word, fieldFrozen, c.Frozen)
	putBool(word, fieldBorrowing, c.BorrowingEnabled)
	putBool(word, fieldStableBorrowing, c.StableRateBorrowingEnabled)
	putBool(word, fieldPaused, c.Paused)
	putBool(word, fieldIsolation, c.BorrowableInIsolation)
	putBool(word, fieldSiloed, c.SiloedBorrowing)
	putBool(word, fieldFlashLoan, c.FlashLoanEnabled)
	fieldReserveFactor.put(word, c.ReserveFactor)
	fieldBorrowCap.put(word, c.BorrowCap)
	fieldSupplyCap.put(word, c.SupplyCap)
	fieldProtocolFee.put(word, c.LiquidationProtocolFee)
	fieldEModeCategory.put(word, uint64(c.EModeCategory))
	fieldDebtCeiling.put(word, c.DebtCeiling)
	return word
}

// UnpackReserveConfiguration decodes the storage layout.
func UnpackReserveConfiguration(word *uint256.Int) ReserveConfiguration {
	word = wadray.Or(word)
	return ReserveConfiguration{
		LTV:                        fieldLTV.get(word),
		LiquidationThreshold:       fieldLiqThreshold.get(word),
		LiquidationBonus:           fieldLiqBonus.get(word),
		Decimals:                   uint8(fieldDecimals.get(word)),
		Active:                     fieldActive.get(word) == 1,
		Frozen:                     fieldFrozen.get(word) == 1,
		BorrowingEnabled:           fieldBorrowing.get(word) == 1,
		StableRateBorrowingEnabled: fieldStableBorrowing.get(word) == 1,
		Paused:                     fieldPaused.get(word) == 1,
		BorrowableInIsolation:      fieldIsolation.get(word) == 1,
		SiloedBorrowing:            fieldSiloed.get(word) == 1,
		FlashLoanEnabled:           fieldFlashLoan.get(word) == 1,
		ReserveFactor:              fieldReserveFactor.get(word),
		BorrowCap:                  fieldBorrowCap.get(word),
		SupplyCap:                  fieldSupplyCap.get(word),
		LiquidationProtocolFee:     fieldProtocolFee.get(word),
		EModeCategory:              uint8(fieldEModeCategory.get(word)),
		DebtCeiling:                fieldDebtCeiling.get(word),
	}
}

// Validate checks field ranges and the collateral parameter relationship.
func (c ReserveConfiguration) Validate() error {
	switch {
	case c.LTV > MaxValidLTV:
		return ErrInvalidLTV
	case c.LiquidationThreshold > MaxValidLiquidationThreshold:
		return ErrInvalidLiqThreshold
	case c.LiquidationBonus > MaxValidLiquidationBonus:
		return ErrInvalidLiqBonus
	case c.ReserveFactor > wadray.PercentageFactor:
		return ErrInvalidReserveFactor
	case c.BorrowCap > MaxValidBorrowCap:
		return ErrInvalidBorrowCap
	case c.SupplyCap > MaxValidSupplyCap:
		return ErrInvalidSupplyCap
	case c.LiquidationProtocolFee > wadray.PercentageFactor:
		return ErrInvalidLiquidationProtocolFee
	case c.DebtCeiling > MaxValidDebtCeiling:
		return ErrInvalidDebtCeiling
	}
	return validateCollateralParams(c.LTV, c.LiquidationThreshold, c.LiquidationBonus)
}

func validateCollateralParams(ltv, threshold, bonus uint64) error {
	if ltv > threshold {
		return ErrInvalidReserveParams
	}
	if threshold == 0 {
		if bonus != 0 {
			return ErrInvalidReserveParams
		}
		return nil
	}
	if bonus <= wadray.PercentageFactor {
		return ErrInvalidReserveParams
	}
	seized, err := wadray.PercentMul(uint256.NewInt(threshold), bonus)
	if err != nil {
		return err
	}
	if seized.Uint64() > wadray.PercentageFactor {
		return ErrInvalidReserveParams
	}
	return nil
}
