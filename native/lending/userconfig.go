package lending

import "github.com/holiman/uint256"

// UserConfiguration is a bitmap with two bits per reserve id: the low bit
// marks borrowing, the high bit marks use as collateral.
type UserConfiguration struct {
	Data *uint256.Int
}

var (
	borrowingMask  = buildMask(0)
	collateralMask = buildMask(1)
)

func buildMask(offset uint) *uint256.Int {
	m := new(uint256.Int)
	for i := uint(0); i < MaxReservesCount; i++ {
		m.Or(m, new(uint256.Int).Lsh(uint256.NewInt(1), 2*i+offset))
	}
	return m
}

// Clone returns a deep copy.
func (u UserConfiguration) Clone() UserConfiguration {
	return UserConfiguration{Data: zeroIfNil(u.Data)}
}

func (u *UserConfiguration) word() *uint256.Int {
	if u.Data == nil {
		u.Data = new(uint256.Int)
	}
	return u.Data
}

func (u *UserConfiguration) setBit(bit uint, on bool) {
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), bit)
	w := u.word()
	if on {
		w.Or(w, mask)
		return
	}
	w.And(w, mask.Not(mask))
}

func (u UserConfiguration) bit(bit uint) bool {
	if u.Data == nil {
		return false
	}
	return new(uint256.Int).Rsh(u.Data, bit).Uint64()&1 == 1
}

// SetBorrowing marks whether the user borrows reserve id.
func (u *UserConfiguration) SetBorrowing(id uint16, borrowing bool) {
	u.setBit(2*uint(id), borrowing)
}

// SetUsingAsCollateral marks whether reserve id counts as collateral.
func (u *UserConfiguration) SetUsingAsCollateral(id uint16, collateral bool) {
	u.setBit(2*uint(id)+1, collateral)
}

// IsBorrowing reports whether reserve id is borrowed.
func (u UserConfiguration) IsBorrowing(id uint16) bool { return u.bit(2 * uint(id)) }

// IsUsingAsCollateral reports whether reserve id is collateral.
func (u UserConfiguration) IsUsingAsCollateral(id uint16) bool { return u.bit(2*uint(id) + 1) }

// IsUsingAsCollateralOrBorrowing reports any activity in reserve id.
func (u UserConfiguration) IsUsingAsCollateralOrBorrowing(id uint16) bool {
	return u.IsBorrowing(id) || u.IsUsingAsCollateral(id)
}

// IsEmpty reports whether the user has no position at all.
func (u UserConfiguration) IsEmpty() bool { return u.Data == nil || u.Data.IsZero() }

// IsBorrowingAny reports whether any reserve is borrowed.
func (u UserConfiguration) IsBorrowingAny() bool { return u.masked(borrowingMask).Sign() != 0 }

// IsUsingAsCollateralAny reports whether any reserve is collateral.
func (u UserConfiguration) IsUsingAsCollateralAny() bool {
	return u.masked(collateralMask).Sign() != 0
}

// IsBorrowingOne reports whether exactly one reserve is borrowed.
func (u UserConfiguration) IsBorrowingOne() bool { return isSingleBit(u.masked(borrowingMask)) }

// IsUsingAsCollateralOne reports whether exactly one reserve is collateral.
func (u UserConfiguration) IsUsingAsCollateralOne() bool {
	return isSingleBit(u.masked(collateralMask))
}

// FirstBorrowed returns the lowest borrowed reserve id.
func (u UserConfiguration) FirstBorrowed() (uint16, bool) { return firstID(u.masked(borrowingMask), 0) }

// FirstCollateral returns the lowest collateral reserve id.
func (u UserConfiguration) FirstCollateral() (uint16, bool) {
	return firstID(u.masked(collateralMask), 1)
}

func (u UserConfiguration) masked(mask *uint256.Int) *uint256.Int {
	if u.Data == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).And(u.Data, mask)
}

func isSingleBit(v *uint256.Int) bool {
	if v.IsZero() {
		return false
	}
	minusOne := new(uint256.Int).Sub(v, uint256.NewInt(1))
	return minusOne.And(minusOne, v).IsZero()
}

func firstID(v *uint256.Int, offset uint) (uint16, bool) {
	for i := uint(0); i < MaxReservesCount; i++ {
		if new(uint256.Int).Rsh(v, 2*i+offset).Uint64()&1 == 1 {
			return uint16(i), true
		}
	}
	return 0, false
}
