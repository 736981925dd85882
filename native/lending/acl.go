package lending

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Role names an administrative capability.
type Role string

const (
	RolePoolAdmin         Role = "pool_admin"
	RoleEmergencyAdmin    Role = "emergency_admin"
	RoleRiskAdmin         Role = "risk_admin"
	RoleAssetListingAdmin Role = "asset_listing_admin"
	RoleFlashBorrower     Role = "flash_borrower"
)

// ACL answers role membership questions for the configurator and the flash
// loan premium waiver.
type ACL interface {
	IsPoolAdmin(common.Address) bool
	IsEmergencyAdmin(common.Address) bool
	IsRiskAdmin(common.Address) bool
	IsAssetListingAdmin(common.Address) bool
	IsFlashBorrower(common.Address) bool
}

// StaticACL is an in-memory role table.
type StaticACL struct {
	mu    sync.RWMutex
	roles map[Role]map[common.Address]struct{}
}

// NewStaticACL returns an empty role table.
func NewStaticACL() *StaticACL {
	return &StaticACL{roles: make(map[Role]map[common.Address]struct{})}
}

// Grant adds addr to role.
func (a *StaticACL) Grant(role Role, addr common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	members, ok := a.roles[role]
	if !ok {
		members = make(map[common.Address]struct{})
		a.roles[role] = members
	}
	members[addr] = struct{}{}
}

// Revoke removes addr from role.
func (a *StaticACL) Revoke(role Role, addr common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.roles[role], addr)
}

// Has reports whether addr holds role.
func (a *StaticACL) Has(role Role, addr common.Address) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.roles[role][addr]
	return ok
}

// IsPoolAdmin implements ACL.
func (a *StaticACL) IsPoolAdmin(addr common.Address) bool { return a.Has(RolePoolAdmin, addr) }
func (a *StaticACL) IsEmergencyAdmin(addr common.Address) bool { return a.Has(RoleEmergencyAdmin, addr) }
func (a *StaticACL) IsRiskAdmin(addr common.Address) bool { return a.Has(RoleRiskAdmin, addr) }
func (a *StaticACL) IsAssetListingAdmin(addr common.Address) bool { return a.Has(RoleAssetListingAdmin, addr) }
func (a *StaticACL) IsFlashBorrower(addr common.Address) bool { return a.Has(RoleFlashBorrower, addr) }

func (t *txn) onlyPoolAdmin(caller common.Address) error {
	if t.acl == nil || !t.acl.IsPoolAdmin(caller) {
		return ErrCallerNotPoolAdmin
	}
	return nil
}

func (t *txn) onlyEmergencyAdmin(caller common.Address) error {
	if t.acl == nil || !t.acl.IsEmergencyAdmin(caller) {
		return ErrCallerNotEmergencyAdmin
	}
	return nil
}

func (t *txn) onlyEmergencyOrPoolAdmin(caller common.Address) error {
	if t.acl == nil || !(t.acl.IsEmergencyAdmin(caller) || t.acl.IsPoolAdmin(caller)) {
		return ErrCallerNotPoolOrEmergencyAdmin
	}
	return nil
}

func (t *txn) onlyRiskOrPoolAdmin(caller common.Address) error {
	if t.acl == nil || !(t.acl.IsRiskAdmin(caller) || t.acl.IsPoolAdmin(caller)) {
		return ErrCallerNotRiskOrPoolAdmin
	}
	return nil
}

func (t *txn) onlyAssetListingOrPoolAdmin(caller common.Address) error {
	if t.acl == nil || !(t.acl.IsAssetListingAdmin(caller) || t.acl.IsPoolAdmin(caller)) {
		return ErrCallerNotAssetListingOrPoolAdmin
	}
	return nil
}
