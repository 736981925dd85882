package lending

import (
	"github.com/ethereum/go-ethereum/common"

	"lendcore/core/events"
)

// SetUserEMode moves caller into e-mode category, or out of e-mode with 0.
// Every asset caller borrows must belong to the category and the position
// must stay healthy under the new parameters.
func (p *Pool) SetUserEMode(caller common.Address, category uint8) error {
	return p.run("setUserEMode", func(t *txn) error {
		u := t.user(caller)
		if u.EModeCategory == category {
			return nil
		}
		if err := t.validateSetUserEMode(u, category); err != nil {
			return err
		}
		u.EModeCategory = category
		if _, err := t.validateHealthFactor(caller); err != nil {
			return err
		}
		t.emit(events.LendingUserEModeSet{User: caller, CategoryID: category})
		return nil
	})
}
