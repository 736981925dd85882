package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/native/lending/rates"
)

// State is the complete pool state: reserves, users, token ledgers and the
// underlying asset ledger. The pool owns it exclusively; every call works on
// a txn overlay and publishes it only on success.
type State struct {
	Reserves    map[common.Address]*ReserveData
	ReserveList []common.Address
	Users       map[common.Address]*UserState
	EModes      map[uint8]*EModeCategory
	Balances    map[BalanceKey]*TokenBalance
	Supplies    map[common.Address]*TokenSupply
	Allowances  map[AllowanceKey]*uint256.Int
	Settings    Settings
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Reserves:   make(map[common.Address]*ReserveData),
		Users:      make(map[common.Address]*UserState),
		EModes:     make(map[uint8]*EModeCategory),
		Balances:   make(map[BalanceKey]*TokenBalance),
		Supplies:   make(map[common.Address]*TokenSupply),
		Allowances: make(map[AllowanceKey]*uint256.Int),
		Settings: Settings{
			FlashLoanPremiumTotal:          DefaultFlashLoanPremiumTotal,
			FlashLoanPremiumToProtocol:     DefaultFlashLoanPremiumToProtocol,
			MaxStableRateBorrowSizePercent: DefaultMaxStableRateBorrowSizePercent,
		},
	}
}

// overlay is a copy-on-write view over a committed map. Values handed out by
// get are private clones until commit.
type overlay[K comparable, V any] struct {
	base    map[K]V
	dirty   map[K]V
	deleted map[K]struct{}
	clone   func(V) V
}

func newOverlay[K comparable, V any](base map[K]V, clone func(V) V) *overlay[K, V] {
	return &overlay[K, V]{base: base, dirty: make(map[K]V), deleted: make(map[K]struct{}), clone: clone}
}

func (o *overlay[K, V]) get(k K) (V, bool) {
	if _, gone := o.deleted[k]; gone {
		var zero V
		return zero, false
	}
	if v, ok := o.dirty[k]; ok {
		return v, true
	}
	v, ok := o.base[k]
	if !ok {
		return v, false
	}
	c := o.clone(v)
	o.dirty[k] = c
	return c, true
}

func (o *overlay[K, V]) put(k K, v V) {
	delete(o.deleted, k)
	o.dirty[k] = v
}

func (o *overlay[K, V]) del(k K) {
	delete(o.dirty, k)
	o.deleted[k] = struct{}{}
}

// merged returns the map commit would produce, leaving base untouched.
func (o *overlay[K, V]) merged() map[K]V {
	out := make(map[K]V, len(o.base)+len(o.dirty))
	for k, v := range o.base {
		if _, gone := o.deleted[k]; !gone {
			out[k] = v
		}
	}
	for k, v := range o.dirty {
		out[k] = v
	}
	return out
}

func (o *overlay[K, V]) commit() {
	for k := range o.deleted {
		delete(o.base, k)
	}
	for k, v := range o.dirty {
		o.base[k] = v
	}
}

// txn is the working set of one pool call.
type txn struct {
	state      *State
	block      Block
	reserves   *overlay[common.Address, *ReserveData]
	users      *overlay[common.Address, *UserState]
	emodes     *overlay[uint8, *EModeCategory]
	balances   *overlay[BalanceKey, *TokenBalance]
	supplies   *overlay[common.Address, *TokenSupply]
	allowances *overlay[AllowanceKey, *uint256.Int]
	list       []common.Address
	settings   Settings
	events     []events.Event

	pool        common.Address
	strategies  *rates.Registry
	oracle      PriceOracle
	acl         ACL
	utilization map[common.Address]float64
}

func newTxn(state *State, block Block) *txn {
	list := make([]common.Address, len(state.ReserveList))
	copy(list, state.ReserveList)
	return &txn{
		state:      state,
		block:      block,
		reserves:   newOverlay(state.Reserves, (*ReserveData).Clone),
		users:      newOverlay(state.Users, (*UserState).Clone),
		emodes:     newOverlay(state.EModes, (*EModeCategory).Clone),
		balances:   newOverlay(state.Balances, (*TokenBalance).Clone),
		supplies:   newOverlay(state.Supplies, (*TokenSupply).Clone),
		allowances: newOverlay(state.Allowances, cloneInt),
		list:       list,
		settings:   state.Settings,

		utilization: make(map[common.Address]float64),
	}
}

// prune drops balances the call created but left empty.
func (t *txn) prune() {
	for key, b := range t.balances.dirty {
		if _, existed := t.state.Balances[key]; !existed && b.isZero() {
			delete(t.balances.dirty, key)
		}
	}
}

// staged returns the state the txn would commit without publishing it.
func (t *txn) staged() *State {
	t.prune()
	return &State{
		Reserves:    t.reserves.merged(),
		ReserveList: t.list,
		Users:       t.users.merged(),
		EModes:      t.emodes.merged(),
		Balances:    t.balances.merged(),
		Supplies:    t.supplies.merged(),
		Allowances:  t.allowances.merged(),
		Settings:    t.settings,
	}
}

func (t *txn) commit() []events.Event {
	t.prune()
	t.reserves.commit()
	t.users.commit()
	t.emodes.commit()
	t.balances.commit()
	t.supplies.commit()
	t.allowances.commit()
	t.state.ReserveList = t.list
	t.state.Settings = t.settings
	return t.events
}

func (t *txn) emit(e events.Event) { t.events = append(t.events, e) }

func (t *txn) now() uint64 { return t.block.Timestamp }

func (t *txn) reserve(asset common.Address) (*ReserveData, error) {
	r, ok := t.reserves.get(asset)
	if !ok {
		return nil, ErrAssetNotListed
	}
	return r, nil
}

func (t *txn) reserveAt(id uint16) (common.Address, *ReserveData, bool) {
	if int(id) >= len(t.list) {
		return common.Address{}, nil, false
	}
	asset := t.list[id]
	if asset == (common.Address{}) {
		return asset, nil, false
	}
	r, ok := t.reserves.get(asset)
	return asset, r, ok
}

func (t *txn) user(addr common.Address) *UserState {
	u, ok := t.users.get(addr)
	if !ok {
		u = &UserState{}
		t.users.put(addr, u)
	}
	return u
}

func (t *txn) emode(id uint8) (*EModeCategory, bool) {
	if id == 0 {
		return nil, false
	}
	return t.emodes.get(id)
}

func (t *txn) balance(token, holder common.Address) *TokenBalance {
	key := BalanceKey{Token: token, Holder: holder}
	b, ok := t.balances.get(key)
	if !ok {
		b = &TokenBalance{Amount: new(uint256.Int), Index: new(uint256.Int)}
		t.balances.put(key, b)
	}
	if b.Amount == nil {
		b.Amount = new(uint256.Int)
	}
	if b.Index == nil {
		b.Index = new(uint256.Int)
	}
	return b
}

func (t *txn) supply(token common.Address) *TokenSupply {
	s, ok := t.supplies.get(token)
	if !ok {
		s = &TokenSupply{Total: new(uint256.Int), AvgRate: new(uint256.Int)}
		t.supplies.put(token, s)
	}
	if s.Total == nil {
		s.Total = new(uint256.Int)
	}
	if s.AvgRate == nil {
		s.AvgRate = new(uint256.Int)
	}
	return s
}

func (t *txn) allowance(token, owner, spender common.Address) *uint256.Int {
	v, ok := t.allowances.get(AllowanceKey{Token: token, Owner: owner, Spender: spender})
	if !ok || v == nil {
		return new(uint256.Int)
	}
	return v
}

func (t *txn) setAllowance(token, owner, spender common.Address, amount *uint256.Int) {
	key := AllowanceKey{Token: token, Owner: owner, Spender: spender}
	if amount == nil || amount.IsZero() {
		t.allowances.del(key)
		return
	}
	t.allowances.put(key, new(uint256.Int).Set(amount))
}
