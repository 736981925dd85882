package lending

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"lukechampine.com/blake3"

	"lendcore/storage"
)

const (
	snapshotKey     = "lending/state/v1"
	snapshotVersion = 2
	checksumSize    = 32
)

// Store persists pool state snapshots in a key-value database.
type Store struct {
	db storage.Database
}

// NewStore wraps db.
func NewStore(db storage.Database) *Store { return &Store{db: db} }

type storedReserve struct {
	Asset                     common.Address
	ID                        uint16
	Configuration             []byte
	LiquidityIndex            []byte
	VariableBorrowIndex       []byte
	CurrentLiquidityRate      []byte
	CurrentVariableBorrowRate []byte
	CurrentStableBorrowRate   []byte
	LastUpdateTimestamp       uint64
	ATokenAddress             common.Address
	StableDebtAddress         common.Address
	VariableDebtAddress       common.Address
	InterestRateStrategy      string
	AccruedToTreasury         []byte
	IsolationModeTotalDebt    uint64
}

type storedUser struct {
	Address       common.Address
	Configuration []byte
	EModeCategory uint8
}

type storedEMode struct {
	ID                   uint8
	LTV                  uint16
	LiquidationThreshold uint16
	LiquidationBonus     uint16
	PriceSource          common.Address
	Label                string
}

type storedBalance struct {
	Token     common.Address
	Holder    common.Address
	Amount    []byte
	Index     []byte
	Timestamp uint64
	LastMint  uint64
	Minted    bool
}

type storedSupply struct {
	Token     common.Address
	Total     []byte
	AvgRate   []byte
	Timestamp uint64
}

type storedAllowance struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address
	Amount  []byte
}

type storedState struct {
	Version     uint64
	ReserveList []common.Address
	Reserves    []storedReserve
	Users       []storedUser
	EModes      []storedEMode
	Balances    []storedBalance
	Supplies    []storedSupply
	Allowances  []storedAllowance

	Treasury                       common.Address
	FlashLoanPremiumTotal          uint64
	FlashLoanPremiumToProtocol     uint64
	MaxStableRateBorrowSizePercent uint64
}

func intBytes(v *uint256.Int) []byte {
	if v == nil {
		return nil
	}
	return v.Bytes()
}

func bytesInt(b []byte) *uint256.Int { return new(uint256.Int).SetBytes(b) }

func addrLess(a, b common.Address) bool { return bytes.Compare(a[:], b[:]) < 0 }

func encodeState(s *State) storedState {
	out := storedState{
		Version:                        snapshotVersion,
		ReserveList:                    append([]common.Address(nil), s.ReserveList...),
		Treasury:                       s.Settings.Treasury,
		FlashLoanPremiumTotal:          s.Settings.FlashLoanPremiumTotal,
		FlashLoanPremiumToProtocol:     s.Settings.FlashLoanPremiumToProtocol,
		MaxStableRateBorrowSizePercent: s.Settings.MaxStableRateBorrowSizePercent,
	}
	for asset, r := range s.Reserves {
		out.Reserves = append(out.Reserves, storedReserve{
			Asset:                     asset,
			ID:                        r.ID,
			Configuration:             r.Configuration.Pack().Bytes(),
			LiquidityIndex:            intBytes(r.LiquidityIndex),
			VariableBorrowIndex:       intBytes(r.VariableBorrowIndex),
			CurrentLiquidityRate:      intBytes(r.CurrentLiquidityRate),
			CurrentVariableBorrowRate: intBytes(r.CurrentVariableBorrowRate),
			CurrentStableBorrowRate:   intBytes(r.CurrentStableBorrowRate),
			LastUpdateTimestamp:       r.LastUpdateTimestamp,
			ATokenAddress:             r.ATokenAddress,
			StableDebtAddress:         r.StableDebtAddress,
			VariableDebtAddress:       r.VariableDebtAddress,
			InterestRateStrategy:      r.InterestRateStrategy,
			AccruedToTreasury:         intBytes(r.AccruedToTreasury),
			IsolationModeTotalDebt:    r.IsolationModeTotalDebt,
		})
	}
	sort.Slice(out.Reserves, func(i, j int) bool { return out.Reserves[i].ID < out.Reserves[j].ID })

	for addr, u := range s.Users {
		out.Users = append(out.Users, storedUser{Address: addr, Configuration: intBytes(u.Configuration.Data), EModeCategory: u.EModeCategory})
	}
	sort.Slice(out.Users, func(i, j int) bool { return addrLess(out.Users[i].Address, out.Users[j].Address) })

	for id, c := range s.EModes {
		out.EModes = append(out.EModes, storedEMode{
			ID:                   id,
			LTV:                  c.LTV,
			LiquidationThreshold: c.LiquidationThreshold,
			LiquidationBonus:     c.LiquidationBonus,
			PriceSource:          c.PriceSource,
			Label:                c.Label,
		})
	}
	sort.Slice(out.EModes, func(i, j int) bool { return out.EModes[i].ID < out.EModes[j].ID })

	for key, b := range s.Balances {
		out.Balances = append(out.Balances, storedBalance{
			Token:     key.Token,
			Holder:    key.Holder,
			Amount:    intBytes(b.Amount),
			Index:     intBytes(b.Index),
			Timestamp: b.Timestamp,
			LastMint:  b.LastMint,
			Minted:    b.Minted,
		})
	}
	sort.Slice(out.Balances, func(i, j int) bool {
		a, b := out.Balances[i], out.Balances[j]
		if a.Token != b.Token {
			return addrLess(a.Token, b.Token)
		}
		return addrLess(a.Holder, b.Holder)
	})

	for token, sup := range s.Supplies {
		out.Supplies = append(out.Supplies, storedSupply{Token: token, Total: intBytes(sup.Total), AvgRate: intBytes(sup.AvgRate), Timestamp: sup.Timestamp})
	}
	sort.Slice(out.Supplies, func(i, j int) bool { return addrLess(out.Supplies[i].Token, out.Supplies[j].Token) })

	for key, amount := range s.Allowances {
		out.Allowances = append(out.Allowances, storedAllowance{Token: key.Token, Owner: key.Owner, Spender: key.Spender, Amount: intBytes(amount)})
	}
	sort.Slice(out.Allowances, func(i, j int) bool {
		a, b := out.Allowances[i], out.Allowances[j]
		if a.Token != b.Token {
			return addrLess(a.Token, b.Token)
		}
		if a.Owner != b.Owner {
			return addrLess(a.Owner, b.Owner)
		}
		return addrLess(a.Spender, b.Spender)
	})
	return out
}

func decodeState(in storedState) *State {
	s := NewState()
	s.ReserveList = append([]common.Address(nil), in.ReserveList...)
	s.Settings = Settings{
		Treasury:                       in.Treasury,
		FlashLoanPremiumTotal:          in.FlashLoanPremiumTotal,
		FlashLoanPremiumToProtocol:     in.FlashLoanPremiumToProtocol,
		MaxStableRateBorrowSizePercent: in.MaxStableRateBorrowSizePercent,
	}
	for _, r := range in.Reserves {
		s.Reserves[r.Asset] = &ReserveData{
			ID:                        r.ID,
			Configuration:             UnpackReserveConfiguration(bytesInt(r.Configuration)),
			LiquidityIndex:            bytesInt(r.LiquidityIndex),
			VariableBorrowIndex:       bytesInt(r.VariableBorrowIndex),
			CurrentLiquidityRate:      bytesInt(r.CurrentLiquidityRate),
			CurrentVariableBorrowRate: bytesInt(r.CurrentVariableBorrowRate),
			CurrentStableBorrowRate:   bytesInt(r.CurrentStableBorrowRate),
			LastUpdateTimestamp:       r.LastUpdateTimestamp,
			ATokenAddress:             r.ATokenAddress,
			StableDebtAddress:         r.StableDebtAddress,
			VariableDebtAddress:       r.VariableDebtAddress,
			InterestRateStrategy:      r.InterestRateStrategy,
			AccruedToTreasury:         bytesInt(r.AccruedToTreasury),
			IsolationModeTotalDebt:    r.IsolationModeTotalDebt,
		}
	}
	for _, u := range in.Users {
		s.Users[u.Address] = &UserState{Configuration: UserConfiguration{Data: bytesInt(u.Configuration)}, EModeCategory: u.EModeCategory}
	}
	for _, c := range in.EModes {
		s.EModes[c.ID] = &EModeCategory{
			ID:                   c.ID,
			LTV:                  c.LTV,
			LiquidationThreshold: c.LiquidationThreshold,
			LiquidationBonus:     c.LiquidationBonus,
			PriceSource:          c.PriceSource,
			Label:                c.Label,
		}
	}
	for _, b := range in.Balances {
		s.Balances[BalanceKey{Token: b.Token, Holder: b.Holder}] = &TokenBalance{
			Amount:    bytesInt(b.Amount),
			Index:     bytesInt(b.Index),
			Timestamp: b.Timestamp,
			LastMint:  b.LastMint,
			Minted:    b.Minted,
		}
	}
	for _, sup := range in.Supplies {
		s.Supplies[sup.Token] = &TokenSupply{Total: bytesInt(sup.Total), AvgRate: bytesInt(sup.AvgRate), Timestamp: sup.Timestamp}
	}
	for _, a := range in.Allowances {
		s.Allowances[AllowanceKey{Token: a.Token, Owner: a.Owner, Spender: a.Spender}] = bytesInt(a.Amount)
	}
	return s
}

// seal prefixes the payload with its blake3 digest.
func seal(payload []byte) []byte {
	sum := blake3.Sum256(payload)
	out := make([]byte, 0, len(sum)+len(payload))
	out = append(out, sum[:]...)
	return append(out, payload...)
}

func unseal(data []byte) ([]byte, error) {
	if len(data) < checksumSize {
		return nil, fmt.Errorf("lending state truncated at %d bytes", len(data))
	}
	payload := data[checksumSize:]
	if sum := blake3.Sum256(payload); !bytes.Equal(sum[:], data[:checksumSize]) {
		return nil, errors.New("lending state checksum mismatch")
	}
	return payload, nil
}

// Save writes a snapshot of s. It implements Snapshotter.
func (st *Store) Save(s *State) error {
	encoded, err := rlp.EncodeToBytes(encodeState(s))
	if err != nil {
		return fmt.Errorf("encode lending state: %w", err)
	}
	return st.db.Put([]byte(snapshotKey), seal(encoded))
}

// Load reads the last snapshot. It returns ok false when none was saved.
func (st *Store) Load() (*State, bool, error) {
	data, err := st.db.Get([]byte(snapshotKey))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	payload, err := unseal(data)
	if err != nil {
		return nil, false, err
	}
	var stored storedState
	if err := rlp.DecodeBytes(payload, &stored); err != nil {
		return nil, false, fmt.Errorf("decode lending state: %w", err)
	}
	if stored.Version != snapshotVersion {
		return nil, false, fmt.Errorf("lending state version %d not supported", stored.Version)
	}
	return decodeState(stored), true, nil
}
