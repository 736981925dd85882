package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// PriceDecimals is the precision of reserve prices in the base currency.
const PriceDecimals = 8

// parsePrice reads a human price such as "2000.5" into base currency units.
func parsePrice(raw string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%q is not a decimal", raw)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("%s must be positive", raw)
	}
	scaled := d.Shift(PriceDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%s has more than %d decimals", raw, PriceDecimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("%s overflows", raw)
	}
	return v, nil
}

// Validate checks addresses, references between sections and the numeric
// fields that can be checked without a pool. Range and relationship rules
// on risk parameters are left to the configurator.
func (m *Markets) Validate() error {
	if m == nil {
		return fmt.Errorf("markets configuration is missing")
	}
	if m.Treasury != "" && !common.IsHexAddress(m.Treasury) {
		return fmt.Errorf("treasury: %q is not an address", m.Treasury)
	}
	if len(m.Admins.Pool) == 0 {
		return fmt.Errorf("admins: at least one pool admin is required")
	}
	for role, list := range map[string][]string{
		"Pool":           m.Admins.Pool,
		"Emergency":      m.Admins.Emergency,
		"Risk":           m.Admins.Risk,
		"AssetListing":   m.Admins.AssetListing,
		"FlashBorrowers": m.Admins.FlashBorrowers,
	} {
		for _, addr := range list {
			if !common.IsHexAddress(addr) {
				return fmt.Errorf("admins.%s: %q is not an address", role, addr)
			}
		}
	}
	for id, s := range m.Strategies {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("strategies: empty strategy id")
		}
		if _, err := s.params(); err != nil {
			return fmt.Errorf("strategies.%s: %w", id, err)
		}
	}
	emodes := make(map[uint8]struct{}, len(m.EModes))
	for _, e := range m.EModes {
		if e.ID == 0 {
			return fmt.Errorf("emode %q: id 0 is reserved", e.Label)
		}
		if _, dup := emodes[e.ID]; dup {
			return fmt.Errorf("emode %d: duplicate id", e.ID)
		}
		if e.PriceSource != "" && !common.IsHexAddress(e.PriceSource) {
			return fmt.Errorf("emode %d: price source %q is not an address", e.ID, e.PriceSource)
		}
		emodes[e.ID] = struct{}{}
	}
	assets := make(map[common.Address]struct{}, len(m.Reserves))
	for i, r := range m.Reserves {
		name := r.Symbol
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		if !common.IsHexAddress(r.Asset) {
			return fmt.Errorf("reserve %s: asset %q is not an address", name, r.Asset)
		}
		addr := common.HexToAddress(r.Asset)
		if _, dup := assets[addr]; dup {
			return fmt.Errorf("reserve %s: asset listed twice", name)
		}
		assets[addr] = struct{}{}
		if _, ok := m.Strategies[r.Strategy]; !ok {
			return fmt.Errorf("reserve %s: unknown strategy %q", name, r.Strategy)
		}
		if r.EModeCategory != 0 {
			if _, ok := emodes[r.EModeCategory]; !ok {
				return fmt.Errorf("reserve %s: unknown emode category %d", name, r.EModeCategory)
			}
		}
		if r.Price != "" {
			if _, err := parsePrice(r.Price); err != nil {
				return fmt.Errorf("reserve %s: price: %w", name, err)
			}
		}
		if r.StableBorrowing && !r.Borrowing {
			return fmt.Errorf("reserve %s: stable borrowing requires borrowing", name)
		}
	}
	return nil
}
