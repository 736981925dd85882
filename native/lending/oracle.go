package lending

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BaseCurrencyUnit is one unit of the base currency prices are quoted in.
var BaseCurrencyUnit = uint256.NewInt(100_000_000)

// PriceOracle prices an asset, or an e-mode price source, in base currency.
type PriceOracle interface {
	GetAssetPrice(asset common.Address) (*uint256.Int, error)
}

// StaticOracle serves prices set by an operator. Safe for concurrent use.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[common.Address]*uint256.Int
}

// NewStaticOracle returns an oracle without prices.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{prices: make(map[common.Address]*uint256.Int)}
}

// SetAssetPrice records price for asset.
func (o *StaticOracle) SetAssetPrice(asset common.Address, price *uint256.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[asset] = new(uint256.Int).Set(price)
}

// GetAssetPrice implements PriceOracle. Missing and zero prices are errors.
func (o *StaticOracle) GetAssetPrice(asset common.Address) (*uint256.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.prices[asset]
	if !ok || price.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrOracleUnavailable, asset.Hex())
	}
	return new(uint256.Int).Set(price), nil
}

func (t *txn) price(source common.Address) (*uint256.Int, error) {
	if t.oracle == nil {
		return nil, ErrOracleUnavailable
	}
	return t.oracle.GetAssetPrice(source)
}
