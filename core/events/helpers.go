package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type attributes map[string]string

func (a attributes) address(key string, addr common.Address) attributes {
	a[key] = addr.Hex()
	return a
}

func (a attributes) amount(key string, v *uint256.Int) attributes {
	a[key] = formatAmount(v)
	return a
}

func (a attributes) uint(key string, v uint64) attributes {
	a[key] = strconv.FormatUint(v, 10)
	return a
}

func (a attributes) boolean(key string, v bool) attributes {
	a[key] = strconv.FormatBool(v)
	return a
}

func (a attributes) text(key, v string) attributes {
	if v != "" {
		a[key] = v
	}
	return a
}

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
