// Package oracle provides router trust oracles for referrer fee attribution.
// The static oracle answers from a fixed allowlist; the registry oracle asks
// an on-chain registry contract and caches answers. Callers treat any oracle
// error as "not trusted".
package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// StaticOracle answers from an in-memory allowlist. It never returns an error.
type StaticOracle struct {
	trusted map[common.Address]struct{}
}

func NewStaticOracle(routers []common.Address) *StaticOracle {
	trusted := make(map[common.Address]struct{}, len(routers))
	for _, router := range routers {
		trusted[router] = struct{}{}
	}
	return &StaticOracle{trusted: trusted}
}

func (o *StaticOracle) IsTrustedRouter(_ context.Context, caller common.Address) (bool, error) {
	_, ok := o.trusted[caller]
	return ok, nil
}

// ParseRouters converts string addresses into common.Address.
func ParseRouters(inputs []string) ([]common.Address, error) {
	routers := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid router address: %s", input)
		}
		routers = append(routers, common.HexToAddress(input))
	}
	return routers, nil
}
