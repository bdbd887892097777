package oracle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"clpool/internal/chain"
)

const routerRegistryABIJSON = `[
  {
    "inputs": [{"internalType": "address", "name": "router", "type": "address"}],
    "name": "isTrustedRouter",
    "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	routerRegistryABI     abi.ABI
	routerRegistryABIOnce sync.Once
	routerRegistryABIErr  error
)

// RouterRegistryABI returns the parsed router registry ABI.
func RouterRegistryABI() (abi.ABI, error) {
	routerRegistryABIOnce.Do(func() {
		routerRegistryABI, routerRegistryABIErr = abi.JSON(strings.NewReader(routerRegistryABIJSON))
	})
	return routerRegistryABI, routerRegistryABIErr
}

type cachedTrust struct {
	trusted   bool
	fetchedAt time.Time
}

// RegistryOracle resolves router trust through an on-chain registry contract
// with an in-memory TTL cache. RPC failures are returned to the caller, who
// is expected to fail closed.
type RegistryOracle struct {
	client   *chain.Client
	registry common.Address
	ttl      time.Duration

	mu    sync.Mutex
	cache map[common.Address]cachedTrust
}

func NewRegistryOracle(client *chain.Client, registry common.Address, ttl time.Duration) (*RegistryOracle, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client is required")
	}
	if registry == (common.Address{}) {
		return nil, fmt.Errorf("registry address is required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RegistryOracle{
		client:   client,
		registry: registry,
		ttl:      ttl,
		cache:    make(map[common.Address]cachedTrust),
	}, nil
}

func (o *RegistryOracle) IsTrustedRouter(ctx context.Context, caller common.Address) (bool, error) {
	o.mu.Lock()
	entry, ok := o.cache[caller]
	o.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < o.ttl {
		return entry.trusted, nil
	}

	registryABI, err := RouterRegistryABI()
	if err != nil {
		return false, fmt.Errorf("registry abi: %w", err)
	}
	input, err := registryABI.Pack("isTrustedRouter", caller)
	if err != nil {
		return false, fmt.Errorf("pack isTrustedRouter: %w", err)
	}

	output, err := o.client.CallContract(ctx, ethereum.CallMsg{To: &o.registry, Data: input}, nil)
	if err != nil {
		return false, fmt.Errorf("call registry: %w", err)
	}
	values, err := registryABI.Unpack("isTrustedRouter", output)
	if err != nil {
		return false, fmt.Errorf("unpack isTrustedRouter: %w", err)
	}
	if len(values) != 1 {
		return false, fmt.Errorf("unexpected isTrustedRouter output arity: %d", len(values))
	}
	trusted, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected isTrustedRouter output type %T", values[0])
	}

	o.mu.Lock()
	o.cache[caller] = cachedTrust{trusted: trusted, fetchedAt: time.Now()}
	o.mu.Unlock()

	return trusted, nil
}
