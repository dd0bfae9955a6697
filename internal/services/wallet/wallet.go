// Package wallet moves value between identities on behalf of the
// marketplace. Failures are reported as status.ErrPaymentRejected when the
// wallet declined and status.ErrPaymentUnavailable when it could not be
// reached.
package wallet

import (
	"context"
	"fmt"
	"time"

	"blocktix/models"

	"github.com/shopspring/decimal"
)

type Provider string

const (
	ProviderRPC       Provider = "rpc"
	ProviderSimulated Provider = "simulated"
)

// Gateway is implemented by every wallet provider.
type Gateway interface {
	Pay(ctx context.Context, from, to string, amount decimal.Decimal) (*models.Payment, error)
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
}

type Config struct {
	RPCURL  string
	Timeout time.Duration

	// SimulatedBalance is the starting balance of every simulated address.
	SimulatedBalance decimal.Decimal
}

// New creates the gateway for provider.
func New(provider Provider, cfg Config) (Gateway, error) {
	switch provider {
	case ProviderRPC:
		if cfg.RPCURL == "" {
			return nil, fmt.Errorf("wallet provider %s requires an RPC URL", provider)
		}
		return NewRPC(cfg.RPCURL, cfg.Timeout), nil
	case ProviderSimulated:
		return NewSimulated(cfg.SimulatedBalance), nil
	default:
		return nil, fmt.Errorf("unsupported wallet provider %q, expected one of %v", provider, SupportedProviders())
	}
}

// SupportedProviders lists the providers New accepts.
func SupportedProviders() []Provider {
	return []Provider{ProviderRPC, ProviderSimulated}
}
