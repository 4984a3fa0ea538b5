package provider

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ligun0805/lurantis-go/internal/chain"
)

// ReadOnly is a provider without accounts, for contract reads when no key is configured.
// Every account or signing request fails with CodeUnauthorized.
type ReadOnly struct {
	net     chain.Network
	backend Backend
	events  Emitter
}

// DialReadOnly connects to n. A nil dial uses ethclient.
func DialReadOnly(ctx context.Context, n chain.Network, dial DialFunc) (*ReadOnly, error) {
	if dial == nil {
		dial = dialEthclient
	}
	b, err := dialNetwork(ctx, dial, n)
	if err != nil {
		return nil, err
	}
	return &ReadOnly{net: n, backend: b}, nil
}

func unauthorized() error {
	return &RPCError{Code: CodeUnauthorized, Message: "No wallet configured"}
}

func (r *ReadOnly) Accounts(context.Context) ([]common.Address, error) { return nil, nil }

func (r *ReadOnly) RequestAccounts(context.Context) ([]common.Address, error) {
	return nil, unauthorized()
}

func (r *ReadOnly) ChainID(context.Context) (uint64, error) { return r.net.ChainID, nil }

func (r *ReadOnly) SwitchChain(_ context.Context, chainID uint64) error {
	if chainID == r.net.ChainID {
		return nil
	}
	return &RPCError{Code: CodeUnsupportedMethod, Message: "read-only provider cannot switch chains"}
}

func (r *ReadOnly) AddChain(ctx context.Context, n chain.Network) error {
	return r.SwitchChain(ctx, n.ChainID)
}

func (r *ReadOnly) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	return chain.Retry(ctx, func(ctx context.Context) (*big.Int, error) {
		return r.backend.BalanceAt(ctx, addr, nil)
	})
}

func (r *ReadOnly) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	return chain.Retry(ctx, func(ctx context.Context) ([]byte, error) {
		return r.backend.CodeAt(ctx, addr, nil)
	})
}

func (r *ReadOnly) Backend() Backend { return r.backend }

func (r *ReadOnly) Signer(context.Context) (*bind.TransactOpts, error) { return nil, unauthorized() }

func (r *ReadOnly) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return bind.WaitMined(ctx, r.backend, tx)
}

func (r *ReadOnly) Subscribe(l Listener) func() { return r.events.Subscribe(l) }

func (r *ReadOnly) Close() {
	if c, ok := r.backend.(interface{ Close() }); ok {
		c.Close()
	}
}

var _ Provider = (*ReadOnly)(nil)
