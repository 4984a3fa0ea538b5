package subscription

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ligun0805/lurantis-go/internal/chain"
	"github.com/ligun0805/lurantis-go/internal/provider"
)

// ABI is the part of the Subscription contract this client calls. Nothing else about the
// contract is assumed.
const ABI = `[
{"inputs":[],"name":"subscribe","outputs":[],"stateMutability":"payable","type":"function"},
{"inputs":[{"internalType":"address","name":"user","type":"address"}],"name":"hasActiveSubscription","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"user","type":"address"}],"name":"getSubscriptionEndTime","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"user","type":"address"}],"name":"getDaysRemaining","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"MONTHLY_PRICE","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var subscriptionABI abi.ABI

func init() {
	ab, err := abi.JSON(strings.NewReader(ABI))
	if err != nil {
		panic(fmt.Sprintf("subscription abi: %v", err))
	}
	subscriptionABI = ab
}

// Contract is the opaque on-chain collaborator.
type Contract interface {
	HasActiveSubscription(ctx context.Context, user common.Address) (bool, error)
	SubscriptionEndTime(ctx context.Context, user common.Address) (*big.Int, error)
	DaysRemaining(ctx context.Context, user common.Address) (*big.Int, error)
	MonthlyPrice(ctx context.Context) (*big.Int, error)
	// EstimateSubscribe dry-runs subscribe() with value attached; a revert surfaces here.
	EstimateSubscribe(ctx context.Context, from common.Address, value *big.Int) (uint64, error)
	Subscribe(opts *bind.TransactOpts) (*types.Transaction, error)
}

// ContractFactory binds the contract at addr to a node backend.
type ContractFactory func(addr common.Address, backend provider.Backend) (Contract, error)

type boundContract struct {
	addr    common.Address
	backend provider.Backend
	bound   *bind.BoundContract
}

// Bind is the default ContractFactory.
func Bind(addr common.Address, backend provider.Backend) (Contract, error) {
	if backend == nil {
		return nil, fmt.Errorf("bind %s: no backend", addr.Hex())
	}
	return &boundContract{
		addr:    addr,
		backend: backend,
		bound:   bind.NewBoundContract(addr, subscriptionABI, backend, backend, backend),
	}, nil
}

// call packs method, runs eth_call with retry and unpacks the single return value.
func (b *boundContract) call(ctx context.Context, method string, args ...any) (any, error) {
	data, err := subscriptionABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s pack: %w", method, err)
	}
	ret, err := chain.Retry(ctx, func(ctx context.Context) ([]byte, error) {
		return b.backend.CallContract(ctx, ethereum.CallMsg{To: &b.addr, Data: data}, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	out, err := subscriptionABI.Unpack(method, ret)
	if err != nil {
		return nil, fmt.Errorf("%s unpack: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s: expected 1 return value, got %d", method, len(out))
	}
	return out[0], nil
}

func (b *boundContract) callUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	v, err := b.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected return type %T", method, v)
	}
	return n, nil
}

func (b *boundContract) HasActiveSubscription(ctx context.Context, user common.Address) (bool, error) {
	v, err := b.call(ctx, "hasActiveSubscription", user)
	if err != nil {
		return false, err
	}
	active, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("hasActiveSubscription: unexpected return type %T", v)
	}
	return active, nil
}

func (b *boundContract) SubscriptionEndTime(ctx context.Context, user common.Address) (*big.Int, error) {
	return b.callUint(ctx, "getSubscriptionEndTime", user)
}

func (b *boundContract) DaysRemaining(ctx context.Context, user common.Address) (*big.Int, error) {
	return b.callUint(ctx, "getDaysRemaining", user)
}

func (b *boundContract) MonthlyPrice(ctx context.Context) (*big.Int, error) {
	return b.callUint(ctx, "MONTHLY_PRICE")
}

func (b *boundContract) EstimateSubscribe(ctx context.Context, from common.Address, value *big.Int) (uint64, error) {
	data, err := subscriptionABI.Pack("subscribe")
	if err != nil {
		return 0, fmt.Errorf("subscribe pack: %w", err)
	}
	return b.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &b.addr,
		Value: value,
		Data:  data,
	})
}

func (b *boundContract) Subscribe(opts *bind.TransactOpts) (*types.Transaction, error) {
	return b.bound.Transact(opts, "subscribe")
}
