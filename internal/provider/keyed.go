package provider

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ligun0805/lurantis-go/internal/chain"
	"github.com/ligun0805/lurantis-go/internal/logger"
)

// ApproveFunc is asked before accounts are exposed. Returning an error rejects.
type ApproveFunc func(ctx context.Context, accounts []common.Address) error

// DialFunc opens a backend for an RPC URL.
type DialFunc func(ctx context.Context, rpcURL string) (Backend, error)

func dialEthclient(ctx context.Context, rpcURL string) (Backend, error) {
	return ethclient.DialContext(ctx, rpcURL)
}

// Keyed is a local wallet: private keys held in memory, one RPC backend for the active chain.
type Keyed struct {
	mu         sync.Mutex
	keys       []*ecdsa.PrivateKey
	addrs      []common.Address
	selected   int
	authorized bool
	approve    ApproveFunc
	networks   map[uint64]chain.Network
	active     uint64
	backend    Backend
	dial       DialFunc
	log        *slog.Logger
	events     Emitter
}

type KeyedOption func(*Keyed)

// WithApprover prompts before the first RequestAccounts. Without one, accounts are
// authorized from the start.
func WithApprover(fn ApproveFunc) KeyedOption {
	return func(k *Keyed) { k.approve = fn }
}

// WithAuthorized marks accounts as already authorized, as a wallet that remembers a site would.
func WithAuthorized() KeyedOption {
	return func(k *Keyed) { k.authorized = true }
}

func WithDialer(fn DialFunc) KeyedOption {
	return func(k *Keyed) { k.dial = fn }
}

func WithLogger(l *slog.Logger) KeyedOption {
	return func(k *Keyed) { k.log = l }
}

// WithNetworks makes extra chains known to the wallet, so switching to them needs no add.
func WithNetworks(nets ...chain.Network) KeyedOption {
	return func(k *Keyed) {
		for _, n := range nets {
			k.networks[n.ChainID] = n
		}
	}
}

// NewKeyed dials home and returns a wallet sitting on it.
func NewKeyed(ctx context.Context, home chain.Network, keys []*ecdsa.PrivateKey, opts ...KeyedOption) (*Keyed, error) {
	if len(keys) == 0 {
		return nil, errors.New("no keys")
	}
	k := &Keyed{
		keys:     keys,
		networks: map[uint64]chain.Network{home.ChainID: home},
		dial:     dialEthclient,
	}
	for _, key := range keys {
		k.addrs = append(k.addrs, crypto.PubkeyToAddress(key.PublicKey))
	}
	for _, o := range opts {
		o(k)
	}
	if k.approve == nil {
		k.authorized = true
	}
	k.log = logger.Or(k.log)

	b, err := k.connect(ctx, home)
	if err != nil {
		return nil, err
	}
	k.backend = b
	k.active = home.ChainID
	return k, nil
}

func (k *Keyed) connect(ctx context.Context, n chain.Network) (Backend, error) {
	return dialNetwork(ctx, k.dial, n)
}

// dialNetwork opens n's RPC and refuses endpoints serving another chain.
func dialNetwork(ctx context.Context, dial DialFunc, n chain.Network) (Backend, error) {
	if n.RPC() == "" {
		return nil, fmt.Errorf("network %s has no rpc url", n.Name)
	}
	b, err := dial(ctx, n.RPC())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", n.RPC(), err)
	}
	id, err := b.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id from %s: %w", n.RPC(), err)
	}
	if id.Uint64() != n.ChainID {
		return nil, fmt.Errorf("rpc %s serves chain %s, expected %d", n.RPC(), id, n.ChainID)
	}
	return b, nil
}

func (k *Keyed) ordered() []common.Address {
	out := make([]common.Address, 0, len(k.addrs))
	out = append(out, k.addrs[k.selected])
	for i, a := range k.addrs {
		if i != k.selected {
			out = append(out, a)
		}
	}
	return out
}

func (k *Keyed) Accounts(ctx context.Context) ([]common.Address, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.authorized {
		return nil, nil
	}
	return k.ordered(), nil
}

func (k *Keyed) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	k.mu.Lock()
	authorized, approve := k.authorized, k.approve
	accts := k.ordered()
	k.mu.Unlock()

	if !authorized && approve != nil {
		if err := approve(ctx, accts); err != nil {
			return nil, &RPCError{Code: CodeUserRejected, Message: "User rejected the request: " + err.Error()}
		}
		k.mu.Lock()
		k.authorized = true
		k.mu.Unlock()
	}
	return accts, nil
}

func (k *Keyed) ChainID(ctx context.Context) (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active, nil
}

func (k *Keyed) SwitchChain(ctx context.Context, chainID uint64) error {
	k.mu.Lock()
	if chainID == k.active {
		k.mu.Unlock()
		return nil
	}
	n, ok := k.networks[chainID]
	k.mu.Unlock()
	if !ok {
		return &RPCError{Code: CodeUnrecognizedChain, Message: fmt.Sprintf("Unrecognized chain ID %d. Try adding the chain first.", chainID)}
	}

	b, err := k.connect(ctx, n)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.backend = b
	k.active = chainID
	k.mu.Unlock()

	k.log.Info("wallet switched chain", "chain_id", chainID, "network", n.Name)
	k.events.Emit(Event{Kind: ChainChanged, ChainID: chainID})
	return nil
}

// AddChain registers n and switches to it, as wallet_addEthereumChain does.
func (k *Keyed) AddChain(ctx context.Context, n chain.Network) error {
	if n.ChainID == 0 || n.RPC() == "" {
		return &RPCError{Code: -32602, Message: "chain id and rpc url are required"}
	}
	k.mu.Lock()
	k.networks[n.ChainID] = n
	k.mu.Unlock()
	return k.SwitchChain(ctx, n.ChainID)
}

func (k *Keyed) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	b := k.Backend()
	return chain.Retry(ctx, func(ctx context.Context) (*big.Int, error) {
		return b.BalanceAt(ctx, addr, nil)
	})
}

func (k *Keyed) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	b := k.Backend()
	return chain.Retry(ctx, func(ctx context.Context) ([]byte, error) {
		return b.CodeAt(ctx, addr, nil)
	})
}

func (k *Keyed) Backend() Backend {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.backend
}

func (k *Keyed) Signer(ctx context.Context) (*bind.TransactOpts, error) {
	k.mu.Lock()
	authorized := k.authorized
	key := k.keys[k.selected]
	active := k.active
	k.mu.Unlock()
	if !authorized {
		return nil, &RPCError{Code: CodeUnauthorized, Message: "The requested account has not been authorized by the user"}
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, new(big.Int).SetUint64(active))
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

func (k *Keyed) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return bind.WaitMined(ctx, k.Backend(), tx)
}

func (k *Keyed) Subscribe(l Listener) func() { return k.events.Subscribe(l) }

// SelectAccount makes addr the first account and emits accountsChanged.
func (k *Keyed) SelectAccount(addr common.Address) error {
	k.mu.Lock()
	idx := -1
	for i, a := range k.addrs {
		if a == addr {
			idx = i
		}
	}
	if idx < 0 {
		k.mu.Unlock()
		return fmt.Errorf("unknown account %s", addr.Hex())
	}
	k.selected = idx
	authorized := k.authorized
	accts := k.ordered()
	k.mu.Unlock()
	if authorized {
		k.events.Emit(Event{Kind: AccountsChanged, Accounts: accts})
	}
	return nil
}

// Lock revokes authorization and emits accountsChanged with no accounts.
func (k *Keyed) Lock() {
	k.mu.Lock()
	k.authorized = false
	k.mu.Unlock()
	k.events.Emit(Event{Kind: AccountsChanged})
}

// Close drops the backend connection when it supports closing.
func (k *Keyed) Close() {
	if c, ok := k.Backend().(interface{ Close() }); ok {
		c.Close()
	}
}

var _ Provider = (*Keyed)(nil)
