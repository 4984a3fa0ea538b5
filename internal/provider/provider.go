// Package provider models an EIP-1193 style wallet provider: something that owns accounts,
// asks the user before exposing them, sits on one chain at a time and signs transactions.
package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ligun0805/lurantis-go/internal/chain"
)

// EIP-1193 / EIP-3085 error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeUnrecognizedChain = 4902
)

// Backend is the node connection a provider signs and reads through.
// *ethclient.Client and the simulated backend client both satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Provider is what the wallet connector and subscription client talk to.
type Provider interface {
	// Accounts returns already authorized accounts without prompting (eth_accounts).
	Accounts(ctx context.Context) ([]common.Address, error)
	// RequestAccounts asks the user to authorize accounts (eth_requestAccounts).
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (uint64, error)
	// SwitchChain fails with CodeUnrecognizedChain when the chain was never added.
	SwitchChain(ctx context.Context, chainID uint64) error
	AddChain(ctx context.Context, n chain.Network) error
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)
	Backend() Backend
	// Signer returns transact options for the selected account.
	Signer(ctx context.Context) (*bind.TransactOpts, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	Subscribe(l Listener) (unsubscribe func())
}

// RPCError carries an EIP-1193 code. It satisfies go-ethereum's rpc.Error.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string  { return fmt.Sprintf("%s (code %d)", e.Message, e.Code) }
func (e *RPCError) ErrorCode() int { return e.Code }

// CodeOf extracts an EIP-1193 / JSON-RPC error code, or 0.
func CodeOf(err error) int {
	var coded interface{ ErrorCode() int }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return 0
}

type EventKind int

const (
	AccountsChanged EventKind = iota + 1
	ChainChanged
)

func (k EventKind) String() string {
	switch k {
	case AccountsChanged:
		return "accountsChanged"
	case ChainChanged:
		return "chainChanged"
	}
	return "unknown"
}

type Event struct {
	Kind     EventKind
	Accounts []common.Address
	ChainID  uint64
}

type Listener func(Event)

// Emitter fans provider events out to listeners. Listeners run on the emitting goroutine.
type Emitter struct {
	mu        sync.Mutex
	next      int
	listeners map[int]Listener
}

func (e *Emitter) Subscribe(l Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[int]Listener)
	}
	id := e.next
	e.next++
	e.listeners[id] = l
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	ls := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		ls = append(ls, l)
	}
	e.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}
