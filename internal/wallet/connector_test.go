package wallet

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/lurantis-go/internal/chain"
	"github.com/ligun0805/lurantis-go/internal/errors"
	"github.com/ligun0805/lurantis-go/internal/logger"
	"github.com/ligun0805/lurantis-go/internal/provider"
	"github.com/ligun0805/lurantis-go/internal/session"
)

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	ether = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// fakeProvider is an in-memory wallet. gate, when set, blocks RequestAccounts until closed.
type fakeProvider struct {
	provider.Emitter

	mu         sync.Mutex
	accounts   []common.Address
	authorized bool
	chainID    uint64
	known      map[uint64]bool
	balances   map[common.Address]*big.Int
	rejectReq  bool
	gate       chan struct{}
	entered    chan struct{}
	switches   []uint64
	added      []uint64
}

func newFakeProvider(chainID uint64, accts ...common.Address) *fakeProvider {
	f := &fakeProvider{
		accounts: accts,
		chainID:  chainID,
		known:    map[uint64]bool{chainID: true},
		balances: map[common.Address]*big.Int{},
	}
	for _, a := range accts {
		f.balances[a] = new(big.Int).Mul(big.NewInt(2), ether)
	}
	return f
}

func (f *fakeProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.authorized {
		return nil, nil
	}
	return append([]common.Address(nil), f.accounts...), nil
}

func (f *fakeProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectReq {
		return nil, &provider.RPCError{Code: provider.CodeUserRejected, Message: "User rejected the request."}
	}
	f.authorized = true
	return append([]common.Address(nil), f.accounts...), nil
}

func (f *fakeProvider) ChainID(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chainID, nil
}

func (f *fakeProvider) SwitchChain(ctx context.Context, id uint64) error {
	f.mu.Lock()
	f.switches = append(f.switches, id)
	if !f.known[id] {
		f.mu.Unlock()
		return &provider.RPCError{Code: provider.CodeUnrecognizedChain, Message: "Unrecognized chain ID"}
	}
	changed := f.chainID != id
	f.chainID = id
	f.mu.Unlock()
	if changed {
		f.Emit(provider.Event{Kind: provider.ChainChanged, ChainID: id})
	}
	return nil
}

func (f *fakeProvider) AddChain(ctx context.Context, n chain.Network) error {
	f.mu.Lock()
	f.added = append(f.added, n.ChainID)
	f.known[n.ChainID] = true
	f.mu.Unlock()
	return f.SwitchChain(ctx, n.ChainID)
}

func (f *fakeProvider) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[addr]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *fakeProvider) setBalance(addr common.Address, wei *big.Int) {
	f.mu.Lock()
	f.balances[addr] = wei
	f.mu.Unlock()
}

func (f *fakeProvider) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	return nil, nil
}
func (f *fakeProvider) Backend() provider.Backend { return nil }
func (f *fakeProvider) Signer(ctx context.Context) (*bind.TransactOpts, error) {
	return nil, &provider.RPCError{Code: provider.CodeUnsupportedMethod, Message: "not supported"}
}
func (f *fakeProvider) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return nil, &provider.RPCError{Code: provider.CodeUnsupportedMethod, Message: "not supported"}
}

func gnosis(t *testing.T) chain.Network {
	t.Helper()
	n, err := chain.Lookup("gnosis-mainnet")
	require.NoError(t, err)
	return n
}

type memStore struct {
	mu   sync.Mutex
	recs map[uint64]session.Record
}

func (m *memStore) Load(ctx context.Context, id uint64) (session.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	return r, ok, nil
}

func (m *memStore) Save(ctx context.Context, r session.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recs == nil {
		m.recs = map[uint64]session.Record{}
	}
	m.recs[r.ChainID] = r
	return nil
}

func (m *memStore) mode(id uint64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recs[id].Mode
}

func newConnector(t *testing.T, p provider.Provider, opts ...Option) *Connector {
	t.Helper()
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	c := NewConnector(p, gnosis(t), opts...)
	t.Cleanup(c.Close)
	return c
}

func TestConnectHappyPath(t *testing.T) {
	p := newFakeProvider(100, alice)
	c := newConnector(t, p)
	ctx := context.Background()

	st, err := c.Connect(ctx)
	require.NoError(t, err)
	assert.True(t, st.Connected)
	assert.False(t, st.Connecting)
	assert.Equal(t, alice.Hex(), st.Address)
	assert.Equal(t, "2.0000", st.Balance)
	assert.Equal(t, uint64(100), st.ChainID)
	assert.Equal(t, ModeConnected, st.Mode)
	assert.Empty(t, st.Err)
	assert.Empty(t, p.switches, "already on the target chain")
}

func TestConnectDisconnectConnect(t *testing.T) {
	p := newFakeProvider(100, alice)
	store := &memStore{}
	c := newConnector(t, p, WithPersister(store))
	ctx := context.Background()

	_, err := c.Connect(ctx)
	require.NoError(t, err)

	st := c.Disconnect()
	assert.False(t, st.Connected)
	assert.Empty(t, st.Address)
	assert.Equal(t, ModeManuallyDisconnected, st.Mode)
	assert.Equal(t, "manually_disconnected", store.mode(100))

	p.setBalance(alice, new(big.Int).Mul(big.NewInt(5), ether))
	st, err = c.Connect(ctx)
	require.NoError(t, err)
	assert.True(t, st.Connected)
	assert.Equal(t, "5.0000", st.Balance, "state reflects the last connect")
	assert.Equal(t, ModeConnected, c.State().Mode)
	assert.Equal(t, "connected", store.mode(100))
}

func TestDisconnectWhileConnectPending(t *testing.T) {
	p := newFakeProvider(100, alice)
	p.gate = make(chan struct{})
	p.entered = make(chan struct{}, 1)
	c := newConnector(t, p)

	done := make(chan State, 1)
	go func() {
		st, err := c.Connect(context.Background())
		assert.NoError(t, err, "a superseded connect is not an error")
		done <- st
	}()

	<-p.entered
	assert.True(t, c.State().Connecting)

	c.Disconnect()
	close(p.gate)

	select {
	case st := <-done:
		assert.False(t, st.Connected)
	case <-time.After(5 * time.Second):
		t.Fatal("connect did not return")
	}
	st := c.State()
	assert.False(t, st.Connected)
	assert.False(t, st.Connecting)
	assert.Empty(t, st.Address)
	assert.Equal(t, ModeManuallyDisconnected, st.Mode)
}

func TestSecondConnectSupersedesFirst(t *testing.T) {
	p := newFakeProvider(100, alice, bob)
	p.gate = make(chan struct{})
	p.entered = make(chan struct{}, 2)
	c := newConnector(t, p)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = c.ConnectAccount(context.Background(), alice)
	}()
	<-p.entered
	go func() {
		defer wg.Done()
		_, _ = c.ConnectAccount(context.Background(), bob)
	}()
	<-p.entered
	close(p.gate)
	wg.Wait()

	assert.Equal(t, bob.Hex(), c.State().Address)
}

func TestStartRestoresManualDisconnect(t *testing.T) {
	p := newFakeProvider(100, alice)
	p.authorized = true
	store := &memStore{}
	require.NoError(t, store.Save(context.Background(), session.Record{ChainID: 100, Mode: "manually_disconnected"}))

	c := newConnector(t, p, WithPersister(store))
	st := c.Start(context.Background())
	assert.False(t, st.Connected, "no silent reconnect after a manual disconnect")
	assert.Equal(t, ModeManuallyDisconnected, st.Mode)
}

func TestStartReconnectsAuthorizedAccount(t *testing.T) {
	p := newFakeProvider(100, alice)
	p.authorized = true
	c := newConnector(t, p, WithPersister(&memStore{}))

	st := c.Start(context.Background())
	assert.True(t, st.Connected)
	assert.Equal(t, alice.Hex(), st.Address)
}

func TestStartWithoutAuthorizationStaysIdle(t *testing.T) {
	p := newFakeProvider(100, alice)
	c := newConnector(t, p)

	st := c.Start(context.Background())
	assert.False(t, st.Connected)
	assert.Equal(t, ModeIdle, st.Mode)
	assert.Empty(t, st.Err)
}

func TestEmptyAccountsChangedAfterManualDisconnect(t *testing.T) {
	p := newFakeProvider(100, alice)
	c := newConnector(t, p)
	ctx := context.Background()
	c.Start(ctx)
	_, err := c.Connect(ctx)
	require.NoError(t, err)
	c.Disconnect()

	var calls int
	stop := c.Watch(func(State) { calls++ })
	defer stop()

	p.Emit(provider.Event{Kind: provider.AccountsChanged})
	p.Emit(provider.Event{Kind: provider.AccountsChanged, Accounts: []common.Address{bob}})
	c.Close()

	assert.Zero(t, calls)
	st := c.State()
	assert.False(t, st.Connected)
	assert.Equal(t, ModeManuallyDisconnected, st.Mode)
}

func TestEmptyAccountsChangedWhileConnected(t *testing.T) {
	p := newFakeProvider(100, alice)
	store := &memStore{}
	c := newConnector(t, p, WithPersister(store))
	ctx := context.Background()
	c.Start(ctx)
	_, err := c.Connect(ctx)
	require.NoError(t, err)

	p.Emit(provider.Event{Kind: provider.AccountsChanged})
	st := c.State()
	assert.False(t, st.Connected)
	assert.Equal(t, ModeManuallyDisconnected, st.Mode)
	assert.Equal(t, "manually_disconnected", store.mode(100))
}

func TestAccountsChangedReconnects(t *testing.T) {
	p := newFakeProvider(100, alice, bob)
	c := newConnector(t, p)
	ctx := context.Background()
	c.Start(ctx)
	_, err := c.Connect(ctx)
	require.NoError(t, err)

	p.Emit(provider.Event{Kind: provider.AccountsChanged, Accounts: []common.Address{bob, alice}})
	assert.Eventually(t, func() bool {
		st := c.State()
		return st.Connected && st.Address == bob.Hex()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDisconnectRightAfterAccountsChanged(t *testing.T) {
	for i := 0; i < 20; i++ {
		p := newFakeProvider(100, alice, bob)
		store := &memStore{}
		c := newConnector(t, p, WithPersister(store))
		ctx := context.Background()
		c.Start(ctx)
		_, err := c.Connect(ctx)
		require.NoError(t, err)

		p.Emit(provider.Event{Kind: provider.AccountsChanged, Accounts: []common.Address{bob, alice}})
		c.Disconnect()
		c.Close()

		st := c.State()
		require.False(t, st.Connected, "run %d: reconnected to %s", i, st.Address)
		require.Equal(t, ModeManuallyDisconnected, st.Mode)
		require.Equal(t, "manually_disconnected", store.mode(100))
	}
}

func TestAutomaticConnectRefusedAfterDisconnect(t *testing.T) {
	p := newFakeProvider(100, alice, bob)
	c := newConnector(t, p)
	ctx := context.Background()
	_, err := c.Connect(ctx)
	require.NoError(t, err)
	c.Disconnect()

	p.entered = make(chan struct{}, 1)
	st, err := c.connect(ctx, &bob, true)
	require.NoError(t, err)
	assert.Empty(t, p.entered, "the wallet is not asked again")
	assert.False(t, st.Connected)
	assert.Equal(t, ModeManuallyDisconnected, st.Mode)

	st, err = c.ConnectAccount(ctx, bob)
	require.NoError(t, err)
	assert.True(t, st.Connected, "an explicit connect clears the disconnect")
	assert.Equal(t, bob.Hex(), st.Address)
}

func TestConnectAccountNotExposed(t *testing.T) {
	p := newFakeProvider(100, alice)
	c := newConnector(t, p)

	st, err := c.ConnectAccount(context.Background(), bob)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoAccounts))
	assert.False(t, st.Connected)
	assert.Empty(t, st.Address)
	assert.Contains(t, st.Err, bob.Hex())
	assert.Equal(t, ModeIdle, st.Mode)
}

func TestConnectAddsUnknownChain(t *testing.T) {
	p := newFakeProvider(1, alice)
	c := newConnector(t, p)
	c.Start(context.Background())

	st, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Connected)
	assert.Equal(t, uint64(100), st.ChainID)
	assert.Equal(t, []uint64{100}, p.added)
	assert.Equal(t, []uint64{100, 100}, p.switches, "switch, add, switch")
}

func TestChainChangedResetsAndReconnects(t *testing.T) {
	p := newFakeProvider(100, alice)
	p.known[1] = true
	c := newConnector(t, p)
	ctx := context.Background()
	c.Start(ctx)
	_, err := c.Connect(ctx)
	require.NoError(t, err)

	require.NoError(t, p.SwitchChain(ctx, 1))
	assert.Eventually(t, func() bool {
		st := c.State()
		return st.Connected && st.ChainID == 100
	}, 5*time.Second, 10*time.Millisecond)

	id, err := p.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), id, "connector moves the wallet back to the target chain")
}

func TestConnectRejected(t *testing.T) {
	p := newFakeProvider(100, alice)
	p.rejectReq = true
	c := newConnector(t, p)

	st, err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUserRejected))
	assert.False(t, st.Connected)
	assert.Equal(t, "Request rejected in wallet.", st.Err)
	assert.Equal(t, ModeIdle, st.Mode)
}

func TestConnectWithoutProvider(t *testing.T) {
	c := newConnector(t, nil)
	c.Start(context.Background())

	st, err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrProviderAbsent))
	assert.Contains(t, st.Err, "Wallet provider not found")
	assert.False(t, st.Connecting)
}

func TestConnectNoAccounts(t *testing.T) {
	p := newFakeProvider(100)
	c := newConnector(t, p)

	st, err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoAccounts))
	assert.Contains(t, st.Err, "No accounts found")
}

func TestRefreshBalance(t *testing.T) {
	p := newFakeProvider(100, alice)
	c := newConnector(t, p)
	ctx := context.Background()

	st, err := c.RefreshBalance(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Balance, "nothing to refresh while disconnected")

	_, err = c.Connect(ctx)
	require.NoError(t, err)
	p.setBalance(alice, big.NewInt(123_450_000_000_000_000))
	st, err = c.RefreshBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.1235", st.Balance)
}

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "0x1111...1111", FormatAddress(alice.Hex()))
	assert.Equal(t, "0x12", FormatAddress("0x12"))
	assert.Equal(t, "", FormatAddress(""))
}
