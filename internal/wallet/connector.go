// Package wallet keeps the user's wallet connection: which account is exposed, on which chain,
// with what balance, and whether the user asked to stay disconnected.
package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/lurantis-go/internal/chain"
	"github.com/ligun0805/lurantis-go/internal/errors"
	"github.com/ligun0805/lurantis-go/internal/logger"
	"github.com/ligun0805/lurantis-go/internal/provider"
	"github.com/ligun0805/lurantis-go/internal/session"
)

// Persister keeps the connector mode across restarts. *session.Store satisfies it.
type Persister interface {
	Load(ctx context.Context, chainID uint64) (session.Record, bool, error)
	Save(ctx context.Context, rec session.Record) error
}

type Option func(*Connector)

func WithLogger(l *slog.Logger) Option { return func(c *Connector) { c.log = l } }

func WithPersister(p Persister) Option { return func(c *Connector) { c.store = p } }

// Connector owns the wallet state. All transitions go through reduce under mu; provider
// calls are made without holding it.
type Connector struct {
	prov   provider.Provider
	target chain.Network
	store  Persister
	log    *slog.Logger

	mu       sync.Mutex
	m        machine
	watchers map[int]func(State)
	nextW    int

	unsub  func()
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConnector builds a connector for target. p may be nil when no wallet is configured;
// every connect attempt then fails with a provider-absent error in state.
func NewConnector(p provider.Provider, target chain.Network, opts ...Option) *Connector {
	c := &Connector{
		prov:     p,
		target:   target,
		m:        machine{target: target.ChainID},
		watchers: make(map[int]func(State)),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logger.Or(c.log)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Start restores the persisted mode, subscribes to provider events and, unless the user
// disconnected last time, silently reconnects to an already authorized account.
func (c *Connector) Start(ctx context.Context) State {
	if c.store != nil {
		rec, ok, err := c.store.Load(ctx, c.target.ChainID)
		switch {
		case err != nil:
			c.log.Warn("Failed to load wallet session", "error", err)
		case ok:
			if mode, perr := ParseMode(rec.Mode); perr == nil {
				c.dispatch(restored{mode: mode})
			} else {
				c.log.Warn("Ignoring stored wallet session", "error", perr)
			}
		}
	}
	if c.prov != nil {
		c.unsub = c.prov.Subscribe(c.onEvent)
	}
	c.checkConnection(ctx)
	return c.State()
}

// Close detaches from the provider and waits for event-driven reconnects to finish.
func (c *Connector) Close() {
	if c.unsub != nil {
		c.unsub()
	}
	c.cancel()
	c.wg.Wait()
}

func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.state
}

// Watch registers fn for every applied transition.
func (c *Connector) Watch(fn func(State)) (cancel func()) {
	c.mu.Lock()
	id := c.nextW
	c.nextW++
	c.watchers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

// Connect clears a manual disconnect, asks the wallet for accounts and connects the first one.
// The returned error is also humanized into State.Err; it is nil when the attempt was
// superseded by a later Disconnect or Connect.
func (c *Connector) Connect(ctx context.Context) (State, error) {
	return c.connect(ctx, nil, false)
}

// ConnectAccount is Connect with a preferred account, which the wallet must expose.
func (c *Connector) ConnectAccount(ctx context.Context, addr common.Address) (State, error) {
	return c.connect(ctx, &addr, false)
}

// Disconnect forgets the account and blocks automatic reconnects until the next Connect.
// The provider keeps its own authorization.
func (c *Connector) Disconnect() State {
	st, _ := c.dispatch(disconnected{})
	c.log.Info("Wallet disconnected")
	return st
}

// RefreshBalance re-reads the connected account's balance.
func (c *Connector) RefreshBalance(ctx context.Context) (State, error) {
	c.mu.Lock()
	st, gen := c.m.state, c.m.gen
	c.mu.Unlock()
	if !st.Connected || c.prov == nil {
		return st, nil
	}
	bal, err := c.prov.BalanceAt(ctx, common.HexToAddress(st.Address))
	if err != nil {
		return st, fmt.Errorf("balance: %w", err)
	}
	st, _ = c.dispatch(balanceUpdated{gen: gen, balance: chain.FormatEther(bal, 4)})
	return st, nil
}

// connect runs one attempt. An automatic attempt (provider event, Start) is refused while the
// user is manually disconnected; the check and the generation bump happen under one lock.
func (c *Connector) connect(ctx context.Context, preferred *common.Address, auto bool) (State, error) {
	gen, ok := c.begin(auto)
	if !ok {
		c.log.Debug("Ignoring automatic reconnect while manually disconnected")
		return c.State(), nil
	}
	c.log.Debug("Connecting wallet", "chain_id", c.target.ChainID, "auto", auto)

	if c.prov == nil {
		return c.fail(gen, errors.ErrProviderAbsent)
	}

	accts, err := c.prov.RequestAccounts(ctx)
	if err != nil {
		if provider.CodeOf(err) == provider.CodeUserRejected {
			err = errors.WrapUserRejected(err)
		}
		return c.fail(gen, err)
	}
	if len(accts) == 0 {
		return c.fail(gen, fmt.Errorf("%w. Please approve the connection in your wallet", errors.ErrNoAccounts))
	}
	addr := accts[0]
	if preferred != nil {
		if !slices.Contains(accts, *preferred) {
			return c.fail(gen, fmt.Errorf("%w: wallet does not expose %s", errors.ErrNoAccounts, preferred.Hex()))
		}
		addr = *preferred
	}

	if c.stale(gen) {
		c.log.Debug("Connect superseded, discarding", "address", addr.Hex())
		return c.State(), nil
	}

	if err := c.ensureChain(ctx); err != nil {
		return c.fail(gen, err)
	}

	bal, err := c.prov.BalanceAt(ctx, addr)
	if err != nil {
		return c.fail(gen, fmt.Errorf("balance: %w", err))
	}

	st, applied := c.dispatch(connectSucceeded{
		gen:     gen,
		address: addr.Hex(),
		balance: chain.FormatEther(bal, 4),
		chainID: c.target.ChainID,
	})
	if applied {
		c.log.Info("Wallet connected", "address", FormatAddress(st.Address), "balance", st.Balance)
	} else {
		c.log.Debug("Connect superseded, discarding", "address", addr.Hex())
	}
	return st, nil
}

func (c *Connector) fail(gen uint64, err error) (State, error) {
	st, applied := c.dispatch(connectFailed{gen: gen, err: errors.Humanize(err)})
	if !applied {
		return st, nil
	}
	c.log.Warn("Wallet connection failed", "error", err)
	return st, err
}

// ensureChain switches to the target chain, adding it first when the wallet does not know it.
func (c *Connector) ensureChain(ctx context.Context) error {
	cur, err := c.prov.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}
	if cur == c.target.ChainID {
		return nil
	}
	c.log.Info("Switching network", "from", cur, "to", c.target.ChainID)

	err = c.prov.SwitchChain(ctx, c.target.ChainID)
	if provider.CodeOf(err) == provider.CodeUnrecognizedChain {
		c.log.Info("Adding network to wallet", "network", c.target.DisplayName)
		err = c.prov.AddChain(ctx, c.target)
	}
	if err != nil {
		if provider.CodeOf(err) == provider.CodeUserRejected {
			return errors.WrapUserRejected(err)
		}
		return errors.WrapChainMismatch(c.target.ChainID, err)
	}

	cur, err = c.prov.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}
	if cur != c.target.ChainID {
		return errors.WrapChainMismatch(c.target.ChainID, fmt.Errorf("wallet still on chain %d", cur))
	}
	return nil
}

func (c *Connector) checkConnection(ctx context.Context) {
	if c.prov == nil || c.State().Mode == ModeManuallyDisconnected {
		return
	}
	accts, err := c.prov.Accounts(ctx)
	if err != nil {
		c.log.Warn("Failed to read wallet accounts", "error", err)
		return
	}
	if len(accts) == 0 || c.State().Mode == ModeManuallyDisconnected {
		return
	}
	_, _ = c.connect(ctx, &accts[0], true)
}

func (c *Connector) onEvent(ev provider.Event) {
	switch ev.Kind {
	case provider.AccountsChanged:
		if c.State().Mode == ModeManuallyDisconnected {
			c.log.Debug("Ignoring accountsChanged while manually disconnected")
			return
		}
		if len(ev.Accounts) == 0 {
			c.dispatch(accountsEmptied{})
			c.log.Info("Wallet locked or all accounts revoked")
			return
		}
		acct := ev.Accounts[0]
		c.spawn(func(ctx context.Context) { _, _ = c.connect(ctx, &acct, true) })

	case provider.ChainChanged:
		if _, applied := c.dispatch(chainChanged{chainID: ev.ChainID}); !applied {
			return
		}
		c.log.Info("Wallet network changed, reconnecting", "chain_id", ev.ChainID)
		c.spawn(c.checkConnection)
	}
}

// spawn runs fn off the provider's goroutine so listeners never block on RPC.
func (c *Connector) spawn(fn func(ctx context.Context)) {
	if c.ctx.Err() != nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
}

// begin starts an attempt and returns the generation it belongs to. ok is false when an
// automatic attempt was refused.
func (c *Connector) begin(auto bool) (gen uint64, ok bool) {
	var ev event = connectStarted{}
	if auto {
		ev = autoConnectStarted{}
	}
	_, ok = c.dispatchThen(ev, func(m machine) { gen = m.gen })
	return gen, ok
}

func (c *Connector) stale(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.gen != gen || c.m.state.Mode == ModeManuallyDisconnected
}

func (c *Connector) dispatch(ev event) (State, bool) {
	return c.dispatchThen(ev, nil)
}

// dispatchThen runs reduce and lets peek observe the new machine under the lock.
func (c *Connector) dispatchThen(ev event, peek func(machine)) (State, bool) {
	c.mu.Lock()
	prevMode := c.m.state.Mode
	next, applied := reduce(c.m, ev)
	c.m = next
	if peek != nil {
		peek(next)
	}
	st := next.state
	var fns []func(State)
	if applied {
		for _, fn := range c.watchers {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()

	if !applied {
		return st, false
	}
	if st.Mode != prevMode {
		c.persist(st)
	}
	for _, fn := range fns {
		fn(st)
	}
	return st, true
}

func (c *Connector) persist(st State) {
	if c.store == nil {
		return
	}
	rec := session.Record{ChainID: c.target.ChainID, Mode: st.Mode.String(), Address: st.Address}
	if err := c.store.Save(context.Background(), rec); err != nil {
		c.log.Warn("Failed to persist wallet session", "error", err)
	}
}

// FormatAddress shortens 0x1234567890abcdef... to 0x1234...cdef.
func FormatAddress(addr string) string {
	if len(addr) < 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
