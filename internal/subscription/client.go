// Package subscription reads and buys the monthly subscription on the Subscription contract.
// Subscribed status is only ever taken from a fresh hasActiveSubscription read.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ligun0805/lurantis-go/internal/chain"
	"github.com/ligun0805/lurantis-go/internal/errors"
	"github.com/ligun0805/lurantis-go/internal/logger"
	"github.com/ligun0805/lurantis-go/internal/provider"
	"github.com/ligun0805/lurantis-go/internal/telemetry"
)

// FallbackMonthlyPrice is shown when MONTHLY_PRICE cannot be read.
const FallbackMonthlyPrice = "8.99"

type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseLoading
	PhaseSubscribed
	PhaseNotSubscribed
	// PhasePurchasing overlays PhaseNotSubscribed while a subscribe() transaction is in flight.
	PhasePurchasing
)

func (p Phase) String() string {
	switch p {
	case PhaseUnknown:
		return "unknown"
	case PhaseLoading:
		return "loading"
	case PhaseSubscribed:
		return "subscribed"
	case PhaseNotSubscribed:
		return "not_subscribed"
	case PhasePurchasing:
		return "purchasing"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

type State struct {
	Phase         Phase
	User          string
	Subscribed    bool
	EndTime       int64 // unix seconds, 0 when never subscribed
	DaysRemaining uint64
	Loading       bool
	Purchasing    bool
	Err           string
	Warning       string
	TxHash        string
}

type Option func(*Client)

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// WithContractFactory replaces the go-ethereum binding, mostly for tests.
func WithContractFactory(f ContractFactory) Option { return func(c *Client) { c.factory = f } }

func WithTracer(t oteltrace.Tracer) Option { return func(c *Client) { c.tracer = t } }

// WithCurrencySymbol sets the symbol used in warnings (default xDAI).
func WithCurrencySymbol(sym string) Option { return func(c *Client) { c.symbol = sym } }

type Client struct {
	addr    common.Address
	prov    provider.Provider
	factory ContractFactory
	tracer  oteltrace.Tracer
	log     *slog.Logger
	symbol  string

	mu       sync.Mutex
	st       State
	known    bool // at least one successful read for st.User
	checkGen uint64
	watchers map[int]func(State)
	nextW    int
}

// NewClient builds a client for the contract at contractAddr. An empty or invalid address
// leaves the client unconfigured: Check is a no-op and Purchase fails before any network call.
func NewClient(contractAddr string, p provider.Provider, opts ...Option) *Client {
	c := &Client{
		prov:    p,
		factory: Bind,
		symbol:  "xDAI",
	}
	if a := strings.TrimSpace(contractAddr); common.IsHexAddress(a) {
		c.addr = common.HexToAddress(a)
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logger.Or(c.log)
	if c.tracer == nil {
		c.tracer = telemetry.GetTracer()
	}
	return c
}

func (c *Client) Configured() bool { return c.addr != (common.Address{}) }

func (c *Client) Address() common.Address { return c.addr }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

func (c *Client) contract() (Contract, error) {
	return c.factory(c.addr, c.prov.Backend())
}

// Check reads active flag, end time and days remaining for user concurrently and stores them
// in one update. A failed read keeps the previous values and records the error.
func (c *Client) Check(ctx context.Context, user string) State {
	user = strings.TrimSpace(user)
	if !c.Configured() || c.prov == nil || user == "" {
		return c.update(func(st *State) { st.Loading = false })
	}
	if !common.IsHexAddress(user) {
		return c.update(func(st *State) {
			st.Loading = false
			st.Err = fmt.Sprintf("Invalid address: %s", user)
		})
	}
	who := common.HexToAddress(user)

	var gen uint64
	c.update(func(st *State) {
		c.checkGen++
		gen = c.checkGen
		if st.User != who.Hex() {
			c.known = false
		}
		st.Loading = true
		if !st.Purchasing {
			st.Phase = PhaseLoading
		}
	})

	ctx, span := c.tracer.Start(ctx, "subscription_check")
	span.SetAttributes(attribute.String("user", who.Hex()))
	defer span.End()

	var (
		active  bool
		endTime *big.Int
		days    *big.Int
	)
	err := func() error {
		con, err := c.contract()
		if err != nil {
			return err
		}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			active, err = con.HasActiveSubscription(gctx, who)
			return err
		})
		g.Go(func() (err error) {
			endTime, err = con.SubscriptionEndTime(gctx, who)
			return err
		})
		g.Go(func() (err error) {
			days, err = con.DaysRemaining(gctx, who)
			return err
		})
		return g.Wait()
	}()

	return c.apply(func(st *State) bool {
		if gen != c.checkGen {
			// a newer Check owns the state now
			return false
		}
		st.Loading = false
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "check failed")
			c.log.Warn("Error checking subscription", "user", who.Hex(), "error", err)
			st.Err = errors.Humanize(err)
			if !st.Purchasing {
				st.Phase = c.settledPhase()
			}
			return true
		}

		c.known = true
		st.User = who.Hex()
		st.Subscribed = active
		st.EndTime = clampInt64(endTime)
		st.DaysRemaining = clampUint64(days)
		st.Err = ""
		if !st.Purchasing {
			st.Phase = c.settledPhase()
		}
		span.SetAttributes(attribute.Bool("subscribed", active))
		c.log.Debug("Subscription checked", "user", who.Hex(), "active", active, "days_remaining", st.DaysRemaining)
		return true
	})
}

// settledPhase must be called with mu held.
func (c *Client) settledPhase() Phase {
	switch {
	case !c.known:
		return PhaseUnknown
	case c.st.Subscribed:
		return PhaseSubscribed
	default:
		return PhaseNotSubscribed
	}
}

func (c *Client) update(fn func(st *State)) State {
	return c.apply(func(st *State) bool { fn(st); return true })
}

// apply runs fn under mu and notifies watchers, after unlocking, when fn reports a change.
func (c *Client) apply(fn func(st *State) bool) State {
	c.mu.Lock()
	changed := fn(&c.st)
	st := c.st
	var fns []func(State)
	if changed {
		for _, w := range c.watchers {
			fns = append(fns, w)
		}
	}
	c.mu.Unlock()
	for _, w := range fns {
		w(st)
	}
	return st
}

// Watch registers fn for purchase progress: the low balance warning, the phase change and
// the transaction hash as soon as it is known.
func (c *Client) Watch(fn func(State)) (cancel func()) {
	c.mu.Lock()
	if c.watchers == nil {
		c.watchers = make(map[int]func(State))
	}
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

// Purchase pays MONTHLY_PRICE into subscribe() from the provider's selected account and
// refreshes state from the contract once the transaction is mined. Every failure is also
// humanized into State.Err.
func (c *Client) Purchase(ctx context.Context) (common.Hash, error) {
	if !c.Configured() {
		return common.Hash{}, c.reject(errors.ErrContractNotConfigured)
	}
	if c.prov == nil {
		return common.Hash{}, c.reject(errors.ErrProviderAbsent)
	}

	busy := false
	c.apply(func(st *State) bool {
		if st.Purchasing {
			busy = true
			return false
		}
		st.Purchasing = true
		st.Err = ""
		st.Warning = ""
		st.TxHash = ""
		return true
	})
	if busy {
		return common.Hash{}, errors.ErrPurchaseInProgress
	}

	ctx, span := c.tracer.Start(ctx, "subscription_purchase")
	span.SetAttributes(attribute.String("contract", c.addr.Hex()))
	defer span.End()

	hash, err := c.purchase(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "purchase failed")
		c.log.Error("Error purchasing subscription", "error", err)
		c.update(func(st *State) {
			st.Purchasing = false
			st.Phase = c.settledPhase()
			st.Err = errors.Humanize(err)
		})
		return hash, err
	}
	span.SetAttributes(attribute.String("transaction.hash", hash.Hex()))
	return hash, nil
}

func (c *Client) purchase(ctx context.Context) (common.Hash, error) {
	opts, err := c.prov.Signer(ctx)
	if err != nil {
		if provider.CodeOf(err) == provider.CodeUserRejected {
			return common.Hash{}, errors.WrapUserRejected(err)
		}
		return common.Hash{}, fmt.Errorf("signer: %w", err)
	}
	user := opts.From
	c.log.Info("Purchasing subscription", "contract", c.addr.Hex(), "user", user.Hex())

	// Only buy on a fresh "not subscribed" read for this account.
	st := c.State()
	if st.Phase != PhaseNotSubscribed || st.User != user.Hex() {
		st = c.Check(ctx, user.Hex())
	}
	if st.User == user.Hex() && st.Subscribed {
		return common.Hash{}, errors.ErrAlreadySubscribed
	}
	c.update(func(st *State) { st.Phase = PhasePurchasing })

	balance, err := c.prov.BalanceAt(ctx, user)
	if err != nil {
		return common.Hash{}, fmt.Errorf("balance: %w", err)
	}
	c.log.Debug("User balance", "balance", chain.FormatEtherExact(balance), "symbol", c.symbol)

	code, err := c.prov.CodeAt(ctx, c.addr)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get code: %w", err)
	}
	if len(code) == 0 {
		return common.Hash{}, errors.WrapContractNotDeployed(c.addr.Hex())
	}

	con, err := c.contract()
	if err != nil {
		return common.Hash{}, err
	}
	price, err := con.MonthlyPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("monthly price: %w", err)
	}
	c.log.Debug("Monthly price", "price", chain.FormatEtherExact(price), "symbol", c.symbol)

	if balance.Cmp(price) < 0 {
		warning := fmt.Sprintf("Low balance: need %s %s, but you have %s %s. Transaction may fail.",
			chain.FormatEtherExact(price), c.symbol, chain.FormatEtherExact(balance), c.symbol)
		c.log.Warn(warning)
		c.update(func(st *State) { st.Warning = warning })
	}

	gas, err := con.EstimateSubscribe(ctx, user, price)
	if err != nil {
		c.log.Error("Gas estimation failed", "error", err)
		return common.Hash{}, errors.WrapGasEstimation(chain.RevertReason(err))
	}
	c.log.Debug("Gas estimate", "gas", gas)

	opts.Context = ctx
	opts.Value = price
	opts.GasLimit = gas
	tx, err := con.Subscribe(opts)
	if err != nil {
		if provider.CodeOf(err) == provider.CodeUserRejected {
			return common.Hash{}, errors.WrapUserRejected(err)
		}
		return common.Hash{}, fmt.Errorf("send subscribe: %w", err)
	}
	hash := tx.Hash()
	c.update(func(st *State) { st.TxHash = hash.Hex() })
	c.log.Info("Transaction sent", "hash", hash.Hex())

	receipt, err := c.prov.WaitMined(ctx, tx)
	if err != nil {
		return hash, errors.WrapTransactionFailed(hash.Hex(), err)
	}
	if receipt.Status == 0 {
		return hash, errors.WrapTransactionFailed(hash.Hex(), nil)
	}
	c.log.Info("Transaction confirmed", "hash", hash.Hex(), "block", receipt.BlockNumber)

	c.update(func(st *State) {
		st.Purchasing = false
		st.Phase = PhaseLoading
	})
	c.Check(ctx, user.Hex())
	return hash, nil
}

// reject records a precondition failure without touching anything else.
func (c *Client) reject(err error) error {
	c.log.Error("Cannot purchase subscription", "error", err)
	c.update(func(st *State) {
		st.Purchasing = false
		st.Err = errors.Humanize(err)
	})
	return err
}

// MonthlyPrice returns MONTHLY_PRICE in ether units, or FallbackMonthlyPrice when it cannot be read.
func (c *Client) MonthlyPrice(ctx context.Context) (string, error) {
	if !c.Configured() {
		return FallbackMonthlyPrice, errors.ErrContractNotConfigured
	}
	if c.prov == nil {
		return FallbackMonthlyPrice, errors.ErrProviderAbsent
	}
	con, err := c.contract()
	if err != nil {
		return FallbackMonthlyPrice, err
	}
	price, err := con.MonthlyPrice(ctx)
	if err != nil {
		c.log.Warn("Error getting price", "error", err)
		return FallbackMonthlyPrice, fmt.Errorf("monthly price: %w", err)
	}
	return chain.FormatEtherExact(price), nil
}

// MonthlyPriceWei returns MONTHLY_PRICE without a fallback.
func (c *Client) MonthlyPriceWei(ctx context.Context) (*big.Int, error) {
	if !c.Configured() {
		return nil, errors.ErrContractNotConfigured
	}
	if c.prov == nil {
		return nil, errors.ErrProviderAbsent
	}
	con, err := c.contract()
	if err != nil {
		return nil, err
	}
	return con.MonthlyPrice(ctx)
}

func clampUint64(v *big.Int) uint64 {
	switch {
	case v == nil || v.Sign() <= 0:
		return 0
	case !v.IsUint64():
		return math.MaxUint64
	}
	return v.Uint64()
}

func clampInt64(v *big.Int) int64 {
	switch {
	case v == nil || v.Sign() <= 0:
		return 0
	case !v.IsInt64():
		return math.MaxInt64
	}
	return v.Int64()
}
