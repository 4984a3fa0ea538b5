package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/lurantis-go/internal/analysis"
	"github.com/ligun0805/lurantis-go/internal/chain"
	"github.com/ligun0805/lurantis-go/internal/config"
	"github.com/ligun0805/lurantis-go/internal/logger"
	"github.com/ligun0805/lurantis-go/internal/provider"
	"github.com/ligun0805/lurantis-go/internal/session"
	"github.com/ligun0805/lurantis-go/internal/subscription"
	"github.com/ligun0805/lurantis-go/internal/wallet"
)

// app holds what a wallet-aware command needs. Everything it opens is closed by runCleanups.
type app struct {
	net    chain.Network
	store  *session.Store
	prov   provider.Provider
	keyed  *provider.Keyed // nil without key material
	wallet *wallet.Connector
}

// openStore opens the session database. Failing to open it only costs persistence.
func openStore() *session.Store {
	st, err := session.Open(settings.SessionDB)
	if err != nil {
		logger.Logger.Warn("Session store unavailable, wallet mode will not persist", "path", settings.SessionDB, "error", err)
		return nil
	}
	onExit(func() { _ = st.Close() })
	return st
}

// storedSession reads the last wallet session for the target network without touching keys.
func storedSession(ctx context.Context) (session.Record, bool) {
	n, err := settings.TargetNetwork()
	if err != nil {
		return session.Record{}, false
	}
	st := openStore()
	if st == nil {
		return session.Record{}, false
	}
	rec, ok, err := st.Load(ctx, n.ChainID)
	if err != nil {
		logger.Logger.Warn("Failed to read wallet session", "error", err)
		return session.Record{}, false
	}
	return rec, ok
}

// loadKeys reads PRIVATE_KEY, or decrypts KEYSTORE_PATH after asking for its password.
// No key at all is not an error: the wallet is then absent.
func loadKeys(st config.Settings) ([]*ecdsa.PrivateKey, error) {
	if st.PrivateKeyHex != "" {
		return provider.ParseHexKeys(st.PrivateKeyHex)
	}
	if st.KeystorePath == "" {
		return nil, nil
	}
	pw, err := readPassword("Keystore password for " + st.KeystorePath + ": ")
	if err != nil {
		return nil, err
	}
	key, err := provider.LoadKeystore(st.KeystorePath, pw)
	if err != nil {
		return nil, err
	}
	return []*ecdsa.PrivateKey{key}, nil
}

// openWallet builds the provider and starts the connector. With keys=false no key material is
// touched and the connector runs without a provider; only Disconnect is meaningful then.
func openWallet(ctx context.Context, keys bool) (*app, error) {
	n, err := settings.TargetNetwork()
	if err != nil {
		return nil, err
	}
	a := &app{net: n, store: openStore()}

	var rec session.Record
	if a.store != nil {
		if r, ok, err := a.store.Load(ctx, n.ChainID); err == nil && ok {
			rec = r
		}
	}

	if keys {
		privs, err := loadKeys(settings)
		if err != nil {
			return nil, fmt.Errorf("wallet keys: %w", err)
		}
		if len(privs) > 0 {
			opts := []provider.KeyedOption{provider.WithApprover(approveAccounts)}
			if nets, err := chain.Networks(); err == nil {
				opts = append(opts, provider.WithNetworks(nets...))
			}
			if rec.Mode == wallet.ModeConnected.String() {
				opts = append(opts, provider.WithAuthorized())
			}
			k, err := provider.NewKeyed(ctx, n, privs, opts...)
			if err != nil {
				return nil, err
			}
			onExit(k.Close)
			// the account chosen with --account stays selected across runs
			if rec.Address != "" && common.IsHexAddress(rec.Address) {
				_ = k.SelectAccount(common.HexToAddress(rec.Address))
			}
			a.prov, a.keyed = k, k
		}
	}

	var copts []wallet.Option
	if a.store != nil {
		copts = append(copts, wallet.WithPersister(a.store))
	}
	a.wallet = wallet.NewConnector(a.prov, n, copts...)
	onExit(a.wallet.Close)
	a.wallet.Start(ctx)
	return a, nil
}

// readProvider returns the wallet provider when there is one, else a read-only connection.
func (a *app) readProvider(ctx context.Context) (provider.Provider, error) {
	if a.prov != nil {
		return a.prov, nil
	}
	r, err := provider.DialReadOnly(ctx, a.net, nil)
	if err != nil {
		return nil, err
	}
	onExit(r.Close)
	a.prov = r
	return r, nil
}

func (a *app) subscription(p provider.Provider) *subscription.Client {
	return subscription.NewClient(settings.SubscriptionContract, p,
		subscription.WithCurrencySymbol(a.net.Currency.Symbol))
}

func newAnalysisClient() *analysis.Client {
	return analysis.NewClient(settings.APIURL)
}
