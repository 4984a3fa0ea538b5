package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/ligun0805/lurantis-go/internal/chain"
	"github.com/ligun0805/lurantis-go/internal/errors"
)

// Settings keeps all configuration options.
// Key names follow the web front end's env file so one .env serves both.
type Settings struct {
	APIURL               string
	SubscriptionContract string
	Network              string
	RPCURL               string
	PrivateKeyHex        string
	KeystorePath         string
	SessionDB            string
	LogLevel             string
	LogJSON              bool
	OTelEnabled          bool
	OTelEndpoint         string
}

// LoadDotenv reads .env and then lets .env.local override it. Missing files are fine.
func LoadDotenv() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")
}

// Load reads settings from environment supporting both UPPER_CASE and lower_case keys.
func Load() Settings {
	get := func(keys []string, def string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				return v
			}
			if v := strings.TrimSpace(os.Getenv(strings.ToLower(k))); v != "" {
				return v
			}
		}
		return def
	}
	getBool := func(keys []string, def bool) bool {
		s := strings.ToLower(get(keys, ""))
		if s == "" {
			return def
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return s == "yes" || s == "on"
		}
		return b
	}

	st := Settings{}
	st.APIURL = get([]string{"LURANTIS_API_URL", "NEXT_PUBLIC_API_URL", "API_URL"}, "http://localhost:8000")
	st.SubscriptionContract = get([]string{"SUBSCRIPTION_CONTRACT", "NEXT_PUBLIC_SUBSCRIPTION_CONTRACT"}, "")
	st.Network = get([]string{"LURANTIS_NETWORK"}, chain.DefaultNetwork)
	st.RPCURL = get([]string{"GNOSIS_RPC", "NEXT_PUBLIC_GNOSIS_RPC", "RPC_URL"}, "")
	st.PrivateKeyHex = get([]string{"PRIVATE_KEY"}, "")
	st.KeystorePath = get([]string{"KEYSTORE_PATH"}, "")
	st.SessionDB = get([]string{"LURANTIS_SESSION_DB"}, defaultSessionDB())
	st.LogLevel = get([]string{"LURANTIS_LOG_LEVEL"}, "warn")
	st.LogJSON = getBool([]string{"LURANTIS_LOG_JSON"}, false)
	st.OTelEnabled = getBool([]string{"LURANTIS_OTEL_ENABLED"}, false)
	st.OTelEndpoint = get([]string{"LURANTIS_OTEL_ENDPOINT"}, "localhost:4318")
	return st
}

func defaultSessionDB() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".lurantis", "session.db")
	}
	return filepath.Join(home, ".lurantis", "session.db")
}

// Validate checks the values that would otherwise fail late, mid-transaction.
// An empty subscription contract is allowed: purchase reports it when attempted.
func (s Settings) Validate() error {
	u, err := url.Parse(s.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.WrapConfigError("LURANTIS_API_URL must be an absolute URL, got "+strconv.Quote(s.APIURL), err)
	}
	if s.SubscriptionContract != "" && !common.IsHexAddress(s.SubscriptionContract) {
		return errors.WrapConfigError("SUBSCRIPTION_CONTRACT is not a hex address: "+s.SubscriptionContract, nil)
	}
	if s.RPCURL != "" {
		if u, err := url.Parse(s.RPCURL); err != nil || u.Scheme == "" {
			return errors.WrapConfigError("GNOSIS_RPC must be an absolute URL, got "+strconv.Quote(s.RPCURL), err)
		}
	}
	if _, err := chain.Lookup(s.Network); err != nil {
		return errors.WrapConfigError("LURANTIS_NETWORK", err)
	}
	return nil
}

// TargetNetwork resolves the configured preset with the RPC override applied.
func (s Settings) TargetNetwork() (chain.Network, error) {
	n, err := chain.Lookup(s.Network)
	if err != nil {
		return chain.Network{}, err
	}
	return n.WithRPC(s.RPCURL), nil
}

// MaskHex hides the middle of a secret for display.
func MaskHex(h string) string {
	h = strings.TrimSpace(h)
	if len(h) <= 10 {
		return "***"
	}
	return h[:6] + "…" + h[len(h)-4:]
}
