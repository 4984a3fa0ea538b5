package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ligun0805/lurantis-go/internal/config"
	"github.com/ligun0805/lurantis-go/internal/logger"
	"github.com/ligun0805/lurantis-go/internal/telemetry"
)

// Global flag variables
var (
	networkFlag  string
	rpcFlag      string
	apiURLFlag   string
	contractFlag string
	logLevelFlag string
	jsonLogsFlag bool
	assumeYes    bool
)

// settings is filled by the root pre-run; every command reads it.
var settings config.Settings

var cleanups []func()

func onExit(fn func()) { cleanups = append(cleanups, fn) }

// runCleanups runs in reverse registration order.
func runCleanups() {
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	cleanups = nil
}

var rootCmd = &cobra.Command{
	Use:   "lurantis",
	Short: "Scam detection and subscription client for the Lurantis API",
	Long: `Lurantis checks messages and wallets for crypto scam patterns and manages the
on-chain monthly subscription that pays for analyses.

Examples:
  lurantis connect                         Connect the wallet from PRIVATE_KEY or KEYSTORE_PATH
  lurantis analyze "Send your seed phrase"  Score a message
  lurantis analyze --enhanced --known 0xabc "pay to 0xabd..."
  lurantis analyze-wallet 0x1234...         Wallet behaviour report
  lurantis subscription status             Read hasActiveSubscription for the connected wallet
  lurantis subscribe                        Pay MONTHLY_PRICE and subscribe

Configuration comes from .env / .env.local and the environment; flags override it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		settings = config.Load()
		applyFlags(&settings)
		if err := settings.Validate(); err != nil {
			return err
		}

		logger.SetOutput(os.Stderr, settings.LogJSON)
		logger.SetLevel(logger.ParseLevel(settings.LogLevel))

		shutdown, err := telemetry.Init(cmd.Context(), telemetry.Config{
			Enabled:     settings.OTelEnabled,
			ExporterURL: settings.OTelEndpoint,
			ServiceName: "lurantis-cli",
			Version:     Version,
		})
		if err != nil {
			logger.Logger.Warn("Tracing disabled", "error", err)
			return nil
		}
		onExit(shutdown)
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func applyFlags(st *config.Settings) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&st.Network, networkFlag)
	set(&st.RPCURL, rpcFlag)
	set(&st.APIURL, apiURLFlag)
	set(&st.SubscriptionContract, contractFlag)
	set(&st.LogLevel, logLevelFlag)
	if jsonLogsFlag {
		st.LogJSON = true
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&networkFlag, "network", "", "Network preset (gnosis-mainnet, gnosis-testnet, ...)")
	pf.StringVar(&rpcFlag, "rpc", "", "RPC URL override for the selected network")
	pf.StringVar(&apiURLFlag, "api-url", "", "Lurantis analysis API base URL")
	pf.StringVar(&contractFlag, "contract", "", "Subscription contract address")
	pf.StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&jsonLogsFlag, "json-logs", false, "Write logs as JSON to stderr")
	pf.BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to every confirmation")

	rootCmd.Version = Version
}
