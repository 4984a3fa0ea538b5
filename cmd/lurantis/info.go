package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ligun0805/lurantis-go/internal/chain"
	"github.com/ligun0805/lurantis-go/internal/config"
	"github.com/ligun0805/lurantis-go/internal/errors"
)

var creditsCmd = &cobra.Command{
	Use:   "credits [address]",
	Short: "Show remaining analysis credits",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := ""
		if len(args) == 1 {
			addr = strings.TrimSpace(args[0])
			if !common.IsHexAddress(addr) {
				return fmt.Errorf("invalid address %q", addr)
			}
		} else if addr = sessionAddress(cmd); addr == "" {
			return errors.New("no address given and no connected wallet; run `lurantis connect`")
		}
		cr, err := newAnalysisClient().Credits(cmd.Context(), addr)
		if err != nil {
			return err
		}
		fmt.Println("Address :", cr.Address)
		fmt.Println("Credits :", cr.Balance)
		if cr.Tier != "" {
			fmt.Println("Tier    :", cr.Tier)
		}
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the analysis API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := newAnalysisClient().Health(cmd.Context())
		if err != nil {
			return err
		}
		status := h.Status
		if status == "healthy" {
			status = green(status)
		} else {
			status = yellow(status)
		}
		fmt.Println("API     :", settings.APIURL)
		fmt.Println("Status  :", status)
		if h.Qdrant != "" {
			fmt.Println("Qdrant  :", h.Qdrant)
		}
		for _, name := range sortedKeys(h.Collections) {
			fmt.Println("  -", name)
		}
		return nil
	},
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Show the attack pattern collections known to the API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newAnalysisClient().Patterns(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutFlag {
			return printJSON(p)
		}
		fmt.Println("Total patterns:", p.TotalPatterns)
		for _, name := range sortedKeys(p.Collections) {
			fmt.Printf("  - %s %s\n", name, faint(string(p.Collections[name])))
		}
		return nil
	},
}

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List network presets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		nets, err := chain.Networks()
		if err != nil {
			return err
		}
		for _, n := range nets {
			mark := " "
			if n.Name == settings.Network {
				mark = "*"
			}
			fmt.Printf("%s %-16s %-22s chain %-6d %s %s\n", mark, n.Name, n.DisplayName, n.ChainID, n.Currency.Symbol, faint(n.RPC()))
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := settings.TargetNetwork()
		if err != nil {
			return err
		}
		printConfig(settings, n)
		return nil
	},
}

func printConfig(st config.Settings, n chain.Network) {
	orUnset := func(s string) string {
		if s == "" {
			return faint("(unset)")
		}
		return s
	}
	fmt.Println("=== CONFIG (.env) ===")
	fmt.Println("API URL               :", st.APIURL)
	fmt.Println("SUBSCRIPTION_CONTRACT :", orUnset(st.SubscriptionContract))
	fmt.Println("Network               :", n.Name, fmt.Sprintf("(chain %d)", n.ChainID))
	fmt.Println("RPC                   :", n.RPC())
	if st.PrivateKeyHex != "" {
		fmt.Println("PRIVATE_KEY           :", config.MaskHex(st.PrivateKeyHex))
	}
	fmt.Println("KEYSTORE_PATH         :", orUnset(st.KeystorePath))
	fmt.Println("Session DB            :", st.SessionDB)
	fmt.Println("Log level             :", st.LogLevel)
	if st.OTelEnabled {
		fmt.Println("OTLP endpoint         :", st.OTelEndpoint)
	}
	fmt.Println("=====================")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	patternsCmd.Flags().BoolVar(&jsonOutFlag, "json", false, "Print the raw API response")
	rootCmd.AddCommand(creditsCmd, healthCmd, patternsCmd, networksCmd, configCmd)
}
