package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ligun0805/lurantis-go/internal/analysis"
	"github.com/ligun0805/lurantis-go/internal/errors"
	"github.com/ligun0805/lurantis-go/internal/wallet"
)

var (
	enhancedFlag   bool
	knownFlag      []string
	userFlag       string
	fileFlag       string
	jsonOutFlag    bool
	noTxFlag       bool
	contextKVFlags map[string]string
)

// sessionAddress is the last connected address, read from the session store without keys.
func sessionAddress(cmd *cobra.Command) string {
	rec, ok := storedSession(cmd.Context())
	if !ok || rec.Mode != wallet.ModeConnected.String() || !common.IsHexAddress(rec.Address) {
		return ""
	}
	return common.HexToAddress(rec.Address).Hex()
}

func userAddress(cmd *cobra.Command) (string, error) {
	if u := strings.TrimSpace(userFlag); u != "" {
		if !common.IsHexAddress(u) {
			return "", fmt.Errorf("invalid --user address %q", u)
		}
		return u, nil
	}
	return sessionAddress(cmd), nil
}

// messageContent joins args, or reads --file ("-" is stdin).
func messageContent(args []string) (string, error) {
	if fileFlag == "" {
		return joinNonEmpty(args...), nil
	}
	if len(args) > 0 {
		return "", errors.New("pass the message either as arguments or with --file, not both")
	}
	var r io.Reader = os.Stdin
	if fileFlag != "-" {
		f, err := os.Open(fileFlag)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [message...]",
	Short: "Score a message for scam patterns",
	Long: `Sends the message to the Lurantis API and prints the threat score and matched patterns.
--enhanced additionally checks address spoofing against --known addresses, SIM swap and
wallet stalking signals. The connected wallet address is sent as user_address when known.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := messageContent(args)
		if err != nil {
			return err
		}
		if content == "" {
			return errors.New("nothing to analyze: pass a message or --file")
		}
		user, err := userAddress(cmd)
		if err != nil {
			return err
		}

		endpoint := analysis.EndpointAnalyze
		var body any = analysis.Request{Content: content, UserAddress: user}
		if enhancedFlag || len(knownFlag) > 0 || len(contextKVFlags) > 0 {
			endpoint = analysis.EndpointAnalyzeEnhanced
			req := analysis.EnhancedRequest{Content: content, UserAddress: user, KnownAddresses: knownFlag}
			if len(contextKVFlags) > 0 {
				req.Context = make(map[string]any, len(contextKVFlags))
				for k, v := range contextKVFlags {
					req.Context[k] = v
				}
			}
			body = req
		}

		res, err := newAnalysisClient().Submit(cmd.Context(), endpoint, body)
		if err != nil {
			return err
		}
		if jsonOutFlag {
			_, err := os.Stdout.Write(append(res.Raw, '\n'))
			return err
		}
		switch res.Kind {
		case analysis.KindEnhanced:
			printEnhanced(res.Enhanced)
		default:
			printBasic(res.Basic)
		}
		return nil
	},
}

var analyzeWalletCmd = &cobra.Command{
	Use:   "analyze-wallet <address>",
	Short: "Behaviour and risk report for a wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := userAddress(cmd)
		if err != nil {
			return err
		}
		req := analysis.WalletRequest{WalletAddress: args[0], UserAddress: user}
		if noTxFlag {
			include := false
			req.IncludeTransactions = &include
		}
		res, err := newAnalysisClient().AnalyzeWallet(cmd.Context(), req)
		if err != nil {
			return err
		}
		if jsonOutFlag {
			return printJSON(res)
		}
		printWalletResult(res)
		return nil
	},
}

func init() {
	f := analyzeCmd.Flags()
	f.BoolVar(&enhancedFlag, "enhanced", false, "Use the enhanced analysis")
	f.StringSliceVar(&knownFlag, "known", nil, "Addresses you trust, checked for look-alikes (implies --enhanced)")
	f.StringToStringVar(&contextKVFlags, "context", nil, "Extra context key=value pairs (implies --enhanced)")
	f.StringVarP(&fileFlag, "file", "f", "", "Read the message from a file, - for stdin")

	for _, c := range []*cobra.Command{analyzeCmd, analyzeWalletCmd} {
		c.Flags().StringVar(&userFlag, "user", "", "Send this user_address instead of the connected wallet")
		c.Flags().BoolVar(&jsonOutFlag, "json", false, "Print the raw API response")
	}
	analyzeWalletCmd.Flags().BoolVar(&noTxFlag, "no-transactions", false, "Skip transaction history")

	rootCmd.AddCommand(analyzeCmd, analyzeWalletCmd)
}
