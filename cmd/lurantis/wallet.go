package main

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ligun0805/lurantis-go/internal/errors"
	"github.com/ligun0805/lurantis-go/internal/wallet"
)

var accountFlag string

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect the configured wallet on the target network",
	Long: `Asks the wallet from PRIVATE_KEY or KEYSTORE_PATH to expose its accounts, switches it to
the target network (adding the network when needed) and reads the balance.
A previous 'lurantis disconnect' is cleared.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openWallet(cmd.Context(), true)
		if err != nil {
			return err
		}
		var st wallet.State
		if acct := strings.TrimSpace(accountFlag); acct != "" {
			if !common.IsHexAddress(acct) {
				return fmt.Errorf("invalid account address %q", acct)
			}
			addr := common.HexToAddress(acct)
			if a.keyed != nil {
				// signing follows the selected account
				if err := a.keyed.SelectAccount(addr); err != nil {
					return err
				}
			}
			st, err = a.wallet.ConnectAccount(cmd.Context(), addr)
		} else {
			st, err = a.wallet.Connect(cmd.Context())
		}
		if err != nil {
			return err
		}
		printWallet(st, a.net.Currency.Symbol)
		if st.Connected {
			fmt.Println("Explorer :", a.net.AddressURL(st.Address))
		}
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget the connected wallet and stop automatic reconnects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openWallet(cmd.Context(), false)
		if err != nil {
			return err
		}
		st := a.wallet.Disconnect()
		if a.store == nil {
			printWarning("session store unavailable; the disconnect lasts for this run only")
		}
		printWallet(st, a.net.Currency.Symbol)
		return nil
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Revoke the wallet's authorization; the next connect asks for approval again",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openWallet(cmd.Context(), true)
		if err != nil {
			return err
		}
		if a.keyed == nil {
			return errors.ErrProviderAbsent
		}
		a.keyed.Lock()
		printWallet(a.wallet.State(), a.net.Currency.Symbol)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show wallet connection and subscription status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openWallet(ctx, true)
		if err != nil {
			return err
		}
		st := a.wallet.State()
		fmt.Println("Network  :", a.net.DisplayName, faint("("+a.net.HexChainID()+")"))
		printWallet(st, a.net.Currency.Symbol)
		if !st.Connected {
			return nil
		}
		sub := a.subscription(a.prov)
		if !sub.Configured() {
			printWarning(errors.Humanize(errors.ErrContractNotConfigured))
			return nil
		}
		printSubscription(sub.Check(ctx, st.Address))
		return nil
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Re-read the connected wallet's native balance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openWallet(cmd.Context(), true)
		if err != nil {
			return err
		}
		if !a.wallet.State().Connected {
			return errors.New("wallet not connected; run `lurantis connect`")
		}
		st, err := a.wallet.RefreshBalance(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(st.Balance, a.net.Currency.Symbol)
		return nil
	},
}

func init() {
	connectCmd.Flags().StringVar(&accountFlag, "account", "", "Connect this account instead of the first one")
	rootCmd.AddCommand(connectCmd, disconnectCmd, lockCmd, statusCmd, balanceCmd)
}
