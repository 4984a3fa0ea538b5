package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ligun0805/lurantis-go/internal/chain"
	"github.com/ligun0805/lurantis-go/internal/errors"
	"github.com/ligun0805/lurantis-go/internal/paylink"
	"github.com/ligun0805/lurantis-go/internal/subscription"
)

var (
	subAddressFlag string
	qrFlag         bool
	qrPNGFlag      string
	maxPriceFlag   string
)

var subscriptionCmd = &cobra.Command{
	Use:     "subscription",
	Aliases: []string{"sub"},
	Short:   "Read the on-chain subscription",
}

var subscriptionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether an address has an active subscription",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		user := strings.TrimSpace(subAddressFlag)
		if user != "" && !common.IsHexAddress(user) {
			return fmt.Errorf("invalid address %q", user)
		}

		a, err := openWallet(ctx, user == "")
		if err != nil {
			return err
		}
		if user == "" {
			st := a.wallet.State()
			if !st.Connected {
				return errors.New("wallet not connected; run `lurantis connect` or pass --address")
			}
			user = st.Address
		}
		p, err := a.readProvider(ctx)
		if err != nil {
			return err
		}
		sub := a.subscription(p)
		if !sub.Configured() {
			return errors.ErrContractNotConfigured
		}
		fmt.Println("Address      :", user)
		printSubscription(sub.Check(ctx, user))
		return nil
	},
}

var subscriptionPriceCmd = &cobra.Command{
	Use:   "price",
	Short: "Show the monthly subscription price",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openWallet(ctx, false)
		if err != nil {
			return err
		}
		p, err := a.readProvider(ctx)
		if err != nil {
			return err
		}
		price, err := a.subscription(p).MonthlyPrice(ctx)
		if err != nil {
			printWarning("could not read MONTHLY_PRICE, showing the default: " + errors.Humanize(err))
		}
		fmt.Println(price, a.net.Currency.Symbol, "/ month")
		return nil
	},
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Buy one month of subscription from the connected wallet",
	Long: `Reads MONTHLY_PRICE, checks the wallet balance and the contract, estimates gas and
sends subscribe() with exactly the monthly price attached, then waits for the receipt.

With --qr (or --qr-png) nothing is signed locally: an EIP-681 payment request is shown
for a mobile wallet to scan instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if qrFlag || qrPNGFlag != "" {
			return runSubscribeQR(cmd)
		}
		ctx := cmd.Context()
		a, err := openWallet(ctx, true)
		if err != nil {
			return err
		}
		sub := a.subscription(a.prov)
		if !sub.Configured() {
			return errors.ErrContractNotConfigured
		}

		st := a.wallet.State()
		if !st.Connected {
			if st, err = a.wallet.Connect(ctx); err != nil {
				return err
			}
			if !st.Connected {
				return errors.New("wallet connection was interrupted")
			}
		}
		printWallet(st, a.net.Currency.Symbol)

		cur := sub.Check(ctx, st.Address)
		if cur.Phase == subscription.PhaseSubscribed {
			printSubscription(cur)
			return errors.ErrAlreadySubscribed
		}

		price, err := sub.MonthlyPrice(ctx)
		if err != nil {
			return fmt.Errorf("read monthly price: %w", err)
		}
		if err := checkMaxPrice(ctx, sub); err != nil {
			return err
		}
		ok, err := confirm(fmt.Sprintf("Pay %s %s from %s for one month?", price, a.net.Currency.Symbol, st.Address))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Cancelled.")
			return nil
		}

		stop := sub.Watch(purchaseProgress(os.Stdout, os.Stderr, a.net))
		hash, err := sub.Purchase(ctx)
		stop()
		if err != nil {
			return err
		}
		fmt.Println(green("Subscribed."), faint(hash.Hex()))
		printSubscription(sub.State())
		if _, err := a.wallet.RefreshBalance(ctx); err == nil {
			fmt.Println("Balance  :", a.wallet.State().Balance, a.net.Currency.Symbol)
		}
		return nil
	},
}

// purchaseProgress prints each purchase step once: a new warning, then the sent transaction.
func purchaseProgress(out, errOut io.Writer, n chain.Network) func(subscription.State) {
	var warned, sent string
	return func(s subscription.State) {
		if s.Warning != "" && s.Warning != warned {
			warned = s.Warning
			fmt.Fprintln(errOut, warnTag, s.Warning)
		}
		if s.TxHash != "" && s.Purchasing && s.TxHash != sent {
			sent = s.TxHash
			fmt.Fprintln(out, "Sent     :", s.TxHash)
			fmt.Fprintln(out, "Explorer :", n.TxURL(s.TxHash))
			fmt.Fprintln(out, "Waiting for confirmation...")
		}
	}
}

// checkMaxPrice refuses to pay when MONTHLY_PRICE is above --max-price.
func checkMaxPrice(ctx context.Context, sub *subscription.Client) error {
	if strings.TrimSpace(maxPriceFlag) == "" {
		return nil
	}
	limit, err := chain.ParseEther(maxPriceFlag)
	if err != nil {
		return fmt.Errorf("--max-price: %w", err)
	}
	wei, err := sub.MonthlyPriceWei(ctx)
	if err != nil {
		return fmt.Errorf("read monthly price: %w", err)
	}
	return priceWithin(wei, limit)
}

func priceWithin(price, limit *big.Int) error {
	if price.Cmp(limit) > 0 {
		return fmt.Errorf("monthly price %s is above --max-price %s", chain.FormatEtherExact(price), chain.FormatEtherExact(limit))
	}
	return nil
}

func runSubscribeQR(cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := openWallet(ctx, false)
	if err != nil {
		return err
	}
	p, err := a.readProvider(ctx)
	if err != nil {
		return err
	}
	sub := a.subscription(p)
	if !sub.Configured() {
		return errors.ErrContractNotConfigured
	}
	wei, err := sub.MonthlyPriceWei(ctx)
	if err != nil {
		return fmt.Errorf("read monthly price: %w", err)
	}

	uri := paylink.SubscribeURI(sub.Address(), a.net.ChainID, wei)
	if qrPNGFlag != "" {
		if err := paylink.WritePNG(uri, qrPNGFlag, 512); err != nil {
			return err
		}
		fmt.Println("QR code written to", qrPNGFlag)
	}
	if qrFlag {
		qr, err := paylink.QR(uri)
		if err != nil {
			return err
		}
		fmt.Print(qr)
	}
	fmt.Println("Pay", chain.FormatEtherExact(wei), a.net.Currency.Symbol, "on", a.net.DisplayName)
	fmt.Println(uri)
	return nil
}

func init() {
	subscriptionStatusCmd.Flags().StringVar(&subAddressFlag, "address", "", "Check this address instead of the connected wallet")
	subscriptionCmd.AddCommand(subscriptionStatusCmd, subscriptionPriceCmd)

	subscribeCmd.Flags().BoolVar(&qrFlag, "qr", false, "Show a payment QR code instead of signing locally")
	subscribeCmd.Flags().StringVar(&qrPNGFlag, "qr-png", "", "Write the payment QR code to this PNG file")
	subscribeCmd.Flags().StringVar(&maxPriceFlag, "max-price", "", "Refuse to pay more than this amount (e.g. 9.5)")
	rootCmd.AddCommand(subscriptionCmd, subscribeCmd)
}
