package main

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ligun0805/lurantis-go/internal/chain"
	"github.com/ligun0805/lurantis-go/internal/subscription"
)

var netBlocksFlag uint64

var netcheckCmd = &cobra.Command{
	Use:   "netcheck",
	Short: "Show RPC health, the fee market and what subscribe() would cost",
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
		b := p.Backend()

		fmt.Printf("[net] %s, chain %d via %s\n", a.net.DisplayName, a.net.ChainID, a.net.RPC())
		if h, err := b.HeaderByNumber(ctx, nil); err == nil {
			fmt.Printf("[net] head: #%s\n", h.Number)
		} else {
			fmt.Println("[net] head error:", err)
		}

		pcts := []float64{50, 95, 99}
		fr, ok := b.(chain.FeeHistoryReader)
		if !ok {
			fmt.Println("[net] feeHistory not supported by this backend")
			return nil
		}
		stats, err := chain.FeeHistoryStats(ctx, fr, netBlocksFlag, pcts)
		if err != nil {
			fmt.Println("[net] feeHistory error:", err)
			return nil
		}
		fmt.Printf("[net] baseFee(next): %s gwei\n", chain.FormatGwei(stats.NextBaseFee))
		fmt.Printf("[net] reward stats last %d blocks:\n", stats.Blocks)
		for _, pc := range pcts {
			st := stats.Rewards[pc]
			fmt.Printf("  p%-2.0f min/avg/max: %s / %s / %s gwei\n", pc,
				chain.FormatGwei(st.Min), chain.FormatGwei(st.Avg), chain.FormatGwei(st.Max))
		}

		sub := a.subscription(p)
		if !sub.Configured() {
			return nil
		}
		price, err := sub.MonthlyPriceWei(ctx)
		if err != nil {
			fmt.Println("[net] MONTHLY_PRICE error:", err)
			return nil
		}
		fmt.Printf("[sub] monthly price: %s %s\n", chain.FormatEtherExact(price), a.net.Currency.Symbol)

		user := sessionAddress(cmd)
		if user == "" {
			fmt.Println("[sub] connect a wallet to estimate subscribe() gas")
			return nil
		}
		con, err := subscription.Bind(sub.Address(), b)
		if err != nil {
			return err
		}
		gas, err := con.EstimateSubscribe(ctx, common.HexToAddress(user), price)
		if err != nil {
			fmt.Println("[sub] estimate error:", chain.RevertReason(err))
			return nil
		}
		g := new(big.Int).SetUint64(gas)
		peak := new(big.Int).Mul(g, stats.MaxFee(2, 99))
		typical := new(big.Int).Mul(g, stats.MaxFee(1, 50))
		fmt.Printf("[sub] subscribe() ≈ %d gas, fee typical=%s peak=%s %s\n", gas,
			chain.FormatEther(typical, 6), chain.FormatEther(peak, 6), a.net.Currency.Symbol)
		return nil
	},
}

func init() {
	netcheckCmd.Flags().Uint64Var(&netBlocksFlag, "blocks", 100, "Blocks of fee history to summarise")
	rootCmd.AddCommand(netcheckCmd)
}
