package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ligun0805/lurantis-go/internal/analysis"
	"github.com/ligun0805/lurantis-go/internal/errors"
	"github.com/ligun0805/lurantis-go/internal/subscription"
	"github.com/ligun0805/lurantis-go/internal/wallet"
)

var (
	bold    = color.New(color.Bold).SprintFunc()
	faint   = color.New(color.Faint).SprintFunc()
	green   = color.New(color.FgGreen).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	red     = color.New(color.FgRed, color.Bold).SprintFunc()
	warnTag = color.New(color.FgYellow, color.Bold).Sprint("Warning:")
	errTag  = color.New(color.FgRed, color.Bold).Sprint("Error:")
)

func levelColor(l analysis.Level) *color.Color {
	switch l {
	case analysis.LevelCritical:
		return color.New(color.FgRed, color.Bold)
	case analysis.LevelHigh:
		return color.New(color.FgHiRed)
	case analysis.LevelMedium:
		return color.New(color.FgYellow)
	}
	return color.New(color.FgGreen)
}

func scoreLine(score float64) string {
	l := analysis.LevelFor(score)
	return levelColor(l).Sprintf("%.1f/100 %s", score, l)
}

// printError is the single place errors reach the user.
func printError(err error) {
	fmt.Fprintln(os.Stderr, errTag, errors.Humanize(err))
	if analysis.IsCreditExhausted(err) {
		fmt.Fprintln(os.Stderr, "Run `lurantis subscribe` to buy a monthly subscription.")
	}
}

func printWarning(msg string) {
	if msg != "" {
		fmt.Fprintln(os.Stderr, warnTag, msg)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printWallet(st wallet.State, symbol string) {
	switch {
	case st.Connected:
		fmt.Println("Wallet   :", green(st.Address))
		fmt.Println("Balance  :", st.Balance, symbol)
		fmt.Println("Chain ID :", st.ChainID)
	case st.Connecting:
		fmt.Println("Wallet   :", yellow("connecting..."))
	default:
		fmt.Println("Wallet   :", faint("not connected ("+st.Mode.String()+")"))
	}
	if st.Err != "" {
		fmt.Println("Last error:", red(st.Err))
	}
}

func printSubscription(st subscription.State) {
	switch st.Phase {
	case subscription.PhaseSubscribed:
		fmt.Println("Subscription :", green("active"))
		fmt.Println("Expires      :", formatEndTime(st.EndTime))
		fmt.Println("Days left    :", st.DaysRemaining)
	case subscription.PhaseNotSubscribed:
		fmt.Println("Subscription :", yellow("none"))
		if st.EndTime > 0 {
			fmt.Println("Expired      :", formatEndTime(st.EndTime))
		}
	default:
		fmt.Println("Subscription :", faint(st.Phase.String()))
	}
	if st.Err != "" {
		fmt.Println("Last error   :", red(st.Err))
	}
}

func formatEndTime(unix int64) string {
	if unix <= 0 {
		return "-"
	}
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04 MST")
}

func printBasic(res *analysis.BasicResult) {
	fmt.Println("Threat score :", scoreLine(res.ThreatScore))
	fmt.Printf("Similarity   : %.0f%%\n", res.SimilarityScore*100)
	if len(res.DetectedPatterns) > 0 {
		fmt.Println("Patterns     :")
		for _, p := range res.DetectedPatterns {
			fmt.Println("  -", p)
		}
	}
	if res.Recommendation != "" {
		fmt.Println("Recommendation:", bold(res.Recommendation))
	}
	if res.CreditsUsed > 0 {
		fmt.Println(faint(fmt.Sprintf("credits used: %d", res.CreditsUsed)))
	}
}

func printEnhanced(res *analysis.EnhancedResult) {
	fmt.Println("Threat score :", scoreLine(res.OverallThreatScore))
	if res.ThreatLevel != "" && res.ThreatLevel != string(analysis.LevelFor(res.OverallThreatScore)) {
		fmt.Println("Server level :", res.ThreatLevel)
	}
	if len(res.DetectedAttacks) > 0 {
		fmt.Println("Attacks      :")
		for _, a := range res.DetectedAttacks {
			fmt.Printf("  - %s (%s, %.0f%% confidence)\n", a.Type, a.Severity, a.Confidence*100)
		}
	}
	if a := res.AddressAnalysis; a != nil && a.IsSpoofed {
		fmt.Println(red("Address spoofing:"), a.Recommendation)
	}
	if a := res.SimSwapAnalysis; a != nil && a.IsSimSwap {
		fmt.Println(red("SIM swap:"), a.Recommendation)
	}
	if a := res.WalletStalkingAnalysis; a != nil && a.IsStalking {
		fmt.Println(red("Wallet stalking:"), a.Recommendation)
	}
	b := res.DetailedAnalysis.ThreatBreakdown
	fmt.Println("Breakdown    :")
	fmt.Printf("  pattern similarity %5.1f\n", b.PatternSimilarity)
	fmt.Printf("  address spoofing   %5.1f\n", b.AddressSpoofing)
	fmt.Printf("  sim swapping       %5.1f\n", b.SimSwapping)
	fmt.Printf("  wallet stalking    %5.1f\n", b.WalletStalking)
	fmt.Printf("  red flags          %5.1f\n", b.RedFlags)
	if len(res.Recommendations) > 0 {
		fmt.Println("Recommendations:")
		for _, r := range res.Recommendations {
			fmt.Println("  -", bold(r))
		}
	}
}

func printWalletResult(res *analysis.WalletResult) {
	fmt.Println("Wallet       :", res.Wallet)
	fmt.Printf("Balance      : %.4f\n", res.BalanceETH)
	fmt.Println("Risk         :", scoreLine(res.RiskAnalysis.Score))
	for _, f := range res.RiskAnalysis.Factors {
		fmt.Println("  -", f)
	}
	if len(res.Anomalies) > 0 {
		fmt.Println("Anomalies    :", len(res.Anomalies))
	}
	if len(res.Relationships) > 0 {
		fmt.Println("Relationships:", len(res.Relationships))
	}
	if len(res.Insights) > 0 {
		fmt.Println("Insights     :")
		for _, s := range res.Insights {
			fmt.Println("  -", s)
		}
	}
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
