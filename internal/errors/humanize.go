package errors

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Humanize turns any error from the wallet, contract or API layer into the single line
// kept in client state and printed by the CLI.
func Humanize(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case Is(err, ErrContractNotConfigured):
		return "Subscription contract not configured. Please set SUBSCRIPTION_CONTRACT in your .env file."
	case Is(err, ErrProviderAbsent):
		return "Wallet provider not found. Set PRIVATE_KEY or KEYSTORE_PATH to connect a wallet."
	case Is(err, ErrUserRejected):
		return "Request rejected in wallet."
	case Is(err, ErrGasEstimation), Is(err, ErrContractNotDeployed), Is(err, ErrChainMismatch):
		return capitalize(err.Error())
	}

	s := err.Error()
	ls := strings.ToLower(s)
	switch {
	case strings.Contains(ls, "insufficient funds"):
		return "Insufficient balance to pay for this transaction."
	case strings.Contains(ls, "nonce too low"), strings.Contains(ls, "replacement transaction underpriced"):
		return "A previous transaction from this account is still pending."
	case strings.Contains(ls, "invalid character '<'"):
		return "Non-JSON/HTML response from server (proxy?)."
	case strings.Contains(ls, "dial tcp"), strings.Contains(ls, "lookup "), strings.Contains(ls, "connection refused"):
		return "Network/DNS error: " + s
	case strings.Contains(ls, "context deadline exceeded"):
		return "Request timed out."
	}
	return capitalize(s)
}

func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}
