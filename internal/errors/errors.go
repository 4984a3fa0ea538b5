package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for comparison with errors.Is
var (
	ErrProviderAbsent        = errors.New("wallet provider not found")
	ErrNoAccounts            = errors.New("no accounts found")
	ErrUserRejected          = errors.New("request rejected by user")
	ErrChainMismatch         = errors.New("wallet is on the wrong network")
	ErrContractNotConfigured = errors.New("subscription contract not configured")
	ErrContractNotDeployed   = errors.New("contract does not exist at this address")
	ErrGasEstimation         = errors.New("transaction will fail")
	ErrTransactionFailed     = errors.New("transaction failed")
	ErrAlreadySubscribed     = errors.New("subscription already active")
	ErrPurchaseInProgress    = errors.New("purchase already in progress")
	ErrNetwork               = errors.New("network request failed")
	ErrConfig                = errors.New("invalid configuration")
)

func Is(err, target error) bool     { return errors.Is(err, target) }
func As(err error, target any) bool { return errors.As(err, target) }
func New(text string) error         { return errors.New(text) }
func Join(errs ...error) error      { return errors.Join(errs...) }

func WrapUserRejected(err error) error {
	return fmt.Errorf("%w: %w", ErrUserRejected, err)
}

func WrapChainMismatch(want uint64, err error) error {
	return fmt.Errorf("%w: cannot switch to chain %d: %w", ErrChainMismatch, want, err)
}

func WrapContractNotDeployed(addr string) error {
	return fmt.Errorf("%w: %s. Please verify the contract address", ErrContractNotDeployed, addr)
}

// WrapGasEstimation keeps the revert reason visible: "transaction will fail: <reason>".
func WrapGasEstimation(reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "Unknown error"
	}
	return fmt.Errorf("%w: %s", ErrGasEstimation, reason)
}

func WrapTransactionFailed(hash string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s reverted", ErrTransactionFailed, hash)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransactionFailed, hash, err)
}

func WrapNetwork(err error) error {
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}

func WrapConfigError(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrConfig, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrConfig, msg, err)
}
