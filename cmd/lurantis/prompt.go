package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/term"

	"github.com/ligun0805/lurantis-go/internal/wallet"
)

var errNoTerminal = errors.New("no terminal to prompt on; pass --yes")

var stdin = bufio.NewReader(os.Stdin)

func isTerminal() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

func readLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	s, err := stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// readPassword reads without echo; prompts go to stderr so stdout stays pipeable.
func readPassword(prompt string) ([]byte, error) {
	if !isTerminal() {
		return nil, errNoTerminal
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return b, nil
}

func yes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "y" || s == "yes"
}

// confirm asks a y/N question; --yes answers it.
func confirm(prompt string) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if !isTerminal() {
		return false, errNoTerminal
	}
	s, err := readLine(prompt + " [y/N]: ")
	if err != nil {
		return false, err
	}
	return yes(s), nil
}

// approveAccounts is the wallet's connection prompt.
func approveAccounts(ctx context.Context, accts []common.Address) error {
	short := make([]string, len(accts))
	for i, a := range accts {
		short[i] = wallet.FormatAddress(a.Hex())
	}
	ok, err := confirm("Connect lurantis to " + strings.Join(short, ", ") + "?")
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("connection declined")
	}
	return nil
}
