// Package paylink renders the subscribe() payment request for wallets that scan instead of sign locally.
package paylink

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/skip2/go-qrcode"
)

// SubscribeURI builds an EIP-681 request: ethereum:<contract>@<chainID>/subscribe?value=<wei>.
func SubscribeURI(contract common.Address, chainID uint64, valueWei *big.Int) string {
	if valueWei == nil {
		valueWei = new(big.Int)
	}
	return fmt.Sprintf("ethereum:%s@%d/subscribe?value=%s", contract.Hex(), chainID, valueWei.String())
}

// QR renders uri for a terminal using half-block characters, two modules per line.
func QR(uri string) (string, error) {
	qr, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}
	bits := qr.Bitmap()

	var b strings.Builder
	for y := 0; y < len(bits); y += 2 {
		for x := range bits[y] {
			top := bits[y][x]
			bottom := y+1 < len(bits) && bits[y+1][x]
			switch {
			case top && bottom:
				b.WriteRune('█')
			case top:
				b.WriteRune('▀')
			case bottom:
				b.WriteRune('▄')
			default:
				b.WriteRune(' ')
			}
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// WritePNG stores the QR code for uri as a PNG image.
func WritePNG(uri, path string, size int) error {
	qr, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("failed to create QR code: %w", err)
	}
	png, err := qr.PNG(size)
	if err != nil {
		return fmt.Errorf("failed to generate PNG: %w", err)
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
