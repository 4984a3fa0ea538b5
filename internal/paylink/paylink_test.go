package paylink

import (
	"bytes"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeURI(t *testing.T) {
	price, ok := new(big.Int).SetString("8990000000000000000", 10)
	require.True(t, ok)
	addr := common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3")

	assert.Equal(t,
		"ethereum:0x5FbDB2315678afecb367f032d93F642f64180aa3@100/subscribe?value=8990000000000000000",
		SubscribeURI(addr, 100, price))
	assert.Equal(t,
		"ethereum:0x5FbDB2315678afecb367f032d93F642f64180aa3@10200/subscribe?value=0",
		SubscribeURI(addr, 10200, nil))
}

func TestQR(t *testing.T) {
	out, err := QR("ethereum:0x5FbDB2315678afecb367f032d93F642f64180aa3@100/subscribe?value=1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.NotEmpty(t, lines)
	width := len([]rune(lines[0]))
	for _, l := range lines {
		assert.Equal(t, width, len([]rune(l)), "rows are square-padded")
	}
	assert.Contains(t, out, "█")
}

func TestWritePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscribe.png")
	require.NoError(t, WritePNG("ethereum:0x0@100/subscribe?value=1", path, 128))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("\x89PNG")))
}
