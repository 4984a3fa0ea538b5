package main

import (
	"bytes"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/lurantis-go/internal/chain"
	"github.com/ligun0805/lurantis-go/internal/subscription"
)

func TestPurchaseProgressPrintsEachStepOnce(t *testing.T) {
	n, err := chain.Lookup("gnosis-mainnet")
	require.NoError(t, err)
	var out, errOut bytes.Buffer
	progress := purchaseProgress(&out, &errOut, n)

	const warning = "Low balance: need 8.99 xDAI, but you have 1 xDAI. Transaction may fail."
	const hash = "0xabc0000000000000000000000000000000000000000000000000000000000def"
	for _, st := range []subscription.State{
		{Purchasing: true, Phase: subscription.PhasePurchasing},
		{Purchasing: true, Phase: subscription.PhasePurchasing, Warning: warning},
		{Purchasing: true, Phase: subscription.PhasePurchasing, Warning: warning, TxHash: hash},
		{Phase: subscription.PhaseLoading, Warning: warning, TxHash: hash},
		{Phase: subscription.PhaseSubscribed, Subscribed: true, Warning: warning, TxHash: hash},
	} {
		progress(st)
	}

	assert.Equal(t, 1, strings.Count(errOut.String(), warning))
	assert.Equal(t, 1, strings.Count(out.String(), "Sent     : "+hash))
	assert.Contains(t, out.String(), n.TxURL(hash))
}

func TestPriceWithin(t *testing.T) {
	limit, err := chain.ParseEther("9.5")
	require.NoError(t, err)
	price, err := chain.ParseEther("8.99")
	require.NoError(t, err)

	assert.NoError(t, priceWithin(price, limit))
	assert.NoError(t, priceWithin(limit, limit))
	err = priceWithin(new(big.Int).Add(limit, big.NewInt(1)), limit)
	assert.ErrorContains(t, err, "above --max-price 9.5")
}
