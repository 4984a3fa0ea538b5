package subscription

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/lurantis-go/internal/provider"
)

// abiBackend answers eth_call from a method name -> return value table.
type abiBackend struct {
	provider.Backend
	returns map[string]any
	calls   int
	lastMsg ethereum.CallMsg
}

func (b *abiBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	b.calls++
	m, err := subscriptionABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	v, ok := b.returns[m.Name]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return m.Outputs.Pack(v)
}

func (b *abiBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.lastMsg = msg
	price := b.returns["MONTHLY_PRICE"].(*big.Int)
	if msg.Value == nil || msg.Value.Cmp(price) < 0 {
		return 0, errors.New("execution reverted: Insufficient payment")
	}
	return 48_211, nil
}

func TestBoundContractReads(t *testing.T) {
	addr := common.HexToAddress(contractHex)
	be := &abiBackend{returns: map[string]any{
		"hasActiveSubscription":  true,
		"getSubscriptionEndTime": big.NewInt(1_900_000_000),
		"getDaysRemaining":       big.NewInt(12),
		"MONTHLY_PRICE":          price899,
	}}
	con, err := Bind(addr, be)
	require.NoError(t, err)
	ctx := context.Background()

	active, err := con.HasActiveSubscription(ctx, user)
	require.NoError(t, err)
	assert.True(t, active)

	end, err := con.SubscriptionEndTime(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(1_900_000_000), end.Int64())

	days, err := con.DaysRemaining(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(12), days.Int64())

	price, err := con.MonthlyPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, price899, price)

	gas, err := con.EstimateSubscribe(ctx, user, price)
	require.NoError(t, err)
	assert.Equal(t, uint64(48_211), gas)
	assert.Equal(t, user, be.lastMsg.From)
	assert.Equal(t, &addr, be.lastMsg.To)
	assert.Equal(t, subscriptionABI.Methods["subscribe"].ID, be.lastMsg.Data)

	_, err = con.EstimateSubscribe(ctx, user, big.NewInt(1))
	assert.ErrorContains(t, err, "Insufficient payment")
}

func TestBoundContractRevertedRead(t *testing.T) {
	be := &abiBackend{returns: map[string]any{}}
	con, err := Bind(common.HexToAddress(contractHex), be)
	require.NoError(t, err)

	_, err = con.HasActiveSubscription(context.Background(), user)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hasActiveSubscription")
	assert.Equal(t, 3, be.calls, "reads are retried")
}

func TestBindRequiresBackend(t *testing.T) {
	_, err := Bind(common.HexToAddress(contractHex), nil)
	assert.Error(t, err)
}
