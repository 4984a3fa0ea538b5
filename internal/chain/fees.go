package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
)

// FeeHistoryReader is the eth_feeHistory part of a node client. *ethclient.Client satisfies it.
type FeeHistoryReader interface {
	FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error)
}

// RewardStats aggregates min/avg/max priority fee for one percentile.
type RewardStats struct {
	Min *big.Int
	Avg *big.Int
	Max *big.Int
}

// FeeStats is the fee market over the last blocks.
type FeeStats struct {
	Blocks      int
	NextBaseFee *big.Int
	Rewards     map[float64]RewardStats
}

// MaxFee is baseMul*next base fee plus the largest tip seen at percentile p.
func (s FeeStats) MaxFee(baseMul int64, p float64) *big.Int {
	fee := new(big.Int).Mul(s.NextBaseFee, big.NewInt(baseMul))
	if st, ok := s.Rewards[p]; ok && st.Max != nil {
		fee.Add(fee, st.Max)
	}
	return fee
}

// FeeHistoryStats returns min/avg/max over the last blocks for the given percentiles.
func FeeHistoryStats(ctx context.Context, r FeeHistoryReader, blocks uint64, percentiles []float64) (FeeStats, error) {
	if blocks == 0 {
		blocks = 100
	}
	if len(percentiles) == 0 {
		percentiles = []float64{50, 95, 99}
	}
	h, err := Retry(ctx, func(ctx context.Context) (*ethereum.FeeHistory, error) {
		return r.FeeHistory(ctx, blocks, nil, percentiles)
	})
	if err != nil {
		return FeeStats{}, err
	}
	if len(h.BaseFee) == 0 {
		return FeeStats{}, errors.New("feeHistory: empty baseFee")
	}

	out := FeeStats{
		Blocks:      len(h.Reward),
		NextBaseFee: new(big.Int).Set(h.BaseFee[len(h.BaseFee)-1]),
		Rewards:     make(map[float64]RewardStats, len(percentiles)),
	}
	for j, p := range percentiles {
		st := RewardStats{Min: big.NewInt(0), Avg: big.NewInt(0), Max: big.NewInt(0)}
		n := 0
		for _, row := range h.Reward {
			if j >= len(row) || row[j] == nil {
				continue
			}
			v := row[j]
			if n == 0 || v.Cmp(st.Min) < 0 {
				st.Min = new(big.Int).Set(v)
			}
			if v.Cmp(st.Max) > 0 {
				st.Max = new(big.Int).Set(v)
			}
			st.Avg.Add(st.Avg, v)
			n++
		}
		if n > 0 {
			st.Avg.Div(st.Avg, big.NewInt(int64(n)))
		}
		out.Rewards[p] = st
	}
	return out, nil
}

// FormatGwei renders wei in gwei with two decimals.
func FormatGwei(v *big.Int) string {
	if v == nil {
		return "0.00"
	}
	return new(big.Rat).SetFrac(v, big.NewInt(1_000_000_000)).FloatString(2)
}
