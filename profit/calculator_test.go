package profit

import (
	"testing"

	"github.com/dkrasnoff/flasharb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quotePair(amountIn, buyOut, sellOut float64) (types.Quote, types.Quote) {
	pair := types.Pair{Base: "WETH", Quote: "USDC"}
	buy := types.Quote{
		Venue:     "UniswapV2",
		Pair:      pair,
		AmountIn:  amountIn,
		AmountOut: buyOut,
	}
	sell := types.Quote{
		Venue:     "SushiSwapV2",
		Pair:      pair,
		AmountIn:  buyOut,
		AmountOut: sellOut,
	}
	return buy, sell
}

func TestEvaluate(t *testing.T) {
	t.Run("NetProfitAfterFeesAndGas", func(t *testing.T) {
		// Buy 1.65 WETH for 3850.25 USDC, sell it back for 3891.75 USDC.
		// 0.05% loan fee on the borrowed 3850.25, 12.50 USDC of gas.
		buy, sell := quotePair(3850.25, 1.65, 3891.75)

		res, err := Evaluate(buy, sell, 0.0005, 12.50, 1.0)
		require.NoError(t, err)

		// 41.50 gross - 1.925125 loan fee - 12.50 gas.
		assert.InDelta(t, 27.074875, res.NetProfit, 1e-9)
		assert.InDelta(t, 1.0778, res.GrossSpreadPct, 0.001)
	})

	t.Run("Deterministic", func(t *testing.T) {
		buy, sell := quotePair(1000, 0.5, 1012)

		first, err := Evaluate(buy, sell, 0.0009, 0.004, 3125)
		require.NoError(t, err)

		for i := 0; i < 100; i++ {
			again, err := Evaluate(buy, sell, 0.0009, 0.004, 3125)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})

	t.Run("NegativeNetProfit", func(t *testing.T) {
		buy, sell := quotePair(1000, 0.5, 1001)

		res, err := Evaluate(buy, sell, 0.0009, 0.01, 3000)
		require.NoError(t, err)
		assert.Less(t, res.NetProfit, 0.0)
		assert.Greater(t, res.GrossSpreadPct, 0.0)
	})

	t.Run("NativeGasConversion", func(t *testing.T) {
		buy, sell := quotePair(2000, 1.0, 2050)

		// 0.005 ETH of gas at 2500 USDC/ETH = 12.50 USDC.
		res, err := Evaluate(buy, sell, 0, 0.005, 2500)
		require.NoError(t, err)
		assert.InDelta(t, 50-12.50, res.NetProfit, 1e-9)
	})

	t.Run("RejectsInvalidAmounts", func(t *testing.T) {
		cases := []struct {
			name              string
			amountIn, buyOut  float64
			sellOut           float64
			feeRate, gas, fx  float64
		}{
			{"zero amountIn", 0, 1, 1000, 0, 0, 1},
			{"negative amountIn", -5, 1, 1000, 0, 0, 1},
			{"zero buy output", 1000, 0, 1000, 0, 0, 1},
			{"negative sell output", 1000, 1, -1, 0, 0, 1},
			{"negative fee rate", 1000, 1, 1010, -0.1, 0, 1},
			{"negative rate", 1000, 1, 1010, 0, 1, -1},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				buy, sell := quotePair(tc.amountIn, tc.buyOut, tc.sellOut)
				_, err := Evaluate(buy, sell, tc.feeRate, tc.gas, tc.fx)
				assert.ErrorIs(t, err, ErrInvalidQuote)
			})
		}
	})
}
