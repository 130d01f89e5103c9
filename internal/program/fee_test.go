package program

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFee(t *testing.T) {
	tests := []struct {
		name    string
		amount  uint64
		bps     uint16
		wantFee uint64
		wantNet uint64
	}{
		{"default rate", 10_000, 100, 100, 9_900},
		{"doubled rate", 10_000, 200, 200, 9_800},
		{"full rate", 10_000, 10_000, 10_000, 0},
		{"zero rate", 10_000, 0, 0, 10_000},
		{"floors", 12_345, 250, 308, 12_037},
		{"zero amount", 0, 10_000, 0, 0},
		{"largest product", math.MaxUint64 / 10_000, 10_000, math.MaxUint64 / 10_000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, net, err := SplitFee(tt.amount, tt.bps)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFee, fee)
			assert.Equal(t, tt.wantNet, net)
		})
	}
}

func TestSplitFee_MatchesExactArithmetic(t *testing.T) {
	amounts := []uint64{0, 1, 99, 100, 101, 9_999, 10_000, 10_001, 123_456_789, 1 << 40, math.MaxUint64 / 10_000}
	rates := []uint16{0, 1, 7, 99, 100, 200, 333, 5_000, 9_999, 10_000}

	for _, amount := range amounts {
		for _, bps := range rates {
			fee, net, err := SplitFee(amount, bps)
			require.NoError(t, err)

			want := new(big.Int).Mul(new(big.Int).SetUint64(amount), big.NewInt(int64(bps)))
			want.Quo(want, big.NewInt(10_000))
			assert.Equal(t, want.Uint64(), fee, "amount %d bps %d", amount, bps)
			assert.Equal(t, amount, fee+net, "amount %d bps %d", amount, bps)
			assert.LessOrEqual(t, fee, amount)
		}
	}
}

func TestSplitFee_Repeatable(t *testing.T) {
	fee, net, err := SplitFee(777_777, 123)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		f, n, err := SplitFee(777_777, 123)
		require.NoError(t, err)
		assert.Equal(t, fee, f)
		assert.Equal(t, net, n)
	}
}

func TestSplitFee_Overflow(t *testing.T) {
	_, _, err := SplitFee(math.MaxUint64, 100)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)

	_, _, err = SplitFee(math.MaxUint64/10_000+1, 10_000)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)

	// Rate zero never overflows.
	fee, net, err := SplitFee(math.MaxUint64, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), fee)
	assert.Equal(t, uint64(math.MaxUint64), net)
}

func TestSplitFee_InvalidRate(t *testing.T) {
	_, _, err := SplitFee(100, 10_001)
	assert.ErrorIs(t, err, ErrInvalidFeeRate)
}
