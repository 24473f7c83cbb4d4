package eip1559

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeeReader struct {
	tipCap  *big.Int
	baseFee *big.Int
	err     error
}

func (f *fakeFeeReader) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.tipCap), nil
}

func (f *fakeFeeReader) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if f.err != nil {
		return nil, f.err
	}
	header := &types.Header{}
	if f.baseFee != nil {
		header.BaseFee = new(big.Int).Set(f.baseFee)
	}
	return header, nil
}

func TestSuggestFee_BuffersTipAndDoublesBaseFee(t *testing.T) {
	// 100 gwei tip, 50 gwei base fee: both clamps stay out of the way.
	client := &fakeFeeReader{
		tipCap:  big.NewInt(100_000_000_000),
		baseFee: big.NewInt(50_000_000_000),
	}

	maxFee, tip, err := SuggestFee(context.Background(), client)
	require.NoError(t, err)

	// tip = 100 gwei + 13% = 113 gwei
	assert.Equal(t, big.NewInt(113_000_000_000), tip)
	// maxFee = 2*50 gwei + 113 gwei = 213 gwei
	assert.Equal(t, big.NewInt(213_000_000_000), maxFee)
}

func TestSuggestFee_EnforcesMinimumTip(t *testing.T) {
	client := &fakeFeeReader{
		tipCap:  big.NewInt(100), // negligible suggested tip
		baseFee: big.NewInt(50_000_000_000),
	}

	_, tip, err := SuggestFee(context.Background(), client)
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(2_000_000_000), tip, "tip must be clamped up to 2 gwei")
}

func TestSuggestFee_EnforcesMinimumMaxFee(t *testing.T) {
	client := &fakeFeeReader{
		tipCap:  big.NewInt(100),
		baseFee: big.NewInt(1), // near-zero base fee
	}

	maxFee, _, err := SuggestFee(context.Background(), client)
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(20_000_000_000), maxFee, "maxFee must be clamped up to 20 gwei")
}

func TestSuggestFee_LegacyChainWithoutBaseFee(t *testing.T) {
	client := &fakeFeeReader{
		tipCap: big.NewInt(3_000_000_000),
	}

	maxFee, tip, err := SuggestFee(context.Background(), client)
	require.NoError(t, err)

	assert.Equal(t, tip, maxFee, "pre-1559 chains reuse the tip as maxFee")
	assert.Equal(t, big.NewInt(3_390_000_000), tip, "3 gwei + 13%")
}

func TestSuggestFee_PropagatesClientError(t *testing.T) {
	client := &fakeFeeReader{err: errors.New("rpc unavailable")}

	_, _, err := SuggestFee(context.Background(), client)
	assert.Error(t, err)
}

type headlessFeeReader struct{ fakeFeeReader }

func (h *headlessFeeReader) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return nil, nil
}

func TestSuggestFee_MissingHeadIsTyped(t *testing.T) {
	client := &headlessFeeReader{fakeFeeReader{tipCap: big.NewInt(1_000_000_000)}}

	_, _, err := SuggestFee(context.Background(), client)
	assert.ErrorIs(t, err, ErrNoBlockData)
}
