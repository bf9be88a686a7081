package plinko

import (
	"testing"

	"github.com/fystack/plinko-engine/internal/fairness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSamplePath_Golden(t *testing.T) {
	path, err := SamplePath("veryrandomhashyesyouare", "", 0, 16)
	require.NoError(t, err)

	want := []Cell{
		{1, 0}, {2, 0}, {3, 0}, {4, 1}, {5, 1}, {6, 1}, {7, 1}, {8, 1},
		{9, 2}, {10, 3}, {11, 3}, {12, 3}, {13, 3}, {14, 4}, {15, 5}, {16, 5},
	}
	assert.Equal(t, want, path)
	assert.Equal(t, 5, Hole(path))
}

func TestSample_Invariants(t *testing.T) {
	for _, rows := range SupportedRows {
		for nonce := uint64(0); nonce < 500; nonce++ {
			path, err := Sample(fairness.Floats("server", "client", nonce, rows), rows)
			require.NoError(t, err)
			require.Len(t, path, rows)
			for i, c := range path {
				assert.Equal(t, i+1, c.Row)
				assert.GreaterOrEqual(t, c.Column, 0)
				assert.LessOrEqual(t, c.Column, c.Row)
				if i > 0 {
					step := c.Column - path[i-1].Column
					assert.True(t, step == 0 || step == 1)
				}
			}
			hole := Hole(path)
			assert.GreaterOrEqual(t, hole, 0)
			assert.LessOrEqual(t, hole, rows)
		}
	}
}

func TestSample_InsufficientEntropy(t *testing.T) {
	_, err := Sample([]float64{0.1, 0.9}, 3)
	assert.ErrorIs(t, err, ErrInsufficientEntropy)

	_, err = Sample(nil, 0)
	assert.Error(t, err)

	_, err = Sample([]float64{0.1, 1.5}, 2)
	assert.Error(t, err)
}

func TestStruckMultiplier(t *testing.T) {
	path := []Cell{{1, 0}, {2, 1}, {3, 1}, {4, 2}}
	cells := []SpecialCell{
		{Cell: Cell{2, 1}, Multiplier: 2},
		{Cell: Cell{4, 2}, Multiplier: 5},
		{Cell: Cell{3, 2}, Multiplier: 10},
	}
	product, struck := StruckMultiplier(path, cells)
	assert.Equal(t, 10.0, product)
	assert.Len(t, struck, 2)

	product, struck = StruckMultiplier(path, nil)
	assert.Equal(t, 1.0, product)
	assert.Empty(t, struck)
}
