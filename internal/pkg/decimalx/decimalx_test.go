package decimalx

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromFloatGuards(t *testing.T) {
	assert.True(t, FromFloat(math.NaN()).IsZero())
	assert.True(t, FromFloat(math.Inf(1)).IsZero())
	assert.True(t, FromFloat(math.Inf(-1)).IsZero())
	assert.Equal(t, "100.15", FromFloat(100.15).String())
}

func TestCompareOrdering(t *testing.T) {
	assert.Equal(t, 0, Compare(100.15, 100.15))
	assert.True(t, LTE(100.15, 100.15))
	assert.True(t, GTE(100.15, 100.15))
	assert.True(t, LT(0.29, 0.3))
	assert.True(t, GT(0.31, 0.3))
	assert.Equal(t, 0, Compare(math.NaN(), math.Inf(1)), "non-finite inputs collapse to zero")
}

func TestAbsDiff(t *testing.T) {
	assert.Equal(t, "0.5", AbsDiff(100.1, 100.6).String())
	assert.Equal(t, "0.5", AbsDiff(100.6, 100.1).String())
	assert.True(t, AbsDiff(100.0, 100.0).IsZero())
}

func TestToFloat(t *testing.T) {
	assert.InDelta(t, 100.15, ToFloat(FromFloat(100.15)), 1e-12)
}
