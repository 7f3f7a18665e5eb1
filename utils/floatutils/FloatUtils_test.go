package floatutils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r1"
)

func TestClip(t *testing.T) {
	assert.Equal(t, 0.5, Clip(0.5, -1.0, 1.0))
	assert.Equal(t, 1.0, Clip(3.2, -1.0, 1.0))
	assert.Equal(t, -1.0, Clip(-7.0, -1.0, 1.0))
	assert.Equal(t, -1.0, Clip(-1.0, -1.0, 1.0))
}

func TestClipInterval(t *testing.T) {
	interval := r1.Interval{Min: -1.0, Max: 1.0}
	assert.Equal(t, 0.25, ClipInterval(0.25, interval))
	assert.Equal(t, 1.0, ClipInterval(42.0, interval))
	assert.Equal(t, -1.0, ClipInterval(-42.0, interval))
}

func TestMinMax(t *testing.T) {
	assert.Equal(t, -3.0, Min(1.0, -3.0, 2.0))
	assert.Equal(t, 2.0, Max(1.0, -3.0, 2.0))
	assert.Equal(t, 7.0, Min(7.0))
	assert.Equal(t, 7.0, Max(7.0))
}

func TestSoftplus(t *testing.T) {
	assert.InDelta(t, math.Log(2.0), Softplus(0.0), 1e-12)
	assert.InDelta(t, math.Log1p(math.Exp(1.0)), Softplus(1.0), 1e-12)

	// Large positive inputs approach the identity without overflowing
	assert.InDelta(t, 1000.0, Softplus(1000.0), 1e-9)

	// Large negative inputs approach zero from above
	assert.InDelta(t, 0.0, Softplus(-1000.0), 1e-12)
	assert.Greater(t, Softplus(-50.0), 0.0)
}
