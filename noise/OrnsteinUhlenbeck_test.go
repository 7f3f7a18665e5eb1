package noise

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrnsteinUhlenbeckValidates(t *testing.T) {
	_, err := NewOrnsteinUhlenbeck(0, DefaultTheta, DefaultMu, DefaultSigma,
		DefaultDt, 1)
	assert.Error(t, err)

	_, err = NewOrnsteinUhlenbeck(3, -0.1, DefaultMu, DefaultSigma,
		DefaultDt, 1)
	assert.Error(t, err)

	_, err = NewOrnsteinUhlenbeck(3, DefaultTheta, DefaultMu, -0.2,
		DefaultDt, 1)
	assert.Error(t, err)

	_, err = NewOrnsteinUhlenbeck(3, DefaultTheta, DefaultMu, DefaultSigma,
		0.0, 1)
	assert.Error(t, err)
}

func TestOrnsteinUhlenbeckSampleDims(t *testing.T) {
	process, err := NewOrnsteinUhlenbeck(7, DefaultTheta, DefaultMu,
		DefaultSigma, DefaultDt, 1)
	require.NoError(t, err)

	sample := process.Sample()
	assert.Equal(t, 7, sample.Len())
}

func TestOrnsteinUhlenbeckMeanReversion(t *testing.T) {
	mu := 0.5
	process, err := NewOrnsteinUhlenbeck(3, 0.5, mu, 0.2, 0.01, 42)
	require.NoError(t, err)

	// The process reverts toward mu, so a long-run average of samples
	// should sit close to it
	n := 20000
	sums := make([]float64, 3)
	for i := 0; i < n; i++ {
		sample := process.Sample()
		for d := 0; d < 3; d++ {
			sums[d] += sample.AtVec(d)
		}
	}
	for d := 0; d < 3; d++ {
		assert.InDelta(t, mu, sums[d]/float64(n), 0.1)
	}
}

func TestOrnsteinUhlenbeckTemporalCorrelation(t *testing.T) {
	process, err := NewOrnsteinUhlenbeck(1, DefaultTheta, DefaultMu,
		DefaultSigma, DefaultDt, 7)
	require.NoError(t, err)

	// Consecutive samples differ by at most a single small increment,
	// unlike independent Gaussian draws
	previous := process.Sample().AtVec(0)
	bound := 6.0 * DefaultSigma * math.Sqrt(DefaultDt)
	for i := 0; i < 1000; i++ {
		current := process.Sample().AtVec(0)
		assert.Less(t, math.Abs(current-previous),
			bound+DefaultTheta*math.Abs(previous)*DefaultDt)
		previous = current
	}
}

func TestOrnsteinUhlenbeckReset(t *testing.T) {
	mu := -0.25
	process, err := NewOrnsteinUhlenbeck(2, DefaultTheta, mu, DefaultSigma,
		DefaultDt, 3)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		process.Sample()
	}
	process.Reset()

	// The first sample after a reset is one increment away from mu
	bound := 6.0 * DefaultSigma * math.Sqrt(DefaultDt)
	sample := process.Sample()
	for d := 0; d < 2; d++ {
		assert.Less(t, math.Abs(sample.AtVec(d)-mu), bound)
	}
}

func TestOrnsteinUhlenbeckSeedDeterminism(t *testing.T) {
	first, err := NewOrnsteinUhlenbeck(4, DefaultTheta, DefaultMu,
		DefaultSigma, DefaultDt, 99)
	require.NoError(t, err)
	second, err := NewOrnsteinUhlenbeck(4, DefaultTheta, DefaultMu,
		DefaultSigma, DefaultDt, 99)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		a := first.Sample()
		b := second.Sample()
		for d := 0; d < 4; d++ {
			assert.Equal(t, a.AtVec(d), b.AtVec(d))
		}
	}
}

func TestOrnsteinUhlenbeckSampleReturnsCopies(t *testing.T) {
	process, err := NewOrnsteinUhlenbeck(2, DefaultTheta, DefaultMu,
		DefaultSigma, DefaultDt, 5)
	require.NoError(t, err)

	first := process.Sample()
	first.SetVec(0, 1000.0)

	// Mutating a returned sample must not corrupt the process state
	second := process.Sample()
	assert.Less(t, math.Abs(second.AtVec(0)), 1.0)
}
