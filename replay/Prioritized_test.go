package replay

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testVisionSize  int = 6
	testProprioSize int = 3
	testActionSize  int = 2
)

// newTestBuffer returns a buffer with small test dimensions
func newTestBuffer(t *testing.T, config Config, seed uint64) *Prioritized {
	buffer, err := New(config, testVisionSize, testProprioSize,
		testActionSize, seed)
	require.NoError(t, err)
	return buffer
}

// fillBuffer stores n transitions, the i'th filled with the value i
func fillBuffer(t *testing.T, buffer *Prioritized, n int) {
	for i := 0; i < n; i++ {
		transition := testTransition(testVisionSize, testProprioSize,
			testActionSize, float64(i))
		require.NoError(t, buffer.Store(transition))
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{Capacity: 8, Alpha: 0.6, Beta: 0.4, Epsilon: 0.01}
	assert.NoError(t, valid.Validate())

	invalid := []Config{
		{Capacity: 0, Alpha: 0.6, Beta: 0.4, Epsilon: 0.01},
		{Capacity: 8, Alpha: -1.0, Beta: 0.4, Epsilon: 0.01},
		{Capacity: 8, Alpha: 0.6, Beta: 0.0, Epsilon: 0.01},
		{Capacity: 8, Alpha: 0.6, Beta: 1.5, Epsilon: 0.01},
		{Capacity: 8, Alpha: 0.6, Beta: 0.4, Epsilon: 0.0},
		{Capacity: 8, Alpha: math.NaN(), Beta: 0.4, Epsilon: 0.01},
	}
	for _, config := range invalid {
		assert.Error(t, config.Validate())
	}
}

func TestPrioritizedSizeNeverExceedsCapacity(t *testing.T) {
	buffer := newTestBuffer(t, Config{Capacity: 4, Alpha: 0.6, Beta: 0.4,
		Epsilon: 0.01}, 1)

	assert.Equal(t, 0, buffer.Size())
	fillBuffer(t, buffer, 3)
	assert.Equal(t, 3, buffer.Size())

	// Overfilling wraps around and overwrites the oldest transitions
	fillBuffer(t, buffer, 10)
	assert.Equal(t, 4, buffer.Size())
	assert.Equal(t, 4, buffer.Capacity())
}

func TestPrioritizedNewTransitionsGetMaxPriority(t *testing.T) {
	buffer := newTestBuffer(t, Config{Capacity: 8, Alpha: 1.0, Beta: 1.0,
		Epsilon: 0.01}, 1)

	// The very first transition gets the default priority
	fillBuffer(t, buffer, 1)
	assert.InDelta(t, 1.0, buffer.MaxPriority(), 1e-12)

	// Raise a stored priority, then store a fresh transition: it must
	// inherit the current maximum so it is sampled at least once
	fillBuffer(t, buffer, 1)
	require.NoError(t, buffer.UpdatePriorities([]int{1}, []float64{3.99}))
	assert.InDelta(t, 4.0, buffer.MaxPriority(), 1e-12)

	fillBuffer(t, buffer, 1)
	assert.InDelta(t, 4.0, buffer.tree.leaf(2), 1e-12)
}

func TestPrioritizedSampleBatchErrors(t *testing.T) {
	buffer := newTestBuffer(t, Config{Capacity: 4, Alpha: 0.6, Beta: 0.4,
		Epsilon: 0.01}, 1)

	_, err := buffer.SampleBatch(0)
	assert.Error(t, err)

	_, err = buffer.SampleBatch(1)
	require.Error(t, err)
	assert.True(t, IsEmptyBuffer(err))

	fillBuffer(t, buffer, 2)
	_, err = buffer.SampleBatch(3)
	require.Error(t, err)
	assert.True(t, IsInsufficientSamples(err))

	_, err = buffer.SampleBatch(2)
	assert.NoError(t, err)
}

func TestPrioritizedSampleBatchWeights(t *testing.T) {
	buffer := newTestBuffer(t, Config{Capacity: 8, Alpha: 0.6, Beta: 0.4,
		Epsilon: 0.01}, 1)
	fillBuffer(t, buffer, 8)

	// Skew the priorities so the weights are non-trivial
	require.NoError(t, buffer.UpdatePriorities(
		[]int{0, 1, 2, 3},
		[]float64{4.0, 0.1, 2.0, 0.5},
	))

	batch, err := buffer.SampleBatch(6)
	require.NoError(t, err)
	require.Len(t, batch.Weights, 6)

	maxWeight := 0.0
	for _, weight := range batch.Weights {
		assert.Greater(t, weight, 0.0)
		assert.LessOrEqual(t, weight, 1.0)
		maxWeight = math.Max(maxWeight, weight)
	}

	// Normalization makes the largest weight in every batch exactly 1
	assert.InDelta(t, 1.0, maxWeight, 1e-12)
}

func TestPrioritizedSamplingProportions(t *testing.T) {
	buffer := newTestBuffer(t, Config{Capacity: 4, Alpha: 1.0, Beta: 1.0,
		Epsilon: 0.01}, 14)
	fillBuffer(t, buffer, 4)

	// Priorities become |tdError| + epsilon: [1.0, 0.01, 4.0, 0.01]
	require.NoError(t, buffer.UpdatePriorities(
		[]int{0, 1, 2, 3},
		[]float64{0.99, 0.0, 3.99, 0.0},
	))
	require.InDelta(t, 5.02, buffer.tree.total(), 1e-9)

	counts := make(map[int]int)
	draws := 10000
	for i := 0; i < draws; i++ {
		batch, err := buffer.SampleBatch(1)
		require.NoError(t, err)
		counts[batch.Ids[0]]++
	}

	// Expected proportions: 1.0/5.02 ≈ 0.199 and 4.0/5.02 ≈ 0.797
	assert.InDelta(t, 0.199, float64(counts[0])/float64(draws), 0.03)
	assert.InDelta(t, 0.797, float64(counts[2])/float64(draws), 0.03)
	assert.Less(t, float64(counts[1])/float64(draws), 0.01)
	assert.Less(t, float64(counts[3])/float64(draws), 0.01)
}

func TestPrioritizedAlphaZeroSamplesUniformly(t *testing.T) {
	buffer := newTestBuffer(t, Config{Capacity: 4, Alpha: 0.0, Beta: 1.0,
		Epsilon: 0.01}, 3)
	fillBuffer(t, buffer, 4)
	require.NoError(t, buffer.UpdatePriorities(
		[]int{0, 1, 2, 3},
		[]float64{100.0, 0.0, 5.0, 0.25},
	))

	// With alpha = 0 every slot has identical sampling mass no matter
	// its priority
	for slot := 0; slot < 4; slot++ {
		assert.InDelta(t, 1.0, buffer.tree.leaf(slot), 1e-12)
	}
}

func TestPrioritizedUpdatePrioritiesReadBack(t *testing.T) {
	epsilon := 0.01
	buffer := newTestBuffer(t, Config{Capacity: 4, Alpha: 1.0, Beta: 1.0,
		Epsilon: epsilon}, 1)
	fillBuffer(t, buffer, 2)

	// Negative TD errors prioritize by magnitude
	require.NoError(t, buffer.UpdatePriorities(
		[]int{0, 1},
		[]float64{-2.0, 0.5},
	))

	assert.InDelta(t, 2.0+epsilon, buffer.tree.leaf(0), 1e-12)
	assert.InDelta(t, 0.5+epsilon, buffer.tree.leaf(1), 1e-12)

	// A zero TD error still leaves the priority floor
	require.NoError(t, buffer.UpdatePriorities([]int{0}, []float64{0.0}))
	assert.InDelta(t, epsilon, buffer.tree.leaf(0), 1e-12)
}

func TestPrioritizedUpdatePrioritiesLengthMismatch(t *testing.T) {
	buffer := newTestBuffer(t, Config{Capacity: 4, Alpha: 1.0, Beta: 1.0,
		Epsilon: 0.01}, 1)
	fillBuffer(t, buffer, 2)

	assert.Error(t, buffer.UpdatePriorities([]int{0, 1}, []float64{1.0}))
}

func TestPrioritizedUpdatePrioritiesUnknownId(t *testing.T) {
	buffer := newTestBuffer(t, Config{Capacity: 4, Alpha: 1.0, Beta: 1.0,
		Epsilon: 0.01}, 1)
	fillBuffer(t, buffer, 2)

	err := buffer.UpdatePriorities([]int{5}, []float64{1.0})
	require.Error(t, err)
	assert.True(t, IsUnknownSlot(err))

	err = buffer.UpdatePriorities([]int{-1}, []float64{1.0})
	require.Error(t, err)
	assert.True(t, IsUnknownSlot(err))
}

func TestPrioritizedUpdatePrioritiesRejectsBeforeMutating(t *testing.T) {
	buffer := newTestBuffer(t, Config{Capacity: 4, Alpha: 1.0, Beta: 1.0,
		Epsilon: 0.01}, 1)
	fillBuffer(t, buffer, 2)
	before := buffer.tree.leaf(0)

	// The valid first entry must not be applied when a later entry in
	// the same call is invalid
	err := buffer.UpdatePriorities([]int{0, 1}, []float64{5.0, math.NaN()})
	require.Error(t, err)
	assert.True(t, IsInvalidPriority(err))
	assert.Equal(t, before, buffer.tree.leaf(0))

	err = buffer.UpdatePriorities([]int{0, 1}, []float64{5.0, math.Inf(1)})
	require.Error(t, err)
	assert.True(t, IsInvalidPriority(err))
	assert.Equal(t, before, buffer.tree.leaf(0))
}

func TestPrioritizedStaleUpdateSkippedSilently(t *testing.T) {
	buffer := newTestBuffer(t, Config{Capacity: 2, Alpha: 1.0, Beta: 1.0,
		Epsilon: 0.01}, 1)

	// Ids 0 and 1 fill the buffer; id 2 overwrites slot 0
	fillBuffer(t, buffer, 2)
	require.NoError(t, buffer.UpdatePriorities([]int{1}, []float64{1.99}))
	fillBuffer(t, buffer, 1)
	before := buffer.tree.leaf(0)
	require.InDelta(t, 2.0, before, 1e-12)

	// Updating the overwritten id must not touch the slot's priority,
	// which now belongs to the transition with id 2
	require.NoError(t, buffer.UpdatePriorities([]int{0}, []float64{99.0}))
	assert.Equal(t, before, buffer.tree.leaf(0))

	// The live id for the same slot still updates normally
	require.NoError(t, buffer.UpdatePriorities([]int{2}, []float64{0.99}))
	assert.InDelta(t, 1.0, buffer.tree.leaf(0), 1e-12)
}

func TestPrioritizedSampleAfterOverwriteReturnsFreshIds(t *testing.T) {
	buffer := newTestBuffer(t, Config{Capacity: 2, Alpha: 1.0, Beta: 1.0,
		Epsilon: 0.01}, 1)
	fillBuffer(t, buffer, 5)

	batch, err := buffer.SampleBatch(2)
	require.NoError(t, err)
	for _, id := range batch.Ids {
		assert.GreaterOrEqual(t, id, 3)
		assert.Less(t, id, 5)
	}
}

func TestPrioritizedSampleBatchReturnsCopies(t *testing.T) {
	buffer := newTestBuffer(t, Config{Capacity: 4, Alpha: 1.0, Beta: 1.0,
		Epsilon: 0.01}, 1)
	fillBuffer(t, buffer, 4)

	batch, err := buffer.SampleBatch(2)
	require.NoError(t, err)

	id := batch.Ids[0]
	original := batch.Visions[0]
	batch.Visions[0] = -1000.0

	stored, err := buffer.Get(id)
	require.NoError(t, err)
	assert.Equal(t, original, stored.State.Vision.AtVec(0))
}

func TestPrioritizedSeedDeterminism(t *testing.T) {
	config := Config{Capacity: 8, Alpha: 0.6, Beta: 0.4, Epsilon: 0.01}

	first := newTestBuffer(t, config, 42)
	second := newTestBuffer(t, config, 42)
	fillBuffer(t, first, 8)
	fillBuffer(t, second, 8)

	for i := 0; i < 10; i++ {
		batchA, err := first.SampleBatch(4)
		require.NoError(t, err)
		batchB, err := second.SampleBatch(4)
		require.NoError(t, err)
		assert.Equal(t, batchA.Ids, batchB.Ids)
	}
}

func TestPrioritizedSetBeta(t *testing.T) {
	buffer := newTestBuffer(t, Config{Capacity: 4, Alpha: 0.6, Beta: 0.4,
		Epsilon: 0.01}, 1)

	require.NoError(t, buffer.SetBeta(0.9))
	assert.Equal(t, 0.9, buffer.Beta())

	assert.Error(t, buffer.SetBeta(0.0))
	assert.Error(t, buffer.SetBeta(-0.5))
	assert.Error(t, buffer.SetBeta(1.5))
	assert.Error(t, buffer.SetBeta(math.NaN()))
	assert.Equal(t, 0.9, buffer.Beta())
}

func TestPrioritizedGet(t *testing.T) {
	buffer := newTestBuffer(t, Config{Capacity: 4, Alpha: 0.6, Beta: 0.4,
		Epsilon: 0.01}, 1)
	fillBuffer(t, buffer, 2)

	transition, err := buffer.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, transition.Reward)

	_, err = buffer.Get(2)
	require.Error(t, err)
	assert.True(t, IsUnknownSlot(err))
}
