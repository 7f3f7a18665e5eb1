package replay

import (
	"testing"

	"github.com/robolearn/golatent/timestep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// testTransition returns a transition whose every component is filled
// with the argument value, matching the test store dimensions
func testTransition(visionSize, proprioSize, actionSize int,
	value float64) timestep.Transition {
	fill := func(n int) *mat.VecDense {
		v := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			v.SetVec(i, value)
		}
		return v
	}

	return timestep.Transition{
		State: timestep.NewObservation(fill(visionSize), fill(proprioSize)),
		Action: fill(actionSize),
		Reward: value,
		NextState: timestep.NewObservation(fill(visionSize),
			fill(proprioSize)),
		Done: false,
	}
}

func TestStorePutGetRoundTrip(t *testing.T) {
	s := newStore(4, 6, 3, 2)

	transition := testTransition(6, 3, 2, 0.25)
	transition.Done = true
	require.NoError(t, s.put(1, transition))

	got, err := s.get(1)
	require.NoError(t, err)

	assert.Equal(t, 0.25, got.Reward)
	assert.True(t, got.Done)
	for i := 0; i < 6; i++ {
		assert.Equal(t, 0.25, got.State.Vision.AtVec(i))
		assert.Equal(t, 0.25, got.NextState.Vision.AtVec(i))
	}
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0.25, got.State.Proprioception.AtVec(i))
	}
	for i := 0; i < 2; i++ {
		assert.Equal(t, 0.25, got.Action.AtVec(i))
	}
}

func TestStoreGetReturnsCopies(t *testing.T) {
	s := newStore(2, 4, 2, 1)
	require.NoError(t, s.put(0, testTransition(4, 2, 1, 1.0)))

	got, err := s.get(0)
	require.NoError(t, err)
	got.State.Vision.SetVec(0, -100.0)
	got.Action.SetVec(0, -100.0)

	// Mutating the returned transition must not change the stored one
	again, err := s.get(0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.State.Vision.AtVec(0))
	assert.Equal(t, 1.0, again.Action.AtVec(0))
}

func TestStoreUnwrittenSlot(t *testing.T) {
	s := newStore(2, 4, 2, 1)

	_, err := s.get(0)
	require.Error(t, err)
	assert.True(t, IsUnwrittenSlot(err))
}

func TestStoreRejectsWrongDimensions(t *testing.T) {
	s := newStore(2, 4, 2, 1)

	assert.Error(t, s.put(0, testTransition(5, 2, 1, 1.0)))
	assert.Error(t, s.put(0, testTransition(4, 3, 1, 1.0)))
	assert.Error(t, s.put(0, testTransition(4, 2, 2, 1.0)))

	var nilFields timestep.Transition
	assert.Error(t, s.put(0, nilFields))

	// Rejected puts leave the slot unwritten
	_, err := s.get(0)
	assert.True(t, IsUnwrittenSlot(err))
}

func TestStoreOverwritesInPlace(t *testing.T) {
	s := newStore(2, 4, 2, 1)
	require.NoError(t, s.put(0, testTransition(4, 2, 1, 1.0)))
	require.NoError(t, s.put(0, testTransition(4, 2, 1, 2.0)))

	got, err := s.get(0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Reward)
	assert.Equal(t, 2.0, got.State.Vision.AtVec(3))
}

func TestStoreCopyInto(t *testing.T) {
	s := newStore(4, 3, 2, 1)
	require.NoError(t, s.put(0, testTransition(3, 2, 1, 1.0)))
	require.NoError(t, s.put(1, testTransition(3, 2, 1, 2.0)))

	batch := newBatch(2, 3, 2, 1)
	s.copyInto(batch, 0, 1)
	s.copyInto(batch, 1, 0)

	assert.Equal(t, []float64{2.0, 2.0, 2.0, 1.0, 1.0, 1.0}, batch.Visions)
	assert.Equal(t, []float64{2.0, 2.0, 1.0, 1.0}, batch.Proprios)
	assert.Equal(t, []float64{2.0, 1.0}, batch.Actions)
	assert.Equal(t, []float64{2.0, 1.0}, batch.Rewards)
	assert.Equal(t, []float64{0.0, 0.0}, batch.Dones)
}
