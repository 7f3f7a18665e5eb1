package timestep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func testObservation(value float64) Observation {
	vision := mat.NewVecDense(4, []float64{value, value, value, value})
	proprio := mat.NewVecDense(2, []float64{value, value})
	return NewObservation(vision, proprio)
}

func TestTimeStepTypes(t *testing.T) {
	first := New(First, 0.0, testObservation(0.0), 0)
	mid := New(Mid, 1.0, testObservation(1.0), 1)
	last := New(Last, -1.0, testObservation(2.0), 2)

	assert.True(t, first.First())
	assert.False(t, first.Last())

	assert.True(t, mid.Mid())
	assert.False(t, mid.First())

	assert.True(t, last.Last())
	assert.False(t, last.Mid())
}

func TestNewTransition(t *testing.T) {
	step := New(Mid, 0.5, testObservation(1.0), 3)
	nextStep := New(Mid, 2.0, testObservation(2.0), 4)
	action := mat.NewVecDense(2, []float64{0.1, -0.1})

	transition := NewTransition(step, action, nextStep)

	// The reward belongs to the step the action produced
	assert.Equal(t, 2.0, transition.Reward)
	assert.False(t, transition.Done)
	assert.Equal(t, 1.0, transition.State.Vision.AtVec(0))
	assert.Equal(t, 2.0, transition.NextState.Vision.AtVec(0))
	assert.Equal(t, 0.1, transition.Action.AtVec(0))
}

func TestNewTransitionDone(t *testing.T) {
	step := New(Mid, 0.0, testObservation(1.0), 5)
	terminal := New(Last, 1.0, testObservation(2.0), 6)
	action := mat.NewVecDense(2, nil)

	transition := NewTransition(step, action, terminal)
	assert.True(t, transition.Done)
}
