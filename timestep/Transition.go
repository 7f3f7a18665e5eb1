package timestep

import "gonum.org/v1/gonum/mat"

// Transition packages together a single SARS' tuple of the
// agent-environment interaction, together with a flag denoting whether
// the next state ended the episode. Once stored in a replay buffer,
// all fields are non-nil and the action dimensionality is fixed.
type Transition struct {
	State     Observation
	Action    *mat.VecDense
	Reward    float64
	NextState Observation
	Done      bool
}

// NewTransition returns a new Transition between two consecutive
// timesteps, recording the action that caused the transition.
func NewTransition(step TimeStep, action *mat.VecDense,
	nextStep TimeStep) Transition {
	return Transition{
		State:     step.Observation,
		Action:    action,
		Reward:    nextStep.Reward,
		NextState: nextStep.Observation,
		Done:      nextStep.Last(),
	}
}
