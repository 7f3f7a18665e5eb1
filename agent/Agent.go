// Package agent defines the agent interfaces for latent-space control
package agent

import (
	"github.com/robolearn/golatent/policy"
	"github.com/robolearn/golatent/timestep"
	"gonum.org/v1/gonum/mat"
)

// Agent determines the implementation details of an agent or algorithm
//
// An Agent is composed of a Learner, which learns weights, and a Policy
// which chooses actions in each state. The Policy chooses which actions
// are taken, and the Learner uses these actions to update the Policy.
type Agent interface {
	Learner
	Policy
}

// Learner implements a learning algorithm that defines how weights are
// updated.
type Learner interface {
	// Step performs a single update to the learner
	Step() error

	// Observe records that an action lead to some timestep
	Observe(action mat.Vector, nextObs timestep.TimeStep) error

	// ObserveFirst records the first timestep in an episode
	ObserveFirst(timestep.TimeStep) error

	// EndEpisode performs cleanup at the end of an episode
	EndEpisode()
}

// TdErrorer is a Learner that can return the TdError of some transition
type TdErrorer interface {
	Learner

	// TdError returns the TD error on a transition
	TdError(t timestep.Transition) float64
}

// Policy represents a policy that an agent can have.
//
// Policies determine how agents select actions. Agents usually have a
// target and behaviour policy. For a given agent, the Policy and Learner
// should have pointers to the same weights so that any changes the learner
// makes to the weights are reflected in the actions the Policy chooses
type Policy interface {
	SelectAction(t timestep.TimeStep) *mat.VecDense
	Eval()        // Set policy to evaluation mode
	Train()       // Set policy to training mode
	IsEval() bool // Indicates if in evaluation mode
}

// Embedder maps a raw vision observation into the learned latent
// space. The pretrained world model provides the implementation; the
// fine-tuning loop treats it as a fixed black box.
type Embedder interface {
	// Embed returns the latent embedding of a flattened vision
	// observation
	Embed(vision mat.Vector) (*mat.VecDense, error)
}

// Proposer generates distributions over latent plans conditioned on
// the current latent state, proprioception, and the goal embedding.
type Proposer interface {
	Propose(visionEmbed, proprioception,
		goalEmbed mat.Vector) (policy.Distribution, error)
}

// Actor generates distributions over low-level actions conditioned on
// the current latent state, proprioception, a latent plan, and the
// goal embedding.
type Actor interface {
	Act(visionEmbed, proprioception, latent,
		goalEmbed mat.Vector) (policy.Distribution, error)
}
