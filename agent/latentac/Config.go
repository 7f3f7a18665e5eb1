package latentac

import (
	"fmt"
	"math"

	"github.com/robolearn/golatent/initwfn"
	"github.com/robolearn/golatent/network"
	"github.com/robolearn/golatent/replay"
	"github.com/robolearn/golatent/solver"
)

// Config implements a configuration for a LatentAC agent
type Config struct {
	CriticLayers []int                 // Hidden layer sizes in critic net
	Biases       []bool                // Whether each layer should have a bias
	Activations  []*network.Activation // Activation of each layer
	Solver       *solver.Solver        // Solver for learning critic weights

	// Initialization algorithm for critic weights
	InitWFn *initwfn.InitWFn

	// Prioritized experience replay parameters
	ExpReplay replay.Config
	BatchSize int

	Gamma float64 // Discount factor for TD targets
	Tau   float64 // Polyak averaging constant for the target critic

	// BetaGrowth is added to the replay buffer's importance-correction
	// exponent after every gradient step, annealing it toward 1
	BetaGrowth float64

	// Ornstein-Uhlenbeck exploration noise parameters
	NoiseTheta float64
	NoiseMu    float64
	NoiseSigma float64
	NoiseDt    float64
}

// Validate checks a Config to ensure it is a valid configuration of a
// LatentAC agent.
func (c Config) Validate() error {
	if len(c.CriticLayers) != len(c.Biases) {
		return fmt.Errorf("validate: invalid number of biases\n\twant(%v)"+
			"\n\thave(%v)", len(c.CriticLayers), len(c.Biases))
	}

	if len(c.CriticLayers) != len(c.Activations) {
		return fmt.Errorf("validate: invalid number of activations"+
			"\n\twant(%v)\n\thave(%v)", len(c.CriticLayers),
			len(c.Activations))
	}

	if c.Solver == nil {
		return fmt.Errorf("validate: no solver provided")
	}

	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer provided")
	}

	if err := c.ExpReplay.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}

	if c.BatchSize < 1 {
		return fmt.Errorf("validate: batch size must be positive"+
			"\n\thave(%v)", c.BatchSize)
	}

	if c.Gamma < 0 || c.Gamma > 1 || math.IsNaN(c.Gamma) {
		return fmt.Errorf("validate: discount must be in [0, 1]"+
			"\n\thave(%v)", c.Gamma)
	}

	if c.Tau <= 0 || c.Tau > 1 || math.IsNaN(c.Tau) {
		return fmt.Errorf("validate: tau must be in (0, 1]\n\thave(%v)",
			c.Tau)
	}

	if c.BetaGrowth < 0 || math.IsNaN(c.BetaGrowth) {
		return fmt.Errorf("validate: beta growth must be non-negative"+
			"\n\thave(%v)", c.BetaGrowth)
	}

	return nil
}
