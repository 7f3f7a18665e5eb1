// Package noise implements exploration noise processes for continuous
// action spaces
package noise

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Default Ornstein-Uhlenbeck parameters, matching the common DDPG
// exploration settings
const (
	DefaultTheta float64 = 0.15
	DefaultMu    float64 = 0.0
	DefaultSigma float64 = 0.2
	DefaultDt    float64 = 1e-2
)

// OrnsteinUhlenbeck implements a temporally correlated noise process
// for exploration in continuous action spaces. Each call to Sample
// advances the process state by
//
//	x ← x + θ(μ - x)dt + σ√dt ε,    ε ~ N(0, 1)
//
// independently per action dimension, so consecutive samples are
// correlated and revert toward μ. The process is stateful and is not
// safe for concurrent use.
type OrnsteinUhlenbeck struct {
	theta float64
	mu    float64
	sigma float64
	dt    float64

	state  *mat.VecDense
	normal distuv.Normal
}

// NewOrnsteinUhlenbeck returns a new Ornstein-Uhlenbeck process
// producing noise vectors with dims components. The process starts at
// μ in every dimension.
func NewOrnsteinUhlenbeck(dims int, theta, mu, sigma, dt float64,
	seed uint64) (*OrnsteinUhlenbeck, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("newOrnsteinUhlenbeck: dims must be positive "+
			"\n\thave(%v)", dims)
	}
	if sigma < 0 || theta < 0 || dt <= 0 {
		return nil, fmt.Errorf("newOrnsteinUhlenbeck: illegal process "+
			"parameters \n\thave(theta %v, sigma %v, dt %v)", theta, sigma, dt)
	}

	source := rand.NewSource(seed)
	normal := distuv.Normal{Mu: 0.0, Sigma: 1.0, Src: source}

	o := &OrnsteinUhlenbeck{
		theta:  theta,
		mu:     mu,
		sigma:  sigma,
		dt:     dt,
		normal: normal,
	}
	o.state = o.start(dims)
	return o, nil
}

// Sample advances the process one step and returns a copy of the new
// noise vector
func (o *OrnsteinUhlenbeck) Sample() *mat.VecDense {
	scale := o.sigma * math.Sqrt(o.dt)
	for i := 0; i < o.state.Len(); i++ {
		x := o.state.AtVec(i)
		dx := o.theta*(o.mu-x)*o.dt + scale*o.normal.Rand()
		o.state.SetVec(i, x+dx)
	}

	out := mat.NewVecDense(o.state.Len(), nil)
	out.CopyVec(o.state)
	return out
}

// Reset returns the process state to μ. Call between episodes so that
// exploration noise does not carry over episode boundaries.
func (o *OrnsteinUhlenbeck) Reset() {
	o.state = o.start(o.state.Len())
}

func (o *OrnsteinUhlenbeck) start(dims int) *mat.VecDense {
	state := mat.NewVecDense(dims, nil)
	for i := 0; i < dims; i++ {
		state.SetVec(i, o.mu)
	}
	return state
}
