// Package policy implements probability distributions over continuous
// actions and latent plans
package policy

import "gonum.org/v1/gonum/mat"

// Distribution represents a probability distribution over fixed-length
// real vectors. Implementations own their random state, so two
// distributions created with the same seed produce identical sample
// streams.
type Distribution interface {
	// Sample draws a new vector from the distribution
	Sample() *mat.VecDense

	// LogProb returns the log density of the distribution at x. The
	// length of x must match the dimensionality of the distribution.
	LogProb(x mat.Vector) (float64, error)

	// Dims returns the length of sampled vectors
	Dims() int
}
