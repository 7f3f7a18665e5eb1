package policy

import (
	"fmt"
	"math"

	"github.com/robolearn/golatent/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distuv"
)

// logisticMixtureBounds is the support of every sampled component.
// Samples are clipped here so that downstream consumers always see
// actions and latent plans in the normalized range.
var logisticMixtureBounds r1.Interval = r1.Interval{Min: -1.0, Max: 1.0}

// uniformGuard keeps inverse-CDF draws away from the endpoints of
// (0, 1), where the logistic quantile function diverges
const uniformGuard float64 = 1e-12

// LogisticMixture is a mixture of logistic distributions, factored per
// vector dimension: each dimension is an independent mixture of
// components logistic components, with its own mixing logits, means,
// and log scales. Samples are clipped to [-1, 1].
//
// LogisticMixture satisfies the Distribution interface.
type LogisticMixture struct {
	dims       int
	components int

	// Row d of each matrix parameterizes dimension d's mixture
	logits    *mat.Dense
	means     *mat.Dense
	logScales *mat.Dense

	// logWeights caches the log of the normalized mixing weights,
	// computed once from the logits
	logWeights *mat.Dense

	mixing  []distuv.Categorical
	uniform distuv.Uniform
}

// NewLogisticMixture returns a new mixture of logistics over vectors
// with as many dimensions as the parameter matrices have rows. The
// three matrices must have equal shape; column k of row d gives
// component k's mixing logit, mean, and log scale for dimension d.
func NewLogisticMixture(logits, means, logScales *mat.Dense,
	seed uint64) (*LogisticMixture, error) {
	dims, components := logits.Dims()

	if r, c := means.Dims(); r != dims || c != components {
		return nil, fmt.Errorf("newLogisticMixture: means shape does not "+
			"match logits \n\twant(%v x %v)\n\thave(%v x %v)", dims, components,
			r, c)
	}
	if r, c := logScales.Dims(); r != dims || c != components {
		return nil, fmt.Errorf("newLogisticMixture: log scales shape does "+
			"not match logits \n\twant(%v x %v)\n\thave(%v x %v)", dims,
			components, r, c)
	}
	for d := 0; d < dims; d++ {
		for k := 0; k < components; k++ {
			if math.IsNaN(logits.At(d, k)) || math.IsNaN(means.At(d, k)) ||
				math.IsNaN(logScales.At(d, k)) {
				return nil, fmt.Errorf("newLogisticMixture: NaN parameter at "+
					"dimension %v component %v", d, k)
			}
		}
	}

	source := rand.NewSource(seed)

	logWeights := mat.NewDense(dims, components, nil)
	mixing := make([]distuv.Categorical, dims)
	row := make([]float64, components)
	for d := 0; d < dims; d++ {
		mat.Row(row, d, logits)
		norm := floats.LogSumExp(row)

		weights := make([]float64, components)
		for k := 0; k < components; k++ {
			logWeights.Set(d, k, row[k]-norm)
			weights[k] = math.Exp(row[k] - norm)
		}
		mixing[d] = distuv.NewCategorical(weights, source)
	}

	return &LogisticMixture{
		dims:       dims,
		components: components,
		logits:     logits,
		means:      means,
		logScales:  logScales,
		logWeights: logWeights,
		mixing:     mixing,
		uniform: distuv.Uniform{
			Min: uniformGuard,
			Max: 1.0 - uniformGuard,
			Src: source,
		},
	}, nil
}

// Sample draws a vector by, independently per dimension, choosing a
// component from the mixing distribution and inverting the logistic
// CDF at a uniform draw. The result is clipped to [-1, 1].
func (l *LogisticMixture) Sample() *mat.VecDense {
	out := mat.NewVecDense(l.dims, nil)
	for d := 0; d < l.dims; d++ {
		k := int(l.mixing[d].Rand())

		u := l.uniform.Rand()
		scale := math.Exp(l.logScales.At(d, k))
		x := l.means.At(d, k) + scale*math.Log(u/(1.0-u))

		out.SetVec(d, floatutils.ClipInterval(x, logisticMixtureBounds))
	}
	return out
}

// LogProb returns the log density at x, summed over dimensions. The
// clipping applied by Sample is ignored: the density is that of the
// unclipped mixture.
func (l *LogisticMixture) LogProb(x mat.Vector) (float64, error) {
	if x.Len() != l.dims {
		return math.Inf(-1), fmt.Errorf("logProb: invalid vector length "+
			"\n\twant(%v)\n\thave(%v)", l.dims, x.Len())
	}

	logProb := 0.0
	terms := make([]float64, l.components)
	for d := 0; d < l.dims; d++ {
		for k := 0; k < l.components; k++ {
			terms[k] = l.logWeights.At(d, k) +
				logisticLogPdf(x.AtVec(d), l.means.At(d, k), l.logScales.At(d, k))
		}
		logProb += floats.LogSumExp(terms)
	}
	return logProb, nil
}

// Dims returns the length of sampled vectors
func (l *LogisticMixture) Dims() int {
	return l.dims
}

// logisticLogPdf returns the log density of a logistic distribution
// with the given mean and log scale at x
func logisticLogPdf(x, mean, logScale float64) float64 {
	z := (x - mean) / math.Exp(logScale)
	return -z - logScale - 2.0*floatutils.Softplus(-z)
}
