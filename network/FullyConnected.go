package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer implements a single layer of a feedforward neural network
type Layer interface {
	fwd(*G.Node) (*G.Node, error)
	CloneTo(g *G.ExprGraph) Layer

	Weights() *G.Node
	Bias() *G.Node
	Activation() *Activation
}

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	if f.Weights() != nil {
		x = G.Must(G.Mul(x, f.Weights()))
	}
	if f.Bias() != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x = G.Must(G.BroadcastAdd(x, f.Bias(), nil, []byte{0}))
	}
	if f.Activation() == nil || f.Activation().IsNil() ||
		f.Activation().IsIdentity() {
		return x, nil
	}
	return f.Activation().fwd(x)
}

// CloneTo clones an fcLayer to a new computational graph
func (f *fcLayer) CloneTo(g *G.ExprGraph) Layer {
	var newWeights, newBias *G.Node

	if f.Weights() != nil {
		newWeights = f.Weights().CloneTo(g)
	}
	if f.Bias() != nil {
		newBias = f.Bias().CloneTo(g)
	}

	return &fcLayer{
		weights: newWeights,
		bias:    newBias,
		act:     f.act,
	}
}

func (f *fcLayer) Activation() *Activation {
	return f.act
}

func (f *fcLayer) Bias() *G.Node {
	return f.bias
}

func (f *fcLayer) Weights() *G.Node {
	return f.weights
}

// addfcLayers adds the weight and bias nodes for a stack of fully
// connected layers to a computational graph and returns the layers.
// For index i, hiddenSizes[i] is the number of units in layer i,
// biases[i] determines whether layer i has a bias unit, and
// activations[i] is layer i's activation. The prefix and suffix
// parameters disambiguate node names when a single graph holds more
// than one network.
func addfcLayers(g *G.ExprGraph, hiddenSizes []int, biases []bool,
	activations []*Activation, init G.InitWFn, features int,
	prefix, suffix string) []Layer {
	layers := make([]Layer, 0, len(hiddenSizes))

	prev := features
	for i, size := range hiddenSizes {
		weightName := fmt.Sprintf("%vL%dW%v", prefix, i, suffix)
		weights := G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(prev, size),
			G.WithName(weightName),
			G.WithInit(init),
		)

		var bias *G.Node
		if biases[i] {
			biasName := fmt.Sprintf("%vL%dB%v", prefix, i, suffix)
			bias = G.NewVector(
				g,
				tensor.Float64,
				G.WithShape(size),
				G.WithName(biasName),
				G.WithInit(G.Zeroes()),
			)
		}

		layers = append(layers, &fcLayer{
			weights: weights,
			bias:    bias,
			act:     activations[i],
		})
		prev = size
	}

	return layers
}
