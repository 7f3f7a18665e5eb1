// Package network implements feedforward neural networks on gorgonia
// computational graphs
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NeuralNet implements a neural network on a gorgonia computational
// graph. A NeuralNet owns its input node: SetInput stores a value in
// the node, and the prediction becomes available from Output() once
// a VM has run the graph.
type NeuralNet interface {
	Graph() *G.ExprGraph
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)
	BatchSize() int
	Features() int
	Outputs() int
	SetInput([]float64) error
	Learnables() G.Nodes
	Model() []G.ValueGrad
	Output() []G.Value
	Prediction() []*G.Node
}

// Set sets the weights of dest to be equal to the weights of source.
// The networks must share an architecture so that their learnables
// correspond one to one.
func Set(dest, source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	if len(nodes) != len(sourceNodes) {
		return fmt.Errorf("set: networks have different learnables "+
			"\n\twant(%v)\n\thave(%v)", len(nodes), len(sourceNodes))
	}

	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}

// Polyak sets the weights of dest to a Polyak average between its
// existing weights and the weights of source:
//
//	dest ← (1 - τ) dest + τ source
//
// Target networks use this with a small τ so that bootstrap targets
// drift slowly behind the trained network.
func Polyak(dest, source NeuralNet, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	if len(nodes) != len(sourceNodes) {
		return fmt.Errorf("polyak: networks have different learnables "+
			"\n\twant(%v)\n\thave(%v)", len(nodes), len(sourceNodes))
	}

	for i := range nodes {
		weights := nodes[i].Value().(*tensor.Dense)
		sourceWeights := sourceNodes[i].Value().(*tensor.Dense)

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return err
		}

		sourceWeights, err = sourceWeights.MulScalar(tau, true)
		if err != nil {
			return err
		}

		var newWeights *tensor.Dense
		newWeights, err = weights.Add(sourceWeights)
		if err != nil {
			return err
		}

		err = G.Let(nodes[i], newWeights)
		if err != nil {
			return err
		}
	}
	return nil
}
