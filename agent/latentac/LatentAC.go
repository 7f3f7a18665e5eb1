// Package latentac implements an actor-critic fine-tuner that operates
// in the latent space of a pretrained world model. The world model's
// embedder, plan proposer, and actor are treated as fixed collaborators;
// the package trains a Q critic over latent features and closes the
// prioritized replay loop by re-prioritizing sampled transitions with
// the TD errors of each critic update.
package latentac

import (
	"fmt"
	"math"
	"os"

	"github.com/robolearn/golatent/agent"
	"github.com/robolearn/golatent/network"
	"github.com/robolearn/golatent/noise"
	"github.com/robolearn/golatent/replay"
	"github.com/robolearn/golatent/timestep"
	"github.com/robolearn/golatent/utils/floatutils"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// actionBound is the action range the manipulator accepts
const actionBound float64 = 1.0

// LatentAC implements latent-space actor-critic fine-tuning with
// prioritized experience replay.
//
// The critic is trained on feature rows [visionEmbed, proprioception,
// action]. A target critic, updated by Polyak averaging, provides the
// bootstrap target r + γ Q'(s', a') (1 - done). The TD errors of every
// gradient step are fed back into the replay buffer as new priorities.
type LatentAC struct {
	embedder agent.Embedder
	proposer agent.Proposer
	actor    agent.Actor

	goalEmbed *mat.VecDense

	replay  *replay.Prioritized
	ouNoise *noise.OrnsteinUhlenbeck

	// Critic whose weights are adapted, with batchSize inputs
	trainCritic   network.NeuralNet
	trainCriticVM G.VM
	solver        G.Solver

	// Critic that provides the update target for a batch of inputs
	targetCritic   network.NeuralNet
	targetCriticVM G.VM

	// Single-input copies of the critics for computing the TD error of
	// individual transitions. Kept in sync with the batch critics after
	// every gradient step.
	evalCritic   network.NeuralNet
	evalCriticVM G.VM
	evalTarget   network.NeuralNet
	evalTargetVM G.VM

	// Input nodes in the graph of trainCritic holding the bootstrap
	// targets and the importance-sampling weights of the sampled batch
	targets   *G.Node
	isWeights *G.Node

	// tdErrVal holds targets - Q(s, a) for the last gradient step
	tdErrVal G.Value

	gamma      float64
	tau        float64
	betaGrowth float64

	// Keep track of previous states and actions to add to replay buffer
	prevStep   timestep.TimeStep
	prevAction *mat.VecDense
	nextStep   timestep.TimeStep

	batchSize   int
	embedSize   int
	proprioSize int
	actionSize  int
	eval        bool
}

// New creates and returns a new LatentAC agent. The embedder,
// proposer, and actor are the pretrained world-model components; the
// goalVision parameter is the flattened goal image, embedded once at
// construction. The visionSize, proprioSize, and actionSize parameters
// fix the dimensions of stored transitions.
func New(config Config, embedder agent.Embedder, proposer agent.Proposer,
	actor agent.Actor, goalVision mat.Vector, visionSize, proprioSize,
	actionSize int, seed uint64) (*LatentAC, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	goalEmbed, err := embedder.Embed(goalVision)
	if err != nil {
		return nil, fmt.Errorf("new: could not embed goal image: %v", err)
	}
	embedSize := goalEmbed.Len()
	features := embedSize + proprioSize + actionSize
	batchSize := config.BatchSize

	// Create a training critic which learns the weights
	g := G.NewGraph()
	trainCritic, err := network.NewSingleHeadMLP(features, batchSize, g,
		config.CriticLayers, config.Biases, config.InitWFn.InitWFn(),
		config.Activations)
	if err != nil {
		return nil, fmt.Errorf("new: could not create critic: %v", err)
	}

	// Create nodes holding the update target r + γ Q'(s', a')(1 - done)
	// and the importance-sampling weights of the sampled batch
	targets := G.NewMatrix(g, tensor.Float64,
		G.WithShape(batchSize, 1), G.WithName("targets"))
	isWeights := G.NewMatrix(g, tensor.Float64,
		G.WithShape(batchSize, 1), G.WithName("isWeights"))

	prediction := trainCritic.Prediction()[0]

	// The TD errors are read out after every gradient step and become
	// the new priorities of the sampled transitions
	agentLac := LatentAC{}
	tdErrs := G.Must(G.Sub(targets, prediction))
	G.Read(tdErrs, &agentLac.tdErrVal)

	// Compute the importance-weighted mean squared TD error
	losses := G.Must(G.Square(tdErrs))
	losses = G.Must(G.HadamardProd(isWeights, losses))
	cost := G.Must(G.Mean(losses))

	// Compute the gradient with respect to the weighted TD error
	_, err = G.Grad(cost, trainCritic.Learnables()...)
	if err != nil {
		return nil, fmt.Errorf("new: could not compute gradient: %v", err)
	}

	// Compile the training graph into a VM
	trainCriticVM := G.NewTapeMachine(g,
		G.BindDualValues(trainCritic.Learnables()...))

	// Create the target critic which provides the update target
	targetCritic, err := trainCritic.Clone()
	if err != nil {
		return nil, fmt.Errorf("new: could not create target critic: %v", err)
	}
	targetCriticVM := G.NewTapeMachine(targetCritic.Graph())

	// Single-input critics for per-transition TD errors
	evalCritic, err := trainCritic.CloneWithBatch(1)
	if err != nil {
		return nil, fmt.Errorf("new: could not create eval critic: %v", err)
	}
	evalCriticVM := G.NewTapeMachine(evalCritic.Graph())

	evalTarget, err := trainCritic.CloneWithBatch(1)
	if err != nil {
		return nil, fmt.Errorf("new: could not create eval target "+
			"critic: %v", err)
	}
	evalTargetVM := G.NewTapeMachine(evalTarget.Graph())

	// Create the prioritized replay buffer
	buffer, err := config.ExpReplay.Create(visionSize, proprioSize,
		actionSize, seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create replay buffer: %v", err)
	}

	// Exploration noise, one dimension per actuator
	ouNoise, err := noise.NewOrnsteinUhlenbeck(actionSize, config.NoiseTheta,
		config.NoiseMu, config.NoiseSigma, config.NoiseDt, seed+1)
	if err != nil {
		return nil, fmt.Errorf("new: could not create exploration "+
			"noise: %v", err)
	}

	agentLac.embedder = embedder
	agentLac.proposer = proposer
	agentLac.actor = actor
	agentLac.goalEmbed = goalEmbed
	agentLac.replay = buffer
	agentLac.ouNoise = ouNoise
	agentLac.trainCritic = trainCritic
	agentLac.trainCriticVM = trainCriticVM
	agentLac.solver = config.Solver
	agentLac.targetCritic = targetCritic
	agentLac.targetCriticVM = targetCriticVM
	agentLac.evalCritic = evalCritic
	agentLac.evalCriticVM = evalCriticVM
	agentLac.evalTarget = evalTarget
	agentLac.evalTargetVM = evalTargetVM
	agentLac.targets = targets
	agentLac.isWeights = isWeights
	agentLac.gamma = config.Gamma
	agentLac.tau = config.Tau
	agentLac.betaGrowth = config.BetaGrowth
	agentLac.batchSize = batchSize
	agentLac.embedSize = embedSize
	agentLac.proprioSize = proprioSize
	agentLac.actionSize = actionSize

	return &agentLac, nil
}

// ObserveFirst observes and records the first episodic timestep
func (l *LatentAC) ObserveFirst(t timestep.TimeStep) error {
	if !t.First() {
		fmt.Fprintf(os.Stderr, "Warning: ObserveFirst() should only be "+
			"called on the first timestep (current timestep = %d)", t.Number)
	}
	l.prevStep = timestep.TimeStep{}
	l.prevAction = nil
	l.nextStep = t
	return nil
}

// Observe observes and records any timestep other than the first
// timestep, storing the completed transition in the replay buffer
func (l *LatentAC) Observe(action mat.Vector, nextStep timestep.TimeStep) error {
	if !l.nextStep.First() {
		transition := timestep.NewTransition(l.prevStep, l.prevAction,
			l.nextStep)
		if err := l.replay.Store(transition); err != nil {
			return fmt.Errorf("observe: could not store transition: %v", err)
		}
	}

	// Update internal variables
	actionCopy := mat.NewVecDense(action.Len(), nil)
	for i := 0; i < action.Len(); i++ {
		actionCopy.SetVec(i, action.AtVec(i))
	}
	l.prevStep = l.nextStep
	l.prevAction = actionCopy
	l.nextStep = nextStep
	return nil
}

// Step updates the weights of the agent's critic. The sampled batch's
// TD errors become the new priorities of the sampled transitions, and
// the importance-correction exponent is annealed toward 1.
func (l *LatentAC) Step() error {
	// Don't update if the replay buffer has insufficient samples
	batch, err := l.replay.SampleBatch(l.batchSize)
	if replay.IsEmptyBuffer(err) || replay.IsInsufficientSamples(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("step: could not sample batch: %v", err)
	}

	stateFeatures, nextFeatures, err := l.batchFeatures(batch)
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}

	// Predict the action values of the next states
	if err := l.targetCritic.SetInput(nextFeatures); err != nil {
		return fmt.Errorf("step: could not set target critic input: %v", err)
	}
	if err := l.targetCriticVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run target critic: %v", err)
	}
	nextQ := l.targetCritic.Output()[0].Data().([]float64)

	// Compute the update targets r + γ Q'(s', a')(1 - done)
	targets := make([]float64, l.batchSize)
	for i := 0; i < l.batchSize; i++ {
		targets[i] = batch.Rewards[i] +
			l.gamma*nextQ[i]*(1.0-batch.Dones[i])
	}
	l.targetCriticVM.Reset()

	targetTensor := tensor.New(tensor.WithBacking(targets),
		tensor.WithShape(l.batchSize, 1))
	if err := G.Let(l.targets, targetTensor); err != nil {
		return fmt.Errorf("step: could not set targets: %v", err)
	}

	weightTensor := tensor.New(tensor.WithBacking(batch.Weights),
		tensor.WithShape(l.batchSize, 1))
	if err := G.Let(l.isWeights, weightTensor); err != nil {
		return fmt.Errorf("step: could not set importance weights: %v", err)
	}

	// Run the learning step
	if err := l.trainCritic.SetInput(stateFeatures); err != nil {
		return fmt.Errorf("step: could not set critic input: %v", err)
	}
	if err := l.trainCriticVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run critic update: %v", err)
	}

	// Re-prioritize the sampled transitions with their TD errors
	tdErrs := make([]float64, l.batchSize)
	copy(tdErrs, l.tdErrVal.Data().([]float64))
	if err := l.replay.UpdatePriorities(batch.Ids, tdErrs); err != nil {
		return fmt.Errorf("step: could not update priorities: %v", err)
	}

	if err := l.solver.Step(l.trainCritic.Model()); err != nil {
		return fmt.Errorf("step: could not step solver: %v", err)
	}
	l.trainCriticVM.Reset()

	// Move the target critic toward the trained critic
	if err := network.Polyak(l.targetCritic, l.trainCritic,
		l.tau); err != nil {
		return fmt.Errorf("step: could not update target critic: %v", err)
	}

	// Keep the single-input critics in sync
	if err := network.Set(l.evalCritic, l.trainCritic); err != nil {
		return fmt.Errorf("step: could not sync eval critic: %v", err)
	}
	if err := network.Set(l.evalTarget, l.targetCritic); err != nil {
		return fmt.Errorf("step: could not sync eval target critic: %v", err)
	}

	// Anneal the importance correction toward full strength
	beta := math.Min(1.0, l.replay.Beta()+l.betaGrowth)
	return l.replay.SetBeta(beta)
}

// SelectAction returns an action for the argument timestep. In
// training mode, Ornstein-Uhlenbeck noise is added to the actor's
// sampled action; the result is always clipped to the actuator bounds.
func (l *LatentAC) SelectAction(t timestep.TimeStep) *mat.VecDense {
	action, err := l.policyAction(t.Observation.Vision,
		t.Observation.Proprioception)
	if err != nil {
		panic(fmt.Sprintf("selectaction: %v", err))
	}

	if !l.eval {
		action.AddVec(action, l.ouNoise.Sample())
	}
	for i := 0; i < action.Len(); i++ {
		action.SetVec(i, floatutils.Clip(action.AtVec(i), -actionBound,
			actionBound))
	}
	return action
}

// TdError calculates the TD error generated by the learner on some
// transition.
func (l *LatentAC) TdError(t timestep.Transition) float64 {
	stateEmbed, err := l.embedder.Embed(t.State.Vision)
	if err != nil {
		panic(fmt.Sprintf("tderror: could not embed state: %v", err))
	}
	nextEmbed, err := l.embedder.Embed(t.NextState.Vision)
	if err != nil {
		panic(fmt.Sprintf("tderror: could not embed next state: %v", err))
	}

	// Q(s, a)
	l.evalCritic.SetInput(l.featureRow(stateEmbed, t.State.Proprioception,
		t.Action))
	l.evalCriticVM.RunAll()
	q := scalarOutput(l.evalCritic.Output()[0])
	l.evalCriticVM.Reset()

	// Q'(s', a') under the target critic, with a' from the actor
	nextAction, err := l.policyAction(t.NextState.Vision,
		t.NextState.Proprioception)
	if err != nil {
		panic(fmt.Sprintf("tderror: could not select next action: %v", err))
	}
	l.evalTarget.SetInput(l.featureRow(nextEmbed,
		t.NextState.Proprioception, nextAction))
	l.evalTargetVM.RunAll()
	nextQ := scalarOutput(l.evalTarget.Output()[0])
	l.evalTargetVM.Reset()

	done := 0.0
	if t.Done {
		done = 1.0
	}
	return t.Reward + l.gamma*nextQ*(1.0-done) - q
}

// EndEpisode performs cleanup at the end of an episode
func (l *LatentAC) EndEpisode() {
	l.ouNoise.Reset()
}

// Eval sets the agent into evaluation mode
func (l *LatentAC) Eval() {
	l.eval = true
}

// Train sets the agent into training mode
func (l *LatentAC) Train() {
	l.eval = false
}

// IsEval returns whether the agent is in evaluation mode
func (l *LatentAC) IsEval() bool {
	return l.eval
}

// Buffer returns the agent's prioritized replay buffer
func (l *LatentAC) Buffer() *replay.Prioritized {
	return l.replay
}

// policyAction embeds the vision observation, proposes a latent plan,
// and samples an action from the actor's distribution
func (l *LatentAC) policyAction(vision,
	proprioception mat.Vector) (*mat.VecDense, error) {
	visionEmbed, err := l.embedder.Embed(vision)
	if err != nil {
		return nil, fmt.Errorf("could not embed observation: %v", err)
	}

	planDist, err := l.proposer.Propose(visionEmbed, proprioception,
		l.goalEmbed)
	if err != nil {
		return nil, fmt.Errorf("could not propose latent plan: %v", err)
	}
	latent := planDist.Sample()

	actionDist, err := l.actor.Act(visionEmbed, proprioception, latent,
		l.goalEmbed)
	if err != nil {
		return nil, fmt.Errorf("could not generate action "+
			"distribution: %v", err)
	}
	return actionDist.Sample(), nil
}

// scalarOutput extracts the single float64 a batch-1 critic produces.
// Gorgonia values back 1x1 matrices with either a scalar or a
// one-element slice depending on how the tensor was materialized.
func scalarOutput(value G.Value) float64 {
	switch data := value.Data().(type) {
	case float64:
		return data
	case []float64:
		return data[0]
	default:
		panic(fmt.Sprintf("scalaroutput: unexpected critic output type %T",
			data))
	}
}

// featureRow assembles a single critic input row
// [visionEmbed, proprioception, action]
func (l *LatentAC) featureRow(visionEmbed, proprioception,
	action mat.Vector) []float64 {
	row := make([]float64, 0, l.embedSize+l.proprioSize+l.actionSize)
	for i := 0; i < visionEmbed.Len(); i++ {
		row = append(row, visionEmbed.AtVec(i))
	}
	for i := 0; i < proprioception.Len(); i++ {
		row = append(row, proprioception.AtVec(i))
	}
	for i := 0; i < action.Len(); i++ {
		row = append(row, action.AtVec(i))
	}
	return row
}

// batchFeatures assembles the critic input rows for a sampled batch.
// The state rows pair each stored state with its stored action; the
// next-state rows pair each next state with a fresh action from the
// actor, which provides Q'(s', a') for the update target.
func (l *LatentAC) batchFeatures(batch *replay.Batch) ([]float64,
	[]float64, error) {
	visionSize := len(batch.Visions) / l.batchSize

	features := l.embedSize + l.proprioSize + l.actionSize
	stateFeatures := make([]float64, 0, l.batchSize*features)
	nextFeatures := make([]float64, 0, l.batchSize*features)

	for i := 0; i < l.batchSize; i++ {
		vision := mat.NewVecDense(visionSize,
			batch.Visions[i*visionSize:(i+1)*visionSize])
		proprio := mat.NewVecDense(l.proprioSize,
			batch.Proprios[i*l.proprioSize:(i+1)*l.proprioSize])
		action := mat.NewVecDense(l.actionSize,
			batch.Actions[i*l.actionSize:(i+1)*l.actionSize])

		visionEmbed, err := l.embedder.Embed(vision)
		if err != nil {
			return nil, nil, fmt.Errorf("could not embed state %v: %v", i, err)
		}
		stateFeatures = append(stateFeatures,
			l.featureRow(visionEmbed, proprio, action)...)

		nextVision := mat.NewVecDense(visionSize,
			batch.NextVisions[i*visionSize:(i+1)*visionSize])
		nextProprio := mat.NewVecDense(l.proprioSize,
			batch.NextProprios[i*l.proprioSize:(i+1)*l.proprioSize])

		nextEmbed, err := l.embedder.Embed(nextVision)
		if err != nil {
			return nil, nil, fmt.Errorf("could not embed next state %v: %v",
				i, err)
		}
		nextAction, err := l.policyAction(nextVision, nextProprio)
		if err != nil {
			return nil, nil, fmt.Errorf("could not select next action "+
				"%v: %v", i, err)
		}
		nextFeatures = append(nextFeatures,
			l.featureRow(nextEmbed, nextProprio, nextAction)...)
	}

	return stateFeatures, nextFeatures, nil
}
