// Package replay implements a prioritized experience replay buffer
// with priority-proportional sampling and importance-weight
// correction, following https://arxiv.org/abs/1511.05952.
//
// The buffer composes a fixed-capacity circular transition store with
// a sum-tree priority index. Transitions are stored once per
// environment step, sampled in batches with probability proportional
// to priority^alpha, and re-prioritized after every training step from
// the TD errors the learner computes on the sampled batch.
//
// A buffer has a single logical owner: no operation blocks, suspends,
// or performs I/O, and no operation is safe for concurrent use. A
// multi-actor design must serialize Store, SampleBatch, and
// UpdatePriorities externally.
package replay

import (
	"fmt"
	"math"

	"github.com/robolearn/golatent/timestep"
	"golang.org/x/exp/rand"
)

// defaultPriority is the priority given to the first transition stored
// in an empty buffer, before any TD error has been observed
const defaultPriority float64 = 1.0

// Config implements a specific configuration of a Prioritized replay
// buffer
type Config struct {
	// Capacity is the fixed number of storage slots. Once full, the
	// buffer overwrites its oldest transitions.
	Capacity int

	// Alpha is the sampling-priority exponent: slots are drawn with
	// probability proportional to priority^Alpha. Alpha = 0 degenerates
	// to uniform sampling; large Alpha concentrates sampling on the
	// highest-priority transitions.
	Alpha float64

	// Beta is the importance-correction exponent in (0, 1]. It is
	// usually annealed toward 1 over training via SetBeta.
	Beta float64

	// Epsilon is the priority floor added to every absolute TD error
	// so that no stored transition ever becomes unsampleable.
	Epsilon float64
}

// Validate checks that the Config describes a legal buffer
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("validate: capacity must be positive \n\thave(%v)",
			c.Capacity)
	}
	if c.Alpha < 0 || math.IsNaN(c.Alpha) {
		return fmt.Errorf("validate: alpha must be non-negative \n\thave(%v)",
			c.Alpha)
	}
	if c.Beta <= 0 || c.Beta > 1 || math.IsNaN(c.Beta) {
		return fmt.Errorf("validate: beta must be in (0, 1] \n\thave(%v)",
			c.Beta)
	}
	if c.Epsilon <= 0 || math.IsNaN(c.Epsilon) {
		return fmt.Errorf("validate: epsilon must be positive \n\thave(%v)",
			c.Epsilon)
	}
	return nil
}

// Create creates and returns the Prioritized replay buffer with the
// specified Config. The visionSize, proprioSize, and actionSize
// parameters fix the dimensions of every stored transition for the
// buffer's lifetime.
func (c Config) Create(visionSize, proprioSize, actionSize int,
	seed uint64) (*Prioritized, error) {
	return New(c, visionSize, proprioSize, actionSize, seed)
}

// Batch holds the result of a single SampleBatch call as parallel,
// row-major sequences: row i of every field describes the i'th sampled
// transition. Ids holds the monotonic write id of each sampled
// transition and must be passed back to UpdatePriorities once the
// learner has computed TD errors for the batch. Batches are copies:
// mutating a Batch never mutates the buffer.
type Batch struct {
	Visions      []float64
	Proprios     []float64
	Actions      []float64
	Rewards      []float64
	NextVisions  []float64
	NextProprios []float64
	Dones        []float64

	// Weights holds the normalized importance-sampling weights
	// w_i = (N * P(i))^-beta / max_j w_j, each in (0, 1].
	Weights []float64

	Ids []int
}

func newBatch(batchSize, visionSize, proprioSize, actionSize int) *Batch {
	return &Batch{
		Visions:      make([]float64, batchSize*visionSize),
		Proprios:     make([]float64, batchSize*proprioSize),
		Actions:      make([]float64, batchSize*actionSize),
		Rewards:      make([]float64, batchSize),
		NextVisions:  make([]float64, batchSize*visionSize),
		NextProprios: make([]float64, batchSize*proprioSize),
		Dones:        make([]float64, batchSize),
		Weights:      make([]float64, batchSize),
		Ids:          make([]int, batchSize),
	}
}

// Prioritized implements a prioritized experience replay buffer. The
// buffer owns its transition data and priority entries exclusively;
// sampling returns copies.
//
// Slot ids returned by SampleBatch are monotonic write indices, not
// raw storage positions: the transition with id n occupies storage
// slot n mod capacity until it is overwritten by the transition with
// id n + capacity. UpdatePriorities uses the id to detect that a
// sampled transition has since been overwritten and skips such stale
// updates silently, since applying them would re-prioritize an
// unrelated newer transition.
type Prioritized struct {
	store *store
	tree  *sumTree

	// stamps[slot] is the write id of the transition currently
	// occupying slot
	stamps []int

	alpha   float64
	beta    float64
	epsilon float64

	writeCursor int
	size        int
	capacity    int

	rng *rand.Rand
}

// New creates and returns a new Prioritized replay buffer. The config
// fixes the capacity and the sampling exponents; visionSize,
// proprioSize, and actionSize fix the transition dimensions; seed
// seeds the sampling stream, so two buffers created with the same seed
// and fed identically draw identical batches.
func New(config Config, visionSize, proprioSize, actionSize int,
	seed uint64) (*Prioritized, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if visionSize <= 0 || proprioSize <= 0 || actionSize <= 0 {
		return nil, fmt.Errorf("new: dimensions must be positive "+
			"\n\thave(vision %v, proprioception %v, action %v)",
			visionSize, proprioSize, actionSize)
	}

	return &Prioritized{
		store: newStore(config.Capacity, visionSize, proprioSize, actionSize),
		tree:  newSumTree(config.Capacity, config.Alpha, config.Epsilon),

		stamps: make([]int, config.Capacity),

		alpha:   config.Alpha,
		beta:    config.Beta,
		epsilon: config.Epsilon,

		capacity: config.Capacity,

		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

// Store appends a transition to the buffer, overwriting the oldest
// stored transition once the buffer is full. The new transition's
// priority is the maximum priority currently in the buffer (or a
// default for the very first transition), which guarantees it is
// sampled at least once before its priority decays to its true TD
// error. Store never blocks.
func (p *Prioritized) Store(t timestep.Transition) error {
	slot := p.writeCursor % p.capacity

	if err := p.store.put(slot, t); err != nil {
		return fmt.Errorf("store: %v", err)
	}

	priority := p.tree.maxPriority()
	if priority == 0 {
		priority = defaultPriority
	}
	if err := p.tree.set(slot, priority); err != nil {
		return fmt.Errorf("store: %v", err)
	}

	p.stamps[slot] = p.writeCursor
	p.writeCursor++
	if p.size < p.capacity {
		p.size++
	}
	return nil
}

// SampleBatch draws batchSize transitions with replacement, each with
// probability proportional to priority^alpha, and returns them
// together with their normalized importance-sampling weights and slot
// ids. Duplicate draws within a batch are legal and are not
// deduplicated.
//
// Sampling from an empty buffer is an error (IsEmptyBuffer), as is
// requesting a batch larger than the current number of stored
// transitions (IsInsufficientSamples): the buffer never returns a
// short batch.
func (p *Prioritized) SampleBatch(batchSize int) (*Batch, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("sampleBatch: batch size must be positive "+
			"\n\thave(%v)", batchSize)
	}
	if p.size == 0 {
		return nil, &ReplayError{Op: "sampleBatch", Err: errEmptyBuffer}
	}
	if p.size < batchSize {
		return nil, &ReplayError{Op: "sampleBatch", Err: errInsufficientSamples}
	}

	batch := newBatch(batchSize, p.store.visionSize, p.store.proprioSize,
		p.store.actionSize)

	total := p.tree.total()
	n := float64(p.size)

	maxWeight := 0.0
	for i := 0; i < batchSize; i++ {
		slot := p.tree.sampleOne(p.rng.Float64() * total)

		// P(i) is the sampling probability actually used for the draw,
		// so the weight corrects exactly the bias introduced above
		prob := p.tree.leaf(slot) / total
		weight := math.Pow(n*prob, -p.beta)

		batch.Weights[i] = weight
		if weight > maxWeight {
			maxWeight = weight
		}

		batch.Ids[i] = p.stamps[slot]
		p.store.copyInto(batch, i, slot)
	}

	// Normalizing by the batch maximum keeps every weight <= 1 so the
	// correction only ever scales gradients down
	for i := range batch.Weights {
		batch.Weights[i] /= maxWeight
	}

	return batch, nil
}

// UpdatePriorities re-prioritizes the transitions identified by ids
// using the TD errors computed on them: each new priority is
// |tdError| + epsilon. It must be called after every training step
// that consumed a SampleBatch result; skipping it leaves stale
// priorities in the index.
//
// Every id and TD error is validated before any priority is mutated,
// so a rejected call leaves the index unchanged. Ids whose slot has
// been overwritten since sampling are skipped silently (see the
// Prioritized type documentation); ids never issued by the buffer are
// an error (IsUnknownSlot).
func (p *Prioritized) UpdatePriorities(ids []int, tdErrors []float64) error {
	if len(ids) != len(tdErrors) {
		return fmt.Errorf("updatePriorities: length mismatch between ids "+
			"and TD errors \n\twant(%v)\n\thave(%v)", len(ids), len(tdErrors))
	}

	for _, id := range ids {
		if id < 0 || id >= p.writeCursor {
			return &ReplayError{Op: "updatePriorities", Err: errUnknownSlot}
		}
	}
	for _, tdError := range tdErrors {
		if math.IsNaN(tdError) || math.IsInf(tdError, 0) {
			return &ReplayError{Op: "updatePriorities", Err: errInvalidPriority}
		}
	}

	for i, id := range ids {
		slot := id % p.capacity
		if p.stamps[slot] != id {
			// Overwritten since it was sampled; the priority entry now
			// belongs to a different transition
			continue
		}
		if err := p.tree.set(slot, math.Abs(tdErrors[i])+p.epsilon); err != nil {
			return fmt.Errorf("updatePriorities: %v", err)
		}
	}
	return nil
}

// SetBeta updates the importance-correction exponent. Annealing
// schedules live in the training loop, which typically moves beta
// toward 1 as training converges.
func (p *Prioritized) SetBeta(beta float64) error {
	if beta <= 0 || beta > 1 || math.IsNaN(beta) {
		return fmt.Errorf("setBeta: beta must be in (0, 1] \n\thave(%v)", beta)
	}
	p.beta = beta
	return nil
}

// Beta returns the current importance-correction exponent
func (p *Prioritized) Beta() float64 {
	return p.beta
}

// Alpha returns the sampling-priority exponent
func (p *Prioritized) Alpha() float64 {
	return p.alpha
}

// Size returns the number of transitions currently stored, capped at
// Capacity()
func (p *Prioritized) Size() int {
	return p.size
}

// Capacity returns the fixed number of storage slots
func (p *Prioritized) Capacity() int {
	return p.capacity
}

// MaxPriority returns the maximum raw priority currently held by any
// stored transition
func (p *Prioritized) MaxPriority() float64 {
	return p.tree.maxPriority()
}

// Get returns a copy of the transition currently occupying the storage
// slot of the given id, regardless of whether the id itself is stale.
func (p *Prioritized) Get(id int) (timestep.Transition, error) {
	if id < 0 || id >= p.writeCursor {
		return timestep.Transition{}, &ReplayError{
			Op:  "get",
			Err: errUnknownSlot,
		}
	}
	return p.store.get(id % p.capacity)
}

// String returns the string representation of the buffer
func (p *Prioritized) String() string {
	return fmt.Sprintf("Prioritized | size: %v/%v | alpha: %v | beta: %v | "+
		"total mass: %v | max priority: %v", p.size, p.capacity, p.alpha,
		p.beta, p.tree.total(), p.tree.maxPriority())
}
