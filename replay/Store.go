package replay

import (
	"fmt"

	"github.com/robolearn/golatent/timestep"
	"gonum.org/v1/gonum/mat"
)

// store is the fixed-capacity circular transition store. It owns all
// experience data; the priority index refers to records by slot only.
// Records are kept in flat caches, one row per slot, so that batches
// can be assembled with contiguous copies.
type store struct {
	visionCache      []float64
	proprioCache     []float64
	actionCache      []float64
	rewardCache      []float64
	nextVisionCache  []float64
	nextProprioCache []float64
	doneCache        []float64 // 1.0 for terminal transitions, else 0.0

	// written[slot] is true once slot has held a transition. Slots are
	// overwritten in place, so written never transitions back to false.
	written []bool

	capacity    int
	visionSize  int
	proprioSize int
	actionSize  int
}

// newStore returns an empty transition store with a fixed capacity and
// fixed per-field dimensions. Pixel observations should be flattened
// before storing.
func newStore(capacity, visionSize, proprioSize, actionSize int) *store {
	return &store{
		visionCache:      make([]float64, capacity*visionSize),
		proprioCache:     make([]float64, capacity*proprioSize),
		actionCache:      make([]float64, capacity*actionSize),
		rewardCache:      make([]float64, capacity),
		nextVisionCache:  make([]float64, capacity*visionSize),
		nextProprioCache: make([]float64, capacity*proprioSize),
		doneCache:        make([]float64, capacity),

		written: make([]bool, capacity),

		capacity:    capacity,
		visionSize:  visionSize,
		proprioSize: proprioSize,
		actionSize:  actionSize,
	}
}

// put overwrites the record at slot unconditionally
func (c *store) put(slot int, t timestep.Transition) error {
	if err := c.validate(t); err != nil {
		return err
	}

	visionInd := slot * c.visionSize
	copy(c.visionCache[visionInd:visionInd+c.visionSize],
		t.State.Vision.RawVector().Data)
	copy(c.nextVisionCache[visionInd:visionInd+c.visionSize],
		t.NextState.Vision.RawVector().Data)

	proprioInd := slot * c.proprioSize
	copy(c.proprioCache[proprioInd:proprioInd+c.proprioSize],
		t.State.Proprioception.RawVector().Data)
	copy(c.nextProprioCache[proprioInd:proprioInd+c.proprioSize],
		t.NextState.Proprioception.RawVector().Data)

	actionInd := slot * c.actionSize
	copy(c.actionCache[actionInd:actionInd+c.actionSize],
		t.Action.RawVector().Data)

	c.rewardCache[slot] = t.Reward
	if t.Done {
		c.doneCache[slot] = 1.0
	} else {
		c.doneCache[slot] = 0.0
	}

	c.written[slot] = true
	return nil
}

// get returns a copy of the transition at slot. It is an error to read
// a slot that was never written.
func (c *store) get(slot int) (timestep.Transition, error) {
	if !c.written[slot] {
		return timestep.Transition{}, &ReplayError{
			Op:  "get",
			Err: errUnwrittenSlot,
		}
	}

	visionInd := slot * c.visionSize
	proprioInd := slot * c.proprioSize
	actionInd := slot * c.actionSize

	vision := make([]float64, c.visionSize)
	nextVision := make([]float64, c.visionSize)
	copy(vision, c.visionCache[visionInd:visionInd+c.visionSize])
	copy(nextVision, c.nextVisionCache[visionInd:visionInd+c.visionSize])

	proprio := make([]float64, c.proprioSize)
	nextProprio := make([]float64, c.proprioSize)
	copy(proprio, c.proprioCache[proprioInd:proprioInd+c.proprioSize])
	copy(nextProprio, c.nextProprioCache[proprioInd:proprioInd+c.proprioSize])

	action := make([]float64, c.actionSize)
	copy(action, c.actionCache[actionInd:actionInd+c.actionSize])

	return timestep.Transition{
		State: timestep.NewObservation(
			mat.NewVecDense(c.visionSize, vision),
			mat.NewVecDense(c.proprioSize, proprio),
		),
		Action: mat.NewVecDense(c.actionSize, action),
		Reward: c.rewardCache[slot],
		NextState: timestep.NewObservation(
			mat.NewVecDense(c.visionSize, nextVision),
			mat.NewVecDense(c.proprioSize, nextProprio),
		),
		Done: c.doneCache[slot] != 0.0,
	}, nil
}

// copyInto copies the record at slot into row i of the batch caches
func (c *store) copyInto(b *Batch, i, slot int) {
	batchVisionInd := i * c.visionSize
	visionInd := slot * c.visionSize
	copy(b.Visions[batchVisionInd:batchVisionInd+c.visionSize],
		c.visionCache[visionInd:visionInd+c.visionSize])
	copy(b.NextVisions[batchVisionInd:batchVisionInd+c.visionSize],
		c.nextVisionCache[visionInd:visionInd+c.visionSize])

	batchProprioInd := i * c.proprioSize
	proprioInd := slot * c.proprioSize
	copy(b.Proprios[batchProprioInd:batchProprioInd+c.proprioSize],
		c.proprioCache[proprioInd:proprioInd+c.proprioSize])
	copy(b.NextProprios[batchProprioInd:batchProprioInd+c.proprioSize],
		c.nextProprioCache[proprioInd:proprioInd+c.proprioSize])

	batchActionInd := i * c.actionSize
	actionInd := slot * c.actionSize
	copy(b.Actions[batchActionInd:batchActionInd+c.actionSize],
		c.actionCache[actionInd:actionInd+c.actionSize])

	b.Rewards[i] = c.rewardCache[slot]
	b.Dones[i] = c.doneCache[slot]
}

// validate checks that a transition matches the store's fixed
// dimensions
func (c *store) validate(t timestep.Transition) error {
	if t.State.Vision == nil || t.NextState.Vision == nil ||
		t.State.Proprioception == nil || t.NextState.Proprioception == nil ||
		t.Action == nil {
		return fmt.Errorf("put: transition has nil fields")
	}
	if t.State.Vision.Len() != c.visionSize ||
		t.NextState.Vision.Len() != c.visionSize {
		return fmt.Errorf("put: invalid vision size \n\twant(%v)\n\thave(%v)",
			c.visionSize, t.State.Vision.Len())
	}
	if t.State.Proprioception.Len() != c.proprioSize ||
		t.NextState.Proprioception.Len() != c.proprioSize {
		return fmt.Errorf("put: invalid proprioception size \n\twant(%v)"+
			"\n\thave(%v)", c.proprioSize, t.State.Proprioception.Len())
	}
	if t.Action.Len() != c.actionSize {
		return fmt.Errorf("put: invalid action size \n\twant(%v)\n\thave(%v)",
			c.actionSize, t.Action.Len())
	}
	return nil
}
