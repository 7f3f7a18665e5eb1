package replay

import (
	"fmt"
	"math"
)

// sumTree is the priority index of the replay buffer: a binary tree
// over a fixed number of leaves, one leaf per storage slot. Leaf i
// holds priority[i]^alpha and every internal node holds the sum of its
// subtree, so drawing a uniform value in [0, total()) and walking the
// tree from the root selects slot i with probability proportional to
// priority[i]^alpha. Point updates and draws are both O(log capacity).
//
// A second tree of identical shape tracks the subtree maximum of the
// raw (untransformed) priorities so that maxPriority() is an O(1) read
// of the exact current maximum, even after priorities decrease.
type sumTree struct {
	sums  []float64 // 2*capacity - 1 nodes; leaves at [capacity-1:]
	maxes []float64 // subtree maxima of the raw priorities

	capacity int
	alpha    float64
	floor    float64 // minimum raw priority; keeps every slot sampleable
}

// newSumTree returns an empty priority index over capacity leaves.
// Leaves start at priority 0 and carry no sampling mass until set is
// called for their slot.
func newSumTree(capacity int, alpha, floor float64) *sumTree {
	return &sumTree{
		sums:     make([]float64, 2*capacity-1),
		maxes:    make([]float64, 2*capacity-1),
		capacity: capacity,
		alpha:    alpha,
		floor:    floor,
	}
}

// set records a new priority for a slot, clamping it below by the
// floor, and propagates the change up to the root. The priority is
// validated before any node is touched, so a rejected update leaves
// the tree unchanged.
func (s *sumTree) set(slot int, priority float64) error {
	if slot < 0 || slot >= s.capacity {
		return fmt.Errorf("set: slot out of range [0, %v): %v", s.capacity,
			slot)
	}
	if priority < 0 || math.IsNaN(priority) || math.IsInf(priority, 0) {
		return &ReplayError{Op: "set", Err: errInvalidPriority}
	}
	if priority < s.floor {
		priority = s.floor
	}

	i := s.capacity - 1 + slot
	s.sums[i] = math.Pow(priority, s.alpha)
	s.maxes[i] = priority
	for i != 0 {
		i = (i - 1) / 2
		left, right := 2*i+1, 2*i+2
		s.sums[i] = s.sums[left] + s.sums[right]
		s.maxes[i] = math.Max(s.maxes[left], s.maxes[right])
	}
	return nil
}

// total returns the sum of priority^alpha over all slots
func (s *sumTree) total() float64 {
	return s.sums[0]
}

// maxPriority returns the maximum raw priority currently held by any
// slot, or 0 if no slot has been set
func (s *sumTree) maxPriority() float64 {
	return s.maxes[0]
}

// leaf returns the transformed priority priority[slot]^alpha, which is
// the unnormalized sampling mass of the slot
func (s *sumTree) leaf(slot int) float64 {
	return s.sums[s.capacity-1+slot]
}

// sampleOne walks the tree from the root to find the slot whose
// cumulative mass interval contains v. At each internal node the walk
// descends left when v falls below the left subtree's sum and
// otherwise subtracts that sum and descends right. The walk is
// deterministic given v, so reproducibility reduces to the seeding of
// the random source that generates v. v must lie in [0, total()).
func (s *sumTree) sampleOne(v float64) int {
	i := 0
	for i < s.capacity-1 {
		left := 2*i + 1
		if v < s.sums[left] {
			i = left
		} else {
			v -= s.sums[left]
			i = left + 1
		}
	}
	return i - (s.capacity - 1)
}
