package cells

import "gonum.org/v1/gonum/mat"

// Node is the external collaborator a cell maps quantities onto. The mesh
// owns node construction and global state; the cell only needs identity,
// geometry, activation, rank bookkeeping and volume accumulation.
type Node interface {
	// ID returns the stable global node id.
	ID() uint64
	// Coordinates returns the node's real-space coordinates.
	Coordinates() *mat.VecDense
	// Status reports whether the node is active this step.
	Status() bool
	// AssignStatus activates or deactivates the node.
	AssignStatus(active bool)
	// AssignMPIRank tags the node with the owning rank; reports whether the
	// tag was accepted.
	AssignMPIRank(rank int) bool
	// UpdateVolume adds (update true) or assigns the given volume for a
	// phase.
	UpdateVolume(update bool, phase int, volume float64)
	// NonlocalNodeType returns the per-dimension B-spline node-type codes.
	NonlocalNodeType() []int
}
