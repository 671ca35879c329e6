// Package cells implements the mesh cell: node ownership, geometry, particle
// membership, real-to-local point location and the per-cell matrices
// consumed by the implicit and multi-phase solvers.
package cells

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/geomechanics/gompm/elements"
	"github.com/geomechanics/gompm/quadrature"
)

var (
	// ErrDegenerateGeometry flags non-positive volume or a singular
	// geometry mapping; the solver loop is expected to abort the run.
	ErrDegenerateGeometry = errors.New("cell: degenerate geometry")
	// ErrNonConvergence flags Newton point-location that did not meet
	// tolerance; callers treat the point as outside the cell.
	ErrNonConvergence = errors.New("cell: point location did not converge")
	// ErrNotInitialised flags use of geometry before Initialise ran.
	ErrNotInitialised = errors.New("cell: not initialised")
)

// VelocityConstraint fixes one velocity component on a cell face.
type VelocityConstraint struct {
	Dir      int
	Velocity float64
}

// Cell owns an ordered node list and an element, hosts the particles located
// inside it, and assembles the local matrices used by the solvers. A single
// mutex guards the mutable shared state (particle ids, local matrices);
// everything else is written during initialisation only.
type Cell struct {
	mu sync.Mutex

	id             uint64
	rank           int
	previousRank   int
	isoparametric  bool
	nnodes         int
	element        elements.Element
	quadrature     *quadrature.Rule
	log            *logrus.Entry

	nodes            []Node
	nodalCoordinates *mat.Dense

	volume     float64
	hasVolume  bool
	centroid   *mat.VecDense
	meanLength float64

	particles        []uint64
	nglobalParticles int

	neighbours map[uint64]struct{}

	dnDxCentroid *mat.Dense

	velocityConstraints map[int][]VelocityConstraint
	faceNormals         map[int]*mat.VecDense

	upgraded bool

	// Implicit solver state
	stiffnessMatrix *mat.Dense

	// Multi-phase solver state
	solvingStatus  bool
	freeSurface    bool
	volumeFraction float64

	laplacianMatrix    *mat.Dense
	poissonRightMatrix *mat.Dense
	correctionMatrix   *mat.Dense
	dragMatrix         []*mat.Dense

	poissonRightTwophase []*mat.Dense
	correctionTwophase   []*mat.Dense
}

// NewCell creates a cell with an id, the expected node count and an element.
// The logger is injected so cells never reach into process-wide registries.
func NewCell(id uint64, nnodes int, element elements.Element, isoparametric bool, logger *logrus.Logger) (*Cell, error) {
	if element == nil {
		return nil, fmt.Errorf("cell %d: nil element", id)
	}
	if nnodes != element.NFunctions() {
		return nil, fmt.Errorf("cell %d: %d nodes incompatible with element expecting %d",
			id, nnodes, element.NFunctions())
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Cell{
		id:                  id,
		nnodes:              nnodes,
		element:             element,
		isoparametric:       isoparametric,
		log:                 logger.WithField("cell", id),
		nodes:               make([]Node, nnodes),
		neighbours:          make(map[uint64]struct{}),
		velocityConstraints: make(map[int][]VelocityConstraint),
		faceNormals:         make(map[int]*mat.VecDense),
		meanLength:          math.MaxFloat64,
	}, nil
}

// ID returns the cell id.
func (c *Cell) ID() uint64 { return c.id }

// Element returns the element assigned to this cell.
func (c *Cell) Element() elements.Element { return c.element }

// NFunctions returns the element's shape-function count, zero without an
// element.
func (c *Cell) NFunctions() int {
	if c.element == nil {
		return 0
	}
	return c.element.NFunctions()
}

// AddNode attaches a node at a local id.
func (c *Cell) AddNode(localID int, node Node) error {
	if localID < 0 || localID >= c.nnodes {
		return fmt.Errorf("cell %d: local node id %d out of range [0,%d)", c.id, localID, c.nnodes)
	}
	if node == nil {
		return fmt.Errorf("cell %d: nil node at local id %d", c.id, localID)
	}
	c.nodes[localID] = node
	return nil
}

// NNodes returns the number of attached nodes.
func (c *Cell) NNodes() int {
	var n int
	for _, node := range c.nodes {
		if node != nil {
			n++
		}
	}
	return n
}

// Nodes returns the attached nodes in local order.
func (c *Cell) Nodes() []Node { return c.nodes }

// NodesID returns the sorted global ids of the attached nodes.
func (c *Cell) NodesID() []uint64 {
	ids := make([]uint64, 0, len(c.nodes))
	for _, node := range c.nodes {
		if node != nil {
			ids = append(ids, node.ID())
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Initialise computes the cell geometry once nodes are attached: nodal
// coordinate matrix, volume, centroid, mean length and the centroid dN/dx.
func (c *Cell) Initialise() error {
	if c.NNodes() != c.nnodes {
		return fmt.Errorf("%w: cell %d has %d of %d nodes", ErrNotInitialised, c.id, c.NNodes(), c.nnodes)
	}
	dim := c.element.Dim()
	c.nodalCoordinates = mat.NewDense(c.nnodes, dim, nil)
	for i, node := range c.nodes {
		coords := node.Coordinates()
		for d := 0; d < dim; d++ {
			c.nodalCoordinates.Set(i, d, coords.AtVec(d))
		}
	}
	if err := c.ComputeVolume(); err != nil {
		return err
	}
	c.ComputeCentroid()
	c.ComputeMeanLength()

	// Cache dN/dx at the reference-cell centroid for strain smoothing.
	unit := c.element.UnitCellCoordinates()
	centre := mat.NewVecDense(dim, nil)
	n, _ := unit.Dims()
	for d := 0; d < dim; d++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += unit.At(i, d)
		}
		centre.SetVec(d, sum/float64(n))
	}
	c.dnDxCentroid = c.element.DnDx(centre, c.nodalCoordinates, zeroVec(dim), identity(dim))
	return nil
}

// IsInitialised reports whether the cell has nodes, an element and a volume.
func (c *Cell) IsInitialised() bool {
	return c.nodalCoordinates != nil && c.hasVolume
}

// AssignQuadrature installs an integration rule of the given per-axis order.
func (c *Cell) AssignQuadrature(order int) error {
	q, err := c.element.Quadrature(order)
	if err != nil {
		return fmt.Errorf("cell %d: %w", c.id, err)
	}
	c.quadrature = q
	return nil
}

// GeneratePoints returns the real-space locations of the assigned quadrature
// points, used to seed material points in the cell.
func (c *Cell) GeneratePoints() ([]*mat.VecDense, error) {
	if !c.IsInitialised() {
		return nil, fmt.Errorf("%w: cell %d", ErrNotInitialised, c.id)
	}
	if c.quadrature == nil {
		return nil, fmt.Errorf("cell %d: no quadrature assigned", c.id)
	}
	var (
		dim    = c.element.Dim()
		size   = zeroVec(dim)
		grad   = identity(dim)
		points = make([]*mat.VecDense, 0, c.quadrature.NPoints())
	)
	for i := 0; i < c.quadrature.NPoints(); i++ {
		sf := c.element.ShapefnLocal(c.quadrature.Point(i), size, grad)
		p := mat.NewVecDense(dim, nil)
		for d := 0; d < dim; d++ {
			var v float64
			for j := 0; j < c.nnodes && j < sf.Len(); j++ {
				v += sf.AtVec(j) * c.nodalCoordinates.At(j, d)
			}
			p.SetVec(d, v)
		}
		points = append(points, p)
	}
	return points, nil
}

// ComputeVolume evaluates the cell volume from the nodal coordinates.
// Non-positive volume is stored and reported as degenerate geometry.
func (c *Cell) ComputeVolume() error {
	c.volume = c.element.ComputeVolume(c.nodalCoordinates)
	c.hasVolume = true
	if c.volume <= 0 {
		return fmt.Errorf("%w: cell %d volume %g", ErrDegenerateGeometry, c.id, c.volume)
	}
	return nil
}

// Volume returns the cell volume.
func (c *Cell) Volume() float64 { return c.volume }

// ComputeCentroid averages the corner-node coordinates.
func (c *Cell) ComputeCentroid() {
	var (
		dim     = c.element.Dim()
		corners = c.element.CornerIndices()
	)
	c.centroid = mat.NewVecDense(dim, nil)
	for _, i := range corners {
		for d := 0; d < dim; d++ {
			c.centroid.SetVec(d, c.centroid.AtVec(d)+c.nodalCoordinates.At(i, d))
		}
	}
	c.centroid.ScaleVec(1./float64(len(corners)), c.centroid)
}

// Centroid returns the cell centroid.
func (c *Cell) Centroid() *mat.VecDense { return c.centroid }

// ComputeMeanLength averages the side lengths of the cell.
func (c *Cell) ComputeMeanLength() {
	var (
		dim   = c.element.Dim()
		sides = c.element.SidesIndices()
		sum   float64
	)
	for _, s := range sides {
		var l float64
		for d := 0; d < dim; d++ {
			diff := c.nodalCoordinates.At(s[0], d) - c.nodalCoordinates.At(s[1], d)
			l += diff * diff
		}
		sum += math.Sqrt(l)
	}
	c.meanLength = sum / float64(len(sides))
}

// MeanLength returns the mean side length.
func (c *Cell) MeanLength() float64 { return c.meanLength }

// NodalCoordinates returns the node-count x dim coordinate matrix.
func (c *Cell) NodalCoordinates() *mat.Dense { return c.nodalCoordinates }

// DnDxCentroid returns the cached dN/dx at the cell centroid.
func (c *Cell) DnDxCentroid() *mat.Dense { return c.dnDxCentroid }

// AddParticleID registers a particle as located in this cell.
func (c *Cell) AddParticleID(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.particles {
		if p == id {
			return false
		}
	}
	c.particles = append(c.particles, id)
	return true
}

// RemoveParticleID drops a particle that moved to another cell or was
// removed from the simulation.
func (c *Cell) RemoveParticleID(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.particles {
		if p == id {
			c.particles = append(c.particles[:i], c.particles[i+1:]...)
			return
		}
	}
}

// ClearParticleIDs empties the particle set.
func (c *Cell) ClearParticleIDs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.particles = c.particles[:0]
}

// Particles returns a copy of the particle id list.
func (c *Cell) Particles() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, len(c.particles))
	copy(out, c.particles)
	return out
}

// NParticles returns the number of particles in the cell.
func (c *Cell) NParticles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.particles)
}

// Status reports whether the cell is active (hosts at least one particle).
func (c *Cell) Status() bool { return c.NParticles() > 0 }

// AssignNGlobalParticles records the particle count across all ranks.
func (c *Cell) AssignNGlobalParticles(n int) { c.nglobalParticles = n }

// NGlobalParticles returns the particle count across all ranks.
func (c *Cell) NGlobalParticles() int { return c.nglobalParticles }

// ActivateNodes flags every node active when the cell hosts particles.
func (c *Cell) ActivateNodes() {
	if !c.Status() {
		return
	}
	for _, node := range c.nodes {
		node.AssignStatus(true)
	}
}

// AddNeighbour registers a neighbouring cell id.
func (c *Cell) AddNeighbour(id uint64) bool {
	if id == c.id {
		return false
	}
	if _, ok := c.neighbours[id]; ok {
		return false
	}
	c.neighbours[id] = struct{}{}
	return true
}

// NNeighbours returns the neighbour count.
func (c *Cell) NNeighbours() int { return len(c.neighbours) }

// Neighbours returns the sorted neighbour cell ids.
func (c *Cell) Neighbours() []uint64 {
	out := make([]uint64, 0, len(c.neighbours))
	for id := range c.neighbours {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SideNodePairs returns the global node-id pairs forming the cell sides.
func (c *Cell) SideNodePairs() [][2]uint64 {
	sides := c.element.SidesIndices()
	out := make([][2]uint64, 0, len(sides))
	for _, s := range sides {
		out = append(out, [2]uint64{c.nodes[s[0]].ID(), c.nodes[s[1]].ID()})
	}
	return out
}

// SortedFaceNodeIDs returns, per face, the sorted global node ids.
func (c *Cell) SortedFaceNodeIDs() [][]uint64 {
	out := make([][]uint64, 0, c.element.NFaces())
	for f := 0; f < c.element.NFaces(); f++ {
		idx, err := c.element.FaceIndices(f)
		if err != nil {
			continue
		}
		ids := make([]uint64, 0, len(idx))
		for _, i := range idx {
			ids = append(ids, c.nodes[i].ID())
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out = append(out, ids)
	}
	return out
}

// AssignVelocityConstraint fixes a velocity component on a face.
func (c *Cell) AssignVelocityConstraint(faceID, dir int, velocity float64) error {
	if faceID < 0 || faceID >= c.element.NFaces() {
		return fmt.Errorf("cell %d: face id %d out of range", c.id, faceID)
	}
	if dir < 0 || dir >= c.element.Dim() {
		return fmt.Errorf("cell %d: constraint direction %d out of range", c.id, dir)
	}
	c.velocityConstraints[faceID] = append(c.velocityConstraints[faceID], VelocityConstraint{Dir: dir, Velocity: velocity})
	return nil
}

// VelocityConstraints returns the per-face velocity constraints.
func (c *Cell) VelocityConstraints() map[int][]VelocityConstraint { return c.velocityConstraints }

// ComputeNormals evaluates the outward unit normal of every constrained
// face from the face-node geometry.
func (c *Cell) ComputeNormals() error {
	if !c.IsInitialised() {
		return fmt.Errorf("%w: cell %d", ErrNotInitialised, c.id)
	}
	for faceID := range c.velocityConstraints {
		normal, err := c.faceNormal(faceID)
		if err != nil {
			return err
		}
		c.faceNormals[faceID] = normal
	}
	return nil
}

// FaceNormals returns the computed outward face normals keyed by face id.
func (c *Cell) FaceNormals() map[int]*mat.VecDense { return c.faceNormals }

func (c *Cell) faceNormal(faceID int) (*mat.VecDense, error) {
	idx, err := c.element.FaceIndices(faceID)
	if err != nil {
		return nil, fmt.Errorf("cell %d: %w", c.id, err)
	}
	dim := c.element.Dim()
	normal := mat.NewVecDense(dim, nil)
	switch dim {
	case 2:
		// Edge perpendicular
		dx := c.nodalCoordinates.At(idx[1], 0) - c.nodalCoordinates.At(idx[0], 0)
		dy := c.nodalCoordinates.At(idx[1], 1) - c.nodalCoordinates.At(idx[0], 1)
		normal.SetVec(0, dy)
		normal.SetVec(1, -dx)
	case 3:
		// Cross of the face diagonals
		var d1, d2 [3]float64
		for d := 0; d < 3; d++ {
			d1[d] = c.nodalCoordinates.At(idx[2], d) - c.nodalCoordinates.At(idx[0], d)
			d2[d] = c.nodalCoordinates.At(idx[3], d) - c.nodalCoordinates.At(idx[1], d)
		}
		normal.SetVec(0, d1[1]*d2[2]-d1[2]*d2[1])
		normal.SetVec(1, d1[2]*d2[0]-d1[0]*d2[2])
		normal.SetVec(2, d1[0]*d2[1]-d1[1]*d2[0])
	default:
		return nil, fmt.Errorf("cell %d: normals undefined in %dD", c.id, dim)
	}
	length := mat.Norm(normal, 2)
	if length == 0 {
		return nil, fmt.Errorf("%w: cell %d face %d has zero normal", ErrDegenerateGeometry, c.id, faceID)
	}
	normal.ScaleVec(1./length, normal)

	// Orient outward: away from the centroid through the face midpoint.
	mid := mat.NewVecDense(dim, nil)
	for _, i := range idx {
		for d := 0; d < dim; d++ {
			mid.SetVec(d, mid.AtVec(d)+c.nodalCoordinates.At(i, d))
		}
	}
	mid.ScaleVec(1./float64(len(idx)), mid)
	var dot float64
	for d := 0; d < dim; d++ {
		dot += normal.AtVec(d) * (mid.AtVec(d) - c.centroid.AtVec(d))
	}
	if dot < 0 {
		normal.ScaleVec(-1., normal)
	}
	return normal, nil
}

// AssignMPIRankToNodes propagates the cell rank to its nodes.
func (c *Cell) AssignMPIRankToNodes() {
	for _, node := range c.nodes {
		node.AssignMPIRank(c.rank)
	}
}

// SetRank assigns the owning MPI rank, keeping the previous tag for halo
// exchange bookkeeping.
func (c *Cell) SetRank(rank int) {
	c.previousRank = c.rank
	c.rank = rank
}

// Rank returns the owning MPI rank.
func (c *Cell) Rank() int { return c.rank }

// PreviousMPIRank returns the rank before the last SetRank.
func (c *Cell) PreviousMPIRank() int { return c.previousRank }

// LocalNodeIndices returns the global node ids in local order.
func (c *Cell) LocalNodeIndices() []uint64 {
	out := make([]uint64, 0, len(c.nodes))
	for _, node := range c.nodes {
		out = append(out, node.ID())
	}
	return out
}

// MapCellVolumeToNodes distributes the cell volume equally to its nodes for
// a phase; inactive cells map nothing.
func (c *Cell) MapCellVolumeToNodes(phase int) {
	if !c.Status() {
		return
	}
	share := c.volume / float64(c.nnodes)
	for _, node := range c.nodes {
		node.UpdateVolume(true, phase, share)
	}
}

// UpgradeStatus reports whether the cell can swap to a nonlocal element with
// the given node count: never after an upgrade, and never while particles
// are located in the cell (their local coordinates would be orphaned).
func (c *Cell) UpgradeStatus(newNNodes int) bool {
	return !c.upgraded && newNNodes >= c.nnodes && c.NParticles() == 0
}

// AssignNonlocalElement swaps the element for a nonlocal family and extends
// the node set with the surrounding stencil. The extended list must keep the
// original corner nodes first, in their local order, and the coordinate
// matrix is rebuilt from it.
func (c *Cell) AssignNonlocalElement(element elements.Element, extendedNodes []Node) error {
	if element == nil {
		return fmt.Errorf("cell %d: nil nonlocal element", c.id)
	}
	if element.ShapefnType() == elements.NormalMPM {
		return fmt.Errorf("cell %d: element is not a nonlocal family", c.id)
	}
	if len(extendedNodes) < c.nnodes {
		return fmt.Errorf("cell %d: %d extended nodes fewer than %d cell nodes",
			c.id, len(extendedNodes), c.nnodes)
	}
	for i := 0; i < c.nnodes; i++ {
		if extendedNodes[i] == nil || extendedNodes[i].ID() != c.nodes[i].ID() {
			return fmt.Errorf("cell %d: extended node list does not start with the cell nodes", c.id)
		}
	}
	dim := element.Dim()
	coords := mat.NewDense(len(extendedNodes), dim, nil)
	for i, node := range extendedNodes {
		xyz := node.Coordinates()
		for d := 0; d < dim; d++ {
			coords.Set(i, d, xyz.AtVec(d))
		}
	}
	c.element = element
	c.nodes = extendedNodes
	c.nnodes = len(extendedNodes)
	c.nodalCoordinates = coords
	c.upgraded = true
	return nil
}

// Upgraded reports whether a nonlocal element has been installed.
func (c *Cell) Upgraded() bool { return c.upgraded }

// InitialiseNonlocal derives the element's connectivity properties from the
// attached nodes and the named numeric properties. B-spline families read
// the per-node type codes; LME families read beta, support_radius and
// anisotropy. Missing keys are configuration errors.
func (c *Cell) InitialiseNonlocal(properties map[string]float64) error {
	switch c.element.ShapefnType() {
	case elements.BSplineMPM:
		types := make([][]int, len(c.nodes))
		for i, node := range c.nodes {
			types[i] = node.NonlocalNodeType()
		}
		if err := c.element.InitialiseBSplineConnectivity(c.nodalCoordinates, types); err != nil {
			return fmt.Errorf("cell %d: %w", c.id, err)
		}
	case elements.LMEMPM:
		beta, ok := properties["beta"]
		if !ok {
			return fmt.Errorf("cell %d: nonlocal property beta missing", c.id)
		}
		radius, ok := properties["support_radius"]
		if !ok {
			return fmt.Errorf("cell %d: nonlocal property support_radius missing", c.id)
		}
		anisotropy := properties["anisotropy"] != 0
		if err := c.element.InitialiseLMEConnectivity(beta, radius, anisotropy, c.nodalCoordinates); err != nil {
			return fmt.Errorf("cell %d: %w", c.id, err)
		}
	default:
		return fmt.Errorf("%w: cell %d element is not nonlocal", elements.ErrUnsupported, c.id)
	}
	return nil
}

func zeroVec(n int) *mat.VecDense { return mat.NewVecDense(n, nil) }

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1.)
	}
	return m
}
