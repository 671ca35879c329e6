package cells

import (
	"math"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/geomechanics/gompm/elements"
)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

// testNode is the minimal Node used across the cell tests.
type testNode struct {
	id      uint64
	coords  []float64
	active  bool
	rank    int
	volumes map[int]float64
	types   []int
}

func newTestNode(id uint64, coords ...float64) *testNode {
	return &testNode{id: id, coords: coords, rank: -1, volumes: map[int]float64{}}
}

func (n *testNode) ID() uint64                 { return n.id }
func (n *testNode) Coordinates() *mat.VecDense { return mat.NewVecDense(len(n.coords), n.coords) }
func (n *testNode) Status() bool               { return n.active }
func (n *testNode) AssignStatus(active bool)   { n.active = active }
func (n *testNode) AssignMPIRank(rank int) bool {
	n.rank = rank
	return true
}
func (n *testNode) UpdateVolume(update bool, phase int, volume float64) {
	if update {
		n.volumes[phase] += volume
	} else {
		n.volumes[phase] = volume
	}
}
func (n *testNode) NonlocalNodeType() []int { return n.types }

var testLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}()

// unitCubeCell builds a hexahedral cell on the cube [0,2]^3.
func unitCubeCell(t *testing.T, isoparametric bool) (*Cell, []*testNode) {
	t.Helper()
	h, err := elements.NewHexahedron(8)
	assert.NoError(t, err)
	cell, err := NewCell(0, 8, h, isoparametric, testLogger)
	assert.NoError(t, err)
	coords := [][]float64{
		{0, 0, 0}, {2, 0, 0}, {2, 2, 0}, {0, 2, 0},
		{0, 0, 2}, {2, 0, 2}, {2, 2, 2}, {0, 2, 2},
	}
	nodes := make([]*testNode, 8)
	for i, xyz := range coords {
		nodes[i] = newTestNode(uint64(i), xyz...)
		assert.NoError(t, cell.AddNode(i, nodes[i]))
	}
	assert.NoError(t, cell.Initialise())
	return cell, nodes
}

func TestCellConstruction(t *testing.T) {
	h, err := elements.NewHexahedron(8)
	assert.NoError(t, err)

	_, err = NewCell(1, 8, nil, false, testLogger)
	assert.Error(t, err)
	_, err = NewCell(1, 6, h, false, testLogger)
	assert.Error(t, err)

	cell, err := NewCell(1, 8, h, false, testLogger)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), cell.ID())
	assert.Equal(t, 8, cell.NFunctions())
	assert.Error(t, cell.AddNode(8, newTestNode(0, 0, 0, 0)))
	assert.Error(t, cell.AddNode(-1, newTestNode(0, 0, 0, 0)))
	assert.Error(t, cell.AddNode(0, nil))
	// Initialise requires the full node set
	assert.ErrorIs(t, cell.Initialise(), ErrNotInitialised)
}

func TestCellGeometry(t *testing.T) {
	cell, _ := unitCubeCell(t, false)
	assert.True(t, cell.IsInitialised())
	assert.True(t, near(cell.Volume(), 8., 1.e-12))
	assert.True(t, near(cell.MeanLength(), 2., 1.e-12))
	for d := 0; d < 3; d++ {
		assert.True(t, near(cell.Centroid().AtVec(d), 1., 1.e-12))
	}
	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7}, cell.NodesID())
	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7}, cell.LocalNodeIndices())

	// Centroid gradients of a regular cube: rows sum to zero
	dndx := cell.DnDxCentroid()
	r, dim := dndx.Dims()
	assert.Equal(t, 8, r)
	for d := 0; d < dim; d++ {
		var sum float64
		for i := 0; i < r; i++ {
			sum += dndx.At(i, d)
		}
		assert.True(t, near(sum, 0., 1.e-12))
	}
}

func TestCellDegenerateVolume(t *testing.T) {
	h, err := elements.NewHexahedron(8)
	assert.NoError(t, err)
	cell, err := NewCell(2, 8, h, false, testLogger)
	assert.NoError(t, err)
	// All nodes on one plane: zero volume
	for i := 0; i < 8; i++ {
		assert.NoError(t, cell.AddNode(i, newTestNode(uint64(i), float64(i), 0, 0)))
	}
	assert.ErrorIs(t, cell.Initialise(), ErrDegenerateGeometry)
}

func TestCellParticlesAndStatus(t *testing.T) {
	cell, nodes := unitCubeCell(t, false)
	assert.False(t, cell.Status())

	assert.True(t, cell.AddParticleID(10))
	assert.False(t, cell.AddParticleID(10))
	assert.True(t, cell.AddParticleID(11))
	assert.Equal(t, 2, cell.NParticles())
	assert.True(t, cell.Status())

	cell.ActivateNodes()
	for _, n := range nodes {
		assert.True(t, n.Status())
	}

	cell.RemoveParticleID(10)
	assert.Equal(t, []uint64{11}, cell.Particles())
	cell.ClearParticleIDs()
	assert.Equal(t, 0, cell.NParticles())

	cell.AssignNGlobalParticles(5)
	assert.Equal(t, 5, cell.NGlobalParticles())
}

func TestCellParticlesConcurrent(t *testing.T) {
	cell, _ := unitCubeCell(t, false)
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			cell.AddParticleID(id)
		}(uint64(i))
	}
	wg.Wait()
	assert.Equal(t, 64, cell.NParticles())
}

func TestCellNeighboursAndRank(t *testing.T) {
	cell, nodes := unitCubeCell(t, false)
	assert.True(t, cell.AddNeighbour(3))
	assert.False(t, cell.AddNeighbour(3))
	assert.False(t, cell.AddNeighbour(cell.ID()))
	assert.True(t, cell.AddNeighbour(1))
	assert.Equal(t, 2, cell.NNeighbours())
	assert.Equal(t, []uint64{1, 3}, cell.Neighbours())

	cell.SetRank(2)
	assert.Equal(t, 2, cell.Rank())
	assert.Equal(t, 0, cell.PreviousMPIRank())
	cell.SetRank(4)
	assert.Equal(t, 2, cell.PreviousMPIRank())
	cell.AssignMPIRankToNodes()
	for _, n := range nodes {
		assert.Equal(t, 4, n.rank)
	}
}

func TestCellTopologyQueries(t *testing.T) {
	cell, _ := unitCubeCell(t, false)
	pairs := cell.SideNodePairs()
	assert.Len(t, pairs, 12)
	faces := cell.SortedFaceNodeIDs()
	assert.Len(t, faces, 6)
	for _, f := range faces {
		assert.Len(t, f, 4)
		for i := 1; i < len(f); i++ {
			assert.True(t, f[i-1] < f[i])
		}
	}
}

func TestCellVolumeToNodes(t *testing.T) {
	cell, nodes := unitCubeCell(t, false)
	cell.MapCellVolumeToNodes(0)
	for _, n := range nodes {
		assert.Equal(t, 0., n.volumes[0])
	}
	cell.AddParticleID(1)
	cell.MapCellVolumeToNodes(0)
	for _, n := range nodes {
		assert.True(t, near(n.volumes[0], 1., 1.e-12))
	}
}

func TestCellQuadratureAndPoints(t *testing.T) {
	cell, _ := unitCubeCell(t, false)
	_, err := cell.GeneratePoints()
	assert.Error(t, err)

	assert.NoError(t, cell.AssignQuadrature(2))
	points, err := cell.GeneratePoints()
	assert.NoError(t, err)
	assert.Len(t, points, 8)
	for _, p := range points {
		for d := 0; d < 3; d++ {
			v := p.AtVec(d)
			assert.True(t, v > 0. && v < 2.)
		}
		assert.True(t, cell.PointInCartesianCell(p))
	}
	assert.Error(t, cell.AssignQuadrature(9))
}

func TestCellNormals(t *testing.T) {
	cell, _ := unitCubeCell(t, false)
	assert.Error(t, cell.AssignVelocityConstraint(99, 0, 0.))
	assert.Error(t, cell.AssignVelocityConstraint(0, 5, 0.))
	// Face 0 is the bottom (z = 0) face
	assert.NoError(t, cell.AssignVelocityConstraint(0, 2, 0.))
	assert.NoError(t, cell.ComputeNormals())
	normal, ok := cell.FaceNormals()[0]
	assert.True(t, ok)
	assert.True(t, near(normal.AtVec(0), 0., 1.e-12))
	assert.True(t, near(normal.AtVec(1), 0., 1.e-12))
	assert.True(t, near(normal.AtVec(2), -1., 1.e-12))
}

func TestCellUpgrade(t *testing.T) {
	cell, nodes := unitCubeCell(t, false)
	cell.AddParticleID(1)
	assert.False(t, cell.UpgradeStatus(64))
	cell.ClearParticleIDs()
	assert.True(t, cell.UpgradeStatus(64))
	assert.False(t, cell.UpgradeStatus(4))

	b := elements.NewBSplineHexahedron()
	// Extended list must start with the cell nodes
	assert.Error(t, cell.AssignNonlocalElement(b, []Node{nodes[1]}))
	extended := make([]Node, 8)
	for i, n := range nodes {
		extended[i] = n
	}
	assert.NoError(t, cell.AssignNonlocalElement(b, extended))
	assert.True(t, cell.Upgraded())
	assert.False(t, cell.UpgradeStatus(64))

	h, _ := elements.NewHexahedron(8)
	assert.Error(t, cell.AssignNonlocalElement(h, extended))
}

func TestCellInitialiseNonlocal(t *testing.T) {
	cell, nodes := unitCubeCell(t, false)
	// Local element: configuration error
	assert.ErrorIs(t, cell.InitialiseNonlocal(nil), elements.ErrUnsupported)

	extended := make([]Node, 8)
	for i, n := range nodes {
		n.types = []int{elements.BSplineLowerBoundary, elements.BSplineLowerBoundary, elements.BSplineLowerBoundary}
		extended[i] = n
	}

	lme := elements.NewLMEHexahedron()
	assert.NoError(t, cell.AssignNonlocalElement(lme, extended))
	assert.Error(t, cell.InitialiseNonlocal(map[string]float64{"support_radius": 2.}))
	assert.Error(t, cell.InitialiseNonlocal(map[string]float64{"beta": 1.}))
	assert.NoError(t, cell.InitialiseNonlocal(map[string]float64{
		"beta": 1., "support_radius": 10., "anisotropy": 1.,
	}))
}
