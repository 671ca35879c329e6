package solvers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

// stubCell carries a pre-assembled local laplacian.
type stubCell struct {
	solving bool
	local   *mat.Dense
	ids     []uint64
}

func (s *stubCell) SolvingStatus() bool         { return s.solving }
func (s *stubCell) LaplacianMatrix() *mat.Dense { return s.local }
func (s *stubCell) LocalNodeIndices() []uint64  { return s.ids }

// localStencil is the 1D two-node diffusion stencil scaled by k.
func localStencil(k float64) *mat.Dense {
	return mat.NewDense(2, 2, []float64{k, -k, -k, k})
}

func TestAssembleGlobalLaplacian(t *testing.T) {
	// Two elements sharing node 1: the classic 3-node chain
	cells := []MatrixCell{
		&stubCell{solving: true, local: localStencil(1.), ids: []uint64{10, 11}},
		&stubCell{solving: true, local: localStencil(2.), ids: []uint64{11, 12}},
		&stubCell{solving: false, local: localStencil(99.), ids: []uint64{10, 11}},
	}
	nodeIndex := map[uint64]int{10: 0, 11: 1, 12: 2}

	a, err := AssembleGlobalLaplacian(cells, nodeIndex)
	assert.NoError(t, err)
	want := [][]float64{
		{1, -1, 0},
		{-1, 3, -2},
		{0, -2, 2},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, want[i][j], a.At(i, j), 1.e-14, "entry %d,%d", i, j)
		}
	}

	_, err = AssembleGlobalLaplacian(cells, map[uint64]int{})
	assert.Error(t, err)
	_, err = AssembleGlobalLaplacian(cells, map[uint64]int{10: 0, 11: 1})
	assert.Error(t, err)
	_, err = AssembleGlobalLaplacian([]MatrixCell{
		&stubCell{solving: true, local: nil, ids: []uint64{10, 11}},
	}, nodeIndex)
	assert.Error(t, err)
}

func TestSolveCG(t *testing.T) {
	// Pin node 0 by adding a diagonal anchor so the system is definite
	cells := []MatrixCell{
		&stubCell{solving: true, local: localStencil(1.), ids: []uint64{0, 1}},
		&stubCell{solving: true, local: localStencil(1.), ids: []uint64{1, 2}},
		&stubCell{solving: true, local: mat.NewDense(2, 2, []float64{1, 0, 0, 0}), ids: []uint64{0, 1}},
	}
	nodeIndex := map[uint64]int{0: 0, 1: 1, 2: 2}
	a, err := AssembleGlobalLaplacian(cells, nodeIndex)
	assert.NoError(t, err)

	b := []float64{0, 0, 1}
	x, err := SolveCG(a, b, 1.e-12, 100)
	assert.NoError(t, err)
	// Residual check: A x = b
	y := make([]float64, 3)
	matVec(a, x, y)
	for i := range b {
		assert.InDelta(t, b[i], y[i], 1.e-10)
	}

	_, err = SolveCG(a, []float64{1, 2}, 1.e-12, 100)
	assert.Error(t, err)

	// Zero right-hand side short-circuits to the zero solution
	x, err = SolveCG(a, []float64{0, 0, 0}, 1.e-12, 100)
	assert.NoError(t, err)
	for _, v := range x {
		assert.Equal(t, 0., v)
	}
}
