package elements

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func unitQuadCoords() *mat.Dense {
	coords := mat.NewDense(4, 2, nil)
	for i := 0; i < 4; i++ {
		coords.SetRow(i, quadNodes[i][:])
	}
	return coords
}

func TestQuadrilateralShapefn(t *testing.T) {
	for _, nf := range []int{4, 8, 9} {
		q, err := NewQuadrilateral(nf)
		assert.NoError(t, err)
		assert.Equal(t, nf, q.NFunctions())
		checkPartitionOfUnity(t, q, sampleXis(2))
		checkGradientsFD(t, q, sampleXis(2))
	}
	// Kronecker property at the nodes for the 9-node Lagrange variant
	{
		q, _ := NewQuadrilateral(9)
		size := mat.NewVecDense(2, nil)
		defGrad := identity(2)
		for i := 0; i < 9; i++ {
			xi := mat.NewVecDense(2, []float64{quadNodes[i][0], quadNodes[i][1]})
			sf := q.Shapefn(xi, size, defGrad)
			for j := 0; j < 9; j++ {
				want := 0.
				if i == j {
					want = 1.
				}
				assert.True(t, near(sf.AtVec(j), want, 1.e-12))
			}
		}
	}
	_, err := NewQuadrilateral(16)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestQuadrilateralVolume(t *testing.T) {
	q, _ := NewQuadrilateral(4)
	assert.True(t, near(q.ComputeVolume(unitQuadCoords()), 4., 1.e-12))

	// Inverted node ordering flips the sign
	inverted := mat.NewDense(4, 2, nil)
	for i := 0; i < 4; i++ {
		inverted.SetRow(i, quadNodes[3-i][:])
	}
	assert.True(t, near(q.ComputeVolume(inverted), -4., 1.e-12))
}

func TestQuadrilateralBMatrix(t *testing.T) {
	q, _ := NewQuadrilateral(4)
	size := mat.NewVecDense(2, nil)
	defGrad := identity(2)
	blocks := q.BMatrix(mat.NewVecDense(2, nil), unitQuadCoords(), size, defGrad)
	assert.Len(t, blocks, 4)
	r, c := blocks[0].Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)

	u := []float64{0.4, -1.2}
	strain := make([]float64, 3)
	for _, b := range blocks {
		for i := 0; i < 3; i++ {
			for j := 0; j < 2; j++ {
				strain[i] += b.At(i, j) * u[j]
			}
		}
	}
	for i := 0; i < 3; i++ {
		assert.True(t, near(strain[i], 0., 1.e-12))
	}
}

func TestQuadrilateralTopology(t *testing.T) {
	q, _ := NewQuadrilateral(8)
	assert.Equal(t, 4, q.NFaces())
	ids, err := q.FaceIndices(1)
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2, 5}, ids)
	_, err = q.FaceIndices(4)
	assert.Error(t, err)
}
