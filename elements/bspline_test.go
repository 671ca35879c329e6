package elements

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

// regular 4x4 connectivity around the cell [0,1]^2: corner nodes first,
// then the surrounding stencil.
func bsplineQuadConnectivity() (*mat.Dense, [][]int) {
	var (
		grid   = []float64{-1, 0, 1, 2}
		coords = mat.NewDense(16, 2, nil)
		types  = make([][]int, 16)
	)
	coords.SetRow(0, []float64{0, 0})
	coords.SetRow(1, []float64{1, 0})
	coords.SetRow(2, []float64{1, 1})
	coords.SetRow(3, []float64{0, 1})
	row := 4
	for _, y := range grid {
		for _, x := range grid {
			corner := (x == 0 || x == 1) && (y == 0 || y == 1)
			if corner {
				continue
			}
			coords.SetRow(row, []float64{x, y})
			row++
		}
	}
	for i := range types {
		types[i] = []int{BSplineRegular, BSplineRegular}
	}
	return coords, types
}

func TestBSplineKernelPartitionOfUnity(t *testing.T) {
	// Interior stencil: nodes at integer spacing, all regular
	for _, x := range []float64{0., 0.25, 0.5, 0.99} {
		var sum float64
		for _, node := range []float64{-1, 0, 1, 2} {
			sum += bsplineKernel(x-node, BSplineRegular)
		}
		assert.True(t, near(sum, 1., 1.e-12), "interior kernel sum at %v", x)
	}
	// Lower-boundary stencil: node types 1, 2, 0 at positions 0, 1, 2; the
	// type-1 node absorbs the ghost kernel beyond the domain edge
	for _, x := range []float64{0., 0.25, 0.75, 0.99} {
		sum := bsplineKernel(x-0., BSplineLowerBoundary) +
			bsplineKernel(x-1., BSplineLowerIntermediate) +
			bsplineKernel(x-2., BSplineRegular)
		assert.True(t, near(sum, 1., 1.e-12), "boundary kernel sum at %v", x)
	}
	// Upper-boundary stencil mirrors the lower one
	for _, x := range []float64{2.01, 2.5, 3.} {
		sum := bsplineKernel(x-1., BSplineRegular) +
			bsplineKernel(x-2., BSplineUpperIntermediate) +
			bsplineKernel(x-3., BSplineUpperBoundary)
		assert.True(t, near(sum, 1., 1.e-12), "upper boundary kernel sum at %v", x)
	}
}

func TestBSplineQuadrilateralShapefn(t *testing.T) {
	b := NewBSplineQuadrilateral()
	assert.Equal(t, BSplineMPM, b.ShapefnType())
	assert.Equal(t, DegreeQuadratic, b.Degree())
	assert.Equal(t, 4, b.NFunctions())

	coords, types := bsplineQuadConnectivity()
	assert.NoError(t, b.InitialiseBSplineConnectivity(coords, types))
	assert.Equal(t, 16, b.NFunctions())

	size := mat.NewVecDense(2, nil)
	defGrad := identity(2)
	for _, s := range [][]float64{{0, 0}, {-0.5, 0.3}, {0.8, -0.8}} {
		xi := mat.NewVecDense(2, s)
		sf := b.Shapefn(xi, size, defGrad)
		var sum float64
		for i := 0; i < sf.Len(); i++ {
			sum += sf.AtVec(i)
			assert.True(t, sf.AtVec(i) >= 0.)
		}
		assert.True(t, near(sum, 1., 1.e-10), "bspline partition of unity at %v", s)
	}
}

func TestBSplineQuadrilateralGradients(t *testing.T) {
	b := NewBSplineQuadrilateral()
	coords, types := bsplineQuadConnectivity()
	assert.NoError(t, b.InitialiseBSplineConnectivity(coords, types))

	const h = 1.e-6
	size := mat.NewVecDense(2, nil)
	defGrad := identity(2)
	xi := mat.NewVecDense(2, []float64{0.2, -0.4})
	grad := b.GradShapefn(xi, size, defGrad)
	// The cell spans one spacing unit, so dp/dxi = 1/2 on both axes:
	// physical gradients are twice the local finite differences.
	for d := 0; d < 2; d++ {
		xp := mat.VecDenseCopyOf(xi)
		xm := mat.VecDenseCopyOf(xi)
		xp.SetVec(d, xi.AtVec(d)+h)
		xm.SetVec(d, xi.AtVec(d)-h)
		sfp := b.Shapefn(xp, size, defGrad)
		sfm := b.Shapefn(xm, size, defGrad)
		for i := 0; i < b.NFunctions(); i++ {
			fd := (sfp.AtVec(i) - sfm.AtVec(i)) / (2. * h) * 2.
			assert.InDelta(t, fd, grad.At(i, d), 1.e-6)
		}
	}
	// Gradients of a partition of unity sum to zero
	for d := 0; d < 2; d++ {
		var sum float64
		for i := 0; i < b.NFunctions(); i++ {
			sum += grad.At(i, d)
		}
		assert.True(t, near(sum, 0., 1.e-10))
	}
}

func TestBSplineFallbackAndErrors(t *testing.T) {
	b := NewBSplineQuadrilateral()
	// Base node count: falls back to the linear element
	corners := mat.NewDense(4, 2, []float64{0, 0, 1, 0, 1, 1, 0, 1})
	assert.NoError(t, b.InitialiseBSplineConnectivity(corners, nil))
	assert.Equal(t, 4, b.NFunctions())
	size := mat.NewVecDense(2, nil)
	sf := b.Shapefn(mat.NewVecDense(2, nil), size, identity(2))
	for i := 0; i < 4; i++ {
		assert.True(t, near(sf.AtVec(i), 0.25, 1.e-12))
	}

	// Mismatched node-type rows
	coords, _ := bsplineQuadConnectivity()
	assert.Error(t, b.InitialiseBSplineConnectivity(coords, [][]int{{0, 0}}))
	// Invalid type code
	types := make([][]int, 16)
	for i := range types {
		types[i] = []int{7, 0}
	}
	assert.Error(t, b.InitialiseBSplineConnectivity(coords, types))
	// LME init is a configuration error on this family
	assert.ErrorIs(t, b.InitialiseLMEConnectivity(1, 1, false, nil), ErrUnsupported)
}

func TestBSplineHexahedron(t *testing.T) {
	b := NewBSplineHexahedron()
	assert.Equal(t, 3, b.Dim())
	assert.Equal(t, 8, b.NFunctions())

	// 4x4x4 regular stencil around the cell [0,1]^3
	var (
		grid   = []float64{-1, 0, 1, 2}
		coords = mat.NewDense(64, 3, nil)
		types  = make([][]int, 64)
	)
	for i, c := range hexCorners {
		coords.SetRow(i, []float64{(c[0] + 1.) / 2., (c[1] + 1.) / 2., (c[2] + 1.) / 2.})
	}
	row := 8
	for _, z := range grid {
		for _, y := range grid {
			for _, x := range grid {
				corner := (x == 0 || x == 1) && (y == 0 || y == 1) && (z == 0 || z == 1)
				if corner {
					continue
				}
				coords.SetRow(row, []float64{x, y, z})
				row++
			}
		}
	}
	for i := range types {
		types[i] = []int{BSplineRegular, BSplineRegular, BSplineRegular}
	}
	assert.NoError(t, b.InitialiseBSplineConnectivity(coords, types))
	assert.Equal(t, 64, b.NFunctions())

	size := mat.NewVecDense(3, nil)
	defGrad := identity(3)
	for _, s := range [][]float64{{0, 0, 0}, {0.5, -0.25, 0.75}} {
		sf := b.Shapefn(mat.NewVecDense(3, s), size, defGrad)
		var sum float64
		for i := 0; i < sf.Len(); i++ {
			sum += sf.AtVec(i)
		}
		assert.True(t, near(sum, 1., 1.e-10))
	}

	// Geometry queries stay on the corner base element
	cube := mat.NewDense(8, 3, nil)
	for i, c := range hexCorners {
		cube.SetRow(i, c[:])
	}
	assert.True(t, near(b.ComputeVolume(cube), 8., 1.e-12))
	assert.Equal(t, 6, b.NFaces())
}
