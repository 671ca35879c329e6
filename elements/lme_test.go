package elements

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

// 3x3 support grid on [-1,1]^2: cell corners first, then edge midpoints and
// the centre.
func lmeQuadConnectivity() *mat.Dense {
	return mat.NewDense(9, 2, []float64{
		-1, -1, 1, -1, 1, 1, -1, 1,
		0, -1, 1, 0, 0, 1, -1, 0,
		0, 0,
	})
}

func TestLMEShapefn(t *testing.T) {
	l := NewLMEQuadrilateral()
	assert.Equal(t, LMEMPM, l.ShapefnType())
	assert.Equal(t, DegreeInfinity, l.Degree())

	assert.Error(t, l.InitialiseLMEConnectivity(-1, 1, false, lmeQuadConnectivity()))
	assert.Error(t, l.InitialiseLMEConnectivity(1, 0, false, lmeQuadConnectivity()))
	assert.NoError(t, l.InitialiseLMEConnectivity(1.5, 10., false, lmeQuadConnectivity()))
	assert.Equal(t, 9, l.NFunctions())

	size := mat.NewVecDense(2, nil)
	defGrad := identity(2)
	for _, s := range [][]float64{{0, 0}, {0.3, -0.2}, {-0.6, 0.5}} {
		xi := mat.NewVecDense(2, s)
		sf := l.Shapefn(xi, size, defGrad)
		var sum, px, py float64
		for i := 0; i < sf.Len(); i++ {
			assert.True(t, sf.AtVec(i) >= 0.)
			sum += sf.AtVec(i)
			px += sf.AtVec(i) * lmeQuadConnectivity().At(i, 0)
			py += sf.AtVec(i) * lmeQuadConnectivity().At(i, 1)
		}
		// Zeroth- and first-order reproducing conditions: the cell corners
		// coincide with the unit cell, so the real point is xi itself.
		assert.True(t, near(sum, 1., 1.e-10), "lme partition of unity at %v", s)
		assert.True(t, near(px, s[0], 1.e-8), "lme linear reproduction x at %v", s)
		assert.True(t, near(py, s[1], 1.e-8), "lme linear reproduction y at %v", s)
	}
}

func TestLMEGradients(t *testing.T) {
	l := NewLMEQuadrilateral()
	assert.NoError(t, l.InitialiseLMEConnectivity(1.5, 10., false, lmeQuadConnectivity()))

	const h = 1.e-6
	size := mat.NewVecDense(2, nil)
	defGrad := identity(2)
	xi := mat.NewVecDense(2, []float64{0.25, -0.35})
	grad := l.GradShapefn(xi, size, defGrad)
	// Corners span the unit cell, so the geometry map is the identity and
	// physical gradients match local finite differences.
	for d := 0; d < 2; d++ {
		xp := mat.VecDenseCopyOf(xi)
		xm := mat.VecDenseCopyOf(xi)
		xp.SetVec(d, xi.AtVec(d)+h)
		xm.SetVec(d, xi.AtVec(d)-h)
		sfp := l.Shapefn(xp, size, defGrad)
		sfm := l.Shapefn(xm, size, defGrad)
		for i := 0; i < l.NFunctions(); i++ {
			fd := (sfp.AtVec(i) - sfm.AtVec(i)) / (2. * h)
			assert.InDelta(t, fd, grad.At(i, d), 1.e-5)
		}
	}
	// Gradient sums vanish
	for d := 0; d < 2; d++ {
		var sum float64
		for i := 0; i < l.NFunctions(); i++ {
			sum += grad.At(i, d)
		}
		assert.True(t, near(sum, 0., 1.e-8))
	}
}

func TestLMESupportRadius(t *testing.T) {
	l := NewLMEQuadrilateral()
	// Tight radius: far nodes carry exactly zero weight
	coords := mat.NewDense(5, 2, []float64{
		-1, -1, 1, -1, 1, 1, -1, 1,
		50, 50,
	})
	assert.NoError(t, l.InitialiseLMEConnectivity(1., 3., false, coords))
	sf := l.Shapefn(mat.NewVecDense(2, nil), mat.NewVecDense(2, nil), identity(2))
	assert.Equal(t, 5, sf.Len())
	assert.True(t, near(sf.AtVec(4), 0., 1.e-15))
	var sum float64
	for i := 0; i < 5; i++ {
		sum += sf.AtVec(i)
	}
	assert.True(t, near(sum, 1., 1.e-10))
}

func TestLMEAnisotropy(t *testing.T) {
	l := NewLMEHexahedron()
	coords := mat.NewDense(8, 3, nil)
	for i, c := range hexCorners {
		coords.SetRow(i, c[:])
	}
	assert.NoError(t, l.InitialiseLMEConnectivity(0.8, 10., true, coords))

	// A stretched deformation gradient reshapes the kernel but keeps the
	// partition of unity.
	defGrad := mat.NewDense(3, 3, []float64{
		1.2, 0, 0,
		0, 0.9, 0,
		0, 0, 1.1,
	})
	sf := l.Shapefn(mat.NewVecDense(3, []float64{0.2, 0.1, -0.3}), mat.NewVecDense(3, nil), defGrad)
	var sum float64
	for i := 0; i < sf.Len(); i++ {
		sum += sf.AtVec(i)
	}
	assert.True(t, near(sum, 1., 1.e-10))
}

func TestLMEUninitialisedFallsBackToBase(t *testing.T) {
	l := NewLMEQuadrilateral()
	sf := l.Shapefn(mat.NewVecDense(2, nil), mat.NewVecDense(2, nil), identity(2))
	assert.Equal(t, 4, sf.Len())
	for i := 0; i < 4; i++ {
		assert.True(t, near(sf.AtVec(i), 0.25, 1.e-12))
	}
	assert.ErrorIs(t, l.InitialiseBSplineConnectivity(nil, nil), ErrUnsupported)
}
