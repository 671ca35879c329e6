package elements

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/geomechanics/gompm/quadrature"
)

// Triangle is the Lagrange triangle family: 3-node linear and 6-node
// quadratic variants on the reference triangle (0,0)-(1,0)-(0,1).
//
// Node numbering: corners 0 (0,0), 1 (1,0), 2 (0,1); mid-side nodes 3..5 on
// edges 0-1, 1-2, 2-0.
type Triangle struct {
	nfunctions int
	log        *logrus.Entry
}

// NewTriangle creates a triangle element with 3 or 6 nodes.
func NewTriangle(nfunctions int) (*Triangle, error) {
	if nfunctions != 3 && nfunctions != 6 {
		return nil, fmt.Errorf("%w: triangle with %d nodes", ErrUnsupported, nfunctions)
	}
	return &Triangle{
		nfunctions: nfunctions,
		log:        newLogger(fmt.Sprintf("triangle<2, %d>", nfunctions)),
	}, nil
}

func (t *Triangle) NFunctions() int { return t.nfunctions }

func (t *Triangle) Dim() int { return 2 }

func (t *Triangle) Degree() Degree {
	if t.nfunctions == 6 {
		return DegreeQuadratic
	}
	return DegreeLinear
}

func (t *Triangle) ShapefnType() ShapefnType { return NormalMPM }

var triNodes = [6][2]float64{
	{0, 0}, {1, 0}, {0, 1},
	{0.5, 0}, {0.5, 0.5}, {0, 0.5},
}

func (t *Triangle) UnitCellCoordinates() *mat.Dense {
	out := mat.NewDense(t.nfunctions, 2, nil)
	for i := 0; i < t.nfunctions; i++ {
		out.SetRow(i, triNodes[i][:])
	}
	return out
}

func (t *Triangle) Shapefn(xi, _ *mat.VecDense, _ *mat.Dense) *mat.VecDense {
	var (
		x  = xi.AtVec(0)
		y  = xi.AtVec(1)
		l0 = 1. - x - y
		sf = mat.NewVecDense(t.nfunctions, nil)
	)
	if t.nfunctions == 3 {
		sf.SetVec(0, l0)
		sf.SetVec(1, x)
		sf.SetVec(2, y)
		return sf
	}
	sf.SetVec(0, l0*(2.*l0-1.))
	sf.SetVec(1, x*(2.*x-1.))
	sf.SetVec(2, y*(2.*y-1.))
	sf.SetVec(3, 4.*l0*x)
	sf.SetVec(4, 4.*x*y)
	sf.SetVec(5, 4.*y*l0)
	return sf
}

func (t *Triangle) ShapefnLocal(xi, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.VecDense {
	return t.Shapefn(xi, particleSize, deformationGradient)
}

func (t *Triangle) GradShapefn(xi, _ *mat.VecDense, _ *mat.Dense) *mat.Dense {
	var (
		x    = xi.AtVec(0)
		y    = xi.AtVec(1)
		l0   = 1. - x - y
		grad = mat.NewDense(t.nfunctions, 2, nil)
	)
	if t.nfunctions == 3 {
		grad.SetRow(0, []float64{-1, -1})
		grad.SetRow(1, []float64{1, 0})
		grad.SetRow(2, []float64{0, 1})
		return grad
	}
	grad.SetRow(0, []float64{1. - 4.*l0, 1. - 4.*l0})
	grad.SetRow(1, []float64{4.*x - 1., 0})
	grad.SetRow(2, []float64{0, 4.*y - 1.})
	grad.SetRow(3, []float64{4. * (l0 - x), -4. * x})
	grad.SetRow(4, []float64{4. * y, 4. * x})
	grad.SetRow(5, []float64{-4. * y, 4. * (l0 - y)})
	return grad
}

func (t *Triangle) Jacobian(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense {
	grad := t.GradShapefn(xi, particleSize, deformationGradient)
	return jacobian(grad, nodalCoordinates, t.log)
}

func (t *Triangle) JacobianLocal(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense {
	return t.Jacobian(xi, nodalCoordinates, particleSize, deformationGradient)
}

func (t *Triangle) DnDx(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense {
	grad := t.GradShapefn(xi, particleSize, deformationGradient)
	J := jacobian(grad, nodalCoordinates, t.log)
	return dnDx(grad, J)
}

func (t *Triangle) BMatrix(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) []*mat.Dense {
	return bmatrixBlocks(t.DnDx(xi, nodalCoordinates, particleSize, deformationGradient))
}

func (t *Triangle) NiNjMatrix(xis []*mat.VecDense) *mat.Dense { return niNj(t, xis) }

func (t *Triangle) LaplaceMatrix(xis []*mat.VecDense, nodalCoordinates *mat.Dense) *mat.Dense {
	return laplace(t, xis, nodalCoordinates)
}

var triSides = [][2]int{{0, 1}, {1, 2}, {2, 0}}

func (t *Triangle) SidesIndices() [][2]int { return triSides }

func (t *Triangle) CornerIndices() []int { return []int{0, 1, 2} }

var triFaces3 = [3][]int{{0, 1}, {1, 2}, {2, 0}}

var triFaces6 = [3][]int{{0, 1, 3}, {1, 2, 4}, {2, 0, 5}}

func (t *Triangle) FaceIndices(faceID int) ([]int, error) {
	if faceID < 0 || faceID >= 3 {
		return nil, fmt.Errorf("triangle face id %d out of range", faceID)
	}
	if t.nfunctions == 6 {
		return triFaces6[faceID], nil
	}
	return triFaces3[faceID], nil
}

func (t *Triangle) NFaces() int { return 3 }

func (t *Triangle) UnitElementLength() float64 { return 1. }

func (t *Triangle) Quadrature(order int) (*quadrature.Rule, error) {
	switch order {
	case 1:
		return quadrature.NewTriangle(1)
	case 2:
		return quadrature.NewTriangle(3)
	}
	return nil, fmt.Errorf("triangle quadrature order %d is not defined", order)
}

// ComputeVolume returns the signed corner-triangle area.
func (t *Triangle) ComputeVolume(nodalCoordinates *mat.Dense) float64 {
	var (
		ax = nodalCoordinates.At(1, 0) - nodalCoordinates.At(0, 0)
		ay = nodalCoordinates.At(1, 1) - nodalCoordinates.At(0, 1)
		bx = nodalCoordinates.At(2, 0) - nodalCoordinates.At(0, 0)
		by = nodalCoordinates.At(2, 1) - nodalCoordinates.At(0, 1)
	)
	return 0.5 * (ax*by - ay*bx)
}

func (t *Triangle) IsValidNaturalCoordinatesAnalytical() bool { return t.nfunctions == 3 }

// NaturalCoordinatesAnalytical inverts the affine map of the linear triangle
// in closed form. The quadratic variant is not affine and reports
// ErrUnsupported.
func (t *Triangle) NaturalCoordinatesAnalytical(point *mat.VecDense, nodalCoordinates *mat.Dense) (*mat.VecDense, error) {
	if t.nfunctions != 3 {
		return nil, fmt.Errorf("%w: analytical natural coordinates on a quadratic triangle", ErrUnsupported)
	}
	var (
		ax = nodalCoordinates.At(1, 0) - nodalCoordinates.At(0, 0)
		ay = nodalCoordinates.At(1, 1) - nodalCoordinates.At(0, 1)
		bx = nodalCoordinates.At(2, 0) - nodalCoordinates.At(0, 0)
		by = nodalCoordinates.At(2, 1) - nodalCoordinates.At(0, 1)
		px = point.AtVec(0) - nodalCoordinates.At(0, 0)
		py = point.AtVec(1) - nodalCoordinates.At(0, 1)
	)
	det := ax*by - ay*bx
	if det == 0 {
		return nil, fmt.Errorf("natural coordinates: collapsed triangle")
	}
	xi := mat.NewVecDense(2, nil)
	xi.SetVec(0, (px*by-py*bx)/det)
	xi.SetVec(1, (ax*py-ay*px)/det)
	return xi, nil
}

func (t *Triangle) InitialiseBSplineConnectivity(_ *mat.Dense, _ [][]int) error {
	return fmt.Errorf("%w: bspline connectivity on a Lagrange triangle", ErrUnsupported)
}

func (t *Triangle) InitialiseLMEConnectivity(_, _ float64, _ bool, _ *mat.Dense) error {
	return fmt.Errorf("%w: lme connectivity on a Lagrange triangle", ErrUnsupported)
}
