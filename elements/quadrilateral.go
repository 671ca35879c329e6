package elements

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/geomechanics/gompm/quadrature"
)

// Quadrilateral is the Lagrange quadrilateral family: 4-node bilinear,
// 8-node serendipity and 9-node biquadratic variants.
//
// Node numbering: corners 0 (-1,-1), 1 (1,-1), 2 (1,1), 3 (-1,1); mid-side
// nodes 4..7 on edges 0-1, 1-2, 2-3, 3-0; node 8 at the centre.
type Quadrilateral struct {
	nfunctions int
	log        *logrus.Entry
}

// NewQuadrilateral creates a quadrilateral element with 4, 8 or 9 nodes.
func NewQuadrilateral(nfunctions int) (*Quadrilateral, error) {
	if nfunctions != 4 && nfunctions != 8 && nfunctions != 9 {
		return nil, fmt.Errorf("%w: quadrilateral with %d nodes", ErrUnsupported, nfunctions)
	}
	return &Quadrilateral{
		nfunctions: nfunctions,
		log:        newLogger(fmt.Sprintf("quadrilateral<2, %d>", nfunctions)),
	}, nil
}

func (q *Quadrilateral) NFunctions() int { return q.nfunctions }

func (q *Quadrilateral) Dim() int { return 2 }

func (q *Quadrilateral) Degree() Degree {
	if q.nfunctions == 4 {
		return DegreeLinear
	}
	return DegreeQuadratic
}

func (q *Quadrilateral) ShapefnType() ShapefnType { return NormalMPM }

var quadNodes = [9][2]float64{
	{-1, -1}, {1, -1}, {1, 1}, {-1, 1},
	{0, -1}, {1, 0}, {0, 1}, {-1, 0},
	{0, 0},
}

func (q *Quadrilateral) UnitCellCoordinates() *mat.Dense {
	out := mat.NewDense(q.nfunctions, 2, nil)
	for i := 0; i < q.nfunctions; i++ {
		out.SetRow(i, quadNodes[i][:])
	}
	return out
}

// lag1 is the 1D quadratic Lagrange basis on nodes {-1, 0, 1}.
func lag1(c, t float64) float64 {
	switch c {
	case -1:
		return 0.5 * t * (t - 1.)
	case 1:
		return 0.5 * t * (t + 1.)
	default:
		return 1. - t*t
	}
}

func dlag1(c, t float64) float64 {
	switch c {
	case -1:
		return t - 0.5
	case 1:
		return t + 0.5
	default:
		return -2. * t
	}
}

func (q *Quadrilateral) Shapefn(xi, _ *mat.VecDense, _ *mat.Dense) *mat.VecDense {
	var (
		x  = xi.AtVec(0)
		y  = xi.AtVec(1)
		sf = mat.NewVecDense(q.nfunctions, nil)
	)
	switch q.nfunctions {
	case 4:
		for i := 0; i < 4; i++ {
			c := quadNodes[i]
			sf.SetVec(i, 0.25*(1.+x*c[0])*(1.+y*c[1]))
		}
	case 8:
		for i := 0; i < 4; i++ {
			c := quadNodes[i]
			a, b := x*c[0], y*c[1]
			sf.SetVec(i, 0.25*(1.+a)*(1.+b)*(a+b-1.))
		}
		for i := 4; i < 8; i++ {
			c := quadNodes[i]
			if c[0] == 0 {
				sf.SetVec(i, 0.5*(1.-x*x)*(1.+y*c[1]))
			} else {
				sf.SetVec(i, 0.5*(1.+x*c[0])*(1.-y*y))
			}
		}
	case 9:
		for i := 0; i < 9; i++ {
			c := quadNodes[i]
			sf.SetVec(i, lag1(c[0], x)*lag1(c[1], y))
		}
	}
	return sf
}

func (q *Quadrilateral) ShapefnLocal(xi, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.VecDense {
	return q.Shapefn(xi, particleSize, deformationGradient)
}

func (q *Quadrilateral) GradShapefn(xi, _ *mat.VecDense, _ *mat.Dense) *mat.Dense {
	var (
		x    = xi.AtVec(0)
		y    = xi.AtVec(1)
		grad = mat.NewDense(q.nfunctions, 2, nil)
	)
	switch q.nfunctions {
	case 4:
		for i := 0; i < 4; i++ {
			c := quadNodes[i]
			grad.Set(i, 0, 0.25*c[0]*(1.+y*c[1]))
			grad.Set(i, 1, 0.25*(1.+x*c[0])*c[1])
		}
	case 8:
		for i := 0; i < 4; i++ {
			c := quadNodes[i]
			a, b := x*c[0], y*c[1]
			grad.Set(i, 0, 0.25*c[0]*(1.+b)*(2.*a+b))
			grad.Set(i, 1, 0.25*c[1]*(1.+a)*(a+2.*b))
		}
		for i := 4; i < 8; i++ {
			c := quadNodes[i]
			if c[0] == 0 {
				grad.Set(i, 0, -x*(1.+y*c[1]))
				grad.Set(i, 1, 0.5*(1.-x*x)*c[1])
			} else {
				grad.Set(i, 0, 0.5*c[0]*(1.-y*y))
				grad.Set(i, 1, -y*(1.+x*c[0]))
			}
		}
	case 9:
		for i := 0; i < 9; i++ {
			c := quadNodes[i]
			grad.Set(i, 0, dlag1(c[0], x)*lag1(c[1], y))
			grad.Set(i, 1, lag1(c[0], x)*dlag1(c[1], y))
		}
	}
	return grad
}

func (q *Quadrilateral) Jacobian(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense {
	grad := q.GradShapefn(xi, particleSize, deformationGradient)
	return jacobian(grad, nodalCoordinates, q.log)
}

func (q *Quadrilateral) JacobianLocal(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense {
	return q.Jacobian(xi, nodalCoordinates, particleSize, deformationGradient)
}

func (q *Quadrilateral) DnDx(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense {
	grad := q.GradShapefn(xi, particleSize, deformationGradient)
	J := jacobian(grad, nodalCoordinates, q.log)
	return dnDx(grad, J)
}

func (q *Quadrilateral) BMatrix(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) []*mat.Dense {
	return bmatrixBlocks(q.DnDx(xi, nodalCoordinates, particleSize, deformationGradient))
}

func (q *Quadrilateral) NiNjMatrix(xis []*mat.VecDense) *mat.Dense { return niNj(q, xis) }

func (q *Quadrilateral) LaplaceMatrix(xis []*mat.VecDense, nodalCoordinates *mat.Dense) *mat.Dense {
	return laplace(q, xis, nodalCoordinates)
}

var quadSides = [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}}

func (q *Quadrilateral) SidesIndices() [][2]int { return quadSides }

func (q *Quadrilateral) CornerIndices() []int { return []int{0, 1, 2, 3} }

var quadFaces4 = [4][]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}}

var quadFaces8 = [4][]int{{0, 1, 4}, {1, 2, 5}, {2, 3, 6}, {3, 0, 7}}

func (q *Quadrilateral) FaceIndices(faceID int) ([]int, error) {
	if faceID < 0 || faceID >= 4 {
		return nil, fmt.Errorf("quadrilateral face id %d out of range", faceID)
	}
	if q.nfunctions == 4 {
		return quadFaces4[faceID], nil
	}
	return quadFaces8[faceID], nil
}

func (q *Quadrilateral) NFaces() int { return 4 }

func (q *Quadrilateral) UnitElementLength() float64 { return 2. }

func (q *Quadrilateral) Quadrature(order int) (*quadrature.Rule, error) {
	return quadrature.NewQuadrilateral(order)
}

// ComputeVolume returns the signed corner-polygon area; negative or
// near-zero results indicate an inverted or collapsed cell.
func (q *Quadrilateral) ComputeVolume(nodalCoordinates *mat.Dense) float64 {
	var area float64
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		area += nodalCoordinates.At(i, 0)*nodalCoordinates.At(j, 1) -
			nodalCoordinates.At(j, 0)*nodalCoordinates.At(i, 1)
	}
	return 0.5 * area
}

func (q *Quadrilateral) IsValidNaturalCoordinatesAnalytical() bool { return false }

func (q *Quadrilateral) NaturalCoordinatesAnalytical(_ *mat.VecDense, _ *mat.Dense) (*mat.VecDense, error) {
	return nil, fmt.Errorf("%w: analytical natural coordinates on a quadrilateral", ErrUnsupported)
}

func (q *Quadrilateral) InitialiseBSplineConnectivity(_ *mat.Dense, _ [][]int) error {
	return fmt.Errorf("%w: bspline connectivity on a Lagrange quadrilateral", ErrUnsupported)
}

func (q *Quadrilateral) InitialiseLMEConnectivity(_, _ float64, _ bool, _ *mat.Dense) error {
	return fmt.Errorf("%w: lme connectivity on a Lagrange quadrilateral", ErrUnsupported)
}
