package elements

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/geomechanics/gompm/quadrature"
)

// Hexahedron is the Lagrange hexahedron family: 8-node trilinear and 20-node
// serendipity variants.
//
// Node numbering, 8-node:
//
//	bottom (zeta=-1): 0 (-1,-1), 1 (1,-1), 2 (1,1), 3 (-1,1)
//	top    (zeta=+1): 4 (-1,-1), 5 (1,-1), 6 (1,1), 7 (-1,1)
//
// The 20-node variant appends one mid-side node per edge (nodes 8..19).
//
// Face numbering: F0 bottom (zeta=-1), F1 right (xi=+1), F2 top (zeta=+1),
// F3 left (xi=-1), F4 rear (eta=+1), F5 front (eta=-1).
type Hexahedron struct {
	nfunctions int
	log        *logrus.Entry
}

// NewHexahedron creates a hexahedron element with 8 or 20 nodes.
func NewHexahedron(nfunctions int) (*Hexahedron, error) {
	if nfunctions != 8 && nfunctions != 20 {
		return nil, fmt.Errorf("%w: hexahedron with %d nodes", ErrUnsupported, nfunctions)
	}
	return &Hexahedron{
		nfunctions: nfunctions,
		log:        newLogger(fmt.Sprintf("hexahedron<3, %d>", nfunctions)),
	}, nil
}

func (h *Hexahedron) NFunctions() int { return h.nfunctions }

func (h *Hexahedron) Dim() int { return 3 }

func (h *Hexahedron) Degree() Degree {
	if h.nfunctions == 20 {
		return DegreeQuadratic
	}
	return DegreeLinear
}

func (h *Hexahedron) ShapefnType() ShapefnType { return NormalMPM }

// hexCorners holds the unit-cell coordinates of the 8 corner nodes.
var hexCorners = [8][3]float64{
	{-1, -1, -1}, {1, -1, -1}, {1, 1, -1}, {-1, 1, -1},
	{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1},
}

// hexMidsides holds the unit-cell coordinates of the 12 mid-side nodes of the
// 20-node serendipity variant, in element-local order 8..19.
var hexMidsides = [12][3]float64{
	{0, -1, -1}, {-1, 0, -1}, {-1, -1, 0}, {1, 0, -1},
	{1, -1, 0}, {0, 1, -1}, {1, 1, 0}, {-1, 1, 0},
	{0, -1, 1}, {-1, 0, 1}, {1, 0, 1}, {0, 1, 1},
}

func (h *Hexahedron) UnitCellCoordinates() *mat.Dense {
	out := mat.NewDense(h.nfunctions, 3, nil)
	for i, c := range hexCorners {
		out.SetRow(i, c[:])
	}
	if h.nfunctions == 20 {
		for i, c := range hexMidsides {
			out.SetRow(8+i, c[:])
		}
	}
	return out
}

func (h *Hexahedron) Shapefn(xi, _ *mat.VecDense, _ *mat.Dense) *mat.VecDense {
	var (
		x  = xi.AtVec(0)
		y  = xi.AtVec(1)
		z  = xi.AtVec(2)
		sf = mat.NewVecDense(h.nfunctions, nil)
	)
	if h.nfunctions == 8 {
		for i, c := range hexCorners {
			sf.SetVec(i, 0.125*(1.+x*c[0])*(1.+y*c[1])*(1.+z*c[2]))
		}
		return sf
	}
	for i, c := range hexCorners {
		a, b, g := x*c[0], y*c[1], z*c[2]
		sf.SetVec(i, 0.125*(1.+a)*(1.+b)*(1.+g)*(a+b+g-2.))
	}
	for i, c := range hexMidsides {
		var v float64
		switch {
		case c[0] == 0:
			v = 0.25 * (1. - x*x) * (1. + y*c[1]) * (1. + z*c[2])
		case c[1] == 0:
			v = 0.25 * (1. + x*c[0]) * (1. - y*y) * (1. + z*c[2])
		default:
			v = 0.25 * (1. + x*c[0]) * (1. + y*c[1]) * (1. - z*z)
		}
		sf.SetVec(8+i, v)
	}
	return sf
}

func (h *Hexahedron) ShapefnLocal(xi, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.VecDense {
	return h.Shapefn(xi, particleSize, deformationGradient)
}

func (h *Hexahedron) GradShapefn(xi, _ *mat.VecDense, _ *mat.Dense) *mat.Dense {
	var (
		x    = xi.AtVec(0)
		y    = xi.AtVec(1)
		z    = xi.AtVec(2)
		grad = mat.NewDense(h.nfunctions, 3, nil)
	)
	if h.nfunctions == 8 {
		for i, c := range hexCorners {
			grad.Set(i, 0, 0.125*c[0]*(1.+y*c[1])*(1.+z*c[2]))
			grad.Set(i, 1, 0.125*(1.+x*c[0])*c[1]*(1.+z*c[2]))
			grad.Set(i, 2, 0.125*(1.+x*c[0])*(1.+y*c[1])*c[2])
		}
		return grad
	}
	for i, c := range hexCorners {
		a, b, g := x*c[0], y*c[1], z*c[2]
		grad.Set(i, 0, 0.125*c[0]*(1.+b)*(1.+g)*(2.*a+b+g-1.))
		grad.Set(i, 1, 0.125*c[1]*(1.+a)*(1.+g)*(a+2.*b+g-1.))
		grad.Set(i, 2, 0.125*c[2]*(1.+a)*(1.+b)*(a+b+2.*g-1.))
	}
	for i, c := range hexMidsides {
		row := 8 + i
		switch {
		case c[0] == 0:
			grad.Set(row, 0, -0.5*x*(1.+y*c[1])*(1.+z*c[2]))
			grad.Set(row, 1, 0.25*(1.-x*x)*c[1]*(1.+z*c[2]))
			grad.Set(row, 2, 0.25*(1.-x*x)*(1.+y*c[1])*c[2])
		case c[1] == 0:
			grad.Set(row, 0, 0.25*c[0]*(1.-y*y)*(1.+z*c[2]))
			grad.Set(row, 1, -0.5*y*(1.+x*c[0])*(1.+z*c[2]))
			grad.Set(row, 2, 0.25*(1.+x*c[0])*(1.-y*y)*c[2])
		default:
			grad.Set(row, 0, 0.25*c[0]*(1.+y*c[1])*(1.-z*z))
			grad.Set(row, 1, 0.25*(1.+x*c[0])*c[1]*(1.-z*z))
			grad.Set(row, 2, -0.5*z*(1.+x*c[0])*(1.+y*c[1]))
		}
	}
	return grad
}

func (h *Hexahedron) Jacobian(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense {
	grad := h.GradShapefn(xi, particleSize, deformationGradient)
	return jacobian(grad, nodalCoordinates, h.log)
}

func (h *Hexahedron) JacobianLocal(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense {
	return h.Jacobian(xi, nodalCoordinates, particleSize, deformationGradient)
}

func (h *Hexahedron) DnDx(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense {
	grad := h.GradShapefn(xi, particleSize, deformationGradient)
	J := jacobian(grad, nodalCoordinates, h.log)
	return dnDx(grad, J)
}

func (h *Hexahedron) BMatrix(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) []*mat.Dense {
	return bmatrixBlocks(h.DnDx(xi, nodalCoordinates, particleSize, deformationGradient))
}

func (h *Hexahedron) NiNjMatrix(xis []*mat.VecDense) *mat.Dense { return niNj(h, xis) }

func (h *Hexahedron) LaplaceMatrix(xis []*mat.VecDense, nodalCoordinates *mat.Dense) *mat.Dense {
	return laplace(h, xis, nodalCoordinates)
}

// hexSides lists the corner-node pairs forming the 12 edges.
var hexSides = [][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 0},
	{4, 5}, {5, 6}, {6, 7}, {7, 4},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

func (h *Hexahedron) SidesIndices() [][2]int { return hexSides }

func (h *Hexahedron) CornerIndices() []int { return []int{0, 1, 2, 3, 4, 5, 6, 7} }

var hexFaces8 = [6][]int{
	{0, 3, 2, 1}, {1, 2, 6, 5}, {4, 5, 6, 7},
	{0, 4, 7, 3}, {2, 3, 7, 6}, {0, 1, 5, 4},
}

var hexFaces20 = [6][]int{
	{0, 3, 2, 1, 9, 13, 11, 8},
	{1, 2, 6, 5, 11, 14, 18, 12},
	{4, 5, 6, 7, 16, 18, 19, 17},
	{0, 4, 7, 3, 10, 17, 15, 9},
	{2, 3, 7, 6, 13, 15, 19, 14},
	{0, 1, 5, 4, 8, 12, 16, 10},
}

func (h *Hexahedron) FaceIndices(faceID int) ([]int, error) {
	if faceID < 0 || faceID >= 6 {
		return nil, fmt.Errorf("hexahedron face id %d out of range", faceID)
	}
	if h.nfunctions == 20 {
		return hexFaces20[faceID], nil
	}
	return hexFaces8[faceID], nil
}

func (h *Hexahedron) NFaces() int { return 6 }

func (h *Hexahedron) UnitElementLength() float64 { return 2. }

func (h *Hexahedron) Quadrature(order int) (*quadrature.Rule, error) {
	return quadrature.NewHexahedron(order)
}

// ComputeVolume evaluates the signed hexahedral volume from the 8 corner
// nodes via the long-diagonal decomposition into tetrahedral terms. Node
// rows beyond the corners (20-node variant) do not enter the volume.
func (h *Hexahedron) ComputeVolume(nodalCoordinates *mat.Dense) float64 {
	row := func(i int) [3]float64 {
		return [3]float64{
			nodalCoordinates.At(i, 0), nodalCoordinates.At(i, 1), nodalCoordinates.At(i, 2),
		}
	}
	x0, x1, x2, x3 := row(0), row(1), row(2), row(3)
	x4, x5, x6, x7 := row(4), row(5), row(6), row(7)

	v := tripleProduct(add3(sub3(x6, x1), sub3(x7, x0)), sub3(x6, x3), sub3(x2, x0))
	v += tripleProduct(sub3(x7, x0), add3(sub3(x6, x3), sub3(x7, x2)), sub3(x6, x4))
	v += tripleProduct(sub3(x6, x1), sub3(x5, x0), add3(sub3(x6, x4), sub3(x7, x2)))
	return v / 6.
}

func sub3(a, b [3]float64) [3]float64 { return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }

func add3(a, b [3]float64) [3]float64 { return [3]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }

func tripleProduct(a, b, c [3]float64) float64 {
	return a[0]*(b[1]*c[2]-b[2]*c[1]) + a[1]*(b[2]*c[0]-b[0]*c[2]) + a[2]*(b[0]*c[1]-b[1]*c[0])
}

func (h *Hexahedron) IsValidNaturalCoordinatesAnalytical() bool { return false }

func (h *Hexahedron) NaturalCoordinatesAnalytical(_ *mat.VecDense, _ *mat.Dense) (*mat.VecDense, error) {
	return nil, fmt.Errorf("%w: analytical natural coordinates on a hexahedron", ErrUnsupported)
}

func (h *Hexahedron) InitialiseBSplineConnectivity(_ *mat.Dense, _ [][]int) error {
	return fmt.Errorf("%w: bspline connectivity on a Lagrange hexahedron", ErrUnsupported)
}

func (h *Hexahedron) InitialiseLMEConnectivity(_, _ float64, _ bool, _ *mat.Dense) error {
	return fmt.Errorf("%w: lme connectivity on a Lagrange hexahedron", ErrUnsupported)
}
