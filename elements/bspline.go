package elements

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/geomechanics/gompm/quadrature"
)

// Node-type codes for B-spline connectivity, assigned per node and per
// dimension by the mesh from the node's position relative to the domain
// boundary.
const (
	BSplineRegular           = 0
	BSplineLowerBoundary     = 1
	BSplineLowerIntermediate = 2
	BSplineUpperIntermediate = 3
	BSplineUpperBoundary     = 4
	bsplineLowerGhost        = 5
	bsplineUpperGhost        = 6
)

// Knot vectors per node type for the quadratic kernel, in units of the nodal
// spacing, centred on the node. Types 5 and 6 are the ghost kernels folded
// into edge nodes to keep partition of unity near the domain boundary.
var bsplineKnots = [7][4]float64{
	{-1.5, -0.5, 0.5, 1.5},
	{0, 0, 0.5, 1.5},
	{-1, -0.5, 0.5, 1.5},
	{-1.5, -0.5, 0.5, 1},
	{-1.5, -0.5, 0, 0},
	{0, 0, 0, 0.5},
	{-0.5, 0, 0, 0},
}

// coxDeBoor evaluates basis function k of degree p on the given knots.
// Degenerate (repeated-knot) spans contribute zero. Spans are half-open
// except at the final knot value, which is included so the basis does not
// vanish on the closing domain edge.
func coxDeBoor(t float64, knots []float64, k, p int) float64 {
	if p == 0 {
		if knots[k] == knots[k+1] {
			return 0.
		}
		if t >= knots[k] && (t < knots[k+1] || (t == knots[k+1] && knots[k+1] == knots[len(knots)-1])) {
			return 1.
		}
		return 0.
	}
	var v float64
	if d := knots[k+p] - knots[k]; d > 0 {
		v += (t - knots[k]) / d * coxDeBoor(t, knots, k, p-1)
	}
	if d := knots[k+p+1] - knots[k+1]; d > 0 {
		v += (knots[k+p+1] - t) / d * coxDeBoor(t, knots, k+1, p-1)
	}
	return v
}

// coxDeBoorDeriv is the derivative recursion on the same knot structure.
func coxDeBoorDeriv(t float64, knots []float64, k, p int) float64 {
	var v float64
	if d := knots[k+p] - knots[k]; d > 0 {
		v += float64(p) / d * coxDeBoor(t, knots, k, p-1)
	}
	if d := knots[k+p+1] - knots[k+1]; d > 0 {
		v -= float64(p) / d * coxDeBoor(t, knots, k+1, p-1)
	}
	return v
}

// bsplineKernel evaluates the quadratic kernel for a node type at t, the
// particle offset from the node in spacing units. Boundary node types 1 and 4
// absorb the adjacent ghost basis (types 5 and 6) so that the per-axis basis
// still sums to one at the domain edge. This conditional structure mirrors
// the upstream open-knot boundary correction and must not be re-derived.
func bsplineKernel(t float64, nodeType int) float64 {
	v := coxDeBoor(t, bsplineKnots[nodeType][:], 0, 2)
	if nodeType == BSplineLowerBoundary {
		v += coxDeBoor(t, bsplineKnots[bsplineLowerGhost][:], 0, 2)
	}
	if nodeType == BSplineUpperBoundary {
		v += coxDeBoor(t, bsplineKnots[bsplineUpperGhost][:], 0, 2)
	}
	return v
}

func bsplineKernelDeriv(t float64, nodeType int) float64 {
	v := coxDeBoorDeriv(t, bsplineKnots[nodeType][:], 0, 2)
	if nodeType == BSplineLowerBoundary {
		v += coxDeBoorDeriv(t, bsplineKnots[bsplineLowerGhost][:], 0, 2)
	}
	if nodeType == BSplineUpperBoundary {
		v += coxDeBoorDeriv(t, bsplineKnots[bsplineUpperGhost][:], 0, 2)
	}
	return v
}

// BSpline is a quadratic B-spline element wrapping a linear Lagrange base
// element. The base element carries the cell geometry (corner mapping,
// volume, faces); the B-spline kernel runs over the extended connectivity
// installed by InitialiseBSplineConnectivity. Until connectivity is
// installed the element behaves exactly like its linear base.
type BSpline struct {
	base Element
	log  *logrus.Entry

	// Extended connectivity; nil until initialised. The first
	// base.NFunctions() rows are the cell's own corner nodes.
	nodalCoords *mat.Dense
	nodeTypes   [][]int
	spacing     []float64
}

// NewBSplineHexahedron creates a B-spline hexahedron over an 8-node base.
func NewBSplineHexahedron() *BSpline {
	base, _ := NewHexahedron(8)
	return &BSpline{base: base, log: newLogger("hexahedron_bspline<3, 64>")}
}

// NewBSplineQuadrilateral creates a B-spline quadrilateral over a 4-node base.
func NewBSplineQuadrilateral() *BSpline {
	base, _ := NewQuadrilateral(4)
	return &BSpline{base: base, log: newLogger("quadrilateral_bspline<2, 16>")}
}

func (b *BSpline) initialised() bool { return b.nodalCoords != nil }

func (b *BSpline) NFunctions() int {
	if b.initialised() {
		n, _ := b.nodalCoords.Dims()
		return n
	}
	return b.base.NFunctions()
}

func (b *BSpline) Dim() int { return b.base.Dim() }

func (b *BSpline) Degree() Degree { return DegreeQuadratic }

func (b *BSpline) ShapefnType() ShapefnType { return BSplineMPM }

// InitialiseBSplineConnectivity installs the extended nodal coordinates and
// per-dimension node-type codes. With exactly the base node count the
// element keeps its linear-base behaviour (fallback documented by the base
// family).
func (b *BSpline) InitialiseBSplineConnectivity(nodalCoordinates *mat.Dense, nodalProperties [][]int) error {
	n, dim := nodalCoordinates.Dims()
	if dim != b.Dim() {
		return fmt.Errorf("bspline connectivity: coordinates are %dD, element is %dD", dim, b.Dim())
	}
	if n == b.base.NFunctions() {
		// Degenerate connectivity: stay on the linear base.
		b.nodalCoords = nil
		return nil
	}
	if len(nodalProperties) != n {
		return fmt.Errorf("bspline connectivity: %d node types for %d nodes", len(nodalProperties), n)
	}
	for i, props := range nodalProperties {
		if len(props) != dim {
			return fmt.Errorf("bspline connectivity: node %d has %d type codes, want %d", i, len(props), dim)
		}
		for _, p := range props {
			if p < BSplineRegular || p > BSplineUpperBoundary {
				return fmt.Errorf("bspline connectivity: node %d has invalid type code %d", i, p)
			}
		}
	}
	// Nodal spacing per axis from the cell's own corner span.
	spacing := make([]float64, dim)
	for d := 0; d < dim; d++ {
		lo, hi := nodalCoordinates.At(0, d), nodalCoordinates.At(0, d)
		for i := 1; i < b.base.NFunctions(); i++ {
			v := nodalCoordinates.At(i, d)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi <= lo {
			return fmt.Errorf("bspline connectivity: zero spacing along axis %d", d)
		}
		spacing[d] = hi - lo
	}
	b.nodalCoords = mat.DenseCopyOf(nodalCoordinates)
	b.nodeTypes = nodalProperties
	b.spacing = spacing
	return nil
}

func (b *BSpline) InitialiseLMEConnectivity(_, _ float64, _ bool, _ *mat.Dense) error {
	return fmt.Errorf("%w: lme connectivity on a bspline element", ErrUnsupported)
}

// realPoint maps the local coordinate to real space through the corner-node
// geometry interpolation.
func (b *BSpline) realPoint(xi, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.VecDense {
	var (
		dim   = b.Dim()
		baseN = b.base.NFunctions()
		sf    = b.base.Shapefn(xi, particleSize, deformationGradient)
		p     = mat.NewVecDense(dim, nil)
	)
	for d := 0; d < dim; d++ {
		var v float64
		for i := 0; i < baseN; i++ {
			v += sf.AtVec(i) * b.nodalCoords.At(i, d)
		}
		p.SetVec(d, v)
	}
	return p
}

func (b *BSpline) Shapefn(xi, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.VecDense {
	if !b.initialised() {
		return b.base.Shapefn(xi, particleSize, deformationGradient)
	}
	var (
		dim = b.Dim()
		n   = b.NFunctions()
		p   = b.realPoint(xi, particleSize, deformationGradient)
		sf  = mat.NewVecDense(n, nil)
	)
	for i := 0; i < n; i++ {
		v := 1.
		for d := 0; d < dim; d++ {
			t := (p.AtVec(d) - b.nodalCoords.At(i, d)) / b.spacing[d]
			v *= bsplineKernel(t, b.nodeTypes[i][d])
		}
		sf.SetVec(i, v)
	}
	return sf
}

func (b *BSpline) ShapefnLocal(xi, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.VecDense {
	return b.base.Shapefn(xi, particleSize, deformationGradient)
}

// GradShapefn returns physical-space gradients: the kernel is defined on real
// coordinates, so no Jacobian inversion applies downstream.
func (b *BSpline) GradShapefn(xi, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense {
	if !b.initialised() {
		return b.base.GradShapefn(xi, particleSize, deformationGradient)
	}
	var (
		dim  = b.Dim()
		n    = b.NFunctions()
		p    = b.realPoint(xi, particleSize, deformationGradient)
		grad = mat.NewDense(n, dim, nil)
	)
	for i := 0; i < n; i++ {
		kernels := make([]float64, dim)
		derivs := make([]float64, dim)
		for d := 0; d < dim; d++ {
			t := (p.AtVec(d) - b.nodalCoords.At(i, d)) / b.spacing[d]
			kernels[d] = bsplineKernel(t, b.nodeTypes[i][d])
			derivs[d] = bsplineKernelDeriv(t, b.nodeTypes[i][d]) / b.spacing[d]
		}
		for d := 0; d < dim; d++ {
			v := derivs[d]
			for e := 0; e < dim; e++ {
				if e != d {
					v *= kernels[e]
				}
			}
			grad.Set(i, d, v)
		}
	}
	return grad
}

// Jacobian is the corner-node geometry mapping Jacobian; the extended
// connectivity does not alter the cell geometry.
func (b *BSpline) Jacobian(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense {
	return b.JacobianLocal(xi, nodalCoordinates, particleSize, deformationGradient)
}

func (b *BSpline) JacobianLocal(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense {
	corners := cornerRows(nodalCoordinates, b.base.NFunctions(), b.Dim())
	return b.base.Jacobian(xi, corners, particleSize, deformationGradient)
}

func (b *BSpline) DnDx(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense {
	if !b.initialised() {
		return b.base.DnDx(xi, nodalCoordinates, particleSize, deformationGradient)
	}
	return b.GradShapefn(xi, particleSize, deformationGradient)
}

func (b *BSpline) BMatrix(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) []*mat.Dense {
	return bmatrixBlocks(b.DnDx(xi, nodalCoordinates, particleSize, deformationGradient))
}

func (b *BSpline) NiNjMatrix(xis []*mat.VecDense) *mat.Dense { return niNj(b, xis) }

func (b *BSpline) LaplaceMatrix(xis []*mat.VecDense, nodalCoordinates *mat.Dense) *mat.Dense {
	return laplace(b, xis, nodalCoordinates)
}

func (b *BSpline) UnitCellCoordinates() *mat.Dense { return b.base.UnitCellCoordinates() }

func (b *BSpline) SidesIndices() [][2]int { return b.base.SidesIndices() }

func (b *BSpline) CornerIndices() []int { return b.base.CornerIndices() }

func (b *BSpline) FaceIndices(faceID int) ([]int, error) { return b.base.FaceIndices(faceID) }

func (b *BSpline) NFaces() int { return b.base.NFaces() }

func (b *BSpline) UnitElementLength() float64 { return b.base.UnitElementLength() }

func (b *BSpline) Quadrature(order int) (*quadrature.Rule, error) { return b.base.Quadrature(order) }

func (b *BSpline) ComputeVolume(nodalCoordinates *mat.Dense) float64 {
	return b.base.ComputeVolume(nodalCoordinates)
}

func (b *BSpline) IsValidNaturalCoordinatesAnalytical() bool { return false }

func (b *BSpline) NaturalCoordinatesAnalytical(_ *mat.VecDense, _ *mat.Dense) (*mat.VecDense, error) {
	return nil, fmt.Errorf("%w: analytical natural coordinates on a bspline element", ErrUnsupported)
}

// cornerRows slices the leading corner-node rows from an extended
// coordinate matrix.
func cornerRows(coords *mat.Dense, n, dim int) *mat.Dense {
	r, _ := coords.Dims()
	if r == n {
		return coords
	}
	out := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		for d := 0; d < dim; d++ {
			out.Set(i, d, coords.At(i, d))
		}
	}
	return out
}
