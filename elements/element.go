// Package elements implements the shape-function families used by the MPM
// kernel: Lagrange hexahedra/quadrilaterals/triangles, quadratic B-spline
// variants with extended connectivity, and local maximum-entropy (LME)
// elements. All evaluations are pure functions of the local coordinate; no
// element mutates state outside its connectivity-initialisation hooks.
package elements

import (
	"errors"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/geomechanics/gompm/quadrature"
)

// ShapefnType identifies the shape-function family of an element.
type ShapefnType int

const (
	NormalMPM ShapefnType = iota
	BSplineMPM
	LMEMPM
)

// Degree is the polynomial degree of an element's shape functions.
type Degree int

const (
	DegreeLinear Degree = iota + 1
	DegreeQuadratic
	DegreeInfinity
)

var (
	// ErrUnsupported flags an element variant invoked for a capability it
	// does not implement. This is a configuration error, not a runtime
	// condition, and callers are expected to abort initialisation.
	ErrUnsupported = errors.New("element: operation not supported for this element type")
	// ErrNotInitialised flags use of nonlocal connectivity before the
	// connectivity-initialisation hook ran.
	ErrNotInitialised = errors.New("element: nonlocal connectivity has not been initialised")
	// ErrNonConvergence flags an iterative shape-function evaluation that
	// did not meet tolerance within its iteration cap.
	ErrNonConvergence = errors.New("element: iteration failed to converge")
)

// Element is the capability surface shared by every shape-function family.
// particleSize and deformationGradient feed the size-dependent families
// (B-spline, LME); the polynomial families ignore them.
type Element interface {
	// NFunctions returns the number of connected nodes (= shape functions).
	NFunctions() int
	// Dim returns the spatial dimension.
	Dim() int

	// Shapefn evaluates the shape functions at local coordinate xi, one
	// weight per connected node.
	Shapefn(xi, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.VecDense
	// ShapefnLocal evaluates the geometry-interpolation shape functions
	// (the base corner-node family for nonlocal elements).
	ShapefnLocal(xi, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.VecDense
	// GradShapefn evaluates the shape-function gradients, nfunctions x dim.
	// Polynomial families return local (d/dxi) gradients; B-spline and LME
	// families return physical-space gradients directly.
	GradShapefn(xi, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense

	// Jacobian returns gradients(xi)^T * nodalCoordinates, dim x dim. On a
	// row mismatch between gradients and nodal coordinates the error is
	// logged and a zero matrix returned so the caller can reject the cell.
	Jacobian(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense
	// JacobianLocal is the geometry-mapping Jacobian (base corner family).
	JacobianLocal(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense
	// DnDx returns physical-space gradients, nfunctions x dim. The Jacobian
	// must be non-singular; degenerate cells must be rejected upstream.
	DnDx(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense
	// BMatrix returns one strain-displacement block per node, each
	// dof(dim) x dim.
	BMatrix(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) []*mat.Dense

	// NiNjMatrix accumulates shapefn outer products over a set of local
	// integration points.
	NiNjMatrix(xis []*mat.VecDense) *mat.Dense
	// LaplaceMatrix accumulates physical-gradient outer products over a set
	// of local integration points.
	LaplaceMatrix(xis []*mat.VecDense, nodalCoordinates *mat.Dense) *mat.Dense

	Degree() Degree
	ShapefnType() ShapefnType

	// UnitCellCoordinates returns the local coordinates of the element's
	// nodes, nfunctions x dim.
	UnitCellCoordinates() *mat.Dense
	// SidesIndices returns the node-index pairs forming the cell sides.
	SidesIndices() [][2]int
	// CornerIndices returns the node indices spanning the cell geometry.
	CornerIndices() []int
	// FaceIndices returns the node indices of a face.
	FaceIndices(faceID int) ([]int, error)
	NFaces() int
	// UnitElementLength is the side length of the reference cell (2 for
	// [-1,1] tensor cells, 1 for simplices).
	UnitElementLength() float64

	// Quadrature returns an integration rule of the requested per-axis order.
	Quadrature(order int) (*quadrature.Rule, error)

	// ComputeVolume returns the volume (or area) spanned by the nodal
	// coordinates. Non-positive results indicate degenerate geometry.
	ComputeVolume(nodalCoordinates *mat.Dense) float64

	// IsValidNaturalCoordinatesAnalytical reports whether the real-to-local
	// map can be inverted in closed form.
	IsValidNaturalCoordinatesAnalytical() bool
	// NaturalCoordinatesAnalytical inverts the real-to-local map in closed
	// form; ErrUnsupported for non-affine elements.
	NaturalCoordinatesAnalytical(point *mat.VecDense, nodalCoordinates *mat.Dense) (*mat.VecDense, error)

	// InitialiseBSplineConnectivity installs the extended nodal coordinates
	// and per-dimension node-type codes; ErrUnsupported outside the
	// B-spline family.
	InitialiseBSplineConnectivity(nodalCoordinates *mat.Dense, nodalProperties [][]int) error
	// InitialiseLMEConnectivity installs the smoothing parameter beta, the
	// support radius and the anisotropy flag; ErrUnsupported outside the
	// LME family.
	InitialiseLMEConnectivity(beta, radius float64, anisotropy bool, nodalCoordinates *mat.Dense) error
}

// Dof returns the number of strain components for a dimension: 1 in 1D,
// otherwise 3*(dim-1).
func Dof(dim int) int {
	if dim == 1 {
		return 1
	}
	return 3 * (dim - 1)
}

// jacobian computes grad^T * coords with the shared mismatch policy: log and
// return zero so the caller can detect and skip the cell.
func jacobian(grad, nodalCoordinates *mat.Dense, log *logrus.Entry) *mat.Dense {
	gr, gc := grad.Dims()
	nr, _ := nodalCoordinates.Dims()
	J := mat.NewDense(gc, gc, nil)
	if gr != nr {
		log.WithFields(logrus.Fields{
			"grad_rows": gr, "coord_rows": nr,
		}).Error("jacobian: gradient and nodal coordinate rows mismatch")
		return J
	}
	J.Mul(grad.T(), nodalCoordinates)
	return J
}

// dnDx applies the chain rule dN/dx = grad * J^{-T}. The caller guarantees a
// non-singular Jacobian.
func dnDx(grad, J *mat.Dense) *mat.Dense {
	var inv mat.Dense
	if err := inv.Inverse(J); err != nil {
		// Singular mapping; surface zeros, the cell volume check upstream
		// flags the degenerate geometry.
		r, c := grad.Dims()
		return mat.NewDense(r, c, nil)
	}
	r, c := grad.Dims()
	out := mat.NewDense(r, c, nil)
	out.Mul(grad, inv.T())
	return out
}

// bmatrixBlocks assembles the symmetric-gradient strain-displacement block
// for each node from physical gradients dndx (nfunctions x dim).
func bmatrixBlocks(dndx *mat.Dense) []*mat.Dense {
	n, dim := dndx.Dims()
	blocks := make([]*mat.Dense, n)
	for i := 0; i < n; i++ {
		b := mat.NewDense(Dof(dim), dim, nil)
		switch dim {
		case 1:
			b.Set(0, 0, dndx.At(i, 0))
		case 2:
			b.Set(0, 0, dndx.At(i, 0))
			b.Set(1, 1, dndx.At(i, 1))
			b.Set(2, 0, dndx.At(i, 1))
			b.Set(2, 1, dndx.At(i, 0))
		case 3:
			b.Set(0, 0, dndx.At(i, 0))
			b.Set(1, 1, dndx.At(i, 1))
			b.Set(2, 2, dndx.At(i, 2))
			b.Set(3, 0, dndx.At(i, 1))
			b.Set(3, 1, dndx.At(i, 0))
			b.Set(4, 1, dndx.At(i, 2))
			b.Set(4, 2, dndx.At(i, 1))
			b.Set(5, 0, dndx.At(i, 2))
			b.Set(5, 2, dndx.At(i, 0))
		}
		blocks[i] = b
	}
	return blocks
}

// niNj accumulates shapefn outer products for the consistent mass operator.
func niNj(e Element, xis []*mat.VecDense) *mat.Dense {
	n := e.NFunctions()
	size := zeroVec(e.Dim())
	gradDef := identity(e.Dim())
	out := mat.NewDense(n, n, nil)
	for _, xi := range xis {
		sf := e.Shapefn(xi, size, gradDef)
		var outer mat.Dense
		outer.Outer(1., sf, sf)
		out.Add(out, &outer)
	}
	return out
}

// laplace accumulates physical-gradient outer products for the diffusion
// operator.
func laplace(e Element, xis []*mat.VecDense, nodalCoordinates *mat.Dense) *mat.Dense {
	n := e.NFunctions()
	size := zeroVec(e.Dim())
	gradDef := identity(e.Dim())
	out := mat.NewDense(n, n, nil)
	for _, xi := range xis {
		dndx := e.DnDx(xi, nodalCoordinates, size, gradDef)
		var prod mat.Dense
		prod.Mul(dndx, dndx.T())
		out.Add(out, &prod)
	}
	return out
}

func zeroVec(n int) *mat.VecDense { return mat.NewVecDense(n, nil) }

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1.)
	}
	return m
}

func newLogger(family string) *logrus.Entry {
	return logrus.WithField("element", family)
}
