package elements

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/geomechanics/gompm/quadrature"
)

const (
	lmeMaxIterations = 100
	lmeTolerance     = 1.e-12
)

// LME is a local maximum-entropy element wrapping a linear Lagrange base
// element for the cell geometry. Shape functions maximise the Shannon
// entropy subject to zeroth- and first-order reproducing conditions; the
// Lagrange multiplier is found by Newton iteration at every evaluation.
type LME struct {
	base Element
	log  *logrus.Entry

	// Connectivity installed by InitialiseLMEConnectivity; nil until then.
	nodalCoords *mat.Dense
	beta        float64
	radius      float64
	anisotropy  bool
}

// NewLMEHexahedron creates an LME hexahedron over an 8-node base.
func NewLMEHexahedron() *LME {
	base, _ := NewHexahedron(8)
	return &LME{base: base, log: newLogger("hexahedron_lme<3>")}
}

// NewLMEQuadrilateral creates an LME quadrilateral over a 4-node base.
func NewLMEQuadrilateral() *LME {
	base, _ := NewQuadrilateral(4)
	return &LME{base: base, log: newLogger("quadrilateral_lme<2>")}
}

func (l *LME) initialised() bool { return l.nodalCoords != nil }

func (l *LME) NFunctions() int {
	if l.initialised() {
		n, _ := l.nodalCoords.Dims()
		return n
	}
	return l.base.NFunctions()
}

func (l *LME) Dim() int { return l.base.Dim() }

func (l *LME) Degree() Degree { return DegreeInfinity }

func (l *LME) ShapefnType() ShapefnType { return LMEMPM }

// InitialiseLMEConnectivity installs the smoothing parameter beta, the
// kernel support radius and the anisotropy flag together with the support
// node coordinates. The first base.NFunctions() rows are the cell's corners.
func (l *LME) InitialiseLMEConnectivity(beta, radius float64, anisotropy bool, nodalCoordinates *mat.Dense) error {
	if beta < 0 {
		return fmt.Errorf("lme connectivity: beta %g must be non-negative", beta)
	}
	if radius <= 0 {
		return fmt.Errorf("lme connectivity: support radius %g must be positive", radius)
	}
	n, dim := nodalCoordinates.Dims()
	if dim != l.Dim() {
		return fmt.Errorf("lme connectivity: coordinates are %dD, element is %dD", dim, l.Dim())
	}
	if n < l.base.NFunctions() {
		return fmt.Errorf("lme connectivity: %d nodes cannot span the cell corners", n)
	}
	l.nodalCoords = mat.DenseCopyOf(nodalCoordinates)
	l.beta = beta
	l.radius = radius
	l.anisotropy = anisotropy
	return nil
}

func (l *LME) InitialiseBSplineConnectivity(_ *mat.Dense, _ [][]int) error {
	return fmt.Errorf("%w: bspline connectivity on an lme element", ErrUnsupported)
}

// metric returns the anisotropy tensor F^{-T} F^{-1}, or identity when
// anisotropy is disabled or the gradient is singular.
func (l *LME) metric(deformationGradient *mat.Dense) *mat.Dense {
	dim := l.Dim()
	if !l.anisotropy || deformationGradient == nil {
		return identity(dim)
	}
	var inv mat.Dense
	if err := inv.Inverse(deformationGradient); err != nil {
		l.log.WithError(err).Warn("lme: singular deformation gradient, dropping anisotropy")
		return identity(dim)
	}
	m := mat.NewDense(dim, dim, nil)
	m.Mul(inv.T(), &inv)
	return m
}

// solve runs the LME evaluation at real point p: shape functions and, when
// gradients is true, physical-space gradients.
func (l *LME) solve(p *mat.VecDense, deformationGradient *mat.Dense, gradients bool) (*mat.VecDense, *mat.Dense) {
	var (
		dim    = l.Dim()
		n      = l.NFunctions()
		metric = l.metric(deformationGradient)
		lambda = mat.NewVecDense(dim, nil)
		sf     = mat.NewVecDense(n, nil)
		diffs  = make([]*mat.VecDense, n)
		inside = make([]bool, n)
	)
	for i := 0; i < n; i++ {
		d := mat.NewVecDense(dim, nil)
		for k := 0; k < dim; k++ {
			d.SetVec(k, p.AtVec(k)-l.nodalCoords.At(i, k))
		}
		diffs[i] = d
		inside[i] = mat.Norm(d, 2) <= l.radius
	}

	r := mat.NewVecDense(dim, nil)
	J := mat.NewDense(dim, dim, nil)
	converged := false
	for iter := 0; iter < lmeMaxIterations; iter++ {
		var z float64
		for i := 0; i < n; i++ {
			if !inside[i] {
				sf.SetVec(i, 0.)
				continue
			}
			d := diffs[i]
			var md mat.VecDense
			md.MulVec(metric, d)
			w := math.Exp(-l.beta*mat.Dot(d, &md) + mat.Dot(lambda, d))
			sf.SetVec(i, w)
			z += w
		}
		if z <= 0 {
			l.log.Error("lme: empty support, all nodes outside radius")
			return sf, mat.NewDense(n, dim, nil)
		}
		sf.ScaleVec(1./z, sf)

		// Reproducing-condition residual r = sum N_a (x - x_a)
		r.Zero()
		for i := 0; i < n; i++ {
			r.AddScaledVec(r, sf.AtVec(i), diffs[i])
		}
		if mat.Norm(r, 2) < lmeTolerance {
			converged = true
			break
		}
		// J = sum N_a d_a d_a^T - r r^T
		J.Zero()
		for i := 0; i < n; i++ {
			var outer mat.Dense
			outer.Outer(sf.AtVec(i), diffs[i], diffs[i])
			J.Add(J, &outer)
		}
		var rr mat.Dense
		rr.Outer(1., r, r)
		J.Sub(J, &rr)

		var step mat.VecDense
		if err := step.SolveVec(J, r); err != nil {
			l.log.WithError(err).Error("lme: singular hessian in newton step")
			break
		}
		lambda.SubVec(lambda, &step)
	}
	if !converged {
		// Soft failure: the normalized weights of the last iterate still
		// partition unity, only first-order reproduction degrades.
		l.log.WithField("residual", mat.Norm(r, 2)).Warn("lme: newton did not converge")
	}

	var grad *mat.Dense
	if gradients {
		grad = mat.NewDense(n, dim, nil)
		// Refresh J at the converged state for the gradient formula.
		J.Zero()
		for i := 0; i < n; i++ {
			var outer mat.Dense
			outer.Outer(sf.AtVec(i), diffs[i], diffs[i])
			J.Add(J, &outer)
		}
		var rr mat.Dense
		rr.Outer(1., r, r)
		J.Sub(J, &rr)
		var inv mat.Dense
		if err := inv.Inverse(J); err != nil {
			l.log.WithError(err).Error("lme: singular hessian in gradient evaluation")
			return sf, grad
		}
		for i := 0; i < n; i++ {
			if sf.AtVec(i) == 0 {
				continue
			}
			var jd mat.VecDense
			jd.MulVec(&inv, diffs[i])
			for k := 0; k < dim; k++ {
				grad.Set(i, k, -sf.AtVec(i)*jd.AtVec(k))
			}
		}
	}
	return sf, grad
}

// realPoint maps the local coordinate through the corner-node geometry.
func (l *LME) realPoint(xi, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.VecDense {
	var (
		dim   = l.Dim()
		baseN = l.base.NFunctions()
		sf    = l.base.Shapefn(xi, particleSize, deformationGradient)
		p     = mat.NewVecDense(dim, nil)
	)
	for d := 0; d < dim; d++ {
		var v float64
		for i := 0; i < baseN; i++ {
			v += sf.AtVec(i) * l.nodalCoords.At(i, d)
		}
		p.SetVec(d, v)
	}
	return p
}

func (l *LME) Shapefn(xi, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.VecDense {
	if !l.initialised() {
		return l.base.Shapefn(xi, particleSize, deformationGradient)
	}
	sf, _ := l.solve(l.realPoint(xi, particleSize, deformationGradient), deformationGradient, false)
	return sf
}

func (l *LME) ShapefnLocal(xi, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.VecDense {
	return l.base.Shapefn(xi, particleSize, deformationGradient)
}

// GradShapefn returns physical-space gradients directly.
func (l *LME) GradShapefn(xi, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense {
	if !l.initialised() {
		return l.base.GradShapefn(xi, particleSize, deformationGradient)
	}
	_, grad := l.solve(l.realPoint(xi, particleSize, deformationGradient), deformationGradient, true)
	return grad
}

func (l *LME) Jacobian(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense {
	return l.JacobianLocal(xi, nodalCoordinates, particleSize, deformationGradient)
}

func (l *LME) JacobianLocal(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense {
	corners := cornerRows(nodalCoordinates, l.base.NFunctions(), l.Dim())
	return l.base.Jacobian(xi, corners, particleSize, deformationGradient)
}

func (l *LME) DnDx(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) *mat.Dense {
	if !l.initialised() {
		return l.base.DnDx(xi, nodalCoordinates, particleSize, deformationGradient)
	}
	return l.GradShapefn(xi, particleSize, deformationGradient)
}

func (l *LME) BMatrix(xi *mat.VecDense, nodalCoordinates *mat.Dense, particleSize *mat.VecDense, deformationGradient *mat.Dense) []*mat.Dense {
	return bmatrixBlocks(l.DnDx(xi, nodalCoordinates, particleSize, deformationGradient))
}

func (l *LME) NiNjMatrix(xis []*mat.VecDense) *mat.Dense { return niNj(l, xis) }

func (l *LME) LaplaceMatrix(xis []*mat.VecDense, nodalCoordinates *mat.Dense) *mat.Dense {
	return laplace(l, xis, nodalCoordinates)
}

func (l *LME) UnitCellCoordinates() *mat.Dense { return l.base.UnitCellCoordinates() }

func (l *LME) SidesIndices() [][2]int { return l.base.SidesIndices() }

func (l *LME) CornerIndices() []int { return l.base.CornerIndices() }

func (l *LME) FaceIndices(faceID int) ([]int, error) { return l.base.FaceIndices(faceID) }

func (l *LME) NFaces() int { return l.base.NFaces() }

func (l *LME) UnitElementLength() float64 { return l.base.UnitElementLength() }

func (l *LME) Quadrature(order int) (*quadrature.Rule, error) { return l.base.Quadrature(order) }

func (l *LME) ComputeVolume(nodalCoordinates *mat.Dense) float64 {
	return l.base.ComputeVolume(nodalCoordinates)
}

func (l *LME) IsValidNaturalCoordinatesAnalytical() bool { return false }

func (l *LME) NaturalCoordinatesAnalytical(_ *mat.VecDense, _ *mat.Dense) (*mat.VecDense, error) {
	return nil, fmt.Errorf("%w: analytical natural coordinates on an lme element", ErrUnsupported)
}
