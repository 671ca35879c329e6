package cells

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// newtonTolerance bounds the residual norm of the local-coordinate
	// Newton iteration.
	newtonTolerance = 1.e-10
	// newtonMaxIterations caps the Newton iteration for distorted cells.
	newtonMaxIterations = 100
	// tolCellTight accepts points whose local coordinates land marginally
	// outside the reference cell from round-off.
	tolCellTight = 1.e-10
	// tolCellLoose is the relaxed membership band used after a converged
	// Newton solve on distorted geometry.
	tolCellLoose = 1.e-6
)

// PointInCartesianCell reports membership with an axis-aligned bounding-box
// test. Valid only for undistorted cells whose edges follow the coordinate
// axes; the caller asserts that through the isoparametric flag.
func (c *Cell) PointInCartesianCell(point *mat.VecDense) bool {
	if !c.IsInitialised() {
		return false
	}
	dim := c.element.Dim()
	for d := 0; d < dim; d++ {
		var (
			lo = math.MaxFloat64
			hi = -math.MaxFloat64
		)
		for _, i := range c.element.CornerIndices() {
			v := c.nodalCoordinates.At(i, d)
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if point.AtVec(d) < lo-tolCellTight || point.AtVec(d) > hi+tolCellTight {
			return false
		}
	}
	return true
}

// IsPointInCell reports whether a real-space point lies in the cell,
// returning the local coordinates found along the way so the caller can
// reuse them. Distorted cells go through the Newton inversion; failures are
// treated as "not in this cell".
func (c *Cell) IsPointInCell(point *mat.VecDense) (bool, *mat.VecDense) {
	if !c.isoparametric {
		if !c.PointInCartesianCell(point) {
			return false, nil
		}
		return true, c.LocalCoordinatesPoint(point)
	}
	xi, err := c.TransformRealToUnitCell(point)
	if err != nil {
		return false, nil
	}
	tol := tolCellLoose
	if c.element.IsValidNaturalCoordinatesAnalytical() {
		tol = tolCellTight
	}
	return c.xiInUnitCell(xi, tol), xi
}

// LocalCoordinatesPoint maps a real point into a cartesian (axis-aligned)
// cell by direct linear scaling against the corner bounding box.
func (c *Cell) LocalCoordinatesPoint(point *mat.VecDense) *mat.VecDense {
	var (
		dim  = c.element.Dim()
		unit = c.element.UnitElementLength()
		xi   = mat.NewVecDense(dim, nil)
	)
	for d := 0; d < dim; d++ {
		var (
			lo = math.MaxFloat64
			hi = -math.MaxFloat64
		)
		for _, i := range c.element.CornerIndices() {
			v := c.nodalCoordinates.At(i, d)
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if hi == lo {
			xi.SetVec(d, 0)
			continue
		}
		// Map [lo,hi] onto the reference interval: [-1,1] for tensor
		// cells, [0,1] for simplices.
		t := (point.AtVec(d) - lo) / (hi - lo)
		if unit == 2. {
			xi.SetVec(d, 2.*t-1.)
		} else {
			xi.SetVec(d, t)
		}
	}
	return xi
}

// TransformRealToUnitCell inverts the isoparametric map for a real point:
// closed form where the element supports it, otherwise Newton iteration
// seeded with an affine least-squares guess. On non-convergence the last
// iterate is returned with ErrNonConvergence so the caller can fall back to
// neighbour search.
func (c *Cell) TransformRealToUnitCell(point *mat.VecDense) (*mat.VecDense, error) {
	if !c.IsInitialised() {
		return nil, fmt.Errorf("%w: cell %d", ErrNotInitialised, c.id)
	}
	if c.element.IsValidNaturalCoordinatesAnalytical() {
		xi, err := c.element.NaturalCoordinatesAnalytical(point, c.nodalCoordinates)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", c.id, err)
		}
		return xi, nil
	}

	var (
		dim     = c.element.Dim()
		size    = zeroVec(dim)
		defGrad = identity(dim)
		xi      = c.affineGuess(point)
	)
	for iter := 0; iter < newtonMaxIterations; iter++ {
		var (
			sf       = c.element.ShapefnLocal(xi, size, defGrad)
			residual = mat.NewVecDense(dim, nil)
		)
		for d := 0; d < dim; d++ {
			var v float64
			for i := 0; i < sf.Len(); i++ {
				v += sf.AtVec(i) * c.nodalCoordinates.At(i, d)
			}
			residual.SetVec(d, v-point.AtVec(d))
		}
		if mat.Norm(residual, 2) < newtonTolerance {
			return xi, nil
		}
		J := c.element.JacobianLocal(xi, c.nodalCoordinates, size, defGrad)
		var delta mat.VecDense
		// Residual is in real space; the map derivative dx/dxi = J^T.
		if err := delta.SolveVec(J.T(), residual); err != nil {
			return xi, fmt.Errorf("%w: cell %d singular jacobian at %v",
				ErrDegenerateGeometry, c.id, mat.Formatted(xi.T()))
		}
		xi.SubVec(xi, &delta)
	}
	c.log.WithField("point", fmt.Sprintf("%v", mat.Formatted(point.T()))).
		Warn("local coordinate iteration did not converge")
	return xi, fmt.Errorf("cell %d: %w", c.id, ErrNonConvergence)
}

// affineGuess seeds the Newton iteration with the least-squares affine map
// from centred corner coordinates onto the centred unit cell.
func (c *Cell) affineGuess(point *mat.VecDense) *mat.VecDense {
	var (
		dim     = c.element.Dim()
		corners = c.element.CornerIndices()
		unit    = c.element.UnitCellCoordinates()
		n       = len(corners)
		centre  = mat.NewVecDense(dim, nil)
	)
	for _, i := range corners {
		for d := 0; d < dim; d++ {
			centre.SetVec(d, centre.AtVec(d)+c.nodalCoordinates.At(i, d))
		}
	}
	centre.ScaleVec(1./float64(n), centre)

	// Solve X = A * Xi in least squares for the affine matrix A, with X the
	// centred corner coordinates and Xi the reference-cell coordinates. For
	// the symmetric reference cells Xi^T Xi is diagonal, so
	// A = X^T Xi (Xi^T Xi)^{-1} reduces to a column scaling.
	var (
		X  = mat.NewDense(n, dim, nil)
		Xi = mat.NewDense(n, dim, nil)
	)
	for r, i := range corners {
		for d := 0; d < dim; d++ {
			X.Set(r, d, c.nodalCoordinates.At(i, d)-centre.AtVec(d))
			Xi.Set(r, d, unit.At(i, d))
		}
	}
	var A mat.Dense
	A.Mul(X.T(), Xi)
	for col := 0; col < dim; col++ {
		var norm float64
		for r := 0; r < n; r++ {
			norm += Xi.At(r, col) * Xi.At(r, col)
		}
		if norm == 0 {
			continue
		}
		for row := 0; row < dim; row++ {
			A.Set(row, col, A.At(row, col)/norm)
		}
	}

	var (
		rhs   = mat.NewVecDense(dim, nil)
		guess mat.VecDense
	)
	rhs.SubVec(point, centre)
	if err := guess.SolveVec(&A, rhs); err != nil {
		return mat.NewVecDense(dim, nil)
	}
	return mat.VecDenseCopyOf(&guess)
}

// xiInUnitCell applies the membership band appropriate to the reference
// cell: |xi| <= 1 on tensor cells, the simplex inequalities on triangles.
func (c *Cell) xiInUnitCell(xi *mat.VecDense, tol float64) bool {
	dim := c.element.Dim()
	if c.element.UnitElementLength() == 2. {
		for d := 0; d < dim; d++ {
			if math.Abs(xi.AtVec(d)) > 1.+tol {
				return false
			}
		}
		return true
	}
	var sum float64
	for d := 0; d < dim; d++ {
		if xi.AtVec(d) < -tol {
			return false
		}
		sum += xi.AtVec(d)
	}
	return sum <= 1.+tol
}
