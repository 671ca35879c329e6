package cells

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Phase indices for the two-phase formulation.
const (
	SolidPhase = iota
	LiquidPhase
	NPhases
)

// AssignSolvingStatus flags the cell as participating in the semi-implicit
// pressure solve this step.
func (c *Cell) AssignSolvingStatus(status bool) { c.solvingStatus = status }

// SolvingStatus reports participation in the semi-implicit solve.
func (c *Cell) SolvingStatus() bool { return c.solvingStatus }

// AssignFreeSurface flags the cell as cut by the free surface.
func (c *Cell) AssignFreeSurface(free bool) { c.freeSurface = free }

// FreeSurface reports whether the cell is cut by the free surface.
func (c *Cell) FreeSurface() bool { return c.freeSurface }

// AssignVolumeFraction stores the fluid volume fraction of the cell.
func (c *Cell) AssignVolumeFraction(fraction float64) { c.volumeFraction = fraction }

// VolumeFraction returns the fluid volume fraction.
func (c *Cell) VolumeFraction() float64 { return c.volumeFraction }

// InitialiseMatrixSemiImplicit zeroes (allocating on first use) the local
// matrices of the semi-implicit Navier-Stokes solve: laplacian, the
// pressure-gradient right-hand side and the velocity-correction matrix.
func (c *Cell) InitialiseMatrixSemiImplicit() error {
	if c.element == nil {
		return fmt.Errorf("%w: cell %d has no element", ErrNotInitialised, c.id)
	}
	var (
		n   = c.nnodes
		dim = c.element.Dim()
	)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.laplacianMatrix = zeroOrNew(c.laplacianMatrix, n, n)
	c.poissonRightMatrix = zeroOrNew(c.poissonRightMatrix, n, n*dim)
	c.correctionMatrix = zeroOrNew(c.correctionMatrix, n, n*dim)
	return nil
}

// InitialiseMatrixSemiImplicitTwophase additionally allocates the per-phase
// poisson and correction matrices and the directional drag matrices.
func (c *Cell) InitialiseMatrixSemiImplicitTwophase() error {
	if err := c.InitialiseMatrixSemiImplicit(); err != nil {
		return err
	}
	var (
		n   = c.nnodes
		dim = c.element.Dim()
	)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poissonRightTwophase == nil {
		c.poissonRightTwophase = make([]*mat.Dense, NPhases)
		c.correctionTwophase = make([]*mat.Dense, NPhases)
	}
	for phase := 0; phase < NPhases; phase++ {
		c.poissonRightTwophase[phase] = zeroOrNew(c.poissonRightTwophase[phase], n, n*dim)
		c.correctionTwophase[phase] = zeroOrNew(c.correctionTwophase[phase], n, n*dim)
	}
	if c.dragMatrix == nil {
		c.dragMatrix = make([]*mat.Dense, dim)
	}
	for d := 0; d < dim; d++ {
		c.dragMatrix[d] = zeroOrNew(c.dragMatrix[d], n, n)
	}
	return nil
}

// ComputeLocalLaplacian accumulates grad * grad^T * pvolume * multiplier
// from one particle's physical gradients (nnodes x dim).
func (c *Cell) ComputeLocalLaplacian(gradShapefn *mat.Dense, pvolume, multiplier float64) error {
	if c.laplacianMatrix == nil {
		return fmt.Errorf("%w: cell %d laplacian matrix", ErrNotInitialised, c.id)
	}
	r, _ := gradShapefn.Dims()
	if r != c.nnodes {
		return fmt.Errorf("cell %d: gradient rows %d for %d nodes", c.id, r, c.nnodes)
	}
	var prod mat.Dense
	prod.Mul(gradShapefn, gradShapefn.T())
	prod.Scale(pvolume*multiplier, &prod)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.laplacianMatrix.Add(c.laplacianMatrix, &prod)
	return nil
}

// ComputeLocalPoissonRight accumulates the divergence operator of the
// pressure Poisson equation: block d of the nnodes x nnodes*dim matrix gains
// shapefn * gradShapefn.col(d)^T * pvolume.
func (c *Cell) ComputeLocalPoissonRight(shapefn *mat.VecDense, gradShapefn *mat.Dense, pvolume float64) error {
	if c.poissonRightMatrix == nil {
		return fmt.Errorf("%w: cell %d poisson right matrix", ErrNotInitialised, c.id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accumulateGradientBlocks(c.poissonRightMatrix, shapefn, gradShapefn, pvolume)
}

// ComputeLocalPoissonRightTwophase is the per-phase variant with an explicit
// multiplier (the phase volume fraction).
func (c *Cell) ComputeLocalPoissonRightTwophase(phase int, shapefn *mat.VecDense, gradShapefn *mat.Dense, pvolume, multiplier float64) error {
	if c.poissonRightTwophase == nil {
		return fmt.Errorf("%w: cell %d two-phase poisson matrices", ErrNotInitialised, c.id)
	}
	if phase < 0 || phase >= NPhases {
		return fmt.Errorf("cell %d: phase %d out of range", c.id, phase)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accumulateGradientBlocks(c.poissonRightTwophase[phase], shapefn, gradShapefn, pvolume*multiplier)
}

// ComputeLocalCorrectionMatrix accumulates the velocity-correction operator,
// identical blocking to the Poisson right-hand side.
func (c *Cell) ComputeLocalCorrectionMatrix(shapefn *mat.VecDense, gradShapefn *mat.Dense, pvolume float64) error {
	if c.correctionMatrix == nil {
		return fmt.Errorf("%w: cell %d correction matrix", ErrNotInitialised, c.id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accumulateGradientBlocks(c.correctionMatrix, shapefn, gradShapefn, pvolume)
}

// ComputeLocalCorrectionMatrixTwophase is the per-phase velocity-correction
// accumulator.
func (c *Cell) ComputeLocalCorrectionMatrixTwophase(phase int, shapefn *mat.VecDense, gradShapefn *mat.Dense, pvolume, multiplier float64) error {
	if c.correctionTwophase == nil {
		return fmt.Errorf("%w: cell %d two-phase correction matrices", ErrNotInitialised, c.id)
	}
	if phase < 0 || phase >= NPhases {
		return fmt.Errorf("cell %d: phase %d out of range", c.id, phase)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accumulateGradientBlocks(c.correctionTwophase[phase], shapefn, gradShapefn, pvolume*multiplier)
}

// ComputeLocalDragMatrix accumulates shapefn * shapefn^T * pvolume *
// multiplier(dir) per direction for the inter-phase drag coupling.
func (c *Cell) ComputeLocalDragMatrix(shapefn *mat.VecDense, pvolume float64, multiplier *mat.VecDense) error {
	if c.dragMatrix == nil {
		return fmt.Errorf("%w: cell %d drag matrices", ErrNotInitialised, c.id)
	}
	if shapefn.Len() != c.nnodes {
		return fmt.Errorf("cell %d: shapefn length %d for %d nodes", c.id, shapefn.Len(), c.nnodes)
	}
	dim := c.element.Dim()
	if multiplier.Len() != dim {
		return fmt.Errorf("cell %d: drag multiplier length %d for dimension %d", c.id, multiplier.Len(), dim)
	}
	var outer mat.Dense
	outer.Outer(pvolume, shapefn, shapefn)
	c.mu.Lock()
	defer c.mu.Unlock()
	for d := 0; d < dim; d++ {
		var scaled mat.Dense
		scaled.Scale(multiplier.AtVec(d), &outer)
		c.dragMatrix[d].Add(c.dragMatrix[d], &scaled)
	}
	return nil
}

// accumulateGradientBlocks adds shapefn * grad.col(d)^T * scale into block d
// of target (nnodes x nnodes*dim). Callers hold the mutex.
func (c *Cell) accumulateGradientBlocks(target *mat.Dense, shapefn *mat.VecDense, gradShapefn *mat.Dense, scale float64) error {
	gr, dim := gradShapefn.Dims()
	if gr != c.nnodes || shapefn.Len() != c.nnodes {
		return fmt.Errorf("cell %d: operand rows mismatch %d nodes", c.id, c.nnodes)
	}
	for d := 0; d < dim; d++ {
		for i := 0; i < c.nnodes; i++ {
			for j := 0; j < c.nnodes; j++ {
				col := d*c.nnodes + j
				target.Set(i, col, target.At(i, col)+shapefn.AtVec(i)*gradShapefn.At(j, d)*scale)
			}
		}
	}
	return nil
}

// LaplacianMatrix returns the assembled local laplacian.
func (c *Cell) LaplacianMatrix() *mat.Dense {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.laplacianMatrix
}

// PoissonRightMatrix returns the assembled divergence operator.
func (c *Cell) PoissonRightMatrix() *mat.Dense {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poissonRightMatrix
}

// CorrectionMatrix returns the assembled velocity-correction operator.
func (c *Cell) CorrectionMatrix() *mat.Dense {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.correctionMatrix
}

// PoissonRightMatrixTwophase returns the per-phase divergence operator.
func (c *Cell) PoissonRightMatrixTwophase(phase int) *mat.Dense {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poissonRightTwophase == nil || phase < 0 || phase >= NPhases {
		return nil
	}
	return c.poissonRightTwophase[phase]
}

// CorrectionMatrixTwophase returns the per-phase correction operator.
func (c *Cell) CorrectionMatrixTwophase(phase int) *mat.Dense {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.correctionTwophase == nil || phase < 0 || phase >= NPhases {
		return nil
	}
	return c.correctionTwophase[phase]
}

// DragMatrix returns the drag matrix for a direction.
func (c *Cell) DragMatrix(dir int) *mat.Dense {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dragMatrix == nil || dir < 0 || dir >= len(c.dragMatrix) {
		return nil
	}
	return c.dragMatrix[dir]
}

func zeroOrNew(m *mat.Dense, r, c int) *mat.Dense {
	if m == nil {
		return mat.NewDense(r, c, nil)
	}
	m.Zero()
	return m
}
