package cells

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// InitialiseElementStiffnessMatrix zeroes (and allocates on first use) the
// local stiffness matrix, nnodes*dim square.
func (c *Cell) InitialiseElementStiffnessMatrix() error {
	if c.element == nil {
		return fmt.Errorf("%w: cell %d has no element", ErrNotInitialised, c.id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	size := c.nnodes * c.element.Dim()
	if c.stiffnessMatrix == nil {
		c.stiffnessMatrix = mat.NewDense(size, size, nil)
	} else {
		c.stiffnessMatrix.Zero()
	}
	return nil
}

// StiffnessMatrix returns the assembled local stiffness matrix.
func (c *Cell) StiffnessMatrix() *mat.Dense {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stiffnessMatrix
}

// ComputeLocalMaterialStiffnessMatrix accumulates B^T D B * pvolume *
// multiplier from one particle's strain-displacement blocks and constitutive
// tangent. bBlocks carries one dof x dim block per node.
func (c *Cell) ComputeLocalMaterialStiffnessMatrix(bBlocks []*mat.Dense, dmatrix *mat.Dense, pvolume, multiplier float64) error {
	if c.stiffnessMatrix == nil {
		return fmt.Errorf("%w: cell %d stiffness matrix", ErrNotInitialised, c.id)
	}
	if len(bBlocks) != c.nnodes {
		return fmt.Errorf("cell %d: %d strain-displacement blocks for %d nodes", c.id, len(bBlocks), c.nnodes)
	}
	var (
		dim   = c.element.Dim()
		scale = pvolume * multiplier
	)
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < c.nnodes; i++ {
		var dbI mat.Dense
		dbI.Mul(dmatrix, bBlocks[i])
		for j := 0; j < c.nnodes; j++ {
			var k mat.Dense
			k.Mul(bBlocks[j].T(), &dbI)
			for a := 0; a < dim; a++ {
				for b := 0; b < dim; b++ {
					row, col := j*dim+a, i*dim+b
					c.stiffnessMatrix.Set(row, col,
						c.stiffnessMatrix.At(row, col)+k.At(a, b)*scale)
				}
			}
		}
	}
	return nil
}

// ComputeLocalGeometricStiffnessMatrix accumulates the initial-stress
// contribution: for nodes i,j the scalar dndx_i^T sigma dndx_j scales the
// dim-identity of block (i,j). stress is the dim x dim Cauchy tensor.
func (c *Cell) ComputeLocalGeometricStiffnessMatrix(dndx, stress *mat.Dense, pvolume, multiplier float64) error {
	if c.stiffnessMatrix == nil {
		return fmt.Errorf("%w: cell %d stiffness matrix", ErrNotInitialised, c.id)
	}
	var (
		dim    = c.element.Dim()
		gr, gc = dndx.Dims()
		sr, sc = stress.Dims()
	)
	if gr != c.nnodes || gc != dim {
		return fmt.Errorf("cell %d: gradient %dx%d for %d nodes in %dD", c.id, gr, gc, c.nnodes, dim)
	}
	if sr != dim || sc != dim {
		return fmt.Errorf("cell %d: stress tensor %dx%d in %dD", c.id, sr, sc, dim)
	}
	var gs, gsg mat.Dense
	gs.Mul(dndx, stress)
	gsg.Mul(&gs, dndx.T())
	scale := pvolume * multiplier
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < c.nnodes; i++ {
		for j := 0; j < c.nnodes; j++ {
			v := gsg.At(i, j) * scale
			for d := 0; d < dim; d++ {
				row, col := i*dim+d, j*dim+d
				c.stiffnessMatrix.Set(row, col, c.stiffnessMatrix.At(row, col)+v)
			}
		}
	}
	return nil
}

// ComputeLocalMassMatrix lumps one particle's mass contribution onto the
// stiffness diagonal: shapefn(i) * pvolume * multiplier on every dof of
// node i.
func (c *Cell) ComputeLocalMassMatrix(shapefn *mat.VecDense, pvolume, multiplier float64) error {
	if c.stiffnessMatrix == nil {
		return fmt.Errorf("%w: cell %d stiffness matrix", ErrNotInitialised, c.id)
	}
	if shapefn.Len() != c.nnodes {
		return fmt.Errorf("cell %d: shapefn length %d for %d nodes", c.id, shapefn.Len(), c.nnodes)
	}
	dim := c.element.Dim()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < c.nnodes; i++ {
		m := shapefn.AtVec(i) * pvolume * multiplier
		for j := 0; j < dim; j++ {
			idx := i*dim + j
			c.stiffnessMatrix.Set(idx, idx, c.stiffnessMatrix.At(idx, idx)+m)
		}
	}
	return nil
}
