package solvers

import (
	"fmt"
	"math"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// MatrixCell is the per-cell surface the global assembler consumes.
type MatrixCell interface {
	SolvingStatus() bool
	LaplacianMatrix() *mat.Dense
	LocalNodeIndices() []uint64
}

// AssembleGlobalLaplacian scatters the per-cell laplacians into one sparse
// global operator. nodeIndex maps global node ids onto the active degrees of
// freedom; cells not flagged for the solve are skipped.
func AssembleGlobalLaplacian(cells []MatrixCell, nodeIndex map[uint64]int) (*sparse.CSR, error) {
	ndof := len(nodeIndex)
	if ndof == 0 {
		return nil, fmt.Errorf("solvers: no active degrees of freedom")
	}
	dok := sparse.NewDOK(ndof, ndof)
	for _, cell := range cells {
		if !cell.SolvingStatus() {
			continue
		}
		local := cell.LaplacianMatrix()
		if local == nil {
			return nil, fmt.Errorf("solvers: cell without an assembled laplacian")
		}
		ids := cell.LocalNodeIndices()
		r, _ := local.Dims()
		if r != len(ids) {
			return nil, fmt.Errorf("solvers: laplacian rows %d for %d cell nodes", r, len(ids))
		}
		for i, gi := range ids {
			row, ok := nodeIndex[gi]
			if !ok {
				return nil, fmt.Errorf("solvers: node %d missing from the active index", gi)
			}
			for j, gj := range ids {
				col, ok := nodeIndex[gj]
				if !ok {
					return nil, fmt.Errorf("solvers: node %d missing from the active index", gj)
				}
				if v := local.At(i, j); v != 0 {
					dok.Set(row, col, dok.At(row, col)+v)
				}
			}
		}
	}
	return dok.ToCSR(), nil
}

// SolveCG solves the symmetric positive semi-definite system A x = b with
// the conjugate gradient method. The residual tolerance is relative to |b|.
func SolveCG(a *sparse.CSR, b []float64, tol float64, maxIterations int) ([]float64, error) {
	n, c := a.Dims()
	if n != c || n != len(b) {
		return nil, fmt.Errorf("solvers: cg operands mismatch, %dx%d matrix with rhs %d", n, c, len(b))
	}
	var (
		x = make([]float64, n)
		r = make([]float64, n)
		p = make([]float64, n)
		q = make([]float64, n)
	)
	copy(r, b)
	copy(p, b)
	bnorm := norm(b)
	if bnorm == 0 {
		return x, nil
	}
	rho := dot(r, r)
	for iter := 0; iter < maxIterations; iter++ {
		matVec(a, p, q)
		denom := dot(p, q)
		if denom == 0 {
			return x, fmt.Errorf("solvers: cg breakdown at iteration %d", iter)
		}
		alpha := rho / denom
		for i := range x {
			x[i] += alpha * p[i]
			r[i] -= alpha * q[i]
		}
		if norm(r)/bnorm < tol {
			return x, nil
		}
		rhoNext := dot(r, r)
		beta := rhoNext / rho
		rho = rhoNext
		for i := range p {
			p[i] = r[i] + beta*p[i]
		}
	}
	return x, fmt.Errorf("solvers: cg did not converge in %d iterations", maxIterations)
}

func matVec(a *sparse.CSR, x, y []float64) {
	for i := range y {
		y[i] = 0
	}
	a.DoNonZero(func(i, j int, v float64) {
		y[i] += v * x[j]
	})
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm(a []float64) float64 { return math.Sqrt(dot(a, a)) }
