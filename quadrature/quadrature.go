// Package quadrature supplies fixed Gauss integration rules for the cell
// geometries used by the MPM kernel. Points are stored one column per
// integration point, in the local (natural) coordinate system of the element.
package quadrature

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Rule holds a set of integration points and the matching weights.
type Rule struct {
	Points  *mat.Dense // dim x n
	Weights []float64
}

// NPoints returns the number of integration points in the rule.
func (q *Rule) NPoints() int {
	_, n := q.Points.Dims()
	return n
}

// Point returns the local coordinates of integration point i.
func (q *Rule) Point(i int) *mat.VecDense {
	dim, _ := q.Points.Dims()
	p := mat.NewVecDense(dim, nil)
	for d := 0; d < dim; d++ {
		p.SetVec(d, q.Points.At(d, i))
	}
	return p
}

// Gauss-Legendre abscissae and weights on [-1,1], per-axis orders 1..4.
var gaussAbscissae = [][]float64{
	{0.},
	{-1. / math.Sqrt(3.), 1. / math.Sqrt(3.)},
	{-math.Sqrt(3. / 5.), 0., math.Sqrt(3. / 5.)},
	{-0.8611363115940526, -0.3399810435848563, 0.3399810435848563, 0.8611363115940526},
}

var gaussWeights = [][]float64{
	{2.},
	{1., 1.},
	{5. / 9., 8. / 9., 5. / 9.},
	{0.3478548451374538, 0.6521451548625461, 0.6521451548625461, 0.3478548451374538},
}

// NewHexahedron builds a tensor-product Gauss rule for the hexahedron with
// the given per-axis order (1..4), giving 1, 8, 27 or 64 points.
func NewHexahedron(order int) (*Rule, error) {
	return tensorProduct(3, order)
}

// NewQuadrilateral builds a tensor-product Gauss rule for the quadrilateral
// with the given per-axis order (1..4), giving 1, 4, 9 or 16 points.
func NewQuadrilateral(order int) (*Rule, error) {
	return tensorProduct(2, order)
}

// NewTriangle builds a symmetric Gauss rule for the unit triangle with 1 or 3
// points. Weights include the reference-triangle area factor 1/2.
func NewTriangle(npoints int) (*Rule, error) {
	switch npoints {
	case 1:
		return &Rule{
			Points:  mat.NewDense(2, 1, []float64{1. / 3., 1. / 3.}),
			Weights: []float64{0.5},
		}, nil
	case 3:
		pts := mat.NewDense(2, 3, nil)
		pts.SetCol(0, []float64{1. / 6., 1. / 6.})
		pts.SetCol(1, []float64{2. / 3., 1. / 6.})
		pts.SetCol(2, []float64{1. / 6., 2. / 3.})
		return &Rule{Points: pts, Weights: []float64{1. / 6., 1. / 6., 1. / 6.}}, nil
	}
	return nil, fmt.Errorf("triangle quadrature with %d points is not defined", npoints)
}

func tensorProduct(dim, order int) (*Rule, error) {
	if order < 1 || order > len(gaussAbscissae) {
		return nil, fmt.Errorf("gauss order %d is not defined, must be 1..%d", order, len(gaussAbscissae))
	}
	var (
		xg = gaussAbscissae[order-1]
		wg = gaussWeights[order-1]
		n  = 1
	)
	for d := 0; d < dim; d++ {
		n *= order
	}
	points := mat.NewDense(dim, n, nil)
	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		idx := i
		w := 1.
		for d := 0; d < dim; d++ {
			k := idx % order
			idx /= order
			points.Set(d, i, xg[k])
			w *= wg[k]
		}
		weights[i] = w
	}
	return &Rule{Points: points, Weights: weights}, nil
}
