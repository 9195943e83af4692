package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// DefaultInitStd is the standard deviation of freshly initialized weights.
const DefaultInitStd = 0.02

// Tensor is one weight matrix shaped [in, out] together with its gradient
// accumulator of identical shape.
type Tensor struct {
	W    *mat.Dense
	Grad *mat.Dense
}

// NewTensor draws every weight independently from N(0, std²).
func NewTensor(rows, cols int, std float64, rng *rand.Rand) *Tensor {
	data := make([]float64, rows*cols)
	if rng != nil {
		for i := range data {
			data[i] = rng.NormFloat64() * std
		}
	}
	return &Tensor{
		W:    mat.NewDense(rows, cols, data),
		Grad: mat.NewDense(rows, cols, nil),
	}
}

func (t *Tensor) Rows() int {
	r, _ := t.W.Dims()
	return r
}

func (t *Tensor) Cols() int {
	_, c := t.W.Dims()
	return c
}

func (t *Tensor) ZeroGrad() {
	t.Grad.Zero()
}
