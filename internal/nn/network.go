package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Head selects the non-linearity applied after the last layer.
type Head int

const (
	// HeadLinear leaves the last layer as identity (value heads).
	HeadLinear Head = iota
	// HeadTanh squashes the last layer (Gaussian mean heads for control).
	HeadTanh
)

func (h Head) activation() Activation {
	if h == HeadTanh {
		return mustActivation(ActivationTanh)
	}
	return mustActivation(ActivationIdentity)
}

// Network is a bias-free feed-forward net with a hand-written backward pass.
// Hidden layers use ReLU unless SetHiddenActivation picks another registered
// activation.
type Network struct {
	layers []*Tensor
	hidden Activation
}

// NewNetwork builds layers in→hidden[0]→…→out.
func NewNetwork(in int, hidden []int, out int, rng *rand.Rand) (*Network, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("network dims must be > 0: in=%d out=%d", in, out)
	}
	n := &Network{hidden: mustActivation(ActivationReLU)}
	prev := in
	for i, h := range hidden {
		if h <= 0 {
			return nil, fmt.Errorf("hidden layer %d must be > 0, got %d", i, h)
		}
		n.layers = append(n.layers, NewTensor(prev, h, DefaultInitStd, rng))
		prev = h
	}
	n.layers = append(n.layers, NewTensor(prev, out, DefaultInitStd, rng))
	return n, nil
}

func (n *Network) InputDim() int  { return n.layers[0].Rows() }
func (n *Network) OutputDim() int { return n.layers[len(n.layers)-1].Cols() }

func (n *Network) HiddenActivation() string { return n.hidden.Name }

func (n *Network) SetHiddenActivation(name string) error {
	a, err := LookupActivation(name)
	if err != nil {
		return err
	}
	n.hidden = a
	return nil
}

// Params returns the weight tensors in layer order.
func (n *Network) Params() []*Tensor {
	return n.layers
}

// Forward returns every activation, input first and output last. The slice is
// what Backward expects.
func (n *Network) Forward(x []float64, head Head) [][]float64 {
	acts := make([][]float64, 0, len(n.layers)+1)
	acts = append(acts, x)
	in := x
	last := len(n.layers) - 1
	outAct := head.activation()
	for l, t := range n.layers {
		var z mat.VecDense
		z.MulVec(t.W.T(), mat.NewVecDense(len(in), in))
		out := make([]float64, z.Len())
		for j := range out {
			out[j] = z.AtVec(j)
		}
		act := outAct
		if l < last {
			act = n.hidden
		}
		for j := range out {
			out[j] = act.Fn(out[j])
		}
		acts = append(acts, out)
		in = out
	}
	return acts
}

// Output runs Forward and returns only the final activation.
func (n *Network) Output(x []float64, head Head) []float64 {
	acts := n.Forward(x, head)
	return acts[len(acts)-1]
}

// Backward accumulates dL/dW into every Grad given dL/d(output). For
// HeadTanh the gradient is taken w.r.t. the squashed output.
func (n *Network) Backward(acts [][]float64, gradOut []float64, head Head) {
	delta := append([]float64(nil), gradOut...)
	outAct := head.activation()
	y := acts[len(acts)-1]
	for j := range delta {
		delta[j] *= outAct.DerivFromOutput(y[j])
	}
	for l := len(n.layers) - 1; l >= 0; l-- {
		t := n.layers[l]
		input := acts[l]
		d := mat.NewVecDense(len(delta), delta)
		t.Grad.RankOne(t.Grad, 1, mat.NewVecDense(len(input), input), d)
		if l == 0 {
			break
		}
		var back mat.VecDense
		back.MulVec(t.W, d)
		next := make([]float64, len(input))
		for i := range next {
			next[i] = back.AtVec(i) * n.hidden.DerivFromOutput(input[i])
		}
		delta = next
	}
}

func (n *Network) ZeroGrad() {
	for _, t := range n.layers {
		t.ZeroGrad()
	}
}
