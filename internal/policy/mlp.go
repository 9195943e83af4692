package policy

import "math"

// MLP is a single-hidden-layer network: ReLU into the hidden layer, tanh on
// the output so control signals stay in [-1, 1].
//
// Layout: for each hidden unit [w_in…, b], then for each output unit
// [w_hidden…, b].
type MLP struct {
	in, hidden, out int
	theta           []float64
	hiddenBuf       []float64
}

func MLPParamCount(in, out, hidden int) int {
	return (in+1)*hidden + (hidden+1)*out
}

func NewMLP(in, out, hidden int) *MLP {
	return &MLP{
		in:        in,
		hidden:    hidden,
		out:       out,
		theta:     make([]float64, MLPParamCount(in, out, hidden)),
		hiddenBuf: make([]float64, hidden),
	}
}

func (p *MLP) Kind() string      { return KindMLP }
func (p *MLP) InputDim() int     { return p.in }
func (p *MLP) OutputDim() int    { return p.out }
func (p *MLP) HiddenDim() int    { return p.hidden }
func (p *MLP) ParamCount() int   { return len(p.theta) }
func (p *MLP) Params() []float64 { return p.theta }

func (p *MLP) SetParams(theta []float64) error {
	if err := checkLen(theta, len(p.theta)); err != nil {
		return err
	}
	copy(p.theta, theta)
	return nil
}

func (p *MLP) Act(obs, act []float64) {
	idx := 0
	for h := 0; h < p.hidden; h++ {
		sum := 0.0
		for i := 0; i < p.in; i++ {
			sum += obs[i] * p.theta[idx]
			idx++
		}
		sum += p.theta[idx]
		idx++
		if sum < 0 {
			sum = 0
		}
		p.hiddenBuf[h] = sum
	}
	for o := 0; o < p.out; o++ {
		sum := 0.0
		for h := 0; h < p.hidden; h++ {
			sum += p.hiddenBuf[h] * p.theta[idx]
			idx++
		}
		sum += p.theta[idx]
		idx++
		act[o] = math.Tanh(sum)
	}
}

func (p *MLP) Clone() Policy {
	c := NewMLP(p.in, p.out, p.hidden)
	copy(c.theta, p.theta)
	return c
}
