package policy

// Linear computes y = W·x + b. Parameters are laid out per output row as
// [w_0 … w_{in-1}, b].
type Linear struct {
	in, out int
	theta   []float64
}

func LinearParamCount(in, out int) int {
	return (in + 1) * out
}

func NewLinear(in, out int) *Linear {
	return &Linear{in: in, out: out, theta: make([]float64, LinearParamCount(in, out))}
}

func (p *Linear) Kind() string      { return KindLinear }
func (p *Linear) InputDim() int     { return p.in }
func (p *Linear) OutputDim() int    { return p.out }
func (p *Linear) ParamCount() int   { return len(p.theta) }
func (p *Linear) Params() []float64 { return p.theta }

func (p *Linear) SetParams(theta []float64) error {
	if err := checkLen(theta, len(p.theta)); err != nil {
		return err
	}
	copy(p.theta, theta)
	return nil
}

func (p *Linear) Act(obs, act []float64) {
	idx := 0
	for o := 0; o < p.out; o++ {
		sum := 0.0
		for i := 0; i < p.in; i++ {
			sum += p.theta[idx] * obs[i]
			idx++
		}
		sum += p.theta[idx]
		idx++
		act[o] = sum
	}
}

func (p *Linear) Clone() Policy {
	return &Linear{in: p.in, out: p.out, theta: append([]float64(nil), p.theta...)}
}
