package nn

import (
	"errors"
	"math"
)

const (
	DefaultAdamLR    = 3e-4
	DefaultAdamBeta1 = 0.9
	DefaultAdamBeta2 = 0.999
	DefaultAdamEps   = 1e-8
)

type adamMoments struct {
	m []float64
	v []float64
}

// Adam is a bias-corrected Adam optimizer keyed by tensor identity.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	t       int
	moments map[*Tensor]*adamMoments
}

func NewAdam(lr float64) *Adam {
	if lr <= 0 {
		lr = DefaultAdamLR
	}
	return &Adam{
		LR:      lr,
		Beta1:   DefaultAdamBeta1,
		Beta2:   DefaultAdamBeta2,
		Eps:     DefaultAdamEps,
		moments: make(map[*Tensor]*adamMoments),
	}
}

// Steps is the number of updates applied so far.
func (a *Adam) Steps() int { return a.t }

// Step moves every tensor against its accumulated gradient.
func (a *Adam) Step(params []*Tensor) error {
	if a.moments == nil {
		return errors.New("adam optimizer is not initialized")
	}
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for _, p := range params {
		w := p.W.RawMatrix()
		g := p.Grad.RawMatrix()
		if w.Rows*w.Cols != len(w.Data) || g.Rows*g.Cols != len(g.Data) {
			return errors.New("adam requires contiguous tensors")
		}
		mom, ok := a.moments[p]
		if !ok {
			mom = &adamMoments{m: make([]float64, len(w.Data)), v: make([]float64, len(w.Data))}
			a.moments[p] = mom
		}
		for i, gi := range g.Data {
			mom.m[i] = a.Beta1*mom.m[i] + (1-a.Beta1)*gi
			mom.v[i] = a.Beta2*mom.v[i] + (1-a.Beta2)*gi*gi
			mHat := mom.m[i] / c1
			vHat := mom.v[i] / c2
			w.Data[i] -= a.LR * mHat / (math.Sqrt(vHat) + a.Eps)
		}
	}
	return nil
}
