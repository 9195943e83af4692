package a2c

import (
	"fmt"
	"math"
	"math/rand"

	"estrainer/internal/nn"
)

const (
	DefaultGamma       = 0.99
	DefaultEntropyBeta = 0.01
	DefaultValueCoef   = 0.5
	DefaultLR          = 3e-4
	DefaultInitLogStd  = 0.5
)

var DefaultHidden = []int{64, 64}

var log2Pi = math.Log(2 * math.Pi)

type Config struct {
	ObsDim      int     `json:"obs_dim" yaml:"obs_dim"`
	ActDim      int     `json:"act_dim" yaml:"act_dim"`
	Hidden      []int   `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Activation  string  `json:"activation,omitempty" yaml:"activation,omitempty"`
	Gamma       float64 `json:"gamma,omitempty" yaml:"gamma,omitempty"`
	EntropyBeta float64 `json:"entropy_beta,omitempty" yaml:"entropy_beta,omitempty"`
	ValueCoef   float64 `json:"value_coef,omitempty" yaml:"value_coef,omitempty"`
	LR          float64 `json:"lr,omitempty" yaml:"lr,omitempty"`
	InitLogStd  float64 `json:"init_log_std,omitempty" yaml:"init_log_std,omitempty"`
	Seed        int64   `json:"seed" yaml:"seed"`
}

func (c Config) withDefaults() Config {
	if len(c.Hidden) == 0 {
		c.Hidden = append([]int(nil), DefaultHidden...)
	}
	if c.Activation == "" {
		c.Activation = nn.ActivationReLU
	}
	if c.Gamma == 0 {
		c.Gamma = DefaultGamma
	}
	if c.EntropyBeta == 0 {
		c.EntropyBeta = DefaultEntropyBeta
	}
	if c.ValueCoef == 0 {
		c.ValueCoef = DefaultValueCoef
	}
	if c.LR == 0 {
		c.LR = DefaultLR
	}
	if c.InitLogStd == 0 {
		c.InitLogStd = DefaultInitLogStd
	}
	return c
}

// Stats describes one Learn call. Losses are per-step means.
type Stats struct {
	Steps      int     `json:"steps"`
	ActorLoss  float64 `json:"actor_loss"`
	CriticLoss float64 `json:"critic_loss"`
	Entropy    float64 `json:"entropy"`
}

type transition struct {
	obs     []float64
	action  []float64
	reward  float64
	logProb float64
	value   float64
	done    bool
}

// Learner is an advantage actor-critic with a tanh Gaussian mean head, a
// separate value network and a learned per-dimension log standard deviation.
type Learner struct {
	cfg    Config
	policy *nn.Network
	value  *nn.Network
	logStd *nn.Tensor
	optim  *nn.Adam
	rng    *rand.Rand
	buffer []transition
}

func New(cfg Config) (*Learner, error) {
	if cfg.ObsDim <= 0 {
		return nil, fmt.Errorf("obs dim must be > 0")
	}
	if cfg.ActDim <= 0 {
		return nil, fmt.Errorf("act dim must be > 0")
	}
	cfg = cfg.withDefaults()
	if cfg.Gamma < 0 || cfg.Gamma > 1 {
		return nil, fmt.Errorf("gamma must be in [0, 1]")
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	policyNet, err := nn.NewNetwork(cfg.ObsDim, cfg.Hidden, cfg.ActDim, rng)
	if err != nil {
		return nil, fmt.Errorf("policy network: %w", err)
	}
	valueNet, err := nn.NewNetwork(cfg.ObsDim, cfg.Hidden, 1, rng)
	if err != nil {
		return nil, fmt.Errorf("value network: %w", err)
	}
	for _, net := range []*nn.Network{policyNet, valueNet} {
		if err := net.SetHiddenActivation(cfg.Activation); err != nil {
			return nil, err
		}
	}
	logStd := nn.NewTensor(1, cfg.ActDim, 0, nil)
	for i := 0; i < cfg.ActDim; i++ {
		logStd.W.Set(0, i, cfg.InitLogStd)
	}
	return &Learner{
		cfg:    cfg,
		policy: policyNet,
		value:  valueNet,
		logStd: logStd,
		optim:  nn.NewAdam(cfg.LR),
		rng:    rng,
	}, nil
}

func (l *Learner) Config() Config { return l.cfg }

// Pending is the number of buffered transitions.
func (l *Learner) Pending() int { return len(l.buffer) }

// Updates is the number of optimizer steps taken.
func (l *Learner) Updates() int { return l.optim.Steps() }

// LogStd returns a copy of the current log standard deviations.
func (l *Learner) LogStd() []float64 {
	out := make([]float64, l.cfg.ActDim)
	for i := range out {
		out[i] = l.logStd.W.At(0, i)
	}
	return out
}

// Mean is the deterministic action for obs.
func (l *Learner) Mean(obs []float64) []float64 {
	return l.policy.Output(obs, nn.HeadTanh)
}

func (l *Learner) Value(obs []float64) float64 {
	return l.value.Output(obs, nn.HeadLinear)[0]
}

// SampleAction draws action ~ N(mean(obs), exp(logStd)²) and returns its log
// density.
func (l *Learner) SampleAction(obs []float64) ([]float64, float64) {
	mu := l.Mean(obs)
	action := make([]float64, len(mu))
	for i := range mu {
		action[i] = mu[i] + math.Exp(l.logStd.W.At(0, i))*l.rng.NormFloat64()
	}
	return action, l.logProb(mu, action)
}

func (l *Learner) logProb(mu, action []float64) float64 {
	logp := 0.0
	for i := range mu {
		ls := l.logStd.W.At(0, i)
		z := (action[i] - mu[i]) / math.Exp(ls)
		logp += -0.5 * (z*z + 2*ls + log2Pi)
	}
	return logp
}

// AddTransition buffers one step. obs and action are copied.
func (l *Learner) AddTransition(obs, action []float64, reward, logProb, value float64, done bool) error {
	if len(obs) != l.cfg.ObsDim {
		return fmt.Errorf("obs length %d, want %d", len(obs), l.cfg.ObsDim)
	}
	if len(action) != l.cfg.ActDim {
		return fmt.Errorf("action length %d, want %d", len(action), l.cfg.ActDim)
	}
	l.buffer = append(l.buffer, transition{
		obs:     append([]float64(nil), obs...),
		action:  append([]float64(nil), action...),
		reward:  reward,
		logProb: logProb,
		value:   value,
		done:    done,
	})
	return nil
}

// DiscountedReturns folds rewards backwards from bootstrap, cutting the
// chain at every done step.
func DiscountedReturns(rewards []float64, dones []bool, bootstrap, gamma float64) []float64 {
	out := make([]float64, len(rewards))
	running := bootstrap
	for t := len(rewards) - 1; t >= 0; t-- {
		mask := 1.0
		if dones[t] {
			mask = 0
		}
		running = rewards[t] + gamma*running*mask
		out[t] = running
	}
	return out
}

// Learn takes one Adam step over the buffered trajectory and clears it. An
// empty buffer is a no-op.
func (l *Learner) Learn() (Stats, error) {
	steps := len(l.buffer)
	if steps == 0 {
		return Stats{}, nil
	}
	rewards := make([]float64, steps)
	dones := make([]bool, steps)
	for t, tr := range l.buffer {
		rewards[t] = tr.reward
		dones[t] = tr.done
	}
	bootstrap := l.Value(l.buffer[steps-1].obs)
	returns := DiscountedReturns(rewards, dones, bootstrap, l.cfg.Gamma)

	l.policy.ZeroGrad()
	l.value.ZeroGrad()
	l.logStd.ZeroGrad()

	actDim := l.cfg.ActDim
	gradMu := make([]float64, actDim)
	var actorLoss, criticLoss float64
	for t, tr := range l.buffer {
		valueActs := l.value.Forward(tr.obs, nn.HeadLinear)
		adv := returns[t] - valueActs[len(valueActs)-1][0]
		criticLoss += adv * adv
		l.value.Backward(valueActs, []float64{-2 * l.cfg.ValueCoef * adv}, nn.HeadLinear)

		policyActs := l.policy.Forward(tr.obs, nn.HeadTanh)
		mu := policyActs[len(policyActs)-1]
		for i := 0; i < actDim; i++ {
			ls := l.logStd.W.At(0, i)
			variance := math.Exp(2 * ls)
			diff := tr.action[i] - mu[i]
			gradMu[i] = -adv * diff / variance
			gls := -adv*(diff*diff/variance-1) - l.cfg.EntropyBeta
			l.logStd.Grad.Set(0, i, l.logStd.Grad.At(0, i)+gls)
		}
		l.policy.Backward(policyActs, gradMu, nn.HeadTanh)
		actorLoss += -tr.logProb * adv
	}

	entropy := 0.0
	for i := 0; i < actDim; i++ {
		entropy += l.logStd.W.At(0, i) + 0.5*(log2Pi+1)
	}

	params := make([]*nn.Tensor, 0, len(l.policy.Params())+len(l.value.Params())+1)
	params = append(params, l.policy.Params()...)
	params = append(params, l.value.Params()...)
	params = append(params, l.logStd)
	if err := l.optim.Step(params); err != nil {
		return Stats{}, fmt.Errorf("adam step: %w", err)
	}
	l.buffer = l.buffer[:0]

	n := float64(steps)
	return Stats{
		Steps:      steps,
		ActorLoss:  actorLoss / n,
		CriticLoss: criticLoss / n,
		Entropy:    entropy,
	}, nil
}
