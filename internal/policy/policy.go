package policy

import (
	"errors"
	"fmt"
	"strings"
)

const (
	KindLinear = "linear"
	KindMLP    = "mlp"

	DefaultHiddenDim = 20
)

var (
	ErrDimensionMismatch = errors.New("parameter dimension mismatch")
	ErrUnknownKind       = errors.New("unknown policy kind")
	ErrInvalidDims       = errors.New("invalid policy dimensions")
)

// Policy maps a fixed-size observation to a fixed-size action from a flat
// parameter vector. Act must not allocate and is pure given the bound
// parameters.
type Policy interface {
	Kind() string
	InputDim() int
	OutputDim() int
	ParamCount() int
	SetParams(theta []float64) error
	// Params returns the bound vector. Callers must not mutate it.
	Params() []float64
	Act(obs, act []float64)
	// Clone returns an independent policy with identical dimensions and a
	// copy of the bound parameters.
	Clone() Policy
}

// Spec identifies a policy shape.
type Spec struct {
	Kind      string `json:"kind" yaml:"kind"`
	InputDim  int    `json:"input_dim" yaml:"input_dim"`
	OutputDim int    `json:"output_dim" yaml:"output_dim"`
	HiddenDim int    `json:"hidden_dim,omitempty" yaml:"hidden_dim,omitempty"`
}

func (s Spec) normalized() Spec {
	s.Kind = strings.TrimSpace(strings.ToLower(s.Kind))
	if s.Kind == "" {
		s.Kind = KindLinear
	}
	if s.Kind == KindMLP && s.HiddenDim <= 0 {
		s.HiddenDim = DefaultHiddenDim
	}
	return s
}

func (s Spec) validate() error {
	if s.InputDim <= 0 || s.OutputDim <= 0 {
		return fmt.Errorf("%w: input=%d output=%d", ErrInvalidDims, s.InputDim, s.OutputDim)
	}
	if s.Kind == KindMLP && s.HiddenDim <= 0 {
		return fmt.Errorf("%w: hidden=%d", ErrInvalidDims, s.HiddenDim)
	}
	return nil
}

// New builds a zero-initialized policy for spec.
func New(spec Spec) (Policy, error) {
	spec = spec.normalized()
	if err := spec.validate(); err != nil {
		return nil, err
	}
	switch spec.Kind {
	case KindLinear:
		return NewLinear(spec.InputDim, spec.OutputDim), nil
	case KindMLP:
		return NewMLP(spec.InputDim, spec.OutputDim, spec.HiddenDim), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, spec.Kind)
	}
}

// ParamCountFor is the parameter count for spec without building a policy.
func ParamCountFor(spec Spec) (int, error) {
	spec = spec.normalized()
	if err := spec.validate(); err != nil {
		return 0, err
	}
	switch spec.Kind {
	case KindLinear:
		return LinearParamCount(spec.InputDim, spec.OutputDim), nil
	case KindMLP:
		return MLPParamCount(spec.InputDim, spec.OutputDim, spec.HiddenDim), nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownKind, spec.Kind)
	}
}

// Kinds lists the supported policy kinds.
func Kinds() []string {
	return []string{KindLinear, KindMLP}
}

func checkLen(theta []float64, want int) error {
	if len(theta) != want {
		return fmt.Errorf("%w: got=%d want=%d", ErrDimensionMismatch, len(theta), want)
	}
	return nil
}
