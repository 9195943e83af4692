package nn

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

const (
	ActivationIdentity = "identity"
	ActivationReLU     = "relu"
	ActivationTanh     = "tanh"
	ActivationSigmoid  = "sigmoid"
)

var (
	ErrActivationExists   = errors.New("activation already registered")
	ErrActivationNotFound = errors.New("activation not found")
)

// Activation pairs a non-linearity with its derivative. The derivative is
// written in terms of the activation output y so Backward can reuse the
// activations Forward already stored.
type Activation struct {
	Name            string
	Fn              func(x float64) float64
	DerivFromOutput func(y float64) float64
}

var activationRegistry = struct {
	mu sync.RWMutex
	m  map[string]Activation
}{
	m: make(map[string]Activation),
}

func init() {
	initializeBuiltInActivations()
}

func initializeBuiltInActivations() {
	mustRegisterActivation(Activation{
		Name:            ActivationIdentity,
		Fn:              func(x float64) float64 { return x },
		DerivFromOutput: func(float64) float64 { return 1 },
	})
	mustRegisterActivation(Activation{
		Name: ActivationReLU,
		Fn: func(x float64) float64 {
			if x < 0 {
				return 0
			}
			return x
		},
		DerivFromOutput: func(y float64) float64 {
			if y > 0 {
				return 1
			}
			return 0
		},
	})
	mustRegisterActivation(Activation{
		Name:            ActivationTanh,
		Fn:              math.Tanh,
		DerivFromOutput: func(y float64) float64 { return 1 - y*y },
	})
	mustRegisterActivation(Activation{
		Name:            ActivationSigmoid,
		Fn:              func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
		DerivFromOutput: func(y float64) float64 { return y * (1 - y) },
	})
}

func RegisterActivation(a Activation) error {
	if a.Name == "" {
		return errors.New("activation name is required")
	}
	if a.Fn == nil || a.DerivFromOutput == nil {
		return fmt.Errorf("activation %s needs a function and its derivative", a.Name)
	}

	activationRegistry.mu.Lock()
	defer activationRegistry.mu.Unlock()

	if _, exists := activationRegistry.m[a.Name]; exists {
		return fmt.Errorf("%w: %s", ErrActivationExists, a.Name)
	}
	activationRegistry.m[a.Name] = a
	return nil
}

func mustRegisterActivation(a Activation) {
	if err := RegisterActivation(a); err != nil {
		panic(err)
	}
}

func LookupActivation(name string) (Activation, error) {
	activationRegistry.mu.RLock()
	a, ok := activationRegistry.m[name]
	activationRegistry.mu.RUnlock()
	if !ok {
		return Activation{}, fmt.Errorf("%w: %s", ErrActivationNotFound, name)
	}
	return a, nil
}

func mustActivation(name string) Activation {
	a, err := LookupActivation(name)
	if err != nil {
		panic(err)
	}
	return a
}

func ActivationNames() []string {
	activationRegistry.mu.RLock()
	defer activationRegistry.mu.RUnlock()

	names := make([]string, 0, len(activationRegistry.m))
	for name := range activationRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetActivationRegistryForTests() {
	activationRegistry.mu.Lock()
	activationRegistry.m = make(map[string]Activation)
	activationRegistry.mu.Unlock()
	initializeBuiltInActivations()
}
