package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/simhost/internal/dynamo"
)

type simpleDynamics struct{}

func (s *simpleDynamics) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (s *simpleDynamics) StateDim() int   { return 2 }
func (s *simpleDynamics) ControlDim() int { return 0 }

func integrate(integ dynamo.Integrator, steps int, dt float64) dynamo.State {
	dyn := &simpleDynamics{}
	x := dynamo.State{1.0, 0.0}
	for i := 0; i < steps; i++ {
		x = integ.Step(dyn, x, dynamo.Control{}, float64(i)*dt, dt)
	}
	return x
}

func TestRK4Accuracy(t *testing.T) {
	dt := 0.01
	steps := 100
	x := integrate(NewRK4(), steps, dt)

	expectedX := math.Cos(float64(steps) * dt)
	expectedV := -math.Sin(float64(steps) * dt)

	if math.Abs(x[0]-expectedX) > 1e-4 {
		t.Errorf("position error too large: got %.6f, expected %.6f", x[0], expectedX)
	}

	if math.Abs(x[1]-expectedV) > 1e-4 {
		t.Errorf("velocity error too large: got %.6f, expected %.6f", x[1], expectedV)
	}
}

func TestMethodsConverge(t *testing.T) {
	tests := []struct {
		name string
		tol  float64
	}{
		{"euler", 1e-2},
		{"rk4", 1e-6},
		{"verlet", 1e-3},
		{"leapfrog", 1e-3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			integ, err := New(tt.name)
			if err != nil {
				t.Fatalf("New(%q): %v", tt.name, err)
			}
			x := integrate(integ, 1000, 0.001)
			if d := math.Abs(x[0] - math.Cos(1)); d > tt.tol {
				t.Errorf("position error %.2e exceeds %.0e", d, tt.tol)
			}
		})
	}
}

func TestNewDefaultsAndUnknown(t *testing.T) {
	integ, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := integ.(*RK4); !ok {
		t.Errorf("default integrator is %T, want *RK4", integ)
	}

	if _, err := New("midpoint"); !errors.Is(err, ErrUnknownIntegrator) {
		t.Errorf("expected ErrUnknownIntegrator, got %v", err)
	}

	if got := Names(); len(got) != 4 || got[0] != "euler" {
		t.Errorf("unexpected names %v", got)
	}
}
