package control

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/san-kum/simhost/internal/dynamo"
)

const testPeriod = 1.0 / 60

func testDesign(t *testing.T) Design {
	t.Helper()
	axes := []Axis{
		{Min: 0, Max: 2 * math.Pi, Points: 8, Periodic: true},
		{Min: -5, Max: 5, Points: 3},
	}
	policy, err := Tabulate(axes, func(dynamo.State) float64 { return 7 })
	if err != nil {
		t.Fatal(err)
	}
	return Design{
		Regulator:    NewLQR([][]float64{{1, 2}}, dynamo.State{math.Pi, 0}, 0),
		Neighborhood: Neighborhood{Index: 0, Center: math.Pi, Radius: math.Pi / 2},
		Tracking: &PID{
			Kp: 10, Ki: 1, Kd: 1,
			Setpoint:      math.Pi,
			Index:         0,
			RateIndex:     1,
			IntegralLimit: 0.5,
			Wrap:          true,
		},
		Policy: policy,
		Limit:  100,
	}
}

func TestComputePriority(t *testing.T) {
	near := dynamo.State{math.Pi + 0.1, 0.5}
	far := dynamo.State{0.2, 0.5}

	tests := []struct {
		name  string
		modes []Mode
		x     dynamo.State
		want  float64
	}{
		{"none", nil, near, 0},
		{"regulator inside", []Mode{Regulator}, near, -(0.1 + 2*0.5)},
		{"regulator outside falls to zero", []Mode{Regulator}, far, 0},
		{"regulator beats policy", []Mode{Regulator, Policy}, near, -(0.1 + 2*0.5)},
		{"policy outside neighborhood", []Mode{Regulator, Policy}, far, 7},
		{"policy beats tracking", []Mode{Policy, Tracking}, near, 7},
		{"tracking", []Mode{Tracking}, near, 10*(-0.1) - 0.5},
		{"regulator outside falls to tracking", []Mode{Regulator, Tracking}, far, 10*(math.Pi-0.2) - 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(testDesign(t), testPeriod, tt.modes)
			if got := m.Compute(tt.x); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Compute = %g, want %g", got, tt.want)
			}
		})
	}
}

func TestComputeClipped(t *testing.T) {
	modes := []Mode{Manual, Regulator, Tracking, Policy, Zero}
	variants := map[string][]Option{
		"additive":  nil,
		"exclusive": {WithExclusiveManual()},
	}
	for name, opts := range variants {
		t.Run(name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(1))
			d := testDesign(t)
			d.Tracking.Kp = 1e4
			m := NewMachine(d, testPeriod, nil, opts...)

			for i := 0; i < 5000; i++ {
				// a random walk over the mode flags
				for n := rng.Intn(3); n > 0; n-- {
					if err := m.Toggle(modes[rng.Intn(len(modes))]); err != nil {
						t.Fatal(err)
					}
				}
				m.SetManualForce(rng.Float64()*1000 - 500)
				x := dynamo.State{rng.Float64()*20 - 10, rng.Float64()*200 - 100}
				m.Advance(x)
				if u := m.Compute(x); math.Abs(u) > d.Limit {
					t.Fatalf("step %d, modes %v: |Compute(%v)| = %g exceeds %g",
						i, m.ActiveModes(), x, math.Abs(u), d.Limit)
				}
			}
		})
	}
}

func TestIntegralAdvancesWhileRegulatorWins(t *testing.T) {
	m := NewMachine(testDesign(t), testPeriod, []Mode{Regulator, Tracking})
	x := dynamo.State{math.Pi - 0.3, 0}

	m.Advance(x)
	if want := 0.3 * testPeriod; math.Abs(m.Integral()-want) > 1e-12 {
		t.Errorf("integral = %g, want %g", m.Integral(), want)
	}

	for i := 0; i < 1000; i++ {
		m.Advance(x)
	}
	if m.Integral() != 0.5 {
		t.Errorf("integral = %g, want clamp at 0.5", m.Integral())
	}

	// The regulator output must not depend on the integral.
	if got, want := m.Compute(x), 0.3; math.Abs(got-want) > 1e-9 {
		t.Errorf("Compute = %g, want %g", got, want)
	}
}

func TestIntegralIdleWithoutTracking(t *testing.T) {
	m := NewMachine(testDesign(t), testPeriod, []Mode{Regulator})
	m.Advance(dynamo.State{0, 0})
	if m.Integral() != 0 {
		t.Errorf("integral moved to %g without tracking", m.Integral())
	}
}

func TestManualIsAdditive(t *testing.T) {
	m := NewMachine(testDesign(t), testPeriod, []Mode{Regulator})
	x := dynamo.State{math.Pi + 0.1, 0}
	base := m.Compute(x)

	if m.SetManualForce(10) {
		t.Fatal("SetManualForce accepted while manual inactive")
	}
	if m.ManualForce() != 0 || m.Compute(x) != base {
		t.Fatal("inactive manual force leaked into output")
	}

	if err := m.Toggle(Manual); err != nil {
		t.Fatal(err)
	}
	if !m.SetManualForce(10) {
		t.Fatal("SetManualForce rejected while manual active")
	}
	if got := m.Compute(x); math.Abs(got-(base+10)) > 1e-9 {
		t.Errorf("Compute = %g, want %g", got, base+10)
	}

	if err := m.Toggle(Manual); err != nil {
		t.Fatal(err)
	}
	if got := m.Compute(x); got != base {
		t.Errorf("Compute after manual off = %g, want %g", got, base)
	}
}

func TestExclusiveManual(t *testing.T) {
	m := NewMachine(testDesign(t), testPeriod, []Mode{Regulator, Manual}, WithExclusiveManual())
	m.SetManualForce(-4)
	if got := m.Compute(dynamo.State{math.Pi + 0.1, 0}); got != -4 {
		t.Errorf("Compute = %g, want -4", got)
	}
}

func TestToggle(t *testing.T) {
	m := NewMachine(testDesign(t), testPeriod, []Mode{Tracking})
	for i := 0; i < 10; i++ {
		m.Advance(dynamo.State{0, 0})
	}
	if m.Integral() == 0 {
		t.Fatal("integral did not accumulate")
	}

	m.Toggle(Tracking)
	m.Toggle(Tracking)
	if m.Integral() != 0 {
		t.Errorf("integral = %g after re-enabling tracking, want 0", m.Integral())
	}

	m.Toggle(Policy)
	m.Toggle(Manual)
	if got := m.ActiveModes(); len(got) != 3 || got[0] != Manual {
		t.Errorf("ActiveModes = %v", got)
	}

	if err := m.Toggle(Zero); err != nil {
		t.Fatal(err)
	}
	if got := m.ActiveModes(); len(got) != 0 {
		t.Errorf("ActiveModes after zero = %v", got)
	}

	if err := m.Toggle(Mode("bangbang")); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("expected ErrUnknownMode, got %v", err)
	}
}

func TestSetGainsIsPerMachine(t *testing.T) {
	d := testDesign(t)
	a := NewMachine(d, testPeriod, []Mode{Tracking})
	b := NewMachine(d, testPeriod, []Mode{Tracking})

	if err := a.SetGains(1, 0, 0); err != nil {
		t.Fatal(err)
	}
	x := dynamo.State{math.Pi - 1, 0}
	if got := a.Compute(x); math.Abs(got-1) > 1e-9 {
		t.Errorf("retuned Compute = %g, want 1", got)
	}
	if got := b.Compute(x); math.Abs(got-10) > 1e-9 {
		t.Errorf("other machine Compute = %g, want 10", got)
	}

	if err := NewMachine(Design{}, testPeriod, nil).SetGains(1, 1, 1); !errors.Is(err, ErrNotDesigned) {
		t.Errorf("expected ErrNotDesigned, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"lqr", Regulator},
		{"Regulator", Regulator},
		{"tracking", Tracking},
		{"learned-policy", Policy},
		{" fvi ", Policy},
		{"manual", Manual},
		{"zero", Zero},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseMode(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}

	if _, err := ParseMode("mpc"); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("expected ErrUnknownMode, got %v", err)
	}

	modes, err := ParseModes([]string{"lqr", "zero", "policy"})
	if err != nil || len(modes) != 2 {
		t.Errorf("ParseModes = %v, %v", modes, err)
	}
}
