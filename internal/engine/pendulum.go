package engine

import (
	"math"
	"math/rand"
	"sync"

	"github.com/san-kum/simhost/internal/control"
	"github.com/san-kum/simhost/internal/dynamo"
	"github.com/san-kum/simhost/internal/physics"
)

const (
	pendulumTorqueLimit = 20.0
	pendulumKeyTorque   = 2.0
)

// Q = diag(10, 1), R = 1 around θ = π.
var pendulumGains = [][]float64{{20.15, 6.33}}

var pendulumAxes = []control.Axis{
	{Min: 0, Max: 2 * math.Pi, Points: 41, Periodic: true},
	{Min: -8, Max: 8, Points: 41},
}

var pendulumPolicy = sync.OnceValues(func() (*control.Table, error) {
	return control.Tabulate(pendulumAxes, pendulumSwingUp(physics.NewPendulum()))
})

func pendulumSpec() PlantSpec {
	return PlantSpec{
		Name:      "pendulum",
		NewSystem: func() dynamo.System { return physics.NewPendulum() },
		Initial: func(rng *rand.Rand) dynamo.State {
			return dynamo.State{math.Pi + 0.1*rng.NormFloat64(), 0}
		},
		OutOfBounds: func(x dynamo.State) bool {
			return math.Abs(x[1]) > 30
		},
		Design: pendulumDesign,
		Keys: map[string]float64{
			"ArrowLeft":  -pendulumKeyTorque,
			"a":          -pendulumKeyTorque,
			"ArrowRight": pendulumKeyTorque,
			"d":          pendulumKeyTorque,
		},
		MaxStep: 1.0 / 240,
		Angles:  []int{0},
	}
}

func NewPendulum(params Params, opts Options) (Adapter, error) {
	return NewPlant(pendulumSpec(), params, opts)
}

func newPendulumLQR() *control.LQR {
	return control.NewLQR(pendulumGains, dynamo.State{math.Pi, 0}, 0)
}

func pendulumDesign(params Params) (control.Design, error) {
	pid, err := trackingFromParams(params, &control.PID{
		Kp:            50,
		Ki:            1,
		Kd:            10,
		Setpoint:      math.Pi,
		Index:         0,
		RateIndex:     1,
		IntegralLimit: 10,
		Wrap:          true,
	})
	if err != nil {
		return control.Design{}, err
	}
	policy, err := pendulumPolicy()
	if err != nil {
		return control.Design{}, err
	}
	return control.Design{
		Regulator:    newPendulumLQR(),
		Neighborhood: control.Neighborhood{Index: 0, Center: math.Pi, Radius: math.Pi / 2},
		Tracking:     pid,
		Policy:       policy,
		Limit:        pendulumTorqueLimit,
	}, nil
}

func pendulumSwingUp(p *physics.Pendulum) func(x dynamo.State) float64 {
	const (
		ke   = 1.0
		band = 1.0
		// breakaway torque for a pendulum resting exactly at the bottom
		kick = 0.5
	)
	lqr := newPendulumLQR()
	upright := 2 * p.Mass * p.Gravity * p.Length
	return func(x dynamo.State) float64 {
		var u float64
		switch {
		case math.Abs(dynamo.WrapAngle(x[0]-math.Pi)) < band:
			u = lqr.Compute(x, 0)[0]
		case x[1] == 0:
			u = kick
		default:
			u = ke * (upright - p.Energy(x)) * x[1]
		}
		return dynamo.Clamp(u, -pendulumTorqueLimit, pendulumTorqueLimit)
	}
}
