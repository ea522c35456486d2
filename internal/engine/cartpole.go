package engine

import (
	"math"
	"math/rand"
	"sync"

	"github.com/san-kum/simhost/internal/control"
	"github.com/san-kum/simhost/internal/dynamo"
	"github.com/san-kum/simhost/internal/physics"
)

// Cart-pole state is [x, θ, ẋ, θ̇] with θ = π upright.
const (
	cartPoleForceLimit = 100.0
	cartPoleKeyForce   = 10.0
	cartPoleTrack      = 2.5
)

// cartPoleGains is the discrete LQR gain for the default plant at 60 Hz with
// Q = diag(10, 10, 1, 1) and R = 1.
var cartPoleGains = [][]float64{{-3.1623, 254.39, -9.769, 55.18}}

var cartPoleAxes = []control.Axis{
	{Min: -cartPoleTrack, Max: cartPoleTrack, Points: 21},
	{Min: 0, Max: 2 * math.Pi, Points: 21, Periodic: true},
	{Min: -3, Max: 3, Points: 21},
	{Min: -10, Max: 10, Points: 21},
}

var cartPolePolicy = sync.OnceValues(func() (*control.Table, error) {
	return control.Tabulate(cartPoleAxes, cartPoleSwingUp(physics.NewCartPole()))
})

func cartPoleSpec() PlantSpec {
	return PlantSpec{
		Name:      "cartpole",
		NewSystem: func() dynamo.System { return physics.NewCartPole() },
		Initial: func(rng *rand.Rand) dynamo.State {
			return dynamo.State{0, math.Pi + 0.1*rng.NormFloat64(), 0, 0}
		},
		OutOfBounds: func(x dynamo.State) bool {
			return math.Abs(x[0]) > cartPoleTrack || math.Abs(x[2]) > 10 || math.Abs(x[3]) > 20
		},
		Design: cartPoleDesign,
		Keys: map[string]float64{
			"ArrowLeft":  -cartPoleKeyForce,
			"a":          -cartPoleKeyForce,
			"ArrowRight": cartPoleKeyForce,
			"d":          cartPoleKeyForce,
		},
		MaxStep: 1.0 / 240,
		Angles:  []int{1},
	}
}

func NewCartPole(params Params, opts Options) (Adapter, error) {
	return NewPlant(cartPoleSpec(), params, opts)
}

func newCartPoleLQR() *control.LQR {
	return control.NewLQR(cartPoleGains, dynamo.State{0, math.Pi, 0, 0}, 1)
}

func cartPoleDesign(params Params) (control.Design, error) {
	pid, err := trackingFromParams(params, &control.PID{
		Kp:            1000,
		Ki:            0,
		Kd:            1,
		Setpoint:      math.Pi,
		Index:         1,
		RateIndex:     3,
		IntegralLimit: 10,
		Wrap:          true,
	})
	if err != nil {
		return control.Design{}, err
	}
	policy, err := cartPolePolicy()
	if err != nil {
		return control.Design{}, err
	}
	return control.Design{
		Regulator:    newCartPoleLQR(),
		Neighborhood: control.Neighborhood{Index: 1, Center: math.Pi, Radius: math.Pi / 2},
		Tracking:     pid,
		Policy:       policy,
		Limit:        cartPoleForceLimit,
	}, nil
}

// cartPoleSwingUp pumps pole energy towards the upright level while a
// proportional term keeps the cart near the origin, and hands over to the
// regulator close to upright.
func cartPoleSwingUp(c *physics.CartPole) func(x dynamo.State) float64 {
	const (
		ke   = 5.0
		kx   = 5.0
		kv   = 10.0
		band = 0.5
	)
	lqr := newCartPoleLQR()
	upright := c.PoleMass * c.Gravity * c.PoleLength
	return func(x dynamo.State) float64 {
		var u float64
		if math.Abs(dynamo.WrapAngle(x[1]-math.Pi)) < band {
			u = lqr.Compute(x, 0)[0]
		} else {
			e := c.PoleEnergy(x)
			accel := -ke*(upright-e)*x[3]*math.Cos(x[1]) - kx*x[0] - kv*x[2]
			u = (c.CartMass + c.PoleMass) * accel
		}
		return dynamo.Clamp(u, -cartPoleForceLimit, cartPoleForceLimit)
	}
}

// trackingFromParams overrides the default gains with kp, ki and kd params.
func trackingFromParams(params Params, pid *control.PID) (*control.PID, error) {
	var err error
	if pid.Kp, err = params.Float("kp", pid.Kp); err != nil {
		return nil, err
	}
	if pid.Ki, err = params.Float("ki", pid.Ki); err != nil {
		return nil, err
	}
	if pid.Kd, err = params.Float("kd", pid.Kd); err != nil {
		return nil, err
	}
	return pid, nil
}
