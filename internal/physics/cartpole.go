package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/simhost/internal/dynamo"
)

// CartPole state is [x, θ, ẋ, θ̇]. θ is measured from the downward vertical,
// so the balanced configuration is θ = π.
type CartPole struct {
	CartMass   float64
	PoleMass   float64
	PoleLength float64
	Gravity    float64
}

func NewCartPole() *CartPole {
	return &CartPole{
		CartMass:   10.0,
		PoleMass:   1.0,
		PoleLength: 0.5,
		Gravity:    9.81,
	}
}

func (c *CartPole) StateDim() int {
	return 4
}

func (c *CartPole) ControlDim() int {
	return 1
}

func (c *CartPole) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	theta := x[1]
	vel := x[2]
	omega := x[3]

	force := 0.0
	if len(u) > 0 {
		force = u[0]
	}

	mc := c.CartMass
	mp := c.PoleMass
	l := c.PoleLength
	g := c.Gravity

	sint := math.Sin(theta)
	cost := math.Cos(theta)
	den := mc + mp*sint*sint

	xacc := (force + mp*sint*(l*omega*omega+g*cost)) / den
	thetaacc := (-force*cost - mp*l*omega*omega*cost*sint - (mc+mp)*g*sint) / (l * den)

	return dynamo.State{vel, omega, xacc, thetaacc}
}

// Energy is the total mechanical energy with the pivot height as reference.
func (c *CartPole) Energy(x dynamo.State) float64 {
	theta, vel, omega := x[1], x[2], x[3]
	l := c.PoleLength
	ke := 0.5*(c.CartMass+c.PoleMass)*vel*vel +
		c.PoleMass*vel*omega*l*math.Cos(theta) +
		0.5*c.PoleMass*l*l*omega*omega
	pe := -c.PoleMass * c.Gravity * l * math.Cos(theta)
	return ke + pe
}

// PoleEnergy is the energy of the pole alone about the pivot. It equals
// PoleMass·Gravity·PoleLength when the pole rests upright.
func (c *CartPole) PoleEnergy(x dynamo.State) float64 {
	l := c.PoleLength
	return 0.5*c.PoleMass*l*l*x[3]*x[3] - c.PoleMass*c.Gravity*l*math.Cos(x[1])
}

func (c *CartPole) GetParams() map[string]float64 {
	return map[string]float64{
		"cart_mass": c.CartMass,
		"pole_mass": c.PoleMass,
		"length":    c.PoleLength,
		"gravity":   c.Gravity,
	}
}

func (c *CartPole) SetParam(name string, value float64) error {
	if value <= 0 {
		return fmt.Errorf("%s=%g: %w", name, value, dynamo.ErrParameterBounds)
	}
	switch name {
	case "cart_mass":
		c.CartMass = value
	case "pole_mass":
		c.PoleMass = value
	case "length":
		c.PoleLength = value
	case "gravity":
		c.Gravity = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
