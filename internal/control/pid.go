package control

import "github.com/san-kum/simhost/internal/dynamo"

// PID tracks a fixed setpoint on x[Index]. The derivative term acts on the
// measured rate x[RateIndex] rather than on the error, so setpoint jumps do
// not kick the output. The integral lives in the Machine.
type PID struct {
	Kp       float64
	Ki       float64
	Kd       float64
	Setpoint float64

	Index     int
	RateIndex int

	// IntegralLimit clamps the accumulated error to ±IntegralLimit.
	IntegralLimit float64

	// Wrap compares the measured component with the setpoint on the circle.
	Wrap bool
}

func NewPID(kp, ki, kd, setpoint float64) *PID {
	return &PID{
		Kp:        kp,
		Ki:        ki,
		Kd:        kd,
		Setpoint:  setpoint,
		RateIndex: 1,
	}
}

// Error returns setpoint minus measurement.
func (p *PID) Error(x dynamo.State) float64 {
	if p.Index >= len(x) {
		return 0
	}
	e := p.Setpoint - x[p.Index]
	if p.Wrap {
		e = dynamo.WrapAngle(e)
	}
	return e
}

func (p *PID) Output(x dynamo.State, integral float64) float64 {
	rate := 0.0
	if p.RateIndex < len(x) {
		rate = x[p.RateIndex]
	}
	return p.Kp*p.Error(x) + p.Ki*integral + p.Kd*(-rate)
}

// Accumulate returns the integral after one period of error, clamped.
func (p *PID) Accumulate(integral float64, x dynamo.State, dt float64) float64 {
	integral += p.Error(x) * dt
	if p.IntegralLimit > 0 {
		integral = dynamo.Clamp(integral, -p.IntegralLimit, p.IntegralLimit)
	}
	return integral
}
