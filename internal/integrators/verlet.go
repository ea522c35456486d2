package integrators

import "github.com/san-kum/simhost/internal/dynamo"

// The symplectic methods expect states laid out as [q..., q̇...] so the
// second half holds the rates of the first. Plant accelerations may depend
// on q̇ (friction, damping); both methods evaluate them with a predicted rate.

func split(x dynamo.State) int { return len(x) / 2 }

// Verlet is velocity Verlet. The end-of-step acceleration is taken at the
// Euler-predicted rate, which keeps damped plants second order.
type Verlet struct {
	pred dynamo.State
}

func NewVerlet() *Verlet {
	return &Verlet{}
}

func (v *Verlet) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	h := split(x)
	if len(v.pred) != len(x) {
		v.pred = make(dynamo.State, len(x))
	}

	a0 := dyn.Derive(x, u, t)
	out := make(dynamo.State, len(x))
	for i := 0; i < h; i++ {
		out[i] = x[i] + dt*(x[h+i]+0.5*dt*a0[h+i])
		v.pred[i] = out[i]
		v.pred[h+i] = x[h+i] + dt*a0[h+i]
	}

	a1 := dyn.Derive(v.pred, u, t+dt)
	for i := 0; i < h; i++ {
		out[h+i] = x[h+i] + 0.5*dt*(a0[h+i]+a1[h+i])
	}
	return out
}

// Leapfrog is the kick-drift-kick scheme.
type Leapfrog struct {
	mid dynamo.State
}

func NewLeapfrog() *Leapfrog {
	return &Leapfrog{}
}

func (l *Leapfrog) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	h := split(x)
	if len(l.mid) != len(x) {
		l.mid = make(dynamo.State, len(x))
	}

	a0 := dyn.Derive(x, u, t)
	for i := 0; i < h; i++ {
		rate := x[h+i] + 0.5*dt*a0[h+i]
		l.mid[h+i] = rate
		l.mid[i] = x[i] + dt*rate
	}

	a1 := dyn.Derive(l.mid, u, t+dt)
	out := l.mid.Clone()
	for i := 0; i < h; i++ {
		out[h+i] += 0.5 * dt * a1[h+i]
	}
	return out
}
