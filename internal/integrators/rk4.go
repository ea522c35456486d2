package integrators

import "github.com/san-kum/simhost/internal/dynamo"

// RK4 is the classical fourth-order Runge-Kutta method. Stage buffers are
// reused between steps; only the returned state is allocated.
type RK4 struct {
	k     [4]dynamo.State
	stage dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

var (
	rk4Nodes   = [4]float64{0, 0.5, 0.5, 1}
	rk4Weights = [4]float64{1.0 / 6, 1.0 / 3, 1.0 / 3, 1.0 / 6}
)

func (r *RK4) resize(n int) {
	if len(r.stage) == n {
		return
	}
	for i := range r.k {
		r.k[i] = make(dynamo.State, n)
	}
	r.stage = make(dynamo.State, n)
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	r.resize(len(x))

	for s := range r.k {
		in := x
		if s > 0 {
			// each stage is evaluated along the previous slope
			axpy(r.stage, x, rk4Nodes[s]*dt, r.k[s-1])
			in = r.stage
		}
		copy(r.k[s], dyn.Derive(in, u, t+rk4Nodes[s]*dt))
	}

	out := x.Clone()
	for s, w := range rk4Weights {
		for i := range out {
			out[i] += dt * w * r.k[s][i]
		}
	}
	return out
}

// axpy stores x + a*y in dst.
func axpy(dst, x dynamo.State, a float64, y dynamo.State) {
	for i := range dst {
		dst[i] = x[i] + a*y[i]
	}
}
