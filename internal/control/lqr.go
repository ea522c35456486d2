package control

import (
	"math"

	"github.com/san-kum/simhost/internal/dynamo"
)

// LQR computes u = -K(x - Target). Components listed in Angles are compared
// on the circle, so an angle error never exceeds π in magnitude.
type LQR struct {
	K      [][]float64
	Target dynamo.State
	Angles []int
}

func NewLQR(k [][]float64, target dynamo.State, angles ...int) *LQR {
	return &LQR{K: k, Target: target, Angles: angles}
}

func (l *LQR) Compute(x dynamo.State, t float64) dynamo.Control {
	e := l.deviation(x)
	u := make(dynamo.Control, len(l.K))
	for i := range u {
		for j := range e {
			if j < len(l.K[i]) {
				u[i] -= l.K[i][j] * e[j]
			}
		}
	}
	return u
}

func (l *LQR) deviation(x dynamo.State) dynamo.State {
	e := make(dynamo.State, len(x))
	for j := range x {
		target := 0.0
		if j < len(l.Target) {
			target = l.Target[j]
		}
		e[j] = x[j] - target
	}
	for _, j := range l.Angles {
		if j < len(e) {
			e[j] = dynamo.WrapAngle(e[j])
		}
	}
	return e
}

// Neighborhood bounds the region where a regulator's linearization is
// trusted: |wrap(x[Index] - Center)| < Radius. A non-positive Radius means
// everywhere.
type Neighborhood struct {
	Index  int
	Center float64
	Radius float64
}

func (n Neighborhood) Contains(x dynamo.State) bool {
	if n.Radius <= 0 {
		return true
	}
	if n.Index >= len(x) {
		return false
	}
	return math.Abs(dynamo.WrapAngle(x[n.Index]-n.Center)) < n.Radius
}
