package engine

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/simhost/internal/control"
	"github.com/san-kum/simhost/internal/dynamo"
	"github.com/san-kum/simhost/internal/integrators"
)

// PlantSpec describes a single-input plant backed by a dynamo.System.
type PlantSpec struct {
	Name string

	// NewSystem returns a system with default parameters. Systems that
	// implement dynamo.Configurable pick up matching keys from Params.
	NewSystem func() dynamo.System

	// Initial draws a starting state. It is used for DefaultState, Reset and
	// the automatic reset after leaving the valid region.
	Initial func(rng *rand.Rand) dynamo.State

	// OutOfBounds reports states the plant should not continue from.
	OutOfBounds func(x dynamo.State) bool

	Design func(params Params) (control.Design, error)

	// Keys maps key names onto manual forces.
	Keys map[string]float64

	// MaxStep bounds the integrator step inside one AdvanceTo.
	MaxStep float64

	// Angles lists the state components kept in [0, 2π).
	Angles []int
}

// Plant is the Adapter for in-process ODE plants.
type Plant struct {
	spec  PlantSpec
	rng   *rand.Rand
	token string
	viz   string

	sys    dynamo.System
	integ  dynamo.Integrator
	design control.Design

	x      dynamo.State
	t      float64
	u      float64
	rate   float64
	steps  int
	resets int

	built  bool
	closed bool
}

func NewPlant(spec PlantSpec, params Params, opts Options) (*Plant, error) {
	seed, err := params.Int64("seed", time.Now().UnixNano())
	if err != nil {
		return nil, &BuildError{SimType: spec.Name, Err: err}
	}
	if spec.MaxStep <= 0 {
		spec.MaxStep = 1.0 / 240
	}
	return &Plant{
		spec:  spec,
		rng:   rand.New(rand.NewSource(seed)),
		token: uuid.NewString(),
		viz:   strings.TrimRight(opts.VizBaseURL, "/"),
		rate:  1,
	}, nil
}

func (p *Plant) buildErr(err error) error {
	return &BuildError{SimType: p.spec.Name, Err: err}
}

func (p *Plant) Build(params Params, initial dynamo.State) error {
	if p.closed {
		return p.buildErr(ErrShutdown)
	}

	sys := p.spec.NewSystem()
	if c, ok := sys.(dynamo.Configurable); ok {
		for name := range c.GetParams() {
			if _, set := params[name]; !set {
				continue
			}
			v, err := params.Float(name, 0)
			if err != nil {
				return p.buildErr(err)
			}
			if err := c.SetParam(name, v); err != nil {
				return p.buildErr(err)
			}
		}
	}

	integ, err := integrators.New(params.Text("integrator", integrators.Default))
	if err != nil {
		return p.buildErr(err)
	}

	if len(initial) != sys.StateDim() {
		return p.buildErr(fmt.Errorf("%w: initial state has %d components, want %d",
			dynamo.ErrDimensionMismatch, len(initial), sys.StateDim()))
	}
	if !initial.IsValid() {
		return p.buildErr(dynamo.ErrInvalidState)
	}

	var design control.Design
	if p.spec.Design != nil {
		if design, err = p.spec.Design(params); err != nil {
			return p.buildErr(err)
		}
	}

	p.sys = sys
	p.integ = integ
	p.design = design
	p.x = initial.Clone()
	p.wrapAngles()
	p.built = true
	return nil
}

func (p *Plant) DefaultState() dynamo.State {
	return p.spec.Initial(p.rng)
}

// AdvanceTo splits the interval into equal substeps no longer than MaxStep.
// Leaving the valid region resets the state without failing.
func (p *Plant) AdvanceTo(t float64) error {
	if p.closed {
		return &StepError{Time: p.t, Err: ErrShutdown}
	}
	if !p.built {
		return &StepError{Time: p.t, Err: ErrNotBuilt}
	}
	if t < p.t {
		return &StepError{Time: p.t, Err: fmt.Errorf("%w: %.4f", dynamo.ErrTimeReversal, t)}
	}

	span := t - p.t
	if span == 0 {
		return nil
	}
	n := int(math.Ceil(span/p.spec.MaxStep - 1e-9))
	if n < 1 {
		n = 1
	}
	h := span / float64(n)
	u := dynamo.Control{p.u}

	for i := 0; i < n; i++ {
		x := p.integ.Step(p.sys, p.x, u, p.t, h)
		p.steps++
		if !x.IsValid() {
			return &StepError{Time: p.t, Err: &dynamo.SimulationError{
				Step:    p.steps,
				Time:    p.t,
				State:   p.x.Clone(),
				Wrapped: dynamo.ErrUnstable,
			}}
		}
		p.x = x
		p.t += h
	}
	p.t = t
	p.wrapAngles()

	if p.spec.OutOfBounds != nil && p.spec.OutOfBounds(p.x) {
		p.reset()
	}
	return nil
}

func (p *Plant) Time() float64 { return p.t }

func (p *Plant) Observe() dynamo.State { return p.x.Clone() }

func (p *Plant) Actuate(u float64) { p.u = u }

func (p *Plant) Reset() error {
	if p.closed {
		return ErrShutdown
	}
	if !p.built {
		return ErrNotBuilt
	}
	p.reset()
	return nil
}

func (p *Plant) wrapAngles() {
	for _, i := range p.spec.Angles {
		p.x[i] = dynamo.Wrap(p.x[i], 0, 2*math.Pi)
	}
}

// reset draws a fresh initial state and rewinds simulated time to zero.
func (p *Plant) reset() {
	p.x = p.spec.Initial(p.rng)
	p.wrapAngles()
	p.t = 0
	p.resets++
}

// Resets counts automatic and requested resets since construction.
func (p *Plant) Resets() int { return p.resets }

func (p *Plant) SetRealtimeRate(r float64) {
	if r > 0 {
		p.rate = r
	}
}

func (p *Plant) RealtimeRate() float64 { return p.rate }

func (p *Plant) VisualizationURL() string {
	return p.viz + "/viz/" + p.token
}

func (p *Plant) Design() control.Design { return p.design }

// Energy reports the plant's mechanical energy at x, or 0 when the system
// does not define one.
func (p *Plant) Energy(x dynamo.State) float64 {
	if h, ok := p.sys.(dynamo.Hamiltonian); ok {
		return h.Energy(x)
	}
	return 0
}

func (p *Plant) Shutdown() error {
	p.closed = true
	p.sys = nil
	p.integ = nil
	return nil
}

func (p *Plant) KeyDown(key string, m *control.Machine) bool {
	f, ok := p.spec.Keys[key]
	if !ok {
		return false
	}
	m.SetManualForce(f)
	return true
}

func (p *Plant) KeyUp(key string, m *control.Machine) bool {
	if _, ok := p.spec.Keys[key]; !ok {
		return false
	}
	m.SetManualForce(0)
	return true
}

// HandleUI understands "reset" and "set_param" with a {name, value} payload
// applied to the live system.
func (p *Plant) HandleUI(action string, value any) error {
	switch action {
	case "reset":
		return p.Reset()
	case "set_param":
		if !p.built {
			return ErrNotBuilt
		}
		payload, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("set_param: expected object, got %T", value)
		}
		name, _ := payload["name"].(string)
		v, err := Params(payload).Float("value", math.NaN())
		if err != nil {
			return fmt.Errorf("set_param: %w", err)
		}
		if math.IsNaN(v) {
			return fmt.Errorf("set_param: missing value")
		}
		c, ok := p.sys.(dynamo.Configurable)
		if !ok {
			return fmt.Errorf("%w: %s has no tunable parameters", ErrUnsupported, p.spec.Name)
		}
		return c.SetParam(name, v)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, action)
	}
}
