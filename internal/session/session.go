package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/san-kum/simhost/internal/control"
	"github.com/san-kum/simhost/internal/dynamo"
	"github.com/san-kum/simhost/internal/engine"
	"github.com/san-kum/simhost/internal/metrics"
	"github.com/san-kum/simhost/internal/storage"
)

type State int32

const (
	Uninitialized State = iota
	Building
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Building:
		return "building"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Snapshot is the published view of a session after a tick. Seq changes only
// when the content does.
type Snapshot struct {
	Seq    uint64       `json:"-"`
	Time   float64      `json:"time"`
	State  dynamo.State `json:"state"`
	Force  float64      `json:"force"`
	Modes  []string     `json:"modes"`
	Paused bool         `json:"paused"`
}

func (s *Snapshot) sameContent(o *Snapshot) bool {
	return s.Time == o.Time && s.Force == o.Force && s.Paused == o.Paused &&
		s.State.Equal(o.State) && slices.Equal(s.Modes, o.Modes)
}

// Config holds the per-session loop settings.
type Config struct {
	Period          time.Duration
	MinSleep        time.Duration
	RealtimeRate    float64
	ExclusiveManual bool

	// Store enables recordings when set. MaxSamples bounds each recording.
	Store      *storage.Store
	MaxSamples int
}

func (c Config) withDefaults() Config {
	if c.Period <= 0 {
		c.Period = time.Second / 60
	}
	if c.MinSleep <= 0 {
		c.MinSleep = time.Millisecond
	}
	if c.RealtimeRate <= 0 {
		c.RealtimeRate = 1
	}
	if c.MaxSamples <= 0 {
		c.MaxSamples = 36000
	}
	return c
}

// Info summarizes a session for status listings.
type Info struct {
	ID           string    `json:"id"`
	SimType      string    `json:"sim_type"`
	State        string    `json:"state"`
	Time         float64   `json:"time"`
	Modes        []string  `json:"modes"`
	Paused       bool      `json:"paused"`
	URL          string    `json:"url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Session is one client's simulation. The adapter, controller machine and
// params are owned by the step goroutine; other goroutines only enqueue
// commands and read snapshots.
type Session struct {
	id      string
	simType string
	cfg     Config
	adapter engine.Adapter
	log     *slog.Logger
	metrics *metrics.Metrics
	onExit  func(*Session, error)

	state        atomic.Int32
	started      atomic.Bool
	lastActivity atomic.Int64
	snap         atomic.Pointer[Snapshot]
	createdAt    time.Time

	mu    sync.Mutex
	queue []Command

	ready  chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	url    string
	err    error

	// step goroutine only
	params   engine.Params
	machine  *control.Machine
	paused   bool
	recorder *storage.Recording
	effort   *metrics.ControlEffort
	drift    *metrics.EnergyDrift
}

func newSession(id string, params engine.Params, adapter engine.Adapter, cfg Config,
	log *slog.Logger, m *metrics.Metrics, onExit func(*Session, error)) *Session {
	if log == nil {
		log = slog.Default()
	}
	params = params.Clone()
	simType := params.SimType()
	s := &Session{
		id:        id,
		simType:   simType,
		cfg:       cfg.withDefaults(),
		adapter:   adapter,
		log:       log.With("session", id, "sim_type", simType),
		metrics:   m,
		onExit:    onExit,
		createdAt: time.Now(),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		params:    params,
		effort:    metrics.NewControlEffort(),
	}
	// Stop may be called before start, so the cancel func exists from the
	// beginning.
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.lastActivity.Store(s.createdAt.UnixNano())
	s.snap.Store(&Snapshot{})
	if s.cfg.Store != nil {
		s.recorder = storage.NewRecording(storage.RunMetadata{
			SessionID: id,
			SimType:   simType,
			Period:    s.cfg.Period.Seconds(),
		}, s.cfg.MaxSamples)
	}
	return s
}

func (s *Session) ID() string      { return s.id }
func (s *Session) SimType() string { return s.simType }
func (s *Session) State() State    { return State(s.state.Load()) }

// Ready is closed once the first build succeeded.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Done is closed after the session reached Stopped and released its adapter.
func (s *Session) Done() <-chan struct{} { return s.done }

// Started reports whether the session ever became ready.
func (s *Session) Started() bool { return s.started.Load() }

// URL is the adapter's visualization URL. Valid after Ready.
func (s *Session) URL() string {
	select {
	case <-s.ready:
		return s.url
	default:
		return ""
	}
}

// Err is the error that stopped the session, nil for a requested stop.
// Valid after Done.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Session) Snapshot() Snapshot {
	return *s.snap.Load()
}

func (s *Session) Info() Info {
	snap := s.snap.Load()
	return Info{
		ID:           s.id,
		SimType:      s.simType,
		State:        s.State().String(),
		Time:         snap.Time,
		Modes:        snap.Modes,
		Paused:       snap.Paused,
		URL:          s.URL(),
		CreatedAt:    s.createdAt,
		LastActivity: time.Unix(0, s.lastActivity.Load()),
	}
}

// Enqueue appends cmd to the input queue. It never blocks on the step loop.
func (s *Session) Enqueue(cmd Command) error {
	if s.State() == Stopped {
		return ErrStopped
	}
	s.mu.Lock()
	s.queue = append(s.queue, cmd)
	s.mu.Unlock()
	s.lastActivity.Store(time.Now().UnixNano())
	return nil
}

func (s *Session) drain() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	cmds := s.queue
	s.queue = nil
	return cmds
}

func (s *Session) start() {
	go s.run(s.ctx)
}

// Stop cancels the step loop and waits until the adapter is released. A
// session that is stopped before it started still needs start to return.
func (s *Session) Stop() {
	s.cancel()
	<-s.done
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	if ctx.Err() != nil {
		s.finish(nil)
		return
	}
	if err := s.build(nil); err != nil {
		s.log.Error("build failed", "error", err)
		s.finish(err)
		return
	}
	if ctx.Err() != nil {
		s.finish(nil)
		return
	}
	s.adapter.SetRealtimeRate(s.cfg.RealtimeRate)
	s.url = s.adapter.VisualizationURL()
	s.publish(0)
	s.state.Store(int32(Running))
	s.started.Store(true)
	s.metrics.SessionStarted(s.simType)
	close(s.ready)
	s.log.Info("session running", "url", s.url, "period", s.cfg.Period)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		select {
		case <-ctx.Done():
			s.finish(nil)
			return
		default:
		}

		start := time.Now()
		if err := s.tick(); err != nil {
			s.log.Error("session failed", "error", err)
			s.finish(err)
			return
		}
		work := time.Since(start)
		s.metrics.ObserveTick(s.simType, work, s.cfg.Period)

		sleep := s.cfg.Period - work
		if sleep < s.cfg.MinSleep {
			sleep = s.cfg.MinSleep
		}
		timer.Reset(sleep)
		select {
		case <-ctx.Done():
			s.finish(nil)
			return
		case <-timer.C:
		}
	}
}

// build (re)constructs the adapter. carry is the state to continue from; nil
// means initial_state from params or the adapter default.
func (s *Session) build(carry dynamo.State) (err error) {
	s.state.Store(int32(Building))
	defer func() {
		if r := recover(); r != nil {
			err = &engine.BuildError{SimType: s.simType, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	initial := carry
	if initial == nil {
		x, ok, err := s.params.State("initial_state")
		if err != nil {
			return &engine.BuildError{SimType: s.simType, Err: err}
		}
		if ok {
			initial = x
		} else {
			initial = s.adapter.DefaultState()
		}
	}

	if err := s.adapter.Build(s.params, initial); err != nil {
		var be *engine.BuildError
		if !errors.As(err, &be) {
			err = &engine.BuildError{SimType: s.simType, Err: err}
		}
		return err
	}

	names, err := s.params.Strings("controllers")
	if err != nil {
		return &engine.BuildError{SimType: s.simType, Err: err}
	}
	modes, err := control.ParseModes(names)
	if err != nil {
		return &engine.BuildError{SimType: s.simType, Err: err}
	}
	var opts []control.Option
	if s.cfg.ExclusiveManual {
		opts = append(opts, control.WithExclusiveManual())
	}
	s.machine = control.NewMachine(s.adapter.Design(), s.cfg.Period.Seconds(), modes, opts...)

	if h, ok := s.adapter.(dynamo.Hamiltonian); ok {
		s.drift = metrics.NewEnergyDrift(h)
	}
	return nil
}

func (s *Session) tick() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &engine.StepError{Time: s.snap.Load().Time, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	for _, cmd := range s.drain() {
		if err := s.apply(cmd); err != nil {
			var ie *InputError
			if !errors.As(err, &ie) {
				return err
			}
			s.log.Warn("input rejected", "kind", cmd.Kind, "error", err)
			s.metrics.InputRejected(string(cmd.Kind))
		}
	}

	x := s.adapter.Observe()
	u := s.machine.Compute(x)
	if !s.paused {
		s.machine.Advance(x)
		s.adapter.Actuate(u)
		if err := s.adapter.AdvanceTo(s.adapter.Time() + s.cfg.Period.Seconds()); err != nil {
			return err
		}
		s.observe(x, u)
	}
	s.publish(u)
	return nil
}

func (s *Session) observe(x dynamo.State, u float64) {
	t := s.adapter.Time()
	ctrl := dynamo.Control{u}
	s.effort.Observe(x, ctrl, t)
	if s.drift != nil {
		s.drift.Observe(x, ctrl, t)
	}
	if s.recorder != nil {
		s.recorder.Add(t, s.adapter.Observe(), u)
	}
}

func (s *Session) publish(u float64) {
	modes := s.machine.ActiveModes()
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	next := &Snapshot{
		Time:   s.adapter.Time(),
		State:  s.adapter.Observe(),
		Force:  u,
		Modes:  names,
		Paused: s.paused,
	}
	prev := s.snap.Load()
	if prev.Seq > 0 && next.sameContent(prev) {
		return
	}
	next.Seq = prev.Seq + 1
	s.snap.Store(next)
}

func (s *Session) apply(cmd Command) error {
	switch cmd.Kind {
	case KeyboardDown, KeyboardUp:
		kh, ok := s.adapter.(engine.KeyHandler)
		if !ok {
			return inputErr(cmd.Kind, "%s does not accept keys", s.simType)
		}
		var handled bool
		if cmd.Kind == KeyboardDown {
			handled = kh.KeyDown(cmd.Key, s.machine)
		} else {
			handled = kh.KeyUp(cmd.Key, s.machine)
		}
		if !handled {
			s.log.Debug("key ignored", "key", cmd.Key)
		}
		return nil
	case UIInput:
		return s.applyUI(cmd.Action, cmd.Value)
	case UpdateParam:
		return s.rebuild(cmd.Params)
	case Reset:
		s.machine.Reset()
		return s.adapter.Reset()
	default:
		return inputErr(cmd.Kind, "unknown command")
	}
}

func (s *Session) applyUI(action string, value any) error {
	switch action {
	case "set_force":
		f, err := engine.Params{"value": value}.Float("value", 0)
		if err != nil {
			return &InputError{Kind: UIInput, Err: err}
		}
		if !s.machine.SetManualForce(f) {
			s.log.Debug("manual force ignored, manual mode inactive", "force", f)
		}
		return nil
	case "toggle_controller":
		name := ""
		switch v := value.(type) {
		case string:
			name = v
		case map[string]any:
			name, _ = v["controller"].(string)
		}
		mode, err := control.ParseMode(name)
		if err != nil {
			return &InputError{Kind: UIInput, Err: err}
		}
		if err := s.machine.Toggle(mode); err != nil {
			return &InputError{Kind: UIInput, Err: err}
		}
		s.log.Info("controller toggled", "mode", mode, "active", s.machine.ActiveModes())
		return nil
	case "play":
		s.paused = false
		return nil
	case "pause":
		s.paused = true
		return nil
	case "set_gains":
		gains, ok := value.(map[string]any)
		if !ok {
			return inputErr(UIInput, "set_gains: expected object, got %T", value)
		}
		pid := s.machine.Design().Tracking
		if pid == nil {
			return &InputError{Kind: UIInput, Err: control.ErrNotDesigned}
		}
		p := engine.Params(gains)
		kp, err1 := p.Float("kp", pid.Kp)
		ki, err2 := p.Float("ki", pid.Ki)
		kd, err3 := p.Float("kd", pid.Kd)
		if err := errors.Join(err1, err2, err3); err != nil {
			return &InputError{Kind: UIInput, Err: err}
		}
		if math.IsNaN(kp + ki + kd) {
			return inputErr(UIInput, "set_gains: NaN gain")
		}
		if err := s.machine.SetGains(kp, ki, kd); err != nil {
			return &InputError{Kind: UIInput, Err: err}
		}
		return nil
	default:
		uh, ok := s.adapter.(engine.UIHandler)
		if !ok {
			return inputErr(UIInput, "%w: %s", engine.ErrUnsupported, action)
		}
		if err := uh.HandleUI(action, value); err != nil {
			return &InputError{Kind: UIInput, Err: err}
		}
		return nil
	}
}

// rebuild merges update into the params and rebuilds the adapter from the
// current observation, unless the update carries its own initial_state.
func (s *Session) rebuild(update engine.Params) error {
	merged := s.params.Merge(update)
	if merged.SimType() != s.simType {
		return inputErr(UpdateParam, "sim_type cannot change from %s to %s", s.simType, merged.SimType())
	}
	var carry dynamo.State
	if _, ok := update["initial_state"]; !ok {
		carry = s.adapter.Observe()
	}
	s.params = merged
	if err := s.build(carry); err != nil {
		return err
	}
	s.state.Store(int32(Running))
	s.log.Info("session rebuilt", "params", update)
	return nil
}

// finish moves the session into Stopped. Only the first call releases the
// adapter.
func (s *Session) finish(err error) {
	for {
		cur := s.state.Load()
		if cur == int32(Stopped) {
			return
		}
		if s.state.CompareAndSwap(cur, int32(Stopped)) {
			break
		}
	}

	s.err = err
	if serr := s.adapter.Shutdown(); serr != nil {
		s.log.Warn("adapter shutdown failed", "error", serr)
	}
	s.saveRecording(err)
	s.log.Info("session stopped", "error", err)

	if s.onExit != nil {
		s.onExit(s, err)
	}
}

func (s *Session) saveRecording(err error) {
	if s.recorder == nil || s.recorder.Len() == 0 {
		return
	}
	meta := &s.recorder.Meta
	meta.Params = s.params.Clone()
	meta.Modes = s.snap.Load().Modes
	meta.Metrics = map[string]float64{
		s.effort.Name(): s.effort.Value(),
		"peak_force":    s.effort.Peak(),
	}
	if s.drift != nil {
		meta.Metrics[s.drift.Name()] = s.drift.Value()
	}
	if err != nil {
		meta.Reason = err.Error()
	}
	id, serr := s.cfg.Store.Save(s.recorder)
	if serr != nil {
		s.log.Warn("saving recording failed", "error", serr)
		return
	}
	s.log.Info("recording saved", "run", id, "samples", s.recorder.Len())
}
