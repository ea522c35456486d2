package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/san-kum/simhost/internal/config"
	"github.com/san-kum/simhost/internal/engine"
	"github.com/san-kum/simhost/internal/metrics"
	"github.com/san-kum/simhost/internal/session"
)

// Event names on the wire.
const (
	EventInit        = "init"
	EventInput       = "input_event"
	EventKeyDown     = "keyboard_down"
	EventKeyUp       = "keyboard_up"
	EventUIInput     = "ui_input"
	EventUpdateParam = "update_param"
	EventGetOutput   = "get_output"

	EventStarted = "simulation_started"
	EventStopped = "simulation_stopped"
	EventData    = "sim_data"
	EventError   = "error"
)

// Messages sent in error events for the synchronous rejections.
const (
	MsgCapacity  = "capacity"
	MsgDuplicate = "already initialized"
)

var errUnknownPreset = errors.New("unknown preset")

// Emitter is the outbound half of a client connection.
type Emitter interface {
	ID() string
	Emit(event string, v ...any)
	Close() error
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type StartedPayload struct {
	URL string `json:"url"`
}

type StoppedPayload struct {
	Reason string `json:"reason"`
}

type DataPayload struct {
	Time   float64   `json:"time"`
	State  []float64 `json:"state"`
	Force  float64   `json:"force"`
	Modes  []string  `json:"modes"`
	Paused bool      `json:"paused"`
}

type HandlerOptions struct {
	// PushRate bounds sim_data frames per second per client.
	PushRate float64
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

type client struct {
	em         Emitter
	stopPusher context.CancelFunc
	pushGen    uint64
}

// Handler translates client events into session manager calls. It is
// transport agnostic; socketio.go binds it to Socket.IO.
type Handler struct {
	mgr      *session.Manager
	log      *slog.Logger
	metrics  *metrics.Metrics
	pushRate rate.Limit

	mu      sync.Mutex
	clients map[string]*client
}

func NewHandler(mgr *session.Manager, opts HandlerOptions) *Handler {
	if opts.PushRate <= 0 {
		opts.PushRate = config.DefaultPushRate
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &Handler{
		mgr:      mgr,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		pushRate: rate.Limit(opts.PushRate),
		clients:  make(map[string]*client),
	}
	mgr.OnTerminate(h.notifyStopped)
	return h
}

// Connect registers a new client. A client arriving while every slot is
// taken is told so and dropped.
func (h *Handler) Connect(em Emitter) error {
	if h.mgr.Full() {
		h.log.Warn("connection refused, at capacity", "client", em.ID())
		em.Emit(EventError, ErrorPayload{Message: MsgCapacity})
		_ = em.Close()
		return session.ErrCapacity
	}
	h.mu.Lock()
	h.clients[em.ID()] = &client{em: em}
	h.mu.Unlock()
	h.log.Debug("client connected", "client", em.ID())
	return nil
}

// Init creates the client's session. A "preset" entry expands into the
// preset's params, with the client's own entries taking precedence.
func (h *Handler) Init(ctx context.Context, em Emitter, params map[string]any) {
	p, err := expandPreset(engine.Params(params))
	if err == nil {
		var s *session.Session
		s, err = h.mgr.Create(ctx, em.ID(), p)
		if err == nil {
			h.log.Info("simulation started", "client", em.ID(), "sim_type", s.SimType())
			em.Emit(EventStarted, StartedPayload{URL: s.URL()})
			return
		}
	}
	h.log.Warn("init rejected", "client", em.ID(), "error", err)
	em.Emit(EventError, ErrorPayload{Message: errorMessage(err)})
}

func expandPreset(p engine.Params) (engine.Params, error) {
	name := p.Text("preset", "")
	if name == "" {
		return p, nil
	}
	base := config.GetPreset(p.SimType(), name)
	if base == nil {
		return nil, fmt.Errorf("%w: %s/%s", errUnknownPreset, p.SimType(), name)
	}
	out := engine.Params(base).Merge(p)
	delete(out, "preset")
	return out, nil
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrCapacity):
		return MsgCapacity
	case errors.Is(err, session.ErrDuplicateSession):
		return MsgDuplicate
	default:
		return err.Error()
	}
}

// Input handles the generic input_event payload.
func (h *Handler) Input(em Emitter, raw map[string]any) {
	cmd, err := session.ParseCommand(raw)
	if err != nil {
		h.log.Warn("malformed input", "client", em.ID(), "error", err)
		h.metrics.InputRejected(fmt.Sprint(raw["type"]))
		return
	}
	h.route(em, cmd)
}

func (h *Handler) KeyboardDown(em Emitter, raw map[string]any) {
	h.Input(em, withType(raw, session.KeyboardDown))
}

func (h *Handler) KeyboardUp(em Emitter, raw map[string]any) {
	h.Input(em, withType(raw, session.KeyboardUp))
}

func (h *Handler) UIInput(em Emitter, raw map[string]any) {
	h.Input(em, withType(raw, session.UIInput))
}

// UpdateParam takes the params object itself as payload.
func (h *Handler) UpdateParam(em Emitter, params map[string]any) {
	h.route(em, session.Update(params))
}

func withType(raw map[string]any, kind session.Kind) map[string]any {
	out := make(map[string]any, len(raw)+1)
	for k, v := range raw {
		out[k] = v
	}
	out["type"] = string(kind)
	return out
}

func (h *Handler) route(em Emitter, cmd session.Command) {
	if !h.mgr.Route(em.ID(), cmd) {
		h.log.Debug("input without session", "client", em.ID(), "kind", cmd.Kind)
	}
}

// GetOutput starts streaming sim_data to the client. Frames are rate limited
// and only sent when the snapshot changed. Repeated calls are no-ops.
func (h *Handler) GetOutput(em Emitter) {
	h.mu.Lock()
	c, ok := h.clients[em.ID()]
	if !ok {
		c = &client{em: em}
		h.clients[em.ID()] = c
	}
	if c.stopPusher != nil {
		h.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.stopPusher = cancel
	c.pushGen++
	gen := c.pushGen
	h.mu.Unlock()

	go h.push(ctx, em, gen)
}

// endPush clears the client's pusher so a later get_output starts a new one.
func (h *Handler) endPush(id string, gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok || c.pushGen != gen || c.stopPusher == nil {
		return
	}
	c.stopPusher()
	c.stopPusher = nil
}

func (h *Handler) pushing(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	return ok && c.stopPusher != nil
}

// push runs until the client leaves or its session is gone.
func (h *Handler) push(ctx context.Context, em Emitter, gen uint64) {
	defer h.endPush(em.ID(), gen)
	limiter := rate.NewLimiter(h.pushRate, 1)
	var last uint64
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		snap, ok := h.mgr.Snapshot(em.ID())
		if !ok {
			h.log.Debug("telemetry stopped, no session", "client", em.ID())
			return
		}
		if snap.Seq == 0 || snap.Seq == last {
			continue
		}
		last = snap.Seq
		em.Emit(EventData, DataPayload{
			Time:   snap.Time,
			State:  snap.State,
			Force:  snap.Force,
			Modes:  snap.Modes,
			Paused: snap.Paused,
		})
		h.metrics.Pushed()
	}
}

// Disconnect stops the pusher and the client's session.
func (h *Handler) Disconnect(id string) {
	h.mu.Lock()
	if c, ok := h.clients[id]; ok && c.stopPusher != nil {
		c.stopPusher()
		c.stopPusher = nil
	}
	delete(h.clients, id)
	h.mu.Unlock()
	if h.mgr.Shutdown(id) {
		h.log.Info("simulation stopped on disconnect", "client", id)
	}
}

func (h *Handler) notifyStopped(id string, reason error) {
	h.mu.Lock()
	c, ok := h.clients[id]
	h.mu.Unlock()
	if !ok {
		return
	}
	h.log.Info("simulation stopped", "client", id, "reason", reason)
	msg := "stopped"
	if reason != nil {
		msg = reason.Error()
	}
	c.em.Emit(EventStopped, StoppedPayload{Reason: msg})
}

// Clients counts connected clients.
func (h *Handler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close stops every pusher. Sessions are left to the manager.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		if c.stopPusher != nil {
			c.stopPusher()
			c.stopPusher = nil
		}
		delete(h.clients, id)
	}
}
