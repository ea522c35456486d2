package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/simhost/internal/engine"
	"github.com/san-kum/simhost/internal/metrics"
)

const (
	DefaultMaxSessions = 10
	DefaultIdleTimeout = 5 * time.Minute
)

type Options struct {
	MaxSessions int
	IdleTimeout time.Duration
	Session     Config
	Engine      engine.Options
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// TerminateFunc is called from a background goroutine when a running session
// ends without its client asking for it.
type TerminateFunc func(id string, reason error)

type entry struct {
	sess  *Session
	timer *time.Timer
	gen   uint64
}

// Manager owns every live session and its idle timer.
type Manager struct {
	reg  *engine.Registry
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
	onTerm   TerminateFunc
	closed   bool
}

func NewManager(reg *engine.Registry, opts Options) *Manager {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		reg:      reg,
		opts:     opts,
		log:      opts.Logger,
		sessions: make(map[string]*entry),
	}
}

// OnTerminate sets the hook for asynchronous termination notices.
func (m *Manager) OnTerminate(fn TerminateFunc) {
	m.mu.Lock()
	m.onTerm = fn
	m.mu.Unlock()
}

// Create builds a session for id and blocks until it is running.
func (m *Manager) Create(ctx context.Context, id string, params engine.Params) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrStopped
	}
	if _, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		m.opts.Metrics.Rejected(metrics.ReasonDuplicate)
		return nil, ErrDuplicateSession
	}
	if len(m.sessions) >= m.opts.MaxSessions {
		m.mu.Unlock()
		m.opts.Metrics.Rejected(metrics.ReasonCapacity)
		return nil, ErrCapacity
	}
	adapter, err := m.reg.New(params, m.opts.Engine)
	if err != nil {
		m.mu.Unlock()
		if errors.Is(err, engine.ErrUnknownSimType) {
			m.opts.Metrics.Rejected(metrics.ReasonUnknown)
		} else {
			m.opts.Metrics.Rejected(metrics.ReasonBuild)
		}
		return nil, err
	}
	s := newSession(id, params, adapter, m.opts.Session, m.log, m.opts.Metrics, m.handleExit)
	m.sessions[id] = &entry{sess: s}
	m.mu.Unlock()

	s.start()

	select {
	case <-s.Ready():
	case <-s.Done():
		err := s.Err()
		if err == nil {
			err = ErrStopped
		} else {
			m.opts.Metrics.Rejected(metrics.ReasonBuild)
		}
		return nil, err
	case <-ctx.Done():
		m.Shutdown(id)
		return nil, ctx.Err()
	}

	m.mu.Lock()
	if e, ok := m.sessions[id]; ok && e.sess == s {
		m.armLocked(id, e)
	}
	m.mu.Unlock()
	m.log.Info("session created", "session", id, "sim_type", s.SimType(), "live", m.Len())
	return s, nil
}

// Route enqueues cmd for id. It reports false when id has no live session.
func (m *Manager) Route(id string, cmd Command) bool {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok {
		m.armLocked(id, e)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	if err := e.sess.Enqueue(cmd); err != nil {
		return false
	}
	m.opts.Metrics.Input(string(cmd.Kind))
	return true
}

// armLocked restarts the idle timer of e. The generation guards against a
// timer that fired before it could be stopped.
func (m *Manager) armLocked(id string, e *entry) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(m.opts.IdleTimeout, func() {
		m.expire(id, gen)
	})
}

func (m *Manager) expire(id string, gen uint64) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok || e.gen != gen {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, id)
	fn := m.onTerm
	m.mu.Unlock()

	m.log.Info("session idle", "session", id, "timeout", m.opts.IdleTimeout)
	e.sess.Stop()
	m.opts.Metrics.SessionEnded(metrics.ReasonIdle)
	if fn != nil {
		fn(id, ErrIdleTimeout)
	}
}

// Shutdown stops the session of id. It reports whether there was one.
func (m *Manager) Shutdown(id string) bool {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	e.sess.Stop()
	if e.sess.Started() {
		m.opts.Metrics.SessionEnded(metrics.ReasonDisconnect)
	}
	return true
}

// handleExit runs on the session goroutine after the session stopped on its
// own.
func (m *Manager) handleExit(s *Session, err error) {
	m.mu.Lock()
	e, ok := m.sessions[s.ID()]
	owned := ok && e.sess == s
	if owned {
		delete(m.sessions, s.ID())
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	fn := m.onTerm
	m.mu.Unlock()

	if !owned || !s.Started() {
		return
	}
	m.opts.Metrics.SessionEnded(metrics.ReasonStep)
	if fn != nil {
		go fn(s.ID(), err)
	}
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return e.sess, true
}

func (m *Manager) Snapshot(id string) (Snapshot, bool) {
	s, ok := m.Get(id)
	if !ok {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Len counts live sessions, including ones still building.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) Full() bool {
	return m.Len() >= m.opts.MaxSessions
}

func (m *Manager) List() []Info {
	m.mu.Lock()
	out := make([]Info, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, e.sess.Info())
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Close stops every session and rejects further Creates.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	entries := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	var g errgroup.Group
	for id, e := range entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		g.Go(func() error {
			e.sess.Stop()
			if e.sess.Started() {
				m.opts.Metrics.SessionEnded(metrics.ReasonShutdown)
			}
			m.log.Debug("session closed", "session", id)
			return nil
		})
	}
	return g.Wait()
}
