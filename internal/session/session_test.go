package session_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/simhost/internal/engine"
	"github.com/san-kum/simhost/internal/session"
	"github.com/san-kum/simhost/internal/storage"
)

var _ = Describe("Session", func() {
	var (
		pool *plantPool
		mgr  *session.Manager
		s    *session.Session
		cfg  session.Config
	)

	route := func(cmd session.Command) {
		GinkgoHelper()
		Expect(mgr.Route("a", cmd)).To(BeTrue())
	}
	force := func() float64 { return s.Snapshot().Force }

	BeforeEach(func() {
		pool = &plantPool{}
		cfg = session.Config{
			Period:       2 * time.Millisecond,
			MinSleep:     time.Millisecond,
			RealtimeRate: 0.5,
		}
	})

	JustBeforeEach(func() {
		mgr = session.NewManager(pool.registry(), session.Options{Session: cfg})
		DeferCleanup(mgr.Close)
		var err error
		s, err = mgr.Create(context.Background(), "a", fakeParams())
		Expect(err).NotTo(HaveOccurred())
	})

	It("runs with the configured rate and publishes snapshots", func() {
		Expect(s.State()).To(Equal(session.Running))
		Expect(s.URL()).To(Equal("http://viz.test/fake"))
		Expect(pool.last().rate).To(Equal(0.5))
		Eventually(func() float64 { return s.Snapshot().Time }).Should(BeNumerically(">", 0.01))
		Expect(s.Snapshot().State).To(HaveLen(2))
		Expect(s.Info().State).To(Equal("running"))
	})

	Describe("manual force", func() {
		It("is ignored until manual mode is on", func() {
			route(session.UI("set_force", 3.0))
			Consistently(force, 30*time.Millisecond).Should(BeZero())

			route(session.UI("toggle_controller", map[string]any{"controller": "manual"}))
			route(session.UI("set_force", 3.0))
			Eventually(force).Should(Equal(3.0))
			Eventually(func() []string { return s.Snapshot().Modes }).Should(Equal([]string{"manual"}))
		})

		It("is clipped to the plant limit", func() {
			route(session.UI("toggle_controller", "manual"))
			route(session.UI("set_force", "40"))
			Eventually(force).Should(Equal(5.0))
		})

		It("is cleared when manual mode is toggled off", func() {
			route(session.UI("toggle_controller", "manual"))
			route(session.KeyDown("ArrowLeft"))
			Eventually(force).Should(Equal(1.0))
			route(session.UI("toggle_controller", "manual"))
			Eventually(force).Should(BeZero())
		})
	})

	It("pauses simulated time and publishes nothing new while paused", func() {
		route(session.UI("pause", nil))
		Eventually(func() bool { return s.Snapshot().Paused }).Should(BeTrue())

		frozen := s.Snapshot()
		Consistently(func() uint64 { return s.Snapshot().Seq }, 50*time.Millisecond).Should(Equal(frozen.Seq))
		Expect(s.Snapshot().Time).To(Equal(frozen.Time))

		route(session.UI("play", nil))
		Eventually(func() float64 { return s.Snapshot().Time }).Should(BeNumerically(">", frozen.Time))
	})

	It("survives rejected inputs", func() {
		route(session.UI("toggle_controller", "warp"))
		route(session.UI("set_force", []int{1}))
		route(session.UI("no_such_action", nil))
		route(session.Update(engine.Params{"sim_type": "cartpole"}))
		route(session.UI("set_gains", "fast"))

		Consistently(s.State, 50*time.Millisecond).Should(Equal(session.Running))
		Expect(pool.last().Builds()).To(Equal(1))
	})

	It("rebuilds on update_param", func() {
		route(session.Update(engine.Params{"initial_state": []any{1.5, 0.0}}))
		Eventually(pool.last().Builds).Should(Equal(2))
		Eventually(func() float64 { return s.Snapshot().State[0] }).Should(BeNumerically("~", 1.5, 1e-9))
		Expect(s.State()).To(Equal(session.Running))
	})

	It("re-reads the controller list on rebuild", func() {
		route(session.Update(engine.Params{"controllers": []any{"pid", "manual"}}))
		Eventually(func() []string { return s.Snapshot().Modes }).Should(Equal([]string{"manual", "pid"}))
	})

	It("retunes the tracking loop", func() {
		route(session.UI("toggle_controller", "tracking"))
		route(session.UI("set_gains", map[string]any{"kp": 2.0, "ki": 0.0}))
		// Kp·(setpoint − x) with x ≈ 0 right after the toggle.
		Eventually(force).Should(BeNumerically("~", 2.0, 0.2))
	})

	It("resets the plant and rewinds the published time", func() {
		simTime := func() float64 { return s.Snapshot().Time }
		Eventually(simTime).Should(BeNumerically(">=", 0.05))
		before := simTime()

		route(session.Command{Kind: session.Reset})
		Eventually(pool.last().Resets).Should(Equal(1))
		Eventually(simTime).Should(BeNumerically("<", before))
	})

	Describe("recording", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
			store := storage.New(dir)
			Expect(store.Init()).To(Succeed())
			cfg.Store = store
			cfg.MaxSamples = 100
		})

		It("saves the run when the session stops", func() {
			Eventually(func() float64 { return s.Snapshot().Time }).Should(BeNumerically(">", 0.02))
			Expect(mgr.Shutdown("a")).To(BeTrue())

			runs, err := cfg.Store.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(HaveLen(1))
			Expect(runs[0].SessionID).To(Equal("a"))
			Expect(runs[0].SimType).To(Equal("fake"))
			Expect(runs[0].Samples).To(BeNumerically(">", 0))
			Expect(runs[0].Samples).To(BeNumerically("<=", 100))
			Expect(runs[0].Metrics).To(HaveKey("peak_force"))
		})
	})
})
