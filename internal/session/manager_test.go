package session_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/simhost/internal/engine"
	"github.com/san-kum/simhost/internal/session"
)

type notice struct {
	id     string
	reason error
}

var _ = Describe("Manager", func() {
	var (
		pool    *plantPool
		mgr     *session.Manager
		opts    session.Options
		mu      sync.Mutex
		notices []notice
		ctx     context.Context
	)

	received := func() []notice {
		mu.Lock()
		defer mu.Unlock()
		return append([]notice(nil), notices...)
	}

	JustBeforeEach(func() {
		mgr = session.NewManager(pool.registry(), opts)
		mgr.OnTerminate(func(id string, reason error) {
			mu.Lock()
			notices = append(notices, notice{id, reason})
			mu.Unlock()
		})
		DeferCleanup(mgr.Close)
	})

	BeforeEach(func() {
		pool = &plantPool{}
		notices = nil
		ctx = context.Background()
		opts = session.Options{
			MaxSessions: 2,
			IdleTimeout: time.Minute,
			Session: session.Config{
				Period:   2 * time.Millisecond,
				MinSleep: time.Millisecond,
			},
		}
	})

	Describe("capacity", func() {
		It("rejects the session past the limit and recovers after a shutdown", func() {
			_, err := mgr.Create(ctx, "a", fakeParams())
			Expect(err).NotTo(HaveOccurred())
			_, err = mgr.Create(ctx, "b", fakeParams())
			Expect(err).NotTo(HaveOccurred())

			_, err = mgr.Create(ctx, "c", fakeParams())
			Expect(err).To(MatchError(session.ErrCapacity))
			Expect(mgr.Len()).To(Equal(2))
			Expect(mgr.Full()).To(BeTrue())

			Expect(mgr.Shutdown("a")).To(BeTrue())
			s, err := mgr.Create(ctx, "c", fakeParams())
			Expect(err).NotTo(HaveOccurred())
			Expect(s.State()).To(Equal(session.Running))
			Expect(mgr.Len()).To(Equal(2))
		})

		It("rejects a second session for the same client", func() {
			_, err := mgr.Create(ctx, "a", fakeParams())
			Expect(err).NotTo(HaveOccurred())
			_, err = mgr.Create(ctx, "a", fakeParams())
			Expect(err).To(MatchError(session.ErrDuplicateSession))
			Expect(mgr.Len()).To(Equal(1))
		})

		It("fails fast on an unknown sim type", func() {
			_, err := mgr.Create(ctx, "a", engine.Params{"sim_type": "warp-drive"})
			Expect(err).To(MatchError(engine.ErrUnknownSimType))
			Expect(mgr.Len()).To(BeZero())
			Expect(pool.last()).To(BeNil())
		})
	})

	Describe("build failure", func() {
		BeforeEach(func() {
			pool.setup = func(f *fakePlant) { f.buildErr = errBoom }
		})

		It("returns the build error and releases the slot", func() {
			_, err := mgr.Create(ctx, "a", fakeParams())
			var be *engine.BuildError
			Expect(err).To(BeAssignableToTypeOf(be))
			Expect(err).To(MatchError(errBoom))
			Expect(mgr.Len()).To(BeZero())
			Expect(pool.last().Shutdowns()).To(Equal(1))
			Consistently(received, 50*time.Millisecond).Should(BeEmpty())

			pool.setup = nil
			_, err = mgr.Create(ctx, "a", fakeParams())
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a malformed initial state", func() {
			pool.setup = nil
			_, err := mgr.Create(ctx, "a", fakeParams("initial_state", []any{1.0, 2.0, 3.0}))
			Expect(err).To(MatchError(ContainSubstring("dimension")))
			Expect(mgr.Len()).To(BeZero())
		})
	})

	Describe("idle watchdog", func() {
		BeforeEach(func() {
			opts.IdleTimeout = 80 * time.Millisecond
		})

		It("evicts a silent session and notifies", func() {
			_, err := mgr.Create(ctx, "a", fakeParams())
			Expect(err).NotTo(HaveOccurred())

			Eventually(mgr.Len, time.Second).Should(BeZero())
			Eventually(received).Should(ConsistOf(notice{"a", session.ErrIdleTimeout}))
			Expect(pool.last().Shutdowns()).To(Equal(1))
			Expect(mgr.Route("a", session.KeyDown("a"))).To(BeFalse())
		})

		It("keeps a session alive while it receives input", func() {
			_, err := mgr.Create(ctx, "a", fakeParams())
			Expect(err).NotTo(HaveOccurred())

			for range 10 {
				Expect(mgr.Route("a", session.KeyUp("x"))).To(BeTrue())
				time.Sleep(30 * time.Millisecond)
			}
			_, ok := mgr.Get("a")
			Expect(ok).To(BeTrue())
			Expect(received()).To(BeEmpty())

			Eventually(mgr.Len, time.Second).Should(BeZero())
		})
	})

	Describe("routing", func() {
		It("ignores commands for unknown clients", func() {
			Expect(mgr.Route("nobody", session.KeyDown("a"))).To(BeFalse())
		})

		It("applies a burst in arrival order", func() {
			_, err := mgr.Create(ctx, "a", fakeParams())
			Expect(err).NotTo(HaveOccurred())

			var want []string
			for i := range 50 {
				key := fmt.Sprintf("k%02d", i)
				want = append(want, key)
				Expect(mgr.Route("a", session.KeyDown(key))).To(BeTrue())
			}
			Eventually(pool.last().Keys).Should(Equal(want))
		})
	})

	Describe("shutdown", func() {
		It("is idempotent and releases the plant once", func() {
			s, err := mgr.Create(ctx, "a", fakeParams())
			Expect(err).NotTo(HaveOccurred())

			Expect(mgr.Shutdown("a")).To(BeTrue())
			Expect(mgr.Shutdown("a")).To(BeFalse())
			Expect(s.State()).To(Equal(session.Stopped))
			Expect(s.Err()).NotTo(HaveOccurred())
			Expect(pool.last().Shutdowns()).To(Equal(1))
			Expect(s.Enqueue(session.KeyDown("a"))).To(MatchError(session.ErrStopped))
			Expect(received()).To(BeEmpty())
		})

		It("stops everything on Close", func() {
			for _, id := range []string{"a", "b"} {
				_, err := mgr.Create(ctx, id, fakeParams())
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(mgr.Close()).To(Succeed())
			Expect(mgr.Len()).To(BeZero())
			for _, p := range pool.plants {
				Expect(p.Shutdowns()).To(Equal(1))
			}
			_, err := mgr.Create(ctx, "c", fakeParams())
			Expect(err).To(MatchError(session.ErrStopped))
		})

		It("tolerates a shutdown racing the create", func() {
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("r%d", i)
				var wg sync.WaitGroup
				wg.Add(2)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					if _, err := mgr.Create(ctx, id, fakeParams()); err != nil {
						Expect(err).To(MatchError(session.ErrStopped))
					}
				}()
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					mgr.Shutdown(id)
				}()
				wg.Wait()
				mgr.Shutdown(id)
			}

			Expect(mgr.Len()).To(BeZero())
			pool.mu.Lock()
			plants := append([]*fakePlant(nil), pool.plants...)
			pool.mu.Unlock()
			Expect(plants).To(HaveLen(200))
			for _, p := range plants {
				Expect(p.Shutdowns()).To(Equal(1))
			}
		})
	})

	Describe("step failure", func() {
		BeforeEach(func() {
			pool.setup = func(f *fakePlant) { f.failAfter = 0.05 }
		})

		It("removes the entry and emits a termination notice", func() {
			s, err := mgr.Create(ctx, "a", fakeParams())
			Expect(err).NotTo(HaveOccurred())

			Eventually(mgr.Len, time.Second).Should(BeZero())
			Eventually(received).Should(HaveLen(1))
			n := received()[0]
			Expect(n.id).To(Equal("a"))
			var se *engine.StepError
			Expect(n.reason).To(BeAssignableToTypeOf(se))
			Expect(n.reason).To(MatchError(errBoom))
			Expect(s.Err()).To(MatchError(errBoom))
			Expect(pool.last().Shutdowns()).To(Equal(1))
		})
	})

	Describe("panics", func() {
		BeforeEach(func() {
			pool.setup = func(f *fakePlant) { f.panicKey = "boom" }
		})

		It("stop only the session that panicked", func() {
			_, err := mgr.Create(ctx, "a", fakeParams())
			Expect(err).NotTo(HaveOccurred())
			_, err = mgr.Create(ctx, "b", fakeParams())
			Expect(err).NotTo(HaveOccurred())

			Expect(mgr.Route("a", session.KeyDown("boom"))).To(BeTrue())
			Eventually(received).Should(HaveLen(1))
			Expect(received()[0].id).To(Equal("a"))
			Expect(received()[0].reason).To(MatchError(ContainSubstring("panic")))

			_, ok := mgr.Get("b")
			Expect(ok).To(BeTrue())
			Expect(mgr.Route("b", session.KeyDown("ok"))).To(BeTrue())
		})
	})

	Describe("listing", func() {
		It("reports live sessions oldest first", func() {
			for _, id := range []string{"a", "b"} {
				_, err := mgr.Create(ctx, id, fakeParams())
				Expect(err).NotTo(HaveOccurred())
			}
			infos := mgr.List()
			Expect(infos).To(HaveLen(2))
			Expect(infos[0].ID).To(Equal("a"))
			Expect(infos[1].ID).To(Equal("b"))
			Expect(infos[0].SimType).To(Equal("fake"))
			Expect(infos[0].URL).To(Equal("http://viz.test/fake"))

			_, ok := mgr.Snapshot("a")
			Expect(ok).To(BeTrue())
			_, ok = mgr.Snapshot("zz")
			Expect(ok).To(BeFalse())
		})
	})

	It("gives up when the context ends during the build", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := mgr.Create(cctx, "a", fakeParams())
		if err != nil {
			Expect(err).To(MatchError(context.Canceled))
			Expect(mgr.Len()).To(BeZero())
		}
	})
})
