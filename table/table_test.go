package table

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	gomock "go.uber.org/mock/gomock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// hookFunc adapts a function into a Hook.
type hookFunc func(ctx HookCtx)

func (f hookFunc) Func(ctx HookCtx) {
	f(ctx)
}

var _ = Describe("Table", func() {
	var (
		mockCtrl *gomock.Controller
		tbl      *Table
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())

		var err error
		tbl, err = NewTable("Table", 5)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("construction", func() {
		It("should reject rings with fewer than two seats", func() {
			for _, seats := range []int{0, 1} {
				t, err := NewTable("Tiny", seats)

				Expect(t).To(BeNil())

				var configErr *ConfigError
				Expect(errors.As(err, &configErr)).To(BeTrue())
				Expect(configErr.Seats).To(Equal(seats))
			}
		})

		It("should start with every seat idle", func() {
			Expect(tbl.Seats()).To(Equal(5))
			for i := 0; i < 5; i++ {
				Expect(tbl.PhaseOf(i)).To(Equal(PhaseIdle))
				Expect(tbl.HolderCount(i)).To(Equal(0))
			}
			Expect(tbl.Grants()).To(Equal(uint64(0)))
		})
	})

	Context("granting", func() {
		It("should grant immediately when both neighbors are idle", func() {
			Expect(tbl.Acquire(0)).To(Succeed())

			Expect(tbl.PhaseOf(0)).To(Equal(PhaseActive))
			Expect(tbl.HolderCount(tbl.LeftResource(0))).To(Equal(1))
			Expect(tbl.HolderCount(tbl.RightResource(0))).To(Equal(1))
			Expect(tbl.HolderCount(2)).To(Equal(0))
			Expect(tbl.Grants()).To(Equal(uint64(1)))
		})

		It("should let non-adjacent seats be active together", func() {
			Expect(tbl.Acquire(0)).To(Succeed())
			Expect(tbl.Acquire(2)).To(Succeed())

			Expect(tbl.PhaseOf(0)).To(Equal(PhaseActive))
			Expect(tbl.PhaseOf(2)).To(Equal(PhaseActive))
		})

		It("should invoke wait and grant hooks under an uncontended acquire",
			func() {
				hook := NewMockHook(mockCtrl)

				var positions []*HookPos
				hook.EXPECT().Func(gomock.Any()).
					Do(func(ctx HookCtx) {
						positions = append(positions, ctx.Pos)
					}).
					Times(2)

				tbl.AcceptHook(hook)

				Expect(tbl.Acquire(0)).To(Succeed())
				Expect(positions).To(Equal([]*HookPos{HookPosWait, HookPosGrant}))
			})

		It("should report holder counts on release", func() {
			var released []ReleaseInfo
			tbl.AcceptHook(hookFunc(func(ctx HookCtx) {
				if ctx.Pos == HookPosRelease {
					released = append(released, ctx.Item.(ReleaseInfo))
				}
			}))

			Expect(tbl.Acquire(0)).To(Succeed())
			Expect(tbl.Release(0)).To(Succeed())

			Expect(released).To(HaveLen(1))
			Expect(released[0].Seat).To(Equal(0))
			Expect(released[0].Holders).To(Equal([]int{0, 0, 0, 0, 0}))
		})
	})

	Context("adjacent contention", func() {
		It("should block a seat while its neighbor is active", func() {
			Expect(tbl.Acquire(0)).To(Succeed())

			done := make(chan error, 1)
			go func() {
				done <- tbl.Acquire(1)
			}()

			Eventually(func() Phase { return tbl.PhaseOf(1) }).
				Should(Equal(PhaseWaiting))
			Consistently(done, 50*time.Millisecond).ShouldNot(Receive())

			Expect(tbl.Release(0)).To(Succeed())

			Eventually(done).Should(Receive(BeNil()))
			Expect(tbl.PhaseOf(1)).To(Equal(PhaseActive))
		})
	})

	Context("grant cascade", func() {
		It("should grant exactly one of two mutually adjacent waiters", func() {
			t3, err := NewTable("Cascade", 3)
			Expect(err).NotTo(HaveOccurred())

			Expect(t3.Acquire(0)).To(Succeed())

			var wg sync.WaitGroup
			for _, seat := range []int{1, 2} {
				wg.Add(1)
				go func(seat int) {
					defer wg.Done()
					_ = t3.Acquire(seat)
				}(seat)
			}

			Eventually(func() bool {
				return t3.PhaseOf(1) == PhaseWaiting &&
					t3.PhaseOf(2) == PhaseWaiting
			}).Should(BeTrue())

			Expect(t3.Release(0)).To(Succeed())

			activeAmongWaiters := func() int {
				count := 0
				for _, seat := range []int{1, 2} {
					if t3.PhaseOf(seat) == PhaseActive {
						count++
					}
				}
				return count
			}

			Eventually(activeAmongWaiters).Should(Equal(1))
			Consistently(activeAmongWaiters, 50*time.Millisecond).
				Should(Equal(1))

			t3.Close()
			wg.Wait()
		})
	})

	Context("misuse", func() {
		It("should fault on acquire of a non-idle seat", func() {
			Expect(tbl.Acquire(0)).To(Succeed())

			err := tbl.Acquire(0)
			Expect(err).To(MatchError(ErrInvalidTransition))
			Expect(tbl.PhaseOf(0)).To(Equal(PhaseActive))
		})

		It("should fault on release of a non-active seat", func() {
			err := tbl.Release(1)

			Expect(err).To(MatchError(ErrInvalidTransition))
			Expect(tbl.Phases()).To(Equal(
				[]Phase{PhaseIdle, PhaseIdle, PhaseIdle, PhaseIdle, PhaseIdle}))
		})

		It("should panic on an out-of-range seat", func() {
			Expect(func() { _ = tbl.Acquire(5) }).To(Panic())
			Expect(func() { tbl.PhaseOf(-1) }).To(Panic())
		})
	})

	Context("re-entry", func() {
		It("should return to idle after every cycle", func() {
			for i := 0; i < 5; i++ {
				Expect(tbl.Acquire(2)).To(Succeed())
				Expect(tbl.Release(2)).To(Succeed())

				Expect(tbl.PhaseOf(2)).To(Equal(PhaseIdle))
				Expect(tbl.HolderCount(tbl.LeftResource(2))).To(Equal(0))
				Expect(tbl.HolderCount(tbl.RightResource(2))).To(Equal(0))
			}

			Expect(tbl.Grants()).To(Equal(uint64(5)))
		})
	})

	Context("deadlock freedom", func() {
		It("should grant at least one seat when every seat goes hungry",
			func() {
				tbl.mu.Lock()
				for i := range tbl.phase {
					tbl.phase[i] = PhaseWaiting
				}
				for i := range tbl.phase {
					tbl.tryGrant(i)
				}
				active := 0
				for i := range tbl.phase {
					if tbl.phase[i] == PhaseActive {
						active++
					}
				}
				tbl.mu.Unlock()

				Expect(active).To(BeNumerically(">=", 1))
			})
	})

	Context("closing", func() {
		It("should unblock waiting seats with an error", func() {
			Expect(tbl.Acquire(0)).To(Succeed())

			done := make(chan error, 1)
			go func() {
				done <- tbl.Acquire(1)
			}()

			Eventually(func() Phase { return tbl.PhaseOf(1) }).
				Should(Equal(PhaseWaiting))

			tbl.Close()

			Eventually(done).Should(Receive(MatchError(ErrTableClosed)))
			Expect(tbl.PhaseOf(1)).To(Equal(PhaseIdle))
		})

		It("should reject acquire after close", func() {
			tbl.Close()

			Expect(tbl.Acquire(0)).To(MatchError(ErrTableClosed))
		})
	})

	Context("randomized contention", func() {
		It("should never let adjacent seats be active at once", func() {
			var violations atomic.Int64
			tbl.AcceptHook(hookFunc(func(ctx HookCtx) {
				if ctx.Pos != HookPosGrant {
					return
				}
				// Runs with the table lock held, so the raw phase vector is
				// safe to read here.
				seat := ctx.Item.(GrantInfo).Seat
				if tbl.phase[tbl.leftNeighbor(seat)] == PhaseActive ||
					tbl.phase[tbl.rightNeighbor(seat)] == PhaseActive {
					violations.Add(1)
				}
			}))

			var wg sync.WaitGroup
			stop := make(chan struct{})
			for seat := 0; seat < tbl.Seats(); seat++ {
				wg.Add(1)
				go func(seat int) {
					defer wg.Done()
					src := NewUniformSource(0, time.Millisecond, int64(seat))
					for {
						select {
						case <-stop:
							return
						default:
						}

						time.Sleep(src.Next())
						if err := tbl.Acquire(seat); err != nil {
							return
						}
						time.Sleep(src.Next())
						if err := tbl.Release(seat); err != nil {
							return
						}
					}
				}(seat)
			}

			time.Sleep(300 * time.Millisecond)
			close(stop)
			tbl.Close()
			wg.Wait()

			Expect(violations.Load()).To(Equal(int64(0)))
			Expect(tbl.Grants()).To(BeNumerically(">", 0))
		})
	})
})
