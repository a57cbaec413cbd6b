package table

import (
	"context"
	"time"

	gomock "go.uber.org/mock/gomock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Actor", func() {
	var (
		mockCtrl *gomock.Controller
		tbl      *Table
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())

		var err error
		tbl, err = NewTable("Table", 3)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should cycle until the context is cancelled", func() {
		actor := NewActor("Actor0", 0, tbl,
			FixedSource(time.Microsecond), FixedSource(time.Microsecond))

		ctx, cancel := context.WithTimeout(
			context.Background(), 100*time.Millisecond)
		defer cancel()

		Expect(actor.Run(ctx)).To(Succeed())
		Expect(tbl.Grants()).To(BeNumerically(">", 0))
		Expect(tbl.PhaseOf(0)).To(Equal(PhaseIdle))
	})

	It("should stop cleanly when the table closes", func() {
		// Seat 1 is blocked for good: both neighbors are active.
		Expect(tbl.Acquire(0)).To(Succeed())

		actor := NewActor("Actor1", 1, tbl,
			FixedSource(0), FixedSource(time.Second))

		done := make(chan error, 1)
		go func() {
			done <- actor.Run(context.Background())
		}()

		Eventually(func() Phase { return tbl.PhaseOf(1) }).
			Should(Equal(PhaseWaiting))

		tbl.Close()

		Eventually(done).Should(Receive(BeNil()))
	})

	It("should surface an invalid transition as a fault", func() {
		// Someone else already occupies the actor's seat, so the actor's
		// first acquire is an out-of-sequence call.
		Expect(tbl.Acquire(1)).To(Succeed())

		actor := NewActor("Actor1", 1, tbl, FixedSource(0), FixedSource(0))

		err := actor.Run(context.Background())
		Expect(err).To(MatchError(ErrInvalidTransition))
		Expect(tbl.PhaseOf(1)).To(Equal(PhaseActive))
	})

	It("should bracket every idle period with its hooks", func() {
		actor := NewActor("Actor0", 0, tbl, FixedSource(0), FixedSource(0))

		var positions []*HookPos
		actor.AcceptHook(hookFunc(func(ctx HookCtx) {
			positions = append(positions, ctx.Pos)
		}))

		ctx, cancel := context.WithTimeout(
			context.Background(), 50*time.Millisecond)
		defer cancel()

		Expect(actor.Run(ctx)).To(Succeed())

		Expect(len(positions)).To(BeNumerically(">", 0))
		Expect(len(positions) % 2).To(Equal(0))
		for i, pos := range positions {
			if i%2 == 0 {
				Expect(pos).To(Equal(HookPosIdleStart))
			} else {
				Expect(pos).To(Equal(HookPosIdleEnd))
			}
		}
	})

	It("should draw durations from its sources", func() {
		idle := NewMockDurationSource(mockCtrl)
		active := NewMockDurationSource(mockCtrl)

		idle.EXPECT().Next().Return(time.Duration(0)).MinTimes(1)
		active.EXPECT().Next().Return(time.Duration(0)).MinTimes(1)

		actor := NewActor("Actor2", 2, tbl, idle, active)

		ctx, cancel := context.WithTimeout(
			context.Background(), 20*time.Millisecond)
		defer cancel()

		Expect(actor.Run(ctx)).To(Succeed())
	})
})
