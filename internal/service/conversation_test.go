package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/counsel/internal/brain"
	"basegraph.app/counsel/internal/service"
	"basegraph.app/counsel/internal/store"
)

type mockTurnRunner struct {
	handleTurnFn func(ctx context.Context, in brain.TurnInput) (*brain.TurnOutput, error)
	endSessionFn func(ctx context.Context, sessionID string) (bool, error)
	turns        []brain.TurnInput
}

func (m *mockTurnRunner) HandleTurn(ctx context.Context, in brain.TurnInput) (*brain.TurnOutput, error) {
	m.turns = append(m.turns, in)
	if m.handleTurnFn != nil {
		return m.handleTurnFn(ctx, in)
	}
	return &brain.TurnOutput{SessionID: in.SessionID, Status: brain.TurnCompleted}, nil
}

func (m *mockTurnRunner) EndSession(ctx context.Context, sessionID string) (bool, error) {
	if m.endSessionFn != nil {
		return m.endSessionFn(ctx, sessionID)
	}
	return true, nil
}

var _ = Describe("ConversationService", func() {
	var (
		svc    service.ConversationService
		runner *mockTurnRunner
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		runner = &mockTurnRunner{}
		svc = service.NewServices(runner).Conversations()
	})

	Describe("SendMessage", func() {
		It("runs a turn for a valid session", func() {
			out, err := svc.SendMessage(ctx, "session-1", "u1", "Draft a lease")

			Expect(err).NotTo(HaveOccurred())
			Expect(out.Status).To(Equal(brain.TurnCompleted))
			Expect(runner.turns).To(ConsistOf(brain.TurnInput{SessionID: "session-1", UserID: "u1", Message: "Draft a lease"}))
		})

		DescribeTable("rejects unsafe session ids",
			func(sessionID string) {
				_, err := svc.SendMessage(ctx, sessionID, "u1", "hello")

				Expect(err).To(MatchError(store.ErrInvalidSessionID))
				Expect(runner.turns).To(BeEmpty())
			},
			Entry("empty", ""),
			Entry("path traversal", "../etc"),
			Entry("slash", "a/b"),
			Entry("space", "a b"),
		)

		It("rejects a blank message before running a turn", func() {
			_, err := svc.SendMessage(ctx, "session-1", "u1", "  \n ")

			Expect(err).To(MatchError(brain.ErrEmptyMessage))
			Expect(runner.turns).To(BeEmpty())
		})

		It("keeps turn errors inspectable", func() {
			runner.handleTurnFn = func(context.Context, brain.TurnInput) (*brain.TurnOutput, error) {
				return nil, brain.NewRetryableError(errors.New("session busy"))
			}

			_, err := svc.SendMessage(ctx, "session-1", "u1", "hello")

			var turnErr *brain.TurnError
			Expect(errors.As(err, &turnErr)).To(BeTrue())
			Expect(turnErr.Retryable).To(BeTrue())
		})
	})

	Describe("EndSession", func() {
		It("reports whether the session existed", func() {
			runner.endSessionFn = func(_ context.Context, id string) (bool, error) {
				return id == "known", nil
			}

			existed, err := svc.EndSession(ctx, "known")
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeTrue())

			existed, err = svc.EndSession(ctx, "unknown")
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeFalse())
		})

		It("rejects unsafe session ids", func() {
			_, err := svc.EndSession(ctx, "../x")
			Expect(err).To(MatchError(store.ErrInvalidSessionID))
		})

		It("wraps runner failures", func() {
			runner.endSessionFn = func(context.Context, string) (bool, error) {
				return false, errors.New("lock lost")
			}

			_, err := svc.EndSession(ctx, "s1")
			Expect(err).To(MatchError(ContainSubstring("ending session: lock lost")))
		})
	})
})
