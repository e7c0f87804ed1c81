package brain_test

import (
	"context"
	"errors"
	"strings"
	"time"

	"basegraph.app/counsel/common/llm"
	"basegraph.app/counsel/internal/brain"
	"basegraph.app/counsel/internal/model"
	"basegraph.app/counsel/internal/notify"
	"basegraph.app/counsel/internal/session"
	"basegraph.app/counsel/internal/store"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Orchestrator", func() {
	var (
		ctx        context.Context
		routerLLM  *mockLLMClient
		interLLM   *mockLLMClient
		draftLLM   *mockLLMClient
		reviewLLM  *mockLLMClient
		files      *store.MemoryCaseFileStore
		notifier   *recordingNotifier
		searcher   *mockSearcher
		sessions   *session.Registry
		orch       *brain.Orchestrator
		draftReply string
	)

	routerPayload := func(intent string, calls ...map[string]any) map[string]any {
		if calls == nil {
			calls = []map[string]any{}
		}
		return map[string]any{"intent": intent, "reasoning": "test", "tool_calls": calls}
	}

	contractFacts := map[string]any{
		"topic":          "Commercial Contract",
		"summary":        "Supply agreement",
		"jurisdiction":   "Saudi Arabia",
		"classification": "commercial",
		"facts": []map[string]any{
			{"content": "Seller is Al Noor Trading", "source": "user", "status": "confirmed"},
		},
		"dates": []string{},
		"parties": []map[string]any{
			{"name": "Al Noor Trading", "role": "plaintiff"},
		},
		"evidence": []map[string]any{},
	}

	sessionHistory := func(id string) []model.Message {
		sess, release, err := sessions.Acquire(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		defer release()
		return sess.History
	}

	BeforeEach(func() {
		ctx = context.Background()
		routerLLM = &mockLLMClient{}
		interLLM = &mockLLMClient{}
		draftReply = "Draft body."
		draftLLM = &mockLLMClient{chatFn: func(_ context.Context, _ llm.Request, result any) (*llm.Response, error) {
			return respondText(result, draftReply)
		}}
		reviewLLM = &mockLLMClient{chatFn: func(_ context.Context, req llm.Request, result any) (*llm.Response, error) {
			// Echo the draft back unchanged.
			_, draft, _ := strings.Cut(req.UserPrompt, "## Draft\n")
			return respondJSON(result, reviewPayload(draft))
		}}
		files = store.NewMemoryCaseFileStore()
		notifier = &recordingNotifier{}
		searcher = &mockSearcher{searchFn: func(context.Context, string, string) ([]model.LegalSource, error) {
			return []model.LegalSource{{
				Citation: "Article 77",
				Title:    "Saudi Labor Law",
				Excerpt:  "Compensation for termination without a valid reason.",
			}}, nil
		}}
		sessions = session.NewRegistry(session.NewLocalLocker(), files, 100*time.Millisecond)
		orch = brain.NewOrchestrator(
			brain.OrchestratorConfig{WorksheetWriteTimeout: time.Second},
			brain.Clients{Router: routerLLM, Interrogation: interLLM, Draft: draftLLM, Review: reviewLLM},
			sessions, files, notifier, searcher,
		)
	})

	AfterEach(func() {
		orch.Wait()
	})

	Context("legal research", func() {
		It("researches, drafts and reviews", func() {
			routerLLM.chatFn = scriptedJSON(routerPayload("LEGAL_RESEARCH",
				map[string]any{"name": "legal_search", "query": "termination compensation"}))
			draftReply = "Under Article 77 of the Labor Law, compensation is due."

			out, err := orch.HandleTurn(ctx, brain.TurnInput{SessionID: "s1", UserID: "u1", Message: "Am I owed compensation?"})

			Expect(err).NotTo(HaveOccurred())
			Expect(out.Status).To(Equal(brain.TurnCompleted))
			Expect(out.Intent).To(Equal(model.IntentLegalResearch))
			Expect(out.Resumed).To(BeFalse())
			Expect(out.TurnID).NotTo(BeZero())
			Expect(out.Text).To(HavePrefix("Under Article 77 of the Labor Law, compensation is due."))
			Expect(out.Text).To(HaveSuffix(brain.DefaultDisclaimer))
			Expect(out.Review.HallucinationFlagged).To(BeFalse())

			Expect(searcher.Queries()).To(Equal([]string{"termination compensation"}))
			Expect(interLLM.callCount).To(BeZero())
			Expect(draftLLM.lastRequest().UserPrompt).To(ContainSubstring("[Article 77] Saudi Labor Law"))

			history := sessionHistory("s1")
			Expect(history).To(HaveLen(2))
			Expect(history[0].Content).To(Equal("Am I owed compensation?"))
			Expect(history[1].Content).To(Equal(out.Text))

			orch.Wait()
			Expect(notifier.Statuses()).To(Equal([]string{
				"Understanding your request", "Searching legal sources", "Drafting response", "Response ready"}))
		})

		It("flags citations the research did not return", func() {
			routerLLM.chatFn = scriptedJSON(routerPayload("LEGAL_RESEARCH"))
			draftReply = "Article 80 permits dismissal without notice."

			out, err := orch.HandleTurn(ctx, brain.TurnInput{SessionID: "s1", Message: "Can I be dismissed without notice?"})

			Expect(err).NotTo(HaveOccurred())
			Expect(out.Review.HallucinationFlagged).To(BeTrue())
			Expect(out.Text).NotTo(ContainSubstring("Article 80"))
		})
	})

	Context("contract drafting", func() {
		It("pauses for missing facts and resumes with the answer", func() {
			routerLLM.chatFn = scriptedJSON(routerPayload("CONTRACT_DRAFT"))
			interLLM.chatFn = interrogationLLM(
				[]any{contractFacts, contractFacts},
				[]any{gapsPayload("Contract Value"), gapsPayload()},
			)
			draftReply = "SUPPLY AGREEMENT\nThe Buyer pays 50,000 SAR."

			first, err := orch.HandleTurn(ctx, brain.TurnInput{SessionID: "c1", Message: "Draft a supply contract"})

			Expect(err).NotTo(HaveOccurred())
			Expect(first.Status).To(Equal(brain.TurnWaitingForInput))
			Expect(first.Text).To(ContainSubstring("Contract Value"))
			Expect(first.MissingInfo).To(Equal([]string{"Contract Value"}))
			Expect(draftLLM.callCount).To(BeZero())
			orch.Wait()

			second, err := orch.HandleTurn(ctx, brain.TurnInput{SessionID: "c1", Message: "The value is 50,000 SAR"})

			Expect(err).NotTo(HaveOccurred())
			Expect(second.Status).To(Equal(brain.TurnCompleted))
			Expect(second.Resumed).To(BeTrue())
			Expect(second.Intent).To(Equal(model.IntentContractDraft))
			Expect(routerLLM.callCount).To(Equal(1))
			Expect(searcher.Queries()).To(BeEmpty())

			deconPrompt := interLLM.requests[2].UserPrompt
			Expect(deconPrompt).To(ContainSubstring("Draft a supply contract"))
			Expect(deconPrompt).To(ContainSubstring("The value is 50,000 SAR"))

			draftPrompt := draftLLM.lastRequest().UserPrompt
			Expect(draftPrompt).To(ContainSubstring("Topic: Commercial Contract"))
			Expect(draftPrompt).To(ContainSubstring("- Al Noor Trading (plaintiff)"))

			Expect(second.Text).To(HavePrefix("SUPPLY AGREEMENT"))
			Expect(second.Text).NotTo(ContainSubstring(brain.NoSourcesNotice))
			Expect(second.Review.HallucinationFlagged).To(BeFalse())
			Expect(second.Text).To(HaveSuffix(brain.DefaultDisclaimer))
			Expect(sessionHistory("c1")).To(HaveLen(4))

			orch.Wait()
			saved, err := files.Read(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Topic).To(Equal("Commercial Contract"))
			Expect(saved.MissingInfo).To(BeEmpty())
		})

		It("apologises when extraction fails", func() {
			routerLLM.chatFn = scriptedJSON(routerPayload("CONTRACT_DRAFT"))
			interLLM.chatFn = interrogationLLM([]any{llm.ErrCircuitOpen}, nil)

			out, err := orch.HandleTurn(ctx, brain.TurnInput{SessionID: "c2", Message: "Draft a lease"})

			Expect(err).NotTo(HaveOccurred())
			Expect(out.Status).To(Equal(brain.TurnFailed))
			Expect(out.Failure).To(Equal(brain.FailureExtraction))
			Expect(out.Text).To(ContainSubstring("details of your case"))
			Expect(draftLLM.callCount).To(BeZero())
		})
	})

	It("answers general questions without research or interrogation", func() {
		routerLLM.chatFn = scriptedJSON(routerPayload("GENERAL"))
		draftReply = "A power of attorney lets someone act on your behalf."

		out, err := orch.HandleTurn(ctx, brain.TurnInput{SessionID: "g1", Message: "What is a power of attorney?"})

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Status).To(Equal(brain.TurnCompleted))
		Expect(out.Intent).To(Equal(model.IntentGeneral))
		Expect(searcher.Queries()).To(BeEmpty())
		Expect(interLLM.callCount).To(BeZero())
		Expect(draftLLM.lastRequest().UserPrompt).NotTo(ContainSubstring("## Case File"))
		Expect(out.Text).To(HaveSuffix(brain.DefaultDisclaimer))
	})

	Context("failures", func() {
		It("apologises when routing fails", func() {
			routerLLM.chatFn = scriptedJSON(llm.ErrCircuitOpen)

			out, err := orch.HandleTurn(ctx, brain.TurnInput{SessionID: "f1", Message: "help"})

			Expect(err).NotTo(HaveOccurred())
			Expect(out.Status).To(Equal(brain.TurnFailed))
			Expect(out.Failure).To(Equal(brain.FailureRouting))
			Expect(out.Text).To(ContainSubstring("rephrase"))
			Expect(draftLLM.callCount).To(BeZero())
			Expect(sessionHistory("f1")).To(HaveLen(2))
		})

		It("apologises in Arabic to Arabic messages", func() {
			routerLLM.chatFn = scriptedJSON(llm.ErrCircuitOpen)

			out, err := orch.HandleTurn(ctx, brain.TurnInput{SessionID: "f2", Message: "أحتاج مساعدة"})

			Expect(err).NotTo(HaveOccurred())
			Expect(out.Text).To(HavePrefix("عذراً"))
		})

		It("withholds the draft when review is unavailable", func() {
			routerLLM.chatFn = scriptedJSON(routerPayload("GENERAL"))
			draftReply = "You will definitely win."
			reviewLLM.chatFn = scriptedJSON(llm.ErrCircuitOpen)

			out, err := orch.HandleTurn(ctx, brain.TurnInput{SessionID: "f3", Message: "Will I win?"})

			Expect(err).NotTo(HaveOccurred())
			Expect(out.Failure).To(Equal(brain.FailureReviewUnavailable))
			Expect(out.Text).NotTo(ContainSubstring("definitely win"))
			Expect(out.Review).To(BeNil())
		})

		It("apologises when drafting is unavailable", func() {
			routerLLM.chatFn = scriptedJSON(routerPayload("GENERAL"))
			draftLLM.chatFn = func(context.Context, llm.Request, any) (*llm.Response, error) {
				return nil, llm.ErrTimeout
			}

			out, err := orch.HandleTurn(ctx, brain.TurnInput{SessionID: "f4", Message: "hello"})

			Expect(err).NotTo(HaveOccurred())
			Expect(out.Failure).To(Equal(brain.FailureDraftUnavailable))
			Expect(reviewLLM.callCount).To(BeZero())
		})

		It("rejects an empty message", func() {
			_, err := orch.HandleTurn(ctx, brain.TurnInput{SessionID: "f5", Message: "   "})

			var turnErr *brain.TurnError
			Expect(errors.As(err, &turnErr)).To(BeTrue())
			Expect(turnErr.Retryable).To(BeFalse())
			Expect(err).To(MatchError(brain.ErrEmptyMessage))
			Expect(routerLLM.callCount).To(BeZero())
		})

		It("reports a busy session as retryable", func() {
			_, release, err := sessions.Acquire(ctx, "busy")
			Expect(err).NotTo(HaveOccurred())
			defer release()

			_, err = orch.HandleTurn(ctx, brain.TurnInput{SessionID: "busy", Message: "hello"})

			var turnErr *brain.TurnError
			Expect(errors.As(err, &turnErr)).To(BeTrue())
			Expect(turnErr.Retryable).To(BeTrue())
			Expect(err).To(MatchError(session.ErrLockTimeout))
		})

		It("commits nothing for a cancelled turn", func() {
			cctx, cancel := context.WithCancel(ctx)
			routerLLM.chatFn = func(c context.Context, _ llm.Request, _ any) (*llm.Response, error) {
				cancel()
				return nil, c.Err()
			}

			out, err := orch.HandleTurn(cctx, brain.TurnInput{SessionID: "f6", Message: "hello"})

			Expect(out).To(BeNil())
			Expect(err).To(MatchError(context.Canceled))
			Expect(sessionHistory("f6")).To(BeEmpty())
		})
	})

	Describe("EndSession", func() {
		It("discards the session and its worksheet", func() {
			routerLLM.chatFn = scriptedJSON(routerPayload("CONTRACT_DRAFT"))
			interLLM.chatFn = interrogationLLM([]any{contractFacts}, []any{gapsPayload("Contract Value")})

			_, err := orch.HandleTurn(ctx, brain.TurnInput{SessionID: "e1", Message: "Draft a contract"})
			Expect(err).NotTo(HaveOccurred())
			orch.Wait()

			existed, err := orch.EndSession(ctx, "e1")
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeTrue())

			_, err = files.Read(ctx, "e1")
			Expect(err).To(MatchError(store.ErrNotFound))

			existed, err = orch.EndSession(ctx, "e1")
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeFalse())
		})

		It("reports a session busy with a turn as retryable", func() {
			_, release, err := sessions.Acquire(ctx, "e2")
			Expect(err).NotTo(HaveOccurred())
			defer release()

			_, err = orch.EndSession(ctx, "e2")

			var turnErr *brain.TurnError
			Expect(errors.As(err, &turnErr)).To(BeTrue())
			Expect(turnErr.Retryable).To(BeTrue())
			Expect(err).To(MatchError(session.ErrLockTimeout))
		})
	})

	Context("background effects", func() {
		newOrch := func(files store.CaseFileStore, notifier notify.Notifier, sessions *session.Registry) *brain.Orchestrator {
			return brain.NewOrchestrator(
				brain.OrchestratorConfig{WorksheetWriteTimeout: time.Second},
				brain.Clients{Router: routerLLM, Interrogation: interLLM, Draft: draftLLM, Review: reviewLLM},
				sessions, files, notifier, searcher,
			)
		}

		It("does not let an in-flight worksheet write outlive the session", func() {
			slow := newSlowCaseFiles(100 * time.Millisecond)
			reg := session.NewRegistry(session.NewLocalLocker(), slow, 2*time.Second)
			o := newOrch(slow, notifier, reg)
			defer o.Wait()

			routerLLM.chatFn = scriptedJSON(routerPayload("CONTRACT_DRAFT"))
			interLLM.chatFn = interrogationLLM([]any{contractFacts}, []any{gapsPayload("Contract Value")})

			out, err := o.HandleTurn(ctx, brain.TurnInput{SessionID: "w1", Message: "Draft a supply contract"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Status).To(Equal(brain.TurnWaitingForInput))

			existed, err := o.EndSession(ctx, "w1")
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeTrue())
			o.Wait()

			Expect(slow.Written()).To(HaveLen(1))
			_, err = slow.Read(ctx, "w1")
			Expect(err).To(MatchError(store.ErrNotFound))

			sess, release, err := reg.Acquire(ctx, "w1")
			Expect(err).NotTo(HaveOccurred())
			defer release()
			Expect(sess.State.IsEmpty()).To(BeTrue())
			Expect(sess.Pending).To(BeNil())
		})

		It("lands worksheet writes in turn order", func() {
			slow := newSlowCaseFiles(50 * time.Millisecond)
			o := newOrch(slow, notifier, session.NewRegistry(session.NewLocalLocker(), slow, 2*time.Second))

			routerLLM.chatFn = scriptedJSON(routerPayload("CONTRACT_DRAFT"))
			interLLM.chatFn = interrogationLLM(
				[]any{contractFacts, contractFacts},
				[]any{gapsPayload("Contract Value"), gapsPayload()},
			)

			first, err := o.HandleTurn(ctx, brain.TurnInput{SessionID: "w2", Message: "Draft a supply contract"})
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Status).To(Equal(brain.TurnWaitingForInput))

			second, err := o.HandleTurn(ctx, brain.TurnInput{SessionID: "w2", Message: "The value is 50,000 SAR"})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Status).To(Equal(brain.TurnCompleted))
			o.Wait()

			written := slow.Written()
			Expect(written).To(HaveLen(2))
			Expect(written[0].MissingInfo).To(Equal([]string{"Contract Value"}))
			Expect(written[1].MissingInfo).To(BeEmpty())

			saved, err := slow.Read(ctx, "w2")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.MissingInfo).To(BeEmpty())
		})

		It("publishes status updates in phase order when delivery is slow", func() {
			jittery := &slowNotifier{delay: 30 * time.Millisecond}
			o := newOrch(files, jittery, session.NewRegistry(session.NewLocalLocker(), files, 2*time.Second))

			routerLLM.chatFn = scriptedJSON(routerPayload("CONTRACT_DRAFT"))
			interLLM.chatFn = interrogationLLM([]any{contractFacts}, []any{gapsPayload("Contract Value")})

			_, err := o.HandleTurn(ctx, brain.TurnInput{SessionID: "n1", Message: "Draft a supply contract"})
			Expect(err).NotTo(HaveOccurred())
			o.Wait()

			Expect(jittery.Statuses()).To(Equal([]string{
				"Understanding your request",
				"Reviewing the details of your case",
				"Checking for missing information",
				"Waiting for additional information",
			}))
		})

		It("resumes a paused interrogation on another replica", func() {
			locker := session.NewLocalLocker()
			snaps := newSharedSnapshots()
			replicaA := newOrch(files, notifier, session.NewRegistry(locker, files, 2*time.Second).WithSnapshots(snaps))
			replicaB := newOrch(files, notifier, session.NewRegistry(locker, files, 2*time.Second).WithSnapshots(snaps))
			defer replicaA.Wait()
			defer replicaB.Wait()

			routerLLM.chatFn = scriptedJSON(routerPayload("CONTRACT_DRAFT"))
			interLLM.chatFn = interrogationLLM(
				[]any{contractFacts, contractFacts},
				[]any{gapsPayload("Contract Value"), gapsPayload()},
			)

			first, err := replicaA.HandleTurn(ctx, brain.TurnInput{SessionID: "m1", Message: "Draft a supply contract"})
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Status).To(Equal(brain.TurnWaitingForInput))

			second, err := replicaB.HandleTurn(ctx, brain.TurnInput{SessionID: "m1", Message: "The value is 50,000 SAR"})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Resumed).To(BeTrue())
			Expect(second.Intent).To(Equal(model.IntentContractDraft))
			Expect(second.Status).To(Equal(brain.TurnCompleted))
			Expect(routerLLM.callCount).To(Equal(1))
			Expect(interLLM.requests[2].UserPrompt).To(ContainSubstring("Draft a supply contract"))
		})
	})
})
