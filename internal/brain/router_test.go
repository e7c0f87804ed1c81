package brain_test

import (
	"context"
	"errors"
	"fmt"

	"basegraph.app/counsel/common/llm"
	"basegraph.app/counsel/internal/brain"
	"basegraph.app/counsel/internal/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("RouterEngine", func() {
	var (
		router  *brain.RouterEngine
		mockLLM *mockLLMClient
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		mockLLM = &mockLLMClient{}
		router = brain.NewRouterEngine(mockLLM)
	})

	routerPayload := func(intent string, calls ...map[string]any) map[string]any {
		if calls == nil {
			calls = []map[string]any{}
		}
		return map[string]any{"intent": intent, "reasoning": "test", "tool_calls": calls}
	}

	Context("Arabic research query", func() {
		It("classifies LEGAL_RESEARCH with a legal_search call", func() {
			mockLLM.chatFn = scriptedJSON(routerPayload("LEGAL_RESEARCH",
				map[string]any{"name": "legal_search", "query": "المادة 77 نظام العمل السعودي", "jurisdiction": "SA"}))

			decision, err := router.Classify(ctx, userConversation("ابحث عن المادة 77 من نظام العمل السعودي"))

			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Intent).To(Equal(model.IntentLegalResearch))
			Expect(decision.HasTool(model.ToolLegalSearch)).To(BeTrue())
			call := decision.ToolCallsNamed(model.ToolLegalSearch)[0]
			Expect(call.ID).NotTo(BeEmpty())
			Expect(call.Arguments).To(HaveKeyWithValue("jurisdiction", "SA"))
			Expect(mockLLM.lastRequest().Schema).NotTo(BeNil())
		})

		It("adds a legal_search call when the model omits one", func() {
			mockLLM.chatFn = scriptedJSON(routerPayload("LEGAL_RESEARCH"))

			decision, err := router.Classify(ctx, userConversation("ابحث عن المادة 77 من نظام العمل السعودي"))

			Expect(err).NotTo(HaveOccurred())
			calls := decision.ToolCallsNamed(model.ToolLegalSearch)
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].Arguments["query"]).To(Equal("ابحث عن المادة 77 من نظام العمل السعودي"))
		})
	})

	Context("Arabic drafting request", func() {
		It("classifies CONTRACT_DRAFT without search calls", func() {
			mockLLM.chatFn = scriptedJSON(routerPayload("CONTRACT_DRAFT",
				map[string]any{"name": "legal_search", "query": "lease law", "jurisdiction": ""}))

			decision, err := router.Classify(ctx, userConversation("اكتب عقد إيجار شقة في الرياض"))

			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Intent).To(Equal(model.IntentContractDraft))
			Expect(decision.HasTool(model.ToolLegalSearch)).To(BeFalse())
		})
	})

	It("drops unknown tools and keeps case_file_lookup", func() {
		mockLLM.chatFn = scriptedJSON(routerPayload("GENERAL",
			map[string]any{"name": "send_email", "query": "", "jurisdiction": ""},
			map[string]any{"name": "case_file_lookup", "query": "", "jurisdiction": ""}))

		decision, err := router.Classify(ctx, userConversation("what did I tell you about the lease?"))

		Expect(err).NotTo(HaveOccurred())
		Expect(decision.ToolCalls).To(HaveLen(1))
		Expect(decision.ToolCalls[0].Name).To(Equal(model.ToolCaseFileLookup))
	})

	It("never falls back to a default intent", func() {
		mockLLM.chatFn = scriptedJSON(routerPayload("LITIGATION"))

		_, err := router.Classify(ctx, userConversation("sue my landlord"))

		var routingErr *brain.RoutingError
		Expect(errors.As(err, &routingErr)).To(BeTrue())
		Expect(err).To(MatchError(brain.ErrUnknownIntent))
		Expect(mockLLM.callCount).To(Equal(1))
	})

	It("retries an unparsable response once", func() {
		mockLLM.chatFn = scriptedJSON(
			fmt.Errorf("%w: bad json", llm.ErrUnparsable),
			routerPayload("GENERAL"),
		)

		decision, err := router.Classify(ctx, userConversation("hello"))

		Expect(err).NotTo(HaveOccurred())
		Expect(decision.Intent).To(Equal(model.IntentGeneral))
		Expect(mockLLM.callCount).To(Equal(2))
	})

	It("fails after a second unparsable response", func() {
		mockLLM.chatFn = scriptedJSON(
			fmt.Errorf("%w: bad json", llm.ErrUnparsable),
			fmt.Errorf("%w: still bad", llm.ErrUnparsable),
		)

		_, err := router.Classify(ctx, userConversation("hello"))

		var routingErr *brain.RoutingError
		Expect(errors.As(err, &routingErr)).To(BeTrue())
		Expect(mockLLM.callCount).To(Equal(2))
	})

	It("surfaces model failures as RoutingError without retrying", func() {
		mockLLM.chatFn = scriptedJSON(llm.ErrCircuitOpen)

		_, err := router.Classify(ctx, userConversation("hello"))

		var routingErr *brain.RoutingError
		Expect(errors.As(err, &routingErr)).To(BeTrue())
		Expect(err).To(MatchError(llm.ErrCircuitOpen))
		Expect(mockLLM.callCount).To(Equal(1))
	})

	It("requires a non-empty latest user message", func() {
		_, err := router.Classify(ctx, userConversation("hello", "how can I help?"))

		Expect(err).To(MatchError(brain.ErrEmptyMessage))
		Expect(mockLLM.callCount).To(Equal(0))
	})

	It("includes earlier turns in the prompt", func() {
		mockLLM.chatFn = scriptedJSON(routerPayload("CASE_ANALYSIS"))

		decision, err := router.Classify(ctx, userConversation("my employer fired me", "when did it happen?", "last month"))

		Expect(err).NotTo(HaveOccurred())
		Expect(decision.Intent).To(Equal(model.IntentCaseAnalysis))
		Expect(decision.HasTool(model.ToolLegalSearch)).To(BeTrue())
		prompt := mockLLM.lastRequest().UserPrompt
		Expect(prompt).To(ContainSubstring("my employer fired me"))
		Expect(prompt).To(ContainSubstring("## Latest message\nlast month"))
	})
})
