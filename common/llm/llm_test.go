package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"basegraph.app/counsel/common/llm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeClient struct {
	chatFn    func(ctx context.Context, req llm.Request, result any) (*llm.Response, error)
	callCount int
}

func (f *fakeClient) Chat(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
	f.callCount++
	if f.chatFn != nil {
		return f.chatFn(ctx, req, result)
	}
	return &llm.Response{}, nil
}

func (f *fakeClient) Model() string { return "fake-model" }

type sample struct {
	Topic    string   `json:"topic" jsonschema_description:"Topic label"`
	Missing  []string `json:"missing_critical"`
	Optional *string  `json:"optional,omitempty"`
}

var _ = Describe("GenerateSchema", func() {
	It("reflects properties without references", func() {
		raw, err := json.Marshal(llm.GenerateSchema[sample]())
		Expect(err).NotTo(HaveOccurred())

		var schema map[string]any
		Expect(json.Unmarshal(raw, &schema)).To(Succeed())
		Expect(schema).NotTo(HaveKey("$defs"))
		Expect(schema["properties"]).To(HaveKey("topic"))
		Expect(schema["properties"]).To(HaveKey("missing_critical"))
		Expect(schema["additionalProperties"]).To(BeFalse())
	})
})

var _ = Describe("New", func() {
	It("requires an API key", func() {
		_, err := llm.New(llm.Config{Provider: llm.ProviderOpenAI})
		Expect(err).To(MatchError(ContainSubstring("API key is required")))
	})

	It("rejects unknown providers", func() {
		_, err := llm.New(llm.Config{Provider: "bard", APIKey: "k"})
		Expect(err).To(MatchError(ContainSubstring("unsupported LLM provider")))
	})

	DescribeTable("builds a client for supported providers",
		func(provider, model string) {
			client, err := llm.New(llm.Config{Provider: provider, APIKey: "k", Model: model})
			Expect(err).NotTo(HaveOccurred())
			Expect(client.Model()).To(Equal(model))
		},
		Entry("openai", llm.ProviderOpenAI, "gpt-4o"),
		Entry("anthropic", llm.ProviderAnthropic, "claude-sonnet-4-5"),
		Entry("default provider", "", "gpt-4o-mini"),
	)
})

var _ = Describe("IsRetryable", func() {
	ctx := context.Background()

	DescribeTable("classifies errors",
		func(err error, expected bool) {
			Expect(llm.IsRetryable(ctx, err)).To(Equal(expected))
		},
		Entry("nil", nil, false),
		Entry("unparsable output", fmt.Errorf("wrap: %w", llm.ErrUnparsable), true),
		Entry("timeout", fmt.Errorf("wrap: %w", llm.ErrTimeout), true),
		Entry("circuit open", fmt.Errorf("wrap: %w", llm.ErrCircuitOpen), false),
		Entry("cancelled", context.Canceled, false),
		Entry("network error", errors.New("connection reset by peer"), true),
	)

	It("never retries once the caller's context is done", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		Expect(llm.IsRetryable(cancelled, errors.New("connection reset"))).To(BeFalse())
	})
})

var _ = Describe("Guarded", func() {
	var (
		inner *fakeClient
		ctx   context.Context
	)

	BeforeEach(func() {
		inner = &fakeClient{}
		ctx = context.Background()
	})

	It("passes results through", func() {
		inner.chatFn = func(_ context.Context, _ llm.Request, result any) (*llm.Response, error) {
			*(result.(*string)) = "hello"
			return &llm.Response{PromptTokens: 3, CompletionTokens: 1}, nil
		}
		client := llm.NewGuarded(inner, llm.GuardConfig{Name: "test"})

		var out string
		resp, err := client.Chat(ctx, llm.Request{UserPrompt: "hi"}, &out)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("hello"))
		Expect(resp.PromptTokens).To(Equal(3))
		Expect(client.Model()).To(Equal("fake-model"))
	})

	It("enforces the per-call timeout", func() {
		inner.chatFn = func(ctx context.Context, _ llm.Request, _ any) (*llm.Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		client := llm.NewGuarded(inner, llm.GuardConfig{Name: "test", Timeout: 20 * time.Millisecond})

		var out string
		_, err := client.Chat(ctx, llm.Request{}, &out)
		Expect(err).To(MatchError(llm.ErrTimeout))
	})

	It("does not report caller cancellation as a timeout", func() {
		inner.chatFn = func(ctx context.Context, _ llm.Request, _ any) (*llm.Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		client := llm.NewGuarded(inner, llm.GuardConfig{Name: "test", Timeout: time.Minute})

		cancelled, cancel := context.WithCancel(ctx)
		go cancel()

		var out string
		_, err := client.Chat(cancelled, llm.Request{}, &out)
		Expect(err).To(MatchError(context.Canceled))
		Expect(err).NotTo(MatchError(llm.ErrTimeout))
	})

	It("opens the circuit after consecutive provider failures", func() {
		inner.chatFn = func(context.Context, llm.Request, any) (*llm.Response, error) {
			return nil, errors.New("upstream 503")
		}
		client := llm.NewGuarded(inner, llm.GuardConfig{Name: "test", FailureThreshold: 2, OpenTimeout: time.Minute})

		var out string
		for i := 0; i < 2; i++ {
			_, err := client.Chat(ctx, llm.Request{}, &out)
			Expect(err).To(MatchError(ContainSubstring("upstream 503")))
		}

		_, err := client.Chat(ctx, llm.Request{}, &out)
		Expect(err).To(MatchError(llm.ErrCircuitOpen))
		Expect(inner.callCount).To(Equal(2))
	})

	It("does not count unparsable output against the breaker", func() {
		inner.chatFn = func(context.Context, llm.Request, any) (*llm.Response, error) {
			return nil, fmt.Errorf("decode: %w", llm.ErrUnparsable)
		}
		client := llm.NewGuarded(inner, llm.GuardConfig{Name: "test", FailureThreshold: 1, OpenTimeout: time.Minute})

		var out string
		for i := 0; i < 3; i++ {
			_, err := client.Chat(ctx, llm.Request{}, &out)
			Expect(err).To(MatchError(llm.ErrUnparsable))
		}
		Expect(inner.callCount).To(Equal(3))
	})
})
