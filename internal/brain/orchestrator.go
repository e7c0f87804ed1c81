package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"basegraph.app/counsel/common/id"
	"basegraph.app/counsel/common/llm"
	"basegraph.app/counsel/common/logger"
	"basegraph.app/counsel/internal/legal"
	"basegraph.app/counsel/internal/model"
	"basegraph.app/counsel/internal/notify"
	"basegraph.app/counsel/internal/session"
	"basegraph.app/counsel/internal/store"
)

type TurnInput struct {
	SessionID string
	UserID    string
	Message   string
}

type TurnStatus string

const (
	TurnCompleted       TurnStatus = "COMPLETED"
	TurnWaitingForInput TurnStatus = "WAITING_FOR_INPUT"
	TurnFailed          TurnStatus = "FAILED"
)

type FailureKind string

const (
	FailureRouting           FailureKind = "routing"
	FailureExtraction        FailureKind = "extraction"
	FailureDraftUnavailable  FailureKind = "draft_unavailable"
	FailureReviewUnavailable FailureKind = "review_unavailable"
)

// TurnOutput is what the user sees for one message. Text is a reviewed response, a
// clarifying question, or an apology, depending on Status.
type TurnOutput struct {
	TurnID      int64                   `json:"turn_id"`
	SessionID   string                  `json:"session_id"`
	Status      TurnStatus              `json:"status"`
	Intent      model.Intent            `json:"intent,omitempty"`
	Text        string                  `json:"text"`
	MissingInfo []string                `json:"missing_info,omitempty"`
	Review      *model.ReviewedArtifact `json:"review,omitempty"`
	Failure     FailureKind             `json:"failure,omitempty"`
	Resumed     bool                    `json:"resumed"`
}

type OrchestratorConfig struct {
	Disclaimer            string
	WorksheetWriteTimeout time.Duration
}

// Clients holds one gateway per stage so each can use its own model and limits.
type Clients struct {
	Router        llm.Client
	Interrogation llm.Client
	Draft         llm.Client
	Review        llm.Client
}

// Orchestrator runs one user turn: route, gather facts or research, draft, review.
type Orchestrator struct {
	sessions      *session.Registry
	router        *RouterEngine
	interrogation *InterrogationEngine
	research      *ResearchAgent
	pipeline      *DraftReviewPipeline
	effects       *sideEffects
}

func NewOrchestrator(
	cfg OrchestratorConfig,
	clients Clients,
	sessions *session.Registry,
	files store.CaseFileStore,
	notifier notify.Notifier,
	searcher legal.Searcher,
) *Orchestrator {
	effects := newSideEffects(files, notifier, cfg.WorksheetWriteTimeout)

	slog.InfoContext(context.Background(), "orchestrator initialized",
		"router_model", clients.Router.Model(),
		"interrogation_model", clients.Interrogation.Model(),
		"draft_model", clients.Draft.Model(),
		"review_model", clients.Review.Model())

	return &Orchestrator{
		sessions:      sessions,
		router:        NewRouterEngine(clients.Router),
		interrogation: newInterrogationEngine(clients.Interrogation, effects),
		research:      NewResearchAgent(searcher),
		pipeline:      NewDraftReviewPipeline(NewDrafter(clients.Draft), NewReviewer(clients.Review, cfg.Disclaimer)),
		effects:       effects,
	}
}

func (o *Orchestrator) HandleTurn(ctx context.Context, in TurnInput) (*TurnOutput, error) {
	turnID := id.New()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SessionID: &in.SessionID,
		TurnID:    &turnID,
		Component: "counsel.brain.orchestrator",
	})
	sc := logger.StartSpan(ctx, "brain.orchestrator.handle_turn")
	defer sc.End()
	ctx = sc.Context()

	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, NewFatalError(ErrEmptyMessage)
	}

	sess, release, err := o.sessions.Acquire(ctx, in.SessionID)
	if err != nil {
		sc.RecordError(err)
		if errors.Is(err, session.ErrLockTimeout) {
			return nil, NewRetryableError(err)
		}
		return nil, NewFatalError(err)
	}
	defer o.effects.releaseAfter(sess.ID, release)

	slog.InfoContext(ctx, "handling turn", "pending", sess.Pending != nil, "history", len(sess.History))

	out := &TurnOutput{TurnID: turnID, SessionID: in.SessionID}

	decision, query, err := o.plan(ctx, sess, in.UserID, message)
	if err != nil {
		return o.fail(ctx, sess, out, message, err)
	}
	out.Intent = decision.Intent
	out.Resumed = sess.Pending != nil
	ctx = logger.WithLogFields(ctx, logger.LogFields{Intent: logger.Ptr(string(decision.Intent))})

	pipeline, err := PipelineFor(decision.Intent)
	if err != nil {
		return o.fail(ctx, sess, out, message, &RoutingError{Reason: "no pipeline", Err: err})
	}

	state := sess.State.Clone()
	rounds := sess.Rounds

	if pipeline.RequiresInterrogation {
		rounds++
		res, err := o.interrogation.Execute(ctx, InterrogationInput{
			SessionID:  sess.ID,
			Query:      query,
			State:      state,
			CycleIndex: rounds,
		})
		if err != nil {
			return o.fail(ctx, sess, out, message, err)
		}
		state = res.State

		if res.Status == model.InterrogationWaitingForInput {
			if ctx.Err() != nil {
				return nil, NewFatalError(ctx.Err())
			}
			sess.State = state
			sess.Rounds = rounds
			sess.Pending = &session.Pending{Intent: decision.Intent, Query: query, Question: res.Question}
			sess.AddMessage(model.RoleUser, message)
			sess.AddMessage(model.RoleAssistant, res.Question)

			out.Status = TurnWaitingForInput
			out.Text = res.Question
			out.MissingInfo = state.MissingInfo
			slog.InfoContext(ctx, "turn paused for user input", "missing_critical", len(state.MissingInfo))
			return out, nil
		}
	}

	draftIn := DraftInput{Text: query, Intent: decision.Intent, Topic: state.Topic}

	if pipeline.RequiresResearch {
		o.effects.notify(ctx, sess.ID, "Searching legal sources")
		sources, err := o.research.Run(ctx, decision)
		if err != nil {
			return o.fail(ctx, sess, out, message, err)
		}
		draftIn.ResearchContext = legal.FormatContext(sources)
	}
	if pipeline.RequiresInterrogation || decision.HasTool(model.ToolCaseFileLookup) {
		draftIn.CaseFile = state.Render()
	}

	o.effects.notify(ctx, sess.ID, "Drafting response")
	reviewed, err := o.pipeline.Run(ctx, draftIn)
	if err != nil {
		return o.fail(ctx, sess, out, message, err)
	}

	if ctx.Err() != nil {
		return nil, NewFatalError(ctx.Err())
	}
	sess.State = state
	sess.Rounds = rounds
	sess.Pending = nil
	sess.AddMessage(model.RoleUser, message)
	sess.AddMessage(model.RoleAssistant, reviewed.FinalText)
	o.effects.notify(ctx, sess.ID, "Response ready")

	out.Status = TurnCompleted
	out.Text = reviewed.FinalText
	out.Review = reviewed

	slog.InfoContext(ctx, "turn completed",
		"outcome_rewritten", reviewed.OutcomeRewritten,
		"hallucination_flagged", reviewed.HallucinationFlagged)

	return out, nil
}

// plan picks the turn's intent and tool calls. A session paused for input resumes the
// paused request with the new message as the answer instead of routing it afresh.
func (o *Orchestrator) plan(ctx context.Context, sess *session.Session, userID, message string) (model.RouterDecision, string, error) {
	if p := sess.Pending; p != nil {
		query := p.Query + "\n\nAdditional information from the user:\n" + message
		decision, err := PlanTools(model.RouterDecision{Intent: p.Intent, Reasoning: "resuming interrogation"}, p.Query)
		if err != nil {
			return model.RouterDecision{}, "", &RoutingError{Reason: "pending intent has no pipeline", Err: err}
		}
		slog.InfoContext(ctx, "resuming paused interrogation", "intent", p.Intent)
		return decision, query, nil
	}

	o.effects.notify(ctx, sess.ID, "Understanding your request")
	conv := sess.Context(userID)
	conv.Messages = append(conv.Messages, model.Message{Role: model.RoleUser, Content: message, Timestamp: time.Now().UTC()})

	decision, err := o.router.Classify(ctx, conv)
	if err != nil {
		return model.RouterDecision{}, "", err
	}
	return decision, message, nil
}

// fail converts a stage error into an apology the user can read. Cancellation and
// unexpected errors are returned as TurnErrors instead; nothing is committed for them.
func (o *Orchestrator) fail(ctx context.Context, sess *session.Session, out *TurnOutput, message string, err error) (*TurnOutput, error) {
	if ctx.Err() != nil {
		return nil, NewFatalError(fmt.Errorf("turn abandoned: %w", ctx.Err()))
	}

	var (
		routingErr    *RoutingError
		extractionErr *ExtractionError
		reviewErr     *ReviewUnavailableError
	)
	switch {
	case errors.As(err, &routingErr):
		out.Failure = FailureRouting
	case errors.As(err, &extractionErr):
		out.Failure = FailureExtraction
	case errors.As(err, &reviewErr):
		out.Failure = FailureReviewUnavailable
	case errors.Is(err, ErrDraftUnavailable):
		out.Failure = FailureDraftUnavailable
	default:
		slog.ErrorContext(ctx, "turn failed", "error", err)
		return nil, NewFatalError(err)
	}

	slog.ErrorContext(ctx, "turn failed, returning apology", "failure", out.Failure, "error", err)

	out.Status = TurnFailed
	out.Text = apology(out.Failure, message)
	sess.AddMessage(model.RoleUser, message)
	sess.AddMessage(model.RoleAssistant, out.Text)
	return out, nil
}

// EndSession discards the session's state and worksheet. It waits for the turn in flight,
// if any, and for that turn's worksheet writes.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID string) (bool, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{SessionID: &sessionID, Component: "counsel.brain.orchestrator"})
	existed, err := o.sessions.End(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrLockTimeout) {
			return false, NewRetryableError(err)
		}
		return false, err
	}
	slog.InfoContext(ctx, "session ended", "existed", existed)
	return existed, nil
}

// Wait blocks until background worksheet writes and status updates finish.
func (o *Orchestrator) Wait() {
	o.effects.wait()
}

func apology(kind FailureKind, message string) string {
	arabic := containsArabic(message)
	switch kind {
	case FailureRouting:
		if arabic {
			return "عذراً، لم أتمكن من تحديد نوع المساعدة التي تحتاجها. هل يمكنك إعادة صياغة طلبك؟"
		}
		return "I'm sorry, I couldn't determine what kind of help you need. Could you rephrase your request?"
	case FailureExtraction:
		if arabic {
			return "عذراً، لم أتمكن من معالجة تفاصيل قضيتك الآن. يرجى المحاولة مرة أخرى."
		}
		return "I'm sorry, I couldn't process the details of your case right now. Please try again."
	case FailureReviewUnavailable:
		if arabic {
			return "عذراً، تعذر إكمال المراجعة النهائية للرد، لذلك لا يمكنني مشاركته الآن. يرجى المحاولة لاحقاً."
		}
		return "I'm sorry, I couldn't complete the final review of my response, so I can't share it yet. Please try again shortly."
	default:
		if arabic {
			return "عذراً، لم أتمكن من إعداد الرد الآن. يرجى المحاولة لاحقاً."
		}
		return "I'm sorry, I couldn't prepare a response right now. Please try again shortly."
	}
}
