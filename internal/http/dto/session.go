package dto

import (
	"basegraph.app/counsel/internal/brain"
)

type SendMessageRequest struct {
	Message string `json:"message" binding:"required"`
	UserID  string `json:"user_id,omitempty"`
}

type ReviewResponse struct {
	DisclaimerAppended   bool `json:"disclaimer_appended"`
	HallucinationFlagged bool `json:"hallucination_flagged"`
	OutcomeRewritten     bool `json:"outcome_rewritten"`
}

type TurnResponse struct {
	TurnID      int64           `json:"turn_id"`
	SessionID   string          `json:"session_id"`
	Status      string          `json:"status"`
	Intent      string          `json:"intent,omitempty"`
	Text        string          `json:"text"`
	MissingInfo []string        `json:"missing_info,omitempty"`
	Review      *ReviewResponse `json:"review,omitempty"`
	Failure     string          `json:"failure,omitempty"`
	Resumed     bool            `json:"resumed"`
}

type EndSessionResponse struct {
	SessionID string `json:"session_id"`
	Existed   bool   `json:"existed"`
}

func ToTurnResponse(out *brain.TurnOutput) TurnResponse {
	resp := TurnResponse{
		TurnID:      out.TurnID,
		SessionID:   out.SessionID,
		Status:      string(out.Status),
		Intent:      string(out.Intent),
		Text:        out.Text,
		MissingInfo: out.MissingInfo,
		Failure:     string(out.Failure),
		Resumed:     out.Resumed,
	}
	if out.Review != nil {
		resp.Review = &ReviewResponse{
			DisclaimerAppended:   out.Review.DisclaimerAppended,
			HallucinationFlagged: out.Review.HallucinationFlagged,
			OutcomeRewritten:     out.Review.OutcomeRewritten,
		}
	}
	return resp
}
