package processor

import (
	"encoding/json"
	"fmt"
)

// Code classifies what happened to an inbound message.
type Code string

const (
	CodeAnswerRecorded    Code = "answer_recorded"
	CodeQuestionSkipped   Code = "question_skipped"
	CodeWentBack          Code = "went_back"
	CodeBriefingCompleted Code = "briefing_completed"
	CodeValidationFailed  Code = "validation_failed"
	CodeCommandRejected   Code = "command_rejected"
	CodeNoActiveBriefing  Code = "no_active_briefing"
	CodeNoPendingQuestion Code = "no_pending_question"
)

// Outcome is the deterministic result of processing one inbound message. It
// is cached verbatim in the idempotency ledger, so it carries no timestamps,
// and Reply holds the exact text the client should receive.
type Outcome struct {
	Success       bool   `json:"success"`
	Code          Code   `json:"code"`
	BriefingID    string `json:"briefing_id,omitempty"`
	Status        string `json:"status,omitempty"`
	Command       string `json:"command,omitempty"`
	QuestionOrder int    `json:"question_order,omitempty"`
	NextOrder     int    `json:"next_question_order,omitempty"`
	Completed     bool   `json:"completed"`
	Reply         string `json:"reply,omitempty"`
}

// deliveryKind labels the outbound step an outcome calls for.
func (o *Outcome) deliveryKind() string {
	switch o.Code {
	case CodeBriefingCompleted:
		return "completion"
	case CodeValidationFailed, CodeCommandRejected:
		return "rejection"
	case CodeNoActiveBriefing:
		return "notice"
	default:
		return "next_question"
	}
}

func encodeOutcome(o *Outcome) ([]byte, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("processor: encode outcome: %w", err)
	}
	return data, nil
}

func decodeOutcome(data []byte) (*Outcome, error) {
	var o Outcome
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("processor: decode outcome: %w", err)
	}
	return &o, nil
}
