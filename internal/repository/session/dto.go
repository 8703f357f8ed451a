package session

import (
	"github.com/WDelesposti/tokie/internal/domain/usage"
	"github.com/WDelesposti/tokie/internal/domain/usage/plan"
)

// recordDTO is the stored JSON shape of a usage record.
type recordDTO struct {
	SessionID    string `json:"sessionId"`
	SessionStart int64  `json:"sessionStart"`
	PlanType     string `json:"planType"`
	InputTokens  int    `json:"inputTokens"`
	OutputTokens int    `json:"outputTokens"`
	TotalTokens  int    `json:"totalTokens"`
	MaxTokens    int    `json:"maxTokens"`
	Syncing      bool   `json:"syncing"`
}

func fromRecord(rec usage.Record) recordDTO {
	return recordDTO{
		SessionID:    rec.SessionID(),
		SessionStart: rec.SessionStart(),
		PlanType:     rec.Plan().String(),
		InputTokens:  rec.InputTokens(),
		OutputTokens: rec.OutputTokens(),
		TotalTokens:  rec.TotalTokens(),
		MaxTokens:    rec.MaxTokens(),
		Syncing:      rec.Syncing(),
	}
}

func (d recordDTO) toRecord() usage.Record {
	p, err := plan.Parse(d.PlanType)
	if err != nil {
		p = plan.Free
	}
	return usage.Restore(d.SessionID, d.SessionStart, p, d.InputTokens, d.OutputTokens)
}
