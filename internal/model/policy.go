package model

import (
	"encoding/json"
	"strings"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
)

type BranchAction string

const (
	ActionDisqualify BranchAction = "disqualify"
	ActionCreateTask BranchAction = "create_task"
	ActionNextStep   BranchAction = "next_step"
	ActionNotify     BranchAction = "notify"
)

// Defaults applied when no policy, or no entry for a sentiment, is found.
const (
	DefaultPositiveAction = ActionCreateTask
	DefaultNegativeAction = ActionDisqualify
)

// ParseBranchAction accepts both "create_task" and "create-task" spellings.
// The second return is false for anything outside the known set.
func ParseBranchAction(s string) (BranchAction, bool) {
	a := BranchAction(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	switch a {
	case ActionDisqualify, ActionCreateTask, ActionNextStep, ActionNotify:
		return a, true
	}
	return a, false
}

func (a *BranchAction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, _ := ParseBranchAction(s)
	*a = parsed
	return nil
}

// BranchPolicy maps reply sentiment to an action.
type BranchPolicy struct {
	Positive BranchAction `json:"positive_sentiment,omitempty"`
	Negative BranchAction `json:"negative_sentiment,omitempty"`
}

// ActionFor returns the configured action for a sentiment, falling back to
// the defaults for empty or unrecognised entries. A nil policy yields the
// defaults.
func (p *BranchPolicy) ActionFor(s Sentiment) BranchAction {
	if s == SentimentNegative {
		if p != nil {
			if a, ok := ParseBranchAction(string(p.Negative)); ok {
				return a
			}
		}
		return DefaultNegativeAction
	}
	if p != nil {
		if a, ok := ParseBranchAction(string(p.Positive)); ok {
			return a
		}
	}
	return DefaultPositiveAction
}
