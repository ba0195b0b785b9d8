package service

import (
	"context"
	"strings"

	"github.com/unclebandit/dripline/internal/model"
)

type Classifier interface {
	Classify(ctx context.Context, text string) (model.Sentiment, error)
}

var (
	DefaultNegativeKeywords = []string{"stop", "unsubscribe", "remove", "not interested", "no thanks", "spam"}
	DefaultPositiveKeywords = []string{"interested", "call me", "yes", "connect", "schedule", "chat", "love to"}
)

// KeywordClassifier matches lowercase substrings. Negative keywords are
// checked first so "not interested" never reads as "interested"; text
// matching neither list is positive.
type KeywordClassifier struct {
	Negative []string
	Positive []string
}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{Negative: DefaultNegativeKeywords, Positive: DefaultPositiveKeywords}
}

func (k *KeywordClassifier) Classify(ctx context.Context, text string) (model.Sentiment, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lower := strings.ToLower(text)
	for _, w := range k.Negative {
		if strings.Contains(lower, w) {
			return model.SentimentNegative, nil
		}
	}
	for _, w := range k.Positive {
		if strings.Contains(lower, w) {
			return model.SentimentPositive, nil
		}
	}
	return model.SentimentPositive, nil
}

var _ Classifier = (*KeywordClassifier)(nil)
