package emotion

import (
	"context"

	"memoryd/internal/models"
)

const (
	ProviderLexicon = "lexicon"
	ProviderOpenAI  = "openai"
)

// Classifier is the external sentiment capability: one message in, one signal out.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, text string) (*models.SentimentSignal, error)
}

func sentimentFromScore(score float64) models.Sentiment {
	switch {
	case score >= 0.2:
		return models.SentimentPositive
	case score <= -0.2:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
