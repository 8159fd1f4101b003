package models

import "time"

type EngagementLevel string

const (
	EngagementHigh   EngagementLevel = "high"
	EngagementMedium EngagementLevel = "medium"
	EngagementLow    EngagementLevel = "low"
)

// SentimentSignal is the single-message output of the sentiment capability.
type SentimentSignal struct {
	Sentiment  Sentiment `json:"sentiment"`
	Score      float64   `json:"score"`
	Confidence float64   `json:"confidence"`
	Emotions   []string  `json:"emotions"`
	Intensity  float64   `json:"intensity"`
}

type SentimentPoint struct {
	Sentiment Sentiment `json:"sentiment"`
	Score     float64   `json:"score"`
	Intensity float64   `json:"intensity"`
	Timestamp time.Time `json:"timestamp"`
}

type EmotionalState struct {
	FanID                   string           `json:"fanId"`
	CreatorID               string           `json:"creatorId"`
	CurrentSentiment        Sentiment        `json:"currentSentiment"`
	SentimentHistory        []SentimentPoint `json:"sentimentHistory"`
	DominantEmotions        []string         `json:"dominantEmotions"`
	EngagementLevel         EngagementLevel  `json:"engagementLevel"`
	LastPositiveInteraction time.Time        `json:"lastPositiveInteraction,omitempty"`
	LastNegativeInteraction time.Time        `json:"lastNegativeInteraction,omitempty"`
	UpdatedAt               time.Time        `json:"updatedAt"`
}

func NeutralEmotionalState(key PairKey) *EmotionalState {
	return &EmotionalState{
		FanID:            key.FanID,
		CreatorID:        key.CreatorID,
		CurrentSentiment: SentimentNeutral,
		SentimentHistory: []SentimentPoint{},
		DominantEmotions: []string{},
		EngagementLevel:  EngagementMedium,
	}
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	}
	return 0
}

type DisengagementKind string

const (
	DisengagementShortResponses    DisengagementKind = "short_responses"
	DisengagementIncreasingLatency DisengagementKind = "increasing_latency"
	DisengagementRepeatedNegative  DisengagementKind = "repeated_negative"
	DisengagementDecliningActivity DisengagementKind = "declining_frequency"
)

type DisengagementIndicator struct {
	Kind            DisengagementKind `json:"kind"`
	Severity        Severity          `json:"severity"`
	Detail          string            `json:"detail"`
	SuggestedAction string            `json:"suggestedAction"`
}

// DisengagementSignal is nil when no indicator fired.
type DisengagementSignal struct {
	Severity        Severity                 `json:"severity"`
	Indicators      []DisengagementIndicator `json:"indicators"`
	SuggestedAction string                   `json:"suggestedAction"`
}

// SalesGuidance is the monetization safety decision for the next AI message.
type SalesGuidance struct {
	SuppressSales        bool    `json:"suppressSales"`
	SuppressedRemaining  int     `json:"suppressedRemaining"`
	PositiveRun          int     `json:"positiveRun"`
	SoftSellProbability  float64 `json:"softSellProbability"`
	SoftSellBoostApplied float64 `json:"softSellBoostApplied"`
}
