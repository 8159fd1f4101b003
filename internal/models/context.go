package models

import "time"

// DegradedField marks a context field served from a default.
type DegradedField struct {
	Entity EntityType `json:"entity"`
	Reason string     `json:"reason"`
}

// StyleDirective is what the generator is told about how to answer.
type StyleDirective struct {
	Tone                Tone              `json:"tone"`
	MaxLength           int               `json:"maxLength"`
	EmojiCount          int               `json:"emojiCount"`
	PreferredEmojis     []string          `json:"preferredEmojis"`
	Topics              []ContentCategory `json:"topics"`
	AvoidTopics         []string          `json:"avoidTopics"`
	AllowSales          bool              `json:"allowSales"`
	SoftSellProbability float64           `json:"softSellProbability"`
	UsesDefaultPersona  bool              `json:"usesDefaultPersona"`
}

type MemoryContext struct {
	FanID                string                `json:"fanId"`
	CreatorID            string                `json:"creatorId"`
	RecentMessages       []*Interaction        `json:"recentMessages"`
	Personality          *PersonalityProfile   `json:"personality"`
	Preferences          *FanPreferences       `json:"preferences"`
	PredictedPreferences []PredictedPreference `json:"predictedPreferences"`
	EmotionalState       *EmotionalState       `json:"emotionalState"`
	Engagement           *EngagementMetrics    `json:"engagement"`
	Disengagement        *DisengagementSignal  `json:"disengagement,omitempty"`
	Sales                SalesGuidance         `json:"sales"`
	Style                StyleDirective        `json:"style"`
	Degraded             []DegradedField       `json:"degraded,omitempty"`
	GeneratedAt          time.Time             `json:"generatedAt"`
}

func (c *MemoryContext) IsDegraded() bool {
	return len(c.Degraded) > 0
}
