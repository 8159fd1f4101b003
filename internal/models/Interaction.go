package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gookit/validate"
)

const MaxContentLength = 4000

type Sender string

const (
	SenderFan     Sender = "fan"
	SenderCreator Sender = "creator"
	SenderAI      Sender = "ai"
)

func (s Sender) Valid() bool {
	switch s {
	case SenderFan, SenderCreator, SenderAI:
		return true
	}
	return false
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

// InteractionKind tags the variant carried by an interaction record.
type InteractionKind string

const (
	KindMessage       InteractionKind = "message"
	KindPurchase      InteractionKind = "purchase"
	KindOfferDeclined InteractionKind = "offer_declined"
	KindOfferAccepted InteractionKind = "offer_accepted"
)

func (k InteractionKind) Valid() bool {
	switch k {
	case KindMessage, KindPurchase, KindOfferDeclined, KindOfferAccepted:
		return true
	}
	return false
}

// InteractionMetadata holds the typed per-kind payload.
type InteractionMetadata struct {
	Category            ContentCategory `json:"category,omitempty"`
	Amount              float64         `json:"amount,omitempty"`
	OfferID             string          `json:"offerId,omitempty"`
	ResponseTimeSeconds float64         `json:"responseTimeSeconds,omitempty"`
	SalesMention        bool            `json:"salesMention,omitempty"`
	SentimentScore      float64         `json:"sentimentScore,omitempty"`
	Intensity           float64         `json:"intensity,omitempty"`
	Emotions            []string        `json:"emotions,omitempty"`
}

// Interaction is one message or purchase event. Immutable once written.
type Interaction struct {
	ID        string              `json:"id"`
	Seq       int64               `json:"seq"`
	FanID     string              `json:"fanId" validate:"required|maxLen:128"`
	CreatorID string              `json:"creatorId" validate:"required|maxLen:128"`
	Kind      InteractionKind     `json:"kind" validate:"required"`
	Content   string              `json:"content"`
	Sender    Sender              `json:"sender" validate:"required"`
	Sentiment Sentiment           `json:"sentiment,omitempty"`
	Topics    []string            `json:"topics,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
	Metadata  InteractionMetadata `json:"metadata"`
}

func (i *Interaction) Key() PairKey {
	return PairKey{FanID: i.FanID, CreatorID: i.CreatorID}
}

func (i *Interaction) IsFanMessage() bool {
	return i.Sender == SenderFan && i.Kind == KindMessage
}

// Normalize fills defaults that do not change the meaning of the event.
func (i *Interaction) Normalize(now time.Time) {
	i.FanID = strings.TrimSpace(i.FanID)
	i.CreatorID = strings.TrimSpace(i.CreatorID)
	i.Content = strings.TrimSpace(i.Content)
	if i.Kind == "" {
		i.Kind = KindMessage
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = now
	}
	i.Timestamp = i.Timestamp.UTC()
	topics := i.Topics[:0]
	seen := make(map[string]struct{}, len(i.Topics))
	for _, t := range i.Topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		topics = append(topics, t)
	}
	i.Topics = topics
}

// Validate rejects the whole event on the first pass; nothing is partially persisted.
func (i *Interaction) Validate() error {
	fields := map[string]string{}

	v := validate.Struct(i)
	if !v.Validate() {
		for field, messages := range v.Errors {
			for _, msg := range messages {
				fields[field] = msg
				break
			}
		}
	}

	if i.Kind != "" && !i.Kind.Valid() {
		fields["kind"] = "kind must be one of message, purchase, offer_declined, offer_accepted"
	}
	if i.Sender != "" && !i.Sender.Valid() {
		fields["sender"] = "sender must be one of fan, creator, ai"
	}
	if i.Sentiment != "" && !i.Sentiment.Valid() {
		fields["sentiment"] = "sentiment must be one of positive, negative, neutral"
	}
	if utf8.RuneCountInString(i.Content) > MaxContentLength {
		fields["content"] = fmt.Sprintf("content exceeds %d characters", MaxContentLength)
	}

	switch i.Kind {
	case KindMessage:
		if i.Content == "" {
			fields["content"] = "content is required for messages"
		}
	case KindPurchase:
		if i.Sender != SenderFan {
			fields["sender"] = "purchases must be made by the fan"
		}
		if i.Metadata.Amount <= 0 {
			fields["metadata.amount"] = "purchase amount must be positive"
		}
		if !i.Metadata.Category.Valid() {
			fields["metadata.category"] = "purchase requires a known content category"
		}
	case KindOfferDeclined, KindOfferAccepted:
		if !i.Metadata.Category.Valid() {
			fields["metadata.category"] = "offer events require a known content category"
		}
	}

	if i.Metadata.Amount < 0 {
		fields["metadata.amount"] = "amount must not be negative"
	}
	if i.Metadata.ResponseTimeSeconds < 0 {
		fields["metadata.responseTimeSeconds"] = "response time must not be negative"
	}
	if i.Timestamp.After(time.Now().Add(5 * time.Minute)) {
		fields["timestamp"] = "timestamp is in the future"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
