package models

import (
	"fmt"
	"strings"
)

const maxIDLength = 128

// PairKey scopes every memory entity to a single (fan, creator) pair.
type PairKey struct {
	FanID     string `json:"fanId"`
	CreatorID string `json:"creatorId"`
}

func NewPairKey(fanID, creatorID string) PairKey {
	return PairKey{FanID: strings.TrimSpace(fanID), CreatorID: strings.TrimSpace(creatorID)}
}

func (k PairKey) String() string {
	return k.CreatorID + "/" + k.FanID
}

func (k PairKey) Validate() error {
	fields := map[string]string{}
	if k.FanID == "" {
		fields["fanId"] = "fanId is required"
	} else if len(k.FanID) > maxIDLength {
		fields["fanId"] = fmt.Sprintf("fanId exceeds %d characters", maxIDLength)
	}
	if k.CreatorID == "" {
		fields["creatorId"] = "creatorId is required"
	} else if len(k.CreatorID) > maxIDLength {
		fields["creatorId"] = fmt.Sprintf("creatorId exceeds %d characters", maxIDLength)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// EntityType names one of the five per-pair memory collections.
type EntityType string

const (
	EntityMessages       EntityType = "messages"
	EntityPersonality    EntityType = "personality"
	EntityPreferences    EntityType = "preferences"
	EntityEmotionalState EntityType = "emotional_state"
	EntityEngagement     EntityType = "engagement"
)

var AllEntityTypes = []EntityType{
	EntityMessages,
	EntityPersonality,
	EntityPreferences,
	EntityEmotionalState,
	EntityEngagement,
}

// DocumentEntityTypes are stored as one mutable document per pair.
var DocumentEntityTypes = []EntityType{
	EntityPersonality,
	EntityPreferences,
	EntityEmotionalState,
	EntityEngagement,
}

func (e EntityType) IsDocument() bool {
	return e != EntityMessages
}
