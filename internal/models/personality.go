package models

import (
	"slices"
	"time"
)

type Tone string

const (
	ToneFlirty       Tone = "flirty"
	ToneFriendly     Tone = "friendly"
	ToneProfessional Tone = "professional"
	TonePlayful      Tone = "playful"
	ToneDominant     Tone = "dominant"
)

var AllTones = []Tone{ToneFlirty, ToneFriendly, ToneProfessional, TonePlayful, ToneDominant}

func (t Tone) Valid() bool {
	return slices.Contains(AllTones, t)
}

type LengthPreference string

const (
	LengthShort  LengthPreference = "short"
	LengthMedium LengthPreference = "medium"
	LengthLong   LengthPreference = "long"
)

func (l LengthPreference) Valid() bool {
	return l == LengthShort || l == LengthMedium || l == LengthLong
}

// Bias maps a categorical length onto the continuous [0,1] scale used for nudging.
func (l LengthPreference) Bias() float64 {
	switch l {
	case LengthShort:
		return 0.15
	case LengthLong:
		return 0.85
	default:
		return 0.5
	}
}

func LengthFromBias(bias float64) LengthPreference {
	switch {
	case bias < 1.0/3:
		return LengthShort
	case bias < 2.0/3:
		return LengthMedium
	default:
		return LengthLong
	}
}

type PunctuationStyle string

const (
	PunctuationMinimal    PunctuationStyle = "minimal"
	PunctuationStandard   PunctuationStyle = "standard"
	PunctuationExpressive PunctuationStyle = "expressive"
)

type ResponseSpeed string

const (
	SpeedInstant ResponseSpeed = "instant"
	SpeedNormal  ResponseSpeed = "normal"
	SpeedRelaxed ResponseSpeed = "relaxed"
)

// PersonalityField names a field a creator can pin.
type PersonalityField string

const (
	FieldTone           PersonalityField = "tone"
	FieldEmojiFrequency PersonalityField = "emojiFrequency"
	FieldMessageLength  PersonalityField = "messageLength"
)

func (f PersonalityField) Valid() bool {
	return f == FieldTone || f == FieldEmojiFrequency || f == FieldMessageLength
}

const InitialEmojiFrequency = 0.5

type PersonalityProfile struct {
	FanID                   string             `json:"fanId"`
	CreatorID               string             `json:"creatorId"`
	Tone                    Tone               `json:"tone"`
	EmojiFrequency          float64            `json:"emojiFrequency"`
	MessageLengthPreference LengthPreference   `json:"messageLengthPreference"`
	LengthBias              float64            `json:"lengthBias"`
	PunctuationStyle        PunctuationStyle   `json:"punctuationStyle"`
	PreferredEmojis         []string           `json:"preferredEmojis"`
	ResponseSpeed           ResponseSpeed      `json:"responseSpeed"`
	ConfidenceScore         float64            `json:"confidenceScore"`
	InteractionCount        int                `json:"interactionCount"`
	CalibratedAtCount       int                `json:"calibratedAtCount"`
	LastCalibrated          time.Time          `json:"lastCalibrated"`
	PinnedFields            []PersonalityField `json:"pinnedFields,omitempty"`
}

func DefaultPersonalityProfile(key PairKey) *PersonalityProfile {
	return &PersonalityProfile{
		FanID:                   key.FanID,
		CreatorID:               key.CreatorID,
		Tone:                    ToneFriendly,
		EmojiFrequency:          InitialEmojiFrequency,
		MessageLengthPreference: LengthMedium,
		LengthBias:              LengthMedium.Bias(),
		PunctuationStyle:        PunctuationStandard,
		PreferredEmojis:         []string{},
		ResponseSpeed:           SpeedNormal,
	}
}

func (p *PersonalityProfile) IsPinned(f PersonalityField) bool {
	return slices.Contains(p.PinnedFields, f)
}

func (p *PersonalityProfile) Pin(f PersonalityField) {
	if !p.IsPinned(f) {
		p.PinnedFields = append(p.PinnedFields, f)
	}
}

func (p *PersonalityProfile) Unpin(f PersonalityField) bool {
	idx := slices.Index(p.PinnedFields, f)
	if idx < 0 {
		return false
	}
	p.PinnedFields = slices.Delete(p.PinnedFields, idx, idx+1)
	return true
}

// PersonalityOverride is a creator edit; nil fields are left untouched.
type PersonalityOverride struct {
	Tone           *Tone             `json:"tone,omitempty"`
	EmojiFrequency *float64          `json:"emojiFrequency,omitempty"`
	MessageLength  *LengthPreference `json:"messageLength,omitempty"`
}

func (o *PersonalityOverride) Validate() error {
	fields := map[string]string{}
	if o.Tone == nil && o.EmojiFrequency == nil && o.MessageLength == nil {
		fields["override"] = "at least one field is required"
	}
	if o.Tone != nil && !o.Tone.Valid() {
		fields["tone"] = "unknown tone"
	}
	if o.EmojiFrequency != nil && (*o.EmojiFrequency < 0 || *o.EmojiFrequency > 1) {
		fields["emojiFrequency"] = "emojiFrequency must be within [0,1]"
	}
	if o.MessageLength != nil && !o.MessageLength.Valid() {
		fields["messageLength"] = "unknown message length"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// CreatorPersona is the creator's default style, used until a fan profile is trusted.
type CreatorPersona struct {
	Tone                    Tone             `json:"tone"`
	EmojiFrequency          float64          `json:"emojiFrequency"`
	MessageLength           LengthPreference `json:"messageLength"`
	BaseSoftSellProbability float64          `json:"baseSoftSellProbability"`
}
