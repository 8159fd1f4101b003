package personality

import (
	"math"
	"sort"
	"time"

	"memoryd/internal/models"
)

const (
	maxTopics       = 3
	topicThreshold  = 0.5
	avoidThreshold  = 0.2
	lowEngagementBy = 0.75
	maxEmojiCount   = 4
)

var maxLengthByPreference = map[models.LengthPreference]int{
	models.LengthShort:  80,
	models.LengthMedium: 200,
	models.LengthLong:   400,
}

// StyleInputs are everything the style directive depends on. Any of the
// pointers may be nil.
type StyleInputs struct {
	Profile     *models.PersonalityProfile
	State       *models.EmotionalState
	Preferences *models.FanPreferences
	Persona     models.CreatorPersona
	Sales       models.SalesGuidance
	Now         time.Time
}

// GetOptimalResponseStyle is pure: the same inputs always give the same directive.
func (c *Calibrator) GetOptimalResponseStyle(in StyleInputs) models.StyleDirective {
	persona := withPersonaDefaults(in.Persona)

	d := models.StyleDirective{
		PreferredEmojis: []string{},
		Topics:          []models.ContentCategory{},
		AvoidTopics:     []string{},
		AllowSales:      !in.Sales.SuppressSales,
	}

	tone, emojiFreq, length := persona.Tone, persona.EmojiFrequency, persona.MessageLength
	if in.Profile != nil && in.Profile.ConfidenceScore >= ActivationThreshold {
		tone, emojiFreq, length = in.Profile.Tone, in.Profile.EmojiFrequency, in.Profile.MessageLengthPreference
		d.PreferredEmojis = append(d.PreferredEmojis, in.Profile.PreferredEmojis...)
	} else {
		d.UsesDefaultPersona = true
	}
	if !length.Valid() {
		length = models.LengthMedium
	}

	d.Tone = tone
	d.MaxLength = maxLengthByPreference[length]
	d.EmojiCount = int(math.Round(clamp(emojiFreq, 0, 1) * maxEmojiCount))

	if in.State != nil {
		if in.State.EngagementLevel == models.EngagementLow {
			d.MaxLength = int(float64(d.MaxLength) * lowEngagementBy)
		}
		if in.State.CurrentSentiment == models.SentimentNegative {
			if d.EmojiCount > 1 {
				d.EmojiCount = 1
			}
			d.AvoidTopics = append(d.AvoidTopics, "sales")
		}
	}

	if in.Preferences != nil {
		for _, entry := range in.Preferences.Sorted() {
			switch {
			case entry.CoolingDown(in.Now) || entry.Score < avoidThreshold:
				d.AvoidTopics = append(d.AvoidTopics, string(entry.Category))
			case entry.Score >= topicThreshold && len(d.Topics) < maxTopics:
				d.Topics = append(d.Topics, entry.Category)
			}
		}
		parked := make([]string, 0, len(in.Preferences.CoolDowns))
		for c := range in.Preferences.CoolDowns {
			if _, ok := in.Preferences.Entries[c]; !ok && in.Preferences.CoolingDown(c, in.Now) {
				parked = append(parked, string(c))
			}
		}
		sort.Strings(parked)
		d.AvoidTopics = append(d.AvoidTopics, parked...)
	}

	if d.AllowSales {
		d.SoftSellProbability = in.Sales.SoftSellProbability
	}
	return d
}

func withPersonaDefaults(p models.CreatorPersona) models.CreatorPersona {
	if !p.Tone.Valid() {
		p.Tone = models.ToneFriendly
	}
	if !p.MessageLength.Valid() {
		p.MessageLength = models.LengthMedium
	}
	if p.EmojiFrequency < 0 || p.EmojiFrequency > 1 {
		p.EmojiFrequency = models.InitialEmojiFrequency
	}
	return p
}
