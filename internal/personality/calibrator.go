package personality

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"memoryd/internal/models"
	"memoryd/internal/structures"
)

const (
	DefaultCadence      = 10
	ActivationThreshold = 0.7

	maxEmojiStep   = 0.30
	maxLengthStep  = 0.20
	confidenceRate = 15.0
	shortAIMessage = 80
	longAIMessage  = 200
	maxPreferred   = 5
)

var (
	laughter     = []string{"haha", "hehe", "lol", "lmao", "omg", "rofl", "xd"}
	flirtyWords  = []string{"babe", "baby", "cutie", "sexy", "gorgeous", "handsome", "kiss", "hottie"}
	commandWords = []string{"now", "must", "obey", "show me", "do it", "i want", "give me", "send me"}

	playfulEmoji = map[string]bool{"😂": true, "🤣": true, "😜": true, "😝": true, "😛": true, "🤪": true, "🎉": true, "😆": true, "🙈": true}
	flirtyEmoji  = map[string]bool{"😘": true, "😍": true, "😉": true, "😏": true, "🥵": true, "💋": true, "😈": true, "🥰": true}
)

type CalibratorInterface interface {
	ShouldCalibrate(profile *models.PersonalityProfile, interactionCount int) bool
	CalibratePersonality(profile *models.PersonalityProfile, history []*models.Interaction, interactionCount int, now time.Time) (*models.PersonalityProfile, error)
	GetOptimalResponseStyle(in StyleInputs) models.StyleDirective
	ApplyOverride(profile *models.PersonalityProfile, override *models.PersonalityOverride, now time.Time)
	Unpin(profile *models.PersonalityProfile, field models.PersonalityField) bool
}

type Calibrator struct {
	cadence int
}

func NewCalibrator(cadence int) *Calibrator {
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	return &Calibrator{cadence: cadence}
}

func NewCalibratorProvider(conf *structures.Config) CalibratorInterface {
	return NewCalibrator(conf.Memory.CalibrationCadence)
}

func (c *Calibrator) Cadence() int {
	return c.cadence
}

// ShouldCalibrate enforces at least one full cadence of new interactions between cycles.
func (c *Calibrator) ShouldCalibrate(profile *models.PersonalityProfile, interactionCount int) bool {
	last := 0
	if profile != nil {
		last = profile.CalibratedAtCount
	}
	return interactionCount-last >= c.cadence
}

// Confidence saturates toward 1 as interactions accumulate.
func Confidence(interactionCount int) float64 {
	return 1 - math.Exp(-float64(interactionCount)/confidenceRate)
}

// CalibratePersonality returns an updated copy of profile. On failure the
// caller keeps the prior profile.
func (c *Calibrator) CalibratePersonality(profile *models.PersonalityProfile, history []*models.Interaction, interactionCount int, now time.Time) (*models.PersonalityProfile, error) {
	if profile == nil {
		return nil, fmt.Errorf("%w: no profile to calibrate", models.ErrCalibrationFailed)
	}
	obs := observe(history)
	if obs.fanMessages == 0 {
		return nil, fmt.Errorf("%w: no fan messages in history", models.ErrCalibrationFailed)
	}

	next := *profile
	next.PinnedFields = append([]models.PersonalityField(nil), profile.PinnedFields...)

	if !next.IsPinned(models.FieldEmojiFrequency) {
		step := clamp(obs.emojiRate-next.EmojiFrequency, -maxEmojiStep, maxEmojiStep)
		next.EmojiFrequency = clamp(next.EmojiFrequency+step, 0, 1)
	}
	if !next.IsPinned(models.FieldMessageLength) {
		step := clamp(obs.lengthTarget-next.LengthBias, -maxLengthStep, maxLengthStep)
		next.LengthBias = clamp(next.LengthBias+step, 0, 1)
		next.MessageLengthPreference = models.LengthFromBias(next.LengthBias)
	}
	if !next.IsPinned(models.FieldTone) && obs.tone != "" {
		next.Tone = obs.tone
	}
	if len(obs.emojis) > 0 {
		next.PreferredEmojis = obs.emojis
	}
	next.PunctuationStyle = obs.punctuation
	if obs.speed != "" {
		next.ResponseSpeed = obs.speed
	}

	next.InteractionCount = interactionCount
	next.CalibratedAtCount = interactionCount
	next.LastCalibrated = now
	next.ConfidenceScore = math.Max(profile.ConfidenceScore, Confidence(interactionCount))
	return &next, nil
}

// ApplyOverride pins the edited fields and marks the profile fully trusted.
func (c *Calibrator) ApplyOverride(profile *models.PersonalityProfile, override *models.PersonalityOverride, now time.Time) {
	if override.Tone != nil {
		profile.Tone = *override.Tone
		profile.Pin(models.FieldTone)
	}
	if override.EmojiFrequency != nil {
		profile.EmojiFrequency = clamp(*override.EmojiFrequency, 0, 1)
		profile.Pin(models.FieldEmojiFrequency)
	}
	if override.MessageLength != nil {
		profile.MessageLengthPreference = *override.MessageLength
		profile.LengthBias = override.MessageLength.Bias()
		profile.Pin(models.FieldMessageLength)
	}
	profile.ConfidenceScore = 1
	profile.LastCalibrated = now
}

func (c *Calibrator) Unpin(profile *models.PersonalityProfile, field models.PersonalityField) bool {
	return profile.Unpin(field)
}

type observation struct {
	fanMessages  int
	emojiRate    float64
	lengthTarget float64
	tone         models.Tone
	emojis       []string
	punctuation  models.PunctuationStyle
	speed        models.ResponseSpeed
}

func observe(history []*models.Interaction) observation {
	var (
		obs        observation
		emojiSum   float64
		totalChars int
		marks      int
		bare       int
		latencies  []float64
		votes      = map[models.Tone]float64{}
		counts     = map[string]int{}
		firstSeen  = map[string]int{}
		buckets    = map[models.LengthPreference]*replyBucket{}
		fanIndexes []int
	)

	for i, m := range history {
		if m.IsFanMessage() {
			fanIndexes = append(fanIndexes, i)
		}
	}
	obs.fanMessages = len(fanIndexes)
	if obs.fanMessages == 0 {
		return obs
	}

	for n, idx := range fanIndexes {
		m := history[idx]
		emojis := Emojis(m.Content)
		emojiSum += math.Min(1, float64(len(emojis))/2)
		for _, e := range emojis {
			if _, ok := firstSeen[e]; !ok {
				firstSeen[e] = len(firstSeen)
			}
			counts[e]++
		}

		totalChars += utf8.RuneCountInString(m.Content)
		marks += strings.Count(m.Content, "!") + strings.Count(m.Content, "?")
		if !strings.ContainsAny(lastRune(m.Content), ".!?") && len(emojis) == 0 {
			bare++
		}

		recency := 0.5 + 0.5*float64(n+1)/float64(len(fanIndexes))
		votes[messageTone(m.Content, emojis, m.Sentiment)] += sentimentWeight(m.Sentiment) * recency

		latency := m.Metadata.ResponseTimeSeconds
		var prompt *models.Interaction
		if idx > 0 && history[idx-1].Sender != models.SenderFan && history[idx-1].Kind == models.KindMessage {
			prompt = history[idx-1]
			if latency == 0 {
				latency = m.Timestamp.Sub(prompt.Timestamp).Seconds()
			}
		}
		if latency > 0 {
			latencies = append(latencies, latency)
		}
		if prompt != nil {
			bucket := aiLengthBucket(prompt.Content)
			b := buckets[bucket]
			if b == nil {
				b = &replyBucket{}
				buckets[bucket] = b
			}
			b.add(latency, m.Sentiment)
		}
	}

	obs.emojiRate = emojiSum / float64(obs.fanMessages)
	obs.emojis = topEmojis(counts, firstSeen, maxPreferred)
	obs.tone = winningTone(votes)
	obs.lengthTarget = lengthTarget(buckets, float64(totalChars)/float64(obs.fanMessages))
	obs.punctuation = punctuationStyle(float64(marks)/float64(obs.fanMessages), float64(bare)/float64(obs.fanMessages))
	obs.speed = responseSpeed(latencies)
	return obs
}

// replyBucket scores how well the fan answers AI messages of one length.
type replyBucket struct {
	replies int
	quality float64
}

func (b *replyBucket) add(latencySeconds float64, sentiment models.Sentiment) {
	q := 1 / (1 + math.Max(0, latencySeconds)/60)
	switch sentiment {
	case models.SentimentPositive:
		q += 0.5
	case models.SentimentNegative:
		q -= 0.5
	}
	b.replies++
	b.quality += q
}

func aiLengthBucket(content string) models.LengthPreference {
	n := utf8.RuneCountInString(content)
	switch {
	case n < shortAIMessage:
		return models.LengthShort
	case n > longAIMessage:
		return models.LengthLong
	default:
		return models.LengthMedium
	}
}

// lengthTarget picks the AI length the fan answers best, or mirrors the
// fan's own length when no replies to AI messages were observed.
func lengthTarget(buckets map[models.LengthPreference]*replyBucket, avgFanChars float64) float64 {
	best, bestQuality := models.LengthPreference(""), math.Inf(-1)
	for _, l := range []models.LengthPreference{models.LengthShort, models.LengthMedium, models.LengthLong} {
		b := buckets[l]
		if b == nil || b.replies == 0 {
			continue
		}
		if q := b.quality / float64(b.replies); q > bestQuality {
			best, bestQuality = l, q
		}
	}
	if best != "" {
		return best.Bias()
	}
	switch {
	case avgFanChars < 40:
		return models.LengthShort.Bias()
	case avgFanChars > 150:
		return models.LengthLong.Bias()
	}
	return models.LengthMedium.Bias()
}

func messageTone(content string, emojis []string, sentiment models.Sentiment) models.Tone {
	lower := strings.ToLower(content)
	scores := map[models.Tone]float64{
		models.ToneFriendly: 0.5,
	}
	if sentiment == models.SentimentPositive {
		scores[models.ToneFriendly] += 0.5
	}
	for _, w := range laughter {
		if strings.Contains(lower, w) {
			scores[models.TonePlayful]++
		}
	}
	for _, w := range flirtyWords {
		if strings.Contains(lower, w) {
			scores[models.ToneFlirty]++
		}
	}
	for _, w := range commandWords {
		if containsWord(lower, w) {
			scores[models.ToneDominant]++
		}
	}
	for _, e := range emojis {
		if playfulEmoji[e] {
			scores[models.TonePlayful]++
		}
		if flirtyEmoji[e] {
			scores[models.ToneFlirty]++
		}
	}
	if len(emojis) >= 2 {
		scores[models.TonePlayful] += 0.5
	}
	if len(emojis) == 0 && utf8.RuneCountInString(content) >= 60 && strings.HasSuffix(strings.TrimSpace(content), ".") {
		scores[models.ToneProfessional] += 1.5
	}
	return winningTone(scores)
}

// winningTone breaks ties in the declaration order of models.AllTones.
func winningTone(scores map[models.Tone]float64) models.Tone {
	var best models.Tone
	bestScore := 0.0
	for _, t := range models.AllTones {
		if scores[t] > bestScore {
			best, bestScore = t, scores[t]
		}
	}
	return best
}

func sentimentWeight(s models.Sentiment) float64 {
	switch s {
	case models.SentimentPositive:
		return 1.5
	case models.SentimentNegative:
		return 0.5
	}
	return 1
}

func punctuationStyle(marksPerMessage, bareRatio float64) models.PunctuationStyle {
	switch {
	case marksPerMessage > 1:
		return models.PunctuationExpressive
	case bareRatio > 0.7:
		return models.PunctuationMinimal
	}
	return models.PunctuationStandard
}

func responseSpeed(latencies []float64) models.ResponseSpeed {
	if len(latencies) == 0 {
		return ""
	}
	sorted := append([]float64(nil), latencies...)
	sort.Float64s(sorted)
	median := sorted[len(sorted)/2]
	switch {
	case median < 60:
		return models.SpeedInstant
	case median < 15*60:
		return models.SpeedNormal
	}
	return models.SpeedRelaxed
}

func containsWord(lower, phrase string) bool {
	idx := strings.Index(" "+lower+" ", " "+phrase+" ")
	return idx >= 0
}

func lastRune(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r, _ := utf8.DecodeLastRuneInString(s)
	return string(r)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
