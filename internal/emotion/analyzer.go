package emotion

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
	"unicode/utf8"

	"memoryd/internal/models"
	"memoryd/internal/providers"
	"memoryd/internal/structures"
)

const (
	stateWindow       = 30 * 24 * time.Hour
	engagementWindow  = 7 * 24 * time.Hour
	maxHistoryPoints  = 100
	indicatorWindow   = 5
	salesCoolDownMsgs = 2
	maxSoftSellBoost  = 0.25
	boostPerPositive  = 0.05
)

type AnalyzerInterface interface {
	AnalyzeMessage(ctx context.Context, text string) *models.SentimentSignal
	GetEmotionalState(key models.PairKey, messages []*models.Interaction, now time.Time) *models.EmotionalState
	DetectDisengagement(messages []*models.Interaction, now time.Time) *models.DisengagementSignal
	SalesGuidance(messages []*models.Interaction, baseline float64) models.SalesGuidance
}

type Analyzer struct {
	classifier Classifier
	fallback   *LexiconClassifier
	logger     providers.Logger
}

func NewAnalyzer(classifier Classifier, logger providers.Logger) *Analyzer {
	return &Analyzer{
		classifier: classifier,
		fallback:   NewLexiconClassifier(),
		logger:     logger,
	}
}

// NewClassifierProvider selects the sentiment provider named in the config.
func NewClassifierProvider(conf *structures.Config, logger providers.Logger) (Classifier, error) {
	switch conf.Classifier.Provider {
	case "", ProviderLexicon:
		return NewLexiconClassifier(), nil
	case ProviderOpenAI:
		c, err := NewOpenAIClassifier(conf.Classifier)
		if err != nil {
			return nil, err
		}
		logger.Infof(providers.TypeApp, "Sentiment classifier: %s (%s)", c.Name(), c.model)
		return c, nil
	}
	return nil, fmt.Errorf("unknown classifier provider %q", conf.Classifier.Provider)
}

func NewAnalyzerProvider(classifier Classifier, logger providers.Logger) AnalyzerInterface {
	return NewAnalyzer(classifier, logger)
}

// AnalyzeMessage never fails: a provider error falls back to the local lexicon.
func (a *Analyzer) AnalyzeMessage(ctx context.Context, text string) *models.SentimentSignal {
	if text == "" {
		return &models.SentimentSignal{Sentiment: models.SentimentNeutral, Emotions: []string{}}
	}
	if a.classifier != nil && a.classifier.Name() != ProviderLexicon {
		signal, err := a.classifier.Classify(ctx, text)
		if err == nil {
			return signal
		}
		a.logger.Warnf(providers.TypeLearning, "Classifier %s failed, using lexicon: %v", a.classifier.Name(), err)
	}
	return a.fallback.classify(text)
}

func (a *Analyzer) GetEmotionalState(key models.PairKey, messages []*models.Interaction, now time.Time) *models.EmotionalState {
	state := models.NeutralEmotionalState(key)
	state.UpdatedAt = now

	emotions := map[string]float64{}
	var recent []*models.Interaction
	for _, m := range messages {
		if !m.IsFanMessage() {
			continue
		}
		sentiment := messageSentiment(m)
		switch sentiment {
		case models.SentimentPositive:
			if m.Timestamp.After(state.LastPositiveInteraction) {
				state.LastPositiveInteraction = m.Timestamp
			}
		case models.SentimentNegative:
			if m.Timestamp.After(state.LastNegativeInteraction) {
				state.LastNegativeInteraction = m.Timestamp
			}
		}
		if now.Sub(m.Timestamp) > stateWindow {
			continue
		}
		recent = append(recent, m)
		state.SentimentHistory = append(state.SentimentHistory, models.SentimentPoint{
			Sentiment: sentiment,
			Score:     messageScore(m),
			Intensity: m.Metadata.Intensity,
			Timestamp: m.Timestamp,
		})
		for _, e := range m.Metadata.Emotions {
			emotions[e] += 1 + m.Metadata.Intensity
		}
	}

	sort.SliceStable(state.SentimentHistory, func(i, j int) bool {
		return state.SentimentHistory[i].Timestamp.Before(state.SentimentHistory[j].Timestamp)
	})
	if len(state.SentimentHistory) > maxHistoryPoints {
		state.SentimentHistory = state.SentimentHistory[len(state.SentimentHistory)-maxHistoryPoints:]
	}

	state.CurrentSentiment = currentSentiment(state.SentimentHistory)
	state.DominantEmotions = topEmotions(emotions, 3)
	state.EngagementLevel = engagementLevel(recent, now)
	return state
}

// currentSentiment weights the latest points highest; each older point counts half as much.
func currentSentiment(history []models.SentimentPoint) models.Sentiment {
	if len(history) == 0 {
		return models.SentimentNeutral
	}
	var sum, weights float64
	w := 1.0
	for i := len(history) - 1; i >= 0 && i >= len(history)-indicatorWindow; i-- {
		sum += history[i].Score * w
		weights += w
		w /= 2
	}
	return sentimentFromScore(sum / weights)
}

func engagementLevel(recent []*models.Interaction, now time.Time) models.EngagementLevel {
	var total, positive int
	for _, m := range recent {
		if now.Sub(m.Timestamp) > engagementWindow {
			continue
		}
		total++
		if messageSentiment(m) == models.SentimentPositive {
			positive++
		}
	}
	switch {
	case total >= 15:
		return models.EngagementHigh
	case total >= 8 && float64(positive)/float64(total) >= 0.6:
		return models.EngagementHigh
	case total >= 4:
		return models.EngagementMedium
	default:
		return models.EngagementLow
	}
}

// DetectDisengagement returns nil when no indicator fires.
func (a *Analyzer) DetectDisengagement(messages []*models.Interaction, now time.Time) *models.DisengagementSignal {
	fan := fanMessages(messages)
	last := fan
	if len(last) > indicatorWindow {
		last = last[len(last)-indicatorWindow:]
	}

	var indicators []models.DisengagementIndicator
	for _, check := range []func() *models.DisengagementIndicator{
		func() *models.DisengagementIndicator { return shortResponses(last) },
		func() *models.DisengagementIndicator { return increasingLatency(messages) },
		func() *models.DisengagementIndicator { return repeatedNegative(last) },
		func() *models.DisengagementIndicator { return decliningFrequency(fan, now) },
	} {
		if ind := check(); ind != nil {
			indicators = append(indicators, *ind)
		}
	}
	if len(indicators) == 0 {
		return nil
	}

	signal := &models.DisengagementSignal{Indicators: indicators}
	strongest, elevated := indicators[0], 0
	for _, ind := range indicators {
		if ind.Severity.Rank() > strongest.Severity.Rank() {
			strongest = ind
		}
		if ind.Severity.Rank() >= models.SeverityMedium.Rank() {
			elevated++
		}
	}
	signal.Severity = strongest.Severity
	if elevated >= 2 {
		signal.Severity = models.SeverityHigh
	}
	signal.SuggestedAction = strongest.SuggestedAction
	return signal
}

func shortResponses(last []*models.Interaction) *models.DisengagementIndicator {
	if len(last) < 3 {
		return nil
	}
	lengths := make([]int, len(last))
	total := 0
	for i, m := range last {
		lengths[i] = utf8.RuneCountInString(m.Content)
		total += lengths[i]
	}
	avg := float64(total) / float64(len(lengths))

	ind := &models.DisengagementIndicator{
		Kind:            models.DisengagementShortResponses,
		SuggestedAction: "ask an open-ended question about something they enjoy",
	}
	switch {
	case avg < 5:
		ind.Severity = models.SeverityHigh
		ind.Detail = fmt.Sprintf("average reply is %.1f characters", avg)
	case nonIncreasing(lengths) && float64(lengths[len(lengths)-1]) < 0.6*float64(lengths[0]):
		ind.Severity = models.SeverityMedium
		ind.Detail = fmt.Sprintf("replies shrank from %d to %d characters", lengths[0], lengths[len(lengths)-1])
	default:
		return nil
	}
	return ind
}

func increasingLatency(messages []*models.Interaction) *models.DisengagementIndicator {
	latencies := fanLatencies(messages)
	if len(latencies) > indicatorWindow {
		latencies = latencies[len(latencies)-indicatorWindow:]
	}
	if len(latencies) < 3 {
		return nil
	}
	for i := 1; i < len(latencies); i++ {
		if latencies[i] <= latencies[i-1] {
			return nil
		}
	}

	first, last := latencies[0], latencies[len(latencies)-1]
	ind := &models.DisengagementIndicator{
		Kind:            models.DisengagementIncreasingLatency,
		Severity:        models.SeverityMedium,
		Detail:          fmt.Sprintf("reply time grew from %.0fs to %.0fs", first, last),
		SuggestedAction: "slow down and send a lighter, low-pressure message",
	}
	if first > 0 && last > 3*first {
		ind.Severity = models.SeverityHigh
	}
	return ind
}

func repeatedNegative(last []*models.Interaction) *models.DisengagementIndicator {
	negatives := 0
	for _, m := range last {
		if messageSentiment(m) == models.SentimentNegative {
			negatives++
		}
	}
	if negatives < 3 {
		return nil
	}

	ind := &models.DisengagementIndicator{
		Kind:            models.DisengagementRepeatedNegative,
		Severity:        models.SeverityMedium,
		Detail:          fmt.Sprintf("%d of the last %d messages were negative", negatives, len(last)),
		SuggestedAction: "acknowledge their mood and pause any sales",
	}
	tail := last[len(last)-3:]
	if messageSentiment(tail[0]) == models.SentimentNegative &&
		messageSentiment(tail[1]) == models.SentimentNegative &&
		messageSentiment(tail[2]) == models.SentimentNegative {
		ind.Severity = models.SeverityHigh
	}
	return ind
}

func decliningFrequency(fan []*models.Interaction, now time.Time) *models.DisengagementIndicator {
	var thisWeek, lastWeek int
	for _, m := range fan {
		age := now.Sub(m.Timestamp)
		switch {
		case age < 0:
		case age <= engagementWindow:
			thisWeek++
		case age <= 2*engagementWindow:
			lastWeek++
		}
	}
	if lastWeek < 4 {
		return nil
	}
	drop := 1 - float64(thisWeek)/float64(lastWeek)

	ind := &models.DisengagementIndicator{
		Kind:            models.DisengagementDecliningActivity,
		Detail:          fmt.Sprintf("%d messages this week against %d the week before", thisWeek, lastWeek),
		SuggestedAction: "re-engage with a personal check-in or an exclusive preview",
	}
	switch {
	case drop >= 0.8:
		ind.Severity = models.SeverityHigh
	case drop >= 0.5:
		ind.Severity = models.SeverityMedium
	case drop >= 0.3:
		ind.Severity = models.SeverityLow
	default:
		return nil
	}
	return ind
}

// SalesGuidance applies the monetization safety rules to the ordered message log.
func (a *Analyzer) SalesGuidance(messages []*models.Interaction, baseline float64) models.SalesGuidance {
	remaining, run := 0, 0
	for _, m := range messages {
		switch {
		case m.IsFanMessage():
			switch messageSentiment(m) {
			case models.SentimentNegative:
				remaining = salesCoolDownMsgs
				run = 0
			case models.SentimentPositive:
				run++
			default:
				run = 0
			}
		case m.Sender == models.SenderAI && m.Kind == models.KindMessage:
			if remaining > 0 {
				remaining--
			}
		}
	}

	g := models.SalesGuidance{
		SuppressSales:       remaining > 0,
		SuppressedRemaining: remaining,
		PositiveRun:         run,
	}
	baseline = clamp(baseline, 0, 1)
	if g.SuppressSales {
		return g
	}
	g.SoftSellProbability = baseline
	if run >= 2 {
		g.SoftSellBoostApplied = math.Min(maxSoftSellBoost, boostPerPositive*float64(run))
		g.SoftSellProbability = clamp(baseline*(1+g.SoftSellBoostApplied), 0, 1)
	}
	return g
}

func fanMessages(messages []*models.Interaction) []*models.Interaction {
	out := make([]*models.Interaction, 0, len(messages))
	for _, m := range messages {
		if m.IsFanMessage() {
			out = append(out, m)
		}
	}
	return out
}

// fanLatencies prefers the recorded response time and otherwise measures the
// gap to the preceding creator or AI message.
func fanLatencies(messages []*models.Interaction) []float64 {
	var out []float64
	for i, m := range messages {
		if !m.IsFanMessage() {
			continue
		}
		if m.Metadata.ResponseTimeSeconds > 0 {
			out = append(out, m.Metadata.ResponseTimeSeconds)
			continue
		}
		if i > 0 && messages[i-1].Sender != models.SenderFan {
			if gap := m.Timestamp.Sub(messages[i-1].Timestamp).Seconds(); gap > 0 {
				out = append(out, gap)
			}
		}
	}
	return out
}

func messageSentiment(m *models.Interaction) models.Sentiment {
	if m.Sentiment.Valid() {
		return m.Sentiment
	}
	return sentimentFromScore(m.Metadata.SentimentScore)
}

func messageScore(m *models.Interaction) float64 {
	if m.Metadata.SentimentScore != 0 {
		return m.Metadata.SentimentScore
	}
	switch m.Sentiment {
	case models.SentimentPositive:
		return 0.5
	case models.SentimentNegative:
		return -0.5
	}
	return 0
}

func nonIncreasing(values []int) bool {
	for i := 1; i < len(values); i++ {
		if values[i] > values[i-1] {
			return false
		}
	}
	return true
}
