package preference

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"memoryd/internal/models"
)

const (
	MinEntries = 5
	MaxEntries = 20

	PurchaseDelta      = 0.20
	AcceptedOfferDelta = 0.10
	MentionDelta       = 0.05
	DeclineDelta       = -0.15

	CoolDown = 7 * 24 * time.Hour

	neutralScore  = 0.5
	decayHalfLife = 30 * 24 * time.Hour
	decayFloor    = 0.1
	unknownMatch  = 0.3
	dayBoost      = 1.1
	hourBoost     = 1.2
)

// evidence weights how much one event moves confidence toward 1.
var evidence = map[models.InteractionKind]float64{
	models.KindPurchase:      0.30,
	models.KindOfferAccepted: 0.20,
	models.KindOfferDeclined: 0.20,
	models.KindMessage:       0.08,
}

type EngineInterface interface {
	LearnFromInteraction(prefs *models.FanPreferences, event *models.Interaction, now time.Time) bool
	UpdatePreferenceScore(prefs *models.FanPreferences, category models.ContentCategory, delta float64, now time.Time) error
	GetContentRecommendations(prefs *models.FanPreferences, available []models.ContentItem, now time.Time) *models.RecommendationResult
	GetPredictedPreferences(prefs *models.FanPreferences, n int) []models.PredictedPreference
	AudiencePrior(profiles []*models.FanPreferences, n int) []models.PredictedPreference
	Seed(key models.PairKey, prior []models.PredictedPreference, now time.Time) *models.FanPreferences
	ApplyOverride(prefs *models.FanPreferences, override *models.PreferenceOverride, now time.Time)
	Unpin(prefs *models.FanPreferences, category models.ContentCategory) bool
}

type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

func NewEngineProvider() EngineInterface {
	return NewEngine()
}

// LearnFromInteraction folds one event into prefs and reports whether anything changed.
func (e *Engine) LearnFromInteraction(prefs *models.FanPreferences, event *models.Interaction, now time.Time) bool {
	changed := false
	switch event.Kind {
	case models.KindPurchase:
		e.apply(prefs, event.Metadata.Category, PurchaseDelta, evidence[event.Kind], event.Timestamp)
		recordPurchase(prefs, event)
		changed = true
	case models.KindOfferAccepted:
		e.apply(prefs, event.Metadata.Category, AcceptedOfferDelta, evidence[event.Kind], event.Timestamp)
		changed = true
	case models.KindOfferDeclined:
		changed = e.UpdatePreferenceScore(prefs, event.Metadata.Category, DeclineDelta, event.Timestamp) == nil
	case models.KindMessage:
		if event.Sender != models.SenderFan {
			return false
		}
		for _, c := range ExtractCategories(event.Content, event.Topics) {
			e.apply(prefs, c, MentionDelta, evidence[models.KindMessage], event.Timestamp)
			changed = true
		}
	}

	if changed {
		enforceBounds(prefs, now)
		prefs.UpdatedAt = now
	}
	return changed
}

// UpdatePreferenceScore moves one category by delta as a single signal at the
// given time. A drop of DeclineDelta or more starts the cool-down.
func (e *Engine) UpdatePreferenceScore(prefs *models.FanPreferences, category models.ContentCategory, delta float64, at time.Time) error {
	if !category.Valid() {
		return &models.ValidationError{Fields: map[string]string{"category": fmt.Sprintf("unknown content category %q", category)}}
	}
	e.apply(prefs, category, delta, evidence[models.KindOfferDeclined], at)
	if delta <= DeclineDelta {
		entry := prefs.Entries[category]
		if until := at.Add(CoolDown); until.After(entry.CoolDownUntil) {
			entry.CoolDownUntil = until
		}
	}
	enforceBounds(prefs, at)
	prefs.UpdatedAt = at
	return nil
}

// apply adds delta to a category, clamped to [0,1]. Creator-pinned scores are
// never moved by learning, though evidence still accrues.
func (e *Engine) apply(prefs *models.FanPreferences, category models.ContentCategory, delta, weight float64, at time.Time) {
	if !category.Valid() {
		return
	}
	if prefs.Entries == nil {
		prefs.Entries = make(map[models.ContentCategory]*models.PreferenceEntry)
	}
	entry, ok := prefs.Entries[category]
	if !ok {
		entry = &models.PreferenceEntry{Category: category, Score: neutralScore}
		if until, parked := prefs.CoolDowns[category]; parked {
			entry.CoolDownUntil = until
			delete(prefs.CoolDowns, category)
		}
		prefs.Entries[category] = entry
	}
	if !entry.Pinned {
		entry.Score = clamp01(entry.Score + delta)
	}
	entry.Confidence = clamp01(entry.Confidence + weight*(1-entry.Confidence))
	entry.EvidenceCount++
	if at.After(entry.LastInteraction) {
		entry.LastInteraction = at
	}
}

func recordPurchase(prefs *models.FanPreferences, event *models.Interaction) {
	p := prefs.Pattern(event.Metadata.Category)
	if p == nil {
		p = &models.PurchasePattern{ContentType: event.Metadata.Category}
		prefs.PurchasePatterns = append(prefs.PurchasePatterns, p)
	}
	p.AverageAmount = (p.AverageAmount*float64(p.Frequency) + event.Metadata.Amount) / float64(p.Frequency+1)
	p.Frequency++
	p.DayCounts[int(event.Timestamp.Weekday())]++
	p.HourCounts[event.Timestamp.Hour()]++
	p.PreferredDays = peaks(p.DayCounts[:])
	p.PreferredHours = peaks(p.HourCounts[:])
	if event.Timestamp.After(p.LastPurchase) {
		p.LastPurchase = event.Timestamp
	}
}

// peaks returns the slots that reach at least half of the busiest slot.
func peaks(counts []int) []int {
	top := 0
	for _, c := range counts {
		if c > top {
			top = c
		}
	}
	out := []int{}
	if top == 0 {
		return out
	}
	for slot, c := range counts {
		if c > 0 && 2*c >= top {
			out = append(out, slot)
		}
	}
	return out
}

// enforceBounds keeps between MinEntries and MaxEntries entries. Pinned
// entries are never pruned; entries still cooling down go last, and their
// cool-down is parked on prefs so pruning cannot lift it.
func enforceBounds(prefs *models.FanPreferences, now time.Time) {
	for c, until := range prefs.CoolDowns {
		if _, ok := prefs.Entries[c]; ok || !now.Before(until) {
			delete(prefs.CoolDowns, c)
		}
	}

	for _, c := range models.BaseCategories {
		if len(prefs.Entries) >= MinEntries {
			break
		}
		if _, ok := prefs.Entries[c]; !ok {
			prefs.Entries[c] = &models.PreferenceEntry{Category: c, Score: neutralScore}
		}
	}
	for _, c := range models.AllCategories {
		if len(prefs.Entries) >= MinEntries {
			break
		}
		if _, ok := prefs.Entries[c]; !ok {
			prefs.Entries[c] = &models.PreferenceEntry{Category: c, Score: neutralScore}
		}
	}

	if len(prefs.Entries) <= MaxEntries {
		return
	}
	candidates := make([]*models.PreferenceEntry, 0, len(prefs.Entries))
	for _, entry := range prefs.Entries {
		if !entry.Pinned {
			candidates = append(candidates, entry)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ac, bc := a.CoolingDown(now), b.CoolingDown(now); ac != bc {
			return bc
		}
		if a.Confidence != b.Confidence {
			return a.Confidence < b.Confidence
		}
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		if !a.LastInteraction.Equal(b.LastInteraction) {
			return a.LastInteraction.Before(b.LastInteraction)
		}
		return a.Category < b.Category
	})
	for _, entry := range candidates {
		if len(prefs.Entries) <= MaxEntries {
			break
		}
		if entry.CoolingDown(now) {
			if prefs.CoolDowns == nil {
				prefs.CoolDowns = make(map[models.ContentCategory]time.Time)
			}
			prefs.CoolDowns[entry.Category] = entry.CoolDownUntil
		}
		delete(prefs.Entries, entry.Category)
	}
}

// PinnedAfter counts the pinned entries prefs would hold once override is applied.
func PinnedAfter(prefs *models.FanPreferences, override *models.PreferenceOverride) int {
	pinned := map[models.ContentCategory]struct{}{}
	if prefs != nil {
		for c, entry := range prefs.Entries {
			if entry.Pinned {
				pinned[c] = struct{}{}
			}
		}
	}
	for _, o := range override.Entries {
		pinned[o.Category] = struct{}{}
	}
	return len(pinned)
}

// GetContentRecommendations scores items by match × recency decay, drops
// cooled-down categories and boosts items at the fan's usual buying times.
func (e *Engine) GetContentRecommendations(prefs *models.FanPreferences, available []models.ContentItem, now time.Time) *models.RecommendationResult {
	result := &models.RecommendationResult{
		Recommendations: []models.Recommendation{},
		Excluded:        []models.ContentItem{},
	}
	if prefs == nil {
		prefs = models.EmptyFanPreferences(models.PairKey{})
	}
	overall := overallPattern(prefs.PurchasePatterns)

	for _, item := range available {
		entry := prefs.Entries[item.Category]
		if prefs.CoolingDown(item.Category, now) {
			result.Excluded = append(result.Excluded, item)
			continue
		}

		match, reason := unknownMatch, "no history for this category"
		decay := 1.0
		if entry != nil {
			match = entry.Score
			decay = recencyDecay(entry.LastInteraction, now)
			reason = fmt.Sprintf("score %.2f from %d signals", entry.Score, entry.EvidenceCount)
			if entry.Pinned {
				reason = "creator pinned"
			}
		}

		score := match * decay
		pattern := prefs.Pattern(item.Category)
		if pattern == nil {
			pattern = overall
		}
		if pattern != nil {
			if containsInt(pattern.PreferredDays, int(now.Weekday())) {
				score *= dayBoost
				reason += ", usual buying day"
			}
			if containsInt(pattern.PreferredHours, now.Hour()) {
				score *= hourBoost
				reason += ", usual buying hour"
			}
		}

		result.Recommendations = append(result.Recommendations, models.Recommendation{
			Item:   item,
			Score:  clamp01(score),
			Reason: reason,
		})
	}

	sort.SliceStable(result.Recommendations, func(i, j int) bool {
		a, b := result.Recommendations[i], result.Recommendations[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Item.ID < b.Item.ID
	})
	result.SuggestedSendAt = nextSendTime(overall, now)
	return result
}

func recencyDecay(last, now time.Time) float64 {
	if last.IsZero() || !now.After(last) {
		return 1
	}
	d := math.Pow(0.5, float64(now.Sub(last))/float64(decayHalfLife))
	return math.Max(decayFloor, d)
}

func overallPattern(patterns []*models.PurchasePattern) *models.PurchasePattern {
	if len(patterns) == 0 {
		return nil
	}
	out := &models.PurchasePattern{}
	for _, p := range patterns {
		for i, c := range p.DayCounts {
			out.DayCounts[i] += c
		}
		for i, c := range p.HourCounts {
			out.HourCounts[i] += c
		}
		out.Frequency += p.Frequency
	}
	out.PreferredDays = peaks(out.DayCounts[:])
	out.PreferredHours = peaks(out.HourCounts[:])
	return out
}

// nextSendTime finds the next hour within a week on the fan's busiest day and hour.
func nextSendTime(p *models.PurchasePattern, now time.Time) *time.Time {
	if p == nil || p.Frequency == 0 {
		return nil
	}
	bestDay, bestHour := argmax(p.DayCounts[:]), argmax(p.HourCounts[:])
	start := now.Truncate(time.Hour)
	for h := 0; h <= 7*24; h++ {
		t := start.Add(time.Duration(h) * time.Hour)
		if t.Before(now) {
			continue
		}
		if int(t.Weekday()) == bestDay && t.Hour() == bestHour {
			return &t
		}
	}
	return nil
}

func (e *Engine) GetPredictedPreferences(prefs *models.FanPreferences, n int) []models.PredictedPreference {
	if n <= 0 {
		n = MinEntries
	}
	out := []models.PredictedPreference{}
	if prefs == nil {
		return out
	}
	for _, entry := range prefs.Sorted() {
		if len(out) == n {
			break
		}
		out = append(out, models.PredictedPreference{Category: entry.Category, Score: entry.Score, Confidence: entry.Confidence})
	}
	return out
}

// AudiencePrior averages the creator's other fan profiles into a top-n prior,
// weighting each score by its confidence.
func (e *Engine) AudiencePrior(profiles []*models.FanPreferences, n int) []models.PredictedPreference {
	type acc struct {
		weighted, weight, confidence float64
		count                        int
	}
	sums := map[models.ContentCategory]*acc{}
	for _, p := range profiles {
		for c, entry := range p.Entries {
			if entry.Confidence == 0 {
				continue
			}
			a := sums[c]
			if a == nil {
				a = &acc{}
				sums[c] = a
			}
			a.weighted += entry.Score * entry.Confidence
			a.weight += entry.Confidence
			a.confidence += entry.Confidence
			a.count++
		}
	}

	prior := models.EmptyFanPreferences(models.PairKey{})
	for c, a := range sums {
		prior.Entries[c] = &models.PreferenceEntry{
			Category:   c,
			Score:      a.weighted / a.weight,
			Confidence: a.confidence / float64(a.count),
		}
	}
	return e.GetPredictedPreferences(prior, n)
}

// Seed builds a fresh profile. Borrowed scores start at half their confidence
// so the fan's own evidence quickly dominates.
func (e *Engine) Seed(key models.PairKey, prior []models.PredictedPreference, now time.Time) *models.FanPreferences {
	prefs := models.EmptyFanPreferences(key)
	for _, p := range prior {
		if !p.Category.Valid() {
			continue
		}
		prefs.Entries[p.Category] = &models.PreferenceEntry{
			Category:   p.Category,
			Score:      clamp01(p.Score),
			Confidence: clamp01(p.Confidence) / 2,
		}
	}
	enforceBounds(prefs, now)
	prefs.UpdatedAt = now
	return prefs
}

func (e *Engine) ApplyOverride(prefs *models.FanPreferences, override *models.PreferenceOverride, now time.Time) {
	if prefs.Entries == nil {
		prefs.Entries = make(map[models.ContentCategory]*models.PreferenceEntry)
	}
	for _, o := range override.Entries {
		entry, ok := prefs.Entries[o.Category]
		if !ok {
			entry = &models.PreferenceEntry{Category: o.Category}
			prefs.Entries[o.Category] = entry
		}
		entry.Score = clamp01(o.Score)
		entry.Confidence = 1
		entry.Pinned = true
		entry.LastInteraction = now
	}
	enforceBounds(prefs, now)
	prefs.UpdatedAt = now
}

func (e *Engine) Unpin(prefs *models.FanPreferences, category models.ContentCategory) bool {
	entry, ok := prefs.Entries[category]
	if !ok || !entry.Pinned {
		return false
	}
	entry.Pinned = false
	return true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func argmax(counts []int) int {
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return best
}

func normalizeWord(w string) string {
	return strings.Trim(strings.ToLower(w), ".,!?;:'\"()")
}
