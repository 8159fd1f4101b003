package models

import (
	"sort"
	"time"
)

// ContentCategory is the closed set of categories preferences are learned for.
type ContentCategory string

const (
	CategoryPhotos          ContentCategory = "photos"
	CategoryVideos          ContentCategory = "videos"
	CategoryCustomContent   ContentCategory = "custom_content"
	CategoryVoiceNotes      ContentCategory = "voice_notes"
	CategoryLiveStreams     ContentCategory = "live_streams"
	CategoryBundles         ContentCategory = "bundles"
	CategoryBehindTheScenes ContentCategory = "behind_the_scenes"
	CategoryCosplay         ContentCategory = "cosplay"
	CategoryFitness         ContentCategory = "fitness"
	CategoryLingerie        ContentCategory = "lingerie"
	CategoryOutdoor         ContentCategory = "outdoor"
	CategoryGaming          ContentCategory = "gaming"
	CategoryMusic           ContentCategory = "music"
	CategoryTravel          ContentCategory = "travel"
	CategoryFood            ContentCategory = "food"
	CategoryFashion         ContentCategory = "fashion"
	CategoryArt             ContentCategory = "art"
	CategoryPets            ContentCategory = "pets"
	CategoryCouples         ContentCategory = "couples"
	CategoryStories         ContentCategory = "stories"
	CategoryPolls           ContentCategory = "polls"
	CategoryMerch           ContentCategory = "merch"
)

var AllCategories = []ContentCategory{
	CategoryPhotos, CategoryVideos, CategoryCustomContent, CategoryVoiceNotes,
	CategoryLiveStreams, CategoryBundles, CategoryBehindTheScenes, CategoryCosplay,
	CategoryFitness, CategoryLingerie, CategoryOutdoor, CategoryGaming,
	CategoryMusic, CategoryTravel, CategoryFood, CategoryFashion, CategoryArt,
	CategoryPets, CategoryCouples, CategoryStories, CategoryPolls, CategoryMerch,
}

// BaseCategories seed a brand-new preference profile.
var BaseCategories = []ContentCategory{
	CategoryPhotos, CategoryVideos, CategoryCustomContent, CategoryVoiceNotes, CategoryBundles,
}

var knownCategories = func() map[ContentCategory]struct{} {
	m := make(map[ContentCategory]struct{}, len(AllCategories))
	for _, c := range AllCategories {
		m[c] = struct{}{}
	}
	return m
}()

func (c ContentCategory) Valid() bool {
	_, ok := knownCategories[c]
	return ok
}

// PreferenceEntry is the learned state of one content category.
type PreferenceEntry struct {
	Category        ContentCategory `json:"category"`
	Score           float64         `json:"score"`
	Confidence      float64         `json:"confidence"`
	EvidenceCount   int             `json:"evidenceCount"`
	LastInteraction time.Time       `json:"lastInteraction"`
	Pinned          bool            `json:"pinned,omitempty"`
	CoolDownUntil   time.Time       `json:"coolDownUntil,omitempty"`
}

func (e *PreferenceEntry) CoolingDown(now time.Time) bool {
	return !e.CoolDownUntil.IsZero() && now.Before(e.CoolDownUntil)
}

// PurchasePattern summarizes when and how much a fan buys of one content type.
type PurchasePattern struct {
	ContentType    ContentCategory `json:"contentType"`
	AverageAmount  float64         `json:"averageAmount"`
	Frequency      int             `json:"frequency"`
	PreferredDays  []int           `json:"preferredDays"`
	PreferredHours []int           `json:"preferredHours"`
	DayCounts      [7]int          `json:"dayCounts"`
	HourCounts     [24]int         `json:"hourCounts"`
	LastPurchase   time.Time       `json:"lastPurchase"`
}

type FanPreferences struct {
	FanID            string                               `json:"fanId"`
	CreatorID        string                               `json:"creatorId"`
	Entries          map[ContentCategory]*PreferenceEntry `json:"entries"`
	PurchasePatterns []*PurchasePattern                   `json:"purchasePatterns"`

	// CoolDowns holds active cool-downs of categories pruned from Entries.
	CoolDowns map[ContentCategory]time.Time `json:"coolDowns,omitempty"`
	UpdatedAt time.Time                     `json:"updatedAt"`
}

// CoolingDown reports whether offers of the category are suppressed at now.
func (p *FanPreferences) CoolingDown(category ContentCategory, now time.Time) bool {
	if entry := p.Entries[category]; entry != nil && entry.CoolingDown(now) {
		return true
	}
	until, ok := p.CoolDowns[category]
	return ok && now.Before(until)
}

func EmptyFanPreferences(key PairKey) *FanPreferences {
	return &FanPreferences{
		FanID:            key.FanID,
		CreatorID:        key.CreatorID,
		Entries:          make(map[ContentCategory]*PreferenceEntry),
		PurchasePatterns: []*PurchasePattern{},
	}
}

// Sorted returns entries ordered by score, then confidence, then category.
func (p *FanPreferences) Sorted() []*PreferenceEntry {
	out := make([]*PreferenceEntry, 0, len(p.Entries))
	for _, e := range p.Entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func (p *FanPreferences) Pattern(category ContentCategory) *PurchasePattern {
	for _, pp := range p.PurchasePatterns {
		if pp.ContentType == category {
			return pp
		}
	}
	return nil
}

// PreferenceOverride is a creator edit that pins scores for the listed categories.
type PreferenceOverride struct {
	Entries []PreferenceOverrideEntry `json:"entries"`
}

type PreferenceOverrideEntry struct {
	Category ContentCategory `json:"category"`
	Score    float64         `json:"score"`
}

func (o *PreferenceOverride) Validate() error {
	fields := map[string]string{}
	if len(o.Entries) == 0 {
		fields["entries"] = "at least one entry is required"
	}
	for _, e := range o.Entries {
		if !e.Category.Valid() {
			fields["entries."+string(e.Category)] = "unknown content category"
			continue
		}
		if e.Score < 0 || e.Score > 1 {
			fields["entries."+string(e.Category)] = "score must be within [0,1]"
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// PredictedPreference is a top-N category with its confidence.
type PredictedPreference struct {
	Category   ContentCategory `json:"category"`
	Score      float64         `json:"score"`
	Confidence float64         `json:"confidence"`
}

// ContentItem is an item a creator could surface to the fan.
type ContentItem struct {
	ID       string          `json:"id"`
	Category ContentCategory `json:"category"`
	Price    float64         `json:"price,omitempty"`
	Title    string          `json:"title,omitempty"`
}

type Recommendation struct {
	Item   ContentItem `json:"item"`
	Score  float64     `json:"score"`
	Reason string      `json:"reason"`
}

type RecommendationResult struct {
	Recommendations []Recommendation `json:"recommendations"`
	Excluded        []ContentItem    `json:"excluded"`
	SuggestedSendAt *time.Time       `json:"suggestedSendAt,omitempty"`
}
