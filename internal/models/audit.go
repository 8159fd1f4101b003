package models

import "time"

const (
	ActionMemoryErase         = "memory.erase"
	ActionMemoryExport        = "memory.export"
	ActionPreferencesOverride = "preferences.override"
	ActionPreferencesUnpin    = "preferences.unpin"
	ActionPersonalityOverride = "personality.override"
	ActionPersonalityUnpin    = "personality.unpin"
)

type AuditRecord struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	FanID     string    `json:"fanId"`
	CreatorID string    `json:"creatorId"`
	Timestamp time.Time `json:"timestamp"`
}

type ErasureStatus string

const (
	ErasurePending   ErasureStatus = "pending"
	ErasureCompleted ErasureStatus = "completed"
)

// ErasureRequest tracks a right-to-erasure request until physical deletion completes.
type ErasureRequest struct {
	ID          string        `json:"id"`
	FanID       string        `json:"fanId"`
	CreatorID   string        `json:"creatorId"`
	Actor       string        `json:"actor"`
	Status      ErasureStatus `json:"status"`
	RequestedAt time.Time     `json:"requestedAt"`
	Deadline    time.Time     `json:"deadline"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

func (r *ErasureRequest) Key() PairKey {
	return PairKey{FanID: r.FanID, CreatorID: r.CreatorID}
}

// MemoryExport is the data-portability dump of all five entity types.
type MemoryExport struct {
	FanID          string              `json:"fanId"`
	CreatorID      string              `json:"creatorId"`
	ExportedAt     time.Time           `json:"exportedAt"`
	Interactions   []*Interaction      `json:"interactions"`
	Personality    *PersonalityProfile `json:"personality"`
	Preferences    *FanPreferences     `json:"preferences"`
	EmotionalState *EmotionalState     `json:"emotionalState"`
	Engagement     *EngagementMetrics  `json:"engagement"`
	AuditTrail     []*AuditRecord      `json:"auditTrail"`
}
