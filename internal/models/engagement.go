package models

import "time"

// EngagementMetrics is a materialized view over interaction records.
type EngagementMetrics struct {
	FanID                  string    `json:"fanId"`
	CreatorID              string    `json:"creatorId"`
	EngagementScore        float64   `json:"engagementScore"`
	TotalMessages          int       `json:"totalMessages"`
	TotalPurchases         int       `json:"totalPurchases"`
	TotalRevenue           float64   `json:"totalRevenue"`
	AvgResponseTimeSeconds float64   `json:"avgResponseTimeSeconds"`
	LastInteraction        time.Time `json:"lastInteraction"`
	ComputedAt             time.Time `json:"computedAt"`
}

func (m *EngagementMetrics) IsStale(now time.Time, maxAge time.Duration) bool {
	return m.ComputedAt.IsZero() || now.Sub(m.ComputedAt) > maxAge
}

// EngagementTotals are the raw aggregates the score is derived from.
type EngagementTotals struct {
	TotalMessages          int
	TotalPurchases         int
	TotalRevenue           float64
	AvgResponseTimeSeconds float64
	ResponseSamples        int
	LastInteraction        time.Time
}

type CreatorStats struct {
	CreatorID         string                  `json:"creatorId"`
	Fans              int                     `json:"fans"`
	ActiveFans7d      int                     `json:"activeFans7d"`
	TotalMessages     int                     `json:"totalMessages"`
	TotalPurchases    int                     `json:"totalPurchases"`
	TotalRevenue      float64                 `json:"totalRevenue"`
	AvgEngagement     float64                 `json:"avgEngagement"`
	EngagementBuckets map[EngagementLevel]int `json:"engagementBuckets"`
	GeneratedAt       time.Time               `json:"generatedAt"`
}
