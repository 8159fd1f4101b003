package interfaces

import (
	"context"
	"time"
)

// MaintenanceInterface is the slice of the memory service the periodic jobs drive.
type MaintenanceInterface interface {
	CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CompletePendingErasures(ctx context.Context) (int, error)
	RefreshEngagement(ctx context.Context, activeSince time.Time) (int, error)
	QueueDepth() int
	Drain(ctx context.Context) error
}
