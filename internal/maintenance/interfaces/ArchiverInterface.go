package interfaces

import "memoryd/internal/models"

// ArchiverInterface writes data-portability exports outside the durable store.
type ArchiverInterface interface {
	Enabled() bool
	Save(export *models.MemoryExport) (string, error)
	Load(path string) (*models.MemoryExport, error)
}
