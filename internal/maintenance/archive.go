package maintenance

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"memoryd/internal/maintenance/interfaces"
	"memoryd/internal/models"
	"memoryd/internal/providers"
	"memoryd/internal/structures"
)

const archiveExt = ".json.zst"

// ArchiveManager writes zstd-compressed export files atomically (tmp + rename).
type ArchiveManager struct {
	dir        string
	compressor interfaces.CompressorInterface
	logger     providers.Logger
}

func NewArchiveManager(conf *structures.Config, compressor interfaces.CompressorInterface, logger providers.Logger) interfaces.ArchiverInterface {
	return &ArchiveManager{
		dir:        conf.Export.ArchiveDir,
		compressor: compressor,
		logger:     logger,
	}
}

func (a *ArchiveManager) Enabled() bool {
	return a.dir != ""
}

func (a *ArchiveManager) fileName(export *models.MemoryExport) string {
	name := fmt.Sprintf("%s_%s_%d%s",
		url.PathEscape(export.CreatorID),
		url.PathEscape(export.FanID),
		export.ExportedAt.UnixMilli(),
		archiveExt,
	)
	return filepath.Join(a.dir, name)
}

func (a *ArchiveManager) Save(export *models.MemoryExport) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	if err := os.MkdirAll(a.dir, 0o750); err != nil {
		return "", err
	}

	jsonData, err := json.Marshal(export)
	if err != nil {
		return "", err
	}
	data, err := a.compressor.Compress(jsonData)
	if err != nil {
		return "", err
	}

	fileName := a.fileName(export)
	tmpFile := fileName + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return "", err
	}

	_, err = file.Write(data)
	if err != nil {
		file.Close()
		os.Remove(tmpFile)
		return "", err
	}

	if err = file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return "", err
	}

	if err = file.Close(); err != nil {
		os.Remove(tmpFile)
		return "", err
	}

	if err = os.Rename(tmpFile, fileName); err != nil {
		os.Remove(tmpFile)
		return "", err
	}
	a.logger.Infof(providers.TypeAudit, "Export of %s/%s archived to %s", export.CreatorID, export.FanID, fileName)
	return fileName, nil
}

func (a *ArchiveManager) Load(path string) (*models.MemoryExport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decompressed, err := a.compressor.Decompress(data)
	if err != nil {
		return nil, err
	}
	var export models.MemoryExport
	if err := json.Unmarshal(decompressed, &export); err != nil {
		return nil, err
	}
	return &export, nil
}
