package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/eddielth/pt100-south/logger"
	"github.com/eddielth/pt100-south/plugin"
)

// FileStorage writes each reading as a JSON file under a per-asset directory
type FileStorage struct {
	basePath string
}

// NewFileStorage creates basePath and returns a file backend rooted there
func NewFileStorage(basePath string) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create dir %s failed: %w", basePath, err)
	}

	logger.Info("init file storage: %s", basePath)
	return &FileStorage{
		basePath: basePath,
	}, nil
}

// Store saves every reading of batch to <base>/<asset>/<timestamp>-<key>.json
func (fs *FileStorage) Store(batch plugin.Batch) error {
	for _, reading := range batch {
		assetDir := filepath.Join(fs.basePath, filepath.FromSlash(reading.Asset))
		if err := os.MkdirAll(assetDir, 0755); err != nil {
			return fmt.Errorf("create dir %s failed: %w", assetDir, err)
		}

		stamp := time.Now().UTC().Format("20060102-150405.000")
		if t, err := readingTime(reading); err == nil {
			stamp = t.UTC().Format("20060102-150405.000000")
		}
		filename := filepath.Join(assetDir, fmt.Sprintf("%s-%s.json", stamp, reading.Key))

		jsonData, err := json.MarshalIndent(reading, "", "  ")
		if err != nil {
			return fmt.Errorf("serialize reading failed: %w", err)
		}

		if err := os.WriteFile(filename, jsonData, 0644); err != nil {
			return fmt.Errorf("write file %s failed: %w", filename, err)
		}

		logger.Debug("has stored reading to file: %s", filename)
	}
	return nil
}

// Close implement StorageBackend
func (fs *FileStorage) Close() error {
	return nil
}
