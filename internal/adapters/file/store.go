package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/plotlink/pkg/domain"
)

// Store implements ports.PlotStore using the local filesystem.
// Each plot snapshot is one JSON file in BasePath.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".plotlink/plots".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".plotlink", "plots")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(plotID string) (string, error) {
	if plotID == "" {
		return "", errors.New("plotID cannot be empty")
	}
	if strings.ContainsAny(plotID, `/\`) || plotID == "." || plotID == ".." {
		return "", fmt.Errorf("invalid plotID %q", plotID)
	}
	return filepath.Join(s.BasePath, plotID+".json"), nil
}

// Save writes the snapshot atomically: temp file, fsync, then rename over the destination.
func (s *Store) Save(ctx context.Context, plotID string, snap *domain.Snapshot) error {
	destPath, err := s.path(plotID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure plot directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Same directory keeps the rename on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+plotID+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// os.Rename does not replace an existing file on Windows.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing plot file for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Load reads the snapshot of plotID.
func (s *Store) Load(ctx context.Context, plotID string) (*domain.Snapshot, error) {
	filePath, err := s.path(plotID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrPlotNotFound
		}
		return nil, fmt.Errorf("failed to read plot file: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes the plot file. A missing file is not an error.
func (s *Store) Delete(ctx context.Context, plotID string) error {
	filePath, err := s.path(plotID)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete plot file: %w", err)
	}
	return nil
}

// List returns the IDs of stored plots in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list plots: %w", err)
	}

	plots := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		plots = append(plots, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(plots)
	return plots, nil
}
