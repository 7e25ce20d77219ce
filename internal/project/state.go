package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const stateFile = "current_project"

// StateFilePath returns the path of the current-project marker inside the
// application data directory, creating the directory if needed.
func StateFilePath(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return filepath.Join(dataDir, stateFile), nil
}

// LoadCurrentID loads the active project ID from the state file.
// Returns (nil, nil) when no project is marked current.
func LoadCurrentID(dataDir string) (*uuid.UUID, error) {
	path, err := StateFilePath(dataDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return nil, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid project ID in state file: %w", err)
	}
	return &id, nil
}

// SaveCurrentID marks a project as the active one.
func SaveCurrentID(dataDir string, id uuid.UUID) error {
	path, err := StateFilePath(dataDir)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(id.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// ClearCurrentID removes the current-project marker. Idempotent.
func ClearCurrentID(dataDir string) error {
	path, err := StateFilePath(dataDir)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}
