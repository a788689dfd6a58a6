package cli

// This file contains run recording functionality for saving run metadata
// next to the collected artifacts.

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cyreport/cyreport/history"
	"github.com/cyreport/cyreport/model"
)

// newRunID generates a random 16-byte ID.
func newRunID() (string, error) {
	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", fmt.Errorf("failed to generate run ID: %w", err)
	}
	return hex.EncodeToString(idBytes), nil
}

func (a *App) recordRun(record *model.RunRecord) error {
	if err := os.MkdirAll(record.ResultsDir, 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	recordPath := filepath.Join(record.ResultsDir, history.RecordFileName)
	recordJSON, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	if err := os.WriteFile(recordPath, recordJSON, 0644); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}

	a.logger.Debug().Str("file", recordPath).Str("id", record.ID).Msg("Recorded run")
	return nil
}
